package encryption

import "strings"

// SetupRole роль DTLS из атрибута a=setup (RFC 5763)
type SetupRole int

const (
	RoleInvalid SetupRole = iota
	// RoleUnset actpass: роль выберет отвечающая сторона
	RoleUnset
	// RoleClient active
	RoleClient
	// RoleServer passive
	RoleServer
)

func (r SetupRole) String() string {
	switch r {
	case RoleUnset:
		return "actpass"
	case RoleClient:
		return "active"
	case RoleServer:
		return "passive"
	}
	return ""
}

// ParseSetupRole разбирает значение a=setup
func ParseSetupRole(s string) SetupRole {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "actpass":
		return RoleUnset
	case "active":
		return RoleClient
	case "passive":
		return RoleServer
	}
	return RoleInvalid
}

// AnswerRole локальная роль при ответе на offer с ролью remote.
// На actpass отвечаем active.
func AnswerRole(remote SetupRole) SetupRole {
	switch remote {
	case RoleUnset, RoleServer:
		return RoleClient
	case RoleClient:
		return RoleServer
	}
	return RoleInvalid
}

// OffererRole локальная роль после получения ответа с ролью answered
func OffererRole(answered SetupRole) SetupRole {
	switch answered {
	case RoleClient:
		return RoleServer
	case RoleServer, RoleUnset:
		return RoleClient
	}
	return RoleInvalid
}

// DTLSParams параметры DTLS потока
type DTLSParams struct {
	Role SetupRole
	// Fingerprint значение a=fingerprint ("sha-256 AB:CD:...")
	Fingerprint string
}

// Valid проверяет, что у стороны заданы и роль, и отпечаток
func (p *DTLSParams) Valid() bool {
	return p != nil && p.Role != RoleInvalid && p.Fingerprint != ""
}

// AnsweredSuite выбирает набор из ответа на наш SDES offer.
// Ключ берется из ответа, localTag - тег нашего совпавшего набора.
func AnsweredSuite(local, answered []CryptoSuite) (chosen CryptoSuite, localTag int, ok bool) {
	for _, r := range answered {
		for _, l := range local {
			if strings.EqualFold(l.Suite, r.Suite) {
				return CryptoSuite{Tag: l.Tag, Suite: r.Suite, KeyParams: r.KeyParams}, l.Tag, true
			}
		}
	}
	return CryptoSuite{}, 0, false
}
