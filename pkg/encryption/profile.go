package encryption

import "strings"

// Mode механизм шифрования медиа
type Mode int

const (
	None Mode = iota
	SdesSrtp
	ZrtpSrtp
	DtlsSrtp
)

var modeNames = map[Mode]string{
	None:     "none",
	SdesSrtp: "srtp",
	ZrtpSrtp: "zrtp",
	DtlsSrtp: "dtls-srtp",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseMode разбирает имя режима (как в конфигурации)
func ParseMode(s string) (Mode, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return None, true
	}
	for m, name := range modeNames {
		if name == s {
			return m, true
		}
	}
	switch s {
	case "sdes":
		return SdesSrtp, true
	case "dtls":
		return DtlsSrtp, true
	}
	return None, false
}

// Profile транспортный профиль RTP из m-line
type Profile string

const (
	ProfileAVP       Profile = "RTP/AVP"
	ProfileAVPF      Profile = "RTP/AVPF"
	ProfileSAVP      Profile = "RTP/SAVP"
	ProfileSAVPF     Profile = "RTP/SAVPF"
	ProfileDTLSSAVP  Profile = "UDP/TLS/RTP/SAVP"
	ProfileDTLSSAVPF Profile = "UDP/TLS/RTP/SAVPF"
)

// ProfileFor возвращает профиль по режиму шифрования и AVPF.
// ZRTP работает поверх обычного профиля.
func ProfileFor(mode Mode, avpf bool) Profile {
	switch mode {
	case SdesSrtp:
		if avpf {
			return ProfileSAVPF
		}
		return ProfileSAVP
	case DtlsSrtp:
		if avpf {
			return ProfileDTLSSAVPF
		}
		return ProfileDTLSSAVP
	default:
		if avpf {
			return ProfileAVPF
		}
		return ProfileAVP
	}
}

// Family семейство профиля: режим шифрования, который профиль требует
// на уровне m-line, и признак AVPF. ok == false для не-RTP профилей.
func (p Profile) Family() (mode Mode, avpf bool, ok bool) {
	switch Profile(strings.ToUpper(string(p))) {
	case ProfileAVP:
		return None, false, true
	case ProfileAVPF:
		return None, true, true
	case ProfileSAVP:
		return SdesSrtp, false, true
	case ProfileSAVPF:
		return SdesSrtp, true, true
	case ProfileDTLSSAVP:
		return DtlsSrtp, false, true
	case ProfileDTLSSAVPF:
		return DtlsSrtp, true, true
	}
	return None, false, false
}

// IsRTP проверяет, что профиль относится к RTP
func (p Profile) IsRTP() bool {
	_, _, ok := p.Family()
	return ok
}

// HasAVPF проверяет наличие обратной связи в профиле
func (p Profile) HasAVPF() bool {
	_, avpf, _ := p.Family()
	return avpf
}

// Compatible проверяет, что профили отличаются не более чем AVPF.
// Не-RTP профили совместимы только при точном совпадении.
func Compatible(a, b Profile) bool {
	am, _, aok := a.Family()
	bm, _, bok := b.Family()
	if !aok || !bok {
		return strings.EqualFold(string(a), string(b))
	}
	return am == bm
}
