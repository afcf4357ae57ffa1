package encryption

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIncompatible политики шифрования сторон несовместимы
var ErrIncompatible = errors.New("encryption policies are incompatible")

// IncompatibleError причина несовместимости
type IncompatibleError struct {
	Local  Mode
	Remote Mode
	Reason string
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("encryption incompatible (local %s, remote %s): %s", e.Local, e.Remote, e.Reason)
}

// Is позволяет сравнивать через errors.Is(err, ErrIncompatible)
func (e *IncompatibleError) Is(target error) bool {
	return target == ErrIncompatible
}

// CryptoSuite одна строка a=crypto (RFC 4568)
type CryptoSuite struct {
	Tag       int
	Suite     string
	KeyParams string
}

// Intent намерение одной стороны по шифрованию
type Intent struct {
	Mode      Mode
	Mandatory bool
	AVPF      bool
	// Suites допустимые SDES наборы в порядке предпочтения
	Suites []CryptoSuite
	// Fingerprint отпечаток DTLS стороны; без него DTLS для стороны недостижим
	Fingerprint string
}

// Resolved итог согласования шифрования для потока
type Resolved struct {
	Mode    Mode
	AVPF    bool
	Profile Profile
	// Suites пересечение SDES наборов в локальном порядке
	Suites []CryptoSuite
}

// Resolve вычисляет единый профиль и режим шифрования для двух намерений.
//
// AVPF включается, если его запросила хотя бы одна сторона. Режим
// выбирается в порядке DTLS, SDES, ZRTP среди запрошенных, не запрещенных
// другой стороной и достижимых для обеих (отпечатки DTLS, наборы SDES).
// Обязательное шифрование никогда не понижается до None.
func Resolve(local, remote Intent) (*Resolved, error) {
	incompatible := func(reason string) error {
		return &IncompatibleError{Local: local.Mode, Remote: remote.Mode, Reason: reason}
	}

	avpf := local.AVPF || remote.AVPF

	mode, ok := selectMode(local, remote)
	if !ok {
		return nil, incompatible("requested modes cannot be signaled in one profile")
	}
	if mode == None {
		if local.Mandatory {
			return nil, incompatible("local encryption is mandatory")
		}
		if remote.Mandatory {
			return nil, incompatible("remote encryption is mandatory")
		}
	}

	res := &Resolved{
		Mode:    mode,
		AVPF:    avpf,
		Profile: ProfileFor(mode, avpf),
	}
	if mode == SdesSrtp {
		res.Suites = IntersectSuites(local.Suites, remote.Suites)
		if len(res.Suites) == 0 {
			return nil, incompatible("no common SDES crypto suite")
		}
	}
	return res, nil
}

// forbids сторона с обязательным режимом запрещает любой другой режим
func forbids(side Intent, m Mode) bool {
	return side.Mandatory && side.Mode != None && side.Mode != m
}

func selectMode(local, remote Intent) (Mode, bool) {
	for _, m := range []Mode{DtlsSrtp, SdesSrtp, ZrtpSrtp} {
		if local.Mode != m && remote.Mode != m {
			continue
		}
		if forbids(local, m) || forbids(remote, m) {
			continue
		}
		// ключи SDES передаются в сигнализации: без наборов у обеих сторон
		// этот режим недостижим
		if m == SdesSrtp && (len(local.Suites) == 0 || len(remote.Suites) == 0) {
			continue
		}
		// DTLS без отпечатка одной из сторон не установить
		if m == DtlsSrtp && (local.Fingerprint == "" || remote.Fingerprint == "") {
			continue
		}
		return m, true
	}
	if local.Mode != None && remote.Mode != None {
		return None, false
	}
	return None, true
}

// IntersectSuites пересекает списки SDES наборов, сохраняя локальный порядок.
// Тег берется из удаленного набора, ключ - из локального.
func IntersectSuites(local, remote []CryptoSuite) []CryptoSuite {
	var out []CryptoSuite
	for _, l := range local {
		for _, r := range remote {
			if strings.EqualFold(l.Suite, r.Suite) {
				out = append(out, CryptoSuite{Tag: r.Tag, Suite: l.Suite, KeyParams: l.KeyParams})
				break
			}
		}
	}
	return out
}
