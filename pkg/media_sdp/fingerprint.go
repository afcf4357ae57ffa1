package media_sdp

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pion/dtls/v2/pkg/crypto/fingerprint"
)

// ValidateFingerprint проверяет значение a=fingerprint (RFC 8122):
// известный алгоритм хеширования и длину отпечатка для этого алгоритма.
func ValidateFingerprint(value string) error {
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return fmt.Errorf("ожидается \"<алгоритм> <отпечаток>\", получено %q", value)
	}
	hash, err := fingerprint.HashFromString(strings.ToLower(fields[0]))
	if err != nil {
		return fmt.Errorf("алгоритм %q: %w", fields[0], err)
	}
	octets := strings.Split(fields[1], ":")
	if len(octets) != hash.Size() {
		return fmt.Errorf("длина отпечатка %d байт, для %s нужно %d", len(octets), fields[0], hash.Size())
	}
	for _, o := range octets {
		if len(o) != 2 {
			return fmt.Errorf("некорректный байт отпечатка %q", o)
		}
		if _, err := hex.DecodeString(o); err != nil {
			return fmt.Errorf("некорректный байт отпечатка %q", o)
		}
	}
	return nil
}
