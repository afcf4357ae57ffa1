package media_sdp

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/offer_answer/pkg/offer_answer"
)

// defaultMulticastTTL TTL для c= с multicast IPv4 адресом (RFC 4566 5.7)
const defaultMulticastTTL = 127

// connectionAddress извлекает адрес соединения; c= на уровне m-line
// приоритетнее уровня сессии
func connectionAddress(session, media *sdp.ConnectionInformation) string {
	ci := media
	if ci == nil {
		ci = session
	}
	if ci == nil || ci.Address == nil {
		return ""
	}
	return ci.Address.Address
}

// newConnectionInformation создает c= для адреса
func newConnectionInformation(addr string) *sdp.ConnectionInformation {
	ci := &sdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: addressType(addr),
		Address:     &sdp.Address{Address: addr},
	}
	if ip, err := netip.ParseAddr(addr); err == nil && ip.Is4() && ip.IsMulticast() {
		ttl := defaultMulticastTTL
		ci.Address.TTL = &ttl
	}
	return ci
}

func addressType(addr string) string {
	if ip, err := netip.ParseAddr(addr); err == nil && ip.Is6() && !ip.Is4In6() {
		return "IP6"
	}
	return "IP4"
}

// parseRTCPAttribute разбирает a=rtcp (RFC 3605): "port [IN IP4 addr]".
// Если адрес не указан, используется defaultAddr.
func parseRTCPAttribute(value, defaultAddr string) (string, int, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return "", 0, fmt.Errorf("пустой атрибут rtcp")
	}
	port, err := strconv.Atoi(fields[0])
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("некорректный порт rtcp: %q", fields[0])
	}
	addr := defaultAddr
	if len(fields) >= 4 {
		addr = fields[3]
	}
	return addr, port, nil
}

// rtcpAttribute формирует a=rtcp, если RTCP не на соседнем порту того же адреса
func rtcpAttribute(t offer_answer.Transport) (string, bool) {
	if t.RTCPPort == 0 {
		return "", false
	}
	if t.RTCPPort == t.RTPPort+1 && (t.RTCPAddr == "" || t.RTCPAddr == t.RTPAddr) {
		return "", false
	}
	if t.RTCPAddr == "" || t.RTCPAddr == t.RTPAddr {
		return strconv.Itoa(t.RTCPPort), true
	}
	return fmt.Sprintf("%d IN %s %s", t.RTCPPort, addressType(t.RTCPAddr), t.RTCPAddr), true
}
