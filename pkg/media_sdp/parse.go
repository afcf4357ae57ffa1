package media_sdp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/offer_answer/pkg/bundle"
	"github.com/arzzra/offer_answer/pkg/encryption"
	"github.com/arzzra/offer_answer/pkg/offer_answer"
	"github.com/arzzra/offer_answer/pkg/payload"
)

// rtcpFeedback одна строка a=rtcp-fb до привязки к кодекам
type rtcpFeedback struct {
	format string
	value  string
}

// UnmarshalSessionDescription разбирает SDP текст
func UnmarshalSessionDescription(raw []byte) (*sdp.SessionDescription, error) {
	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(raw); err != nil {
		return nil, WrapSDPError(ErrorCodeSDPParsing, "", err, "не удалось разобрать SDP")
	}
	return desc, nil
}

// ParseSessionDescription переводит SDP в удаленное описание движка.
// Порядок m-line сохраняется; m-line неизвестного типа или с не-RTP
// профилем переносятся без кодеков, чтобы движок отклонил их на своей
// позиции.
func ParseSessionDescription(desc *sdp.SessionDescription) (*offer_answer.SessionDescription, error) {
	if desc == nil {
		return nil, NewSDPError(ErrorCodeSDPParsing, "SDP не может быть nil")
	}

	out := &offer_answer.SessionDescription{}
	sessionDir := offer_answer.SendRecv
	var sessionFingerprint, sessionSetup string

	for _, a := range desc.Attributes {
		key := strings.ToLower(a.Key)
		switch key {
		case "group":
			fields := strings.Fields(a.Value)
			if len(fields) > 0 && strings.EqualFold(fields[0], bundle.Semantics) {
				out.BundleGroups = append(out.BundleGroups, fields[1:])
			}
		case "rtcp-xr":
			out.RTCPXR = true
		case "sendrecv", "sendonly", "recvonly", "inactive":
			sessionDir, _ = offer_answer.ParseDirection(key)
		case "fingerprint":
			sessionFingerprint = a.Value
		case "setup":
			sessionSetup = a.Value
		default:
			out.Attributes = append(out.Attributes, offer_answer.Attribute{Name: a.Key, Value: a.Value})
		}
	}

	for i, md := range desc.MediaDescriptions {
		rs, err := parseMedia(desc, md, sessionDir, sessionFingerprint, sessionSetup)
		if err != nil {
			if sdpErr, ok := err.(*SDPError); ok {
				sdpErr.Message = fmt.Sprintf("m-line %d: %s", i, sdpErr.Message)
				return nil, sdpErr
			}
			return nil, WrapSDPError(ErrorCodeSDPParsing, "", err, "m-line %d", i)
		}
		out.Streams = append(out.Streams, rs)
	}
	return out, nil
}

func parseMedia(desc *sdp.SessionDescription, md *sdp.MediaDescription, dir offer_answer.Direction, fp, setup string) (*offer_answer.RemoteStream, error) {
	t := payload.ParseStreamType(md.MediaName.Media)
	rs := &offer_answer.RemoteStream{
		Type:      t,
		Profile:   encryption.Profile(strings.Join(md.MediaName.Protos, "/")),
		Formats:   append([]string(nil), md.MediaName.Formats...),
		Direction: dir,
	}

	addr := connectionAddress(desc.ConnectionInformation, md.ConnectionInformation)
	rs.Transport.RTPAddr = addr
	rs.Transport.RTPPort = md.MediaName.Port.Value
	if rs.Transport.RTPPort > 0 {
		rs.Transport.RTCPAddr = addr
		rs.Transport.RTCPPort = rs.Transport.RTPPort + 1
	}
	for _, b := range md.Bandwidth {
		if strings.EqualFold(b.Type, "AS") {
			rs.Bandwidth = int(b.Bandwidth)
		}
	}

	rtpmap := make(map[string]string)
	fmtp := make(map[string]string)
	var feedback []rtcpFeedback

	for _, a := range md.Attributes {
		key := strings.ToLower(a.Key)
		switch key {
		case "rtpmap":
			n, rest := splitPayloadAttribute(a.Value)
			rtpmap[n] = rest
		case "fmtp":
			n, rest := splitPayloadAttribute(a.Value)
			fmtp[n] = rest
		case "rtcp-fb":
			n, rest := splitPayloadAttribute(a.Value)
			feedback = append(feedback, rtcpFeedback{format: n, value: rest})
		case "mid":
			rs.Mid = strings.TrimSpace(a.Value)
		case "bundle-only":
			rs.BundleOnly = true
		case "rtcp-mux":
			rs.RTCPMux = true
		case "crypto":
			suite, err := parseCrypto(a.Value)
			if err != nil {
				return nil, err
			}
			rs.Crypto = append(rs.Crypto, suite)
		case "fingerprint":
			fp = a.Value
		case "setup":
			setup = a.Value
		case "zrtp-hash":
			rs.ZRTPHash = a.Value
		case "rtcp-xr":
			rs.RTCPXR = true
		case "ptime":
			rs.Ptime, _ = strconv.Atoi(strings.TrimSpace(a.Value))
		case "maxptime":
			rs.MaxPtime, _ = strconv.Atoi(strings.TrimSpace(a.Value))
		case "sendrecv", "sendonly", "recvonly", "inactive":
			rs.Direction, _ = offer_answer.ParseDirection(key)
		case "rtcp":
			rtcpAddr, rtcpPort, err := parseRTCPAttribute(a.Value, addr)
			if err != nil {
				return nil, WrapSDPError(ErrorCodeSDPParsing, "", err, "a=rtcp")
			}
			rs.Transport.RTCPAddr = rtcpAddr
			rs.Transport.RTCPPort = rtcpPort
		default:
			rs.Attributes = append(rs.Attributes, offer_answer.Attribute{Name: a.Key, Value: a.Value})
		}
	}

	if fp != "" {
		if err := ValidateFingerprint(fp); err != nil {
			return nil, WrapSDPError(ErrorCodeInvalidFingerprint, "", err, "некорректный a=fingerprint")
		}
		role := encryption.ParseSetupRole(setup)
		if role == encryption.RoleInvalid {
			role = encryption.RoleUnset
		}
		rs.DTLS = &encryption.DTLSParams{Role: role, Fingerprint: fp}
	}

	if rs.Profile.IsRTP() {
		rs.Payloads = parsePayloads(t, md.MediaName.Formats, rtpmap, fmtp)
		applyFeedback(rs, feedback)
	}
	return rs, nil
}

// parsePayloads строит записи кодеков в порядке форматов m-line.
// Динамические номера без rtpmap пропускаются.
func parsePayloads(t payload.StreamType, formats []string, rtpmap, fmtp map[string]string) []*payload.PayloadType {
	var list []*payload.PayloadType
	for _, f := range formats {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || n > 127 {
			continue
		}
		pt := &payload.PayloadType{Number: n, Enabled: true}
		if enc, ok := rtpmap[f]; ok {
			mime, rate, channels, ok := parseRtpmap(enc)
			if !ok {
				continue
			}
			pt.MimeType, pt.ClockRate, pt.Channels = mime, rate, channels
		} else if id, ok := staticPayloads[n]; ok {
			pt.MimeType, pt.ClockRate, pt.Channels = id.MimeType, id.ClockRate, id.Channels
		} else {
			continue
		}
		if pt.Channels == 0 && t == payload.StreamAudio {
			pt.Channels = 1
		}
		pt.SendFmtp = fmtp[f]
		list = append(list, pt)
	}
	return list
}

// applyFeedback переносит a=rtcp-fb в флаги кодеков и потока
func applyFeedback(rs *offer_answer.RemoteStream, feedback []rtcpFeedback) {
	for _, fb := range feedback {
		fields := strings.Fields(strings.ToLower(fb.value))
		if len(fields) == 0 {
			continue
		}
		typ, param := fields[0], ""
		if len(fields) > 1 {
			param = fields[1]
		}
		switch {
		case typ == "nack" && param == "":
			rs.RTCPFeedback.GenericNACK = true
		case typ == "ccm" && param == "tmmbr":
			rs.RTCPFeedback.TMMBR = true
		}

		for _, pt := range rs.Payloads {
			if fb.format != "*" && fb.format != strconv.Itoa(pt.Number) {
				continue
			}
			switch typ {
			case "nack":
				pt.SetFlag(payload.FlagRTCPFeedback)
				switch param {
				case "":
					pt.AVPF.Features |= payload.AVPFFeatureNACK
				case "pli":
					pt.AVPF.Features |= payload.AVPFFeaturePLI
				case "sli":
					pt.AVPF.Features |= payload.AVPFFeatureSLI
				case "rpsi":
					pt.AVPF.Features |= payload.AVPFFeatureRPSI
				}
			case "ccm":
				if param == "fir" {
					pt.SetFlag(payload.FlagRTCPFeedback)
					pt.AVPF.Features |= payload.AVPFFeatureFIR
				}
			case "trr-int":
				if v, err := strconv.ParseUint(param, 10, 16); err == nil {
					pt.AVPF.TRRInterval = uint16(v)
				}
			}
		}
	}
}

// parseCrypto разбирает a=crypto (RFC 4568): "tag suite key-params [session-params]"
func parseCrypto(value string) (encryption.CryptoSuite, error) {
	fields := strings.Fields(value)
	if len(fields) < 3 {
		return encryption.CryptoSuite{}, NewSDPError(ErrorCodeSDPParsing, "некорректный a=crypto: %q", value)
	}
	tag, err := strconv.Atoi(fields[0])
	if err != nil || tag < 0 {
		return encryption.CryptoSuite{}, NewSDPError(ErrorCodeSDPParsing, "некорректный тег a=crypto: %q", fields[0])
	}
	return encryption.CryptoSuite{
		Tag:       tag,
		Suite:     fields[1],
		KeyParams: strings.Join(fields[2:], " "),
	}, nil
}
