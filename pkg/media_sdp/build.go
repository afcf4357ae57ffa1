package media_sdp

import (
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/offer_answer/pkg/bundle"
	"github.com/arzzra/offer_answer/pkg/encryption"
	"github.com/arzzra/offer_answer/pkg/offer_answer"
	"github.com/arzzra/offer_answer/pkg/payload"
)

// Origin параметры строк o= и s=
type Origin struct {
	Username       string
	SessionID      uint64
	SessionVersion uint64
	Address        string
	SessionName    string
}

// BuildSessionDescription формирует SDP из результата согласования.
// Отклоненные потоки выводятся с нулевым портом на своей позиции.
func BuildSessionDescription(res *offer_answer.Result, origin Origin) (*sdp.SessionDescription, error) {
	if res == nil || len(res.Streams) == 0 {
		return nil, NewSDPError(ErrorCodeSDPGeneration, "нет потоков для SDP")
	}

	addr := origin.Address
	if addr == "" {
		for _, s := range res.Streams {
			if s.Transport.RTPAddr != "" {
				addr = s.Transport.RTPAddr
				break
			}
		}
	}
	if addr == "" {
		addr = "0.0.0.0"
	}

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       orDash(origin.Username),
			SessionID:      origin.SessionID,
			SessionVersion: origin.SessionVersion,
			NetworkType:    "IN",
			AddressType:    addressType(addr),
			UnicastAddress: addr,
		},
		SessionName:           sdp.SessionName(orDash(origin.SessionName)),
		ConnectionInformation: newConnectionInformation(addr),
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	for _, g := range res.BundleGroups {
		desc.Attributes = append(desc.Attributes,
			sdp.NewAttribute("group", bundle.Semantics+" "+strings.Join(g.Mids, " ")))
	}
	if res.RTCPXR {
		desc.Attributes = append(desc.Attributes, sdp.NewPropertyAttribute("rtcp-xr"))
	}
	desc.Attributes = append(desc.Attributes, toSDPAttributes(res.Attributes)...)

	for _, s := range res.Streams {
		desc.MediaDescriptions = append(desc.MediaDescriptions, buildMedia(res, s, addr))
	}
	return desc, nil
}

// MarshalResult формирует SDP и сериализует его в текст
func MarshalResult(res *offer_answer.Result, origin Origin) ([]byte, error) {
	desc, err := BuildSessionDescription(res, origin)
	if err != nil {
		return nil, err
	}
	raw, err := desc.Marshal()
	if err != nil {
		return nil, WrapSDPError(ErrorCodeSDPGeneration, res.SessionID, err, "не удалось сериализовать SDP")
	}
	return raw, nil
}

func buildMedia(res *offer_answer.Result, s *offer_answer.NegotiatedStream, sessionAddr string) *sdp.MediaDescription {
	profile := s.Profile
	if profile == "" {
		profile = encryption.ProfileAVP
	}
	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  string(s.Type),
			Port:   sdp.RangedPort{Value: s.Transport.RTPPort},
			Protos: strings.Split(string(profile), "/"),
		},
	}

	if s.Rejected() {
		md.MediaName.Port.Value = 0
		md.MediaName.Formats = rejectedFormats(s)
		if s.Mid != "" {
			md.WithValueAttribute("mid", s.Mid)
		}
		return md
	}

	if s.Transport.RTPAddr != "" && s.Transport.RTPAddr != sessionAddr {
		md.ConnectionInformation = newConnectionInformation(s.Transport.RTPAddr)
	}
	if s.Bandwidth > 0 {
		md.Bandwidth = append(md.Bandwidth, sdp.Bandwidth{Type: "AS", Bandwidth: uint64(s.Bandwidth)})
	}

	for _, pt := range s.Payloads {
		md.MediaName.Formats = append(md.MediaName.Formats, strconv.Itoa(pt.Number))
	}
	if len(md.MediaName.Formats) == 0 {
		md.MediaName.Formats = rejectedFormats(s)
	}

	if s.Mid != "" {
		md.WithValueAttribute("mid", s.Mid)
	}
	if s.BundleOnly && res.Mode == offer_answer.ModeOffer {
		md.WithPropertyAttribute("bundle-only")
	}

	for _, pt := range s.Payloads {
		md.WithValueAttribute("rtpmap", formatRtpmap(pt))
		if pt.RecvFmtp != "" {
			md.WithValueAttribute("fmtp", strconv.Itoa(pt.Number)+" "+pt.RecvFmtp)
		}
	}
	for _, fb := range feedbackAttributes(s) {
		md.WithValueAttribute("rtcp-fb", fb)
	}

	if s.Ptime > 0 {
		md.WithValueAttribute("ptime", strconv.Itoa(s.Ptime))
	}
	if s.MaxPtime > 0 {
		md.WithValueAttribute("maxptime", strconv.Itoa(s.MaxPtime))
	}
	md.WithPropertyAttribute(s.Direction.String())

	if s.RTCPMux {
		md.WithPropertyAttribute("rtcp-mux")
	} else if v, ok := rtcpAttribute(s.Transport); ok {
		md.WithValueAttribute("rtcp", v)
	}

	for _, c := range s.Crypto {
		md.WithValueAttribute("crypto", strconv.Itoa(c.Tag)+" "+c.Suite+" "+c.KeyParams)
	}
	if s.Encryption == encryption.DtlsSrtp && s.DTLS != nil {
		md.WithValueAttribute("fingerprint", s.DTLS.Fingerprint)
		md.WithValueAttribute("setup", s.DTLS.Role.String())
	}
	if s.ZRTPHash != "" {
		md.WithValueAttribute("zrtp-hash", s.ZRTPHash)
	}
	if s.RTCPXR && !res.RTCPXR {
		md.WithPropertyAttribute("rtcp-xr")
	}
	md.Attributes = append(md.Attributes, toSDPAttributes(streamOnly(s.Attributes))...)
	return md
}

// rejectedFormats форматы для m-line без кодеков: m-line обязана содержать
// хотя бы один формат
func rejectedFormats(s *offer_answer.NegotiatedStream) []string {
	if len(s.Formats) > 0 {
		return append([]string(nil), s.Formats...)
	}
	return []string{"0"}
}

// feedbackAttributes значения a=rtcp-fb для потока
func feedbackAttributes(s *offer_answer.NegotiatedStream) []string {
	var out []string
	perCodecNACK := false
	if s.AVPF {
		for _, pt := range s.Payloads {
			if !pt.HasFlag(payload.FlagRTCPFeedback) {
				continue
			}
			n := strconv.Itoa(pt.Number)
			f := pt.AVPF.Features
			if f&payload.AVPFFeatureNACK != 0 {
				out = append(out, n+" nack")
				perCodecNACK = true
			}
			if f&payload.AVPFFeaturePLI != 0 {
				out = append(out, n+" nack pli")
			}
			if f&payload.AVPFFeatureSLI != 0 {
				out = append(out, n+" nack sli")
			}
			if f&payload.AVPFFeatureRPSI != 0 {
				out = append(out, n+" nack rpsi")
			}
			if f&payload.AVPFFeatureFIR != 0 {
				out = append(out, n+" ccm fir")
			}
			if pt.AVPF.TRRInterval > 0 {
				out = append(out, n+" trr-int "+strconv.Itoa(int(pt.AVPF.TRRInterval)))
			}
		}
	}
	if s.RTCPFeedback.GenericNACK && !perCodecNACK {
		out = append(out, "* nack")
	}
	if s.RTCPFeedback.TMMBR {
		out = append(out, "* ccm tmmbr")
	}
	return out
}

// streamOnly отбрасывает атрибуты, унаследованные с уровня сессии: они
// выводятся один раз в описании сессии
func streamOnly(attrs []offer_answer.Attribute) []offer_answer.Attribute {
	out := make([]offer_answer.Attribute, 0, len(attrs))
	for _, a := range attrs {
		if !a.Session {
			out = append(out, a)
		}
	}
	return out
}

func toSDPAttributes(attrs []offer_answer.Attribute) []sdp.Attribute {
	out := make([]sdp.Attribute, 0, len(attrs))
	for _, a := range attrs {
		if a.Value == "" {
			out = append(out, sdp.NewPropertyAttribute(a.Name))
			continue
		}
		out = append(out, sdp.NewAttribute(a.Name, a.Value))
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
