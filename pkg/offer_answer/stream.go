package offer_answer

import (
	"context"
	"log/slog"

	"github.com/looplab/fsm"

	"github.com/arzzra/offer_answer/pkg/encryption"
	"github.com/arzzra/offer_answer/pkg/payload"
)

// События машины состояний потока.
// proposed -> matched -> accepted, любой незавершенный -> rejected
const (
	eventMatch  = "match"
	eventAccept = "accept"
	eventReject = "reject"
)

// localStream локальная capability на конкретной позиции после раскрытия
// FEC потоков
type localStream struct {
	cap    *StreamCapability
	fecFor int
}

// streamEnv общий контекст согласования потоков одной сессии
type streamEnv struct {
	cfg       Config
	rec       *sessionRecord
	sessionID string
	logger    *slog.Logger
	// rtcp-xr на уровне сессии
	localXR  bool
	remoteXR bool
	// атрибуты уровня сессии, наследуемые каждым потоком
	sessionAttrs []Attribute
}

// streamNegotiator согласует одну m-line
type streamNegotiator struct {
	sm     *fsm.FSM
	out    *NegotiatedStream
	logger *slog.Logger
}

func newStreamNegotiator(env *streamEnv, ordinal int, t payload.StreamType) *streamNegotiator {
	n := &streamNegotiator{
		out: &NegotiatedStream{
			Type:    t,
			Ordinal: ordinal,
			State:   StateProposed,
			FECFor:  -1,
		},
		logger: env.logger.With(slog.Int("ordinal", ordinal), slog.String("type", string(t))),
	}
	n.sm = fsm.NewFSM(
		string(StateProposed),
		fsm.Events{
			{Name: eventMatch, Src: []string{string(StateProposed)}, Dst: string(StateMatched)},
			{Name: eventAccept, Src: []string{string(StateMatched)}, Dst: string(StateAccepted)},
			{Name: eventReject, Src: []string{string(StateProposed), string(StateMatched)}, Dst: string(StateRejected)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				n.out.State = StreamState(e.Dst)
			},
		},
	)
	return n
}

func (n *streamNegotiator) event(name string) {
	if err := n.sm.Event(context.Background(), name); err != nil {
		n.logger.Error("недопустимый переход состояния потока",
			slog.String("event", name),
			slog.String("state", n.sm.Current()),
			slog.String("error", err.Error()))
	}
}

func (n *streamNegotiator) match() {
	n.out.Formats = nil
	n.event(eventMatch)
}

// accept подтверждает поток после проверки позиции сессией
func (n *streamNegotiator) accept() {
	if n.sm.Can(eventAccept) {
		n.event(eventAccept)
	}
}

// reject отклоняет поток: нулевой порт, без кодеков и направления
func (n *streamNegotiator) reject(reason string) *NegotiatedStream {
	s := n.out
	s.RejectReason = reason
	s.Payloads = nil
	s.Direction = Inactive
	s.Transport = Transport{}
	s.Crypto = nil
	s.DTLS = nil
	s.RemoteFingerprint = ""
	s.ZRTPHash = ""
	s.RemoteZRTPHash = ""
	s.BundleTag = ""
	s.BundlePrimary = false
	s.BundleOnly = false
	s.RTCPMux = false
	s.Attributes = nil
	n.event(eventReject)
	n.logger.Info("поток отклонен", slog.String("reason", reason))
	return s
}

func (n *streamNegotiator) rejected() bool {
	return n.sm.Current() == string(StateRejected)
}

// remoteIntent выводит намерение удаленной стороны из профиля m-line и
// атрибутов. Профиль SAVP или UDP/TLS означает обязательное шифрование.
// Иначе из предложенных механизмов выбирается первый поддерживаемый
// локально.
func remoteIntent(rs *RemoteStream, local *StreamCapability) encryption.Intent {
	in := encryption.Intent{Suites: rs.Crypto}
	if rs.DTLS != nil {
		in.Fingerprint = rs.DTLS.Fingerprint
	}
	mode, avpf, ok := rs.Profile.Family()
	in.AVPF = avpf
	if ok && mode != encryption.None {
		in.Mode, in.Mandatory = mode, true
		return in
	}

	var offered []encryption.Mode
	if rs.DTLS != nil && rs.DTLS.Fingerprint != "" {
		offered = append(offered, encryption.DtlsSrtp)
	}
	if len(rs.Crypto) > 0 {
		offered = append(offered, encryption.SdesSrtp)
	}
	if rs.ZRTPHash != "" {
		offered = append(offered, encryption.ZrtpSrtp)
	}
	for _, m := range offered {
		if localSupports(local, m) {
			in.Mode = m
			return in
		}
	}
	if len(offered) > 0 {
		in.Mode = offered[0]
	}
	return in
}

// localIntent намерение локальной стороны с ее отпечатком DTLS
func localIntent(c *StreamCapability) encryption.Intent {
	in := c.Encryption
	in.Fingerprint = ""
	if c.DTLS.Valid() {
		in.Fingerprint = c.DTLS.Fingerprint
	}
	return in
}

func localSupports(local *StreamCapability, m encryption.Mode) bool {
	switch m {
	case encryption.DtlsSrtp:
		return local.DTLS.Valid()
	case encryption.SdesSrtp:
		return len(local.Encryption.Suites) > 0
	case encryption.ZrtpSrtp:
		return local.ZRTPHash != "" || local.Encryption.Mode == encryption.ZrtpSrtp
	}
	return true
}

// dropFeedback снимает флаги AVPF с кодеков, когда профиль без обратной связи
func dropFeedback(list []*payload.PayloadType) {
	for _, pt := range list {
		pt.UnsetFlag(payload.FlagRTCPFeedback)
	}
}

func cloneAttributes(attrs []Attribute) []Attribute {
	if len(attrs) == 0 {
		return nil
	}
	return append([]Attribute(nil), attrs...)
}

// streamAttributes атрибуты сессии, затем атрибуты потока. Одноименные
// атрибуты не объединяются.
func streamAttributes(env *streamEnv, c *StreamCapability) []Attribute {
	if len(env.sessionAttrs) == 0 && len(c.Attributes) == 0 {
		return nil
	}
	out := make([]Attribute, 0, len(env.sessionAttrs)+len(c.Attributes))
	for _, a := range env.sessionAttrs {
		a.Session = true
		out = append(out, a)
	}
	return append(out, c.Attributes...)
}

// offerStream формирует поток собственного предложения
func offerStream(env *streamEnv, ls localStream, ordinal int) *streamNegotiator {
	c := ls.cap
	n := newStreamNegotiator(env, ordinal, c.Type)
	s := n.out
	s.FECFor = ls.fecFor
	s.Payloads = payload.Offer(c.Payloads, env.rec.numberView(c.Type))
	s.Direction = c.Direction
	s.Encryption = c.Encryption.Mode
	s.AVPF = c.Encryption.AVPF
	s.Profile = encryption.ProfileFor(c.Encryption.Mode, c.Encryption.AVPF)
	if !s.AVPF {
		dropFeedback(s.Payloads)
	}

	if c.Encryption.Mode == encryption.SdesSrtp {
		s.Crypto = append([]encryption.CryptoSuite(nil), c.Encryption.Suites...)
	}
	if c.DTLS.Valid() {
		s.DTLS = &encryption.DTLSParams{Role: encryption.RoleUnset, Fingerprint: c.DTLS.Fingerprint}
	}
	s.ZRTPHash = c.ZRTPHash

	s.RTCPMux = c.RTCPMux
	s.RTCPFeedback = c.RTCPFeedback
	s.RTCPXR = c.RTCPXR || env.localXR
	s.Ptime = c.Ptime
	s.MaxPtime = c.MaxPtime
	s.Transport = c.Transport
	s.Multicast = c.Transport.IsMulticast()
	s.Attributes = streamAttributes(env, c)
	n.match()
	return n
}

// answerStream согласует удаленный offer на одной позиции с локальной
// capability
func answerStream(env *streamEnv, ls localStream, rs *RemoteStream, ordinal int) *streamNegotiator {
	c := ls.cap
	n := newStreamNegotiator(env, ordinal, rs.Type)
	s := n.out
	s.FECFor = ls.fecFor
	s.Mid = rs.Mid
	s.Profile = rs.Profile
	s.Formats = rs.Formats

	if !rs.Enabled() {
		n.reject("удаленная сторона отключила поток")
		return n
	}

	res, err := encryption.Resolve(localIntent(c), remoteIntent(rs, c))
	if err != nil {
		n.reject(err.Error())
		return n
	}

	multicast := rs.Transport.IsMulticast()
	if multicast && res.Mode != encryption.None {
		n.reject("SRTP не поддерживается для multicast")
		return n
	}

	list := payload.Match(c.Payloads, rs.Payloads, payload.MatchOptions{
		OneMatchingCodec: env.cfg.OneMatchingCodec,
		History:          env.rec.numberView(c.Type),
		Logger:           n.logger,
	})
	if len(list) == 0 {
		n.reject("нет общих кодеков")
		return n
	}
	if payload.OnlyTelephoneEvent(list) {
		n.reject("общим оказался только telephone-event")
		return n
	}

	s.Payloads = list
	s.Encryption = res.Mode
	s.AVPF = res.AVPF
	s.Profile = res.Profile
	if !s.AVPF {
		dropFeedback(s.Payloads)
	}

	switch res.Mode {
	case encryption.SdesSrtp:
		s.Crypto = res.Suites[:1]
		s.CryptoLocalTag = res.Suites[0].Tag
	case encryption.DtlsSrtp:
		s.DTLS = &encryption.DTLSParams{Role: encryption.AnswerRole(rs.DTLS.Role), Fingerprint: c.DTLS.Fingerprint}
		s.RemoteFingerprint = rs.DTLS.Fingerprint
	}
	if rs.ZRTPHash != "" && c.ZRTPHash != "" {
		s.ZRTPHash = c.ZRTPHash
		s.RemoteZRTPHash = rs.ZRTPHash
	}

	s.RTCPMux = rs.RTCPMux && c.RTCPMux
	s.RTCPFeedback = c.RTCPFeedback.and(rs.RTCPFeedback)
	s.RTCPXR = (c.RTCPXR || env.localXR) && (rs.RTCPXR || env.remoteXR)
	s.Attributes = streamAttributes(env, c)

	if multicast {
		// RFC 3264 6.2: ответ на multicast повторяет адрес, порт и направление
		s.Multicast = true
		s.Direction = rs.Direction
		s.Transport = Transport{RTPAddr: rs.Transport.RTPAddr, RTPPort: rs.Transport.RTPPort}
		s.Ptime = rs.Ptime
		s.MaxPtime = rs.MaxPtime
	} else {
		s.Direction = Intersect(c.Direction, rs.Direction)
		s.Transport = c.Transport
		s.Ptime = c.Ptime
		s.MaxPtime = c.MaxPtime
	}

	n.match()
	return n
}

// readAnswerStream обрабатывает ответ на позицию нашего предложения
func readAnswerStream(env *streamEnv, ls localStream, rs *RemoteStream, ordinal int) *streamNegotiator {
	c := ls.cap
	n := newStreamNegotiator(env, ordinal, c.Type)
	s := n.out
	s.FECFor = ls.fecFor
	s.Mid = rs.Mid
	s.Profile = encryption.ProfileFor(c.Encryption.Mode, c.Encryption.AVPF)
	s.Formats = rs.Formats

	if !rs.Enabled() {
		n.reject("удаленная сторона отклонила поток")
		return n
	}

	res, err := encryption.Resolve(localIntent(c), remoteIntent(rs, c))
	if err != nil {
		n.reject(err.Error())
		return n
	}

	view := env.rec.numberView(c.Type)
	offered := payload.Offer(c.Payloads, view)
	list := payload.Match(offered, rs.Payloads, payload.MatchOptions{
		ReadingAnswer:     true,
		KeepCompatibility: !env.cfg.DropCompatibilityPayloads,
		History:           view,
		Logger:            n.logger,
	})
	if len(list) == 0 {
		n.reject("в ответе нет общих кодеков")
		return n
	}
	if payload.OnlyTelephoneEvent(list) {
		n.reject("в ответе только telephone-event")
		return n
	}
	s.Payloads = list

	s.Encryption = res.Mode
	s.AVPF = res.AVPF
	s.Profile = res.Profile
	if rs.Profile.IsRTP() && encryption.Compatible(res.Profile, rs.Profile) && res.Profile != rs.Profile {
		if res.AVPF && !rs.Profile.HasAVPF() {
			n.logger.Info("ответ без AVPF, обратная связь отключена", slog.String("profile", string(rs.Profile)))
		}
		s.Profile = rs.Profile
		s.AVPF = rs.Profile.HasAVPF()
	}
	if !s.AVPF {
		dropFeedback(s.Payloads)
	}

	switch res.Mode {
	case encryption.SdesSrtp:
		chosen, localTag, ok := encryption.AnsweredSuite(c.Encryption.Suites, rs.Crypto)
		if !ok {
			n.reject("ответ выбрал непредложенный набор SDES")
			return n
		}
		s.Crypto = []encryption.CryptoSuite{chosen}
		s.CryptoLocalTag = localTag
	case encryption.DtlsSrtp:
		s.DTLS = &encryption.DTLSParams{Role: encryption.OffererRole(rs.DTLS.Role), Fingerprint: c.DTLS.Fingerprint}
		s.RemoteFingerprint = rs.DTLS.Fingerprint
	}
	if rs.ZRTPHash != "" && c.ZRTPHash != "" {
		s.ZRTPHash = c.ZRTPHash
		s.RemoteZRTPHash = rs.ZRTPHash
	}

	if c.Transport.IsMulticast() {
		if rs.Transport.RTPAddr != c.Transport.RTPAddr || rs.Transport.RTPPort != c.Transport.RTPPort || rs.Direction != c.Direction {
			n.reject("ответ на multicast не повторяет адрес, порт или направление")
			return n
		}
		s.Multicast = true
		s.Direction = c.Direction
	} else {
		s.Direction = Intersect(c.Direction, rs.Direction)
	}

	s.RTCPMux = rs.RTCPMux && c.RTCPMux
	s.RTCPFeedback = c.RTCPFeedback.and(rs.RTCPFeedback)
	s.RTCPXR = (c.RTCPXR || env.localXR) && (rs.RTCPXR || env.remoteXR)
	s.Ptime = rs.Ptime
	s.MaxPtime = rs.MaxPtime
	s.Bandwidth = rs.Bandwidth
	s.Transport = rs.Transport
	s.Attributes = streamAttributes(env, c)

	n.match()
	return n
}

// rejectedStream поток, который не может быть согласован на своей позиции
func rejectedStream(env *streamEnv, rs *RemoteStream, ordinal int, reason string) *streamNegotiator {
	n := newStreamNegotiator(env, ordinal, rs.Type)
	n.out.Mid = rs.Mid
	n.out.Profile = rs.Profile
	n.out.Formats = rs.Formats
	n.reject(reason)
	return n
}
