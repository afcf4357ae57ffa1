package offer_answer

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/arzzra/offer_answer/pkg/bundle"
	"github.com/arzzra/offer_answer/pkg/encryption"
	"github.com/arzzra/offer_answer/pkg/payload"
)

// transportAttributes атрибуты транспорта, которые у bundle-only потока
// переносятся в основной поток группы
var transportAttributes = map[string]bool{
	"candidate":         true,
	"end-of-candidates": true,
	"ice-ufrag":         true,
	"ice-pwd":           true,
	"ice-options":       true,
	"remote-candidates": true,
	"rtcp":              true,
}

// Engine движок согласования offer/answer. Не хранит состояния сессий и
// может использоваться параллельно; состояние между вызовами одной сессии
// хранится в History.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
}

// NewEngine создает движок; незаданные поля cfg получают значения по умолчанию
func NewEngine(cfg Config) (*Engine, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		logger:  cfg.Logger.With(slog.String("component", "offer_answer")),
		metrics: NewMetrics(cfg.Registerer, cfg.MetricsNamespace),
	}, nil
}

// NewHistory создает историю согласований на HistoryCapacity сессий
func (e *Engine) NewHistory() (*History, error) {
	return NewHistory(e.cfg.HistoryCapacity)
}

// Negotiate выполняет один шаг согласования.
//
// ModeOffer без remote формирует собственное предложение. ModeOffer с remote
// обрабатывает ответ на ранее сформированное предложение. ModeAnswer
// формирует ответ на удаленный offer.
//
// Количество и порядок потоков результата всегда совпадают с предложением.
// Результат не возвращается только при ErrSessionMalformed и
// ErrInvalidCapability. Если отклонены все потоки, результат возвращается
// вместе с ErrAllStreamsRejected. History обновляется один раз и только
// при наличии согласованных потоков; history может быть nil.
func (e *Engine) Negotiate(mode Mode, local *SessionCapability, remote *SessionDescription, history *History) (*Result, error) {
	if err := validateCapability(local); err != nil {
		e.metrics.failed(mode, "invalid_capability")
		return nil, err
	}

	logger := e.logger.With(slog.String("session_id", local.SessionID), slog.String("mode", mode.String()))
	env := &streamEnv{
		cfg:       e.cfg,
		rec:       history.record(local.SessionID),
		sessionID: local.SessionID,
		logger:    logger,
		localXR:   local.RTCPXR,

		sessionAttrs: local.Attributes,
	}

	var (
		res *Result
		err error
	)
	switch {
	case mode == ModeOffer && remote == nil:
		res, err = e.generateOffer(env, local)
	case mode == ModeOffer:
		res, err = e.readAnswer(env, local, remote)
	case mode == ModeAnswer && remote == nil:
		err = newError(ErrorCodeSessionMalformed, local.SessionID, "для ответа требуется удаленное предложение")
	case mode == ModeAnswer:
		res, err = e.answerOffer(env, local, remote)
	default:
		err = newError(ErrorCodeInvalidCapability, local.SessionID, "неизвестный режим согласования %d", mode)
	}
	if err != nil {
		logger.Warn("согласование не выполнено", slog.String("error", err.Error()))
		e.metrics.failed(mode, "error")
		return nil, err
	}

	accepted := res.AcceptedCount()
	if accepted == 0 {
		logger.Warn("все потоки отклонены", slog.Int("streams", len(res.Streams)))
		e.metrics.observe(res, "all_rejected")
		return res, newError(ErrorCodeAllStreamsRejected, local.SessionID, "отклонены все %d потоков", len(res.Streams))
	}

	history.commit(res)
	e.metrics.setHistorySize(history.Len())
	e.metrics.observe(res, "ok")
	logger.Info("согласование завершено",
		slog.Int("streams", len(res.Streams)),
		slog.Int("accepted", accepted),
		slog.Bool("bundle", len(res.BundleGroups) > 0))
	return res, nil
}

func validateCapability(local *SessionCapability) error {
	if local == nil {
		return newError(ErrorCodeInvalidCapability, "", "локальные возможности не заданы")
	}
	if len(local.Streams) == 0 {
		return newError(ErrorCodeInvalidCapability, local.SessionID, "нет ни одного потока")
	}
	mids := make(map[string]bool)
	for i, c := range local.Streams {
		if c == nil {
			return newStreamError(ErrorCodeInvalidCapability, local.SessionID, i, "поток не задан")
		}
		if !c.Type.IsKnown() {
			return newStreamError(ErrorCodeInvalidCapability, local.SessionID, i, "неизвестный тип потока %q", c.Type)
		}
		switch c.Encryption.Mode {
		case encryption.SdesSrtp:
			if len(c.Encryption.Suites) == 0 {
				return newStreamError(ErrorCodeInvalidCapability, local.SessionID, i, "SDES без наборов a=crypto")
			}
		case encryption.DtlsSrtp:
			if !c.DTLS.Valid() {
				return newStreamError(ErrorCodeInvalidCapability, local.SessionID, i, "DTLS без роли или отпечатка")
			}
		}
		if id, dup := duplicateIdentity(c.Payloads); dup {
			return newStreamError(ErrorCodeInvalidCapability, local.SessionID, i, "кодек %s указан дважды", id)
		}
		if c.FEC != nil && len(c.FEC.Payloads) == 0 {
			return newStreamError(ErrorCodeInvalidCapability, local.SessionID, i, "FEC поток без кодеков")
		}
		if c.Mid != "" {
			if mids[c.Mid] {
				return newStreamError(ErrorCodeInvalidCapability, local.SessionID, i, "повторяющийся mid %q", c.Mid)
			}
			mids[c.Mid] = true
		}
	}
	return nil
}

func duplicateIdentity(list []*payload.PayloadType) (payload.Identity, bool) {
	seen := make(map[payload.Identity]bool, len(list))
	for _, pt := range list {
		if pt == nil {
			continue
		}
		id := pt.Identity()
		if seen[id] {
			return id, true
		}
		seen[id] = true
	}
	return payload.Identity{}, false
}

// expand раскрывает FEC запросы в отдельные потоки сразу после защищаемого
func expand(local *SessionCapability) []localStream {
	out := make([]localStream, 0, len(local.Streams))
	for _, c := range local.Streams {
		out = append(out, localStream{cap: c, fecFor: -1})
		if c.FEC == nil {
			continue
		}
		parent := len(out) - 1
		out = append(out, localStream{
			cap: &StreamCapability{
				Type:           c.Type,
				Payloads:       c.FEC.Payloads,
				Direction:      c.Direction,
				Encryption:     c.Encryption,
				DTLS:           c.DTLS,
				ZRTPHash:       c.ZRTPHash,
				BundleEligible: c.FEC.AllowBundle,
				RTCPMux:        c.RTCPMux,
				Transport:      c.FEC.Transport,
			},
			fecFor: parent,
		})
	}
	return out
}

// offerMids назначает mid потокам предложения: явный, затем из истории,
// затем порядковый номер, если предлагается bundle
func offerMids(env *streamEnv, locals []localStream, withBundle bool) []string {
	used := make(map[string]bool)
	for _, ls := range locals {
		if ls.cap.Mid != "" {
			used[ls.cap.Mid] = true
		}
	}
	mids := make([]string, len(locals))
	for i, ls := range locals {
		if ls.cap.Mid != "" {
			mids[i] = ls.cap.Mid
			continue
		}
		if mid, ok := env.rec.mids[i]; ok && !used[mid] {
			mids[i] = mid
			used[mid] = true
			continue
		}
		if !withBundle {
			continue
		}
		mid := strconv.Itoa(i)
		for used[mid] {
			mid += "_"
		}
		mids[i] = mid
		used[mid] = true
	}
	return mids
}

func (e *Engine) generateOffer(env *streamEnv, local *SessionCapability) (*Result, error) {
	locals := expand(local)
	for i, ls := range locals {
		if len(payload.Prepare(ls.cap.Payloads)) == 0 {
			return nil, newStreamError(ErrorCodeInvalidCapability, local.SessionID, i, "нет включенных кодеков")
		}
	}

	mids := offerMids(env, locals, local.BundleEnabled)
	negs := make([]*streamNegotiator, len(locals))
	cands := make([]bundle.Candidate, len(locals))
	types := make([]payload.StreamType, len(locals))
	for i, ls := range locals {
		negs[i] = offerStream(env, ls, i)
		negs[i].out.Mid = mids[i]
		cands[i] = bundle.Candidate{
			Ordinal:  i,
			Mid:      mids[i],
			Eligible: ls.cap.BundleEligible,
			PrevTag:  env.rec.bundleTags[i],
		}
		types[i] = ls.cap.Type
	}

	plan := bundle.Propose(cands, local.BundleEnabled)
	applyBundle(plan, negs, false)

	res := newResult(local, ModeOffer, plan)
	if err := confirm(res, negs, types); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) readAnswer(env *streamEnv, local *SessionCapability, remote *SessionDescription) (*Result, error) {
	locals := expand(local)
	if err := validateRemote(local.SessionID, remote); err != nil {
		return nil, err
	}
	if len(remote.Streams) > len(locals) {
		return nil, newError(ErrorCodeSessionMalformed, local.SessionID,
			"в ответе %d m-line, в предложении %d", len(remote.Streams), len(locals))
	}
	env.remoteXR = remote.RTCPXR
	var grouped map[string]bool
	if local.BundleEnabled {
		grouped = groupedMids(remote.BundleGroups)
	}

	mids := offerMids(env, locals, local.BundleEnabled)
	negs := make([]*streamNegotiator, len(locals))
	types := make([]payload.StreamType, len(locals))
	for i, ls := range locals {
		types[i] = ls.cap.Type
		if i >= len(remote.Streams) {
			n := newStreamNegotiator(env, i, ls.cap.Type)
			n.out.Mid = mids[i]
			n.out.Profile = encryption.ProfileFor(ls.cap.Encryption.Mode, ls.cap.Encryption.AVPF)
			n.reject("в ответе нет m-line на этой позиции")
			negs[i] = n
			continue
		}
		rs := bundledStream(remote.Streams[i], grouped)
		if rs.Type != ls.cap.Type {
			n := rejectedStream(env, rs, i, "тип m-line в ответе не совпадает с предложением")
			n.out.Type = ls.cap.Type
			negs[i] = n
			continue
		}
		negs[i] = readAnswerStream(env, ls, rs, i)
		if negs[i].out.Mid == "" {
			negs[i].out.Mid = mids[i]
		}
	}

	plan := &bundle.Plan{}
	if len(remote.BundleGroups) > 0 {
		if local.BundleEnabled {
			cands := make([]bundle.Candidate, len(locals))
			for i, ls := range locals {
				cands[i] = bundle.Candidate{
					Ordinal:  i,
					Mid:      negs[i].out.Mid,
					Eligible: ls.cap.BundleEligible && !negs[i].rejected(),
				}
			}
			plan = bundle.Accept(cands, remote.BundleGroups, true)
		} else {
			env.logger.Warn("ответ содержит bundle, который не предлагался")
		}
	}
	applyBundle(plan, negs, false)

	res := newResult(local, ModeOffer, plan)
	res.RTCPXR = local.RTCPXR && remote.RTCPXR
	if err := confirm(res, negs, types); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) answerOffer(env *streamEnv, local *SessionCapability, remote *SessionDescription) (*Result, error) {
	if err := validateRemote(local.SessionID, remote); err != nil {
		return nil, err
	}
	env.remoteXR = remote.RTCPXR
	var grouped map[string]bool
	if local.AcceptBundles {
		grouped = groupedMids(remote.BundleGroups)
	}

	locals := expand(local)
	byType := make(map[payload.StreamType][]int)
	for i, ls := range locals {
		byType[ls.cap.Type] = append(byType[ls.cap.Type], i)
	}
	used := make(map[payload.StreamType]int)
	// позиция в ответе для каждой использованной локальной capability
	ordinalOf := make(map[int]int)
	pairedLocal := make([]int, len(remote.Streams))

	negs := make([]*streamNegotiator, len(remote.Streams))
	types := make([]payload.StreamType, len(remote.Streams))
	for i, rs := range remote.Streams {
		rs = bundledStream(rs, grouped)
		types[i] = rs.Type
		pairedLocal[i] = -1
		if !rs.Type.IsKnown() {
			negs[i] = rejectedStream(env, rs, i, "неизвестный тип потока")
			continue
		}
		if rs.BundleOnly && rs.Transport.RTPPort == 0 && !local.AcceptBundles {
			negs[i] = rejectedStream(env, rs, i, "bundle-only поток при отключенном bundle")
			continue
		}
		k := used[rs.Type]
		candidates := byType[rs.Type]
		if k >= len(candidates) {
			negs[i] = rejectedStream(env, rs, i, "нет локальной capability для потока")
			continue
		}
		used[rs.Type] = k + 1
		li := candidates[k]
		ordinalOf[li] = i
		pairedLocal[i] = li
		negs[i] = answerStream(env, locals[li], rs, i)
	}

	// FEC поток ссылается на позицию защищаемого потока в ответе
	for _, n := range negs {
		if n.out.FECFor < 0 {
			continue
		}
		parent, ok := ordinalOf[n.out.FECFor]
		if !ok {
			parent = -1
		}
		n.out.FECFor = parent
	}

	cands := make([]bundle.Candidate, len(remote.Streams))
	for i, rs := range remote.Streams {
		eligible := pairedLocal[i] >= 0 && locals[pairedLocal[i]].cap.BundleEligible && !negs[i].rejected()
		cands[i] = bundle.Candidate{Ordinal: i, Mid: rs.Mid, Eligible: eligible}
	}
	plan := bundle.Accept(cands, remote.BundleGroups, local.AcceptBundles)
	applyBundle(plan, negs, true)

	res := newResult(local, ModeAnswer, plan)
	res.RTCPXR = local.RTCPXR && remote.RTCPXR
	if err := confirm(res, negs, types); err != nil {
		return nil, err
	}
	return res, nil
}

func validateRemote(sessionID string, remote *SessionDescription) error {
	if len(remote.Streams) == 0 {
		return newError(ErrorCodeSessionMalformed, sessionID, "удаленное описание не содержит m-line")
	}
	for i, rs := range remote.Streams {
		if rs == nil {
			return newStreamError(ErrorCodeSessionMalformed, sessionID, i, "m-line не задана")
		}
		if rs.Type == "" {
			return newStreamError(ErrorCodeSessionMalformed, sessionID, i, "m-line без типа медиа")
		}
	}
	return nil
}

func groupedMids(groups [][]string) map[string]bool {
	out := make(map[string]bool)
	for _, g := range groups {
		for _, mid := range g {
			out[mid] = true
		}
	}
	return out
}

// bundledStream помечает как bundle-only поток с нулевым портом, входящий
// в удаленную группу: такой поток использует транспорт основного
func bundledStream(rs *RemoteStream, grouped map[string]bool) *RemoteStream {
	if rs.Transport.RTPPort != 0 || rs.BundleOnly || rs.Mid == "" || !grouped[rs.Mid] {
		return rs
	}
	cp := *rs
	cp.BundleOnly = true
	return &cp
}

// applyBundle переносит роли группировки в потоки. answering: неосновные
// потоки ответа получают нулевой порт; при чтении ответа они используют
// транспорт основного потока. В обоих случаях собственного RTCP адреса нет.
func applyBundle(plan *bundle.Plan, negs []*streamNegotiator, answering bool) {
	primaryOf := make(map[string]int, len(plan.Groups))
	for _, g := range plan.Groups {
		primaryOf[g.Tag] = g.Primary
	}
	for _, a := range plan.Assignments() {
		s := negs[a.Ordinal].out
		s.Mid = a.Mid
		s.BundleTag = a.Tag
		s.BundlePrimary = a.Primary
		s.RTCPMux = true
		if !a.BundleOnly {
			continue
		}
		primary := negs[primaryOf[a.Tag]].out
		s.BundleOnly = true
		if answering {
			s.Transport = Transport{}
		} else {
			s.Transport = Transport{RTPAddr: primary.Transport.RTPAddr, RTPPort: primary.Transport.RTPPort}
		}
		moveTransportAttributes(s, primary)
	}
}

func moveTransportAttributes(from, to *NegotiatedStream) {
	kept := from.Attributes[:0]
	for _, a := range from.Attributes {
		if !transportAttributes[strings.ToLower(a.Name)] {
			kept = append(kept, a)
			continue
		}
		if !hasAttribute(to.Attributes, a) {
			to.Attributes = append(to.Attributes, a)
		}
	}
	from.Attributes = kept
}

func hasAttribute(list []Attribute, a Attribute) bool {
	for _, x := range list {
		if strings.EqualFold(x.Name, a.Name) && x.Value == a.Value {
			return true
		}
	}
	return false
}

func newResult(local *SessionCapability, mode Mode, plan *bundle.Plan) *Result {
	return &Result{
		SessionID:       local.SessionID,
		Mode:            mode,
		BundleGroups:    plan.Groups,
		BundleConfirmed: plan.Confirmed,
		RTCPXR:          local.RTCPXR,
		Attributes:      cloneAttributes(local.Attributes),
	}
}

// confirm проверяет, что каждый поток стоит на позиции своей m-line в
// предложении, и переводит согласованные потоки в accepted
func confirm(res *Result, negs []*streamNegotiator, types []payload.StreamType) error {
	res.Streams = make([]*NegotiatedStream, 0, len(negs))
	for i, n := range negs {
		if n.out.Ordinal != i || n.out.Type != types[i] {
			return newStreamError(ErrorCodeInternal, res.SessionID, i,
				"поток %s на позиции %d не соответствует m-line %s", n.out.Type, n.out.Ordinal, types[i])
		}
		n.accept()
		res.Streams = append(res.Streams, n.out)
	}
	return nil
}
