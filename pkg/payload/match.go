package payload

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// MatchOptions параметры сопоставления списков кодеков одного потока
type MatchOptions struct {
	// ReadingAnswer удаленный список - ответ на наш offer
	ReadingAnswer bool
	// OneMatchingCodec оставить только первый настоящий кодек (и telephone-event)
	OneMatchingCodec bool
	// KeepCompatibility при чтении ответа добавить неиспользованные локальные
	// кодеки только на прием, чтобы декодировать поток несовместимого пира
	KeepCompatibility bool
	// History номера предыдущего согласования сессии
	History NumberHistory
	Logger  *slog.Logger
}

// Prepare возвращает включенные кодеки в порядке предпочтения: записи с
// PriorityBonus перемещаются в начало, остальной порядок сохраняется.
func Prepare(local []*PayloadType) []*PayloadType {
	out := make([]*PayloadType, 0, len(local))
	for _, pt := range local {
		if pt != nil && pt.Enabled {
			out = append(out, pt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PriorityBonus && !out[j].PriorityBonus
	})
	return out
}

// Offer нумерует локальные кодеки для собственного предложения.
// Номер из истории сессии имеет приоритет над номером из таблицы.
func Offer(local []*PayloadType, history NumberHistory) []*PayloadType {
	alloc := newAllocator(history)
	seen := make(map[Identity]bool)
	var res []*PayloadType
	for _, pt := range Prepare(local) {
		if seen[pt.Identity()] {
			continue
		}
		seen[pt.Identity()] = true
		c := pt.Clone()
		c.Number = alloc.assignStable(c.Identity(), pt.Number)
		if c.Number == NumberUnassigned {
			continue
		}
		c.SetFlag(FlagCanSend | FlagCanRecv)
		res = append(res, c)
	}
	return res
}

// Match пересекает локальный список кодеков с удаленным для одного потока.
//
// Результат упорядочен по локальному предпочтению и содержит объединенные
// записи с согласованными номерами. Пустой результат допустим и означает,
// что пригодного кодека нет.
func Match(local, remote []*PayloadType, opts MatchOptions) []*PayloadType {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	type pair struct {
		local, remote, merged *PayloadType
	}

	prepared := Prepare(local)
	usedRemote := make([]bool, len(remote))
	var pairs []pair

	for _, lp := range prepared {
		for i, rp := range remote {
			if usedRemote[i] || rp == nil {
				continue
			}
			merged := matchPair(lp, rp)
			if merged == nil {
				continue
			}
			usedRemote[i] = true
			pairs = append(pairs, pair{local: lp, remote: rp, merged: merged})
			break
		}
	}

	for i, rp := range remote {
		if !usedRemote[i] && rp != nil {
			logger.Debug("нет совпадения для удаленного кодека", slog.String("codec", rp.Identity().String()))
		}
	}

	if opts.OneMatchingCodec && !opts.ReadingAnswer {
		filtered := pairs[:0]
		found := false
		for _, p := range pairs {
			if !p.merged.IsTelephoneEvent() {
				if found {
					continue
				}
				found = true
			}
			filtered = append(filtered, p)
		}
		pairs = filtered
	}

	alloc := newAllocator(opts.History)
	seen := make(map[Identity]bool, len(pairs))
	res := make([]*PayloadType, 0, len(pairs))
	for _, p := range pairs {
		id := p.merged.Identity()
		if seen[id] {
			logger.Debug("повторный кодек в списке пропущен", slog.String("codec", id.String()))
			continue
		}
		seen[id] = true
		p.merged.Number = alloc.assign(id, p.remote.Number)
		if p.merged.Number == NumberUnassigned {
			continue
		}
		if !opts.ReadingAnswer && p.merged.Number != p.remote.Number {
			if owner, ok := alloc.history.NumberOwner(p.remote.Number); ok && owner != id {
				logger.Warn("номер удаленной стороны закреплен историей за другим кодеком",
					slog.String("codec", id.String()),
					slog.Int("offered", p.remote.Number),
					slog.String("owner", owner.String()),
					slog.Int("assigned", p.merged.Number))
			}
		}
		if opts.ReadingAnswer && p.merged.Number != p.local.Number && p.local.Number != NumberUnassigned {
			logger.Warn("удаленная сторона ответила другим номером",
				slog.String("codec", id.String()),
				slog.Int("proposed", p.local.Number),
				slog.Int("answered", p.merged.Number))
		}
		p.merged.SetFlag(FlagFrozenNumber)
		res = append(res, p.merged)
	}

	fixRedundancy(res, remote)

	if opts.ReadingAnswer && opts.KeepCompatibility {
		res = appendCompatibility(res, prepared, remote, alloc, logger)
	}
	return res
}

// appendCompatibility добавляет локальные кодеки, номера которых не
// использованы в ответе, только на прием.
func appendCompatibility(res, local, remote []*PayloadType, alloc *allocator, logger *slog.Logger) []*PayloadType {
	remoteNumbers := make(map[int]bool, len(remote))
	for _, rp := range remote {
		if rp != nil {
			remoteNumbers[rp.Number] = true
		}
	}
	present := make(map[Identity]bool, len(res))
	for _, pt := range res {
		present[pt.Identity()] = true
	}

	for _, lp := range local {
		id := lp.Identity()
		if present[id] || remoteNumbers[lp.Number] || !alloc.available(lp.Number, id) {
			continue
		}
		c := lp.Clone()
		c.Flags = (c.Flags &^ FlagCanSend) | FlagCanRecv | FlagFrozenNumber
		alloc.take(c.Number, id)
		present[id] = true
		logger.Debug("кодек добавлен только на прием для совместимости", slog.String("codec", id.String()))
		res = append(res, c)
	}
	return res
}

// matchPair сопоставляет локальную запись с удаленной и возвращает
// объединенную запись или nil.
func matchPair(local, remote *PayloadType) *PayloadType {
	if m, ok := specificMatchers[strings.ToLower(remote.MimeType)]; ok {
		if merged, handled := m(local, remote); handled {
			return merged
		}
	}
	if !genericMatch(local, remote) {
		return nil
	}
	return merge(local, remote)
}

func rateMatches(a, b uint32) bool {
	return a == WildcardClockRate || b == WildcardClockRate || a == b
}

func channelsMatch(a, b uint8) bool {
	return a == WildcardChannels || b == WildcardChannels || a == b
}

func genericMatch(local, remote *PayloadType) bool {
	if local.MimeType == "" || remote.MimeType == "" {
		return false
	}
	return strings.EqualFold(local.MimeType, remote.MimeType) &&
		rateMatches(local.ClockRate, remote.ClockRate) &&
		channelsMatch(local.Channels, remote.Channels) &&
		fmtpCompatible(local, remote)
}

// merge строит итоговую запись из локальной с учетом удаленной
func merge(local, remote *PayloadType) *PayloadType {
	merged := local.Clone()
	if merged.ClockRate == WildcardClockRate {
		merged.ClockRate = remote.ClockRate
	}
	if merged.Channels == WildcardChannels {
		merged.Channels = remote.Channels
	}

	merged.SendFmtp = AppendFmtp(merged.SendFmtp, fmtpOf(remote, true))
	inheritCriticalFmtp(merged, local, remote)

	merged.SetFlag(FlagCanSend | FlagCanRecv)
	if local.HasFlag(FlagRTCPFeedback) && remote.HasFlag(FlagRTCPFeedback) {
		merged.SetFlag(FlagRTCPFeedback)
		merged.AVPF.Features &= remote.AVPF.Features
		merged.AVPF.RPSICompatibility = remote.AVPF.RPSICompatibility
		if remote.AVPF.TRRInterval > merged.AVPF.TRRInterval {
			merged.AVPF.TRRInterval = remote.AVPF.TRRInterval
		}
	} else {
		merged.UnsetFlag(FlagRTCPFeedback)
	}
	return merged
}

// specificMatcher особая логика сопоставления для отдельных кодеков.
// handled == false означает, что нужно применить общее правило.
type specificMatcher func(local, remote *PayloadType) (merged *PayloadType, handled bool)

var specificMatchers = map[string]specificMatcher{
	"opus":  opusMatch,
	"g729a": g729aMatch,
}

// opusMatch: ранние версии клиентов предлагали opus/48000/1, что не
// соответствует RFC 7587. Отвечаем тем же количеством каналов.
func opusMatch(local, remote *PayloadType) (*PayloadType, bool) {
	if !local.IsMime(MimeOpus) || remote.Channels != 1 || local.ClockRate != remote.ClockRate {
		return nil, false
	}
	merged := merge(local, remote)
	merged.Channels = 1
	return merged, true
}

// g729aMatch: некоторые телефоны предлагают mime G729A вместо G729
func g729aMatch(local, remote *PayloadType) (*PayloadType, bool) {
	if !local.IsMime(MimeG729) {
		return nil, false
	}
	if local.Channels != remote.Channels {
		return nil, true
	}
	return merge(local, remote), true
}

// fixRedundancy настраивает fmtp red (RFC 2198 для T.140) на номер t140
func fixRedundancy(res, remote []*PayloadType) {
	var red *PayloadType
	t140 := NumberUnassigned
	for _, pt := range res {
		switch {
		case pt.IsMime(MimeRED):
			red = pt
		case pt.IsMime(MimeT140):
			t140 = pt.Number
		}
	}
	if red == nil {
		return
	}
	if t140 == NumberUnassigned {
		for _, rp := range remote {
			if rp != nil && rp.IsMime(MimeT140) {
				t140 = rp.Number
				break
			}
		}
	}
	if t140 == NumberUnassigned {
		return
	}
	red.RecvFmtp = fmt.Sprintf("%d/%d/%d", t140, t140, t140)
}
