package offer_answer

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arzzra/offer_answer/pkg/payload"
)

// History хранит выбор предыдущего успешного согласования каждой сессии:
// номера кодеков, mid и теги bundle. Записи вытесняются по LRU, завершенную
// сессию нужно удалять через Purge.
//
// Запись сессии заменяется целиком при фиксации, поэтому одна History может
// использоваться разными сессиями параллельно.
type History struct {
	cache *lru.Cache[string, *sessionRecord]
}

type sessionRecord struct {
	// номера хранятся по типу потока: одинаковые номера в разных m-line
	// не конфликтуют
	numbers    map[payload.StreamType]map[payload.Identity]int
	mids       map[int]string
	bundleTags map[int]string
}

// NewHistory создает историю на capacity сессий
func NewHistory(capacity int) (*History, error) {
	cache, err := lru.New[string, *sessionRecord](capacity)
	if err != nil {
		return nil, &NegotiationError{Code: ErrorCodeInvalidConfig, Ordinal: -1,
			Message: "не удалось создать историю согласований", Wrapped: err}
	}
	return &History{cache: cache}, nil
}

// Purge удаляет историю завершенной сессии
func (h *History) Purge(sessionID string) bool {
	if h == nil {
		return false
	}
	return h.cache.Remove(sessionID)
}

// Len количество сессий в истории
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return h.cache.Len()
}

// Number номер, закрепленный за кодеком в сессии
func (h *History) Number(sessionID string, t payload.StreamType, id payload.Identity) (int, bool) {
	n, ok := h.record(sessionID).numbers[t][id]
	return n, ok
}

// Mid закрепленный mid потока с порядковым номером ordinal
func (h *History) Mid(sessionID string, ordinal int) (string, bool) {
	mid, ok := h.record(sessionID).mids[ordinal]
	return mid, ok
}

func (h *History) record(sessionID string) *sessionRecord {
	if h != nil && sessionID != "" {
		if rec, ok := h.cache.Get(sessionID); ok {
			return rec
		}
	}
	return &sessionRecord{}
}

// commit фиксирует итог согласования; вызывается один раз за вызов
// Negotiate и только при наличии согласованных потоков
func (h *History) commit(res *Result) {
	if h == nil || res.SessionID == "" {
		return
	}
	prev := h.record(res.SessionID)
	rec := &sessionRecord{
		numbers:    make(map[payload.StreamType]map[payload.Identity]int, len(prev.numbers)),
		mids:       make(map[int]string, len(prev.mids)),
		bundleTags: make(map[int]string, len(prev.bundleTags)),
	}
	for t, byID := range prev.numbers {
		cp := make(map[payload.Identity]int, len(byID))
		for id, n := range byID {
			cp[id] = n
		}
		rec.numbers[t] = cp
	}
	for k, v := range prev.mids {
		rec.mids[k] = v
	}
	for k, v := range prev.bundleTags {
		rec.bundleTags[k] = v
	}

	for _, s := range res.Streams {
		if !s.Accepted() {
			continue
		}
		byID := rec.numbers[s.Type]
		if byID == nil {
			byID = make(map[payload.Identity]int)
			rec.numbers[s.Type] = byID
		}
		for _, pt := range s.Payloads {
			if pt.Number == payload.NumberUnassigned {
				continue
			}
			id := pt.Identity()
			for other, n := range byID {
				if n == pt.Number && other != id {
					delete(byID, other)
				}
			}
			byID[id] = pt.Number
		}
		if s.Mid != "" {
			rec.mids[s.Ordinal] = s.Mid
		}
		if s.BundleTag != "" {
			rec.bundleTags[s.Ordinal] = s.BundleTag
		} else {
			delete(rec.bundleTags, s.Ordinal)
		}
	}
	h.cache.Add(res.SessionID, rec)
}

// numberView представление истории одного типа потока для нумерации кодеков
type numberView struct {
	byID map[payload.Identity]int
}

func (r *sessionRecord) numberView(t payload.StreamType) payload.NumberHistory {
	byID := r.numbers[t]
	if len(byID) == 0 {
		return payload.NoHistory
	}
	return numberView{byID: byID}
}

func (v numberView) LookupNumber(id payload.Identity) (int, bool) {
	n, ok := v.byID[id]
	return n, ok
}

func (v numberView) NumberOwner(number int) (payload.Identity, bool) {
	for id, n := range v.byID {
		if n == number {
			return id, true
		}
	}
	return payload.Identity{}, false
}
