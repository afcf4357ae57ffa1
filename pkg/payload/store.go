package payload

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// CapabilityStore реестр локально поддерживаемых кодеков.
//
// Один экземпляр на user agent, принадлежит слою управления вызовами.
// Изменяется только явными вызовами конфигурации; движок согласования
// получает неизменяемый снимок через Snapshot на каждый вызов.
type CapabilityStore struct {
	mu     sync.RWMutex
	tables map[StreamType][]*PayloadType
	logger *slog.Logger
}

// NewCapabilityStore создает реестр со встроенными таблицами кодеков
func NewCapabilityStore() *CapabilityStore {
	return &CapabilityStore{
		tables: defaultTables(),
		logger: slog.Default().With(slog.String("component", "capability_store")),
	}
}

// NewEmptyCapabilityStore создает реестр без кодеков (для тестов и ручного наполнения)
func NewEmptyCapabilityStore() *CapabilityStore {
	tables := make(map[StreamType][]*PayloadType, len(KnownStreamTypes))
	for _, t := range KnownStreamTypes {
		tables[t] = nil
	}
	return &CapabilityStore{
		tables: tables,
		logger: slog.Default().With(slog.String("component", "capability_store")),
	}
}

// SetLogger заменяет логгер реестра
func (s *CapabilityStore) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Add добавляет кодек в конец таблицы типа потока
func (s *CapabilityStore) Add(t StreamType, pt *PayloadType) error {
	if !t.IsKnown() {
		return fmt.Errorf("неизвестный тип потока %q", t)
	}
	if pt == nil || pt.MimeType == "" {
		return fmt.Errorf("кодек без mime type")
	}
	if pt.Number > 127 {
		return fmt.Errorf("номер %d вне диапазона 0-127", pt.Number)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := pt.Identity()
	for _, existing := range s.tables[t] {
		if existing.Identity() == id {
			return fmt.Errorf("кодек %s уже зарегистрирован", id)
		}
	}
	s.tables[t] = append(s.tables[t], pt.Clone())
	return nil
}

// Payloads возвращает копию таблицы кодеков типа потока в порядке предпочтения
func (s *CapabilityStore) Payloads(t StreamType) []*PayloadType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneList(s.tables[t])
}

// EnabledPayloads возвращает копии только включенных кодеков
func (s *CapabilityStore) EnabledPayloads(t StreamType) []*PayloadType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*PayloadType
	for _, pt := range s.tables[t] {
		if pt.Enabled {
			out = append(out, pt.Clone())
		}
	}
	return out
}

// Find ищет кодек по идентичности; channels == 0 означает любое значение
func (s *CapabilityStore) Find(t StreamType, mime string, rate uint32, channels uint8) (*PayloadType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pt := s.find(t, mime, rate, channels)
	if pt == nil {
		return nil, false
	}
	return pt.Clone(), true
}

func (s *CapabilityStore) find(t StreamType, mime string, rate uint32, channels uint8) *PayloadType {
	for _, pt := range s.tables[t] {
		if !strings.EqualFold(pt.MimeType, mime) || pt.ClockRate != rate {
			continue
		}
		if channels != WildcardChannels && pt.Channels != channels {
			continue
		}
		return pt
	}
	return nil
}

func (s *CapabilityStore) update(t StreamType, mime string, rate uint32, channels uint8, fn func(pt *PayloadType)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pt := s.find(t, mime, rate, channels)
	if pt == nil {
		return fmt.Errorf("кодек %s/%d не найден среди %s", mime, rate, t)
	}
	fn(pt)
	return nil
}

// Enable включает или выключает кодек
func (s *CapabilityStore) Enable(t StreamType, mime string, rate uint32, channels uint8, enabled bool) error {
	return s.update(t, mime, rate, channels, func(pt *PayloadType) {
		pt.Enabled = enabled
	})
}

// EnableMatching включает или выключает все кодеки, чье "mime/rate"
// соответствует glob шаблону, например "H26*" или "speex/*".
// Возвращает количество измененных записей.
func (s *CapabilityStore) EnableMatching(t StreamType, pattern string, enabled bool) (int, error) {
	g, err := glob.Compile(strings.ToLower(pattern), '/')
	if err != nil {
		return 0, fmt.Errorf("некорректный шаблон %q: %w", pattern, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, pt := range s.tables[t] {
		name := strings.ToLower(pt.MimeType)
		full := fmt.Sprintf("%s/%d", name, pt.ClockRate)
		if g.Match(name) || g.Match(full) {
			if pt.Enabled != enabled {
				changed++
			}
			pt.Enabled = enabled
		}
	}
	s.logger.Debug("изменено включение кодеков по шаблону",
		slog.String("type", t.String()),
		slog.String("pattern", pattern),
		slog.Bool("enabled", enabled),
		slog.Int("changed", changed))
	return changed, nil
}

// SetBitrate задает целевой битрейт кодека
func (s *CapabilityStore) SetBitrate(t StreamType, mime string, rate uint32, channels uint8, bitrate int) error {
	if bitrate < 0 {
		return fmt.Errorf("отрицательный битрейт %d", bitrate)
	}
	return s.update(t, mime, rate, channels, func(pt *PayloadType) {
		pt.Bitrate = bitrate
	})
}

// SetNumber закрепляет номер payload type за кодеком
func (s *CapabilityStore) SetNumber(t StreamType, mime string, rate uint32, channels uint8, number int) error {
	if number < 0 || number > 127 {
		return fmt.Errorf("номер %d вне диапазона 0-127", number)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.find(t, mime, rate, channels)
	if target == nil {
		return fmt.Errorf("кодек %s/%d не найден среди %s", mime, rate, t)
	}
	for _, pt := range s.tables[t] {
		if pt != target && pt.Number == number {
			return fmt.Errorf("номер %d уже занят кодеком %s", number, pt.Identity())
		}
	}
	target.Number = number
	target.SetFlag(FlagFrozenNumber)
	return nil
}

// SetPriorityBonus поднимает кодек в начало списка при согласовании
func (s *CapabilityStore) SetPriorityBonus(t StreamType, mime string, rate uint32, channels uint8, bonus bool) error {
	return s.update(t, mime, rate, channels, func(pt *PayloadType) {
		pt.PriorityBonus = bonus
	})
}

// Snapshot неизменяемый снимок реестра для одного вызова
type Snapshot struct {
	tables map[StreamType][]*PayloadType
}

// Snapshot возвращает копию всех таблиц
func (s *CapabilityStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tables := make(map[StreamType][]*PayloadType, len(s.tables))
	for t, list := range s.tables {
		tables[t] = CloneList(list)
	}
	return &Snapshot{tables: tables}
}

// Payloads возвращает копию списка кодеков снимка (включенных и выключенных)
func (s *Snapshot) Payloads(t StreamType) []*PayloadType {
	return CloneList(s.tables[t])
}
