package payload

// NumberHistory номера, выбранные в предыдущем успешном согласовании сессии
type NumberHistory interface {
	// LookupNumber возвращает номер, закрепленный за идентичностью
	LookupNumber(id Identity) (int, bool)
	// NumberOwner возвращает идентичность, за которой закреплен номер
	NumberOwner(number int) (Identity, bool)
}

type noHistory struct{}

func (noHistory) LookupNumber(Identity) (int, bool) { return 0, false }
func (noHistory) NumberOwner(int) (Identity, bool)  { return Identity{}, false }

// NoHistory история без записей (первое согласование сессии)
var NoHistory NumberHistory = noHistory{}

// allocator раздает номера внутри одного потока
type allocator struct {
	byNumber map[int]Identity
	byID     map[Identity]int
	history  NumberHistory
}

func newAllocator(history NumberHistory) *allocator {
	if history == nil {
		history = NoHistory
	}
	return &allocator{
		byNumber: make(map[int]Identity),
		byID:     make(map[Identity]int),
		history:  history,
	}
}

func validNumber(n int) bool {
	return n >= 0 && n <= 127
}

// available проверяет, что номер свободен в потоке и не закреплен
// историей за другим кодеком
func (a *allocator) available(n int, id Identity) bool {
	if !validNumber(n) {
		return false
	}
	if owner, ok := a.byNumber[n]; ok && owner != id {
		return false
	}
	if owner, ok := a.history.NumberOwner(n); ok && owner != id {
		return false
	}
	return true
}

func (a *allocator) take(n int, id Identity) int {
	a.byNumber[n] = id
	if _, ok := a.byID[id]; !ok {
		a.byID[id] = n
	}
	return n
}

// reserve помечает номер занятым без проверки истории
func (a *allocator) reserve(n int, id Identity) {
	if !validNumber(n) {
		return
	}
	if _, ok := a.byNumber[n]; !ok {
		a.byNumber[n] = id
	}
}

// assign выбирает номер: кандидаты по порядку, затем номер из истории,
// затем первый свободный в порядке 96..127, 0..95 (сначала динамический
// диапазон, чтобы не занимать известные статические номера).
func (a *allocator) assign(id Identity, candidates ...int) int {
	if n, ok := a.byID[id]; ok {
		return n
	}
	for _, c := range candidates {
		if a.available(c, id) {
			return a.take(c, id)
		}
	}
	if n, ok := a.history.LookupNumber(id); ok && a.available(n, id) {
		return a.take(n, id)
	}
	for n := 96; n <= 127; n++ {
		if a.available(n, id) {
			return a.take(n, id)
		}
	}
	for n := 0; n < 96; n++ {
		if a.available(n, id) {
			return a.take(n, id)
		}
	}
	return NumberUnassigned
}

// assignStable как assign, но номер из истории имеет приоритет над кандидатами.
// Используется при формировании собственного offer.
func (a *allocator) assignStable(id Identity, candidates ...int) int {
	if n, ok := a.history.LookupNumber(id); ok && a.available(n, id) {
		if _, assigned := a.byID[id]; !assigned {
			return a.take(n, id)
		}
	}
	return a.assign(id, candidates...)
}
