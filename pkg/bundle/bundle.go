// Package bundle решает, какие потоки сессии объединяются в один транспорт
// (RFC 8843), и назначает каждому потоку тег группы и роль в ней.
package bundle

import (
	"sort"

	"github.com/elliotchance/orderedmap/v2"
)

// Semantics значение a=group для bundle
const Semantics = "BUNDLE"

// Candidate поток сессии, рассматриваемый для объединения
type Candidate struct {
	Ordinal int
	// Mid идентификатор m-line (a=mid)
	Mid string
	// Eligible локальная capability разрешает объединение и поток не отклонен
	Eligible bool
	// PrevTag тег группы потока в предыдущем согласовании сессии
	PrevTag string
}

// Assignment роль потока в группе
type Assignment struct {
	Ordinal int
	Mid     string
	// Tag идентификатор группы - mid основного потока группы
	Tag     string
	Primary bool
	// BundleOnly поток не имеет собственного транспорта и использует
	// транспорт основного потока (без собственного RTCP адреса)
	BundleOnly bool
}

// Group одна группа BUNDLE
type Group struct {
	Tag      string
	Mids     []string
	Ordinals []int
	Primary  int
}

// Plan результат группировки
type Plan struct {
	Groups []Group
	// Confirmed группировка подтверждена обеими сторонами
	Confirmed   bool
	assignments map[int]Assignment
}

// For возвращает роль потока или false, если поток не объединяется
func (p *Plan) For(ordinal int) (Assignment, bool) {
	if p == nil {
		return Assignment{}, false
	}
	a, ok := p.assignments[ordinal]
	return a, ok
}

// Assignments роли всех объединенных потоков в порядке m-line
func (p *Plan) Assignments() []Assignment {
	if p == nil {
		return nil
	}
	out := make([]Assignment, 0, len(p.assignments))
	for _, a := range p.assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// Empty проверяет, что ни один поток не объединен
func (p *Plan) Empty() bool {
	return p == nil || len(p.Groups) == 0
}

// Propose формирует предложение группировки для собственного offer:
// одна группа из всех допустимых потоков, если их больше одного и политика
// включена. Основной поток - основной поток предыдущей группы, если он
// снова допустим, иначе первый допустимый по порядку m-line.
func Propose(cands []Candidate, enabled bool) *Plan {
	plan := &Plan{assignments: make(map[int]Assignment)}
	if !enabled {
		return plan
	}

	var members []Candidate
	for _, c := range sortedByOrdinal(cands) {
		if c.Eligible && c.Mid != "" {
			members = append(members, c)
		}
	}
	if len(members) < 2 {
		return plan
	}

	for i, m := range members {
		if i > 0 && m.PrevTag != "" && m.PrevTag == m.Mid {
			reordered := make([]Candidate, 0, len(members))
			reordered = append(reordered, m)
			reordered = append(reordered, members[:i]...)
			members = append(reordered, members[i+1:]...)
			break
		}
	}

	plan.Groups = append(plan.Groups, buildGroup(members, false, plan.assignments))
	return plan
}

// Accept подтверждает группировку по группам, явно перечисленным удаленной
// стороной (a=group:BUNDLE ...). Потоки, не вошедшие ни в одну группу,
// используют собственный транспорт - это нормальный исход, не ошибка.
func Accept(cands []Candidate, remoteGroups [][]string, accept bool) *Plan {
	plan := &Plan{assignments: make(map[int]Assignment)}
	if !accept || len(remoteGroups) == 0 {
		return plan
	}

	groupOf := make(map[string]int)
	for i, mids := range remoteGroups {
		for _, mid := range mids {
			if _, dup := groupOf[mid]; !dup && mid != "" {
				groupOf[mid] = i
			}
		}
	}

	// порядок групп - порядок появления их первых участников в m-line
	members := orderedmap.NewOrderedMap[int, []Candidate]()
	for _, c := range sortedByOrdinal(cands) {
		if !c.Eligible || c.Mid == "" {
			continue
		}
		idx, ok := groupOf[c.Mid]
		if !ok {
			continue
		}
		list, _ := members.Get(idx)
		members.Set(idx, append(list, c))
	}

	for _, idx := range members.Keys() {
		list, _ := members.Get(idx)
		plan.Groups = append(plan.Groups, buildGroup(list, true, plan.assignments))
	}
	plan.Confirmed = len(plan.Groups) > 0
	return plan
}

// buildGroup первый участник становится основным потоком группы
func buildGroup(members []Candidate, confirmed bool, assignments map[int]Assignment) Group {
	primary := members[0]
	g := Group{Tag: primary.Mid, Primary: primary.Ordinal}
	for i, m := range members {
		g.Mids = append(g.Mids, m.Mid)
		g.Ordinals = append(g.Ordinals, m.Ordinal)
		assignments[m.Ordinal] = Assignment{
			Ordinal:    m.Ordinal,
			Mid:        m.Mid,
			Tag:        g.Tag,
			Primary:    i == 0,
			BundleOnly: confirmed && i != 0,
		}
	}
	return g
}

func sortedByOrdinal(cands []Candidate) []Candidate {
	out := append([]Candidate(nil), cands...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}
