package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposeSingleGroup(t *testing.T) {
	cands := []Candidate{
		{Ordinal: 1, Mid: "vs", Eligible: true},
		{Ordinal: 0, Mid: "as", Eligible: true},
		{Ordinal: 2, Mid: "fec", Eligible: false},
	}

	plan := Propose(cands, true)

	require.Len(t, plan.Groups, 1)
	assert.False(t, plan.Confirmed)
	assert.Equal(t, []string{"as", "vs"}, plan.Groups[0].Mids)
	assert.Equal(t, "as", plan.Groups[0].Tag)

	a, ok := plan.For(0)
	require.True(t, ok)
	assert.True(t, a.Primary)
	b, ok := plan.For(1)
	require.True(t, ok)
	assert.False(t, b.Primary)
	assert.False(t, b.BundleOnly, "в предложении bundle-only еще не выставляется")

	_, ok = plan.For(2)
	assert.False(t, ok)
}

func TestProposeKeepsPreviousPrimary(t *testing.T) {
	cands := []Candidate{
		{Ordinal: 0, Mid: "as", Eligible: true},
		{Ordinal: 1, Mid: "vs", Eligible: true, PrevTag: "vs"},
		{Ordinal: 2, Mid: "vs2", Eligible: true, PrevTag: "vs"},
	}

	plan := Propose(cands, true)

	require.Len(t, plan.Groups, 1)
	g := plan.Groups[0]
	assert.Equal(t, "vs", g.Tag)
	assert.Equal(t, 1, g.Primary)
	assert.Equal(t, []string{"vs", "as", "vs2"}, g.Mids, "основной поток первым в a=group")

	a, ok := plan.For(0)
	require.True(t, ok)
	assert.False(t, a.Primary)
	assert.Equal(t, "vs", a.Tag)
	b, ok := plan.For(1)
	require.True(t, ok)
	assert.True(t, b.Primary)
}

func TestProposeRequiresTwoEligibleStreams(t *testing.T) {
	assert.True(t, Propose([]Candidate{{Ordinal: 0, Mid: "as", Eligible: true}}, true).Empty())
	assert.True(t, Propose([]Candidate{
		{Ordinal: 0, Mid: "as", Eligible: true},
		{Ordinal: 1, Mid: "vs", Eligible: true},
	}, false).Empty())
}

func TestAcceptExplicitGroup(t *testing.T) {
	cands := []Candidate{
		{Ordinal: 0, Mid: "0", Eligible: true},
		{Ordinal: 1, Mid: "1", Eligible: true},
		{Ordinal: 2, Mid: "2", Eligible: true},
		{Ordinal: 3, Mid: "3", Eligible: false},
	}

	plan := Accept(cands, [][]string{{"1", "0", "3"}}, true)

	require.Len(t, plan.Groups, 1)
	assert.True(t, plan.Confirmed)

	primaries := 0
	for _, a := range plan.Assignments() {
		if a.Primary {
			primaries++
			assert.Equal(t, 0, a.Ordinal, "основной - первый по порядку m-line")
			assert.False(t, a.BundleOnly)
		} else {
			assert.True(t, a.BundleOnly)
		}
		assert.Equal(t, "0", a.Tag)
	}
	assert.Equal(t, 1, primaries)

	_, ok := plan.For(2)
	assert.False(t, ok, "поток вне группы использует свой транспорт")
	_, ok = plan.For(3)
	assert.False(t, ok, "запрещенный для bundle поток не объединяется")
}

func TestAcceptWithoutGroupFallsBack(t *testing.T) {
	cands := []Candidate{
		{Ordinal: 0, Mid: "0", Eligible: true},
		{Ordinal: 1, Mid: "1", Eligible: true},
	}

	assert.True(t, Accept(cands, nil, true).Empty())
	assert.True(t, Accept(cands, [][]string{{"0", "1"}}, false).Empty())
	assert.False(t, Accept(cands, nil, true).Confirmed)
}

func TestAcceptMultipleGroups(t *testing.T) {
	cands := []Candidate{
		{Ordinal: 0, Mid: "a", Eligible: true},
		{Ordinal: 1, Mid: "b", Eligible: true},
		{Ordinal: 2, Mid: "c", Eligible: true},
		{Ordinal: 3, Mid: "d", Eligible: true},
	}

	plan := Accept(cands, [][]string{{"b", "d"}, {"a", "c"}}, true)

	require.Len(t, plan.Groups, 2)
	assert.Equal(t, "a", plan.Groups[0].Tag)
	assert.Equal(t, []int{0, 2}, plan.Groups[0].Ordinals)
	assert.Equal(t, "b", plan.Groups[1].Tag)
	assert.Equal(t, 1, plan.Groups[1].Primary)
}
