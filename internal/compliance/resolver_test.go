package compliance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselcheck/internal/domain"
)

func dep(id string, status domain.ItemStatus, deps ...string) domain.ChecklistItem {
	return domain.ChecklistItem{ID: id, Type: domain.ItemBoolean, Required: true, Status: status, Dependencies: deps}
}

func TestDetectCyclesTwoNodes(t *testing.T) {
	g := NewGraph([]domain.ChecklistItem{
		dep("a", domain.ItemPending, "b"),
		dep("b", domain.ItemPending, "a"),
	})
	err := g.DetectCycles()
	require.ErrorIs(t, err, ErrCyclicDependency)
	var cyc *CyclicDependencyError
	require.True(t, errors.As(err, &cyc))
	assert.Equal(t, []string{"a", "b", "a"}, cyc.Cycle)

	_, err = g.Order()
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestDetectCyclesLongCycleAndSelfLoop(t *testing.T) {
	long := NewGraph([]domain.ChecklistItem{
		dep("a", domain.ItemPending, "b"),
		dep("b", domain.ItemPending, "c"),
		dep("c", domain.ItemPending, "d"),
		dep("d", domain.ItemPending, "b"),
	})
	var cyc *CyclicDependencyError
	require.ErrorAs(t, long.DetectCycles(), &cyc)
	assert.Equal(t, []string{"b", "c", "d", "b"}, cyc.Cycle)

	self := NewGraph([]domain.ChecklistItem{dep("a", domain.ItemPending, "a")})
	assert.ErrorIs(t, self.DetectCycles(), ErrCyclicDependency)
}

func TestDetectCyclesIgnoresDanglingAndDiamonds(t *testing.T) {
	g := NewGraph([]domain.ChecklistItem{
		dep("top", domain.ItemPending, "left", "right"),
		dep("left", domain.ItemPending, "base"),
		dep("right", domain.ItemPending, "base", "ghost"),
		dep("base", domain.ItemPending),
	})
	assert.NoError(t, g.DetectCycles())
}

func TestOrderPlacesDependenciesFirst(t *testing.T) {
	items := []domain.ChecklistItem{
		{ID: "thrusters", Category: "dp", Order: 1, Dependencies: []string{"power"}},
		{ID: "gyro", Category: "dp", Order: 2},
		{ID: "power", Category: "power", Order: 1},
		{ID: "ref", Category: "dp", Order: 0},
	}
	order, err := NewGraph(items).Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"ref", "power", "thrusters", "gyro"}, order)
}

func TestIsReady(t *testing.T) {
	c := domain.Checklist{Items: []domain.ChecklistItem{
		dep("x", domain.ItemPending, "y", "z"),
		dep("y", domain.ItemCompleted),
		dep("z", domain.ItemPending),
		dep("w", domain.ItemPending, "ghost"),
		dep("v", domain.ItemPending, "y"),
	}}

	r := IsReady(c.Items[0], c)
	assert.False(t, r.Ready)
	assert.Equal(t, []string{"z"}, r.Pending)
	err := r.Err("x")
	assert.ErrorIs(t, err, ErrIneligible)
	assert.ErrorIs(t, err, ErrDependencyNotReady)
	assert.False(t, errors.Is(err, ErrDanglingDependency))

	r = IsReady(c.Items[3], c)
	assert.False(t, r.Ready)
	assert.Equal(t, []string{"ghost"}, r.Dangling)
	assert.ErrorIs(t, r.Err("w"), ErrDanglingDependency)

	r = IsReady(c.Items[4], c)
	assert.True(t, r.Ready)
	assert.NoError(t, r.Err("v"))

	assert.Equal(t, map[string][]string{"w": {"ghost"}}, Blocked(c))
}
