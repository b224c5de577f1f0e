package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchetypeFlagOps(t *testing.T) {
	var a Archetype
	a = a.WithFlag(3).WithFlag(70).WithFlag(200)

	assert.True(t, a.Has(3))
	assert.True(t, a.Has(70))
	assert.True(t, a.Has(200))
	assert.False(t, a.Has(4))
	assert.Equal(t, 3, a.Count())

	a = a.WithoutFlag(70)
	assert.False(t, a.Has(70))
	assert.Equal(t, 2, a.Count())
}

func TestArchetypeContainsAndIntersects(t *testing.T) {
	ab := ArchetypeOf(1, 2)
	abc := ArchetypeOf(1, 2, 3)
	cd := ArchetypeOf(3, 4)

	assert.True(t, abc.Contains(ab))
	assert.False(t, ab.Contains(abc))
	assert.True(t, abc.Intersects(cd))
	assert.False(t, ab.Intersects(cd))
}

func TestArchetypeUnionWithout(t *testing.T) {
	ab := ArchetypeOf(1, 2)
	bc := ArchetypeOf(2, 3)

	union := ab.Union(bc)
	assert.ElementsMatch(t, []Flag{1, 2, 3}, union.Flags())

	without := union.Without(ArchetypeOf(2))
	assert.ElementsMatch(t, []Flag{1, 3}, without.Flags())
}

func TestEmptyArchetype(t *testing.T) {
	assert.True(t, EmptyArchetype.Empty())
	assert.False(t, ArchetypeOf(0).Empty())
}
