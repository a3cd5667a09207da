package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

func keyOf(s string) dimension.Key {
	return dimension.Key{Values: []field.Value{{Kind: field.KindString, Str: s}}}
}

func TestTrackerUpdateThenQuery(t *testing.T) {
	tr := NewTracker(10)
	pk := keyOf("uid-1")
	val := keyOf("state-fg")

	_, ok := tr.Query(pk)
	assert.False(t, ok, "unknown primary key must not be found")

	tr.Update(pk, val)
	got, ok := tr.Query(pk)
	assert.True(t, ok)
	assert.Equal(t, val, got)
}

func TestTrackerUpdateReplacesPreviousValue(t *testing.T) {
	tr := NewTracker(10)
	pk := keyOf("uid-1")
	tr.Update(pk, keyOf("state-fg"))
	tr.Update(pk, keyOf("state-bg"))

	got, ok := tr.Query(pk)
	assert.True(t, ok)
	assert.Equal(t, keyOf("state-bg"), got)
}

func TestTrackerClearRemovesEntry(t *testing.T) {
	tr := NewTracker(10)
	pk := keyOf("uid-1")
	tr.Update(pk, keyOf("state-fg"))
	tr.Clear(pk)

	_, ok := tr.Query(pk)
	assert.False(t, ok)
}

func TestTrackerDistinctPrimaryKeysIndependent(t *testing.T) {
	tr := NewTracker(10)
	tr.Update(keyOf("uid-1"), keyOf("state-fg"))
	tr.Update(keyOf("uid-2"), keyOf("state-bg"))

	v1, ok1 := tr.Query(keyOf("uid-1"))
	v2, ok2 := tr.Query(keyOf("uid-2"))
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, keyOf("state-fg"), v1)
	assert.Equal(t, keyOf("state-bg"), v2)
}

func TestTrackerUpdateFromAtomDelegatesToUpdate(t *testing.T) {
	tr := NewTracker(10)
	pk := keyOf("uid-1")
	val := keyOf("state-fg")
	tr.UpdateFromAtom(field.Atom{Tag: 10}, pk, val)

	got, ok := tr.Query(pk)
	assert.True(t, ok)
	assert.Equal(t, val, got)
}
