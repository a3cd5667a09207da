// Package state maintains the current value of each "slicing state" atom,
// queryable by primary key (§4, State tracker).
package state

import (
	"sync"

	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

// Tracker holds the latest observed value-fields for every state atom
// primary key seen for one declared slicing state.
type Tracker struct {
	AtomID int32

	mu      sync.RWMutex
	current map[uint64]dimension.Key // primary key hash -> value fields
	keys    map[uint64]dimension.Key // primary key hash -> primary key
}

func NewTracker(atomID int32) *Tracker {
	return &Tracker{
		AtomID:  atomID,
		current: map[uint64]dimension.Key{},
		keys:    map[uint64]dimension.Key{},
	}
}

// Update records a new value for the given primary key, replacing any
// previous value (state atoms are treated as full replacements, not
// deltas).
func (t *Tracker) Update(primaryKey, values dimension.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := primaryKey.Hash()
	t.current[h] = values
	t.keys[h] = primaryKey
}

// Clear removes a state entirely (e.g. an atom's "reset" or "cleared"
// variant reaching this state atom).
func (t *Tracker) Clear(primaryKey dimension.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := primaryKey.Hash()
	delete(t.current, h)
	delete(t.keys, h)
}

// Query returns the current value-fields for the given primary key.
func (t *Tracker) Query(primaryKey dimension.Key) (dimension.Key, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.current[primaryKey.Hash()]
	return v, ok
}

// UpdateFromAtom takes an already-extracted primary key and values and
// calls Update; the atom argument is not read.
func (t *Tracker) UpdateFromAtom(_ field.Atom, primaryKey, values dimension.Key) {
	t.Update(primaryKey, values)
}
