// Package dimension implements dimension key identity and hashing, plus the
// Metric2Condition/Metric2State link resolution used to translate between a
// metric's "what" dimension and a condition's or state atom's dimension.
//
// Grounded on original_source/statsd/src/HashableDimensionKey.h.
package dimension

import (
	"hash"
	"hash/fnv"
	"sort"

	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

// Key is an ordered sequence of field values. Equality is by sequence
// equality of the masked values (HashableDimensionKey).
type Key struct {
	Values []field.Value
}

// Equal reports whether two dimension keys are equal field-by-field after
// position masking.
func (k Key) Equal(o Key) bool {
	if len(k.Values) != len(o.Values) {
		return false
	}
	for i := range k.Values {
		if !k.Values[i].Equal(o.Values[i]) {
			return false
		}
	}
	return true
}

// Hash returns a stable hash of the key, equal for keys that compare Equal.
// Unlike hash/maphash (randomly seeded per process), FNV-1a's offset basis
// is a fixed constant, so the same key hashes to the same value across
// process restarts — required by §4.8's "gives stable coverage across
// reboots" for the deterministic dimension sampler built on top of this.
func (k Key) Hash() uint64 {
	h := fnv.New64a()
	for _, v := range k.Values {
		writeValue(h, v)
	}
	return h.Sum64()
}

func writeValue(h hash.Hash64, v field.Value) {
	// Position is written after masking-insensitive normalization: an
	// ignored position contributes a constant marker instead of its index,
	// so two values differing only in attribution-chain slot hash equal.
	for _, t := range v.Path.Tags {
		var b [4]byte
		putInt32(b[:], t)
		h.Write(b[:])
	}
	if v.Path.Position.Ignored() {
		h.Write([]byte{0xff})
	} else {
		h.Write([]byte{byte(v.Path.Position.Index())})
	}
	h.Write([]byte{byte(v.Kind)})
	switch v.Kind {
	case field.KindInt32:
		var b [4]byte
		putInt32(b[:], v.Int32)
		h.Write(b[:])
	case field.KindInt64:
		var b [8]byte
		putInt64(b[:], v.Int64)
		h.Write(b[:])
	case field.KindFloat:
		var b [8]byte
		putInt64(b[:], int64(v.Float))
		h.Write(b[:])
	case field.KindString:
		h.Write([]byte(v.Str))
	case field.KindBlob:
		h.Write(v.Blob)
	}
}

func putInt32(b []byte, v int32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putInt64(b []byte, v int64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Contains reports whether every value in that is present in k (used for
// state primary-key subset checks).
func (k Key) Contains(that Key) bool {
	for _, want := range that.Values {
		found := false
		for _, have := range k.Values {
			if have.Equal(want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MetricKey pairs a "what" dimension key with the vector of current values
// of the metric's slicing states (MetricDimensionKey).
type MetricKey struct {
	What        Key
	StateValues Key
}

// Equal compares both halves of a MetricKey.
func (m MetricKey) Equal(o MetricKey) bool {
	return m.What.Equal(o.What) && m.StateValues.Equal(o.StateValues)
}

// Hash combines the hash of both halves the way the original mixes
// JenkinsHash(what) with JenkinsHash(stateValues).
func (m MetricKey) Hash() uint64 {
	h1 := m.What.Hash()
	h2 := m.StateValues.Hash()
	return mix(h1, h2)
}

func mix(a, b uint64) uint64 {
	a ^= b + 0x9e3779b97f4a7c15 + (a << 6) + (a >> 2)
	return a
}

// HasStateValues reports whether the state-values half carries any fields.
func (m MetricKey) HasStateValues() bool {
	return len(m.StateValues.Values) > 0
}

// AtomKey pairs an atom tag id with a dimension key extracted from that
// atom's fields (AtomDimensionKey); used by gauge/event producers that key
// samples by which atom produced them.
type AtomKey struct {
	AtomTag int32
	Fields  Key
}

func (a AtomKey) Equal(o AtomKey) bool {
	return a.AtomTag == o.AtomTag && a.Fields.Equal(o.Fields)
}

func (a AtomKey) Hash() uint64 {
	h := fnv.New64a()
	var b [4]byte
	putInt32(b[:], a.AtomTag)
	h.Write(b[:])
	return mix(h.Sum64(), a.Fields.Hash())
}

// SortByHash orders keys by hash, used only for deterministic report
// ordering (round-trip byte-identical serialization, §8).
func SortByHash(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Hash() < keys[j].Hash() })
}
