package field

import "time"

// Atom is an ordered sequence of field values with a common root tag id, a
// source uid, and an elapsed-time timestamp. Atoms are immutable after
// construction (§3 DATA MODEL, Atom).
//
// Generalizes the teacher's Metric struct (metric.go), which carried a
// single (timestamp, series, value) tuple; here the payload is an arbitrary
// field vector so a matcher can extract whichever subset it declares.
type Atom struct {
	Tag       int32
	SourceUID int64
	ElapsedNs int64
	Values    []Value
}

// Timestamp converts ElapsedNs to a time.Time relative to the unix epoch,
// for callers that need to compare against wall-clock bucket boundaries.
func (a Atom) Timestamp() time.Time {
	return time.Unix(0, a.ElapsedNs)
}

// find returns the first value whose Path.Tags matches tags (ignoring
// position), or the last such value when first is false.
func (a Atom) find(tags []int32, first bool) (Value, bool) {
	var found Value
	ok := false
	for _, v := range a.Values {
		if !tagsEqual(v.Path.Tags, tags) {
			continue
		}
		found = v
		ok = true
		if first {
			return found, true
		}
	}
	return found, ok
}

// FindFirst returns the first occurrence of a field at the given ancestor
// tag path, ignoring position.
func (a Atom) FindFirst(tags []int32) (Value, bool) {
	return a.find(tags, true)
}

// FindLast returns the last occurrence of a field at the given ancestor tag
// path, ignoring position.
func (a Atom) FindLast(tags []int32) (Value, bool) {
	var last Value
	ok := false
	for _, v := range a.Values {
		if tagsEqual(v.Path.Tags, tags) {
			last = v
			ok = true
		}
	}
	return last, ok
}

// FindAll returns every occurrence of a field at the given ancestor tag
// path, in atom order.
func (a Atom) FindAll(tags []int32) []Value {
	var out []Value
	for _, v := range a.Values {
		if tagsEqual(v.Path.Tags, tags) {
			out = append(out, v)
		}
	}
	return out
}

// FindExact returns the value at the exact field path (tags + position
// index), or false if absent.
func (a Atom) FindExact(path Path) (Value, bool) {
	for _, v := range a.Values {
		if tagsEqual(v.Path.Tags, path.Tags) && v.Path.Position.Index() == path.Position.Index() {
			return v, true
		}
	}
	return Value{}, false
}

func tagsEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
