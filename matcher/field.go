// Package matcher implements field extraction under matcher-field lists
// (§4.1) and atom matching against configuration-level matchers (§4.2).
package matcher

import (
	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

// Position selects which occurrence(s) of a field a Field matcher extracts.
type Position int

const (
	EXACT Position = iota
	FIRST
	LAST
	ANY
	ALL
)

// Field is a (root tag, field path, position selector) tuple used both to
// test presence and to extract dimensional/value fields from an atom.
type Field struct {
	RootTag  int32
	Tags     []int32
	Position Position
	// ExactPos is only meaningful when Position == EXACT.
	ExactPos int
}

// Extract applies a single Field matcher to an atom, returning the matched
// value(s). EXACT/FIRST/LAST return at most one value; ALL may return many.
// A failed EXACT/FIRST/LAST/ANY lookup returns ok=false.
func (f Field) Extract(a field.Atom) (values []field.Value, ok bool) {
	if a.Tag != f.RootTag {
		return nil, false
	}
	switch f.Position {
	case EXACT:
		v, found := a.FindExact(field.Path{Tags: f.Tags, Position: field.NewPosition(f.ExactPos)})
		if !found {
			return nil, false
		}
		return []field.Value{v}, true
	case FIRST:
		v, found := a.FindFirst(f.Tags)
		if !found {
			return nil, false
		}
		return []field.Value{v.Mask()}, true
	case LAST:
		v, found := a.FindLast(f.Tags)
		if !found {
			return nil, false
		}
		return []field.Value{v.Mask()}, true
	case ANY:
		all := a.FindAll(f.Tags)
		if len(all) == 0 {
			return nil, false
		}
		return []field.Value{all[0].Mask()}, true
	case ALL:
		all := a.FindAll(f.Tags)
		if len(all) == 0 {
			return nil, false
		}
		out := make([]field.Value, len(all))
		for i, v := range all {
			out[i] = v.Mask()
		}
		return out, true
	default:
		return nil, false
	}
}

// FilterDimension walks matcherFields in order building a dimension key.
// The filter fails as a unit: a partial match produces no key (ok=false).
// Referentially transparent: filtering the same atom with the same matcher
// list twice yields equal keys (§8 property: filter(M, filter(M,A)) =
// filter(M,A) — since filtering never mutates the atom, this holds
// trivially and is asserted in field_test.go).
func FilterDimension(matcherFields []Field, a field.Atom) (dimension.Key, bool) {
	var key dimension.Key
	for _, mf := range matcherFields {
		vals, ok := mf.Extract(a)
		if !ok {
			return dimension.Key{}, false
		}
		key.Values = append(key.Values, vals...)
	}
	return key, true
}

// FilterDimensionAndValues is the two-list form: dimMatchers slice out the
// dimension key, valueMatchers additionally report which indices of the
// resulting extraction correspond to aggregation value fields (used by
// producers needing both slicing and aggregation fields from one atom).
func FilterDimensionAndValues(dimMatchers, valueMatchers []Field, a field.Atom) (key dimension.Key, valueIndices []int, ok bool) {
	key, ok = FilterDimension(dimMatchers, a)
	if !ok {
		return dimension.Key{}, nil, false
	}
	for _, vm := range valueMatchers {
		vals, vok := vm.Extract(a)
		if !vok {
			return dimension.Key{}, nil, false
		}
		for _, v := range vals {
			idx := indexOfValue(key, v)
			if idx < 0 {
				idx = len(key.Values)
				key.Values = append(key.Values, v)
			}
			valueIndices = append(valueIndices, idx)
		}
	}
	return key, valueIndices, true
}

func indexOfValue(key dimension.Key, v field.Value) int {
	for i, existing := range key.Values {
		if existing.Equal(v) {
			return i
		}
	}
	return -1
}

// FilterPrimaryKey extracts a HashableDimensionKey from a state atom's
// values using an implicit "all fields are primary key fields" convention
// (filterPrimaryKey), used when a slicing state's primary key is simply its
// full declared field set.
func FilterPrimaryKey(matcherFields []Field, a field.Atom) (dimension.Key, bool) {
	return FilterDimension(matcherFields, a)
}

// FilterGaugeValues is a non-mutating snapshot extraction: unlike
// FilterDimension, occurrences are not masked, since gauge sampling wants
// the exact positional value observed, not a collapsed dimension.
func FilterGaugeValues(matcherFields []Field, a field.Atom) []field.Value {
	var out []field.Value
	for _, mf := range matcherFields {
		if a.Tag != mf.RootTag {
			continue
		}
		switch mf.Position {
		case EXACT:
			if v, ok := a.FindExact(field.Path{Tags: mf.Tags, Position: field.NewPosition(mf.ExactPos)}); ok {
				out = append(out, v)
			}
		case FIRST:
			if v, ok := a.FindFirst(mf.Tags); ok {
				out = append(out, v)
			}
		case LAST:
			if v, ok := a.FindLast(mf.Tags); ok {
				out = append(out, v)
			}
		case ANY, ALL:
			out = append(out, a.FindAll(mf.Tags)...)
		}
	}
	return out
}
