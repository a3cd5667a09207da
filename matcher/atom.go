package matcher

import "github.com/WingsOS/android-packages-modules-StatsD/field"

// BoolOp is the combinator kind for a Combinational matcher.
type BoolOp int

const (
	OpAnd BoolOp = iota
	OpOr
	OpNot
)

// EqualityTest is a single field-path/value-equality test that makes up a
// Simple matcher's conjunction.
type EqualityTest struct {
	Field Field
	// Want is compared against the extracted value's scalar payload; a
	// nil Want means "field present" with no value constraint.
	Want *field.Value
}

// Transform rewrites a matched atom before it reaches downstream
// components — e.g. truncating an attribution chain to its first uid.
type Transform func(field.Atom) field.Atom

// Kind tags the AtomMatcher union member, per DESIGN NOTES §9's guidance to
// use tagged sums instead of an interface hierarchy for these shallow
// variant families.
type Kind int

const (
	KindSimple Kind = iota
	KindCombinational
)

// Simple is a conjunction of field-path/value-equality tests plus an
// optional atom transform (§4.2).
type Simple struct {
	Tests     []EqualityTest
	Transform Transform
}

func (s Simple) Matches(a field.Atom) (field.Atom, bool) {
	for _, t := range s.Tests {
		vals, ok := t.Field.Extract(a)
		if !ok || len(vals) == 0 {
			return field.Atom{}, false
		}
		if t.Want != nil {
			want := *t.Want
			want.Path = vals[0].Path // compare the payload only
			if !vals[0].Equal(want) {
				return field.Atom{}, false
			}
		}
	}
	out := a
	if s.Transform != nil {
		out = s.Transform(a)
	}
	return out, true
}

// Combinational combines child matcher indices with AND/OR/NOT (§4.2).
type Combinational struct {
	Op       BoolOp
	Children []int
}

// AtomMatcher is one configured matcher entry: either Simple or
// Combinational, selected by Kind.
type AtomMatcher struct {
	Kind          Kind
	Simple        Simple
	Combinational Combinational
}

// tri is the matcher cache tri-state: not-computed / matched / not-matched.
type tri int

const (
	triNotComputed tri = iota
	triMatched
	triNotMatched
)

// Dispatcher holds the compiled matcher list plus a tag id -> interested
// matcher indices map, so atoms whose tag is absent are discarded in O(1)
// (§4.2 "The dispatcher holds a map...").
type Dispatcher struct {
	Matchers []AtomMatcher
	byTag    map[int32][]int
	anyTag   []int // Simple matchers with no tests, offered every atom
}

// NewDispatcher compiles the tag-id interest map from a matcher list. A
// Simple matcher is interested in the root tags of its tests; one with no
// tests matches any atom and is offered every atom. A Combinational matcher
// is interested in the union of its children's tags (computed transitively).
func NewDispatcher(matchers []AtomMatcher) *Dispatcher {
	d := &Dispatcher{Matchers: matchers, byTag: map[int32][]int{}}
	tags := make([]map[int32]bool, len(matchers))
	var resolve func(i int) map[int32]bool
	resolve = func(i int) map[int32]bool {
		if tags[i] != nil {
			return tags[i]
		}
		set := map[int32]bool{}
		tags[i] = set // break cycles defensively; malformed config shouldn't cycle
		m := matchers[i]
		if m.Kind == KindSimple {
			for _, t := range m.Simple.Tests {
				set[t.Field.RootTag] = true
			}
		} else {
			for _, c := range m.Combinational.Children {
				if c < 0 || c >= len(matchers) {
					continue
				}
				for tag := range resolve(c) {
					set[tag] = true
				}
			}
		}
		return set
	}
	for i := range matchers {
		if matchers[i].Kind == KindSimple && len(matchers[i].Simple.Tests) == 0 {
			d.anyTag = append(d.anyTag, i)
		}
		for tag := range resolve(i) {
			d.byTag[tag] = append(d.byTag[tag], i)
		}
	}
	return d
}

// Evaluate returns, for the given atom, the set of matcher indices that
// matched, plus the possibly-transformed atom each matcher observed.
// Combinational matchers are evaluated recursive-iteratively with the tri
// state cache memoized within this single call (§4.2).
func (d *Dispatcher) Evaluate(a field.Atom) (matched map[int]bool, transformed map[int]field.Atom) {
	interested := d.byTag[a.Tag]
	if len(d.anyTag) > 0 {
		interested = append(append([]int(nil), interested...), d.anyTag...)
	}
	if len(interested) == 0 {
		return nil, nil
	}
	cache := make([]tri, len(d.Matchers))
	transformedAtoms := make(map[int]field.Atom)

	var eval func(i int) bool
	eval = func(i int) bool {
		if cache[i] != triNotComputed {
			return cache[i] == triMatched
		}
		m := d.Matchers[i]
		var result bool
		switch m.Kind {
		case KindSimple:
			out, ok := m.Simple.Matches(a)
			if ok {
				transformedAtoms[i] = out
			}
			result = ok
		case KindCombinational:
			result = evalCombinational(m.Combinational, eval)
		}
		if result {
			cache[i] = triMatched
		} else {
			cache[i] = triNotMatched
		}
		return result
	}

	matched = map[int]bool{}
	for _, i := range interested {
		if eval(i) {
			matched[i] = true
		}
	}
	return matched, transformedAtoms
}

func evalCombinational(c Combinational, eval func(int) bool) bool {
	switch c.Op {
	case OpAnd:
		for _, ch := range c.Children {
			if !eval(ch) {
				return false
			}
		}
		return true
	case OpOr:
		for _, ch := range c.Children {
			if eval(ch) {
				return true
			}
		}
		return false
	case OpNot:
		if len(c.Children) != 1 {
			return false
		}
		return !eval(c.Children[0])
	default:
		return false
	}
}
