package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

func wantVal(i int32) *field.Value {
	v := field.Value{Kind: field.KindInt32, Int32: i}
	return &v
}

func TestSimpleMatcherConjunction(t *testing.T) {
	s := Simple{Tests: []EqualityTest{
		{Field: Field{RootTag: 1, Tags: []int32{2}, Position: FIRST}, Want: wantVal(5)},
	}}
	matchAtom := field.Atom{Tag: 1, Values: []field.Value{{Path: field.Path{Tags: []int32{2}}, Kind: field.KindInt32, Int32: 5}}}
	noMatchAtom := field.Atom{Tag: 1, Values: []field.Value{{Path: field.Path{Tags: []int32{2}}, Kind: field.KindInt32, Int32: 6}}}

	_, ok := s.Matches(matchAtom)
	assert.True(t, ok)
	_, ok = s.Matches(noMatchAtom)
	assert.False(t, ok)
}

func TestSimpleMatcherTransform(t *testing.T) {
	s := Simple{
		Tests: []EqualityTest{{Field: Field{RootTag: 1, Tags: []int32{2}, Position: FIRST}}},
		Transform: func(a field.Atom) field.Atom {
			a.SourceUID = 42
			return a
		},
	}
	out, ok := s.Matches(field.Atom{Tag: 1, Values: []field.Value{{Path: field.Path{Tags: []int32{2}}, Kind: field.KindInt32}}})
	require.True(t, ok)
	assert.Equal(t, int64(42), out.SourceUID)
}

func TestDispatcherOnlyEvaluatesInterestedMatchers(t *testing.T) {
	matchers := []AtomMatcher{
		{Kind: KindSimple, Simple: Simple{Tests: []EqualityTest{{Field: Field{RootTag: 1, Tags: []int32{2}, Position: FIRST}}}}},
	}
	d := NewDispatcher(matchers)
	matched, _ := d.Evaluate(field.Atom{Tag: 99}) // no matcher interested in tag 99
	assert.Nil(t, matched)
}

func TestDispatcherAndOrNot(t *testing.T) {
	matchers := []AtomMatcher{
		{Kind: KindSimple, Simple: Simple{Tests: []EqualityTest{{Field: Field{RootTag: 1, Tags: []int32{2}, Position: FIRST}, Want: wantVal(1)}}}}, // 0
		{Kind: KindSimple, Simple: Simple{Tests: []EqualityTest{{Field: Field{RootTag: 1, Tags: []int32{3}, Position: FIRST}, Want: wantVal(2)}}}}, // 1
		{Kind: KindCombinational, Combinational: Combinational{Op: OpAnd, Children: []int{0, 1}}},                                                  // 2
		{Kind: KindCombinational, Combinational: Combinational{Op: OpOr, Children: []int{0, 1}}},                                                   // 3
		{Kind: KindCombinational, Combinational: Combinational{Op: OpNot, Children: []int{0}}},                                                     // 4
	}
	d := NewDispatcher(matchers)

	both := field.Atom{Tag: 1, Values: []field.Value{
		{Path: field.Path{Tags: []int32{2}}, Kind: field.KindInt32, Int32: 1},
		{Path: field.Path{Tags: []int32{3}}, Kind: field.KindInt32, Int32: 2},
	}}
	matched, _ := d.Evaluate(both)
	assert.True(t, matched[2], "AND should match when both children match")
	assert.True(t, matched[3], "OR should match when either child matches")
	assert.False(t, matched[4], "NOT of a matching child should not match")

	onlyFirst := field.Atom{Tag: 1, Values: []field.Value{{Path: field.Path{Tags: []int32{2}}, Kind: field.KindInt32, Int32: 1}}}
	matched, _ = d.Evaluate(onlyFirst)
	assert.False(t, matched[2])
	assert.True(t, matched[3])
}

func TestDispatcherCombinationalTagUnion(t *testing.T) {
	matchers := []AtomMatcher{
		{Kind: KindSimple, Simple: Simple{Tests: []EqualityTest{{Field: Field{RootTag: 7, Tags: []int32{1}, Position: FIRST}}}}},
		{Kind: KindCombinational, Combinational: Combinational{Op: OpOr, Children: []int{0}}},
	}
	d := NewDispatcher(matchers)
	matched, _ := d.Evaluate(field.Atom{Tag: 7, Values: []field.Value{{Path: field.Path{Tags: []int32{1}}, Kind: field.KindInt32}}})
	assert.True(t, matched[0])
	assert.True(t, matched[1], "combinational interest should transitively include child tags")
}
