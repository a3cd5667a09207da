package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

func atomWithChain(uids ...int32) field.Atom {
	var vals []field.Value
	for i, uid := range uids {
		vals = append(vals, field.Value{
			Path: field.Path{Tags: []int32{2}, Position: field.NewPosition(i)},
			Kind: field.KindInt32, Int32: uid,
		})
	}
	return field.Atom{Tag: 1, Values: vals}
}

func TestFieldExtractFirstLastAll(t *testing.T) {
	a := atomWithChain(10, 20, 30)

	first := Field{RootTag: 1, Tags: []int32{2}, Position: FIRST}
	v, ok := first.Extract(a)
	require.True(t, ok)
	assert.Equal(t, int32(10), v[0].Int32)
	assert.True(t, v[0].Path.Position.Ignored())

	last := Field{RootTag: 1, Tags: []int32{2}, Position: LAST}
	v, ok = last.Extract(a)
	require.True(t, ok)
	assert.Equal(t, int32(30), v[0].Int32)

	all := Field{RootTag: 1, Tags: []int32{2}, Position: ALL}
	v, ok = all.Extract(a)
	require.True(t, ok)
	assert.Len(t, v, 3)
}

func TestFieldExtractExact(t *testing.T) {
	a := atomWithChain(10, 20, 30)
	exact := Field{RootTag: 1, Tags: []int32{2}, Position: EXACT, ExactPos: 1}
	v, ok := exact.Extract(a)
	require.True(t, ok)
	assert.Equal(t, int32(20), v[0].Int32)
}

func TestFieldExtractWrongRootTagFails(t *testing.T) {
	a := atomWithChain(10)
	f := Field{RootTag: 99, Tags: []int32{2}, Position: FIRST}
	_, ok := f.Extract(a)
	assert.False(t, ok)
}

func TestFilterDimensionFailsAsAUnit(t *testing.T) {
	a := atomWithChain(10)
	fields := []Field{
		{RootTag: 1, Tags: []int32{2}, Position: FIRST},
		{RootTag: 1, Tags: []int32{999}, Position: FIRST}, // absent
	}
	_, ok := FilterDimension(fields, a)
	assert.False(t, ok, "a partial match must produce no key at all")
}

func TestFilterDimensionIdempotent(t *testing.T) {
	a := atomWithChain(10, 20)
	fields := []Field{{RootTag: 1, Tags: []int32{2}, Position: ALL}}
	k1, ok1 := FilterDimension(fields, a)
	k2, ok2 := FilterDimension(fields, a)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.True(t, k1.Equal(k2))
}

func TestFilterDimensionAndValues(t *testing.T) {
	a := field.Atom{Tag: 1, Values: []field.Value{
		{Path: field.Path{Tags: []int32{2}, Position: field.NewPosition(0)}, Kind: field.KindString, Str: "app"},
		{Path: field.Path{Tags: []int32{3}, Position: field.NewPosition(0)}, Kind: field.KindInt64, Int64: 99},
	}}
	dimFields := []Field{{RootTag: 1, Tags: []int32{2}, Position: EXACT, ExactPos: 0}}
	valFields := []Field{{RootTag: 1, Tags: []int32{3}, Position: EXACT, ExactPos: 0}}

	key, idx, ok := FilterDimensionAndValues(dimFields, valFields, a)
	require.True(t, ok)
	require.Len(t, key.Values, 2)
	require.Len(t, idx, 1)
	assert.Equal(t, int64(99), key.Values[idx[0]].Int64)
}

func TestFilterGaugeValuesDoesNotMask(t *testing.T) {
	a := atomWithChain(10, 20)
	out := FilterGaugeValues([]Field{{RootTag: 1, Tags: []int32{2}, Position: LAST}}, a)
	require.Len(t, out, 1)
	assert.False(t, out[0].Path.Position.Ignored(), "gauge value extraction keeps the exact positional identity")
}
