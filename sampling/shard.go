// Package sampling implements the deterministic dimension sampler of §4.8:
// a stable, cheap cardinality reduction applied before the hard-dimension
// guardrail.
package sampling

import (
	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
)

// Shard configures a deterministic dimension sampler: compute a 32-bit hash
// of the would-be dimension key, add a per-host shard offset, take modulo
// ShardCount, and admit the dimension iff the residue is zero.
type Shard struct {
	ShardCount  uint32
	ShardOffset uint32
}

// Admit reports whether key should be admitted under this shard's sampling
// policy. A zero ShardCount disables sampling (always admits).
func (s Shard) Admit(key dimension.Key) bool {
	if s.ShardCount == 0 {
		return true
	}
	h := hash32(key)
	residue := (h + s.ShardOffset) % s.ShardCount
	return residue == 0
}

func hash32(key dimension.Key) uint32 {
	full := key.Hash()
	return uint32(full) ^ uint32(full>>32)
}

// ShardOffsetProvider is the injectable dependency named in DESIGN NOTES §9
// (per-process shard offset, overridable in tests).
type ShardOffsetProvider interface {
	ShardOffset() uint32
}

// ProcessShardOffsetProvider is the default production implementation: a
// fixed offset derived once from the process's host identity. Callers that
// need "stable coverage across reboots" per §4.8 should construct this from
// a persistent host id, not a random value.
type ProcessShardOffsetProvider struct {
	Offset uint32
}

func (p ProcessShardOffsetProvider) ShardOffset() uint32 { return p.Offset }
