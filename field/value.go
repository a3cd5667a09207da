// Package field implements the tagged scalar and field-path types that make
// up an atom, per the DATA MODEL section of the spec.
package field

import "fmt"

// Kind tags the scalar type carried by a Value.
type Kind uint8

const (
	KindInt32 Kind = iota
	KindInt64
	KindFloat
	KindString
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// positionMask marks the low 7 bits of a position byte as the index; the
// high bit means "positional identity is semantically irrelevant", set by
// matchers using FIRST/LAST/ANY/ALL (§3 DATA MODEL, Field value).
const (
	positionIndexMask  = 0x7f
	positionIgnoreFlag = 0x80
)

// Position is the packed leaf position: a 7-bit index plus the
// "irrelevant" flag.
type Position uint8

func NewPosition(index int) Position {
	return Position(index & positionIndexMask)
}

func (p Position) Index() int {
	return int(p) & positionIndexMask
}

func (p Position) Ignored() bool {
	return p&positionIgnoreFlag != 0
}

// Masked returns the position with the "irrelevant" bit set, collapsing two
// values that differ only in attribution-chain slot into the same key.
func (p Position) Masked() Position {
	return p | positionIgnoreFlag
}

// Path is a packed address of ancestor tag ids plus the leaf Position.
type Path struct {
	Tags     []int32
	Position Position
}

// Equal compares two paths using the masked position, so "uid at position 5"
// and "uid at position 6" collapse when either side was already masked by a
// FIRST/LAST/ANY/ALL matcher.
func (p Path) Equal(o Path) bool {
	if len(p.Tags) != len(o.Tags) {
		return false
	}
	for i := range p.Tags {
		if p.Tags[i] != o.Tags[i] {
			return false
		}
	}
	return sameIndexOrIgnored(p.Position, o.Position)
}

func sameIndexOrIgnored(a, b Position) bool {
	if a.Ignored() || b.Ignored() {
		return true
	}
	return a.Index() == b.Index()
}

// Value is a tagged scalar carried at a specific Path within an atom.
type Value struct {
	Path   Path
	Kind   Kind
	Int32  int32
	Int64  int64
	Float  float64
	Str    string
	Blob   []byte
}

// Mask returns a copy of v with its path position's "irrelevant" bit set.
// Used by FIRST/LAST/ANY/ALL matchers per §4.1.
func (v Value) Mask() Value {
	v.Path.Position = v.Path.Position.Masked()
	return v
}

// Equal reports whether two values are equal after position masking, as
// required by the DATA MODEL invariant on dimension key equality. A masked
// and an unmasked value never compare equal, matching dimension.Key.Hash.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	if !v.pathEqualMasked(o) {
		return false
	}
	switch v.Kind {
	case KindInt32:
		return v.Int32 == o.Int32
	case KindInt64:
		return v.Int64 == o.Int64
	case KindFloat:
		return v.Float == o.Float
	case KindString:
		return v.Str == o.Str
	case KindBlob:
		return string(v.Blob) == string(o.Blob)
	default:
		return false
	}
}

func (v Value) pathEqualMasked(o Value) bool {
	a, b := v.Path, o.Path
	if len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	if a.Position.Ignored() != b.Position.Ignored() {
		return false
	}
	return sameIndexOrIgnored(a.Position, b.Position)
}

// String renders a Value for debug logging.
func (v Value) String() string {
	switch v.Kind {
	case KindInt32:
		return fmt.Sprintf("i32:%d", v.Int32)
	case KindInt64:
		return fmt.Sprintf("i64:%d", v.Int64)
	case KindFloat:
		return fmt.Sprintf("f:%v", v.Float)
	case KindString:
		return fmt.Sprintf("s:%q", v.Str)
	case KindBlob:
		return fmt.Sprintf("b:%x", v.Blob)
	default:
		return "?"
	}
}

// AsFloat64 coerces numeric kinds to float64, used by gauge/duration value
// extraction. Returns false for string/blob kinds.
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindInt32:
		return float64(v.Int32), true
	case KindInt64:
		return float64(v.Int64), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}
