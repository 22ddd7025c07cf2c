package tensor

import (
	"fmt"
	"strings"
)

// UnknownDim marks a dimension whose size is not known statically.
const UnknownDim int64 = -1

// PartialShape is statically known shape metadata. When UnknownRank is set
// Dims is meaningless; otherwise a negative entry is an unknown dimension.
type PartialShape struct {
	Dims        []int64
	UnknownRank bool
}

// KnownShape returns a fully defined PartialShape.
func KnownShape(dims ...int64) PartialShape {
	return PartialShape{Dims: cloneShape(dims)}
}

func UnknownRankShape() PartialShape { return PartialShape{UnknownRank: true} }

func (p PartialShape) RankKnown() bool { return !p.UnknownRank }

// IsFullyDefined reports whether the rank and every dimension are known.
func (p PartialShape) IsFullyDefined() bool {
	if p.UnknownRank {
		return false
	}
	for _, d := range p.Dims {
		if d < 0 {
			return false
		}
	}
	return true
}

func (p PartialShape) Equal(o PartialShape) bool {
	if p.UnknownRank || o.UnknownRank {
		return p.UnknownRank == o.UnknownRank
	}
	if len(p.Dims) != len(o.Dims) {
		return false
	}
	for i := range p.Dims {
		if p.Dims[i] != o.Dims[i] {
			return false
		}
	}
	return true
}

func (p PartialShape) String() string {
	if p.UnknownRank {
		return "<unknown>"
	}
	parts := make([]string, len(p.Dims))
	for i, d := range p.Dims {
		if d < 0 {
			parts[i] = "?"
		} else {
			parts[i] = fmt.Sprint(d)
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}
