// Package scope implements set operations over scopes. A scope is a set of
// theme topic ids; the empty scope is the unconstrained scope.
package scope

import (
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/roaring64"
)

// Set is an immutable-by-convention set of theme ids.
type Set struct {
	bm *roaring64.Bitmap
}

// Of builds a Set from theme ids. Duplicates collapse.
func Of(themes ...int64) Set {
	bm := roaring64.New()
	for _, t := range themes {
		bm.Add(uint64(t))
	}
	return Set{bm: bm}
}

func (s Set) bitmap() *roaring64.Bitmap {
	if s.bm == nil {
		return roaring64.New()
	}
	return s.bm
}

// Themes returns the theme ids in ascending order.
func (s Set) Themes() []int64 {
	if s.bm == nil {
		return nil
	}
	out := make([]int64, 0, s.bm.GetCardinality())
	it := s.bm.Iterator()
	for it.HasNext() {
		out = append(out, int64(it.Next()))
	}
	return out
}

// Len returns the number of themes.
func (s Set) Len() int {
	if s.bm == nil {
		return 0
	}
	return int(s.bm.GetCardinality())
}

// IsUnconstrained reports whether s is the empty scope.
func (s Set) IsUnconstrained() bool { return s.Len() == 0 }

// Contains reports whether theme is in s.
func (s Set) Contains(theme int64) bool {
	return s.bm != nil && s.bm.Contains(uint64(theme))
}

// Union returns s ∪ o.
func (s Set) Union(o Set) Set {
	return Set{bm: roaring64.Or(s.bitmap(), o.bitmap())}
}

// Without returns s with theme removed.
func (s Set) Without(theme int64) Set {
	bm := s.bitmap().Clone()
	bm.Remove(uint64(theme))
	return Set{bm: bm}
}

// Equal reports whether s and o contain the same themes.
func (s Set) Equal(o Set) bool {
	return s.bitmap().Equals(o.bitmap())
}

// IsSupersetOf reports whether every theme of o is in s.
func (s Set) IsSupersetOf(o Set) bool {
	if o.Len() == 0 {
		return true
	}
	return roaring64.AndNot(o.bitmap(), s.bitmap()).IsEmpty()
}

// IsTrueSuperset reports whether candidate contains every theme of reference
// and at least one more. Variant scopes must be true supersets of the scope
// of their parent name.
func IsTrueSuperset(candidate, reference Set) bool {
	return candidate.Len() > reference.Len() && candidate.IsSupersetOf(reference)
}

// Key returns a canonical string form of s, suitable as a map key or as
// input to a digest. The unconstrained scope has the empty key.
func (s Set) Key() string {
	themes := s.Themes()
	parts := make([]string, len(themes))
	for i, t := range themes {
		parts[i] = strconv.FormatInt(t, 10)
	}
	return strings.Join(parts, ",")
}
