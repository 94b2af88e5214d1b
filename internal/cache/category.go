package cache

import "github.com/statinf-otawa/otawa-sub004/internal/cfg"

// CategoryKind is the classification of a cache access after
// abstract-interpretation analysis (spec.md §3 Category).
type CategoryKind int

const (
	AlwaysHit CategoryKind = iota
	AlwaysMiss
	FirstMiss
	FirstHit
	NotClassified
)

func (k CategoryKind) String() string {
	switch k {
	case AlwaysHit:
		return "ALWAYS_HIT"
	case AlwaysMiss:
		return "ALWAYS_MISS"
	case FirstMiss:
		return "FIRST_MISS"
	case FirstHit:
		return "FIRST_HIT"
	default:
		return "NOT_CLASSIFIED"
	}
}

// Category is a classified cache access. Header is only meaningful for
// FirstMiss: it names the loop at whose entry the single miss is
// charged.
type Category struct {
	Kind   CategoryKind
	Header cfg.BlockID
}
