package verify

import (
	"context"

	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// Category is the three-way comparison of a source copy, a preserved copy
// and the recorded digests.
type Category string

const (
	// CategoryConsistent means every reachable copy matches the record.
	CategoryConsistent Category = "CONSISTENT"

	// CategorySourceModified means the preserved copy matches the record
	// but the source has changed since.
	CategorySourceModified Category = "SOURCE_MODIFIED"

	// CategoryDestCorrupted means the source still matches the record but
	// the preserved copy does not.
	CategoryDestCorrupted Category = "DEST_CORRUPTED"

	// CategoryBothDiffer means neither copy matches the record.
	CategoryBothDiffer Category = "BOTH_DIFFER"

	CategoryDestMissing Category = "DEST_MISSING"
	CategoryUnreadable  Category = "UNREADABLE"
)

// Classification is the result of a three-way check.
type Classification struct {
	Category Category
	Source   *TargetResult
	Dest     TargetResult
}

// Consistent reports whether the preserved copy can be trusted.
func (c Classification) Consistent() bool { return c.Category == CategoryConsistent }

// Classify derives the category from already computed target results. A
// nil or missing source counts as unreachable and does not affect the
// outcome.
func Classify(source *TargetResult, dest TargetResult) Category {
	switch dest.Status {
	case StatusNotFound:
		return CategoryDestMissing
	case StatusError:
		return CategoryUnreadable
	}
	if source != nil && source.Status == StatusError {
		return CategoryUnreadable
	}

	srcReachable := source != nil && source.Status != StatusNotFound
	srcOK := srcReachable && source.Status == StatusVerified
	destOK := dest.Status == StatusVerified || dest.Status == StatusUnverified

	switch {
	case destOK && (!srcReachable || srcOK):
		return CategoryConsistent
	case destOK:
		return CategorySourceModified
	case !srcReachable || srcOK:
		return CategoryDestCorrupted
	}
	return CategoryBothDiffer
}

// ThreeWay hashes the preserved copy at dest and, when source is not
// empty, the original, and classifies them against recorded.
func (v *Verifier) ThreeWay(ctx context.Context, recorded types.Hashes, source, dest string) Classification {
	algs := recorded.Algorithms()
	if len(algs) == 0 {
		algs = []types.HashAlgorithm{types.SHA256}
	}

	c := Classification{Dest: v.check(ctx, dest, recorded, algs)}
	if source != "" {
		src := v.check(ctx, source, recorded, algs)
		c.Source = &src
	}
	c.Category = Classify(c.Source, c.Dest)
	return c
}
