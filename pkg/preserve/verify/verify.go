// Package verify compares recorded digests against live files.
package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jamesainslie/preserve/pkg/preserve/digest"
	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// Status is the outcome of verifying one or two live copies.
type Status string

const (
	StatusVerified Status = "VERIFIED"
	StatusFailed   Status = "FAILED"
	StatusNotFound Status = "NOT_FOUND"

	// StatusError means a file exists but could not be read.
	StatusError Status = "ERROR"

	// StatusUnverified means there was nothing to compare against.
	StatusUnverified Status = "UNVERIFIED"
)

// severity orders statuses for aggregation; higher wins.
func (s Status) severity() int {
	switch s {
	case StatusFailed:
		return 4
	case StatusError:
		return 3
	case StatusNotFound:
		return 2
	case StatusUnverified:
		return 1
	}
	return 0
}

// HashMismatchError names the algorithms whose digests disagree.
type HashMismatchError struct {
	Path       string
	Algorithms []types.HashAlgorithm
	Expected   types.Hashes
	Actual     types.Hashes
}

func (e *HashMismatchError) Error() string {
	names := make([]string, len(e.Algorithms))
	for i, alg := range e.Algorithms {
		names[i] = string(alg)
	}
	return fmt.Sprintf("hash mismatch for %s: %s", e.Path, strings.Join(names, ", "))
}

// TargetResult is the check of a single live path.
type TargetResult struct {
	Path       string
	Status     Status
	Actual     types.Hashes
	Mismatched []types.HashAlgorithm
	Err        error
}

// Result aggregates one or two targets.
type Result struct {
	Status  Status
	Targets []TargetResult

	// Mismatched is the union of mismatching algorithms across targets,
	// including disagreements between the two live copies.
	Mismatched []types.HashAlgorithm

	// CopiesDiffer is set when both copies were read and disagree with
	// each other.
	CopiesDiffer bool
}

// Err returns a *HashMismatchError for failed results, the underlying read
// error for errored ones, and nil otherwise.
func (r Result) Err() error {
	for _, t := range r.Targets {
		if t.Status == StatusError && t.Err != nil {
			return t.Err
		}
	}
	if r.Status != StatusFailed {
		return nil
	}
	path := ""
	var actual types.Hashes
	for _, t := range r.Targets {
		if len(t.Mismatched) > 0 || path == "" {
			path, actual = t.Path, t.Actual
		}
	}
	return &HashMismatchError{Path: path, Algorithms: r.Mismatched, Actual: actual}
}

// Compare returns the algorithms of recorded whose digest is absent from
// or different in actual. Hex comparison ignores case.
func Compare(recorded, actual types.Hashes) []types.HashAlgorithm {
	var bad []types.HashAlgorithm
	for _, alg := range recorded.Algorithms() {
		got, ok := actual[alg]
		if !ok || !strings.EqualFold(got, recorded[alg]) {
			bad = append(bad, alg)
		}
	}
	return bad
}

// Verifier hashes live files and compares them with recorded digests.
type Verifier struct {
	digester   *digest.Digester
	trustCache bool
}

// Option configures a Verifier.
type Option func(*Verifier)

// TrustCache lets the Verifier take digests of files whose size and mtime
// match the digest cache instead of reading them. Corruption that keeps
// both goes unnoticed with it.
func TrustCache() Option {
	return func(v *Verifier) { v.trustCache = true }
}

// New returns a Verifier. A nil digester hashes without a cache. Unless
// TrustCache is given every check reads the file.
func New(d *digest.Digester, opts ...Option) *Verifier {
	v := &Verifier{digester: d}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// hash reads path through the digester, consulting the cache only when
// the caller opted in.
func (v *Verifier) hash(ctx context.Context, path string, algs []types.HashAlgorithm) (types.Hashes, error) {
	if v.trustCache {
		return v.digester.Cached(ctx, path, algs)
	}
	return v.digester.File(ctx, path, algs)
}

// Verify checks one or two live paths against recorded. With two paths the
// copies are also compared with each other. Every recorded algorithm must
// match for VERIFIED.
func (v *Verifier) Verify(ctx context.Context, recorded types.Hashes, paths ...string) Result {
	if len(paths) == 0 || len(paths) > 2 {
		return Result{Status: StatusError, Targets: []TargetResult{{
			Status: StatusError,
			Err:    fmt.Errorf("verify needs one or two paths, got %d", len(paths)),
		}}}
	}

	algs := recorded.Algorithms()
	if len(algs) == 0 {
		algs = []types.HashAlgorithm{types.SHA256}
	}

	res := Result{Status: StatusVerified}
	mismatched := map[types.HashAlgorithm]bool{}

	for _, p := range paths {
		t := v.check(ctx, p, recorded, algs)
		for _, alg := range t.Mismatched {
			mismatched[alg] = true
		}
		res.Targets = append(res.Targets, t)
	}

	if len(res.Targets) == 2 {
		a, b := res.Targets[0], res.Targets[1]
		if a.Actual != nil && b.Actual != nil {
			for _, alg := range algs {
				if !strings.EqualFold(a.Actual[alg], b.Actual[alg]) {
					res.CopiesDiffer = true
					mismatched[alg] = true
				}
			}
		}
	}

	for _, t := range res.Targets {
		if t.Status.severity() > res.Status.severity() {
			res.Status = t.Status
		}
	}
	if res.CopiesDiffer && StatusFailed.severity() > res.Status.severity() {
		res.Status = StatusFailed
	}
	if len(recorded) == 0 && len(res.Targets) == 1 && res.Status == StatusVerified {
		res.Status = StatusUnverified
	}

	for _, alg := range types.AllAlgorithms() {
		if mismatched[alg] {
			res.Mismatched = append(res.Mismatched, alg)
			delete(mismatched, alg)
		}
	}
	for alg := range mismatched {
		res.Mismatched = append(res.Mismatched, alg)
	}
	return res
}

// check hashes one live path and compares it with recorded.
func (v *Verifier) check(ctx context.Context, path string, recorded types.Hashes, algs []types.HashAlgorithm) TargetResult {
	t := TargetResult{Path: path}

	hashable := make([]types.HashAlgorithm, 0, len(algs))
	for _, alg := range algs {
		if _, err := digest.New(alg); err == nil {
			hashable = append(hashable, alg)
		}
	}

	actual, err := v.hash(ctx, path, hashable)
	switch {
	case errors.Is(err, os.ErrNotExist):
		t.Status = StatusNotFound
		t.Err = err
		return t
	case err != nil:
		t.Status = StatusError
		t.Err = err
		return t
	}

	t.Actual = actual
	t.Mismatched = Compare(recorded, actual)
	if len(t.Mismatched) > 0 {
		t.Status = StatusFailed
	} else {
		t.Status = StatusVerified
	}
	return t
}
