// Package shuffle reorders playlists in place with a bounded
// "sufficiently shuffled" acceptance test.
package shuffle

import (
	"math/rand/v2"
)

const (
	// MaxAttempts bounds the number of permutations tried per playlist.
	MaxAttempts = 5

	// fixedPointPercent is the share of positions allowed to keep their track.
	fixedPointPercent = 5
)

// Rand is the source of uniform indices. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// globalRand draws from the math/rand/v2 top-level generator, which is safe
// for concurrent use.
type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Result is an accepted permutation.
type Result struct {
	IDs         []string
	FixedPoints int
	Attempts    int
}

// Permute returns a uniformly random permutation of ids using a backward
// Fisher-Yates pass. ids is not modified.
func Permute(r Rand, ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)

	for i := len(out) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}

	return out
}

// FixedPoints counts the positions where shuffled still holds the original id.
func FixedPoints(original, shuffled []string) int {
	n := 0
	for i := range min(len(original), len(shuffled)) {
		if original[i] == shuffled[i] {
			n++
		}
	}
	return n
}

// Threshold is the largest fixed-point count accepted for a list of n
// tracks: ceil(5% of n).
func Threshold(n int) int {
	return (n*fixedPointPercent + 99) / 100
}

// Accept permutes ids until the result has at most Threshold(len(ids))
// fixed points, giving up after MaxAttempts and keeping the last try.
// Lists of zero or one track are accepted on the first attempt.
func Accept(r Rand, ids []string) Result {
	if len(ids) <= 1 {
		return Result{IDs: Permute(r, ids), FixedPoints: len(ids), Attempts: 1}
	}

	limit := Threshold(len(ids))
	var res Result
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		shuffled := Permute(r, ids)
		res = Result{IDs: shuffled, FixedPoints: FixedPoints(ids, shuffled), Attempts: attempt}
		if res.FixedPoints <= limit {
			break
		}
	}

	return res
}
