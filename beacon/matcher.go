package beacon

import (
	"errors"
	"fmt"
)

// DefaultMatchThreshold is the minimum number of coincident beacons required
// to accept a candidate orientation and translation as a genuine overlap.
const DefaultMatchThreshold = 12

// ErrAmbiguousMatch is returned when more than one translation vector reaches
// the vote threshold under the same orientation. A well-formed survey has a
// unique alignment per overlapping pair, so this means the input violates the
// overlap guarantee and registration must not guess.
var ErrAmbiguousMatch = errors.New("ambiguous overlap: multiple translations reach the vote threshold")

// Match describes a successful overlap between a placed scanner and a
// candidate: the candidate's recovered pose and its beacons mapped into the
// shared frame.
type Match struct {
	Pose     Pose
	Absolute []Position
}

// FindOverlap searches for a rigid placement of candidate that makes at least
// threshold of its beacons coincide with known's absolute beacons. known must
// already be resolved; candidate must not be. The search is exhaustive over
// the 24 orientations and side-effect free: neither scanner is mutated.
//
// For each orientation a translation-vote histogram is built: every pair of
// one known absolute beacon and one reoriented candidate beacon votes for the
// translation that would align them. A correct alignment of t coincident
// beacons necessarily collects t votes, while unrelated pairs scatter across
// distinct vectors. The first orientation producing a qualifying vector wins.
//
// Returns (nil, nil) when no orientation qualifies — the pair simply cannot
// be related yet. Returns ErrAmbiguousMatch if any orientation produces two
// or more qualifying vectors.
func FindOverlap(known, candidate *Scanner, threshold int) (*Match, error) {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	if !known.Resolved() {
		return nil, fmt.Errorf("scanner %d is not resolved and cannot anchor a match", known.ID)
	}
	if candidate.Resolved() {
		// Idempotent skip: never recompute a placed scanner.
		return nil, nil
	}

	for o := 0; o < NumOrientations; o++ {
		reoriented := OrientAll(candidate.Local, o)

		// Histogram of candidate translations, local to this attempt.
		votes := make(map[Position]int)
		for _, kb := range known.absolute {
			for _, rb := range reoriented {
				votes[kb.Sub(rb)]++
			}
		}

		var winner Position
		found := false
		for t, n := range votes {
			if n < threshold {
				continue
			}
			if found {
				return nil, fmt.Errorf("scanners %d and %d, orientation %d: %w",
					known.ID, candidate.ID, o, ErrAmbiguousMatch)
			}
			winner = t
			found = true
		}
		if !found {
			continue
		}

		absolute := make([]Position, len(reoriented))
		for i, rb := range reoriented {
			absolute[i] = rb.Add(winner)
		}
		return &Match{
			Pose:     Pose{Orientation: o, Translation: winner},
			Absolute: absolute,
		}, nil
	}

	return nil, nil
}

// OverlapCount returns how many shared-frame beacons two resolved scanners
// have in common. Zero if either scanner is unresolved.
func OverlapCount(a, b *Scanner) int {
	if !a.Resolved() || !b.Resolved() {
		return 0
	}
	seen := make(map[Position]struct{}, len(a.absolute))
	for _, p := range a.absolute {
		seen[p] = struct{}{}
	}
	count := 0
	for _, p := range b.absolute {
		if _, ok := seen[p]; ok {
			count++
		}
	}
	return count
}
