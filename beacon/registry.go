package beacon

import (
	"errors"
	"fmt"
	"log"
)

// ErrUnresolvable is returned when registration reaches a fixed point with
// scanners still unplaced. The survey's overlap graph is then disconnected
// from the reference scanner, which violates the fleet guarantee.
var ErrUnresolvable = errors.New("registration stalled: remaining scanners share no qualifying overlap")

// Registry is an arena of scanners undergoing registration. Scanners are
// addressed by index; their absolute fields are committed through the arena
// exactly once. The zero threshold means DefaultMatchThreshold.
type Registry struct {
	scanners  []*Scanner
	threshold int

	// Pairs already confirmed non-overlapping. Rejections are stable across
	// sweeps because the underlying reports never change, so each pair is
	// voted on at most once.
	rejected map[[2]int]bool
}

// NewRegistry creates a registry over the given scanners. The first scanner
// in the slice is the reference and will be pinned at the origin.
func NewRegistry(scanners []*Scanner, threshold int) *Registry {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Registry{
		scanners:  scanners,
		threshold: threshold,
		rejected:  make(map[[2]int]bool),
	}
}

// Scanners returns the arena contents in input order.
func (r *Registry) Scanners() []*Scanner {
	return r.scanners
}

// Threshold returns the active match threshold.
func (r *Registry) Threshold() int {
	return r.threshold
}

// Register places every scanner in the shared frame. The reference scanner is
// fixed at the origin with identity orientation; remaining scanners are
// resolved by sweeping resolved x unresolved pairs through FindOverlap until
// all are placed or a sweep makes no progress.
func (r *Registry) Register() error {
	if len(r.scanners) == 0 {
		return fmt.Errorf("no scanners to register")
	}

	ref := r.scanners[0]
	if !ref.Resolved() {
		absolute := make([]Position, len(ref.Local))
		copy(absolute, ref.Local)
		ref.commit(Pose{}, absolute)
	}

	remaining := 0
	for _, s := range r.scanners {
		if !s.Resolved() {
			remaining++
		}
	}

	for remaining > 0 {
		progressed := false

		for ki, known := range r.scanners {
			if !known.Resolved() {
				continue
			}
			for ci, candidate := range r.scanners {
				if candidate.Resolved() || r.rejected[[2]int{ki, ci}] {
					continue
				}

				match, err := FindOverlap(known, candidate, r.threshold)
				if err != nil {
					return err
				}
				if match == nil {
					r.rejected[[2]int{ki, ci}] = true
					continue
				}

				candidate.commit(match.Pose, match.Absolute)
				remaining--
				progressed = true
				log.Printf("registered scanner %d at %s via scanner %d (orientation %d)",
					candidate.ID, match.Pose.Translation, known.ID, match.Pose.Orientation)
			}
		}

		if !progressed {
			var stalled []int
			for _, s := range r.scanners {
				if !s.Resolved() {
					stalled = append(stalled, s.ID)
				}
			}
			return fmt.Errorf("scanners %v unreachable from reference %d: %w",
				stalled, ref.ID, ErrUnresolvable)
		}
	}

	return nil
}
