package beacon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// WorldMap is the assembled chart: every registered scanner's beacons merged
// into one deduplicated set in the shared frame, plus the scanner placements
// themselves.
type WorldMap struct {
	Beacons  []Position     `json:"beacons"`
	Scanners []ScannerPlace `json:"scanners"`
	Metadata WorldMetadata  `json:"metadata"`
}

// ScannerPlace records where a registered scanner ended up.
type ScannerPlace struct {
	ID       int      `json:"id"`
	Pose     Pose     `json:"pose"`
	Reported int      `json:"reported"` // beacons in its report
	Position Position `json:"position"`
}

// WorldMetadata provides provenance for a WorldMap.
type WorldMetadata struct {
	ScannerCount     int `json:"scannerCount"`
	ReferenceScanner int `json:"referenceScanner"`
	LastUpdated      int64 `json:"lastUpdated"`
}

// BuildWorldMap unions the absolute beacons of every scanner in the registry.
// All scanners must be resolved; call Registry.Register first.
func BuildWorldMap(r *Registry) (*WorldMap, error) {
	scanners := r.Scanners()
	if len(scanners) == 0 {
		return nil, fmt.Errorf("no scanners registered")
	}

	set := make(map[Position]struct{})
	places := make([]ScannerPlace, 0, len(scanners))
	for _, s := range scanners {
		pose, ok := s.Pose()
		if !ok {
			return nil, fmt.Errorf("scanner %d is not resolved", s.ID)
		}
		for _, p := range s.Absolute() {
			set[p] = struct{}{}
		}
		places = append(places, ScannerPlace{
			ID:       s.ID,
			Pose:     pose,
			Reported: len(s.Local),
			Position: pose.Translation,
		})
	}

	beacons := make([]Position, 0, len(set))
	for p := range set {
		beacons = append(beacons, p)
	}
	sortPositions(beacons)

	return &WorldMap{
		Beacons:  beacons,
		Scanners: places,
		Metadata: WorldMetadata{
			ScannerCount:     len(scanners),
			ReferenceScanner: scanners[0].ID,
			LastUpdated:      time.Now().Unix(),
		},
	}, nil
}

// BeaconCount returns the number of distinct beacons in the chart.
func (w *WorldMap) BeaconCount() int {
	return len(w.Beacons)
}

// MaxScannerSeparation returns the largest Manhattan distance between any two
// scanner positions, a rough measure of the survey's extent. Zero for fewer
// than two scanners.
func (w *WorldMap) MaxScannerSeparation() int {
	best := 0
	for i := 0; i < len(w.Scanners); i++ {
		for j := i + 1; j < len(w.Scanners); j++ {
			d := w.Scanners[i].Position.Manhattan(w.Scanners[j].Position)
			if d > best {
				best = d
			}
		}
	}
	return best
}

// ContainsBeacon reports whether the chart includes the given position.
func (w *WorldMap) ContainsBeacon(p Position) bool {
	// Beacons are kept sorted, so binary search.
	i := sort.Search(len(w.Beacons), func(i int) bool {
		return !positionLess(w.Beacons[i], p)
	})
	return i < len(w.Beacons) && w.Beacons[i] == p
}

// sortPositions orders positions lexicographically by (x, y, z) so chart
// output is deterministic regardless of map iteration order.
func sortPositions(ps []Position) {
	sort.Slice(ps, func(i, j int) bool {
		return positionLess(ps[i], ps[j])
	})
}

func positionLess(a, b Position) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

// SaveWorldMap writes a chart to disk as JSON.
func SaveWorldMap(w *WorldMap, path string) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal world map: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write world map cache: %w", err)
	}
	return nil
}

// LoadWorldMap reads a chart from a JSON file on disk.
func LoadWorldMap(path string) (*WorldMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world map cache: %w", err)
	}
	var w WorldMap
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal world map cache: %w", err)
	}
	return &w, nil
}
