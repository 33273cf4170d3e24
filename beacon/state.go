package beacon

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// ReportState is the latest report received from one scanner.
type ReportState struct {
	ScannerID int        `json:"scannerId"`
	Beacons   []Position `json:"beacons"`
	Received  time.Time  `json:"received"`
	Color     string     `json:"color"`
}

// StateTracker tracks the latest report per scanner and the current assembled
// chart for the HTTP endpoints. It is safe for concurrent use.
type StateTracker struct {
	mu        sync.RWMutex
	reports   map[int]*ReportState
	colors    map[int]string
	worldMap  *WorldMap
	cachePath string // path to the world map cache file; empty disables persistence
}

// NewStateTracker creates a new state tracker.
func NewStateTracker() *StateTracker {
	return &StateTracker{
		reports: make(map[int]*ReportState),
		colors:  make(map[int]string),
	}
}

// NewStateTrackerWithCache creates a state tracker that persists the world
// map to the given cache file path. If the file exists, the cached chart is
// loaded on creation.
func NewStateTrackerWithCache(cachePath string) *StateTracker {
	st := NewStateTracker()
	st.cachePath = cachePath
	if cachePath != "" {
		if wm, err := LoadWorldMap(cachePath); err == nil {
			st.worldMap = wm
		}
	}
	return st
}

// SetColor sets the display color for a scanner.
func (st *StateTracker) SetColor(scannerID int, hexColor string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.colors[scannerID] = hexColor
}

// UpdateReport stores the latest beacon report for a scanner. The beacon
// slice is copied.
func (st *StateTracker) UpdateReport(scannerID int, beacons []Position) {
	st.mu.Lock()
	defer st.mu.Unlock()

	copied := make([]Position, len(beacons))
	copy(copied, beacons)

	st.reports[scannerID] = &ReportState{
		ScannerID: scannerID,
		Beacons:   copied,
		Received:  time.Now(),
		Color:     st.colors[scannerID],
	}
}

// GetReport returns the latest report for a scanner, or nil.
func (st *StateTracker) GetReport(scannerID int) *ReportState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if r, ok := st.reports[scannerID]; ok {
		copied := *r
		return &copied
	}
	return nil
}

// GetReports returns all current reports keyed by scanner id.
func (st *StateTracker) GetReports() map[int]*ReportState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[int]*ReportState, len(st.reports))
	for k, v := range st.reports {
		copied := *v
		result[k] = &copied
	}
	return result
}

// HasReports returns true if at least one scanner has reported.
func (st *StateTracker) HasReports() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.reports) > 0
}

// ScannerIDs returns the ids of all scanners that have reported, ascending.
func (st *StateTracker) ScannerIDs() []int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]int, 0, len(st.reports))
	for id := range st.reports {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// GetWorldMap returns the current assembled chart, or nil if none exists.
func (st *StateTracker) GetWorldMap() *WorldMap {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.worldMap
}

// RebuildWorldMap re-registers every reported scanner and rebuilds the chart.
// The reference scanner leads the arena; when referenceID is negative or has
// no report, the lowest reporting id is used. The resulting chart replaces
// the tracked one and is persisted when a cache path is configured. Returns
// the fresh registration data alongside.
func (st *StateTracker) RebuildWorldMap(referenceID, threshold int) (*RegistrationData, error) {
	st.mu.RLock()
	ids := make([]int, 0, len(st.reports))
	for id := range st.reports {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	if len(ids) == 0 {
		st.mu.RUnlock()
		return nil, fmt.Errorf("no scanner reports available")
	}

	ref := referenceID
	if ref < 0 || st.reports[ref] == nil {
		ref = ids[0]
	}

	// Reference first, remaining in ascending id order.
	scanners := make([]*Scanner, 0, len(ids))
	scanners = append(scanners, NewScanner(ref, st.reports[ref].Beacons))
	for _, id := range ids {
		if id == ref {
			continue
		}
		scanners = append(scanners, NewScanner(id, st.reports[id].Beacons))
	}
	cachePath := st.cachePath
	st.mu.RUnlock()

	registry := NewRegistry(scanners, threshold)
	if err := registry.Register(); err != nil {
		return nil, err
	}

	worldMap, err := BuildWorldMap(registry)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	st.worldMap = worldMap
	st.mu.Unlock()

	if cachePath != "" {
		if err := SaveWorldMap(worldMap, cachePath); err != nil {
			log.Printf("warning: failed to save world map cache: %v", err)
		}
	}

	return NewRegistrationData(registry), nil
}
