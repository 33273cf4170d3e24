package beacon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DefaultRegistrationCachePath is the default path for the registration cache.
const DefaultRegistrationCachePath = ".registration-cache.json"

// ScannerRegistration stores per-scanner registration metadata alongside the pose.
type ScannerRegistration struct {
	Pose        Pose  `json:"pose"`
	LastUpdated int64 `json:"lastUpdated"`
	BeaconCount int   `json:"beaconCount"` // beacons in the report the pose was computed from
}

// RegistrationData stores recovered poses for all scanners. It is persisted
// as a JSON cache so a restarted service does not have to wait for fresh
// reports before serving the chart.
type RegistrationData struct {
	ReferenceScanner int                         `json:"referenceScanner"`
	Scanners         map[int]ScannerRegistration `json:"scanners"`
	LastUpdated      int64                       `json:"lastUpdated"`
}

// LoadRegistration loads registration data from a JSON cache file. A missing
// file is not an error; it returns (nil, nil).
func LoadRegistration(path string) (*RegistrationData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading registration file: %w", err)
	}

	var reg RegistrationData
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing registration file: %w", err)
	}
	return &reg, nil
}

// SaveRegistration saves registration data to a JSON cache file.
func SaveRegistration(path string, reg *RegistrationData) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating registration directory: %w", err)
	}

	reg.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling registration data: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing registration file: %w", err)
	}
	return nil
}

// NewRegistrationData captures the poses of a fully registered registry.
func NewRegistrationData(r *Registry) *RegistrationData {
	scanners := r.Scanners()
	reg := &RegistrationData{
		Scanners:    make(map[int]ScannerRegistration, len(scanners)),
		LastUpdated: time.Now().Unix(),
	}
	if len(scanners) > 0 {
		reg.ReferenceScanner = scanners[0].ID
	}
	now := time.Now().Unix()
	for _, s := range scanners {
		pose, ok := s.Pose()
		if !ok {
			continue
		}
		reg.Scanners[s.ID] = ScannerRegistration{
			Pose:        pose,
			LastUpdated: now,
			BeaconCount: len(s.Local),
		}
	}
	return reg
}

// GetPose retrieves the pose for a scanner. The second return is false when
// the scanner has no cached registration.
func (r *RegistrationData) GetPose(scannerID int) (Pose, bool) {
	if r == nil || r.Scanners == nil {
		return Pose{}, false
	}
	sr, ok := r.Scanners[scannerID]
	return sr.Pose, ok
}

// TransformPosition maps a scanner-local position into the shared frame using
// the cached pose. Identity when no pose is cached.
func (r *RegistrationData) TransformPosition(scannerID int, p Position) Position {
	pose, ok := r.GetPose(scannerID)
	if !ok {
		return p
	}
	return pose.Apply(p)
}

// RegistrationStatus provides status information for the HTTP surface.
type RegistrationStatus struct {
	ReferenceScanner   int       `json:"referenceScanner"`
	RegisteredScanners []int     `json:"registeredScanners"`
	MissingScanners    []int     `json:"missingScanners"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

// GetStatus returns the registration status relative to the expected fleet.
func (r *RegistrationData) GetStatus(expected []int) RegistrationStatus {
	status := RegistrationStatus{}
	if r == nil {
		status.MissingScanners = expected
		return status
	}

	status.ReferenceScanner = r.ReferenceScanner
	status.LastUpdated = time.Unix(r.LastUpdated, 0)

	registered := make(map[int]bool, len(r.Scanners))
	for id := range r.Scanners {
		status.RegisteredScanners = append(status.RegisteredScanners, id)
		registered[id] = true
	}
	sort.Ints(status.RegisteredScanners)
	for _, id := range expected {
		if !registered[id] {
			status.MissingScanners = append(status.MissingScanners, id)
		}
	}
	return status
}

// NeedsRefresh reports whether the cached registration is older than maxAge.
func (r *RegistrationData) NeedsRefresh(maxAge time.Duration) bool {
	if r == nil || r.LastUpdated == 0 {
		return true
	}
	return time.Since(time.Unix(r.LastUpdated, 0)) > maxAge
}
