package beacon

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultMinRegistrationInterval is the minimum time between full
// registration passes triggered by the same scanner (debounce).
const DefaultMinRegistrationInterval = 1 * time.Minute

// AutoRegistrar re-runs registration whenever a fresh scanner report arrives.
// It debounces bursts of retained messages, archives reports to the data
// directory, rebuilds the world map, persists both caches, and publishes the
// result.
type AutoRegistrar struct {
	config       *Config
	cachePath    string
	dataDir      string
	stateTracker *StateTracker
	publisher    *Publisher

	mu            sync.Mutex
	registration  *RegistrationData
	lastTriggered map[int]time.Time
}

// NewAutoRegistrar creates an AutoRegistrar ready to handle report events.
// publisher may be nil when MQTT publishing is disabled.
func NewAutoRegistrar(config *Config, cached *RegistrationData, cachePath, dataDir string, st *StateTracker, pub *Publisher) *AutoRegistrar {
	return &AutoRegistrar{
		config:        config,
		cachePath:     cachePath,
		dataDir:       dataDir,
		stateTracker:  st,
		publisher:     pub,
		registration:  cached,
		lastTriggered: make(map[int]time.Time),
	}
}

// OnReport is the ReportHandler callback registered with the MQTT client.
// It is safe to call from any goroutine.
func (ar *AutoRegistrar) OnReport(scannerID int, rawPayload []byte, scanner *Scanner, err error) {
	if err != nil {
		log.Printf("[AUTO-REG] scanner %d: dropping undecodable report: %v", scannerID, err)
		return
	}

	ar.mu.Lock()
	defer ar.mu.Unlock()

	log.Printf("[AUTO-REG] report received from scanner %d (%d beacons)", scannerID, len(scanner.Local))

	ar.stateTracker.UpdateReport(scannerID, scanner.Local)
	ar.archiveReport(scannerID, scanner)

	if last, ok := ar.lastTriggered[scannerID]; ok {
		if time.Since(last) < DefaultMinRegistrationInterval {
			log.Printf("[AUTO-REG] scanner %d: skipping re-registration, last run %s ago (min interval %s)",
				scannerID, time.Since(last).Round(time.Second), DefaultMinRegistrationInterval)
			return
		}
	}
	ar.lastTriggered[scannerID] = time.Now()

	ar.rebuild()
}

// Rebuild forces a registration pass over the currently tracked reports,
// bypassing the debounce. Used at startup after loading archived reports.
func (ar *AutoRegistrar) Rebuild() {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	ar.rebuild()
}

func (ar *AutoRegistrar) rebuild() {
	reference := -1
	if ar.config.Reference != nil {
		reference = *ar.config.Reference
	}

	reg, err := ar.stateTracker.RebuildWorldMap(reference, ar.config.EffectiveThreshold())
	if err != nil {
		if errors.Is(err, ErrUnresolvable) {
			// Expected while the fleet is still reporting in: islands of the
			// overlap graph stay unplaced until a bridging report arrives.
			log.Printf("[AUTO-REG] registration incomplete: %v", err)
		} else {
			log.Printf("[AUTO-REG] registration failed: %v", err)
		}
		return
	}

	ar.registration = reg
	if err := SaveRegistration(ar.cachePath, reg); err != nil {
		log.Printf("[AUTO-REG] failed to save registration cache: %v", err)
	} else {
		log.Printf("[AUTO-REG] registration cache saved to %s", ar.cachePath)
	}

	worldMap := ar.stateTracker.GetWorldMap()
	if worldMap == nil {
		return
	}
	log.Printf("[AUTO-REG] chart rebuilt: %d distinct beacons from %d scanners (max separation %d)",
		worldMap.BeaconCount(), len(worldMap.Scanners), worldMap.MaxScannerSeparation())

	if ar.publisher != nil {
		for id, sr := range reg.Scanners {
			if err := ar.publisher.PublishPose(id, sr.Pose); err != nil {
				log.Printf("[AUTO-REG] failed to publish pose for scanner %d: %v", id, err)
			}
		}
		if err := ar.publisher.PublishChart(worldMap); err != nil {
			log.Printf("[AUTO-REG] failed to publish chart summary: %v", err)
		}
	}
}

// archiveReport writes the report to the data directory for restart recovery,
// one file per scanner.
func (ar *AutoRegistrar) archiveReport(scannerID int, scanner *Scanner) {
	if ar.dataDir == "" {
		return
	}
	path := filepath.Join(ar.dataDir, fmt.Sprintf("ScannerReport-%d.txt", scannerID))
	text := FormatReport([]*Scanner{scanner})
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		log.Printf("[AUTO-REG] scanner %d: failed to archive report to %s: %v", scannerID, path, err)
	}
}

// GetRegistration returns the latest registration data, or nil before the
// first successful pass.
func (ar *AutoRegistrar) GetRegistration() *RegistrationData {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	return ar.registration
}

// String implements fmt.Stringer for debug logging.
func (ar *AutoRegistrar) String() string {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	registered := 0
	if ar.registration != nil {
		registered = len(ar.registration.Scanners)
	}
	return fmt.Sprintf("AutoRegistrar{cachePath=%s, registered=%d, triggered=%d}",
		ar.cachePath, registered, len(ar.lastTriggered))
}
