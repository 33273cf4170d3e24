package beacon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ---------------------------------------------------------------------------
// TestReportAutoRegisterFlow
//
// Integration test that exercises the full report -> auto-registration chain:
//   1. Mock MQTT client receives report messages on the scanner topics
//   2. The report handler decodes them (one plain, one zlib-compressed)
//   3. AutoRegistrar tracks reports and re-runs registration
//   4. Poses resolve against the reference and the chart is assembled
//   5. Registration cache and report archives are persisted to disk
//   6. Resolved poses and the chart summary are published back to MQTT
// ---------------------------------------------------------------------------

func TestReportAutoRegisterFlow(t *testing.T) {
	// -- arrange: a five-scanner synthetic survey with known ground truth --
	fix := buildSurveyFixture(t)

	dataDir := t.TempDir()
	cachePath := filepath.Join(dataDir, DefaultRegistrationCachePath)

	config := &Config{
		MQTT: MQTTConfig{Broker: "tcp://localhost:1883"},
		Scanners: []ScannerConfig{
			{ID: 0, Topic: "survey/scanner/0"},
			{ID: 1, Topic: "survey/scanner/1"},
			{ID: 2, Topic: "survey/scanner/2"},
			{ID: 3, Topic: "survey/scanner/3"},
			{ID: 4, Topic: "survey/scanner/4"},
		},
	}

	// -- arrange: MQTT mock wired through the real subscription path --
	mock := NewMockClient()
	mock.Connect()

	st := NewStateTracker()
	publisher := NewPublisher(mock)
	registrar := NewAutoRegistrar(config, nil, cachePath, dataDir, st, publisher)

	client := newMQTTClientWithMock(mock, config, registrar.OnReport)
	client.onConnect(mock)

	// -- act: every scanner reports; scanner 2 on a compressed uplink --
	for i, s := range fix.scanners {
		text := FormatReport([]*Scanner{s})
		payload := []byte(text)
		if i == 2 {
			var err error
			payload, err = DeflateReport(text)
			if err != nil {
				t.Fatal(err)
			}
		}
		mock.SimulateMessage(config.Scanners[i].Topic, payload)
	}

	// -- assert: all five scanners resolved with ground truth poses --
	reg := registrar.GetRegistration()
	if reg == nil {
		t.Fatal("no registration after all scanners reported")
	}
	assert.Equal(t, 5, len(reg.Scanners), "all scanners should be registered")
	assert.Equal(t, 0, reg.ReferenceScanner, "scanner 0 leads the survey")
	for i, s := range fix.scanners {
		pose, ok := reg.GetPose(s.ID)
		assert.True(t, ok, "scanner %d should have a pose", s.ID)
		assert.Equal(t, fix.poses[i], pose, "scanner %d pose", s.ID)
	}

	// -- assert: the assembled chart covers the ground truth world --
	worldMap := st.GetWorldMap()
	if worldMap == nil {
		t.Fatal("no chart after registration")
	}
	assert.Equal(t, len(fix.world), worldMap.BeaconCount(), "distinct beacon count")

	// -- assert: cache and archives hit the disk --
	cached, err := LoadRegistration(cachePath)
	if err != nil || cached == nil {
		t.Fatalf("registration cache not readable: %v", err)
	}
	assert.Equal(t, len(reg.Scanners), len(cached.Scanners), "cache mirrors the registration")

	archives, _ := filepath.Glob(filepath.Join(dataDir, "ScannerReport-*.txt"))
	assert.Equal(t, 5, len(archives), "one archive per scanner")

	// -- assert: the last chart summary published matches the chart --
	var summary *ChartSummary
	for _, m := range mock.GetPublishedMessages() {
		if m.Topic == publisher.publishPrefix+"/chart" {
			var cs ChartSummary
			if err := json.Unmarshal(m.Payload, &cs); err != nil {
				t.Fatalf("chart payload: %v", err)
			}
			summary = &cs
		}
	}
	if summary == nil {
		t.Fatal("no chart summary published")
	}
	assert.Equal(t, worldMap.BeaconCount(), summary.BeaconCount)
	assert.Equal(t, 5, summary.ScannerCount)
}

// ---------------------------------------------------------------------------
// TestServiceRestartRecovery
//
// A restarted service must come back up from its persisted state: report
// archives reseed the tracker and the registration cache restores poses
// before any fresh report arrives.
// ---------------------------------------------------------------------------

func TestServiceRestartRecovery(t *testing.T) {
	fix := buildSurveyFixture(t)
	dataDir := t.TempDir()
	cachePath := filepath.Join(dataDir, DefaultRegistrationCachePath)

	// First life: register the fleet and persist everything.
	st := NewStateTracker()
	registrar := NewAutoRegistrar(&Config{Scanners: []ScannerConfig{}}, nil, cachePath, dataDir, st, nil)
	for _, s := range fix.scanners {
		registrar.OnReport(s.ID, nil, s, nil)
	}
	if registrar.GetRegistration() == nil {
		t.Fatal("first life did not register")
	}

	// Second life: a fresh registrar starts from the cached registration.
	cached, err := LoadRegistration(cachePath)
	if err != nil {
		t.Fatalf("loading cache: %v", err)
	}
	restarted := NewAutoRegistrar(&Config{Scanners: []ScannerConfig{}}, cached, cachePath, dataDir, NewStateTracker(), nil)

	reg := restarted.GetRegistration()
	if reg == nil {
		t.Fatal("restarted registrar has no registration")
	}
	for i, s := range fix.scanners {
		pose, ok := reg.GetPose(s.ID)
		assert.True(t, ok, "scanner %d pose survives restart", s.ID)
		assert.Equal(t, fix.poses[i], pose, "scanner %d pose", s.ID)
	}

	// The archives reseed a fresh tracker the way RunService does at boot.
	seeded := 0
	tracker := NewStateTracker()
	files, _ := filepath.Glob(filepath.Join(dataDir, "ScannerReport-*.txt"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			t.Fatal(err)
		}
		s, err := ParseSingleReport(string(data))
		if err != nil {
			t.Fatalf("archive %s unparseable: %v", file, err)
		}
		tracker.UpdateReport(s.ID, s.Local)
		seeded++
	}
	assert.Equal(t, 5, seeded, "all archives reseed the tracker")
}
