package beacon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfigYAML = `mqtt:
  broker: tcp://localhost:1883
  publishPrefix: survey
  clientId: beaconmesh-test
reference: 7
matchThreshold: 12
scanners:
  - id: 0
    topic: survey/scanner/0
    color: "#4287f5"
  - id: 7
    topic: survey/scanner/7
    reportUrl: http://scanner7.local/report
  - id: 13
    topic: survey/scanner/13
`

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(writeConfigFile(t, sampleConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("broker = %q", config.MQTT.Broker)
	}
	if config.MQTT.PublishPrefix != "survey" {
		t.Errorf("publishPrefix = %q", config.MQTT.PublishPrefix)
	}
	if config.Reference == nil || *config.Reference != 7 {
		t.Errorf("reference = %v, want 7", config.Reference)
	}
	if config.MatchThreshold != 12 {
		t.Errorf("matchThreshold = %d, want 12", config.MatchThreshold)
	}
	if len(config.Scanners) != 3 {
		t.Fatalf("got %d scanners, want 3", len(config.Scanners))
	}
	if config.Scanners[1].ReportURL == nil || *config.Scanners[1].ReportURL != "http://scanner7.local/report" {
		t.Errorf("scanner 7 reportUrl = %v", config.Scanners[1].ReportURL)
	}
	if config.Scanners[0].Color != "#4287f5" {
		t.Errorf("scanner 0 color = %q", config.Scanners[0].Color)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			yaml:    "mqtt: [broker",
			wantErr: "parsing config YAML",
		},
		{
			name: "missing broker",
			yaml: `mqtt:
  publishPrefix: survey
scanners:
  - id: 0
    topic: t0
`,
			wantErr: "mqtt.broker is required",
		},
		{
			name: "no scanners",
			yaml: `mqtt:
  broker: tcp://localhost:1883
`,
			wantErr: "at least one scanner",
		},
		{
			name: "negative id",
			yaml: `mqtt:
  broker: tcp://localhost:1883
scanners:
  - id: -2
    topic: t0
`,
			wantErr: "must be non-negative",
		},
		{
			name: "duplicate id",
			yaml: `mqtt:
  broker: tcp://localhost:1883
scanners:
  - id: 3
    topic: t3
  - id: 3
    topic: t3b
`,
			wantErr: "duplicate id 3",
		},
		{
			name: "missing topic",
			yaml: `mqtt:
  broker: tcp://localhost:1883
scanners:
  - id: 5
`,
			wantErr: "topic is required for id 5",
		},
		{
			name: "undefined reference",
			yaml: `mqtt:
  broker: tcp://localhost:1883
reference: 99
scanners:
  - id: 0
    topic: t0
`,
			wantErr: "reference scanner 99 is not defined",
		},
		{
			name: "negative threshold",
			yaml: `mqtt:
  broker: tcp://localhost:1883
matchThreshold: -1
scanners:
  - id: 0
    topic: t0
`,
			wantErr: "matchThreshold must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfigFile(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Lookups and defaults
// ---------------------------------------------------------------------------

func TestConfigLookups(t *testing.T) {
	config, err := LoadConfig(writeConfigFile(t, sampleConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	sc := config.GetScannerByID(13)
	if sc == nil || sc.Topic != "survey/scanner/13" {
		t.Errorf("GetScannerByID(13) = %+v", sc)
	}
	if config.GetScannerByID(99) != nil {
		t.Error("GetScannerByID(99) should be nil")
	}

	id, ok := config.GetScannerByTopic("survey/scanner/7")
	if !ok || id != 7 {
		t.Errorf("GetScannerByTopic = (%d, %v), want (7, true)", id, ok)
	}
	if _, ok := config.GetScannerByTopic("survey/scanner/99"); ok {
		t.Error("unknown topic should not resolve")
	}
}

func TestEffectiveThreshold(t *testing.T) {
	config := &Config{MatchThreshold: 20}
	if got := config.EffectiveThreshold(); got != 20 {
		t.Errorf("EffectiveThreshold = %d, want 20", got)
	}

	config.MatchThreshold = 0
	if got := config.EffectiveThreshold(); got != DefaultMatchThreshold {
		t.Errorf("EffectiveThreshold = %d, want default %d", got, DefaultMatchThreshold)
	}
}

// ---------------------------------------------------------------------------
// Round trip
// ---------------------------------------------------------------------------

func TestSaveConfigRoundTrip(t *testing.T) {
	original, err := LoadConfig(writeConfigFile(t, sampleConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reloading saved config failed: %v", err)
	}
	if len(reloaded.Scanners) != len(original.Scanners) {
		t.Fatalf("scanner count changed: %d != %d", len(reloaded.Scanners), len(original.Scanners))
	}
	for i := range original.Scanners {
		if reloaded.Scanners[i] != original.Scanners[i] {
			// ReportURL is a pointer, compare by value where set.
			if original.Scanners[i].ReportURL == nil || reloaded.Scanners[i].ReportURL == nil ||
				*original.Scanners[i].ReportURL != *reloaded.Scanners[i].ReportURL {
				t.Errorf("scanner[%d] changed after round trip", i)
			}
		}
	}
	if reloaded.Reference == nil || *reloaded.Reference != *original.Reference {
		t.Error("reference changed after round trip")
	}
}
