package beacon

import (
	"errors"
	"testing"
)

// surveyFixture is a synthetic five-scanner survey with known ground truth.
// Scanners form a chain 0-1-2-3-4; adjacent scanners share a 12-beacon
// bridge (exactly the default threshold) and additionally see 13 beacons of
// their own. Distinct world beacons: 5*13 + 4*12 = 113.
type surveyFixture struct {
	scanners []*Scanner
	poses    []Pose
	world    map[Position]struct{}
}

func buildSurveyFixture(t *testing.T) *surveyFixture {
	t.Helper()

	poses := []Pose{
		{Orientation: 0, Translation: Position{0, 0, 0}},
		{Orientation: 7, Translation: Position{68, -1246, -43}},
		{Orientation: 13, Translation: Position{1105, -1205, 1229}},
		{Orientation: 21, Translation: Position{-92, -2380, -20}},
		{Orientation: 10, Translation: Position{-20, -1133, 1061}},
	}

	r := &seqRand{state: 2021}
	seen := make(map[Position]struct{})

	own := make([][]Position, 5)
	for i := range own {
		own[i] = distinctPositions(r, 13, seen)
	}
	bridges := make([][]Position, 4)
	for i := range bridges {
		bridges[i] = distinctPositions(r, 12, seen)
	}

	scanners := make([]*Scanner, 5)
	for i := 0; i < 5; i++ {
		visible := append([]Position{}, own[i]...)
		if i > 0 {
			visible = append(visible, bridges[i-1]...)
		}
		if i < 4 {
			visible = append(visible, bridges[i]...)
		}
		scanners[i] = NewScanner(i, localView(visible, poses[i]))
	}

	return &surveyFixture{scanners: scanners, poses: poses, world: seen}
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegisterFullSurvey(t *testing.T) {
	fix := buildSurveyFixture(t)

	registry := NewRegistry(fix.scanners, DefaultMatchThreshold)
	if err := registry.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i, s := range registry.Scanners() {
		if !s.Resolved() {
			t.Fatalf("scanner %d not resolved", s.ID)
		}
		pos, _ := s.Position()
		if pos != fix.poses[i].Translation {
			t.Errorf("scanner %d position = %v, want %v", s.ID, pos, fix.poses[i].Translation)
		}
	}

	// Every absolute beacon must be one of the ground truth world beacons,
	// and together they must cover all 113.
	covered := make(map[Position]struct{})
	for _, s := range registry.Scanners() {
		for _, p := range s.Absolute() {
			if _, ok := fix.world[p]; !ok {
				t.Fatalf("scanner %d produced beacon %v outside the ground truth set", s.ID, p)
			}
			covered[p] = struct{}{}
		}
	}
	if len(covered) != 113 {
		t.Errorf("resolved beacons cover %d world positions, want 113", len(covered))
	}
}

func TestRegisterIdempotent(t *testing.T) {
	fix := buildSurveyFixture(t)

	registry := NewRegistry(fix.scanners, DefaultMatchThreshold)
	if err := registry.Register(); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	want := make([]Pose, len(fix.scanners))
	for i, s := range registry.Scanners() {
		want[i], _ = s.Pose()
	}

	// A second pass must be a no-op: placements are committed once.
	if err := registry.Register(); err != nil {
		t.Fatalf("second Register: %v", err)
	}
	for i, s := range registry.Scanners() {
		pose, _ := s.Pose()
		if pose != want[i] {
			t.Errorf("scanner %d pose changed on re-registration: %+v -> %+v", s.ID, want[i], pose)
		}
	}
}

func TestRegisterAdjacentOverlapSymmetry(t *testing.T) {
	fix := buildSurveyFixture(t)

	registry := NewRegistry(fix.scanners, DefaultMatchThreshold)
	if err := registry.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}

	scanners := registry.Scanners()
	for i := 0; i+1 < len(scanners); i++ {
		ab := OverlapCount(scanners[i], scanners[i+1])
		ba := OverlapCount(scanners[i+1], scanners[i])
		if ab != ba {
			t.Errorf("overlap %d-%d asymmetric: %d vs %d", i, i+1, ab, ba)
		}
		if ab < DefaultMatchThreshold {
			t.Errorf("overlap %d-%d = %d, want >= %d", i, i+1, ab, DefaultMatchThreshold)
		}
	}
}

func TestRegisterDisconnectedSurvey(t *testing.T) {
	r := &seqRand{state: 404}
	seen := make(map[Position]struct{})

	// Two scanners with no shared beacons at all.
	a := NewScanner(0, distinctPositions(r, 20, seen))
	b := NewScanner(1, distinctPositions(r, 20, seen))

	registry := NewRegistry([]*Scanner{a, b}, DefaultMatchThreshold)
	err := registry.Register()
	if !errors.Is(err, ErrUnresolvable) {
		t.Fatalf("err = %v, want ErrUnresolvable", err)
	}

	// The reference still resolves; only the unreachable scanner stays out.
	if !a.Resolved() {
		t.Error("reference scanner should be pinned despite the stall")
	}
	if b.Resolved() {
		t.Error("unreachable scanner must not be resolved")
	}
}

func TestRegisterAmbiguousSurveyFails(t *testing.T) {
	// Reference with a long collinear run; candidate with a shorter run that
	// slides along it. Registration must refuse to guess.
	refBeacons := make([]Position, 24)
	for i := range refBeacons {
		refBeacons[i] = Position{X: i, Y: 0, Z: 0}
	}
	candBeacons := make([]Position, 12)
	for i := range candBeacons {
		candBeacons[i] = Position{X: i, Y: 0, Z: 0}
	}

	registry := NewRegistry([]*Scanner{
		NewScanner(0, refBeacons),
		NewScanner(1, candBeacons),
	}, DefaultMatchThreshold)

	if err := registry.Register(); !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("err = %v, want ErrAmbiguousMatch", err)
	}
}

func TestRegisterEmpty(t *testing.T) {
	registry := NewRegistry(nil, 0)
	if err := registry.Register(); err == nil {
		t.Error("expected error for empty registry")
	}
	if registry.Threshold() != DefaultMatchThreshold {
		t.Errorf("zero threshold should fall back to %d, got %d", DefaultMatchThreshold, registry.Threshold())
	}
}

func TestRegisterSingleScanner(t *testing.T) {
	s := NewScanner(0, []Position{{1, 2, 3}, {4, 5, 6}})
	registry := NewRegistry([]*Scanner{s}, DefaultMatchThreshold)

	if err := registry.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	pos, ok := s.Position()
	if !ok || pos != (Position{}) {
		t.Errorf("lone reference position = %v, want origin", pos)
	}
	if s.Absolute()[1] != (Position{4, 5, 6}) {
		t.Error("reference absolute beacons should equal its local beacons")
	}
}
