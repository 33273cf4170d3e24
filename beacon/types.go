package beacon

import "fmt"

// Position is a point in 3D space with exact integer coordinates. It is used
// both for beacon locations and for scanner positions. Being a plain value
// struct it compares structurally and can key a map directly.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Add returns p translated by v.
func (p Position) Add(v Position) Position {
	return Position{X: p.X + v.X, Y: p.Y + v.Y, Z: p.Z + v.Z}
}

// Sub returns the translation vector from q to p (p - q).
func (p Position) Sub(q Position) Position {
	return Position{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Manhattan returns the L1 distance between p and q.
func (p Position) Manhattan(q Position) int {
	return abs(p.X-q.X) + abs(p.Y-q.Y) + abs(p.Z-q.Z)
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Pose is a scanner's resolved placement in the shared frame: one of the 24
// axis-aligned orientations plus a translation. A beacon reported locally as
// b sits at Orient(b, Orientation).Add(Translation) in the shared frame.
type Pose struct {
	Orientation int      `json:"orientation"`
	Translation Position `json:"translation"`
}

// Apply maps a scanner-local position into the shared frame.
func (po Pose) Apply(p Position) Position {
	return Orient(p, po.Orientation).Add(po.Translation)
}

// Scanner holds one sonar unit's report and, once registered, its placement
// in the shared frame. Local is never mutated after construction; the
// absolute fields are written exactly once, by the registry.
type Scanner struct {
	ID    int
	Local []Position

	resolved bool
	pose     Pose
	absolute []Position
}

// NewScanner creates an unregistered scanner from its reported beacons.
// The beacon slice is copied so the caller cannot alias the report.
func NewScanner(id int, beacons []Position) *Scanner {
	local := make([]Position, len(beacons))
	copy(local, beacons)
	return &Scanner{ID: id, Local: local}
}

// Resolved reports whether the scanner's placement is known.
func (s *Scanner) Resolved() bool {
	return s.resolved
}

// Pose returns the scanner's placement. The second return is false until the
// scanner has been registered.
func (s *Scanner) Pose() (Pose, bool) {
	return s.pose, s.resolved
}

// Position returns the scanner's location in the shared frame, or false if
// it has not been registered yet.
func (s *Scanner) Position() (Position, bool) {
	return s.pose.Translation, s.resolved
}

// Absolute returns the scanner's beacons in the shared frame. Nil until the
// scanner has been registered.
func (s *Scanner) Absolute() []Position {
	return s.absolute
}

// commit records the scanner's placement and derived absolute beacons.
// It is a no-op if the scanner is already resolved: registration never
// recomputes a placed scanner.
func (s *Scanner) commit(pose Pose, absolute []Position) {
	if s.resolved {
		return
	}
	s.pose = pose
	s.absolute = absolute
	s.resolved = true
}
