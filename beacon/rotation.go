package beacon

// NumOrientations is the size of the axis-aligned rotation group in 3D
// (the resting orientations of a cube: 6 faces x 4 spins, no reflections).
const NumOrientations = 24

// RotateX rotates a position 90 degrees about the x-axis.
func RotateX(p Position) Position {
	return Position{X: p.X, Y: p.Z, Z: -p.Y}
}

// RotateY rotates a position 90 degrees about the y-axis.
func RotateY(p Position) Position {
	return Position{X: p.Z, Y: p.Y, Z: -p.X}
}

// Orient applies one of the 24 canonical orientations to p. The index is
// decomposed as face = o/4 and spin = o%4: the face component rotates one of
// the six cube faces into the original +x direction, the spin component then
// rotates around that axis. Orientation 0 is the identity.
//
// Faces 0-3 are that many x-axis rotations; face 4 is a y-axis rotation
// followed by an x-axis rotation; face 5 is three y-axis rotations followed
// by an x-axis rotation. The spin is applied as y-axis rotations afterwards.
func Orient(p Position, o int) Position {
	face, spin := o/4, o%4

	switch face {
	case 1, 2, 3:
		for i := 0; i < face; i++ {
			p = RotateX(p)
		}
	case 4:
		p = RotateX(RotateY(p))
	case 5:
		p = RotateX(RotateY(RotateY(RotateY(p))))
	}

	for i := 0; i < spin; i++ {
		p = RotateY(p)
	}
	return p
}

// OrientAll applies the orientation to every position in a slice.
func OrientAll(points []Position, o int) []Position {
	result := make([]Position, len(points))
	for i, p := range points {
		result[i] = Orient(p, o)
	}
	return result
}

// InverseOrientation returns the orientation index that undoes o.
// The 24 orientations form a group, so the inverse always exists; it is
// found by composition against a probe point with distinct coordinate
// magnitudes, which only the identity fixes.
func InverseOrientation(o int) int {
	probe := Position{X: 1, Y: 2, Z: 3}
	rotated := Orient(probe, o)
	for inv := 0; inv < NumOrientations; inv++ {
		if Orient(rotated, inv) == probe {
			return inv
		}
	}
	// Unreachable for valid indices.
	return 0
}
