package xpbd

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// Kind selects the compliance a constraint uses and the order in which it is
// projected within a substep.
type Kind uint8

const (
	Stretch Kind = iota
	Shear
	Bending
	Volume

	NumKinds
)

// String returns the config name of the kind.
func (k Kind) String() string {
	switch k {
	case Stretch:
		return "stretch"
	case Shear:
		return "shear"
	case Bending:
		return "bending"
	case Volume:
		return "volume"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Arity returns the number of particles a constraint of this kind couples.
func (k Kind) Arity() int {
	if k == Volume {
		return 4
	}
	return 2
}

// Constraint couples two particles at a rest distance, or four particles of a
// tetrahedron at a rest volume.
type Constraint struct {
	IDs  [4]int32
	Kind Kind
	Rest float32 // rest length or rest volume
}

// Set is the ordered constraint list of one body.
type Set struct {
	Constraints []Constraint
}

// AddDistance appends a distance constraint between a and b. Its rest length
// is captured by Rest.
func (s *Set) AddDistance(kind Kind, a, b int) {
	if kind == Volume {
		panic("xpbd: AddDistance with Volume kind")
	}
	s.Constraints = append(s.Constraints, Constraint{
		IDs:  [4]int32{int32(a), int32(b), -1, -1},
		Kind: kind,
	})
}

// AddVolume appends a volume constraint over tetrahedron (a, b, c, d).
func (s *Set) AddVolume(a, b, c, d int) {
	s.Constraints = append(s.Constraints, Constraint{
		IDs:  [4]int32{int32(a), int32(b), int32(c), int32(d)},
		Kind: Volume,
	})
}

// Rest captures rest lengths and volumes from pos. Builders call it once on
// the rest pose.
func (s *Set) Rest(pos []mgl32.Vec3) {
	for i := range s.Constraints {
		c := &s.Constraints[i]
		if c.Kind == Volume {
			c.Rest = TetVolume(pos[c.IDs[0]], pos[c.IDs[1]], pos[c.IDs[2]], pos[c.IDs[3]])
		} else {
			c.Rest = pos[c.IDs[0]].Sub(pos[c.IDs[1]]).Len()
		}
	}
}

// Sort orders constraints by kind, keeping insertion order within a kind.
func (s *Set) Sort() {
	slices.SortStableFunc(s.Constraints, func(a, b Constraint) int {
		return cmp.Compare(a.Kind, b.Kind)
	})
}

// Len returns the number of constraints.
func (s *Set) Len() int { return len(s.Constraints) }

// Count returns the number of constraints of the given kind.
func (s *Set) Count(kind Kind) int {
	n := 0
	for i := range s.Constraints {
		if s.Constraints[i].Kind == kind {
			n++
		}
	}
	return n
}

// RelativeErrors appends |C|/rest for every constraint of the given kind
// with a nonzero rest value to dst. For Volume the error is the relative
// volume change.
func (s *Set) RelativeErrors(dst []float64, pos []mgl32.Vec3, kind Kind) []float64 {
	for i := range s.Constraints {
		c := &s.Constraints[i]
		if c.Kind != kind || c.Rest == 0 {
			continue
		}
		if kind == Volume {
			v := TetVolume(pos[c.IDs[0]], pos[c.IDs[1]], pos[c.IDs[2]], pos[c.IDs[3]])
			dst = append(dst, math.Abs(float64(v-c.Rest))/math.Abs(float64(c.Rest)))
			continue
		}
		l := pos[c.IDs[0]].Sub(pos[c.IDs[1]]).Len()
		dst = append(dst, math.Abs(float64(l-c.Rest))/float64(c.Rest))
	}
	return dst
}

// TetVolume returns the signed volume of tetrahedron (p0, p1, p2, p3).
func TetVolume(p0, p1, p2, p3 mgl32.Vec3) float32 {
	return p1.Sub(p0).Cross(p2.Sub(p0)).Dot(p3.Sub(p0)) / 6
}

// volIDOrder lists, for each tet vertex, the face opposite to it wound so the
// cross product is the volume gradient at that vertex.
var volIDOrder = [4][3]int{{1, 3, 2}, {0, 2, 3}, {0, 3, 1}, {0, 1, 2}}

// project computes the position corrections of one constraint into corr.
// It returns false when the constraint is skipped: every participant pinned,
// or a degenerate gradient (coincident particles).
func project(c *Constraint, pos []mgl32.Vec3, invMass []float32, alpha float32, corr *[4]mgl32.Vec3) bool {
	if c.Kind != Volume {
		id0, id1 := c.IDs[0], c.IDs[1]
		w0, w1 := invMass[id0], invMass[id1]
		w := w0 + w1
		if w == 0 {
			return false
		}
		grad := pos[id0].Sub(pos[id1])
		l := grad.Len()
		if l == 0 {
			return false
		}
		grad = grad.Mul(1 / l)
		s := -(l - c.Rest) / (w + alpha)
		corr[0] = grad.Mul(s * w0)
		corr[1] = grad.Mul(-s * w1)
		return true
	}

	var grads [4]mgl32.Vec3
	var w float32
	for j := 0; j < 4; j++ {
		o := volIDOrder[j]
		p0 := pos[c.IDs[o[0]]]
		grads[j] = pos[c.IDs[o[1]]].Sub(p0).Cross(pos[c.IDs[o[2]]].Sub(p0)).Mul(1.0 / 6)
		w += invMass[c.IDs[j]] * grads[j].Dot(grads[j])
	}
	if w == 0 {
		return false
	}
	vol := TetVolume(pos[c.IDs[0]], pos[c.IDs[1]], pos[c.IDs[2]], pos[c.IDs[3]])
	s := -(vol - c.Rest) / (w + alpha)
	for j := 0; j < 4; j++ {
		corr[j] = grads[j].Mul(s * invMass[c.IDs[j]])
	}
	return true
}
