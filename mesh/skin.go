package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/softsim/spatial"
)

type skinInfo struct {
	tet  int32 // -1 when no tet was found nearby
	bary [3]float32
}

// Skin binds the vertices of a visual surface to the tets of a simulation
// mesh by barycentric coordinates.
type Skin struct {
	tets [][4]int32
	info []skinInfo
}

// NewSkin assigns each surface vertex to the tet that contains it, or to the
// tet it lies least outside of. Candidates are found with a spatial hash of
// the surface vertices, so vertices farther than spacing from every tet stay
// unbound.
func NewSkin(tetPos []mgl32.Vec3, tets [][4]int32, surface []mgl32.Vec3, spacing float32) *Skin {
	s := &Skin{
		tets: tets,
		info: make([]skinInfo, len(surface)),
	}
	for i := range s.info {
		s.info[i].tet = -1
	}
	if len(surface) == 0 {
		return s
	}

	hash := spatial.NewHash(spacing, len(surface))
	hash.Create(surface)

	minDist := make([]float32, len(surface))
	for i := range minDist {
		minDist[i] = math.MaxFloat32
	}

	for ti, t := range tets {
		var center mgl32.Vec3
		for _, id := range t {
			center = center.Add(tetPos[id].Mul(0.25))
		}
		var rmax float32
		for _, id := range t {
			rmax = max(rmax, tetPos[id].Sub(center).Len())
		}
		rmax += spacing

		p3 := tetPos[t[3]]
		inv := mgl32.Mat3FromCols(
			tetPos[t[0]].Sub(p3),
			tetPos[t[1]].Sub(p3),
			tetPos[t[2]].Sub(p3),
		).Inv()

		for _, id := range hash.Query(center, rmax) {
			if minDist[id] <= 0 {
				continue
			}
			d := surface[id].Sub(center)
			if d.Dot(d) > rmax*rmax {
				continue
			}
			b := inv.Mul3x1(surface[id].Sub(p3))
			b3 := 1 - b[0] - b[1] - b[2]
			dist := max(-b[0], -b[1], -b[2], -b3)
			if dist < minDist[id] {
				minDist[id] = dist
				s.info[id] = skinInfo{tet: int32(ti), bary: [3]float32{b[0], b[1], b[2]}}
			}
		}
	}
	return s
}

// Bound returns the number of surface vertices attached to a tet.
func (s *Skin) Bound() int {
	n := 0
	for _, in := range s.info {
		if in.tet >= 0 {
			n++
		}
	}
	return n
}

// Update rewrites the bound surface vertices from the current tet positions.
func (s *Skin) Update(tetPos, surface []mgl32.Vec3) {
	for i, in := range s.info {
		if in.tet < 0 {
			continue
		}
		t := s.tets[in.tet]
		b := in.bary
		b3 := 1 - b[0] - b[1] - b[2]
		surface[i] = tetPos[t[0]].Mul(b[0]).
			Add(tetPos[t[1]].Mul(b[1])).
			Add(tetPos[t[2]].Mul(b[2])).
			Add(tetPos[t[3]].Mul(b3))
	}
}
