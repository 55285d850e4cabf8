package xpbd

import (
	"math"

	"github.com/pthm-cable/softsim/mesh"
)

// ClothOptions configures the cloth builders.
type ClothOptions struct {
	AttachCorners bool // pin the two top corners
}

// NewCloth builds a cloth from a triangle mesh: a stretch constraint per edge
// and a bending constraint across every interior edge. Each triangle adds
// 1/(3*area) to the inverse mass of its vertices.
func NewCloth(m *mesh.TriMesh, opts ClothOptions) (*Particles, *Set) {
	p := NewParticles(m.Verts)
	for t, tri := range m.Tris {
		a := m.TriangleArea(t)
		if a <= 0 {
			continue
		}
		w := 1 / a / 3
		for _, id := range tri {
			p.InvMass[id] += w
		}
	}

	set := &Set{}
	for _, e := range m.Edges() {
		set.AddDistance(Stretch, int(e[0]), int(e[1]))
	}
	for _, b := range m.BendingPairs() {
		set.AddDistance(Bending, int(b[0]), int(b[1]))
	}
	set.Rest(p.Pos)
	set.Sort()

	if opts.AttachCorners {
		pinTopCorners(p)
	}
	return p, set
}

// pinTopCorners pins the particles at the highest y and the extreme x.
func pinTopCorners(p *Particles) {
	const eps = 1e-4
	minX, maxX := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	maxY := float32(-math.MaxFloat32)
	for _, q := range p.Pos {
		minX = min(minX, q[0])
		maxX = max(maxX, q[0])
		maxY = max(maxY, q[1])
	}
	for i, q := range p.Pos {
		if q[1] > maxY-eps && (q[0] < minX+eps || q[0] > maxX-eps) {
			p.Pin(i)
		}
	}
}

var linkKinds = [...]Kind{
	mesh.LinkStretch: Stretch,
	mesh.LinkShear:   Shear,
	mesh.LinkBending: Bending,
}

// NewGridCloth builds a cloth from a regular grid with unit inverse mass and
// stretch, shear and bending links. With AttachCorners the vertices at the
// last row's two ends are pinned.
func NewGridCloth(g *mesh.Grid, opts ClothOptions) (*Particles, *Set) {
	p := NewParticles(g.Verts)
	for i := range p.InvMass {
		p.InvMass[i] = 1
	}
	if opts.AttachCorners {
		p.Pin(g.ID(0, g.NumY-1))
		p.Pin(g.ID(g.NumX-1, g.NumY-1))
	}

	set := &Set{Constraints: make([]Constraint, 0, len(g.Links))}
	for _, l := range g.Links {
		set.AddDistance(linkKinds[l.Kind], int(l.A), int(l.B))
	}
	set.Rest(p.Pos)
	set.Sort()
	return p, set
}

// NewSoftBody builds a soft body from a tet mesh: a stretch constraint per
// tet edge and a volume constraint per tet. Each tet adds 4/volume to the
// inverse mass of its vertices.
func NewSoftBody(m *mesh.TetMesh) (*Particles, *Set) {
	p := NewParticles(m.Verts)
	set := &Set{Constraints: make([]Constraint, 0, len(m.Edges)+len(m.Tets))}

	for _, t := range m.Tets {
		vol := TetVolume(p.Pos[t[0]], p.Pos[t[1]], p.Pos[t[2]], p.Pos[t[3]])
		if vol > 0 {
			w := 1 / (vol / 4)
			for _, id := range t {
				p.InvMass[id] += w
			}
		}
		set.AddVolume(int(t[0]), int(t[1]), int(t[2]), int(t[3]))
	}
	for _, e := range m.Edges {
		set.AddDistance(Stretch, int(e[0]), int(e[1]))
	}
	set.Rest(p.Pos)
	set.Sort()
	return p, set
}
