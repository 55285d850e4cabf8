package xpbd

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Grab drags a single particle. While grabbed the particle's inverse mass is
// borrowed (set to 0) so constraints treat it as kinematic; End returns it.
type Grab struct {
	id      int
	saved   float32
	grabbed bool
}

// Start grabs the particle nearest to pos and snaps it there. An existing
// grab is released first. It returns the grabbed id, or -1 if p is empty.
func (g *Grab) Start(p *Particles, pos mgl32.Vec3) int {
	if g.grabbed {
		g.End(p, p.Vel[g.id])
	}

	best := -1
	minD2 := float32(math.MaxFloat32)
	for i, q := range p.Pos {
		d := pos.Sub(q)
		if d2 := d.Dot(d); d2 < minD2 {
			minD2 = d2
			best = i
		}
	}
	if best < 0 {
		return -1
	}

	g.id = best
	g.saved = p.InvMass[best]
	g.grabbed = true
	p.InvMass[best] = 0
	p.Pos[best] = pos
	return best
}

// Move places the grabbed particle at pos.
func (g *Grab) Move(p *Particles, pos mgl32.Vec3) {
	if g.grabbed {
		p.Pos[g.id] = pos
	}
}

// End restores the grabbed particle's inverse mass and gives it velocity vel.
func (g *Grab) End(p *Particles, vel mgl32.Vec3) {
	if !g.grabbed {
		return
	}
	p.InvMass[g.id] = g.saved
	p.Vel[g.id] = vel
	g.grabbed = false
	g.id = 0
	g.saved = 0
}

// ID returns the grabbed particle and whether a grab is active.
func (g *Grab) ID() (int, bool) {
	if !g.grabbed {
		return -1, false
	}
	return g.id, true
}
