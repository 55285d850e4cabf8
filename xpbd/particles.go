// Package xpbd implements an Extended Position-Based Dynamics solver for
// particle bodies: cloth, self-colliding cloth and tetrahedral soft bodies.
//
// A body is a Particles buffer plus a constraint Set. The Solver advances it
// by fixed frames split into substeps; each substep predicts positions,
// projects constraints in order, resolves collisions and rebuilds velocities
// from the position change.
package xpbd

import "github.com/go-gl/mathgl/mgl32"

// Particles holds the per-particle state of one body.
// Slices are allocated once and only mutated in place, so callers may keep
// references to Pos between steps.
type Particles struct {
	Pos     []mgl32.Vec3
	Prev    []mgl32.Vec3
	Vel     []mgl32.Vec3
	Rest    []mgl32.Vec3 // reference pose used by Reset and self-collision
	InvMass []float32    // 0 = pinned
}

// NewParticles allocates particles at the given rest pose with zero velocity
// and zero inverse mass.
func NewParticles(rest []mgl32.Vec3) *Particles {
	n := len(rest)
	p := &Particles{
		Pos:     make([]mgl32.Vec3, n),
		Prev:    make([]mgl32.Vec3, n),
		Vel:     make([]mgl32.Vec3, n),
		Rest:    make([]mgl32.Vec3, n),
		InvMass: make([]float32, n),
	}
	copy(p.Rest, rest)
	copy(p.Pos, rest)
	copy(p.Prev, rest)
	return p
}

// Len returns the number of particles.
func (p *Particles) Len() int { return len(p.Pos) }

// Pin fixes particle i in place.
func (p *Particles) Pin(i int) { p.InvMass[i] = 0 }

// Pinned reports whether particle i has infinite mass.
func (p *Particles) Pinned(i int) bool { return p.InvMass[i] == 0 }

// Reset moves every particle back to its rest pose and clears velocities.
func (p *Particles) Reset() {
	copy(p.Pos, p.Rest)
	copy(p.Prev, p.Rest)
	clear(p.Vel)
}

// Translate shifts current, previous and rest positions by d.
func (p *Particles) Translate(d mgl32.Vec3) {
	for i := range p.Pos {
		p.Pos[i] = p.Pos[i].Add(d)
		p.Prev[i] = p.Prev[i].Add(d)
		p.Rest[i] = p.Rest[i].Add(d)
	}
}

// Squash flattens all particles onto the plane y = h.
func (p *Particles) Squash(h float32) {
	for i := range p.Pos {
		p.Pos[i][1] = h
	}
}

// KineticEnergy returns the sum of 0.5*m*|v|^2 over unpinned particles.
func (p *Particles) KineticEnergy() float64 {
	var e float64
	for i, w := range p.InvMass {
		if w == 0 {
			continue
		}
		v := p.Vel[i]
		e += 0.5 * float64(v.Dot(v)) / float64(w)
	}
	return e
}

// Bounds returns the axis-aligned bounding box of the current positions.
func (p *Particles) Bounds() (lo, hi mgl32.Vec3) {
	if len(p.Pos) == 0 {
		return lo, hi
	}
	lo, hi = p.Pos[0], p.Pos[0]
	for _, q := range p.Pos[1:] {
		for d := 0; d < 3; d++ {
			lo[d] = min(lo[d], q[d])
			hi[d] = max(hi[d], q[d])
		}
	}
	return lo, hi
}
