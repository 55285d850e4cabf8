package xpbd

import (
	"math"

	"github.com/pthm-cable/softsim/spatial"
)

// collideObstacles pushes particle i out of every sphere obstacle, blending
// toward its previous position by ObstacleFriction first.
func (s *Solver) collideObstacles(i int) {
	p := s.p
	for _, o := range s.Obstacles {
		r := o.Radius + s.Thickness
		if p.Pos[i].Sub(o.Center).Len() >= r {
			continue
		}
		f := s.ObstacleFriction
		q := p.Pos[i].Mul(1 - f).Add(p.Prev[i].Mul(f))
		d := q.Sub(o.Center)
		l := d.Len()
		if l == 0 {
			continue
		}
		p.Pos[i] = o.Center.Add(d.Mul(r / l))
	}
}

// solveGround keeps unpinned particles half a thickness above the floor.
func (s *Solver) solveGround() {
	p := s.p
	h := s.FloorY + 0.5*s.Thickness
	for i := range p.Pos {
		if p.InvMass[i] == 0 || p.Pos[i][1] >= h {
			continue
		}
		d := p.Pos[i].Sub(p.Prev[i])
		p.Pos[i] = p.Pos[i].Sub(d.Mul(s.GroundDamping))
		p.Pos[i][1] = h
	}
}

// buildAdjacency rebuilds the self-collision neighbour lists once per frame.
// The query radius covers the farthest a particle can travel in one frame.
func (s *Solver) buildAdjacency() {
	if !(s.Thickness > 0) {
		panic("xpbd: self-collision needs Thickness > 0")
	}
	if s.adj == nil || s.adj.Hash().Spacing() != s.Thickness {
		s.adj = spatial.NewAdjacency(s.Thickness, s.p.Len())
	}
	maxDist := s.Thickness
	if v := s.maxSpeed(); v > 0 {
		maxDist = v * s.dt * float32(s.substeps)
	}
	s.adj.Create(s.p.Pos)
	s.adj.QueryAll(s.p.Pos, maxDist)
	s.stats.AdjacencyPairs = s.adj.Len()
	s.stats.Truncated = s.adj.Truncated()
}

// solveSelfCollisions separates particle pairs closer than the thickness.
// Pairs already closer than that at rest are only held at their rest
// distance, so folds and tight seams are not pushed apart.
func (s *Solver) solveSelfCollisions() {
	p := s.p
	thickness := s.Thickness
	thicknessSq := thickness * thickness
	for i := range p.Pos {
		if p.InvMass[i] == 0 {
			continue
		}
		for _, nj := range s.adj.Neighbors(i) {
			j := int(nj)
			if p.InvMass[j] == 0 {
				continue
			}
			grad := p.Pos[j].Sub(p.Pos[i])
			distSq := grad.Dot(grad)
			if distSq > thicknessSq || distSq == 0 {
				continue
			}
			rd := p.Rest[i].Sub(p.Rest[j])
			restDistSq := rd.Dot(rd)
			if distSq > restDistSq {
				continue
			}
			minDist := thickness
			if restDistSq < thicknessSq {
				minDist = float32(math.Sqrt(float64(restDistSq)))
			}

			// position correction
			dist := float32(math.Sqrt(float64(distSq)))
			grad = grad.Mul((minDist - dist) / dist)
			p.Pos[i] = p.Pos[i].Sub(grad.Mul(0.5))
			p.Pos[j] = p.Pos[j].Add(grad.Mul(0.5))

			// friction: damp relative motion toward the pair average
			v0 := p.Pos[i].Sub(p.Prev[i])
			v1 := p.Pos[j].Sub(p.Prev[j])
			avg := v0.Add(v1).Mul(0.5)
			p.Pos[i] = p.Pos[i].Add(avg.Sub(v0).Mul(s.Friction))
			p.Pos[j] = p.Pos[j].Add(avg.Sub(v1).Mul(s.Friction))
		}
	}
}
