package xpbd

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/softsim/spatial"
)

// DefaultFrameTime is the frame length the demos step at.
const DefaultFrameTime = 1.0 / 60.0

// DefaultJacobiScale under-relaxes Jacobi corrections so simultaneous
// application stays stable.
const DefaultJacobiScale = 0.2

// Projection selects how constraints are projected each substep.
type Projection uint8

const (
	// GaussSeidel projects constraints one after another; each correction is
	// visible to the next constraint.
	GaussSeidel Projection = iota
	// Colored projects independent color groups on the worker pool and the
	// remaining constraints in one Jacobi pass.
	Colored
	// Jacobi accumulates every correction and applies the sum scaled by
	// JacobiScale.
	Jacobi
)

// String returns the config name of the projection.
func (p Projection) String() string {
	switch p {
	case GaussSeidel:
		return "gauss_seidel"
	case Colored:
		return "colored"
	case Jacobi:
		return "jacobi"
	default:
		return fmt.Sprintf("projection(%d)", uint8(p))
	}
}

// ParseProjection maps a config name to a Projection.
func ParseProjection(s string) (Projection, error) {
	switch s {
	case "", "gauss_seidel":
		return GaussSeidel, nil
	case "colored":
		return Colored, nil
	case "jacobi":
		return Jacobi, nil
	}
	return GaussSeidel, fmt.Errorf("unknown projection %q", s)
}

// FloorMode selects how the ground plane is enforced.
type FloorMode uint8

const (
	FloorNone FloorMode = iota
	// FloorSnap moves a particle that fell through back to its previous
	// position and clamps its height, during prediction.
	FloorSnap
	// FloorDamped pulls a particle back along its displacement by
	// GroundDamping and lifts it half a thickness above the floor, before
	// constraint projection.
	FloorDamped
)

// Field is an external acceleration sampled per particle, e.g. wind.
type Field interface {
	Acceleration(pos mgl32.Vec3, t float32) mgl32.Vec3
}

// Sphere is a static spherical obstacle.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// Params are the tunables of a solver. They may be changed between steps.
type Params struct {
	Gravity    mgl32.Vec3
	Compliance [NumKinds]float32 // inverse stiffness per kind, 0 = rigid

	// Self-collision
	SelfCollision  bool
	Thickness      float32
	Friction       float32
	MaxSpeedFactor float32 // speed limit = MaxSpeedFactor*Thickness/dt; 0 disables

	Floor         FloorMode
	FloorY        float32
	GroundDamping float32

	Obstacles        []Sphere
	ObstacleFriction float32

	Wind Field

	Projection  Projection
	JacobiScale float32
	Workers     int // 0 = GOMAXPROCS
}

// DefaultParams returns standard gravity with a snapping floor at y = 0.
func DefaultParams() Params {
	return Params{
		Gravity:       mgl32.Vec3{0, -10, 0},
		Floor:         FloorSnap,
		GroundDamping: 1,
		JacobiScale:   DefaultJacobiScale,
	}
}

// Stats describes the last step.
type Stats struct {
	Frame          int
	Time           float32
	AdjacencyPairs int
	Truncated      int
	Skipped        int // constraints skipped as degenerate during the last step
}

// Solver advances one body.
type Solver struct {
	Params

	p   *Particles
	set *Set

	frameTime float32
	substeps  int
	dt        float32
	invDt     float32

	alpha [NumKinds]float32

	adj  *spatial.Adjacency
	grab Grab

	passes []Pass
	corr   []mgl32.Vec3
	pool   *workerPool

	stats Stats
}

// NewSolver creates a solver for particles p constrained by set, stepping
// frameTime per Step split into substeps. It panics if frameTime or substeps
// are not positive.
func NewSolver(p *Particles, set *Set, frameTime float32, substeps int, params Params) *Solver {
	if !(frameTime > 0) {
		panic(fmt.Sprintf("xpbd: frame time must be > 0, got %v", frameTime))
	}
	if set == nil {
		set = &Set{}
	}
	s := &Solver{
		Params:    params,
		p:         p,
		set:       set,
		frameTime: frameTime,
	}
	s.SetSubsteps(substeps)
	if params.Projection == Colored {
		s.Passes()
	}
	return s
}

// SetSubsteps changes the substep count, recomputing dt and its inverse
// together.
func (s *Solver) SetSubsteps(n int) {
	if n <= 0 {
		panic(fmt.Sprintf("xpbd: substeps must be > 0, got %d", n))
	}
	s.substeps = n
	s.dt = s.frameTime / float32(n)
	s.invDt = 1 / s.dt
}

// Substeps returns the number of substeps per Step.
func (s *Solver) Substeps() int { return s.substeps }

// Dt returns the substep length.
func (s *Solver) Dt() float32 { return s.dt }

// InvDt returns 1/Dt.
func (s *Solver) InvDt() float32 { return s.invDt }

// FrameTime returns the length of one Step.
func (s *Solver) FrameTime() float32 { return s.frameTime }

// Particles returns the simulated particles.
func (s *Solver) Particles() *Particles { return s.p }

// Constraints returns the constraint set.
func (s *Solver) Constraints() *Set { return s.set }

// Positions returns the live position buffer. It is never reallocated.
func (s *Solver) Positions() []mgl32.Vec3 { return s.p.Pos }

// Stats returns statistics of the last step.
func (s *Solver) Stats() Stats { return s.stats }

// Adjacency returns the self-collision adjacency index, or nil if
// self-collision has not run yet.
func (s *Solver) Adjacency() *spatial.Adjacency { return s.adj }

// maxSpeed returns the per-particle speed limit, or 0 when unlimited.
func (s *Solver) maxSpeed() float32 {
	if s.MaxSpeedFactor <= 0 || s.Thickness <= 0 {
		return 0
	}
	return s.MaxSpeedFactor * s.Thickness / s.dt
}

// Step advances the body by one frame.
func (s *Solver) Step() {
	s.stats.Skipped = 0
	if s.SelfCollision {
		s.buildAdjacency()
	}

	for k := Kind(0); k < NumKinds; k++ {
		s.alpha[k] = s.Compliance[k] * s.invDt * s.invDt
	}

	for range s.substeps {
		s.preSolve()
		s.solve()
		s.postSolve()
		s.stats.Time += s.dt
	}
	s.stats.Frame++
}

// preSolve applies external accelerations and predicts positions.
func (s *Solver) preSolve() {
	p := s.p
	dt := s.dt
	vmax := s.maxSpeed()
	for i := range p.Pos {
		if p.InvMass[i] == 0 {
			continue
		}
		acc := s.Gravity
		if s.Wind != nil {
			acc = acc.Add(s.Wind.Acceleration(p.Pos[i], s.stats.Time))
		}
		p.Vel[i] = p.Vel[i].Add(acc.Mul(dt))
		if vmax > 0 {
			if v := p.Vel[i].Len(); v > vmax {
				p.Vel[i] = p.Vel[i].Mul(vmax / v)
			}
		}
		p.Prev[i] = p.Pos[i]
		p.Pos[i] = p.Pos[i].Add(p.Vel[i].Mul(dt))

		if s.Floor == FloorSnap && p.Pos[i][1] < s.FloorY {
			p.Pos[i] = p.Prev[i]
			p.Pos[i][1] = s.FloorY
		}
		if len(s.Obstacles) > 0 {
			s.collideObstacles(i)
		}
	}
}

// solve resolves ground contact, projects constraints in kind order and
// resolves self-collisions.
func (s *Solver) solve() {
	if s.Floor == FloorDamped {
		s.solveGround()
	}
	switch s.Projection {
	case Colored:
		s.solveColored()
	case Jacobi:
		s.solveJacobi()
	default:
		s.solveGaussSeidel()
	}
	if s.SelfCollision && s.adj != nil {
		s.solveSelfCollisions()
	}
}

// postSolve rebuilds velocities from the position change.
func (s *Solver) postSolve() {
	p := s.p
	for i := range p.Pos {
		if p.InvMass[i] == 0 {
			continue
		}
		p.Vel[i] = p.Pos[i].Sub(p.Prev[i]).Mul(s.invDt)
	}
}

func (s *Solver) solveGaussSeidel() {
	var corr [4]mgl32.Vec3
	pos := s.p.Pos
	for i := range s.set.Constraints {
		c := &s.set.Constraints[i]
		if !project(c, pos, s.p.InvMass, s.alpha[c.Kind], &corr) {
			s.stats.Skipped++
			continue
		}
		for j := 0; j < c.Kind.Arity(); j++ {
			id := c.IDs[j]
			pos[id] = pos[id].Add(corr[j])
		}
	}
}

// Reset restores the rest pose, releasing any grab, and rewinds the clock.
func (s *Solver) Reset() {
	s.grab.End(s.p, mgl32.Vec3{})
	s.p.Reset()
	s.stats.Frame = 0
	s.stats.Time = 0
}

// SetTime sets the clock the wind field is sampled with. The clock advances
// by dt every substep.
func (s *Solver) SetTime(t float32) { s.stats.Time = t }

// Time returns the solver clock.
func (s *Solver) Time() float32 { return s.stats.Time }

// StartGrab pins the particle nearest to pos and moves it there. It returns
// the grabbed id, or -1 for an empty body.
func (s *Solver) StartGrab(pos mgl32.Vec3) int { return s.grab.Start(s.p, pos) }

// MoveGrabbed moves the grabbed particle to pos.
func (s *Solver) MoveGrabbed(pos mgl32.Vec3) { s.grab.Move(s.p, pos) }

// EndGrab releases the grabbed particle with velocity vel.
func (s *Solver) EndGrab(vel mgl32.Vec3) { s.grab.End(s.p, vel) }

// Grabbed returns the grabbed particle id and whether a grab is active.
func (s *Solver) Grabbed() (int, bool) { return s.grab.ID() }

// Close stops the worker pool used by Colored and Jacobi projection.
func (s *Solver) Close() {
	if s.pool != nil {
		s.pool.stop()
		s.pool = nil
	}
}
