package xpbd

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/softsim/mesh"
)

var projections = []Projection{GaussSeidel, Colored, Jacobi}

func vecNear(t *testing.T, want, got mgl32.Vec3, delta float64, msgAndArgs ...any) {
	t.Helper()
	assert.InDelta(t, 0, got.Sub(want).Len(), delta, msgAndArgs...)
}

func newGridCloth(t *testing.T, nx, ny int, attach bool) (*Particles, *Set) {
	t.Helper()
	g := mesh.ClothGrid(nx, ny, 0.1, mgl32.Vec3{0, 1, 0}, mesh.PlaneXY)
	return NewGridCloth(g, ClothOptions{AttachCorners: attach})
}

func TestNewSolverPanics(t *testing.T) {
	p := NewParticles([]mgl32.Vec3{{}})
	assert.Panics(t, func() { NewSolver(p, nil, 0, 10, DefaultParams()) })
	assert.Panics(t, func() { NewSolver(p, nil, DefaultFrameTime, 0, DefaultParams()) })
}

func TestSetSubsteps(t *testing.T) {
	p := NewParticles([]mgl32.Vec3{{}})
	s := NewSolver(p, nil, DefaultFrameTime, 10, DefaultParams())

	for _, n := range []int{1, 5, 15, 40} {
		s.SetSubsteps(n)
		assert.Equal(t, n, s.Substeps())
		assert.InDelta(t, DefaultFrameTime/float64(n), s.Dt(), 1e-7)
		assert.InDelta(t, 1.0, s.Dt()*s.InvDt(), 1e-6)
	}

	assert.Panics(t, func() { s.SetSubsteps(0) })
	assert.Panics(t, func() { s.SetSubsteps(-3) })
	assert.Equal(t, 40, s.Substeps(), "failed SetSubsteps must not change state")
}

func TestFreeParticleKeepsVelocity(t *testing.T) {
	tests := []struct {
		name string
		vel  mgl32.Vec3
	}{
		{"at rest", mgl32.Vec3{}},
		{"moving", mgl32.Vec3{1, -0.5, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := mgl32.Vec3{0.01, 0.02, -0.01}
			p := NewParticles([]mgl32.Vec3{start})
			p.InvMass[0] = 1
			p.Vel[0] = tt.vel

			params := DefaultParams()
			params.Gravity = mgl32.Vec3{}
			params.Floor = FloorNone
			s := NewSolver(p, nil, DefaultFrameTime, 10, params)

			for range 5 {
				s.Step()
			}
			vecNear(t, tt.vel, p.Vel[0], 1e-3)
			vecNear(t, start.Add(tt.vel.Mul(5*DefaultFrameTime)), p.Pos[0], 1e-4)
		})
	}
}

func TestPinnedParticlesNeverMove(t *testing.T) {
	for _, proj := range projections {
		t.Run(proj.String(), func(t *testing.T) {
			p, set := newGridCloth(t, 12, 12, true)
			params := DefaultParams()
			params.Projection = proj
			params.Workers = 3
			params.Compliance[Stretch] = 1e-6
			s := NewSolver(p, set, DefaultFrameTime, 8, params)
			defer s.Close()

			var pinned []int
			for i := range p.InvMass {
				if p.Pinned(i) {
					pinned = append(pinned, i)
				}
			}
			require.Len(t, pinned, 2)

			for range 30 {
				s.Step()
				for _, i := range pinned {
					require.Equal(t, p.Rest[i], p.Pos[i])
					require.Equal(t, mgl32.Vec3{}, p.Vel[i])
				}
			}
		})
	}
}

func TestRestPoseIsStable(t *testing.T) {
	for _, proj := range projections {
		t.Run(proj.String(), func(t *testing.T) {
			p, set := newGridCloth(t, 20, 20, false)
			params := DefaultParams()
			params.Gravity = mgl32.Vec3{}
			params.Projection = proj
			params.Workers = 4
			s := NewSolver(p, set, DefaultFrameTime, 10, params)
			defer s.Close()

			for range 10 {
				s.Step()
			}
			for i := range p.Pos {
				vecNear(t, p.Rest[i], p.Pos[i], 1e-5, "particle %d", i)
			}
		})
	}
}

func TestSoftBodyRestPoseIsStable(t *testing.T) {
	p, set := NewSoftBody(mesh.TetBox(2, 2, 2, 0.1, mgl32.Vec3{0, 1, 0}))
	params := DefaultParams()
	params.Gravity = mgl32.Vec3{}
	s := NewSolver(p, set, DefaultFrameTime, 10, params)

	for range 10 {
		s.Step()
	}
	for i := range p.Pos {
		vecNear(t, p.Rest[i], p.Pos[i], 1e-5)
	}
}

func TestComplianceMonotonicity(t *testing.T) {
	pos := []mgl32.Vec3{{0, 0, 0}, {1.5, 0, 0}}
	invMass := []float32{1, 1}
	c := Constraint{IDs: [4]int32{0, 1, -1, -1}, Kind: Stretch, Rest: 1}

	prev := float32(-1)
	for _, alpha := range []float32{0, 0.01, 0.1, 1, 10, 1000} {
		var corr [4]mgl32.Vec3
		require.True(t, project(&c, pos, invMass, alpha, &corr))
		mag := corr[0].Len()
		if prev >= 0 {
			assert.LessOrEqual(t, mag, prev, "alpha %v", alpha)
		}
		prev = mag
	}
}

func TestVolumeProjectionRestoresVolume(t *testing.T) {
	pos := []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	invMass := []float32{1, 1, 1, 1}
	c := Constraint{IDs: [4]int32{0, 1, 2, 3}, Kind: Volume}
	c.Rest = TetVolume(pos[0], pos[1], pos[2], pos[3])
	require.Greater(t, c.Rest, float32(0))

	pos[3] = mgl32.Vec3{0, 0, 0.5}
	before := TetVolume(pos[0], pos[1], pos[2], pos[3])

	var corr [4]mgl32.Vec3
	require.True(t, project(&c, pos, invMass, 0, &corr))
	for j := range 4 {
		pos[j] = pos[j].Add(corr[j])
	}
	after := TetVolume(pos[0], pos[1], pos[2], pos[3])
	assert.Less(t, abs32(after-c.Rest), abs32(before-c.Rest))
}

func TestRelativeErrors(t *testing.T) {
	pos := []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	set := &Set{}
	set.AddDistance(Stretch, 0, 1)
	set.AddDistance(Bending, 0, 2)
	set.AddVolume(0, 1, 2, 3)
	set.Rest(pos)

	pos[1] = mgl32.Vec3{1.5, 0, 0}

	stretch := set.RelativeErrors(nil, pos, Stretch)
	require.Len(t, stretch, 1)
	assert.InDelta(t, 0.5, stretch[0], 1e-6)

	bending := set.RelativeErrors(nil, pos, Bending)
	require.Len(t, bending, 1)
	assert.InDelta(t, 0, bending[0], 1e-6)

	volume := set.RelativeErrors(stretch, pos, Volume)
	require.Len(t, volume, 2, "appends to dst")
	assert.InDelta(t, 0.5, volume[1], 1e-6)
}

func TestProjectSkipsDegenerate(t *testing.T) {
	var corr [4]mgl32.Vec3
	c := Constraint{IDs: [4]int32{0, 1, -1, -1}, Kind: Stretch, Rest: 1}

	assert.False(t, project(&c, []mgl32.Vec3{{}, {1, 0, 0}}, []float32{0, 0}, 0, &corr), "all pinned")
	assert.False(t, project(&c, []mgl32.Vec3{{1, 1, 1}, {1, 1, 1}}, []float32{1, 1}, 0, &corr), "coincident")

	v := Constraint{IDs: [4]int32{0, 1, 2, 3}, Kind: Volume, Rest: 1}
	flat := []mgl32.Vec3{{}, {}, {}, {}}
	assert.False(t, project(&v, flat, []float32{1, 1, 1, 1}, 0, &corr))
}

func TestSkippedConstraintsAreCounted(t *testing.T) {
	p := NewParticles([]mgl32.Vec3{{0, 1, 0}, {1, 1, 0}})
	set := &Set{}
	set.AddDistance(Stretch, 0, 1)
	set.Rest(p.Pos)

	s := NewSolver(p, set, DefaultFrameTime, 6, DefaultParams())
	s.Step()
	assert.Equal(t, 6, s.Stats().Skipped)
	assert.Equal(t, 1, s.Stats().Frame)
}

func TestHangingQuadFallsWithoutExploding(t *testing.T) {
	for _, proj := range projections {
		t.Run(proj.String(), func(t *testing.T) {
			g := mesh.ClothGrid(2, 2, 1, mgl32.Vec3{0, 1, 0}, mesh.PlaneXY)
			p, set := NewGridCloth(g, ClothOptions{AttachCorners: true})

			params := DefaultParams()
			params.Projection = proj
			params.Compliance[Stretch] = 1e-4
			params.Compliance[Shear] = 1e-4
			s := NewSolver(p, set, DefaultFrameTime, 15, params)
			defer s.Close()

			top := []int{g.ID(0, 1), g.ID(1, 1)}
			bottom := []int{g.ID(0, 0), g.ID(1, 0)}
			for _, i := range top {
				require.True(t, p.Pinned(i))
			}
			start := []mgl32.Vec3{p.Pos[bottom[0]], p.Pos[bottom[1]]}

			s.Step()

			for k, i := range bottom {
				assert.Less(t, p.Pos[i][1], start[k][1], "bottom particle %d must fall", i)
				d := p.Pos[i].Sub(p.Pos[top[k]]).Len()
				assert.LessOrEqual(t, d, float32(1.5))
			}
		})
	}
}

func TestSoftBodyKeepsVolumeOnFloor(t *testing.T) {
	box := mesh.TetBox(3, 3, 3, 0.1, mgl32.Vec3{0, 0.3, 0})
	p, set := NewSoftBody(box)
	s := NewSolver(p, set, DefaultFrameTime, 10, DefaultParams())

	for range 120 {
		s.Step()
	}

	var vol float32
	for _, tet := range box.Tets {
		vol += TetVolume(p.Pos[tet[0]], p.Pos[tet[1]], p.Pos[tet[2]], p.Pos[tet[3]])
	}
	assert.InDelta(t, box.Volume(), vol, 0.2*float64(box.Volume()))

	lo, _ := p.Bounds()
	assert.Greater(t, lo[1], float32(-0.05), "body fell through the floor")
}

func TestResetRestoresRestPose(t *testing.T) {
	p, set := newGridCloth(t, 5, 5, true)
	s := NewSolver(p, set, DefaultFrameTime, 5, DefaultParams())
	s.StartGrab(p.Pos[3])
	for range 10 {
		s.Step()
	}
	s.Reset()

	_, grabbed := s.Grabbed()
	assert.False(t, grabbed)
	for i := range p.Pos {
		assert.Equal(t, p.Rest[i], p.Pos[i])
		assert.Equal(t, mgl32.Vec3{}, p.Vel[i])
	}
	assert.Equal(t, float32(1), p.InvMass[3])
}

func TestSelfCollisionSeparatesPair(t *testing.T) {
	tests := []struct {
		name     string
		rest     mgl32.Vec3 // rest position of particle 1
		wantDist float32
	}{
		{"pushed to thickness", mgl32.Vec3{1, 0, 0}, 0.01},
		{"closer at rest is left alone", mgl32.Vec3{0.002, 0, 0}, 0.005},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParticles([]mgl32.Vec3{{0, 1, 0}, mgl32.Vec3{0, 1, 0}.Add(tt.rest)})
			p.InvMass[0], p.InvMass[1] = 1, 1
			p.Pos[1] = mgl32.Vec3{0.005, 1, 0}

			params := DefaultParams()
			params.Gravity = mgl32.Vec3{}
			params.Floor = FloorNone
			params.SelfCollision = true
			params.Thickness = 0.01
			s := NewSolver(p, nil, DefaultFrameTime, 1, params)
			s.Step()

			require.NotNil(t, s.Adjacency())
			assert.GreaterOrEqual(t, s.Stats().AdjacencyPairs, 1)
			assert.InDelta(t, tt.wantDist, p.Pos[1].Sub(p.Pos[0]).Len(), 1e-5)
		})
	}
}

func TestSelfCollisionFriction(t *testing.T) {
	tests := []struct {
		name     string
		friction float32
	}{
		{"frictionless pair keeps sliding", 0},
		{"full friction removes sliding", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// two particles side by side, sliding past each other along z
			p := NewParticles([]mgl32.Vec3{{0, 1, 0}, {1, 1, 0}})
			p.InvMass[0], p.InvMass[1] = 1, 1
			p.Pos[1] = mgl32.Vec3{0.005, 1, 0}
			p.Vel[0] = mgl32.Vec3{0, 0, 0.1}
			p.Vel[1] = mgl32.Vec3{0, 0, -0.1}

			params := DefaultParams()
			params.Gravity = mgl32.Vec3{}
			params.Floor = FloorNone
			params.SelfCollision = true
			params.Thickness = 0.01
			params.Friction = tt.friction
			s := NewSolver(p, nil, DefaultFrameTime, 1, params)
			s.Step()

			rel := p.Vel[1].Sub(p.Vel[0])
			if tt.friction == 1 {
				vecNear(t, mgl32.Vec3{}, rel, 1e-4, "relative velocity")
				vecNear(t, mgl32.Vec3{}, p.Vel[0].Add(p.Vel[1]), 1e-4, "pair momentum is kept")
			} else {
				assert.Less(t, rel[2], float32(-0.1))
				assert.InDelta(t, 0.01, p.Pos[1].Sub(p.Pos[0]).Len(), 1e-5)
			}
		})
	}
}

func TestSelfCollisionPanicsWithoutThickness(t *testing.T) {
	p := NewParticles([]mgl32.Vec3{{}})
	params := DefaultParams()
	params.SelfCollision = true
	s := NewSolver(p, nil, DefaultFrameTime, 1, params)
	assert.Panics(t, s.Step)
}

func TestSpeedLimit(t *testing.T) {
	p := NewParticles([]mgl32.Vec3{{0, 5, 0}})
	p.InvMass[0] = 1
	p.Vel[0] = mgl32.Vec3{100, 0, 0}

	params := DefaultParams()
	params.Gravity = mgl32.Vec3{}
	params.Floor = FloorNone
	params.SelfCollision = true
	params.Thickness = 0.01
	params.MaxSpeedFactor = 0.2
	s := NewSolver(p, nil, DefaultFrameTime, 10, params)
	s.Step()

	assert.InDelta(t, s.maxSpeed(), p.Vel[0].Len(), 1e-3)
}

func TestObstaclePushesOut(t *testing.T) {
	p := NewParticles([]mgl32.Vec3{{0, 0.55, 0}})
	p.InvMass[0] = 1

	params := DefaultParams()
	params.Obstacles = []Sphere{{Center: mgl32.Vec3{0, 0, 0}, Radius: 0.5}}
	s := NewSolver(p, nil, DefaultFrameTime, 10, params)
	for range 60 {
		s.Step()
	}
	assert.GreaterOrEqual(t, p.Pos[0].Len(), float32(0.5-1e-4))
}

func TestObstacleFriction(t *testing.T) {
	tests := []struct {
		name     string
		friction float32
		slides   bool
	}{
		{"frictionless obstacle lets the particle slide", 0, true},
		{"full friction holds the particle", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// resting on top of the sphere, moving sideways
			p := NewParticles([]mgl32.Vec3{{0, 0.5, 0}})
			p.InvMass[0] = 1
			p.Vel[0] = mgl32.Vec3{1, 0, 0}

			params := DefaultParams()
			params.Obstacles = []Sphere{{Center: mgl32.Vec3{0, 0, 0}, Radius: 0.5}}
			params.ObstacleFriction = tt.friction
			s := NewSolver(p, nil, DefaultFrameTime, 1, params)
			for range 10 {
				s.Step()
			}

			assert.GreaterOrEqual(t, p.Pos[0].Len(), float32(0.5-1e-4))
			if tt.slides {
				assert.Greater(t, p.Pos[0][0], float32(0.05))
			} else {
				assert.InDelta(t, 0, p.Pos[0][0], 1e-6)
				assert.InDelta(t, 0, p.Vel[0][0], 1e-6)
			}
		})
	}
}

// clockField records the times it is sampled at.
type clockField struct{ times []float32 }

func (f *clockField) Acceleration(_ mgl32.Vec3, t float32) mgl32.Vec3 {
	f.times = append(f.times, t)
	return mgl32.Vec3{}
}

func TestResetRewindsClock(t *testing.T) {
	p := NewParticles([]mgl32.Vec3{{0, 1, 0}})
	p.InvMass[0] = 1
	field := &clockField{}
	params := DefaultParams()
	params.Wind = field
	s := NewSolver(p, nil, DefaultFrameTime, 2, params)

	s.Step()
	s.Step()
	assert.Equal(t, 2, s.Stats().Frame)
	assert.InDelta(t, 2*DefaultFrameTime, s.Time(), 1e-6)
	assert.Equal(t, []float32{0, s.Dt(), 2 * s.Dt(), 3 * s.Dt()}, field.times)

	s.Reset()
	assert.Zero(t, s.Stats().Frame)
	assert.Zero(t, s.Time())

	field.times = nil
	s.SetTime(1.5)
	s.Step()
	require.Len(t, field.times, 2)
	assert.Equal(t, float32(1.5), field.times[0])
	assert.InDelta(t, 1.5+s.Dt(), field.times[1], 1e-6)
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
