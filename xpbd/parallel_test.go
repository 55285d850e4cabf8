package xpbd

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorPassesAreDisjoint(t *testing.T) {
	tests := []struct {
		name      string
		maxColors int
	}{
		{"enough colors", 16},
		{"default", MaxColors},
		{"forced leftovers", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, set := newGridCloth(t, 15, 15, false)
			passes := ColorPasses(set, p.Len(), tt.maxColors)

			require.NotPanics(t, func() { VerifyPasses(passes, set, p.Len()) })

			seen := make([]int, set.Len())
			independent := 0
			for i, pass := range passes {
				if pass.Independent {
					independent++
				} else {
					assert.Equal(t, len(passes)-1, i, "dependent pass must come last")
				}
				for _, ci := range pass.Constraints {
					seen[ci]++
				}
			}
			assert.LessOrEqual(t, independent, tt.maxColors)
			for ci, n := range seen {
				assert.Equal(t, 1, n, "constraint %d", ci)
			}
		})
	}
}

func TestVerifyPassesPanicsOnOverlap(t *testing.T) {
	set := &Set{}
	set.AddDistance(Stretch, 0, 1)
	set.AddDistance(Stretch, 1, 2)

	bad := []Pass{{Constraints: []int32{0, 1}, Independent: true}}
	assert.Panics(t, func() { VerifyPasses(bad, set, 3) })

	dependent := []Pass{{Constraints: []int32{0, 1}}}
	assert.NotPanics(t, func() { VerifyPasses(dependent, set, 3) })
}

func TestSetPassesRejectsOverlap(t *testing.T) {
	p := NewParticles(make([]mgl32.Vec3, 3))
	set := &Set{}
	set.AddDistance(Stretch, 0, 1)
	set.AddDistance(Stretch, 1, 2)
	s := NewSolver(p, set, DefaultFrameTime, 1, DefaultParams())

	assert.Panics(t, func() {
		s.SetPasses([]Pass{{Constraints: []int32{0, 1}, Independent: true}})
	})
}

func TestColoredSolverBuildsPassesUpFront(t *testing.T) {
	p, set := newGridCloth(t, 6, 6, false)
	params := DefaultParams()
	params.Projection = Colored
	s := NewSolver(p, set, DefaultFrameTime, 1, params)
	defer s.Close()
	assert.NotEmpty(t, s.passes)

	params.Projection = GaussSeidel
	s = NewSolver(p, set, DefaultFrameTime, 1, params)
	assert.Nil(t, s.passes)
}

// Colored passes order constraints differently from the sequential sweep,
// so results differ slightly but must agree in behaviour.
func TestParallelProjectionMatchesSequential(t *testing.T) {
	run := func(proj Projection) []mgl32.Vec3 {
		p, set := newGridCloth(t, 24, 24, true)
		params := DefaultParams()
		params.Projection = proj
		params.Workers = 4
		s := NewSolver(p, set, DefaultFrameTime, 10, params)
		defer s.Close()
		for range 30 {
			s.Step()
		}
		return p.Pos
	}

	seq := run(GaussSeidel)
	for _, proj := range []Projection{Colored, Jacobi} {
		t.Run(proj.String(), func(t *testing.T) {
			pos := run(proj)
			for i := range pos {
				assert.False(t, isNaN(pos[i]), "particle %d", i)
			}
			lo, hi := bounds(pos)
			_, shi := bounds(seq)
			assert.InDelta(t, shi[1], hi[1], 0.05, "pins hold the top edge")
			assert.Less(t, lo[1], hi[1], "cloth sags below its pins")
			assert.Greater(t, lo[1], float32(-0.1), "cloth stays above the floor")
		})
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p, set := newGridCloth(t, 20, 20, false)
	params := DefaultParams()
	params.Projection = Jacobi
	params.Workers = 2
	s := NewSolver(p, set, DefaultFrameTime, 2, params)
	s.Step()
	s.Close()
	s.Close()

	// the pool is rebuilt on demand
	s.Step()
	s.Close()
}

func TestParseProjection(t *testing.T) {
	for _, proj := range projections {
		got, err := ParseProjection(proj.String())
		require.NoError(t, err)
		assert.Equal(t, proj, got)
	}
	_, err := ParseProjection("red-black")
	assert.Error(t, err)
}

func isNaN(v mgl32.Vec3) bool {
	return v[0] != v[0] || v[1] != v[1] || v[2] != v[2]
}

func bounds(pos []mgl32.Vec3) (lo, hi mgl32.Vec3) {
	p := Particles{Pos: pos}
	return p.Bounds()
}
