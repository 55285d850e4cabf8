// Package granular simulates a pit of equal balls bouncing in a box. Contacts
// are found with the spatial hash; no constraint solver is involved.
package granular

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/softsim/spatial"
)

// Config describes a ball pit.
type Config struct {
	Radius      float32
	Min, Max    mgl32.Vec3 // box corners
	InitVelRand float32    // initial velocity components are uniform in [-InitVelRand, InitVelRand]
	Seed        int64
}

// DefaultConfig returns a 2x2x2 pit of small balls.
func DefaultConfig() Config {
	return Config{
		Radius:      0.025,
		Min:         mgl32.Vec3{-1, 0, -1},
		Max:         mgl32.Vec3{1, 2, 1},
		InitVelRand: 0.2,
		Seed:        1,
	}
}

// Pit holds the ball state.
type Pit struct {
	cfg     Config
	minDist float32
	counts  [3]int // lattice size per axis

	Pos        []mgl32.Vec3
	Vel        []mgl32.Vec3
	Collisions []bool // set for balls that touched a wall or another ball in the last step

	hash *spatial.Hash
}

// LatticeCounts returns the number of balls New places along each axis. It
// fails when the radius is not positive or the box holds no ball.
func LatticeCounts(cfg Config) ([3]int, error) {
	var counts [3]int
	if !(cfg.Radius > 0) {
		return counts, fmt.Errorf("radius must be > 0, got %v", cfg.Radius)
	}
	spacing := 3 * cfg.Radius
	for d := 0; d < 3; d++ {
		counts[d] = int(math.Floor(float64((cfg.Max[d] - cfg.Min[d] - 2*spacing) / spacing)))
		if counts[d] < 1 {
			return counts, fmt.Errorf("box too small for radius %v", cfg.Radius)
		}
	}
	return counts, nil
}

// New fills the box with a lattice of balls three radii apart, leaving one
// lattice spacing free along each wall.
func New(cfg Config) *Pit {
	counts, err := LatticeCounts(cfg)
	if err != nil {
		panic("granular: " + err.Error())
	}
	n := counts[0] * counts[1] * counts[2]

	p := &Pit{
		cfg:        cfg,
		minDist:    2 * cfg.Radius,
		counts:     counts,
		Pos:        make([]mgl32.Vec3, n),
		Vel:        make([]mgl32.Vec3, n),
		Collisions: make([]bool, n),
		hash:       spatial.NewHash(2*cfg.Radius, n),
	}
	p.Reset()
	return p
}

// Reset puts every ball back on the lattice with fresh random velocities.
func (p *Pit) Reset() {
	cfg := p.cfg
	spacing := 3 * cfg.Radius
	rng := rand.New(rand.NewSource(cfg.Seed))
	counts := p.counts

	i := 0
	for xi := 0; xi < counts[0]; xi++ {
		for yi := 0; yi < counts[1]; yi++ {
			for zi := 0; zi < counts[2]; zi++ {
				off := mgl32.Vec3{float32(xi), float32(yi), float32(zi)}.Mul(spacing)
				p.Pos[i] = cfg.Min.Add(mgl32.Vec3{spacing, spacing, spacing}).Add(off)
				p.Vel[i] = mgl32.Vec3{
					cfg.InitVelRand * (2*rng.Float32() - 1),
					cfg.InitVelRand * (2*rng.Float32() - 1),
					cfg.InitVelRand * (2*rng.Float32() - 1),
				}
				i++
			}
		}
	}
	clear(p.Collisions)
}

// Len returns the number of balls.
func (p *Pit) Len() int { return len(p.Pos) }

// Radius returns the ball radius.
func (p *Pit) Radius() float32 { return p.cfg.Radius }

// Step advances the pit by dt: integrate, reflect off the walls and separate
// overlapping pairs, exchanging the normal velocities of approaching pairs.
func (p *Pit) Step(dt float32) {
	for i := range p.Pos {
		p.Pos[i] = p.Pos[i].Add(p.Vel[i].Mul(dt))
	}

	p.hash.Create(p.Pos)

	r := p.cfg.Radius
	lo, hi := p.cfg.Min, p.cfg.Max
	minDistSq := p.minDist * p.minDist

	for i := range p.Pos {
		p.Collisions[i] = false

		for d := 0; d < 3; d++ {
			if p.Pos[i][d] < lo[d]+r {
				p.Pos[i][d] = lo[d] + r
				p.Vel[i][d] = -p.Vel[i][d]
				p.Collisions[i] = true
			}
			if p.Pos[i][d] > hi[d]-r {
				p.Pos[i][d] = hi[d] - r
				p.Vel[i][d] = -p.Vel[i][d]
				p.Collisions[i] = true
			}
		}

		for _, j := range p.hash.Query(p.Pos[i], p.minDist) {
			normal := p.Pos[i].Sub(p.Pos[j])
			d2 := normal.Dot(normal)
			if d2 == 0 || d2 >= minDistSq {
				continue
			}
			d := float32(math.Sqrt(float64(d2)))
			normal = normal.Mul(1 / d)

			corr := (p.minDist - d) * 0.5
			p.Pos[i] = p.Pos[i].Add(normal.Mul(corr))
			p.Pos[j] = p.Pos[j].Sub(normal.Mul(corr))

			p.Collisions[i] = true

			// exchange normal velocities only while approaching; a pair can
			// be visited more than once per step
			vi := p.Vel[i].Dot(normal)
			vj := p.Vel[j].Dot(normal)
			if vj <= vi {
				continue
			}
			p.Vel[i] = p.Vel[i].Add(normal.Mul(vj - vi))
			p.Vel[j] = p.Vel[j].Add(normal.Mul(vi - vj))
		}
	}
}

// Colliding returns how many balls touched something in the last step.
func (p *Pit) Colliding() int {
	n := 0
	for _, c := range p.Collisions {
		if c {
			n++
		}
	}
	return n
}

// KineticEnergy returns the sum of 0.5*|v|^2 over all balls (unit mass).
func (p *Pit) KineticEnergy() float64 {
	var e float64
	for _, v := range p.Vel {
		e += 0.5 * float64(v.Dot(v))
	}
	return e
}
