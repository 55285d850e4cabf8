package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/softsim/config"
)

// Wind is a gusting acceleration field along a main direction, with a
// weaker crosswind from a second noise channel.
type Wind struct {
	dir, cross mgl32.Vec3
	strength   float32
	scale      float32
	timeScale  float32
	noise      opensimplex.Noise32
}

// NewWind builds the wind field from config. It returns nil when wind is
// disabled or has no direction.
func NewWind(cfg *config.Config) *Wind {
	wc := cfg.Wind
	dir := cfg.Derived.WindDir
	if !wc.Enabled || dir.Len() == 0 || wc.Strength == 0 {
		return nil
	}

	// any axis not parallel to dir gives a horizontal-ish crosswind
	up := mgl32.Vec3{0, 1, 0}
	if abs(dir.Dot(up)) > 0.9 {
		up = mgl32.Vec3{1, 0, 0}
	}

	return &Wind{
		dir:       dir,
		cross:     dir.Cross(up).Normalize(),
		strength:  float32(wc.Strength),
		scale:     float32(wc.Scale),
		timeScale: float32(wc.TimeScale),
		noise:     opensimplex.NewNormalized32(cfg.Sim.Seed),
	}
}

// Acceleration implements xpbd.Field.
func (w *Wind) Acceleration(pos mgl32.Vec3, t float32) mgl32.Vec3 {
	x, y, z := pos[0]*w.scale, pos[1]*w.scale, pos[2]*w.scale
	tt := t * w.timeScale

	// gust in [0, 1] along dir, crosswind in [-0.25, 0.25]
	gust := w.noise.Eval4(x, y, z, tt)
	cross := (w.noise.Eval4(x+100, y+100, z+100, tt) - 0.5) * 0.5

	return w.dir.Mul(gust * w.strength).Add(w.cross.Mul(cross * w.strength))
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
