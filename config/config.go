// Package config provides configuration loading for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/softsim/granular"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Sim           SimConfig           `yaml:"sim"`
	Solver        SolverConfig        `yaml:"solver"`
	SelfCollision SelfCollisionConfig `yaml:"self_collision"`
	Floor         FloorConfig         `yaml:"floor"`
	Wind          WindConfig          `yaml:"wind"`
	Obstacles     ObstaclesConfig     `yaml:"obstacles"`
	Bodies        []BodyConfig        `yaml:"bodies"`
	Drags         []DragConfig        `yaml:"drags"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimConfig holds frame timing.
type SimConfig struct {
	FrameTime float64 `yaml:"frame_time"` // seconds per Step
	Substeps  int     `yaml:"substeps"`
	Frames    int     `yaml:"frames"` // headless run length, 0 = until interrupted
	Seed      int64   `yaml:"seed"`
}

// SolverConfig holds constraint projection parameters.
type SolverConfig struct {
	Projection  string           `yaml:"projection"` // gauss_seidel, colored, jacobi
	Workers     int              `yaml:"workers"`    // 0 = GOMAXPROCS
	JacobiScale float64          `yaml:"jacobi_scale"`
	Gravity     [3]float64       `yaml:"gravity"`
	Compliance  ComplianceConfig `yaml:"compliance"`
}

// ComplianceConfig holds inverse stiffness per constraint kind. 0 = rigid.
type ComplianceConfig struct {
	Stretch float64 `yaml:"stretch"`
	Shear   float64 `yaml:"shear"`
	Bending float64 `yaml:"bending"`
	Volume  float64 `yaml:"volume"`
}

// SelfCollisionConfig holds cloth self-collision parameters. Bodies opt in
// individually.
type SelfCollisionConfig struct {
	Thickness      float64 `yaml:"thickness"`
	Friction       float64 `yaml:"friction"`
	MaxSpeedFactor float64 `yaml:"max_speed_factor"` // speed limit = factor*thickness/dt
}

// FloorConfig holds the ground plane.
type FloorConfig struct {
	Mode          string  `yaml:"mode"` // none, snap, damped
	Y             float64 `yaml:"y"`
	GroundDamping float64 `yaml:"ground_damping"`
}

// WindConfig holds the noise wind field.
type WindConfig struct {
	Enabled   bool       `yaml:"enabled"`
	Direction [3]float64 `yaml:"direction"`
	Strength  float64    `yaml:"strength"`   // peak acceleration
	Scale     float64    `yaml:"scale"`      // spatial frequency of gusts
	TimeScale float64    `yaml:"time_scale"` // temporal frequency of gusts
}

// ObstaclesConfig holds static sphere obstacles.
type ObstaclesConfig struct {
	Friction float64        `yaml:"friction"`
	Spheres  []SphereConfig `yaml:"spheres"`
}

// SphereConfig is one sphere obstacle.
type SphereConfig struct {
	Center [3]float64 `yaml:"center"`
	Radius float64    `yaml:"radius"`
}

// Body kinds.
const (
	KindGridCloth = "grid_cloth" // unit-mass grid with stretch/shear/bending links
	KindCloth     = "cloth"      // area-weighted triangle mesh cloth
	KindSoftBox   = "soft_box"   // tetrahedral box
	KindBallPit   = "ball_pit"
)

// BodyConfig describes one body in the scene.
type BodyConfig struct {
	Name   string     `yaml:"name"`
	Kind   string     `yaml:"kind"`
	Origin [3]float64 `yaml:"origin"`

	// Compliance overrides solver.compliance for this body when set.
	Compliance *ComplianceConfig `yaml:"compliance,omitempty"`

	// Cloth
	NumX          int     `yaml:"num_x"`
	NumY          int     `yaml:"num_y"`
	Spacing       float64 `yaml:"spacing"`
	Plane         string  `yaml:"plane"` // xy, xz
	Attach        bool    `yaml:"attach"`
	SelfCollision bool    `yaml:"self_collision"`

	// Soft box
	NX   int  `yaml:"nx"`
	NY   int  `yaml:"ny"`
	NZ   int  `yaml:"nz"`
	Skin bool `yaml:"skin"` // bind a visual surface to the tets

	// Ball pit
	Radius      float64    `yaml:"radius"`
	Max         [3]float64 `yaml:"max"` // box max corner; Origin is the min corner
	InitVelRand float64    `yaml:"init_vel_rand"`
}

// DragConfig scripts a grab that moves a particle along a tweened path.
type DragConfig struct {
	Body     string     `yaml:"body"`
	Start    float64    `yaml:"start"`    // seconds into the run
	Duration float64    `yaml:"duration"` // seconds
	From     [3]float64 `yaml:"from"`
	To       [3]float64 `yaml:"to"`
	Ease     string     `yaml:"ease"`
}

// TelemetryConfig holds telemetry and logging parameters.
type TelemetryConfig struct {
	StatsWindow int    `yaml:"stats_window"` // frames per stats row
	PerfWindow  int    `yaml:"perf_window"`  // frames in the rolling perf window
	OutputDir   string `yaml:"output_dir"`   // empty = no CSV output
	LogInterval int    `yaml:"log_interval"` // frames between log lines, 0 = off
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	FrameTime32 float32
	Gravity     mgl32.Vec3
	WindDir     mgl32.Vec3 // normalized, zero if unset
	// Compliance per constraint kind in solver order: stretch, shear, bending, volume.
	Compliance [4]float32
}

// Load reads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.computeDerived()

	return cfg, nil
}

func (c *Config) validate() error {
	if !(c.Sim.FrameTime > 0) {
		return fmt.Errorf("sim.frame_time must be > 0, got %v", c.Sim.FrameTime)
	}
	if c.Sim.Substeps <= 0 {
		return fmt.Errorf("sim.substeps must be > 0, got %d", c.Sim.Substeps)
	}
	switch c.Solver.Projection {
	case "", "gauss_seidel", "colored", "jacobi":
	default:
		return fmt.Errorf("unknown solver.projection %q", c.Solver.Projection)
	}
	switch c.Floor.Mode {
	case "", "none", "snap", "damped":
	default:
		return fmt.Errorf("unknown floor.mode %q", c.Floor.Mode)
	}

	names := make(map[string]bool, len(c.Bodies))
	for i, b := range c.Bodies {
		if b.Name == "" {
			return fmt.Errorf("bodies[%d]: missing name", i)
		}
		if names[b.Name] {
			return fmt.Errorf("bodies[%d]: duplicate name %q", i, b.Name)
		}
		names[b.Name] = true

		switch b.Kind {
		case KindGridCloth, KindCloth:
			if b.NumX < 2 || b.NumY < 2 || !(b.Spacing > 0) {
				return fmt.Errorf("body %q: cloth needs num_x, num_y >= 2 and spacing > 0", b.Name)
			}
			if b.SelfCollision && !(c.SelfCollision.Thickness > 0) {
				return fmt.Errorf("body %q: self_collision needs self_collision.thickness > 0", b.Name)
			}
		case KindSoftBox:
			if b.NX <= 0 || b.NY <= 0 || b.NZ <= 0 || !(b.Spacing > 0) {
				return fmt.Errorf("body %q: soft box needs positive nx, ny, nz and spacing", b.Name)
			}
		case KindBallPit:
			if !(b.Radius > 0) {
				return fmt.Errorf("body %q: ball pit needs radius > 0", b.Name)
			}
			if _, err := granular.LatticeCounts(granular.Config{
				Radius: float32(b.Radius),
				Min:    vec3(b.Origin),
				Max:    vec3(b.Max),
			}); err != nil {
				return fmt.Errorf("body %q: %w", b.Name, err)
			}
		default:
			return fmt.Errorf("body %q: unknown kind %q", b.Name, b.Kind)
		}
	}

	for i, d := range c.Drags {
		if !names[d.Body] {
			return fmt.Errorf("drags[%d]: unknown body %q", i, d.Body)
		}
		if !(d.Duration > 0) {
			return fmt.Errorf("drags[%d]: duration must be > 0", i)
		}
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.FrameTime32 = float32(c.Sim.FrameTime)
	c.Derived.Gravity = vec3(c.Solver.Gravity)
	c.Derived.WindDir = vec3(c.Wind.Direction)
	if l := c.Derived.WindDir.Len(); l > 0 {
		c.Derived.WindDir = c.Derived.WindDir.Mul(1 / l)
	}
	c.Derived.Compliance = c.Solver.Compliance.array()

	if c.Telemetry.StatsWindow <= 0 {
		c.Telemetry.StatsWindow = 60
	}
	if c.Telemetry.PerfWindow <= 0 {
		c.Telemetry.PerfWindow = 120
	}
}

// BodyCompliance returns the per-kind compliance for body b, in the same
// order as Derived.Compliance.
func (c *Config) BodyCompliance(b BodyConfig) [4]float32 {
	if b.Compliance == nil {
		return c.Derived.Compliance
	}
	return b.Compliance.array()
}

func (cc ComplianceConfig) array() [4]float32 {
	return [4]float32{
		float32(cc.Stretch),
		float32(cc.Shear),
		float32(cc.Bending),
		float32(cc.Volume),
	}
}

// Vec3 converts a config triple.
func Vec3(v [3]float64) mgl32.Vec3 { return vec3(v) }

func vec3(v [3]float64) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}

// Body returns the body config with the given name.
func (c *Config) Body(name string) (BodyConfig, bool) {
	for _, b := range c.Bodies {
		if b.Name == name {
			return b, true
		}
	}
	return BodyConfig{}, false
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
