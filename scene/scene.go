// Package scene runs a set of XPBD bodies and ball pits built from config
// in an ECS world, with scripted drags, wind and telemetry.
package scene

import (
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/softsim/components"
	"github.com/pthm-cable/softsim/config"
	"github.com/pthm-cable/softsim/telemetry"
	"github.com/pthm-cable/softsim/xpbd"
)

// Options configures telemetry and logging for a scene.
type Options struct {
	Logger        *slog.Logger // nil = slog.Default()
	LogStats      bool
	Output        *telemetry.OutputManager // nil = no CSV output
	StatsCallback func(telemetry.WindowStats)
}

// Scene holds the complete simulation state.
type Scene struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	world *ecs.World

	bodyMapper  *ecs.Map1[components.Body]
	skinMapper  *ecs.Map2[components.Body, components.Skin]
	ballsMapper *ecs.Map1[components.Balls]
	dragMapper  *ecs.Map1[components.Drag]

	bodyFilter  *ecs.Filter1[components.Body]
	skinFilter  *ecs.Filter2[components.Body, components.Skin]
	ballsFilter *ecs.Filter1[components.Balls]
	dragFilter  *ecs.Filter1[components.Drag]

	bodyMap *ecs.Map[components.Body]

	params    xpbd.Params // shared by every body; compliance and self-collision are per body
	wind      *Wind
	frameTime float32

	// State
	frame   int32
	time    float32
	spawned int

	// Telemetry
	perf      *telemetry.PerfCollector
	collector *telemetry.Collector
	bookmarks *telemetry.BookmarkDetector
	errBuf    []float64
}

// New builds every body and drag of cfg.
func New(cfg *config.Config, opts Options) (*Scene, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	world := ecs.NewWorld()

	s := &Scene{
		cfg:    cfg,
		opts:   opts,
		logger: opts.Logger,
		world:  world,

		bodyMapper:  ecs.NewMap1[components.Body](world),
		skinMapper:  ecs.NewMap2[components.Body, components.Skin](world),
		ballsMapper: ecs.NewMap1[components.Balls](world),
		dragMapper:  ecs.NewMap1[components.Drag](world),

		bodyFilter:  ecs.NewFilter1[components.Body](world),
		skinFilter:  ecs.NewFilter2[components.Body, components.Skin](world),
		ballsFilter: ecs.NewFilter1[components.Balls](world),
		dragFilter:  ecs.NewFilter1[components.Drag](world),

		bodyMap: ecs.NewMap[components.Body](world),

		frameTime: cfg.Derived.FrameTime32,

		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		collector: telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Derived.FrameTime32),
		bookmarks: telemetry.NewBookmarkDetector(10, cfg.Floor.Y),
	}

	params, err := solverParams(cfg)
	if err != nil {
		return nil, err
	}
	s.wind = NewWind(cfg)
	if s.wind != nil {
		params.Wind = s.wind
	}
	s.params = params

	targets := make(map[string]ecs.Entity, len(cfg.Bodies))
	for i, b := range cfg.Bodies {
		e, err := s.spawn(b, mgl32.Vec3{}, int64(i), false)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("building body %q: %w", b.Name, err)
		}
		targets[b.Name] = e
	}

	for i, dc := range cfg.Drags {
		target, ok := targets[dc.Body]
		if !ok || !s.bodyMap.Has(target) {
			s.Close()
			return nil, fmt.Errorf("drags[%d]: body %q has no solver", i, dc.Body)
		}
		fn, err := Ease(dc.Ease)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("drags[%d]: %w", i, err)
		}
		s.dragMapper.NewEntity(&components.Drag{
			Target:   target,
			Start:    float32(dc.Start),
			Duration: float32(dc.Duration),
			From:     config.Vec3(dc.From),
			To:       config.Vec3(dc.To),
			Ease:     fn,
			Particle: -1,
		})
	}

	s.logger.Info("scene ready",
		"bodies", len(cfg.Bodies),
		"drags", len(cfg.Drags),
		"projection", params.Projection.String(),
		"substeps", cfg.Sim.Substeps,
		"wind", s.wind != nil,
	)
	return s, nil
}

// solverParams maps the shared solver settings of cfg.
func solverParams(cfg *config.Config) (xpbd.Params, error) {
	p := xpbd.DefaultParams()

	proj, err := xpbd.ParseProjection(cfg.Solver.Projection)
	if err != nil {
		return p, err
	}
	p.Projection = proj
	p.Workers = cfg.Solver.Workers
	if cfg.Solver.JacobiScale > 0 {
		p.JacobiScale = float32(cfg.Solver.JacobiScale)
	}
	p.Gravity = cfg.Derived.Gravity

	p.Thickness = float32(cfg.SelfCollision.Thickness)
	p.Friction = float32(cfg.SelfCollision.Friction)
	p.MaxSpeedFactor = float32(cfg.SelfCollision.MaxSpeedFactor)

	switch cfg.Floor.Mode {
	case "none":
		p.Floor = xpbd.FloorNone
	case "", "snap":
		p.Floor = xpbd.FloorSnap
	case "damped":
		p.Floor = xpbd.FloorDamped
	default:
		return p, fmt.Errorf("unknown floor mode %q", cfg.Floor.Mode)
	}
	p.FloorY = float32(cfg.Floor.Y)
	if cfg.Floor.GroundDamping > 0 {
		p.GroundDamping = float32(cfg.Floor.GroundDamping)
	}

	for _, sp := range cfg.Obstacles.Spheres {
		p.Obstacles = append(p.Obstacles, xpbd.Sphere{
			Center: config.Vec3(sp.Center),
			Radius: float32(sp.Radius),
		})
	}
	p.ObstacleFriction = float32(cfg.Obstacles.Friction)
	return p, nil
}

// Step advances every body and ball pit by one frame.
func (s *Scene) Step() {
	s.perf.StartTick()

	s.perf.StartPhase(telemetry.PhaseDrag)
	s.updateDrags()

	s.perf.StartPhase(telemetry.PhaseStep)
	query := s.bodyFilter.Query()
	for query.Next() {
		body := query.Get()
		// every body samples the wind on the scene clock
		body.Solver.SetTime(s.time)
		body.Solver.Step()
		st := body.Solver.Stats()
		s.collector.RecordStep(st.Skipped, st.Truncated)
	}

	s.perf.StartPhase(telemetry.PhaseSkinning)
	skins := s.skinFilter.Query()
	for skins.Next() {
		body, skin := skins.Get()
		skin.Binding.Update(body.Solver.Positions(), skin.Mesh.Verts)
	}

	s.perf.StartPhase(telemetry.PhaseBalls)
	balls := s.ballsFilter.Query()
	for balls.Next() {
		b := balls.Get()
		b.Pit.Step(s.frameTime)
		s.collector.RecordBallContacts(b.Pit.Colliding())
	}

	s.frame++
	s.time += s.frameTime

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	s.flushTelemetry()

	s.perf.EndTick()
}

// Reset restores every config body to its rest pose, refills ball pits,
// removes bodies added at runtime and rewinds drags and telemetry windows.
func (s *Scene) Reset() {
	var toRemove []ecs.Entity

	query := s.bodyFilter.Query()
	for query.Next() {
		body := query.Get()
		if body.Spawned {
			toRemove = append(toRemove, query.Entity())
			continue
		}
		body.Solver.Reset()
	}
	for _, e := range toRemove {
		s.bodyMap.Get(e).Solver.Close()
		s.world.RemoveEntity(e)
	}
	s.spawned = 0

	skins := s.skinFilter.Query()
	for skins.Next() {
		body, skin := skins.Get()
		skin.Binding.Update(body.Solver.Positions(), skin.Mesh.Verts)
	}

	balls := s.ballsFilter.Query()
	for balls.Next() {
		balls.Get().Pit.Reset()
	}

	s.resetDrags()
	s.frame = 0
	s.time = 0
	s.collector.Reset()
	s.bookmarks.Reset()
}

// AddSoftBody spawns a copy of the first soft box in the config, shifted by
// offset.
func (s *Scene) AddSoftBody(offset mgl32.Vec3) (ecs.Entity, error) {
	for i, b := range s.cfg.Bodies {
		if b.Kind != config.KindSoftBox {
			continue
		}
		s.spawned++
		b.Name = fmt.Sprintf("%s#%d", b.Name, s.spawned)
		e, err := s.spawn(b, offset, int64(len(s.cfg.Bodies)+i+s.spawned), true)
		if err != nil {
			return ecs.Entity{}, fmt.Errorf("spawning soft body: %w", err)
		}
		return e, nil
	}
	return ecs.Entity{}, fmt.Errorf("no %s body in config", config.KindSoftBox)
}

// Squash flattens every soft body onto the floor; the volume constraints
// inflate them again.
func (s *Scene) Squash() {
	y := float32(s.cfg.Floor.Y)
	query := s.bodyFilter.Query()
	for query.Next() {
		body := query.Get()
		if body.Kind == config.KindSoftBox {
			body.Solver.Particles().Squash(y)
		}
	}
}

// Body returns the body with the given name.
func (s *Scene) Body(name string) (*components.Body, bool) {
	var found *components.Body
	query := s.bodyFilter.Query()
	for query.Next() {
		if b := query.Get(); b.Name == name && found == nil {
			found = b
		}
	}
	return found, found != nil
}

// Skin returns the visual surface bound to the named body.
func (s *Scene) Skin(name string) (*components.Skin, bool) {
	var found *components.Skin
	query := s.skinFilter.Query()
	for query.Next() {
		if b, skin := query.Get(); b.Name == name && found == nil {
			found = skin
		}
	}
	return found, found != nil
}

// Balls returns the named ball pit.
func (s *Scene) Balls(name string) (*components.Balls, bool) {
	var found *components.Balls
	query := s.ballsFilter.Query()
	for query.Next() {
		if b := query.Get(); b.Name == name && found == nil {
			found = b
		}
	}
	return found, found != nil
}

// NumBodies returns the number of solver-driven bodies.
func (s *Scene) NumBodies() int {
	n := 0
	query := s.bodyFilter.Query()
	for query.Next() {
		n++
	}
	return n
}

// Frame returns the number of frames stepped since the last reset.
func (s *Scene) Frame() int32 { return s.frame }

// Time returns the simulated time since the last reset.
func (s *Scene) Time() float32 { return s.time }

// FrameTime returns the length of one Step.
func (s *Scene) FrameTime() float32 { return s.frameTime }

// Wind returns the wind field, or nil when disabled.
func (s *Scene) Wind() *Wind { return s.wind }

// PerfStats returns timing statistics over the perf window.
func (s *Scene) PerfStats() telemetry.PerfStats { return s.perf.Stats(s.frameTime) }

// Close stops the solver worker pools.
func (s *Scene) Close() {
	query := s.bodyFilter.Query()
	for query.Next() {
		query.Get().Solver.Close()
	}
}
