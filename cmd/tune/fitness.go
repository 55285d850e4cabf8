package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/softsim/config"
	"github.com/pthm-cable/softsim/scene"
)

// failedFitness is returned for runs that blow up.
const failedFitness = 1e3

// scenario is one cloth body run on its own, with the positions the
// reference solver produced for it.
type scenario struct {
	name      string
	cfg       *config.Config
	reference [][]mgl32.Vec3 // sampled every sampleEvery frames
}

// FitnessEvaluator runs tuned scenes and compares them to reference runs.
type FitnessEvaluator struct {
	params      *ParamVector
	frames      int
	sampleEvery int
	projection  string
	substeps    int
	scenarios   []scenario

	mu        sync.Mutex
	lastWorst string // scenario with the largest error in the most recent Evaluate
}

// NewFitnessEvaluator builds one scenario per cloth body of base and records
// its reference trajectory with the solver settings of base. Tuned runs use
// projection and substeps instead.
func NewFitnessEvaluator(params *ParamVector, base *config.Config, frames, sampleEvery int, projection string, substeps int) (*FitnessEvaluator, error) {
	if sampleEvery <= 0 || frames < sampleEvery {
		return nil, fmt.Errorf("need frames >= sample interval > 0, got %d and %d", frames, sampleEvery)
	}
	fe := &FitnessEvaluator{
		params:      params,
		frames:      frames,
		sampleEvery: sampleEvery,
		projection:  projection,
		substeps:    substeps,
	}

	for _, b := range base.Bodies {
		if b.Kind != config.KindGridCloth && b.Kind != config.KindCloth {
			continue
		}
		cfg := isolate(base, b)
		fe.scenarios = append(fe.scenarios, scenario{name: b.Name, cfg: cfg})
	}
	if len(fe.scenarios) == 0 {
		return nil, fmt.Errorf("config has no cloth bodies to tune")
	}

	errs := make([]error, len(fe.scenarios))
	var wg sync.WaitGroup
	for i := range fe.scenarios {
		wg.Add(1)
		go func(sc *scenario, idx int) {
			defer wg.Done()
			sc.reference, errs[idx] = fe.run(sc.cfg)
		}(&fe.scenarios[i], i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("reference run %q: %w", fe.scenarios[i].name, err)
		}
	}
	return fe, nil
}

// isolate copies base keeping only body b and the drags that target it.
func isolate(base *config.Config, b config.BodyConfig) *config.Config {
	cfg := *base
	cfg.Bodies = []config.BodyConfig{b}
	cfg.Drags = nil
	for _, d := range base.Drags {
		if d.Body == b.Name {
			cfg.Drags = append(cfg.Drags, d)
		}
	}
	cfg.Telemetry.OutputDir = ""
	return &cfg
}

// Scenarios returns the names of the tuned bodies.
func (fe *FitnessEvaluator) Scenarios() []string {
	names := make([]string, len(fe.scenarios))
	for i, sc := range fe.scenarios {
		names[i] = sc.name
	}
	return names
}

// LastWorst returns the scenario with the largest error in the most recent
// evaluation.
func (fe *FitnessEvaluator) LastWorst() string {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastWorst
}

// Evaluate computes fitness for a parameter vector (lower = better): the
// mean over scenarios of the RMS particle distance to the reference run.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]float64, len(fe.scenarios))
	var wg sync.WaitGroup

	for i := range fe.scenarios {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sc := &fe.scenarios[idx]

			cfg := *sc.cfg
			cfg.Bodies = []config.BodyConfig{sc.cfg.Bodies[0]}
			cfg.Solver.Projection = fe.projection
			cfg.Sim.Substeps = fe.substeps
			fe.params.ApplyToConfig(&cfg, x)
			cfg.Bodies[0].Compliance = &cfg.Solver.Compliance

			samples, err := fe.run(&cfg)
			if err != nil {
				results[idx] = failedFitness
				return
			}
			results[idx] = rmsDistance(sc.reference, samples)
		}(i)
	}
	wg.Wait()

	var total float64
	worst := 0
	for i, r := range results {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			r = failedFitness
			results[i] = r
		}
		total += r
		if r > results[worst] {
			worst = i
		}
	}

	fe.mu.Lock()
	fe.lastWorst = fe.scenarios[worst].name
	fe.mu.Unlock()

	return total / float64(len(results))
}

// run steps a scene built from cfg and samples the positions of its only
// body.
func (fe *FitnessEvaluator) run(cfg *config.Config) ([][]mgl32.Vec3, error) {
	s, err := scene.New(cfg, scene.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	samples := make([][]mgl32.Vec3, 0, fe.frames/fe.sampleEvery)
	for f := 1; f <= fe.frames; f++ {
		s.Step()
		if f%fe.sampleEvery == 0 {
			snap := s.Snapshot(nil)
			samples = append(samples, snap.Bodies[0].Pos)
		}
	}
	return samples, nil
}

// rmsDistance returns the root mean square distance between matching
// particles of two sampled trajectories.
func rmsDistance(ref, got [][]mgl32.Vec3) float64 {
	var sum float64
	n := 0
	for i := range min(len(ref), len(got)) {
		for j := range min(len(ref[i]), len(got[i])) {
			d := ref[i][j].Sub(got[i][j])
			sum += float64(d.Dot(d))
			n++
		}
	}
	if n == 0 {
		return failedFitness
	}
	return math.Sqrt(sum / float64(n))
}
