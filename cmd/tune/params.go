package main

import (
	"github.com/pthm-cable/softsim/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name string  // Human-readable name, also the CSV column
	Path string  // Config path for logging
	Min  float64 // Lower bound
	Max  float64 // Upper bound
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of tunable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "jacobi_scale", Path: "solver.jacobi_scale", Min: 0.05, Max: 1.0},
			{Name: "stretch", Path: "solver.compliance.stretch", Min: 0, Max: 1e-3},
			{Name: "shear", Path: "solver.compliance.shear", Min: 0, Max: 1e-3},
			{Name: "bending", Path: "solver.compliance.bending", Min: 0, Max: 10},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct.
// Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	cfg.Solver.JacobiScale = clamped[0]
	cfg.Solver.Compliance.Stretch = clamped[1]
	cfg.Solver.Compliance.Shear = clamped[2]
	cfg.Solver.Compliance.Bending = clamped[3]
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return pv.Clamp([]float64{
		cfg.Solver.JacobiScale,
		cfg.Solver.Compliance.Stretch,
		cfg.Solver.Compliance.Shear,
		cfg.Solver.Compliance.Bending,
	})
}

// EvalRecord is one row of tune_log.csv.
type EvalRecord struct {
	Eval        int     `csv:"eval"`
	Fitness     float64 `csv:"fitness"`
	JacobiScale float64 `csv:"jacobi_scale"`
	Stretch     float64 `csv:"stretch"`
	Shear       float64 `csv:"shear"`
	Bending     float64 `csv:"bending"`
	ElapsedMS   int64   `csv:"elapsed_ms"`
}

// NewEvalRecord builds a log row from clamped parameter values.
func NewEvalRecord(eval int, fitness float64, values []float64, elapsedMS int64) EvalRecord {
	return EvalRecord{
		Eval:        eval,
		Fitness:     fitness,
		JacobiScale: values[0],
		Stretch:     values[1],
		Shear:       values[2],
		Bending:     values[3],
		ElapsedMS:   elapsedMS,
	}
}
