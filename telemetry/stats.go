// Package telemetry provides solver health tracking, bookmarking, and snapshots.
package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartFrame int32   `csv:"-"`
	WindowEndFrame   int32   `csv:"window_end"`
	SimTimeSec       float64 `csv:"sim_time"`

	// Scene size at window end
	Bodies    int `csv:"bodies"`
	Particles int `csv:"particles"`
	Balls     int `csv:"balls"`

	// Energy (sampled at window end, unit mass per unpinned particle)
	KineticEnergy float64 `csv:"kinetic_energy"`
	BallEnergy    float64 `csv:"ball_energy"`

	// Relative distance constraint error |l-l0|/l0 (sampled at window end)
	StretchErrMean float64 `csv:"stretch_err_mean"`
	StretchErrP50  float64 `csv:"stretch_err_p50"`
	StretchErrP90  float64 `csv:"stretch_err_p90"`
	StretchErrMax  float64 `csv:"stretch_err_max"`

	// Lowest particle height, catches bodies tunnelling through the floor
	MinHeight float64 `csv:"min_height"`

	// Self-collision (adjacency pairs sampled at window end, truncation summed)
	AdjacencyPairs int `csv:"adjacency_pairs"`
	Truncated      int `csv:"truncated"`

	// Events during window
	Skipped      int `csv:"skipped"` // degenerate constraints skipped
	GrabsStarted int `csv:"grabs_started"`
	GrabsEnded   int `csv:"grabs_ended"`
	Grabbed      int `csv:"grabbed"` // active grabs at window end

	// Ball pit contacts (peak over the window)
	BallsCollidingPeak int `csv:"balls_colliding_peak"`
}

// ErrorStats calculates mean, median, p90 and max of constraint errors.
// values is sorted in place.
func ErrorStats(values []float64) (mean, p50, p90, max float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	slices.Sort(values)

	mean = stat.Mean(values, nil)
	p50 = stat.Quantile(0.5, stat.Empirical, values, nil)
	p90 = stat.Quantile(0.9, stat.Empirical, values, nil)
	max = values[len(values)-1]

	return mean, p50, p90, max
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartFrame)),
		slog.Int("window_end", int(s.WindowEndFrame)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("bodies", s.Bodies),
		slog.Int("particles", s.Particles),
		slog.Int("balls", s.Balls),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("ball_energy", s.BallEnergy),
		slog.Float64("stretch_err_mean", s.StretchErrMean),
		slog.Float64("stretch_err_p50", s.StretchErrP50),
		slog.Float64("stretch_err_p90", s.StretchErrP90),
		slog.Float64("stretch_err_max", s.StretchErrMax),
		slog.Float64("min_height", s.MinHeight),
		slog.Int("adjacency_pairs", s.AdjacencyPairs),
		slog.Int("truncated", s.Truncated),
		slog.Int("skipped", s.Skipped),
		slog.Int("grabs_started", s.GrabsStarted),
		slog.Int("grabs_ended", s.GrabsEnded),
		slog.Int("grabbed", s.Grabbed),
		slog.Int("balls_colliding_peak", s.BallsCollidingPeak),
	)
}

// LogStats logs the window stats.
func (s WindowStats) LogStats(logger *slog.Logger) {
	logger.Info("stats",
		"window_end", s.WindowEndFrame,
		"sim_time", s.SimTimeSec,
		"particles", s.Particles,
		"kinetic_energy", s.KineticEnergy,
		"ball_energy", s.BallEnergy,
		"stretch_err_mean", s.StretchErrMean,
		"stretch_err_p90", s.StretchErrP90,
		"stretch_err_max", s.StretchErrMax,
		"min_height", s.MinHeight,
		"adjacency_pairs", s.AdjacencyPairs,
		"truncated", s.Truncated,
		"skipped", s.Skipped,
		"grabbed", s.Grabbed,
		"balls_colliding_peak", s.BallsCollidingPeak,
	)
}
