package scene

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/softsim/config"
	"github.com/pthm-cable/softsim/telemetry"
	"github.com/pthm-cable/softsim/xpbd"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (s *Scene) flushTelemetry() {
	if !s.collector.ShouldFlush(s.frame) {
		return
	}

	stats := s.collector.Flush(s.frame, s.sample())
	perfStats := s.perf.Stats(s.frameTime)

	if s.opts.StatsCallback != nil {
		s.opts.StatsCallback(stats)
	}

	if s.opts.LogStats {
		stats.LogStats(s.logger)
		perfStats.LogStats(s.logger)
	}

	if err := s.opts.Output.WriteStats(stats); err != nil {
		s.logger.Error("failed to write stats", "error", err)
	}
	if err := s.opts.Output.WritePerf(perfStats, stats.WindowEndFrame); err != nil {
		s.logger.Error("failed to write perf", "error", err)
	}

	for _, bm := range s.bookmarks.Check(stats) {
		if s.opts.LogStats {
			bm.LogBookmark(s.logger)
		}
		if err := s.opts.Output.WriteBookmark(bm); err != nil {
			s.logger.Error("failed to write bookmark", "error", err)
		}
		if s.opts.Output != nil {
			s.saveSnapshot(&bm)
		}
	}
}

// sample measures the scene at the end of a stats window.
func (s *Scene) sample() telemetry.Sample {
	sample := telemetry.Sample{MinHeight: math.Inf(1)}
	s.errBuf = s.errBuf[:0]

	query := s.bodyFilter.Query()
	for query.Next() {
		body := query.Get()
		sv := body.Solver
		p := sv.Particles()

		sample.Bodies++
		sample.Particles += p.Len()
		sample.KineticEnergy += p.KineticEnergy()
		sample.AdjacencyPairs += sv.Stats().AdjacencyPairs
		if _, ok := sv.Grabbed(); ok {
			sample.Grabbed++
		}
		s.errBuf = sv.Constraints().RelativeErrors(s.errBuf, p.Pos, xpbd.Stretch)
		sample.MinHeight = minHeight(sample.MinHeight, p.Pos)
	}
	sample.StretchErrors = s.errBuf

	balls := s.ballsFilter.Query()
	for balls.Next() {
		pit := balls.Get().Pit
		sample.Balls += pit.Len()
		sample.BallEnergy += pit.KineticEnergy()
	}

	if math.IsInf(sample.MinHeight, 1) {
		sample.MinHeight = 0
	}
	return sample
}

// minHeight returns the lowest y of pos, or lo if that is lower.
func minHeight(lo float64, pos []mgl32.Vec3) float64 {
	for _, q := range pos {
		if y := float64(q[1]); y < lo {
			lo = y
		}
	}
	return lo
}

// saveSnapshot writes a snapshot tagged with bm to the output directory.
func (s *Scene) saveSnapshot(bm *telemetry.Bookmark) {
	path, err := s.opts.Output.WriteSnapshot(s.Snapshot(bm))
	if err != nil {
		s.logger.Error("failed to save snapshot", "error", err)
		return
	}
	s.logger.Info("snapshot saved", "path", path, "frame", s.frame)
}

// Snapshot captures the particle and ball state of every body. bookmark may
// be nil.
func (s *Scene) Snapshot(bookmark *telemetry.Bookmark) *telemetry.Snapshot {
	snap := &telemetry.Snapshot{
		Version:  telemetry.SnapshotVersion,
		Seed:     s.cfg.Sim.Seed,
		Frame:    s.frame,
		SimTime:  float64(s.time),
		Bookmark: bookmark,
	}

	query := s.bodyFilter.Query()
	for query.Next() {
		body := query.Get()
		p := body.Solver.Particles()
		snap.Bodies = append(snap.Bodies, telemetry.BodyState{
			Name: body.Name,
			Kind: body.Kind,
			Pos:  slices.Clone(p.Pos),
			Vel:  slices.Clone(p.Vel),
		})
	}

	balls := s.ballsFilter.Query()
	for balls.Next() {
		b := balls.Get()
		snap.Bodies = append(snap.Bodies, telemetry.BodyState{
			Name: b.Name,
			Kind: config.KindBallPit,
			Pos:  slices.Clone(b.Pit.Pos),
			Vel:  slices.Clone(b.Pit.Vel),
		})
	}
	return snap
}

// Restore loads the particle and ball state of snap into the bodies of the
// same name. Bodies missing from snap keep their state. Active grabs are
// released and drags due before the snapshot time are skipped.
//
// The scene must be built from the config snap was taken with; a body whose
// particle count differs is an error, and the scene is left unchanged.
func (s *Scene) Restore(snap *telemetry.Snapshot) error {
	if snap.Version != telemetry.SnapshotVersion {
		return fmt.Errorf("snapshot version mismatch: got %d, expected %d", snap.Version, telemetry.SnapshotVersion)
	}
	if err := s.checkSnapshot(snap); err != nil {
		return err
	}

	query := s.bodyFilter.Query()
	for query.Next() {
		body := query.Get()
		st, ok := snap.Body(body.Name)
		if !ok {
			continue
		}
		p := body.Solver.Particles()
		body.Solver.EndGrab(mgl32.Vec3{})
		copy(p.Pos, st.Pos)
		copy(p.Prev, st.Pos)
		copy(p.Vel, st.Vel)
	}

	balls := s.ballsFilter.Query()
	for balls.Next() {
		b := balls.Get()
		if st, ok := snap.Body(b.Name); ok {
			copy(b.Pit.Pos, st.Pos)
			copy(b.Pit.Vel, st.Vel)
		}
	}

	skins := s.skinFilter.Query()
	for skins.Next() {
		body, skin := skins.Get()
		skin.Binding.Update(body.Solver.Positions(), skin.Mesh.Verts)
	}

	s.frame = snap.Frame
	s.time = float32(snap.SimTime)
	s.rewindDrags()
	s.collector.Flush(s.frame, telemetry.Sample{}) // start a fresh window
	s.bookmarks.Reset()
	return nil
}

// checkSnapshot reports every body and ball pit whose size differs from its
// state in snap.
func (s *Scene) checkSnapshot(snap *telemetry.Snapshot) error {
	var errs []error
	query := s.bodyFilter.Query()
	for query.Next() {
		body := query.Get()
		st, ok := snap.Body(body.Name)
		if !ok {
			continue
		}
		if n := body.Solver.Particles().Len(); len(st.Pos) != n || len(st.Vel) != n {
			errs = append(errs, fmt.Errorf("body %q: snapshot has %d particles, scene has %d", body.Name, len(st.Pos), n))
		}
	}

	balls := s.ballsFilter.Query()
	for balls.Next() {
		b := balls.Get()
		st, ok := snap.Body(b.Name)
		if !ok {
			continue
		}
		if n := b.Pit.Len(); len(st.Pos) != n || len(st.Vel) != n {
			errs = append(errs, fmt.Errorf("ball pit %q: snapshot has %d balls, scene has %d", b.Name, len(st.Pos), n))
		}
	}
	return errors.Join(errs...)
}
