package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"

	"github.com/pthm-cable/softsim/components"
)

// easings maps config names to tween functions.
var easings = map[string]ease.TweenFunc{
	"":           ease.Linear,
	"linear":     ease.Linear,
	"inQuad":     ease.InQuad,
	"outQuad":    ease.OutQuad,
	"inOutQuad":  ease.InOutQuad,
	"inCubic":    ease.InCubic,
	"outCubic":   ease.OutCubic,
	"inOutCubic": ease.InOutCubic,
	"inSine":     ease.InSine,
	"outSine":    ease.OutSine,
	"inOutSine":  ease.InOutSine,
	"outBack":    ease.OutBack,
	"outBounce":  ease.OutBounce,
	"outElastic": ease.OutElastic,
}

// Ease returns the tween function with the given config name.
func Ease(name string) (ease.TweenFunc, error) {
	fn, ok := easings[name]
	if !ok {
		return nil, fmt.Errorf("unknown ease %q", name)
	}
	return fn, nil
}

// updateDrags starts due drags, moves active grabs along their tweens and
// releases finished ones with the velocity of the grab point.
func (s *Scene) updateDrags() {
	dt := s.frameTime

	query := s.dragFilter.Query()
	for query.Next() {
		d := query.Get()
		if d.State == components.DragDone {
			continue
		}
		if !s.world.Alive(d.Target) {
			d.State = components.DragDone
			continue
		}
		body := s.bodyMap.Get(d.Target)

		switch d.State {
		case components.DragPending:
			if s.time < d.Start {
				continue
			}
			d.Particle = body.Solver.StartGrab(d.From)
			if d.Particle < 0 {
				d.State = components.DragDone
				continue
			}
			for axis := range 3 {
				d.Path[axis] = gween.New(d.From[axis], d.To[axis], d.Duration, d.Ease)
			}
			d.Last = d.From
			d.Velocity = mgl32.Vec3{}
			d.State = components.DragActive
			s.collector.RecordGrabStart()

		case components.DragActive:
			var pos mgl32.Vec3
			done := true
			for axis := range 3 {
				v, finished := d.Path[axis].Update(dt)
				pos[axis] = v
				done = done && finished
			}
			d.Velocity = pos.Sub(d.Last).Mul(1 / dt)
			d.Last = pos
			body.Solver.MoveGrabbed(pos)

			if done {
				body.Solver.EndGrab(d.Velocity)
				d.State = components.DragDone
				s.collector.RecordGrabEnd()
			}
		}
	}
}

// resetDrags puts every drag back to pending.
func (s *Scene) resetDrags() {
	query := s.dragFilter.Query()
	for query.Next() {
		d := query.Get()
		d.State = components.DragPending
		d.Particle = -1
		d.Path = [3]*gween.Tween{}
		d.Last = mgl32.Vec3{}
		d.Velocity = mgl32.Vec3{}
	}
}

// rewindDrags resets drags and skips those due before the current time.
func (s *Scene) rewindDrags() {
	s.resetDrags()
	query := s.dragFilter.Query()
	for query.Next() {
		if d := query.Get(); d.Start < s.time {
			d.State = components.DragDone
		}
	}
}
