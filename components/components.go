// Package components defines ECS components for the simulation.
package components

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"

	"github.com/pthm-cable/softsim/granular"
	"github.com/pthm-cable/softsim/mesh"
)

// Skin is a visual surface that follows the tets of a soft body.
type Skin struct {
	Binding *mesh.Skin
	Mesh    *mesh.TriMesh // Verts are rewritten in place every frame
}

// Balls is a granular ball pit.
type Balls struct {
	Name string
	Pit  *granular.Pit
}

// DragState is the lifecycle of a scripted drag.
type DragState uint8

const (
	DragPending DragState = iota // waiting for Start
	DragActive                   // particle grabbed, following the path
	DragDone                     // released
)

// Drag scripts a grab on Target: at Start the particle nearest From is
// grabbed, moved along a tween to To over Duration, then released.
type Drag struct {
	Target   ecs.Entity
	Start    float32 // seconds into the run
	Duration float32
	From, To mgl32.Vec3
	Ease     ease.TweenFunc

	State    DragState
	Particle int             // grabbed particle while active
	Path     [3]*gween.Tween // per-axis tweens, created on start
	Last     mgl32.Vec3      // last commanded position
	Velocity mgl32.Vec3      // of the grab point, given to the particle on release
}
