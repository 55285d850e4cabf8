package components

import "github.com/pthm-cable/softsim/xpbd"

// Body is a cloth or soft body advanced by its own solver.
type Body struct {
	Name    string
	Kind    string // config body kind
	Solver  *xpbd.Solver
	Spawned bool // added at runtime, removed on reset
}
