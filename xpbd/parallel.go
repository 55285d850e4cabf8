package xpbd

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// parallelThreshold is the minimum pass size to dispatch to workers.
// Below this, projecting on the calling goroutine is faster.
const parallelThreshold = 256

// MaxColors bounds the number of independent passes built by ColorPasses.
// Constraints that fit no color go to a trailing Jacobi pass.
const MaxColors = 8

// Pass is a group of constraints projected together. In an independent pass
// no two constraints share a particle, so they can be applied concurrently in
// any order.
type Pass struct {
	Constraints []int32 // indices into Set.Constraints
	Independent bool
}

// ColorPasses partitions set greedily into at most maxColors independent
// passes plus, if needed, one dependent pass of the leftovers. Constraints
// keep their set order inside each pass.
func ColorPasses(set *Set, numParticles, maxColors int) []Pass {
	owned := make([][]bool, 0, maxColors)
	passes := make([]Pass, 0, maxColors+1)
	var rest []int32

	for ci := range set.Constraints {
		c := &set.Constraints[ci]
		ids := c.IDs[:c.Kind.Arity()]
		placed := false
		for color := range owned {
			if anyOwned(owned[color], ids) {
				continue
			}
			claim(owned[color], ids)
			passes[color].Constraints = append(passes[color].Constraints, int32(ci))
			placed = true
			break
		}
		if placed {
			continue
		}
		if len(owned) < maxColors {
			o := make([]bool, numParticles)
			claim(o, ids)
			owned = append(owned, o)
			passes = append(passes, Pass{Constraints: []int32{int32(ci)}, Independent: true})
			continue
		}
		rest = append(rest, int32(ci))
	}

	if len(rest) > 0 {
		passes = append(passes, Pass{Constraints: rest})
	}
	return passes
}

func anyOwned(owned []bool, ids []int32) bool {
	for _, id := range ids {
		if owned[id] {
			return true
		}
	}
	return false
}

func claim(owned []bool, ids []int32) {
	for _, id := range ids {
		owned[id] = true
	}
}

// VerifyPasses panics if an independent pass touches any particle twice.
// Workers write positions without locks, so an overlap would silently
// corrupt results.
func VerifyPasses(passes []Pass, set *Set, numParticles int) {
	seen := make([]int, numParticles)
	for pi, pass := range passes {
		if !pass.Independent {
			continue
		}
		stamp := pi + 1
		for _, ci := range pass.Constraints {
			c := &set.Constraints[ci]
			for _, id := range c.IDs[:c.Kind.Arity()] {
				if seen[id] == stamp {
					panic(fmt.Sprintf("xpbd: particle %d appears twice in independent pass %d", id, pi))
				}
				seen[id] = stamp
			}
		}
	}
}

// SetPasses installs explicit passes for Colored projection after verifying
// them.
func (s *Solver) SetPasses(passes []Pass) {
	VerifyPasses(passes, s.set, s.p.Len())
	s.passes = passes
}

// Passes returns the passes used by Colored projection. NewSolver builds
// them for Colored solvers; others build them on first use.
func (s *Solver) Passes() []Pass {
	if s.passes == nil {
		s.SetPasses(ColorPasses(s.set, s.p.Len(), MaxColors))
	}
	return s.passes
}

func (s *Solver) jacobiScale() float32 {
	if s.JacobiScale > 0 {
		return s.JacobiScale
	}
	return DefaultJacobiScale
}

func (s *Solver) ensurePool() {
	if s.pool == nil {
		s.pool = newWorkerPool(s.Workers, s.p.Len())
	}
	if len(s.corr) != s.p.Len() {
		s.corr = make([]mgl32.Vec3, s.p.Len())
	}
}

func (s *Solver) solveColored() {
	s.ensurePool()
	for i, pass := range s.Passes() {
		if pass.Independent {
			s.pool.run(s, i, len(pass.Constraints), false)
		} else {
			s.runJacobi(i, len(pass.Constraints))
		}
	}
}

func (s *Solver) solveJacobi() {
	s.ensurePool()
	s.runJacobi(-1, s.set.Len())
}

// runJacobi projects pass (or every constraint when pass < 0) against the
// current positions, then applies the summed corrections scaled down.
func (s *Solver) runJacobi(pass, n int) {
	s.pool.run(s, pass, n, true)

	clear(s.corr)
	for w := range s.pool.scratches {
		sc := &s.pool.scratches[w]
		if !sc.used {
			continue
		}
		for i, c := range sc.corr {
			s.corr[i] = s.corr[i].Add(c)
		}
		clear(sc.corr)
		sc.used = false
	}

	scale := s.jacobiScale()
	pos := s.p.Pos
	for i := range pos {
		pos[i] = pos[i].Add(s.corr[i].Mul(scale))
	}
}

// projectChunk projects constraints [i0, i1) of a pass. Independent passes
// write positions directly; Jacobi passes write to the worker's private
// correction buffer.
func (s *Solver) projectChunk(pass, i0, i1 int, jacobi bool, sc *workerScratch) {
	var corr [4]mgl32.Vec3
	pos := s.p.Pos
	invMass := s.p.InvMass

	var indices []int32
	if pass >= 0 {
		indices = s.passes[pass].Constraints
	}

	skipped := 0
	for k := i0; k < i1; k++ {
		ci := k
		if indices != nil {
			ci = int(indices[k])
		}
		c := &s.set.Constraints[ci]
		if !project(c, pos, invMass, s.alpha[c.Kind], &corr) {
			skipped++
			continue
		}
		for j := 0; j < c.Kind.Arity(); j++ {
			id := c.IDs[j]
			if jacobi {
				sc.corr[id] = sc.corr[id].Add(corr[j])
			} else {
				pos[id] = pos[id].Add(corr[j])
			}
		}
	}
	if jacobi {
		sc.used = true
	}
	sc.skipped += skipped
}

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	corr    []mgl32.Vec3
	used    bool
	skipped int
}

// workChunk represents a range of a pass for a worker to process.
type workChunk struct {
	solver     *Solver
	pass       int
	start, end int
	jacobi     bool
}

// workerPool holds persistent worker goroutines for pass projection.
type workerPool struct {
	scratches  []workerScratch
	numWorkers int

	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func newWorkerPool(numWorkers, numParticles int) *workerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	scratches := make([]workerScratch, numWorkers)
	for i := range scratches {
		scratches[i].corr = make([]mgl32.Vec3, numParticles)
	}
	return &workerPool{
		numWorkers: numWorkers,
		scratches:  scratches,
	}
}

// start launches the worker goroutines.
func (p *workerPool) start() {
	if p.running {
		return
	}
	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *workerPool) worker(id int) {
	defer p.wg.Done()
	scratch := &p.scratches[id]

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.solver.projectChunk(chunk.pass, chunk.start, chunk.end, chunk.jacobi, scratch)
			p.doneChan <- struct{}{}
		}
	}
}

// run projects n constraints of a pass, splitting them into one chunk per
// worker when the pass is large enough.
func (p *workerPool) run(s *Solver, pass, n int, jacobi bool) {
	if n < parallelThreshold || p.numWorkers == 1 {
		s.projectChunk(pass, 0, n, jacobi, &p.scratches[0])
		p.collectSkipped(s)
		return
	}
	p.start()

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{solver: s, pass: pass, start: start, end: end, jacobi: jacobi}
		dispatched++
	}
	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
	p.collectSkipped(s)
}

func (p *workerPool) collectSkipped(s *Solver) {
	for i := range p.scratches {
		s.stats.Skipped += p.scratches[i].skipped
		p.scratches[i].skipped = 0
	}
}
