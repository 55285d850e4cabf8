package telemetry

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowDurationFrames int32
	dt                   float32

	// Current window tracking
	windowStartFrame int32

	// Event counters for current window
	skipped            int
	truncated          int
	grabsStarted       int
	grabsEnded         int
	ballsCollidingPeak int
}

// NewCollector creates a new stats collector.
// windowFrames: how many frames each stats window lasts
// dt: seconds per frame (used for frame-to-time conversion)
func NewCollector(windowFrames int, dt float32) *Collector {
	if windowFrames < 1 {
		windowFrames = 1
	}
	return &Collector{
		windowDurationFrames: int32(windowFrames),
		dt:                   dt,
	}
}

// RecordStep records the per-step counters of one body.
func (c *Collector) RecordStep(skipped, truncated int) {
	c.skipped += skipped
	c.truncated += truncated
}

// RecordGrabStart records a grab being started.
func (c *Collector) RecordGrabStart() {
	c.grabsStarted++
}

// RecordGrabEnd records a grab being released.
func (c *Collector) RecordGrabEnd() {
	c.grabsEnded++
}

// RecordBallContacts records how many balls touched something this frame.
func (c *Collector) RecordBallContacts(n int) {
	if n > c.ballsCollidingPeak {
		c.ballsCollidingPeak = n
	}
}

// ShouldFlush returns true if enough frames have passed to flush the window.
func (c *Collector) ShouldFlush(currentFrame int32) bool {
	return currentFrame-c.windowStartFrame >= c.windowDurationFrames
}

// Sample holds the scene state the caller measures at window end.
type Sample struct {
	Bodies         int
	Particles      int
	Balls          int
	KineticEnergy  float64
	BallEnergy     float64
	StretchErrors  []float64 // relative errors of every distance constraint, sorted in place
	MinHeight      float64
	AdjacencyPairs int
	Grabbed        int
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentFrame int32, sample Sample) WindowStats {
	errMean, errP50, errP90, errMax := ErrorStats(sample.StretchErrors)

	stats := WindowStats{
		WindowStartFrame: c.windowStartFrame,
		WindowEndFrame:   currentFrame,
		SimTimeSec:       float64(currentFrame) * float64(c.dt),

		Bodies:    sample.Bodies,
		Particles: sample.Particles,
		Balls:     sample.Balls,

		KineticEnergy: sample.KineticEnergy,
		BallEnergy:    sample.BallEnergy,

		StretchErrMean: errMean,
		StretchErrP50:  errP50,
		StretchErrP90:  errP90,
		StretchErrMax:  errMax,

		MinHeight: sample.MinHeight,

		AdjacencyPairs: sample.AdjacencyPairs,
		Truncated:      c.truncated,

		Skipped:      c.skipped,
		GrabsStarted: c.grabsStarted,
		GrabsEnded:   c.grabsEnded,
		Grabbed:      sample.Grabbed,

		BallsCollidingPeak: c.ballsCollidingPeak,
	}

	// Reset for next window
	c.windowStartFrame = currentFrame
	c.skipped = 0
	c.truncated = 0
	c.grabsStarted = 0
	c.grabsEnded = 0
	c.ballsCollidingPeak = 0

	return stats
}

// Reset starts a fresh window at frame 0, dropping pending counters.
func (c *Collector) Reset() {
	c.Flush(0, Sample{})
}

// WindowDurationFrames returns the number of frames per window.
func (c *Collector) WindowDurationFrames() int32 {
	return c.windowDurationFrames
}
