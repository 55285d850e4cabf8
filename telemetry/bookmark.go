package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkEnergySpike BookmarkType = "energy_spike"
	BookmarkOverstretch BookmarkType = "overstretch"
	BookmarkTruncation  BookmarkType = "adjacency_truncation"
	BookmarkTunnelling  BookmarkType = "tunnelling"
	BookmarkSettled     BookmarkType = "settled"
)

// Detector thresholds.
const (
	energySpikeFactor = 3.0   // kinetic energy over this multiple of the rolling average
	energySpikeFloor  = 1e-3  // ignore spikes out of a scene at rest
	overstretchLimit  = 0.5   // relative stretch error
	tunnelDepth       = -0.05 // below the floor
	settledEnergy     = 1e-4
	settledWindows    = 5
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type" json:"type"`
	Frame       int32        `csv:"frame" json:"frame"`
	Description string       `csv:"description" json:"description"`
}

// LogBookmark logs the bookmark.
func (b Bookmark) LogBookmark(logger *slog.Logger) {
	logger.Info("bookmark",
		"type", string(b.Type),
		"frame", b.Frame,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the simulation.
type BookmarkDetector struct {
	floorY float64

	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking; one-shot bookmarks re-arm once the condition clears
	overstretched       bool
	truncating          bool
	tunnelled           bool
	settledWindowsCount int
}

// NewBookmarkDetector creates a detector with the given history size. floorY
// is the ground height tunnelling is measured against.
func NewBookmarkDetector(historySize int, floorY float64) *BookmarkDetector {
	if historySize < 3 {
		historySize = 3 // minimum for a rolling energy average
	}
	return &BookmarkDetector{
		floorY:      floorY,
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkEnergySpike(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkOverstretch(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkTruncation(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkTunnelling(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkSettled(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	return bookmarks
}

// Reset clears history and re-arms every one-shot bookmark.
func (bd *BookmarkDetector) Reset() {
	*bd = BookmarkDetector{
		floorY:      bd.floorY,
		history:     make([]WindowStats, bd.historySize),
		historySize: bd.historySize,
	}
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) checkEnergySpike(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.KineticEnergy
	}
	avg := total / float64(len(history))

	if stats.KineticEnergy > energySpikeFloor && stats.KineticEnergy > avg*energySpikeFactor {
		ratio := stats.KineticEnergy / max(avg, energySpikeFloor)
		return &Bookmark{
			Type:        BookmarkEnergySpike,
			Frame:       stats.WindowEndFrame,
			Description: fmt.Sprintf("Kinetic energy %.4g is %.1fx average (%.4g)", stats.KineticEnergy, ratio, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkOverstretch(stats WindowStats) *Bookmark {
	if stats.StretchErrMax <= overstretchLimit {
		bd.overstretched = false
		return nil
	}
	if bd.overstretched {
		return nil
	}
	bd.overstretched = true
	return &Bookmark{
		Type:        BookmarkOverstretch,
		Frame:       stats.WindowEndFrame,
		Description: fmt.Sprintf("Constraint stretched %.0f%% past rest length", stats.StretchErrMax*100),
	}
}

func (bd *BookmarkDetector) checkTruncation(stats WindowStats) *Bookmark {
	if stats.Truncated == 0 {
		bd.truncating = false
		return nil
	}
	if bd.truncating {
		return nil
	}
	bd.truncating = true
	return &Bookmark{
		Type:        BookmarkTruncation,
		Frame:       stats.WindowEndFrame,
		Description: fmt.Sprintf("Adjacency dropped %d pairs at capacity", stats.Truncated),
	}
}

func (bd *BookmarkDetector) checkTunnelling(stats WindowStats) *Bookmark {
	if stats.Particles == 0 || stats.MinHeight >= bd.floorY+tunnelDepth {
		bd.tunnelled = false
		return nil
	}
	if bd.tunnelled {
		return nil
	}
	bd.tunnelled = true
	return &Bookmark{
		Type:        BookmarkTunnelling,
		Frame:       stats.WindowEndFrame,
		Description: fmt.Sprintf("Particle at height %.3f is below the floor at %.3f", stats.MinHeight, bd.floorY),
	}
}

func (bd *BookmarkDetector) checkSettled(stats WindowStats) *Bookmark {
	if stats.Particles == 0 || stats.Grabbed > 0 || stats.KineticEnergy > settledEnergy {
		bd.settledWindowsCount = 0
		return nil
	}

	bd.settledWindowsCount++
	if bd.settledWindowsCount == settledWindows { // trigger exactly once per rest
		return &Bookmark{
			Type:        BookmarkSettled,
			Frame:       stats.WindowEndFrame,
			Description: fmt.Sprintf("Scene at rest over %d windows", settledWindows),
		}
	}
	return nil
}
