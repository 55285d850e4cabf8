package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pthm-cable/softsim/config"
)

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("expected nil manager for empty dir, got %v, %v", om, err)
	}

	// A nil manager ignores every write
	if err := om.WriteStats(WindowStats{}); err != nil {
		t.Error(err)
	}
	if err := om.WritePerf(PerfStats{}, 0); err != nil {
		t.Error(err)
	}
	if err := om.WriteBookmark(Bookmark{}); err != nil {
		t.Error(err)
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestOutputManagerWritesCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager failed: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(cfg); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		if err := om.WriteStats(WindowStats{WindowEndFrame: int32(i * 60), Particles: 10}); err != nil {
			t.Fatalf("WriteStats failed: %v", err)
		}
	}
	perf := PerfStats{AvgTickDuration: time.Millisecond, PhasePct: map[string]float64{PhaseStep: 90}}
	if err := om.WritePerf(perf, 60); err != nil {
		t.Fatalf("WritePerf failed: %v", err)
	}
	if err := om.WriteBookmark(Bookmark{Type: BookmarkSettled, Frame: 60, Description: "at rest"}); err != nil {
		t.Fatalf("WriteBookmark failed: %v", err)
	}
	snapPath, err := om.WriteSnapshot(&Snapshot{Version: SnapshotVersion, Frame: 60})
	if err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	frames := readLines(t, filepath.Join(dir, "frames.csv"))
	if len(frames) != 4 {
		t.Fatalf("frames.csv has %d lines, want header + 3 rows", len(frames))
	}
	if !strings.HasPrefix(frames[0], "window_end,sim_time,bodies,particles") {
		t.Errorf("unexpected frames.csv header %q", frames[0])
	}
	if strings.Count(strings.Join(frames, "\n"), "window_end") != 1 {
		t.Error("header written more than once")
	}

	perfLines := readLines(t, filepath.Join(dir, "perf.csv"))
	if len(perfLines) != 2 || !strings.Contains(perfLines[0], "step_pct") {
		t.Errorf("unexpected perf.csv %q", perfLines)
	}

	bookmarks := readLines(t, filepath.Join(dir, "bookmarks.csv"))
	if len(bookmarks) != 2 || bookmarks[1] != "settled,60,at rest" {
		t.Errorf("unexpected bookmarks.csv %q", bookmarks)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml missing: %v", err)
	}
	if filepath.Dir(snapPath) != filepath.Join(dir, "snapshots") {
		t.Errorf("snapshot written to %s", snapPath)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}
