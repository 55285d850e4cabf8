package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()

	snapshot := &Snapshot{
		Version: SnapshotVersion,
		Seed:    42,
		Frame:   600,
		SimTime: 10,
		Bodies: []BodyState{
			{
				Name: "curtain",
				Kind: "grid_cloth",
				Pos:  []mgl32.Vec3{{0, 1, 0}, {0.1, 1, 0}},
				Vel:  []mgl32.Vec3{{0, -0.5, 0}, {0.25, 0, 0}},
			},
			{
				Name: "pit",
				Kind: "ball_pit",
				Pos:  []mgl32.Vec3{{2, 0.5, 0}},
				Vel:  []mgl32.Vec3{{1, 0, -1}},
			},
		},
		Bookmark: &Bookmark{
			Type:        BookmarkEnergySpike,
			Frame:       600,
			Description: "Test bookmark",
		},
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	if !strings.HasSuffix(path, "snapshot_600_energy_spike.json") {
		t.Errorf("unexpected snapshot name %s", filepath.Base(path))
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("snapshot file not created at %s", path)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	if loaded.Frame != snapshot.Frame || loaded.Seed != snapshot.Seed {
		t.Errorf("frame/seed mismatch: got %d/%d", loaded.Frame, loaded.Seed)
	}
	if len(loaded.Bodies) != 2 {
		t.Fatalf("got %d bodies, want 2", len(loaded.Bodies))
	}

	curtain, ok := loaded.Body("curtain")
	if !ok {
		t.Fatal("curtain missing from loaded snapshot")
	}
	if curtain.Pos[1] != (mgl32.Vec3{0.1, 1, 0}) || curtain.Vel[0] != (mgl32.Vec3{0, -0.5, 0}) {
		t.Errorf("curtain state mismatch: %+v", curtain)
	}
	if _, ok := loaded.Body("ghost"); ok {
		t.Error("unexpected body ghost")
	}

	if loaded.Bookmark == nil || loaded.Bookmark.Type != BookmarkEnergySpike {
		t.Error("bookmark not preserved")
	}
}

func TestSnapshotNameWithoutBookmark(t *testing.T) {
	path, err := SaveSnapshot(&Snapshot{Version: SnapshotVersion, Frame: 7}, t.TempDir())
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if filepath.Base(path) != "snapshot_7.json" {
		t.Errorf("unexpected snapshot name %s", filepath.Base(path))
	}
}

func TestLoadSnapshotRejectsVersion(t *testing.T) {
	data, err := json.Marshal(Snapshot{Version: SnapshotVersion + 1})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "future.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadSnapshot(path); err == nil {
		t.Error("expected version mismatch error")
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
