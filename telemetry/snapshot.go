package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the dynamic simulation state for replay. Topology is not
// stored; it is rebuilt from the config the snapshot was taken with.
type Snapshot struct {
	Version int   `json:"version"`
	Seed    int64 `json:"seed"`

	Frame   int32   `json:"frame"`
	SimTime float64 `json:"sim_time"`

	Bodies []BodyState `json:"bodies"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// BodyState holds one body's particle state. Ball pits store their balls.
type BodyState struct {
	Name string       `json:"name"`
	Kind string       `json:"kind"`
	Pos  []mgl32.Vec3 `json:"pos"`
	Vel  []mgl32.Vec3 `json:"vel"`
}

// Body returns the state of the named body.
func (s *Snapshot) Body(name string) (*BodyState, bool) {
	for i := range s.Bodies {
		if s.Bodies[i].Name == name {
			return &s.Bodies[i], true
		}
	}
	return nil, false
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	// Build filename
	name := fmt.Sprintf("snapshot_%d", snapshot.Frame)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Frame, sanitized)
	}
	name += ".json"

	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}

	return &snapshot, nil
}
