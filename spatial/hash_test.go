package spatial

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomPositions(rng *rand.Rand, n int, extent float32) []mgl32.Vec3 {
	pos := make([]mgl32.Vec3, n)
	for i := range pos {
		pos[i] = mgl32.Vec3{
			(rng.Float32()*2 - 1) * extent,
			(rng.Float32()*2 - 1) * extent,
			(rng.Float32()*2 - 1) * extent,
		}
	}
	return pos
}

func TestHashCoordsNeverNegative(t *testing.T) {
	h := NewHash(0.1, 17)
	coords := []int32{0, 1, -1, 7, -7, 12345, -12345, math.MaxInt32, math.MinInt32}
	for _, x := range coords {
		for _, y := range coords {
			for _, z := range coords {
				b := h.HashCoords(x, y, z)
				if b < 0 || b >= h.TableSize() {
					t.Fatalf("HashCoords(%d, %d, %d) = %d, want [0, %d)", x, y, z, b, h.TableSize())
				}
			}
		}
	}
}

func TestHashCoordsDeterministic(t *testing.T) {
	a := NewHash(0.5, 100)
	b := NewHash(0.5, 100)
	for i := int32(-20); i < 20; i++ {
		assert.Equal(t, a.HashCoords(i, 2*i, -3*i), b.HashCoords(i, 2*i, -3*i))
	}
}

func TestHashCellStartLayout(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pos := randomPositions(rng, 500, 1)

	h := NewHash(0.05, len(pos))
	h.Create(pos)

	for i := 0; i < h.TableSize(); i++ {
		require.LessOrEqual(t, h.cellStart[i], h.cellStart[i+1], "cellStart must be non-decreasing at %d", i)
	}
	assert.Equal(t, len(pos), h.cellStart[h.TableSize()])
	assert.Equal(t, len(pos), h.Len())

	// Every id lands exactly once, in the bucket of its own position
	seen := make([]int, len(pos))
	for b := 0; b < h.TableSize(); b++ {
		for _, id := range h.Bucket(b) {
			seen[id]++
			assert.Equal(t, b, h.HashPos(pos[id]))
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %d indexed %d times", id, n)
	}
}

func TestHashZeroRadiusQueryFindsSelf(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pos := randomPositions(rng, 300, 2)

	h := NewHash(0.1, len(pos))
	h.Create(pos)

	for i, p := range pos {
		ids := h.Query(p, 0)
		assert.Contains(t, ids, i, "query around %v must contain its own id", p)
	}
}

func TestHashQueryIsSupersetOfNeighbours(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pos := randomPositions(rng, 400, 1)
	const radius = 0.15

	h := NewHash(0.1, len(pos))
	h.Create(pos)

	for i, p := range pos {
		found := make(map[int]bool)
		for _, id := range h.Query(p, radius) {
			found[id] = true
		}
		for j, q := range pos {
			if q.Sub(p).Len() <= radius {
				if !found[j] {
					t.Fatalf("neighbour %d of %d missing from query", j, i)
				}
			}
		}
	}
}

func TestHashRebuildReplacesSnapshot(t *testing.T) {
	h := NewHash(1, 4)
	h.Create([]mgl32.Vec3{{0, 0, 0}, {10, 10, 10}})
	require.Contains(t, h.Query(mgl32.Vec3{10, 10, 10}, 0), 1)

	h.Create([]mgl32.Vec3{{0, 0, 0}, {-10, 0, 0}})
	assert.NotContains(t, h.Query(mgl32.Vec3{10, 10, 10}, 0), 1)
	assert.Contains(t, h.Query(mgl32.Vec3{-10, 0, 0}, 0), 1)
}

func TestNewHashPanicsOnBadSpacing(t *testing.T) {
	tests := []struct {
		name    string
		spacing float32
		max     int
	}{
		{"zero spacing", 0, 10},
		{"negative spacing", -1, 10},
		{"NaN spacing", float32(math.NaN()), 10},
		{"zero capacity", 1, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Panics(t, func() { NewHash(tc.spacing, tc.max) })
		})
	}
}

func TestHashCreatePanicsOverCapacity(t *testing.T) {
	h := NewHash(1, 2)
	assert.Panics(t, func() {
		h.Create(make([]mgl32.Vec3, 3))
	})
}
