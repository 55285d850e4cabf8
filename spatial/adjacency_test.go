package spatial

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjacencyOrderingAndDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	pos := randomPositions(rng, 600, 0.5)
	const maxDist = 0.06

	adj := NewAdjacency(0.05, len(pos))
	adj.Create(pos)
	adj.QueryAll(pos, maxDist)

	require.Equal(t, adj.Len(), adj.First[len(pos)], "CSR sentinel must equal buffer length")
	for i := range pos {
		require.LessOrEqual(t, adj.First[i], adj.First[i+1])
		for _, j := range adj.Neighbors(i) {
			assert.Less(t, int(j), i)
			d := pos[j].Sub(pos[i]).Len()
			assert.LessOrEqual(t, d, float32(maxDist)*1.0001)
		}
	}
}

func TestAdjacencyFindsEveryPair(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	pos := randomPositions(rng, 200, 0.5)
	const maxDist = 0.1

	adj := NewAdjacency(0.1, len(pos))
	adj.Create(pos)
	adj.QueryAll(pos, maxDist)
	require.Zero(t, adj.Truncated())

	for i := range pos {
		have := make(map[int32]bool)
		for _, j := range adj.Neighbors(i) {
			have[j] = true
		}
		for j := 0; j < i; j++ {
			d := pos[j].Sub(pos[i])
			if d.Dot(d) <= maxDist*maxDist {
				assert.True(t, have[int32(j)], "pair (%d, %d) missing", i, j)
			}
		}
	}
}

func TestAdjacencyTruncatesWhenFull(t *testing.T) {
	// Every particle sits on the same spot, so all n(n-1)/2 pairs qualify.
	const n = 60
	pos := make([]mgl32.Vec3, n)

	adj := NewAdjacency(0.1, n)
	adj.Create(pos)
	adj.QueryAll(pos, 0)

	pairs := n * (n - 1) / 2
	require.Greater(t, pairs, adj.Cap())
	assert.Equal(t, adj.Cap(), adj.Len())
	assert.Equal(t, pairs-adj.Cap(), adj.Truncated())
	assert.Equal(t, adj.Len(), adj.First[n])
}

func TestAdjacencyFewerPositionsThanCapacity(t *testing.T) {
	adj := NewAdjacency(1, 8)
	pos := []mgl32.Vec3{{0, 0, 0}, {0.5, 0, 0}, {5, 5, 5}}
	adj.Create(pos)
	adj.QueryAll(pos, 1)

	require.NotEmpty(t, adj.Neighbors(1))
	for _, j := range adj.Neighbors(1) {
		assert.Equal(t, int32(0), j)
	}
	assert.Empty(t, adj.Neighbors(2))
	for i := len(pos); i < 8; i++ {
		assert.Empty(t, adj.Neighbors(i))
	}
}
