package spatial

import "github.com/go-gl/mathgl/mgl32"

// MaxAdjacencyPerParticle caps the adjacency buffer at this many entries per
// indexed particle. Dense packings can exceed it; the excess is dropped.
const MaxAdjacencyPerParticle = 25

// Adjacency precomputes, once per frame, the neighbours of every particle
// within a radius. Storage is CSR: the neighbours of i are
// IDs[First[i]:First[i+1]], and every stored j satisfies j < i so each pair
// appears once, at its higher id.
type Adjacency struct {
	hash *Hash

	First []int
	IDs   []int32

	capacity  int
	truncated int
}

// NewAdjacency creates an adjacency index over a hash with the given cell
// spacing and capacity.
func NewAdjacency(spacing float32, maxObjects int) *Adjacency {
	capacity := MaxAdjacencyPerParticle * maxObjects
	return &Adjacency{
		hash:     NewHash(spacing, maxObjects),
		First:    make([]int, maxObjects+1),
		IDs:      make([]int32, 0, capacity),
		capacity: capacity,
	}
}

// Hash returns the underlying spatial hash.
func (a *Adjacency) Hash() *Hash { return a.hash }

// Create rebuilds the underlying hash from positions.
func (a *Adjacency) Create(positions []mgl32.Vec3) {
	a.hash.Create(positions)
}

// QueryAll rebuilds the adjacency lists for all positions using the hash
// snapshot from the last Create. Pairs farther apart than maxDist are
// discarded. Once the buffer is full further pairs are silently dropped and
// counted in Truncated.
func (a *Adjacency) QueryAll(positions []mgl32.Vec3, maxDist float32) {
	maxDistSq := maxDist * maxDist
	a.IDs = a.IDs[:0]
	a.truncated = 0

	n := len(positions)
	for i := 0; i < n; i++ {
		a.First[i] = len(a.IDs)
		pi := positions[i]
		for _, j := range a.hash.Query(pi, maxDist) {
			if j >= i {
				continue
			}
			d := positions[j].Sub(pi)
			if d.Dot(d) > maxDistSq {
				continue
			}
			if len(a.IDs) >= a.capacity {
				a.truncated++
				continue
			}
			a.IDs = append(a.IDs, int32(j))
		}
	}
	// Sentinel entries for any unused tail keep Neighbors valid for every slot.
	for i := n; i < len(a.First); i++ {
		a.First[i] = len(a.IDs)
	}
}

// Neighbors returns the lower-id neighbours of particle i.
func (a *Adjacency) Neighbors(i int) []int32 {
	return a.IDs[a.First[i]:a.First[i+1]]
}

// Len returns the number of stored pairs.
func (a *Adjacency) Len() int { return len(a.IDs) }

// Cap returns the maximum number of pairs that can be stored.
func (a *Adjacency) Cap() int { return a.capacity }

// Truncated returns how many pairs the last QueryAll dropped because the
// buffer was full.
func (a *Adjacency) Truncated() int { return a.truncated }
