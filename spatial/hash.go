// Package spatial provides the uniform spatial hash used for particle neighbour queries.
package spatial

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Hash multipliers. Any three large odd constants work; these are fixed so
// bucket assignment is reproducible across runs.
const (
	hashX int32 = 92837111
	hashY int32 = 689287499
	hashZ int32 = 283923481
)

// Hash maps 3D positions to buckets of a fixed-size table.
// Buckets are stored in counting-sort layout: the entries of bucket h are
// cellEntries[cellStart[h]:cellStart[h+1]].
type Hash struct {
	spacing    float32
	invSpacing float32
	tableSize  int
	maxObjects int

	cellStart   []int
	cellEntries []int
	numEntries  int

	queryIDs []int
}

// NewHash creates a hash with cells of the given spacing able to index up to
// maxObjects positions. The table has 2*maxObjects buckets.
func NewHash(spacing float32, maxObjects int) *Hash {
	if !(spacing > 0) {
		panic(fmt.Sprintf("spatial: hash spacing must be > 0, got %v", spacing))
	}
	if maxObjects <= 0 {
		panic(fmt.Sprintf("spatial: hash needs maxObjects > 0, got %d", maxObjects))
	}
	tableSize := 2 * maxObjects
	return &Hash{
		spacing:     spacing,
		invSpacing:  1 / spacing,
		tableSize:   tableSize,
		maxObjects:  maxObjects,
		cellStart:   make([]int, tableSize+1),
		cellEntries: make([]int, maxObjects),
		queryIDs:    make([]int, 0, maxObjects),
	}
}

// Spacing returns the cell size.
func (h *Hash) Spacing() float32 { return h.spacing }

// TableSize returns the number of buckets.
func (h *Hash) TableSize() int { return h.tableSize }

// MaxObjects returns the number of positions the hash can index.
func (h *Hash) MaxObjects() int { return h.maxObjects }

// Len returns the number of entries indexed by the last Create.
func (h *Hash) Len() int { return h.numEntries }

// HashCoords returns the bucket of integer cell (xi, yi, zi).
// Multiplication wraps; the absolute value is taken in 64 bits so the result
// is never negative, even for math.MinInt32.
func (h *Hash) HashCoords(xi, yi, zi int32) int {
	v := int64(xi*hashX ^ yi*hashY ^ zi*hashZ)
	if v < 0 {
		v = -v
	}
	return int(v % int64(h.tableSize))
}

// intCoord returns the integer cell coordinate along one axis.
func (h *Hash) intCoord(c float32) int32 {
	return int32(math.Floor(float64(c * h.invSpacing)))
}

// HashPos returns the bucket of the cell containing p.
func (h *Hash) HashPos(p mgl32.Vec3) int {
	return h.HashCoords(h.intCoord(p[0]), h.intCoord(p[1]), h.intCoord(p[2]))
}

// Create rebuilds the index from positions. Entries within a bucket end up in
// no particular order.
func (h *Hash) Create(positions []mgl32.Vec3) {
	if len(positions) > h.maxObjects {
		panic(fmt.Sprintf("spatial: %d positions exceed hash capacity %d", len(positions), h.maxObjects))
	}

	// Count occupancy per bucket
	clear(h.cellStart)
	for _, p := range positions {
		h.cellStart[h.HashPos(p)]++
	}

	// Prefix sums: cellStart[b] becomes the end of bucket b
	start := 0
	for i := 0; i < h.tableSize; i++ {
		start += h.cellStart[i]
		h.cellStart[i] = start
	}
	h.cellStart[h.tableSize] = start

	// Fill in reverse; each decrement leaves cellStart[b] at the bucket start
	for i, p := range positions {
		b := h.HashPos(p)
		h.cellStart[b]--
		h.cellEntries[h.cellStart[b]] = i
	}
	h.numEntries = len(positions)
}

// Bucket returns the entries of bucket b from the last Create.
func (h *Hash) Bucket(b int) []int {
	return h.cellEntries[h.cellStart[b]:h.cellStart[b+1]]
}

// Query returns the ids stored in every cell overlapping the axis-aligned box
// [pos-maxDist, pos+maxDist]. The result is a superset of the ids within
// maxDist; exact distance filtering is left to the caller. Ids can repeat when
// two cells share a bucket.
//
// The returned slice is owned by the hash and is overwritten by the next Query.
func (h *Hash) Query(pos mgl32.Vec3, maxDist float32) []int {
	x0 := h.intCoord(pos[0] - maxDist)
	y0 := h.intCoord(pos[1] - maxDist)
	z0 := h.intCoord(pos[2] - maxDist)

	x1 := h.intCoord(pos[0] + maxDist)
	y1 := h.intCoord(pos[1] + maxDist)
	z1 := h.intCoord(pos[2] + maxDist)

	h.queryIDs = h.queryIDs[:0]
	for xi := x0; xi <= x1; xi++ {
		for yi := y0; yi <= y1; yi++ {
			for zi := z0; zi <= z1; zi++ {
				b := h.HashCoords(xi, yi, zi)
				h.queryIDs = append(h.queryIDs, h.cellEntries[h.cellStart[b]:h.cellStart[b+1]]...)
			}
		}
	}
	return h.queryIDs
}
