package mesh

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// LinkKind classifies a grid link.
type LinkKind uint8

const (
	LinkStretch LinkKind = iota
	LinkShear
	LinkBending
)

// Link connects two grid vertices.
type Link struct {
	A, B int32
	Kind LinkKind
}

// Plane selects which axes a grid spans.
type Plane uint8

const (
	// PlaneXY hangs the grid vertically; j grows along +Y.
	PlaneXY Plane = iota
	// PlaneXZ lays the grid flat; j grows along +Z.
	PlaneXZ
)

// gridOffsets lists links as (di0, dj0, di1, dj1) relative to vertex (i, j).
var gridOffsets = [...]struct {
	kind               LinkKind
	di0, dj0, di1, dj1 int
}{
	{LinkStretch, 0, 0, 0, 1},
	{LinkStretch, 0, 0, 1, 0},
	{LinkShear, 0, 0, 1, 1},
	{LinkShear, 0, 1, 1, 0},
	{LinkBending, 0, 0, 0, 2},
	{LinkBending, 0, 0, 2, 0},
}

// Grid is a regular cloth grid of NumX*NumY vertices. Vertex (i, j) has id
// i*NumY + j.
type Grid struct {
	NumX, NumY int
	Spacing    float32
	TriMesh
	Links []Link
}

// ClothGrid builds a grid with its first vertex at origin.
// It panics if either dimension is below 2 or spacing is not positive.
func ClothGrid(numX, numY int, spacing float32, origin mgl32.Vec3, plane Plane) *Grid {
	if numX < 2 || numY < 2 {
		panic(fmt.Sprintf("mesh: cloth grid needs at least 2x2 vertices, got %dx%d", numX, numY))
	}
	if !(spacing > 0) {
		panic(fmt.Sprintf("mesh: cloth grid spacing must be > 0, got %v", spacing))
	}

	g := &Grid{NumX: numX, NumY: numY, Spacing: spacing}
	g.Verts = make([]mgl32.Vec3, 0, numX*numY)
	for i := 0; i < numX; i++ {
		for j := 0; j < numY; j++ {
			d := mgl32.Vec3{float32(i) * spacing, float32(j) * spacing, 0}
			if plane == PlaneXZ {
				d = mgl32.Vec3{float32(i) * spacing, 0, float32(j) * spacing}
			}
			g.Verts = append(g.Verts, origin.Add(d))
		}
	}

	for i := 0; i < numX-1; i++ {
		for j := 0; j < numY-1; j++ {
			id := int32(g.ID(i, j))
			ny := int32(numY)
			g.Tris = append(g.Tris,
				[3]int32{id + 1, id, id + 1 + ny},
				[3]int32{id + 1 + ny, id, id + ny},
			)
		}
	}

	for _, o := range gridOffsets {
		for i := 0; i < numX; i++ {
			for j := 0; j < numY; j++ {
				i0, j0 := i+o.di0, j+o.dj0
				i1, j1 := i+o.di1, j+o.dj1
				if i0 >= numX || j0 >= numY || i1 >= numX || j1 >= numY {
					continue
				}
				g.Links = append(g.Links, Link{
					A:    int32(g.ID(i0, j0)),
					B:    int32(g.ID(i1, j1)),
					Kind: o.kind,
				})
			}
		}
	}
	return g
}

// ID returns the vertex id of grid coordinate (i, j).
func (g *Grid) ID(i, j int) int { return i*g.NumY + j }
