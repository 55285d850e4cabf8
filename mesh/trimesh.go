// Package mesh builds the topology that particle bodies are constrained by:
// cloth grids, triangle meshes, tetrahedral boxes and the skinning of a
// visual surface onto tets.
//
// Everything here is immutable once built. Vertex positions are the rest
// pose; solvers copy them.
package mesh

import (
	"cmp"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// TriMesh is an indexed triangle mesh.
type TriMesh struct {
	Verts []mgl32.Vec3
	Tris  [][3]int32
}

type halfEdge struct {
	id0, id1 int32 // id0 < id1
	num      int32 // 3*tri + corner
}

// neighbors returns, for every half-edge 3*t+j (from Tris[t][j] to
// Tris[t][(j+1)%3]), the half-edge of the adjacent triangle sharing it,
// or -1 on the boundary.
func (m *TriMesh) neighbors() []int32 {
	edges := make([]halfEdge, 0, 3*len(m.Tris))
	for t, tri := range m.Tris {
		for j := 0; j < 3; j++ {
			a, b := tri[j], tri[(j+1)%3]
			edges = append(edges, halfEdge{
				id0: min(a, b),
				id1: max(a, b),
				num: int32(3*t + j),
			})
		}
	}
	slices.SortFunc(edges, func(a, b halfEdge) int {
		if c := cmp.Compare(a.id0, b.id0); c != 0 {
			return c
		}
		return cmp.Compare(a.id1, b.id1)
	})

	nb := make([]int32, len(edges))
	for i := range nb {
		nb[i] = -1
	}
	for i := 0; i+1 < len(edges); {
		e0, e1 := edges[i], edges[i+1]
		if e0.id0 == e1.id0 && e0.id1 == e1.id1 {
			nb[e0.num] = e1.num
			nb[e1.num] = e0.num
			i += 2
			continue
		}
		i++
	}
	return nb
}

// Edges returns every mesh edge exactly once.
func (m *TriMesh) Edges() [][2]int32 {
	nb := m.neighbors()
	var out [][2]int32
	for t, tri := range m.Tris {
		for j := 0; j < 3; j++ {
			a, b := tri[j], tri[(j+1)%3]
			if nb[3*t+j] < 0 || a < b {
				out = append(out, [2]int32{a, b})
			}
		}
	}
	return out
}

// BendingPairs returns, for every interior edge, the two vertices opposite it
// in the adjacent triangles. Constraining their distance resists folding.
func (m *TriMesh) BendingPairs() [][2]int32 {
	nb := m.neighbors()
	var out [][2]int32
	for t, tri := range m.Tris {
		for j := 0; j < 3; j++ {
			n := nb[3*t+j]
			if n < 0 || tri[j] > tri[(j+1)%3] {
				continue
			}
			nt, nj := n/3, n%3
			out = append(out, [2]int32{tri[(j+2)%3], m.Tris[nt][(nj+2)%3]})
		}
	}
	return out
}

// TriangleArea returns the area of triangle t.
func (m *TriMesh) TriangleArea(t int) float32 {
	tri := m.Tris[t]
	p0 := m.Verts[tri[0]]
	return 0.5 * m.Verts[tri[1]].Sub(p0).Cross(m.Verts[tri[2]].Sub(p0)).Len()
}
