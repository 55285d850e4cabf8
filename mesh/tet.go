package mesh

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// TetMesh is a tetrahedral mesh with its unique edges and boundary faces.
// Every tet is positively oriented.
type TetMesh struct {
	Verts   []mgl32.Vec3
	Tets    [][4]int32
	Edges   [][2]int32
	Surface [][3]int32 // outward-wound boundary triangles
}

// Cube corners are indexed by bit0 = x, bit1 = y, bit2 = z. Alternating the
// split between neighbouring cubes makes their shared face diagonals agree.
var (
	evenCubeTets = [5][4]int{{0, 1, 2, 4}, {3, 1, 2, 7}, {5, 1, 4, 7}, {6, 2, 4, 7}, {1, 2, 4, 7}}
	oddCubeTets  = [5][4]int{{1, 0, 3, 5}, {2, 0, 3, 6}, {4, 0, 5, 6}, {7, 3, 5, 6}, {0, 3, 5, 6}}
)

// outwardFaces lists, per tet vertex, the opposite face wound so its normal
// points away from that vertex.
var outwardFaces = [4][3]int{{1, 2, 3}, {0, 3, 2}, {0, 1, 3}, {0, 2, 1}}

// TetBox builds a box of nx*ny*nz cubes of the given edge length, each split
// into five tets, with its minimum corner at origin.
func TetBox(nx, ny, nz int, spacing float32, origin mgl32.Vec3) *TetMesh {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		panic(fmt.Sprintf("mesh: tet box needs positive dimensions, got %dx%dx%d", nx, ny, nz))
	}
	if !(spacing > 0) {
		panic(fmt.Sprintf("mesh: tet box spacing must be > 0, got %v", spacing))
	}

	vx, vy, vz := nx+1, ny+1, nz+1
	vid := func(i, j, k int) int32 { return int32((i*vy+j)*vz + k) }

	m := &TetMesh{Verts: make([]mgl32.Vec3, 0, vx*vy*vz)}
	for i := 0; i < vx; i++ {
		for j := 0; j < vy; j++ {
			for k := 0; k < vz; k++ {
				m.Verts = append(m.Verts, origin.Add(mgl32.Vec3{float32(i), float32(j), float32(k)}.Mul(spacing)))
			}
		}
	}

	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				var corner [8]int32
				for c := 0; c < 8; c++ {
					corner[c] = vid(i+c&1, j+(c>>1)&1, k+(c>>2)&1)
				}
				split := evenCubeTets
				if (i+j+k)%2 == 1 {
					split = oddCubeTets
				}
				for _, t := range split {
					tet := [4]int32{corner[t[0]], corner[t[1]], corner[t[2]], corner[t[3]]}
					if m.volume(tet) < 0 {
						tet[2], tet[3] = tet[3], tet[2]
					}
					m.Tets = append(m.Tets, tet)
				}
			}
		}
	}

	m.Edges = tetEdges(m.Tets)
	m.Surface = tetSurface(m.Tets)
	return m
}

func (m *TetMesh) volume(t [4]int32) float32 {
	p0 := m.Verts[t[0]]
	return m.Verts[t[1]].Sub(p0).Cross(m.Verts[t[2]].Sub(p0)).Dot(m.Verts[t[3]].Sub(p0)) / 6
}

// Volume returns the total signed volume of the mesh.
func (m *TetMesh) Volume() float32 {
	var v float32
	for _, t := range m.Tets {
		v += m.volume(t)
	}
	return v
}

func tetEdges(tets [][4]int32) [][2]int32 {
	edges := make([][2]int32, 0, 6*len(tets))
	for _, t := range tets {
		for a := 0; a < 4; a++ {
			for b := a + 1; b < 4; b++ {
				edges = append(edges, [2]int32{min(t[a], t[b]), max(t[a], t[b])})
			}
		}
	}
	slices.SortFunc(edges, func(a, b [2]int32) int {
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return cmp.Compare(a[1], b[1])
	})
	return slices.Compact(edges)
}

// tetSurface returns the faces that belong to exactly one tet.
func tetSurface(tets [][4]int32) [][3]int32 {
	type face struct{ key, tri [3]int32 }
	faces := make([]face, 0, 4*len(tets))
	for _, t := range tets {
		for _, f := range outwardFaces {
			tri := [3]int32{t[f[0]], t[f[1]], t[f[2]]}
			key := tri
			slices.Sort(key[:])
			faces = append(faces, face{key: key, tri: tri})
		}
	}
	slices.SortFunc(faces, func(a, b face) int {
		return slices.Compare(a.key[:], b.key[:])
	})

	var out [][3]int32
	for i := 0; i < len(faces); {
		j := i + 1
		for j < len(faces) && faces[j].key == faces[i].key {
			j++
		}
		if j-i == 1 {
			out = append(out, faces[i].tri)
		}
		i = j
	}
	return out
}

// SurfaceMesh returns the boundary as a standalone triangle mesh holding
// copies of only the vertices the surface uses.
func (m *TetMesh) SurfaceMesh() *TriMesh {
	remap := make([]int32, len(m.Verts))
	for i := range remap {
		remap[i] = -1
	}
	out := &TriMesh{Tris: make([][3]int32, len(m.Surface))}
	for fi, f := range m.Surface {
		for c, id := range f {
			if remap[id] < 0 {
				remap[id] = int32(len(out.Verts))
				out.Verts = append(out.Verts, m.Verts[id])
			}
			out.Tris[fi][c] = remap[id]
		}
	}
	return out
}
