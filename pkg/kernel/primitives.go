package kernel

// BoxMesh returns a closed axis-aligned box spanning lo to hi as 12
// triangles with outward winding.
func BoxMesh(lo, hi Point3) *Mesh {
	verts := []Point3{
		{X: lo.X, Y: lo.Y, Z: lo.Z},
		{X: hi.X, Y: lo.Y, Z: lo.Z},
		{X: hi.X, Y: hi.Y, Z: lo.Z},
		{X: lo.X, Y: hi.Y, Z: lo.Z},
		{X: lo.X, Y: lo.Y, Z: hi.Z},
		{X: hi.X, Y: lo.Y, Z: hi.Z},
		{X: hi.X, Y: hi.Y, Z: hi.Z},
		{X: lo.X, Y: hi.Y, Z: hi.Z},
	}
	tris := [][3]uint32{
		{0, 2, 1}, {0, 3, 2}, // bottom
		{4, 5, 6}, {4, 6, 7}, // top
		{0, 1, 5}, {0, 5, 4}, // front
		{3, 7, 6}, {3, 6, 2}, // back
		{0, 4, 7}, {0, 7, 3}, // left
		{1, 2, 6}, {1, 6, 5}, // right
	}
	m, _ := NewMesh(verts, tris)
	return m
}

// Merge concatenates meshes into one, preserving triangle order: all
// triangles of the first mesh come first.
func Merge(meshes ...*Mesh) *Mesh {
	var verts []Point3
	var tris [][3]uint32
	for _, m := range meshes {
		if m == nil {
			continue
		}
		base := uint32(len(verts))
		verts = append(verts, m.Vertices...)
		for _, t := range m.Triangles {
			tris = append(tris, [3]uint32{t[0] + base, t[1] + base, t[2] + base})
		}
	}
	out, _ := NewMesh(verts, tris)
	return out
}
