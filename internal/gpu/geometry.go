package gpu

// Geometry is an indexed triangle list in clip space.
type Geometry struct {
	Positions []float32 // x, y pairs
	Indices   []uint16
}

// FullscreenQuad covers clip space [-1,1] with two triangles.
func FullscreenQuad() *Geometry {
	return &Geometry{
		Positions: []float32{-1, -1, 1, -1, 1, 1, -1, 1},
		Indices:   []uint16{0, 2, 1, 2, 0, 3},
	}
}

// Vertex returns the clip-space position of vertex i.
func (g *Geometry) Vertex(i uint16) (x, y float32) {
	return g.Positions[2*int(i)], g.Positions[2*int(i)+1]
}

// Triangles returns the number of triangles described by the index list.
func (g *Geometry) Triangles() int {
	return len(g.Indices) / 3
}

// IsPowerOfTwo reports whether v is a positive power of two.
func IsPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}

// Bounds returns the clip-space rectangle enclosing every vertex.
func (g *Geometry) Bounds() (minX, minY, maxX, maxY float32) {
	if len(g.Positions) < 2 {
		return 0, 0, 0, 0
	}
	minX, minY = g.Positions[0], g.Positions[1]
	maxX, maxY = minX, minY
	for i := 2; i+1 < len(g.Positions); i += 2 {
		x, y := g.Positions[i], g.Positions[i+1]
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	return minX, minY, maxX, maxY
}
