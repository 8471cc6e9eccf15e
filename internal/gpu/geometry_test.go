package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullscreenQuad(t *testing.T) {
	q := FullscreenQuad()
	assert.Equal(t, 2, q.Triangles())
	assert.Equal(t, []uint16{0, 2, 1, 2, 0, 3}, q.Indices)

	minX, minY, maxX, maxY := q.Bounds()
	assert.Equal(t, [4]float32{-1, -1, 1, 1}, [4]float32{minX, minY, maxX, maxY})

	x, y := q.Vertex(2)
	assert.Equal(t, float32(1), x)
	assert.Equal(t, float32(1), y)
}

func TestBoundsOfEmptyGeometry(t *testing.T) {
	minX, minY, maxX, maxY := (&Geometry{}).Bounds()
	assert.Zero(t, minX+minY+maxX+maxY)
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, v := range []int{1, 2, 64, 1024} {
		assert.True(t, IsPowerOfTwo(v), "%d", v)
	}
	for _, v := range []int{0, -4, 3, 640, 480} {
		assert.False(t, IsPowerOfTwo(v), "%d", v)
	}
}
