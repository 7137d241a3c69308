package camera_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-pipe/engine/camera"
)

// project transforms a point by a column-major matrix and divides by w.
func project(m [16]float32, p [3]float32) [3]float32 {
	var out [4]float32
	for row := range 4 {
		out[row] = m[row]*p[0] + m[4+row]*p[1] + m[8+row]*p[2] + m[12+row]
	}
	return [3]float32{out[0] / out[3], out[1] / out[3], out[2] / out[3]}
}

func TestTargetProjectsToCenter(t *testing.T) {
	c := camera.NewCamera(camera.WithLookAt([3]float32{0, 2, 10}, [3]float32{0, 2, 0}))
	ndc := project(c.ViewProjectionMatrix(), [3]float32{0, 2, 0})
	assert.InDelta(t, 0, ndc[0], 1e-5)
	assert.InDelta(t, 0, ndc[1], 1e-5)
	assert.Greater(t, ndc[2], float32(0))
	assert.Less(t, ndc[2], float32(1), "depth lands in the [0, 1] clip range")
}

func TestResizeChangesAspect(t *testing.T) {
	c := camera.NewCamera()
	before := c.ProjectionMatrix()
	c.Resize(1600, 800)
	assert.InDelta(t, 2, c.Aspect(), 1e-6)
	after := c.ProjectionMatrix()
	assert.InDelta(t, before[0]/2, after[0], 1e-6)
	assert.Equal(t, before[5], after[5])

	c.Resize(100, 0)
	assert.InDelta(t, 2, c.Aspect(), 1e-6, "a zero height is ignored")
}

func TestConstantsLayout(t *testing.T) {
	c := camera.NewCamera(camera.WithLookAt([3]float32{1, 2, 3}, [3]float32{}))
	b := c.Constants()
	require.Len(t, b, camera.ConstantsSize)

	f := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])) }
	vp := c.ViewProjectionMatrix()
	assert.Equal(t, vp[0], f(0))
	assert.Equal(t, vp[15], f(15))
	assert.Equal(t, []float32{1, 2, 3, 1}, []float32{f(16), f(17), f(18), f(19)})
}
