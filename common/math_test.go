package common_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Carmen-Shannon/oxy-pipe/common"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		size, alignment, want uint64
	}{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{7, 0, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, common.AlignUp(tt.size, tt.alignment), "AlignUp(%d, %d)", tt.size, tt.alignment)
	}
}

func TestMul4Identity(t *testing.T) {
	var id, m, out [16]float32
	common.Identity(id[:])
	for i := range m {
		m[i] = float32(i)
	}
	common.Mul4(out[:], id[:], m[:])
	assert.Equal(t, m, out)
	common.Mul4(out[:], m[:], id[:])
	assert.Equal(t, m, out)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, float32(1), common.Clamp(3, 0, 1))
	assert.Equal(t, float32(0), common.Clamp(-2, 0, 1))
	assert.Equal(t, float32(0.5), common.Clamp(0.5, 0, 1))
}
