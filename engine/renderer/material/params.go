package material

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-pipe/common"
)

// Params packs values into a little-endian constant buffer image. Vectors start on a 16-byte boundary when
// they would otherwise straddle one, matching the HLSL constant buffer packing rules.
type Params struct {
	buf []byte
}

// Float appends 32-bit floats as one scalar or vector.
//
// Parameters:
//   - v: one to four components
//
// Returns:
//   - *Params: the receiver for chaining
func (p *Params) Float(v ...float32) *Params {
	p.align(len(v) * 4)
	for _, f := range v {
		p.buf = binary.LittleEndian.AppendUint32(p.buf, math.Float32bits(f))
	}
	return p
}

// Uint appends 32-bit unsigned integers as one scalar or vector.
//
// Parameters:
//   - v: one to four components
//
// Returns:
//   - *Params: the receiver for chaining
func (p *Params) Uint(v ...uint32) *Params {
	p.align(len(v) * 4)
	for _, u := range v {
		p.buf = binary.LittleEndian.AppendUint32(p.buf, u)
	}
	return p
}

// Matrix appends a 4x4 matrix as four 16-byte rows.
//
// Parameters:
//   - m: the matrix in the order the shader reads it
//
// Returns:
//   - *Params: the receiver for chaining
func (p *Params) Matrix(m [16]float32) *Params {
	for i := 0; i < 16; i += 4 {
		p.Float(m[i : i+4]...)
	}
	return p
}

// Bytes returns the packed image padded to a multiple of 16 bytes.
func (p *Params) Bytes() []byte {
	if n := int(common.AlignUp(uint64(len(p.buf)), 16)); n > len(p.buf) {
		return append(p.buf, make([]byte, n-len(p.buf))...)
	}
	return p.buf
}

// Len is the packed size before padding.
func (p *Params) Len() int {
	return len(p.buf)
}

// align moves to the next 16-byte boundary when size bytes would cross the current one.
func (p *Params) align(size int) {
	next := int(common.AlignUp(uint64(len(p.buf)), 16))
	if left := next - len(p.buf); left > 0 && left < size {
		p.buf = append(p.buf, make([]byte, left)...)
	}
}
