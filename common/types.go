// package common contains plain value types shared by the pipeline stages and the engine. They are not interface-wrapped
// structs, just data.
package common

import (
	"github.com/chewxy/math32"
)

// Viewport describes the render-target region a rasterizer maps clip space onto.
type Viewport struct {
	// X and Y are the top-left corner in pixels.
	X, Y float32
	// Width and Height are the size of the viewport in pixels.
	Width, Height float32
	// MinDepth and MaxDepth bound the depth range, normally 0 and 1.
	MinDepth, MaxDepth float32
}

// NewViewport creates a viewport covering a width x height surface with the full depth range.
//
// Parameters:
//   - width: surface width in pixels
//   - height: surface height in pixels
//
// Returns:
//   - Viewport: the full-surface viewport
func NewViewport(width, height uint32) Viewport {
	return Viewport{Width: float32(width), Height: float32(height), MinDepth: 0, MaxDepth: 1}
}

// AspectRatio returns Width / Height, or 0 for a zero-height viewport.
func (v Viewport) AspectRatio() float32 {
	if v.Height == 0 {
		return 0
	}
	return v.Width / v.Height
}

// Bounds returns the integer rectangle covered by the viewport.
func (v Viewport) Bounds() Rectangle {
	return Rectangle{
		Left:   int32(math32.Floor(v.X)),
		Top:    int32(math32.Floor(v.Y)),
		Right:  int32(math32.Ceil(v.X + v.Width)),
		Bottom: int32(math32.Ceil(v.Y + v.Height)),
	}
}

// Clamped returns a copy with non-negative size and a depth range clamped to [0, 1] with MinDepth <= MaxDepth.
func (v Viewport) Clamped() Viewport {
	v.Width = math32.Max(v.Width, 0)
	v.Height = math32.Max(v.Height, 0)
	v.MinDepth = Clamp(v.MinDepth, 0, 1)
	v.MaxDepth = Clamp(v.MaxDepth, v.MinDepth, 1)
	return v
}

// Rectangle is an integer pixel rectangle, used for scissor regions.
type Rectangle struct {
	Left, Top, Right, Bottom int32
}

// Width returns the horizontal extent, never negative.
func (r Rectangle) Width() int32 {
	return max(r.Right-r.Left, 0)
}

// Height returns the vertical extent, never negative.
func (r Rectangle) Height() int32 {
	return max(r.Bottom-r.Top, 0)
}

// Empty reports whether the rectangle covers no pixels.
func (r Rectangle) Empty() bool {
	return r.Width() == 0 || r.Height() == 0
}
