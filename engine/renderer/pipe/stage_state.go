package pipe

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-pipe/common"
	"github.com/gogpu/gputypes"
)

// MaxViewports is the number of viewports and scissor rectangles the rasterizer stage tracks.
const MaxViewports = 16

// BlendStage binds the blend state object, blend factor and sample mask.
type BlendStage struct {
	ctx     *DeviceContext
	slot    *Slot[*BlendState]
	current *BlendState

	factor      gputypes.Color
	sampleMask  uint32
	factorDirty bool
	maskDirty   bool
}

func newBlendStage(ctx *DeviceContext) *BlendStage {
	s := &BlendStage{
		ctx:         ctx,
		factor:      gputypes.Color{R: 1, G: 1, B: 1, A: 1},
		sampleMask:  0xFFFFFFFF,
		factorDirty: true,
		maskDirty:   true,
	}
	s.slot = newSlot[*BlendState](ctx, "blend state", 0, BindInput, func(int) { ctx.native.SetBlendState(nil) })
	return s
}

// Current returns the requested blend state, nil when the device default applies.
func (s *BlendStage) Current() *BlendState { return s.current }

// SetCurrent requests a blend state. Nil selects the device's default preset.
func (s *BlendStage) SetCurrent(state *BlendState) { s.current = state }

// Bound returns the blend state the device holds.
func (s *BlendStage) Bound() *BlendState { return s.slot.bound }

func (s *BlendStage) BlendFactor() gputypes.Color { return s.factor }

// SetBlendFactor changes the constant blend color without touching the state object.
func (s *BlendStage) SetBlendFactor(c gputypes.Color) {
	if c != s.factor {
		s.factor = c
		s.factorDirty = true
	}
}

func (s *BlendStage) SampleMask() uint32 { return s.sampleMask }

// SetSampleMask changes the multisample coverage mask without touching the state object.
func (s *BlendStage) SetSampleMask(mask uint32) {
	if mask != s.sampleMask {
		s.sampleMask = mask
		s.maskDirty = true
	}
}

// Refresh sends the blend state and any changed scalar parameters to the device.
func (s *BlendStage) Refresh() {
	state := s.current
	if state == nil {
		state = s.ctx.device.BlendPreset(BlendDefault)
	}
	if state != s.slot.requested {
		s.slot.Set(state)
	}
	if s.slot.Bind() {
		s.ctx.native.SetBlendState(s.slot.bound.Native())
	}
	if s.factorDirty {
		s.ctx.native.SetBlendFactor(s.factor)
		s.factorDirty = false
	}
	if s.maskDirty {
		s.ctx.native.SetSampleMask(s.sampleMask)
		s.maskDirty = false
	}
}

func (s *BlendStage) forget() {
	s.slot.forget()
	s.factorDirty = true
	s.maskDirty = true
}

// DepthStage binds the depth-stencil state object and the stencil reference.
type DepthStage struct {
	ctx     *DeviceContext
	slot    *Slot[*DepthState]
	current *DepthState

	stencilRef   uint32
	stencilDirty bool
}

func newDepthStage(ctx *DeviceContext) *DepthStage {
	s := &DepthStage{ctx: ctx, stencilDirty: true}
	s.slot = newSlot[*DepthState](ctx, "depth state", 0, BindInput, func(int) { ctx.native.SetDepthStencilState(nil) })
	return s
}

// Current returns the requested depth state, nil when the device default applies.
func (s *DepthStage) Current() *DepthState { return s.current }

// SetCurrent requests a depth state. Nil selects the device's default preset.
func (s *DepthStage) SetCurrent(state *DepthState) { s.current = state }

func (s *DepthStage) Bound() *DepthState { return s.slot.bound }

func (s *DepthStage) StencilReference() uint32 { return s.stencilRef }

// SetStencilReference changes the stencil reference value without touching the state object.
func (s *DepthStage) SetStencilReference(ref uint32) {
	if ref != s.stencilRef {
		s.stencilRef = ref
		s.stencilDirty = true
	}
}

// Refresh sends the depth state and a changed stencil reference to the device.
func (s *DepthStage) Refresh() {
	state := s.current
	if state == nil {
		state = s.ctx.device.DepthPreset(DepthDefault)
	}
	if state != s.slot.requested {
		s.slot.Set(state)
	}
	if s.slot.Bind() {
		s.ctx.native.SetDepthStencilState(s.slot.bound.Native())
	}
	if s.stencilDirty {
		s.ctx.native.SetStencilReference(s.stencilRef)
		s.stencilDirty = false
	}
}

func (s *DepthStage) forget() {
	s.slot.forget()
	s.stencilDirty = true
}

// RasterizerStage binds the rasterizer state object, viewports and scissor rectangles.
// With no explicit viewports it covers the first bound render surface.
type RasterizerStage struct {
	ctx     *DeviceContext
	slot    *Slot[*RasterizerState]
	current *RasterizerState

	viewports     []common.Viewport
	scissors      []common.Rectangle
	viewportDirty bool
	scissorDirty  bool

	boundDefault common.Viewport
	usedDefault  bool
}

func newRasterizerStage(ctx *DeviceContext) *RasterizerStage {
	s := &RasterizerStage{
		ctx:       ctx,
		viewports: make([]common.Viewport, 0, MaxViewports),
		scissors:  make([]common.Rectangle, 0, MaxViewports),
	}
	s.slot = newSlot[*RasterizerState](ctx, "rasterizer state", 0, BindInput, func(int) { ctx.native.SetRasterizerState(nil) })
	return s
}

// Current returns the requested rasterizer state, nil when the device default applies.
func (s *RasterizerStage) Current() *RasterizerState { return s.current }

// SetCurrent requests a rasterizer state. Nil selects the device preset matching the active conditions.
func (s *RasterizerStage) SetCurrent(state *RasterizerState) { s.current = state }

func (s *RasterizerStage) Bound() *RasterizerState { return s.slot.bound }

// Viewports returns the explicitly set viewports.
func (s *RasterizerStage) Viewports() []common.Viewport { return s.viewports }

// SetViewports replaces the viewports. An empty call restores the surface-sized default.
func (s *RasterizerStage) SetViewports(viewports ...common.Viewport) {
	if len(viewports) > MaxViewports {
		viewports = viewports[:MaxViewports]
	}
	if slices.Equal(viewports, s.viewports) {
		return
	}
	s.viewports = append(s.viewports[:0], viewports...)
	for i := range s.viewports {
		s.viewports[i] = s.viewports[i].Clamped()
	}
	s.viewportDirty = true
}

// SetViewport replaces a single viewport, growing the list as needed.
func (s *RasterizerStage) SetViewport(index int, vp common.Viewport) {
	if index < 0 || index >= MaxViewports {
		return
	}
	vp = vp.Clamped()
	for len(s.viewports) <= index {
		s.viewports = append(s.viewports, common.Viewport{})
	}
	if s.viewports[index] != vp {
		s.viewports[index] = vp
		s.viewportDirty = true
	}
}

// ScissorRects returns the scissor rectangles.
func (s *RasterizerStage) ScissorRects() []common.Rectangle { return s.scissors }

// SetScissorRects replaces the scissor rectangles.
func (s *RasterizerStage) SetScissorRects(rects ...common.Rectangle) {
	if len(rects) > MaxViewports {
		rects = rects[:MaxViewports]
	}
	if slices.Equal(rects, s.scissors) {
		return
	}
	s.scissors = append(s.scissors[:0], rects...)
	s.scissorDirty = true
}

// Refresh sends the rasterizer state and changed viewports or scissor rectangles to the device.
//
// Parameters:
//   - conditions: the active draw conditions, used to pick the default preset
//   - surfaceViewport: the viewport covering the first bound surface, used when no viewport is set
func (s *RasterizerStage) Refresh(conditions StateConditions, surfaceViewport common.Viewport) {
	state := s.current
	if state == nil {
		state = s.ctx.device.RasterizerPreset(rasterizerPresetFor(conditions))
	}
	if state != s.slot.requested {
		s.slot.Set(state)
	}
	if s.slot.Bind() {
		s.ctx.native.SetRasterizerState(s.slot.bound.Native())
	}

	if len(s.viewports) > 0 {
		if s.viewportDirty || s.usedDefault {
			s.ctx.native.SetViewports(s.viewports)
			s.viewportDirty = false
			s.usedDefault = false
		}
	} else if s.viewportDirty || !s.usedDefault || s.boundDefault != surfaceViewport {
		s.ctx.native.SetViewports([]common.Viewport{surfaceViewport})
		s.boundDefault = surfaceViewport
		s.usedDefault = true
		s.viewportDirty = false
	}

	if s.scissorDirty {
		s.ctx.native.SetScissorRects(s.scissors)
		s.scissorDirty = false
	}
}

func (s *RasterizerStage) forget() {
	s.slot.forget()
	s.viewportDirty = true
	s.scissorDirty = true
	s.usedDefault = false
}
