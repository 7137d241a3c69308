package pipe

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-pipe/common"
	"github.com/gogpu/gputypes"
)

var (
	// ErrStackEmpty is returned when popping a state stack with no pushed entries.
	ErrStackEmpty = errors.New("pipeline state stack is empty")
	// ErrUnknownStateID is returned by PopTo for an ID that is not on the stack.
	ErrUnknownStateID = errors.New("unknown pipeline state id")
)

// DefaultStateStackIncrement is how many entries a state stack allocates whenever it runs full.
const DefaultStateStackIncrement = 8

// GraphicsPipeState is a snapshot of the requested graphics pipeline state of a context.
type GraphicsPipeState struct {
	blend       *BlendState
	depth       *DepthState
	rasterizer  *RasterizerState
	blendFactor gputypes.Color
	sampleMask  uint32
	stencilRef  uint32

	vertexBuffers []VertexBuffer
	indexBuffer   IndexBuffer

	surfaces     []RenderSurface
	depthSurface DepthSurface
	depthWrite   DepthWritePermission

	viewports []common.Viewport
	scissors  []common.Rectangle
}

func newGraphicsPipeState(vertexBuffers, surfaces int) *GraphicsPipeState {
	return &GraphicsPipeState{
		vertexBuffers: make([]VertexBuffer, vertexBuffers),
		surfaces:      make([]RenderSurface, surfaces),
		viewports:     make([]common.Viewport, 0, MaxViewports),
		scissors:      make([]common.Rectangle, 0, MaxViewports),
	}
}

// Capture records the requested state of ctx.
func (p *GraphicsPipeState) Capture(ctx *DeviceContext) {
	p.blend = ctx.blend.current
	p.depth = ctx.depth.current
	p.rasterizer = ctx.rasterizer.current
	p.blendFactor = ctx.blend.factor
	p.sampleMask = ctx.blend.sampleMask
	p.stencilRef = ctx.depth.stencilRef

	for i := range p.vertexBuffers {
		p.vertexBuffers[i] = ctx.input.vertexBuffers.Requested(i)
	}
	p.indexBuffer = ctx.input.indexBuffer.requested

	for i := range p.surfaces {
		p.surfaces[i] = ctx.output.surfaces.Requested(i)
	}
	p.depthSurface = ctx.output.depthSurface
	p.depthWrite = ctx.output.depthWrite

	p.viewports = append(p.viewports[:0], ctx.rasterizer.viewports...)
	p.scissors = append(p.scissors[:0], ctx.rasterizer.scissors...)
}

// Restore requests the captured state on ctx. Values are re-requested, so they win conflicts against anything
// requested before the restore.
func (p *GraphicsPipeState) Restore(ctx *DeviceContext) {
	ctx.blend.SetCurrent(p.blend)
	ctx.depth.SetCurrent(p.depth)
	ctx.rasterizer.SetCurrent(p.rasterizer)
	ctx.blend.SetBlendFactor(p.blendFactor)
	ctx.blend.SetSampleMask(p.sampleMask)
	ctx.depth.SetStencilReference(p.stencilRef)

	restoreGroup(ctx.input.vertexBuffers, p.vertexBuffers)
	restoreSlot(ctx.input.indexBuffer, p.indexBuffer)

	restoreGroup(ctx.output.surfaces, p.surfaces)
	ctx.output.SetDepthSurface(p.depthSurface)
	ctx.output.SetDepthWritePermission(p.depthWrite)

	ctx.rasterizer.SetViewports(p.viewports...)
	ctx.rasterizer.SetScissorRects(p.scissors...)
}

// Clear drops every captured reference.
func (p *GraphicsPipeState) Clear() {
	p.blend, p.depth, p.rasterizer = nil, nil, nil
	clear(p.vertexBuffers)
	p.indexBuffer = nil
	clear(p.surfaces)
	p.depthSurface = nil
	p.depthWrite = DepthWriteEnabled
	p.viewports = p.viewports[:0]
	p.scissors = p.scissors[:0]
}

func restoreSlot[T comparable](s *Slot[T], v T) {
	if v != s.requested || !isZero(v) {
		s.Set(v)
	}
}

func restoreGroup[T comparable](g *SlotGroup[T], values []T) {
	for i, v := range values {
		if i >= g.Len() {
			return
		}
		restoreSlot(g.slots[i], v)
	}
}

// StateStack saves and restores the graphics pipeline state of a context.
// Entries are allocated in fixed increments and reused; the stack never shrinks.
type StateStack struct {
	entries       []*GraphicsPipeState
	top           int
	increment     int
	vertexBuffers int
	surfaces      int
}

func newStateStack(increment, vertexBuffers, surfaces int) *StateStack {
	if increment <= 0 {
		increment = DefaultStateStackIncrement
	}
	s := &StateStack{increment: increment, vertexBuffers: vertexBuffers, surfaces: surfaces}
	s.grow()
	return s
}

func (s *StateStack) grow() {
	for range s.increment {
		s.entries = append(s.entries, newGraphicsPipeState(s.vertexBuffers, s.surfaces))
	}
}

// Len returns the number of pushed entries.
func (s *StateStack) Len() int { return s.top }

// Capacity returns the number of allocated entries.
func (s *StateStack) Capacity() int { return len(s.entries) }

// Push captures the state of ctx.
//
// Returns:
//   - int: the ID of the entry, usable with PopTo
func (s *StateStack) Push(ctx *DeviceContext) int {
	if s.top == len(s.entries) {
		s.grow()
	}
	id := s.top
	s.entries[id].Capture(ctx)
	s.top++
	return id
}

// Pop restores the most recent entry on ctx and removes it.
//
// Returns:
//   - error: ErrStackEmpty if nothing was pushed
func (s *StateStack) Pop(ctx *DeviceContext) error {
	if s.top == 0 {
		return ErrStackEmpty
	}
	return s.PopTo(ctx, s.top-1)
}

// PopTo restores entry id on ctx and removes it together with every entry pushed after it.
//
// Parameters:
//   - ctx: the context to restore
//   - id: an ID returned by Push
//
// Returns:
//   - error: ErrStackEmpty or ErrUnknownStateID
func (s *StateStack) PopTo(ctx *DeviceContext, id int) error {
	if s.top == 0 {
		return ErrStackEmpty
	}
	if id < 0 || id >= s.top {
		return fmt.Errorf("state id %d with %d entries pushed: %w", id, s.top, ErrUnknownStateID)
	}
	s.entries[id].Restore(ctx)
	for i := id; i < s.top; i++ {
		s.entries[i].Clear()
	}
	s.top = id
	return nil
}
