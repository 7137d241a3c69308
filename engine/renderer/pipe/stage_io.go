package pipe

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-pipe/common"
)

// InputAssemblerStage binds vertex buffers, the index buffer, the input layout and the primitive topology.
type InputAssemblerStage struct {
	ctx           *DeviceContext
	vertexBuffers *SlotGroup[VertexBuffer]
	indexBuffer   *Slot[IndexBuffer]
	layout        *Slot[*InputLayout]

	boundTopology PrimitiveTopology

	// last resolved layout inputs, reused while buffers and program are unchanged
	lastBuffers   []VertexBuffer
	lastProgram   *ShaderProgram
	lastVersion   uint64
	lastLayout    *InputLayout
	lastValidated ValidationResult
}

func newInputAssemblerStage(ctx *DeviceContext, maxVertexBuffers int) *InputAssemblerStage {
	s := &InputAssemblerStage{ctx: ctx}
	s.vertexBuffers = newSlotGroup[VertexBuffer](ctx, "vertex buffer", maxVertexBuffers, BindInput, func(i int) {
		ctx.native.SetVertexBuffers(i, []VertexBuffer{nil})
	})
	s.indexBuffer = newSlot[IndexBuffer](ctx, "index buffer", 0, BindInput, func(int) { ctx.native.SetIndexBuffer(nil) })
	s.layout = newSlot[*InputLayout](ctx, "input layout", 0, BindInput, func(int) { ctx.native.SetInputLayout(nil) })
	return s
}

// VertexBuffers returns the vertex buffer slot group.
func (s *InputAssemblerStage) VertexBuffers() *SlotGroup[VertexBuffer] { return s.vertexBuffers }

// SetVertexBuffer requests a vertex buffer for slot i.
func (s *InputAssemblerStage) SetVertexBuffer(i int, vb VertexBuffer) { s.vertexBuffers.Set(i, vb) }

// SetVertexBuffers requests consecutive vertex buffers starting at first.
func (s *InputAssemblerStage) SetVertexBuffers(first int, vbs ...VertexBuffer) {
	s.vertexBuffers.SetRange(first, vbs...)
}

// VertexBuffer returns the requested vertex buffer of slot i.
func (s *InputAssemblerStage) VertexBuffer(i int) VertexBuffer { return s.vertexBuffers.Requested(i) }

// IndexBuffer returns the requested index buffer.
func (s *InputAssemblerStage) IndexBuffer() IndexBuffer { return s.indexBuffer.requested }

// SetIndexBuffer requests an index buffer, nil to clear.
func (s *InputAssemblerStage) SetIndexBuffer(ib IndexBuffer) { s.indexBuffer.Set(ib) }

// BoundIndexBuffer returns the index buffer the device holds.
func (s *InputAssemblerStage) BoundIndexBuffer() IndexBuffer { return s.indexBuffer.bound }

// BoundLayout returns the input layout the device holds.
func (s *InputAssemblerStage) BoundLayout() *InputLayout { return s.layout.bound }

// Refresh binds buffers and topology, then resolves the input layout against the vertex program.
//
// Parameters:
//   - topology: the draw call topology
//   - vs: the vertex program of the pass, may be nil
//
// Returns:
//   - ValidationResult: MissingVertexBuffer or InvalidVertexLayout when the buffers cannot feed the program
func (s *InputAssemblerStage) Refresh(topology PrimitiveTopology, vs *ShaderProgram) ValidationResult {
	if s.vertexBuffers.BindAll() {
		first, values := s.vertexBuffers.ChangedRange()
		s.ctx.native.SetVertexBuffers(first, values)
	}
	if s.indexBuffer.Bind() {
		s.ctx.native.SetIndexBuffer(s.indexBuffer.bound)
	}
	if topology != s.boundTopology {
		s.ctx.native.SetPrimitiveTopology(topology)
		s.boundTopology = topology
	}

	layout, result := s.resolveLayout(vs)
	if result != ValidationSuccessful {
		return result
	}
	if layout != s.layout.requested {
		s.layout.Set(layout)
	}
	if s.layout.Bind() {
		s.ctx.native.SetInputLayout(s.layout.bound.Native())
	}
	return ValidationSuccessful
}

func (s *InputAssemblerStage) resolveLayout(vs *ShaderProgram) (*InputLayout, ValidationResult) {
	var version uint64
	if vs != nil {
		version = vs.Version()
	}
	bound := s.vertexBuffers.BoundValues()
	if vs == s.lastProgram && version == s.lastVersion && slices.Equal(bound, s.lastBuffers) {
		return s.lastLayout, s.lastValidated
	}
	s.lastBuffers = bound
	s.lastProgram = vs
	s.lastVersion = version

	var signature []ShaderInput
	if vs != nil {
		signature = vs.Inputs()
	}
	elements := buildInputElements(bound)
	s.lastLayout, s.lastValidated = nil, ValidationSuccessful

	switch {
	case len(signature) > 0 && len(elements) == 0:
		s.lastValidated = ValidationMissingVertexBuffer
	case !matchSignature(elements, signature):
		s.lastValidated = ValidationInvalidVertexLayout
	case len(elements) > 0:
		s.lastLayout = s.ctx.device.inputLayout(elements, signature)
	}
	return s.lastLayout, s.lastValidated
}

func (s *InputAssemblerStage) forget() {
	s.vertexBuffers.forget()
	s.indexBuffer.forget()
	s.layout.forget()
	s.boundTopology = TopologyUndefined
}

// OutputMergerStage binds render surfaces and the depth surface with a depth-write permission.
type OutputMergerStage struct {
	ctx      *DeviceContext
	surfaces *SlotGroup[RenderSurface]
	depth    *Slot[DepthSurface]

	depthSurface    DepthSurface
	depthWrite      DepthWritePermission
	boundDepthWrite DepthWritePermission

	dirty      bool
	refreshing bool
}

func newOutputMergerStage(ctx *DeviceContext, maxSurfaces int) *OutputMergerStage {
	s := &OutputMergerStage{ctx: ctx}
	s.surfaces = newSlotGroup[RenderSurface](ctx, "render surface", maxSurfaces, BindOutput, s.onUnbind)
	s.depth = newSlot[DepthSurface](ctx, "depth surface", 0, BindOutput, s.onUnbind)
	return s
}

// onUnbind re-issues the render targets without the evicted slot. During Refresh the final apply covers it.
func (s *OutputMergerStage) onUnbind(int) {
	s.dirty = true
	if !s.refreshing {
		s.apply()
	}
}

// Surfaces returns the render surface slot group.
func (s *OutputMergerStage) Surfaces() *SlotGroup[RenderSurface] { return s.surfaces }

// SetSurface requests a render surface for slot i.
func (s *OutputMergerStage) SetSurface(i int, surface RenderSurface) { s.surfaces.Set(i, surface) }

// SetSurfaces requests consecutive render surfaces starting at slot 0 and clears the rest.
func (s *OutputMergerStage) SetSurfaces(surfaces ...RenderSurface) {
	for i := 0; i < s.surfaces.Len(); i++ {
		var v RenderSurface
		if i < len(surfaces) {
			v = surfaces[i]
		}
		if v != s.surfaces.Requested(i) || v != nil {
			s.surfaces.Set(i, v)
		}
	}
}

// Surface returns the requested render surface of slot i.
func (s *OutputMergerStage) Surface(i int) RenderSurface { return s.surfaces.Requested(i) }

// DepthSurface returns the requested depth surface.
func (s *OutputMergerStage) DepthSurface() DepthSurface { return s.depthSurface }

// SetDepthSurface requests a depth surface, nil to clear.
func (s *OutputMergerStage) SetDepthSurface(surface DepthSurface) {
	s.depthSurface = surface
	if surface != nil {
		s.depth.Set(surface)
	}
}

// DepthWritePermission returns the requested depth-write permission.
func (s *OutputMergerStage) DepthWritePermission() DepthWritePermission { return s.depthWrite }

// SetDepthWritePermission changes how the depth surface is bound.
func (s *OutputMergerStage) SetDepthWritePermission(p DepthWritePermission) { s.depthWrite = p }

// Refresh binds surfaces and the depth surface and issues one render-target call when anything changed.
func (s *OutputMergerStage) Refresh() {
	s.refreshing = true
	defer func() { s.refreshing = false }()

	want := s.depthSurface
	if s.depthWrite == DepthWriteDisabled {
		want = nil
	}
	// a read-only depth view may be sampled at the same time, so it binds as an input
	bindType := BindOutput
	if s.depthWrite == DepthWriteReadOnly {
		bindType = BindInput
	}
	if bindType != s.depth.bindType {
		s.depth.forget()
		s.depth.bindType = bindType
		s.dirty = true
	}
	if want != s.depth.requested {
		s.depth.Set(want)
	}

	changed := s.surfaces.BindAll()
	if s.depth.Bind() {
		changed = true
	}
	if changed || s.dirty || s.depthWrite != s.boundDepthWrite {
		s.apply()
	}
}

func (s *OutputMergerStage) apply() {
	bound := s.surfaces.BoundValues()
	last := len(bound)
	for last > 0 && bound[last-1] == nil {
		last--
	}
	s.ctx.native.SetRenderTargets(bound[:last], s.depth.bound, s.depthWrite == DepthWriteReadOnly)
	s.boundDepthWrite = s.depthWrite
	s.dirty = false
}

// SurfaceViewport returns a viewport covering the first bound surface, or the depth surface when no color
// surface is bound.
func (s *OutputMergerStage) SurfaceViewport() common.Viewport {
	for i := 0; i < s.surfaces.Len(); i++ {
		if rs := s.surfaces.Slot(i).bound; rs != nil {
			w, h := rs.Size()
			return common.NewViewport(w, h)
		}
	}
	if ds := s.depth.bound; ds != nil {
		w, h := ds.Size()
		return common.NewViewport(w, h)
	}
	return common.Viewport{}
}

// HasOutput reports whether any surface or depth surface is bound.
func (s *OutputMergerStage) HasOutput() bool {
	if s.depth.bound != nil {
		return true
	}
	for i := 0; i < s.surfaces.Len(); i++ {
		if s.surfaces.Slot(i).bound != nil {
			return true
		}
	}
	return false
}

func (s *OutputMergerStage) forget() {
	s.surfaces.forget()
	s.depth.forget()
	s.dirty = true
}
