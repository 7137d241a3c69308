package pipe

import (
	"github.com/Carmen-Shannon/oxy-pipe/common"
	"github.com/gogpu/gputypes"
)

// NativeObject is a device-owned native object (state object, shader, input layout).
// The bindable that created it owns it and releases it through the device's release queue.
type NativeObject interface {
	Release()
}

// CommandList is a finished recording of a deferred native context.
type CommandList interface {
	// Len retrieves the number of recorded commands.
	Len() int
	// Release frees the recording.
	Release()
}

// VertexBuffer is a bindable that can occupy an input assembler vertex buffer slot.
type VertexBuffer interface {
	Bindable
	// NativeHandle returns the non-owning native buffer handle.
	NativeHandle() uintptr
	// VertexLayout describes one vertex of the buffer.
	VertexLayout() *VertexLayout
	// ByteOffset returns the offset of the first vertex in bytes.
	ByteOffset() uint32
}

// IndexBuffer is a bindable that can occupy the input assembler index buffer slot.
type IndexBuffer interface {
	Bindable
	NativeHandle() uintptr
	IndexFormat() gputypes.IndexFormat
	ByteOffset() uint32
}

// ConstantBuffer is a bindable that can occupy a shader constant buffer slot.
type ConstantBuffer interface {
	Bindable
	NativeHandle() uintptr
	ByteSize() uint64
}

// ShaderResource is a bindable that can be read by a shader (texture or structured buffer view).
type ShaderResource interface {
	Bindable
	// ResourceHandle returns the non-owning native shader resource view handle.
	ResourceHandle() uintptr
}

// UnorderedAccess is a bindable a compute shader can read and write.
type UnorderedAccess interface {
	Bindable
	// UnorderedAccessHandle returns the non-owning native unordered access view handle.
	UnorderedAccessHandle() uintptr
}

// Sampler is a bindable sampler state.
type Sampler interface {
	Bindable
	NativeHandle() uintptr
}

// RenderSurface is a bindable render target.
type RenderSurface interface {
	Bindable
	// RenderTargetHandle returns the non-owning native render target view handle.
	RenderTargetHandle() uintptr
	// Size returns the surface dimensions in pixels.
	Size() (width, height uint32)
	Format() gputypes.TextureFormat
}

// DepthSurface is a bindable depth-stencil target.
type DepthSurface interface {
	Bindable
	// DepthStencilHandle returns the non-owning native depth-stencil view handle, writable or read-only.
	DepthStencilHandle(readOnly bool) uintptr
	Size() (width, height uint32)
	Format() gputypes.TextureFormat
}

// VertexElement is one attribute of a vertex layout.
type VertexElement struct {
	// Semantic is the HLSL semantic name, e.g. "LOC" or "POSITION".
	Semantic string
	// SemanticIndex distinguishes repeated semantics; for LOC it is the shader location.
	SemanticIndex uint32
	Format        gputypes.VertexFormat
	// Offset is the byte offset inside the vertex.
	Offset uint32
}

// VertexLayout describes the vertices of one vertex buffer.
type VertexLayout struct {
	Elements []VertexElement
	Stride   uint32
	// Instanced marks per-instance data.
	Instanced bool
}

// InputElement is one element of a native input layout: a vertex element tied to the buffer slot providing it.
type InputElement struct {
	VertexElement
	Slot      uint32
	Instanced bool
}

// ShaderInput is one element of a vertex program's input signature.
type ShaderInput struct {
	Semantic      string
	SemanticIndex uint32
	Format        gputypes.VertexFormat
}

// NativeDevice creates native objects and contexts. A D3D11 binding, the recording backend and tests implement it.
type NativeDevice interface {
	Immediate() NativeContext
	CreateDeferred() (NativeContext, error)
	CreateBlendState(desc *BlendDesc) (NativeObject, error)
	CreateDepthStencilState(desc *DepthDesc) (NativeObject, error)
	CreateRasterizerState(desc *RasterizerDesc) (NativeObject, error)
	CreateShader(kind ShaderKind, bytecode []byte, entryPoint string) (NativeObject, error)
	CreateInputLayout(elements []InputElement, signature []ShaderInput) (NativeObject, error)
}

// NativeContext receives the state changes and commands a DeviceContext resolves. Each method maps onto one native
// call; a nil value clears the slot.
type NativeContext interface {
	SetBlendState(state NativeObject)
	SetBlendFactor(factor gputypes.Color)
	SetSampleMask(mask uint32)
	SetDepthStencilState(state NativeObject)
	SetStencilReference(ref uint32)
	SetRasterizerState(state NativeObject)
	SetViewports(viewports []common.Viewport)
	SetScissorRects(rects []common.Rectangle)

	SetPrimitiveTopology(topology PrimitiveTopology)
	SetInputLayout(layout NativeObject)
	SetVertexBuffers(first int, buffers []VertexBuffer)
	SetIndexBuffer(buffer IndexBuffer)

	SetShader(kind ShaderKind, shader NativeObject)
	SetConstantBuffers(kind ShaderKind, first int, buffers []ConstantBuffer)
	SetShaderResources(kind ShaderKind, first int, resources []ShaderResource)
	SetSamplers(kind ShaderKind, first int, samplers []Sampler)
	SetUnorderedAccessViews(first int, views []UnorderedAccess)

	SetRenderTargets(surfaces []RenderSurface, depth DepthSurface, readOnlyDepth bool)
	ClearRenderTarget(surface RenderSurface, color gputypes.Color)
	ClearDepthStencil(surface DepthSurface, flags ClearFlags, depth float32, stencil uint8)

	Draw(vertexCount, startVertex uint32)
	DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32)
	DrawIndexed(indexCount, startIndex uint32, baseVertex int32)
	DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)
	Dispatch(x, y, z uint32)

	FinishCommandList() (CommandList, error)
	ExecuteCommandList(list CommandList)
	Release()
}
