package native

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-pipe/common"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/gogpu/gputypes"
)

// Context records native calls. Like the pipe context it wraps, it is not safe for concurrent use.
type Context struct {
	device   *Device
	deferred bool
	released bool

	commands []Command
}

var _ pipe.NativeContext = &Context{}

func newContext(d *Device, deferred bool) *Context {
	return &Context{device: d, deferred: deferred}
}

// Deferred reports whether the context records command lists.
func (c *Context) Deferred() bool { return c.deferred }

// Released reports whether Release was called.
func (c *Context) Released() bool { return c.released }

// Commands returns the calls recorded since the last Reset (or FinishCommandList).
func (c *Context) Commands() []Command { return c.commands }

// Reset drops the recorded calls.
func (c *Context) Reset() { c.commands = c.commands[:0] }

// Count returns how many recorded calls have the given op.
func (c *Context) Count(op Op) int {
	n := 0
	for _, cmd := range c.commands {
		if cmd.Op == op {
			n++
		}
	}
	return n
}

// CountState returns the number of recorded state-changing calls, everything but draws and executes.
func (c *Context) CountState() int {
	n := 0
	for _, cmd := range c.commands {
		if !cmd.Op.IsDraw() && cmd.Op != OpExecuteCommandList {
			n++
		}
	}
	return n
}

// Last returns the most recent call with the given op.
func (c *Context) Last(op Op) (Command, bool) {
	for i := len(c.commands) - 1; i >= 0; i-- {
		if c.commands[i].Op == op {
			return c.commands[i], true
		}
	}
	return Command{}, false
}

// Ops returns the ops of every recorded call in order.
func (c *Context) Ops() []Op {
	ops := make([]Op, len(c.commands))
	for i, cmd := range c.commands {
		ops[i] = cmd.Op
	}
	return ops
}

func (c *Context) record(cmd Command) {
	c.commands = append(c.commands, cmd)
}

func (c *Context) SetBlendState(state pipe.NativeObject) {
	c.record(Command{Op: OpSetBlendState, Object: state, apply: func(t pipe.NativeContext) { t.SetBlendState(state) }})
}

func (c *Context) SetBlendFactor(factor gputypes.Color) {
	c.record(Command{Op: OpSetBlendFactor, Payload: factor, apply: func(t pipe.NativeContext) { t.SetBlendFactor(factor) }})
}

func (c *Context) SetSampleMask(mask uint32) {
	c.record(Command{Op: OpSetSampleMask, Args: []int64{int64(mask)}, apply: func(t pipe.NativeContext) { t.SetSampleMask(mask) }})
}

func (c *Context) SetDepthStencilState(state pipe.NativeObject) {
	c.record(Command{Op: OpSetDepthStencilState, Object: state, apply: func(t pipe.NativeContext) { t.SetDepthStencilState(state) }})
}

func (c *Context) SetStencilReference(ref uint32) {
	c.record(Command{Op: OpSetStencilReference, Args: []int64{int64(ref)}, apply: func(t pipe.NativeContext) { t.SetStencilReference(ref) }})
}

func (c *Context) SetRasterizerState(state pipe.NativeObject) {
	c.record(Command{Op: OpSetRasterizerState, Object: state, apply: func(t pipe.NativeContext) { t.SetRasterizerState(state) }})
}

func (c *Context) SetViewports(viewports []common.Viewport) {
	v := slices.Clone(viewports)
	c.record(Command{Op: OpSetViewports, Payload: v, apply: func(t pipe.NativeContext) { t.SetViewports(v) }})
}

func (c *Context) SetScissorRects(rects []common.Rectangle) {
	r := slices.Clone(rects)
	c.record(Command{Op: OpSetScissorRects, Payload: r, apply: func(t pipe.NativeContext) { t.SetScissorRects(r) }})
}

func (c *Context) SetPrimitiveTopology(topology pipe.PrimitiveTopology) {
	c.record(Command{Op: OpSetPrimitiveTopology, Payload: topology, apply: func(t pipe.NativeContext) { t.SetPrimitiveTopology(topology) }})
}

func (c *Context) SetInputLayout(layout pipe.NativeObject) {
	c.record(Command{Op: OpSetInputLayout, Object: layout, apply: func(t pipe.NativeContext) { t.SetInputLayout(layout) }})
}

func (c *Context) SetVertexBuffers(first int, buffers []pipe.VertexBuffer) {
	b := slices.Clone(buffers)
	c.record(Command{Op: OpSetVertexBuffers, First: first, Payload: b, apply: func(t pipe.NativeContext) { t.SetVertexBuffers(first, b) }})
}

func (c *Context) SetIndexBuffer(buffer pipe.IndexBuffer) {
	c.record(Command{Op: OpSetIndexBuffer, Payload: buffer, apply: func(t pipe.NativeContext) { t.SetIndexBuffer(buffer) }})
}

func (c *Context) SetShader(kind pipe.ShaderKind, shader pipe.NativeObject) {
	c.record(Command{Op: OpSetShader, Stage: kind, Object: shader, apply: func(t pipe.NativeContext) { t.SetShader(kind, shader) }})
}

func (c *Context) SetConstantBuffers(kind pipe.ShaderKind, first int, buffers []pipe.ConstantBuffer) {
	b := slices.Clone(buffers)
	c.record(Command{Op: OpSetConstantBuffers, Stage: kind, First: first, Payload: b, apply: func(t pipe.NativeContext) {
		t.SetConstantBuffers(kind, first, b)
	}})
}

func (c *Context) SetShaderResources(kind pipe.ShaderKind, first int, resources []pipe.ShaderResource) {
	r := slices.Clone(resources)
	c.record(Command{Op: OpSetShaderResources, Stage: kind, First: first, Payload: r, apply: func(t pipe.NativeContext) {
		t.SetShaderResources(kind, first, r)
	}})
}

func (c *Context) SetSamplers(kind pipe.ShaderKind, first int, samplers []pipe.Sampler) {
	s := slices.Clone(samplers)
	c.record(Command{Op: OpSetSamplers, Stage: kind, First: first, Payload: s, apply: func(t pipe.NativeContext) {
		t.SetSamplers(kind, first, s)
	}})
}

func (c *Context) SetUnorderedAccessViews(first int, views []pipe.UnorderedAccess) {
	v := slices.Clone(views)
	c.record(Command{Op: OpSetUnorderedAccessViews, Stage: pipe.ShaderCompute, First: first, Payload: v, apply: func(t pipe.NativeContext) {
		t.SetUnorderedAccessViews(first, v)
	}})
}

// RenderTargets is the Payload of a recorded SetRenderTargets call.
type RenderTargets struct {
	Surfaces      []pipe.RenderSurface
	Depth         pipe.DepthSurface
	ReadOnlyDepth bool
}

func (c *Context) SetRenderTargets(surfaces []pipe.RenderSurface, depth pipe.DepthSurface, readOnlyDepth bool) {
	rt := RenderTargets{Surfaces: slices.Clone(surfaces), Depth: depth, ReadOnlyDepth: readOnlyDepth}
	c.record(Command{Op: OpSetRenderTargets, Payload: rt, apply: func(t pipe.NativeContext) {
		t.SetRenderTargets(rt.Surfaces, rt.Depth, rt.ReadOnlyDepth)
	}})
}

// ClearColor is the Payload of a recorded ClearRenderTarget call.
type ClearColor struct {
	Surface pipe.RenderSurface
	Color   gputypes.Color
}

func (c *Context) ClearRenderTarget(surface pipe.RenderSurface, color gputypes.Color) {
	cc := ClearColor{Surface: surface, Color: color}
	c.record(Command{Op: OpClearRenderTarget, Payload: cc, apply: func(t pipe.NativeContext) { t.ClearRenderTarget(surface, color) }})
}

// ClearDepth is the Payload of a recorded ClearDepthStencil call.
type ClearDepth struct {
	Surface pipe.DepthSurface
	Flags   pipe.ClearFlags
	Depth   float32
	Stencil uint8
}

func (c *Context) ClearDepthStencil(surface pipe.DepthSurface, flags pipe.ClearFlags, depth float32, stencil uint8) {
	cd := ClearDepth{Surface: surface, Flags: flags, Depth: depth, Stencil: stencil}
	c.record(Command{Op: OpClearDepthStencil, Payload: cd, apply: func(t pipe.NativeContext) {
		t.ClearDepthStencil(surface, flags, depth, stencil)
	}})
}

func (c *Context) Draw(vertexCount, startVertex uint32) {
	c.record(Command{Op: OpDraw, Args: []int64{int64(vertexCount), int64(startVertex)}, apply: func(t pipe.NativeContext) {
		t.Draw(vertexCount, startVertex)
	}})
}

func (c *Context) DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32) {
	c.record(Command{
		Op:   OpDrawInstanced,
		Args: []int64{int64(vertexCountPerInstance), int64(instanceCount), int64(startVertex), int64(startInstance)},
		apply: func(t pipe.NativeContext) {
			t.DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance)
		},
	})
}

func (c *Context) DrawIndexed(indexCount, startIndex uint32, baseVertex int32) {
	c.record(Command{
		Op:    OpDrawIndexed,
		Args:  []int64{int64(indexCount), int64(startIndex), int64(baseVertex)},
		apply: func(t pipe.NativeContext) { t.DrawIndexed(indexCount, startIndex, baseVertex) },
	})
}

func (c *Context) DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	c.record(Command{
		Op:   OpDrawIndexedInstanced,
		Args: []int64{int64(indexCountPerInstance), int64(instanceCount), int64(startIndex), int64(baseVertex), int64(startInstance)},
		apply: func(t pipe.NativeContext) {
			t.DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex, baseVertex, startInstance)
		},
	})
}

func (c *Context) Dispatch(x, y, z uint32) {
	c.record(Command{Op: OpDispatch, Args: []int64{int64(x), int64(y), int64(z)}, apply: func(t pipe.NativeContext) {
		t.Dispatch(x, y, z)
	}})
}

// FinishCommandList moves the recorded calls of a deferred context into a command list.
func (c *Context) FinishCommandList() (pipe.CommandList, error) {
	if !c.deferred {
		return nil, ErrImmediateFinish
	}
	if c.released {
		return nil, ErrContextReleased
	}
	list := &CommandList{commands: c.commands}
	c.commands = nil
	return list, nil
}

// ExecuteCommandList replays a list recorded by this package. Lists from other backends are ignored.
func (c *Context) ExecuteCommandList(list pipe.CommandList) {
	cl, ok := list.(*CommandList)
	if !ok {
		return
	}
	c.record(Command{Op: OpExecuteCommandList, Args: []int64{int64(cl.Len())}, apply: func(t pipe.NativeContext) {
		t.ExecuteCommandList(cl)
	}})
	_ = cl.Replay(c)
}

func (c *Context) Release() {
	c.released = true
	c.commands = nil
}
