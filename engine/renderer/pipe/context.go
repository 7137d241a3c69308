package pipe

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
	"github.com/Carmen-Shannon/oxy-pipe/engine/profiler"
	"github.com/gogpu/gputypes"
)

var (
	// ErrNotDrawing is reported when a draw call is issued outside BeginDraw/EndDraw.
	ErrNotDrawing = errors.New("draw issued outside BeginDraw/EndDraw")
	// ErrAlreadyDrawing is reported by a nested BeginDraw.
	ErrAlreadyDrawing = errors.New("BeginDraw called while already drawing")
	// ErrNotDeferred is reported when finishing a command list on the immediate context.
	ErrNotDeferred = errors.New("context is not deferred")
	// ErrNotImmediate is reported when executing a command list on a deferred context.
	ErrNotImmediate = errors.New("context is not immediate")
	// ErrForeignContext is returned when a context is handed to a device that does not own it.
	ErrForeignContext = errors.New("context belongs to another device")
	// ErrContextReleased is reported when using a released context.
	ErrContextReleased = errors.New("context was released")
)

// ContextType tells immediate and deferred contexts apart.
type ContextType uint8

const (
	// ContextImmediate executes on the device.
	ContextImmediate ContextType = iota
	// ContextDeferred records into command lists.
	ContextDeferred
)

func (t ContextType) String() string {
	if t == ContextDeferred {
		return "deferred"
	}
	return "immediate"
}

// DeviceContext owns every pipeline stage of one native context and orchestrates draws and dispatches.
// A context must only be used by one goroutine at a time.
type DeviceContext struct {
	device   *Device
	native   NativeContext
	kind     ContextType
	profiler *profiler.Profiler

	debugChecks bool

	blend      *BlendStage
	depth      *DepthStage
	rasterizer *RasterizerStage
	input      *InputAssemblerStage
	output     *OutputMergerStage
	shaders    [shaderKindCount]*ShaderStage
	stack      *StateStack

	drawing    bool
	conditions StateConditions
	released   bool

	compositions [shaderKindCount]ShaderComposition
}

func newDeviceContext(d *Device, native NativeContext, kind ContextType) *DeviceContext {
	c := &DeviceContext{
		device:      d,
		native:      native,
		kind:        kind,
		profiler:    d.profiler,
		debugChecks: d.debugChecks,
	}
	limits := d.limits
	c.blend = newBlendStage(c)
	c.depth = newDepthStage(c)
	c.rasterizer = newRasterizerStage(c)
	c.input = newInputAssemblerStage(c, int(limits.MaxVertexBuffers))
	c.output = newOutputMergerStage(c, int(limits.MaxColorAttachments))
	for k := range c.shaders {
		c.shaders[k] = newShaderStage(c, ShaderKind(k), limits)
	}
	c.stack = newStateStack(d.stackIncrement, int(limits.MaxVertexBuffers), int(limits.MaxColorAttachments))
	return c
}

func (c *DeviceContext) Device() *Device                      { return c.device }
func (c *DeviceContext) Type() ContextType                    { return c.kind }
func (c *DeviceContext) Native() NativeContext                { return c.native }
func (c *DeviceContext) Blend() *BlendStage                   { return c.blend }
func (c *DeviceContext) Depth() *DepthStage                   { return c.depth }
func (c *DeviceContext) Rasterizer() *RasterizerStage         { return c.rasterizer }
func (c *DeviceContext) InputAssembler() *InputAssemblerStage { return c.input }
func (c *DeviceContext) OutputMerger() *OutputMergerStage     { return c.output }
func (c *DeviceContext) StateStack() *StateStack              { return c.stack }

// Shader returns the stage of the given kind.
func (c *DeviceContext) Shader(kind ShaderKind) *ShaderStage { return c.shaders[kind] }

// IsDrawing reports whether the context is between BeginDraw and EndDraw.
func (c *DeviceContext) IsDrawing() bool { return c.drawing }

// Conditions returns the conditions passed to the active BeginDraw.
func (c *DeviceContext) Conditions() StateConditions { return c.conditions }

// violate reports a broken calling contract. With debug checks on it panics, otherwise it logs and the caller
// ignores the request.
func (c *DeviceContext) violate(err error) {
	if c.debugChecks {
		panic(err)
	}
	logger.Logger().Error("pipeline contract violation", "context", c.kind.String(), "error", err)
}

// BeginDraw enters the drawing state.
//
// Parameters:
//   - conditions: selects the state bank of every pass drawn until EndDraw
func (c *DeviceContext) BeginDraw(conditions StateConditions) {
	if c.released {
		c.violate(ErrContextReleased)
		return
	}
	if c.drawing {
		c.violate(ErrAlreadyDrawing)
		return
	}
	c.drawing = true
	c.conditions = conditions
}

// EndDraw leaves the drawing state.
func (c *DeviceContext) EndDraw() {
	if !c.drawing {
		c.violate(ErrNotDrawing)
		return
	}
	c.drawing = false
	c.conditions = ConditionNone
}

type drawCall struct {
	indexed       bool
	instanced     bool
	count         uint32
	instances     uint32
	start         uint32
	baseVertex    int32
	startInstance uint32
}

func (d drawCall) issue(native NativeContext) {
	switch {
	case d.indexed && d.instanced:
		native.DrawIndexedInstanced(d.count, d.instances, d.start, d.baseVertex, d.startInstance)
	case d.indexed:
		native.DrawIndexed(d.count, d.start, d.baseVertex)
	case d.instanced:
		native.DrawInstanced(d.count, d.instances, d.start, d.startInstance)
	default:
		native.Draw(d.count, d.start)
	}
}

// Draw draws non-indexed vertices with every pass of a material.
//
// Parameters:
//   - m: the material
//   - topology: how the vertices are assembled
//   - vertexCount: the number of vertices
//   - startVertex: the first vertex
//
// Returns:
//   - ValidationResult: the union of every pass's validation result
func (c *DeviceContext) Draw(m Material, topology PrimitiveTopology, vertexCount, startVertex uint32) ValidationResult {
	return c.drawMaterial(m, topology, drawCall{count: vertexCount, start: startVertex})
}

// DrawInstanced draws instanced non-indexed vertices with every pass of a material.
func (c *DeviceContext) DrawInstanced(m Material, topology PrimitiveTopology, vertexCountPerInstance, instanceCount, startVertex, startInstance uint32) ValidationResult {
	return c.drawMaterial(m, topology, drawCall{
		instanced:     true,
		count:         vertexCountPerInstance,
		instances:     instanceCount,
		start:         startVertex,
		startInstance: startInstance,
	})
}

// DrawIndexed draws indexed vertices with every pass of a material. An index buffer must be requested.
func (c *DeviceContext) DrawIndexed(m Material, topology PrimitiveTopology, indexCount, startIndex uint32, baseVertex int32) ValidationResult {
	return c.drawMaterial(m, topology, drawCall{indexed: true, count: indexCount, start: startIndex, baseVertex: baseVertex})
}

// DrawIndexedInstanced draws instanced indexed vertices with every pass of a material.
func (c *DeviceContext) DrawIndexedInstanced(m Material, topology PrimitiveTopology, indexCountPerInstance, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) ValidationResult {
	return c.drawMaterial(m, topology, drawCall{
		indexed:       true,
		instanced:     true,
		count:         indexCountPerInstance,
		instances:     instanceCount,
		start:         startIndex,
		baseVertex:    baseVertex,
		startInstance: startInstance,
	})
}

func (c *DeviceContext) drawMaterial(m Material, topology PrimitiveTopology, call drawCall) ValidationResult {
	if !c.drawing {
		c.violate(ErrNotDrawing)
		return ValidationNotDrawing
	}
	if m == nil {
		c.profiler.CountValidationFailure()
		logger.Logger().Warn("draw without material", "topology", topology.String())
		return ValidationMissingMaterial
	}

	var result ValidationResult
	for it := 0; it < m.Iterations(); it++ {
		for p := 0; p < m.PassCount(); p++ {
			pass := m.Pass(p)
			r := c.drawPass(pass, topology, call)
			if r == ValidationSuccessful {
				continue
			}
			c.profiler.CountValidationFailure()
			logger.Logger().Warn("pass skipped by validation",
				"material", m.Name(),
				"iteration", it,
				"pass", pass.Name(),
				"pass_index", p,
				"topology", topology.String(),
				"result", r.String())
			result |= r
		}
	}
	return result
}

func (c *DeviceContext) drawPass(pass MaterialPass, topology PrimitiveTopology, call drawCall) ValidationResult {
	state := pass.State(c.conditions)
	c.blend.SetCurrent(state.Blend)
	c.depth.SetCurrent(state.Depth)
	c.rasterizer.SetCurrent(state.Rasterizer)

	for _, k := range GraphicsShaderKinds {
		comp := pass.Composition(k)
		c.compositions[k] = comp
		c.shaders[k].Apply(comp)
	}

	c.output.Refresh()
	c.blend.Refresh()
	c.depth.Refresh()
	c.rasterizer.Refresh(c.conditions, c.output.SurfaceViewport())
	for _, k := range GraphicsShaderKinds {
		c.shaders[k].Refresh()
	}
	vs := c.shaders[ShaderVertex].program.bound

	var result ValidationResult
	if topology == TopologyUndefined {
		result |= ValidationUndefinedTopology
	}
	if vs == nil {
		result |= ValidationMissingVertexShader
	}
	result |= c.input.Refresh(topology, vs)
	if call.indexed && c.input.indexBuffer.bound == nil {
		result |= ValidationMissingIndexBuffer
	}
	if !c.output.HasOutput() {
		result |= ValidationMissingOutput
	}
	for _, k := range GraphicsShaderKinds {
		result |= c.shaders[k].Validate(c.compositions[k])
		c.compositions[k] = nil
	}
	if result != ValidationSuccessful {
		return result
	}

	for range pass.Iterations() {
		call.issue(c.native)
		c.profiler.CountDraw()
	}
	return ValidationSuccessful
}

// Dispatch runs a compute task. Dispatches do not require BeginDraw.
//
// Parameters:
//   - task: the compute task
//   - x, y, z: thread group counts
//
// Returns:
//   - ValidationResult: MissingComputeShader, InvalidThreadGroupCounts or missing binding flags
func (c *DeviceContext) Dispatch(task ComputeTask, x, y, z uint32) ValidationResult {
	var result ValidationResult
	if task == nil {
		result = ValidationMissingComputeShader
		c.profiler.CountValidationFailure()
		logger.Logger().Warn("dispatch without compute task", "result", result.String())
		return result
	}

	limit := c.device.limits.MaxComputeWorkgroupsPerDimension
	if x == 0 || y == 0 || z == 0 || x > limit || y > limit || z > limit {
		result |= ValidationInvalidThreadGroupCounts
	}

	stage := c.shaders[ShaderCompute]
	comp := task.Composition()
	stage.Apply(comp)
	stage.Refresh()
	if comp == nil || stage.program.bound == nil {
		result |= ValidationMissingComputeShader
	}
	result |= stage.Validate(comp)

	if result != ValidationSuccessful {
		c.profiler.CountValidationFailure()
		logger.Logger().Warn("dispatch skipped by validation",
			"task", task.Name(),
			"groups", fmt.Sprintf("%dx%dx%d", x, y, z),
			"result", result.String())
		return result
	}
	for range task.Iterations() {
		c.native.Dispatch(x, y, z)
		c.profiler.CountDispatch()
	}
	return ValidationSuccessful
}

// ClearSurface fills a render surface with a color. The surface does not need to be bound.
func (c *DeviceContext) ClearSurface(surface RenderSurface, color gputypes.Color) {
	if surface == nil {
		return
	}
	c.native.ClearRenderTarget(surface, color)
}

// ClearDepth clears the depth and/or stencil planes of a depth surface.
func (c *DeviceContext) ClearDepth(surface DepthSurface, flags ClearFlags, depth float32, stencil uint8) {
	if surface == nil || flags == 0 {
		return
	}
	c.native.ClearDepthStencil(surface, flags, depth, stencil)
}

// PushState saves the graphics pipeline state.
//
// Returns:
//   - int: the state ID for PopStateTo
func (c *DeviceContext) PushState() int {
	return c.stack.Push(c)
}

// PopState restores the most recently pushed state.
func (c *DeviceContext) PopState() {
	if err := c.stack.Pop(c); err != nil {
		c.violate(err)
	}
}

// PopStateTo restores the state pushed with id and drops every state pushed after it.
func (c *DeviceContext) PopStateTo(id int) {
	if err := c.stack.PopTo(c, id); err != nil {
		c.violate(err)
	}
}

// Finish closes the recording of a deferred context.
//
// Returns:
//   - CommandList: the recorded commands, nil on failure
//   - error: error if the native context could not finish the list
func (c *DeviceContext) Finish() (CommandList, error) {
	if c.kind != ContextDeferred {
		c.violate(ErrNotDeferred)
		return nil, ErrNotDeferred
	}
	if c.drawing {
		c.violate(ErrAlreadyDrawing)
		c.drawing = false
		c.conditions = ConditionNone
	}
	list, err := c.native.FinishCommandList()
	if err != nil {
		return nil, fmt.Errorf("finish command list: %w", err)
	}
	c.forget()
	return list, nil
}

// abandon discards a partial recording and leaves the context ready for the next one.
func (c *DeviceContext) abandon() {
	if partial, err := c.native.FinishCommandList(); err == nil {
		partial.Release()
	}
	c.drawing = false
	c.conditions = ConditionNone
	c.forget()
}

// ExecuteCommandList plays a finished list on the immediate context. The native state is reset afterwards,
// so every slot is re-sent on the next draw.
func (c *DeviceContext) ExecuteCommandList(list CommandList) {
	if c.kind != ContextImmediate {
		c.violate(ErrNotImmediate)
		return
	}
	if list == nil {
		return
	}
	c.native.ExecuteCommandList(list)
	c.forget()
}

// ResetBindings drops everything the context believes is bound without native calls. Use it after native state
// was changed behind the context's back.
func (c *DeviceContext) ResetBindings() { c.forget() }

func (c *DeviceContext) forget() {
	c.blend.forget()
	c.depth.forget()
	c.rasterizer.forget()
	c.input.forget()
	c.output.forget()
	for _, s := range c.shaders {
		s.forget()
	}
}

// Release unbinds everything and detaches a deferred context from its device.
//
// Returns:
//   - error: ErrForeignContext if the device no longer tracks it
func (c *DeviceContext) Release() error {
	if c.released {
		return fmt.Errorf("%s context: %w", c.kind, ErrContextReleased)
	}
	c.forget()
	if c.kind == ContextDeferred {
		if err := c.device.RemoveContext(c); err != nil {
			return err
		}
	}
	c.released = true
	c.native.Release()
	return nil
}
