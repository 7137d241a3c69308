package pipe

// BindPoint pairs a native register with the value a shader expects there.
type BindPoint[T any] struct {
	Register int
	Value    T
}

// PassState is the state a pass selects for one set of StateConditions. Nil fields fall back to the device presets.
type PassState struct {
	Blend      *BlendState
	Depth      *DepthState
	Rasterizer *RasterizerState
}

// ShaderComposition is everything one shader stage of a pass binds: the program and its reflected bind points.
// Every bind point is required; a point whose slot ends up empty fails validation.
type ShaderComposition interface {
	// Program retrieves the compiled shader program for the stage.
	//
	// Returns:
	//   - *ShaderProgram: the program, or nil if the stage has no shader
	Program() *ShaderProgram

	// ConstantBuffers retrieves the constant buffers by register.
	//
	// Returns:
	//   - []BindPoint[ConstantBuffer]: the constant buffer bind points
	ConstantBuffers() []BindPoint[ConstantBuffer]

	// Resources retrieves the shader resources by register.
	//
	// Returns:
	//   - []BindPoint[ShaderResource]: the resource bind points
	Resources() []BindPoint[ShaderResource]

	// Samplers retrieves the samplers by register.
	//
	// Returns:
	//   - []BindPoint[Sampler]: the sampler bind points
	Samplers() []BindPoint[Sampler]

	// UnorderedAccess retrieves the unordered access views by register. Only compute compositions use it.
	//
	// Returns:
	//   - []BindPoint[UnorderedAccess]: the unordered access bind points
	UnorderedAccess() []BindPoint[UnorderedAccess]
}

// MaterialPass is one pass of a Material.
type MaterialPass interface {
	// Name retrieves the pass name used in diagnostics.
	//
	// Returns:
	//   - string: the pass name
	Name() string

	// Iterations retrieves how many times the pass draws per material iteration.
	//
	// Returns:
	//   - int: the pass iteration count
	Iterations() int

	// State resolves the pass state bank for the given conditions.
	//
	// Parameters:
	//   - conditions: the conditions passed to BeginDraw
	//
	// Returns:
	//   - PassState: the states to apply, nil fields fall back to presets
	State(conditions StateConditions) PassState

	// Composition retrieves the shader composition for a stage.
	//
	// Parameters:
	//   - kind: the shader stage
	//
	// Returns:
	//   - ShaderComposition: the composition, or nil if the pass leaves the stage empty
	Composition(kind ShaderKind) ShaderComposition
}

// Material is a drawable set of passes.
type Material interface {
	// Name retrieves the material name used in diagnostics.
	//
	// Returns:
	//   - string: the material name
	Name() string

	// Iterations retrieves how many times every pass runs per draw call.
	//
	// Returns:
	//   - int: the material iteration count
	Iterations() int

	// PassCount retrieves the number of passes.
	//
	// Returns:
	//   - int: the pass count
	PassCount() int

	// Pass retrieves a pass by index.
	//
	// Parameters:
	//   - i: the pass index in [0, PassCount)
	//
	// Returns:
	//   - MaterialPass: the pass
	Pass(i int) MaterialPass
}

// ComputeTask is a dispatchable compute shader with its bindings.
type ComputeTask interface {
	// Name retrieves the task name used in diagnostics.
	Name() string

	// Iterations retrieves how many times the task dispatches per call.
	Iterations() int

	// Composition retrieves the compute composition.
	Composition() ShaderComposition
}
