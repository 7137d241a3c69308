package material

// MaterialBuilderOption is a function that configures a material instance during construction.
type MaterialBuilderOption func(*material)

// WithIterations is an option builder that sets how many times every pass of the material runs per draw call.
//
// Parameters:
//   - n: the iteration count, clamped to at least 1
//
// Returns:
//   - MaterialBuilderOption: a function that applies the iteration count to a material
func WithIterations(n int) MaterialBuilderOption {
	return func(m *material) {
		m.iterations = max(n, 1)
	}
}

// WithPasses is an option builder that appends passes to the material.
//
// Parameters:
//   - passes: the passes in draw order
//
// Returns:
//   - MaterialBuilderOption: a function that appends the passes to a material
func WithPasses(passes ...Pass) MaterialBuilderOption {
	return func(m *material) {
		m.passes = append(m.passes, passes...)
	}
}

// WithVariables is an option builder that sets the variable set the passes compose against.
//
// Parameters:
//   - vars: the variable set
//
// Returns:
//   - MaterialBuilderOption: a function that applies the variable set to a material
func WithVariables(vars *VariableSet) MaterialBuilderOption {
	return func(m *material) {
		m.vars = vars
	}
}
