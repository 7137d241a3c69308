// Package material implements the materials, passes and compute tasks the pipeline draws with. Passes compose
// library shaders against named variables: each reflected bind point is filled from the variable of the same
// name, or of the name an @oxy:variable annotation gives it.
package material

import (
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
)

// material is the implementation of the Material interface.
type material struct {
	name       string
	iterations int
	passes     []Pass
	vars       *VariableSet
}

// Material is an ordered list of passes sharing one variable set. Every pass runs Iterations times per draw
// call.
type Material interface {
	pipe.Material

	// Passes retrieves the passes in draw order.
	//
	// Returns:
	//   - []Pass: the passes
	Passes() []Pass

	// AddPass appends a pass.
	//
	// Parameters:
	//   - p: the pass, which should compose against Variables
	AddPass(p Pass)

	// Variables retrieves the variables shared by the passes.
	//
	// Returns:
	//   - *VariableSet: the variable set
	Variables() *VariableSet

	// Release releases the resources the material's variables created.
	//
	// Returns:
	//   - error: the joined release errors
	Release() error
}

var _ Material = &material{}

// NewMaterial creates a new Material instance configured with the provided options.
//
// Parameters:
//   - name: the material name used in diagnostics
//   - options: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - Material: a new Material instance
func NewMaterial(name string, options ...MaterialBuilderOption) Material {
	m := &material{
		name:       name,
		iterations: 1,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.vars == nil {
		m.vars = NewVariableSet()
	}
	return m
}

func (m *material) Name() string {
	return m.name
}

func (m *material) Iterations() int {
	return m.iterations
}

func (m *material) PassCount() int {
	return len(m.passes)
}

func (m *material) Pass(i int) pipe.MaterialPass {
	return m.passes[i]
}

func (m *material) Passes() []Pass {
	return m.passes
}

func (m *material) AddPass(p Pass) {
	m.passes = append(m.passes, p)
}

func (m *material) Variables() *VariableSet {
	return m.vars
}

func (m *material) Release() error {
	return m.vars.Release()
}
