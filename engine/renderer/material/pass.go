package material

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/shader"
)

// ErrUnknownShader is returned when a pass or task names a shader the library does not hold.
var ErrUnknownShader = errors.New("unknown shader")

// pass is the implementation of the Pass interface.
type pass struct {
	name       string
	key        string
	iterations int

	// banks holds the state per condition set. ConditionNone is the fallback bank.
	banks        map[pipe.StateConditions]pipe.PassState
	compositions map[pipe.ShaderKind]*composition
}

// Pass is one draw of a material: a library shader composed against the material's variables, plus the
// state banks selected by the draw conditions.
type Pass interface {
	pipe.MaterialPass

	// Shader retrieves the library key of the pass shader.
	//
	// Returns:
	//   - string: the shader key
	Shader() string

	// SetIterations sets how many times the pass draws.
	//
	// Parameters:
	//   - n: the count, clamped to at least 1
	SetIterations(n int)

	// SetState sets the state bank used when a draw's conditions are exactly conditions.
	//
	// Parameters:
	//   - conditions: the condition set; ConditionNone is the fallback for unmatched sets
	//   - state: the states, nil fields fall back to the device presets
	SetState(conditions pipe.StateConditions, state pipe.PassState)
}

var _ Pass = &pass{}

// PassBuilderOption is a functional option used to configure a Pass.
type PassBuilderOption func(*pass)

// WithPassIterations sets how many times the pass draws per material iteration.
//
// Parameters:
//   - n: the count
//
// Returns:
//   - PassBuilderOption: a function that sets the pass iteration count
func WithPassIterations(n int) PassBuilderOption {
	return func(p *pass) {
		p.SetIterations(n)
	}
}

// WithState sets the state bank for a condition set.
//
// Parameters:
//   - conditions: the condition set
//   - state: the states for it
//
// Returns:
//   - PassBuilderOption: a function that stores the state bank
func WithState(conditions pipe.StateConditions, state pipe.PassState) PassBuilderOption {
	return func(p *pass) {
		p.SetState(conditions, state)
	}
}

// NewPass creates a pass drawing the library shader key with the given variables.
//
// Parameters:
//   - name: the pass name used in diagnostics
//   - lib: the shader library holding key
//   - key: the shader key
//   - vars: the variables bound by name to the shader's bind points
//   - options: functional options
//
// Returns:
//   - Pass: the pass
//   - error: ErrUnknownShader when lib does not hold key
func NewPass(name string, lib shader.Library, key string, vars *VariableSet, options ...PassBuilderOption) (Pass, error) {
	if _, ok := lib.Shader(key); !ok {
		return nil, fmt.Errorf("pass %q: %w %q", name, ErrUnknownShader, key)
	}
	p := &pass{
		name:         name,
		key:          key,
		iterations:   1,
		banks:        make(map[pipe.StateConditions]pipe.PassState),
		compositions: make(map[pipe.ShaderKind]*composition, len(pipe.GraphicsShaderKinds)),
	}
	for _, kind := range pipe.GraphicsShaderKinds {
		p.compositions[kind] = &composition{lib: lib, key: key, kind: kind, vars: vars}
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

func (p *pass) Name() string    { return p.name }
func (p *pass) Shader() string  { return p.key }
func (p *pass) Iterations() int { return p.iterations }

func (p *pass) SetIterations(n int) {
	p.iterations = max(n, 1)
}

func (p *pass) SetState(conditions pipe.StateConditions, state pipe.PassState) {
	p.banks[conditions] = state
}

func (p *pass) State(conditions pipe.StateConditions) pipe.PassState {
	if s, ok := p.banks[conditions]; ok {
		return s
	}
	return p.banks[pipe.ConditionNone]
}

// Composition returns nil for stages the shader has no program for, so the stage is emptied.
func (p *pass) Composition(kind pipe.ShaderKind) pipe.ShaderComposition {
	c, ok := p.compositions[kind]
	if !ok || c.Program() == nil {
		return nil
	}
	return c
}
