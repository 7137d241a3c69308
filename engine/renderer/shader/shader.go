package shader

import (
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
)

// Program is one compiled entry point of a shader.
type Program struct {
	// Kind is the pipeline stage the entry point runs in.
	Kind pipe.ShaderKind

	// EntryPoint is the entry point name in the generated HLSL, which may differ from the WGSL name when the
	// backend renames reserved identifiers.
	EntryPoint string

	// HLSL is the generated source, compiled to bytecode by the native device.
	HLSL string

	Reflection *Reflection
}

// NewShaderProgram wraps the program for binding to a pipeline stage.
//
// Parameters:
//   - name: debug name of the program
//
// Returns:
//   - *pipe.ShaderProgram: a program the native device compiles on first bind
func (p *Program) NewShaderProgram(name string) *pipe.ShaderProgram {
	sp := pipe.NewShaderProgram(name, p.Kind, p.EntryPoint, []byte(p.HLSL), p.Reflection.Inputs)
	if p.Kind == pipe.ShaderCompute {
		sp.SetThreadGroupSize(p.Reflection.WorkgroupSize)
	}
	return sp
}

// shader is the implementation of the Shader interface.
type shader struct {
	key         string
	path        string
	source      string
	annotations []Annotation
	includes    []string
	programs    []*Program
}

// Shader is a WGSL source file compiled to one HLSL program per entry point. It exposes the expanded source,
// the annotations found while pre-processing and the reflection of every program.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Path retrieves the file the shader was compiled from.
	//
	// Returns:
	//   - string: the source path, empty for in-memory sources
	Path() string

	// Source retrieves the pre-processed WGSL source.
	//
	// Returns:
	//   - string: the expanded WGSL source
	Source() string

	// Annotations returns the @oxy annotations parsed from the source and its includes.
	//
	// Returns:
	//   - []Annotation: variable, state and iterations annotations in source order
	Annotations() []Annotation

	// Includes returns the files the shader pulled in through #include. A change to any of them requires a
	// recompile.
	//
	// Returns:
	//   - []string: absolute paths of the included files
	Includes() []string

	// Programs returns every compiled entry point in pipeline order.
	//
	// Returns:
	//   - []*Program: the programs
	Programs() []*Program

	// Program returns the program for one stage.
	//
	// Parameters:
	//   - kind: the pipeline stage
	//
	// Returns:
	//   - *Program: the program, or nil when the shader has no entry point for the stage
	Program(kind pipe.ShaderKind) *Program

	// Variable returns the variable annotation naming a group and binding.
	//
	// Parameters:
	//   - group: the @group index
	//   - binding: the @binding index
	//
	// Returns:
	//   - Annotation: the variable annotation
	//   - bool: false when no annotation names the binding
	Variable(group, binding uint32) (Annotation, bool)
}

var _ Shader = &shader{}

func (s *shader) Key() string               { return s.key }
func (s *shader) Path() string              { return s.path }
func (s *shader) Source() string            { return s.source }
func (s *shader) Annotations() []Annotation { return s.annotations }
func (s *shader) Includes() []string        { return s.includes }
func (s *shader) Programs() []*Program      { return s.programs }

func (s *shader) Program(kind pipe.ShaderKind) *Program {
	for _, p := range s.programs {
		if p.Kind == kind {
			return p
		}
	}
	return nil
}

func (s *shader) Variable(group, binding uint32) (Annotation, bool) {
	for _, a := range s.annotations {
		if a.Type == AnnotationTypeVariable && uint32(*a.Group) == group && uint32(*a.Binding) == binding {
			return a, true
		}
	}
	return Annotation{}, false
}
