package shader

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"
)

var (
	// ErrNoEntryPoint is returned when a source declares no vertex, fragment or compute entry point.
	ErrNoEntryPoint = errors.New("shader has no entry point")

	// ErrValidation wraps the validation errors of a module.
	ErrValidation = errors.New("shader validation failed")

	// ErrUnsupportedStage is returned for entry points with no pipeline stage, such as mesh shaders.
	ErrUnsupportedStage = errors.New("unsupported shader stage")
)

// compiler is the implementation of the Compiler interface.
type compiler struct {
	shaderModel hlsl.ShaderModel
	validate    bool
	ppOptions   []PreProcessorBuilderOption
}

// Compiler turns WGSL into HLSL programs through naga. A Compiler is safe for concurrent use: every call gets
// its own pre-processor.
type Compiler interface {
	// Compile pre-processes, validates and translates an in-memory WGSL source.
	//
	// Parameters:
	//   - key: the shader's unique key
	//   - source: the raw WGSL source
	//
	// Returns:
	//   - Shader: the compiled shader with one program per entry point
	//   - error: a pre-processing, parse, validation or translation error
	Compile(key, source string) (Shader, error)

	// CompileFile reads and compiles a WGSL file. Relative includes resolve against the file's directory.
	//
	// Parameters:
	//   - key: the shader's unique key
	//   - path: the WGSL file
	//
	// Returns:
	//   - Shader: the compiled shader
	//   - error: a read or compile error
	CompileFile(key, path string) (Shader, error)
}

var _ Compiler = &compiler{}

// CompilerBuilderOption is a functional option used to configure a Compiler.
type CompilerBuilderOption func(*compiler)

// WithShaderModel sets the HLSL shader model programs are generated for.
//
// Parameters:
//   - sm: the shader model, 5.1 by default
//
// Returns:
//   - CompilerBuilderOption: a function that sets the shader model
func WithShaderModel(sm hlsl.ShaderModel) CompilerBuilderOption {
	return func(c *compiler) {
		c.shaderModel = sm
	}
}

// WithValidation toggles IR validation before translation.
//
// Parameters:
//   - enabled: whether modules are validated, true by default
//
// Returns:
//   - CompilerBuilderOption: a function that sets validation
func WithValidation(enabled bool) CompilerBuilderOption {
	return func(c *compiler) {
		c.validate = enabled
	}
}

// WithPreProcessorOptions configures the pre-processor run before every compile.
//
// Parameters:
//   - options: pre-processor options such as WithIncludeDirs and WithSnippet
//
// Returns:
//   - CompilerBuilderOption: a function that stores the pre-processor options
func WithPreProcessorOptions(options ...PreProcessorBuilderOption) CompilerBuilderOption {
	return func(c *compiler) {
		c.ppOptions = append(c.ppOptions, options...)
	}
}

// NewCompiler creates a Compiler.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - Compiler: the compiler
func NewCompiler(options ...CompilerBuilderOption) Compiler {
	c := &compiler{
		shaderModel: hlsl.ShaderModel5_1,
		validate:    true,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *compiler) CompileFile(key, path string) (Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", key, err)
	}
	return c.compile(key, path, string(data))
}

func (c *compiler) Compile(key, source string) (Shader, error) {
	return c.compile(key, "", source)
}

func (c *compiler) compile(key, path, source string) (Shader, error) {
	pp := NewPreProcessor(c.ppOptions...)
	expanded, err := pp.Process(path, source)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", key, err)
	}

	ast, err := naga.Parse(expanded)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", key, err)
	}
	mod, err := naga.LowerWithSource(ast, expanded)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", key, err)
	}
	if c.validate {
		if err := validate(mod); err != nil {
			return nil, fmt.Errorf("shader %q: %w", key, err)
		}
	}

	programs, err := c.translate(mod)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", key, err)
	}

	logger.Logger().Debug("shader compiled", "key", key, "programs", len(programs), "includes", len(pp.Includes()))
	return &shader{
		key:         key,
		path:        path,
		source:      expanded,
		annotations: slices.Clone(pp.Annotations()),
		includes:    slices.Clone(pp.Includes()),
		programs:    programs,
	}, nil
}

func validate(mod *ir.Module) error {
	verrs, err := naga.Validate(mod)
	if err != nil {
		return err
	}
	if len(verrs) == 0 {
		return nil
	}
	errs := []error{ErrValidation}
	for _, v := range verrs {
		errs = append(errs, v)
	}
	return errors.Join(errs...)
}

// translate generates one HLSL program per entry point. Every program shares one register assignment.
func (c *compiler) translate(mod *ir.Module) ([]*Program, error) {
	if len(mod.EntryPoints) == 0 {
		return nil, ErrNoEntryPoint
	}
	targets := registers(mod)

	programs := make([]*Program, 0, len(mod.EntryPoints))
	for i := range mod.EntryPoints {
		ep := &mod.EntryPoints[i]
		kind, ok := stageKinds[ep.Stage]
		if !ok {
			return nil, fmt.Errorf("entry point %q: %w", ep.Name, ErrUnsupportedStage)
		}
		if slices.ContainsFunc(programs, func(p *Program) bool { return p.Kind == kind }) {
			return nil, fmt.Errorf("entry point %q: second %s entry point", ep.Name, kind)
		}

		opts := hlsl.DefaultOptions()
		opts.ShaderModel = c.shaderModel
		opts.BindingMap = targets
		opts.EntryPoint = ep.Name
		src, info, err := hlsl.Compile(mod, opts)
		if err != nil {
			return nil, fmt.Errorf("entry point %q: %w", ep.Name, err)
		}

		name := ep.Name
		if n, ok := info.EntryPointNames[ep.Name]; ok && n != "" {
			name = n
		}
		programs = append(programs, &Program{
			Kind:       kind,
			EntryPoint: name,
			HLSL:       src,
			Reflection: reflect(mod, ep, targets),
		})
	}
	slices.SortFunc(programs, func(a, b *Program) int { return int(a.Kind) - int(b.Kind) })
	return programs, nil
}

// stagePrograms maps a shader's programs to pipeline programs keyed by stage.
func stagePrograms(key string, s Shader) map[pipe.ShaderKind]*pipe.ShaderProgram {
	out := make(map[pipe.ShaderKind]*pipe.ShaderProgram, len(s.Programs()))
	for _, p := range s.Programs() {
		out[p.Kind] = p.NewShaderProgram(key + "/" + p.Kind.String())
	}
	return out
}
