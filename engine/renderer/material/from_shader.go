package material

import (
	"fmt"
	"strconv"

	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/shader"
)

// FromShader builds a single-pass material for a library shader. Variables are created for every reflected
// bind point, sized from reflection and configured by @oxy:variable annotations; the pass takes its default
// state bank and iteration count from @oxy:state and @oxy:iterations.
//
// Parameters:
//   - name: the material name, also the pass name
//   - lib: the shader library holding key
//   - key: the shader key
//   - f: the factory creating constant buffers, structured buffers and samplers
//
// Returns:
//   - Material: the material
//   - error: an unknown shader, a kind mismatch between annotation and reflection, or a creation error
func FromShader(name string, lib shader.Library, key string, f resource.Factory) (Material, error) {
	s, ok := lib.Shader(key)
	if !ok {
		return nil, fmt.Errorf("material %q: %w %q", name, ErrUnknownShader, key)
	}
	vars := NewVariableSet()
	if err := AddShaderVariables(vars, s, f, nil); err != nil {
		vars.Release()
		return nil, fmt.Errorf("material %q: %w", name, err)
	}
	state, iterations, err := AnnotatedState(f.Device(), s.Annotations())
	if err != nil {
		vars.Release()
		return nil, fmt.Errorf("material %q: %w", name, err)
	}
	p, err := NewPass(name, lib, key, vars, WithPassIterations(iterations), WithState(pipe.ConditionNone, state))
	if err != nil {
		vars.Release()
		return nil, err
	}
	return NewMaterial(name, WithVariables(vars), WithPasses(p)), nil
}

// TaskFromShader builds a compute task for a library shader the way FromShader builds a material.
//
// Parameters:
//   - name: the task name
//   - lib: the shader library holding key
//   - key: the shader key
//   - f: the resource factory
//
// Returns:
//   - Task: the task
//   - error: an unknown shader or a variable error
func TaskFromShader(name string, lib shader.Library, key string, f resource.Factory) (Task, error) {
	s, ok := lib.Shader(key)
	if !ok {
		return nil, fmt.Errorf("task %q: %w %q", name, ErrUnknownShader, key)
	}
	vars := NewVariableSet()
	if err := AddShaderVariables(vars, s, f, nil); err != nil {
		vars.Release()
		return nil, fmt.Errorf("task %q: %w", name, err)
	}
	_, iterations, err := AnnotatedState(f.Device(), s.Annotations())
	if err != nil {
		vars.Release()
		return nil, fmt.Errorf("task %q: %w", name, err)
	}
	t, err := NewTask(name, lib, key, vars, iterations)
	if err != nil {
		vars.Release()
		return nil, err
	}
	return t, nil
}

// AddShaderVariables creates a variable for every bind point of s that vars does not hold yet. Variables
// already in vars, such as ones shared with an earlier pass, must have a compatible kind.
//
// Parameters:
//   - vars: the set to add to
//   - s: the compiled shader
//   - f: the resource factory
//   - overrides: per-variable specs whose non-zero fields replace the reflected sizes and annotated presets;
//     may be nil
//
// Returns:
//   - error: ErrKindMismatch or a creation error
func AddShaderVariables(vars *VariableSet, s shader.Shader, f resource.Factory, overrides map[string]VariableSpec) error {
	for _, p := range s.Programs() {
		for _, b := range p.Reflection.Bindings() {
			name := variableName(s, b)
			kind := kindOf(b.Kind)
			var preset string
			if a, ok := s.Variable(b.Group, b.Binding); ok {
				k, err := ParseResourceKind(string(a.Args[0]))
				if err != nil {
					return err
				}
				if !k.compatible(b.Kind) {
					return fmt.Errorf("line %d: variable %q is %s but the shader binds a %s: %w", a.Line, name, k, b.Kind, ErrKindMismatch)
				}
				kind = k
				if len(a.Args) > 2 {
					preset = string(a.Args[2])
				}
			}

			if v, ok := vars.Get(name); ok {
				if !v.Kind().compatible(b.Kind) {
					return fmt.Errorf("variable %q is %s but %s binds a %s: %w", name, v.Kind(), p.Kind, b.Kind, ErrKindMismatch)
				}
				continue
			}

			spec, err := reflectedSpec(kind, b, preset)
			if err != nil {
				return fmt.Errorf("variable %q: %w", name, err)
			}
			if o, ok := overrides[name]; ok {
				spec = spec.merge(o)
			}
			v, err := NewVariable(f, name, kind, spec)
			if err != nil {
				return err
			}
			vars.Add(v)
			logger.Logger().Debug("material variable created", "shader", s.Key(), "variable", name, "kind", kind.String())
		}
	}
	return nil
}

// reflectedSpec sizes a variable from its binding. A numeric preset is a constant buffer size or a structured
// buffer element count; other presets name a sampler.
func reflectedSpec(kind ResourceKind, b shader.Binding, preset string) (VariableSpec, error) {
	spec := VariableSpec{}
	switch kind {
	case KindConstants:
		spec.Size = uint64(b.Size)
		if preset != "" {
			n, err := strconv.ParseUint(preset, 10, 64)
			if err != nil {
				return spec, fmt.Errorf("constant buffer size %q: %w", preset, err)
			}
			spec.Size = n
		}
	case KindBuffer, KindRWBuffer:
		spec.Stride = b.Size
		if preset != "" {
			n, err := strconv.ParseUint(preset, 10, 32)
			if err != nil {
				return spec, fmt.Errorf("element count %q: %w", preset, err)
			}
			spec.Count = uint32(n)
		}
	case KindSampler:
		spec.Sampler = preset
	}
	return spec, nil
}

// merge returns s with every non-zero field of o applied.
func (s VariableSpec) merge(o VariableSpec) VariableSpec {
	if o.Size != 0 {
		s.Size = o.Size
	}
	if o.Stride != 0 {
		s.Stride = o.Stride
	}
	if o.Count != 0 {
		s.Count = o.Count
	}
	if o.Sampler != "" {
		s.Sampler = o.Sampler
	}
	return s
}

// AnnotatedState resolves the @oxy:state annotations to device presets and returns the @oxy:iterations count,
// 1 when absent.
//
// Parameters:
//   - d: the device holding the presets
//   - annotations: the shader's annotations
//
// Returns:
//   - pipe.PassState: the annotated states, nil where none was annotated
//   - int: the iteration count
//   - error: an unknown preset
func AnnotatedState(d *pipe.Device, annotations []shader.Annotation) (pipe.PassState, int, error) {
	var state pipe.PassState
	iterations := 1
	for _, a := range annotations {
		switch a.Type {
		case shader.AnnotationTypeIterations:
			iterations = a.Count
		case shader.AnnotationTypeState:
			if err := applyPreset(d, &state, string(a.Args[0]), string(a.Args[1])); err != nil {
				return state, 0, fmt.Errorf("line %d: %w", a.Line, err)
			}
		}
	}
	return state, iterations, nil
}

// applyPreset sets one field of state to a named device preset.
func applyPreset(d *pipe.Device, state *pipe.PassState, kind, name string) error {
	switch shader.AnnotationArg(kind) {
	case shader.AnnotationArgBlend:
		p, err := pipe.ParseBlendPreset(name)
		if err != nil {
			return err
		}
		state.Blend = d.BlendPreset(p)
	case shader.AnnotationArgDepth:
		p, err := pipe.ParseDepthPreset(name)
		if err != nil {
			return err
		}
		state.Depth = d.DepthPreset(p)
	case shader.AnnotationArgRasterizer:
		p, err := pipe.ParseRasterizerPreset(name)
		if err != nil {
			return err
		}
		state.Rasterizer = d.RasterizerPreset(p)
	default:
		return fmt.Errorf("unknown state kind %q", kind)
	}
	return nil
}
