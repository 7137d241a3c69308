package material

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/shader"
)

// Library is a set of materials and compute tasks loaded from a YAML file.
//
// The file names shaders by key and path (relative to the file), then builds materials and tasks from them:
//
//	shaders:
//	  textured: textured.wgsl
//	materials:
//	  crate:
//	    iterations: 1
//	    passes:
//	      - name: base
//	        shader: textured
//	        iterations: 1
//	        states:
//	          none: {blend: alpha}
//	          multisample: {rasterizer: multisample}
//	    variables:
//	      albedo_sampler: {sampler: point-wrap}
//	tasks:
//	  simulate:
//	    shader: particles
//	    variables:
//	      particles: {stride: 16, count: 1024}
//
// States left out of a bank fall back to the shader's @oxy:state annotations, then to the device presets.
type Library struct {
	Materials map[string]Material
	Tasks     map[string]Task
}

type libraryFile struct {
	Shaders   map[string]string       `yaml:"shaders"`
	Materials map[string]materialFile `yaml:"materials"`
	Tasks     map[string]taskFile     `yaml:"tasks"`
}

type materialFile struct {
	Iterations int                     `yaml:"iterations"`
	Passes     []passFile              `yaml:"passes"`
	Variables  map[string]VariableSpec `yaml:"variables"`
}

type passFile struct {
	Name       string               `yaml:"name"`
	Shader     string               `yaml:"shader"`
	Iterations int                  `yaml:"iterations"`
	States     map[string]stateFile `yaml:"states"`
}

type stateFile struct {
	Blend      string `yaml:"blend"`
	Depth      string `yaml:"depth"`
	Rasterizer string `yaml:"rasterizer"`
}

type taskFile struct {
	Shader     string                  `yaml:"shader"`
	Iterations int                     `yaml:"iterations"`
	Variables  map[string]VariableSpec `yaml:"variables"`
}

// LoadLibrary reads a YAML material library.
//
// Parameters:
//   - path: the YAML file
//   - lib: the shader library the file's shaders are loaded into
//   - f: the resource factory creating variables
//
// Returns:
//   - *Library: the loaded materials and tasks
//   - error: a read, parse, shader or variable error
func LoadLibrary(path string, lib shader.Library, f resource.Factory) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseLibrary(data, filepath.Dir(path), lib, f)
}

// ParseLibrary builds a material library from YAML. Shader paths resolve against dir.
//
// Parameters:
//   - data: the YAML document
//   - dir: the directory relative shader paths resolve against
//   - lib: the shader library
//   - f: the resource factory
//
// Returns:
//   - *Library: the loaded materials and tasks
//   - error: a parse, shader or variable error; resources created before the error are released
func ParseLibrary(data []byte, dir string, lib shader.Library, f resource.Factory) (*Library, error) {
	var file libraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("material library: %w", err)
	}

	for _, key := range slices.Sorted(maps.Keys(file.Shaders)) {
		path := file.Shaders[key]
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if _, err := lib.Load(key, path); err != nil {
			return nil, err
		}
	}

	out := &Library{
		Materials: make(map[string]Material, len(file.Materials)),
		Tasks:     make(map[string]Task, len(file.Tasks)),
	}
	for _, name := range slices.Sorted(maps.Keys(file.Materials)) {
		m, err := buildMaterial(name, file.Materials[name], lib, f)
		if err != nil {
			return nil, errors.Join(err, out.Release())
		}
		out.Materials[name] = m
	}
	for _, name := range slices.Sorted(maps.Keys(file.Tasks)) {
		t, err := buildTask(name, file.Tasks[name], lib, f)
		if err != nil {
			return nil, errors.Join(err, out.Release())
		}
		out.Tasks[name] = t
	}
	logger.Logger().Info("material library loaded", "materials", len(out.Materials), "tasks", len(out.Tasks))
	return out, nil
}

func buildMaterial(name string, mf materialFile, lib shader.Library, f resource.Factory) (Material, error) {
	if len(mf.Passes) == 0 {
		return nil, fmt.Errorf("material %q has no passes", name)
	}
	vars := NewVariableSet()
	m := NewMaterial(name, WithIterations(mf.Iterations), WithVariables(vars))

	for i, pf := range mf.Passes {
		p, err := buildPass(name, i, pf, vars, mf.Variables, lib, f)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("material %q: %w", name, err), vars.Release())
		}
		m.AddPass(p)
	}
	return m, nil
}

func buildPass(material string, index int, pf passFile, vars *VariableSet, overrides map[string]VariableSpec, lib shader.Library, f resource.Factory) (Pass, error) {
	s, ok := lib.Shader(pf.Shader)
	if !ok {
		return nil, fmt.Errorf("pass %d: %w %q", index, ErrUnknownShader, pf.Shader)
	}
	if err := AddShaderVariables(vars, s, f, overrides); err != nil {
		return nil, fmt.Errorf("pass %d: %w", index, err)
	}
	base, iterations, err := AnnotatedState(f.Device(), s.Annotations())
	if err != nil {
		return nil, fmt.Errorf("pass %d: %w", index, err)
	}
	if pf.Iterations > 0 {
		iterations = pf.Iterations
	}

	name := pf.Name
	if name == "" {
		name = fmt.Sprintf("%s/%d", material, index)
	}
	p, err := NewPass(name, lib, pf.Shader, vars, WithPassIterations(iterations), WithState(pipe.ConditionNone, base))
	if err != nil {
		return nil, err
	}

	if none, ok := pf.States["none"]; ok {
		if err := none.apply(f.Device(), &base); err != nil {
			return nil, fmt.Errorf("pass %q: %w", name, err)
		}
		p.SetState(pipe.ConditionNone, base)
	}
	for _, key := range slices.Sorted(maps.Keys(pf.States)) {
		conditions, err := pipe.ParseStateConditions(key)
		if err != nil {
			return nil, fmt.Errorf("pass %q: %w", name, err)
		}
		if conditions == pipe.ConditionNone {
			continue
		}
		bank := base
		if err := pf.States[key].apply(f.Device(), &bank); err != nil {
			return nil, fmt.Errorf("pass %q: %w", name, err)
		}
		p.SetState(conditions, bank)
	}
	return p, nil
}

func (sf stateFile) apply(d *pipe.Device, state *pipe.PassState) error {
	for _, field := range [...]struct{ kind, name string }{
		{string(shader.AnnotationArgBlend), sf.Blend},
		{string(shader.AnnotationArgDepth), sf.Depth},
		{string(shader.AnnotationArgRasterizer), sf.Rasterizer},
	} {
		if field.name == "" {
			continue
		}
		if err := applyPreset(d, state, field.kind, field.name); err != nil {
			return err
		}
	}
	return nil
}

func buildTask(name string, tf taskFile, lib shader.Library, f resource.Factory) (Task, error) {
	s, ok := lib.Shader(tf.Shader)
	if !ok {
		return nil, fmt.Errorf("task %q: %w %q", name, ErrUnknownShader, tf.Shader)
	}
	vars := NewVariableSet()
	if err := AddShaderVariables(vars, s, f, tf.Variables); err != nil {
		return nil, errors.Join(fmt.Errorf("task %q: %w", name, err), vars.Release())
	}
	_, iterations, err := AnnotatedState(f.Device(), s.Annotations())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("task %q: %w", name, err), vars.Release())
	}
	if tf.Iterations > 0 {
		iterations = tf.Iterations
	}
	t, err := NewTask(name, lib, tf.Shader, vars, iterations)
	if err != nil {
		return nil, errors.Join(err, vars.Release())
	}
	return t, nil
}

// Release releases the variables of every material and task.
func (l *Library) Release() error {
	var errs []error
	for _, m := range l.Materials {
		errs = append(errs, m.Release())
	}
	for _, t := range l.Tasks {
		errs = append(errs, t.Release())
	}
	return errors.Join(errs...)
}
