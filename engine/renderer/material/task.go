package material

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/shader"
)

// Task is a compute shader composed against a variable set, dispatched through pipe.DeviceContext.Dispatch.
type Task interface {
	pipe.ComputeTask

	// Variables retrieves the variables the task binds.
	Variables() *VariableSet

	// Release releases the resources the task's variables created.
	Release() error
}

type task struct {
	name       string
	iterations int
	comp       *composition
}

var _ Task = &task{}

// NewTask creates a compute task for the compute entry point of a library shader.
//
// Parameters:
//   - name: the task name used in diagnostics
//   - lib: the shader library holding key
//   - key: the shader key
//   - vars: the variables bound by name
//   - iterations: dispatches per call, clamped to at least 1
//
// Returns:
//   - Task: the task
//   - error: ErrUnknownShader when lib has no compute program for key
func NewTask(name string, lib shader.Library, key string, vars *VariableSet, iterations int) (Task, error) {
	if lib.Program(key, pipe.ShaderCompute) == nil {
		return nil, fmt.Errorf("task %q: %w %q (no compute entry point)", name, ErrUnknownShader, key)
	}
	return &task{
		name:       name,
		iterations: max(iterations, 1),
		comp:       &composition{lib: lib, key: key, kind: pipe.ShaderCompute, vars: vars},
	}, nil
}

func (t *task) Name() string                        { return t.name }
func (t *task) Iterations() int                     { return t.iterations }
func (t *task) Composition() pipe.ShaderComposition { return t.comp }
func (t *task) Variables() *VariableSet             { return t.comp.vars }
func (t *task) Release() error                      { return t.comp.vars.Release() }
