package material

import (
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/shader"
)

// composition resolves one stage of a library shader against a variable set. The program and reflection are
// looked up on every call so a hot reload takes effect on the next draw.
type composition struct {
	lib  shader.Library
	key  string
	kind pipe.ShaderKind
	vars *VariableSet
}

var _ pipe.ShaderComposition = &composition{}

func (c *composition) Program() *pipe.ShaderProgram {
	return c.lib.Program(c.key, c.kind)
}

// resolve returns the current shader and the reflection of the composed stage.
func (c *composition) resolve() (shader.Shader, *shader.Reflection) {
	s, ok := c.lib.Shader(c.key)
	if !ok {
		return nil, nil
	}
	p := s.Program(c.kind)
	if p == nil {
		return nil, nil
	}
	return s, p.Reflection
}

// variableName is the annotated variable name of a binding, or the shader global's name.
func variableName(s shader.Shader, b shader.Binding) string {
	if a, ok := s.Variable(b.Group, b.Binding); ok {
		return string(a.Args[1])
	}
	return b.Name
}

func (c *composition) ConstantBuffers() []pipe.BindPoint[pipe.ConstantBuffer] {
	s, r := c.resolve()
	if r == nil {
		return nil
	}
	return bindPoints[pipe.ConstantBuffer](c.vars, s, r.ConstBuffers)
}

func (c *composition) Resources() []pipe.BindPoint[pipe.ShaderResource] {
	s, r := c.resolve()
	if r == nil {
		return nil
	}
	return bindPoints[pipe.ShaderResource](c.vars, s, r.Resources)
}

func (c *composition) Samplers() []pipe.BindPoint[pipe.Sampler] {
	s, r := c.resolve()
	if r == nil {
		return nil
	}
	return bindPoints[pipe.Sampler](c.vars, s, r.Samplers)
}

func (c *composition) UnorderedAccess() []pipe.BindPoint[pipe.UnorderedAccess] {
	s, r := c.resolve()
	if r == nil {
		return nil
	}
	return bindPoints[pipe.UnorderedAccess](c.vars, s, r.UAVs)
}

func bindPoints[T any](vars *VariableSet, s shader.Shader, bindings []shader.Binding) []pipe.BindPoint[T] {
	points := make([]pipe.BindPoint[T], len(bindings))
	for i, b := range bindings {
		v, _ := vars.Get(variableName(s, b))
		points[i] = pipe.BindPoint[T]{Register: int(b.Register), Value: valueAs[T](v)}
	}
	return points
}
