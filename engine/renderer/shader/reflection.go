package shader

import (
	"cmp"
	"slices"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"
)

// inputSemantic is the semantic naga's HLSL backend emits for @location inputs; the location is the index.
const inputSemantic = "LOC"

// BindingKind classifies a reflected resource binding.
type BindingKind uint8

const (
	BindingConstants BindingKind = iota
	BindingStructured
	BindingTexture
	BindingSampler
	BindingRWStructured
	BindingRWTexture
)

var bindingKindNames = [...]string{"constants", "structured", "texture", "sampler", "rw_structured", "rw_texture"}

func (k BindingKind) String() string {
	if int(k) < len(bindingKindNames) {
		return bindingKindNames[k]
	}
	return "unknown"
}

// registerType maps a binding kind to its HLSL register class.
func (k BindingKind) registerType() hlsl.RegisterType {
	switch k {
	case BindingConstants:
		return hlsl.RegisterTypeB
	case BindingSampler:
		return hlsl.RegisterTypeS
	case BindingRWStructured, BindingRWTexture:
		return hlsl.RegisterTypeU
	default:
		return hlsl.RegisterTypeT
	}
}

// Binding is one resource a program reads or writes.
type Binding struct {
	Name     string
	Group    uint32
	Binding  uint32
	Register uint32
	Kind     BindingKind

	// Size is the byte size of a constant buffer, or the element stride of a structured buffer.
	Size uint32
}

// Reflection describes what a single entry point binds.
type Reflection struct {
	ConstBuffers  []Binding
	Resources     []Binding
	Samplers      []Binding
	UAVs          []Binding
	Inputs        []pipe.ShaderInput
	WorkgroupSize [3]uint32
}

// Bindings returns every binding of the reflection sorted by group and binding.
func (r *Reflection) Bindings() []Binding {
	all := slices.Concat(r.ConstBuffers, r.Resources, r.Samplers, r.UAVs)
	slices.SortFunc(all, compareBindings)
	return all
}

// Find looks up the binding at a group and binding index.
func (r *Reflection) Find(group, binding uint32) (Binding, bool) {
	for _, b := range r.Bindings() {
		if b.Group == group && b.Binding == binding {
			return b, true
		}
	}
	return Binding{}, false
}

func compareBindings(a, b Binding) int {
	if c := cmp.Compare(a.Group, b.Group); c != 0 {
		return c
	}
	return cmp.Compare(a.Binding, b.Binding)
}

// stageKinds maps naga stages to pipeline stages. Task and mesh stages have no slot and are rejected.
var stageKinds = map[ir.ShaderStage]pipe.ShaderKind{
	ir.StageVertex:   pipe.ShaderVertex,
	ir.StageFragment: pipe.ShaderPixel,
	ir.StageCompute:  pipe.ShaderCompute,
}

// registers assigns HLSL registers for every resource global of a module. Registers are dense per class and
// ordered by (group, binding), so all entry points of a module agree on them.
func registers(mod *ir.Module) map[hlsl.ResourceBinding]hlsl.BindTarget {
	var all []Binding
	for i := range mod.GlobalVariables {
		if b, ok := classify(mod, &mod.GlobalVariables[i]); ok {
			all = append(all, b)
		}
	}
	slices.SortFunc(all, compareBindings)

	next := map[hlsl.RegisterType]uint32{}
	targets := make(map[hlsl.ResourceBinding]hlsl.BindTarget, len(all))
	for _, b := range all {
		class := b.Kind.registerType()
		targets[hlsl.ResourceBinding{Group: b.Group, Binding: b.Binding}] = hlsl.BindTarget{Register: next[class]}
		next[class]++
	}
	return targets
}

// reflect builds the reflection of one entry point from the globals it reaches.
func reflect(mod *ir.Module, ep *ir.EntryPoint, targets map[hlsl.ResourceBinding]hlsl.BindTarget) *Reflection {
	r := &Reflection{WorkgroupSize: ep.Workgroup}

	used := make(map[ir.GlobalVariableHandle]bool)
	collectGlobals(mod, &ep.Function, used, make(map[ir.FunctionHandle]bool))

	for h := range mod.GlobalVariables {
		if !used[ir.GlobalVariableHandle(h)] {
			continue
		}
		b, ok := classify(mod, &mod.GlobalVariables[h])
		if !ok {
			continue
		}
		b.Register = targets[hlsl.ResourceBinding{Group: b.Group, Binding: b.Binding}].Register
		switch b.Kind.registerType() {
		case hlsl.RegisterTypeB:
			r.ConstBuffers = append(r.ConstBuffers, b)
		case hlsl.RegisterTypeS:
			r.Samplers = append(r.Samplers, b)
		case hlsl.RegisterTypeU:
			r.UAVs = append(r.UAVs, b)
		default:
			r.Resources = append(r.Resources, b)
		}
	}
	for _, list := range [][]Binding{r.ConstBuffers, r.Resources, r.Samplers, r.UAVs} {
		slices.SortFunc(list, compareBindings)
	}

	if ep.Stage == ir.StageVertex {
		r.Inputs = vertexInputs(mod, &ep.Function)
	}
	return r
}

// classify reports the binding of a resource global. Globals without @group/@binding are not resources.
func classify(mod *ir.Module, gv *ir.GlobalVariable) (Binding, bool) {
	if gv.Binding == nil {
		return Binding{}, false
	}
	b := Binding{Name: gv.Name, Group: gv.Binding.Group, Binding: gv.Binding.Binding}
	inner := mod.Types[gv.Type].Inner

	switch gv.Space {
	case ir.SpaceUniform:
		b.Kind = BindingConstants
		b.Size = typeSize(mod, gv.Type)
	case ir.SpaceStorage:
		b.Kind = BindingStructured
		if gv.Access == ir.StorageReadWrite {
			b.Kind = BindingRWStructured
		}
		b.Size = elementStride(mod, inner)
	case ir.SpaceHandle:
		switch t := inner.(type) {
		case ir.SamplerType:
			b.Kind = BindingSampler
		case ir.ImageType:
			b.Kind = BindingTexture
			if t.Class == ir.ImageClassStorage {
				b.Kind = BindingRWTexture
			}
		default:
			b.Kind = BindingTexture
		}
	default:
		return Binding{}, false
	}
	return b, true
}

// collectGlobals marks every global referenced by fn or any function it calls.
func collectGlobals(mod *ir.Module, fn *ir.Function, used map[ir.GlobalVariableHandle]bool, visited map[ir.FunctionHandle]bool) {
	for _, e := range fn.Expressions {
		switch k := e.Kind.(type) {
		case ir.ExprGlobalVariable:
			used[k.Variable] = true
		case ir.ExprCallResult:
			visitCall(mod, k.Function, used, visited)
		}
	}
	walkCalls(fn.Body, func(h ir.FunctionHandle) { visitCall(mod, h, used, visited) })
}

func visitCall(mod *ir.Module, h ir.FunctionHandle, used map[ir.GlobalVariableHandle]bool, visited map[ir.FunctionHandle]bool) {
	if visited[h] || int(h) >= len(mod.Functions) {
		return
	}
	visited[h] = true
	collectGlobals(mod, &mod.Functions[h], used, visited)
}

// walkCalls reports every function called from a block, descending into nested control flow.
func walkCalls(block []ir.Statement, call func(ir.FunctionHandle)) {
	for _, s := range block {
		switch k := s.Kind.(type) {
		case ir.StmtCall:
			call(k.Function)
		case ir.StmtBlock:
			walkCalls(k.Block, call)
		case ir.StmtIf:
			walkCalls(k.Accept, call)
			walkCalls(k.Reject, call)
		case ir.StmtSwitch:
			for _, c := range k.Cases {
				walkCalls(c.Body, call)
			}
		case ir.StmtLoop:
			walkCalls(k.Body, call)
			walkCalls(k.Continuing, call)
		}
	}
}

// vertexInputs lists the @location inputs of a vertex entry point, flattening struct arguments.
func vertexInputs(mod *ir.Module, fn *ir.Function) []pipe.ShaderInput {
	var inputs []pipe.ShaderInput
	add := func(binding *ir.Binding, ty ir.TypeHandle) {
		if binding == nil {
			return
		}
		loc, ok := (*binding).(ir.LocationBinding)
		if !ok {
			return
		}
		inputs = append(inputs, pipe.ShaderInput{
			Semantic:      inputSemantic,
			SemanticIndex: loc.Location,
			Format:        vertexFormat(mod.Types[ty].Inner),
		})
	}
	for _, arg := range fn.Arguments {
		if st, ok := mod.Types[arg.Type].Inner.(ir.StructType); ok && arg.Binding == nil {
			for _, m := range st.Members {
				add(m.Binding, m.Type)
			}
			continue
		}
		add(arg.Binding, arg.Type)
	}
	slices.SortFunc(inputs, func(a, b pipe.ShaderInput) int { return cmp.Compare(a.SemanticIndex, b.SemanticIndex) })
	return inputs
}

var vertexFormats = map[ir.ScalarKind][5]gputypes.VertexFormat{
	ir.ScalarFloat: {1: gputypes.VertexFormatFloat32, 2: gputypes.VertexFormatFloat32x2, 3: gputypes.VertexFormatFloat32x3, 4: gputypes.VertexFormatFloat32x4},
	ir.ScalarUint:  {1: gputypes.VertexFormatUint32, 2: gputypes.VertexFormatUint32x2, 3: gputypes.VertexFormatUint32x3, 4: gputypes.VertexFormatUint32x4},
	ir.ScalarSint:  {1: gputypes.VertexFormatSint32, 2: gputypes.VertexFormatSint32x2, 3: gputypes.VertexFormatSint32x3, 4: gputypes.VertexFormatSint32x4},
}

// vertexFormat maps a scalar or vector input type to its vertex format. f16 vectors use the half formats.
func vertexFormat(inner ir.TypeInner) gputypes.VertexFormat {
	var scalar ir.ScalarType
	n := 1
	switch t := inner.(type) {
	case ir.ScalarType:
		scalar = t
	case ir.VectorType:
		scalar, n = t.Scalar, int(t.Size)
	default:
		return gputypes.VertexFormatUndefined
	}
	if scalar.Kind == ir.ScalarFloat && scalar.Width == 2 {
		switch n {
		case 2:
			return gputypes.VertexFormatFloat16x2
		case 4:
			return gputypes.VertexFormatFloat16x4
		}
		return gputypes.VertexFormatUndefined
	}
	return vertexFormats[scalar.Kind][n]
}

// typeSize is the byte size of a uniform type.
func typeSize(mod *ir.Module, h ir.TypeHandle) uint32 {
	switch t := mod.Types[h].Inner.(type) {
	case ir.ScalarType:
		return uint32(t.Width)
	case ir.VectorType:
		return uint32(t.Size) * uint32(t.Scalar.Width)
	case ir.MatrixType:
		rows := uint32(t.Rows)
		if rows == 3 {
			rows = 4
		}
		return uint32(t.Columns) * rows * uint32(t.Scalar.Width)
	case ir.ArrayType:
		if t.Size.Constant == nil {
			return 0
		}
		return *t.Size.Constant * t.Stride
	case ir.StructType:
		return t.Span
	}
	return 0
}

// elementStride is the element size of a storage buffer: the array stride, or the whole type otherwise.
func elementStride(mod *ir.Module, inner ir.TypeInner) uint32 {
	if a, ok := inner.(ir.ArrayType); ok {
		return a.Stride
	}
	if st, ok := inner.(ir.StructType); ok && len(st.Members) > 0 {
		last := st.Members[len(st.Members)-1]
		if a, ok := mod.Types[last.Type].Inner.(ir.ArrayType); ok && a.Size.Constant == nil {
			return a.Stride
		}
		return st.Span
	}
	return 0
}
