package pipe

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// BindType is the direction a slot uses its bindable in.
// A bindable may be held by several slots of one BindType, never by both at once on the same context.
type BindType uint8

const (
	// BindInput slots read from the bindable (vertex buffers, shader resources, constant buffers, states).
	BindInput BindType = iota
	// BindOutput slots write to the bindable (render surfaces, depth surfaces, unordered access views).
	BindOutput
)

func (t BindType) String() string {
	if t == BindOutput {
		return "output"
	}
	return "input"
}

// ShaderKind identifies a programmable pipeline stage.
type ShaderKind uint8

const (
	ShaderVertex ShaderKind = iota
	ShaderHull
	ShaderDomain
	ShaderGeometry
	ShaderPixel
	ShaderCompute

	shaderKindCount
)

// GraphicsShaderKinds lists the stages refreshed for a draw call, in pipeline order.
var GraphicsShaderKinds = []ShaderKind{ShaderVertex, ShaderHull, ShaderDomain, ShaderGeometry, ShaderPixel}

var shaderKindNames = map[ShaderKind]string{
	ShaderVertex:   "vertex",
	ShaderHull:     "hull",
	ShaderDomain:   "domain",
	ShaderGeometry: "geometry",
	ShaderPixel:    "pixel",
	ShaderCompute:  "compute",
}

func (k ShaderKind) String() string {
	if n, ok := shaderKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("ShaderKind(%d)", uint8(k))
}

// ParseShaderKind resolves a stage name such as "vertex" or "pixel".
func ParseShaderKind(name string) (ShaderKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range shaderKindNames {
		if n == name {
			return k, nil
		}
	}
	switch name {
	case "fragment", "ps":
		return ShaderPixel, nil
	case "vs":
		return ShaderVertex, nil
	case "cs":
		return ShaderCompute, nil
	}
	return 0, fmt.Errorf("unknown shader stage %q", name)
}

// PrimitiveTopology is the input assembler topology of a draw call.
// The zero value is undefined and fails validation.
type PrimitiveTopology uint8

const (
	TopologyUndefined PrimitiveTopology = iota
	TopologyPointList
	TopologyLineList
	TopologyLineStrip
	TopologyTriangleList
	TopologyTriangleStrip
)

var topologyToGPU = map[PrimitiveTopology]gputypes.PrimitiveTopology{
	TopologyPointList:     gputypes.PrimitiveTopologyPointList,
	TopologyLineList:      gputypes.PrimitiveTopologyLineList,
	TopologyLineStrip:     gputypes.PrimitiveTopologyLineStrip,
	TopologyTriangleList:  gputypes.PrimitiveTopologyTriangleList,
	TopologyTriangleStrip: gputypes.PrimitiveTopologyTriangleStrip,
}

// GPU maps the topology onto its gputypes value. ok is false for TopologyUndefined.
func (t PrimitiveTopology) GPU() (gputypes.PrimitiveTopology, bool) {
	v, ok := topologyToGPU[t]
	return v, ok
}

func (t PrimitiveTopology) String() string {
	if v, ok := t.GPU(); ok {
		return v.String()
	}
	return "undefined"
}

// StateConditions selects a state-bank variant of a material pass.
type StateConditions uint32

const (
	ConditionNone         StateConditions = 0
	ConditionMultisample  StateConditions = 1 << 0
	ConditionScissorTest  StateConditions = 1 << 1
	ConditionAlphaToCover StateConditions = 1 << 2
)

var conditionNames = []struct {
	c    StateConditions
	name string
}{
	{ConditionMultisample, "multisample"},
	{ConditionScissorTest, "scissor"},
	{ConditionAlphaToCover, "alpha-to-coverage"},
}

func (c StateConditions) String() string {
	if c == ConditionNone {
		return "none"
	}
	var parts []string
	for _, n := range conditionNames {
		if c&n.c != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseStateConditions parses a "|" or "," separated list of condition names. An empty string or "none" is ConditionNone.
func ParseStateConditions(s string) (StateConditions, error) {
	var c StateConditions
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || part == "none" {
			continue
		}
		found := false
		for _, n := range conditionNames {
			if n.name == part {
				c |= n.c
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown state condition %q", part)
		}
	}
	return c, nil
}

// DepthWritePermission controls how the output merger binds the depth surface.
type DepthWritePermission uint8

const (
	// DepthWriteEnabled binds the writable depth view.
	DepthWriteEnabled DepthWritePermission = iota
	// DepthWriteReadOnly binds the read-only depth view so the surface can also be sampled.
	DepthWriteReadOnly
	// DepthWriteDisabled binds no depth surface at all.
	DepthWriteDisabled
)

func (p DepthWritePermission) String() string {
	switch p {
	case DepthWriteReadOnly:
		return "read-only"
	case DepthWriteDisabled:
		return "disabled"
	default:
		return "read-write"
	}
}

// ClearFlags selects the aspects cleared by ClearDepth.
type ClearFlags uint8

const (
	ClearFlagDepth ClearFlags = 1 << iota
	ClearFlagStencil
)
