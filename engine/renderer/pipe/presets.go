package pipe

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// BlendPreset names a blend state every device registers at creation.
type BlendPreset uint8

const (
	BlendDefault BlendPreset = iota
	BlendAlpha
	BlendPreMultiplied
	BlendAdditive
)

// DepthPreset names a depth-stencil state every device registers at creation.
type DepthPreset uint8

const (
	DepthDefault DepthPreset = iota
	DepthReadOnly
	DepthDisabled
	DepthStencilWrite
)

// RasterizerPreset names a rasterizer state every device registers at creation.
type RasterizerPreset uint8

const (
	RasterDefault RasterizerPreset = iota
	RasterNoCulling
	RasterWireframe
	RasterScissorTest
	RasterMultisample
)

var blendPresetNames = map[string]BlendPreset{
	"default":       BlendDefault,
	"alpha":         BlendAlpha,
	"premultiplied": BlendPreMultiplied,
	"additive":      BlendAdditive,
}

var depthPresetNames = map[string]DepthPreset{
	"default":       DepthDefault,
	"read-only":     DepthReadOnly,
	"disabled":      DepthDisabled,
	"stencil-write": DepthStencilWrite,
}

var rasterPresetNames = map[string]RasterizerPreset{
	"default":     RasterDefault,
	"no-culling":  RasterNoCulling,
	"wireframe":   RasterWireframe,
	"scissor":     RasterScissorTest,
	"multisample": RasterMultisample,
}

// ParseBlendPreset resolves a blend preset name.
func ParseBlendPreset(name string) (BlendPreset, error) {
	return parsePreset(blendPresetNames, "blend", name)
}

// ParseDepthPreset resolves a depth preset name.
func ParseDepthPreset(name string) (DepthPreset, error) {
	return parsePreset(depthPresetNames, "depth", name)
}

// ParseRasterizerPreset resolves a rasterizer preset name.
func ParseRasterizerPreset(name string) (RasterizerPreset, error) {
	return parsePreset(rasterPresetNames, "rasterizer", name)
}

func parsePreset[P any](names map[string]P, kind, name string) (P, error) {
	if p, ok := names[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p, nil
	}
	var zero P
	return zero, fmt.Errorf("unknown %s preset %q", kind, name)
}

func opaqueTarget(blend gputypes.BlendState, enabled bool) RenderTargetBlend {
	return RenderTargetBlend{Enabled: enabled, Blend: blend, WriteMask: gputypes.ColorWriteMaskAll}
}

func blendDescFor(rt RenderTargetBlend) BlendDesc {
	var d BlendDesc
	for i := range d.RenderTargets {
		d.RenderTargets[i] = rt
	}
	return d
}

func newBlendPresets() map[BlendPreset]*BlendState {
	additive := gputypes.BlendState{
		Color: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorOne, DstFactor: gputypes.BlendFactorOne, Operation: gputypes.BlendOperationAdd},
		Alpha: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorOne, DstFactor: gputypes.BlendFactorOne, Operation: gputypes.BlendOperationAdd},
	}
	return map[BlendPreset]*BlendState{
		BlendDefault:       NewBlendState("preset/blend/default", blendDescFor(opaqueTarget(gputypes.BlendStateReplace(), false))),
		BlendAlpha:         NewBlendState("preset/blend/alpha", blendDescFor(opaqueTarget(gputypes.BlendStateAlpha(), true))),
		BlendPreMultiplied: NewBlendState("preset/blend/premultiplied", blendDescFor(opaqueTarget(gputypes.BlendStatePremultiplied(), true))),
		BlendAdditive:      NewBlendState("preset/blend/additive", blendDescFor(opaqueTarget(additive, true))),
	}
}

func newDepthPresets(format gputypes.TextureFormat) map[DepthPreset]*DepthState {
	base := gputypes.DefaultDepthStencilState(format)

	readOnly := base
	readOnly.DepthWriteEnabled = false

	disabled := base
	disabled.DepthWriteEnabled = false
	disabled.DepthCompare = gputypes.CompareFunctionAlways

	stencil := base
	stencil.StencilFront = gputypes.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      gputypes.StencilOperationKeep,
		DepthFailOp: gputypes.StencilOperationKeep,
		PassOp:      gputypes.StencilOperationReplace,
	}
	stencil.StencilBack = stencil.StencilFront

	return map[DepthPreset]*DepthState{
		DepthDefault:      NewDepthState("preset/depth/default", DepthDesc{DepthEnabled: true, State: base}),
		DepthReadOnly:     NewDepthState("preset/depth/read-only", DepthDesc{DepthEnabled: true, State: readOnly}),
		DepthDisabled:     NewDepthState("preset/depth/disabled", DepthDesc{State: disabled}),
		DepthStencilWrite: NewDepthState("preset/depth/stencil-write", DepthDesc{DepthEnabled: true, StencilEnabled: true, State: stencil}),
	}
}

func newRasterizerPresets() map[RasterizerPreset]*RasterizerState {
	base := RasterizerDesc{
		Fill:      FillSolid,
		Cull:      gputypes.CullModeBack,
		FrontFace: gputypes.FrontFaceCW,
		DepthClip: true,
	}

	noCull := base
	noCull.Cull = gputypes.CullModeNone

	wire := noCull
	wire.Fill = FillWireframe

	scissor := base
	scissor.Scissor = true

	msaa := base
	msaa.Multisample = true
	msaa.AntialiasedLines = true

	return map[RasterizerPreset]*RasterizerState{
		RasterDefault:     NewRasterizerState("preset/raster/default", base),
		RasterNoCulling:   NewRasterizerState("preset/raster/no-culling", noCull),
		RasterWireframe:   NewRasterizerState("preset/raster/wireframe", wire),
		RasterScissorTest: NewRasterizerState("preset/raster/scissor", scissor),
		RasterMultisample: NewRasterizerState("preset/raster/multisample", msaa),
	}
}

// rasterizerPresetFor picks the default rasterizer preset matching the active conditions.
func rasterizerPresetFor(c StateConditions) RasterizerPreset {
	switch {
	case c&ConditionScissorTest != 0:
		return RasterScissorTest
	case c&ConditionMultisample != 0:
		return RasterMultisample
	default:
		return RasterDefault
	}
}
