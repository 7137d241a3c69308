package native

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
)

// Op identifies a recorded native call.
type Op uint8

const (
	OpSetBlendState Op = iota
	OpSetBlendFactor
	OpSetSampleMask
	OpSetDepthStencilState
	OpSetStencilReference
	OpSetRasterizerState
	OpSetViewports
	OpSetScissorRects
	OpSetPrimitiveTopology
	OpSetInputLayout
	OpSetVertexBuffers
	OpSetIndexBuffer
	OpSetShader
	OpSetConstantBuffers
	OpSetShaderResources
	OpSetSamplers
	OpSetUnorderedAccessViews
	OpSetRenderTargets
	OpClearRenderTarget
	OpClearDepthStencil
	OpDraw
	OpDrawInstanced
	OpDrawIndexed
	OpDrawIndexedInstanced
	OpDispatch
	OpExecuteCommandList
	opCount
)

var opNames = [opCount]string{
	OpSetBlendState:           "SetBlendState",
	OpSetBlendFactor:          "SetBlendFactor",
	OpSetSampleMask:           "SetSampleMask",
	OpSetDepthStencilState:    "SetDepthStencilState",
	OpSetStencilReference:     "SetStencilReference",
	OpSetRasterizerState:      "SetRasterizerState",
	OpSetViewports:            "SetViewports",
	OpSetScissorRects:         "SetScissorRects",
	OpSetPrimitiveTopology:    "SetPrimitiveTopology",
	OpSetInputLayout:          "SetInputLayout",
	OpSetVertexBuffers:        "SetVertexBuffers",
	OpSetIndexBuffer:          "SetIndexBuffer",
	OpSetShader:               "SetShader",
	OpSetConstantBuffers:      "SetConstantBuffers",
	OpSetShaderResources:      "SetShaderResources",
	OpSetSamplers:             "SetSamplers",
	OpSetUnorderedAccessViews: "SetUnorderedAccessViews",
	OpSetRenderTargets:        "SetRenderTargets",
	OpClearRenderTarget:       "ClearRenderTarget",
	OpClearDepthStencil:       "ClearDepthStencil",
	OpDraw:                    "Draw",
	OpDrawInstanced:           "DrawInstanced",
	OpDrawIndexed:             "DrawIndexed",
	OpDrawIndexedInstanced:    "DrawIndexedInstanced",
	OpDispatch:                "Dispatch",
	OpExecuteCommandList:      "ExecuteCommandList",
}

func (o Op) String() string {
	if o < opCount {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// IsDraw reports whether the op issues work rather than changing state.
func (o Op) IsDraw() bool {
	switch o {
	case OpDraw, OpDrawInstanced, OpDrawIndexed, OpDrawIndexedInstanced, OpDispatch:
		return true
	}
	return false
}

// Command is one recorded native call.
type Command struct {
	Op Op
	// Stage is the shader stage of per-stage calls.
	Stage pipe.ShaderKind
	// First is the first slot of ranged calls.
	First int
	// Object is the state object, shader or input layout argument, nil for clears.
	Object pipe.NativeObject
	// Payload is the call's remaining argument: a slice of bindables, viewports, rectangles, a color or a value.
	Payload any
	// Args are the integer arguments of draws, dispatches and scalar setters.
	Args []int64

	apply func(pipe.NativeContext)
}

func (c Command) String() string {
	switch {
	case c.Op.IsDraw():
		return fmt.Sprintf("%s%v", c.Op, c.Args)
	case c.Op == OpSetShader:
		return fmt.Sprintf("%s[%s]", c.Op, c.Stage)
	case c.Op == OpSetConstantBuffers, c.Op == OpSetShaderResources, c.Op == OpSetSamplers:
		return fmt.Sprintf("%s[%s@%d]", c.Op, c.Stage, c.First)
	case c.Op == OpSetVertexBuffers, c.Op == OpSetUnorderedAccessViews:
		return fmt.Sprintf("%s[@%d]", c.Op, c.First)
	default:
		return c.Op.String()
	}
}

// CommandList is a finished deferred recording.
type CommandList struct {
	commands []Command
	released bool
}

var _ pipe.CommandList = &CommandList{}

func (l *CommandList) Len() int { return len(l.commands) }

// Commands returns the recorded commands.
func (l *CommandList) Commands() []Command { return l.commands }

// Count returns how many recorded commands have the given op.
func (l *CommandList) Count(op Op) int {
	n := 0
	for _, c := range l.commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Released reports whether Release was called.
func (l *CommandList) Released() bool { return l.released }

func (l *CommandList) Release() {
	l.released = true
	l.commands = nil
}

// Replay issues every recorded call on target in order.
//
// Parameters:
//   - target: the context receiving the calls
//
// Returns:
//   - error: ErrListReleased if the list was released
func (l *CommandList) Replay(target pipe.NativeContext) error {
	if l.released {
		return ErrListReleased
	}
	for _, c := range l.commands {
		c.apply(target)
	}
	return nil
}
