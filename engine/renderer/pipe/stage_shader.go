package pipe

import (
	"github.com/gogpu/gputypes"
)

// ShaderStage binds one shader program with its constant buffers, resources and samplers.
// The compute stage additionally binds unordered access views.
type ShaderStage struct {
	ctx  *DeviceContext
	kind ShaderKind

	program         *Slot[*ShaderProgram]
	constantBuffers *SlotGroup[ConstantBuffer]
	resources       *SlotGroup[ShaderResource]
	samplers        *SlotGroup[Sampler]
	unorderedAccess *SlotGroup[UnorderedAccess]
}

func newShaderStage(ctx *DeviceContext, kind ShaderKind, limits gputypes.Limits) *ShaderStage {
	s := &ShaderStage{ctx: ctx, kind: kind}
	prefix := kind.String() + " "

	s.program = newSlot[*ShaderProgram](ctx, prefix+"program", 0, BindInput, func(int) {
		ctx.native.SetShader(kind, nil)
	})
	s.constantBuffers = newSlotGroup[ConstantBuffer](ctx, prefix+"constant buffer",
		int(limits.MaxUniformBuffersPerShaderStage), BindInput, func(i int) {
			ctx.native.SetConstantBuffers(kind, i, []ConstantBuffer{nil})
		})
	s.resources = newSlotGroup[ShaderResource](ctx, prefix+"resource",
		int(limits.MaxSampledTexturesPerShaderStage+limits.MaxStorageBuffersPerShaderStage), BindInput, func(i int) {
			ctx.native.SetShaderResources(kind, i, []ShaderResource{nil})
		})
	s.samplers = newSlotGroup[Sampler](ctx, prefix+"sampler",
		int(limits.MaxSamplersPerShaderStage), BindInput, func(i int) {
			ctx.native.SetSamplers(kind, i, []Sampler{nil})
		})
	if kind == ShaderCompute {
		s.unorderedAccess = newSlotGroup[UnorderedAccess](ctx, prefix+"unordered access",
			int(limits.MaxStorageBuffersPerShaderStage+limits.MaxStorageTexturesPerShaderStage), BindOutput, func(i int) {
				ctx.native.SetUnorderedAccessViews(i, []UnorderedAccess{nil})
			})
	}
	return s
}

func (s *ShaderStage) Kind() ShaderKind { return s.kind }

// Program returns the requested program.
func (s *ShaderStage) Program() *ShaderProgram { return s.program.requested }

// SetProgram requests a program, nil to empty the stage.
func (s *ShaderStage) SetProgram(p *ShaderProgram) { s.program.Set(p) }

// BoundProgram returns the program the device holds.
func (s *ShaderStage) BoundProgram() *ShaderProgram { return s.program.bound }

func (s *ShaderStage) ConstantBuffers() *SlotGroup[ConstantBuffer] { return s.constantBuffers }
func (s *ShaderStage) Resources() *SlotGroup[ShaderResource]       { return s.resources }
func (s *ShaderStage) Samplers() *SlotGroup[Sampler]               { return s.samplers }

// UnorderedAccess returns the unordered access group, nil outside the compute stage.
func (s *ShaderStage) UnorderedAccess() *SlotGroup[UnorderedAccess] { return s.unorderedAccess }

// Apply requests the program and every bind point of a composition. A nil composition empties the program slot
// and leaves resource slots as they are.
func (s *ShaderStage) Apply(comp ShaderComposition) {
	if comp == nil {
		if s.program.requested != nil {
			s.program.Clear()
		}
		return
	}
	s.program.Set(comp.Program())
	for _, bp := range comp.ConstantBuffers() {
		s.constantBuffers.Set(bp.Register, bp.Value)
	}
	for _, bp := range comp.Resources() {
		s.resources.Set(bp.Register, bp.Value)
	}
	for _, bp := range comp.Samplers() {
		s.samplers.Set(bp.Register, bp.Value)
	}
	if s.unorderedAccess != nil {
		for _, bp := range comp.UnorderedAccess() {
			s.unorderedAccess.Set(bp.Register, bp.Value)
		}
	}
}

// Refresh sends the program and the changed range of every group to the device.
func (s *ShaderStage) Refresh() {
	native := s.ctx.native
	if s.program.Bind() {
		native.SetShader(s.kind, s.program.bound.Native())
	}
	if s.constantBuffers.BindAll() {
		first, values := s.constantBuffers.ChangedRange()
		native.SetConstantBuffers(s.kind, first, values)
	}
	if s.resources.BindAll() {
		first, values := s.resources.ChangedRange()
		native.SetShaderResources(s.kind, first, values)
	}
	if s.samplers.BindAll() {
		first, values := s.samplers.ChangedRange()
		native.SetSamplers(s.kind, first, values)
	}
	if s.unorderedAccess != nil && s.unorderedAccess.BindAll() {
		first, values := s.unorderedAccess.ChangedRange()
		native.SetUnorderedAccessViews(first, values)
	}
}

// Validate checks every bind point of the composition ended up bound.
//
// Parameters:
//   - comp: the composition applied before Refresh, may be nil
//
// Returns:
//   - ValidationResult: the missing-binding flags
func (s *ShaderStage) Validate(comp ShaderComposition) ValidationResult {
	if comp == nil {
		return ValidationSuccessful
	}
	var result ValidationResult
	for _, bp := range comp.ConstantBuffers() {
		if !boundAt(s.constantBuffers, bp.Register) {
			result |= ValidationMissingConstantBuffer
		}
	}
	for _, bp := range comp.Resources() {
		if !boundAt(s.resources, bp.Register) {
			result |= ValidationMissingResource
		}
	}
	for _, bp := range comp.Samplers() {
		if !boundAt(s.samplers, bp.Register) {
			result |= ValidationMissingSampler
		}
	}
	if s.unorderedAccess != nil {
		for _, bp := range comp.UnorderedAccess() {
			if !boundAt(s.unorderedAccess, bp.Register) {
				result |= ValidationMissingUnorderedAccess
			}
		}
	}
	return result
}

func boundAt[T comparable](g *SlotGroup[T], register int) bool {
	if register < 0 || register >= g.Len() {
		return false
	}
	return !isZero(g.slots[register].bound)
}

func (s *ShaderStage) forget() {
	s.program.forget()
	s.constantBuffers.forget()
	s.resources.forget()
	s.samplers.forget()
	if s.unorderedAccess != nil {
		s.unorderedAccess.forget()
	}
}
