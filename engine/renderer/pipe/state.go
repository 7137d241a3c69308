package pipe

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
)

// MaxRenderTargets is the number of independently blended render targets a blend state describes.
const MaxRenderTargets = 8

// RenderTargetBlend is the blend configuration of one render target.
type RenderTargetBlend struct {
	Enabled   bool
	Blend     gputypes.BlendState
	WriteMask gputypes.ColorWriteMask
}

// BlendDesc describes a native blend state object.
type BlendDesc struct {
	AlphaToCoverage bool
	// IndependentBlend uses every entry of RenderTargets; otherwise only entry 0 applies to all targets.
	IndependentBlend bool
	RenderTargets    [MaxRenderTargets]RenderTargetBlend
}

// DepthDesc describes a native depth-stencil state object.
type DepthDesc struct {
	DepthEnabled   bool
	StencilEnabled bool
	// State carries compare functions, write enable, stencil faces and masks.
	State gputypes.DepthStencilState
}

// FillMode selects solid or wireframe rasterization.
type FillMode uint8

const (
	FillSolid FillMode = iota
	FillWireframe
)

// RasterizerDesc describes a native rasterizer state object.
type RasterizerDesc struct {
	Fill                 FillMode
	Cull                 gputypes.CullMode
	FrontFace            gputypes.FrontFace
	DepthBias            int32
	DepthBiasClamp       float32
	SlopeScaledDepthBias float32
	DepthClip            bool
	Scissor              bool
	Multisample          bool
	AntialiasedLines     bool
}

// stateObject is an immutable-once-created native state with a lazily compiled native object.
// Editing the description marks it dirty; the next Refresh recreates the native object and bumps the version.
// States are shared between contexts recording on different goroutines, so the native object is guarded.
type stateObject[D comparable] struct {
	BindableBase
	nativeMu sync.Mutex
	desc     D
	native   NativeObject
	dirty    bool
	create   func(NativeDevice, *D) (NativeObject, error)
}

// Desc returns a copy of the description.
func (s *stateObject[D]) Desc() D {
	s.nativeMu.Lock()
	defer s.nativeMu.Unlock()
	return s.desc
}

// SetDesc replaces the description. An identical description is a no-op.
func (s *stateObject[D]) SetDesc(desc D) {
	s.nativeMu.Lock()
	defer s.nativeMu.Unlock()
	if desc == s.desc {
		return
	}
	s.desc = desc
	s.dirty = true
}

// Native returns the non-owning native object, nil until first bound.
func (s *stateObject[D]) Native() NativeObject {
	s.nativeMu.Lock()
	defer s.nativeMu.Unlock()
	return s.native
}

func (s *stateObject[D]) Refresh(_ BindSlot, ctx *DeviceContext) error {
	s.nativeMu.Lock()
	defer s.nativeMu.Unlock()
	if s.native != nil && !s.dirty {
		return nil
	}
	obj, err := s.create(ctx.device.native, &s.desc)
	if err != nil {
		return fmt.Errorf("create state %q: %w", s.Name(), err)
	}
	if s.native != nil {
		ctx.device.MarkForRelease(nativeRelease{s.native})
	}
	s.native = obj
	s.dirty = false
	s.BumpVersion()
	return nil
}

// Release retires the state and queues its native object on the device's release queue.
//
// Parameters:
//   - d: the device that created the native object
//
// Returns:
//   - error: ErrStillBound or ErrAlreadyReleased
func (s *stateObject[D]) Release(d *Device) error {
	if err := s.Retire(); err != nil {
		return err
	}
	s.nativeMu.Lock()
	defer s.nativeMu.Unlock()
	if s.native != nil {
		d.MarkForRelease(nativeRelease{s.native})
		s.native = nil
	}
	return nil
}

// BlendState is a bindable blend state object.
type BlendState struct {
	stateObject[BlendDesc]
}

// DepthState is a bindable depth-stencil state object.
type DepthState struct {
	stateObject[DepthDesc]
}

// RasterizerState is a bindable rasterizer state object.
type RasterizerState struct {
	stateObject[RasterizerDesc]
}

var (
	_ Bindable = &BlendState{}
	_ Bindable = &DepthState{}
	_ Bindable = &RasterizerState{}
)

// NewBlendState creates a blend state. The native object is created when it is first bound.
func NewBlendState(name string, desc BlendDesc) *BlendState {
	s := &BlendState{}
	s.name = name
	s.desc = desc
	s.create = func(d NativeDevice, desc *BlendDesc) (NativeObject, error) { return d.CreateBlendState(desc) }
	return s
}

// NewDepthState creates a depth-stencil state. The native object is created when it is first bound.
func NewDepthState(name string, desc DepthDesc) *DepthState {
	s := &DepthState{}
	s.name = name
	s.desc = desc
	s.create = func(d NativeDevice, desc *DepthDesc) (NativeObject, error) { return d.CreateDepthStencilState(desc) }
	return s
}

// NewRasterizerState creates a rasterizer state. The native object is created when it is first bound.
func NewRasterizerState(name string, desc RasterizerDesc) *RasterizerState {
	s := &RasterizerState{}
	s.name = name
	s.desc = desc
	s.create = func(d NativeDevice, desc *RasterizerDesc) (NativeObject, error) { return d.CreateRasterizerState(desc) }
	return s
}

// nativeRelease adapts a NativeObject to the release queue.
type nativeRelease struct {
	obj NativeObject
}

func (r nativeRelease) ReleaseNative() { r.obj.Release() }
