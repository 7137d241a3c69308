package resource

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// SamplerDesc describes a sampler state.
type SamplerDesc struct {
	AddressU     gputypes.AddressMode
	AddressV     gputypes.AddressMode
	AddressW     gputypes.AddressMode
	MagFilter    gputypes.FilterMode
	MinFilter    gputypes.FilterMode
	MipmapFilter gputypes.FilterMode
	LodMinClamp  float32
	LodMaxClamp  float32
	// Compare makes a comparison sampler for depth textures. Undefined disables comparison.
	Compare gputypes.CompareFunction
}

// DefaultSamplerDesc returns a trilinear clamp-to-edge sampler.
func DefaultSamplerDesc() SamplerDesc {
	return SamplerDesc{
		AddressU:     gputypes.AddressModeClampToEdge,
		AddressV:     gputypes.AddressModeClampToEdge,
		AddressW:     gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
		LodMaxClamp:  32,
	}
}

var addressModes = map[string]gputypes.AddressMode{
	"clamp":  gputypes.AddressModeClampToEdge,
	"repeat": gputypes.AddressModeRepeat,
	"wrap":   gputypes.AddressModeRepeat,
	"mirror": gputypes.AddressModeMirrorRepeat,
}

var filterModes = map[string]gputypes.FilterMode{
	"nearest": gputypes.FilterModeNearest,
	"point":   gputypes.FilterModeNearest,
	"linear":  gputypes.FilterModeLinear,
}

// ParseSamplerPreset builds a sampler description from a "<filter>-<address>" name such as "linear-clamp" or
// "point-wrap". Either half may be omitted, falling back to DefaultSamplerDesc.
func ParseSamplerPreset(name string) (SamplerDesc, error) {
	desc := DefaultSamplerDesc()
	if name == "" || name == "default" {
		return desc, nil
	}
	filter, address, _ := strings.Cut(strings.ToLower(name), "-")
	if a, ok := addressModes[filter]; ok && address == "" {
		filter, address = "", ""
		desc.AddressU, desc.AddressV, desc.AddressW = a, a, a
	}
	if filter != "" {
		m, ok := filterModes[filter]
		if !ok {
			return desc, fmt.Errorf("sampler preset %q: unknown filter %q", name, filter)
		}
		desc.MagFilter, desc.MinFilter, desc.MipmapFilter = m, m, m
	}
	if address != "" {
		a, ok := addressModes[address]
		if !ok {
			return desc, fmt.Errorf("sampler preset %q: unknown address mode %q", name, address)
		}
		desc.AddressU, desc.AddressV, desc.AddressW = a, a, a
	}
	return desc, nil
}

// Sampler is a hal sampler that can occupy a shader sampler slot.
type Sampler interface {
	pipe.Sampler

	// Desc retrieves the description the sampler was created with.
	//
	// Returns:
	//   - SamplerDesc: the sampler description
	Desc() SamplerDesc

	// Release retires the sampler and queues its native sampler for release.
	//
	// Returns:
	//   - error: pipe.ErrStillBound or pipe.ErrAlreadyReleased
	Release() error
}

// sampler is the unexported implementation of Sampler.
type sampler struct {
	pipe.BindableBase

	f    *factory
	desc SamplerDesc

	mu     sync.RWMutex
	native hal.Sampler
	handle uintptr
}

var _ Sampler = &sampler{}

func (f *factory) CreateSampler(name string, desc SamplerDesc) (Sampler, error) {
	native, err := f.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        f.label(name),
		AddressModeU: desc.AddressU,
		AddressModeV: desc.AddressV,
		AddressModeW: desc.AddressW,
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		MipmapFilter: desc.MipmapFilter,
		LodMinClamp:  desc.LodMinClamp,
		LodMaxClamp:  desc.LodMaxClamp,
		Compare:      desc.Compare,
	})
	if err != nil {
		return nil, wrapCreate("sampler", name, err)
	}
	s := &sampler{f: f, desc: desc, native: native, handle: f.register(native)}
	s.SetName(name)
	return s, nil
}

func (s *sampler) Refresh(pipe.BindSlot, *pipe.DeviceContext) error {
	if s.IsReleased() {
		return fmt.Errorf("bind %q: %w", s.Name(), ErrReleased)
	}
	return nil
}

func (s *sampler) Desc() SamplerDesc { return s.desc }

func (s *sampler) NativeHandle() uintptr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

func (s *sampler) Release() error {
	if err := s.Retire(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	native := s.native
	s.f.retire(s.Name(), 0, &halRelease{
		f:       s.f,
		handles: []uintptr{s.handle},
		destroy: []func(hal.Device){func(d hal.Device) { d.DestroySampler(native) }},
	})
	s.native = nil
	s.handle = 0
	return nil
}
