package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrFormat is returned when a texture format does not fit the requested texture kind.
var ErrFormat = errors.New("unsupported texture format")

// TextureDesc describes a 2D texture or surface.
type TextureDesc struct {
	Width  uint32
	Height uint32
	// Format defaults to RGBA8Unorm for color textures and Depth24PlusStencil8 for depth surfaces.
	Format gputypes.TextureFormat
	// MipLevels defaults to 1.
	MipLevels uint32
	// SampleCount defaults to 1.
	SampleCount uint32
	// Storage adds an unordered access view.
	Storage bool
}

// TextureKind is the role a texture was created for.
type TextureKind uint8

const (
	TextureSampled TextureKind = iota
	TextureRender
	TextureDepth
)

func (k TextureKind) String() string {
	switch k {
	case TextureSampled:
		return "texture"
	case TextureRender:
		return "render surface"
	case TextureDepth:
		return "depth surface"
	}
	return fmt.Sprintf("TextureKind(%d)", uint8(k))
}

// Texture is a GPU texture. Depending on its kind it binds as a shader resource, an unordered access view, a render
// target or a depth-stencil target; views a kind does not have report a zero handle.
type Texture interface {
	pipe.ShaderResource
	pipe.UnorderedAccess
	pipe.RenderSurface
	pipe.DepthSurface

	// Kind retrieves the role the texture was created for.
	//
	// Returns:
	//   - TextureKind: the texture kind
	Kind() TextureKind

	// Desc retrieves the description the texture was created with, defaults applied.
	//
	// Returns:
	//   - TextureDesc: the current description
	Desc() TextureDesc

	// Upload writes the top mip level through the factory queue. data must hold exactly one full image.
	//
	// Parameters:
	//   - data: tightly packed texels
	//
	// Returns:
	//   - error: ErrOutOfRange, ErrNoQueue or ErrReleased
	Upload(data []byte) error

	// Resize recreates the texture and its views at a new size. The old native objects go to the release queue
	// and the version is bumped.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: error if the new texture could not be created
	Resize(width, height uint32) error

	// Release retires the texture and queues its native objects for release.
	//
	// Returns:
	//   - error: pipe.ErrStillBound or pipe.ErrAlreadyReleased
	Release() error
}

type textureView struct {
	view   hal.TextureView
	handle uintptr
}

// texture is the unexported implementation of Texture.
type texture struct {
	pipe.BindableBase

	f    *factory
	kind TextureKind

	mu             sync.RWMutex
	desc           TextureDesc
	native         hal.Texture
	nativeHandle   uintptr
	srv            textureView
	uav            textureView
	rtv            textureView
	dsv            textureView
	dsvReadOnly    textureView
	allocatedBytes int64
}

var _ Texture = &texture{}

var bytesPerPixel = map[gputypes.TextureFormat]uint32{
	gputypes.TextureFormatR8Unorm:              1,
	gputypes.TextureFormatRGBA8Unorm:           4,
	gputypes.TextureFormatRGBA8UnormSrgb:       4,
	gputypes.TextureFormatBGRA8Unorm:           4,
	gputypes.TextureFormatBGRA8UnormSrgb:       4,
	gputypes.TextureFormatR32Float:             4,
	gputypes.TextureFormatRG32Float:            8,
	gputypes.TextureFormatRGBA32Float:          16,
	gputypes.TextureFormatDepth16Unorm:         2,
	gputypes.TextureFormatDepth24Plus:          4,
	gputypes.TextureFormatDepth24PlusStencil8:  4,
	gputypes.TextureFormatDepth32Float:         4,
	gputypes.TextureFormatDepth32FloatStencil8: 8,
}

// BytesPerPixel returns the texel size of format, 4 for formats the factory has no entry for.
func BytesPerPixel(format gputypes.TextureFormat) uint32 {
	if n, ok := bytesPerPixel[format]; ok {
		return n
	}
	return 4
}

// textureBytes sums the size of every mip level of desc.
func textureBytes(desc TextureDesc) int64 {
	var total int64
	w, h := desc.Width, desc.Height
	for range desc.MipLevels {
		total += int64(w) * int64(h) * int64(BytesPerPixel(desc.Format)) * int64(desc.SampleCount)
		w, h = max(w/2, 1), max(h/2, 1)
	}
	return total
}

func (k TextureKind) usage(desc TextureDesc) gputypes.TextureUsage {
	var u gputypes.TextureUsage
	switch k {
	case TextureSampled:
		u = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst
	case TextureRender:
		u = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc
	case TextureDepth:
		u = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	}
	if desc.Storage {
		u |= gputypes.TextureUsageStorageBinding
	}
	return u
}

// normalize applies the defaults of kind to desc and checks that its format fits the kind.
func (k TextureKind) normalize(desc TextureDesc) (TextureDesc, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return desc, ErrInvalidSize
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		desc.Format = gputypes.TextureFormatRGBA8Unorm
		if k == TextureDepth {
			desc.Format = gputypes.TextureFormatDepth24PlusStencil8
		}
	}
	if (k == TextureDepth) != desc.Format.IsDepthStencil() {
		return desc, fmt.Errorf("%s for %s: %w", desc.Format, k, ErrFormat)
	}
	if k == TextureDepth && desc.Storage {
		return desc, fmt.Errorf("storage %s: %w", k, ErrFormat)
	}
	return desc, nil
}

func (f *factory) newTexture(name string, kind TextureKind, desc TextureDesc) (Texture, error) {
	desc, err := kind.normalize(desc)
	if err != nil {
		return nil, wrapCreate(kind.String(), name, err)
	}
	t := &texture{f: f, kind: kind}
	t.SetName(name)
	if err := t.create(desc); err != nil {
		return nil, err
	}
	return t, nil
}

func (f *factory) CreateTexture2D(name string, desc TextureDesc) (Texture, error) {
	return f.newTexture(name, TextureSampled, desc)
}

func (f *factory) CreateRenderSurface(name string, desc TextureDesc) (Texture, error) {
	return f.newTexture(name, TextureRender, desc)
}

func (f *factory) CreateDepthSurface(name string, desc TextureDesc) (Texture, error) {
	return f.newTexture(name, TextureDepth, desc)
}

// create allocates the native texture and the views of its kind. Callers hold t.mu or own t exclusively.
func (t *texture) create(desc TextureDesc) error {
	d := t.f.device
	native, err := d.CreateTexture(&hal.TextureDescriptor{
		Label: t.f.label(t.Name()),
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: desc.MipLevels,
		SampleCount:   desc.SampleCount,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         t.kind.usage(desc),
	})
	if err != nil {
		return wrapCreate(t.kind.String(), t.Name(), err)
	}

	var views []*textureView
	fail := func(err error) error {
		for _, v := range views {
			t.f.unregister(v.handle)
			d.DestroyTextureView(v.view)
		}
		d.DestroyTexture(native)
		return wrapCreate(t.kind.String(), t.Name(), err)
	}
	makeView := func(dst *textureView, suffix string, aspect gputypes.TextureAspect) error {
		v, err := d.CreateTextureView(native, &hal.TextureViewDescriptor{
			Label:  t.f.label(t.Name() + suffix),
			Aspect: aspect,
		})
		if err != nil {
			return err
		}
		*dst = textureView{view: v, handle: t.f.register(v)}
		views = append(views, dst)
		return nil
	}

	var srv, uav, rtv, dsv, dsvReadOnly textureView
	aspect := gputypes.TextureAspectAll
	if t.kind == TextureDepth {
		aspect = gputypes.TextureAspectDepthOnly
	}
	if err := makeView(&srv, " (srv)", aspect); err != nil {
		return fail(err)
	}
	if desc.Storage {
		if err := makeView(&uav, " (uav)", gputypes.TextureAspectAll); err != nil {
			return fail(err)
		}
	}
	switch t.kind {
	case TextureRender:
		if err := makeView(&rtv, " (rtv)", gputypes.TextureAspectAll); err != nil {
			return fail(err)
		}
	case TextureDepth:
		if err := makeView(&dsv, " (dsv)", gputypes.TextureAspectAll); err != nil {
			return fail(err)
		}
		if err := makeView(&dsvReadOnly, " (dsv read-only)", gputypes.TextureAspectDepthOnly); err != nil {
			return fail(err)
		}
	}

	t.desc = desc
	t.native = native
	t.nativeHandle = t.f.register(native)
	t.srv, t.uav, t.rtv, t.dsv, t.dsvReadOnly = srv, uav, rtv, dsv, dsvReadOnly
	t.allocatedBytes = textureBytes(desc)
	t.f.allocate(t.Name(), t.allocatedBytes)
	return nil
}

// teardown packages the current native texture and views for the release queue. Callers hold t.mu.
func (t *texture) teardown() *halRelease {
	r := &halRelease{f: t.f, handles: []uintptr{t.nativeHandle}}
	for _, v := range []textureView{t.srv, t.uav, t.rtv, t.dsv, t.dsvReadOnly} {
		if v.view == nil {
			continue
		}
		view := v.view
		r.handles = append(r.handles, v.handle)
		r.destroy = append(r.destroy, func(d hal.Device) { d.DestroyTextureView(view) })
	}
	native := t.native
	r.destroy = append(r.destroy, func(d hal.Device) { d.DestroyTexture(native) })
	return r
}

func (t *texture) Refresh(pipe.BindSlot, *pipe.DeviceContext) error {
	if t.IsReleased() {
		return fmt.Errorf("bind %q: %w", t.Name(), ErrReleased)
	}
	return nil
}

func (t *texture) Kind() TextureKind { return t.kind }

func (t *texture) Desc() TextureDesc {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.desc
}

func (t *texture) Size() (width, height uint32) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.desc.Width, t.desc.Height
}

func (t *texture) Format() gputypes.TextureFormat { return t.Desc().Format }

func (t *texture) ResourceHandle() uintptr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.srv.handle
}

func (t *texture) UnorderedAccessHandle() uintptr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.uav.handle
}

func (t *texture) RenderTargetHandle() uintptr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rtv.handle
}

func (t *texture) DepthStencilHandle(readOnly bool) uintptr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if readOnly {
		return t.dsvReadOnly.handle
	}
	return t.dsv.handle
}

func (t *texture) Upload(data []byte) error {
	if t.f.queue == nil {
		return fmt.Errorf("upload %q: %w", t.Name(), ErrNoQueue)
	}
	if t.IsReleased() {
		return fmt.Errorf("upload %q: %w", t.Name(), ErrReleased)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	bpp := BytesPerPixel(t.desc.Format)
	want := int(t.desc.Width * t.desc.Height * bpp)
	if len(data) != want {
		return fmt.Errorf("upload %q: %d bytes for %d: %w", t.Name(), len(data), want, ErrOutOfRange)
	}
	err := t.f.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.native, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: t.desc.Width * bpp, RowsPerImage: t.desc.Height},
		&hal.Extent3D{Width: t.desc.Width, Height: t.desc.Height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("upload %q: %w", t.Name(), err)
	}
	return nil
}

func (t *texture) Resize(width, height uint32) error {
	if t.IsReleased() {
		return fmt.Errorf("resize %q: %w", t.Name(), ErrReleased)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if width == t.desc.Width && height == t.desc.Height {
		return nil
	}
	desc := t.desc
	desc.Width, desc.Height = width, height
	desc, err := t.kind.normalize(desc)
	if err != nil {
		return fmt.Errorf("resize %q: %w", t.Name(), err)
	}
	old, oldBytes := t.teardown(), t.allocatedBytes
	if err := t.create(desc); err != nil {
		return err
	}
	t.f.retire(t.Name(), oldBytes, old)
	t.BumpVersion()
	return nil
}

func (t *texture) Release() error {
	if err := t.Retire(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.f.retire(t.Name(), t.allocatedBytes, t.teardown())
	t.native = nil
	t.srv, t.uav, t.rtv, t.dsv, t.dsvReadOnly = textureView{}, textureView{}, textureView{}, textureView{}, textureView{}
	return nil
}
