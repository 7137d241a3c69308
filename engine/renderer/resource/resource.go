// Package resource creates the GPU resources the pipeline binds: buffers, textures, render and depth surfaces and
// samplers. Every resource is a pipe.Bindable backed by hal objects. Allocations feed the device's VRAM counter and
// teardown goes through the device's deferred-release queue, so a resource may be released from any goroutine
// while a frame still references its native objects.
package resource

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

var (
	// ErrReleased is returned when binding or writing a resource that was released.
	ErrReleased = errors.New("resource was released")
	// ErrNoQueue is returned by writes on a factory created without a queue.
	ErrNoQueue = errors.New("factory has no queue")
	// ErrInvalidSize is returned for zero-sized buffers and textures.
	ErrInvalidSize = errors.New("invalid resource size")
	// ErrOutOfRange is returned by writes past the end of a buffer.
	ErrOutOfRange = errors.New("write out of range")
)

// Factory creates hal-backed resources for one pipe.Device.
type Factory interface {
	// Device retrieves the pipeline device whose VRAM counter and release queue the factory feeds.
	//
	// Returns:
	//   - *pipe.Device: the pipeline device
	Device() *pipe.Device

	// Resolve looks up the hal object behind a native handle handed out by a resource.
	// Native backends call it to turn slot values into API objects.
	//
	// Parameters:
	//   - handle: a handle returned by NativeHandle, ResourceHandle, RenderTargetHandle and friends
	//
	// Returns:
	//   - any: the hal.Buffer, hal.TextureView or hal.Sampler
	//   - bool: false if the handle is unknown or its object was destroyed
	Resolve(handle uintptr) (any, bool)

	// LiveHandles retrieves the number of registered native handles.
	//
	// Returns:
	//   - int: the live handle count
	LiveHandles() int

	// CreateVertexBuffer creates a vertex buffer holding data.
	//
	// Parameters:
	//   - name: the debug name
	//   - layout: the layout of one vertex
	//   - data: the initial contents, its length is the buffer size
	//
	// Returns:
	//   - Buffer: the buffer
	//   - error: error if the buffer could not be created
	CreateVertexBuffer(name string, layout pipe.VertexLayout, data []byte) (Buffer, error)

	// CreateIndexBuffer creates an index buffer holding data.
	//
	// Parameters:
	//   - name: the debug name
	//   - format: the index format
	//   - data: the initial contents, its length is the buffer size
	//
	// Returns:
	//   - Buffer: the buffer
	//   - error: error if the buffer could not be created
	CreateIndexBuffer(name string, format gputypes.IndexFormat, data []byte) (Buffer, error)

	// CreateConstantBuffer creates a uniform buffer of size bytes, rounded up to 16.
	//
	// Parameters:
	//   - name: the debug name
	//   - size: the size in bytes
	//
	// Returns:
	//   - Buffer: the buffer
	//   - error: error if the buffer could not be created
	CreateConstantBuffer(name string, size uint64) (Buffer, error)

	// CreateStructuredBuffer creates a storage buffer of count elements of stride bytes.
	// It binds as a shader resource and as an unordered access view.
	//
	// Parameters:
	//   - name: the debug name
	//   - stride: the element size in bytes
	//   - count: the element count
	//
	// Returns:
	//   - Buffer: the buffer
	//   - error: error if the buffer could not be created
	CreateStructuredBuffer(name string, stride uint32, count uint32) (Buffer, error)

	// CreateTexture2D creates a sampled 2D texture.
	//
	// Parameters:
	//   - name: the debug name
	//   - desc: the texture description
	//
	// Returns:
	//   - Texture: the texture
	//   - error: error if the texture could not be created
	CreateTexture2D(name string, desc TextureDesc) (Texture, error)

	// CreateRenderSurface creates a render target that can also be sampled.
	//
	// Parameters:
	//   - name: the debug name
	//   - desc: the surface description
	//
	// Returns:
	//   - Texture: the surface
	//   - error: error if the surface could not be created
	CreateRenderSurface(name string, desc TextureDesc) (Texture, error)

	// CreateDepthSurface creates a depth-stencil target with writable and read-only views.
	//
	// Parameters:
	//   - name: the debug name
	//   - desc: the surface description, Format must be a depth format
	//
	// Returns:
	//   - Texture: the depth surface
	//   - error: error if the surface could not be created
	CreateDepthSurface(name string, desc TextureDesc) (Texture, error)

	// CreateSampler creates a sampler state.
	//
	// Parameters:
	//   - name: the debug name
	//   - desc: the sampler description
	//
	// Returns:
	//   - Sampler: the sampler
	//   - error: error if the sampler could not be created
	CreateSampler(name string, desc SamplerDesc) (Sampler, error)

	// WriteBuffers uploads every write through the factory queue.
	//
	// Parameters:
	//   - writes: the writes to apply in order
	//
	// Returns:
	//   - error: the joined errors of failed writes
	WriteBuffers(writes ...BufferWrite) error
}

// factory is the unexported implementation of Factory.
type factory struct {
	device hal.Device
	queue  hal.Queue
	pipe   *pipe.Device

	// labelPrefix is prepended to every hal debug label.
	labelPrefix string

	nextHandle atomic.Uintptr
	handlesMu  sync.RWMutex
	handles    map[uintptr]any
}

var _ Factory = &factory{}

// NewFactory creates a resource factory.
//
// Parameters:
//   - device: the hal device creating the native objects
//   - pd: the pipeline device tracking VRAM and releases
//   - options: functional options (queue, label prefix)
//
// Returns:
//   - Factory: the factory
func NewFactory(device hal.Device, pd *pipe.Device, options ...FactoryBuilderOption) Factory {
	f := &factory{
		device:  device,
		pipe:    pd,
		handles: make(map[uintptr]any),
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

func (f *factory) Device() *pipe.Device { return f.pipe }

func (f *factory) Resolve(handle uintptr) (any, bool) {
	f.handlesMu.RLock()
	defer f.handlesMu.RUnlock()
	obj, ok := f.handles[handle]
	return obj, ok
}

func (f *factory) LiveHandles() int {
	f.handlesMu.RLock()
	defer f.handlesMu.RUnlock()
	return len(f.handles)
}

func (f *factory) label(name string) string {
	if f.labelPrefix == "" {
		return name
	}
	return f.labelPrefix + name
}

func (f *factory) register(obj any) uintptr {
	h := f.nextHandle.Add(1)
	f.handlesMu.Lock()
	f.handles[h] = obj
	f.handlesMu.Unlock()
	return h
}

func (f *factory) unregister(handles ...uintptr) {
	f.handlesMu.Lock()
	for _, h := range handles {
		delete(f.handles, h)
	}
	f.handlesMu.Unlock()
}

// halRelease destroys hal objects when the device drains its release queue.
type halRelease struct {
	f       *factory
	handles []uintptr
	destroy []func(hal.Device)
}

func (r *halRelease) ReleaseNative() {
	r.f.unregister(r.handles...)
	for _, d := range r.destroy {
		d(r.f.device)
	}
}

// retire queues the native teardown of a resource and returns its VRAM to the counter.
func (f *factory) retire(name string, bytes int64, r *halRelease) {
	f.pipe.MarkForRelease(r)
	f.pipe.DeallocateVRAM(bytes)
	logger.Logger().Debug("resource queued for release", "resource", name, "bytes", bytes)
}

func (f *factory) allocate(name string, bytes int64) {
	total := f.pipe.AllocateVRAM(bytes)
	logger.Logger().Debug("resource allocated", "resource", name, "bytes", bytes, "vram", total)
}

func wrapCreate(kind, name string, err error) error {
	return fmt.Errorf("create %s %q: %w", kind, name, err)
}
