package resource

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// BufferKind is the role a buffer was created for.
type BufferKind uint8

const (
	BufferVertex BufferKind = iota
	BufferIndex
	BufferConstant
	BufferStructured
)

func (k BufferKind) String() string {
	switch k {
	case BufferVertex:
		return "vertex buffer"
	case BufferIndex:
		return "index buffer"
	case BufferConstant:
		return "constant buffer"
	case BufferStructured:
		return "structured buffer"
	}
	return fmt.Sprintf("BufferKind(%d)", uint8(k))
}

func (k BufferKind) usage() gputypes.BufferUsage {
	switch k {
	case BufferVertex:
		return gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst
	case BufferIndex:
		return gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst
	case BufferConstant:
		return gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	default:
		return gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	}
}

// Buffer is a GPU buffer that can occupy any buffer slot of the pipeline. Which slots make sense depends on Kind.
type Buffer interface {
	pipe.VertexBuffer
	pipe.IndexBuffer
	pipe.ConstantBuffer
	pipe.ShaderResource
	pipe.UnorderedAccess

	// Kind retrieves the role the buffer was created for.
	//
	// Returns:
	//   - BufferKind: the buffer kind
	Kind() BufferKind

	// Stride retrieves the element size: the vertex stride, the index size or the structured element size.
	//
	// Returns:
	//   - uint32: the stride in bytes, 0 for constant buffers
	Stride() uint32

	// Count retrieves the number of elements the buffer holds.
	//
	// Returns:
	//   - uint32: the element count, 0 for constant buffers
	Count() uint32

	// Write uploads data at offset through the factory queue.
	//
	// Parameters:
	//   - offset: the byte offset
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: ErrOutOfRange, ErrNoQueue or ErrReleased
	Write(offset uint64, data []byte) error

	// Resize recreates the buffer with a new size. The old native buffer goes to the release queue and the version
	// is bumped, so every slot holding the buffer re-sends it on its next refresh.
	//
	// Parameters:
	//   - size: the new size in bytes
	//
	// Returns:
	//   - error: error if the new buffer could not be created
	Resize(size uint64) error

	// Release retires the buffer and queues its native buffer for release.
	//
	// Returns:
	//   - error: pipe.ErrStillBound or pipe.ErrAlreadyReleased
	Release() error
}

// buffer is the unexported implementation of Buffer.
type buffer struct {
	pipe.BindableBase

	f      *factory
	kind   BufferKind
	layout *pipe.VertexLayout
	format gputypes.IndexFormat
	stride uint32

	mu     sync.RWMutex
	native hal.Buffer
	handle uintptr
	size   uint64
}

var _ Buffer = &buffer{}

func (f *factory) newBuffer(name string, kind BufferKind, size uint64) (*buffer, error) {
	if size == 0 {
		return nil, wrapCreate(kind.String(), name, ErrInvalidSize)
	}
	b := &buffer{f: f, kind: kind}
	b.SetName(name)
	if err := b.create(size); err != nil {
		return nil, err
	}
	return b, nil
}

// create allocates the native buffer. Callers hold b.mu or own b exclusively.
func (b *buffer) create(size uint64) error {
	native, err := b.f.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.f.label(b.Name()),
		Size:  size,
		Usage: b.kind.usage(),
	})
	if err != nil {
		return wrapCreate(b.kind.String(), b.Name(), err)
	}
	b.native = native
	b.handle = b.f.register(native)
	b.size = size
	b.f.allocate(b.Name(), int64(size))
	return nil
}

func (f *factory) CreateVertexBuffer(name string, layout pipe.VertexLayout, data []byte) (Buffer, error) {
	b, err := f.newBuffer(name, BufferVertex, uint64(len(data)))
	if err != nil {
		return nil, err
	}
	b.layout = &layout
	b.stride = layout.Stride
	return b, f.upload(b, data)
}

func (f *factory) CreateIndexBuffer(name string, format gputypes.IndexFormat, data []byte) (Buffer, error) {
	b, err := f.newBuffer(name, BufferIndex, uint64(len(data)))
	if err != nil {
		return nil, err
	}
	b.format = format
	b.stride = 2
	if format == gputypes.IndexFormatUint32 {
		b.stride = 4
	}
	return b, f.upload(b, data)
}

func (f *factory) CreateConstantBuffer(name string, size uint64) (Buffer, error) {
	return f.newBuffer(name, BufferConstant, (size+15)&^15)
}

func (f *factory) CreateStructuredBuffer(name string, stride uint32, count uint32) (Buffer, error) {
	b, err := f.newBuffer(name, BufferStructured, uint64(stride)*uint64(count))
	if err != nil {
		return nil, err
	}
	b.stride = stride
	return b, nil
}

// upload writes the initial contents when a queue is available.
func (f *factory) upload(b *buffer, data []byte) error {
	if f.queue == nil {
		return nil
	}
	return b.Write(0, data)
}

func (b *buffer) Refresh(pipe.BindSlot, *pipe.DeviceContext) error {
	if b.IsReleased() {
		return fmt.Errorf("bind %q: %w", b.Name(), ErrReleased)
	}
	return nil
}

func (b *buffer) Kind() BufferKind                  { return b.kind }
func (b *buffer) Stride() uint32                    { return b.stride }
func (b *buffer) VertexLayout() *pipe.VertexLayout  { return b.layout }
func (b *buffer) IndexFormat() gputypes.IndexFormat { return b.format }
func (b *buffer) ByteOffset() uint32                { return 0 }

func (b *buffer) NativeHandle() uintptr {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handle
}

func (b *buffer) ResourceHandle() uintptr        { return b.NativeHandle() }
func (b *buffer) UnorderedAccessHandle() uintptr { return b.NativeHandle() }

func (b *buffer) ByteSize() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *buffer) Count() uint32 {
	if b.stride == 0 {
		return 0
	}
	return uint32(b.ByteSize() / uint64(b.stride))
}

func (b *buffer) Write(offset uint64, data []byte) error {
	if b.f.queue == nil {
		return fmt.Errorf("write %q: %w", b.Name(), ErrNoQueue)
	}
	if b.IsReleased() {
		return fmt.Errorf("write %q: %w", b.Name(), ErrReleased)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("write %q: %d bytes at %d into %d: %w", b.Name(), len(data), offset, b.size, ErrOutOfRange)
	}
	if len(data) == 0 {
		return nil
	}
	if err := b.f.queue.WriteBuffer(b.native, offset, data); err != nil {
		return fmt.Errorf("write %q: %w", b.Name(), err)
	}
	return nil
}

func (b *buffer) Resize(size uint64) error {
	if size == 0 {
		return fmt.Errorf("resize %q: %w", b.Name(), ErrInvalidSize)
	}
	if b.IsReleased() {
		return fmt.Errorf("resize %q: %w", b.Name(), ErrReleased)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if size == b.size {
		return nil
	}
	old := b.teardown()
	oldSize := b.size
	if err := b.create(size); err != nil {
		return err
	}
	b.f.retire(b.Name(), int64(oldSize), old)
	b.BumpVersion()
	return nil
}

// teardown packages the current native buffer for the release queue. Callers hold b.mu.
func (b *buffer) teardown() *halRelease {
	native := b.native
	return &halRelease{
		f:       b.f,
		handles: []uintptr{b.handle},
		destroy: []func(hal.Device){func(d hal.Device) { d.DestroyBuffer(native) }},
	}
}

func (b *buffer) Release() error {
	if err := b.Retire(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.f.retire(b.Name(), int64(b.size), b.teardown())
	b.native = nil
	return nil
}
