package pipe

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
	"github.com/Carmen-Shannon/oxy-pipe/engine/profiler"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Device owns the native device, the immediate context, every deferred context, the state presets, the input
// layout cache, the deferred-release queue and the VRAM counter.
//
// Contexts are single-goroutine; the release queue, the VRAM counter and the input layout cache are safe for
// concurrent use.
type Device struct {
	native  NativeDevice
	limits  gputypes.Limits
	adapter gpucontext.AdapterInfo

	debugChecks    bool
	stackIncrement int
	depthFormat    gputypes.TextureFormat
	recordWorkers  int

	profiler *profiler.Profiler

	immediate *DeviceContext

	contextsMu sync.Mutex
	deferred   []*DeviceContext
	// recording holds the contexts RecordDeferred owns. They never appear in DeferredContexts.
	recording []*DeviceContext

	layoutsMu    sync.Mutex
	inputLayouts map[string]*InputLayout

	releaseMu    sync.Mutex
	releaseQueue []Releaser

	vram atomic.Int64

	blendPresets      map[BlendPreset]*BlendState
	depthPresets      map[DepthPreset]*DepthState
	rasterizerPresets map[RasterizerPreset]*RasterizerState

	recordPool worker.DynamicWorkerPool
	released   bool
}

// NewDevice wraps a native device and creates its immediate context.
//
// Parameters:
//   - native: the native device
//   - options: functional options
//
// Returns:
//   - *Device: the device
func NewDevice(native NativeDevice, options ...DeviceBuilderOption) *Device {
	d := &Device{
		native:         native,
		limits:         gputypes.DefaultLimits(),
		adapter:        gpucontext.AdapterInfo{Name: "unknown", Type: gpucontext.AdapterTypeUnknown},
		stackIncrement: DefaultStateStackIncrement,
		depthFormat:    gputypes.TextureFormatDepth24PlusStencil8,
		inputLayouts:   make(map[string]*InputLayout),
	}
	for _, opt := range options {
		opt(d)
	}
	if d.profiler == nil {
		d.profiler = profiler.NewProfiler()
	}
	if d.recordWorkers <= 0 {
		d.recordWorkers = defaultRecordWorkers(d.adapter.Type)
	}

	d.blendPresets = newBlendPresets()
	d.depthPresets = newDepthPresets(d.depthFormat)
	d.rasterizerPresets = newRasterizerPresets()

	d.immediate = newDeviceContext(d, native.Immediate(), ContextImmediate)

	logger.Logger().Info("device created",
		"adapter", d.adapter.Name,
		"adapter_type", d.adapter.Type.String(),
		"debug_checks", d.debugChecks,
		"record_workers", d.recordWorkers,
		"vertex_buffers", d.limits.MaxVertexBuffers,
		"render_surfaces", d.limits.MaxColorAttachments)
	return d
}

// defaultRecordWorkers sizes the deferred recording pool. Software adapters rasterize on the CPU, so recording
// stays on one goroutine.
func defaultRecordWorkers(t gpucontext.AdapterType) int {
	switch t {
	case gpucontext.AdapterTypeSoftware:
		return 1
	case gpucontext.AdapterTypeIntegrated:
		return max(1, runtime.NumCPU()/2)
	default:
		return max(1, runtime.NumCPU())
	}
}

func (d *Device) Native() NativeDevice                { return d.native }
func (d *Device) Limits() gputypes.Limits             { return d.limits }
func (d *Device) AdapterInfo() gpucontext.AdapterInfo { return d.adapter }
func (d *Device) Profiler() *profiler.Profiler        { return d.profiler }
func (d *Device) DebugChecks() bool                   { return d.debugChecks }

// Immediate returns the immediate context.
func (d *Device) Immediate() *DeviceContext { return d.immediate }

// BlendPreset returns a registered blend state.
func (d *Device) BlendPreset(p BlendPreset) *BlendState { return d.blendPresets[p] }

// DepthPreset returns a registered depth state.
func (d *Device) DepthPreset(p DepthPreset) *DepthState { return d.depthPresets[p] }

// RasterizerPreset returns a registered rasterizer state.
func (d *Device) RasterizerPreset(p RasterizerPreset) *RasterizerState { return d.rasterizerPresets[p] }

// NewDeferredContext creates a context recording into command lists.
//
// Returns:
//   - *DeviceContext: the deferred context
//   - error: error if the native device cannot create deferred contexts
func (d *Device) NewDeferredContext() (*DeviceContext, error) {
	native, err := d.native.CreateDeferred()
	if err != nil {
		return nil, fmt.Errorf("create deferred context: %w", err)
	}
	c := newDeviceContext(d, native, ContextDeferred)

	d.contextsMu.Lock()
	d.deferred = append(d.deferred, c)
	d.contextsMu.Unlock()
	return c, nil
}

// DeferredContexts returns a snapshot of the live deferred contexts.
func (d *Device) DeferredContexts() []*DeviceContext {
	d.contextsMu.Lock()
	defer d.contextsMu.Unlock()
	return slices.Clone(d.deferred)
}

// RemoveContext stops tracking a deferred context. DeviceContext.Release calls it.
//
// Parameters:
//   - c: a deferred context created by this device
//
// Returns:
//   - error: ErrForeignContext if c belongs to another device, ErrNotDeferred for the immediate context
func (d *Device) RemoveContext(c *DeviceContext) error {
	if c.device != d {
		return fmt.Errorf("remove %s context: %w", c.kind, ErrForeignContext)
	}
	if c.kind != ContextDeferred {
		return fmt.Errorf("remove %s context: %w", c.kind, ErrNotDeferred)
	}
	d.contextsMu.Lock()
	defer d.contextsMu.Unlock()
	if i := slices.Index(d.deferred, c); i >= 0 {
		d.deferred = slices.Delete(d.deferred, i, i+1)
		return nil
	}
	if i := slices.Index(d.recording, c); i >= 0 {
		d.recording = slices.Delete(d.recording, i, i+1)
		return nil
	}
	return fmt.Errorf("remove untracked deferred context: %w", ErrForeignContext)
}

// recordContexts returns n contexts owned by RecordDeferred, creating the missing ones.
func (d *Device) recordContexts(n int) ([]*DeviceContext, error) {
	d.contextsMu.Lock()
	defer d.contextsMu.Unlock()
	for len(d.recording) < n {
		native, err := d.native.CreateDeferred()
		if err != nil {
			return nil, fmt.Errorf("create record context: %w", err)
		}
		d.recording = append(d.recording, newDeviceContext(d, native, ContextDeferred))
	}
	return slices.Clone(d.recording[:n]), nil
}

// RecordFunc records commands on a deferred context.
type RecordFunc func(ctx *DeviceContext) error

// RecordDeferred records every function on its own deferred context in parallel, then returns the finished command
// lists in the order of recorders. The contexts belong to the device: they are created on demand, reused across
// calls and never handed out by NewDeferredContext or DeferredContexts. A recorder that panics, for example on a
// debug check, fails its own list.
//
// Parameters:
//   - recorders: one function per command list
//
// Returns:
//   - []CommandList: the finished lists; a failed recorder leaves a nil entry
//   - error: the joined recorder and finish errors
func (d *Device) RecordDeferred(recorders ...RecordFunc) ([]CommandList, error) {
	if len(recorders) == 0 {
		return nil, nil
	}
	contexts, err := d.recordContexts(len(recorders))
	if err != nil {
		return nil, err
	}
	if d.recordPool == nil {
		d.recordPool = worker.NewDynamicWorkerPool(d.recordWorkers, 256, time.Second)
	}

	lists := make([]CommandList, len(recorders))
	errs := make([]error, len(recorders))

	// the pool's own Wait blocks until workers idle out, so a WaitGroup marks the barrier
	var wg sync.WaitGroup
	for i, record := range recorders {
		wg.Add(1)
		ctx := contexts[i]
		d.recordPool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						if err, ok := r.(error); ok {
							errs[i] = fmt.Errorf("recorder %d panicked: %w", i, err)
						} else {
							errs[i] = fmt.Errorf("recorder %d panicked: %v", i, r)
						}
						lists[i] = nil
						ctx.abandon()
					}
				}()
				if err := record(ctx); err != nil {
					errs[i] = fmt.Errorf("recorder %d: %w", i, err)
					ctx.abandon()
					return nil, errs[i]
				}
				list, err := ctx.Finish()
				if err != nil {
					errs[i] = fmt.Errorf("recorder %d: %w", i, err)
					return nil, errs[i]
				}
				lists[i] = list
				return list, nil
			},
		})
	}
	wg.Wait()
	return lists, errors.Join(errs...)
}

// Submit executes command lists on the immediate context in order and releases them.
func (d *Device) Submit(lists ...CommandList) {
	for _, l := range lists {
		if l == nil {
			continue
		}
		d.immediate.ExecuteCommandList(l)
		l.Release()
	}
}

// MarkForRelease queues a native release for the next ProcessReleaseQueue. Safe to call from any goroutine.
func (d *Device) MarkForRelease(r Releaser) {
	if r == nil {
		return
	}
	d.releaseMu.Lock()
	d.releaseQueue = append(d.releaseQueue, r)
	d.releaseMu.Unlock()
}

// PendingReleases returns the number of queued releases.
func (d *Device) PendingReleases() int {
	d.releaseMu.Lock()
	defer d.releaseMu.Unlock()
	return len(d.releaseQueue)
}

// ProcessReleaseQueue drains the release queue on the calling goroutine, normally once per frame.
//
// Returns:
//   - int: the number of native objects released
func (d *Device) ProcessReleaseQueue() int {
	d.releaseMu.Lock()
	queue := d.releaseQueue
	d.releaseQueue = nil
	d.releaseMu.Unlock()

	for _, r := range queue {
		r.ReleaseNative()
	}
	if len(queue) > 0 {
		logger.Logger().Debug("released native objects", "count", len(queue))
	}
	return len(queue)
}

// AllocateVRAM adds bytes to the VRAM counter. Safe to call from any goroutine.
//
// Returns:
//   - int64: the new total
func (d *Device) AllocateVRAM(bytes int64) int64 { return d.vram.Add(bytes) }

// DeallocateVRAM subtracts bytes from the VRAM counter. Safe to call from any goroutine.
//
// Returns:
//   - int64: the new total
func (d *Device) DeallocateVRAM(bytes int64) int64 { return d.vram.Add(-bytes) }

// VRAM returns the tracked VRAM usage in bytes.
func (d *Device) VRAM() int64 { return d.vram.Load() }

// inputLayout returns the cached layout for the elements and signature, creating it on first use.
func (d *Device) inputLayout(elements []InputElement, signature []ShaderInput) *InputLayout {
	key := inputLayoutKey(elements, signature)

	d.layoutsMu.Lock()
	defer d.layoutsMu.Unlock()
	if l, ok := d.inputLayouts[key]; ok {
		return l
	}
	l := &InputLayout{
		key:       key,
		elements:  slices.Clone(elements),
		signature: slices.Clone(signature),
	}
	l.name = "input layout " + key
	d.inputLayouts[key] = l
	return l
}

// InputLayoutCount returns the number of cached input layouts.
func (d *Device) InputLayoutCount() int {
	d.layoutsMu.Lock()
	defer d.layoutsMu.Unlock()
	return len(d.inputLayouts)
}

// EndFrame drains the release queue and closes the profiler frame.
//
// Returns:
//   - profiler.FrameStats: the counters of the finished frame
func (d *Device) EndFrame() profiler.FrameStats {
	d.ProcessReleaseQueue()
	return d.profiler.EndFrame()
}

// Release tears down every context, preset, cached layout and queued object.
func (d *Device) Release() {
	if d.released {
		return
	}
	d.released = true
	if d.recordPool != nil {
		d.recordPool.Stop()
	}
	d.contextsMu.Lock()
	contexts := append(slices.Clone(d.deferred), d.recording...)
	d.contextsMu.Unlock()
	for _, c := range contexts {
		if err := c.Release(); err != nil {
			logger.Logger().Error("release deferred context", "error", err)
		}
	}
	d.immediate.forget()

	d.layoutsMu.Lock()
	for _, l := range d.inputLayouts {
		if l.native != nil {
			d.MarkForRelease(nativeRelease{l.native})
		}
	}
	d.inputLayouts = make(map[string]*InputLayout)
	d.layoutsMu.Unlock()

	for _, s := range d.blendPresets {
		d.releasePreset(s)
	}
	for _, s := range d.depthPresets {
		d.releasePreset(s)
	}
	for _, s := range d.rasterizerPresets {
		d.releasePreset(s)
	}
	n := d.ProcessReleaseQueue()
	d.immediate.released = true
	d.immediate.native.Release()
	logger.Logger().Info("device released", "native_objects", n, "vram", d.VRAM())
}

func (d *Device) releasePreset(s interface{ Release(*Device) error }) {
	if err := s.Release(d); err != nil {
		logger.Logger().Error("release preset", "error", err)
	}
}
