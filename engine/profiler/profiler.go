package profiler

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
)

// FrameStats is a snapshot of the pipeline counters for one frame.
type FrameStats struct {
	// SlotBindings counts slots that took a new bindable.
	SlotBindings int64
	// GPUBindings counts slots re-sent because their bindable's content version changed.
	GPUBindings int64
	// DrawCalls counts native draw calls issued.
	DrawCalls int64
	// Dispatches counts native compute dispatches issued.
	Dispatches int64
	// ValidationFailures counts passes skipped because validation failed.
	ValidationFailures int64
}

// Profiler tracks frame rate, memory statistics and per-frame pipeline counters.
// Counters are atomic so deferred contexts recording on worker goroutines can share one profiler.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	slotBindings       atomic.Int64
	gpuBindings        atomic.Int64
	drawCalls          atomic.Int64
	dispatches         atomic.Int64
	validationFailures atomic.Int64

	lastFrame FrameStats
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
}

// SetUpdateInterval changes how often Tick reports. Non-positive values are ignored.
func (p *Profiler) SetUpdateInterval(d time.Duration) {
	if d > 0 {
		p.updateInterval = d
	}
}

// CountSlotBinding records a slot that bound a new value.
func (p *Profiler) CountSlotBinding() { p.slotBindings.Add(1) }

// CountGPUBinding records a slot re-bound because its value's version changed.
func (p *Profiler) CountGPUBinding() { p.gpuBindings.Add(1) }

// CountDraw records a native draw call.
func (p *Profiler) CountDraw() { p.drawCalls.Add(1) }

// CountDispatch records a native compute dispatch.
func (p *Profiler) CountDispatch() { p.dispatches.Add(1) }

// CountValidationFailure records a pass skipped by validation.
func (p *Profiler) CountValidationFailure() { p.validationFailures.Add(1) }

// Current returns the counters accumulated since the last EndFrame.
//
// Returns:
//   - FrameStats: the in-progress frame counters
func (p *Profiler) Current() FrameStats {
	return FrameStats{
		SlotBindings:       p.slotBindings.Load(),
		GPUBindings:        p.gpuBindings.Load(),
		DrawCalls:          p.drawCalls.Load(),
		Dispatches:         p.dispatches.Load(),
		ValidationFailures: p.validationFailures.Load(),
	}
}

// LastFrame returns the counters of the most recently completed frame.
func (p *Profiler) LastFrame() FrameStats {
	return p.lastFrame
}

// EndFrame moves the running counters into LastFrame and resets them.
//
// Returns:
//   - FrameStats: the counters of the frame that just ended
func (p *Profiler) EndFrame() FrameStats {
	p.lastFrame = FrameStats{
		SlotBindings:       p.slotBindings.Swap(0),
		GPUBindings:        p.gpuBindings.Swap(0),
		DrawCalls:          p.drawCalls.Swap(0),
		Dispatches:         p.dispatches.Swap(0),
		ValidationFailures: p.validationFailures.Swap(0),
	}
	return p.lastFrame
}

// Tick should be called once per frame after EndFrame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory
// and the last frame's pipeline counters.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			if pause := p.memStats.PauseNs[i%256] / 1000; pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	f := p.lastFrame
	logger.Logger().Info("[Profiler]",
		"fps", fps,
		"heap_mb", allocMB,
		"alloc_rate_mb_s", allocRateMB,
		"gc", gcCount,
		"gc_last_us", lastPauseUs,
		"gc_max_us", maxPauseUs,
		"sys_mb", sysMB,
		"slot_bindings", f.SlotBindings,
		"gpu_bindings", f.GPUBindings,
		"draws", f.DrawCalls,
		"dispatches", f.Dispatches,
		"validation_failures", f.ValidationFailures,
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
