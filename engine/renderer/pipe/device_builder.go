package pipe

import (
	"github.com/Carmen-Shannon/oxy-pipe/engine/profiler"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// DeviceBuilderOption is a functional option applied to a device during construction via NewDevice.
type DeviceBuilderOption func(*Device)

// WithDebugChecks turns calling-contract violations (draw outside BeginDraw, popping an empty state stack, executing
// on the wrong context type) into panics. When off they are logged at error level and ignored.
//
// Parameters:
//   - enabled: true to panic on violations
//
// Returns:
//   - DeviceBuilderOption: a function that applies the debug checks option to a device
func WithDebugChecks(enabled bool) DeviceBuilderOption {
	return func(d *Device) {
		d.debugChecks = enabled
	}
}

// WithLimits sets the device limits used to size every slot group.
// When not specified, gputypes.DefaultLimits is used.
//
// Parameters:
//   - limits: the adapter limits
//
// Returns:
//   - DeviceBuilderOption: a function that applies the limits option to a device
func WithLimits(limits gputypes.Limits) DeviceBuilderOption {
	return func(d *Device) {
		d.limits = limits
	}
}

// WithAdapterInfo records the adapter the native device runs on.
// The adapter type picks the default deferred recording worker count.
//
// Parameters:
//   - info: the adapter description
//
// Returns:
//   - DeviceBuilderOption: a function that applies the adapter option to a device
func WithAdapterInfo(info gpucontext.AdapterInfo) DeviceBuilderOption {
	return func(d *Device) {
		d.adapter = info
	}
}

// WithProfiler shares a profiler with the device instead of creating one.
//
// Parameters:
//   - p: the profiler receiving binding, draw and dispatch counters
//
// Returns:
//   - DeviceBuilderOption: a function that applies the profiler option to a device
func WithProfiler(p *profiler.Profiler) DeviceBuilderOption {
	return func(d *Device) {
		d.profiler = p
	}
}

// WithStateStackIncrement sets how many entries every context's state stack allocates at a time.
//
// Parameters:
//   - n: the growth increment, non-positive values keep the default
//
// Returns:
//   - DeviceBuilderOption: a function that applies the increment option to a device
func WithStateStackIncrement(n int) DeviceBuilderOption {
	return func(d *Device) {
		if n > 0 {
			d.stackIncrement = n
		}
	}
}

// WithRecordWorkers sets the number of goroutines RecordDeferred records on.
//
// Parameters:
//   - n: the worker count, non-positive values derive it from the adapter type
//
// Returns:
//   - DeviceBuilderOption: a function that applies the worker option to a device
func WithRecordWorkers(n int) DeviceBuilderOption {
	return func(d *Device) {
		d.recordWorkers = n
	}
}

// WithDepthFormat sets the depth format the depth presets are described for.
//
// Parameters:
//   - format: a depth or depth-stencil texture format
//
// Returns:
//   - DeviceBuilderOption: a function that applies the depth format option to a device
func WithDepthFormat(format gputypes.TextureFormat) DeviceBuilderOption {
	return func(d *Device) {
		if format.IsDepthStencil() {
			d.depthFormat = format
		}
	}
}
