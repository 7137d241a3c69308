package resource

import "github.com/gogpu/wgpu/hal"

// FactoryBuilderOption is a functional option used to configure a Factory during construction.
type FactoryBuilderOption func(*factory)

// WithQueue sets the queue used for buffer uploads. Without it writes fail with ErrNoQueue.
//
// Parameters:
//   - queue: the hal queue
//
// Returns:
//   - FactoryBuilderOption: a function that sets the upload queue
func WithQueue(queue hal.Queue) FactoryBuilderOption {
	return func(f *factory) {
		f.queue = queue
	}
}

// WithLabelPrefix prefixes every hal debug label, e.g. "scene/".
//
// Parameters:
//   - prefix: the label prefix
//
// Returns:
//   - FactoryBuilderOption: a function that sets the label prefix
func WithLabelPrefix(prefix string) FactoryBuilderOption {
	return func(f *factory) {
		f.labelPrefix = prefix
	}
}
