package window

import "sync/atomic"

// headless is a Platform without a native window. Its framebuffer is the requested size.
type headless struct {
	events Events
	frames int
	polled int

	width, height atomic.Int64
	closed        atomic.Bool
}

// Headless returns a PlatformFactory for runs without a display, such as tests and offline rendering.
//
// Parameters:
//   - frames: how many PollEvents calls report running; 0 runs until Close
//
// Returns:
//   - PlatformFactory: the factory
func Headless(frames int) PlatformFactory {
	return func(cfg Config, events Events) (Platform, error) {
		h := &headless{events: events, frames: frames}
		h.width.Store(int64(cfg.Width))
		h.height.Store(int64(cfg.Height))
		return h, nil
	}
}

func (h *headless) PollEvents() bool {
	if h.closed.Load() {
		return false
	}
	h.polled++
	return h.frames == 0 || h.polled <= h.frames
}

func (h *headless) FramebufferSize() (int, int) {
	return int(h.width.Load()), int(h.height.Load())
}

func (h *headless) SetSize(width, height int) {
	h.width.Store(int64(width))
	h.height.Store(int64(height))
	h.events.Resized(width, height)
}

func (h *headless) Close() error {
	h.closed.Store(true)
	return nil
}
