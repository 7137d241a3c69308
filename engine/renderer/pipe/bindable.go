package pipe

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

var (
	// ErrStillBound is returned when releasing a bindable that a slot still holds.
	ErrStillBound = errors.New("bindable is still bound to a pipeline slot")
	// ErrAlreadyReleased is returned when a bindable is released twice.
	ErrAlreadyReleased = errors.New("bindable was already released")
)

// Bindable is anything that can occupy a pipeline slot: buffers, textures, surfaces, state objects and shader programs.
//
// Implementations embed BindableBase, which carries the version, binding ID and slot bookkeeping.
type Bindable interface {
	// Name retrieves the debug name of the bindable.
	//
	// Returns:
	//   - string: the name, may be empty
	Name() string

	// Version retrieves the content version. The owner bumps it whenever the native content is recreated
	// (resize, recompile, state edit) so slots holding it re-send it to the device.
	//
	// Returns:
	//   - uint64: the current version
	Version() uint64

	// BindingID retrieves the most recent request token handed out to a slot.
	//
	// Returns:
	//   - uint64: the latest binding ID
	BindingID() uint64

	// BoundTo retrieves a snapshot of the slots currently holding this bindable.
	//
	// Returns:
	//   - []BindSlot: the slots, in bind order
	BoundTo() []BindSlot

	// Refresh is called whenever a slot binds or re-affirms this bindable.
	// Implementations lazily (re)create their native objects here and bump their version when they do.
	//
	// Parameters:
	//   - slot: the slot binding the value
	//   - ctx: the context the slot belongs to
	//
	// Returns:
	//   - error: error if the native object could not be created; the slot is left empty
	Refresh(slot BindSlot, ctx *DeviceContext) error

	bindableBase() *BindableBase
}

// Releaser frees native objects. The device calls ReleaseNative while draining its release queue.
type Releaser interface {
	ReleaseNative()
}

// BindableBase holds the shared binding state of a Bindable. Embed it by value.
type BindableBase struct {
	name    string
	version atomic.Uint64

	mu        sync.Mutex
	bindingID uint64
	boundTo   []BindSlot
	released  bool
}

func (b *BindableBase) bindableBase() *BindableBase { return b }

func (b *BindableBase) Name() string { return b.name }

// SetName sets the debug name used in logs.
func (b *BindableBase) SetName(name string) { b.name = name }

func (b *BindableBase) Version() uint64 { return b.version.Load() }

// BumpVersion marks the native content as changed. Safe to call from any goroutine.
//
// Returns:
//   - uint64: the new version
func (b *BindableBase) BumpVersion() uint64 { return b.version.Add(1) }

func (b *BindableBase) BindingID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bindingID
}

func (b *BindableBase) BoundTo() []BindSlot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.boundTo)
}

// IsBound reports whether any slot currently holds the bindable.
func (b *BindableBase) IsBound() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.boundTo) > 0
}

// IsReleased reports whether Retire has succeeded.
func (b *BindableBase) IsReleased() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// Retire marks the bindable released. Call it from a Release method before queueing native teardown.
//
// Returns:
//   - error: ErrStillBound if a slot holds it, ErrAlreadyReleased on a second call
func (b *BindableBase) Retire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return fmt.Errorf("%q: %w", b.name, ErrAlreadyReleased)
	}
	if len(b.boundTo) > 0 {
		return fmt.Errorf("%q held by %d slot(s): %w", b.name, len(b.boundTo), ErrStillBound)
	}
	b.released = true
	return nil
}

func (b *BindableBase) nextBindingID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindingID++
	return b.bindingID
}

func (b *BindableBase) addSlot(s BindSlot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Contains(b.boundTo, s) {
		b.boundTo = append(b.boundTo, s)
	}
}

func (b *BindableBase) removeSlot(s BindSlot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := slices.Index(b.boundTo, s); i >= 0 {
		b.boundTo = slices.Delete(b.boundTo, i, i+1)
	}
}
