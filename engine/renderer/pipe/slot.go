package pipe

import (
	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
)

// BindSlot is the type-erased view of a Slot, used by bindables and conflict resolution.
type BindSlot interface {
	// Name retrieves the slot's debug name, e.g. "pixel resource".
	Name() string

	// Index retrieves the position of the slot within its group.
	Index() int

	// BindType retrieves whether the slot reads or writes its value.
	BindType() BindType

	// BindingID retrieves the request token of the value the slot last bound or re-affirmed.
	BindingID() uint64

	// Context retrieves the context owning the slot.
	Context() *DeviceContext

	evict()
}

// Slot is a single binding point of a pipeline stage.
//
// Set records the requested value; Bind resolves it against what the device currently holds and reports whether
// a native (re)bind is needed. Slots are not safe for concurrent use. T must be a Bindable; the constraint stays
// comparable because Bindable refers back to the context owning the slot.
type Slot[T comparable] struct {
	ctx      *DeviceContext
	name     string
	index    int
	bindType BindType

	requested T
	requestID uint64

	bound        T
	boundVersion uint64
	bindingID    uint64

	// onUnbind issues the native call clearing this slot alone.
	onUnbind func(index int)
}

var _ BindSlot = &Slot[Bindable]{}

func newSlot[T comparable](ctx *DeviceContext, name string, index int, bindType BindType, onUnbind func(index int)) *Slot[T] {
	return &Slot[T]{
		ctx:      ctx,
		name:     name,
		index:    index,
		bindType: bindType,
		onUnbind: onUnbind,
	}
}

func (s *Slot[T]) Name() string            { return s.name }
func (s *Slot[T]) Index() int              { return s.index }
func (s *Slot[T]) BindType() BindType      { return s.bindType }
func (s *Slot[T]) BindingID() uint64       { return s.bindingID }
func (s *Slot[T]) Context() *DeviceContext { return s.ctx }

// Requested returns the value last passed to Set.
func (s *Slot[T]) Requested() T { return s.requested }

// Bound returns the value the device currently holds in this slot.
func (s *Slot[T]) Bound() T { return s.bound }

// BoundVersion returns the version of the bound value at the time it was last sent to the device.
func (s *Slot[T]) BoundVersion() uint64 { return s.boundVersion }

// RequestID returns the binding ID stamped by the last Set call.
func (s *Slot[T]) RequestID() uint64 { return s.requestID }

// Set requests a value for the slot. The value is bound on the next Bind. Setting a non-nil value stamps the slot
// with the value's next binding ID, so the most recent request wins any input/output conflict.
//
// Parameters:
//   - v: the value to request, or the zero value to empty the slot
func (s *Slot[T]) Set(v T) {
	s.requested = v
	if isZero(v) {
		s.requestID = 0
		return
	}
	s.requestID = asBindable(v).bindableBase().nextBindingID()
}

// Clear requests an empty slot.
func (s *Slot[T]) Clear() {
	var zero T
	s.Set(zero)
}

// restore puts a previously captured request back without issuing a new binding ID.
func (s *Slot[T]) restore(v T, requestID uint64) {
	s.requested = v
	s.requestID = requestID
}

// Bind resolves the requested value against the bound value.
//
// Returns:
//   - bool: true if the stage must send this slot's value to the device
func (s *Slot[T]) Bind() bool {
	var zero T
	req, prev := s.requested, s.bound

	if req != prev {
		if !isZero(prev) {
			if isZero(req) {
				s.bound = zero
				s.boundVersion = 0
				asBindable(prev).bindableBase().removeSlot(s)
				s.unbindNative()
				return false
			}
			asBindable(prev).bindableBase().removeSlot(s)
			s.bound = zero
			s.boundVersion = 0
		}
		if isZero(req) {
			return false
		}

		value := asBindable(req)
		for _, other := range value.BoundTo() {
			if other.Context() != s.ctx || other.BindType() == s.bindType {
				continue
			}
			if other.BindingID() < s.requestID {
				logger.Logger().Debug("evicting conflicting binding",
					"value", value.Name(), "slot", s.name, "index", s.index,
					"evicted", other.Name(), "evicted_index", other.Index())
				other.evict()
				continue
			}
			logger.Logger().Debug("binding lost to a newer conflicting request",
				"value", value.Name(), "slot", s.name, "index", s.index,
				"holder", other.Name(), "holder_index", other.Index())
			if !isZero(prev) {
				s.unbindNative()
			}
			return false
		}

		if err := s.bindTo(req); err != nil {
			logger.Logger().Error("slot binding failed",
				"value", value.Name(), "slot", s.name, "index", s.index, "error", err)
			if !isZero(prev) {
				s.unbindNative()
			}
			return false
		}
		s.boundVersion = value.Version()
		s.bindingID = s.requestID
		s.bound = req
		s.ctx.profiler.CountSlotBinding()
		return true
	}

	if isZero(req) {
		return false
	}

	value := asBindable(req)
	if err := s.bindTo(req); err != nil {
		logger.Logger().Error("slot re-binding failed",
			"value", value.Name(), "slot", s.name, "index", s.index, "error", err)
		s.bound = zero
		s.boundVersion = 0
		s.unbindNative()
		return false
	}
	s.bindingID = s.requestID
	if v := value.Version(); v != s.boundVersion {
		s.boundVersion = v
		s.ctx.profiler.CountGPUBinding()
		return true
	}
	return false
}

func (s *Slot[T]) bindTo(v T) error {
	value := asBindable(v)
	b := value.bindableBase()
	b.addSlot(s)
	if err := value.Refresh(s, s.ctx); err != nil {
		b.removeSlot(s)
		return err
	}
	return nil
}

// evict drops the bound value because a newer conflicting request claimed it. The request is kept so the slot
// competes again once it is re-requested.
func (s *Slot[T]) evict() {
	if isZero(s.bound) {
		return
	}
	var zero T
	asBindable(s.bound).bindableBase().removeSlot(s)
	s.bound = zero
	s.boundVersion = 0
	s.unbindNative()
}

// forget drops the bound value without a native call. Used once the native context state was reset underneath
// the slot (finished or executed command lists).
func (s *Slot[T]) forget() {
	if isZero(s.bound) {
		return
	}
	var zero T
	asBindable(s.bound).bindableBase().removeSlot(s)
	s.bound = zero
	s.boundVersion = 0
}

func (s *Slot[T]) unbindNative() {
	if s.onUnbind != nil {
		s.onUnbind(s.index)
	}
}

// asBindable converts a slot value. Every slot type is instantiated with a Bindable, so the assertion only fails
// for the zero value, which callers check first.
func asBindable[T comparable](v T) Bindable {
	return any(v).(Bindable)
}

func isZero[T comparable](v T) bool {
	var zero T
	return v == zero
}
