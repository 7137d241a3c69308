package pipe

// SlotGroup is an ordered array of slots of one kind, e.g. every vertex buffer slot of the input assembler.
// BindAll reports the contiguous range that changed so the stage can issue one ranged native call.
type SlotGroup[T comparable] struct {
	name  string
	slots []*Slot[T]

	firstChanged    int
	lastChanged     int
	numSlotsChanged int
}

func newSlotGroup[T comparable](ctx *DeviceContext, name string, count int, bindType BindType, onUnbind func(index int)) *SlotGroup[T] {
	g := &SlotGroup[T]{
		name:         name,
		slots:        make([]*Slot[T], count),
		firstChanged: -1,
		lastChanged:  -1,
	}
	for i := range g.slots {
		g.slots[i] = newSlot[T](ctx, name, i, bindType, onUnbind)
	}
	return g
}

// Name returns the group's debug name.
func (g *SlotGroup[T]) Name() string { return g.name }

// Len returns the number of slots in the group.
func (g *SlotGroup[T]) Len() int { return len(g.slots) }

// Slot returns the slot at index i.
func (g *SlotGroup[T]) Slot(i int) *Slot[T] { return g.slots[i] }

// Set requests v for slot i. Out of range indices are ignored.
func (g *SlotGroup[T]) Set(i int, v T) {
	if i < 0 || i >= len(g.slots) {
		return
	}
	g.slots[i].Set(v)
}

// SetRange requests values for consecutive slots starting at first.
func (g *SlotGroup[T]) SetRange(first int, values ...T) {
	for i, v := range values {
		g.Set(first+i, v)
	}
}

// Requested returns the requested value of slot i, or the zero value when out of range.
func (g *SlotGroup[T]) Requested(i int) T {
	if i < 0 || i >= len(g.slots) {
		var zero T
		return zero
	}
	return g.slots[i].requested
}

// ClearAll requests every slot empty.
func (g *SlotGroup[T]) ClearAll() {
	for _, s := range g.slots {
		s.Clear()
	}
}

// BindAll binds every slot and records the changed range.
// A single changed slot is reported with FirstChanged == LastChanged.
//
// Returns:
//   - bool: true if at least one slot must be re-sent to the device
func (g *SlotGroup[T]) BindAll() bool {
	g.firstChanged = -1
	g.lastChanged = -1
	g.numSlotsChanged = 0

	for i, s := range g.slots {
		if !s.Bind() {
			continue
		}
		if g.firstChanged < 0 {
			g.firstChanged = i
		}
		g.lastChanged = i
		g.numSlotsChanged++
	}
	return g.numSlotsChanged > 0
}

// FirstChanged returns the lowest index changed by the last BindAll, or -1.
func (g *SlotGroup[T]) FirstChanged() int { return g.firstChanged }

// LastChanged returns the highest index changed by the last BindAll, or -1.
func (g *SlotGroup[T]) LastChanged() int { return g.lastChanged }

// NumSlotsChanged returns how many slots the last BindAll re-sent.
func (g *SlotGroup[T]) NumSlotsChanged() int { return g.numSlotsChanged }

// ChangedRange returns the bound values of [FirstChanged, LastChanged], including unchanged slots in between.
//
// Returns:
//   - int: the first index of the range, -1 if nothing changed
//   - []T: the bound values of the range
func (g *SlotGroup[T]) ChangedRange() (int, []T) {
	if g.numSlotsChanged == 0 {
		return -1, nil
	}
	values := make([]T, 0, g.lastChanged-g.firstChanged+1)
	for i := g.firstChanged; i <= g.lastChanged; i++ {
		values = append(values, g.slots[i].bound)
	}
	return g.firstChanged, values
}

// BoundValues returns the bound value of every slot.
func (g *SlotGroup[T]) BoundValues() []T {
	values := make([]T, len(g.slots))
	for i, s := range g.slots {
		values[i] = s.bound
	}
	return values
}

func (g *SlotGroup[T]) forget() {
	for _, s := range g.slots {
		s.forget()
	}
}
