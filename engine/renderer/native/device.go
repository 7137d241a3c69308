// Package native implements pipe.NativeDevice and pipe.NativeContext by recording every call.
// Deferred contexts finish into replayable command lists; the immediate context keeps its log for inspection.
// It backs headless runs and every pipeline test.
package native

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
)

var (
	// ErrImmediateFinish is returned when finishing a command list on the immediate context.
	ErrImmediateFinish = errors.New("immediate context cannot finish a command list")
	// ErrListReleased is returned when replaying a released command list.
	ErrListReleased = errors.New("command list was released")
	// ErrContextReleased is returned when finishing on a released context.
	ErrContextReleased = errors.New("native context was released")
	// ErrInjected is returned by creation calls failed through FailCreate.
	ErrInjected = errors.New("injected native failure")
)

// ObjectKind names the kind of a created native object.
type ObjectKind string

const (
	KindBlendState        ObjectKind = "blend"
	KindDepthStencilState ObjectKind = "depth-stencil"
	KindRasterizerState   ObjectKind = "rasterizer"
	KindShader            ObjectKind = "shader"
	KindInputLayout       ObjectKind = "input-layout"
)

// Object is a native object created by the recording device.
type Object struct {
	ID   uint64
	Kind ObjectKind
	// Desc is a copy of the creation description (state desc, shader kind, input elements).
	Desc any

	device   *Device
	released atomic.Bool
}

// Released reports whether the object was released.
func (o *Object) Released() bool { return o.released.Load() }

func (o *Object) Release() {
	if o.released.CompareAndSwap(false, true) {
		o.device.live.Add(-1)
	}
}

func (o *Object) String() string { return fmt.Sprintf("%s#%d", o.Kind, o.ID) }

// Device is a recording pipe.NativeDevice. Object creation is safe for concurrent use.
type Device struct {
	immediate *Context

	nextID atomic.Uint64
	live   atomic.Int64

	mu       sync.Mutex
	created  map[ObjectKind]int
	failing  map[ObjectKind]int
	deferred int
}

var _ pipe.NativeDevice = &Device{}

// NewDevice creates a recording device with its immediate context.
//
// Returns:
//   - *Device: the device
func NewDevice() *Device {
	d := &Device{
		created: make(map[ObjectKind]int),
		failing: make(map[ObjectKind]int),
	}
	d.immediate = newContext(d, false)
	return d
}

func (d *Device) Immediate() pipe.NativeContext { return d.immediate }

// ImmediateRecorder returns the immediate context with its recording accessors.
func (d *Device) ImmediateRecorder() *Context { return d.immediate }

func (d *Device) CreateDeferred() (pipe.NativeContext, error) {
	d.mu.Lock()
	d.deferred++
	d.mu.Unlock()
	return newContext(d, true), nil
}

// DeferredCount returns how many deferred contexts were created.
func (d *Device) DeferredCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deferred
}

// FailCreate makes the next n creations of kind fail with ErrInjected.
func (d *Device) FailCreate(kind ObjectKind, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing[kind] = n
}

// Created returns how many objects of kind were created.
func (d *Device) Created(kind ObjectKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

// Live returns the number of created objects not yet released.
func (d *Device) Live() int64 { return d.live.Load() }

func (d *Device) create(kind ObjectKind, desc any) (pipe.NativeObject, error) {
	d.mu.Lock()
	if d.failing[kind] > 0 {
		d.failing[kind]--
		d.mu.Unlock()
		return nil, fmt.Errorf("create %s: %w", kind, ErrInjected)
	}
	d.created[kind]++
	d.mu.Unlock()

	d.live.Add(1)
	return &Object{ID: d.nextID.Add(1), Kind: kind, Desc: desc, device: d}, nil
}

func (d *Device) CreateBlendState(desc *pipe.BlendDesc) (pipe.NativeObject, error) {
	return d.create(KindBlendState, *desc)
}

func (d *Device) CreateDepthStencilState(desc *pipe.DepthDesc) (pipe.NativeObject, error) {
	return d.create(KindDepthStencilState, *desc)
}

func (d *Device) CreateRasterizerState(desc *pipe.RasterizerDesc) (pipe.NativeObject, error) {
	return d.create(KindRasterizerState, *desc)
}

// ShaderDesc is the Desc of a recorded shader object.
type ShaderDesc struct {
	Kind       pipe.ShaderKind
	EntryPoint string
	Size       int
}

func (d *Device) CreateShader(kind pipe.ShaderKind, bytecode []byte, entryPoint string) (pipe.NativeObject, error) {
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("create %s shader %q: empty bytecode", kind, entryPoint)
	}
	return d.create(KindShader, ShaderDesc{Kind: kind, EntryPoint: entryPoint, Size: len(bytecode)})
}

func (d *Device) CreateInputLayout(elements []pipe.InputElement, signature []pipe.ShaderInput) (pipe.NativeObject, error) {
	return d.create(KindInputLayout, slices.Clone(elements))
}
