package pipe

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ShaderProgram is a compiled shader for one stage. Update swaps in new bytecode (hot reload); the next bind
// recreates the native shader and bumps the version so every slot holding it re-sends it.
type ShaderProgram struct {
	BindableBase

	kind       ShaderKind
	entryPoint string

	srcMu       sync.Mutex
	bytecode    []byte
	inputs      []ShaderInput
	threadGroup [3]uint32
	dirty       bool

	native NativeObject
}

var _ Bindable = &ShaderProgram{}

// NewShaderProgram wraps compiled bytecode. The native shader is created when the program is first bound.
//
// Parameters:
//   - name: debug name
//   - kind: the stage the program runs in
//   - entryPoint: the entry point name inside the bytecode
//   - bytecode: the compiled program
//   - inputs: the input signature (vertex programs only)
//
// Returns:
//   - *ShaderProgram: the program
func NewShaderProgram(name string, kind ShaderKind, entryPoint string, bytecode []byte, inputs []ShaderInput) *ShaderProgram {
	p := &ShaderProgram{
		kind:       kind,
		entryPoint: entryPoint,
		bytecode:   bytecode,
		inputs:     inputs,
	}
	p.name = name
	return p
}

func (p *ShaderProgram) Kind() ShaderKind   { return p.kind }
func (p *ShaderProgram) EntryPoint() string { return p.entryPoint }

// Inputs returns the vertex input signature.
func (p *ShaderProgram) Inputs() []ShaderInput {
	p.srcMu.Lock()
	defer p.srcMu.Unlock()
	return p.inputs
}

// ThreadGroupSize returns the compute workgroup size.
func (p *ShaderProgram) ThreadGroupSize() [3]uint32 {
	p.srcMu.Lock()
	defer p.srcMu.Unlock()
	return p.threadGroup
}

// SetThreadGroupSize records the compute workgroup size reported by reflection.
func (p *ShaderProgram) SetThreadGroupSize(size [3]uint32) {
	p.srcMu.Lock()
	defer p.srcMu.Unlock()
	p.threadGroup = size
}

// Bytecode returns the current program bytes.
func (p *ShaderProgram) Bytecode() []byte {
	p.srcMu.Lock()
	defer p.srcMu.Unlock()
	return p.bytecode
}

// Update replaces the bytecode and input signature. Safe to call from any goroutine.
func (p *ShaderProgram) Update(bytecode []byte, inputs []ShaderInput) {
	p.srcMu.Lock()
	defer p.srcMu.Unlock()
	p.bytecode = bytecode
	p.inputs = inputs
	p.dirty = true
}

// Native returns the non-owning native shader, nil until first bound.
func (p *ShaderProgram) Native() NativeObject {
	p.srcMu.Lock()
	defer p.srcMu.Unlock()
	return p.native
}

func (p *ShaderProgram) Refresh(_ BindSlot, ctx *DeviceContext) error {
	p.srcMu.Lock()
	defer p.srcMu.Unlock()
	if p.native != nil && !p.dirty {
		return nil
	}
	obj, err := ctx.device.native.CreateShader(p.kind, p.bytecode, p.entryPoint)
	if err != nil {
		return fmt.Errorf("create %s shader %q: %w", p.kind, p.Name(), err)
	}
	if p.native != nil {
		ctx.device.MarkForRelease(nativeRelease{p.native})
	}
	p.native = obj
	p.dirty = false
	p.BumpVersion()
	return nil
}

// Release retires the program and queues its native shader for release.
func (p *ShaderProgram) Release(d *Device) error {
	if err := p.Retire(); err != nil {
		return err
	}
	p.srcMu.Lock()
	defer p.srcMu.Unlock()
	if p.native != nil {
		d.MarkForRelease(nativeRelease{p.native})
		p.native = nil
	}
	return nil
}

// InputLayout binds the vertex buffer layouts of the input assembler to a vertex program's input signature.
// Devices cache them by signature.
type InputLayout struct {
	BindableBase
	key       string
	elements  []InputElement
	signature []ShaderInput

	nativeMu sync.Mutex
	native   NativeObject
}

var _ Bindable = &InputLayout{}

// Elements returns the native input elements.
func (l *InputLayout) Elements() []InputElement { return l.elements }

// Key returns the cache key of the layout.
func (l *InputLayout) Key() string { return l.key }

func (l *InputLayout) Native() NativeObject {
	l.nativeMu.Lock()
	defer l.nativeMu.Unlock()
	return l.native
}

func (l *InputLayout) Refresh(_ BindSlot, ctx *DeviceContext) error {
	l.nativeMu.Lock()
	defer l.nativeMu.Unlock()
	if l.native != nil {
		return nil
	}
	obj, err := ctx.device.native.CreateInputLayout(l.elements, l.signature)
	if err != nil {
		return fmt.Errorf("create input layout %q: %w", l.key, err)
	}
	l.native = obj
	l.BumpVersion()
	return nil
}

// inputLayoutKey builds the cache key for a set of elements and a signature.
func inputLayoutKey(elements []InputElement, signature []ShaderInput) string {
	var sb strings.Builder
	for _, e := range elements {
		fmt.Fprintf(&sb, "%d:%s%d:%d:%d:%t;", e.Slot, e.Semantic, e.SemanticIndex, e.Format, e.Offset, e.Instanced)
	}
	sb.WriteByte('|')
	for _, in := range signature {
		fmt.Fprintf(&sb, "%s%d:%d;", in.Semantic, in.SemanticIndex, in.Format)
	}
	return sb.String()
}

// buildInputElements flattens bound vertex buffer layouts into native input elements.
func buildInputElements(buffers []VertexBuffer) []InputElement {
	var elements []InputElement
	for slot, vb := range buffers {
		if vb == nil {
			continue
		}
		layout := vb.VertexLayout()
		if layout == nil {
			continue
		}
		for _, e := range layout.Elements {
			elements = append(elements, InputElement{VertexElement: e, Slot: uint32(slot), Instanced: layout.Instanced})
		}
	}
	return elements
}

// matchSignature checks every shader input is provided by an element with the same semantic and a matching format.
func matchSignature(elements []InputElement, signature []ShaderInput) bool {
	for _, in := range signature {
		i := slices.IndexFunc(elements, func(e InputElement) bool {
			return strings.EqualFold(e.Semantic, in.Semantic) && e.SemanticIndex == in.SemanticIndex
		})
		if i < 0 {
			return false
		}
		if in.Format != 0 && elements[i].Format != in.Format {
			return false
		}
	}
	return true
}
