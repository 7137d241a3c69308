package material

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/shader"
)

var (
	// ErrUnknownKind is returned for resource kind names outside the closed set.
	ErrUnknownKind = errors.New("unknown resource kind")

	// ErrKindMismatch is returned when a value or annotation does not fit a variable's kind.
	ErrKindMismatch = errors.New("resource kind mismatch")

	// ErrNotWritable is returned when writing to a variable whose value is not a buffer.
	ErrNotWritable = errors.New("variable is not writable")

	// ErrVariableSize is returned when a buffer variable would be created empty.
	ErrVariableSize = errors.New("variable needs a size")
)

// ResourceKind selects what a material variable holds and how it is created.
type ResourceKind uint8

const (
	KindConstants ResourceKind = iota
	KindTexture
	KindSampler
	KindBuffer
	KindRWBuffer
	KindRWTexture
)

var resourceKindNames = map[ResourceKind]string{
	KindConstants: string(shader.AnnotationArgConstants),
	KindTexture:   string(shader.AnnotationArgTexture),
	KindSampler:   string(shader.AnnotationArgSampler),
	KindBuffer:    string(shader.AnnotationArgBuffer),
	KindRWBuffer:  string(shader.AnnotationArgRWBuffer),
	KindRWTexture: string(shader.AnnotationArgRWTexture),
}

func (k ResourceKind) String() string {
	if n, ok := resourceKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("ResourceKind(%d)", uint8(k))
}

// ParseResourceKind resolves a kind name as written in annotations and material libraries.
func ParseResourceKind(name string) (ResourceKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range resourceKindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownKind, name)
}

// kindOf maps a reflected binding to the variable kind that serves it.
func kindOf(k shader.BindingKind) ResourceKind {
	switch k {
	case shader.BindingConstants:
		return KindConstants
	case shader.BindingStructured:
		return KindBuffer
	case shader.BindingSampler:
		return KindSampler
	case shader.BindingRWStructured:
		return KindRWBuffer
	case shader.BindingRWTexture:
		return KindRWTexture
	default:
		return KindTexture
	}
}

// compatible reports whether a variable of kind k may occupy a binding reflected as b.
func (k ResourceKind) compatible(b shader.BindingKind) bool {
	switch kindOf(b) {
	case KindTexture, KindBuffer:
		return k == KindTexture || k == KindBuffer
	case KindRWTexture, KindRWBuffer:
		return k == KindRWTexture || k == KindRWBuffer
	default:
		return k == kindOf(b)
	}
}

// VariableSpec configures the resource created for a variable.
type VariableSpec struct {
	// Size is the byte size of a constant buffer.
	Size uint64 `yaml:"size"`

	// Stride and Count size a structured buffer. Count defaults to 1.
	Stride uint32 `yaml:"stride"`
	Count  uint32 `yaml:"count"`

	// Sampler is a sampler preset such as "linear-wrap".
	Sampler string `yaml:"sampler"`
}

// variable is the implementation of the Variable interface.
type variable struct {
	name  string
	kind  ResourceKind
	value pipe.Bindable

	// owned is the resource the variable created, released with the variable.
	owned interface{ Release() error }
}

// Variable is a named material input bound to shader bind points by name.
type Variable interface {
	// Name retrieves the variable name.
	//
	// Returns:
	//   - string: the variable name
	Name() string

	// Kind retrieves the resource kind of the variable.
	//
	// Returns:
	//   - ResourceKind: the kind
	Kind() ResourceKind

	// Value retrieves the bindable the variable currently holds.
	//
	// Returns:
	//   - pipe.Bindable: the value, nil for an unset texture
	Value() pipe.Bindable

	// Set replaces the value. A created resource stays owned by the variable until Release.
	//
	// Parameters:
	//   - value: a bindable that fits the variable's kind, or nil to clear it
	//
	// Returns:
	//   - error: ErrKindMismatch when the value does not fit
	Set(value pipe.Bindable) error

	// Write uploads bytes into a buffer value.
	//
	// Parameters:
	//   - offset: byte offset into the buffer
	//   - data: the bytes
	//
	// Returns:
	//   - error: ErrNotWritable, or the buffer's write error
	Write(offset uint64, data []byte) error

	// Release releases the resource the variable created, if any.
	//
	// Returns:
	//   - error: the release error
	Release() error
}

var _ Variable = &variable{}

// NewVariable creates a variable and, for owned kinds, its resource. Textures are provided by the caller
// through Set.
//
// Parameters:
//   - f: the resource factory; may be nil when kind is a texture kind
//   - name: the variable name, also the debug name of the created resource
//   - kind: the resource kind
//   - spec: sizing and preset for the created resource
//
// Returns:
//   - Variable: the variable
//   - error: a resource creation error
func NewVariable(f resource.Factory, name string, kind ResourceKind, spec VariableSpec) (Variable, error) {
	v := &variable{name: name, kind: kind}
	switch kind {
	case KindConstants:
		if spec.Size == 0 {
			return nil, fmt.Errorf("constants %q: %w", name, ErrVariableSize)
		}
		b, err := f.CreateConstantBuffer(name, spec.Size)
		if err != nil {
			return nil, err
		}
		v.value, v.owned = b, b
	case KindSampler:
		desc, err := resource.ParseSamplerPreset(spec.Sampler)
		if err != nil {
			return nil, err
		}
		s, err := f.CreateSampler(name, desc)
		if err != nil {
			return nil, err
		}
		v.value, v.owned = s, s
	case KindBuffer, KindRWBuffer:
		if spec.Stride == 0 {
			return nil, fmt.Errorf("%s %q: %w", kind, name, ErrVariableSize)
		}
		count := spec.Count
		if count == 0 {
			count = 1
		}
		b, err := f.CreateStructuredBuffer(name, spec.Stride, count)
		if err != nil {
			return nil, err
		}
		v.value, v.owned = b, b
	case KindTexture, KindRWTexture:
	default:
		return nil, fmt.Errorf("variable %q: %w %d", name, ErrUnknownKind, kind)
	}
	return v, nil
}

func (v *variable) Name() string         { return v.name }
func (v *variable) Kind() ResourceKind   { return v.kind }
func (v *variable) Value() pipe.Bindable { return v.value }

func (v *variable) Set(value pipe.Bindable) error {
	if value == nil {
		v.value = nil
		return nil
	}
	var ok bool
	switch v.kind {
	case KindConstants:
		_, ok = value.(pipe.ConstantBuffer)
	case KindTexture, KindBuffer:
		_, ok = value.(pipe.ShaderResource)
	case KindSampler:
		_, isSampler := value.(pipe.Sampler)
		_, isBuffer := value.(pipe.ConstantBuffer)
		ok = isSampler && !isBuffer
	case KindRWBuffer, KindRWTexture:
		_, ok = value.(pipe.UnorderedAccess)
	}
	if !ok {
		return fmt.Errorf("set %s %q to %q: %w", v.kind, v.name, value.Name(), ErrKindMismatch)
	}
	v.value = value
	return nil
}

func (v *variable) Write(offset uint64, data []byte) error {
	w, ok := v.value.(interface {
		Write(offset uint64, data []byte) error
	})
	if !ok {
		return fmt.Errorf("write %q: %w", v.name, ErrNotWritable)
	}
	return w.Write(offset, data)
}

func (v *variable) Release() error {
	if v.owned == nil {
		return nil
	}
	err := v.owned.Release()
	if err == nil {
		if any(v.value) == any(v.owned) {
			v.value = nil
		}
		v.owned = nil
	}
	return err
}

// valueAs narrows a variable's value to the interface a slot group holds. An unset or mismatched value is the
// zero value so the bind point stays empty and fails validation.
func valueAs[T any](v Variable) T {
	var zero T
	if v == nil {
		return zero
	}
	t, ok := v.Value().(T)
	if !ok {
		return zero
	}
	return t
}
