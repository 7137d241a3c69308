package material

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
)

// ErrUnknownVariable is returned when a name has no variable in a set.
var ErrUnknownVariable = errors.New("unknown variable")

// VariableSet is the named variables of a material or compute task, shared by all of its passes.
type VariableSet struct {
	order []string
	vars  map[string]Variable
}

// NewVariableSet creates an empty set.
func NewVariableSet() *VariableSet {
	return &VariableSet{vars: make(map[string]Variable)}
}

// Add inserts a variable. An existing variable with the same name is replaced and returned so the caller can
// release it.
func (s *VariableSet) Add(v Variable) Variable {
	prev, ok := s.vars[v.Name()]
	if !ok {
		s.order = append(s.order, v.Name())
	}
	s.vars[v.Name()] = v
	return prev
}

// Get returns the variable with a name.
func (s *VariableSet) Get(name string) (Variable, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// Names returns the variable names in insertion order.
func (s *VariableSet) Names() []string {
	return s.order
}

// Set assigns the value of a named variable.
func (s *VariableSet) Set(name string, value pipe.Bindable) error {
	v, ok := s.vars[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownVariable, name)
	}
	return v.Set(value)
}

// Write uploads bytes into a named buffer variable.
func (s *VariableSet) Write(name string, offset uint64, data []byte) error {
	v, ok := s.vars[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownVariable, name)
	}
	return v.Write(offset, data)
}

// Release releases every variable's owned resource and joins the errors.
func (s *VariableSet) Release() error {
	var errs []error
	for _, name := range s.order {
		if err := s.vars[name].Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
