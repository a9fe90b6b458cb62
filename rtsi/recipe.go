package rtsi

import (
	"fmt"

	"github.com/arloliu/go-elite/value"
)

// Direction tells whether a recipe carries controller outputs or controller inputs.
type Direction uint8

const (
	// Output recipes are sent by the controller at the subscribed frequency.
	Output Direction = iota
	// Input recipes are sent by the client to write controller inputs.
	Input
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}

	return "output"
}

// Recipe is an ordered list of named variables bound to a recipe id by the setup handshake.
//
// The order of the variables, and therefore the position of every field in a data package, is fixed for the
// lifetime of the recipe. Each variable's type tag is recorded at setup time; values can only be set with
// that exact type.
//
// A Recipe is not safe for concurrent use. It is mutated in place by Client.ReceiveData (outputs) and by its
// setters (inputs); callers sharing a recipe between goroutines must serialize access.
type Recipe struct {
	id        uint8
	dir       Direction
	frequency float64
	names     []string
	types     []value.Type
	values    []value.Value
	index     map[string]int
}

// NewRecipe creates a recipe with zero values. Recipes are normally created by Client.SetupOutputRecipe and
// Client.SetupInputRecipe; NewRecipe is useful for offline encoding and tests.
func NewRecipe(id uint8, dir Direction, names []string, types []value.Type) (*Recipe, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("recipe %d: no variables", id)
	}
	if len(names) != len(types) {
		return nil, fmt.Errorf("recipe %d: %d names but %d types", id, len(names), len(types))
	}

	r := &Recipe{
		id:     id,
		dir:    dir,
		names:  append([]string(nil), names...),
		types:  append([]value.Type(nil), types...),
		values: make([]value.Value, len(names)),
		index:  make(map[string]int, len(names)),
	}
	for i, name := range names {
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("recipe %d: duplicate variable %q", id, name)
		}
		if !types[i].IsValid() {
			return nil, fmt.Errorf("recipe %d: variable %q has invalid type", id, name)
		}
		r.index[name] = i
		r.values[i] = value.Zero(types[i])
	}

	return r, nil
}

// ID returns the controller assigned recipe id.
func (r *Recipe) ID() uint8 { return r.id }

// Direction returns whether r is an input or output recipe.
func (r *Recipe) Direction() Direction { return r.dir }

// Frequency returns the requested output frequency in Hz, or 0 for input recipes.
func (r *Recipe) Frequency() float64 { return r.frequency }

// Len returns the number of variables.
func (r *Recipe) Len() int { return len(r.names) }

// Names returns the variable names in wire order.
func (r *Recipe) Names() []string { return append([]string(nil), r.names...) }

// Types returns the variable type tags in wire order.
func (r *Recipe) Types() []value.Type { return append([]value.Type(nil), r.types...) }

// PayloadSize returns the encoded size of all fields, excluding the recipe id.
func (r *Recipe) PayloadSize() int {
	n := 0
	for _, t := range r.types {
		n += t.Size()
	}

	return n
}

// Has reports whether name is part of the recipe.
func (r *Recipe) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// TypeOf returns the type tag of the variable name.
func (r *Recipe) TypeOf(name string) (value.Type, bool) {
	i, ok := r.index[name]
	if !ok {
		return value.TypeInvalid, false
	}

	return r.types[i], true
}

// Value returns the current value of name.
func (r *Recipe) Value(name string) (value.Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return value.Value{}, false
	}

	return r.values[i], true
}

// ValueAt returns the value at wire position i.
func (r *Recipe) ValueAt(i int) value.Value { return r.values[i] }

// Values returns a copy of all current values in wire order.
func (r *Recipe) Values() []value.Value { return append([]value.Value(nil), r.values...) }

// SetValue assigns v to name. The tag of v must equal the variable's type.
func (r *Recipe) SetValue(name string, v value.Value) error {
	i, ok := r.index[name]
	if !ok {
		return fmt.Errorf("recipe %d has no variable %q", r.id, name)
	}
	if v.Type() != r.types[i] {
		return fmt.Errorf("%w: variable %q is %s, got %s", value.ErrTypeMismatch, name, r.types[i], v.Type())
	}
	r.values[i] = v

	return nil
}

// Get returns the value of name as T. It fails when name is unknown or its type is not T.
func Get[T value.Kind](r *Recipe, name string) (T, error) {
	v, ok := r.Value(name)
	if !ok {
		var zero T
		return zero, fmt.Errorf("recipe %d has no variable %q", r.id, name)
	}

	return value.As[T](v)
}

// Set assigns x to name. It fails when name is unknown or its type is not T.
func Set[T value.Kind](r *Recipe, name string, x T) error {
	return r.SetValue(name, value.Of(x))
}
