// Package params maps declared statement parameter names onto the
// caller's bound parameter collection. The collection exposes a
// structural revision counter bumped on every membership or name change;
// the derived name-to-ordinal mapping is cached keyed on that counter
// and rebuilt whenever it goes stale.
package params

import (
	"strings"

	"github.com/tomyedwab/fbwire/descriptor"
	"github.com/tomyedwab/fbwire/fberr"
)

// Parameter is one bound parameter: a declared name and its value.
type Parameter struct {
	Name  string
	Value descriptor.Value
}

// Collection is an ordered set of bound parameters. Adding, removing or
// renaming a parameter bumps the structural revision; changing a value
// does not.
type Collection struct {
	items    []Parameter
	revision uint64
}

// NewCollection creates an empty parameter collection.
func NewCollection() *Collection {
	return &Collection{}
}

// Revision returns the structural revision counter.
func (c *Collection) Revision() uint64 {
	return c.revision
}

// Len returns the number of bound parameters.
func (c *Collection) Len() int {
	return len(c.items)
}

// Add appends a bound parameter.
func (c *Collection) Add(name string, v descriptor.Value) {
	c.items = append(c.items, Parameter{Name: name, Value: v})
	c.revision++
}

// Remove drops the parameter with the given name, if present.
func (c *Collection) Remove(name string) {
	for i := range c.items {
		if equalName(c.items[i].Name, name) {
			c.items = append(c.items[:i], c.items[i+1:]...)
			c.revision++
			return
		}
	}
}

// Rename changes a parameter's declared name.
func (c *Collection) Rename(oldName, newName string) {
	for i := range c.items {
		if equalName(c.items[i].Name, oldName) {
			c.items[i].Name = newName
			c.revision++
			return
		}
	}
}

// SetValue rebinds the named parameter's value without touching the
// structural revision.
func (c *Collection) SetValue(name string, v descriptor.Value) bool {
	for i := range c.items {
		if equalName(c.items[i].Name, name) {
			c.items[i].Value = v
			return true
		}
	}
	return false
}

// Value returns the value at ordinal i.
func (c *Collection) Value(i int) descriptor.Value {
	return c.items[i].Value
}

// indexOf returns the ordinal of the named parameter, or -1.
func (c *Collection) indexOf(name string) int {
	for i := range c.items {
		if equalName(c.items[i].Name, name) {
			return i
		}
	}
	return -1
}

// equalName compares parameter names ignoring case and a leading '@' or
// ':' sigil, so "@ID", ":id" and "Id" all refer to the same parameter.
func equalName(a, b string) bool {
	return strings.EqualFold(trimSigil(a), trimSigil(b))
}

func trimSigil(s string) string {
	if len(s) > 0 && (s[0] == '@' || s[0] == ':') {
		return s[1:]
	}
	return s
}

// Mapper resolves a statement's declared parameter names, in declaration
// order, against a collection. Duplicate declared names resolve to the
// same ordinal and are filled with the same source value every
// occurrence.
type Mapper struct {
	declared []string
	ordinals Derived[[]int]
}

// NewMapper creates a mapper for the given declared names in order.
func NewMapper(declared []string) *Mapper {
	return &Mapper{declared: declared}
}

// Declared returns the declared names in order.
func (m *Mapper) Declared() []string {
	return m.declared
}

// Fill returns the bound values in declared order. A declared name with
// no bound parameter (including one orphaned by a rename since the last
// fill) surfaces a parameter binding error naming it.
func (m *Mapper) Fill(c *Collection) ([]descriptor.Value, error) {
	ordinals, err := m.ordinals.Get(c.Revision(), func() ([]int, error) {
		out := make([]int, len(m.declared))
		for i, name := range m.declared {
			ord := c.indexOf(name)
			if ord < 0 {
				return nil, fberr.NewParameterBindingError(name)
			}
			out[i] = ord
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	values := make([]descriptor.Value, len(ordinals))
	for i, ord := range ordinals {
		values[i] = c.Value(ord)
	}
	return values, nil
}
