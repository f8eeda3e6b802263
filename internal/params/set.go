package params

import (
	"fmt"
	"strings"

	"github.com/danmuck/distask/internal/protocol"
)

type namespace struct {
	order []string
	items map[string]protocol.Value
}

func newNamespace() namespace {
	return namespace{items: make(map[string]protocol.Value)}
}

func (n *namespace) values() []protocol.Value {
	out := make([]protocol.Value, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.items[name])
	}
	return out
}

// Set is an insertion-ordered collection of named values split into
// general, matrix and pointer sub-namespaces.
type Set struct {
	general  namespace
	matrices namespace
	pointers namespace
	cursor   int
}

// New returns an empty set.
func New() *Set {
	return &Set{
		general:  newNamespace(),
		matrices: newNamespace(),
		pointers: newNamespace(),
	}
}

func (s *Set) space(ns protocol.Namespace) *namespace {
	switch ns {
	case protocol.NamespaceMatrix:
		return &s.matrices
	case protocol.NamespacePointer:
		return &s.pointers
	default:
		return &s.general
	}
}

// Add inserts v into the sub-namespace of its tag. A name already present
// in that sub-namespace fails with ErrDuplicateName and the stored value
// is left alone.
func (s *Set) Add(v protocol.Value) error {
	if err := protocol.ValidName(v.Name()); err != nil {
		return err
	}
	if !v.Tag().Valid() {
		return fmt.Errorf("%w: %q has no tag", protocol.ErrUnknownTag, v.Name())
	}
	ns := s.space(v.Tag().Namespace())
	if prev, ok := ns.items[v.Name()]; ok {
		return fmt.Errorf("%w: %q already holds %s", protocol.ErrDuplicateName, v.Name(), prev.Tag())
	}
	ns.items[v.Name()] = v
	ns.order = append(ns.order, v.Name())
	return nil
}

// AddTagged inserts value under an explicit tag; the payload must be the
// tag's representation.
func (s *Set) AddTagged(name string, tag protocol.Tag, value any) error {
	v, err := protocol.New(name, tag, value)
	if err != nil {
		return err
	}
	return s.Add(v)
}

// Get looks name up and checks the stored tag against tag.
func (s *Set) Get(name string, tag protocol.Tag) (protocol.Value, error) {
	if v, ok := s.space(tag.Namespace()).items[name]; ok {
		if v.Tag() != tag {
			return protocol.Value{}, mismatch(name, v.Tag(), tag)
		}
		return v, nil
	}
	for _, ns := range []*namespace{&s.general, &s.matrices, &s.pointers} {
		if v, ok := ns.items[name]; ok {
			return protocol.Value{}, mismatch(name, v.Tag(), tag)
		}
	}
	return protocol.Value{}, fmt.Errorf("%w: %q (%s)", protocol.ErrNotFound, name, tag)
}

func mismatch(name string, stored, requested protocol.Tag) error {
	return fmt.Errorf("%w: %q is %s, requested %s", protocol.ErrTypeMismatch, name, stored, requested)
}

// Lookup returns the value stored under name in any sub-namespace,
// general first.
func (s *Set) Lookup(name string) (protocol.Value, bool) {
	for _, ns := range []*namespace{&s.general, &s.matrices, &s.pointers} {
		if v, ok := ns.items[name]; ok {
			return v, true
		}
	}
	return protocol.Value{}, false
}

// Next advances the cursor over the general sub-namespace in insertion
// order and fails with ErrExhausted past the last element.
func (s *Set) Next() (string, protocol.Tag, error) {
	if s.cursor >= len(s.general.order) {
		return "", protocol.TagNone, protocol.ErrExhausted
	}
	name := s.general.order[s.cursor]
	s.cursor++
	return name, s.general.items[name].Tag(), nil
}

// Rewind resets the Next cursor.
func (s *Set) Rewind() {
	s.cursor = 0
}

// Count is general plus matrix values; pointers are not counted.
func (s *Set) Count() int {
	return len(s.general.order) + len(s.matrices.order)
}

func (s *Set) MatrixCount() int {
	return len(s.matrices.order)
}

func (s *Set) PointerCount() int {
	return len(s.pointers.order)
}

// Len counts every value in every sub-namespace.
func (s *Set) Len() int {
	return s.Count() + len(s.pointers.order)
}

// Values returns the general values in insertion order.
func (s *Set) Values() []protocol.Value {
	return s.general.values()
}

// Matrices returns matrix handles and descriptors in insertion order.
func (s *Set) Matrices() []protocol.Value {
	return s.matrices.values()
}

// Pointers returns the process-local pointer values in insertion order.
func (s *Set) Pointers() []protocol.Value {
	return s.pointers.values()
}

// All returns general, matrix, then pointer values.
func (s *Set) All() []protocol.Value {
	out := s.Values()
	out = append(out, s.Matrices()...)
	return append(out, s.Pointers()...)
}

// Render lists name(value) pairs for logs: general values, then matrices
// as name(mh ...), then pointers.
func (s *Set) Render() string {
	var b strings.Builder
	for _, v := range s.Values() {
		b.WriteString(v.String())
	}
	for _, v := range s.Matrices() {
		b.WriteString(v.Name())
		b.WriteString("(mh ")
		b.WriteString(v.Render())
		b.WriteString(")")
	}
	for _, v := range s.Pointers() {
		b.WriteString(v.String())
	}
	return b.String()
}

func (s *Set) String() string {
	return s.Render()
}

// Add inserts v under name with the tag chosen by T.
func Add[T protocol.Kind](s *Set, name string, v T) error {
	return s.Add(protocol.Make(name, v))
}

// Get extracts name as T, failing with ErrNotFound or ErrTypeMismatch.
func Get[T protocol.Kind](s *Set, name string) (T, error) {
	var zero T
	v, err := s.Get(name, protocol.TagOf[T]())
	if err != nil {
		return zero, err
	}
	return protocol.As[T](v)
}
