package matrix

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Spec describes a matrix to register.
type Spec struct {
	Name       string
	Rows       uint64
	Cols       uint64
	Sparse     bool
	Layout     Layout
	Partitions uint16 // zero means one partition per worker
	Policy     Policy // empty means the registry default
}

// MaxRows bounds the row table a registry will build for one matrix.
const MaxRows = 1 << 30

// Registry stores descriptors by handle. It is owned by the driver and is
// not safe for concurrent mutation.
type Registry struct {
	worldSize int
	policy    Policy
	next      ID
	full      bool
	cellLimit uint64
	items     map[ID]*Descriptor
}

// NewRegistry creates an empty registry for a world of worldSize workers.
func NewRegistry(worldSize int, policy Policy) *Registry {
	if policy == "" {
		policy = PolicyRoundRobin
	}
	return &Registry{
		worldSize: worldSize,
		policy:    policy,
		next:      1,
		items:     make(map[ID]*Descriptor),
	}
}

// SetCellLimit caps rows*cols for registered and adopted matrices. Zero
// leaves only the MaxRows bound.
func (r *Registry) SetCellLimit(cells uint64) {
	r.cellLimit = cells
}

func (r *Registry) checkSize(rows, cols uint64) error {
	if rows > MaxRows {
		return fmt.Errorf("%w: %d rows", ErrTooLarge, rows)
	}
	if r.cellLimit == 0 {
		return nil
	}
	if rows > r.cellLimit || cols > r.cellLimit || (cols > 0 && rows > r.cellLimit/cols) {
		return fmt.Errorf("%w: %dx%d", ErrTooLarge, rows, cols)
	}
	return nil
}

// Register assigns a new unique handle and a default row assignment.
func (r *Registry) Register(spec Spec) (Descriptor, error) {
	if r.full {
		return Descriptor{}, ErrRegistryFull
	}
	if err := r.checkSize(spec.Rows, spec.Cols); err != nil {
		return Descriptor{}, err
	}
	partitions := spec.Partitions
	if partitions == 0 {
		partitions = uint16(min(r.worldSize, math.MaxUint16))
	}
	policy := spec.Policy
	if policy == "" {
		policy = r.policy
	}
	desc := Descriptor{
		Name:          strings.TrimSpace(spec.Name),
		Rows:          spec.Rows,
		Cols:          spec.Cols,
		Sparse:        spec.Sparse,
		Layout:        spec.Layout,
		Partitions:    partitions,
		RowAssignment: policy.Assign(spec.Rows, partitions),
	}
	if err := desc.Validate(r.worldSize); err != nil {
		return Descriptor{}, err
	}
	return r.admit(desc), nil
}

// Adopt registers a proposed descriptor produced by a library. Its row
// table is kept as long as it satisfies the layout invariants.
func (r *Registry) Adopt(desc Descriptor) (Descriptor, error) {
	if r.full {
		return Descriptor{}, ErrRegistryFull
	}
	if err := r.checkSize(desc.Rows, desc.Cols); err != nil {
		return Descriptor{}, err
	}
	desc = desc.Clone()
	if err := desc.Validate(r.worldSize); err != nil {
		return Descriptor{}, err
	}
	return r.admit(desc), nil
}

func (r *Registry) admit(desc Descriptor) Descriptor {
	desc.ID = r.next
	if r.next == math.MaxUint16 {
		r.full = true
	} else {
		r.next++
	}
	stored := desc.Clone()
	r.items[desc.ID] = &stored
	return desc
}

// Repartition replaces the row assignment wholesale. On error the
// descriptor is unchanged.
func (r *Registry) Repartition(id ID, rows []WorkerID) error {
	desc, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, id)
	}
	if err := checkAssignment(rows, desc.Rows, desc.Partitions); err != nil {
		return err
	}
	table := make([]WorkerID, len(rows))
	copy(table, rows)
	desc.RowAssignment = table
	return nil
}

// Describe returns a read-only snapshot.
func (r *Registry) Describe(id ID) (Descriptor, error) {
	desc, ok := r.items[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %d", ErrUnknownHandle, id)
	}
	return desc.Clone(), nil
}

// Retire invalidates the handle. Handles are never reissued.
func (r *Registry) Retire(id ID) error {
	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, id)
	}
	delete(r.items, id)
	return nil
}

// List returns snapshots ordered by handle.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.items))
	for _, desc := range r.items {
		out = append(out, desc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Len reports the number of live handles.
func (r *Registry) Len() int {
	return len(r.items)
}
