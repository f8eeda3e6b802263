package matrix

import (
	"errors"
	"fmt"
)

var (
	ErrDimensionMismatch = errors.New("matrix: dimension mismatch")
	ErrInvalidWorker     = errors.New("matrix: invalid worker")
	ErrInvalidPartitions = errors.New("matrix: invalid partition count")
	ErrInvalidLayout     = errors.New("matrix: invalid layout")
	ErrUnknownHandle     = errors.New("matrix: unknown handle")
	ErrRegistryFull      = errors.New("matrix: handle space exhausted")
	ErrTooLarge          = errors.New("matrix: dimensions exceed limit")
)

// ID is a driver-scoped matrix handle. Zero marks a proposed descriptor
// that has not been registered yet.
type ID uint16

// WorkerID indexes a rank in the world.
type WorkerID uint16

// Layout is the storage layout tag of a distributed matrix.
type Layout uint8

const (
	LayoutRowMajor Layout = iota
	LayoutColumnMajor
	LayoutCSR
)

func (l Layout) String() string {
	switch l {
	case LayoutRowMajor:
		return "row-major"
	case LayoutColumnMajor:
		return "column-major"
	case LayoutCSR:
		return "csr"
	default:
		return fmt.Sprintf("layout(%d)", uint8(l))
	}
}

func (l Layout) Valid() bool {
	return l <= LayoutCSR
}

// ParseLayout maps a layout name back to its tag.
func ParseLayout(raw string) (Layout, error) {
	switch raw {
	case "", "row-major":
		return LayoutRowMajor, nil
	case "column-major":
		return LayoutColumnMajor, nil
	case "csr":
		return LayoutCSR, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLayout, raw)
	}
}

// Descriptor is the only representation of a distributed matrix that
// crosses the library boundary.
type Descriptor struct {
	ID            ID
	Name          string
	Rows          uint64
	Cols          uint64
	Sparse        bool
	Layout        Layout
	Partitions    uint16
	RowAssignment []WorkerID
}

// Validate checks the layout invariants. worldSize <= 0 skips the world bound.
func (d Descriptor) Validate(worldSize int) error {
	if !d.Layout.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLayout, d.Layout)
	}
	if d.Partitions == 0 {
		return fmt.Errorf("%w: zero partitions", ErrInvalidPartitions)
	}
	if worldSize > 0 && int(d.Partitions) > worldSize {
		return fmt.Errorf("%w: %d partitions exceed world size %d", ErrInvalidPartitions, d.Partitions, worldSize)
	}
	return checkAssignment(d.RowAssignment, d.Rows, d.Partitions)
}

func checkAssignment(rows []WorkerID, numRows uint64, partitions uint16) error {
	if uint64(len(rows)) != numRows {
		return fmt.Errorf("%w: %d row entries for %d rows", ErrDimensionMismatch, len(rows), numRows)
	}
	for i, w := range rows {
		if uint16(w) >= partitions {
			return fmt.Errorf("%w: row %d assigned to worker %d of %d", ErrInvalidWorker, i, w, partitions)
		}
	}
	return nil
}

// Clone returns a deep copy; the row table is never shared between snapshots.
func (d Descriptor) Clone() Descriptor {
	out := d
	if d.RowAssignment != nil {
		out.RowAssignment = make([]WorkerID, len(d.RowAssignment))
		copy(out.RowAssignment, d.RowAssignment)
	}
	return out
}

// RowsOf lists the global row indexes assigned to worker w, ascending.
func (d Descriptor) RowsOf(w WorkerID) []int {
	out := make([]int, 0, len(d.RowAssignment)/max(int(d.Partitions), 1)+1)
	for i, owner := range d.RowAssignment {
		if owner == w {
			out = append(out, i)
		}
	}
	return out
}

// Transposed proposes the descriptor of the transpose: dimensions swapped,
// same partition count, round-robin rows. The result has no ID.
func (d Descriptor) Transposed() Descriptor {
	name := d.Name
	if name != "" {
		name += "^T"
	}
	return Descriptor{
		Name:          name,
		Rows:          d.Cols,
		Cols:          d.Rows,
		Sparse:        d.Sparse,
		Layout:        d.Layout,
		Partitions:    d.Partitions,
		RowAssignment: PolicyRoundRobin.Assign(d.Cols, d.Partitions),
	}
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%d %dx%d parts=%d %s", d.ID, d.Rows, d.Cols, d.Partitions, d.Layout)
}
