// Package engine holds the numeric storage behind registered matrix handles.
// Libraries reach it through the Engine interface; storage never crosses the
// library boundary by value except through Fetch.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/distask/internal/matrix"
	"gonum.org/v1/gonum/mat"
)

var ErrTooLarge = errors.New("engine: matrix exceeds cell limit")

// MaxCells bounds the dense backing allocated for one handle.
const MaxCells = 1 << 26

// Engine is the per-rank view libraries use.
type Engine interface {
	Describe(id matrix.ID) (matrix.Descriptor, error)
	LocalRows(id matrix.ID, rank int) ([]int, error)
	Scale(id matrix.ID, rank int, alpha float64) error
	SumSquares(id matrix.ID, rank int) (float64, error)
	Fetch(id matrix.ID) (*mat.Dense, error)
}

type entry struct {
	desc matrix.Descriptor
	data *mat.Dense
}

// Store is a gonum-backed Engine. The driver populates it as handles are
// registered, repartitioned and retired. Sparse handles are materialised
// densely.
type Store struct {
	mu      sync.RWMutex
	entries map[matrix.ID]*entry
}

func NewStore() *Store {
	return &Store{entries: make(map[matrix.ID]*entry)}
}

// Put installs storage for desc. A nil data allocates zeros.
func (s *Store) Put(desc matrix.Descriptor, data *mat.Dense) error {
	if desc.Rows == 0 || desc.Cols == 0 {
		return fmt.Errorf("%w: %dx%d", matrix.ErrDimensionMismatch, desc.Rows, desc.Cols)
	}
	if desc.Rows > MaxCells || desc.Cols > MaxCells || desc.Rows*desc.Cols > MaxCells {
		return fmt.Errorf("%w: %dx%d", ErrTooLarge, desc.Rows, desc.Cols)
	}
	if data == nil {
		data = mat.NewDense(int(desc.Rows), int(desc.Cols), nil)
	} else {
		r, c := data.Dims()
		if uint64(r) != desc.Rows || uint64(c) != desc.Cols {
			return fmt.Errorf("%w: data %dx%d for %s", matrix.ErrDimensionMismatch, r, c, desc)
		}
		data = mat.DenseCopyOf(data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[desc.ID] = &entry{desc: desc.Clone(), data: data}
	return nil
}

// Load overwrites the contents of id with data of the same shape.
func (s *Store) Load(id matrix.ID, data mat.Matrix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	r, c := data.Dims()
	er, ec := e.data.Dims()
	if r != er || c != ec {
		return fmt.Errorf("%w: data %dx%d for %dx%d", matrix.ErrDimensionMismatch, r, c, er, ec)
	}
	e.data.Copy(data)
	return nil
}

// Update replaces the descriptor of an existing handle, keeping its data.
func (s *Store) Update(desc matrix.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(desc.ID)
	if err != nil {
		return err
	}
	if e.desc.Rows != desc.Rows || e.desc.Cols != desc.Cols {
		return fmt.Errorf("%w: %s", matrix.ErrDimensionMismatch, desc)
	}
	e.desc = desc.Clone()
	return nil
}

func (s *Store) Remove(id matrix.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

func (s *Store) Describe(id matrix.ID) (matrix.Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.lookup(id)
	if err != nil {
		return matrix.Descriptor{}, err
	}
	return e.desc.Clone(), nil
}

func (s *Store) LocalRows(id matrix.ID, rank int) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.desc.RowsOf(matrix.WorkerID(rank)), nil
}

// Scale multiplies the rows owned by rank in place.
func (s *Store) Scale(id matrix.ID, rank int, alpha float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	for _, i := range e.desc.RowsOf(matrix.WorkerID(rank)) {
		row := e.data.RawRowView(i)
		for j := range row {
			row[j] *= alpha
		}
	}
	return nil
}

// SumSquares sums the squared entries of the rows owned by rank.
func (s *Store) SumSquares(id matrix.ID, rank int) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, i := range e.desc.RowsOf(matrix.WorkerID(rank)) {
		row := e.data.RawRowView(i)
		sum += mat.Dot(mat.NewVecDense(len(row), row), mat.NewVecDense(len(row), row))
	}
	return sum, nil
}

// Fetch returns a copy of the full matrix.
func (s *Store) Fetch(id matrix.ID) (*mat.Dense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(e.data), nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) lookup(id matrix.ID) (*entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", matrix.ErrUnknownHandle, id)
	}
	return e, nil
}
