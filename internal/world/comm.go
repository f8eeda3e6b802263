package world

import (
	"fmt"
	"math"
)

// Op selects the reduction applied by AllReduceFloat64.
type Op uint8

const (
	OpSum Op = iota
	OpMax
	OpMin
)

func (o Op) String() string {
	switch o {
	case OpSum:
		return "sum"
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Comm is one rank's view of the group. Every collective must be entered
// by all ranks in the same order; a rank that skips one deadlocks its peers.
type Comm interface {
	Rank() int
	Size() int
	Barrier()
	AllReduceFloat64(v float64, op Op) float64
	BroadcastBytes(root int, b []byte) []byte
}

func reduce(vals []any, op Op) float64 {
	var acc float64
	switch op {
	case OpMax:
		acc = math.Inf(-1)
	case OpMin:
		acc = math.Inf(1)
	}
	for _, raw := range vals {
		v := raw.(float64)
		switch op {
		case OpMax:
			acc = math.Max(acc, v)
		case OpMin:
			acc = math.Min(acc, v)
		default:
			acc += v
		}
	}
	return acc
}
