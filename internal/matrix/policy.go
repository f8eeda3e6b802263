package matrix

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Policy picks the default row assignment for a newly registered matrix.
type Policy string

const (
	PolicyRoundRobin Policy = "round-robin"
	PolicyBlock      Policy = "block"
	PolicyRoot       Policy = "root"
)

// ParsePolicy normalizes a configured policy name.
func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PolicyRoundRobin, nil
	case PolicyRoundRobin, PolicyBlock, PolicyRoot:
		return p, nil
	default:
		return "", fmt.Errorf("matrix: unknown partition policy %q", raw)
	}
}

// Assign builds a row table of length rows with entries in [0, partitions).
func (p Policy) Assign(rows uint64, partitions uint16) []WorkerID {
	if partitions == 0 {
		partitions = 1
	}
	n := int(rows)
	switch p {
	case PolicyRoot:
		return lo.Times(n, func(int) WorkerID { return 0 })
	case PolicyBlock:
		chunk := (n + int(partitions) - 1) / int(partitions)
		if chunk == 0 {
			chunk = 1
		}
		return lo.Times(n, func(i int) WorkerID { return WorkerID(i / chunk) })
	default:
		return lo.Times(n, func(i int) WorkerID { return WorkerID(i % int(partitions)) })
	}
}
