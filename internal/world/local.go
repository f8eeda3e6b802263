package world

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Group is an in-process world of Size ranks sharing one collective state.
type Group struct {
	size     int
	coll     *collective
	requests []*Inbox
	replies  []*Inbox
}

// Local builds an in-process group of n ranks.
func Local(n int) (*Group, error) {
	if n <= 0 {
		return nil, fmt.Errorf("world: size must be positive, got %d", n)
	}
	g := &Group{
		size:     n,
		coll:     newCollective(n),
		requests: make([]*Inbox, n),
		replies:  make([]*Inbox, n),
	}
	for i := range n {
		g.requests[i] = NewInbox()
		g.replies[i] = NewInbox()
	}
	log.Debug().Int("size", n).Msg("world.Local created")
	return g, nil
}

func (g *Group) Size() int { return g.size }

// Comm returns the collective view of rank.
func (g *Group) Comm(rank int) Comm {
	if rank < 0 || rank >= g.size {
		panic(fmt.Sprintf("world: rank %d out of range [0,%d)", rank, g.size))
	}
	return &localComm{rank: rank, group: g}
}

// Requests is the inbox the driver posts frames into for rank.
func (g *Group) Requests(rank int) *Inbox { return g.requests[rank] }

// Replies is the inbox rank posts its reply frames into.
func (g *Group) Replies(rank int) *Inbox { return g.replies[rank] }

// Close closes every inbox. Blocked takers return ErrClosed.
func (g *Group) Close() {
	for i := range g.size {
		g.requests[i].Close()
		g.replies[i].Close()
	}
}

type localComm struct {
	rank  int
	group *Group
}

func (c *localComm) Rank() int { return c.rank }

func (c *localComm) Size() int { return c.group.size }

func (c *localComm) Barrier() {
	c.group.coll.exchange(c.rank, nil, func([]any) any { return nil })
}

func (c *localComm) AllReduceFloat64(v float64, op Op) float64 {
	out := c.group.coll.exchange(c.rank, v, func(vals []any) any {
		return reduce(vals, op)
	})
	return out.(float64)
}

func (c *localComm) BroadcastBytes(root int, b []byte) []byte {
	out := c.group.coll.exchange(c.rank, b, func(vals []any) any {
		src, _ := vals[root].([]byte)
		return src
	})
	src, _ := out.([]byte)
	if src == nil {
		return nil
	}
	cp := make([]byte, len(src))
	copy(cp, src)
	return cp
}

// collective is a generation barrier. The last rank to arrive computes the
// result for the generation and wakes the rest.
type collective struct {
	mu      sync.Mutex
	cond    *sync.Cond
	size    int
	gen     uint64
	arrived int
	vals    []any
	result  any
}

func newCollective(size int) *collective {
	c := &collective{size: size, vals: make([]any, size)}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *collective) exchange(rank int, v any, fn func([]any) any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.gen
	c.vals[rank] = v
	c.arrived++
	if c.arrived == c.size {
		c.result = fn(c.vals)
		c.vals = make([]any, c.size)
		c.arrived = 0
		c.gen++
		c.cond.Broadcast()
		return c.result
	}
	for gen == c.gen {
		c.cond.Wait()
	}
	// No later generation can finish before this rank enters it.
	return c.result
}
