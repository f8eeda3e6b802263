package world

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"
)

var ErrClosed = errors.New("world: inbox closed")

// Inbox is an unbounded FIFO of frames with a single blocking taker.
type Inbox struct {
	mu     sync.Mutex
	q      *queue.Queue
	signal chan struct{}
	done   chan struct{}
	closed bool
}

func NewInbox() *Inbox {
	return &Inbox{
		q:      queue.New(),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Post appends b. Posting to a closed inbox fails with ErrClosed.
func (in *Inbox) Post(b []byte) error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return ErrClosed
	}
	in.q.Add(b)
	in.mu.Unlock()
	select {
	case in.signal <- struct{}{}:
	default:
	}
	return nil
}

// Take blocks until a frame is queued, the inbox closes or ctx ends.
// Frames queued before Close are still delivered.
func (in *Inbox) Take(ctx context.Context) ([]byte, error) {
	for {
		in.mu.Lock()
		if in.q.Length() > 0 {
			b := in.q.Remove().([]byte)
			in.mu.Unlock()
			return b, nil
		}
		closed := in.closed
		in.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-in.done:
		case <-in.signal:
		}
	}
}

func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.q.Length()
}

func (in *Inbox) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	in.closed = true
	close(in.done)
}
