// Package host runs one rank's side of the protocol: it takes request
// frames from its inbox, drives that rank's library instances and posts
// reply frames back.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/distask/internal/engine"
	"github.com/danmuck/distask/internal/library"
	"github.com/danmuck/distask/internal/params"
	"github.com/danmuck/distask/internal/protocol/frame"
	"github.com/danmuck/distask/internal/protocol/schema"
	"github.com/danmuck/distask/internal/protocol/session"
	"github.com/danmuck/distask/internal/world"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// malformedRequestID marks replies to frames whose request id is unreadable.
const malformedRequestID = "-"

// Worker is one rank's library host.
type Worker struct {
	rank     int
	comm     world.Comm
	requests *world.Inbox
	replies  *world.Inbox
	engine   engine.Engine
	cfg      session.Config
	log      zerolog.Logger
	resolve  func(name, path string) (library.Factory, error)

	mu   sync.Mutex
	libs map[string]*library.Instance
	seq  uint64
}

func NewWorker(rank int, g *world.Group, eng engine.Engine, cfg session.Config, log zerolog.Logger) *Worker {
	return &Worker{
		rank:     rank,
		comm:     g.Comm(rank),
		requests: g.Requests(rank),
		replies:  g.Replies(rank),
		engine:   eng,
		cfg:      cfg,
		log:      log.With().Int("rank", rank).Logger(),
		resolve:  library.Resolve,
		libs:     make(map[string]*library.Instance),
	}
}

func (w *Worker) Rank() int { return w.rank }

// Serve handles requests until the inbox closes or ctx ends, then destroys
// every library instance it created.
func (w *Worker) Serve(ctx context.Context) error {
	w.log.Debug().Msg("host.Worker.Serve start")
	var err error
	for {
		b, takeErr := w.requests.Take(ctx)
		if takeErr != nil {
			if !errors.Is(takeErr, world.ErrClosed) && !errors.Is(takeErr, context.Canceled) {
				err = takeErr
			}
			break
		}
		reply := w.Handle(b)
		if postErr := w.replies.Post(reply); postErr != nil {
			w.log.Warn().Err(postErr).Msg("reply dropped")
			break
		}
	}
	err = multierr.Append(err, w.shutdown())
	w.log.Debug().Err(err).Msg("host.Worker.Serve stop")
	return err
}

// Handle answers one request frame with one reply frame.
func (w *Worker) Handle(b []byte) []byte {
	rep := w.handle(b)
	rep.Rank = uint32(w.rank)
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()
	out, err := session.EncodeReplyFrame(seq, rep)
	if err != nil {
		// Only an empty request id can fail here.
		rep.RequestID = malformedRequestID
		out, _ = session.EncodeReplyFrame(seq, rep)
	}
	return out
}

func (w *Worker) handle(b []byte) session.Reply {
	f, err := frame.Unmarshal(b)
	if err != nil {
		return failure(malformedRequestID, library.StatusBadArguments, err)
	}
	req, err := session.DecodeRequestFrame(f, w.cfg)
	if err != nil {
		return failure(malformedRequestID, library.StatusBadArguments, err)
	}
	log := w.log.With().Str("request_id", req.RequestID).Str("library", req.Library).Logger()
	log.Trace().Str("message", schema.MessageName(req.Kind)).Str("task", req.Task).Msg("request")

	switch req.Kind {
	case schema.MsgLoad:
		return w.load(req)
	case schema.MsgRun:
		return w.run(req)
	case schema.MsgUnload:
		return w.unload(req)
	default:
		return failure(req.RequestID, library.StatusBadArguments, fmt.Errorf("unexpected %s", schema.MessageName(req.Kind)))
	}
}

func (w *Worker) load(req session.Request) session.Reply {
	inst, err := w.instance(req.Library, req.Path)
	if err != nil {
		return failure(req.RequestID, library.StatusTaskFailed, err)
	}
	if err := inst.Load(); err != nil {
		return failure(req.RequestID, library.Classify(err), err)
	}
	return session.Reply{RequestID: req.RequestID}
}

func (w *Worker) run(req session.Request) session.Reply {
	inst, ok := w.lookup(req.Library)
	if !ok {
		return failure(req.RequestID, library.StatusLifecycle,
			fmt.Errorf("%w: run %q before load", library.ErrLifecycleViolation, req.Library))
	}
	in, err := params.Unmarshal(req.Params)
	if err != nil {
		return failure(req.RequestID, library.StatusBadArguments, err)
	}
	out := params.New()
	status, err := inst.Run(req.Task, in, out)
	if err != nil && status == library.StatusOK {
		status = library.Classify(err)
	}
	if status != library.StatusOK {
		if err == nil {
			err = fmt.Errorf("task %q returned %s", req.Task, status)
		}
		return failure(req.RequestID, status, err)
	}
	encoded, err := params.Marshal(out)
	if err != nil {
		return failure(req.RequestID, library.StatusTaskFailed, fmt.Errorf("encode outputs: %w", err))
	}
	return session.Reply{RequestID: req.RequestID, Params: encoded}
}

func (w *Worker) unload(req session.Request) session.Reply {
	inst, ok := w.lookup(req.Library)
	if !ok {
		return failure(req.RequestID, library.StatusLifecycle,
			fmt.Errorf("%w: unload %q before load", library.ErrLifecycleViolation, req.Library))
	}
	if err := inst.Unload(); err != nil {
		return failure(req.RequestID, library.Classify(err), err)
	}
	return session.Reply{RequestID: req.RequestID}
}

// instance returns the existing instance for name or creates an unloaded one.
func (w *Worker) instance(name, path string) (*library.Instance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if inst, ok := w.libs[name]; ok {
		return inst, nil
	}
	factory, err := w.resolve(name, path)
	if err != nil {
		return nil, err
	}
	inst, err := library.Create(name, factory, library.Env{
		World:  w.comm,
		Log:    w.log.With().Str("library", name).Logger(),
		Engine: w.engine,
	})
	if err != nil {
		return nil, err
	}
	w.libs[name] = inst
	return inst, nil
}

func (w *Worker) lookup(name string) (*library.Instance, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	inst, ok := w.libs[name]
	return inst, ok
}

// Libraries lists instance names with their state.
func (w *Worker) Libraries() map[string]library.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]library.State, len(w.libs))
	for name, inst := range w.libs {
		out[name] = inst.State()
	}
	return out
}

func (w *Worker) shutdown() error {
	w.mu.Lock()
	names := make([]string, 0, len(w.libs))
	for name := range w.libs {
		names = append(names, name)
	}
	sort.Strings(names)
	libs := w.libs
	w.libs = make(map[string]*library.Instance)
	w.mu.Unlock()

	var err error
	for _, name := range names {
		err = multierr.Append(err, library.Destroy(libs[name]))
	}
	return err
}

func failure(requestID string, status library.Status, err error) session.Reply {
	return session.Reply{RequestID: requestID, Status: uint32(status), Error: err.Error()}
}
