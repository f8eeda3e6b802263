// Package driver is the control side of distask. It owns the matrix
// registry and engine store, fans request frames out to every rank and
// reconciles the replies.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/distask/internal/engine"
	"github.com/danmuck/distask/internal/host"
	"github.com/danmuck/distask/internal/library"
	"github.com/danmuck/distask/internal/matrix"
	"github.com/danmuck/distask/internal/params"
	"github.com/danmuck/distask/internal/protocol"
	"github.com/danmuck/distask/internal/protocol/frame"
	"github.com/danmuck/distask/internal/protocol/schema"
	"github.com/danmuck/distask/internal/protocol/session"
	"github.com/danmuck/distask/internal/world"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrDivergentReplies = errors.New("driver: ranks disagree")
	// Both lifecycle sentinels match library.ErrLifecycleViolation.
	ErrNotLoaded     = fmt.Errorf("%w: library not loaded", library.ErrLifecycleViolation)
	ErrAlreadyLoaded = fmt.Errorf("%w: library already loaded", library.ErrLifecycleViolation)
	ErrClosed        = errors.New("driver: closed")
)

type Config struct {
	Workers int
	Policy  matrix.Policy
	Session session.Config
	Log     zerolog.Logger
}

// Result is the reconciled outcome of one task run. Task failures are
// reported here; only transport, lifecycle and divergence problems come
// back as errors from Run.
type Result struct {
	RequestID string
	Status    library.Status
	Err       error
	Outputs   *params.Set
	// Adopted lists descriptors proposed by the task and registered by the
	// driver, in output order.
	Adopted []matrix.Descriptor
}

type Driver struct {
	cfg      Config
	log      zerolog.Logger
	group    *world.Group
	store    *engine.Store
	registry *matrix.Registry
	workers  []*host.Worker

	// mu serialises collective requests and registry mutation.
	mu      sync.Mutex
	loaded  map[string]protocol.LibraryID
	nextLib protocol.LibraryID
	closed  bool

	seq    atomic.Uint64
	cancel context.CancelFunc
	serve  *errgroup.Group
}

// New starts a local world of cfg.Workers ranks, each served by a host
// worker goroutine.
func New(cfg Config) (*Driver, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("driver: workers must be positive, got %d", cfg.Workers)
	}
	if cfg.Session.MaxFields == 0 {
		cfg.Session.MaxFields = session.DefaultConfig().MaxFields
	}
	group, err := world.Local(cfg.Workers)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		cfg:      cfg,
		log:      cfg.Log.With().Str("component", "driver").Logger(),
		group:    group,
		store:    engine.NewStore(),
		registry: matrix.NewRegistry(cfg.Workers, cfg.Policy),
		loaded:   make(map[string]protocol.LibraryID),
		nextLib:  1,
	}
	d.registry.SetCellLimit(engine.MaxCells)
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.serve, ctx = errgroup.WithContext(ctx)
	for rank := range cfg.Workers {
		w := host.NewWorker(rank, group, d.store, cfg.Session, cfg.Log)
		d.workers = append(d.workers, w)
		d.serve.Go(func() error { return w.Serve(ctx) })
	}
	d.log.Info().Int("workers", cfg.Workers).Str("policy", string(d.policy())).Msg("driver started")
	return d, nil
}

func (d *Driver) policy() matrix.Policy {
	if d.cfg.Policy == "" {
		return matrix.PolicyRoundRobin
	}
	return d.cfg.Policy
}

func (d *Driver) Workers() int { return d.cfg.Workers }

// Load loads name on every rank. path names a plugin for libraries that are
// not built in.
func (d *Driver) Load(ctx context.Context, name, path string) (protocol.LibraryID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	if _, ok := d.loaded[name]; ok {
		return 0, fmt.Errorf("%w: %q", ErrAlreadyLoaded, name)
	}
	rep, err := d.collective(ctx, session.Request{Kind: schema.MsgLoad, Library: name, Path: path})
	if err != nil {
		return 0, err
	}
	if err := replyError(rep); err != nil {
		return 0, fmt.Errorf("driver: load %q: %w", name, err)
	}
	id := d.nextLib
	d.nextLib++
	d.loaded[name] = id
	d.log.Info().Str("library", name).Uint16("library_id", uint16(id)).Msg("library loaded")
	return id, nil
}

// Unload unloads name on every rank.
func (d *Driver) Unload(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if _, ok := d.loaded[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotLoaded, name)
	}
	rep, err := d.collective(ctx, session.Request{Kind: schema.MsgUnload, Library: name})
	if err != nil {
		return err
	}
	delete(d.loaded, name)
	if err := replyError(rep); err != nil {
		return fmt.Errorf("driver: unload %q: %w", name, err)
	}
	d.log.Info().Str("library", name).Msg("library unloaded")
	return nil
}

// Loaded lists loaded libraries by id.
func (d *Driver) Loaded() map[string]protocol.LibraryID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]protocol.LibraryID, len(d.loaded))
	for k, v := range d.loaded {
		out[k] = v
	}
	return out
}

// Run executes task of lib on every rank with inputs in. Proposed output
// descriptors (zero id) are registered and replaced by their registered
// form in Result.Outputs.
func (d *Driver) Run(ctx context.Context, lib, task string, in *params.Set) (Result, error) {
	if in == nil {
		in = params.New()
	}
	encoded, err := params.Marshal(in)
	if err != nil {
		return Result{}, fmt.Errorf("driver: encode inputs: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Result{}, ErrClosed
	}
	if _, ok := d.loaded[lib]; !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrNotLoaded, lib)
	}
	rep, err := d.collective(ctx, session.Request{Kind: schema.MsgRun, Library: lib, Task: task, Params: encoded})
	if err != nil {
		return Result{}, err
	}
	res := Result{RequestID: rep.RequestID, Status: library.Status(rep.Status)}
	if res.Status == library.StatusLifecycle {
		return res, fmt.Errorf("%w: %s", library.ErrLifecycleViolation, rep.Error)
	}
	if res.Status != library.StatusOK {
		res.Err = errors.New(rep.Error)
		d.log.Warn().Str("request_id", res.RequestID).Str("task", task).Stringer("status", res.Status).Str("error", rep.Error).Msg("task failed")
		return res, nil
	}
	out, err := params.Unmarshal(rep.Params)
	if err != nil {
		return res, fmt.Errorf("driver: decode outputs: %w", err)
	}
	res.Outputs, res.Adopted, err = d.adopt(out)
	if err != nil {
		return res, err
	}
	d.log.Debug().Str("request_id", res.RequestID).Str("task", task).Str("outputs", res.Outputs.Render()).Msg("task done")
	return res, nil
}

// adopt registers every proposed descriptor in out.
func (d *Driver) adopt(out *params.Set) (*params.Set, []matrix.Descriptor, error) {
	var adopted []matrix.Descriptor
	rebuilt := params.New()
	for _, v := range out.All() {
		desc, err := protocol.As[matrix.Descriptor](v)
		if err != nil || desc.ID != 0 {
			if err := rebuilt.Add(v); err != nil {
				return nil, nil, err
			}
			continue
		}
		registered, err := d.registry.Adopt(desc)
		if err != nil {
			return nil, nil, fmt.Errorf("driver: adopt %q: %w", v.Name(), err)
		}
		if err := d.store.Put(registered, nil); err != nil {
			_ = d.registry.Retire(registered.ID)
			return nil, nil, fmt.Errorf("driver: adopt %q: %w", v.Name(), err)
		}
		adopted = append(adopted, registered)
		if err := params.Add(rebuilt, v.Name(), registered); err != nil {
			return nil, nil, err
		}
	}
	return rebuilt, adopted, nil
}

// RegisterMatrix registers a matrix and installs its storage. A nil data
// allocates zeros.
func (d *Driver) RegisterMatrix(spec matrix.Spec, data *mat.Dense) (matrix.Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc, err := d.registry.Register(spec)
	if err != nil {
		return matrix.Descriptor{}, err
	}
	if err := d.store.Put(desc, data); err != nil {
		_ = d.registry.Retire(desc.ID)
		return matrix.Descriptor{}, err
	}
	d.log.Debug().Stringer("matrix", desc).Str("name", desc.Name).Msg("matrix registered")
	return desc, nil
}

func (d *Driver) Repartition(id matrix.ID, rows []matrix.WorkerID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.registry.Repartition(id, rows); err != nil {
		return err
	}
	desc, err := d.registry.Describe(id)
	if err != nil {
		return err
	}
	return d.store.Update(desc)
}

func (d *Driver) Describe(id matrix.ID) (matrix.Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry.Describe(id)
}

// Fetch copies the full contents of id.
func (d *Driver) Fetch(id matrix.ID) (*mat.Dense, error) {
	return d.store.Fetch(id)
}

func (d *Driver) Matrices() []matrix.Descriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry.List()
}

func (d *Driver) Retire(id matrix.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.registry.Retire(id); err != nil {
		return err
	}
	d.store.Remove(id)
	return nil
}

// Close stops every worker, destroying loaded libraries.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.group.Close()
	err := d.serve.Wait()
	d.cancel()
	d.log.Info().Err(err).Msg("driver stopped")
	return err
}

// collective sends req to every rank and returns rank 0's reply after
// checking that all ranks agree on the outcome.
func (d *Driver) collective(ctx context.Context, req session.Request) (session.Reply, error) {
	req.RequestID = uuid.NewString()
	b, err := session.EncodeRequestFrame(d.seq.Add(1), req)
	if err != nil {
		return session.Reply{}, err
	}
	if d.cfg.Session.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Session.ReplyTimeout)
		defer cancel()
	}
	log := d.log.With().Str("request_id", req.RequestID).Str("message", schema.MessageName(req.Kind)).Logger()
	log.Trace().Str("library", req.Library).Str("task", req.Task).Msg("broadcast")

	replies := make([]session.Reply, d.cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)
	for rank := range d.cfg.Workers {
		g.Go(func() error {
			if err := d.group.Requests(rank).Post(b); err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			rep, err := d.await(gctx, rank, req.RequestID, log)
			if err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			replies[rank] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return session.Reply{}, fmt.Errorf("driver: %s %q: %w", schema.MessageName(req.Kind), req.Library, err)
	}
	if err := agree(replies); err != nil {
		return session.Reply{}, err
	}
	return replies[0], nil
}

// await takes rank's reply to requestID, discarding stale replies left by
// earlier requests that timed out.
func (d *Driver) await(ctx context.Context, rank int, requestID string, log zerolog.Logger) (session.Reply, error) {
	for {
		raw, err := d.group.Replies(rank).Take(ctx)
		if err != nil {
			return session.Reply{}, err
		}
		f, err := frame.Unmarshal(raw)
		if err != nil {
			return session.Reply{}, err
		}
		rep, err := session.DecodeReplyFrame(f, d.cfg.Session)
		if err != nil {
			return session.Reply{}, err
		}
		if rep.RequestID != requestID {
			log.Warn().Int("rank", rank).Str("stale_request_id", rep.RequestID).Msg("discarding stale reply")
			continue
		}
		return rep, nil
	}
}

func agree(replies []session.Reply) error {
	var err error
	first := replies[0]
	for rank, rep := range replies[1:] {
		if rep.Status != first.Status {
			err = multierr.Append(err, fmt.Errorf("%w: rank %d status %s, rank 0 status %s",
				ErrDivergentReplies, rank+1, library.Status(rep.Status), library.Status(first.Status)))
		}
	}
	return err
}

func replyError(rep session.Reply) error {
	status := library.Status(rep.Status)
	switch status {
	case library.StatusOK:
		return nil
	case library.StatusLifecycle:
		return fmt.Errorf("%w: %s", library.ErrLifecycleViolation, rep.Error)
	default:
		return fmt.Errorf("%s: %s", status, rep.Error)
	}
}
