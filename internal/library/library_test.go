package library

import (
	"errors"
	"testing"

	"github.com/danmuck/distask/internal/params"
	"github.com/danmuck/distask/internal/protocol"
	"github.com/danmuck/distask/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

type stubLibrary struct {
	loadErr   error
	unloadErr error
	closed    int
	loads     int
	unloads   int
	tasks     Tasks
}

func (s *stubLibrary) Load() error {
	s.loads++
	return s.loadErr
}

func (s *stubLibrary) Unload() error {
	s.unloads++
	return s.unloadErr
}

func (s *stubLibrary) Run(task string, in, out *params.Set) (Status, error) {
	return s.tasks.Run(task, in, out)
}

func (s *stubLibrary) Close() error {
	s.closed++
	return nil
}

func newStub() *stubLibrary {
	return &stubLibrary{tasks: Tasks{
		"echo": func(in, out *params.Set) (Status, error) {
			v, err := params.Get[int64](in, "x")
			if err != nil {
				return StatusOK, err
			}
			return StatusOK, params.Add(out, "x", v)
		},
		"boom": func(in, out *params.Set) (Status, error) {
			panic("kaboom")
		},
		"fail": func(in, out *params.Set) (Status, error) {
			return StatusTaskFailed, errors.New("computation diverged")
		},
	}}
}

func TestLifecycleHappyPath(t *testing.T) {
	testlog.Start(t)
	lib := newStub()
	inst := NewInstance("stub", lib, zerolog.Nop())
	if err := inst.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	in, out := params.New(), params.New()
	_ = params.Add(in, "x", int64(7))
	status, err := inst.Run("echo", in, out)
	if err != nil || status != StatusOK {
		t.Fatalf("run: %s %v", status, err)
	}
	if v, _ := params.Get[int64](out, "x"); v != 7 {
		t.Fatalf("output: %d", v)
	}
	if inst.State() != StateLoaded {
		t.Fatalf("state after run: %s", inst.State())
	}
	if err := inst.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if inst.State() != StateUnloaded {
		t.Fatalf("state: %s", inst.State())
	}
}

func TestLifecycleViolations(t *testing.T) {
	testlog.Start(t)
	inst := NewInstance("stub", newStub(), zerolog.Nop())
	if _, err := inst.Run("echo", params.New(), params.New()); !errors.Is(err, ErrLifecycleViolation) {
		t.Fatalf("run before load: %v", err)
	}
	if err := inst.Unload(); !errors.Is(err, ErrLifecycleViolation) {
		t.Fatalf("unload before load: %v", err)
	}
	_ = inst.Load()
	if err := inst.Load(); !errors.Is(err, ErrLifecycleViolation) {
		t.Fatalf("double load: %v", err)
	}
}

func TestFailedLoadStaysUnloaded(t *testing.T) {
	testlog.Start(t)
	lib := newStub()
	lib.loadErr = errors.New("no device")
	inst := NewInstance("stub", lib, zerolog.Nop())
	if err := inst.Load(); err == nil {
		t.Fatalf("expected load error")
	}
	if inst.State() != StateUnloaded {
		t.Fatalf("state: %s", inst.State())
	}
	lib.loadErr = nil
	if err := inst.Load(); err != nil {
		t.Fatalf("retry load: %v", err)
	}
}

func TestRunStatuses(t *testing.T) {
	testlog.Start(t)
	inst := NewInstance("stub", newStub(), zerolog.Nop())
	_ = inst.Load()

	status, err := inst.Run("nope", params.New(), params.New())
	if status != StatusUnknownTask || !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("unknown task: %s %v", status, err)
	}
	status, err = inst.Run("echo", params.New(), params.New())
	if status != StatusBadArguments || !errors.Is(err, protocol.ErrNotFound) {
		t.Fatalf("missing arg: %s %v", status, err)
	}
	in := params.New()
	_ = params.Add(in, "x", "seven")
	status, err = inst.Run("echo", in, params.New())
	if status != StatusBadArguments || !errors.Is(err, protocol.ErrTypeMismatch) {
		t.Fatalf("wrong type: %s %v", status, err)
	}
	status, _ = inst.Run("fail", params.New(), params.New())
	if status != StatusTaskFailed {
		t.Fatalf("fail: %s", status)
	}
	status, err = inst.Run("boom", params.New(), params.New())
	if status != StatusTaskFailed || !errors.Is(err, ErrTaskPanic) {
		t.Fatalf("panic: %s %v", status, err)
	}
	if inst.State() != StateLoaded {
		t.Fatalf("panic must leave instance loaded, got %s", inst.State())
	}
}

func TestDestroyUnloadsAndCloses(t *testing.T) {
	testlog.Start(t)
	lib := newStub()
	lib.unloadErr = errors.New("busy")
	inst := NewInstance("stub", lib, zerolog.Nop())
	_ = inst.Load()
	err := Destroy(inst)
	if err == nil || lib.unloads != 1 || lib.closed != 1 {
		t.Fatalf("destroy: err=%v unloads=%d closed=%d", err, lib.unloads, lib.closed)
	}
	if inst.State() != StateUnloaded {
		t.Fatalf("state: %s", inst.State())
	}
	if err := Destroy(inst); err != nil || lib.unloads != 1 {
		t.Fatalf("second destroy: err=%v unloads=%d", err, lib.unloads)
	}
}

func TestRegistryAndResolve(t *testing.T) {
	testlog.Start(t)
	f := func(Env) (Library, error) { return newStub(), nil }
	if err := Register("stub-registry-test", f); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register("stub-registry-test", f); !errors.Is(err, ErrFactoryExists) {
		t.Fatalf("expected ErrFactoryExists, got %v", err)
	}
	got, err := Resolve("stub-registry-test", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	inst, err := Create("stub-registry-test", got, Env{Log: zerolog.Nop()})
	if err != nil || inst.Name() != "stub-registry-test" {
		t.Fatalf("create: %v", err)
	}
	if _, err := Resolve("missing-library", ""); !errors.Is(err, ErrUnknownLibrary) {
		t.Fatalf("expected ErrUnknownLibrary, got %v", err)
	}
	nilFactory := func(Env) (Library, error) { return nil, nil }
	if _, err := Create("nil", nilFactory, Env{}); !errors.Is(err, ErrNilLibrary) {
		t.Fatalf("expected ErrNilLibrary, got %v", err)
	}
}

func TestFactoryOfSymbolShapes(t *testing.T) {
	var f Factory = func(Env) (Library, error) { return newStub(), nil }
	if _, err := factoryOf(&f); err != nil {
		t.Fatalf("*Factory: %v", err)
	}
	fn := func(Env) (Library, error) { return newStub(), nil }
	if _, err := factoryOf(&fn); err != nil {
		t.Fatalf("*func: %v", err)
	}
	if _, err := factoryOf(42); err == nil {
		t.Fatalf("expected error for wrong symbol type")
	}
}

func TestArity(t *testing.T) {
	in := params.New()
	_ = params.Add(in, "a", int32(1))
	if err := Arity(in, 1, 0); err != nil {
		t.Fatalf("arity: %v", err)
	}
	if err := Arity(in, 0, 1); !errors.Is(err, ErrBadArity) || Classify(err) != StatusBadArguments {
		t.Fatalf("expected bad arity, got %v", err)
	}
}
