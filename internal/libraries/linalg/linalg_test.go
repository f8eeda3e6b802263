package linalg

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/danmuck/distask/internal/engine"
	"github.com/danmuck/distask/internal/library"
	"github.com/danmuck/distask/internal/matrix"
	"github.com/danmuck/distask/internal/params"
	"github.com/danmuck/distask/internal/testutil/testlog"
	"github.com/danmuck/distask/internal/world"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

type fixture struct {
	group *world.Group
	store *engine.Store
	desc  matrix.Descriptor
	insts []*library.Instance
}

func newFixture(t *testing.T, ranks int, rows, cols uint64) *fixture {
	t.Helper()
	g, err := world.Local(ranks)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	reg := matrix.NewRegistry(ranks, matrix.PolicyRoundRobin)
	desc, err := reg.Register(matrix.Spec{Name: "A", Rows: rows, Cols: cols})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	store := engine.NewStore()
	if err := store.Put(desc, nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	f := &fixture{group: g, store: store, desc: desc}
	dir := t.TempDir()
	for r := range ranks {
		inst, err := library.Create(Name, New, library.Env{World: g.Comm(r), Log: zerolog.Nop(), Engine: store, LogDir: dir})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := inst.Load(); err != nil {
			t.Fatalf("load: %v", err)
		}
		f.insts = append(f.insts, inst)
		t.Cleanup(func() { _ = library.Destroy(inst) })
	}
	return f
}

type result struct {
	status library.Status
	err    error
	out    *params.Set
}

// run invokes task on every rank at once with a fresh copy of the inputs.
func (f *fixture) run(task string, build func(*params.Set)) []result {
	results := make([]result, len(f.insts))
	var wg sync.WaitGroup
	for r, inst := range f.insts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in, out := params.New(), params.New()
			build(in)
			status, err := inst.Run(task, in, out)
			results[r] = result{status: status, err: err, out: out}
		}()
	}
	wg.Wait()
	return results
}

func (f *fixture) withA(in *params.Set) {
	_ = params.Add(in, "A", f.desc.ID)
}

func TestTransposeShapeProposesDescriptor(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, 4, 100, 4)
	for rank, res := range f.run(TaskTransposeShape, f.withA) {
		if res.err != nil || res.status != library.StatusOK {
			t.Fatalf("rank %d: %s %v", rank, res.status, res.err)
		}
		got, err := params.Get[matrix.Descriptor](res.out, "AT")
		if err != nil {
			t.Fatalf("rank %d output: %v", rank, err)
		}
		if got.ID != 0 || got.Rows != 4 || got.Cols != 100 || got.Partitions != 4 {
			t.Fatalf("rank %d descriptor: %s", rank, got)
		}
		if err := got.Validate(4); err != nil {
			t.Fatalf("rank %d invalid descriptor: %v", rank, err)
		}
	}
}

func TestFrobeniusNormIsCollective(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, 3, 6, 2)
	data := mat.NewDense(6, 2, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	if err := f.store.Load(f.desc.ID, data); err != nil {
		t.Fatalf("load data: %v", err)
	}
	want := mat.Norm(data, 2)
	for rank, res := range f.run(TaskFrobeniusNorm, f.withA) {
		got, err := params.Get[float64](res.out, "norm")
		if err != nil || math.Abs(got-want) > 1e-9 {
			t.Fatalf("rank %d: norm %v want %v err=%v", rank, got, want, err)
		}
	}
}

func TestScaleThenNorm(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, 2, 4, 1)
	_ = f.store.Load(f.desc.ID, mat.NewDense(4, 1, []float64{1, 1, 1, 1}))
	results := f.run(TaskScale, func(in *params.Set) {
		f.withA(in)
		_ = params.Add(in, "alpha", 2.0)
	})
	for rank, res := range results {
		if res.status != library.StatusOK {
			t.Fatalf("rank %d: %s %v", rank, res.status, res.err)
		}
	}
	got, _ := f.store.Fetch(f.desc.ID)
	for i := range 4 {
		if got.At(i, 0) != 2 {
			t.Fatalf("row %d: %v", i, got.At(i, 0))
		}
	}
}

func TestScaleRejectsNonFiniteAlpha(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, 1, 2, 2)
	res := f.run(TaskScale, func(in *params.Set) {
		f.withA(in)
		_ = params.Add(in, "alpha", math.Inf(1))
	})[0]
	if res.status != library.StatusBadArguments {
		t.Fatalf("status: %s", res.status)
	}
}

func TestMatrixInfo(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, 3, 10, 5)
	res := f.run(TaskMatrixInfo, f.withA)[0]
	if res.status != library.StatusOK {
		t.Fatalf("status: %s %v", res.status, res.err)
	}
	most, _ := params.Get[uint64](res.out, "max_local_rows")
	least, _ := params.Get[uint64](res.out, "min_local_rows")
	if most != 4 || least != 3 {
		t.Fatalf("local rows: max %d min %d", most, least)
	}
	layout, _ := params.Get[string](res.out, "layout")
	if layout != matrix.LayoutRowMajor.String() {
		t.Fatalf("layout: %s", layout)
	}
}

func TestDescribeArgsWalksInOrder(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, 1, 2, 2)
	res := f.run(TaskDescribeArgs, func(in *params.Set) {
		_ = params.Add(in, "z", int8(1))
		_ = params.Add(in, "a", "s")
		f.withA(in)
	})[0]
	args, _ := params.Get[string](res.out, "args")
	if args != "z:int8,a:string,A:matrix_handle" {
		t.Fatalf("args: %q", args)
	}
	count, _ := params.Get[int64](res.out, "count")
	if count != 3 {
		t.Fatalf("count: %d", count)
	}
}

func TestArgumentErrors(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, 1, 2, 2)
	res := f.run(TaskTransposeShape, func(*params.Set) {})[0]
	if res.status != library.StatusBadArguments || !errors.Is(res.err, library.ErrBadArity) {
		t.Fatalf("missing handle: %s %v", res.status, res.err)
	}
	res = f.run(TaskTransposeShape, func(in *params.Set) {
		_ = params.Add(in, "A", matrix.ID(99))
	})[0]
	if res.status != library.StatusTaskFailed || !errors.Is(res.err, matrix.ErrUnknownHandle) {
		t.Fatalf("unknown handle: %s %v", res.status, res.err)
	}
	res = f.run("invert", f.withA)[0]
	if res.status != library.StatusUnknownTask {
		t.Fatalf("unknown task: %s", res.status)
	}
}

func TestLoadOpensTraceSinkPerRank(t *testing.T) {
	dir := testlog.Dir(t)
	g, err := world.Local(2)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	env := library.Env{World: g.Comm(1), Log: zerolog.Nop(), Engine: engine.NewStore(), LogDir: dir}
	lib, err := New(env)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l := lib.(*Library)
	inst, err := library.Create(Name, func(library.Env) (library.Library, error) { return l, nil }, env)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.TracePath() != "" {
		t.Fatalf("trace sink open before load: %q", l.TracePath())
	}
	if err := inst.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	path := l.TracePath()
	if path != filepath.Join(dir, "linalg-1.log") {
		t.Fatalf("unexpected trace path: %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("trace file missing after load: %v", err)
	}
	if err := inst.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if l.TracePath() != "" {
		t.Fatalf("trace sink still open after unload")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if !strings.Contains(string(data), "linalg loaded") || !strings.Contains(string(data), "linalg unloaded") {
		t.Fatalf("trace file missing lifecycle lines: %q", data)
	}
}

func TestLoadFailureLeavesInstanceUnloaded(t *testing.T) {
	dir := testlog.Dir(t)
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	g, err := world.Local(1)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	env := library.Env{World: g.Comm(0), Log: zerolog.Nop(), Engine: engine.NewStore(), LogDir: filepath.Join(blocker, "sub")}
	inst, err := library.Create(Name, New, env)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := inst.Load(); err == nil {
		t.Fatalf("expected load failure for unusable log dir")
	}
	if inst.State() != library.StateUnloaded {
		t.Fatalf("state after failed load: %v", inst.State())
	}
}
