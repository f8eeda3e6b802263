// Package linalg is the built-in linear algebra task library.
package linalg

import (
	"fmt"
	"math"
	"strings"

	"github.com/danmuck/distask/internal/library"
	"github.com/danmuck/distask/internal/logging"
	"github.com/danmuck/distask/internal/matrix"
	"github.com/danmuck/distask/internal/params"
	"github.com/danmuck/distask/internal/protocol"
	"github.com/danmuck/distask/internal/world"
)

const Name = "linalg"

const (
	TaskTransposeShape = "transpose-shape"
	TaskMatrixInfo     = "matrix-info"
	TaskFrobeniusNorm  = "frobenius-norm"
	TaskScale          = "scale"
	TaskDescribeArgs   = "describe-args"
)

func init() {
	library.MustRegister(Name, New)
}

type Library struct {
	env   library.Env
	tasks library.Tasks
	// sink is the per-rank trace file, held between Load and Unload.
	sink *logging.Sink
}

// New is the library factory.
func New(env library.Env) (library.Library, error) {
	if env.World == nil || env.Engine == nil {
		return nil, fmt.Errorf("linalg: world and engine required")
	}
	l := &Library{env: env}
	l.tasks = library.Tasks{
		TaskTransposeShape: l.transposeShape,
		TaskMatrixInfo:     l.matrixInfo,
		TaskFrobeniusNorm:  l.frobeniusNorm,
		TaskScale:          l.scale,
		TaskDescribeArgs:   l.describeArgs,
	}
	return l, nil
}

func (l *Library) Load() error {
	sink, err := logging.Open(fmt.Sprintf("%s-%d", Name, l.env.World.Rank()), l.env.LogDir)
	if err != nil {
		return fmt.Errorf("linalg: open trace sink: %w", err)
	}
	l.sink = sink
	sink.Logger.Info().Strs("tasks", l.tasks.Names()).Msg("linalg loaded")
	l.env.Log.Info().Int("rank", l.env.World.Rank()).Str("trace", sink.Path).Msg("linalg loaded")
	return nil
}

func (l *Library) Unload() error {
	l.env.Log.Info().Int("rank", l.env.World.Rank()).Msg("linalg unloaded")
	if l.sink == nil {
		return nil
	}
	l.sink.Logger.Info().Msg("linalg unloaded")
	err := l.sink.Close()
	l.sink = nil
	return err
}

// TracePath reports the open trace file, or "" when unloaded.
func (l *Library) TracePath() string {
	if l.sink == nil {
		return ""
	}
	return l.sink.Path
}

func (l *Library) Run(task string, in, out *params.Set) (library.Status, error) {
	status, err := l.tasks.Run(task, in, out)
	if l.sink != nil {
		l.sink.Logger.Trace().Str("task", task).Uint32("status", uint32(status)).Err(err).Msg("task finished")
	}
	return status, err
}

// input returns the single matrix handle argument, whatever its name.
func (l *Library) input(in *params.Set) (matrix.Descriptor, error) {
	if err := library.Arity(in, 0, 1); err != nil {
		return matrix.Descriptor{}, err
	}
	return l.handle(in.Matrices()[0])
}

func (l *Library) handle(v protocol.Value) (matrix.Descriptor, error) {
	id, err := protocol.As[matrix.ID](v)
	if err != nil {
		return matrix.Descriptor{}, err
	}
	return l.env.Engine.Describe(id)
}

// transposeShape proposes the descriptor of A^T. The driver registers it.
func (l *Library) transposeShape(in, out *params.Set) (library.Status, error) {
	desc, err := l.input(in)
	if err != nil {
		return library.StatusOK, err
	}
	return library.StatusOK, params.Add(out, outputName(in), desc.Transposed())
}

func (l *Library) matrixInfo(in, out *params.Set) (library.Status, error) {
	desc, err := l.input(in)
	if err != nil {
		return library.StatusOK, err
	}
	local, err := l.env.Engine.LocalRows(desc.ID, l.env.World.Rank())
	if err != nil {
		return library.StatusTaskFailed, err
	}
	most := l.env.World.AllReduceFloat64(float64(len(local)), world.OpMax)
	least := l.env.World.AllReduceFloat64(float64(len(local)), world.OpMin)
	return library.StatusOK, addAll(out,
		protocol.Make("rows", desc.Rows),
		protocol.Make("cols", desc.Cols),
		protocol.Make("partitions", desc.Partitions),
		protocol.Make("sparse", desc.Sparse),
		protocol.Make("layout", desc.Layout.String()),
		protocol.Make("max_local_rows", uint64(most)),
		protocol.Make("min_local_rows", uint64(least)),
	)
}

func (l *Library) frobeniusNorm(in, out *params.Set) (library.Status, error) {
	desc, err := l.input(in)
	if err != nil {
		return library.StatusOK, err
	}
	local, err := l.env.Engine.SumSquares(desc.ID, l.env.World.Rank())
	if err != nil {
		return library.StatusTaskFailed, err
	}
	total := l.env.World.AllReduceFloat64(local, world.OpSum)
	return library.StatusOK, params.Add(out, "norm", math.Sqrt(total))
}

// scale multiplies A by alpha in place, each rank on its own rows.
func (l *Library) scale(in, out *params.Set) (library.Status, error) {
	if err := library.Arity(in, 1, 1); err != nil {
		return library.StatusOK, err
	}
	alpha, err := params.Get[float64](in, "alpha")
	if err != nil {
		return library.StatusOK, err
	}
	v := in.Matrices()[0]
	desc, err := l.handle(v)
	if err != nil {
		return library.StatusOK, err
	}
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return library.StatusBadArguments, fmt.Errorf("linalg: alpha must be finite, got %v", alpha)
	}
	if err := l.env.Engine.Scale(desc.ID, l.env.World.Rank(), alpha); err != nil {
		return library.StatusTaskFailed, err
	}
	l.env.World.Barrier()
	return library.StatusOK, params.Add(out, v.Name(), desc.ID)
}

// describeArgs walks the general inputs in order and reports what it saw.
func (l *Library) describeArgs(in, out *params.Set) (library.Status, error) {
	in.Rewind()
	var seen []string
	for {
		name, tag, err := in.Next()
		if err != nil {
			break
		}
		seen = append(seen, name+":"+tag.String())
	}
	for _, m := range in.Matrices() {
		seen = append(seen, m.Name()+":"+m.Tag().String())
	}
	return library.StatusOK, addAll(out,
		protocol.Make("args", strings.Join(seen, ",")),
		protocol.Make("count", int64(in.Count())),
		protocol.Make("matrices", int64(in.MatrixCount())),
		protocol.Make("rank", protocol.WorkerID(l.env.World.Rank())),
	)
}

// outputName names the transpose output after its input: A -> AT.
func outputName(in *params.Set) string {
	return in.Matrices()[0].Name() + "T"
}

func addAll(out *params.Set, values ...protocol.Value) error {
	for _, v := range values {
		if err := out.Add(v); err != nil {
			return err
		}
	}
	return nil
}
