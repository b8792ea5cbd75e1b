package exec

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/jaywalker76/LocustDB/aggfuncs"
	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
	"github.com/jaywalker76/LocustDB/table"
)

// Source gives the operators access to one batch's segments. Reader opens
// the encoded form for codec fast paths; Column materializes the decoded
// vector. Implementations memoize both, so operators ask freely.
type Source interface {
	Ordinal() int
	RowCount() int
	Reader(colIndex int) (*codec.Reader, error)
	Column(colIndex int) (*common.Column, error)
}

// ColRef is a column bound to its schema ordinal.
type ColRef struct {
	Name  string
	Index int
	Type  common.ColumnType
}

// AggOp is one bound aggregate in the pipeline. HasArg is false for
// COUNT(*).
type AggOp struct {
	FuncType   common.AggFuncType
	Arg        ColRef
	HasArg     bool
	Func       aggfuncs.AggregateFunction
	OutputName string
}

// OrderOp orders by one output column of the pipeline.
type OrderOp struct {
	OutputIndex int
	Descending  bool
}

// PipelineDesc is the bound per-batch pipeline: every column reference is
// resolved to a schema ordinal and every literal coerced to its column
// type. The planner builds it once per query; the same descriptor drives
// the task for every surviving batch.
type PipelineDesc struct {
	Table   *common.TableInfo
	Output  []ColRef
	Filter  *common.Predicate
	GroupBy []ColRef
	Aggs    []AggOp
	OrderBy []OrderOp
	Limit   int64
}

// IsAggregate reports whether the pipeline produces grouped partial states
// rather than plain rows.
func (d *PipelineDesc) IsAggregate() bool {
	return len(d.Aggs) > 0 || len(d.GroupBy) > 0
}

// OutputTypes returns the column types of the final result rows.
func (d *PipelineDesc) OutputTypes() []common.ColumnType {
	if !d.IsAggregate() {
		types := make([]common.ColumnType, len(d.Output))
		for i, c := range d.Output {
			types[i] = c.Type
		}
		return types
	}
	types := make([]common.ColumnType, 0, len(d.GroupBy)+len(d.Aggs))
	for _, c := range d.GroupBy {
		types = append(types, c.Type)
	}
	for _, a := range d.Aggs {
		types = append(types, a.Func.ValueType())
	}
	return types
}

// OutputNames returns the column names of the final result rows.
func (d *PipelineDesc) OutputNames() []string {
	if !d.IsAggregate() {
		names := make([]string, len(d.Output))
		for i, c := range d.Output {
			names[i] = c.Name
		}
		return names
	}
	names := make([]string, 0, len(d.GroupBy)+len(d.Aggs))
	for _, c := range d.GroupBy {
		names = append(names, c.Name)
	}
	for _, a := range d.Aggs {
		names = append(names, a.OutputName)
	}
	return names
}

// BatchState flows down the operator chain for one batch.
type BatchState struct {
	Source    Source
	Selection *roaring.Bitmap // nil means every row
	Rows      *common.Rows
	Positions []int // original row positions of Rows, kept for sort ties
	Groups    *GroupedPartial
}

// BatchResult is the partial result one batch task contributes to the
// merge.
type BatchResult struct {
	Ordinal   int
	Rows      *common.Rows
	Positions []int
	Groups    *GroupedPartial
}

// BatchExecutor is one operator in the per-batch chain. Executors pull
// from their child, transform the state and hand it upward.
type BatchExecutor interface {
	Execute(ctx context.Context) (*BatchState, error)
	setChild(child BatchExecutor)
}

type batchExecutorBase struct {
	child BatchExecutor
}

func (b *batchExecutorBase) setChild(child BatchExecutor) {
	b.child = child
}

// pull runs the child after checking for cancellation, so a cancelled
// query stops between operators rather than mid-operator.
func (b *batchExecutorBase) pull(ctx context.Context) (*BatchState, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewQueryCancelledError()
	}
	return b.child.Execute(ctx)
}

type scanExecutor struct {
	batchExecutorBase
	source Source
}

func (s *scanExecutor) Execute(ctx context.Context) (*BatchState, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewQueryCancelledError()
	}
	return &BatchState{Source: s.source}, nil
}

// buildChain wires scan → filter → group-by | project → top-n for one
// batch per the descriptor.
func buildChain(desc *PipelineDesc, src Source) BatchExecutor {
	var head BatchExecutor = &scanExecutor{source: src}
	if desc.Filter != nil {
		f := &filterExecutor{pred: desc.Filter}
		f.setChild(head)
		head = f
	}
	if desc.IsAggregate() {
		g := &groupExecutor{keys: desc.GroupBy, aggs: desc.Aggs}
		g.setChild(head)
		return g
	}
	p := &projectExecutor{cols: desc.Output, keepPositions: len(desc.OrderBy) > 0}
	p.setChild(head)
	head = p
	if len(desc.OrderBy) > 0 && desc.Limit >= 0 {
		t := &topNExecutor{orderBy: desc.OrderBy, limit: desc.Limit}
		t.setChild(head)
		head = t
	}
	return head
}

// ExecuteBatch runs the pipeline against one batch and returns its partial
// result.
func ExecuteBatch(ctx context.Context, desc *PipelineDesc, src Source) (*BatchResult, error) {
	state, err := buildChain(desc, src).Execute(ctx)
	if err != nil {
		return nil, err
	}
	return &BatchResult{
		Ordinal:   src.Ordinal(),
		Rows:      state.Rows,
		Positions: state.Positions,
		Groups:    state.Groups,
	}, nil
}

// BatchSource is the plain Source over an in-memory batch. It memoizes
// opened readers and decoded columns; it is used within a single task and
// is not synchronized.
type BatchSource struct {
	batch   *table.Batch
	readers []*codec.Reader
	decoded []*common.Column
}

func NewBatchSource(batch *table.Batch) *BatchSource {
	return &BatchSource{
		batch:   batch,
		readers: make([]*codec.Reader, len(batch.Segments)),
		decoded: make([]*common.Column, len(batch.Segments)),
	}
}

func (s *BatchSource) Ordinal() int {
	return int(s.batch.Ordinal)
}

func (s *BatchSource) RowCount() int {
	return s.batch.RowCount
}

func (s *BatchSource) Reader(colIndex int) (*codec.Reader, error) {
	if s.readers[colIndex] == nil {
		rd, err := codec.OpenReader(s.batch.Segments[colIndex])
		if err != nil {
			return nil, err
		}
		s.readers[colIndex] = rd
	}
	return s.readers[colIndex], nil
}

func (s *BatchSource) Column(colIndex int) (*common.Column, error) {
	if s.decoded[colIndex] == nil {
		rd, err := s.Reader(colIndex)
		if err != nil {
			return nil, err
		}
		col, err := rd.Decode()
		if err != nil {
			return nil, err
		}
		s.decoded[colIndex] = col
	}
	return s.decoded[colIndex], nil
}

// forEachSelected visits each row in the selection in ascending order, or
// every row when the selection is nil.
func forEachSelected(rowCount int, sel *roaring.Bitmap, f func(row int) error) error {
	if sel == nil {
		for row := 0; row < rowCount; row++ {
			if err := f(row); err != nil {
				return err
			}
		}
		return nil
	}
	it := sel.Iterator()
	for it.HasNext() {
		if err := f(int(it.Next())); err != nil {
			return err
		}
	}
	return nil
}

func selectedCount(rowCount int, sel *roaring.Bitmap) int {
	if sel == nil {
		return rowCount
	}
	return int(sel.GetCardinality())
}
