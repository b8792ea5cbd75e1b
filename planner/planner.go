// Package planner binds the abstract query description against a schema
// and produces the per-batch operator pipeline the scheduler executes.
package planner

import (
	"fmt"

	"github.com/jaywalker76/LocustDB/aggfuncs"
	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
	"github.com/jaywalker76/LocustDB/exec"
	"github.com/jaywalker76/LocustDB/table"
)

// Strategy is the codec-aware execution strategy the planner expects a
// filter column to use. It is a hint only: codecs are resolved per segment
// at execution time, since different batches of the same column may have
// been sealed with different codecs.
type Strategy int

const (
	StrategyDecodeScan Strategy = iota
	StrategyRawScan
	StrategyDictLookup
	StrategyRunSkip
	StrategyDeltaRange
)

func (s Strategy) String() string {
	switch s {
	case StrategyRawScan:
		return "raw-scan"
	case StrategyDictLookup:
		return "dict-lookup"
	case StrategyRunSkip:
		return "run-skip"
	case StrategyDeltaRange:
		return "delta-range"
	default:
		return "decode-scan"
	}
}

// Plan is the bound query: the pipeline descriptor shared by every batch
// task, plus planning annotations. Built once per query and owned by it.
type Plan struct {
	Pipeline exec.PipelineDesc
	Query    *common.QueryDesc

	// Hints maps filter column names to the expected strategy, taken from
	// the most recently sealed batch.
	Hints map[string]Strategy

	// EstimatedSelectivity is the fraction of batches the filter cannot
	// exclude, from batch statistics only. 1.0 without a filter.
	EstimatedSelectivity float64
}

type Planner struct {
	schema *common.Schema
}

func NewPlanner(schema *common.Schema) *Planner {
	return &Planner{schema: schema}
}

// Plan validates and binds the query. Planning never touches encoded data;
// everything it needs is in the schema.
func (p *Planner) Plan(query *common.QueryDesc) (*Plan, error) {
	info, ok := p.schema.GetTable(query.TableName)
	if !ok {
		return nil, errors.NewUnknownTableError(query.TableName)
	}
	plan := &Plan{
		Query: query,
		Pipeline: exec.PipelineDesc{
			Table: info,
			Limit: query.Limit,
		},
		Hints:                map[string]Strategy{},
		EstimatedSelectivity: 1.0,
	}

	isAggregate := len(query.Aggregates) > 0 || len(query.GroupBy) > 0
	if isAggregate {
		if err := p.bindAggregate(plan, info, query); err != nil {
			return nil, err
		}
	} else {
		if err := p.bindProjection(plan, info, query); err != nil {
			return nil, err
		}
	}

	if query.Filter != nil {
		if err := bindPredicate(query.Filter, info); err != nil {
			return nil, err
		}
		plan.Pipeline.Filter = query.Filter
	}

	if err := bindOrderBy(plan, query); err != nil {
		return nil, err
	}
	return plan, nil
}

func (p *Planner) bindProjection(plan *Plan, info *common.TableInfo, query *common.QueryDesc) error {
	names := query.SelectCols
	if query.Star {
		if len(names) > 0 {
			return errors.NewUnsupportedQueryError("* cannot be combined with named columns")
		}
		names = info.ColumnNames
	}
	if len(names) == 0 {
		return errors.NewInvalidStatementError("empty select list")
	}
	for _, name := range names {
		ref, err := bindColumn(info, name)
		if err != nil {
			return err
		}
		plan.Pipeline.Output = append(plan.Pipeline.Output, ref)
	}
	return nil
}

func (p *Planner) bindAggregate(plan *Plan, info *common.TableInfo, query *common.QueryDesc) error {
	if query.Star {
		return errors.NewUnsupportedQueryError("* is not valid in an aggregate query")
	}
	groupKeys := map[string]struct{}{}
	for _, name := range query.GroupBy {
		ref, err := bindColumn(info, name)
		if err != nil {
			return err
		}
		groupKeys[name] = struct{}{}
		plan.Pipeline.GroupBy = append(plan.Pipeline.GroupBy, ref)
	}
	// plain selected columns must be group keys, anything else is not a
	// well-formed aggregate query
	for _, name := range query.SelectCols {
		if _, ok := groupKeys[name]; !ok {
			return errors.NewUnsupportedQueryError(
				fmt.Sprintf("column %s must appear in the group by clause or an aggregate", name))
		}
	}
	for i, agg := range query.Aggregates {
		op := exec.AggOp{
			FuncType:   agg.Func,
			OutputName: fmt.Sprintf("%s_%d", agg.Func.String(), i),
		}
		argType := common.BigIntColumnType
		if agg.ColName != "" {
			ref, err := bindColumn(info, agg.ColName)
			if err != nil {
				return err
			}
			op.Arg = ref
			op.HasArg = true
			argType = ref.Type
		} else if agg.Func != common.AggCount {
			return errors.NewInvalidStatementError(agg.Func.String() + " requires a column argument")
		}
		f, err := aggfuncs.NewAggregateFunction(agg.Func, argType)
		if err != nil {
			return err
		}
		op.Func = f
		plan.Pipeline.Aggs = append(plan.Pipeline.Aggs, op)
	}
	return nil
}

func bindColumn(info *common.TableInfo, name string) (exec.ColRef, error) {
	idx := info.ColumnIndex(name)
	if idx < 0 {
		return exec.ColRef{}, errors.NewUnknownColumnError(info.Name, name)
	}
	return exec.ColRef{Name: name, Index: idx, Type: info.ColumnTypes[idx]}, nil
}

// bindOrderBy resolves order terms against the output columns of the
// pipeline, aggregate outputs included.
func bindOrderBy(plan *Plan, query *common.QueryDesc) error {
	if len(query.OrderBy) == 0 {
		return nil
	}
	names := plan.Pipeline.OutputNames()
	for _, term := range query.OrderBy {
		idx := -1
		for i, n := range names {
			if n == term.ColName {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errors.NewUnsupportedQueryError(
				fmt.Sprintf("order by column %s is not in the select list", term.ColName))
		}
		plan.Pipeline.OrderBy = append(plan.Pipeline.OrderBy, exec.OrderOp{
			OutputIndex: idx,
			Descending:  term.Descending,
		})
	}
	return nil
}

// bindPredicate resolves column ordinals and coerces literals to the
// column types, bottom up.
func bindPredicate(pred *common.Predicate, info *common.TableInfo) error {
	if !pred.IsComparison() {
		for _, c := range pred.Children {
			if err := bindPredicate(c, info); err != nil {
				return err
			}
		}
		return nil
	}
	idx := info.ColumnIndex(pred.ColName)
	if idx < 0 {
		return errors.NewUnknownColumnError(info.Name, pred.ColName)
	}
	pred.ColIndex = idx
	colType := info.ColumnTypes[idx]
	for i, lit := range pred.Literals {
		coerced, err := coerceLiteral(lit, colType)
		if err != nil {
			return err
		}
		pred.Literals[i] = coerced
	}
	return nil
}

func coerceLiteral(lit common.Literal, colType common.ColumnType) (common.Literal, error) {
	if lit.IsNull {
		return lit, nil
	}
	if lit.Type == colType.Type {
		return lit, nil
	}
	// integer literals widen against double columns, nothing else converts
	if colType.Type == common.TypeDouble && lit.Type == common.TypeBigInt {
		return common.FloatLiteral(float64(lit.Int64)), nil
	}
	return common.Literal{}, errors.NewTypeMismatchError(colType.String(), lit.Type.String())
}

// Annotate fills the strategy hints and the selectivity estimate from
// batch statistics. It reads stats only, never encoded payloads.
func (p *Plan) Annotate(batches []*table.Batch) {
	if len(batches) == 0 || p.Pipeline.Filter == nil {
		return
	}
	latest := batches[len(batches)-1]
	names := map[string]struct{}{}
	p.Pipeline.Filter.ReferencedColumns(names)
	for name := range names {
		idx := p.Pipeline.Table.ColumnIndex(name)
		if idx < 0 {
			continue
		}
		p.Hints[name] = strategyForKind(latest.Segments[idx].Kind)
	}
	surviving, _ := table.Prune(batches, p.Pipeline.Filter)
	p.EstimatedSelectivity = float64(len(surviving)) / float64(len(batches))
}

func strategyForKind(kind codec.Kind) Strategy {
	switch kind {
	case codec.KindDictionary:
		return StrategyDictLookup
	case codec.KindRunLength:
		return StrategyRunSkip
	case codec.KindDelta:
		return StrategyDeltaRange
	case codec.KindPlain:
		return StrategyRawScan
	default:
		return StrategyDecodeScan
	}
}
