package exec

import (
	"context"
	"sort"

	"github.com/jaywalker76/LocustDB/aggfuncs"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
)

// GroupEntry is one group's key values and accumulated aggregate state.
type GroupEntry struct {
	Key   []common.Literal
	State *aggfuncs.AggState
}

// GroupedPartial holds the per-group aggregate states produced by one
// batch, in first-occurrence order. Partials from different batches merge
// commutatively; the merged ordering follows batch ordinal order, so the
// final result is independent of task completion order.
type GroupedPartial struct {
	numAggs int
	index   map[string]int
	Entries []*GroupEntry
}

func NewGroupedPartial(numAggs int) *GroupedPartial {
	return &GroupedPartial{numAggs: numAggs, index: make(map[string]int)}
}

// EntryFor returns the entry for the key, creating it at the end of the
// occurrence order if absent.
func (g *GroupedPartial) EntryFor(key []common.Literal) *GroupEntry {
	encoded := encodeGroupKey(key)
	if idx, ok := g.index[encoded]; ok {
		return g.Entries[idx]
	}
	entry := &GroupEntry{Key: key, State: aggfuncs.NewAggState(g.numAggs)}
	g.index[encoded] = len(g.Entries)
	g.Entries = append(g.Entries, entry)
	return entry
}

// encodeGroupKey builds a byte key over the literal values. A null flag
// byte precedes each value so null keys form their own group and can never
// collide with a real value.
func encodeGroupKey(key []common.Literal) string {
	var buff []byte
	for _, lit := range key {
		if lit.IsNull {
			buff = append(buff, 1)
			continue
		}
		buff = append(buff, 0)
		switch lit.Type {
		case common.TypeBigInt:
			buff = common.AppendUint64ToBufferLE(buff, uint64(lit.Int64))
		case common.TypeDouble:
			buff = common.AppendFloat64ToBufferLE(buff, lit.Float)
		case common.TypeVarchar:
			buff = common.AppendStringToBufferLE(buff, lit.String)
		case common.TypeBoolean:
			if lit.Bool {
				buff = append(buff, 1)
			} else {
				buff = append(buff, 0)
			}
		}
	}
	return string(buff)
}

// groupExecutor accumulates the partial aggregate states for one batch.
// With a single dictionary-encoded key column the dictionary slot is the
// group identity, so no re-hashing of key values happens; otherwise keys
// are hashed with a first-occurrence ordering policy. Global aggregates
// (no keys) are a single group with an empty key.
type groupExecutor struct {
	batchExecutorBase
	keys []ColRef
	aggs []AggOp
}

func (g *groupExecutor) Execute(ctx context.Context) (*BatchState, error) {
	state, err := g.pull(ctx)
	if err != nil {
		return nil, err
	}
	var groups *GroupedPartial
	if len(g.keys) == 0 {
		groups, err = g.globalAggregate(state)
	} else if len(g.keys) == 1 {
		groups, err = g.dictGroup(state)
		if err == nil && groups == nil {
			groups, err = g.hashGroup(state)
		}
	} else {
		groups, err = g.hashGroup(state)
	}
	if err != nil {
		return nil, err
	}
	state.Groups = groups
	return state, nil
}

// globalAggregate aggregates the whole batch into one group, using the
// codec sum fast path where the selection is the full batch.
func (g *groupExecutor) globalAggregate(state *BatchState) (*GroupedPartial, error) {
	groups := NewGroupedPartial(len(g.aggs))
	entry := groups.EntryFor(nil)
	pending := make([]bool, len(g.aggs))
	anyPending := false
	for i, agg := range g.aggs {
		if !agg.HasArg {
			entry.State.AddCount(i, int64(selectedCount(state.Source.RowCount(), state.Selection)))
			continue
		}
		if agg.FuncType == common.AggSum && state.Selection == nil {
			rd, err := state.Source.Reader(agg.Arg.Index)
			if err != nil {
				return nil, err
			}
			if lit, ok := rd.Sum(); ok {
				stats := rd.Segment().Stats
				nonNull := int64(state.Source.RowCount() - stats.NullCount)
				switch lit.Type {
				case common.TypeBigInt:
					entry.State.AddInt64(i, lit.Int64)
				case common.TypeDouble:
					entry.State.SetFloat64(i, lit.Float)
				}
				entry.State.AddCount(i, nonNull)
				continue
			}
		}
		pending[i] = true
		anyPending = true
	}
	if !anyPending {
		return groups, nil
	}
	err := forEachSelected(state.Source.RowCount(), state.Selection, func(row int) error {
		for i, agg := range g.aggs {
			if !pending[i] {
				continue
			}
			if err := evalAggRow(state.Source, agg, entry.State, i, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// dictGroup groups by dictionary slot id. Returns nil groups (no error)
// when the key segment is not dictionary encoded.
func (g *groupExecutor) dictGroup(state *BatchState) (*GroupedPartial, error) {
	rd, err := state.Source.Reader(g.keys[0].Index)
	if err != nil {
		return nil, err
	}
	codes, dict, ok := rd.DictCodes()
	if !ok {
		return nil, nil
	}
	nullSlot := uint64(len(dict))
	states := make([]*aggfuncs.AggState, len(dict)+1)
	firstRow := make([]int, len(dict)+1)
	err = forEachSelected(state.Source.RowCount(), state.Selection, func(row int) error {
		slot := codes[row]
		st := states[slot]
		if st == nil {
			st = aggfuncs.NewAggState(len(g.aggs))
			states[slot] = st
			firstRow[slot] = row
		}
		for i, agg := range g.aggs {
			if err := evalAggRow(state.Source, agg, st, i, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// emit in first-occurrence order, same as the hash path would
	var slots []int
	for slot, st := range states {
		if st != nil {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(a, b int) bool { return firstRow[slots[a]] < firstRow[slots[b]] })
	groups := NewGroupedPartial(len(g.aggs))
	for _, slot := range slots {
		key := common.NullLiteral()
		if uint64(slot) != nullSlot {
			key = dict[slot]
		}
		entry := groups.EntryFor([]common.Literal{key})
		entry.State = states[slot]
	}
	return groups, nil
}

func (g *groupExecutor) hashGroup(state *BatchState) (*GroupedPartial, error) {
	keyCols := make([]*common.Column, len(g.keys))
	for i, k := range g.keys {
		col, err := state.Source.Column(k.Index)
		if err != nil {
			return nil, err
		}
		keyCols[i] = col
	}
	groups := NewGroupedPartial(len(g.aggs))
	err := forEachSelected(state.Source.RowCount(), state.Selection, func(row int) error {
		key := make([]common.Literal, len(keyCols))
		for i, col := range keyCols {
			key[i] = literalAt(col, row)
		}
		entry := groups.EntryFor(key)
		for i, agg := range g.aggs {
			if err := evalAggRow(state.Source, agg, entry.State, i, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func literalAt(col *common.Column, row int) common.Literal {
	if col.IsNull(row) {
		return common.NullLiteral()
	}
	switch col.Type().Type {
	case common.TypeBigInt:
		v, _ := col.GetInt64(row)
		return common.Int64Literal(v)
	case common.TypeDouble:
		v, _ := col.GetFloat64(row)
		return common.FloatLiteral(v)
	case common.TypeVarchar:
		v, _ := col.GetString(row)
		return common.StringLiteral(v)
	case common.TypeBoolean:
		v, _ := col.GetBool(row)
		return common.BoolLiteral(v)
	}
	return common.NullLiteral()
}

func evalAggRow(src Source, agg AggOp, state *aggfuncs.AggState, index int, row int) error {
	if !agg.HasArg {
		state.AddCount(index, 1)
		return nil
	}
	col, err := src.Column(agg.Arg.Index)
	if err != nil {
		return err
	}
	null := col.IsNull(row)
	switch agg.Arg.Type.Type {
	case common.TypeBigInt:
		v, _ := col.GetInt64(row)
		return agg.Func.EvalInt64(v, null, state, index)
	case common.TypeDouble:
		v, _ := col.GetFloat64(row)
		return agg.Func.EvalFloat64(v, null, state, index)
	case common.TypeVarchar:
		v, _ := col.GetString(row)
		return agg.Func.EvalString(v, null, state, index)
	case common.TypeBoolean:
		b, _ := col.GetBool(row)
		v := int64(0)
		if b {
			v = 1
		}
		return agg.Func.EvalInt64(v, null, state, index)
	default:
		return errors.NewLocustErrorf(errors.InternalError, "aggregate over unknown type")
	}
}
