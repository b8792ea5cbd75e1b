package exec

import (
	"container/heap"
	"context"
	"sort"

	"github.com/jaywalker76/LocustDB/common"
)

// Sort comparison over materialized rows. Nulls order before every value
// in ascending order, after every value in descending order. Equal keys
// fall back to original row position so sorting is deterministic.

func colCompare(col *common.Column, a, b int) int {
	an, bn := col.IsNull(a), col.IsNull(b)
	if an || bn {
		switch {
		case an && bn:
			return 0
		case an:
			return -1
		default:
			return 1
		}
	}
	switch col.Type().Type {
	case common.TypeBigInt:
		av, _ := col.GetInt64(a)
		bv, _ := col.GetInt64(b)
		return compareInt64(av, bv)
	case common.TypeDouble:
		av, _ := col.GetFloat64(a)
		bv, _ := col.GetFloat64(b)
		return compareFloat64(av, bv)
	case common.TypeVarchar:
		av, _ := col.GetString(a)
		bv, _ := col.GetString(b)
		return compareString(av, bv)
	case common.TypeBoolean:
		av, _ := col.GetBool(a)
		bv, _ := col.GetBool(b)
		return compareBool(av, bv)
	}
	return 0
}

// rowLess orders row a before row b per the order terms, breaking ties by
// the rows' original positions.
func rowLess(rows *common.Rows, positions []int, orderBy []OrderOp, a, b int) bool {
	for _, term := range orderBy {
		cmp := colCompare(rows.Column(term.OutputIndex), a, b)
		if term.Descending {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp < 0
		}
	}
	if positions != nil {
		return positions[a] < positions[b]
	}
	return a < b
}

// reorderRows materializes rows in the given permutation, permuting
// positions alongside.
func reorderRows(rows *common.Rows, positions []int, perm []int) (*common.Rows, []int) {
	types := make([]common.ColumnType, rows.ColCount())
	for i := 0; i < rows.ColCount(); i++ {
		types[i] = rows.Column(i).Type()
	}
	out := common.NewRowsFactory(types).NewRows(len(perm))
	var outPos []int
	for _, idx := range perm {
		for c := 0; c < rows.ColCount(); c++ {
			out.Column(c).AppendFrom(rows.Column(c), idx)
		}
		if positions != nil {
			outPos = append(outPos, positions[idx])
		}
	}
	return out, outPos
}

// SortRows returns the rows ordered by the given terms.
func SortRows(rows *common.Rows, positions []int, orderBy []OrderOp) (*common.Rows, []int) {
	perm := make([]int, rows.RowCount())
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return rowLess(rows, positions, orderBy, perm[a], perm[b])
	})
	return reorderRows(rows, positions, perm)
}

// topNExecutor keeps only the first limit rows of the batch's sorted
// order, with a bounded heap when the limit is small relative to the
// batch, so the merge sorts far fewer rows.
type topNExecutor struct {
	batchExecutorBase
	orderBy []OrderOp
	limit   int64
}

func (t *topNExecutor) Execute(ctx context.Context) (*BatchState, error) {
	state, err := t.pull(ctx)
	if err != nil {
		return nil, err
	}
	rows, positions := TopN(state.Rows, state.Positions, t.orderBy, t.limit)
	state.Rows = rows
	state.Positions = positions
	return state, nil
}

// topHeap is a max-heap of row indices by sort order, so the root is the
// worst row currently kept.
type topHeap struct {
	rows      *common.Rows
	positions []int
	orderBy   []OrderOp
	idx       []int
}

func (h *topHeap) Len() int { return len(h.idx) }
func (h *topHeap) Less(a, b int) bool {
	return rowLess(h.rows, h.positions, h.orderBy, h.idx[b], h.idx[a])
}
func (h *topHeap) Swap(a, b int) { h.idx[a], h.idx[b] = h.idx[b], h.idx[a] }
func (h *topHeap) Push(x interface{}) {
	h.idx = append(h.idx, x.(int))
}
func (h *topHeap) Pop() interface{} {
	n := len(h.idx)
	v := h.idx[n-1]
	h.idx = h.idx[:n-1]
	return v
}

// TopN returns the first n rows of the sorted order.
func TopN(rows *common.Rows, positions []int, orderBy []OrderOp, n int64) (*common.Rows, []int) {
	rc := int64(rows.RowCount())
	if n >= rc {
		return SortRows(rows, positions, orderBy)
	}
	if n <= 0 {
		empty, emptyPos := reorderRows(rows, positions, nil)
		return empty, emptyPos
	}
	if n*4 > rc {
		sorted, sortedPos := SortRows(rows, positions, orderBy)
		perm := make([]int, n)
		for i := range perm {
			perm[i] = i
		}
		return reorderRows(sorted, sortedPos, perm)
	}

	h := &topHeap{rows: rows, positions: positions, orderBy: orderBy}
	for row := 0; row < int(rc); row++ {
		if int64(len(h.idx)) < n {
			heap.Push(h, row)
			continue
		}
		worst := h.idx[0]
		if rowLess(rows, positions, orderBy, row, worst) {
			h.idx[0] = row
			heap.Fix(h, 0)
		}
	}
	perm := make([]int, len(h.idx))
	for i := len(perm) - 1; i >= 0; i-- {
		perm[i] = heap.Pop(h).(int)
	}
	return reorderRows(rows, positions, perm)
}
