package exec

import (
	"context"

	"github.com/jaywalker76/LocustDB/common"
)

// projectExecutor materializes the selected rows of the output columns,
// preserving row order. Original row positions are kept when a sort
// follows, so equal sort keys can fall back to position.
type projectExecutor struct {
	batchExecutorBase
	cols          []ColRef
	keepPositions bool
}

func (p *projectExecutor) Execute(ctx context.Context) (*BatchState, error) {
	state, err := p.pull(ctx)
	if err != nil {
		return nil, err
	}
	cols := make([]*common.Column, len(p.cols))
	for i, ref := range p.cols {
		col, err := state.Source.Column(ref.Index)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	types := make([]common.ColumnType, len(p.cols))
	for i, ref := range p.cols {
		types[i] = ref.Type
	}
	rows := common.NewRowsFactory(types).NewRows(selectedCount(state.Source.RowCount(), state.Selection))
	var positions []int
	err = forEachSelected(state.Source.RowCount(), state.Selection, func(row int) error {
		for i := range cols {
			rows.Column(i).AppendFrom(cols[i], row)
		}
		if p.keepPositions {
			positions = append(positions, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	state.Rows = rows
	state.Positions = positions
	return state, nil
}
