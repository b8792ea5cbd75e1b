// Package sched runs planned queries: it prunes batches with segment
// statistics, fans the survivors out over a bounded worker pool, bounds
// concurrent segment decodes with permits, and merges the per-batch
// partial results deterministically.
package sched

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/jaywalker76/LocustDB/cache"
	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
	"github.com/jaywalker76/LocustDB/exec"
	"github.com/jaywalker76/LocustDB/planner"
	"github.com/jaywalker76/LocustDB/storage"
	"github.com/jaywalker76/LocustDB/table"
)

// Scheduler executes plans against tables. It owns the worker pool and the
// decode permits and shares the segment cache across queries.
type Scheduler struct {
	pool    *ants.Pool
	permits *semaphore.Weighted
	cache   *cache.SegmentCache
	store   storage.SegmentStore
}

// Result is the outcome of one query run. Complete is false when batches
// were excluded by non-fatal errors or the run was cancelled; each
// exclusion carries a warning. Cancelled marks a run whose context was
// cancelled mid-flight; Rows then holds the merge of whatever partials
// finished before the cancellation.
type Result struct {
	Rows        *common.Rows
	ColumnNames []string
	Complete    bool
	Cancelled   bool
	Warnings    []string
	Pruned      int
	State       QueryState
}

func NewScheduler(workerPoolSize, decodePermits int, segCache *cache.SegmentCache, store storage.SegmentStore) (*Scheduler, error) {
	pool, err := ants.NewPool(workerPoolSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Scheduler{
		pool:    pool,
		permits: semaphore.NewWeighted(int64(decodePermits)),
		cache:   segCache,
		store:   store,
	}, nil
}

func (s *Scheduler) Stop() {
	s.pool.Release()
}

type batchOutcome struct {
	ordinal uint64
	result  *exec.BatchResult
	err     error
}

// Execute runs the plan to completion. Fatal errors abort the run and
// cancel in-flight batch tasks; non-fatal batch errors exclude that batch
// and demote the result to incomplete. Cancellation is not an error: the
// run still merges the partials that finished and returns them marked
// cancelled and incomplete.
func (s *Scheduler) Execute(ctx context.Context, plan *planner.Plan, tbl *table.Table) (*Result, error) {
	run := newQueryRun()
	surviving, pruned := table.Prune(tbl.Batches(), plan.Pipeline.Filter)

	if len(surviving) == 0 {
		return s.finish(run, plan, nil, pruned, nil, false)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan batchOutcome, len(surviving))
	var wg sync.WaitGroup
	for _, batch := range surviving {
		batch := batch
		wg.Add(1)
		task := func() {
			defer wg.Done()
			res, err := s.runBatch(taskCtx, plan, tbl, batch)
			outcomes <- batchOutcome{ordinal: batch.Ordinal, result: res, err: err}
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			outcomes <- batchOutcome{ordinal: batch.Ordinal, err: errors.WithStack(err)}
		}
	}
	if err := run.transitionTo(StateDispatched); err != nil {
		return nil, err
	}
	wg.Wait()
	close(outcomes)

	var partials []*exec.BatchResult
	var warnings []string
	var fatalErr error
	cancelled := false
	for outcome := range outcomes {
		if err := run.transitionTo(StatePartiallyComplete); err != nil {
			return nil, err
		}
		if outcome.err == nil {
			partials = append(partials, outcome.result)
			continue
		}
		code := errors.CodeOf(outcome.err)
		switch {
		case code == errors.QueryCancelled:
			cancelled = true
		case errors.IsFatalToQuery(code):
			if fatalErr == nil {
				fatalErr = outcome.err
			}
			cancel()
		default:
			log.Warnf("batch %d excluded from query on table %s: %v",
				outcome.ordinal, tbl.Info.Name, outcome.err)
			warnings = append(warnings, fmt.Sprintf("batch %d excluded: %v", outcome.ordinal, outcome.err))
		}
	}

	if fatalErr != nil {
		if err := run.transitionTo(StateAborted); err != nil {
			return nil, err
		}
		return nil, fatalErr
	}
	cancelled = cancelled || ctx.Err() != nil
	sort.Strings(warnings)
	return s.finish(run, plan, partials, pruned, warnings, cancelled)
}

func (s *Scheduler) finish(run *queryRun, plan *planner.Plan, partials []*exec.BatchResult, pruned int, warnings []string, cancelled bool) (*Result, error) {
	if err := run.transitionTo(StateMerged); err != nil {
		return nil, err
	}
	rows, err := exec.MergeResults(&plan.Pipeline, partials)
	if err != nil {
		if terr := run.transitionTo(StateAborted); terr != nil {
			return nil, terr
		}
		return nil, err
	}
	if err := run.transitionTo(StateDone); err != nil {
		return nil, err
	}
	return &Result{
		Rows:        rows,
		ColumnNames: plan.Pipeline.OutputNames(),
		Complete:    len(warnings) == 0 && !cancelled,
		Cancelled:   cancelled,
		Warnings:    warnings,
		Pruned:      pruned,
		State:       run.State(),
	}, nil
}

func (s *Scheduler) runBatch(ctx context.Context, plan *planner.Plan, tbl *table.Table, batch *table.Batch) (*exec.BatchResult, error) {
	src := &cachedSource{
		sched:   s,
		ctx:     ctx,
		tbl:     tbl,
		batch:   batch,
		handles: make([]*cache.Handle, len(batch.Segments)),
		readers: make([]*codec.Reader, len(batch.Segments)),
		columns: make([]*common.Column, len(batch.Segments)),
	}
	defer src.release()
	return exec.ExecuteBatch(ctx, &plan.Pipeline, src)
}

// decodedSegment is the cache value: a reader over the sealed payload plus
// the eagerly decoded column. Decoding under the permit keeps the permit
// an honest bound on decode concurrency; the cache then serves both the
// reader fast paths and full-column access from a single entry.
type decodedSegment struct {
	reader *codec.Reader
	column *common.Column
}

// cachedSource adapts one batch to the executor, pinning each column's
// cache entry for the task's lifetime so eviction cannot race a scan.
type cachedSource struct {
	sched *Scheduler
	ctx   context.Context
	tbl   *table.Table
	batch *table.Batch

	mu      sync.Mutex
	handles []*cache.Handle
	readers []*codec.Reader
	columns []*common.Column
}

func (c *cachedSource) Ordinal() int {
	return int(c.batch.Ordinal)
}

func (c *cachedSource) RowCount() int {
	return c.batch.RowCount
}

func (c *cachedSource) Reader(colIndex int) (*codec.Reader, error) {
	if err := c.load(colIndex); err != nil {
		return nil, err
	}
	return c.readers[colIndex], nil
}

func (c *cachedSource) Column(colIndex int) (*common.Column, error) {
	if err := c.load(colIndex); err != nil {
		return nil, err
	}
	return c.columns[colIndex], nil
}

func (c *cachedSource) load(colIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readers[colIndex] != nil {
		return nil
	}
	id := c.tbl.SegmentID(colIndex, c.batch)
	handle, err := c.sched.cache.GetOrLoad(id.String(), func() (interface{}, int64, error) {
		return c.loadAndDecode(id, colIndex)
	})
	if err != nil {
		return err
	}
	ds := handle.Value().(*decodedSegment)
	c.handles[colIndex] = handle
	c.readers[colIndex] = ds.reader
	c.columns[colIndex] = ds.column
	return nil
}

func (c *cachedSource) loadAndDecode(id table.SegmentID, colIndex int) (interface{}, int64, error) {
	if err := c.sched.permits.Acquire(c.ctx, 1); err != nil {
		return nil, 0, errors.NewQueryCancelledError()
	}
	defer c.sched.permits.Release(1)

	seg := c.batch.Segment(colIndex)
	if seg == nil || seg.Payload == nil {
		// evicted payload, reload from the persistence layer
		loaded, err := c.sched.store.LoadSegment(id)
		if err != nil {
			return nil, 0, err
		}
		seg = loaded
	}
	rd, err := codec.OpenReader(seg)
	if err != nil {
		return nil, 0, err
	}
	col, err := rd.Decode()
	if err != nil {
		return nil, 0, err
	}
	return &decodedSegment{reader: rd, column: col}, seg.MemSize() + col.MemSize(), nil
}

func (c *cachedSource) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, handle := range c.handles {
		if handle != nil {
			handle.Release()
			c.handles[i] = nil
		}
	}
}
