// Package engine wires the whole database together: one Engine owns the
// store, the segment cache, the scheduler and the metrics factory, and
// serves DDL, ingest and queries against an in-process table catalog.
package engine

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/jaywalker76/LocustDB/cache"
	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/conf"
	"github.com/jaywalker76/LocustDB/errors"
	"github.com/jaywalker76/LocustDB/ingest"
	"github.com/jaywalker76/LocustDB/metrics"
	"github.com/jaywalker76/LocustDB/metrics/prometheus"
	"github.com/jaywalker76/LocustDB/parser"
	"github.com/jaywalker76/LocustDB/planner"
	"github.com/jaywalker76/LocustDB/sched"
	"github.com/jaywalker76/LocustDB/storage"
	"github.com/jaywalker76/LocustDB/table"
)

type Engine struct {
	cfg       conf.Config
	store     storage.SegmentStore
	segCache  *cache.SegmentCache
	scheduler *sched.Scheduler
	ingestor  *ingest.Ingestor
	metrics   metrics.Factory
	planner   *planner.Planner

	lock        sync.RWMutex
	schema      *common.Schema
	tables      map[string]*table.Table
	batchCounts map[string]uint64
	nextTableID uint64
	started     bool
	stopped     bool
	inFlight    sync.WaitGroup

	queriesExecuted metrics.Counter
	queriesFailed   metrics.Counter
	batchesPruned   metrics.Counter
	cacheHits       metrics.Counter
	cacheMisses     metrics.Counter
	lastHits        int64
	lastMisses      int64
}

func NewEngine(cfg conf.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var store storage.SegmentStore
	var err error
	if cfg.DataDir != "" {
		store, err = storage.NewPebbleStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
	} else {
		// no data dir, run purely in memory
		store = storage.NewFakeStore()
	}
	segCache := cache.New(cfg.CacheMaxBytes)
	scheduler, err := sched.NewScheduler(cfg.WorkerPoolSize, int(cfg.DecodePermits), segCache, store)
	if err != nil {
		return nil, err
	}
	var metricsFactory metrics.Factory
	if cfg.EnableMetrics {
		metricsFactory = prometheus.NewFactory(cfg)
	} else {
		metricsFactory = metrics.NewNoopFactory()
	}
	engine := &Engine{
		cfg:         cfg,
		store:       store,
		segCache:    segCache,
		scheduler:   scheduler,
		ingestor:    ingest.NewIngestor(cfg, store),
		metrics:     metricsFactory,
		schema:      common.NewSchema(),
		tables:      make(map[string]*table.Table),
		batchCounts: make(map[string]uint64),
		nextTableID: 1,
	}
	engine.planner = planner.NewPlanner(engine.schema)
	return engine, nil
}

// Start brings up metrics and rebuilds the catalog from the store, loading
// every persisted batch of every persisted table.
func (e *Engine) Start() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.started {
		return errors.NewInternalError("engine already started")
	}
	if err := e.metrics.Start(); err != nil {
		return err
	}
	if err := e.createCounters(); err != nil {
		return err
	}
	if err := e.loadCatalog(); err != nil {
		return err
	}
	e.started = true
	return nil
}

// Stop drains in-flight queries, then releases the worker pool and closes
// the store.
func (e *Engine) Stop() error {
	e.lock.Lock()
	if !e.started || e.stopped {
		e.lock.Unlock()
		return nil
	}
	e.stopped = true
	e.lock.Unlock()

	e.inFlight.Wait()
	e.scheduler.Stop()
	if err := e.metrics.Stop(); err != nil {
		log.Errorf("failed to stop metrics %v", err)
	}
	return e.store.Close()
}

func (e *Engine) createCounters() error {
	var err error
	if e.queriesExecuted, err = e.metrics.CreateCounter("queries_executed_total", "Queries executed to completion"); err != nil {
		return err
	}
	if e.queriesFailed, err = e.metrics.CreateCounter("queries_failed_total", "Queries that returned an error"); err != nil {
		return err
	}
	if e.batchesPruned, err = e.metrics.CreateCounter("batches_pruned_total", "Batches excluded from scans by segment statistics"); err != nil {
		return err
	}
	if e.cacheHits, err = e.metrics.CreateCounter("segment_cache_hits_total", "Segment cache hits"); err != nil {
		return err
	}
	if e.cacheMisses, err = e.metrics.CreateCounter("segment_cache_misses_total", "Segment cache misses, each one a segment decode"); err != nil {
		return err
	}
	return nil
}

func (e *Engine) loadCatalog() error {
	metas, err := e.store.LoadTableMetas()
	if err != nil {
		return err
	}
	for _, st := range metas {
		tbl := table.NewTable(st.Info)
		for part := uint64(0); part < st.BatchCount; part++ {
			segs, err := e.loadBatchSegments(st, part)
			if err != nil {
				return err
			}
			if _, err := tbl.AddBatch(segs); err != nil {
				return err
			}
		}
		e.schema.PutTable(st.Info)
		e.tables[st.Info.Name] = tbl
		e.batchCounts[st.Info.Name] = st.BatchCount
		if st.Info.ID >= e.nextTableID {
			e.nextTableID = st.Info.ID + 1
		}
		log.Infof("loaded table %s: %d batches, %d rows", st.Info.Name, st.BatchCount, tbl.RowCount())
	}
	return nil
}

func (e *Engine) loadBatchSegments(st *storage.StoredTable, partition uint64) ([]*codec.Segment, error) {
	segs := make([]*codec.Segment, len(st.Info.ColumnNames))
	for i, colName := range st.Info.ColumnNames {
		id := table.SegmentID{TableName: st.Info.Name, Column: colName, Partition: partition}
		seg, err := e.store.LoadSegment(id)
		if err != nil {
			return nil, err
		}
		segs[i] = seg
	}
	return segs, nil
}

// CreateTable registers a new table and persists its catalog entry. The
// supplied info's ID is assigned by the engine.
func (e *Engine) CreateTable(info *common.TableInfo) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if _, exists := e.tables[info.Name]; exists {
		return errors.NewInvalidStatementError("table " + info.Name + " already exists")
	}
	info.ID = e.nextTableID
	e.nextTableID++
	if err := e.store.StoreTableMeta(&storage.StoredTable{Info: info}); err != nil {
		return err
	}
	e.schema.PutTable(info)
	e.tables[info.Name] = table.NewTable(info)
	e.batchCounts[info.Name] = 0
	return nil
}

// IngestBatch seals the typed columns as one new batch of the named table.
func (e *Engine) IngestBatch(tableName string, cols []*common.Column) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	tbl, ok := e.tables[tableName]
	if !ok {
		return errors.NewUnknownTableError(tableName)
	}
	if _, err := e.ingestor.IngestBatch(tbl, cols); err != nil {
		return err
	}
	e.batchCounts[tableName]++
	return e.store.StoreTableMeta(&storage.StoredTable{Info: tbl.Info, BatchCount: e.batchCounts[tableName]})
}

// ExecuteStatement parses and runs one statement. DDL statements return a
// completed empty result.
func (e *Engine) ExecuteStatement(ctx context.Context, sql string) (*sched.Result, error) {
	e.lock.RLock()
	if !e.started || e.stopped {
		e.lock.RUnlock()
		return nil, errors.NewInternalError("engine is not running")
	}
	e.inFlight.Add(1)
	e.lock.RUnlock()
	defer e.inFlight.Done()

	res, err := e.executeStatement(ctx, sql)
	if err != nil {
		e.queriesFailed.Inc()
		return nil, err
	}
	e.queriesExecuted.Inc()
	return res, nil
}

func (e *Engine) executeStatement(ctx context.Context, sql string) (*sched.Result, error) {
	ast, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	if ast.Create != nil {
		info, err := ast.Create.ToTableInfo()
		if err != nil {
			return nil, err
		}
		if err := e.CreateTable(info); err != nil {
			return nil, err
		}
		return &sched.Result{Complete: true, State: sched.StateDone}, nil
	}
	query, err := ast.Select.ToQueryDesc()
	if err != nil {
		return nil, err
	}
	plan, err := e.planner.Plan(query)
	if err != nil {
		return nil, err
	}
	e.lock.RLock()
	tbl := e.tables[query.TableName]
	e.lock.RUnlock()
	if tbl == nil {
		return nil, errors.NewUnknownTableError(query.TableName)
	}
	plan.Annotate(tbl.Batches())
	res, err := e.scheduler.Execute(ctx, plan, tbl)
	if err != nil {
		return nil, err
	}
	e.recordQueryMetrics(res)
	return res, nil
}

func (e *Engine) recordQueryMetrics(res *sched.Result) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.batchesPruned.Add(float64(res.Pruned))
	hits, misses := e.segCache.Hits(), e.segCache.Misses()
	e.cacheHits.Add(float64(hits - e.lastHits))
	e.cacheMisses.Add(float64(misses - e.lastMisses))
	e.lastHits, e.lastMisses = hits, misses
}

// Table returns the named table, for embedders that ingest columnar data
// directly rather than through SQL.
func (e *Engine) Table(name string) (*table.Table, bool) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	tbl, ok := e.tables[name]
	return tbl, ok
}

// CacheStats exposes the segment cache counters.
func (e *Engine) CacheStats() (hits, misses int64, usedBytes int64) {
	return e.segCache.Hits(), e.segCache.Misses(), e.segCache.UsedBytes()
}
