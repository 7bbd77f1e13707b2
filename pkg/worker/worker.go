// Package worker runs the tick-driven scheduler and the bounded pool of
// process goroutines that execute claimed work items through their adapter
// chains.
package worker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/listenarr/listenarr/pkg/chain"
	"github.com/listenarr/listenarr/pkg/config"
	"github.com/listenarr/listenarr/pkg/errcodes"
	"github.com/listenarr/listenarr/pkg/events"
	"github.com/listenarr/listenarr/pkg/library"
	"github.com/listenarr/listenarr/pkg/metadata"
	"github.com/listenarr/listenarr/pkg/models"
	"github.com/listenarr/listenarr/pkg/retry"
	"github.com/listenarr/listenarr/pkg/runs"
	"github.com/listenarr/listenarr/pkg/scanner"
	"github.com/listenarr/listenarr/pkg/sources"
	"github.com/listenarr/listenarr/pkg/targets"
	"github.com/listenarr/listenarr/pkg/workitems"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/uptrace/bun"
)

var processID = randStringBytes(8)

// triggerFunc produces work on a schedule and reports how many items it
// touched and how many targets it could not scan.
type triggerFunc func(ctx context.Context) (processed, failed int, err error)

type trigger struct {
	name     string
	schedule cron.Schedule
	fn       triggerFunc

	// next is the earliest tick that should fire this trigger.
	next time.Time
}

type Worker struct {
	config *config.Config
	log    logger.Logger

	workItemService *workitems.Service
	targetService   *targets.Service
	libraryService  *library.Service
	runService      *runs.Service
	scanService     *scanner.Service

	chains   *sources.ChainSet
	executor *chain.Executor
	retrier  *retry.Manager
	emitter  *events.Emitter

	triggers  []*trigger
	triggerWG sync.WaitGroup

	queue          chan *models.WorkItem
	shutdown       chan struct{}
	doneFetching   chan struct{}
	doneProcessing chan struct{}
}

func New(cfg *config.Config, db *bun.DB, chains *sources.ChainSet, emitter *events.Emitter) (*Worker, error) {
	workItemService := workitems.NewService(db)
	targetService := targets.NewService(db)
	libraryService := library.NewService(db)
	runService := runs.NewService(db)
	scanService := scanner.NewService(cfg, workItemService, libraryService, targetService, chains)

	engine := metadata.NewEngine(cfg.ConfidenceEpsilon)
	executor := chain.NewExecutor(engine, cfg.ConfidenceFloor, cfg.CompletenessThreshold)
	retrier := retry.NewManager(cfg.MaxRetries, cfg.BackoffBaseDays, cfg.BackoffGrowthFactor)

	w := &Worker{
		config: cfg,
		log:    logger.New(),

		workItemService: workItemService,
		targetService:   targetService,
		libraryService:  libraryService,
		runService:      runService,
		scanService:     scanService,

		chains:   chains,
		executor: executor,
		retrier:  retrier,
		emitter:  emitter,

		queue:          make(chan *models.WorkItem, cfg.WorkerProcesses),
		shutdown:       make(chan struct{}),
		doneFetching:   make(chan struct{}),
		doneProcessing: make(chan struct{}, cfg.WorkerProcesses),
	}

	fns := map[string]triggerFunc{
		"discovery":         w.runDiscovery,
		"top_n_scan":        w.runTopNScan,
		"author_scan":       w.runAuthorScan,
		"series_scan":       w.runSeriesScan,
		"full_refresh":      w.runFullRefresh,
		"partial_refresh":   w.runPartialRefresh,
		"corrections_sweep": w.runCorrectionsSweep,
	}

	now := time.Now()
	for name, expr := range cfg.Triggers {
		fn, ok := fns[name]
		if !ok {
			return nil, errors.Errorf("unknown trigger: %s", name)
		}
		schedule, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, errors.Wrapf(err, "parse trigger schedule: %s", name)
		}
		w.triggers = append(w.triggers, &trigger{
			name:     name,
			schedule: schedule,
			fn:       fn,
			next:     schedule.Next(now),
		})
	}

	return w, nil
}

func (w *Worker) Start() {
	go w.fetchWork()
	for i := 0; i < w.config.WorkerProcesses; i++ {
		go w.processWork()
	}
}

func (w *Worker) fetchWork() {
	timer := time.NewTimer(w.config.TickInterval)

	for {
		select {
		case <-w.shutdown:
			// We're shutting down, so stop adding more items to the queue.
			w.doneFetching <- struct{}{}
			return
		case <-timer.C:
			w.Tick(time.Now())
			timer.Reset(w.config.TickInterval)
		}
	}
}

// Tick fires due triggers and dispatches due work items to the pool. A
// store error aborts the tick; the next one retries from a clean read.
// Dispatch never blocks: an item that doesn't fit in the queue is
// unclaimed and picked up by a later tick.
func (w *Worker) Tick(now time.Time) {
	ctx := w.log.WithContext(context.Background())

	for _, t := range w.triggers {
		if now.Before(t.next) {
			continue
		}
		t.next = t.schedule.Next(now)
		w.triggerWG.Add(1)
		go func(t *trigger) {
			defer w.triggerWG.Done()
			w.runTrigger(t)
		}(t)
	}

	items, err := w.workItemService.ListDue(ctx, now, w.config.WorkerProcesses)
	if err != nil {
		w.log.Err(err).Error("list due work items error")
		return
	}

	for _, item := range items {
		err := w.workItemService.Claim(ctx, item, processID)
		if err != nil {
			if errcodes.HasCode(err, errcodes.CodeAlreadyClaimed) {
				continue
			}
			w.log.Err(err).Error("claim work item error")
			return
		}

		select {
		case w.queue <- item:
		default:
			if err := w.workItemService.Unclaim(ctx, item); err != nil {
				w.log.Err(err).Error("unclaim work item error")
			}
		}
	}
}

func (w *Worker) runTrigger(t *trigger) {
	id, err := uuid.NewRandom()
	if err != nil {
		w.log.Err(err).Error("new uuid error")
		return
	}
	log := w.log.ID(id.String()).Root(logger.Data{"trigger": t.name, "process_id": processID})
	ctx := log.WithContext(context.Background())

	run, err := w.runService.StartRun(ctx, t.name)
	if err != nil {
		log.Err(err).Error("start run error")
		return
	}

	processed, failed, err := t.fn(ctx)
	if err != nil {
		log.Err(err).Error("trigger error")
		failed++
	}

	if ferr := w.runService.FinishRun(ctx, run, processed+failed, processed, failed, err); ferr != nil {
		log.Err(ferr).Error("finish run error")
	}
}

func (w *Worker) processWork() {
	for {
		select {
		case <-w.shutdown:
			w.doneProcessing <- struct{}{}
			return
		case item := <-w.queue:
			id, err := uuid.NewRandom()
			if err != nil {
				w.log.Err(err).Error("new uuid error")
				continue
			}
			log := w.log.ID(id.String()).Root(logger.Data{
				"work_item_id": item.ID,
				"kind":         item.Kind,
				"process_id":   processID,
			})
			ctx := log.WithContext(context.Background())

			if err := w.Process(ctx, item); err != nil {
				log.Err(err).Error("process error")
			}
		}
	}
}

// Process executes one claimed work item through its adapter chain,
// persists the resulting state transition, and emits any downstream
// events. Adapter failures are folded into the outcome; only store errors
// come back as errors.
func (w *Worker) Process(ctx context.Context, item *models.WorkItem) error {
	log := logger.FromContext(ctx)

	if err := item.UnmarshalMerged(); err != nil {
		return err
	}

	outcome := w.executor.Execute(ctx, item, w.chains.For(item.Kind))
	updated := w.retrier.OnOutcome(*item, outcome, time.Now())

	if err := updated.MarshalMerged(); err != nil {
		return err
	}
	if err := w.workItemService.SaveAttempt(ctx, &updated); err != nil {
		return err
	}

	if len(outcome.Corrections) > 0 {
		corrections := make([]*models.Correction, len(outcome.Corrections))
		for i := range outcome.Corrections {
			corrections[i] = &outcome.Corrections[i]
		}
		if err := w.workItemService.AppendCorrections(ctx, corrections); err != nil {
			return err
		}
	}

	switch updated.State {
	case models.WorkItemStateAbandoned:
		err := w.workItemService.RecordFailure(
			ctx,
			updated.TargetKey,
			outcome.ErrorKind,
			pointerutil.String(outcome.ErrorDetail),
			outcome.Status == chain.OutcomePermanent,
		)
		if err != nil {
			return err
		}
		log.Info("work item abandoned", logger.Data{
			"error_kind":  outcome.ErrorKind,
			"retry_count": updated.RetryCount,
		})

	case models.WorkItemStateSucceeded:
		eventType := events.MetadataUpdated
		if updated.Kind == models.WorkItemKindDownload {
			eventType = events.BookAcquired
		}
		w.emitter.Emit(events.Event{
			Type:       eventType,
			WorkItemID: updated.ID,
			Merged:     updated.MergedParsed,
		})
		log.Info("work item succeeded", logger.Data{"completeness": updated.MergedParsed.Completeness()})

	case models.WorkItemStateFailedRetryable:
		log.Info("work item scheduled for retry", logger.Data{
			"retry_count":      updated.RetryCount,
			"next_eligible_at": updated.NextEligibleAt,
		})
	}

	if updated.BatchID != nil && updated.Terminal() {
		remaining, err := w.workItemService.CountActiveInBatch(ctx, *updated.BatchID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			w.emitter.Emit(events.Event{
				Type:       events.BatchComplete,
				WorkItemID: updated.ID,
				BatchID:    *updated.BatchID,
				Merged:     updated.MergedParsed,
			})
		}
	}

	return nil
}

// Shutdown drains the pool and waits for in-flight triggers, then releases
// any items this process still has claimed so another process (or a
// restart) can pick them up.
func (w *Worker) Shutdown() {
	close(w.shutdown)

	<-w.doneFetching
	for i := 0; i < w.config.WorkerProcesses; i++ {
		<-w.doneProcessing
	}
	// Triggers write runs and work items; they must land before the caller
	// tears down the database.
	w.triggerWG.Wait()

	ctx := w.log.WithContext(context.Background())
	released, err := w.workItemService.ReleaseByProcess(ctx, processID)
	if err != nil {
		w.log.Err(err).Error("release claimed work items error")
		return
	}
	if released > 0 {
		w.log.Info("released claimed work items", logger.Data{"count": released})
	}
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
