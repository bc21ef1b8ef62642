package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
	"github.com/custodia-labs/ragline/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// historyRetention is the number of results kept per task.
const historyRetention = 100

// job is a built-in scheduled task.
type job struct {
	id       string
	name     string
	schedule string
	run      func(ctx context.Context) (int, error)
}

// Scheduler runs queue processing and temp-file cleanup on cron schedules.
type Scheduler struct {
	store driven.SchedulerStore
	jobs  []job

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	running bool
	stopCh  chan struct{}
	now     func() time.Time
}

// NewScheduler creates a scheduler. A job whose schedule is empty is disabled.
func NewScheduler(
	settings domain.SchedulerSettings,
	store driven.SchedulerStore,
	ingestion driving.IngestionService,
	loader *DocumentLoader,
) *Scheduler {
	batch := settings.QueueBatch
	if batch <= 0 {
		batch = domain.DefaultSettings().Scheduler.QueueBatch
	}
	s := &Scheduler{store: store, now: time.Now}
	if ingestion != nil {
		s.jobs = append(s.jobs, job{
			id:       domain.TaskIDProcessQueue,
			name:     "Process Queue",
			schedule: settings.QueueSchedule,
			run: func(ctx context.Context) (int, error) {
				result, err := ingestion.ProcessQueue(ctx, batch)
				if err != nil {
					return 0, err
				}
				return result.Processed, nil
			},
		})
	}
	if loader != nil {
		s.jobs = append(s.jobs, job{
			id:       domain.TaskIDCleanupTempFiles,
			name:     "Cleanup Temp Files",
			schedule: settings.CleanupSchedule,
			run: func(context.Context) (int, error) {
				return loader.CleanupTempFiles(TempFileMaxAge)
			},
		})
	}
	return s
}

// Start registers every enabled job and runs them until ctx is cancelled or
// Stop is called. Jobs still running are allowed to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	c := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)))
	entries := make(map[string]cron.EntryID, len(s.jobs))
	for _, j := range s.jobs {
		if j.schedule == "" {
			continue
		}
		id := j.id
		entryID, err := c.AddFunc(j.schedule, func() {
			if err := s.execute(ctx, id); err != nil {
				logger.Error("Task %s failed: %v", id, err)
			}
		})
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("schedule %q for %s: %v: %w", j.schedule, j.id, err, domain.ErrInvalidInput)
		}
		entries[id] = entryID
	}
	s.cron = c
	s.entries = entries
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	c.Start()
	for _, j := range s.jobs {
		if _, ok := entries[j.id]; ok {
			s.ensureTask(ctx, j)
		}
	}
	logger.Info("Scheduler started with %d tasks", len(entries))

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-stopCh:
	}

	<-c.Stop().Done()
	s.mu.Lock()
	s.running = false
	s.cron = nil
	s.mu.Unlock()
	logger.Info("Scheduler stopped")
	return err
}

// Stop ends a running Start call.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	return nil
}

// RunNow executes a task immediately and records its result.
func (s *Scheduler) RunNow(ctx context.Context, taskID string) error {
	return s.execute(ctx, taskID)
}

// ensureTask creates or refreshes a task's stored state.
func (s *Scheduler) ensureTask(ctx context.Context, j job) {
	task, err := s.store.GetTask(ctx, j.id)
	if err != nil {
		logger.Warn("Loading task %s: %v", j.id, err)
		return
	}
	if task == nil {
		task = &domain.ScheduledTask{ID: j.id, Name: j.name}
	}
	task.Schedule = j.schedule
	task.Enabled = true
	task.NextRun = s.nextRun(j.id)
	if err := s.store.SaveTask(ctx, task); err != nil {
		logger.Warn("Saving task %s: %v", j.id, err)
	}
}

func (s *Scheduler) nextRun(taskID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	id, ok := s.entries[taskID]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Scheduler) lookup(taskID string) (job, bool) {
	for _, j := range s.jobs {
		if j.id == taskID {
			return j, true
		}
	}
	return job{}, false
}

// execute runs one task and records the outcome.
func (s *Scheduler) execute(ctx context.Context, taskID string) error {
	j, ok := s.lookup(taskID)
	if !ok {
		return fmt.Errorf("task %q: %w", taskID, domain.ErrNotFound)
	}

	result := &domain.TaskResult{TaskID: taskID, StartedAt: s.now()}
	logger.Debug("Running task %s", taskID)
	items, runErr := j.run(ctx)
	result.EndedAt = s.now()
	result.ItemsProcessed = items
	result.Success = runErr == nil
	if runErr != nil {
		result.Error = runErr.Error()
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil || task == nil {
		task = &domain.ScheduledTask{ID: j.id, Name: j.name, Schedule: j.schedule, Enabled: j.schedule != ""}
	}
	task.LastRun = result.StartedAt
	task.NextRun = s.nextRun(taskID)
	if runErr != nil {
		task.LastError = runErr.Error()
	} else {
		task.LastError = ""
		task.LastSuccess = result.EndedAt
	}
	if err := s.store.SaveTask(ctx, task); err != nil {
		logger.Warn("Saving task %s: %v", taskID, err)
	}
	if err := s.store.RecordResult(ctx, result); err != nil {
		logger.Warn("Recording result for %s: %v", taskID, err)
	}
	if err := s.store.PruneHistory(ctx, historyRetention); err != nil {
		logger.Warn("Pruning task history: %v", err)
	}

	if runErr == nil {
		logger.Info("Task %s processed %d items in %s", taskID, items, result.EndedAt.Sub(result.StartedAt).Round(time.Millisecond))
	}
	return runErr
}
