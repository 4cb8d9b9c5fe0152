package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/metrics"
)

// ScheduledTask is a background job the orchestrator can start on its own
// schedule or trigger once.
type ScheduledTask interface {
	Name() string
	// StartRecurring blocks until ctx is canceled or the task cannot start.
	StartRecurring(ctx context.Context) error
	RunOnce(ctx context.Context) error
}

// TaskResult is the outcome of one task in a one-shot batch.
type TaskResult struct {
	Name string
	Err  error
}

// RunReport collects the per-task outcomes of RunScheduledTasksOnce.
type RunReport struct {
	Results []TaskResult
}

// Failed returns the number of tasks that returned an error.
func (r RunReport) Failed() int {
	var n int
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Orchestrator starts and stops the background tasks. Tasks are independent:
// one task failing to start does not affect the others.
type Orchestrator struct {
	tasks   []ScheduledTask
	metrics *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewOrchestrator creates an Orchestrator for tasks. m may be nil.
func NewOrchestrator(m *metrics.Metrics, tasks ...ScheduledTask) *Orchestrator {
	return &Orchestrator{
		tasks:   tasks,
		metrics: m,
	}
}

// StartAll launches every task's recurring schedule in its own goroutine and
// returns immediately. Calling StartAll again before Stop is a no-op.
func (o *Orchestrator) StartAll(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	// A plain Group: one task's start failure must not cancel its siblings.
	o.group = &errgroup.Group{}

	for _, task := range o.tasks {
		o.group.Go(func() error {
			slog.Info("starting background task", "task", task.Name())

			err := task.StartRecurring(runCtx)
			if err != nil {
				slog.Error("background task failed to start",
					"task", task.Name(),
					"retryable", errors.Is(err, model.ErrStoreUnavailable),
					"error", err,
				)
			}
			return err
		})
	}
}

// Stop cancels every running task and waits for them to return. It returns
// the first start failure, if any.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	cancel, group := o.cancel, o.group
	o.cancel, o.group = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	err := group.Wait()
	slog.Info("background tasks stopped")
	return err
}

// RunScheduledTasksOnce runs each task's one-shot form in order. Failures are
// collected; the batch always runs to the end.
func (o *Orchestrator) RunScheduledTasksOnce(ctx context.Context) RunReport {
	report := RunReport{Results: make([]TaskResult, 0, len(o.tasks))}

	for _, task := range o.tasks {
		err := task.RunOnce(ctx)
		if err != nil {
			slog.Error("scheduled task run failed", "task", task.Name(), "error", err)
		}
		o.metrics.IncrementTaskRun(task.Name(), err)
		report.Results = append(report.Results, TaskResult{Name: task.Name(), Err: err})
	}

	return report
}
