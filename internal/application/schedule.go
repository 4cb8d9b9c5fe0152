package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

// JobTask runs a one-shot job on a fixed interval. Runs never overlap: the
// next tick is only consumed after the previous run returns.
type JobTask struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
	ready    func(ctx context.Context) error
}

// NewJobTask creates a JobTask. ready is checked once before the first run;
// a nil ready skips the check.
func NewJobTask(name string, interval time.Duration, run, ready func(ctx context.Context) error) *JobTask {
	return &JobTask{
		name:     name,
		interval: interval,
		run:      run,
		ready:    ready,
	}
}

// Name identifies the task to the orchestrator.
func (j *JobTask) Name() string {
	return j.name
}

// RunOnce runs the job a single time.
func (j *JobTask) RunOnce(ctx context.Context) error {
	if err := j.run(ctx); err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	return nil
}

// StartRecurring runs the job immediately, then on every interval tick until
// ctx is canceled.
func (j *JobTask) StartRecurring(ctx context.Context) error {
	if j.ready != nil {
		if err := j.ready(ctx); err != nil {
			return fmt.Errorf("start %s: %w: %v", j.name, model.ErrStoreUnavailable, err)
		}
	}

	if err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
		slog.Error("initial job run failed", "task", j.name, "error", err)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job stopped", "task", j.name)
			return nil
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Error("job run failed", "task", j.name, "error", err)
			}
		}
	}
}
