package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

func TestJobTask_RunOnceWrapsError(t *testing.T) {
	job := NewJobTask("invoice-status", time.Minute, func(context.Context) error {
		return errors.New("gateway 502")
	}, nil)

	err := job.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, "invoice-status: gateway 502", err.Error())
	assert.Equal(t, "invoice-status", job.Name())
}

func TestJobTask_StartRecurringNotReady(t *testing.T) {
	var runs atomic.Int32
	job := NewJobTask("municipality-retries", time.Minute,
		func(context.Context) error { runs.Add(1); return nil },
		func(context.Context) error { return errors.New("database is closed") },
	)

	err := job.StartRecurring(context.Background())
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.Zero(t, runs.Load())
}

func TestJobTask_StartRecurringRunsOnInterval(t *testing.T) {
	var runs atomic.Int32
	job := NewJobTask("tick", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return errors.New("failures do not stop the schedule")
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.StartRecurring(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("job did not stop")
	}
}
