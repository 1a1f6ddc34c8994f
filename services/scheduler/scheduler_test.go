package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestScheduler_Add(t *testing.T) {
	s := New(zap.NewNop())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("import", "*/30 * * * *", noop))
	require.NoError(t, s.Add("export", "0 4 * * *", noop))
	assert.Equal(t, []string{"export", "import"}, s.Jobs())

	err := s.Add("import", "* * * * *", noop)
	assert.ErrorContains(t, err, "already scheduled")

	err = s.Add("bad", "every tuesday", noop)
	assert.ErrorContains(t, err, "adding bad schedule")
	assert.Len(t, s.Jobs(), 2)
}

func TestScheduler_Trigger(t *testing.T) {
	s := New(zap.NewNop())
	var calls int32
	require.NoError(t, s.Add("import", "0 0 1 1 *", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("region failed")
	}))

	err := s.Trigger(context.Background(), "import")
	assert.EqualError(t, err, "region failed")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	assert.ErrorContains(t, s.Trigger(context.Background(), "export"), "unknown job")
}

func TestScheduler_StartStop(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := New(zap.New(core))

	var calls int32
	var sawCancel int32
	require.NoError(t, s.Add("import", "@every 1s", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		atomic.AddInt32(&sawCancel, 1)
		return ctx.Err()
	}))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorContains(t, s.Start(context.Background()), "already running")

	// the first run blocks until Stop, so later ticks are skipped
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, 3*time.Second, 50*time.Millisecond)
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	s.Stop()
	s.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&sawCancel))
	assert.NotEmpty(t, logs.FilterMessage("scheduled run failed").All())
}
