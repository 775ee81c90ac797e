package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(maxFailures int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := New(Config{
		Name:        "orders",
		MaxFailures: maxFailures,
		Timeout:     time.Second,
		MaxRequests: 1,
	}, quietLogger())
	cb.now = clock.Now
	return cb, clock
}

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestOpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(2)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not run the call")
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(2)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(2 * time.Second)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State(), "failed probe reopens the breaker")
}

func TestCancelledContextIsNotAFailure(t *testing.T) {
	cb, _ := newTestBreaker(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, cb.Execute(ctx, succeed), context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, int64(0), cb.Metrics()["total_requests"])
}

func TestCancellationDuringCallIsNotAFailure(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()
	cancelled := func(context.Context) error { return errors.Join(errBoom, context.Canceled) }

	assert.ErrorIs(t, cb.Execute(ctx, cancelled), context.Canceled)
	assert.ErrorIs(t, cb.Execute(ctx, cancelled), context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, int64(0), cb.Metrics()["total_failures"])

	// A cancelled probe frees the half-open slot for the next caller.
	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())
	clock.Advance(2 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, cancelled), context.Canceled)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestMetricsAndReset(t *testing.T) {
	cb, _ := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, succeed)

	metrics := cb.Metrics()
	assert.Equal(t, int64(2), metrics["total_requests"])
	assert.Equal(t, int64(1), metrics["total_failures"])
	assert.Equal(t, int64(1), metrics["total_successes"])
	assert.Equal(t, int64(1), metrics["total_rejected"])
	assert.Equal(t, "open", metrics["state"])

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(ctx, succeed))
}

func TestConfigDefaults(t *testing.T) {
	cb := New(Config{}, quietLogger())
	assert.Equal(t, "unnamed", cb.name)
	assert.Equal(t, 5, cb.maxFailures)
	assert.Equal(t, 30*time.Second, cb.timeout)
	assert.Equal(t, 1, cb.maxRequests)
}

func TestConcurrentExecuteKeepsCountsConsistent(t *testing.T) {
	cb, _ := newTestBreaker(1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Execute(ctx, fail)
				return
			}
			_ = cb.Execute(ctx, succeed)
		}(i)
	}
	wg.Wait()

	metrics := cb.Metrics()
	assert.Equal(t, metrics["total_requests"].(int64),
		metrics["total_failures"].(int64)+metrics["total_successes"].(int64))
}
