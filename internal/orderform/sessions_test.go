package orderform

import (
	"context"
	"testing"
	"time"

	"github.com/orzi-eg/storefront/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(ttl time.Duration, s *fakeStore) (*Sessions, *time.Time) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions := NewSessions(func(string) *Controller {
		return newTestController(s, time.Hour)
	}, ttl, quietLogger())
	sessions.now = func() time.Time { return now }
	return sessions, &now
}

func TestGetOrCreate(t *testing.T) {
	sessions, _ := newTestSessions(time.Hour, &fakeStore{})

	id, c := sessions.GetOrCreate("")
	require.NotEmpty(t, id)
	require.NotNil(t, c)

	sameID, same := sessions.GetOrCreate(id)
	assert.Equal(t, id, sameID)
	assert.Same(t, c, same)

	otherID, other := sessions.GetOrCreate("forged-id")
	assert.NotEqual(t, "forged-id", otherID)
	assert.NotSame(t, c, other)
	assert.Equal(t, 2, sessions.Len())
}

func TestSessionsAreIsolated(t *testing.T) {
	sessions, _ := newTestSessions(time.Hour, &fakeStore{})
	_, a := sessions.GetOrCreate("")
	_, b := sessions.GetOrCreate("")

	require.NoError(t, a.SetField(FieldName, "a"))
	require.NoError(t, a.SelectVariant(catalog.VariantCurved))

	assert.Empty(t, b.View().Draft.Name)
	assert.Equal(t, catalog.VariantNone, b.View().Variant)
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	sessions, now := newTestSessions(time.Minute, &fakeStore{})
	idleID, _ := sessions.GetOrCreate("")
	activeID, _ := sessions.GetOrCreate("")

	*now = now.Add(50 * time.Second)
	_, ok := sessions.Get(activeID)
	require.True(t, ok)

	*now = now.Add(20 * time.Second)
	assert.Equal(t, 1, sessions.Sweep())

	_, ok = sessions.Get(idleID)
	assert.False(t, ok)
	_, ok = sessions.Get(activeID)
	assert.True(t, ok)
}

func TestSweepKeepsBusySessions(t *testing.T) {
	s := &fakeStore{release: make(chan struct{})}
	sessions, now := newTestSessions(time.Minute, s)
	id, c := sessions.GetOrCreate("")
	fillDraft(t, c)
	require.NoError(t, c.SelectVariant(catalog.VariantStraight))

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background()) }()
	require.Eventually(t, c.Busy, time.Second, time.Millisecond)

	*now = now.Add(time.Hour)
	assert.Equal(t, 0, sessions.Sweep())

	close(s.release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, sessions.Sweep())
	_, ok := sessions.Get(id)
	assert.False(t, ok)
}

func TestRunStopsWithContext(t *testing.T) {
	sessions, _ := newTestSessions(time.Minute, &fakeStore{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sessions.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
