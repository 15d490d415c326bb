package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wardmisp/Bingo/internal/game"
)

type fakeRoster struct {
	mu    sync.Mutex
	calls []string
	ticks []Tick
	err   error
}

func (f *fakeRoster) fetch(ctx context.Context, gameID string) ([]game.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, gameID)
	if f.err != nil {
		return nil, f.err
	}
	return []game.Player{{PlayerID: "p1", GameID: gameID}}, nil
}

func (f *fakeRoster) sink(ctx context.Context, tick Tick) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, tick)
}

func (f *fakeRoster) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRoster) callsSince(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls[n:]...)
}

func TestPoller_FetchesRepeatedly(t *testing.T) {
	f := &fakeRoster{}
	p := New(f.fetch, f.sink, WithInterval(10*time.Millisecond))
	defer p.Stop()

	p.Start(context.Background(), "42")

	require.Eventually(t, func() bool { return f.callCount() >= 3 }, time.Second, 5*time.Millisecond)
	gameID, ok := p.active()
	assert.True(t, ok)
	assert.Equal(t, "42", gameID)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "42", f.ticks[0].GameID)
	assert.Len(t, f.ticks[0].Players, 1)
}

func TestPoller_SwitchingGameStopsOldLoop(t *testing.T) {
	f := &fakeRoster{}
	p := New(f.fetch, f.sink, WithInterval(5*time.Millisecond))
	defer p.Stop()

	p.Start(context.Background(), "42")
	require.Eventually(t, func() bool { return f.callCount() >= 2 }, time.Second, time.Millisecond)

	p.Start(context.Background(), "7")
	mark := f.callCount()

	time.Sleep(50 * time.Millisecond)
	after := f.callsSince(mark)
	require.NotEmpty(t, after)
	for _, id := range after {
		assert.Equal(t, "7", id, "no fetch for the old game may happen after the switch")
	}
}

func TestPoller_StopHaltsFetching(t *testing.T) {
	f := &fakeRoster{}
	p := New(f.fetch, f.sink, WithInterval(5*time.Millisecond))

	p.Start(context.Background(), "42")
	require.Eventually(t, func() bool { return f.callCount() >= 1 }, time.Second, time.Millisecond)

	p.Stop()
	mark := f.callCount()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, mark, f.callCount())
	_, ok := p.active()
	assert.False(t, ok)

	p.Stop() // idempotent
}

func TestPoller_ErrorPolicies(t *testing.T) {
	boom := errors.New("boom")

	t.Run("continue keeps polling and reports each error", func(t *testing.T) {
		f := &fakeRoster{err: boom}
		p := New(f.fetch, f.sink, WithInterval(5*time.Millisecond), WithErrorPolicy(ContinueOnError))
		defer p.Stop()

		p.Start(context.Background(), "42")
		require.Eventually(t, func() bool { return f.callCount() >= 3 }, time.Second, time.Millisecond)

		f.mu.Lock()
		defer f.mu.Unlock()
		assert.ErrorIs(t, f.ticks[0].Err, boom)
	})

	t.Run("stop reports the error and halts", func(t *testing.T) {
		f := &fakeRoster{err: boom}
		p := New(f.fetch, f.sink, WithInterval(5*time.Millisecond), WithErrorPolicy(StopOnError))
		defer p.Stop()

		p.Start(context.Background(), "42")
		require.Eventually(t, func() bool {
			_, ok := p.active()
			return !ok
		}, time.Second, time.Millisecond)

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 1, f.callCount())

		f.mu.Lock()
		defer f.mu.Unlock()
		require.Len(t, f.ticks, 1)
		assert.ErrorIs(t, f.ticks[0].Err, boom)
	})
}

func TestPoller_ParentCancelEndsLoop(t *testing.T) {
	f := &fakeRoster{}
	p := New(f.fetch, f.sink, WithInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	p.Start(ctx, "42")
	require.Eventually(t, func() bool { return f.callCount() >= 1 }, time.Second, time.Millisecond)
	cancel()

	require.Eventually(t, func() bool {
		_, ok := p.active()
		return !ok
	}, time.Second, time.Millisecond)
	p.Stop()
}

func TestParseErrorPolicy(t *testing.T) {
	got, err := ParseErrorPolicy("stop")
	require.NoError(t, err)
	assert.Equal(t, StopOnError, got)

	_, err = ParseErrorPolicy("retry-forever")
	assert.Error(t, err)
}
