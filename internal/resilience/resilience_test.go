package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wzxcff/APIScraperTG/internal/session"
)

// recordingTimer 记录等待时长而不真正休眠
type recordingTimer struct {
	waits *[]time.Duration
}

func (t recordingTimer) After(d time.Duration) <-chan time.Time {
	*t.waits = append(*t.waits, d)
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func newTestCaller(maxAttempts int, waits *[]time.Duration) *Caller {
	c := NewCaller(maxAttempts)
	c.Backoff = time.Millisecond
	c.timer = recordingTimer{waits: waits}
	return c
}

func TestCall_DefaultRetriesImmediately(t *testing.T) {
	var waits []time.Duration
	c := NewCaller(2)
	c.timer = recordingTimer{waits: &waits}

	calls := 0
	_, err := Call(context.Background(), c, "get_entity", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("timeout")
	})
	assert.ErrorIs(t, err, ErrCallExhausted)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{0, 0}, waits)
}

func TestCall_Success(t *testing.T) {
	var waits []time.Duration
	c := newTestCaller(3, &waits)

	got, err := Call(context.Background(), c, "resolve", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Empty(t, waits)
}

func TestCall_RateLimitNeverExhaustsBudget(t *testing.T) {
	var waits []time.Duration
	c := newTestCaller(3, &waits)

	calls := 0
	got, err := Call(context.Background(), c, "list_messages", func(ctx context.Context) (string, error) {
		calls++
		if calls <= 25 {
			return "", &session.RateLimitError{Wait: 2 * time.Second}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 26, calls)
	assert.Len(t, waits, 25)
	assert.Equal(t, 2*time.Second, waits[0])
}

func TestCall_AttemptBudget(t *testing.T) {
	var waits []time.Duration
	c := newTestCaller(3, &waits)

	calls := 0
	boom := errors.New("network blip")
	_, err := Call(context.Background(), c, "download_media", func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}, waits)
	assert.ErrorIs(t, err, ErrCallExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "download_media")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "download_media", exhausted.Label)
}

func TestCall_RateLimitDoesNotConsumeAttempts(t *testing.T) {
	var waits []time.Duration
	c := newTestCaller(2, &waits)

	calls := 0
	_, err := Call(context.Background(), c, "get_entity", func(ctx context.Context) (int, error) {
		calls++
		if calls%2 == 1 {
			return 0, &session.RateLimitError{Wait: time.Second}
		}
		return 0, errors.New("generic")
	})
	assert.ErrorIs(t, err, ErrCallExhausted)
	// 3 次普通失败 + 3 次限流
	assert.Equal(t, 6, calls)
	assert.Len(t, waits, 5)
	assert.Equal(t, time.Second, waits[0])
	assert.Equal(t, time.Millisecond, waits[1])
}

func TestCall_RecoversBeforeBudget(t *testing.T) {
	var waits []time.Duration
	c := newTestCaller(3, &waits)

	calls := 0
	got, err := Call(context.Background(), c, "get_permissions", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("temporary")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestCall_ContextCancelledDuringRateLimit(t *testing.T) {
	var waits []time.Duration
	c := newTestCaller(3, &waits)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Call(ctx, c, "list_replies", func(ctx context.Context) (int, error) {
		return 0, &session.RateLimitError{Wait: time.Minute}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrCallExhausted)
}

func TestDo(t *testing.T) {
	c := NewCaller(0)
	assert.Equal(t, DefaultMaxAttempts, c.MaxAttempts)

	calls := 0
	err := c.Do(context.Background(), "connect", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCall_PermanentErrorNotRetried(t *testing.T) {
	var waits []time.Duration
	c := newTestCaller(3, &waits)

	calls := 0
	_, err := Call(context.Background(), c, "get_permissions", func(ctx context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("get chat member: %w", session.ErrNotParticipant)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, session.ErrNotParticipant)
	assert.NotErrorIs(t, err, ErrCallExhausted)
}
