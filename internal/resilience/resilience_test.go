package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Base: time.Millisecond, Ceiling: 2 * time.Millisecond, Factor: 2}
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	t.Parallel()

	calls := 0
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	got, err := RetryVal(context.Background(), p, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("503"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_StopsOnPermanent(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func(_ context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), fastPolicy(2), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("429"), 429)
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastPolicy(5), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("503"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyDelay_Ceiling(t *testing.T) {
	t.Parallel()

	p := Policy{Base: 100 * time.Millisecond, Ceiling: 300 * time.Millisecond, Factor: 2}
	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 300*time.Millisecond, p.Delay(5))

	j := Policy{Base: 100 * time.Millisecond, Ceiling: time.Second, Factor: 2, Jitter: 0.5}
	for range 20 {
		d := j.Delay(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient wrapper", NewTransientError(errors.New("x"), 502), true},
		{"wrapped transient", fmt.Errorf("call: %w", NewTransientError(errors.New("x"), 429)), true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"conn reset", syscall.ECONNRESET, true},
		{"message pattern", errors.New("read tcp: i/o timeout"), true},
		{"plain", errors.New("invalid api key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	base := errors.New("status")
	assert.True(t, IsTransient(ClassifyStatus(base, 503)))
	assert.False(t, IsTransient(ClassifyStatus(base, 401)))
	assert.NoError(t, ClassifyStatus(nil, 503))
	assert.True(t, IsTransientHTTPStatus(529))
	assert.False(t, IsTransientHTTPStatus(404))
}

func transientFail(_ context.Context) (int, error) {
	return 0, NewTransientError(errors.New("down"), 503)
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var changes []string
	b := NewBreaker("firecrawl", BreakerConfig{
		Threshold: 2,
		Cooldown:  time.Minute,
		OnChange: func(name string, from, to BreakerState) {
			changes = append(changes, fmt.Sprintf("%s:%s->%s", name, from, to))
		},
	})
	b.now = func() time.Time { return now }

	for range 2 {
		_, _ = Guard(context.Background(), b, transientFail)
	}
	assert.Equal(t, StateOpen, b.State())

	_, err := Guard(context.Background(), b, func(_ context.Context) (int, error) {
		t.Error("should not be called while open")
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())

	v, err := Guard(context.Background(), b, func(_ context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{
		"firecrawl:closed->open",
		"firecrawl:open->half-open",
		"firecrawl:half-open->closed",
	}, changes)
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	b := NewBreaker("jina", BreakerConfig{Threshold: 1})
	_, err := Guard(context.Background(), b, func(_ context.Context) (int, error) {
		return 0, errors.New("404 not found")
	})
	require.Error(t, err)
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Failures())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := NewBreaker("direct", BreakerConfig{Threshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }

	_, _ = Guard(context.Background(), b, transientFail)
	now = now.Add(2 * time.Second)
	_, _ = Guard(context.Background(), b, transientFail)
	assert.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakers(t *testing.T) {
	t.Parallel()

	bs := NewBreakers(DefaultBreakerConfig())
	a := bs.For("firecrawl")
	assert.Same(t, a, bs.For("firecrawl"))
	bs.For("jina")

	assert.Equal(t, map[string]string{"firecrawl": "closed", "jina": "closed"}, bs.States())
}

func TestPolicyFrom(t *testing.T) {
	t.Parallel()

	p := PolicyFrom(2, 100, 1000, 3, 0)
	assert.Equal(t, 2, p.Attempts)
	assert.Equal(t, 100*time.Millisecond, p.Base)
	assert.Equal(t, time.Second, p.Ceiling)
	assert.InDelta(t, 3.0, p.Factor, 1e-9)
	assert.Zero(t, p.Jitter)

	d := PolicyFrom(0, 0, 0, 0, -1)
	assert.Equal(t, DefaultPolicy().Attempts, d.Attempts)
	assert.InDelta(t, DefaultPolicy().Jitter, d.Jitter, 1e-9)

	c := BreakerFrom(3, 10)
	assert.Equal(t, 3, c.Threshold)
	assert.Equal(t, 10*time.Second, c.Cooldown)
}
