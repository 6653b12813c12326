package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("busy"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	perm := errors.New("bad request")
	err := Do(context.Background(), fastPolicy(5), func(_ context.Context) error {
		calls++
		return perm
	})
	assert.ErrorIs(t, err, perm)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	v, err := DoVal(context.Background(), fastPolicy(2), func(_ context.Context) (int, error) {
		calls++
		return 7, NewTransientError(errors.New("timeout"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 0, v)
	assert.Equal(t, 2, calls)
}

func TestDo_CustomRetryable(t *testing.T) {
	t.Parallel()

	p := fastPolicy(3)
	p.Retryable = func(error) bool { return true }
	calls := 0
	_ = Do(context.Background(), p, func(_ context.Context) error {
		calls++
		return errors.New("anything")
	})
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}, func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("x"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff_CappedAndGrowing(t *testing.T) {
	t.Parallel()

	p := Policy{MaxAttempts: 10, InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, Multiplier: 2}.normalized()
	assert.Equal(t, 10*time.Millisecond, p.backoff(1))
	assert.Equal(t, 20*time.Millisecond, p.backoff(2))
	assert.Equal(t, 50*time.Millisecond, p.backoff(6))
}

func TestNewPolicy(t *testing.T) {
	t.Parallel()

	p := NewPolicy("store", 5, 100, 1000)
	assert.Equal(t, "store", p.Name)
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, time.Second, p.MaxBackoff)

	d := NewPolicy("x", 0, 0, 0)
	assert.Equal(t, DefaultPolicy().MaxAttempts, d.MaxAttempts)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("x"), 429), true},
		{"wrapped explicit", eris.Wrap(NewTransientError(errors.New("x"), 0), "ctx"), true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"connection exception", fmt.Errorf("q: %w", &pgconn.PgError{Code: "08006"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"reset", errors.New("read tcp: connection reset by peer"), true},
		{"plain", errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, c := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(c), "%d", c)
	}
	for _, c := range []int{200, 400, 401, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(c), "%d", c)
	}
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	t.Parallel()

	now := time.Unix(0, 0)
	b := NewBreaker("llm", 2, time.Minute)
	b.now = func() time.Time { return now }

	fail := func(context.Context) (int, error) { return 0, errors.New("down") }
	ok := func(context.Context) (int, error) { return 1, nil }
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	assert.Equal(t, BreakerClosed, b.State())
	_, _ = Call(ctx, b, fail)
	assert.Equal(t, BreakerOpen, b.State())

	_, err := Call(ctx, b, ok)
	assert.ErrorIs(t, err, ErrBreakerOpen)

	now = now.Add(2 * time.Minute)
	v, err := Call(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	now := time.Unix(0, 0)
	b := NewBreaker("llm", 1, time.Second)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = Call(ctx, b, func(context.Context) (int, error) { return 0, errors.New("x") })
	assert.Equal(t, BreakerOpen, b.State())

	now = now.Add(2 * time.Second)
	_, _ = Call(ctx, b, func(context.Context) (int, error) { return 0, errors.New("x") })
	assert.Equal(t, BreakerOpen, b.State())
	assert.Equal(t, "open", b.State().String())
}

func TestBreaker_DisabledAndCancelled(t *testing.T) {
	t.Parallel()

	var nilBreaker *Breaker
	v, err := Call(context.Background(), nilBreaker, func(context.Context) (string, error) { return "x", nil })
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	b := NewBreaker("llm", 1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = Call(ctx, b, func(ctx context.Context) (int, error) { return 0, ctx.Err() })
	assert.Equal(t, BreakerClosed, b.State(), "cancellation is not a failure")
}
