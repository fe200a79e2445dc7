package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestExecutor(t *testing.T, cfg Config) (*Executor, *[]time.Duration) {
	t.Helper()
	delays := &[]time.Duration{}
	e := NewExecutor(cfg, zap.NewNop()).WithSleep(func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	})
	return e, delays
}

func TestExecuteSuccess(t *testing.T) {
	e, delays := newTestExecutor(t, Config{})
	out := e.Execute(context.Background(), RoleStrategist, Input{Query: "q"}, func(ctx context.Context, in Input) (string, map[string]interface{}, error) {
		return "draft", map[string]interface{}{"tokens": 12}, nil
	})

	assert.True(t, out.Success)
	assert.Equal(t, "draft", out.Content)
	assert.Equal(t, RoleStrategist, out.AgentRole)
	assert.Equal(t, 1, out.Attempts)
	assert.Empty(t, out.ErrorMessage)
	assert.Empty(t, *delays)
}

func TestExecuteRateLimitNeverRetried(t *testing.T) {
	e, delays := newTestExecutor(t, Config{MaxAttempts: 3})
	calls := 0
	out := e.Execute(context.Background(), RoleCritic, Input{}, func(ctx context.Context, in Input) (string, map[string]interface{}, error) {
		calls++
		return "", nil, errors.New("LLM provider error: rate limit exceeded")
	})

	assert.False(t, out.Success)
	assert.Equal(t, 1, calls, "quota errors get a single attempt")
	assert.Equal(t, ErrorClassQuota, out.ErrorClass)
	assert.Empty(t, *delays)
}

func TestExecuteTimeoutRetriedWithIncreasingBackoff(t *testing.T) {
	e, delays := newTestExecutor(t, Config{MaxAttempts: 3, BaseDelay: time.Second})
	calls := 0
	out := e.Execute(context.Background(), RoleModerator, Input{}, func(ctx context.Context, in Input) (string, map[string]interface{}, error) {
		calls++
		return "", nil, errors.New("request timed out")
	})

	assert.False(t, out.Success)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, ErrorClassRetryable, out.ErrorClass)
	assert.Contains(t, out.ErrorMessage, "timed out")

	require.Len(t, *delays, 2)
	assert.Equal(t, time.Second, (*delays)[0])
	assert.Equal(t, 2*time.Second, (*delays)[1])
	assert.Less(t, (*delays)[0], (*delays)[1], "backoff must strictly increase")
}

func TestExecuteRecoversAfterTransientFailure(t *testing.T) {
	e, _ := newTestExecutor(t, Config{MaxAttempts: 3})
	calls := 0
	out := e.Execute(context.Background(), RoleStrategist, Input{}, func(ctx context.Context, in Input) (string, map[string]interface{}, error) {
		calls++
		if calls < 2 {
			return "", nil, errors.New("503 service unavailable")
		}
		return "recovered", nil, nil
	})

	assert.True(t, out.Success)
	assert.Equal(t, "recovered", out.Content)
	assert.Equal(t, 2, out.Attempts)
}

func TestExecuteFatalErrorSurfacedImmediately(t *testing.T) {
	e, delays := newTestExecutor(t, Config{MaxAttempts: 3})
	calls := 0
	out := e.Execute(context.Background(), RoleSynthesizer, Input{}, func(ctx context.Context, in Input) (string, map[string]interface{}, error) {
		calls++
		return "", nil, errors.New("invalid prompt template")
	})

	assert.False(t, out.Success)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ErrorClassFatal, out.ErrorClass)
	assert.Empty(t, *delays)
}

func TestExecuteCapturesPanic(t *testing.T) {
	e, _ := newTestExecutor(t, Config{MaxAttempts: 1})
	out := e.Execute(context.Background(), RoleTutor, Input{}, func(ctx context.Context, in Input) (string, map[string]interface{}, error) {
		panic("boom")
	})

	assert.False(t, out.Success)
	assert.Contains(t, out.ErrorMessage, "boom")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil-ish fallthrough", errors.New("parse failure"), ErrorClassFatal},
		{"rate limit", errors.New("429 rate limit"), ErrorClassQuota},
		{"quota", errors.New("insufficient_quota for project"), ErrorClassQuota},
		{"billing", errors.New("billing hard limit reached"), ErrorClassQuota},
		{"timeout", errors.New("context deadline exceeded"), ErrorClassRetryable},
		{"overloaded", errors.New("model is overloaded"), ErrorClassRetryable},
		{"bad gateway", errors.New("502 bad gateway"), ErrorClassRetryable},
		{"temporarily unavailable", errors.New("service temporarily unavailable"), ErrorClassRetryable},
		{"connection reset", errors.New("read: connection reset by peer"), ErrorClassRetryable},
		{"wrapped deadline", context.DeadlineExceeded, ErrorClassRetryable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestClassifyQuotaWinsOverTransient(t *testing.T) {
	// A 429 often arrives alongside transient-looking text; quota must win.
	err := errors.New("server temporarily unavailable: rate limit exceeded")
	assert.Equal(t, ErrorClassQuota, Classify(err))
}

func TestDefaultTemperatures(t *testing.T) {
	assert.InDelta(t, 0.8, RoleStrategist.DefaultTemperature(), 1e-9)
	assert.InDelta(t, 0.1, RoleCritic.DefaultTemperature(), 1e-9)
	assert.Greater(t, RoleStrategist.DefaultTemperature(), RoleCritic.DefaultTemperature())
}
