package agents

import (
	"context"
	"time"

	"go.uber.org/zap"

	ometrics "github.com/socraticlabs/tutor-orchestrator/internal/metrics"
)

// Input is the common envelope handed to any agent's unit of work.
type Input struct {
	Query     string                 `json:"query"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
}

// Output is the uniform result of one executed agent step. A failed unit of
// work never propagates as an error; it is captured here.
type Output struct {
	Success        bool                   `json:"success"`
	Content        string                 `json:"content,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	ProcessingTime float64                `json:"processing_time"`
	AgentRole      AgentRole              `json:"agent_role"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	ErrorClass     ErrorClass             `json:"error_class,omitempty"`
	Attempts       int                    `json:"attempts"`
}

// WorkUnit is a single agent's process function. It returns the generated
// content plus optional result metadata.
type WorkUnit func(ctx context.Context, in Input) (string, map[string]interface{}, error)

// Config holds the executor's retry knobs.
type Config struct {
	MaxAttempts int           // total attempts for retryable failures (default 3)
	BaseDelay   time.Duration // backoff base, doubled per attempt (default 1s)
	DebugTiming bool          // log per-step completion time
}

// Executor wraps any agent's unit of work with timing, error capture, and
// retry-with-backoff for transient failures. One executor is shared across
// roles; it carries no per-session state.
type Executor struct {
	cfg    Config
	logger *zap.Logger

	// sleep is injectable so retry timing is testable.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewExecutor builds an executor with defaults filled in.
func NewExecutor(cfg Config, logger *zap.Logger) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

// WithSleep overrides the backoff sleeper. Test hook.
func (e *Executor) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Executor {
	e.sleep = fn
	return e
}

// Execute runs the unit of work for a role and returns a structured output.
// Retry policy: retryable failures are reattempted up to MaxAttempts with
// exponential backoff (BaseDelay * 2^attempt); quota/billing and fatal
// failures get exactly one attempt. Exhausted retries still produce a failed
// Output, never a raised error.
func (e *Executor) Execute(ctx context.Context, role AgentRole, in Input, work WorkUnit) Output {
	start := e.now()
	out := Output{AgentRole: role}

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		out.Attempts = attempt + 1
		ometrics.AgentExecutions.WithLabelValues(role.String()).Inc()

		content, md, err := e.run(ctx, in, work)
		if err == nil {
			out.Success = true
			out.Content = content
			out.Metadata = md
			break
		}

		lastErr = err
		class := Classify(err)
		out.ErrorClass = class
		ometrics.AgentErrors.WithLabelValues(role.String(), string(class)).Inc()

		if class != ErrorClassRetryable {
			e.logger.Warn("Agent step failed, not retryable",
				zap.String("agent", role.String()),
				zap.String("class", string(class)),
				zap.Error(err),
			)
			break
		}
		if attempt+1 >= e.cfg.MaxAttempts {
			e.logger.Warn("Agent step failed, retries exhausted",
				zap.String("agent", role.String()),
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			break
		}

		delay := e.cfg.BaseDelay * (1 << attempt)
		e.logger.Info("Agent step failed, retrying",
			zap.String("agent", role.String()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if serr := e.sleep(ctx, delay); serr != nil {
			lastErr = serr
			break
		}
	}

	if !out.Success && lastErr != nil {
		out.ErrorMessage = lastErr.Error()
		if out.ErrorClass == "" {
			out.ErrorClass = Classify(lastErr)
		}
	}

	elapsed := e.now().Sub(start)
	out.ProcessingTime = elapsed.Seconds()
	ometrics.AgentExecutionDuration.WithLabelValues(role.String()).Observe(elapsed.Seconds())

	if e.cfg.DebugTiming {
		e.logger.Debug("Agent step completed",
			zap.String("agent", role.String()),
			zap.Bool("success", out.Success),
			zap.Int("attempts", out.Attempts),
			zap.Duration("elapsed", elapsed),
		)
	}
	return out
}

// run invokes the work unit, converting panics into errors so a misbehaving
// agent cannot take down the activity worker.
func (e *Executor) run(ctx context.Context, in Input, work WorkUnit) (content string, md map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return work(ctx, in)
}

type panicError struct{ value interface{} }

func (p *panicError) Error() string { return "agent panic: " + formatPanic(p.value) }

func formatPanic(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
