// Package analysis turns a captured frame into a validated identification,
// retrying the inference backend with linear backoff on rate limits.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/sillage/internal/engine"
	"github.com/kalambet/sillage/internal/extract"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 2 * time.Second
)

// Inferrer is the subset of engine.Engine the controller needs.
type Inferrer interface {
	Infer(ctx context.Context, req engine.InferRequest) (string, error)
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Request is one analysis job: a frame, the instruction and the schema the
// answer must satisfy.
type Request struct {
	Frame       Frame
	Instruction string
	Schema      *extract.Schema
}

// Controller runs inference plus extraction with bounded retries.
type Controller struct {
	engine      Inferrer
	maxAttempts int
	backoffBase time.Duration
	sleep       Sleeper
	logger      *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxAttempts caps the number of inference calls per analysis.
func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoffBase sets the delay unit used after a rate-limited attempt.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.backoffBase = d
		}
	}
}

// WithSleeper replaces the backoff wait, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) { c.sleep = s }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a Controller around the given backend.
func NewController(eng Inferrer, opts ...Option) *Controller {
	c := &Controller{
		engine:      eng,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
		sleep:       Sleep,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze runs the full identification on frame.
func (c *Controller) Analyze(ctx context.Context, frame Frame) Result {
	return c.Run(ctx, Request{Frame: frame, Instruction: FullInstruction, Schema: PerfumeSchema()})
}

// Run executes req until it yields an identification or a negative answer,
// or until the attempts are exhausted. Only rate-limited attempts are
// followed by a wait, of backoffBase times the attempt number.
func (c *Controller) Run(ctx context.Context, req Request) Result {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return failed(ErrorKindCancelled, MessageCancelled, err, attempt-1)
		}

		res, err := c.attempt(ctx, req, attempt)
		if err == nil {
			return res
		}
		if errors.Is(err, engine.ErrEmptyImage) || errors.Is(err, engine.ErrEmptyInstruction) {
			return failed(ErrorKindInvalid, err.Error(), err, attempt)
		}
		if ctx.Err() != nil {
			return failed(ErrorKindCancelled, MessageCancelled, ctx.Err(), attempt)
		}
		lastErr = err

		c.logger.Warn("analysis attempt failed",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"rate_limited", engine.IsRateLimited(err),
			"error", err)

		if engine.IsRateLimited(err) && attempt < c.maxAttempts {
			delay := c.backoffBase * time.Duration(attempt)
			if err := c.sleep(ctx, delay); err != nil {
				return failed(ErrorKindCancelled, MessageCancelled, err, attempt)
			}
		}
	}
	return failed(ErrorKindExhausted, MessageExhausted,
		fmt.Errorf("%d attempts: %w", c.maxAttempts, lastErr), c.maxAttempts)
}

func (c *Controller) attempt(ctx context.Context, req Request, attempt int) (Result, error) {
	raw, err := c.engine.Infer(ctx, engine.InferRequest{
		Image:       req.Frame.Image,
		MIMEType:    req.Frame.MIMEType,
		Instruction: req.Instruction,
		Schema:      req.Schema,
	})
	if err != nil {
		return Result{}, err
	}

	obj, err := extract.Extract(raw, req.Schema)
	if err != nil {
		c.logger.Debug("unparseable model output", "attempt", attempt, "raw", truncate(raw, 200))
		return Result{}, err
	}
	if extract.IsNegative(obj) {
		reason, _ := obj["reason"].(string)
		return notIdentified(reason, attempt), nil
	}

	id, err := extract.Decode[Identification](obj)
	if err != nil {
		return Result{}, err
	}
	return identified(&id, attempt), nil
}

// Probe asks the quick yes/no question once. Any failure counts as no.
func (c *Controller) Probe(ctx context.Context, frame Frame) bool {
	raw, err := c.engine.Infer(ctx, engine.InferRequest{
		Image:       frame.Image,
		MIMEType:    frame.MIMEType,
		Instruction: ProbeInstruction,
		Schema:      ProbeSchema(),
	})
	if err != nil {
		c.logger.Debug("probe failed", "error", err)
		return false
	}
	obj, err := extract.Extract(raw, ProbeSchema())
	if err != nil {
		return false
	}
	yes, _ := obj["identified"].(bool)
	return yes
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
