// Package probe decides, without user action, when to take the high-quality
// capture. It polls a camera at a fixed interval, asks a cheap yes/no question
// about each low-quality frame and hands the first confirmed frame off for
// full analysis.
package probe

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/sillage/internal/analysis"
)

// State is the loop's position in Idle -> Probing -> Candidate -> Confirmed -> Idle.
type State int

const (
	Idle State = iota
	Probing
	Candidate
	Confirmed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Probing:
		return "probing"
	case Candidate:
		return "candidate"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Quality selects the capture resolution/compression.
type Quality int

const (
	QualityLow Quality = iota
	QualityHigh
)

// Camera produces frames on demand.
type Camera interface {
	Capture(ctx context.Context, q Quality) (analysis.Frame, error)
}

// Prober answers whether a frame shows a perfume bottle.
type Prober interface {
	Probe(ctx context.Context, frame analysis.Frame) bool
}

// Submitter receives the high-quality frame for full analysis. Submit may run
// the analysis to completion before returning; the loop stays in Candidate
// until it does and moves to Confirmed only after a nil return. A submitter
// that wants an earlier Confirmed should hand the frame off and return.
type Submitter interface {
	Submit(ctx context.Context, frame analysis.Frame) error
}

// Ticker is the subset of *time.Ticker the loop uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock abstracts time.Now for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

const (
	DefaultInterval   = 3 * time.Second
	DefaultMinSpacing = 2 * time.Second
)

// ErrRunning is returned by Start when the loop is already active.
var ErrRunning = errors.New("probe: loop already running")

// Options tune a Loop. Zero values select the defaults.
type Options struct {
	Interval     time.Duration
	MinSpacing   time.Duration
	Clock        Clock
	NewTicker    func(d time.Duration) Ticker
	Logger       *slog.Logger
	OnTransition func(from, to State)
}

// Loop is a cancellable probe task. A Loop may be restarted after it
// returns to Idle.
type Loop struct {
	camera    Camera
	prober    Prober
	submitter Submitter
	opts      Options

	mu        sync.Mutex
	state     State
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	lastProbe time.Time
	err       error
}

// New creates an idle Loop.
func New(camera Camera, prober Prober, submitter Submitter, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MinSpacing < 0 {
		opts.MinSpacing = 0
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.NewTicker == nil {
		opts.NewTicker = func(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)
	return &Loop{camera: camera, prober: prober, submitter: submitter, opts: opts, done: done}
}

// Start begins probing. It returns ErrRunning if the loop is not Idle.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != Idle {
		l.mu.Unlock()
		return ErrRunning
	}
	l.gen++
	gen := l.gen
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.lastProbe = time.Time{}
	l.err = nil
	l.state = Probing
	done := l.done
	l.mu.Unlock()

	l.notify(Idle, Probing)

	ticker := l.opts.NewTicker(l.opts.Interval)
	go l.run(runCtx, gen, ticker, done)
	return nil
}

// Stop cancels the loop. Any in-flight probe result is discarded. Stop is
// idempotent and does not wait; use Done to observe termination.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.cancel == nil {
		l.mu.Unlock()
		return
	}
	l.gen++
	l.cancel()
	l.cancel = nil
	from := l.state
	l.state = Idle
	l.mu.Unlock()

	if from != Idle {
		l.notify(from, Idle)
	}
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Done is closed when the current run ends.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Err returns the error that ended the last run, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loop) run(ctx context.Context, gen uint64, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	defer l.finish(gen, nil)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if l.tick(ctx, gen, ticker) {
				return
			}
		}
	}
}

// tick runs one probe. It returns true when the loop must end.
func (l *Loop) tick(ctx context.Context, gen uint64, ticker Ticker) bool {
	if !l.reserve(gen) {
		return !l.alive(gen)
	}

	frame, err := l.camera.Capture(ctx, QualityLow)
	if err != nil {
		l.opts.Logger.Debug("probe capture failed", "error", err)
		return !l.alive(gen)
	}

	yes := l.prober.Probe(ctx, frame)
	if !yes {
		return !l.alive(gen)
	}
	if !l.setState(gen, Probing, Candidate) {
		return true
	}

	ticker.Stop()

	high, err := l.camera.Capture(ctx, QualityHigh)
	if err != nil {
		l.opts.Logger.Warn("high-quality capture failed", "error", err)
		l.finish(gen, err)
		return true
	}
	if !l.alive(gen) {
		return true
	}

	if err := l.submitter.Submit(ctx, high); err != nil {
		l.opts.Logger.Warn("submitting frame failed", "error", err)
		l.finish(gen, err)
		return true
	}
	l.setState(gen, Candidate, Confirmed)
	return true
}

// reserve enforces the minimum spacing between probes and records the probe
// start time.
func (l *Loop) reserve(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen {
		return false
	}
	now := l.opts.Clock.Now()
	if !l.lastProbe.IsZero() && now.Sub(l.lastProbe) < l.opts.MinSpacing {
		return false
	}
	l.lastProbe = now
	return true
}

func (l *Loop) alive(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen
}

// setState moves from -> to only if gen is still current.
func (l *Loop) setState(gen uint64, from, to State) bool {
	l.mu.Lock()
	if l.gen != gen || l.state != from {
		l.mu.Unlock()
		return false
	}
	l.state = to
	l.mu.Unlock()
	l.notify(from, to)
	return true
}

// finish returns a still-current run to Idle.
func (l *Loop) finish(gen uint64, err error) {
	l.mu.Lock()
	if l.gen != gen || l.cancel == nil {
		l.mu.Unlock()
		return
	}
	if err != nil {
		l.err = err
	}
	l.cancel()
	l.cancel = nil
	from := l.state
	l.state = Idle
	l.mu.Unlock()

	if from != Idle {
		l.notify(from, Idle)
	}
}

func (l *Loop) notify(from, to State) {
	l.opts.Logger.Debug("probe transition", "from", from, "to", to)
	if l.opts.OnTransition != nil {
		l.opts.OnTransition(from, to)
	}
}
