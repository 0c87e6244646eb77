// Package coordinator drives the periodic refresh of one device: it fans out to
// every tracked resource through the polling cache, publishes one immutable
// snapshot per successful cycle and notifies subscribers.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bassista/go_devwatch/internal/cache"
	"github.com/bassista/go_devwatch/internal/logger"
	"github.com/bassista/go_devwatch/internal/model"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultTimeout  = 10 * time.Second
)

// ErrRefreshTimeout is wrapped by the UpdateFailedError of a cycle that ran out of time.
var ErrRefreshTimeout = errors.New("refresh timed out")

// State is the phase of the refresh state machine.
type State int

const (
	StateIdle State = iota
	StateRefreshing
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// UpdateFailedError is reported to subscribers when a refresh cycle fails.
type UpdateFailedError struct {
	Device string
	Err    error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("update failed for %s: %v", e.Device, e.Err)
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

// Update is delivered to subscribers after every cycle. On failure Snapshot is
// the previously published one (possibly nil) and Err is an *UpdateFailedError.
type Update struct {
	Outcome  State
	Snapshot *model.Snapshot
	Err      error
}

// Listener receives updates. It runs on the refreshing goroutine and must not block.
type Listener func(Update)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval overrides DefaultInterval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger replaces the default component logger.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// Coordinator owns the single polling timeline of a device.
type Coordinator struct {
	name     string
	store    cache.Getter
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      *logrus.Entry

	refreshMu sync.Mutex // one cycle at a time
	snapshot  atomic.Pointer[model.Snapshot]

	mu        sync.RWMutex
	state     State
	outcome   State
	lastErr   error
	listeners map[int]Listener
	nextID    int
}

// New creates a coordinator for the device name reading through store.
func New(name string, store cache.Getter, opts ...Option) *Coordinator {
	c := &Coordinator{
		name:      name,
		store:     store,
		interval:  DefaultInterval,
		timeout:   DefaultTimeout,
		now:       time.Now,
		log:       logger.WithDevice("coordinator", name),
		listeners: map[int]Listener{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the device name.
func (c *Coordinator) Name() string {
	return c.name
}

// Interval returns the refresh interval.
func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// Start performs an initial refresh and then refreshes on every interval tick
// until ctx is cancelled. Returns a channel that is closed when the loop has stopped.
func (c *Coordinator) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	c.log.Debugf("starting coordinator with interval: %v, timeout: %v", c.interval, c.timeout)
	go func() {
		defer close(done)
		_ = c.Refresh(ctx)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.log.Info("coordinator stopped")
				return
			case <-ticker.C:
				_ = c.Refresh(ctx)
			}
		}
	}()
	return done
}

// Refresh runs one refresh cycle bounded by the configured timeout.
// On failure the previous snapshot stays published and an *UpdateFailedError is returned.
// When ctx itself ends first, the cycle is abandoned without counting as a failure
// and the returned error wraps ctx.Err().
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.setState(StateRefreshing)
	c.log.Tracef("refresh started")

	cycleCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resources := c.store.Resources()
	payloads := make([]model.Payload, len(resources))

	g, gctx := errgroup.WithContext(cycleCtx)
	for i, resource := range resources {
		g.Go(func() error {
			payload, err := c.store.Get(gctx, resource)
			if err != nil {
				return fmt.Errorf("%s: %w", resource, err)
			}
			payloads[i] = payload
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return c.abort(err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %v: %w", ErrRefreshTimeout, c.timeout, err)
		}
		return c.fail(&UpdateFailedError{Device: c.name, Err: err})
	}

	states := make(map[string]model.ResourceState, len(resources))
	for i, resource := range resources {
		states[resource] = model.ResourceState{Payload: payloads[i], Available: payloads[i] != nil}
	}
	snap := model.NewSnapshot(c.name, c.now(), states)
	c.snapshot.Store(snap)

	c.mu.Lock()
	recovered := c.outcome == StateFailed
	c.state = StateIdle
	c.outcome = StateSuccess
	c.lastErr = nil
	c.mu.Unlock()

	if recovered {
		c.log.Info("fetching data recovered")
	}
	c.log.Debugf("refresh finished, %d resources", len(resources))
	c.notify(Update{Outcome: StateSuccess, Snapshot: snap})
	return nil
}

// abort ends a cycle whose caller went away (shutdown, HTTP client gone).
// The device did not fail: outcome, last error and subscribers are left alone.
func (c *Coordinator) abort(err error) error {
	c.setState(StateIdle)
	c.log.Debugf("refresh aborted by caller: %v", err)
	return fmt.Errorf("refresh %s aborted: %w", c.name, err)
}

func (c *Coordinator) fail(err *UpdateFailedError) error {
	c.mu.Lock()
	alreadyFailed := c.outcome == StateFailed
	c.state = StateIdle
	c.outcome = StateFailed
	c.lastErr = err
	c.mu.Unlock()

	// Only the transition into the failed state is worth an error line.
	if alreadyFailed {
		c.log.Debugf("refresh failed: %v", err)
	} else {
		c.log.Errorf("Error fetching data: %v", err)
	}
	c.notify(Update{Outcome: StateFailed, Snapshot: c.Snapshot(), Err: err})
	return err
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Snapshot returns the last published snapshot, or nil before the first success.
func (c *Coordinator) Snapshot() *model.Snapshot {
	return c.snapshot.Load()
}

// State returns the current phase: StateRefreshing during a cycle, StateIdle otherwise.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Outcome returns StateSuccess or StateFailed for the last finished cycle,
// or StateIdle if no cycle has finished yet.
func (c *Coordinator) Outcome() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outcome
}

// LastUpdateSuccess reports whether the last finished cycle succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	return c.Outcome() == StateSuccess
}

// LastError returns the *UpdateFailedError of the last cycle, or nil.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Subscribe registers fn for every future update and returns a function that removes it.
func (c *Coordinator) Subscribe(fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Coordinator) notify(u Update) {
	c.mu.RLock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.RUnlock()

	for _, l := range listeners {
		l(u)
	}
}
