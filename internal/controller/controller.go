package controller

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/forecast-controller/internal/weather"
)

// DefaultErrorMessage is published when a failure carries no text of its own.
const DefaultErrorMessage = "Ошибка сети"

// Controller owns a single FetchState cell and drives Loading -> Success|Error
// cycles against a weather.Source. Each Refresh supersedes the cycle in flight:
// its context is cancelled and whatever it returns is dropped.
type Controller struct {
	source       weather.Source
	logger       *slog.Logger
	defaultQuery weather.Query
	fallback     string
	fetchTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	idle        *sync.Cond
	inflight    int
	state       State
	dispatched  State
	gen         uint64
	cancelCycle context.CancelFunc
	lastQuery   weather.Query
	closed      bool

	observers  map[uint64]Observer
	order      []uint64
	nextSubID  uint64
	pending    []State
	delivering bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithDefaultQuery sets the query used by the implicit initial refresh and
// whenever Refresh receives a zero query.
func WithDefaultQuery(q weather.Query) Option {
	return func(c *Controller) {
		c.defaultQuery = q.WithDefaults(weather.DefaultQuery())
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFallbackMessage overrides DefaultErrorMessage.
func WithFallbackMessage(msg string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(msg) != "" {
			c.fallback = msg
		}
	}
}

// WithFetchTimeout bounds each Source call. Zero means no bound beyond the
// source's own transport timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.fetchTimeout = d
	}
}

// WithObserver subscribes obs before the implicit initial refresh, so it sees
// that cycle's Loading and terminal state.
func WithObserver(obs Observer) Option {
	return func(c *Controller) {
		c.Subscribe(obs)
	}
}

// New creates a controller and triggers one refresh with the default query.
func New(source weather.Source, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		source:       source,
		logger:       slog.Default(),
		defaultQuery: weather.DefaultQuery(),
		fallback:     DefaultErrorMessage,
		ctx:          ctx,
		cancel:       cancel,
		state:        Loading(),
		observers:    make(map[uint64]Observer),
	}
	c.idle = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	c.lastQuery = c.defaultQuery

	c.Refresh(weather.Query{})
	return c
}

// CurrentState returns the state as of the latest transition.
func (c *Controller) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DefaultQuery returns the query used for zero-value refreshes.
func (c *Controller) DefaultQuery() weather.Query {
	return c.defaultQuery
}

// LastQuery returns the query of the most recent refresh.
func (c *Controller) LastQuery() weather.Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastQuery
}

// Refresh starts a new fetch cycle and returns its id. Loading is published
// before Refresh returns; the terminal state follows from a background
// goroutine. A zero query means the default query. After Close, Refresh is a
// no-op and returns "".
func (c *Controller) Refresh(q weather.Query) string {
	q = q.WithDefaults(c.defaultQuery)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("refresh after close ignored", "query", q.String())
		return ""
	}
	if c.cancelCycle != nil {
		c.cancelCycle()
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelCycle = cancel
	c.lastQuery = q
	c.inflight++
	c.mu.Unlock()

	id := uuid.NewString()
	c.logger.Debug("refresh started", "cycle", id, "query", q.String())

	c.publish(gen, Loading())
	go c.run(ctx, cancel, gen, id, q)

	return id
}

// Reload refreshes with the last query used.
func (c *Controller) Reload() string {
	return c.Refresh(c.LastQuery())
}

// Wait blocks until no cycle is in flight. Refreshes started while it waits
// extend the wait. It must not be called from an observer.
func (c *Controller) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.inflight > 0 {
		c.idle.Wait()
	}
}

// Close cancels the cycle in flight, refuses further refreshes and waits for
// outstanding cycles. The last published state is kept.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.mu.Unlock()

	c.cancel()
	c.Wait()
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, gen uint64, id string, q weather.Query) {
	defer c.done()
	defer cancel()

	start := time.Now()
	next := c.fetch(ctx, q)

	if ctx.Err() != nil {
		c.logger.Debug("discarding superseded cycle", "cycle", id, "query", q.String())
		return
	}

	if !c.publish(gen, next) {
		c.logger.Debug("discarding stale result", "cycle", id, "query", q.String())
		return
	}

	if msg, failed := next.Message(); failed {
		c.logger.Warn("refresh failed", "cycle", id, "query", q.String(), "error", msg, "elapsed", time.Since(start))
		return
	}
	c.logger.Info("refresh succeeded", "cycle", id, "query", q.String(), "elapsed", time.Since(start))
}

func (c *Controller) done() {
	c.mu.Lock()
	c.inflight--
	if c.inflight == 0 {
		c.idle.Broadcast()
	}
	c.mu.Unlock()
}

func (c *Controller) fetch(ctx context.Context, q weather.Query) State {
	if err := q.Validate(); err != nil {
		return Failure(c.messageFor(err))
	}

	fetchCtx := ctx
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	result, err := c.source.Fetch(fetchCtx, q)
	if err != nil {
		return Failure(c.messageFor(err))
	}
	return Success(result)
}

func (c *Controller) messageFor(err error) string {
	if err == nil {
		return c.fallback
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return c.fallback
}

// publish replaces the state if gen is still current and delivers it.
// Delivery is serialized: when another goroutine is already delivering, s is
// queued behind it and publish returns without waiting.
func (c *Controller) publish(gen uint64, s State) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.state = s
	c.pending = append(c.pending, s)
	if c.delivering {
		c.mu.Unlock()
		return true
	}
	c.delivering = true

	for len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.dispatched = next
		ids := append([]uint64(nil), c.order...)
		c.mu.Unlock()

		c.deliver(next, ids)

		c.mu.Lock()
	}
	c.delivering = false
	c.pending = nil
	c.mu.Unlock()
	return true
}
