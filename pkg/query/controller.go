// Package query decides when a search term warrants a provider fetch and
// tracks the fetch lifecycle.
package query

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/spideyz0r/searchbar/pkg/logging"
	"github.com/spideyz0r/searchbar/pkg/provider"
)

// Status is the lifecycle stage of a query.
type Status int

const (
	Idle Status = iota
	Loading
	Success
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// State is what the controller exposes for one term.
type State struct {
	Term    string
	Status  Status
	Results []provider.Result // set when Status is Success
	Err     string            // set when Status is Error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.log = logger
	}
}

// Controller issues at most one fetch per distinct term while active and
// caches results by term for its lifetime. Only the latest request may
// change the visible state.
type Controller struct {
	provider provider.Provider
	log      *slog.Logger

	mu       sync.Mutex
	minLen   int
	term     string
	enabled  bool
	gen      uint64
	cancel   context.CancelFunc
	inflight string
	cache    map[string]State
	fetches  int
	closed   bool
	onChange func()

	wg sync.WaitGroup
}

// New creates a disabled controller with an empty term.
func New(p provider.Provider, minQueryLength int, opts ...Option) *Controller {
	if minQueryLength < 0 {
		minQueryLength = 0
	}
	c := &Controller{
		provider: p,
		minLen:   minQueryLength,
		cache:    make(map[string]State),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.Component(c.log, "query")
	return c
}

// OnChange registers fn to be called after the visible state may have
// changed. fn should read State; it runs outside the controller's lock.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Update feeds the current term and enabled flag.
func (c *Controller) Update(term string, enabled bool) {
	c.mu.Lock()
	if c.closed || (term == c.term && enabled == c.enabled) {
		c.mu.Unlock()
		return
	}

	if term != c.term {
		// Errors are only kept while their term stays current, so coming
		// back to the term fetches again.
		if st, ok := c.cache[c.term]; ok && st.Status == Error {
			delete(c.cache, c.term)
		}
	}
	c.term, c.enabled = term, enabled
	c.reconcileLocked()
	c.notifyUnlock()
}

// SetMinQueryLength changes the activation threshold.
func (c *Controller) SetMinQueryLength(n int) {
	if n < 0 {
		n = 0
	}
	c.mu.Lock()
	if c.closed || n == c.minLen {
		c.mu.Unlock()
		return
	}
	c.minLen = n
	c.reconcileLocked()
	c.notifyUnlock()
}

// Retry fetches the current term again if its last fetch failed.
func (c *Controller) Retry() {
	c.mu.Lock()
	if c.closed || !c.activeLocked() {
		c.mu.Unlock()
		return
	}
	st, ok := c.cache[c.term]
	if !ok || st.Status != Error {
		c.mu.Unlock()
		return
	}
	c.fetchLocked()
	c.notifyUnlock()
}

// Active reports whether the controller would fetch for its current term.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

// State returns the visible state. An inactive controller is always Idle,
// so results of a term that is no longer eligible are never exposed.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visibleLocked()
}

// Fetches returns the number of provider calls issued so far.
func (c *Controller) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// Wait blocks until every issued fetch has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels the in-flight fetch. The state no longer changes and
// OnChange is no longer called.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.supersedeLocked()
}

func (c *Controller) activeLocked() bool {
	return c.enabled && utf8.RuneCountInString(c.term) >= c.minLen
}

func (c *Controller) visibleLocked() State {
	if !c.activeLocked() {
		return State{Term: c.term, Status: Idle}
	}
	st, ok := c.cache[c.term]
	if !ok {
		return State{Term: c.term, Status: Idle}
	}
	if st.Results != nil {
		st.Results = append([]provider.Result(nil), st.Results...)
	}
	return st
}

func (c *Controller) reconcileLocked() {
	if !c.activeLocked() {
		c.supersedeLocked()
		return
	}

	st, ok := c.cache[c.term]
	switch {
	case !ok:
		c.fetchLocked()
	case st.Status == Loading:
		// Already in flight for this term.
	default:
		c.supersedeLocked()
	}
}

// supersedeLocked invalidates the in-flight fetch, if any.
func (c *Controller) supersedeLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		if st, ok := c.cache[c.inflight]; ok && st.Status == Loading {
			delete(c.cache, c.inflight)
		}
		c.log.Debug("superseded fetch", "term", c.inflight)
		c.inflight = ""
	}
}

func (c *Controller) fetchLocked() {
	c.supersedeLocked()

	term, gen := c.term, c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.inflight = term
	c.cache[term] = State{Term: term, Status: Loading}
	c.fetches++

	c.log.Debug("fetching", "term", term, "generation", gen)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		results, err := c.provider.Search(ctx, term)
		c.complete(gen, term, results, err)
	}()
}

func (c *Controller) complete(gen uint64, term string, results []provider.Result, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		c.log.Debug("discarding stale response", "term", term, "generation", gen)
		return
	}

	c.cancel = nil
	c.inflight = ""
	if err != nil {
		c.log.Warn("search failed", "term", term, "error", err)
		c.cache[term] = State{Term: term, Status: Error, Err: err.Error()}
	} else {
		if results == nil {
			results = []provider.Result{}
		}
		c.cache[term] = State{Term: term, Status: Success, Results: results}
	}
	c.notifyUnlock()
}

// notifyUnlock releases the lock and calls the change listener.
func (c *Controller) notifyUnlock() {
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
