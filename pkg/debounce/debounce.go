package debounce

import (
	"sync"
	"time"

	"github.com/spideyz0r/searchbar/pkg/clock"
)

// DefaultDelay is the quiet period used by the search bar.
const DefaultDelay = 300 * time.Millisecond

// Option configures a Debouncer.
type Option func(*settings)

type settings struct {
	clock clock.Clock
}

// WithClock sets the clock used to schedule emissions.
func WithClock(c clock.Clock) Option {
	return func(s *settings) {
		s.clock = c
	}
}

// Debouncer delays propagation of a rapidly changing value until it has been
// stable for the configured delay.
type Debouncer[T comparable] struct {
	mu       sync.Mutex
	clock    clock.Clock
	delay    time.Duration
	input    T
	value    T
	timer    clock.Timer
	gen      uint64
	stopped  bool
	onSettle func(T)
}

// New creates a Debouncer whose output starts at initial.
func New[T comparable](initial T, delay time.Duration, opts ...Option) *Debouncer[T] {
	s := settings{clock: clock.Real()}
	for _, opt := range opts {
		opt(&s)
	}

	return &Debouncer[T]{
		clock: s.clock,
		delay: delay,
		input: initial,
		value: initial,
	}
}

// OnSettle registers fn to be called whenever the debounced output changes.
// fn runs on the timer's goroutine, outside the debouncer's lock.
func (d *Debouncer[T]) OnSettle(fn func(T)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSettle = fn
}

// Set records a new input value and restarts the quiet period.
func (d *Debouncer[T]) Set(v T) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.input = v
	d.cancelLocked()

	if d.delay <= 0 {
		d.settleLocked()
		return
	}

	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.fire(gen)
	})
	d.mu.Unlock()
}

// Reset sets both input and output to v immediately, dropping any pending
// emission. OnSettle is not called.
func (d *Debouncer[T]) Reset(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.cancelLocked()
	d.input = v
	d.value = v
}

// Value returns the current debounced output.
func (d *Debouncer[T]) Value() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Pending reports whether an emission is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any pending emission. Nothing is emitted after Stop returns.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.cancelLocked()
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	// A timer that lost the race with Stop or Set must not emit.
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.settleLocked()
}

// settleLocked publishes the latest input and releases the lock.
func (d *Debouncer[T]) settleLocked() {
	d.timer = nil
	changed := d.value != d.input
	d.value = d.input
	v, fn := d.value, d.onSettle
	d.mu.Unlock()

	if changed && fn != nil {
		fn(v)
	}
}

func (d *Debouncer[T]) cancelLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
