// Package searchbar drives a search input: it debounces keystrokes, shows
// recent searches or live results depending on the term, and commits
// searches into the recent-searches store.
package searchbar

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/spideyz0r/searchbar/pkg/clock"
	"github.com/spideyz0r/searchbar/pkg/debounce"
	"github.com/spideyz0r/searchbar/pkg/logging"
	"github.com/spideyz0r/searchbar/pkg/provider"
	"github.com/spideyz0r/searchbar/pkg/query"
	"github.com/spideyz0r/searchbar/pkg/recent"
)

const (
	DefaultMinQueryLength = 1
	DefaultDebounceDelay  = debounce.DefaultDelay
	DefaultBlurGrace      = 100 * time.Millisecond
)

// Option values that turn a setting off. A zero option selects the default.
const (
	// NoMinQueryLength shows live results for every term, the empty one included.
	NoMinQueryLength = -1
	// NoDebounce settles every keystroke at once.
	NoDebounce time.Duration = -1
	// NoBlurGrace blurs without waiting.
	NoBlurGrace time.Duration = -1
)

// Mode is what the bar is currently showing.
type Mode int

const (
	Blurred Mode = iota
	ShowingRecents
	ShowingResults
	Submitting
)

func (m Mode) String() string {
	switch m {
	case Blurred:
		return "blurred"
	case ShowingRecents:
		return "recents"
	case ShowingResults:
		return "results"
	case Submitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Options configures a Bar. Zero values select the defaults; use
// NoMinQueryLength, NoDebounce and NoBlurGrace to turn a setting off.
type Options struct {
	MinQueryLength int
	DebounceDelay  time.Duration
	BlurGrace      time.Duration

	Clock  clock.Clock
	Logger *slog.Logger

	// OnSubmit is called once per committed search.
	OnSubmit func(term string)
	// OnChange is called with a fresh View after the bar's state may have
	// changed. It can run on timer and fetch goroutines and must not call
	// back into the Bar other than View.
	OnChange func(View)
}

// View is a snapshot of the bar.
type View struct {
	Mode      Mode
	Text      string
	Debounced string
	// Recents is set in ShowingRecents.
	Recents []string
	// Query is Idle unless Mode is ShowingResults.
	Query query.State
}

// Bar is the search bar state machine. Every event, whether a caller
// method, a debounce emission or a blur timer, runs under one mutex, so
// events are handled one at a time like on a UI loop.
type Bar struct {
	store     *recent.Store
	query     *query.Controller
	debouncer *debounce.Debouncer[string]
	clock     clock.Clock
	log       *slog.Logger

	delay    time.Duration
	grace    time.Duration
	onSubmit func(string)
	onChange func(View)

	mu          sync.Mutex
	dispatching atomic.Bool
	minLen      int
	text        string
	debounced   string
	focused     bool
	submitting  bool
	blurTimer   clock.Timer
	blurGen     uint64
	closed      bool
}

// New creates a blurred bar over store and p. The store is loaded if it
// has not been already; it is not closed by Close.
func New(store *recent.Store, p provider.Provider, opts Options) *Bar {
	minLen := pick(opts.MinQueryLength, DefaultMinQueryLength)
	delay := pick(opts.DebounceDelay, DefaultDebounceDelay)
	grace := pick(opts.BlurGrace, DefaultBlurGrace)
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	b := &Bar{
		store:    store,
		clock:    clk,
		delay:    delay,
		grace:    grace,
		minLen:   minLen,
		onSubmit: opts.OnSubmit,
		onChange: opts.OnChange,
		log:      logging.Component(opts.Logger, "searchbar").With(slog.String("session", uuid.NewString())),
	}
	b.query = query.New(p, minLen, query.WithLogger(opts.Logger))
	b.query.OnChange(b.queryChanged)
	b.debouncer = debounce.New("", delay, debounce.WithClock(clk))
	b.debouncer.OnSettle(b.settled)

	store.Load(context.Background())
	return b
}

func pick[T int | time.Duration](v, def T) T {
	switch {
	case v == 0:
		return def
	case v < 0:
		return 0
	default:
		return v
	}
}

// Focus gives the bar focus, or keeps it when a blur is pending.
func (b *Bar) Focus() {
	if !b.lock() {
		return
	}
	b.stopBlurLocked()
	if !b.focused {
		b.focused = true
		b.log.Debug("focused")
		b.query.Update(b.debounced, true)
	}
	b.unlockNotify()
}

// Blur removes focus after the grace period, so a row selected in the
// meantime is still handled.
func (b *Bar) Blur() {
	if !b.lock() {
		return
	}
	switch {
	case !b.focused || b.blurTimer != nil:
	case b.grace <= 0:
		b.blurNowLocked()
	default:
		b.blurGen++
		gen := b.blurGen
		b.blurTimer = b.clock.AfterFunc(b.grace, func() {
			b.blurFired(gen)
		})
	}
	b.unlockNotify()
}

// SetText records a keystroke. The term used for mode and fetching follows
// after the debounce delay.
func (b *Bar) SetText(s string) {
	if !b.lock() {
		return
	}
	b.text = s
	if b.delay <= 0 {
		b.debouncer.Reset(s)
		b.applyDebouncedLocked(s)
	} else {
		b.debouncer.Set(s)
	}
	b.unlockNotify()
}

// Submit commits the typed text. Blank text is ignored. Text shorter than
// the minimum query length can still be submitted.
func (b *Bar) Submit() bool {
	b.mu.Lock()
	text := b.text
	b.mu.Unlock()
	return b.commit(text, "submit")
}

// SelectResult commits a live result's title.
func (b *Bar) SelectResult(r provider.Result) bool {
	return b.commit(r.Title, "result")
}

// SelectRecent commits a recent search without waiting for the debouncer.
func (b *Bar) SelectRecent(term string) bool {
	return b.commit(term, "recent")
}

// RemoveRecent deletes term from the recent searches.
func (b *Bar) RemoveRecent(term string) {
	if !b.lock() {
		return
	}
	b.store.Remove(context.Background(), term)
	b.unlockNotify()
}

// ClearRecents deletes every recent search.
func (b *Bar) ClearRecents() {
	if !b.lock() {
		return
	}
	b.store.Clear(context.Background())
	b.unlockNotify()
}

// Retry refetches the current term after a failed search.
func (b *Bar) Retry() {
	if !b.lock() {
		return
	}
	b.query.Retry()
	b.unlockNotify()
}

// SetMinQueryLength changes the threshold for showing live results.
func (b *Bar) SetMinQueryLength(n int) {
	if !b.lock() {
		return
	}
	if n < 0 {
		n = 0
	}
	b.minLen = n
	b.query.SetMinQueryLength(n)
	b.unlockNotify()
}

// View returns the current snapshot.
func (b *Bar) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked()
}

// Wait blocks until the in-flight fetch, if any, has returned.
func (b *Bar) Wait() {
	b.query.Wait()
}

// Close stops the debounce and blur timers and the in-flight fetch.
// Nothing changes and no callback runs afterwards.
func (b *Bar) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.stopBlurLocked()
	b.debouncer.Stop()
	b.query.Close()
	b.log.Debug("closed")
}

func (b *Bar) commit(term, source string) bool {
	term = strings.TrimSpace(term)
	if !b.lock() {
		return false
	}
	if term == "" || !b.focused || b.submitting {
		b.unlock()
		return false
	}

	b.submitting = true
	b.stopBlurLocked()
	b.store.Add(context.Background(), term)
	b.log.Info("search committed", "term", term, "source", source)
	onSubmit := b.onSubmit
	b.unlockNotify()

	if onSubmit != nil {
		onSubmit(term)
	}

	if !b.lock() {
		return true
	}
	b.submitting = false
	b.text = ""
	b.debouncer.Reset("")
	b.debounced = ""
	b.blurNowLocked()
	b.unlockNotify()
	return true
}

func (b *Bar) settled(v string) {
	if !b.lock() {
		return
	}
	b.applyDebouncedLocked(v)
	b.unlockNotify()
}

func (b *Bar) applyDebouncedLocked(v string) {
	b.debounced = v
	b.query.Update(v, b.focused)
}

func (b *Bar) blurFired(gen uint64) {
	if !b.lock() {
		return
	}
	if gen == b.blurGen && b.blurTimer != nil {
		b.blurNowLocked()
	}
	b.unlockNotify()
}

func (b *Bar) blurNowLocked() {
	b.stopBlurLocked()
	if !b.focused {
		return
	}
	b.focused = false
	b.log.Debug("blurred")
	b.query.Update(b.debounced, false)
}

func (b *Bar) stopBlurLocked() {
	if b.blurTimer == nil {
		return
	}
	b.blurTimer.Stop()
	b.blurTimer = nil
	b.blurGen++
}

func (b *Bar) modeLocked() Mode {
	switch {
	case !b.focused:
		return Blurred
	case b.submitting:
		return Submitting
	case utf8.RuneCountInString(b.debounced) >= b.minLen:
		return ShowingResults
	default:
		return ShowingRecents
	}
}

func (b *Bar) viewLocked() View {
	v := View{
		Mode:      b.modeLocked(),
		Text:      b.text,
		Debounced: b.debounced,
		Query:     query.State{Term: b.debounced, Status: query.Idle},
	}
	switch v.Mode {
	case ShowingRecents:
		v.Recents = b.store.List()
	case ShowingResults:
		v.Query = b.query.State()
	}
	return v
}

// queryChanged forwards fetch completions. Changes made while an event
// holds the lock are reported when that event finishes.
func (b *Bar) queryChanged() {
	if b.dispatching.Load() {
		return
	}
	b.notify()
}

// lock starts an event. It returns false, without holding the lock, once
// the bar is closed.
func (b *Bar) lock() bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.dispatching.Store(true)
	return true
}

func (b *Bar) unlock() {
	b.dispatching.Store(false)
	b.mu.Unlock()
}

func (b *Bar) unlockNotify() {
	b.unlock()
	b.notify()
}

func (b *Bar) notify() {
	b.mu.Lock()
	if b.closed || b.onChange == nil {
		b.mu.Unlock()
		return
	}
	v, fn := b.viewLocked(), b.onChange
	b.mu.Unlock()
	fn(v)
}
