package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spideyz0r/searchbar/pkg/clock"
	"github.com/spideyz0r/searchbar/pkg/kv"
	"github.com/spideyz0r/searchbar/pkg/provider"
)

// ErrInjected is returned by FailingKV and StubProvider failures.
var ErrInjected = errors.New("injected failure")

// TempFile creates a file with the given content in dir
func TempFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	return path
}

// NewTestKV opens a SQLite kv store in a temp dir, closed on cleanup.
func NewTestKV(t *testing.T) *kv.SQLite {
	t.Helper()

	store, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test kv: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// FakeClock is a clock.Clock whose time only moves on Advance.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *FakeClock
	at    time.Time
	seq   int
	fn    func()
	done  bool
}

// NewFakeClock returns a clock starting at the Unix epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Unix(0, 0)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves time forward by d, running due timers in deadline order on
// the calling goroutine. Timers scheduled by callbacks fire too if due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		c.now = next.at
		c.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of timers that have not fired or stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

func (c *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	c.timers = live

	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
	if len(c.timers) == 0 || c.timers[0].at.After(target) {
		return nil
	}
	return c.timers[0]
}

// KVOp is one write observed by FailingKV.
type KVOp struct {
	Kind  string // "set" or "remove"
	Key   string
	Value string
}

// FailingKV wraps a kv.Store, recording writes and failing on demand.
type FailingKV struct {
	kv.Store

	mu         sync.Mutex
	failGet    bool
	failSet    bool
	failRemove bool
	ops        []KVOp
}

// NewFailingKV wraps inner, or a fresh memory store when inner is nil.
func NewFailingKV(inner kv.Store) *FailingKV {
	if inner == nil {
		inner = kv.NewMemory()
	}
	return &FailingKV{Store: inner}
}

// Fail sets which operations return ErrInjected.
func (f *FailingKV) Fail(get, set, remove bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet, f.failSet, f.failRemove = get, set, remove
}

// Ops returns the writes attempted so far, in order.
func (f *FailingKV) Ops() []KVOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]KVOp(nil), f.ops...)
}

func (f *FailingKV) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return "", false, ErrInjected
	}
	return f.Store.Get(ctx, key)
}

func (f *FailingKV) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	f.ops = append(f.ops, KVOp{Kind: "set", Key: key, Value: value})
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Store.Set(ctx, key, value)
}

func (f *FailingKV) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	f.ops = append(f.ops, KVOp{Kind: "remove", Key: key})
	fail := f.failRemove
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Store.Remove(ctx, key)
}

// StubProvider is a scriptable provider.Provider. Searches for a gated term
// block until the gate is released or the context is canceled.
type StubProvider struct {
	mu           sync.Mutex
	ignoreCancel bool
	calls        []string
	results      map[string][]provider.Result
	errs         map[string]error
	gates        map[string]chan struct{}
}

// NewStubProvider returns a provider that answers every term with no results.
func NewStubProvider() *StubProvider {
	return &StubProvider{
		results: make(map[string][]provider.Result),
		errs:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
	}
}

// SetResults scripts the answer for term.
func (p *StubProvider) SetResults(term string, results ...provider.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[term] = results
	delete(p.errs, term)
}

// SetError makes searches for term fail with err.
func (p *StubProvider) SetError(term string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[term] = err
}

// Gate blocks searches for term until the returned release is called.
func (p *StubProvider) Gate(term string) (release func()) {
	ch := make(chan struct{})
	p.mu.Lock()
	p.gates[term] = ch
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}

// IgnoreCancellation makes gated searches wait for their gate even after
// their context is canceled, like a backend that cannot abort a request.
func (p *StubProvider) IgnoreCancellation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ignoreCancel = true
}

// Calls returns the searched terms in call order.
func (p *StubProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *StubProvider) Search(ctx context.Context, term string) ([]provider.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, term)
	gate := p.gates[term]
	ignoreCancel := p.ignoreCancel
	p.mu.Unlock()

	if gate != nil && ignoreCancel {
		<-gate
	} else if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.errs[term]; ok {
		return nil, err
	}
	return append([]provider.Result{}, p.results[term]...), nil
}
