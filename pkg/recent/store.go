// Package recent keeps the bounded, most-recent-first list of past search
// terms and persists it to a kv.Store.
package recent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spideyz0r/searchbar/pkg/kv"
	"github.com/spideyz0r/searchbar/pkg/logging"
)

const (
	// MaxRecentSearches is the default bound on the list length.
	MaxRecentSearches = 10

	// StorageKey is the default key the list is persisted under.
	StorageKey = "@app_recent_searches"

	writeTimeout = 5 * time.Second
)

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// WithMax overrides the maximum number of kept terms.
func WithMax(max int) Option {
	return func(s *Store) {
		if max > 0 {
			s.max = max
		}
	}
}

// WithLogger sets the logger used for storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.log = logger
	}
}

// writeOp is one queued storage write. remove deletes the key instead of
// setting it to value.
type writeOp struct {
	remove bool
	value  string
}

// Store is the recent-searches list. The in-memory list is the source of
// truth; every mutation queues a storage write that a single writer
// goroutine issues in call order.
type Store struct {
	kv  kv.Store
	key string
	max int
	log *slog.Logger

	mu     sync.Mutex
	terms  []string
	loaded bool

	queue   []writeOp
	writing bool
	idle    *sync.Cond
	closed  bool
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// New creates a Store over store. Call Load (or any mutator, which loads
// lazily) before reading the list.
func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:   store,
		key:  StorageKey,
		max:  MaxRecentSearches,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.Component(s.log, "recent")
	s.idle = sync.NewCond(&s.mu)

	go s.run()
	return s
}

// Load reads the persisted list once. Missing, corrupt or unreadable data
// leaves the list empty; the store counts as loaded either way.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true

	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.log.Error("failed to load recent searches", "error", err)
		return
	}
	if !ok {
		return
	}

	var terms []string
	if err := json.Unmarshal([]byte(raw), &terms); err != nil {
		s.log.Warn("ignoring corrupt recent searches", "error", err)
		return
	}
	s.terms = normalize(terms, s.max)
}

// Loaded reports whether Load has run.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// List returns a copy of the terms, most recent first.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.terms))
	copy(out, s.terms)
	return out
}

// Add moves term to the front, replacing any entry equal to it ignoring
// case. Blank terms are ignored.
func (s *Store) Add(ctx context.Context, term string) {
	term = strings.TrimSpace(term)
	if term == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)

	terms := make([]string, 0, len(s.terms)+1)
	terms = append(terms, term)
	for _, t := range s.terms {
		if !strings.EqualFold(t, term) {
			terms = append(terms, t)
		}
	}
	if len(terms) > s.max {
		terms = terms[:s.max]
	}
	s.terms = terms
	s.persistLocked()
}

// Remove deletes every entry exactly equal to term.
func (s *Store) Remove(ctx context.Context, term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)

	terms := make([]string, 0, len(s.terms))
	for _, t := range s.terms {
		if t != term {
			terms = append(terms, t)
		}
	}
	s.terms = terms
	s.persistLocked()
}

// Clear empties the list and deletes the persisted key.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)

	s.terms = nil
	s.enqueueLocked(writeOp{remove: true})
}

// Flush blocks until every queued write has been issued.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 || s.writing {
		s.idle.Wait()
	}
}

// Close flushes pending writes and stops the writer. It does not close the
// underlying kv.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done
	return nil
}

func (s *Store) persistLocked() {
	data, err := json.Marshal(s.terms)
	if err != nil {
		s.log.Error("failed to encode recent searches", "error", err)
		return
	}
	s.enqueueLocked(writeOp{value: string(data)})
}

func (s *Store) enqueueLocked(op writeOp) {
	if s.closed {
		s.log.Warn("store closed, dropping recent searches write")
		return
	}
	s.queue = append(s.queue, op)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) run() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.stop:
			s.drain()
			return
		}
	}
}

func (s *Store) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.writing = false
			s.idle.Broadcast()
			s.mu.Unlock()
			return
		}
		op := s.queue[0]
		s.queue = s.queue[1:]
		s.writing = true
		s.mu.Unlock()

		s.write(op)
	}
}

func (s *Store) write(op writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if op.remove {
		if err := s.kv.Remove(ctx, s.key); err != nil {
			s.log.Error("failed to clear recent searches", "error", err)
		}
		return
	}
	if err := s.kv.Set(ctx, s.key, op.value); err != nil {
		s.log.Error("failed to save recent searches", "error", err)
	}
}

// normalize applies the list invariants to data read from storage, which
// may have been written by something else.
func normalize(terms []string, max int) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		dup := false
		for _, kept := range out {
			if strings.EqualFold(kept, t) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, t)
		}
		if len(out) == max {
			break
		}
	}
	return out
}
