package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/term"

	"github.com/spideyz0r/searchbar/pkg/config"
	"github.com/spideyz0r/searchbar/pkg/picker"
	"github.com/spideyz0r/searchbar/pkg/provider"
	"github.com/spideyz0r/searchbar/pkg/query"
	"github.com/spideyz0r/searchbar/pkg/recent"
	"github.com/spideyz0r/searchbar/pkg/searchbar"
)

// Keys read from a raw terminal.
const (
	keyCtrlC     rune = 3
	keyCtrlD     rune = 4
	keyCtrlG     rune = 7
	keyCtrlH     rune = 8
	keyTab       rune = 9
	keyCtrlL     rune = 12
	keyEnter     rune = 13
	keyCtrlO     rune = 15
	keyCtrlR     rune = 18
	keyEsc       rune = 27
	keyBackspace rune = 127

	// keyIgnore stands for escape sequences such as arrow keys.
	keyIgnore rune = -1
)

const footer = "Enter search · Ctrl-R recents · Ctrl-O results · Esc blur · Ctrl-C quit"

// session drives a Bar from terminal key presses and redraws it on every
// change.
type session struct {
	store *recent.Store
	out   io.Writer
	log   *slog.Logger

	pickRecent func(terms []string, preFilter string) (string, error)
	pickResult func(results []provider.Result, preFilter string) (provider.Result, error)
	// suspend hands the terminal to a picker; the returned func takes it back.
	suspend func() (resume func())

	mu     sync.Mutex
	bar    *searchbar.Bar
	last   string
	status string
}

func newSession(store *recent.Store, out io.Writer, logger *slog.Logger) *session {
	return &session{
		store:      store,
		out:        out,
		log:        logger,
		pickRecent: picker.PickRecent,
		pickResult: picker.PickResult,
		suspend:    func() func() { return func() {} },
	}
}

// barOptions maps config onto Bar options. Zero in the config means "off",
// while a zero option means "default".
func barOptions(cfg *config.Config) searchbar.Options {
	return searchbar.Options{
		MinQueryLength: orOff(cfg.Search.MinQueryLength, searchbar.NoMinQueryLength),
		DebounceDelay:  orOff(cfg.DebounceDelay(), searchbar.NoDebounce),
		BlurGrace:      orOff(cfg.BlurGrace(), searchbar.NoBlurGrace),
	}
}

func orOff[T int | time.Duration](v, off T) T {
	if v == 0 {
		return off
	}
	return v
}

func (s *session) attach(b *searchbar.Bar) {
	s.mu.Lock()
	s.bar = b
	s.mu.Unlock()
}

func (s *session) submitted(term string) {
	s.mu.Lock()
	s.last = term
	s.mu.Unlock()
	s.log.Info("search submitted", "term", term)
}

// draw renders the bar. Views can arrive from timer and fetch goroutines,
// so the latest one is re-read under the session lock.
func (s *session) draw(v searchbar.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		v = s.bar.View()
	}
	_, _ = io.WriteString(s.out, render(v, s.last, s.status))
}

func (s *session) redraw() {
	s.draw(searchbar.View{})
}

func (s *session) setStatus(msg string) {
	s.mu.Lock()
	s.status = msg
	s.mu.Unlock()
	s.redraw()
}

// run reads keys until Ctrl-C, EOF or ctx is done.
func (s *session) run(ctx context.Context, in io.Reader) error {
	br := bufio.NewReader(in)
	s.bar.Focus()
	for ctx.Err() == nil {
		r, err := readKey(br)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if s.handle(r) {
			return nil
		}
	}
	return nil
}

// handle applies one key and reports whether the session should end.
func (s *session) handle(r rune) bool {
	s.mu.Lock()
	s.status = ""
	s.mu.Unlock()

	switch r {
	case keyCtrlC:
		return true
	case keyEnter, '\n':
		s.bar.Submit()
	case keyTab:
		s.bar.Focus()
	case keyEsc:
		s.bar.Blur()
	case keyBackspace, keyCtrlH:
		text := []rune(s.bar.View().Text)
		if len(text) > 0 {
			s.bar.Focus()
			s.bar.SetText(string(text[:len(text)-1]))
		}
	case keyCtrlR:
		s.chooseRecent()
	case keyCtrlO:
		s.chooseResult()
	case keyCtrlG:
		s.bar.Retry()
	case keyCtrlD:
		if terms := s.store.List(); len(terms) > 0 {
			s.bar.RemoveRecent(terms[0])
		}
	case keyCtrlL:
		s.bar.ClearRecents()
	case keyIgnore:
	default:
		if unicode.IsPrint(r) {
			s.bar.Focus()
			s.bar.SetText(s.bar.View().Text + string(r))
		}
	}
	return false
}

func (s *session) chooseRecent() {
	terms := s.store.List()
	if len(terms) == 0 {
		s.setStatus("No recent searches")
		return
	}

	resume := s.suspend()
	term, err := s.pickRecent(terms, "")
	resume()
	if err != nil {
		s.pickFailed(err)
		return
	}

	s.bar.Focus()
	s.bar.SelectRecent(term)
}

func (s *session) chooseResult() {
	v := s.bar.View()
	if v.Mode != searchbar.ShowingResults || v.Query.Status != query.Success || len(v.Query.Results) == 0 {
		s.setStatus("No results to pick")
		return
	}

	resume := s.suspend()
	r, err := s.pickResult(v.Query.Results, "")
	resume()
	if err != nil {
		s.pickFailed(err)
		return
	}

	s.bar.Focus()
	s.bar.SelectResult(r)
}

func (s *session) pickFailed(err error) {
	if errors.Is(err, picker.ErrAborted) {
		s.redraw()
		return
	}
	s.setStatus(err.Error())
}

// readKey reads one key. Escape sequences collapse to keyIgnore; a lone
// Esc is returned as keyEsc.
func readKey(br *bufio.Reader) (rune, error) {
	r, _, err := br.ReadRune()
	if err != nil || r != keyEsc {
		return r, err
	}
	if br.Buffered() == 0 {
		return keyEsc, nil
	}
	next, err := br.Peek(1)
	if err != nil || (next[0] != '[' && next[0] != 'O') {
		return keyEsc, nil
	}
	_, _ = br.ReadByte()
	for {
		b, err := br.ReadByte()
		if err != nil {
			return keyIgnore, nil
		}
		if b >= 0x40 && b <= 0x7e {
			return keyIgnore, nil
		}
	}
}

// render draws a full screen for v in raw mode.
func render(v searchbar.View, last, status string) string {
	lines := []string{fmt.Sprintf("search> %s  [%s]", v.Text, v.Mode), ""}

	switch v.Mode {
	case searchbar.Blurred:
		lines = append(lines, "  (press Tab to search)")
	case searchbar.ShowingRecents:
		if len(v.Recents) == 0 {
			lines = append(lines, "  No recent searches")
			break
		}
		lines = append(lines, "  Recent searches:")
		for _, t := range v.Recents {
			lines = append(lines, "    "+t)
		}
	case searchbar.ShowingResults:
		switch v.Query.Status {
		case query.Error:
			lines = append(lines, fmt.Sprintf("  Error: %s (Ctrl-G to retry)", v.Query.Err))
		case query.Success:
			if len(v.Query.Results) == 0 {
				lines = append(lines, fmt.Sprintf("  No results for %q", v.Query.Term))
				break
			}
			for _, r := range v.Query.Results {
				lines = append(lines, "    "+r.Title)
			}
		default:
			lines = append(lines, "  Searching...")
		}
	case searchbar.Submitting:
		lines = append(lines, "  Submitting...")
	}

	if last != "" {
		lines = append(lines, "", "Last search: "+last)
	}
	if status != "" {
		lines = append(lines, "", status)
	}
	lines = append(lines, "", footer)

	return "\x1b[H\x1b[2J" + strings.Join(lines, "\r\n") + "\r\n"
}

func handleInteractive() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "Error: interactive mode needs a terminal; try \"searchbar query <term>\"\n")
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a := mustOpen(ctx)
	defer a.close()

	p, err := newProvider(a.cfg, a.store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating provider: %v\n", err)
		exitCode = 1
		return
	}

	s := newSession(a.store, os.Stdout, a.log)
	opts := barOptions(a.cfg)
	opts.Logger = a.log
	opts.OnSubmit = s.submitted
	opts.OnChange = s.draw

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error entering raw mode: %v\n", err)
		exitCode = 1
		return
	}
	restore := func() { _ = term.Restore(fd, oldState) }
	defer restore()
	s.suspend = func() func() {
		restore()
		return func() { _, _ = term.MakeRaw(fd) }
	}

	bar := searchbar.New(a.store, p, opts)
	defer bar.Close()
	s.attach(bar)

	if err := config.Watch(ctx, config.DefaultPath(), a.log, func(cfg *config.Config) {
		bar.SetMinQueryLength(cfg.Search.MinQueryLength)
	}); err != nil {
		a.log.Warn("config reload disabled", "error", err)
	}

	if err := s.run(ctx, os.Stdin); err != nil {
		restore()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = 1
		return
	}

	restore()
	fmt.Print("\x1b[H\x1b[2J")
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last != "" {
		fmt.Println(last)
	}
}
