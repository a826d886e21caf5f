package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/spideyz0r/searchbar/pkg/config"
	"github.com/spideyz0r/searchbar/pkg/kv"
	"github.com/spideyz0r/searchbar/pkg/logging"
	"github.com/spideyz0r/searchbar/pkg/provider"
	"github.com/spideyz0r/searchbar/pkg/recent"
)

// app bundles what every subcommand opens: config, logger, the kv store
// and the recent-searches list on top of it.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	db       kv.Store
	store    *recent.Store
	logClose io.Closer
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, logClose, err := logging.New(logging.Options{Level: cfg.Log.Level, Path: cfg.Log.Path})
	if err != nil {
		return nil, err
	}

	db, err := kv.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		_ = logClose.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Storage.Encrypt {
		pass, err := passphrase(false)
		if err != nil {
			_ = db.Close()
			_ = logClose.Close()
			return nil, err
		}
		enc, err := kv.NewEncrypted(ctx, db, pass)
		if err != nil {
			_ = db.Close()
			_ = logClose.Close()
			return nil, fmt.Errorf("failed to unlock database: %w", err)
		}
		db = enc
	}

	store := recent.New(db,
		recent.WithKey(cfg.Storage.Key),
		recent.WithMax(cfg.Search.MaxRecentSearches),
		recent.WithLogger(logger),
	)
	store.Load(ctx)

	return &app{cfg: cfg, log: logger, db: db, store: store, logClose: logClose}, nil
}

// mustOpen opens the app or exits.
func mustOpen(ctx context.Context) *app {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return a
}

// Close drains pending writes before closing the database.
func (a *app) Close() error {
	return errors.Join(a.store.Close(), a.db.Close(), a.logClose.Close())
}

func (a *app) close() {
	if err := a.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing database: %v\n", err)
	}
}

// newProvider builds the configured search backend.
func newProvider(cfg *config.Config, store *recent.Store) (provider.Provider, error) {
	var p provider.Provider
	switch cfg.Provider.Name {
	case "openai":
		ai, err := provider.NewOpenAI(cfg.Provider.Model, 0)
		if err != nil {
			return nil, err
		}
		p = ai
	case "recents":
		p = provider.NewRecents(store)
	default:
		var titles []string
		if cfg.Provider.CatalogPath != "" {
			var err error
			titles, err = provider.LoadCatalog(cfg.Provider.CatalogPath)
			if err != nil {
				return nil, err
			}
		}
		p = provider.NewCatalog(titles, cfg.Latency())
	}
	return provider.WithTimeout(p, cfg.Timeout()), nil
}

// passphrase returns SEARCHBAR_PASSPHRASE when set, otherwise prompts for
// one, twice when confirm is set.
func passphrase(confirm bool) (string, error) {
	if pass := os.Getenv(config.EnvPassphrase); pass != "" {
		return pass, nil
	}
	if confirm {
		return promptForPassphrase()
	}
	return promptForDecryptPassphrase()
}

func promptForPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "Enter passphrase for encryption: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("error reading passphrase: %w", err)
	}

	if len(pass) == 0 {
		return "", fmt.Errorf("passphrase cannot be empty")
	}

	fmt.Fprint(os.Stderr, "Confirm passphrase: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("error reading passphrase confirmation: %w", err)
	}

	if !bytes.Equal(pass, confirm) {
		return "", fmt.Errorf("passphrases do not match")
	}

	return string(pass), nil
}

func promptForDecryptPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "Enter passphrase to decrypt: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("error reading passphrase: %w", err)
	}

	if len(pass) == 0 {
		return "", fmt.Errorf("passphrase cannot be empty")
	}

	return string(pass), nil
}
