package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spideyz0r/searchbar/pkg/backup"
	"github.com/spideyz0r/searchbar/pkg/config"
	"github.com/spideyz0r/searchbar/pkg/crypto"
	"github.com/spideyz0r/searchbar/pkg/export"
	"github.com/spideyz0r/searchbar/pkg/kv"
	"github.com/spideyz0r/searchbar/pkg/picker"
	"github.com/spideyz0r/searchbar/pkg/query"
	"github.com/spideyz0r/searchbar/pkg/stats"
)

const (
	version = "0.1.0"
)

// exitCode is set by handlers that fail after deferred cleanup is queued.
var exitCode int

func main() {
	// Define flags
	queryCmd := flag.NewFlagSet("query", flag.ExitOnError)
	queryPick := queryCmd.Bool("pick", false, "Pick a result with the fuzzy finder")

	recentsCmd := flag.NewFlagSet("recents", flag.ExitOnError)
	recentsPick := recentsCmd.Bool("pick", false, "Pick a recent search with the fuzzy finder")

	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportFormat := exportCmd.String("format", "text", "Export format (text, json, csv)")
	exportOutput := exportCmd.String("output", "-", "Output file (- for stdout)")
	exportEncrypt := exportCmd.Bool("encrypt", false, "Encrypt the export with a passphrase")

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importFormat := importCmd.String("format", "auto", "Import format (auto, text, json, csv)")
	importInput := importCmd.String("input", "-", "Input file (- for stdin)")
	importDecrypt := importCmd.Bool("decrypt", false, "Decrypt the import with a passphrase")

	backupCmd := flag.NewFlagSet("backup", flag.ExitOnError)
	backupList := backupCmd.Bool("list", false, "List existing backups")
	backupKeep := backupCmd.Int("keep", 5, "Number of backups to keep (0 = keep all)")

	if len(os.Args) < 2 {
		handleInteractive()
		os.Exit(exitCode)
	}

	switch os.Args[1] {
	case "interactive":
		handleInteractive()

	case "query":
		if err := queryCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing query flags: %v\n", err)
			os.Exit(1)
		}
		if queryCmd.NArg() == 0 {
			fmt.Fprintf(os.Stderr, "Error: query requires a search term\n")
			os.Exit(1)
		}
		handleQuery(strings.Join(queryCmd.Args(), " "), *queryPick)

	case "recents", "--recents":
		if err := recentsCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing recents flags: %v\n", err)
			os.Exit(1)
		}
		handleRecents(strings.Join(recentsCmd.Args(), " "), *recentsPick)

	case "add":
		handleAdd(strings.Join(os.Args[2:], " "))

	case "remove":
		handleRemove(strings.Join(os.Args[2:], " "))

	case "clear":
		handleClear()

	case "--stats", "stats":
		handleStats()

	case "--export", "export":
		if err := exportCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing export flags: %v\n", err)
			os.Exit(1)
		}
		handleExport(*exportFormat, *exportOutput, *exportEncrypt)

	case "--import", "import":
		if err := importCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing import flags: %v\n", err)
			os.Exit(1)
		}
		handleImport(*importFormat, *importInput, *importDecrypt)

	case "--backup", "backup":
		if err := backupCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing backup flags: %v\n", err)
			os.Exit(1)
		}
		handleBackup(*backupList, *backupKeep)

	case "--restore", "restore":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: restore requires a backup file\n")
			os.Exit(1)
		}
		handleRestore(os.Args[2])

	case "--init":
		handleInit()

	case "--version", "-v":
		fmt.Printf("searchbar version %s\n", version)

	case "--help", "-h", "help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	os.Exit(exitCode)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func handleQuery(term string, pick bool) {
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

	c := query.New(p, a.cfg.Search.MinQueryLength, query.WithLogger(a.log))
	defer c.Close()

	c.Update(term, true)
	if !c.Active() {
		fmt.Fprintf(os.Stderr, "Error: %q is shorter than the minimum query length (%d)\n", term, a.cfg.Search.MinQueryLength)
		exitCode = 1
		return
	}

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return
	}

	state := c.State()
	if state.Status == query.Error {
		fmt.Fprintf(os.Stderr, "Error searching: %s\n", state.Err)
		exitCode = 1
		return
	}

	if len(state.Results) == 0 {
		fmt.Fprintf(os.Stderr, "No results for %q\n", term)
		a.store.Add(ctx, term)
		return
	}

	if !pick {
		for _, r := range state.Results {
			fmt.Println(r.Title)
		}
		a.store.Add(ctx, term)
		return
	}

	selected, err := picker.PickResult(state.Results, "")
	if err != nil {
		// User canceled or error - exit silently
		return
	}
	a.store.Add(ctx, selected.Title)
	fmt.Println(selected.Title)
}

func handleRecents(filter string, pick bool) {
	ctx := context.Background()
	a := mustOpen(ctx)
	defer a.close()

	terms := a.store.List()
	if len(terms) == 0 {
		fmt.Fprintf(os.Stderr, "No recent searches found\n")
		return
	}

	if !pick {
		lower := strings.ToLower(filter)
		for _, t := range terms {
			if strings.Contains(strings.ToLower(t), lower) {
				fmt.Println(t)
			}
		}
		return
	}

	selected, err := picker.PickRecent(terms, filter)
	if err != nil {
		if !errors.Is(err, picker.ErrAborted) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return
	}
	// Selecting a recent search runs it again, so it moves to the front.
	a.store.Add(ctx, selected)
	fmt.Println(selected)
}

func handleAdd(term string) {
	if strings.TrimSpace(term) == "" {
		fmt.Fprintf(os.Stderr, "Error: add requires a search term\n")
		os.Exit(1)
	}

	ctx := context.Background()
	a := mustOpen(ctx)
	defer a.close()

	a.store.Add(ctx, term)
}

func handleRemove(term string) {
	if term == "" {
		fmt.Fprintf(os.Stderr, "Error: remove requires a search term\n")
		os.Exit(1)
	}

	ctx := context.Background()
	a := mustOpen(ctx)
	defer a.close()

	before := len(a.store.List())
	a.store.Remove(ctx, term)
	if len(a.store.List()) == before {
		fmt.Fprintf(os.Stderr, "No recent search matches %q\n", term)
	}
}

func handleClear() {
	ctx := context.Background()
	a := mustOpen(ctx)
	defer a.close()

	a.store.Clear(ctx)
	fmt.Fprintf(os.Stderr, "Cleared recent searches\n")
}

func handleInit() {
	fmt.Println("searchbar - Setup")
	fmt.Println("=================")
	fmt.Println()

	// Load or create config
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	dir := config.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", dir, err)
		os.Exit(1)
	}
	fmt.Printf("✓ Created directory: %s\n", dir)

	// Initialize database
	db, err := kv.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing database: %v\n", err)
		os.Exit(1)
	}
	if f, ok := db.(interface{ Path() string }); ok {
		fmt.Printf("✓ Initialized database: %s\n", f.Path())
	} else {
		fmt.Printf("✓ Using in-memory storage\n")
	}
	_ = db.Close()

	// Save default config if it doesn't exist
	configPath := config.DefaultPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.Save(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Created config file: %s\n", configPath)
	} else {
		fmt.Printf("✓ Config file already exists: %s\n", configPath)
	}

	successMsg := "SUCCESS! Run searchbar to start searching."
	fmt.Println("\n" + strings.Repeat("=", len(successMsg)))
	fmt.Println(successMsg)
	fmt.Println(strings.Repeat("=", len(successMsg)) + "\n")
}

func handleStats() {
	a := mustOpen(context.Background())
	defer a.close()

	statistics := stats.Collect(a.store.List(), a.cfg.Search.MaxRecentSearches)
	fmt.Println(statistics.Format(10))
}

// exportWithEncryption exports terms to a buffer, encrypts it, and writes to the writer
func exportWithEncryption(terms []string, writer io.Writer, format export.Format) error {
	var buf bytes.Buffer
	if err := export.Export(&buf, terms, format); err != nil {
		return fmt.Errorf("error exporting: %w", err)
	}

	pass, err := passphrase(true)
	if err != nil {
		return err
	}

	encrypted, err := crypto.Encrypt(buf.Bytes(), pass)
	if err != nil {
		return fmt.Errorf("error encrypting: %w", err)
	}

	if _, err := writer.Write(encrypted); err != nil {
		return fmt.Errorf("error writing encrypted data: %w", err)
	}

	return nil
}

func handleExport(formatStr, outputPath string, encrypt bool) {
	format, err := export.ParseFormat(formatStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	a := mustOpen(context.Background())
	defer a.close()

	// Determine output writer
	var writer *os.File
	if outputPath == "-" || outputPath == "" {
		writer = os.Stdout
	} else {
		writer, err = os.Create(outputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
			exitCode = 1
			return
		}
		defer func() {
			_ = writer.Close()
		}()
	}

	terms := a.store.List()
	if encrypt {
		if err := exportWithEncryption(terms, writer, format); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = 1
			return
		}
	} else if err := export.Export(writer, terms, format); err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
		exitCode = 1
		return
	}

	// Print success message to stderr if writing to file
	if outputPath != "-" && outputPath != "" {
		if encrypt {
			fmt.Fprintf(os.Stderr, "Exported and encrypted to %s\n", outputPath)
		} else {
			fmt.Fprintf(os.Stderr, "Exported to %s\n", outputPath)
		}
	}
}

// decryptReader reads encrypted data from a reader and returns a reader with decrypted data
func decryptReader(reader io.Reader) (io.Reader, error) {
	encryptedData, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading encrypted data: %w", err)
	}

	pass, err := passphrase(false)
	if err != nil {
		return nil, err
	}

	decrypted, err := crypto.Decrypt(encryptedData, pass)
	if err != nil {
		return nil, fmt.Errorf("error decrypting: %w", err)
	}

	return bytes.NewReader(decrypted), nil
}

func handleImport(formatStr, inputPath string, decrypt bool) {
	ctx := context.Background()
	a := mustOpen(ctx)
	defer a.close()

	var reader io.Reader
	if inputPath == "-" || inputPath == "" {
		reader = os.Stdin
	} else {
		file, err := os.Open(inputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening input file: %v\n", err)
			exitCode = 1
			return
		}
		defer func() {
			if err := file.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Error closing input file: %v\n", err)
			}
		}()
		reader = file
	}

	if decrypt {
		var err error
		reader, err = decryptReader(reader)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = 1
			return
		}
	}

	var format export.Format
	if formatStr == "auto" {
		detected, r, err := export.DetectFormat(reader)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error detecting format: %v\n", err)
			exitCode = 1
			return
		}
		fmt.Fprintf(os.Stderr, "Auto-detected format: %s\n", detected)
		format, reader = detected, r
	} else {
		var err error
		format, err = export.ParseFormat(formatStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = 1
			return
		}
	}

	count, err := export.Import(ctx, a.store, reader, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
		exitCode = 1
		return
	}

	fmt.Fprintf(os.Stderr, "Imported %d searches\n", count)
}

func backupDir() string {
	return filepath.Join(config.Dir(), "backups")
}

func handleBackup(list bool, keep int) {
	if list {
		backups, err := backup.List(backupDir())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing backups: %v\n", err)
			os.Exit(1)
		}
		if len(backups) == 0 {
			fmt.Fprintf(os.Stderr, "No backups found in %s\n", backupDir())
			return
		}
		for _, b := range backups {
			fmt.Printf("%s  %s  %8s  %s\n", b.Timestamp.Format("2006-01-02 15:04:05"), b.Hostname, backup.FormatSize(b.Size), b.Path)
		}
		return
	}

	a := mustOpen(context.Background())
	defer a.close()

	pass, err := passphrase(true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = 1
		return
	}

	info, err := backup.Create(a.store.List(), backupDir(), pass)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating backup: %v\n", err)
		exitCode = 1
		return
	}
	fmt.Fprintf(os.Stderr, "✓ Created backup: %s (%s)\n", info.Path, backup.FormatSize(info.Size))

	if err := backup.Rotate(backupDir(), keep); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not rotate backups: %v\n", err)
	}
}

func handleRestore(path string) {
	ctx := context.Background()
	a := mustOpen(ctx)
	defer a.close()

	pass, err := passphrase(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = 1
		return
	}

	terms, err := backup.Restore(path, pass)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error restoring backup: %v\n", err)
		exitCode = 1
		return
	}

	// The snapshot replaces the list; oldest first keeps its order.
	a.store.Clear(ctx)
	for i := len(terms) - 1; i >= 0; i-- {
		a.store.Add(ctx, terms[i])
	}
	fmt.Fprintf(os.Stderr, "Restored %d searches from %s\n", len(a.store.List()), path)
}

func printUsage() {
	fmt.Printf(`searchbar - Debounced search with recent searches
Version: %s

USAGE:
    searchbar [COMMAND] [OPTIONS]

COMMANDS:
    (none), interactive Open the interactive search bar
        Enter               Submit the typed search
        Ctrl-R              Pick a recent search
        Ctrl-O              Pick one of the current results
        Ctrl-G              Retry a failed search
        Ctrl-D              Remove the most recent search
        Ctrl-L              Clear recent searches
        Tab                 Focus the bar
        Esc                 Blur the bar
        Ctrl-C              Quit

    query <term>        Run one search and print the results
        --pick              Pick a result with the fuzzy finder

    recents [filter]    List recent searches, most recent first
        --pick              Pick one with the fuzzy finder

    add <term>          Record a search
    remove <term>       Remove a recent search (exact match)
    clear               Remove all recent searches

    --stats             Show statistics about your recent searches

    --export            Export recent searches
        --format <fmt>      Format: text, json, csv (default: text)
        --output <file>     Output file (default: stdout)
        --encrypt           Encrypt the export with AES-256-GCM

    --import            Import recent searches from file
        --format <fmt>      Format: auto, text, json, csv (default: auto)
        --input <file>      Input file (default: stdin)
        --decrypt           Decrypt the import (AES-256-GCM)

    --backup            Write an encrypted snapshot to ~/.searchbar/backups
        --list              List backups instead
        --keep <n>          Backups to keep (default: 5, 0 = all)

    --restore <file>    Replace recent searches with a backup

    --init              Create ~/.searchbar, the database and config
    --version, -v       Show version
    --help, -h          Show this help

EXAMPLES:
    # First time setup
    searchbar --init

    # Search interactively
    searchbar

    # One-shot search, then pick a result
    searchbar query --pick react

    # Re-run a recent search
    searchbar recents --pick

    # Export recent searches as JSON
    searchbar --export --format json --output recent.json

    # Encrypted export and import
    searchbar --export --format json --output recent.json.enc --encrypt
    searchbar --import --input recent.json.enc --decrypt

ENVIRONMENT:
    SEARCHBAR_CONFIG        Config file (default: ~/.searchbar/config.yaml)
    SEARCHBAR_DB_PATH       Override database path (default: ~/.searchbar/recent.db)
    SEARCHBAR_PASSPHRASE    Passphrase for encrypted storage, exports and backups
    OPENAI_API_KEY          OpenAI API key (required for provider "openai")
`, version)
}
