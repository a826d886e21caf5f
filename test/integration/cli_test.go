package integration

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spideyz0r/searchbar/pkg/config"
	"github.com/spideyz0r/searchbar/pkg/kv"
	"github.com/spideyz0r/searchbar/pkg/recent"
	"github.com/spideyz0r/searchbar/pkg/testutil"
)

// env is an isolated home directory for one test.
type env struct {
	t      *testing.T
	bin    string
	home   string
	extra  []string
	config string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	home := t.TempDir()
	e := &env{
		t:      t,
		bin:    buildBinary(t),
		home:   home,
		config: filepath.Join(home, ".searchbar", "config.yaml"),
	}

	// No simulated latency, so query returns at once.
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(home, ".searchbar", "recent.db")
	cfg.Provider.LatencyMs = 0
	require.NoError(t, cfg.Save(e.config))
	return e
}

func (e *env) setConfig(modify func(*config.Config)) {
	e.t.Helper()
	config.ClearCache()
	cfg, err := config.Load(e.config)
	require.NoError(e.t, err)
	c := *cfg
	modify(&c)
	require.NoError(e.t, c.Save(e.config))
}

// run executes the binary and returns stdout and stderr.
func (e *env) run(stdin string, args ...string) (string, string, error) {
	e.t.Helper()
	cmd := exec.Command(e.bin, args...)
	cmd.Env = append([]string{
		"HOME=" + e.home,
		"PATH=" + os.Getenv("PATH"),
	}, e.extra...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func (e *env) mustRun(args ...string) string {
	e.t.Helper()
	stdout, stderr, err := e.run("", args...)
	require.NoError(e.t, err, "searchbar %s failed: %s", strings.Join(args, " "), stderr)
	return stdout
}

func (e *env) recents() []string {
	e.t.Helper()
	out := strings.TrimSpace(e.mustRun("recents"))
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// persisted reads the stored list straight from the database.
func (e *env) persisted() []string {
	e.t.Helper()
	db, err := kv.OpenSQLite(filepath.Join(e.home, ".searchbar", "recent.db"))
	require.NoError(e.t, err)
	defer db.Close()

	raw, ok, err := db.Get(context.Background(), recent.StorageKey)
	require.NoError(e.t, err)
	if !ok {
		return nil
	}
	var terms []string
	require.NoError(e.t, json.Unmarshal([]byte(raw), &terms))
	return terms
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	assert.Contains(t, e.mustRun("--version"), "searchbar version")
}

func TestHelp(t *testing.T) {
	e := newEnv(t)
	out := e.mustRun("--help")
	assert.Contains(t, out, "USAGE:")
	assert.Contains(t, out, "SEARCHBAR_PASSPHRASE")
}

func TestUnknownCommand(t *testing.T) {
	e := newEnv(t)
	_, stderr, err := e.run("", "frobnicate")
	assert.Error(t, err)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)
}

// TestInitCommand tests the --init command in a fresh home
func TestInitCommand(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.RemoveAll(filepath.Join(e.home, ".searchbar")))

	out := e.mustRun("--init")
	assert.Contains(t, out, "✓ Created directory")
	assert.Contains(t, out, "✓ Initialized database: "+filepath.Join(e.home, ".searchbar", "recent.db"))
	assert.Contains(t, out, "✓ Created config file")
	assert.DirExists(t, filepath.Join(e.home, ".searchbar"))
	assert.FileExists(t, filepath.Join(e.home, ".searchbar", "recent.db"))
	assert.FileExists(t, e.config)

	// Running it again keeps the config.
	out = e.mustRun("--init")
	assert.Contains(t, out, "✓ Config file already exists")
}

func TestRecentsLifecycle(t *testing.T) {
	e := newEnv(t)

	e.mustRun("add", "docker")
	e.mustRun("add", "git", "rebase")
	e.mustRun("add", "  DOCKER ")
	assert.Equal(t, []string{"DOCKER", "git rebase"}, e.recents())
	assert.Equal(t, []string{"DOCKER", "git rebase"}, e.persisted())

	// Filter is case-insensitive.
	assert.Equal(t, "git rebase\n", e.mustRun("recents", "REB"))

	// Remove is exact.
	_, stderr, err := e.run("", "remove", "docker")
	require.NoError(t, err)
	assert.Contains(t, stderr, `No recent search matches "docker"`)
	e.mustRun("remove", "DOCKER")
	assert.Equal(t, []string{"git rebase"}, e.recents())

	e.mustRun("clear")
	assert.Empty(t, e.recents())
	assert.Nil(t, e.persisted())
}

func TestAddBlankFails(t *testing.T) {
	e := newEnv(t)
	_, stderr, err := e.run("", "add", "   ")
	assert.Error(t, err)
	assert.Contains(t, stderr, "add requires a search term")
}

func TestRecentsBound(t *testing.T) {
	e := newEnv(t)
	e.setConfig(func(c *config.Config) { c.Search.MaxRecentSearches = 3 })

	for _, term := range []string{"a", "b", "c", "d"} {
		e.mustRun("add", term)
	}
	assert.Equal(t, []string{"d", "c", "b"}, e.recents())
}

func TestBoltBackend(t *testing.T) {
	e := newEnv(t)
	e.setConfig(func(c *config.Config) {
		c.Storage.Backend = kv.BackendBolt
		c.Storage.Path = filepath.Join(e.home, ".searchbar", "recent.bolt")
	})

	e.mustRun("add", "kubernetes")
	assert.Equal(t, []string{"kubernetes"}, e.recents())
	assert.FileExists(t, filepath.Join(e.home, ".searchbar", "recent.bolt"))
}

func TestDBPathOverride(t *testing.T) {
	e := newEnv(t)
	override := filepath.Join(t.TempDir(), "other.db")
	e.extra = []string{config.EnvDBPath + "=" + override}

	e.mustRun("add", "elsewhere")
	assert.FileExists(t, override)
	assert.Nil(t, e.persisted())
}

func TestQuery(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun("query", "expo")
	assert.Equal(t, "Expo Configuration\nStyling in Expo\n", out)
	assert.Equal(t, []string{"expo"}, e.recents())

	_, stderr, err := e.run("", "query", "zzzz")
	require.NoError(t, err)
	assert.Contains(t, stderr, `No results for "zzzz"`)
	assert.Equal(t, []string{"zzzz", "expo"}, e.recents())
}

func TestQueryBelowMinimumLength(t *testing.T) {
	e := newEnv(t)
	e.setConfig(func(c *config.Config) { c.Search.MinQueryLength = 3 })

	_, stderr, err := e.run("", "query", "go")
	assert.Error(t, err)
	assert.Contains(t, stderr, "shorter than the minimum query length (3)")
	assert.Empty(t, e.recents())
}

func TestQueryRecentsProvider(t *testing.T) {
	e := newEnv(t)
	e.setConfig(func(c *config.Config) { c.Provider.Name = "recents" })

	e.mustRun("add", "Go modules")
	e.mustRun("add", "python venv")
	assert.Equal(t, "Go modules\n", e.mustRun("query", "mod"))
}

func TestCatalogFile(t *testing.T) {
	e := newEnv(t)
	catalog := testutil.TempFile(t, t.TempDir(), "titles.txt", "Rust Ownership\nRust Lifetimes\nGo Channels\n")
	e.setConfig(func(c *config.Config) { c.Provider.CatalogPath = catalog })

	assert.Equal(t, "Rust Ownership\nRust Lifetimes\n", e.mustRun("query", "rust"))
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, format := range []string{"text", "json", "csv"} {
		t.Run(format, func(t *testing.T) {
			e := newEnv(t)
			for _, term := range []string{"one", "two", "three"} {
				e.mustRun("add", term)
			}

			file := filepath.Join(t.TempDir(), "recent."+format)
			_, stderr, err := e.run("", "--export", "--format", format, "--output", file)
			require.NoError(t, err)
			assert.Contains(t, stderr, "Exported to "+file)

			e.mustRun("clear")
			_, stderr, err = e.run("", "--import", "--input", file)
			require.NoError(t, err)
			assert.Contains(t, stderr, "Auto-detected format: "+format)
			assert.Contains(t, stderr, "Imported 3 searches")

			assert.Equal(t, []string{"three", "two", "one"}, e.recents())
		})
	}
}

func TestImportFromStdin(t *testing.T) {
	e := newEnv(t)
	_, stderr, err := e.run("older\nnewer\n", "--import", "--format", "text")
	require.NoError(t, err, stderr)
	assert.Equal(t, []string{"older", "newer"}, e.recents())
}

func TestEncryptedExport(t *testing.T) {
	e := newEnv(t)
	e.extra = []string{config.EnvPassphrase + "=correct horse"}
	e.mustRun("add", "secret search")

	file := filepath.Join(t.TempDir(), "recent.json.enc")
	e.mustRun("--export", "--format", "json", "--output", file, "--encrypt")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret search")

	e.mustRun("clear")
	e.mustRun("--import", "--input", file, "--decrypt")
	assert.Equal(t, []string{"secret search"}, e.recents())

	e.extra = []string{config.EnvPassphrase + "=wrong"}
	_, stderr, err := e.run("", "--import", "--input", file, "--decrypt")
	assert.Error(t, err)
	assert.Contains(t, stderr, "error decrypting")
}

func TestEncryptedStorage(t *testing.T) {
	e := newEnv(t)
	e.setConfig(func(c *config.Config) { c.Storage.Encrypt = true })
	e.extra = []string{config.EnvPassphrase + "=hunter2"}

	e.mustRun("add", "private")
	assert.Equal(t, []string{"private"}, e.recents())

	// The value on disk is not plain JSON.
	db, err := kv.OpenSQLite(filepath.Join(e.home, ".searchbar", "recent.db"))
	require.NoError(t, err)
	raw, ok, err := db.Get(context.Background(), recent.StorageKey)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.True(t, ok)
	assert.NotContains(t, raw, "private")

	// A wrong passphrase is refused before anything is written.
	e.extra = []string{config.EnvPassphrase + "=wrong"}
	_, stderr, err := e.run("", "add", "oops")
	require.Error(t, err)
	assert.Contains(t, stderr, "wrong passphrase")

	e.extra = []string{config.EnvPassphrase + "=hunter2"}
	assert.Equal(t, []string{"private"}, e.recents())
}

func TestBackupAndRestore(t *testing.T) {
	e := newEnv(t)
	e.extra = []string{config.EnvPassphrase + "=backup-pass"}
	e.mustRun("add", "first")
	e.mustRun("add", "second")

	_, stderr, err := e.run("", "--backup")
	require.NoError(t, err)
	assert.Contains(t, stderr, "✓ Created backup")

	out := e.mustRun("--backup", "--list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	fields := strings.Fields(lines[0])
	path := fields[len(fields)-1]
	assert.FileExists(t, path)

	e.mustRun("add", "third")
	_, stderr, err = e.run("", "--restore", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Restored 2 searches")
	assert.Equal(t, []string{"second", "first"}, e.recents())
}

func TestStats(t *testing.T) {
	e := newEnv(t)
	e.mustRun("add", "react hooks")
	e.mustRun("add", "react native")

	out := e.mustRun("--stats")
	assert.Contains(t, out, "Recent Searches:  2 of 10")
	assert.Contains(t, out, "react")
}

func TestInteractiveNeedsTerminal(t *testing.T) {
	e := newEnv(t)
	_, stderr, err := e.run("")
	assert.Error(t, err)
	assert.Contains(t, stderr, "interactive mode needs a terminal")
}

// buildBinary builds the searchbar binary once and returns its path
func buildBinary(t *testing.T) string {
	t.Helper()

	binaryPath := "../../build/searchbar"
	if _, err := os.Stat(binaryPath); err == nil {
		abs, _ := filepath.Abs(binaryPath)
		return abs
	}

	t.Log("Building searchbar binary...")
	cmd := exec.Command("go", "build", "-o", "build/searchbar", "./cmd/searchbar")
	cmd.Dir = "../.."
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Logf("Build output: %s", output)
		t.Fatalf("failed to build searchbar: %v", err)
	}

	abs, err := filepath.Abs(binaryPath)
	require.NoError(t, err)
	return abs
}
