package backup

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spideyz0r/searchbar/pkg/crypto"
	"github.com/spideyz0r/searchbar/pkg/export"
)

const (
	filePrefix = "recent"
	fileSuffix = ".json.enc"
	timeLayout = "20060102-150405"
)

// now is replaced in tests.
var now = time.Now

// BackupInfo contains information about a backup file
type BackupInfo struct {
	Path      string
	Filename  string
	Hostname  string
	Timestamp time.Time
	Size      int64
}

// Create writes an encrypted snapshot of terms to backupDir, named
// recent-{hostname}-{timestamp}.json.enc.
func Create(terms []string, backupDir, passphrase string) (*BackupInfo, error) {
	// Get hostname
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	// Dashes separate the name fields.
	hostname = strings.ReplaceAll(hostname, "-", "_")

	// Generate backup filename: recent-{hostname}-{timestamp}.json.enc
	ts := now()
	filename := fmt.Sprintf("%s-%s-%s%s", filePrefix, hostname, ts.Format(timeLayout), fileSuffix)
	backupPath := filepath.Join(backupDir, filename)

	// Ensure backup directory exists
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	// Serialize terms as JSON
	var buf bytes.Buffer
	if err := export.Export(&buf, terms, export.FormatJSON); err != nil {
		return nil, err
	}

	// Encrypt snapshot
	encrypted, err := crypto.Encrypt(buf.Bytes(), passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt backup: %w", err)
	}

	// Write backup file
	if err := os.WriteFile(backupPath, encrypted, 0600); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}

	return &BackupInfo{
		Path:      backupPath,
		Filename:  filename,
		Hostname:  hostname,
		Timestamp: ts,
		Size:      int64(len(encrypted)),
	}, nil
}

// List returns all backup files in the backup directory, sorted by timestamp (newest first)
func List(backupDir string) ([]*BackupInfo, error) {
	// Check if backup directory exists
	if _, err := os.Stat(backupDir); os.IsNotExist(err) {
		return []*BackupInfo{}, nil
	}

	// Read directory
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []*BackupInfo
	for _, entry := range entries {
		// Only process .json.enc files
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}

		// Parse filename: recent-{hostname}-{timestamp}.json.enc
		info, err := parseBackupFilename(entry.Name())
		if err != nil {
			// Skip files that don't match expected format
			continue
		}

		// Get full path
		info.Path = filepath.Join(backupDir, entry.Name())

		// Get file size
		if fileInfo, err := entry.Info(); err == nil {
			info.Size = fileInfo.Size()
		}

		backups = append(backups, info)
	}

	// Sort by timestamp, newest first
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// parseBackupFilename parses a backup filename and extracts metadata
// Expected format: recent-{hostname}-{timestamp}.json.enc
// Example: recent-macbook-20240101-120000.json.enc
func parseBackupFilename(filename string) (*BackupInfo, error) {
	// Remove .json.enc suffix
	name := strings.TrimSuffix(filename, fileSuffix)

	// Split by dashes
	parts := strings.SplitN(name, "-", 3)
	if len(parts) < 3 || parts[0] != filePrefix {
		return nil, fmt.Errorf("invalid backup filename format: %s", filename)
	}

	// Parse timestamp
	timestamp, err := time.ParseInLocation(timeLayout, parts[2], time.Local)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp in filename: %w", err)
	}

	return &BackupInfo{
		Filename:  filename,
		Hostname:  parts[1],
		Timestamp: timestamp,
	}, nil
}

// Rotate removes old backups, keeping only the N most recent
func Rotate(backupDir string, keepCount int) error {
	if keepCount <= 0 {
		// 0 or negative means keep all backups
		return nil
	}

	backups, err := List(backupDir)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	// If we have fewer backups than keepCount, nothing to delete
	if len(backups) <= keepCount {
		return nil
	}

	// Delete oldest backups
	for _, backup := range backups[keepCount:] {
		if err := os.Remove(backup.Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backup.Filename, err)
		}
	}

	return nil
}

// Restore decrypts a backup and returns its terms, most recent first.
func Restore(backupPath, passphrase string) ([]string, error) {
	// Read backup file
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}

	// Decrypt backup file
	plaintext, err := crypto.Decrypt(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt backup: %w", err)
	}

	return export.Parse(bytes.NewReader(plaintext), export.FormatJSON)
}

// FormatSize formats a file size in human-readable format
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
