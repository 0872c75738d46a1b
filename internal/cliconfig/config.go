// Package cliconfig loads the repository-level configuration document,
// .kibo_config, that tells the command-line front end which directories and
// file patterns a repository tracks, how aggressively to compress blobs, and
// whether to show progress output. The snapshot engine itself never parses
// this document; it only ever sees the selection.Policy and compression
// level the CLI derives from it.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/kibo-snap/kibo/internal/kiboerr"
	"github.com/kibo-snap/kibo/internal/selection"
	"github.com/kibo-snap/kibo/pkg/encoding"
)

// Filename is the name of the configuration document at the root of a
// tracked repository.
const Filename = ".kibo_config"

const (
	maxCompressionLevel  = 10
	highCompressionLevel = 6
)

// DatabaseConfig describes how to reach a MySQL server for an optional
// logical dump taken alongside a snapshot.
type DatabaseConfig struct {
	Type              string   `toml:"type"`
	User              string   `toml:"user"`
	Password          string   `toml:"password"`
	Host              string   `toml:"host"`
	Port              int      `toml:"port"`
	Name              string   `toml:"name"`
	Tables            []string `toml:"tables"`
	SingleTransaction bool     `toml:"single_transaction"`
}

func defaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Type:              "mysql",
		User:              "root",
		Host:              "localhost",
		Port:              3306,
		Name:              "mydb",
		Tables:            []string{"*"},
		SingleTransaction: true,
	}
}

// Config is the decoded form of .kibo_config.
type Config struct {
	Directories       []string        `toml:"directories"`
	Files             []string        `toml:"files"`
	Ignore            []string        `toml:"ignore"`
	MaxSnapshotSizeGB *float64        `toml:"max_snapshot_size_gb"`
	CompressionLevel  int             `toml:"compression_level"`
	Progress          *bool           `toml:"progress"`
	Database          *DatabaseConfig `toml:"database"`
}

// Load reads and decodes the configuration document rooted at root. It
// returns a kiboerr-tagged NotFound error if the document is absent and a
// Malformed error if it exists but fails to parse.
func Load(root string) (*Config, error) {
	path := filepath.Join(root, Filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, kiboerr.New(kiboerr.KindNotFound, path, err)
		}
		return nil, kiboerr.New(kiboerr.KindIOFailure, path, err)
	}

	config := &Config{}
	if err := encoding.LoadAndUnmarshalTOML(path, config); err != nil {
		return nil, kiboerr.New(kiboerr.KindMalformed, path, err)
	}

	// A bool field cannot tell an omitted single_transaction from an explicit
	// false, so look the key up separately and apply its default if absent.
	if config.Database != nil {
		var explicit struct {
			Database struct {
				SingleTransaction *bool `toml:"single_transaction"`
			} `toml:"database"`
		}
		if err := encoding.LoadAndUnmarshalTOML(path, &explicit); err == nil && explicit.Database.SingleTransaction == nil {
			config.Database.SingleTransaction = defaultDatabaseConfig().SingleTransaction
		}
	}

	if err := config.Validate(); err != nil {
		return nil, kiboerr.New(kiboerr.KindPolicyViolation, path, err)
	}

	return config, nil
}

// Validate checks the invariants the loaded document must satisfy before it
// can drive a build: at least one of directories or files must be
// non-empty, and no directory entry may escape the repository root via "..".
func (c *Config) Validate() error {
	if len(c.Directories) == 0 && len(c.Files) == 0 {
		return fmt.Errorf("both 'directories' and 'files' are empty; specify at least one directory or file pattern to snapshot")
	}
	for _, dir := range c.Directories {
		if dir == "" {
			return fmt.Errorf("empty path in 'directories' list")
		}
		if filepath.IsAbs(dir) {
			return fmt.Errorf("path %q in 'directories' list must be relative", dir)
		}
		if containsDotDot(dir) {
			return fmt.Errorf("path %q in 'directories' list contains '..', which is not allowed", dir)
		}
	}
	return nil
}

func containsDotDot(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// Policy converts the directory/file/ignore lists into the selection.Policy
// the snapshot engine consumes.
func (c *Config) Policy() selection.Policy {
	return selection.Policy{
		Directories: c.Directories,
		Files:       c.Files,
		Ignores:     c.Ignore,
	}
}

// EffectiveCompressionLevel caps the configured compression level at 10, the
// highest level the blob store accepts, per the same warning thresholds the
// original tool prints: above 6 compression becomes noticeably slower, and
// above 10 it is not a valid store level.
func (c *Config) EffectiveCompressionLevel(warn func(string)) int {
	level := c.CompressionLevel
	if level > maxCompressionLevel {
		if warn != nil {
			warn(fmt.Sprintf("compression_level %d exceeds maximum allowed (%d); using %d", level, maxCompressionLevel, maxCompressionLevel))
		}
		level = maxCompressionLevel
	} else if level > highCompressionLevel {
		if warn != nil {
			warn(fmt.Sprintf("compression_level %d may be very slow; recommended maximum is %d", level, highCompressionLevel))
		}
	}
	return level
}

// MaxSnapshotSizeBytes converts the configured warning threshold from
// gigabytes to bytes. It returns 0 and false if no threshold was set.
func (c *Config) MaxSnapshotSizeBytes() (uint64, bool) {
	if c.MaxSnapshotSizeGB == nil {
		return 0, false
	}
	const bytesPerGB = 1 << 30
	return uint64(*c.MaxSnapshotSizeGB * bytesPerGB), true
}

// DatabaseConfigOrDefault returns the configured database section, falling
// back to the documented defaults for any field the document omitted.
func (c *Config) DatabaseConfigOrDefault() DatabaseConfig {
	if c.Database == nil {
		return defaultDatabaseConfig()
	}
	merged := defaultDatabaseConfig()
	db := *c.Database
	if db.Type != "" {
		merged.Type = db.Type
	}
	if db.User != "" {
		merged.User = db.User
	}
	merged.Password = db.Password
	if db.Host != "" {
		merged.Host = db.Host
	}
	if db.Port != 0 {
		merged.Port = db.Port
	}
	if db.Name != "" {
		merged.Name = db.Name
	}
	if len(db.Tables) > 0 {
		merged.Tables = db.Tables
	}
	merged.SingleTransaction = db.SingleTransaction
	return merged
}

// ProgressMode is the tri-state progress-display policy: auto-detect based
// on whether stderr is a terminal, or a forced on/off from a CLI flag or
// this configuration document.
type ProgressMode int

const (
	// ProgressAuto shows progress only when stderr is a TTY.
	ProgressAuto ProgressMode = iota
	// ProgressForceOn always shows progress.
	ProgressForceOn
	// ProgressForceOff never shows progress.
	ProgressForceOff
)

// ResolveProgress applies CLI-flag precedence over the configuration
// document's progress setting: an explicit --progress or --no-progress flag
// always wins, then the configuration document, then auto-detection.
func ResolveProgress(progressFlag, noProgressFlag bool, configValue *bool) ProgressMode {
	switch {
	case progressFlag:
		return ProgressForceOn
	case noProgressFlag:
		return ProgressForceOff
	case configValue != nil && *configValue:
		return ProgressForceOn
	case configValue != nil && !*configValue:
		return ProgressForceOff
	default:
		return ProgressAuto
	}
}

// ShouldShowProgress evaluates a resolved ProgressMode against the given
// file, which callers pass os.Stderr in production.
func ShouldShowProgress(mode ProgressMode, stderr *os.File) bool {
	switch mode {
	case ProgressForceOn:
		return true
	case ProgressForceOff:
		return false
	default:
		return isatty.IsTerminal(stderr.Fd()) || isatty.IsCygwinTerminal(stderr.Fd())
	}
}
