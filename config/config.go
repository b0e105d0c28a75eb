// Package config holds the explicit configuration of a planvault
// installation: where the plan corpus lives, where scratch data goes, the
// archive size ceiling and the remote store used for sync.
//
// Configuration is read from a YAML file, then overridden by PLANVAULT_*
// environment variables. Nothing is discovered by probing the filesystem.
//
//	cfg, err := config.Load(osfs.New("."), "planvault.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	categories, _ := cfg.PlanCategories()
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/input-output-hk/planvault/archive"
	"github.com/input-output-hk/planvault/plan"
)

// Remote store kinds.
const (
	RemoteNone   = ""
	RemoteMinio  = "minio"
	RemoteS3     = "s3"
	RemoteGDrive = "gdrive"
)

// Config is the complete planvault configuration.
type Config struct {
	// Root is the plan corpus directory.
	Root string `yaml:"root"`
	// ScratchDir holds staging archives and import backups.
	ScratchDir string `yaml:"scratch_dir"`
	// ExportDir receives archives written by export.
	ExportDir string `yaml:"export_dir"`
	// MaxArchiveSize is the archive size ceiling. YAML accepts a byte count
	// or a size such as "100MiB".
	MaxArchiveSize ByteSize `yaml:"max_archive_size"`
	// Categories lists the plan categories required in archives and
	// compared during sync.
	Categories []string `yaml:"categories"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
	// Remote configures the store used by sync commands.
	Remote RemoteConfig `yaml:"remote"`
}

// RemoteConfig selects and configures the remote store.
type RemoteConfig struct {
	Kind      string `yaml:"kind"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`

	// DriveFolder is the folder path plans are kept under in Google Drive.
	DriveFolder string `yaml:"drive_folder"`
	// CredentialsFile is the OAuth client JSON downloaded from Google Cloud.
	CredentialsFile string `yaml:"credentials_file"`
	// TokenFile holds the OAuth token obtained for the user.
	TokenFile string `yaml:"token_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	categories := make([]string, 0, len(plan.Categories()))
	for _, c := range plan.Categories() {
		categories = append(categories, string(c))
	}
	return &Config{
		Root:           "data",
		ScratchDir:     ".planvault",
		ExportDir:      ".",
		MaxArchiveSize: ByteSize(archive.DefaultMaxSize),
		Categories:     categories,
		LogLevel:       "info",
		Remote: RemoteConfig{
			DriveFolder: "PlanVault",
		},
	}
}

// PlanCategories parses Categories.
func (c *Config) PlanCategories() ([]plan.Category, error) {
	out := make([]plan.Category, 0, len(c.Categories))
	for _, s := range c.Categories {
		cat, ok := plan.ParseCategory(s)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", s)
		}
		out = append(out, cat)
	}
	return out, nil
}

// Level returns the slog level named by LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, err
	}
	return lvl, nil
}

// ByteSize is a size in bytes that also parses human readable sizes.
type ByteSize int64

// UnmarshalYAML accepts integers and strings such as "100MiB" or "20 MB".
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: size must be a number or a string", node.Line)
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*b = parsed
	return nil
}

// String formats the size with IEC units.
func (b ByteSize) String() string {
	if b < 0 {
		return fmt.Sprintf("%d B", int64(b))
	}
	return humanize.IBytes(uint64(b))
}

// ParseByteSize parses a byte count or a human readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return ByteSize(n), nil
}
