package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"gopkg.in/yaml.v3"

	"github.com/input-output-hk/planvault/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PLANVAULT_"

// LoadOptions configures the behavior of configuration loading operations.
type LoadOptions struct {
	// SkipValidation disables automatic validation after loading.
	SkipValidation bool
	// LookupEnv resolves environment overrides. It defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load reads the YAML file at path from fsys, applies environment
// overrides and validates the result. An empty path loads the defaults.
func Load(fsys billy.Basic, path string) (*Config, error) {
	return LoadWithOptions(fsys, path, LoadOptions{})
}

// LoadWithOptions is Load with custom options.
func LoadWithOptions(fsys billy.Basic, path string, opts LoadOptions) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := util.ReadFile(fsys, path)
		if err != nil {
			code := errors.CodeInternal
			if os.IsNotExist(err) {
				code = errors.CodeNotFound
			}
			return nil, errors.WrapWithContext(err, code, "failed to read configuration",
				map[string]any{"path": path})
		}
		if err := decode(data, cfg); err != nil {
			return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to parse configuration",
				map[string]any{"path": path})
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if !opts.SkipValidation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to parse configuration")
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnv overrides fields from PLANVAULT_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"ROOT":                    &cfg.Root,
		"SCRATCH_DIR":             &cfg.ScratchDir,
		"EXPORT_DIR":              &cfg.ExportDir,
		"LOG_LEVEL":               &cfg.LogLevel,
		"REMOTE_KIND":             &cfg.Remote.Kind,
		"REMOTE_ENDPOINT":         &cfg.Remote.Endpoint,
		"REMOTE_REGION":           &cfg.Remote.Region,
		"REMOTE_BUCKET":           &cfg.Remote.Bucket,
		"REMOTE_PREFIX":           &cfg.Remote.Prefix,
		"REMOTE_ACCESS_KEY":       &cfg.Remote.AccessKey,
		"REMOTE_SECRET_KEY":       &cfg.Remote.SecretKey,
		"REMOTE_DRIVE_FOLDER":     &cfg.Remote.DriveFolder,
		"REMOTE_CREDENTIALS_FILE": &cfg.Remote.CredentialsFile,
		"REMOTE_TOKEN_FILE":       &cfg.Remote.TokenFile,
	}
	for name, field := range str {
		if v, ok := lookup(EnvPrefix + name); ok {
			*field = v
		}
	}

	if v, ok := lookup(EnvPrefix + "MAX_ARCHIVE_SIZE"); ok {
		size, err := ParseByteSize(v)
		if err != nil {
			return errors.WrapWithContext(err, errors.CodeInvalidConfig, "invalid environment override",
				map[string]any{"variable": EnvPrefix + "MAX_ARCHIVE_SIZE"})
		}
		cfg.MaxArchiveSize = size
	}
	if v, ok := lookup(EnvPrefix + "REMOTE_USE_SSL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.WrapWithContext(err, errors.CodeInvalidConfig, "invalid environment override",
				map[string]any{"variable": EnvPrefix + "REMOTE_USE_SSL"})
		}
		cfg.Remote.UseSSL = b
	}
	if v, ok := lookup(EnvPrefix + "CATEGORIES"); ok {
		cfg.Categories = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Categories = append(cfg.Categories, s)
			}
		}
	}
	return nil
}
