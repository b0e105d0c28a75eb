package config

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/plan"
)

// Validate reports every problem with the configuration in a single
// CodeInvalidConfig error.
func (c *Config) Validate() error {
	var problems []string

	if err := validateRoot(c.Root); err != nil {
		problems = append(problems, err.Error())
	}
	if strings.TrimSpace(c.ScratchDir) == "" {
		problems = append(problems, "scratch_dir must not be empty")
	} else if c.Root != "" && sameDir(c.ScratchDir, c.Root) {
		problems = append(problems, "scratch_dir must differ from root")
	}
	if c.MaxArchiveSize <= 0 {
		problems = append(problems, fmt.Sprintf("max_archive_size must be positive, got %d", int64(c.MaxArchiveSize)))
	}
	if err := validateCategories(c.Categories); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	switch c.Remote.Kind {
	case RemoteNone:
	case RemoteMinio, RemoteS3, RemoteGDrive:
		problems = append(problems, remoteProblems(c.Remote)...)
	default:
		problems = append(problems, fmt.Sprintf("remote.kind %q is not one of minio, s3, gdrive", c.Remote.Kind))
	}

	if len(problems) > 0 {
		return errors.New(
			errors.CodeInvalidConfig,
			fmt.Sprintf("configuration validation failed: %s", strings.Join(problems, "; ")),
		)
	}
	return nil
}

// ValidateRemote checks that a remote store is configured at all.
func (c *Config) ValidateRemote() error {
	if c.Remote.Kind == RemoteNone {
		return errors.New(errors.CodeInvalidConfig, "no remote store configured (set remote.kind)")
	}
	if problems := remoteProblems(c.Remote); len(problems) > 0 {
		return errors.New(errors.CodeInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func validateRoot(root string) error {
	switch clean := path.Clean(filepath.ToSlash(root)); {
	case strings.TrimSpace(root) == "":
		return fmt.Errorf("root must not be empty")
	case clean == "/" || clean == ".":
		return fmt.Errorf("root %q must name a directory below its parent", root)
	}
	return nil
}

func validateCategories(categories []string) error {
	if len(categories) == 0 {
		return fmt.Errorf("categories must not be empty")
	}
	seen := map[string]bool{}
	var bad []string
	for _, s := range categories {
		if _, ok := plan.ParseCategory(s); !ok {
			bad = append(bad, fmt.Sprintf("unknown category %q", s))
			continue
		}
		if seen[s] {
			bad = append(bad, fmt.Sprintf("duplicate category %q", s))
		}
		seen[s] = true
	}
	if len(bad) > 0 {
		return fmt.Errorf("%s", strings.Join(bad, ", "))
	}
	return nil
}

func remoteProblems(r RemoteConfig) []string {
	var missing []string
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, fmt.Sprintf("remote.%s is required for %s", field, r.Kind))
		}
	}
	switch r.Kind {
	case RemoteMinio:
		require("endpoint", r.Endpoint)
		require("bucket", r.Bucket)
		require("access_key", r.AccessKey)
		require("secret_key", r.SecretKey)
	case RemoteS3:
		require("bucket", r.Bucket)
	case RemoteGDrive:
		require("credentials_file", r.CredentialsFile)
		require("token_file", r.TokenFile)
		require("drive_folder", r.DriveFolder)
	}
	return missing
}

func sameDir(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
