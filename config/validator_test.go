package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/planvault/errors"
)

func TestValidate_ReportsEveryProblem(t *testing.T) {
	fs := setupTestFS(t, "invalid.yaml")
	cfg, err := LoadWithOptions(fs, "invalid.yaml", LoadOptions{LookupEnv: noEnv, SkipValidation: true})
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))

	msg := err.Error()
	for _, want := range []string{
		"root must not be empty",
		"max_archive_size must be positive",
		`unknown category "Fortnight"`,
		`duplicate category "Day"`,
		`log_level "loud"`,
		"remote.endpoint is required for minio",
		"remote.access_key is required for minio",
	} {
		assert.Contains(t, msg, want)
	}
	assert.NotContains(t, msg, "remote.bucket")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults"},
		{name: "root is filesystem root", mutate: func(c *Config) { c.Root = "/" }, wantErr: "must name a directory"},
		{name: "root is dot", mutate: func(c *Config) { c.Root = "." }, wantErr: "must name a directory"},
		{name: "scratch equals root", mutate: func(c *Config) { c.ScratchDir = "data/" }, wantErr: "scratch_dir must differ"},
		{name: "empty categories", mutate: func(c *Config) { c.Categories = nil }, wantErr: "categories must not be empty"},
		{name: "unknown remote", mutate: func(c *Config) { c.Remote.Kind = "ftp" }, wantErr: `remote.kind "ftp"`},
		{
			name: "s3 without bucket",
			mutate: func(c *Config) {
				c.Remote.Kind = RemoteS3
			},
			wantErr: "remote.bucket is required for s3",
		},
		{
			name: "gdrive",
			mutate: func(c *Config) {
				c.Remote = RemoteConfig{Kind: RemoteGDrive, DriveFolder: "PlanVault", CredentialsFile: "c.json", TokenFile: "t.json"}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateRemote(t *testing.T) {
	cfg := Default()
	err := cfg.ValidateRemote()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no remote store configured")

	cfg.Remote = RemoteConfig{Kind: RemoteS3, Bucket: "plans"}
	assert.NoError(t, cfg.ValidateRemote())
}
