package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/input-output-hk/planvault/config"
	"github.com/input-output-hk/planvault/errors"
)

const testClientJSON = `{"installed":{"client_id":"id","client_secret":"secret",` +
	`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
	`"redirect_uris":["http://localhost"]}}`

func TestNewRemote_UnknownKind(t *testing.T) {
	cfg := config.Default()
	cfg.Remote.Kind = "ftp"

	_, err := NewRemote(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}

func TestDriveTokenSource(t *testing.T) {
	fsys := memfs.New()
	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}
	data, err := json.Marshal(tok)
	require.NoError(t, err)
	require.NoError(t, util.WriteFile(fsys, "client.json", []byte(testClientJSON), 0o600))
	require.NoError(t, util.WriteFile(fsys, "token.json", data, 0o600))

	ts, err := driveTokenSource(context.Background(), fsys, "client.json", "token.json", slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	got, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
}

func TestDriveTokenSource_Errors(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("missing client file", func(t *testing.T) {
		_, err := driveTokenSource(context.Background(), memfs.New(), "client.json", "token.json", logger)
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
	})

	t.Run("missing token", func(t *testing.T) {
		fsys := memfs.New()
		require.NoError(t, util.WriteFile(fsys, "client.json", []byte(testClientJSON), 0o600))

		_, err := driveTokenSource(context.Background(), fsys, "client.json", "token.json", logger)
		require.Error(t, err)
		assert.Equal(t, errors.CodeUnauthorized, errors.GetCode(err))
	})

	t.Run("malformed token", func(t *testing.T) {
		fsys := memfs.New()
		require.NoError(t, util.WriteFile(fsys, "client.json", []byte(testClientJSON), 0o600))
		require.NoError(t, util.WriteFile(fsys, "token.json", []byte("{"), 0o600))

		_, err := driveTokenSource(context.Background(), fsys, "client.json", "token.json", logger)
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
	})
}

func TestSavingTokenSource(t *testing.T) {
	fsys := memfs.New()
	old := &oauth2.Token{AccessToken: "old"}
	fresh := &oauth2.Token{AccessToken: "new", RefreshToken: "r"}

	s := &savingTokenSource{
		src:    oauth2.StaticTokenSource(old),
		fsys:   fsys,
		path:   "token.json",
		last:   old,
		logger: slog.New(slog.DiscardHandler),
	}

	_, err := s.Token()
	require.NoError(t, err)
	_, err = fsys.Stat("token.json")
	assert.Error(t, err, "unchanged token is not rewritten")

	s.src = oauth2.StaticTokenSource(fresh)
	_, err = s.Token()
	require.NoError(t, err)

	saved, err := readToken(fsys, "token.json")
	require.NoError(t, err)
	assert.Equal(t, "new", saved.AccessToken)
	assert.Equal(t, "r", saved.RefreshToken)
}
