package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dl-alexandre/drivesync/internal/config"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testClientSecrets = `{
  "installed": {
    "client_id": "client-id.apps.googleusercontent.com",
    "client_secret": "client-secret",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["http://localhost"]
  }
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestOpenSession_ServiceAccountKeyMissing(t *testing.T) {
	mgr := newTestManager(t, nil)

	_, err := mgr.OpenSession(context.Background(), SessionOptions{
		Mode:                  config.AuthModeServiceAccount,
		ServiceAccountKeyFile: filepath.Join(t.TempDir(), "missing.json"),
	})
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeAuthRequired, utils.ErrorCode(err))
}

func TestReadServiceAccountKey_Validation(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"wrong type", `{"type":"authorized_user"}`, "invalid service account key type"},
		{"no email", `{"type":"service_account","private_key":"k"}`, "missing client_email"},
		{"no key", `{"type":"service_account","client_email":"sa@p.iam.gserviceaccount.com"}`, "missing private_key"},
		{"not json", `not json`, "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name+".json", tt.content)
			_, _, err := ReadServiceAccountKey(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, _, err := ReadServiceAccountKey("")
	assert.Equal(t, utils.ErrCodeAuthRequired, utils.ErrorCode(err))
}

func TestOpenSession_PersonalRequiresClient(t *testing.T) {
	BundledOAuthClientID = ""
	mgr := newTestManager(t, nil)

	_, err := mgr.OpenSession(context.Background(), SessionOptions{
		Mode:    config.AuthModePersonalAccount,
		Profile: "default",
	})
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeAuthClientMissing, utils.ErrorCode(err))
}

func TestOpenSession_PersonalNoTokenNonInteractive(t *testing.T) {
	dir := t.TempDir()
	mgr := newTestManager(t, nil)

	_, err := mgr.OpenSession(context.Background(), SessionOptions{
		Mode:              config.AuthModePersonalAccount,
		Profile:           "default",
		ClientSecretsFile: writeFile(t, dir, "client.json", testClientSecrets),
		TokenFile:         filepath.Join(dir, "token.json"),
	})
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeAuthRequired, utils.ErrorCode(err))
}

func TestOpenSession_PersonalWithTokenFile(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token.json")
	require.NoError(t, WriteTokenFile(tokenPath, &oauth2.Token{
		AccessToken:  "valid",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}))

	mgr := newTestManager(t, nil)
	session, err := mgr.OpenSession(context.Background(), SessionOptions{
		Mode:              config.AuthModePersonalAccount,
		Profile:           "default",
		ClientSecretsFile: writeFile(t, dir, "client.json", testClientSecrets),
		TokenFile:         tokenPath,
		Timeout:           10 * time.Second,
	})
	require.NoError(t, err)
	assert.NotNil(t, session.Service)
	assert.Equal(t, "valid", session.Credentials.AccessToken)
	assert.Equal(t, config.AuthModePersonalAccount, session.Mode)
}

func TestTokenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	expiry := time.Date(2031, 2, 3, 4, 5, 6, 0, time.UTC)

	require.NoError(t, WriteTokenFile(path, &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: expiry}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	token, err := ReadTokenFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a", token.AccessToken)
	assert.Equal(t, "r", token.RefreshToken)
	assert.True(t, token.Expiry.Equal(expiry))
}

type sequenceSource struct {
	tokens []string
	i      int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	tok := &oauth2.Token{AccessToken: s.tokens[s.i]}
	if s.i < len(s.tokens)-1 {
		s.i++
	}
	return tok, nil
}

func TestPersistingTokenSource_SavesOnlyChanges(t *testing.T) {
	var saved []string
	ts := &persistingTokenSource{
		base: &sequenceSource{tokens: []string{"first", "first", "second"}},
		last: "first",
		save: func(tok *oauth2.Token) error {
			saved = append(saved, tok.AccessToken)
			return nil
		},
		logger: newTestManager(t, nil).logger,
	}

	for i := 0; i < 3; i++ {
		_, err := ts.Token()
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"second"}, saved)
}

func TestSessionOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ServiceAccountKeyFile = "/keys/sa.json"
	cfg.RequestTimeout = 30

	opts := SessionOptionsFromConfig(cfg, "")
	assert.Equal(t, config.AuthModeServiceAccount, opts.Mode)
	assert.Equal(t, "default", opts.Profile)
	assert.Equal(t, "/keys/sa.json", opts.ServiceAccountKeyFile)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, utils.ScopesSync, opts.Scopes)

	assert.Equal(t, "work", SessionOptionsFromConfig(cfg, "work").Profile)
}
