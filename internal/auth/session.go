package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dl-alexandre/drivesync/internal/config"
	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/dl-alexandre/drivesync/pkg/version"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// SessionOptions describes how to establish an authenticated Drive session
type SessionOptions struct {
	Mode                  config.AuthMode
	Profile               string
	ServiceAccountKeyFile string
	ClientSecretsFile     string
	TokenFile             string
	ImpersonateUser       string
	Scopes                []string
	Timeout               time.Duration
	// Interactive permits a browser login when no personal token is stored
	Interactive bool
	OpenBrowser func(string) error
}

// SessionOptionsFromConfig maps the persisted configuration onto session options
func SessionOptionsFromConfig(cfg *config.Config, profile string) SessionOptions {
	if profile == "" {
		profile = cfg.DefaultProfile
	}
	return SessionOptions{
		Mode:                  cfg.AuthMode,
		Profile:               profile,
		ServiceAccountKeyFile: cfg.ServiceAccountKeyFile,
		ClientSecretsFile:     cfg.ClientSecretsFile,
		TokenFile:             cfg.TokenFile,
		ImpersonateUser:       cfg.ImpersonateUser,
		Scopes:                utils.ScopesSync,
		Timeout:               cfg.GetRequestTimeout(),
	}
}

// Session is an authenticated Drive connection
type Session struct {
	Service     *drive.Service
	Credentials *types.Credentials
	Mode        config.AuthMode
}

// OpenSession authenticates according to opts and returns a ready Drive service.
// The token is fetched once so bad credentials fail here rather than mid-run.
func (m *Manager) OpenSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	if len(opts.Scopes) == 0 {
		opts.Scopes = utils.ScopesSync
	}

	var (
		ts    oauth2.TokenSource
		creds *types.Credentials
		err   error
	)
	switch opts.Mode {
	case config.AuthModeServiceAccount:
		ts, creds, err = m.ServiceAccountTokenSource(ctx, opts.ServiceAccountKeyFile, opts.Scopes, opts.ImpersonateUser)
	case config.AuthModePersonalAccount:
		ts, creds, err = m.personalTokenSource(ctx, opts)
	default:
		err = utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("unsupported auth mode: %s", opts.Mode)).Build())
	}
	if err != nil {
		return nil, err
	}

	token, err := ts.Token()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthExpired,
			"could not obtain an access token").
			WithContext("suggestedAction", "check the configured credentials or run 'drivesync auth login'").
			Build(), err)
	}
	creds.AccessToken = token.AccessToken
	creds.ExpiryDate = token.Expiry

	httpClient := oauth2.NewClient(ctx, ts)
	if opts.Timeout > 0 {
		httpClient.Timeout = opts.Timeout
	}
	svc, err := drive.NewService(ctx,
		option.WithHTTPClient(httpClient),
		option.WithUserAgent(version.Get().UserAgent()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	m.logger.Info("Drive session established",
		logging.F("mode", string(opts.Mode)),
		logging.F("profile", opts.Profile),
		logging.F("type", string(creds.Type)),
	)
	return &Session{Service: svc, Credentials: creds, Mode: opts.Mode}, nil
}

// EnsureOAuthClient loads the OAuth client from a secrets file or the bundled defaults
func (m *Manager) EnsureOAuthClient(clientSecretsFile string, scopes []string) error {
	if clientSecretsFile != "" {
		return m.LoadOAuthClientFile(clientSecretsFile, scopes)
	}
	if m.oauthConfig != nil {
		return nil
	}
	if BundledOAuthClientID != "" {
		m.SetOAuthConfig(BundledOAuthClientID, BundledOAuthClientSecret, scopes)
		return nil
	}
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthClientMissing,
		"personal_account mode requires an OAuth client (set clientSecretsFile)").Build())
}

func (m *Manager) personalTokenSource(ctx context.Context, opts SessionOptions) (oauth2.TokenSource, *types.Credentials, error) {
	if err := m.EnsureOAuthClient(opts.ClientSecretsFile, opts.Scopes); err != nil {
		return nil, nil, err
	}

	token, err := m.loadPersonalToken(opts)
	if err != nil {
		return nil, nil, err
	}
	if token == nil {
		if !opts.Interactive {
			return nil, nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
				"No credentials found. Run 'drivesync auth login' first.").
				WithContext("profile", opts.Profile).Build())
		}
		creds, err := m.Authenticate(ctx, opts.Profile, opts.OpenBrowser, OAuthAuthOptions{})
		if err != nil {
			return nil, nil, err
		}
		token = tokenFromCredentials(creds)
		if opts.TokenFile != "" {
			if err := WriteTokenFile(opts.TokenFile, token); err != nil {
				return nil, nil, err
			}
		}
	}

	save := func(t *oauth2.Token) error {
		if opts.TokenFile != "" {
			return WriteTokenFile(opts.TokenFile, t)
		}
		return m.SaveCredentials(opts.Profile, credentialsFromToken(t, opts.Scopes))
	}
	ts := &persistingTokenSource{
		base:   m.oauthConfig.TokenSource(ctx, token),
		last:   token.AccessToken,
		save:   save,
		logger: m.logger,
	}
	return ts, credentialsFromToken(token, opts.Scopes), nil
}

// loadPersonalToken returns nil without error when nothing is stored yet
func (m *Manager) loadPersonalToken(opts SessionOptions) (*oauth2.Token, error) {
	if opts.TokenFile != "" {
		token, err := ReadTokenFile(opts.TokenFile)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if token != nil {
			return token, nil
		}
	}
	creds, err := m.LoadCredentials(opts.Profile)
	if err != nil {
		return nil, nil
	}
	if err := m.ValidateScopes(creds, opts.Scopes); err != nil {
		return nil, err
	}
	return tokenFromCredentials(creds), nil
}

// persistingTokenSource writes refreshed tokens back to their store
type persistingTokenSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	last   string
	save   func(*oauth2.Token) error
	logger logging.Logger
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := s.save(token); err != nil {
			s.logger.Warn("failed to persist refreshed token", logging.F("error", err.Error()))
		}
	}
	return token, nil
}

// ReadTokenFile loads an OAuth token previously written by WriteTokenFile
func ReadTokenFile(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", path, err)
	}
	return &token, nil
}

// WriteTokenFile persists an OAuth token with owner-only permissions
func WriteTokenFile(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
