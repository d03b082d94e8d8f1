package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/jonboulle/clockwork"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	keyringService     = "drivesync"
	tokenRefreshBuffer = 5 * time.Minute
)

// Manager owns the OAuth client and the per-profile credential store used
// by both auth modes
type Manager struct {
	storage        StorageBackend
	storageWarning string
	oauthConfig    *oauth2.Config
	clock          clockwork.Clock
	logger         logging.Logger
}

type ManagerOptions struct {
	ForceEncryptedFile bool
	// ForcePlainFile stores tokens unencrypted; tests and development only
	ForcePlainFile bool
	Clock          clockwork.Clock
	Logger         logging.Logger
}

func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	m := &Manager{clock: opts.Clock, logger: opts.Logger}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	if m.logger == nil {
		m.logger = logging.NewNoOpLogger()
	}
	m.storage, m.storageWarning = selectStorage(configDir, opts)
	return m
}

// selectStorage prefers the system keyring, then an encrypted file, then a
// plain file. The warning says which fallback was taken, if any.
func selectStorage(configDir string, opts ManagerOptions) (StorageBackend, string) {
	if opts.ForcePlainFile {
		return NewPlainFileStorage(configDir),
			"WARNING: Using unencrypted file storage. Credentials are stored in plain text."
	}
	if !opts.ForceEncryptedFile && keyringAvailable() {
		return NewKeyringStorage(keyringService, configDir), ""
	}

	encrypted, err := NewEncryptedFileStorage(configDir)
	if err != nil {
		return NewPlainFileStorage(configDir),
			fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
	}
	if opts.ForceEncryptedFile {
		return encrypted, ""
	}
	return encrypted, "INFO: System keyring not available. Using encrypted file storage."
}

func keyringAvailable() bool {
	probe := keyringService + "-probe"
	if err := keyring.Set(keyringService, probe, "probe"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, probe)
	return true
}

// SetOAuthConfig installs an OAuth client for Google's endpoints
func (m *Manager) SetOAuthConfig(clientID, clientSecret string, scopes []string) {
	m.oauthConfig = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}
}

// LoadOAuthClientFile reads a downloaded "installed app" client secrets file
func (m *Manager) LoadOAuthClientFile(path string, scopes []string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthClientMissing,
			fmt.Sprintf("client secrets file not readable: %s", path)).Build(), err)
	}
	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthClientMissing,
			fmt.Sprintf("invalid client secrets file: %s", path)).Build(), err)
	}
	m.oauthConfig = cfg
	return nil
}

// LoadCredentials returns the stored credentials for profile, or an error
// wrapping ErrCredentialsNotFound
func (m *Manager) LoadCredentials(profile string) (*types.Credentials, error) {
	data, err := m.storage.Load(profile)
	if err != nil {
		return nil, err
	}

	var stored types.StoredCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse credentials for profile '%s': %w", profile, err)
	}
	expiry, err := time.Parse(time.RFC3339, stored.ExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry date: %w", err)
	}

	return &types.Credentials{
		AccessToken:         stored.AccessToken,
		RefreshToken:        stored.RefreshToken,
		ExpiryDate:          expiry,
		Scopes:              stored.Scopes,
		Type:                stored.Type,
		ServiceAccountEmail: stored.ServiceAccountEmail,
		ImpersonatedUser:    stored.ImpersonatedUser,
	}, nil
}

func (m *Manager) SaveCredentials(profile string, creds *types.Credentials) error {
	data, err := json.Marshal(types.StoredCredentials{
		Profile:             profile,
		AccessToken:         creds.AccessToken,
		RefreshToken:        creds.RefreshToken,
		ExpiryDate:          creds.ExpiryDate.Format(time.RFC3339),
		Scopes:              creds.Scopes,
		Type:                creds.Type,
		ServiceAccountEmail: creds.ServiceAccountEmail,
		ImpersonatedUser:    creds.ImpersonatedUser,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := m.storage.Save(profile, data); err != nil {
		return err
	}
	m.logger.Debug("Credentials stored",
		logging.F("profile", profile),
		logging.F("backend", m.storage.Name()))
	return nil
}

// DeleteCredentials returns ErrCredentialsNotFound when nothing was stored
func (m *Manager) DeleteCredentials(profile string) error {
	return m.storage.Delete(profile)
}

// NeedsRefresh reports whether the access token expires within the refresh buffer
func (m *Manager) NeedsRefresh(creds *types.Credentials) bool {
	return m.clock.Now().Add(tokenRefreshBuffer).After(creds.ExpiryDate)
}

// ValidateScopes fails with SCOPE_INSUFFICIENT when a stored token was
// granted fewer scopes than a sync needs
func (m *Manager) ValidateScopes(creds *types.Credentials, required []string) error {
	granted := make(map[string]bool, len(creds.Scopes))
	for _, s := range creds.Scopes {
		granted[s] = true
	}
	for _, req := range required {
		if !granted[req] {
			return utils.NewAppError(utils.NewCLIError(utils.ErrCodeScopeInsufficient,
				fmt.Sprintf("Missing required scope: %s. Re-authenticate with 'drivesync auth login'.", req)).Build())
		}
	}
	return nil
}

func (m *Manager) GetStorageBackend() string {
	return m.storage.Name()
}

func (m *Manager) GetStorageWarning() string {
	return m.storageWarning
}

func credentialsFromToken(token *oauth2.Token, scopes []string) *types.Credentials {
	return &types.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiryDate:   token.Expiry,
		Scopes:       scopes,
		Type:         types.AuthTypeOAuth,
	}
}

func tokenFromCredentials(creds *types.Credentials) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.ExpiryDate,
		TokenType:    "Bearer",
	}
}
