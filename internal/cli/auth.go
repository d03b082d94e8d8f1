package cli

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/drivesync/internal/auth"
	"github.com/dl-alexandre/drivesync/internal/config"
	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage the credentials used to reach Google Drive",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate a personal account",
	Long:  "Run the OAuth2 consent flow and store the resulting token (personal_account mode)",
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  "Display the configured auth mode and the credentials it would use",
	RunE:  runAuthStatus,
}

var authProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List stored credential profiles",
	RunE:  runAuthProfiles,
}

var authNoBrowser bool

func init() {
	authLoginCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "Print the consent URL and paste the code instead of opening a browser")

	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd, authProfilesCmd)
	rootCmd.AddCommand(authCmd)
}

func activeProfile(flags types.GlobalFlags) string {
	if flags.Profile != "" {
		return flags.Profile
	}
	return appConfig.DefaultProfile
}

// authStatus describes one set of credentials. It renders as Field/Value
// rows in table mode.
type authStatus struct {
	Mode           string    `json:"mode"`
	Profile        string    `json:"profile,omitempty"`
	Authenticated  bool      `json:"authenticated"`
	ServiceAccount string    `json:"serviceAccount,omitempty"`
	ProjectID      string    `json:"projectId,omitempty"`
	Impersonated   string    `json:"impersonated,omitempty"`
	KeyFile        string    `json:"keyFile,omitempty"`
	TokenFile      string    `json:"tokenFile,omitempty"`
	StorageBackend string    `json:"storageBackend,omitempty"`
	Scopes         []string  `json:"scopes,omitempty"`
	Expiry         time.Time `json:"expiry,omitempty"`
	NeedsRefresh   bool      `json:"needsRefresh,omitempty"`
	Error          string    `json:"error,omitempty"`
}

func (s authStatus) Headers() []string { return []string{"Field", "Value"} }

func (s authStatus) Rows() [][]string {
	rows := [][]string{
		{"Mode", s.Mode},
		{"Authenticated", strconv.FormatBool(s.Authenticated)},
	}
	add := func(field, value string) {
		if value != "" {
			rows = append(rows, []string{field, value})
		}
	}
	add("Profile", s.Profile)
	add("Service account", s.ServiceAccount)
	add("Project", s.ProjectID)
	add("Impersonating", s.Impersonated)
	add("Key file", s.KeyFile)
	add("Token file", s.TokenFile)
	add("Storage", s.StorageBackend)
	add("Scopes", strings.Join(s.Scopes, " "))
	if !s.Expiry.IsZero() {
		add("Expires", s.Expiry.Local().Format(utils.DisplayTimeLayout))
	}
	add("Error", s.Error)
	return rows
}

func (s authStatus) EmptyMessage() string { return "" }

func runAuthLogin(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)
	profile := activeProfile(flags)

	if appConfig.AuthMode != config.AuthModePersonalAccount {
		return out.Fail("auth.login", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"auth login is only needed in personal_account mode; service accounts use serviceAccountKeyFile").Build()))
	}

	mgr := newAuthManager()
	if warning := mgr.GetStorageWarning(); warning != "" {
		out.Log("%s", warning)
	}
	if err := mgr.EnsureOAuthClient(appConfig.ClientSecretsFile, utils.ScopesSync); err != nil {
		return out.Fail("auth.login", err)
	}

	creds, err := mgr.Authenticate(cmd.Context(), profile, openBrowser, auth.OAuthAuthOptions{NoBrowser: authNoBrowser})
	if err != nil {
		if !utils.IsCancelled(err) {
			err = utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired, err.Error()).Build(), err)
		}
		return out.Fail("auth.login", err)
	}
	if appConfig.TokenFile != "" {
		token := &oauth2.Token{
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			Expiry:       creds.ExpiryDate,
			TokenType:    "Bearer",
		}
		if err := auth.WriteTokenFile(appConfig.TokenFile, token); err != nil {
			return out.Fail("auth.login", err)
		}
	}

	out.Log("Successfully authenticated!")
	return out.WriteSuccess("auth.login", authStatus{
		Mode:           string(appConfig.AuthMode),
		Profile:        profile,
		Authenticated:  true,
		Scopes:         creds.Scopes,
		Expiry:         creds.ExpiryDate,
		StorageBackend: mgr.GetStorageBackend(),
		TokenFile:      appConfig.TokenFile,
	})
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)
	profile := activeProfile(flags)

	removed := newAuthManager().DeleteCredentials(profile) == nil
	if appConfig.TokenFile != "" {
		err := os.Remove(appConfig.TokenFile)
		switch {
		case err == nil:
			removed = true
		case !os.IsNotExist(err):
			return out.Fail("auth.logout", err)
		}
	}
	if !removed {
		return out.Fail("auth.logout", utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			fmt.Sprintf("No credentials found for profile '%s'", profile)).Build()))
	}

	out.Log("Credentials removed for profile: %s", profile)
	return out.WriteSuccess("auth.logout", authStatus{Mode: string(appConfig.AuthMode), Profile: profile})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)

	if appConfig.AuthMode == config.AuthModeServiceAccount {
		return out.WriteSuccess("auth.status", serviceAccountStatus(appConfig))
	}

	mgr := newAuthManager()
	if warning := mgr.GetStorageWarning(); warning != "" && flags.Verbose {
		out.Log("%s", warning)
	}
	return out.WriteSuccess("auth.status", personalStatus(mgr, appConfig, activeProfile(flags)))
}

func serviceAccountStatus(cfg *config.Config) authStatus {
	status := authStatus{
		Mode:         string(cfg.AuthMode),
		KeyFile:      cfg.ServiceAccountKeyFile,
		Impersonated: cfg.ImpersonateUser,
	}
	key, _, err := auth.ReadServiceAccountKey(cfg.ServiceAccountKeyFile)
	if err != nil {
		status.Error = utils.AsCLIError(err).Message
		return status
	}
	status.Authenticated = true
	status.ServiceAccount = key.ClientEmail
	status.ProjectID = key.ProjectID
	return status
}

// personalStatus prefers the token file when one is configured and readable
func personalStatus(mgr *auth.Manager, cfg *config.Config, profile string) authStatus {
	status := authStatus{Mode: string(cfg.AuthMode), Profile: profile}

	if cfg.TokenFile != "" {
		if token, err := auth.ReadTokenFile(cfg.TokenFile); err == nil {
			status.TokenFile = cfg.TokenFile
			status.Authenticated = token.RefreshToken != "" || token.Valid()
			status.Expiry = token.Expiry
			return status
		}
	}

	status.StorageBackend = mgr.GetStorageBackend()
	creds, err := mgr.LoadCredentials(profile)
	if err != nil {
		return status
	}
	status.Authenticated = true
	status.Scopes = creds.Scopes
	status.Expiry = creds.ExpiryDate
	status.NeedsRefresh = mgr.NeedsRefresh(creds)
	return status
}

type profileList []authStatus

func (p profileList) Headers() []string {
	return []string{"Profile", "Authenticated", "Expires", "Needs refresh"}
}

func (p profileList) Rows() [][]string {
	rows := make([][]string, 0, len(p))
	for _, s := range p {
		expires := "-"
		if !s.Expiry.IsZero() {
			expires = s.Expiry.Local().Format(utils.DisplayTimeLayout)
		}
		rows = append(rows, []string{s.Profile, strconv.FormatBool(s.Authenticated), expires, strconv.FormatBool(s.NeedsRefresh)})
	}
	return rows
}

func (p profileList) EmptyMessage() string { return "No stored profiles." }

func runAuthProfiles(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)

	mgr := newAuthManager()
	profiles, err := mgr.ListProfiles()
	if err != nil {
		return out.Fail("auth.profiles", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to list profiles: %v", err)).Build(), err))
	}

	list := make(profileList, 0, len(profiles))
	for _, profile := range profiles {
		status := authStatus{Mode: string(appConfig.AuthMode), Profile: profile, StorageBackend: mgr.GetStorageBackend()}
		if creds, err := mgr.LoadCredentials(profile); err == nil {
			status.Authenticated = true
			status.Expiry = creds.ExpiryDate
			status.NeedsRefresh = mgr.NeedsRefresh(creds)
		} else {
			status.Error = err.Error()
		}
		list = append(list, status)
	}
	return out.WriteSuccess("auth.profiles", list)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}
