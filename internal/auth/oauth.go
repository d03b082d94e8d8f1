package auth

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/types"
	"golang.org/x/oauth2"
)

// BundledOAuthClientID and BundledOAuthClientSecret can be set at build time
// via -ldflags. Without them personal_account mode needs clientSecretsFile.
var (
	BundledOAuthClientID     string
	BundledOAuthClientSecret string
)

// ConsentTimeout bounds how long Authenticate waits for the browser redirect
const ConsentTimeout = 5 * time.Minute

// OAuthAuthOptions controls how the consent step is carried out
type OAuthAuthOptions struct {
	// NoBrowser prints the consent URL and reads the code from In
	NoBrowser bool
	// In and Out default to stdin and stderr
	In  io.Reader
	Out io.Writer
}

// consentFlow is one PKCE authorization-code exchange. With a listener it
// receives the code on a loopback redirect; without one the user pastes it.
type consentFlow struct {
	config   *oauth2.Config
	listener net.Listener
	state    string
	verifier string
	results  chan consentResult
}

type consentResult struct {
	code string
	err  error
}

func newConsentFlow(config *oauth2.Config, listener net.Listener, redirectURL string) (*consentFlow, error) {
	if config == nil {
		return nil, fmt.Errorf("OAuth config not set")
	}
	state, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	verifier, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	cfg := *config
	cfg.RedirectURL = redirectURL
	return &consentFlow{
		config:   &cfg,
		listener: listener,
		state:    state,
		verifier: verifier,
		results:  make(chan consentResult, 1),
	}, nil
}

// loopbackFlow listens on an ephemeral 127.0.0.1 port for the redirect
func loopbackFlow(config *oauth2.Config) (*consentFlow, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start local server: %w", err)
	}
	flow, err := newConsentFlow(config, listener, callbackURL(listener.Addr().(*net.TCPAddr).Port))
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	return flow, nil
}

// pasteFlow redirects to a loopback port nobody listens on; the user copies
// the code out of the browser's address bar
func pasteFlow(config *oauth2.Config) (*consentFlow, error) {
	port := 8765
	if l, err := net.Listen("tcp", "127.0.0.1:0"); err == nil {
		port = l.Addr().(*net.TCPAddr).Port
		_ = l.Close()
	}
	return newConsentFlow(config, nil, callbackURL(port))
}

func callbackURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", port)
}

// AuthURL is the consent page, carrying the state and the S256 challenge
func (f *consentFlow) AuthURL() string {
	return f.config.AuthCodeURL(
		f.state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", codeChallengeS256(f.verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// serve answers redirects until ctx is done
func (f *consentFlow) serve(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", f.handleCallback)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(f.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.deliver(consentResult{err: err})
		}
	}()
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
}

func (f *consentFlow) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("state") != f.state:
		http.Error(w, "Invalid state", http.StatusBadRequest)
		f.deliver(consentResult{err: fmt.Errorf("invalid state parameter")})
	case q.Get("code") == "":
		http.Error(w, "No code received", http.StatusBadRequest)
		f.deliver(consentResult{err: fmt.Errorf("auth error: %s", q.Get("error"))})
	default:
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>drivesync is authorized</h1><p>You can close this window and return to the terminal.</p></body></html>`)
		f.deliver(consentResult{code: q.Get("code")})
	}
}

// deliver keeps the first result; later redirects are dropped
func (f *consentFlow) deliver(res consentResult) {
	select {
	case f.results <- res:
	default:
	}
}

// wait blocks until a code arrives, the timeout passes or ctx is done
func (f *consentFlow) wait(ctx context.Context, timeout <-chan time.Time) (string, error) {
	select {
	case res := <-f.results:
		return res.code, res.err
	case <-timeout:
		return "", fmt.Errorf("authentication timed out")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *consentFlow) exchange(ctx context.Context, code string) (*types.Credentials, error) {
	token, err := f.config.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", f.verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return &types.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiryDate:   token.Expiry,
		Scopes:       f.config.Scopes,
		Type:         types.AuthTypeOAuth,
	}, nil
}

func (f *consentFlow) close() {
	if f.listener != nil {
		_ = f.listener.Close()
	}
}

// Authenticate obtains a personal token through the browser consent page and
// stores it under profile. The loopback redirect is used when a browser can
// be opened; otherwise, or when opening fails, the user pastes the code.
func (m *Manager) Authenticate(ctx context.Context, profile string, openBrowser func(string) error, opts OAuthAuthOptions) (*types.Credentials, error) {
	if m.oauthConfig == nil {
		return nil, fmt.Errorf("OAuth config not set")
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}

	var code string
	var flow *consentFlow
	var err error

	if !opts.NoBrowser && openBrowser != nil && !isHeadlessEnv() {
		flow, err = loopbackFlow(m.oauthConfig)
		if err == nil {
			code, err = m.browserConsent(ctx, flow, openBrowser, opts.Out)
			flow.close()
			if err != nil && !errors.Is(err, errBrowserUnavailable) {
				return nil, err
			}
		}
		if err != nil {
			m.logger.Warn("Browser consent unavailable, falling back to pasted code", logging.F("error", err.Error()))
			flow = nil
		}
	}

	if flow == nil {
		if flow, err = pasteFlow(m.oauthConfig); err != nil {
			return nil, err
		}
		fmt.Fprintf(opts.Out, "Open this URL in a browser and approve access:\n%s\n", flow.AuthURL())
		fmt.Fprintf(opts.Out, "After approval the browser is sent to a localhost URL that will not load.\n")
		fmt.Fprintf(opts.Out, "Copy the `code` parameter from the address bar and paste it here: ")
		if code, err = readCode(opts.In); err != nil {
			return nil, err
		}
	}

	creds, err := flow.exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := m.SaveCredentials(profile, creds); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	m.logger.Info("Personal account authorized", logging.F("profile", profile))
	return creds, nil
}

var errBrowserUnavailable = errors.New("browser could not be opened")

func (m *Manager) browserConsent(ctx context.Context, flow *consentFlow, openBrowser func(string) error, out io.Writer) (string, error) {
	authURL := flow.AuthURL()
	fmt.Fprintf(out, "Opening browser for authentication...\n")
	fmt.Fprintf(out, "If the browser doesn't open, visit: %s\n", authURL)

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	flow.serve(serveCtx)

	if err := openBrowser(authURL); err != nil {
		fmt.Fprintf(out, "Failed to open browser: %v\n", err)
		return "", fmt.Errorf("%w: %v", errBrowserUnavailable, err)
	}
	return flow.wait(ctx, m.clock.After(ConsentTimeout))
}

func readCode(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", fmt.Errorf("no authorization code entered")
	}
	return code, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func codeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// isHeadlessEnv guesses whether no local browser can be shown
func isHeadlessEnv() bool {
	for _, key := range []string{"DRIVESYNC_NO_BROWSER", "CI", "GITHUB_ACTIONS", "SSH_CONNECTION", "SSH_TTY"} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == ""
}
