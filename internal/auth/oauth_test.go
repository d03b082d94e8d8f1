package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testOAuthConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		Scopes:       []string{"https://www.googleapis.com/auth/drive"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: tokenURL,
		},
	}
}

func TestConsentFlowAuthURLCarriesPKCE(t *testing.T) {
	flow, err := loopbackFlow(testOAuthConfig("https://oauth2.googleapis.com/token"))
	require.NoError(t, err)
	defer flow.close()

	parsed, err := url.Parse(flow.AuthURL())
	require.NoError(t, err)
	q := parsed.Query()

	assert.Equal(t, flow.state, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, codeChallengeS256(flow.verifier), q.Get("code_challenge"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.True(t, strings.HasPrefix(q.Get("redirect_uri"), "http://127.0.0.1:"))
	assert.GreaterOrEqual(t, len(flow.verifier), 43)
}

func TestConsentFlowCallback(t *testing.T) {
	newFlow := func(t *testing.T) *consentFlow {
		flow, err := newConsentFlow(testOAuthConfig(""), nil, callbackURL(8765))
		require.NoError(t, err)
		return flow
	}

	t.Run("valid code", func(t *testing.T) {
		flow := newFlow(t)
		rec := httptest.NewRecorder()
		flow.handleCallback(rec, httptest.NewRequest(http.MethodGet, "/callback?state="+flow.state+"&code=abc", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		code, err := flow.wait(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "abc", code)
	})

	t.Run("wrong state", func(t *testing.T) {
		flow := newFlow(t)
		rec := httptest.NewRecorder()
		flow.handleCallback(rec, httptest.NewRequest(http.MethodGet, "/callback?state=forged&code=abc", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		_, err := flow.wait(context.Background(), nil)
		assert.ErrorContains(t, err, "invalid state")
	})

	t.Run("consent denied", func(t *testing.T) {
		flow := newFlow(t)
		rec := httptest.NewRecorder()
		flow.handleCallback(rec, httptest.NewRequest(http.MethodGet, "/callback?state="+flow.state+"&error=access_denied", nil))

		_, err := flow.wait(context.Background(), nil)
		assert.ErrorContains(t, err, "access_denied")
	})

	t.Run("first result wins", func(t *testing.T) {
		flow := newFlow(t)
		flow.handleCallback(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state="+flow.state+"&code=first", nil))
		flow.handleCallback(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state="+flow.state+"&code=second", nil))

		code, err := flow.wait(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "first", code)
	})
}

func TestConsentFlowWaitStops(t *testing.T) {
	flow, err := newConsentFlow(testOAuthConfig(""), nil, callbackURL(8765))
	require.NoError(t, err)

	expired := make(chan time.Time, 1)
	expired <- time.Now()
	_, err = flow.wait(context.Background(), expired)
	assert.ErrorContains(t, err, "timed out")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = flow.wait(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuthenticateWithPastedCode(t *testing.T) {
	var gotVerifier, gotCode string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotVerifier = r.PostForm.Get("code_verifier")
		gotCode = r.PostForm.Get("code")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer tokenServer.Close()

	mgr := newTestManager(t, nil)
	mgr.oauthConfig = testOAuthConfig(tokenServer.URL)

	var prompt strings.Builder
	creds, err := mgr.Authenticate(context.Background(), "work", nil, OAuthAuthOptions{
		NoBrowser: true,
		In:        strings.NewReader("  pasted-code \n"),
		Out:       &prompt,
	})
	require.NoError(t, err)

	assert.Equal(t, "pasted-code", gotCode)
	assert.NotEmpty(t, gotVerifier)
	assert.Equal(t, "refresh-1", creds.RefreshToken)
	assert.Contains(t, prompt.String(), "code_challenge=")

	stored, err := mgr.LoadCredentials("work")
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
}

func TestAuthenticateRequiresClient(t *testing.T) {
	mgr := newTestManager(t, nil)
	_, err := mgr.Authenticate(context.Background(), "default", nil, OAuthAuthOptions{NoBrowser: true})
	assert.Error(t, err)
}

func TestReadCode(t *testing.T) {
	code, err := readCode(strings.NewReader("abc\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc", code)

	code, err = readCode(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", code)

	_, err = readCode(strings.NewReader("\n"))
	assert.Error(t, err)
}

func TestIsHeadlessEnv(t *testing.T) {
	t.Setenv("DRIVESYNC_NO_BROWSER", "1")
	assert.True(t, isHeadlessEnv())
}

func TestCodeChallengeS256(t *testing.T) {
	// RFC 7636 appendix B
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		codeChallengeS256("dBjftJeZ4CVP-mB92K-uhbMdAE1e9rXJ6kKgbe6ZB2I"))
}
