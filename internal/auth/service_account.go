package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ServiceAccountKey is the subset of a service account key file we validate
type ServiceAccountKey struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	TokenURI     string `json:"token_uri"`
}

// ReadServiceAccountKey reads and validates a service account key file
func ReadServiceAccountKey(keyFilePath string) (*ServiceAccountKey, []byte, error) {
	if keyFilePath == "" {
		return nil, nil, authRequired("service account key file required (set serviceAccountKeyFile)")
	}
	keyData, err := os.ReadFile(keyFilePath)
	if err != nil {
		return nil, nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			fmt.Sprintf("service account key file not found: %s", keyFilePath)).Build(), err)
	}

	var saKey ServiceAccountKey
	if err := json.Unmarshal(keyData, &saKey); err != nil {
		return nil, nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			"failed to parse service account key").Build(), err)
	}
	switch {
	case saKey.Type != "service_account":
		return nil, nil, authRequired(fmt.Sprintf("invalid service account key type: %s", saKey.Type))
	case saKey.ClientEmail == "":
		return nil, nil, authRequired("missing client_email in service account key")
	case saKey.PrivateKey == "":
		return nil, nil, authRequired("missing private_key in service account key")
	}
	return &saKey, keyData, nil
}

// ServiceAccountTokenSource builds a self-refreshing token source from a key file.
// A non-empty impersonateUser enables domain-wide delegation.
func (m *Manager) ServiceAccountTokenSource(ctx context.Context, keyFilePath string, scopes []string, impersonateUser string) (oauth2.TokenSource, *types.Credentials, error) {
	if len(scopes) == 0 {
		return nil, nil, fmt.Errorf("at least one scope required")
	}
	if impersonateUser != "" && !strings.Contains(impersonateUser, "@") {
		return nil, nil, fmt.Errorf("impersonate user must be an email address")
	}

	saKey, keyData, err := ReadServiceAccountKey(keyFilePath)
	if err != nil {
		return nil, nil, err
	}

	var gcreds *google.Credentials
	if impersonateUser != "" {
		gcreds, err = google.CredentialsFromJSONWithParams(ctx, keyData, google.CredentialsParams{
			Scopes:  scopes,
			Subject: impersonateUser,
		})
	} else {
		gcreds, err = google.CredentialsFromJSON(ctx, keyData, scopes...)
	}
	if err != nil {
		return nil, nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			"failed to load service account credentials").Build(), err)
	}

	authType := types.AuthTypeServiceAccount
	if impersonateUser != "" {
		authType = types.AuthTypeImpersonated
	}

	return gcreds.TokenSource, &types.Credentials{
		Scopes:              scopes,
		Type:                authType,
		ServiceAccountEmail: saKey.ClientEmail,
		ImpersonatedUser:    impersonateUser,
	}, nil
}

func authRequired(msg string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired, msg).Build())
}
