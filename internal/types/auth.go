package types

import "time"

// AuthType identifies how credentials were obtained
type AuthType string

const (
	AuthTypeOAuth          AuthType = "oauth"
	AuthTypeServiceAccount AuthType = "service_account"
	AuthTypeImpersonated   AuthType = "impersonated"
)

// Credentials holds an access token and its metadata
type Credentials struct {
	AccessToken         string
	RefreshToken        string
	ExpiryDate          time.Time
	Scopes              []string
	Type                AuthType
	ServiceAccountEmail string
	ImpersonatedUser    string
}

// StoredCredentials is the persisted form of Credentials
type StoredCredentials struct {
	Profile             string   `json:"profile"`
	AccessToken         string   `json:"access_token"`
	RefreshToken        string   `json:"refresh_token"`
	ExpiryDate          string   `json:"expiry_date"`
	Scopes              []string `json:"scopes"`
	Type                AuthType `json:"type"`
	ServiceAccountEmail string   `json:"service_account_email,omitempty"`
	ImpersonatedUser    string   `json:"impersonated_user,omitempty"`
}
