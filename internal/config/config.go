package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "DRIVESYNC_"
	// DefaultIgnoreFileName is read from the local root when present
	DefaultIgnoreFileName = ".drivesyncignore"
)

// AuthMode selects how the remote session is established
type AuthMode string

const (
	AuthModeServiceAccount  AuthMode = "service_account"
	AuthModePersonalAccount AuthMode = "personal_account"
)

// Config holds application configuration
type Config struct {
	// AuthMode is service_account or personal_account
	AuthMode AuthMode `json:"authMode" mapstructure:"authMode"`

	// ServiceAccountKeyFile is the JSON key used in service_account mode
	ServiceAccountKeyFile string `json:"serviceAccountKeyFile" mapstructure:"serviceAccountKeyFile"`

	// ClientSecretsFile is the OAuth client used in personal_account mode
	ClientSecretsFile string `json:"clientSecretsFile" mapstructure:"clientSecretsFile"`

	// TokenFile optionally persists the personal OAuth token outside the credential store
	TokenFile string `json:"tokenFile" mapstructure:"tokenFile"`

	// ImpersonateUser enables domain-wide delegation for service accounts
	ImpersonateUser string `json:"impersonateUser" mapstructure:"impersonateUser"`

	// DefaultProfile is the default authentication profile to use
	DefaultProfile string `json:"defaultProfile" mapstructure:"defaultProfile"`

	// DefaultOutputFormat is the default output format (json, table)
	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat" mapstructure:"defaultOutputFormat"`

	// MaxRetries is the maximum number of transport retries; 0 disables retry
	MaxRetries int `json:"maxRetries" mapstructure:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay" mapstructure:"retryBaseDelay"`

	// RequestTimeout is the HTTP request timeout in seconds
	RequestTimeout int `json:"requestTimeout" mapstructure:"requestTimeout"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel" mapstructure:"logLevel"`

	// ExcludePatterns are gitignore-style patterns skipped on both sides
	ExcludePatterns []string `json:"excludePatterns" mapstructure:"excludePatterns"`

	// IgnoreFileName is read from the local root when present
	IgnoreFileName string `json:"ignoreFileName" mapstructure:"ignoreFileName"`

	// HistoryEnabled records every run in the local journal
	HistoryEnabled bool `json:"historyEnabled" mapstructure:"historyEnabled"`

	// ColorOutput enables color output for console logs
	ColorOutput bool `json:"colorOutput" mapstructure:"colorOutput"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		AuthMode:            AuthModeServiceAccount,
		DefaultProfile:      "default",
		DefaultOutputFormat: types.OutputFormatTable,
		MaxRetries:          0,
		RetryBaseDelay:      1000, // 1 second
		RequestTimeout:      60,   // 60 seconds
		LogLevel:            "normal",
		ExcludePatterns:     []string{},
		IgnoreFileName:      DefaultIgnoreFileName,
		HistoryEnabled:      true,
		ColorOutput:         true,
	}
}

// envBindings maps config keys to their environment variable suffixes
var envBindings = map[string]string{
	"authMode":              "AUTH_MODE",
	"serviceAccountKeyFile": "SERVICE_ACCOUNT_KEY_FILE",
	"clientSecretsFile":     "CLIENT_SECRETS_FILE",
	"tokenFile":             "TOKEN_FILE",
	"impersonateUser":       "IMPERSONATE_USER",
	"defaultProfile":        "DEFAULT_PROFILE",
	"defaultOutputFormat":   "OUTPUT_FORMAT",
	"maxRetries":            "MAX_RETRIES",
	"retryBaseDelay":        "RETRY_BASE_DELAY",
	"requestTimeout":        "REQUEST_TIMEOUT",
	"logLevel":              "LOG_LEVEL",
	"excludePatterns":       "EXCLUDE",
	"ignoreFileName":        "IGNORE_FILE",
	"historyEnabled":        "HISTORY",
	"colorOutput":           "COLOR_OUTPUT",
}

// Load loads configuration with precedence: env vars > config file > defaults.
// An empty configPath searches the config directory; a missing file there is not an error.
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("json")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir, err := GetConfigDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(configDir)
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
	}

	defaults := DefaultConfig()
	v.SetDefault("authMode", string(defaults.AuthMode))
	v.SetDefault("serviceAccountKeyFile", defaults.ServiceAccountKeyFile)
	v.SetDefault("clientSecretsFile", defaults.ClientSecretsFile)
	v.SetDefault("tokenFile", defaults.TokenFile)
	v.SetDefault("impersonateUser", defaults.ImpersonateUser)
	v.SetDefault("defaultProfile", defaults.DefaultProfile)
	v.SetDefault("defaultOutputFormat", string(defaults.DefaultOutputFormat))
	v.SetDefault("maxRetries", defaults.MaxRetries)
	v.SetDefault("retryBaseDelay", defaults.RetryBaseDelay)
	v.SetDefault("requestTimeout", defaults.RequestTimeout)
	v.SetDefault("logLevel", defaults.LogLevel)
	v.SetDefault("excludePatterns", defaults.ExcludePatterns)
	v.SetDefault("ignoreFileName", defaults.IgnoreFileName)
	v.SetDefault("historyEnabled", defaults.HistoryEnabled)
	v.SetDefault("colorOutput", defaults.ColorOutput)

	for key, suffix := range envBindings {
		if err := v.BindEnv(key, EnvPrefix+suffix); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return v, nil
}

// normalize trims list values and expands ~ in file paths
func (c *Config) normalize() {
	patterns := make([]string, 0, len(c.ExcludePatterns))
	for _, p := range c.ExcludePatterns {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	c.ExcludePatterns = patterns

	for _, p := range []*string{&c.ServiceAccountKeyFile, &c.ClientSecretsFile, &c.TokenFile} {
		if expanded, err := homedir.Expand(*p); err == nil {
			*p = expanded
		}
	}
}

// Save writes the configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo("")
}

// SaveTo validates and writes the configuration as JSON with mode 0600.
// An empty path means the default config file.
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Keys lists every settable key in display order
func Keys() []string {
	return []string{
		"authMode", "serviceAccountKeyFile", "clientSecretsFile", "tokenFile", "impersonateUser",
		"defaultProfile", "defaultOutputFormat", "maxRetries", "retryBaseDelay", "requestTimeout",
		"logLevel", "excludePatterns", "ignoreFileName", "historyEnabled", "colorOutput",
	}
}

// Get renders one key in the string form Set accepts
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "authMode":
		return string(c.AuthMode), nil
	case "serviceAccountKeyFile":
		return c.ServiceAccountKeyFile, nil
	case "clientSecretsFile":
		return c.ClientSecretsFile, nil
	case "tokenFile":
		return c.TokenFile, nil
	case "impersonateUser":
		return c.ImpersonateUser, nil
	case "defaultProfile":
		return c.DefaultProfile, nil
	case "defaultOutputFormat":
		return string(c.DefaultOutputFormat), nil
	case "maxRetries":
		return strconv.Itoa(c.MaxRetries), nil
	case "retryBaseDelay":
		return strconv.Itoa(c.RetryBaseDelay), nil
	case "requestTimeout":
		return strconv.Itoa(c.RequestTimeout), nil
	case "logLevel":
		return c.LogLevel, nil
	case "excludePatterns":
		return strings.Join(c.ExcludePatterns, ","), nil
	case "ignoreFileName":
		return c.IgnoreFileName, nil
	case "historyEnabled":
		return strconv.FormatBool(c.HistoryEnabled), nil
	case "colorOutput":
		return strconv.FormatBool(c.ColorOutput), nil
	}
	return "", fmt.Errorf("unknown config key: %s", key)
}

// Set assigns a single key from its string form, as used by `config set`
func (c *Config) Set(key, value string) error {
	switch key {
	case "authMode":
		c.AuthMode = AuthMode(value)
	case "serviceAccountKeyFile":
		c.ServiceAccountKeyFile = value
	case "clientSecretsFile":
		c.ClientSecretsFile = value
	case "tokenFile":
		c.TokenFile = value
	case "impersonateUser":
		c.ImpersonateUser = value
	case "defaultProfile":
		c.DefaultProfile = value
	case "defaultOutputFormat":
		c.DefaultOutputFormat = types.OutputFormat(value)
	case "maxRetries", "retryBaseDelay", "requestTimeout":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		switch key {
		case "maxRetries":
			c.MaxRetries = n
		case "retryBaseDelay":
			c.RetryBaseDelay = n
		default:
			c.RequestTimeout = n
		}
	case "logLevel":
		c.LogLevel = value
	case "excludePatterns":
		c.ExcludePatterns = strings.Split(value, ",")
	case "ignoreFileName":
		c.IgnoreFileName = value
	case "historyEnabled":
		c.HistoryEnabled = parseBool(value)
	case "colorOutput":
		c.ColorOutput = parseBool(value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	c.normalize()
	return c.Validate()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.AuthMode != AuthModeServiceAccount && c.AuthMode != AuthModePersonalAccount {
		return fmt.Errorf("invalid auth mode: %s (must be '%s' or '%s')", c.AuthMode, AuthModeServiceAccount, AuthModePersonalAccount)
	}

	if c.DefaultOutputFormat != types.OutputFormatJSON &&
		c.DefaultOutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.DefaultOutputFormat)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if strings.ContainsAny(c.IgnoreFileName, `/\`) {
		return fmt.Errorf("ignore file name must be a bare file name, got: %s", c.IgnoreFileName)
	}

	return nil
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return homedir.Expand(dir)
	}
	homeDir, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "drivesync"), nil
}

// GetHistoryPath returns the location of the run journal
func GetHistoryPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "history.db"), nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
