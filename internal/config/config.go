package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/ucli-tools/registry/internal/github"
	"github.com/ucli-tools/registry/internal/paths"
)

// Config keys
const (
	KeyRegistryFile = "registry_file"
	KeyDryRun       = "dry_run"
	KeyVerbose      = "verbose"
	KeyJSON         = "json"
	KeyAPIURL       = "api_url"
	KeyWebURL       = "web_url"
	KeyTimeout      = "timeout"
	KeyToken        = "token"
	KeyUserAgent    = "user_agent"
	KeyHistoryDB    = "history_db"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. UCLI_REGISTRY_FILE.
const EnvPrefix = "UCLI"

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the resolved configuration of one run
type Config struct {
	RegistryFile string
	DryRun       bool
	Verbose      bool
	JSON         bool
	APIURL       string
	WebURL       string
	Timeout      time.Duration
	Token        string
	UserAgent    string
	HistoryDB    string // empty disables run history
}

// New returns a viper instance with defaults and environment bindings set.
// Flags are bound by the caller.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyRegistryFile, paths.DefaultRegistryFile)
	v.SetDefault(KeyDryRun, false)
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyJSON, false)
	v.SetDefault(KeyAPIURL, github.DefaultAPIURL)
	v.SetDefault(KeyWebURL, github.DefaultWebURL)
	v.SetDefault(KeyTimeout, github.DefaultTimeout)
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyUserAgent, github.DefaultUserAgent)
	v.SetDefault(KeyHistoryDB, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// UCLI_TOKEN wins over the conventional GITHUB_TOKEN
	_ = v.BindEnv(KeyToken, EnvPrefix+"_TOKEN", "GITHUB_TOKEN")

	return v
}

// ReadFile loads the config file. An explicit path must exist; otherwise
// .ucli-registry.yaml is searched in the working directory and then in the
// user config directory, and its absence is not an error. Returns the file
// used, or "" when none was found.
func ReadFile(v *viper.Viper, explicit string) (string, error) {
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(paths.ConfigFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := paths.DefaultConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load resolves and validates the configuration held by v. Without a
// configured token, one stored in the OS keyring is used.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		RegistryFile: strings.TrimSpace(v.GetString(KeyRegistryFile)),
		DryRun:       v.GetBool(KeyDryRun),
		Verbose:      v.GetBool(KeyVerbose),
		JSON:         v.GetBool(KeyJSON),
		APIURL:       strings.TrimSpace(v.GetString(KeyAPIURL)),
		WebURL:       strings.TrimSpace(v.GetString(KeyWebURL)),
		Timeout:      v.GetDuration(KeyTimeout),
		Token:        strings.TrimSpace(v.GetString(KeyToken)),
		UserAgent:    strings.TrimSpace(v.GetString(KeyUserAgent)),
		HistoryDB:    strings.TrimSpace(v.GetString(KeyHistoryDB)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Token == "" {
		cfg.Token = KeyringToken(cfg.WebURL)
	}
	return cfg, nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.RegistryFile == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, KeyRegistryFile)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, KeyTimeout, c.Timeout)
	}
	if err := validateURL(c.APIURL); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, KeyAPIURL, err)
	}
	if err := validateURL(c.WebURL); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, KeyWebURL, err)
	}
	if c.UserAgent == "" {
		c.UserAgent = github.DefaultUserAgent
	}
	return nil
}

// ClientOptions translates the configuration into GitHub client options
func (c *Config) ClientOptions() []github.Option {
	opts := []github.Option{
		github.WithAPIURL(c.APIURL),
		github.WithWebURL(c.WebURL),
		github.WithTimeout(c.Timeout),
		github.WithUserAgent(c.UserAgent),
	}
	if c.Token != "" {
		opts = append(opts, github.WithToken(c.Token))
	}
	return opts
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme in %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
