package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/sig-0/fxcache/provider/bcv"
	"github.com/sig-0/fxcache/provider/erapi"
	"github.com/sig-0/fxcache/provider/erapipro"
	"github.com/sig-0/fxcache/session"
	"github.com/sig-0/fxcache/types"
)

const DefaultListenAddress = "0.0.0.0:8545"

const (
	DefaultRateTTL           = "40m"
	DefaultPruneInterval     = "5m"
	DefaultHeartbeatInterval = "20s"
	DefaultProviderTimeout   = "30s"
)

var (
	ErrInvalidListenAddress = errors.New("invalid listen address")
	ErrInvalidDuration      = errors.New("invalid duration")
	ErrInvalidSession       = errors.New("invalid session defaults")
	ErrMissingProviderURL   = errors.New("missing provider URL")
)

var listenAddressRegex = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}:\d+$`)

// Config defines the base-level server configuration
type Config struct {
	// The associated CORS config, if any
	CORSConfig *CORS `toml:"cors_config"`

	// The session state used until the user changes it
	Session *Session `toml:"session"`

	// The remote rate provider endpoints
	Providers *Providers `toml:"providers"`

	// The address at which the server will be served.
	// Format should be: <IP>:<PORT>
	ListenAddress string `toml:"listen_address"`

	// How long a fetched rate stays fresh (Go duration)
	RateTTL string `toml:"rate_ttl"`

	// How often expired rates are pruned (Go duration)
	PruneInterval string `toml:"prune_interval"`

	// How often the keep-alive heartbeat runs (Go duration)
	HeartbeatInterval string `toml:"heartbeat_interval"`

	// The per-request timeout of the remote providers (Go duration)
	ProviderTimeout string `toml:"provider_timeout"`
}

// CORS defines the CORS middleware configuration
type CORS struct {
	AllowedOrigins []string `toml:"allowed_origins"`
	AllowedMethods []string `toml:"allowed_methods"`
	AllowedHeaders []string `toml:"allowed_headers"`
}

// Session defines the default session state
type Session struct {
	BaseCurrency string   `toml:"base_currency"`
	SourceAPI    string   `toml:"source_api"`
	CurrencyList []string `toml:"currency_list"`
}

// Providers defines the remote provider endpoints.
// API keys are never part of the file config
type Providers struct {
	ExchangeRateAPIURL    string `toml:"exchangerate_api_url"`
	ExchangeRateAPIProURL string `toml:"exchangerate_api_pro_url"`
	BCVURL                string `toml:"bcv_url"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:     DefaultListenAddress,
		CORSConfig:        DefaultCORSConfig(),
		Session:           DefaultSession(),
		Providers:         DefaultProviders(),
		RateTTL:           DefaultRateTTL,
		PruneInterval:     DefaultPruneInterval,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ProviderTimeout:   DefaultProviderTimeout,
	}
}

// DefaultCORSConfig returns the default CORS configuration,
// which allows the message endpoint to be called from any origin
func DefaultCORSConfig() *CORS {
	return &CORS{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Accept", "Content-Type"},
	}
}

// DefaultSession returns the default session state
func DefaultSession() *Session {
	state := session.DefaultState()

	list := make([]string, 0, len(state.TrackedList))
	for _, c := range state.TrackedList {
		list = append(list, c.String())
	}

	return &Session{
		BaseCurrency: state.BaseCurrency.String(),
		SourceAPI:    state.Source.String(),
		CurrencyList: list,
	}
}

// DefaultProviders returns the default provider endpoints
func DefaultProviders() *Providers {
	return &Providers{
		ExchangeRateAPIURL:    erapi.DefaultURL,
		ExchangeRateAPIProURL: erapipro.DefaultURL,
		BCVURL:                bcv.DefaultURL,
	}
}

// ValidateConfig validates the server configuration
func ValidateConfig(config *Config) error {
	// Validate the listen address
	if !listenAddressRegex.MatchString(config.ListenAddress) {
		return ErrInvalidListenAddress
	}

	// Validate the durations
	durations := map[string]string{
		"rate_ttl":           config.RateTTL,
		"prune_interval":     config.PruneInterval,
		"heartbeat_interval": config.HeartbeatInterval,
		"provider_timeout":   config.ProviderTimeout,
	}

	for name, raw := range durations {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %s = %q", ErrInvalidDuration, name, raw)
		}
	}

	// Validate the session defaults
	if config.Session != nil {
		if _, err := config.Session.State(); err != nil {
			return err
		}
	}

	// Validate the provider endpoints
	if config.Providers != nil {
		if config.Providers.ExchangeRateAPIURL == "" ||
			config.Providers.ExchangeRateAPIProURL == "" ||
			config.Providers.BCVURL == "" {
			return ErrMissingProviderURL
		}
	}

	return nil
}

// Durations holds the parsed duration settings
type Durations struct {
	RateTTL           time.Duration
	PruneInterval     time.Duration
	HeartbeatInterval time.Duration
	ProviderTimeout   time.Duration
}

// Durations parses the duration settings. The config should be validated first
func (c *Config) Durations() (Durations, error) {
	var (
		out Durations
		err error
	)

	fields := []struct {
		dst *time.Duration
		raw string
	}{
		{&out.RateTTL, c.RateTTL},
		{&out.PruneInterval, c.PruneInterval},
		{&out.HeartbeatInterval, c.HeartbeatInterval},
		{&out.ProviderTimeout, c.ProviderTimeout},
	}

	for _, f := range fields {
		if *f.dst, err = time.ParseDuration(f.raw); err != nil {
			return Durations{}, fmt.Errorf("%w: %q", ErrInvalidDuration, f.raw)
		}
	}

	return out, nil
}

// State converts the defaults into a session state
func (s *Session) State() (session.State, error) {
	state := session.DefaultState()

	if s.BaseCurrency != "" {
		base, err := session.ValidateCurrency(s.BaseCurrency)
		if err != nil {
			return session.State{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
		}

		state.BaseCurrency = base
	}

	if s.SourceAPI != "" {
		state.Source = types.Source(s.SourceAPI)
	}

	if s.CurrencyList != nil {
		state.TrackedList = make([]types.Currency, 0, len(s.CurrencyList))

		for _, code := range s.CurrencyList {
			c, err := session.ValidateCurrency(code)
			if err != nil {
				return session.State{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
			}

			state.TrackedList = append(state.TrackedList, c)
		}
	}

	return state, nil
}

// Read reads the configuration from the given path.
// Settings missing from the file keep their default values
func Read(path string) (*Config, error) {
	// Read the config file
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Parse it
	var cfg Config

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults fills in the settings left out of a config file
func applyDefaults(cfg *Config) {
	def := DefaultConfig()

	setString := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}

	setString(&cfg.ListenAddress, def.ListenAddress)
	setString(&cfg.RateTTL, def.RateTTL)
	setString(&cfg.PruneInterval, def.PruneInterval)
	setString(&cfg.HeartbeatInterval, def.HeartbeatInterval)
	setString(&cfg.ProviderTimeout, def.ProviderTimeout)

	if cfg.Session == nil {
		cfg.Session = def.Session
	}

	if cfg.Providers == nil {
		cfg.Providers = def.Providers
	}

	setString(&cfg.Providers.ExchangeRateAPIURL, def.Providers.ExchangeRateAPIURL)
	setString(&cfg.Providers.ExchangeRateAPIProURL, def.Providers.ExchangeRateAPIProURL)
	setString(&cfg.Providers.BCVURL, def.Providers.BCVURL)
}
