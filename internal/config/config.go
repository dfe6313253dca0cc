package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ROOMCHAT_SERVER_URL.
const EnvPrefix = "ROOMCHAT"

// Config represents the global ~/.roomchat/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
}

// Profile is the per-profile config.toml.
type Profile struct {
	ServerURL         string   `toml:"server_url" validate:"required,url"`
	Username          string   `toml:"username,omitempty" validate:"omitempty,max=64"`
	HistoryLimit      int      `toml:"history_limit" validate:"min=1,max=500"`
	ReconnectAttempts int      `toml:"reconnect_attempts" validate:"min=0"`
	ReconnectDelay    Duration `toml:"reconnect_delay"`
	ConnectTimeout    Duration `toml:"connect_timeout"`
	HTTPTimeout       Duration `toml:"http_timeout"`
	ProbeInterval     Duration `toml:"probe_interval"`
	ResetOnStart      bool     `toml:"reset_on_start"`
	MetricsAddr       string   `toml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
	LogLevel          string   `toml:"log_level" validate:"oneof=debug info warn error"`
}

// Duration is a time.Duration written as "1s" in TOML and the environment.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultProfile returns the values used for anything a profile leaves out.
func DefaultProfile() Profile {
	return Profile{
		ServerURL:         "http://localhost:8000",
		HistoryLimit:      50,
		ReconnectAttempts: 5,
		ReconnectDelay:    Duration(time.Second),
		ConnectTimeout:    Duration(20 * time.Second),
		HTTPTimeout:       Duration(30 * time.Second),
		ProbeInterval:     Duration(5 * time.Second),
		LogLevel:          "info",
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return writeTOML(path, cfg)
}

// LoadProfile reads a profile config over the defaults, applies a .env file
// next to it or in the working directory, then ROOMCHAT_* overrides, and
// validates the result. A missing file is not an error.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if _, err := toml.DecodeFile(path, &p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	_ = godotenv.Load()
	if err := applyEnv(&p); err != nil {
		return nil, err
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile writes a profile config with 0600 permissions.
func SaveProfile(path string, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return writeTOML(path, p)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and formats.
func (p *Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q", f.Field(), f.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, d := range map[string]Duration{
		"reconnect_delay": p.ReconnectDelay,
		"connect_timeout": p.ConnectTimeout,
		"http_timeout":    p.HTTPTimeout,
		"probe_interval":  p.ProbeInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid config: %s must be positive", name)
		}
	}
	return nil
}

// applyEnv overlays ROOMCHAT_<KEY> variables onto p.
func applyEnv(p *Profile) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	str := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	str("server_url", &p.ServerURL)
	str("username", &p.Username)
	str("metrics_addr", &p.MetricsAddr)
	str("log_level", &p.LogLevel)

	for key, dst := range map[string]*int{
		"history_limit":      &p.HistoryLimit,
		"reconnect_attempts": &p.ReconnectAttempts,
	} {
		if v.GetString(key) != "" {
			*dst = v.GetInt(key)
		}
	}
	if v.GetString("reset_on_start") != "" {
		p.ResetOnStart = v.GetBool("reset_on_start")
	}

	for key, dst := range map[string]*Duration{
		"reconnect_delay": &p.ReconnectDelay,
		"connect_timeout": &p.ConnectTimeout,
		"http_timeout":    &p.HTTPTimeout,
		"probe_interval":  &p.ProbeInterval,
	} {
		s := v.GetString(key)
		if s == "" {
			continue
		}
		if err := dst.UnmarshalText([]byte(s)); err != nil {
			return fmt.Errorf("%s_%s: %w", EnvPrefix, strings.ToUpper(key), err)
		}
	}
	return nil
}

func writeTOML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
