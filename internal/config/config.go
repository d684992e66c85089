// Package config loads the optional TOML configuration file, applies
// environment overrides for secrets and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Environment variables that override secrets from the file.
const (
	EnvAccessToken  = "TEAMSENUM_ACCESS_TOKEN"
	EnvSkypeToken   = "TEAMSENUM_SKYPE_TOKEN"
	EnvRefreshToken = "TEAMSENUM_REFRESH_TOKEN"
)

// Defaults.
const (
	DefaultThreads = 7
	DefaultTimeout = 30 * time.Second
	DefaultRegion  = "emea"
)

// Duration is a time.Duration read from a TOML string such as "250ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full configuration.
type Config struct {
	Auth     AuthConfig     `toml:"auth"`
	Enum     EnumConfig     `toml:"enum"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
}

// AuthConfig holds credentials and the refresh grant settings.
type AuthConfig struct {
	AccessToken   string   `toml:"access_token"`
	SkypeToken    string   `toml:"skype_token"`
	RefreshToken  string   `toml:"refresh_token"`
	ClientID      string   `toml:"client_id"`
	TokenURL      string   `toml:"token_url" validate:"omitempty,url"`
	Scopes        []string `toml:"scopes"`
	TeamsEnrolled bool     `toml:"teams_enrolled"`
}

// EnumConfig controls the enumeration run.
type EnumConfig struct {
	AccountType string   `toml:"account_type" validate:"omitempty,oneof=personal corporate"`
	Threads     int      `toml:"threads" validate:"gte=0"`
	Delay       Duration `toml:"delay" validate:"gte=0"`
	Timeout     Duration `toml:"timeout" validate:"gte=0"`
	Presence    bool     `toml:"presence"`
	// PresenceVariant selects the presence backend. Empty follows AccountType.
	PresenceVariant string `toml:"presence_variant" validate:"omitempty,oneof=teams live"`
	Region          string `toml:"region" validate:"omitempty,alphanum"`
	Session         string `toml:"session" validate:"max=8"`
	// RateLimit caps requests per second to each backend. Zero keeps the built-in limits.
	RateLimit float64 `toml:"rate_limit" validate:"gte=0"`
}

// DatabaseConfig configures relational logging.
type DatabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	Driver        string `toml:"driver" validate:"omitempty,oneof=sqlite postgres"`
	DSN           string `toml:"dsn" validate:"required_if=Enabled true"`
	PresenceTable string `toml:"presence_table" validate:"omitempty,identifier"`
	OOOTable      string `toml:"ooo_table" validate:"omitempty,identifier"`
	UserInfoTable string `toml:"user_info_table" validate:"omitempty,identifier"`
	Migrate       bool   `toml:"migrate"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=console json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Enum: EnumConfig{
			AccountType: "corporate",
			Threads:     DefaultThreads,
			Timeout:     Duration(DefaultTimeout),
			Presence:    true,
			Region:      DefaultRegion,
			Session:     "default",
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Migrate: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return cfg, fmt.Errorf("config %s: %s", path, strict.String())
		}
		var decErr *toml.DecodeError
		if errors.As(err, &decErr) {
			row, col := decErr.Position()
			return cfg, fmt.Errorf("config %s:%d:%d: %w", path, row, col, err)
		}
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides secrets with values found through lookup, normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAccessToken); ok && v != "" {
		c.Auth.AccessToken = v
	}
	if v, ok := lookup(EnvSkypeToken); ok && v != "" {
		c.Auth.SkypeToken = v
	}
	if v, ok := lookup(EnvRefreshToken); ok && v != "" {
		c.Auth.RefreshToken = v
	}
}

var (
	vOnce    sync.Once
	validate *validator.Validate
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func validatorInstance() *validator.Validate {
	vOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			return identifier.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Validate checks every field constraint and reports all violations at once.
func (c *Config) Validate() error {
	err := validatorInstance().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
