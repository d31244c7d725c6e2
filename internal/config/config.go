// Package config provides configuration management for livepreview using
// Viper, loading from a YAML file, environment variables and command-line
// flags.
//
// Environment variables use the LIVEPREVIEW_ prefix with dots replaced by
// underscores, e.g. LIVEPREVIEW_RECONNECT_MAX_BACKOFF=1m.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	perrors "github.com/conneroisu/livepreview/internal/errors"
)

// Config is the effective configuration of the client.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Channel    ChannelConfig    `mapstructure:"channel"`
	Reconnect  ReconnectConfig  `mapstructure:"reconnect"`
	Navigation NavigationConfig `mapstructure:"navigation"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	Output     OutputConfig     `mapstructure:"output"`
}

type ServerConfig struct {
	// URL of the preview server. A command-line URL overrides it.
	URL string `mapstructure:"url"`
}

type ChannelConfig struct {
	Path        string        `mapstructure:"path"`
	Heartbeat   time.Duration `mapstructure:"heartbeat"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	ReadLimit   int64         `mapstructure:"read_limit"`
}

type ReconnectConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type NavigationConfig struct {
	ContentsPrefix string `mapstructure:"contents_prefix"`
	RebindSidebar  bool   `mapstructure:"rebind_sidebar"`
}

type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type OutputConfig struct {
	Format          string `mapstructure:"format"`
	ClearScreen     bool   `mapstructure:"clear_screen"`
	DefaultLanguage string `mapstructure:"default_language"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "")
	v.SetDefault("channel.path", "/.ws")
	v.SetDefault("channel.heartbeat", 30*time.Second)
	v.SetDefault("channel.dial_timeout", 10*time.Second)
	v.SetDefault("channel.read_limit", int64(8<<20))
	v.SetDefault("reconnect.enabled", true)
	v.SetDefault("reconnect.initial_backoff", 500*time.Millisecond)
	v.SetDefault("reconnect.max_backoff", 30*time.Second)
	v.SetDefault("navigation.contents_prefix", "/.contents")
	v.SetDefault("navigation.rebind_sidebar", false)
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("output.format", "markdown")
	v.SetDefault("output.clear_screen", false)
	v.SetDefault("output.default_language", "")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v. Defaults are
// registered on v first.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, perrors.NewConfigError(perrors.ErrCodeConfigInvalid, "cannot decode configuration: "+err.Error())
	}

	if result := Validate(&cfg); result.HasErrors() {
		first := result.Errors[0]
		return nil, perrors.NewConfigError(perrors.ErrCodeConfigInvalid, "invalid configuration: "+first.Error()).
			WithContext("errors", len(result.Errors))
	}

	return &cfg, nil
}

// Target resolves the page to open. arg may be an absolute URL, a path on
// server.url, or empty to open server.url itself.
func (c *Config) Target(arg string) (*url.URL, error) {
	if strings.Contains(arg, "://") {
		return parseServerURL(arg)
	}
	if c.Server.URL == "" {
		return nil, perrors.NewConfigError(perrors.ErrCodeInvalidURL,
			"no preview URL given: pass one as an argument or set server.url")
	}

	base, err := parseServerURL(c.Server.URL)
	if err != nil {
		return nil, err
	}
	if arg == "" {
		return base, nil
	}
	if !strings.HasPrefix(arg, "/") {
		arg = "/" + arg
	}
	ref, err := url.Parse(arg)
	if err != nil {
		return nil, perrors.NewConfigError(perrors.ErrCodeInvalidURL, "invalid document path "+arg)
	}

	return base.ResolveReference(ref), nil
}

// YAML renders the configuration the way a config file would spell it.
func (c *Config) YAML() ([]byte, error) {
	doc := map[string]any{
		"server": map[string]any{"url": c.Server.URL},
		"channel": map[string]any{
			"path":         c.Channel.Path,
			"heartbeat":    c.Channel.Heartbeat.String(),
			"dial_timeout": c.Channel.DialTimeout.String(),
			"read_limit":   c.Channel.ReadLimit,
		},
		"reconnect": map[string]any{
			"enabled":         c.Reconnect.Enabled,
			"initial_backoff": c.Reconnect.InitialBackoff.String(),
			"max_backoff":     c.Reconnect.MaxBackoff.String(),
		},
		"navigation": map[string]any{
			"contents_prefix": c.Navigation.ContentsPrefix,
			"rebind_sidebar":  c.Navigation.RebindSidebar,
		},
		"http": map[string]any{"timeout": c.HTTP.Timeout.String()},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
		"output": map[string]any{
			"format":           c.Output.Format,
			"clear_screen":     c.Output.ClearScreen,
			"default_language": c.Output.DefaultLanguage,
		},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}

	return out, nil
}

func parseServerURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, perrors.NewConfigError(perrors.ErrCodeInvalidURL, "invalid preview URL: "+err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, perrors.NewConfigError(perrors.ErrCodeInvalidURL, "preview URL must use http or https: "+raw)
	}
	if u.Host == "" {
		return nil, perrors.NewConfigError(perrors.ErrCodeInvalidURL, "preview URL has no host: "+raw)
	}

	return u, nil
}
