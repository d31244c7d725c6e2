//go:build property
// +build property

package config

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/viper"
)

// TestReconnectValidationProperties checks the backoff rules over arbitrary
// durations.
func TestReconnectValidationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	base := func() *Config {
		cfg, err := LoadFrom(viper.New())
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	properties.Property("enabled reconnect is valid iff 0 < initial <= max", prop.ForAll(
		func(initialMs, maxMs int64) bool {
			cfg := base()
			cfg.Reconnect.InitialBackoff = time.Duration(initialMs) * time.Millisecond
			cfg.Reconnect.MaxBackoff = time.Duration(maxMs) * time.Millisecond

			want := initialMs > 0 && maxMs >= initialMs
			return !Validate(cfg).HasErrors() == want
		},
		gen.Int64Range(-1000, 100000),
		gen.Int64Range(-1000, 100000),
	))

	properties.Property("disabled reconnect ignores backoff values", prop.ForAll(
		func(initialMs, maxMs int64) bool {
			cfg := base()
			cfg.Reconnect.Enabled = false
			cfg.Reconnect.InitialBackoff = time.Duration(initialMs) * time.Millisecond
			cfg.Reconnect.MaxBackoff = time.Duration(maxMs) * time.Millisecond

			return !Validate(cfg).HasErrors()
		},
		gen.Int64Range(-1000, 100000),
		gen.Int64Range(-1000, 100000),
	))

	properties.TestingRun(t)
}
