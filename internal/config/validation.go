package config

import (
	"fmt"
	"strings"

	"github.com/conneroisu/livepreview/internal/docpath"
	"github.com/conneroisu/livepreview/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var b strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		b.WriteString(title + ":\n")
		for _, issue := range issues {
			fmt.Fprintf(&b, "  • %s: %s\n", issue.Field, issue.Message)
			for _, s := range issue.Suggestions {
				fmt.Fprintf(&b, "    hint: %s\n", s)
			}
		}
	}
	write("Validation errors", vr.Errors)
	write("Validation warnings", vr.Warnings)

	return b.String()
}

func (vr *ValidationResult) fail(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) warn(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// Validate checks every value of cfg.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	if cfg.Server.URL != "" {
		if _, err := parseServerURL(cfg.Server.URL); err != nil {
			result.fail("server.url", cfg.Server.URL, err.Error(), "use the address the preview server prints, e.g. http://localhost:8080")
		}
	}

	validateReservedPath(result, "channel.path", cfg.Channel.Path)
	validateReservedPath(result, "navigation.contents_prefix", cfg.Navigation.ContentsPrefix)

	if cfg.Channel.Heartbeat < 0 {
		result.fail("channel.heartbeat", cfg.Channel.Heartbeat, "must not be negative", "use 0 to disable heartbeats")
	}
	if cfg.Channel.DialTimeout < 0 {
		result.fail("channel.dial_timeout", cfg.Channel.DialTimeout, "must not be negative")
	}
	if cfg.Channel.ReadLimit < 0 {
		result.fail("channel.read_limit", cfg.Channel.ReadLimit, "must not be negative")
	}
	if cfg.HTTP.Timeout < 0 {
		result.fail("http.timeout", cfg.HTTP.Timeout, "must not be negative", "use 0 for no timeout")
	}

	if cfg.Reconnect.Enabled {
		if cfg.Reconnect.InitialBackoff <= 0 {
			result.fail("reconnect.initial_backoff", cfg.Reconnect.InitialBackoff, "must be positive when reconnecting is enabled")
		}
		if cfg.Reconnect.MaxBackoff < cfg.Reconnect.InitialBackoff {
			result.fail("reconnect.max_backoff", cfg.Reconnect.MaxBackoff, "must not be shorter than reconnect.initial_backoff")
		}
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		result.fail("log.level", cfg.Log.Level, err.Error(), "valid levels: debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		result.fail("log.format", cfg.Log.Format, "unknown log format", "valid formats: text, json")
	}

	switch strings.ToLower(cfg.Output.Format) {
	case "markdown", "md", "html":
	default:
		result.fail("output.format", cfg.Output.Format, "unknown output format", "valid formats: markdown, html")
	}

	if cfg.Navigation.RebindSidebar && !cfg.Reconnect.Enabled {
		result.warn("navigation.rebind_sidebar", true, "has little effect without reconnecting, the sidebar stops updating once the channel drops")
	}

	return result
}

// validateReservedPath requires one of the server's reserved "/." paths.
func validateReservedPath(result *ValidationResult, field, p string) {
	switch {
	case p == "":
		result.fail(field, p, "must not be empty")
	case !docpath.IsControl(p):
		result.fail(field, p, "must be a reserved path starting with /.", "the server serves /.ws and /.contents")
	case strings.ContainsAny(p, "?#"):
		result.fail(field, p, "must be a plain path without query or fragment")
	}
}
