//go:build property

package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPreviewErrorProperties checks the comparison and wrapping rules of
// PreviewError over arbitrary codes, messages and paths.
func TestPreviewErrorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	codes := gen.OneConstOf(
		ErrCodeFetchFailed, ErrCodeBadStatus, ErrCodeMalformedPush,
		ErrCodeSuperseded, ErrCodeCrossOrigin, ErrCodeClosed,
	)

	properties.Property("Is compares type and code only", prop.ForAll(
		func(code string, message, path string) bool {
			err := NewNavigationError(code, message).WithPath(path).WithContext("k", message)
			sentinel := &PreviewError{Type: ErrorTypeNavigation, Code: code}
			other := &PreviewError{Type: ErrorTypeNetwork, Code: code}

			return errors.Is(err, sentinel) && !errors.Is(err, other)
		},
		codes, gen.AlphaString(), gen.AlphaString(),
	))

	properties.Property("wrapping keeps type, code and cause reachable", prop.ForAll(
		func(code string, message string) bool {
			cause := fmt.Errorf("cause %s", message)
			err := fmt.Errorf("outer: %w", NewNetworkError(code, message, cause))

			return IsType(err, ErrorTypeNetwork) &&
				IsRecoverable(err) &&
				errors.Is(err, cause) &&
				errors.Is(err, &PreviewError{Type: ErrorTypeNetwork, Code: code})
		},
		codes, gen.AlphaString(),
	))

	properties.Property("message carries code and path", prop.ForAll(
		func(path string) bool {
			msg := ErrStatus("/"+path, 404).Error()
			return strings.Contains(msg, "["+ErrCodeBadStatus+"]") &&
				strings.Contains(msg, "path:/"+path) &&
				strings.Contains(msg, "404")
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
