//go:build property

package docpath

import (
	"fmt"
	"net/url"
	"strings"
	"testing"
	"unicode"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// escapeEvery percent-encodes every byte of s, the most aggressive encoding a
// browser could hand us.
func escapeEvery(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		fmt.Fprintf(&b, "%%%02X", s[i])
	}
	return b.String()
}

func encodeSegments(segments []string, modes []int) string {
	encoded := make([]string, len(segments))
	for i, seg := range segments {
		mode := 0
		if i < len(modes) {
			mode = modes[i]
		}
		switch mode {
		case 1:
			encoded[i] = url.PathEscape(seg)
		case 2:
			encoded[i] = escapeEvery(seg)
		default:
			encoded[i] = seg
		}
	}
	return "/" + strings.Join(encoded, "/")
}

func segmentGen() gopter.Gen {
	return gopter.CombineGens(
		gen.AlphaString(),
		gen.UnicodeString(unicode.Latin),
		gen.Bool(),
	).Map(func(values []interface{}) string {
		seg := values[0].(string) + values[1].(string)
		if values[2].(bool) {
			seg += " notes"
		}
		return seg
	})
}

func TestCanonicalProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1357)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("canonicalization is idempotent", prop.ForAll(
		func(segments []string) bool {
			p := "/" + strings.Join(segments, "/")
			once := Canonical(p)
			return Canonical(once) == once
		},
		gen.SliceOf(segmentGen()),
	))

	properties.Property("every encoding of a path canonicalizes the same", prop.ForAll(
		func(segments []string, modes []int) bool {
			plain := "/" + strings.Join(segments, "/")
			return Canonical(encodeSegments(segments, modes)) == Canonical(plain)
		},
		gen.SliceOf(segmentGen()),
		gen.SliceOf(gen.IntRange(0, 2)),
	))

	properties.Property("distinct decoded paths stay distinct", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			return !Same("/"+url.PathEscape(a), "/"+b)
		},
		segmentGen(),
		segmentGen(),
	))

	properties.TestingRun(t)
}
