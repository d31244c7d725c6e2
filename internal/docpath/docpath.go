// Package docpath canonicalizes document paths so that the path shown in the
// address bar and the path carried by a push message can be compared.
//
// A location may be percent-encoded ("/notes/caf%C3%A9.md") while the server
// announces decoded paths ("/notes/café.md"). Both canonicalize to the same
// string, and two paths name the same document iff their canonical forms are
// byte-equal.
package docpath

import (
	"net/url"
	"strings"
)

// ControlPrefix marks reserved server endpoints (/.ws, /.contents, /.raw ...)
// that are never handled as in-app navigations.
const ControlPrefix = "/."

// Canonical decodes every segment of p and joins the segments with "/".
// Segments with malformed escapes are kept verbatim.
func Canonical(p string) string {
	if p == "" {
		return ""
	}

	segments := strings.Split(p, "/")
	for i, segment := range segments {
		if !strings.Contains(segment, "%") {
			continue
		}
		decoded, err := url.PathUnescape(segment)
		if err != nil {
			continue
		}
		segments[i] = decoded
	}

	return strings.Join(segments, "/")
}

// Same reports whether a and b identify the same document.
func Same(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// IsControl reports whether p addresses a reserved server endpoint.
func IsControl(p string) bool {
	return strings.HasPrefix(p, ControlPrefix)
}

// Join appends a document path to an endpoint prefix such as "/.contents",
// keeping exactly one slash between them.
func Join(prefix, p string) string {
	prefix = strings.TrimRight(prefix, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	return prefix + p
}
