// Package filenorm normalizes remote photo filenames into names that are
// safe to create on the local filesystem. It is exported (rather than
// internal) because filename safety is useful independent of the sync
// engine — see spec.md §4.G step 5.b and §8's boundary behaviors.
package filenorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize strips path separators and NUL bytes, trims trailing dots and
// whitespace, and canonicalizes Unicode to NFC form (iCloud commonly
// returns NFD-decomposed names for libraries that originated on macOS).
// Returns ("", false) if normalization would produce an empty string — the
// caller must skip the photo and warn, per spec.md §4.G.
func Normalize(name string) (string, bool) {
	cleaned := stripUnsafeBytes(name)
	cleaned = norm.NFC.String(cleaned)
	cleaned = trimTrailingDotsAndSpace(cleaned)

	if cleaned == "" {
		return "", false
	}

	return cleaned, true
}

// stripUnsafeBytes removes path separators and NUL bytes wherever they
// occur in the name, rather than rejecting the whole name outright — a
// defensive measure against adversarial or merely buggy remote filenames
// such as "../evil.jpg" or "foo\x00bar.jpg".
func stripUnsafeBytes(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	for _, r := range name {
		switch r {
		case '/', '\\', 0:
			continue
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// trimTrailingDotsAndSpace trims the trailing run of '.' and whitespace
// characters. Windows and, less strictly, macOS both reject or silently
// mangle filenames ending in a dot or space; trimming here keeps the
// normalized name portable across the host OS.
func trimTrailingDotsAndSpace(name string) string {
	return strings.TrimRightFunc(name, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
}
