package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

var engineUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// FoldDiacritics decomposes text (NFD) and drops combining marks, so "è"
// becomes "e". Text that cannot be transformed is returned unchanged.
func FoldDiacritics(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return folded
}

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// EngineFileName reduces name to the character set engines accept inside
// their private working directory: diacritics are folded and every other
// character outside [a-zA-Z0-9._-] becomes an underscore. Leading dots are
// replaced so the result never names a hidden file or a parent directory.
func EngineFileName(name string) string {
	safe := engineUnsafe.ReplaceAllString(FoldDiacritics(strings.TrimSpace(name)), "_")
	if strings.HasPrefix(safe, ".") {
		safe = "_" + safe[1:]
	}
	if safe == "" {
		return "file"
	}
	return safe
}
