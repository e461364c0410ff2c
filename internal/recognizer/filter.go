package recognizer

import (
	"strings"
	"unicode"

	"github.com/kozaktomas/face-id/internal/facestore"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nameKey is the metadata key searched by List queries.
const nameKey = "name"

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeName normalizes a name for comparison (lowercase, no diacritics, spaces for dashes).
func NormalizeName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}

// matchesQuery reports whether an entry is selected by a List query: the
// user ID equals the query, or the normalized "name" metadata contains it.
func matchesQuery(id facestore.UserID, meta facestore.Metadata, query string) bool {
	if query == "" {
		return true
	}
	if string(id) == strings.TrimSpace(query) {
		return true
	}
	name, ok := meta[nameKey].(string)
	if !ok {
		return false
	}
	return strings.Contains(NormalizeName(name), NormalizeName(query))
}
