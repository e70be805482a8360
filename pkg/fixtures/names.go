package fixtures

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// clubSuffixes are dropped when comparing team names.
var clubSuffixes = []string{" fc", " afc", " cf", " sc", " bc"}

// NormalizeName normalizes a team name for matching: lowercase, accents
// removed, common club suffixes dropped and whitespace collapsed.
func NormalizeName(name string) string {
	name = strings.ToLower(name)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	name = strings.Join(strings.Fields(name), " ")
	for _, suffix := range clubSuffixes {
		name = strings.TrimSuffix(name, suffix)
	}
	name = strings.TrimPrefix(name, "fc ")

	return strings.TrimSpace(name)
}
