package event

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var hashtagRe = regexp.MustCompile(`(?:\s|\A)#([A-Za-z0-9_\-]+)`)

// FindHashtags returns the distinct hashtags in content, in order of first
// appearance. Case variants are kept as written.
func FindHashtags(content string) []string {
	matches := hashtagRe.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	tags := make([]string, 0, len(matches))

	for _, m := range matches {
		tag := m[1]
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	return tags
}

// HashtagVariants returns the spellings relays are queried with: as written,
// lower, upper and capitalized.
func HashtagVariants(tag string) []string {
	variants := []string{tag, strings.ToLower(tag), strings.ToUpper(tag), Capitalize(tag)}
	out := make([]string, 0, len(variants))
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Capitalize upper-cases the first rune
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
