package util

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SanitizeFileName removes path separators and rejects traversal patterns.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" {
		return "", errors.New("invalid file name")
	}
	return s, nil
}

// StripDiacritics removes Vietnamese tone and vowel marks. đ/Đ map to d/D.
func StripDiacritics(s string) string {
	s = strings.NewReplacer("đ", "d", "Đ", "D").Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// FileStem builds an ASCII file-name stem from parts joined by underscores.
// Diacritics are stripped, whitespace runs collapse to one underscore and
// path separators are dropped.
func FileStem(parts ...string) string {
	var cleaned []string
	for _, p := range parts {
		p = strings.TrimSpace(StripDiacritics(p))
		if p == "" {
			continue
		}
		p = strings.Map(func(r rune) rune {
			switch r {
			case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
				return -1
			}
			return r
		}, p)
		cleaned = append(cleaned, strings.Join(strings.Fields(p), "_"))
	}
	return strings.Join(cleaned, "_")
}
