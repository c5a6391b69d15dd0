package registry

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Name limits, in runes after normalization.
const (
	MaxUsernameLength = 8
	MaxRoomNameLength = 16
)

// canonical is the comparison key for user and room names: trimmed and NFC
// normalized, case preserved.
func canonical(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func validName(name string, limit int) bool {
	n := utf8.RuneCountInString(name)
	if n == 0 || n > limit {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

// NormalizeUsername returns the canonical form of a username or
// ErrInvalidName.
func NormalizeUsername(name string) (string, error) {
	c := canonical(name)
	if !validName(c, MaxUsernameLength) {
		return "", ErrInvalidName
	}
	return c, nil
}

// NormalizeRoomName returns the canonical form of a room name or
// ErrInvalidName.
func NormalizeRoomName(name string) (string, error) {
	c := canonical(name)
	if !validName(c, MaxRoomNameLength) {
		return "", ErrInvalidName
	}
	return c, nil
}
