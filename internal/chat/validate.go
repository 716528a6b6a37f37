package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minUsernameLen = 2
	maxUsernameLen = 20
	maxRoomNameLen = 50
)

// usernamePattern allows latin and cyrillic letters, digits, underscore,
// hyphen and whitespace. Anything else is rejected before it reaches the
// store.
var usernamePattern = regexp.MustCompile(`^[a-zA-Zа-яА-ЯёЁ0-9_\-\s]+$`)

var roomIDPattern = regexp.MustCompile(`^[A-Z2-9]{6}$`)

// ValidUsername reports whether name (after trimming) is an acceptable
// display name. Pure function, shared by the create and join paths.
func ValidUsername(name string) bool {
	trimmed := strings.TrimSpace(name)
	n := utf8.RuneCountInString(trimmed)
	if n < minUsernameLen || n > maxUsernameLen {
		return false
	}
	return usernamePattern.MatchString(trimmed)
}

// ValidRoomID reports whether id looks like a code this server could have
// generated. It does not check existence.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// truncateRunes trims s to at most n runes without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
