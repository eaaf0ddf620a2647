/*
Package user contains core data structures and logic related to user identity and session.

It defines the permission hierarchy, the User capability shared by every chat participant
(remote connections and the local server console), and the Console user itself.
*/
package user

import (
	"fmt"
	"regexp"
	"strings"
)

// UsernamePattern matches a username inside a larger expression: a word character, one to fifty
// word characters or hyphens, and a closing word character.
const UsernamePattern = `\w(?:\w|-){1,50}\w`

var usernameRegex = regexp.MustCompile(`^` + UsernamePattern + `$`)

// ValidUsername reports whether name satisfies the username format.
func ValidUsername(name string) bool {
	return usernameRegex.MatchString(name)
}

// PermissionLevel is the ordered privilege tier of a user.
type PermissionLevel int32

const (
	LevelUser PermissionLevel = iota
	LevelOperator
	LevelAdmin
	LevelServer
)

var levelNames = [...]string{"USER", "OPERATOR", "ADMIN", "SERVER"}

// String returns the upper-case name of the level, or LEVEL(n) for values outside the hierarchy.
func (l PermissionLevel) String() string {
	if l >= LevelUser && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("LEVEL(%d)", int32(l))
}

// Valid reports whether l is one of the defined levels.
func (l PermissionLevel) Valid() bool {
	return l >= LevelUser && l <= LevelServer
}

// ParsePermissionLevel parses a level name case-insensitively.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return PermissionLevel(i), nil
		}
	}
	return LevelUser, fmt.Errorf("unknown permission level %q", s)
}

// User is the capability every chat participant exposes to the rest of the server.
type User interface {
	// Username is the unique (case-insensitive) name of the user.
	Username() string

	// PermissionLevel is the current privilege tier of the user.
	PermissionLevel() PermissionLevel

	// SendMessage delivers a line of text to the user.
	SendMessage(text string) error
}

// SameUser reports whether a and b name the same user. Usernames compare case-insensitively.
func SameUser(a, b User) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Username(), b.Username())
}
