package command

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"wnschat/internal/pkg/errs"
)

// Matcher is one positional argument: a regular expression fragment and whether it must be present.
// Optional matchers must follow every required one.
type Matcher struct {
	Pattern  string
	Required bool
}

// Required returns a matcher for a mandatory argument.
func Required(pattern string) Matcher { return Matcher{Pattern: pattern, Required: true} }

// Optional returns a matcher for an argument that may be absent.
func Optional(pattern string) Matcher { return Matcher{Pattern: pattern} }

var patternCache sync.Map // string -> *regexp.Regexp

// ArgsPattern builds the start-anchored expression ParseArgs matches against. The first matcher
// may be preceded by whitespace, later ones are separated from the previous one by whitespace.
// An optional matcher and its separator may be missing entirely.
func ArgsPattern(matchers ...Matcher) string {
	var sb strings.Builder
	sb.WriteString("^")

	for i, m := range matchers {
		sep := `\s+`
		if i == 0 {
			sep = `\s*`
		}

		if m.Required {
			fmt.Fprintf(&sb, "%s(%s)", sep, m.Pattern)
		} else {
			fmt.Fprintf(&sb, "(?:%s(%s))?", sep, m.Pattern)
		}
	}

	return sb.String()
}

// ParseArgs matches line against the matchers and returns every captured group in order.
// Missing optional arguments are returned as empty strings. On failure it returns a command
// syntax error carrying errorMessage, or a message naming the expected pattern when errorMessage is empty.
func ParseArgs(line, errorMessage string, matchers ...Matcher) ([]string, error) {
	pattern := ArgsPattern(matchers...)

	var re *regexp.Regexp
	if cached, ok := patternCache.Load(pattern); ok {
		re = cached.(*regexp.Regexp)
	} else {
		re = regexp.MustCompile(pattern)
		patternCache.Store(pattern, re)
	}

	m := re.FindStringSubmatch(line)
	if m == nil {
		if errorMessage == "" {
			errorMessage = fmt.Sprintf("Invalid command syntax, parameters must match the regex string \"%s\"", pattern)
		}
		return nil, errs.NewError(errs.ErrCommandSyntax, errorMessage)
	}

	return m[1:], nil
}
