package command

import (
	"fmt"
	"regexp"
	"strings"

	"wnschat/internal/pkg/errs"
)

// Sigil starts every explicit command line.
const Sigil = "/"

var commandNameRegex = regexp.MustCompile(`^/(\w+)`)

// Table is a registry of commands keyed by exact, case-sensitive name.
type Table struct {
	commands []*Command
	byName   map[string]*Command
	fallback *Command
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*Command)}
}

// Register adds c to the table and returns it. It panics on a duplicate name.
func (t *Table) Register(c *Command) *Command {
	if _, exists := t.byName[c.Name]; exists {
		panic(fmt.Sprintf("command: %q registered twice", c.Name))
	}

	t.commands = append(t.commands, c)
	t.byName[c.Name] = c
	return c
}

// SetFallback sets the command that receives lines without a sigil.
func (t *Table) SetFallback(c *Command) {
	t.fallback = c
}

// Lookup finds a command by exact name.
func (t *Table) Lookup(name string) (*Command, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// All returns the registered commands in registration order.
func (t *Table) All() []*Command {
	out := make([]*Command, len(t.commands))
	copy(out, t.commands)
	return out
}

// ParseLine resolves a raw chat line to a command and the remainder of the line.
// A line without the sigil resolves to the fallback command with the whole line as remainder.
func (t *Table) ParseLine(line string) (*Command, string, error) {
	if !strings.HasPrefix(line, Sigil) {
		if t.fallback == nil {
			return nil, "", errs.NewError(errs.ErrUnknownCommand, line)
		}
		return t.fallback, line, nil
	}

	loc := commandNameRegex.FindStringSubmatchIndex(line)
	if loc == nil {
		return nil, "", errs.NewError(errs.ErrUnknownCommand, line)
	}

	name := line[loc[2]:loc[3]]
	c, ok := t.byName[name]
	if !ok {
		return nil, "", errs.NewError(errs.ErrUnknownCommand, Sigil+name)
	}

	return c, strings.TrimSpace(line[loc[1]:]), nil
}
