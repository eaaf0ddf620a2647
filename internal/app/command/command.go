/*
Package command implements the permission-gated chat command model.

A Command is an immutable identity (name, description, usage, minimum level) with an ordered
list of handlers attached by the collaborators that implement it. A Table resolves raw chat
lines to commands, and ParseArgs turns the remainder of a line into positional arguments.
*/
package command

import (
	"fmt"
	"strings"
	"sync"

	"wnschat/internal/app/user"
	"wnschat/internal/pkg/errs"
)

// Invocation describes one execution of a command.
type Invocation struct {
	// Actor is the user the command runs as.
	Actor user.User

	// Level is the effective permission level of this execution. It equals the actor's level
	// unless the command was run through sudo with the invoker's permissions.
	Level user.PermissionLevel

	// Command is the command being executed.
	Command *Command

	// Args is the trimmed text following the command name.
	Args string
}

// Handler implements part of a command. Returning a command error stops the remaining handlers
// and is reported to the actor; any other error is treated as a failure of the caller.
type Handler func(inv *Invocation) error

// Command is a named, permission-leveled chat command.
type Command struct {
	Name        string
	Description string
	Usage       string
	Level       user.PermissionLevel

	mu       sync.RWMutex
	handlers []Handler
}

// New constructs a command. It panics if name is empty or contains whitespace.
func New(name, description, usage string, level user.PermissionLevel) *Command {
	if name == "" || strings.ContainsAny(name, " \t\r\n") {
		panic(fmt.Sprintf("command: invalid command name %q", name))
	}

	return &Command{
		Name:        name,
		Description: description,
		Usage:       usage,
		Level:       level,
	}
}

// Handle appends h to the command's handlers. Handlers run in the order they were added.
func (c *Command) Handle(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = append(c.handlers, h)
}

// ClearHandlers detaches every handler.
func (c *Command) ClearHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = nil
}

// CanExecute reports whether a user at level may run the command.
func (c *Command) CanExecute(level user.PermissionLevel) bool {
	return level >= c.Level
}

// Execute runs the command as actor with the actor's own permission level.
func (c *Command) Execute(actor user.User, args string) error {
	return c.ExecuteAs(actor, args, actor.PermissionLevel())
}

// ExecuteAs runs the command as actor with the given effective level.
func (c *Command) ExecuteAs(actor user.User, args string, level user.PermissionLevel) error {
	if !c.CanExecute(level) {
		return errs.NewError(errs.ErrPermissionDenied, c.Name, c.Level, level)
	}

	c.mu.RLock()
	handlers := make([]Handler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.RUnlock()

	inv := &Invocation{
		Actor:   actor,
		Level:   level,
		Command: c,
		Args:    args,
	}

	for _, h := range handlers {
		if err := h(inv); err != nil {
			return err
		}
	}
	return nil
}

func (c *Command) String() string { return c.Name }
