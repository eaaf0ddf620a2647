package user

import (
	"fmt"
	"io"
	"sync"
)

// Console is the server operator. It always holds LevelServer and has no network transport;
// messages sent to it are written to the operator's local output.
type Console struct {
	name string

	// mu serializes writes so concurrent broadcasts never interleave lines.
	mu  sync.Mutex
	out io.Writer
}

// NewConsole returns a console user named name that writes to out.
func NewConsole(name string, out io.Writer) *Console {
	return &Console{name: name, out: out}
}

func (c *Console) Username() string { return c.name }

func (c *Console) PermissionLevel() PermissionLevel { return LevelServer }

// SendMessage writes text followed by a newline to the console output.
func (c *Console) SendMessage(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintln(c.out, text)
	return err
}
