/*
Package chat contains the server-side session and protocol engine.

This file defines the Roster, the single source of truth for who is online. Every mutation and
every full traversal happens under one mutex, so membership cannot change during a broadcast.
*/
package chat

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"wnschat/internal/app/user"
	"wnschat/internal/pkg/logx"
)

// Filter selects broadcast recipients. A nil Filter selects everyone.
type Filter func(u user.User) bool

// RemoteOnly selects remote users.
func RemoteOnly(u user.User) bool {
	_, ok := u.(*Client)
	return ok
}

// Except selects everyone but skip.
func Except(skip user.User) Filter {
	return func(u user.User) bool { return u != skip }
}

// Roster is the lock-protected collection of active users, the console included.
type Roster struct {
	// mu guards users.
	mu sync.Mutex

	// users in join order.
	users []user.User

	// structured logger with roster context.
	logger zerolog.Logger
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{logger: logx.Component("roster")}
}

// RosterTx gives a function run by Roster.Do lock-free access to the roster.
// It must not be retained or used after the function returns.
type RosterTx struct {
	r *Roster
}

// Do runs fn with the roster lock held. Compound operations (check then add, find then remove)
// use it to stay atomic. fn must not call the locking Roster methods.
func (r *Roster) Do(fn func(tx *RosterTx)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn(&RosterTx{r: r})
}

// Add appends u. The caller is responsible for username uniqueness.
func (r *Roster) Add(u user.User) { r.Do(func(tx *RosterTx) { tx.Add(u) }) }

// Remove removes u by identity and reports whether it was present.
func (r *Roster) Remove(u user.User) (removed bool) {
	r.Do(func(tx *RosterTx) { removed = tx.Remove(u) })
	return removed
}

// FindByUsername returns the first user whose name matches case-insensitively, or nil.
func (r *Roster) FindByUsername(name string) (found user.User) {
	r.Do(func(tx *RosterTx) { found = tx.FindByUsername(name) })
	return found
}

// Broadcast sends text to every user selected by filter. Per-user failures are logged and skipped.
func (r *Roster) Broadcast(text string, filter Filter) {
	r.Do(func(tx *RosterTx) { tx.Broadcast(text, filter) })
}

// Users returns a snapshot of every user.
func (r *Roster) Users() (out []user.User) {
	r.Do(func(tx *RosterTx) { out = tx.Users() })
	return out
}

// Remotes returns a snapshot of the remote users.
func (r *Roster) Remotes() (out []*Client) {
	r.Do(func(tx *RosterTx) { out = tx.Remotes() })
	return out
}

// Count returns the number of users, the console included.
func (r *Roster) Count() (n int) {
	r.Do(func(tx *RosterTx) { n = len(tx.r.users) })
	return n
}

func (tx *RosterTx) Add(u user.User) {
	tx.r.users = append(tx.r.users, u)
}

func (tx *RosterTx) Remove(u user.User) bool {
	for i, existing := range tx.r.users {
		if existing == u {
			tx.r.users = append(tx.r.users[:i], tx.r.users[i+1:]...)
			return true
		}
	}
	return false
}

func (tx *RosterTx) FindByUsername(name string) user.User {
	for _, u := range tx.r.users {
		if strings.EqualFold(u.Username(), name) {
			return u
		}
	}
	return nil
}

func (tx *RosterTx) Broadcast(text string, filter Filter) {
	for _, u := range tx.r.users {
		if filter != nil && !filter(u) {
			continue
		}
		if err := u.SendMessage(text); err != nil {
			tx.r.logger.Debug().Err(err).Str("username", u.Username()).Msg("Broadcast delivery failed")
		}
	}
}

func (tx *RosterTx) Users() []user.User {
	out := make([]user.User, len(tx.r.users))
	copy(out, tx.r.users)
	return out
}

func (tx *RosterTx) Remotes() []*Client {
	var out []*Client
	for _, u := range tx.r.users {
		if c, ok := u.(*Client); ok {
			out = append(out, c)
		}
	}
	return out
}
