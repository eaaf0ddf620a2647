/*
Package store persists permission grants: the elevated permission level a username receives
when it logs in. Grants survive restarts when backed by PostgreSQL; the in-memory store is used
when no database is configured.
*/
package store

import (
	"context"
	"strings"
	"sync"

	"wnschat/internal/app/user"
)

// GrantStore maps usernames to permission levels. Usernames are case-insensitive.
// A username without a grant has user.LevelUser.
type GrantStore interface {
	Level(ctx context.Context, username string) (user.PermissionLevel, error)
	SetLevel(ctx context.Context, username string, level user.PermissionLevel, grantedBy string) error
	Close() error
}

func key(username string) string {
	return strings.ToLower(username)
}

// Memory is a GrantStore held in process memory.
type Memory struct {
	mu     sync.RWMutex
	grants map[string]user.PermissionLevel
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{grants: make(map[string]user.PermissionLevel)}
}

func (m *Memory) Level(_ context.Context, username string) (user.PermissionLevel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if lvl, ok := m.grants[key(username)]; ok {
		return lvl, nil
	}
	return user.LevelUser, nil
}

func (m *Memory) SetLevel(_ context.Context, username string, level user.PermissionLevel, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if level == user.LevelUser {
		delete(m.grants, key(username))
		return nil
	}
	m.grants[key(username)] = level
	return nil
}

func (m *Memory) Close() error { return nil }
