// Package mention maps GitHub usernames to pre-formatted chat mention tokens.
package mention

import (
	"errors"
	"fmt"
	"sort"
)

// MaxEntries bounds the directory size. Each entry comes from operator
// configuration, so anything beyond this is almost certainly a mistake.
const MaxEntries = 1024

// ErrTooManyEntries is returned when the configuration exceeds MaxEntries.
var ErrTooManyEntries = errors.New("mention: too many entries")

// Directory is an immutable, case-sensitive username → token lookup.
// It is built once at startup; concurrent reads need no locking because
// the underlying map is never written after construction.
type Directory struct {
	entries map[string]string
}

// NewDirectory copies entries into a new Directory. Empty usernames or
// tokens are rejected.
func NewDirectory(entries map[string]string) (*Directory, error) {
	if len(entries) > MaxEntries {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyEntries, len(entries), MaxEntries)
	}
	m := make(map[string]string, len(entries))
	for user, token := range entries {
		if user == "" {
			return nil, errors.New("mention: empty username")
		}
		if token == "" {
			return nil, fmt.Errorf("mention: empty token for %q", user)
		}
		m[user] = token
	}
	return &Directory{entries: m}, nil
}

// Resolve returns the token for username. A miss is not an error; the
// caller renders the plain name instead. A nil Directory resolves nothing.
func (d *Directory) Resolve(username string) (string, bool) {
	if d == nil {
		return "", false
	}
	token, ok := d.entries[username]
	return token, ok
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Usernames returns the configured usernames in sorted order.
func (d *Directory) Usernames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
