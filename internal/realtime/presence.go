package realtime

import (
	"sort"
	"sync"
)

// RosterEntry is one online user in the process-wide roster, one entry per
// distinct user no matter how many connections they hold.
type RosterEntry struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type presenceEntry struct {
	name        string
	connections int
}

// Registry is the reference-counted presence table. A user is online while
// at least one identified connection holds a reference; the entry is
// removed exactly when the count reaches zero. All mutations happen under
// one mutex, which makes concurrent register/unregister for the same user
// linearizable.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*presenceEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*presenceEntry)}
}

// Register adds a connection reference for userID, refreshing the stored
// display name, and returns the resulting roster.
func (r *Registry) Register(userID, name string) []RosterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		e.connections++
		e.name = name
	} else {
		r.entries[userID] = &presenceEntry{name: name, connections: 1}
	}
	return r.rosterLocked()
}

// Unregister drops one connection reference. Unknown ids are a no-op: a
// connection may disconnect without ever having identified.
func (r *Registry) Unregister(userID string) []RosterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		if e.connections <= 1 {
			delete(r.entries, userID)
		} else {
			e.connections--
		}
	}
	return r.rosterLocked()
}

// Snapshot returns the current roster without mutating anything, for late
// subscribers.
func (r *Registry) Snapshot() []RosterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

// rosterLocked builds the roster sorted by user id so broadcasts are
// deterministic. Caller holds r.mu.
func (r *Registry) rosterLocked() []RosterEntry {
	roster := make([]RosterEntry, 0, len(r.entries))
	for id, e := range r.entries {
		roster = append(roster, RosterEntry{UserID: id, Name: e.name})
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].UserID < roster[j].UserID })
	return roster
}
