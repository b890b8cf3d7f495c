// Package server maintains the registry of chat groups and their live
// connection memberships.
package server

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Group describes a chat room. Membership is tracked by the registry, not on
// the struct, so snapshots of a Group are safe to hand out.
type Group struct {
	ID        string
	Name      string
	Link      string
	CreatedAt time.Time
}

// GroupRegistry is the in-memory registry of groups and the connections joined
// to each of them. Groups are never deleted; they live until the process
// restarts. All methods are safe for concurrent use.
type GroupRegistry struct {
	mu      sync.RWMutex
	groups  map[string]*Group
	members map[string]map[string]struct{} // group id -> connection ids
	byConn  map[string]map[string]struct{} // connection id -> group ids
	lastID  int64
	logger  zerolog.Logger
}

// NewGroupRegistry creates an empty group registry.
func NewGroupRegistry(logger zerolog.Logger) *GroupRegistry {
	return &GroupRegistry{
		groups:  make(map[string]*Group),
		members: make(map[string]map[string]struct{}),
		byConn:  make(map[string]map[string]struct{}),
		logger:  logger,
	}
}

// Create registers a new group with zero members. The id is derived from the
// current time in milliseconds; ids are guaranteed unique for the process
// lifetime even when two groups are created within the same millisecond.
func (g *GroupRegistry) Create(name, baseURL string) *Group {
	g.mu.Lock()

	id := time.Now().UnixMilli()
	if id <= g.lastID {
		id = g.lastID + 1
	}
	g.lastID = id

	group := &Group{
		ID:        strconv.FormatInt(id, 10),
		Name:      name,
		Link:      fmt.Sprintf("%s/group/%d", baseURL, id),
		CreatedAt: time.Now(),
	}
	g.groups[group.ID] = group
	g.members[group.ID] = make(map[string]struct{})
	g.mu.Unlock()

	g.logger.Info().Str("group_id", group.ID).Str("name", name).Msg("Group created")
	return group
}

// Get returns the group with the given id, if it exists.
func (g *GroupRegistry) Get(id string) (*Group, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	group, ok := g.groups[id]
	return group, ok
}

// Join adds the connection to the group's member set. Joining a group the
// connection is already a member of is a no-op. Returns false when the group
// does not exist.
func (g *GroupRegistry) Join(id, connID string) (*Group, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	group, ok := g.groups[id]
	if !ok {
		return nil, false
	}

	g.members[id][connID] = struct{}{}

	groupsForConn, ok := g.byConn[connID]
	if !ok {
		groupsForConn = make(map[string]struct{})
		g.byConn[connID] = groupsForConn
	}
	groupsForConn[id] = struct{}{}

	return group, true
}

// Leave removes the connection from the group's member set. Leaving a group
// the connection never joined, or an unknown group, is a no-op.
func (g *GroupRegistry) Leave(id, connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.removeMemberLocked(id, connID)
}

// RemoveConnection sweeps the connection out of every group it had joined.
// Safe to call for connections that never joined anything.
func (g *GroupRegistry) RemoveConnection(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id := range g.byConn[connID] {
		g.removeMemberLocked(id, connID)
	}
}

func (g *GroupRegistry) removeMemberLocked(id, connID string) {
	if members, ok := g.members[id]; ok {
		delete(members, connID)
	}
	if groupsForConn, ok := g.byConn[connID]; ok {
		delete(groupsForConn, id)
		if len(groupsForConn) == 0 {
			delete(g.byConn, connID)
		}
	}
}

// Members returns a snapshot of the connection ids currently joined to the
// group. The result is nil for unknown groups.
func (g *GroupRegistry) Members(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	members, ok := g.members[id]
	if !ok {
		return nil
	}

	snapshot := make([]string, 0, len(members))
	for connID := range members {
		snapshot = append(snapshot, connID)
	}
	return snapshot
}

// MemberCount reports how many connections are joined to the group.
func (g *GroupRegistry) MemberCount(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.members[id])
}
