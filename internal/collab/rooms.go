package collab

import (
	"cmp"
	"slices"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Rooms tracks board channel membership. A channel exists only while it has
// at least one member connection. Owned by the engine loop.
type Rooms struct {
	// boardID -> connID -> userID
	channels map[uuid.UUID]map[uuid.UUID]uuid.UUID
}

func NewRooms() *Rooms {
	return &Rooms{channels: make(map[uuid.UUID]map[uuid.UUID]uuid.UUID)}
}

// Join adds the connection to the board channel, creating the channel on
// first use. Reports whether membership changed.
func (r *Rooms) Join(boardID, connID, userID uuid.UUID) bool {
	ch, ok := r.channels[boardID]
	if !ok {
		ch = make(map[uuid.UUID]uuid.UUID)
		r.channels[boardID] = ch
	}
	if _, member := ch[connID]; member {
		return false
	}
	ch[connID] = userID
	return true
}

// Leave removes the connection and deletes the channel once empty. Reports
// whether membership changed.
func (r *Rooms) Leave(boardID, connID uuid.UUID) bool {
	ch, ok := r.channels[boardID]
	if !ok {
		return false
	}
	if _, member := ch[connID]; !member {
		return false
	}
	delete(ch, connID)
	if len(ch) == 0 {
		delete(r.channels, boardID)
	}
	return true
}

// RemoveConn removes the connection from every channel and returns the
// boards it was removed from.
func (r *Rooms) RemoveConn(connID uuid.UUID) []uuid.UUID {
	var left []uuid.UUID
	for boardID := range r.channels {
		if r.Leave(boardID, connID) {
			left = append(left, boardID)
		}
	}
	sortIDs(left)
	return left
}

func (r *Rooms) IsMember(boardID, connID uuid.UUID) bool {
	_, ok := r.channels[boardID][connID]
	return ok
}

// Exists reports whether the board channel currently exists.
func (r *Rooms) Exists(boardID uuid.UUID) bool {
	_, ok := r.channels[boardID]
	return ok
}

// Len returns the number of live channels.
func (r *Rooms) Len() int { return len(r.channels) }

// Connections returns the member connection IDs of the board.
func (r *Rooms) Connections(boardID uuid.UUID) []uuid.UUID {
	out := lo.Keys(r.channels[boardID])
	sortIDs(out)
	return out
}

// MembersOf returns the distinct users with a connection joined to the board.
func (r *Rooms) MembersOf(boardID uuid.UUID) []uuid.UUID {
	out := lo.Uniq(lo.Values(r.channels[boardID]))
	sortIDs(out)
	return out
}

// BoardsOf returns the boards the connection is joined to.
func (r *Rooms) BoardsOf(connID uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for boardID, ch := range r.channels {
		if _, ok := ch[connID]; ok {
			out = append(out, boardID)
		}
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []uuid.UUID) {
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return cmp.Compare(a.String(), b.String())
	})
}
