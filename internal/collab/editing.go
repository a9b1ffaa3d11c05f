package collab

import (
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Editing tracks which users have a card open for editing. The marker is
// advisory: it never blocks a concurrent write, it only drives the
// "X is editing" indicator.
type Editing struct {
	sessions map[uuid.UUID]*editingSession
}

type editingSession struct {
	boardID uuid.UUID
	users   map[uuid.UUID]struct{}
}

// ClearedEdit names a card a user was removed from by RemoveUser.
type ClearedEdit struct {
	CardID  uuid.UUID
	BoardID uuid.UUID
}

func NewEditing() *Editing {
	return &Editing{sessions: make(map[uuid.UUID]*editingSession)}
}

// Start records userID as editing cardID. Reports whether the user was added.
func (e *Editing) Start(userID, boardID, cardID uuid.UUID) bool {
	s, ok := e.sessions[cardID]
	if !ok {
		s = &editingSession{boardID: boardID, users: make(map[uuid.UUID]struct{})}
		e.sessions[cardID] = s
	}
	if _, dup := s.users[userID]; dup {
		return false
	}
	s.users[userID] = struct{}{}
	return true
}

// Stop removes userID from cardID's editors, dropping the session when it
// becomes empty. Reports whether the user was removed.
func (e *Editing) Stop(userID, cardID uuid.UUID) bool {
	s, ok := e.sessions[cardID]
	if !ok {
		return false
	}
	if _, member := s.users[userID]; !member {
		return false
	}
	delete(s.users, userID)
	if len(s.users) == 0 {
		delete(e.sessions, cardID)
	}
	return true
}

// Editors returns the board cardID belongs to and the users editing it. With
// no open session the board is uuid.Nil and the list is empty.
func (e *Editing) Editors(cardID uuid.UUID) (uuid.UUID, []uuid.UUID) {
	s, ok := e.sessions[cardID]
	if !ok {
		return uuid.Nil, []uuid.UUID{}
	}
	out := lo.Keys(s.users)
	sortIDs(out)
	return s.boardID, out
}

// Active reports whether a session exists for cardID.
func (e *Editing) Active(cardID uuid.UUID) bool {
	_, ok := e.sessions[cardID]
	return ok
}

// Len returns the number of open sessions.
func (e *Editing) Len() int { return len(e.sessions) }

// RemoveUser clears userID from every session.
func (e *Editing) RemoveUser(userID uuid.UUID) []ClearedEdit {
	var cleared []ClearedEdit
	for cardID, s := range e.sessions {
		if e.Stop(userID, cardID) {
			cleared = append(cleared, ClearedEdit{CardID: cardID, BoardID: s.boardID})
		}
	}
	return cleared
}
