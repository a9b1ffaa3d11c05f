package collab

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// UserPresence is the registry's view of one user.
type UserPresence struct {
	UserID       uuid.UUID
	Name         string
	ConnectionID uuid.UUID // governing connection
	Online       bool
	LastSeen     time.Time

	conns []uuid.UUID // live connections, oldest first
}

// presenceSink receives the best-effort last-seen write issued on every
// registry mutation. It must not block.
type presenceSink interface {
	Record(userID uuid.UUID, online bool, at time.Time)
}

// Registry is the process-wide presence map. It is owned by the engine loop
// and is not safe for concurrent use.
type Registry struct {
	users  map[uuid.UUID]*UserPresence
	byConn map[uuid.UUID]uuid.UUID
	sink   presenceSink
	now    func() time.Time
}

// NewRegistry creates an empty Registry. sink may be nil.
func NewRegistry(sink presenceSink, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		users:  make(map[uuid.UUID]*UserPresence),
		byConn: make(map[uuid.UUID]uuid.UUID),
		sink:   sink,
		now:    now,
	}
}

// Register marks the user online with connID as the governing connection.
// Registering the same connection twice is harmless.
func (r *Registry) Register(userID uuid.UUID, name string, connID uuid.UUID) {
	p, ok := r.users[userID]
	if !ok {
		p = &UserPresence{UserID: userID}
		r.users[userID] = p
	}

	if !slices.Contains(p.conns, connID) {
		p.conns = append(p.conns, connID)
	}
	r.byConn[connID] = userID

	p.Name = name
	p.ConnectionID = connID
	p.Online = true
	p.LastSeen = r.now()

	r.record(p)
}

// Unregister drops connID. When it governed its user, the most recent
// remaining connection takes over; with none left the user goes offline.
// Unknown connections are ignored.
func (r *Registry) Unregister(connID uuid.UUID) {
	userID, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)

	p := r.users[userID]
	if i := slices.Index(p.conns, connID); i >= 0 {
		p.conns = slices.Delete(p.conns, i, i+1)
	}

	if p.ConnectionID == connID {
		if n := len(p.conns); n > 0 {
			p.ConnectionID = p.conns[n-1]
		} else {
			p.ConnectionID = uuid.Nil
			p.Online = false
		}
	}
	p.LastSeen = r.now()

	r.record(p)
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	p, ok := r.users[userID]
	return ok && p.Online
}

// Get returns a copy of the user's presence record.
func (r *Registry) Get(userID uuid.UUID) (UserPresence, bool) {
	p, ok := r.users[userID]
	if !ok {
		return UserPresence{}, false
	}
	cp := *p
	cp.conns = slices.Clone(p.conns)
	return cp, true
}

// Connections returns the number of live connections of the user.
func (r *Registry) Connections(userID uuid.UUID) int {
	if p, ok := r.users[userID]; ok {
		return len(p.conns)
	}
	return 0
}

// Online lists every online user ordered by name.
func (r *Registry) Online() []OnlineUser {
	out := lo.FilterMapToSlice(r.users, func(_ uuid.UUID, p *UserPresence) (OnlineUser, bool) {
		return OnlineUser{ID: p.UserID, Name: p.Name, IsOnline: true}, p.Online
	})
	sortOnline(out)
	return out
}

func (r *Registry) record(p *UserPresence) {
	if r.sink != nil {
		r.sink.Record(p.UserID, p.Online, p.LastSeen)
	}
}

func sortOnline(users []OnlineUser) {
	slices.SortFunc(users, func(a, b OnlineUser) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}
