package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/gosuda/boardcast/internal/domain"
)

// ErrStopped is returned by Engine methods once Run has returned.
var ErrStopped = errors.New("collab: engine stopped") //nolint:gochecknoglobals // sentinel error

// Effect performs external I/O off the loop and returns the continuation to
// run back on it. It must not touch State.
type Effect func(ctx context.Context) Continuation

// Continuation runs on the loop with the result of an Effect.
type Continuation func(st *State) Outcome

// Outcome is what a handler asks the engine to do: broadcast Sends, then
// optionally start Effect.
type Outcome struct {
	Sends  []Instruction
	Effect Effect
}

// State is the shared collaboration state. It is only ever touched from the
// engine loop, which serializes every handler, so none of it is locked.
type State struct {
	Presence *Registry
	Rooms    *Rooms
	Editing  *Editing

	conns    map[uuid.UUID]*Conn
	boards   domain.BoardRepository
	cards    domain.CardRepository
	now      func() time.Time
	autoJoin bool
}

// live reports whether c is still connected. Continuations call this before
// mutating membership so a disconnect that raced them wins.
func (st *State) live(c *Conn) bool {
	return st.conns[c.ID] == c
}

// OnlineUsers returns the distinct named users joined to the board.
func (st *State) OnlineUsers(boardID uuid.UUID) []OnlineUser {
	members := st.Rooms.MembersOf(boardID)
	out := make([]OnlineUser, 0, len(members))
	for _, userID := range members {
		p, ok := st.Presence.Get(userID)
		if !ok {
			continue
		}
		out = append(out, OnlineUser{ID: userID, Name: p.Name, IsOnline: true})
	}
	sortOnline(out)
	return out
}

func (st *State) onlineUsersUpdate(boardID uuid.UUID) OnlineUsersPayload {
	return OnlineUsersPayload{BoardID: boardID, Users: st.OnlineUsers(boardID)}
}

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	QueueSize      int           // pending operations, default 1024
	SendBuffer     int           // per-connection outbound frames, default 256
	IOTimeout      time.Duration // per external call, default 5s
	LastSeenBuffer int           // pending last-seen writes, default 256
	SkipAutoJoin   bool          // do not join accessible boards on connect
	Now            func() time.Time
}

func (o *Options) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine runs the presence and collaboration state machine. All state
// mutations and the broadcasts they produce happen on the single goroutine
// inside Run, strictly one operation at a time.
type Engine struct {
	state    *State
	handlers map[Kind]handlerFunc
	lastSeen *LastSeenWriter
	opts     Options

	ops  chan func()
	done chan struct{}

	ioCtx    context.Context //nolint:containedctx // lifetime of in-flight effects
	ioCancel context.CancelFunc

	// loop-owned
	inflight    int
	idleWaiters []chan struct{}
	slow        []*Conn
}

// NewEngine wires the engine to its external collaborators. recorder may be
// nil when last-seen persistence is not wanted.
func NewEngine(boards domain.BoardRepository, cards domain.CardRepository, recorder PresenceRecorder, opts Options) *Engine {
	opts.defaults()

	lastSeen := NewLastSeenWriter(recorder, opts.LastSeenBuffer, opts.IOTimeout)
	ioCtx, ioCancel := context.WithCancel(context.Background())

	return &Engine{
		state: &State{
			Presence: NewRegistry(lastSeen, opts.Now),
			Rooms:    NewRooms(),
			Editing:  NewEditing(),
			conns:    make(map[uuid.UUID]*Conn),
			boards:   boards,
			cards:    cards,
			now:      opts.Now,
			autoJoin: !opts.SkipAutoJoin,
		},
		handlers: dispatchTable(),
		lastSeen: lastSeen,
		opts:     opts,
		ops:      make(chan func(), opts.QueueSize),
		done:     make(chan struct{}),
		ioCtx:    ioCtx,
		ioCancel: ioCancel,
	}
}

// Run processes operations until ctx is cancelled. On return every live
// connection has been dropped and pending last-seen writes flushed.
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.lastSeen.Run()
	}()

	log.Info().Msg("collab: engine started")

	for {
		select {
		case <-ctx.Done():
			close(e.done)
			e.shutdown()
			e.lastSeen.Close()
			wg.Wait()
			log.Info().Msg("collab: engine stopped")
			return nil
		case op := <-e.ops:
			e.exec(op)
		}
	}
}

func (e *Engine) shutdown() {
	e.ioCancel()
	for _, c := range e.state.conns {
		e.state.Presence.Unregister(c.ID)
		e.state.Rooms.RemoveConn(c.ID)
		e.state.Editing.RemoveUser(c.UserID)
		delete(e.state.conns, c.ID)
		c.close(CloseReasonShutdown)
	}
	for _, w := range e.idleWaiters {
		close(w)
	}
	e.idleWaiters = nil
}

func (e *Engine) exec(op func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("collab: operation panicked")
		}
	}()
	op()
}

// submit queues op for the loop.
func (e *Engine) submit(ctx context.Context, op func()) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.ops <- op:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("collab.Engine.submit: %w", ctx.Err())
	}
}

// apply resolves an outcome on the loop.
func (e *Engine) apply(o Outcome) {
	e.emit(o.Sends)
	if o.Effect != nil {
		e.launch(o.Effect)
	}
	for len(e.slow) > 0 {
		c := e.slow[0]
		e.slow = e.slow[1:]
		if e.state.live(c) {
			log.Warn().Str("conn_id", c.ID.String()).Str("user_id", c.UserID.String()).Msg("collab: dropping slow consumer")
			e.apply(e.state.reconcile(c, CloseReasonSlowConsumer))
		}
	}
}

func (e *Engine) launch(eff Effect) {
	e.inflight++
	go func() {
		ctx, cancel := context.WithTimeout(e.ioCtx, e.opts.IOTimeout)
		cont := eff(ctx)
		cancel()

		op := func() {
			e.inflight--
			if cont != nil {
				e.apply(cont(e.state))
			}
			if e.inflight == 0 {
				for _, w := range e.idleWaiters {
					close(w)
				}
				e.idleWaiters = nil
			}
		}
		select {
		case e.ops <- op:
		case <-e.done:
		}
	}()
}

func (e *Engine) emit(sends []Instruction) {
	for _, in := range sends {
		frame, err := json.Marshal(in.Message)
		if err != nil {
			log.Error().Err(err).Str("type", in.Message.Type).Msg("collab: encode outbound event")
			continue
		}

		switch in.Audience {
		case AudienceConn:
			if c, ok := e.state.conns[in.ConnID]; ok {
				e.enqueue(c, frame)
			}
		case AudienceBoard, AudienceBoardExcept:
			for _, connID := range e.state.Rooms.Connections(in.BoardID) {
				if in.Audience == AudienceBoardExcept && connID == in.ConnID {
					continue
				}
				if c, ok := e.state.conns[connID]; ok {
					e.enqueue(c, frame)
				}
			}
		}
	}
}

func (e *Engine) enqueue(c *Conn, frame []byte) {
	select {
	case c.out <- frame:
	default:
		e.slow = append(e.slow, c)
	}
}

// Connect registers an authenticated user's new connection and auto-joins it
// to every board the user can access.
func (e *Engine) Connect(ctx context.Context, user *domain.User) (*Conn, error) {
	c := newConn(user, e.opts.SendBuffer)
	err := e.submit(ctx, func() {
		e.apply(e.state.connect(c))
	})
	if err != nil {
		return nil, fmt.Errorf("collab.Engine.Connect: %w", err)
	}
	return c, nil
}

// Dispatch queues an inbound event from c. Unknown kinds answer with an
// error event.
func (e *Engine) Dispatch(ctx context.Context, c *Conn, kind Kind, data json.RawMessage) error {
	err := e.submit(ctx, func() {
		if !e.state.live(c) {
			return
		}
		h, ok := e.handlers[kind]
		if !ok {
			e.apply(Outcome{Sends: []Instruction{errorTo(c.ID, fmt.Sprintf("Unknown event %q", kind))}})
			return
		}
		e.apply(h(e.state, c, data))
	})
	if err != nil {
		return fmt.Errorf("collab.Engine.Dispatch: %w", err)
	}
	return nil
}

// Reject answers c with an error event without touching any state. The
// transport uses it for frames it could not decode or had to throttle.
func (e *Engine) Reject(ctx context.Context, c *Conn, message string) error {
	err := e.submit(ctx, func() {
		if e.state.live(c) {
			e.apply(Outcome{Sends: []Instruction{errorTo(c.ID, message)}})
		}
	})
	if err != nil {
		return fmt.Errorf("collab.Engine.Reject: %w", err)
	}
	return nil
}

// Disconnect reconciles all state for c. Calling it more than once, or after
// the engine dropped the connection itself, is a no-op.
func (e *Engine) Disconnect(ctx context.Context, c *Conn) error {
	err := e.submit(ctx, func() {
		e.apply(e.state.reconcile(c, CloseReasonDisconnect))
	})
	if err != nil {
		return fmt.Errorf("collab.Engine.Disconnect: %w", err)
	}
	return nil
}

// Idle blocks until the operation queue has been processed and no external
// call is in flight.
func (e *Engine) Idle(ctx context.Context) error {
	ready := make(chan struct{})
	err := e.submit(ctx, func() {
		if e.inflight == 0 {
			close(ready)
			return
		}
		e.idleWaiters = append(e.idleWaiters, ready)
	})
	if err != nil {
		return fmt.Errorf("collab.Engine.Idle: %w", err)
	}

	select {
	case <-ready:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("collab.Engine.Idle: %w", ctx.Err())
	}
}

func query[T any](ctx context.Context, e *Engine, fn func(st *State) T) (T, error) {
	var zero T
	result := make(chan T, 1)
	if err := e.submit(ctx, func() { result <- fn(e.state) }); err != nil {
		return zero, err
	}
	select {
	case v := <-result:
		return v, nil
	case <-e.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// OnlineUsers returns the users currently joined to the board.
func (e *Engine) OnlineUsers(ctx context.Context, boardID uuid.UUID) ([]OnlineUser, error) {
	users, err := query(ctx, e, func(st *State) []OnlineUser { return st.OnlineUsers(boardID) })
	if err != nil {
		return nil, fmt.Errorf("collab.Engine.OnlineUsers: %w", err)
	}
	return users, nil
}

// ConnectedUsers returns the online users joined to at least one of the
// given boards.
func (e *Engine) ConnectedUsers(ctx context.Context, boardIDs []uuid.UUID) ([]OnlineUser, error) {
	users, err := query(ctx, e, func(st *State) []OnlineUser {
		joined := make(map[uuid.UUID]struct{})
		for _, boardID := range boardIDs {
			for _, userID := range st.Rooms.MembersOf(boardID) {
				joined[userID] = struct{}{}
			}
		}
		return lo.Filter(st.Presence.Online(), func(u OnlineUser, _ int) bool {
			_, ok := joined[u.ID]
			return ok
		})
	})
	if err != nil {
		return nil, fmt.Errorf("collab.Engine.ConnectedUsers: %w", err)
	}
	return users, nil
}

type editorsResult struct {
	boardID uuid.UUID
	editors []uuid.UUID
}

// Editors returns the board of the card's editing session and the users
// currently editing it. boardID is uuid.Nil when nobody is.
func (e *Engine) Editors(ctx context.Context, cardID uuid.UUID) (uuid.UUID, []uuid.UUID, error) {
	res, err := query(ctx, e, func(st *State) editorsResult {
		boardID, ids := st.Editing.Editors(cardID)
		return editorsResult{boardID: boardID, editors: ids}
	})
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("collab.Engine.Editors: %w", err)
	}
	return res.boardID, res.editors, nil
}

// Inspect runs fn on the loop with read access to the state. fn must not
// retain State or mutate it.
func (e *Engine) Inspect(ctx context.Context, fn func(st *State)) error {
	_, err := query(ctx, e, func(st *State) struct{} {
		fn(st)
		return struct{}{}
	})
	if err != nil {
		return fmt.Errorf("collab.Engine.Inspect: %w", err)
	}
	return nil
}
