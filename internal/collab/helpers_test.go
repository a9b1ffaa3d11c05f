package collab_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardcast/internal/collab"
	"github.com/gosuda/boardcast/internal/domain"
)

// ---------------------------------------------------------------------------
// Fake collaborators
// ---------------------------------------------------------------------------

type fakeBoards struct {
	mu     sync.Mutex
	boards map[uuid.UUID]*domain.Board

	// optional overrides
	getByIDFunc        func(ctx context.Context, id uuid.UUID) (*domain.Board, error)
	listAccessibleFunc func(ctx context.Context, userID uuid.UUID) ([]*domain.Board, error)
}

func newFakeBoards(boards ...*domain.Board) *fakeBoards {
	f := &fakeBoards{boards: make(map[uuid.UUID]*domain.Board)}
	for _, b := range boards {
		f.boards[b.ID] = b
	}
	return f
}

func (f *fakeBoards) GetByID(ctx context.Context, id uuid.UUID) (*domain.Board, error) {
	if f.getByIDFunc != nil {
		return f.getByIDFunc(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeBoards) ListAccessible(ctx context.Context, userID uuid.UUID) ([]*domain.Board, error) {
	if f.listAccessibleFunc != nil {
		return f.listAccessibleFunc(ctx, userID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Board
	for _, b := range f.boards {
		if b.CanAccess(userID) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeCards struct {
	listFunc func(ctx context.Context, boardID uuid.UUID) ([]*domain.Card, error)
}

func (f *fakeCards) ListActiveByBoard(ctx context.Context, boardID uuid.UUID) ([]*domain.Card, error) {
	if f.listFunc != nil {
		return f.listFunc(ctx, boardID)
	}
	return []*domain.Card{{ID: uuid.New(), BoardID: boardID, Title: "first", Status: domain.CardStatusActive}}, nil
}

type presenceWrite struct {
	UserID uuid.UUID
	Online bool
}

type fakeRecorder struct {
	mu     sync.Mutex
	writes []presenceWrite
	err    error
}

func (f *fakeRecorder) UpdatePresence(_ context.Context, userID uuid.UUID, online bool, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, presenceWrite{UserID: userID, Online: online})
	return f.err
}

func (f *fakeRecorder) snapshot() []presenceWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]presenceWrite(nil), f.writes...)
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	t        *testing.T
	engine   *collab.Engine
	boards   *fakeBoards
	cards    *fakeCards
	recorder *fakeRecorder
	cancel   context.CancelFunc
	stopped  chan struct{}
}

func newHarness(t *testing.T, boards *fakeBoards, opts collab.Options) *harness {
	t.Helper()

	if opts.IOTimeout == 0 {
		opts.IOTimeout = 2 * time.Second
	}

	h := &harness{
		t:        t,
		boards:   boards,
		cards:    &fakeCards{},
		recorder: &fakeRecorder{},
		stopped:  make(chan struct{}),
	}
	h.engine = collab.NewEngine(boards, h.cards, h.recorder, opts)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.stopped)
		_ = h.engine.Run(ctx)
	}()

	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.stopped
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	h.t.Cleanup(cancel)
	return ctx
}

func (h *harness) idle() {
	h.t.Helper()
	require.NoError(h.t, h.engine.Idle(h.ctx()))
}

func (h *harness) connect(u *domain.User) *collab.Conn {
	h.t.Helper()
	c, err := h.engine.Connect(h.ctx(), u)
	require.NoError(h.t, err)
	h.idle()
	return c
}

func (h *harness) sendNoWait(c *collab.Conn, kind collab.Kind, data any) {
	h.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(h.t, err)
	require.NoError(h.t, h.engine.Dispatch(h.ctx(), c, kind, raw))
}

func (h *harness) send(c *collab.Conn, kind collab.Kind, data any) {
	h.t.Helper()
	h.sendNoWait(c, kind, data)
	h.idle()
}

func (h *harness) disconnect(c *collab.Conn) {
	h.t.Helper()
	require.NoError(h.t, h.engine.Disconnect(h.ctx(), c))
	h.idle()
}

func (h *harness) inspect(fn func(st *collab.State)) {
	h.t.Helper()
	require.NoError(h.t, h.engine.Inspect(h.ctx(), fn))
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// drain returns every frame currently queued for c. Call after idle so the
// engine has finished producing them.
func drain(t *testing.T, c *collab.Conn) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case raw, ok := <-c.Outbox():
			if !ok {
				return out
			}
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func ofType(frames []frame, typ string) []frame {
	var out []frame
	for _, f := range frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func types(frames []frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Type)
	}
	return out
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}

func onlineNames(t *testing.T, f frame) []string {
	t.Helper()
	p := decode[collab.OnlineUsersPayload](t, f)
	names := make([]string, 0, len(p.Users))
	for _, u := range p.Users {
		names = append(names, u.Name)
	}
	return names
}

func lastOnline(t *testing.T, frames []frame) []string {
	t.Helper()
	updates := ofType(frames, collab.EventOnlineUsersUpdate)
	require.NotEmpty(t, updates, "expected an online_users_update")
	return onlineNames(t, updates[len(updates)-1])
}

func user(name string) *domain.User {
	return &domain.User{ID: uuid.New(), Name: name}
}

func boardRef(id uuid.UUID) map[string]any {
	return map[string]any{"boardId": id}
}

func cardRef(boardID, cardID uuid.UUID) map[string]any {
	return map[string]any{"boardId": boardID, "cardId": cardID}
}
