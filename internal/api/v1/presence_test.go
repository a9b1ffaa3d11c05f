package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/boardcast/internal/api/v1"
	"github.com/gosuda/boardcast/internal/collab"
	"github.com/gosuda/boardcast/internal/domain"
	redisstore "github.com/gosuda/boardcast/internal/store/redis"
)

func register(t *testing.T, presence *mockPresence, boards *mockBoards, lastSeen *mockLastSeen) humatest.TestAPI {
	t.Helper()

	_, api := humatest.New(t)
	if presence == nil {
		presence = &mockPresence{}
	}
	if boards == nil {
		boards = &mockBoards{}
	}
	if lastSeen == nil {
		lastSeen = &mockLastSeen{}
	}
	v1.RegisterPresenceRoutes(api, presence, boards, lastSeen)
	return api
}

// ---------------------------------------------------------------------------
// GET /presence/users
// ---------------------------------------------------------------------------

func TestListConnectedUsers(t *testing.T) {
	t.Parallel()

	caller := uuid.New()
	shared := &domain.Board{ID: uuid.New(), OwnerID: caller}

	t.Run("scoped_to_accessible_boards", func(t *testing.T) {
		t.Parallel()

		alice := collab.OnlineUser{ID: uuid.New(), Name: "alice", IsOnline: true}
		api := register(t,
			&mockPresence{connectedUsersFunc: func(_ context.Context, boardIDs []uuid.UUID) ([]collab.OnlineUser, error) {
				assert.Equal(t, []uuid.UUID{shared.ID}, boardIDs)
				return []collab.OnlineUser{alice}, nil
			}},
			&mockBoards{listAccessibleFunc: func(_ context.Context, userID uuid.UUID) ([]*domain.Board, error) {
				assert.Equal(t, caller, userID)
				return []*domain.Board{shared}, nil
			}},
			nil,
		)

		resp := api.GetCtx(userCtx(caller), "/presence/users")
		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			Users []collab.OnlineUser `json:"users"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, []collab.OnlineUser{alice}, body.Users)
	})

	t.Run("no_user_context", func(t *testing.T) {
		t.Parallel()

		api := register(t, nil, nil, nil)
		resp := api.Get("/presence/users")
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("board_store_error", func(t *testing.T) {
		t.Parallel()

		api := register(t, nil, &mockBoards{
			listAccessibleFunc: func(context.Context, uuid.UUID) ([]*domain.Board, error) {
				return nil, errors.New("db down")
			},
		}, nil)

		resp := api.GetCtx(userCtx(caller), "/presence/users")
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("engine_stopped", func(t *testing.T) {
		t.Parallel()

		api := register(t,
			&mockPresence{connectedUsersFunc: func(context.Context, []uuid.UUID) ([]collab.OnlineUser, error) {
				return nil, fmt.Errorf("collab.Engine.ConnectedUsers: %w", collab.ErrStopped)
			}},
			&mockBoards{listAccessibleFunc: func(context.Context, uuid.UUID) ([]*domain.Board, error) {
				return []*domain.Board{shared}, nil
			}},
			nil,
		)

		resp := api.GetCtx(userCtx(caller), "/presence/users")
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// GET /presence/boards/{boardID}
// ---------------------------------------------------------------------------

func TestGetBoardPresence(t *testing.T) {
	t.Parallel()

	caller := uuid.New()
	boardID := uuid.New()

	online := func(context.Context, uuid.UUID) ([]collab.OnlineUser, error) {
		return []collab.OnlineUser{{ID: caller, Name: "caller", IsOnline: true}}, nil
	}

	tests := []struct {
		name       string
		board      *domain.Board
		boardErr   error
		onlineErr  error
		wantStatus int
	}{
		{name: "member", board: &domain.Board{ID: boardID, OwnerID: uuid.New(), MemberIDs: []uuid.UUID{caller}}, wantStatus: http.StatusOK},
		{name: "public", board: &domain.Board{ID: boardID, OwnerID: uuid.New(), IsPublic: true}, wantStatus: http.StatusOK},
		{name: "forbidden", board: &domain.Board{ID: boardID, OwnerID: uuid.New()}, wantStatus: http.StatusForbidden},
		{name: "not_found", boardErr: domain.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "store_error", boardErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
		{name: "engine_error", board: &domain.Board{ID: boardID, OwnerID: caller}, onlineErr: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := register(t,
				&mockPresence{onlineUsersFunc: func(ctx context.Context, id uuid.UUID) ([]collab.OnlineUser, error) {
					assert.Equal(t, boardID, id)
					if tt.onlineErr != nil {
						return nil, tt.onlineErr
					}
					return online(ctx, id)
				}},
				&mockBoards{getByIDFunc: func(_ context.Context, id uuid.UUID) (*domain.Board, error) {
					assert.Equal(t, boardID, id)
					return tt.board, tt.boardErr
				}},
				nil,
			)

			resp := api.GetCtx(userCtx(caller), "/presence/boards/"+boardID.String())
			require.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())

			if tt.wantStatus == http.StatusOK {
				var body collab.OnlineUsersPayload
				require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
				assert.Equal(t, boardID, body.BoardID)
				require.Len(t, body.Users, 1)
				assert.Equal(t, caller, body.Users[0].ID)
			}
		})
	}

	t.Run("no_user_context", func(t *testing.T) {
		t.Parallel()

		api := register(t, nil, nil, nil)
		resp := api.Get("/presence/boards/" + boardID.String())
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("invalid_id", func(t *testing.T) {
		t.Parallel()

		api := register(t, nil, nil, nil)
		resp := api.GetCtx(userCtx(caller), "/presence/boards/not-a-uuid")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// GET /presence/cards/{cardID}/editors
// ---------------------------------------------------------------------------

func TestGetCardEditors(t *testing.T) {
	t.Parallel()

	caller := uuid.New()
	cardID := uuid.New()
	editor := uuid.New()
	boardID := uuid.New()

	tests := []struct {
		name        string
		board       *domain.Board
		boardErr    error
		noSession   bool
		wantStatus  int
		wantEditors []uuid.UUID
	}{
		{name: "member", board: &domain.Board{ID: boardID, OwnerID: uuid.New(), MemberIDs: []uuid.UUID{caller}}, wantStatus: http.StatusOK, wantEditors: []uuid.UUID{editor}},
		{name: "private_board_forbidden", board: &domain.Board{ID: boardID, OwnerID: uuid.New()}, wantStatus: http.StatusForbidden},
		{name: "board_gone", boardErr: domain.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "board_store_error", boardErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
		{name: "no_session", noSession: true, wantStatus: http.StatusOK, wantEditors: []uuid.UUID{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := register(t,
				&mockPresence{editorsFunc: func(_ context.Context, id uuid.UUID) (uuid.UUID, []uuid.UUID, error) {
					assert.Equal(t, cardID, id)
					if tt.noSession {
						return uuid.Nil, []uuid.UUID{}, nil
					}
					return boardID, []uuid.UUID{editor}, nil
				}},
				&mockBoards{getByIDFunc: func(_ context.Context, id uuid.UUID) (*domain.Board, error) {
					if tt.noSession {
						t.Error("board looked up without an editing session")
					}
					assert.Equal(t, boardID, id)
					return tt.board, tt.boardErr
				}},
				nil,
			)

			resp := api.GetCtx(userCtx(caller), "/presence/cards/"+cardID.String()+"/editors")
			require.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.NotContains(t, resp.Body.String(), editor.String(), "editors must not leak on rejection")
				return
			}

			var body struct {
				CardID  uuid.UUID   `json:"cardId"`
				Editors []uuid.UUID `json:"editors"`
			}
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			assert.Equal(t, cardID, body.CardID)
			assert.Equal(t, tt.wantEditors, body.Editors)
		})
	}

	t.Run("no_user_context", func(t *testing.T) {
		t.Parallel()

		api := register(t, nil, nil, nil)
		resp := api.Get("/presence/cards/" + cardID.String() + "/editors")
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// GET /presence/users/{userID}/last-seen
// ---------------------------------------------------------------------------

func TestGetLastSeen(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	seen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		api := register(t, nil, nil, &mockLastSeen{
			getFunc: func(_ context.Context, id uuid.UUID) (*redisstore.LastSeen, error) {
				return &redisstore.LastSeen{UserID: id, Online: false, LastSeen: seen}, nil
			},
		})

		resp := api.GetCtx(userCtx(uuid.New()), "/presence/users/"+userID.String()+"/last-seen")
		require.Equal(t, http.StatusOK, resp.Code)

		var body redisstore.LastSeen
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, userID, body.UserID)
		assert.False(t, body.Online)
		assert.True(t, seen.Equal(body.LastSeen))
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()

		api := register(t, nil, nil, &mockLastSeen{
			getFunc: func(context.Context, uuid.UUID) (*redisstore.LastSeen, error) {
				return nil, fmt.Errorf("redis.Presence.Get: %w", domain.ErrNotFound)
			},
		})

		resp := api.GetCtx(userCtx(uuid.New()), "/presence/users/"+userID.String()+"/last-seen")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}
