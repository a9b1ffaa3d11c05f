package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/gosuda/boardcast/internal/collab"
	"github.com/gosuda/boardcast/internal/domain"
	"github.com/gosuda/boardcast/internal/server/middleware"
	redisstore "github.com/gosuda/boardcast/internal/store/redis"
)

type ConnectedUsersOutput struct {
	Body struct {
		Users []collab.OnlineUser `json:"users"`
	}
}

type BoardPresenceInput struct {
	BoardID uuid.UUID `path:"boardID" doc:"Board ID"`
}

type BoardPresenceOutput struct {
	Body *collab.OnlineUsersPayload
}

type CardEditorsInput struct {
	CardID uuid.UUID `path:"cardID" doc:"Card ID"`
}

type CardEditorsOutput struct {
	Body struct {
		CardID  uuid.UUID   `json:"cardId"`
		Editors []uuid.UUID `json:"editors"`
	}
}

type LastSeenInput struct {
	UserID uuid.UUID `path:"userID" doc:"User ID"`
}

type LastSeenOutput struct {
	Body *redisstore.LastSeen
}

func RegisterPresenceRoutes(api huma.API, presence PresenceReader, boards BoardReader, lastSeen LastSeenStore) {
	huma.Register(api, huma.Operation{
		OperationID: "list-connected-users",
		Method:      http.MethodGet,
		Path:        "/presence/users",
		Summary:     "List online users joined to any board the caller can access",
		Tags:        []string{"Presence"},
	}, func(ctx context.Context, _ *struct{}) (*ConnectedUsersOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		accessible, err := boards.ListAccessible(ctx, userID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list boards", err)
		}
		boardIDs := lo.Map(accessible, func(b *domain.Board, _ int) uuid.UUID { return b.ID })

		users, err := presence.ConnectedUsers(ctx, boardIDs)
		if err != nil {
			return nil, engineError("failed to list connected users", err)
		}

		out := &ConnectedUsersOutput{}
		out.Body.Users = users
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-board-presence",
		Method:      http.MethodGet,
		Path:        "/presence/boards/{boardID}",
		Summary:     "List users currently joined to a board",
		Tags:        []string{"Presence"},
	}, func(ctx context.Context, input *BoardPresenceInput) (*BoardPresenceOutput, error) {
		board, err := authorizeBoard(ctx, boards, input.BoardID)
		if err != nil {
			return nil, err
		}

		users, err := presence.OnlineUsers(ctx, board.ID)
		if err != nil {
			return nil, engineError("failed to list online users", err)
		}

		return &BoardPresenceOutput{Body: &collab.OnlineUsersPayload{BoardID: board.ID, Users: users}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-card-editors",
		Method:      http.MethodGet,
		Path:        "/presence/cards/{cardID}/editors",
		Summary:     "List users currently editing a card",
		Tags:        []string{"Presence"},
	}, func(ctx context.Context, input *CardEditorsInput) (*CardEditorsOutput, error) {
		if _, ok := middleware.UserIDFromContext(ctx); !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		boardID, editors, err := presence.Editors(ctx, input.CardID)
		if err != nil {
			return nil, engineError("failed to list editors", err)
		}
		// Without an open session there is nothing to disclose.
		if boardID != uuid.Nil {
			if _, err := authorizeBoard(ctx, boards, boardID); err != nil {
				return nil, err
			}
		}

		out := &CardEditorsOutput{}
		out.Body.CardID = input.CardID
		out.Body.Editors = editors
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-last-seen",
		Method:      http.MethodGet,
		Path:        "/presence/users/{userID}/last-seen",
		Summary:     "Get a user's mirrored online flag and last-seen time",
		Tags:        []string{"Presence"},
	}, func(ctx context.Context, input *LastSeenInput) (*LastSeenOutput, error) {
		rec, err := lastSeen.Get(ctx, input.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("no presence recorded for user")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to read last seen", err)
		}

		return &LastSeenOutput{Body: rec}, nil
	})
}

// authorizeBoard loads the board and checks the caller may see it.
func authorizeBoard(ctx context.Context, boards BoardReader, boardID uuid.UUID) (*domain.Board, error) {
	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("missing user context")
	}

	board, err := boards.GetByID(ctx, boardID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, huma.Error404NotFound("board not found")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get board", err)
	}
	if !board.CanAccess(userID) {
		return nil, huma.Error403Forbidden("access denied to this board")
	}
	return board, nil
}

func engineError(msg string, err error) error {
	if errors.Is(err, collab.ErrStopped) {
		return huma.Error503ServiceUnavailable("presence engine is shutting down")
	}
	return huma.Error500InternalServerError(msg, err)
}
