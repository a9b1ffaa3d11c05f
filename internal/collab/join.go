package collab

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardcast/internal/domain"
)

const (
	msgBoardNotFound   = "Board not found"
	msgAccessDenied    = "Access denied to this board"
	msgJoinFailed      = "Error joining board"
	msgAutoJoinFailed  = "Error loading your boards"
	msgSnapshotFailure = "Error loading board"
)

// connect registers c and auto-joins it to every board its user can access.
func (st *State) connect(c *Conn) Outcome {
	st.conns[c.ID] = c
	st.Presence.Register(c.UserID, c.UserName, c.ID)

	if !st.autoJoin {
		return Outcome{}
	}

	boards := st.boards
	userID := c.UserID

	return Outcome{Effect: func(ctx context.Context) Continuation {
		accessible, err := boards.ListAccessible(ctx, userID)
		return func(st *State) Outcome {
			if !st.live(c) {
				return Outcome{}
			}
			if err != nil {
				log.Warn().Err(err).Str("user_id", userID.String()).Msg("collab: auto-join list boards")
				return fail(c, msgAutoJoinFailed)
			}
			var sends []Instruction
			for _, b := range accessible {
				sends = append(sends, st.join(c, b.ID)...)
			}
			return Outcome{Sends: sends}
		}
	}}
}

// join adds c to the board channel. The actor's arrival is announced to the
// others only when membership actually changed; the online list always goes
// to the whole room so every client converges on one view.
func (st *State) join(c *Conn, boardID uuid.UUID) []Instruction {
	var sends []Instruction
	if st.Rooms.Join(boardID, c.ID, c.UserID) {
		sends = append(sends, toBoardExcept(boardID, c.ID, EventUserJoinedBoard, st.userNotice(c)))
	}
	return append(sends, toBoard(boardID, EventOnlineUsersUpdate, st.onlineUsersUpdate(boardID)))
}

func (st *State) userNotice(c *Conn) UserNoticePayload {
	return UserNoticePayload{UserID: c.UserID, UserName: c.UserName, Timestamp: st.now()}
}

func handleJoinBoard(st *State, c *Conn, data json.RawMessage) Outcome {
	var req boardRequest
	boardID, failed := decodeBoard(c, data, &req)
	if failed != nil {
		return *failed
	}

	boards := st.boards
	return Outcome{Effect: func(ctx context.Context) Continuation {
		board, err := boards.GetByID(ctx, boardID)
		return func(st *State) Outcome {
			return st.completeJoin(c, boardID, board, err)
		}
	}}
}

// completeJoin runs once the board lookup returns. Other events may have run
// in the meantime, including c's own disconnect.
func (st *State) completeJoin(c *Conn, boardID uuid.UUID, board *domain.Board, err error) Outcome {
	if !st.live(c) {
		return Outcome{}
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fail(c, msgBoardNotFound)
	case err != nil:
		log.Warn().Err(err).Str("board_id", boardID.String()).Str("user_id", c.UserID.String()).Msg("collab: join board lookup")
		return fail(c, msgJoinFailed)
	case !board.CanAccess(c.UserID):
		return fail(c, msgAccessDenied)
	}

	sends := st.join(c, board.ID)
	online := st.OnlineUsers(board.ID)

	cards := st.cards
	return Outcome{
		Sends: sends,
		Effect: func(ctx context.Context) Continuation {
			list, err := cards.ListActiveByBoard(ctx, board.ID)
			return func(st *State) Outcome {
				if !st.live(c) || !st.Rooms.IsMember(board.ID, c.ID) {
					return Outcome{}
				}
				if err != nil {
					log.Warn().Err(err).Str("board_id", board.ID.String()).Msg("collab: join board cards")
					return fail(c, msgSnapshotFailure)
				}
				if list == nil {
					list = []*domain.Card{}
				}
				return Outcome{Sends: []Instruction{
					toConn(c.ID, EventBoardJoined, BoardJoinedPayload{Board: board, Cards: list, OnlineUsers: online}),
				}}
			}
		},
	}
}

func handleLeaveBoard(st *State, c *Conn, data json.RawMessage) Outcome {
	var req boardRequest
	boardID, failed := decodeBoard(c, data, &req)
	if failed != nil {
		return *failed
	}

	if !st.Rooms.Leave(boardID, c.ID) {
		return Outcome{}
	}

	update := st.onlineUsersUpdate(boardID)
	return Outcome{Sends: []Instruction{
		toBoardExcept(boardID, c.ID, EventUserLeftBoard, st.userNotice(c)),
		toBoard(boardID, EventOnlineUsersUpdate, update),
		toConn(c.ID, EventOnlineUsersUpdate, update),
	}}
}
