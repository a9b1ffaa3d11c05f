package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardcast/internal/domain"
)

// handlerFunc turns one inbound event into broadcast instructions. Handlers
// run on the engine loop and never write to the network themselves.
type handlerFunc func(st *State, c *Conn, data json.RawMessage) Outcome

func dispatchTable() map[Kind]handlerFunc {
	return map[Kind]handlerFunc{
		KindJoinBoard:          handleJoinBoard,
		KindLeaveBoard:         handleLeaveBoard,
		KindCardCreated:        mirror(KindCardCreated, "card"),
		KindCardUpdated:        mirror(KindCardUpdated, "card"),
		KindCardDeleted:        mirror(KindCardDeleted, "cardId"),
		KindCardReordered:      mirror(KindCardReordered, "cardId"),
		KindCommentAdded:       mirror(KindCommentAdded, "cardId", "comment"),
		KindCommentRemoved:     mirror(KindCommentRemoved, "cardId", "commentId"),
		KindStartEditing:       handleStartEditing,
		KindStopEditing:        handleStopEditing,
		KindTypingStart:        typing(EventUserTyping),
		KindTypingStop:         typing(EventUserStoppedTyping),
		KindMemberAdded:        handleMemberAdded,
		KindPresenceUpdate:     handlePresenceUpdate,
		KindRequestOnlineUsers: handleRequestOnlineUsers,
	}
}

const (
	msgBoardIDRequired = "Board ID is required"
	msgInvalidBoardID  = "Invalid board ID"
	msgCardIDRequired  = "Card ID is required"
	msgInvalidPayload  = "Invalid event payload"
)

type boardRequest struct {
	BoardID uuid.UUID `json:"boardId"`
}

type cardRequest struct {
	BoardID uuid.UUID `json:"boardId"`
	CardID  uuid.UUID `json:"cardId"`
}

type memberRequest struct {
	BoardID    uuid.UUID `json:"boardId"`
	MemberName string    `json:"memberName"`
}

type presenceRequest struct {
	BoardID uuid.UUID `json:"boardId"`
	Status  string    `json:"status"`
}

func fail(c *Conn, message string) Outcome {
	return Outcome{Sends: []Instruction{errorTo(c.ID, message)}}
}

// decodeBoard decodes data into v and returns its board ID. It returns a
// non-nil failure outcome when the event must be rejected.
func decodeBoard(c *Conn, data json.RawMessage, v any) (uuid.UUID, *Outcome) {
	var head struct {
		BoardID json.RawMessage `json:"boardId"`
	}
	if err := json.Unmarshal(orEmpty(data), &head); err != nil {
		o := fail(c, msgInvalidPayload)
		return uuid.Nil, &o
	}
	boardID, msg := parseBoardID(head.BoardID)
	if msg != "" {
		o := fail(c, msg)
		return uuid.Nil, &o
	}
	if err := json.Unmarshal(orEmpty(data), v); err != nil {
		o := fail(c, msgInvalidPayload)
		return uuid.Nil, &o
	}
	return boardID, nil
}

// parseBoardID tells an absent board ID apart from a malformed one. The
// returned message is empty on success.
func parseBoardID(raw json.RawMessage) (uuid.UUID, string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) || bytes.Equal(raw, []byte(`""`)) {
		return uuid.Nil, msgBoardIDRequired
	}
	var id uuid.UUID
	if err := json.Unmarshal(raw, &id); err != nil {
		return uuid.Nil, msgInvalidBoardID
	}
	if id == uuid.Nil {
		return uuid.Nil, msgBoardIDRequired
	}
	return id, ""
}

// withAccess runs next once c may act on the board. A joined connection was
// checked when it joined; any other connection is checked against the board
// store first, so its event is handled after the lookup returns.
func (st *State) withAccess(c *Conn, boardID uuid.UUID, next Continuation) Outcome {
	if st.Rooms.IsMember(boardID, c.ID) {
		return next(st)
	}

	boards := st.boards
	return Outcome{Effect: func(ctx context.Context) Continuation {
		board, err := boards.GetByID(ctx, boardID)
		return func(st *State) Outcome {
			if !st.live(c) {
				return Outcome{}
			}
			switch {
			case errors.Is(err, domain.ErrNotFound):
				return fail(c, msgBoardNotFound)
			case err != nil:
				log.Warn().Err(err).Str("board_id", boardID.String()).Str("user_id", c.UserID.String()).Msg("collab: board access lookup")
				return fail(c, msgSnapshotFailure)
			case !board.CanAccess(c.UserID):
				return fail(c, msgAccessDenied)
			}
			return next(st)
		}
	}}
}

func orEmpty(data json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("{}")
	}
	return data
}

// mirror rebroadcasts a state-authoritative mutation to the whole board,
// actor included, so the originator converges on the server-confirmed event
// rather than its own optimistic apply. The payload is passed through as is;
// only actor and timestamp are set, overwriting anything the client sent.
func mirror(kind Kind, required ...string) handlerFunc {
	return func(st *State, c *Conn, data json.RawMessage) Outcome {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(orEmpty(data), &fields); err != nil || fields == nil {
			return fail(c, fmt.Sprintf("Invalid %s payload", kind))
		}

		boardID, msg := parseBoardID(fields["boardId"])
		if msg != "" {
			return fail(c, msg)
		}
		for _, name := range required {
			if raw, ok := fields[name]; !ok || isNull(raw) {
				return fail(c, fmt.Sprintf("Invalid %s payload: %s is required", kind, name))
			}
		}

		return st.withAccess(c, boardID, func(st *State) Outcome {
			actor, err := json.Marshal(c.actor())
			if err != nil {
				return fail(c, fmt.Sprintf("Invalid %s payload", kind))
			}
			ts, err := json.Marshal(st.now())
			if err != nil {
				return fail(c, fmt.Sprintf("Invalid %s payload", kind))
			}
			fields["actor"] = actor
			fields["timestamp"] = ts

			return Outcome{Sends: []Instruction{toBoard(boardID, string(kind), fields)}}
		})
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeCard(c *Conn, data json.RawMessage) (cardRequest, *Outcome) {
	var req cardRequest
	boardID, failed := decodeBoard(c, data, &req)
	if failed != nil {
		return req, failed
	}
	req.BoardID = boardID
	if req.CardID == uuid.Nil {
		o := fail(c, msgCardIDRequired)
		return req, &o
	}
	return req, nil
}

func handleStartEditing(st *State, c *Conn, data json.RawMessage) Outcome {
	req, failed := decodeCard(c, data)
	if failed != nil {
		return *failed
	}

	return st.withAccess(c, req.BoardID, func(st *State) Outcome {
		st.Editing.Start(c.UserID, req.BoardID, req.CardID)
		return Outcome{Sends: []Instruction{
			toBoard(req.BoardID, EventUserStartedEditing, EditingPayload{CardID: req.CardID, User: c.actor(), Timestamp: st.now()}),
		}}
	})
}

func handleStopEditing(st *State, c *Conn, data json.RawMessage) Outcome {
	req, failed := decodeCard(c, data)
	if failed != nil {
		return *failed
	}

	return st.withAccess(c, req.BoardID, func(st *State) Outcome {
		st.Editing.Stop(c.UserID, req.CardID)
		return Outcome{Sends: []Instruction{
			toBoard(req.BoardID, EventUserStoppedEditing, EditingPayload{CardID: req.CardID, User: c.actor(), Timestamp: st.now()}),
		}}
	})
}

// typing indicators are informational and skip the typist.
func typing(event string) handlerFunc {
	return func(st *State, c *Conn, data json.RawMessage) Outcome {
		req, failed := decodeCard(c, data)
		if failed != nil {
			return *failed
		}
		return st.withAccess(c, req.BoardID, func(*State) Outcome {
			return Outcome{Sends: []Instruction{
				toBoardExcept(req.BoardID, c.ID, event, TypingPayload{CardID: req.CardID, User: c.actor()}),
			}}
		})
	}
}

func handleMemberAdded(st *State, c *Conn, data json.RawMessage) Outcome {
	var req memberRequest
	boardID, failed := decodeBoard(c, data, &req)
	if failed != nil {
		return *failed
	}
	if req.MemberName == "" {
		return fail(c, "Member name is required")
	}

	return st.withAccess(c, boardID, func(st *State) Outcome {
		return Outcome{Sends: []Instruction{
			toBoard(boardID, EventMemberAdded, MemberAddedPayload{
				BoardID:    boardID,
				MemberName: req.MemberName,
				AddedBy:    c.actor(),
				Timestamp:  st.now(),
			}),
		}}
	})
}

func handlePresenceUpdate(st *State, c *Conn, data json.RawMessage) Outcome {
	var req presenceRequest
	boardID, failed := decodeBoard(c, data, &req)
	if failed != nil {
		return *failed
	}

	return st.withAccess(c, boardID, func(st *State) Outcome {
		return Outcome{Sends: []Instruction{
			toBoard(boardID, EventPresenceUpdated, PresenceUpdatedPayload{User: c.actor(), Status: req.Status, Timestamp: st.now()}),
		}}
	})
}

func handleRequestOnlineUsers(st *State, c *Conn, data json.RawMessage) Outcome {
	var req boardRequest
	boardID, failed := decodeBoard(c, data, &req)
	if failed != nil {
		return *failed
	}

	return st.withAccess(c, boardID, func(st *State) Outcome {
		return Outcome{Sends: []Instruction{
			toConn(c.ID, EventOnlineUsersUpdate, st.onlineUsersUpdate(boardID)),
		}}
	})
}
