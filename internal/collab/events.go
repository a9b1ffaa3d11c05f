package collab

import (
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/boardcast/internal/domain"
)

// Kind is an inbound client event name.
type Kind string

const (
	KindJoinBoard          Kind = "join_board"
	KindLeaveBoard         Kind = "leave_board"
	KindCardCreated        Kind = "card_created"
	KindCardUpdated        Kind = "card_updated"
	KindCardDeleted        Kind = "card_deleted"
	KindCardReordered      Kind = "card_reordered"
	KindCommentAdded       Kind = "comment_added"
	KindCommentRemoved     Kind = "comment_removed"
	KindStartEditing       Kind = "start_editing"
	KindStopEditing        Kind = "stop_editing"
	KindTypingStart        Kind = "typing_start"
	KindTypingStop         Kind = "typing_stop"
	KindMemberAdded        Kind = "member_added"
	KindPresenceUpdate     Kind = "presence_update"
	KindRequestOnlineUsers Kind = "request_online_users"
)

// Outbound event names.
const (
	EventBoardJoined        = "board_joined"
	EventOnlineUsersUpdate  = "online_users_update"
	EventUserJoinedBoard    = "user_joined_board"
	EventUserLeftBoard      = "user_left_board"
	EventUserDisconnected   = "user_disconnected"
	EventUserStartedEditing = "user_started_editing"
	EventUserStoppedEditing = "user_stopped_editing"
	EventUserTyping         = "user_typing"
	EventUserStoppedTyping  = "user_stopped_typing"
	EventMemberAdded        = "member_added"
	EventPresenceUpdated    = "presence_updated"
	EventError              = "error"
)

// Message is one outbound frame. It is encoded once per instruction and the
// same bytes are queued to every recipient.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Audience selects the recipients of an Instruction.
type Audience uint8

const (
	// AudienceConn delivers to a single connection.
	AudienceConn Audience = iota
	// AudienceBoard delivers to every member of a board channel.
	AudienceBoard
	// AudienceBoardExcept delivers to every member except ConnID.
	AudienceBoardExcept
)

// Instruction is a broadcast request produced by a handler. Handlers never
// touch the network; the engine resolves instructions to connections.
type Instruction struct {
	Audience Audience
	ConnID   uuid.UUID
	BoardID  uuid.UUID
	Message  Message
}

func toConn(connID uuid.UUID, typ string, data any) Instruction {
	return Instruction{Audience: AudienceConn, ConnID: connID, Message: Message{Type: typ, Data: data}}
}

func toBoard(boardID uuid.UUID, typ string, data any) Instruction {
	return Instruction{Audience: AudienceBoard, BoardID: boardID, Message: Message{Type: typ, Data: data}}
}

func toBoardExcept(boardID, connID uuid.UUID, typ string, data any) Instruction {
	return Instruction{Audience: AudienceBoardExcept, BoardID: boardID, ConnID: connID, Message: Message{Type: typ, Data: data}}
}

func errorTo(connID uuid.UUID, message string) Instruction {
	return toConn(connID, EventError, ErrorPayload{Message: message})
}

// UserRef identifies the acting user inside an outbound payload. It is always
// filled from the connection's verified identity.
type UserRef struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName"`
}

// OnlineUser is one entry of an online_users_update list.
type OnlineUser struct {
	ID       uuid.UUID `json:"_id"`
	Name     string    `json:"name"`
	IsOnline bool      `json:"isOnline"`
}

type OnlineUsersPayload struct {
	BoardID uuid.UUID    `json:"boardId"`
	Users   []OnlineUser `json:"users"`
}

type UserNoticePayload struct {
	UserID    uuid.UUID `json:"userId"`
	UserName  string    `json:"userName"`
	Timestamp time.Time `json:"timestamp"`
}

type BoardJoinedPayload struct {
	Board       *domain.Board  `json:"board"`
	Cards       []*domain.Card `json:"cards"`
	OnlineUsers []OnlineUser   `json:"onlineUsers"`
}

type EditingPayload struct {
	CardID    uuid.UUID `json:"cardId"`
	User      UserRef   `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingPayload struct {
	CardID uuid.UUID `json:"cardId"`
	User   UserRef   `json:"user"`
}

type MemberAddedPayload struct {
	BoardID    uuid.UUID `json:"boardId"`
	MemberName string    `json:"memberName"`
	AddedBy    UserRef   `json:"addedBy"`
	Timestamp  time.Time `json:"timestamp"`
}

type PresenceUpdatedPayload struct {
	User      UserRef   `json:"user"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
