package collab

import (
	"github.com/google/uuid"

	"github.com/gosuda/boardcast/internal/domain"
)

// Close reasons reported by Conn.CloseReason.
const (
	CloseReasonDisconnect   = "disconnected"
	CloseReasonSlowConsumer = "slow consumer"
	CloseReasonShutdown     = "server shutting down"
)

// Conn is one authenticated live session. Identity fields are immutable
// after Connect; the outbound queue is written and closed only by the engine
// loop.
type Conn struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	UserName string

	out    chan []byte
	reason string
}

func newConn(user *domain.User, buffer int) *Conn {
	return &Conn{
		ID:       uuid.New(),
		UserID:   user.ID,
		UserName: user.Name,
		out:      make(chan []byte, buffer),
	}
}

// Outbox yields encoded frames for the transport to write. It is closed when
// the engine drops the connection.
func (c *Conn) Outbox() <-chan []byte { return c.out }

// CloseReason explains why Outbox was closed. Only meaningful after Outbox
// has been observed closed.
func (c *Conn) CloseReason() string { return c.reason }

func (c *Conn) actor() UserRef {
	return UserRef{UserID: c.UserID, UserName: c.UserName}
}

func (c *Conn) close(reason string) {
	c.reason = reason
	close(c.out)
}
