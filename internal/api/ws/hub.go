package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardcast/internal/collab"
	"github.com/gosuda/boardcast/internal/domain"
	"github.com/gosuda/boardcast/internal/server/middleware"
)

const (
	msgMalformedFrame = "Malformed event frame"
	msgRateLimited    = "Too many events, slow down"
)

// Engine is the part of collab.Engine the hub drives.
type Engine interface {
	Connect(ctx context.Context, user *domain.User) (*collab.Conn, error)
	Dispatch(ctx context.Context, c *collab.Conn, kind collab.Kind, data json.RawMessage) error
	Reject(ctx context.Context, c *collab.Conn, message string) error
	Disconnect(ctx context.Context, c *collab.Conn) error
}

// Options tunes the transport. Zero values select defaults.
type Options struct {
	WriteTimeout    time.Duration // per frame, default 10s
	EventsPerSecond float64       // inbound events per user, default 20
	EventBurst      int           // default 40
	ReadLimit       int64         // max inbound frame bytes, default 64KiB
	OriginPatterns  []string      // allowed cross-origin hosts for the handshake
}

func (o *Options) defaults() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.EventsPerSecond <= 0 {
		o.EventsPerSecond = 20
	}
	if o.EventBurst <= 0 {
		o.EventBurst = 40
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
}

// Hub bridges WebSocket connections to the collaboration engine. Each
// connection gets a reader that feeds inbound frames to the engine and a
// writer that drains the connection's outbox.
type Hub struct {
	engine Engine
	opts   Options

	// events is shared by all of a user's connections.
	events *middleware.Limiters[uuid.UUID]
}

// NewHub creates a new WebSocket hub.
func NewHub(engine Engine, opts Options) *Hub {
	opts.defaults()
	return &Hub{
		engine: engine,
		opts:   opts,
		events: middleware.NewLimiters[uuid.UUID](opts.EventsPerSecond, opts.EventBurst),
	}
}

// ServeBoard handles the collaboration WebSocket. The request must already
// carry an authenticated user (see middleware.Auth).
func (h *Hub) ServeBoard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.opts.ReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c, err := h.engine.Connect(ctx, user)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("websocket connect")
		_ = conn.Close(websocket.StatusTryAgainLater, "server unavailable")
		return
	}

	logger := log.With().Str("conn_id", c.ID.String()).Str("user_id", user.ID.String()).Logger()
	logger.Debug().Msg("websocket connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		h.write(ctx, conn, c)
	}()

	h.read(ctx, conn, c)

	// The request context may already be gone; reconciliation must still run.
	dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.WriteTimeout)
	if err := h.engine.Disconnect(dctx, c); err != nil && !errors.Is(err, collab.ErrStopped) {
		logger.Warn().Err(err).Msg("websocket disconnect")
	}
	dcancel()

	cancel()
	<-writerDone
	logger.Debug().Msg("websocket closed")
}

// read feeds inbound frames to the engine until the peer goes away or ctx
// ends.
func (h *Hub) read(ctx context.Context, conn *websocket.Conn, c *collab.Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				log.Debug().Err(err).Str("conn_id", c.ID.String()).Msg("websocket read")
			}
			return
		}

		if !h.events.Allow(c.UserID) {
			if !h.reject(ctx, c, msgRateLimited) {
				return
			}
			continue
		}

		var env Envelope
		if typ != websocket.MessageText || json.Unmarshal(data, &env) != nil || env.Type == "" {
			if !h.reject(ctx, c, msgMalformedFrame) {
				return
			}
			continue
		}

		if err := h.engine.Dispatch(ctx, c, collab.Kind(env.Type), env.Data); err != nil {
			log.Debug().Err(err).Str("conn_id", c.ID.String()).Msg("websocket dispatch")
			return
		}
	}
}

func (h *Hub) reject(ctx context.Context, c *collab.Conn, message string) bool {
	if err := h.engine.Reject(ctx, c, message); err != nil {
		log.Debug().Err(err).Str("conn_id", c.ID.String()).Msg("websocket reject")
		return false
	}
	return true
}

// write drains the outbox to the socket. When the engine closes the outbox
// the socket is closed with a status matching the reason.
func (h *Hub) write(ctx context.Context, conn *websocket.Conn, c *collab.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.Outbox():
			if !ok {
				_ = conn.Close(closeStatus(c.CloseReason()), c.CloseReason())
				return
			}
			wctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("conn_id", c.ID.String()).Msg("websocket write")
				return
			}
		}
	}
}

func closeStatus(reason string) websocket.StatusCode {
	switch reason {
	case collab.CloseReasonSlowConsumer:
		return websocket.StatusPolicyViolation
	case collab.CloseReasonShutdown:
		return websocket.StatusGoingAway
	default:
		return websocket.StatusNormalClosure
	}
}
