package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/boardcast/internal/api/v1"
	"github.com/gosuda/boardcast/internal/api/ws"
	"github.com/gosuda/boardcast/internal/collab"
	"github.com/gosuda/boardcast/internal/store/postgres"
	redisstore "github.com/gosuda/boardcast/internal/store/redis"
)

func registerAPIRoutes(api huma.API, engine *collab.Engine, store *postgres.Store, presence *redisstore.Presence) {
	v1.RegisterPresenceRoutes(api, engine, store.Boards(), presence)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/ws", hub.ServeBoard)
	r.Get("/ws/boards", hub.ServeBoard)
}
