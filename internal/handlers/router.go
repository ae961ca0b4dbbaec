package handlers

import (
	"net/http"

	"plainchat/internal/auth"
	"plainchat/internal/database"
	"plainchat/internal/metrics"
	"plainchat/internal/mw"
	"plainchat/internal/services"
	ws "plainchat/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the HTTP surface is built from.
type Deps struct {
	Accounts      *auth.Service
	Authenticator *auth.Authenticator
	Rooms         *services.RoomService
	Presence      *services.Presence
	Users         database.UserRepository
	Hubs          *ws.Manager
	// AuthLimiter throttles registration and login per client IP. Optional.
	AuthLimiter *mw.RL
}

func NewRouter(d Deps) http.Handler {
	authHandlers := NewAuthHandlers(d.Accounts)
	roomHandlers := NewRoomHandlers(d.Rooms)
	wsHandlers := NewWebSocketHandlers(d.Authenticator, d.Users, d.Presence, d.Hubs)

	limit := func(next http.Handler) http.Handler { return next }
	if d.AuthLimiter != nil {
		limit = d.AuthLimiter.Handler
	}
	requireUser := RequireUser(d.Authenticator)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Route is OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", wsHandlers.HandleWebSocket)

	r.Route("/api/user", func(r chi.Router) {
		r.With(limit).Post("/", authHandlers.Register)
		r.With(limit).Post("/auth", authHandlers.Login)
		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/", authHandlers.Current)
			r.Put("/", authHandlers.Update)
			r.Delete("/", authHandlers.Delete)
		})
	})

	r.Route("/api/group", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/", roomHandlers.ListRooms)
		r.Post("/", roomHandlers.CreateRoom)
		r.Delete("/{id}", roomHandlers.DeleteRoom)
		r.Get("/{id}/members", roomHandlers.GetRoomMembers)
		r.Get("/{id}/messages", roomHandlers.GetRoomMessages)
	})

	return r
}
