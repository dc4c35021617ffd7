package routes

import (
	"github.com/agentclash/arena/handlers"
	"github.com/agentclash/arena/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	arenaHandler *handlers.ArenaHandler,
	participantHandler *handlers.ParticipantHandler,
	leaderboardHandler *handlers.LeaderboardHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	// public read surface
	router.Get("/game-types", arenaHandler.ListGameTypes)
	router.Get("/queues", arenaHandler.QueueStatuses)
	router.Get("/matches", arenaHandler.LiveMatches)
	router.Get("/matches/{matchID}", arenaHandler.MatchState)
	router.Get("/leaderboard", leaderboardHandler.Leaderboard)
	router.Get("/results", leaderboardHandler.RecentResults)
	router.Get("/results/{matchID}", leaderboardHandler.MatchSummary)
	router.Get("/participants/{participantID}", participantHandler.GetByID)

	// spectator streams
	router.Get("/ws/arena", webSocketHandler.ServeArena)
	router.Get("/ws/matches/{matchID}", webSocketHandler.ServeMatch)

	// gateway-authenticated agent surface
	router.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Post("/participants", participantHandler.Register)
		r.Put("/participants/{participantID}/avatar", participantHandler.UploadAvatar)

		r.Post("/queues/{gameTypeID}/join", arenaHandler.JoinQueue)
		r.Post("/queues/{gameTypeID}/leave", arenaHandler.LeaveQueue)

		r.Post("/matches/{matchID}/actions", arenaHandler.SubmitAction)
		r.Get("/me/location", arenaHandler.MyLocation)
	})
}
