package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			// Discovery sessions
			r.Post("/sessions", apiHandler.CreateSessionHandler)
			r.Get("/sessions", apiHandler.ListSessionsHandler)
			r.Delete("/sessions", apiHandler.ClearSessionsHandler)
			r.Get("/sessions/{sessionID}", apiHandler.GetSessionHandler)
			r.Delete("/sessions/{sessionID}", apiHandler.DeleteSessionHandler)

			r.Post("/items/{itemID}/analyze", apiHandler.AnalyzeItemHandler)
			r.Post("/items/{itemID}/chats", apiHandler.StartChatHandler)

			r.Get("/chats", apiHandler.ListChatsHandler)
			r.Get("/chats/{chatID}", apiHandler.GetChatDetailsHandler)
			r.Post("/chats/{chatID}/messages", apiHandler.PostMessageHandler)

			// Repository browser
			r.Get("/github/discover", apiHandler.DiscoverHandler)
			r.Post("/github/analyze", apiHandler.AnalyzeRepoHandler)
			r.Get("/repo-chats/{sessionID}", apiHandler.GetRepoChatHandler)
			r.Post("/repo-chats/{sessionID}/messages", apiHandler.PostRepoMessageHandler)

			r.Get("/settings", apiHandler.GetSettingsHandler)
			r.Put("/settings", apiHandler.UpdateSettingsHandler)
		})
	})

	return r
}
