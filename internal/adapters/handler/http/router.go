package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vncsmyrnk/ballot/internal/core/ports"
)

// Routes collects the handlers mounted by NewHandler. Auth, Users and
// Metrics may be nil; their routes are then not mounted. Without
// AllowedOrigins no CORS headers are sent.
type Routes struct {
	Polls          *PollHandler
	Votes          *VoteHandler
	Results        *ResultsHandler
	Users          *UserHandler
	Auth           *AuthHandler
	Authenticator  ports.Authenticator
	Metrics        http.Handler
	AllowedOrigins []string
}

func NewHandler(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// An empty list would make cors allow every origin.
	if len(rt.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	requireAuth := RequireAuth(rt.Authenticator)
	optionalAuth := OptionalAuth(rt.Authenticator)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	})
	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/polls", func(r chi.Router) {
			r.Get("/", rt.Polls.ListPolls)
			r.With(requireAuth).Post("/", rt.Polls.CreatePoll)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rt.Polls.GetPoll)
				r.With(requireAuth).Post("/votes", rt.Votes.CastVote)
				r.With(optionalAuth).Get("/results", rt.Results.GetResults)
				r.Get("/comments", rt.Polls.ListComments)
				r.With(requireAuth).Post("/comments", rt.Polls.AddComment)
			})
		})

		if rt.Users != nil {
			r.With(requireAuth).Get("/users/me", rt.Users.GetMe)
		}
	})

	if rt.Auth != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/google/callback", rt.Auth.GoogleCallback)
			r.Post("/refresh", rt.Auth.Refresh)
			r.Post("/logout", rt.Auth.Logout)
		})
	}

	return r
}
