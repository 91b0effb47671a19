package routes

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/reawakened/rw-backend/internal/auth"
	"github.com/reawakened/rw-backend/internal/config"
	"github.com/reawakened/rw-backend/internal/logging"
	"github.com/reawakened/rw-backend/internal/middleware"
	"github.com/reawakened/rw-backend/internal/ratelimit"
)

type Deps struct {
	Config *config.Config
	Auth   *auth.Handler
	Limits ratelimit.Store
	Logger *slog.Logger
}

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

// NewRouter wires the global middleware chain and mounts /auth.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rlLogger := logging.Component(logger, "ratelimit")

	limit := func(name string) func(http.Handler) http.Handler {
		p := d.Config.Policy(name)
		return middleware.RateLimit(d.Limits, middleware.RateLimitPolicy{
			Name:   name,
			Window: p.Window,
			Max:    p.Max,
		}, rlLogger)
	}

	csrf := middleware.CSRF{
		Production:  d.Config.IsProduction(),
		ExemptPaths: d.Config.CSRFExemptPaths,
		Logger:      logging.Component(logger, "csrf"),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORSMiddleware(d.Config.AllowedOrigins))
	r.Use(csrf.Protect)
	r.Use(limit(config.PolicyAPI))

	r.Get("/", RootHandler)
	r.Mount("/auth", auth.SetupRoutes(d.Auth, limit))

	return r
}
