package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	JWTSecret      []byte
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter mounts the cart routes under /api/cart behind bearer auth and
// wraps the whole tree in an OpenTelemetry handler.
func NewRouter(cartHandler *CartHandler, cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(log.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/cart", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/add", cartHandler.AddItem)
		r.Post("/upsert", cartHandler.UpsertItem)
		r.Put("/update", cartHandler.UpdateQuantity)
		r.Delete("/remove", cartHandler.RemoveItem)
		r.Delete("/clear", cartHandler.ClearCart)
		r.Get("/count/{ownerId}", cartHandler.CountItems)
		r.Get("/{ownerId}", cartHandler.GetCart)
	})

	return otelhttp.NewHandler(r, "cart-service")
}
