package api

import (
	"context"
	"net/http"

	"log/slog"

	"github.com/mrolabs/growthwatch/internal/auth"
	"github.com/mrolabs/growthwatch/internal/poller"
	"github.com/mrolabs/growthwatch/internal/syncqueue"
)

// SetupRoutes configures all API routes. Poll and sync mutations are
// admin-only; status reads are public.
func SetupRoutes(mux *http.ServeMux, p *poller.Poller, syncManager *syncqueue.Manager, runCtx context.Context, authConfig auth.Config, logger *slog.Logger) {
	pollHandler := NewPollHandler(p, logger)
	syncHandler := NewSyncHandler(syncManager, runCtx, logger)
	authHandler := NewAuthHandler(authConfig, logger)

	authMiddleware := auth.Middleware(authConfig)
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				setCORSHeaders(w)
				w.WriteHeader(http.StatusOK)
				return
			}
			authMiddleware(h).ServeHTTP(w, r)
		}
	}

	// Authentication routes (public)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/api/auth/validate", protected(authHandler.ValidateToken))

	// Polling lifecycle
	mux.HandleFunc("/api/poll/activate", protected(pollHandler.Activate))
	mux.HandleFunc("/api/poll/deactivate", protected(pollHandler.Deactivate))
	mux.HandleFunc("/api/poll/check", protected(pollHandler.Check))
	mux.HandleFunc("/api/poll/status", pollHandler.Status)

	// Sync queue lifecycle
	mux.HandleFunc("/api/sync/start", protected(syncHandler.Start))
	mux.HandleFunc("/api/sync/pause", protected(syncHandler.Pause))
	mux.HandleFunc("/api/sync/resume", protected(syncHandler.Resume))
	mux.HandleFunc("/api/sync/stop", protected(syncHandler.Stop))
	mux.HandleFunc("/api/sync/status", syncHandler.Status)
}
