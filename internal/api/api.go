package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/jbweber/homelab/warden/internal/domain"
	"github.com/jbweber/homelab/warden/internal/engine"
	"go.uber.org/zap"
)

// BindingService defines the engine surface the handlers expose.
type BindingService interface {
	ListBindings(ctx context.Context, zone string) ([]domain.UnifiedBinding, error)
	AddBinding(ctx context.Context, req engine.AddRequest) (engine.AddResult, error)
	RemoveBinding(ctx context.Context, mac, zone string) (engine.RevokeResult, error)
	UpdateBinding(ctx context.Context, req engine.UpdateRequest) (engine.UpdateResult, error)
	CleanupExpired(ctx context.Context) (engine.SweepResult, error)
	Search(ctx context.Context, query string) ([]domain.UnifiedBinding, error)
}

// API holds the service dependency for the HTTP handlers.
type API struct {
	service BindingService
	logger  *zap.Logger
}

// NewAPI creates a new API backed by the binding service.
func NewAPI(service BindingService, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{service: service, logger: logger}
}

// RegisterRoutes registers all API routes on the given router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v0", func(r chi.Router) {
		r.Get("/bindings", a.ListBindingsHandler)
		r.Post("/bindings", a.AddBindingHandler)
		r.Delete("/bindings/{mac}", a.RemoveBindingHandler)
		r.Patch("/bindings/{mac}", a.UpdateBindingHandler)
		r.Post("/cleanup", a.CleanupHandler)
		r.Get("/search", a.SearchHandler)
	})
}
