package transport

import (
	"log/slog"
	"net/http"

	"github.com/knitgrid/tally/internal/broadcast"
	"github.com/knitgrid/tally/internal/domain/counter"
	"github.com/knitgrid/tally/internal/domain/history"
	"github.com/knitgrid/tally/internal/domain/link"
	"github.com/knitgrid/tally/internal/domain/project"
	"github.com/go-chi/chi/v5"
)

// Services bundles everything the HTTP layer serves.
type Services struct {
	Projects *project.Service
	Counters *counter.Service
	Links    *link.Service
	History  *history.Service
	Hub      *broadcast.Hub
}

// Server wires HTTP handlers.
type Server struct {
	svc    Services
	logger *slog.Logger
}

// NewServer creates the HTTP router with middleware. The health endpoint
// stays outside auth; everything under /api/v1 requires a bearer token.
func NewServer(svc Services, authMiddleware func(http.Handler) http.Handler, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Get("/health", srv.handleHealth)

	r.Route("/api/v1", func(api chi.Router) {
		if authMiddleware != nil {
			api.Use(authMiddleware)
		}
		api.Use(DeviceMiddleware)

		api.Route("/projects", func(pr chi.Router) {
			pr.Post("/", srv.handleCreateProject)
			pr.Get("/", srv.handleListProjects)
			pr.Route("/{projectID}", func(one chi.Router) {
				one.Get("/", srv.handleGetProject)
				one.Patch("/", srv.handleUpdateProject)
				one.Delete("/", srv.handleDeleteProject)
				one.Post("/counters", srv.handleCreateCounter)
				one.Get("/counters", srv.handleListCounters)
				one.Post("/counters/reorder", srv.handleReorderCounters)
				one.Post("/links", srv.handleRegisterLink)
				one.Get("/links", srv.handleListLinks)
				one.Get("/history", srv.handleProjectHistory)
				one.Get("/events", srv.handleFeed)
			})
		})

		api.Route("/counters/{counterID}", func(cr chi.Router) {
			cr.Get("/", srv.handleGetCounter)
			cr.Patch("/", srv.handleUpdateCounter)
			cr.Delete("/", srv.handleDeleteCounter)
			cr.Post("/value", srv.handleValueOp)
			cr.Put("/visibility", srv.handleVisibility)
			cr.Put("/active", srv.handleActive)
			cr.Get("/history", srv.handleCounterHistory)
		})

		api.Route("/links/{linkID}", func(lr chi.Router) {
			lr.Get("/", srv.handleGetLink)
			lr.Patch("/", srv.handleUpdateLink)
			lr.Delete("/", srv.handleDeleteLink)
		})

		api.Route("/history", func(hr chi.Router) {
			hr.Get("/{entryID}", srv.handleGetEntry)
			hr.Post("/{entryID}/undo", srv.handleUndo)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// tenant pulls the authenticated tenant out of the request context.
func (s *Server) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID, ok := TenantFromContext(r.Context())
	if !ok || tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
			Code:    "unauthorized",
			Message: "missing tenant",
		}})
		return "", false
	}
	return tenantID, true
}
