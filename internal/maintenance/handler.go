package maintenance

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/api"
)

type Handler struct {
	manager *CleanupManager
	log     *zap.Logger
}

func NewHandler(manager *CleanupManager, log *zap.Logger) *Handler {
	return &Handler{manager: manager, log: log}
}

// Routes returns the admin router. Callers supply the authentication and role
// middleware.
func (h *Handler) Routes(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares...)
	r.Post(api.AdminMaintenanceSweep, h.Sweep)
	r.Get(api.AdminMaintenanceStats, h.Stats)
	return r
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	run, err := h.manager.Run(r.Context())
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, run)
}

func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, h.manager.Stats())
}
