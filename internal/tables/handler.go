package tables

import (
	"net/http"
	"strings"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/pkg/enums/tablestatus"
	"github.com/appetiteclub/kds/pkg/logging"
	"github.com/appetiteclub/kds/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service *Service
	logger  logging.Logger
}

func NewHandler(service *Service, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tables", func(r chi.Router) {
		r.Get("/", h.ListTables)
		r.Get("/{id}", h.GetTable)
		r.Post("/{id}/bump", h.BumpTable)
	})
}

func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	var status *tablestatus.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		if status = tablestatus.ByName(strings.ToLower(raw)); status == nil {
			web.RespondError(w, http.StatusBadRequest, "Invalid table status")
			return
		}
	}
	var ids []kitchen.TableID
	if raw := r.URL.Query().Get("tables"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				web.RespondError(w, http.StatusBadRequest, "Invalid table ID")
				return
			}
			ids = append(ids, id)
		}
	}

	groups, err := h.service.Groups(r.Context(), ids)
	if err != nil {
		h.logger.Errorf("cannot build table groups: %v", err)
		kitchen.RespondErr(w, err)
		return
	}
	if status != nil {
		kept := groups[:0]
		for _, g := range groups {
			if g.OverallStatus == status.Code() {
				kept = append(kept, g)
			}
		}
		groups = kept
	}
	web.Respond(w, http.StatusOK, map[string]any{
		"tables": groups,
	}, nil)
}

func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.RespondError(w, http.StatusBadRequest, "Invalid table ID")
		return
	}
	group, err := h.service.Group(r.Context(), id)
	if err != nil {
		kitchen.RespondErr(w, err)
		return
	}
	web.Respond(w, http.StatusOK, group, nil)
}

func (h *Handler) BumpTable(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.RespondError(w, http.StatusBadRequest, "Invalid table ID")
		return
	}
	entries, err := h.service.BumpTable(r.Context(), id)
	if err != nil {
		h.logger.Info("table bump rejected", "table_id", id, "error", err)
		kitchen.RespondErr(w, err)
		return
	}
	web.Respond(w, http.StatusOK, map[string]any{
		"entries": entries,
	}, nil)
}
