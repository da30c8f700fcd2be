package kitchen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/appetiteclub/kds/pkg/enums/entrystate"
	"github.com/appetiteclub/kds/pkg/logging"
	"github.com/appetiteclub/kds/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// EntryReader serves entry reads. The ledger implements it; the server
// wraps it with a short-lived read cache.
type EntryReader interface {
	Active(ctx context.Context, filter EntryFilter) ([]RoutingEntry, error)
	Get(ctx context.Context, id EntryID) (*RoutingEntry, error)
}

type HandlerDeps struct {
	Ledger     *Ledger
	Reader     EntryReader
	Dispatcher *Dispatcher
	Stations   *Stations
}

type Handler struct {
	ledger     *Ledger
	reader     EntryReader
	dispatcher *Dispatcher
	stations   *Stations
	logger     logging.Logger
}

func NewHandler(deps HandlerDeps, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	reader := deps.Reader
	if reader == nil && deps.Ledger != nil {
		reader = deps.Ledger
	}
	return &Handler{
		ledger:     deps.Ledger,
		reader:     reader,
		dispatcher: deps.Dispatcher,
		stations:   deps.Stations,
		logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/entries", func(r chi.Router) {
		r.Get("/", h.ListEntries)
		r.Get("/{id}", h.GetEntry)
		r.Patch("/{id}/start", h.StartEntry)
		r.Patch("/{id}/complete", h.CompleteEntry)
		r.Patch("/{id}/recall", h.RecallEntry)
		r.Patch("/{id}/bump", h.BumpEntry)
	})
	r.Route("/stations", func(r chi.Router) {
		r.Get("/", h.ListStations)
		r.Post("/", h.CreateStation)
		r.Patch("/{id}", h.UpdateStation)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.PlaceOrder)
		r.Get("/{id}", h.GetOrder)
	})
}

func (h *Handler) log(r *http.Request) logging.Logger {
	return h.logger.With("request_id", web.RequestIDFrom(r))
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	filter := EntryFilter{}
	q := r.URL.Query()

	for _, p := range []struct {
		key    string
		target **uuid.UUID
	}{
		{"station", &filter.StationID},
		{"table", &filter.TableID},
		{"order", &filter.OrderID},
	} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			web.RespondError(w, http.StatusBadRequest, "Invalid "+p.key+" ID")
			return
		}
		*p.target = &id
	}
	if raw := q.Get("ready"); raw != "" {
		ready, err := strconv.ParseBool(raw)
		if err != nil {
			web.RespondError(w, http.StatusBadRequest, "Invalid ready flag")
			return
		}
		filter.Ready = ready
	}
	var state *entrystate.State
	if raw := q.Get("state"); raw != "" {
		if state = entrystate.ByName(strings.ToLower(raw)); state == nil {
			web.RespondError(w, http.StatusBadRequest, "Invalid state")
			return
		}
	}
	if filter.StationID != nil && h.stations != nil {
		if _, err := h.stations.Get(r.Context(), *filter.StationID); err != nil {
			RespondErr(w, err)
			return
		}
	}

	entries, err := h.reader.Active(r.Context(), filter)
	if err != nil {
		h.log(r).Errorf("cannot list entries: %v", err)
		RespondErr(w, err)
		return
	}
	if state != nil {
		kept := entries[:0]
		for _, e := range entries {
			if e.State() == *state {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if filter.StationID != nil {
		SortForStation(entries)
	}

	web.Respond(w, http.StatusOK, map[string]any{
		"entries": entries,
	}, nil)
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "entry")
	if !ok {
		return
	}
	entry, err := h.reader.Get(r.Context(), id)
	if err != nil {
		RespondErr(w, err)
		return
	}
	web.Respond(w, http.StatusOK, entry, nil)
}

func (h *Handler) StartEntry(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, TransitionStart)
}

func (h *Handler) CompleteEntry(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, TransitionComplete)
}

func (h *Handler) RecallEntry(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, TransitionRecall)
}

func (h *Handler) BumpEntry(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, TransitionBump)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, t Transition) {
	log := h.log(r)
	id, ok := parseID(w, r, "entry")
	if !ok {
		return
	}
	entry, err := h.ledger.Transition(r.Context(), id, t)
	if err != nil {
		log.Info("entry transition rejected", "entry_id", id, "transition", t, "error", err)
		RespondErr(w, err)
		return
	}
	web.Respond(w, http.StatusOK, entry, nil)
}

func (h *Handler) ListStations(w http.ResponseWriter, r *http.Request) {
	list, err := h.stations.List(r.Context())
	if err != nil {
		h.log(r).Errorf("cannot list stations: %v", err)
		RespondErr(w, err)
		return
	}
	web.Respond(w, http.StatusOK, map[string]any{
		"stations": list,
	}, nil)
}

func (h *Handler) CreateStation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"name"`
		Category string `json:"category"`
		Color    string `json:"color"`
		Position int    `json:"position"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	st := NewStation(payload.Name, payload.Category, payload.Color, payload.Position)
	if err := h.stations.Create(r.Context(), st); err != nil {
		h.log(r).Errorf("cannot create station: %v", err)
		RespondErr(w, err)
		return
	}
	web.Respond(w, http.StatusCreated, st, nil)
}

func (h *Handler) UpdateStation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "station")
	if !ok {
		return
	}
	var patch StationPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	st, err := h.stations.Update(r.Context(), id, patch)
	if err != nil {
		h.log(r).Errorf("cannot update station: %v", err)
		RespondErr(w, err)
		return
	}
	web.Respond(w, http.StatusOK, st, nil)
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var order Order
	if !decodeBody(w, r, &order) {
		return
	}
	entries, err := h.dispatcher.Place(r.Context(), &order)
	if err != nil {
		h.log(r).Info("order rejected", "order_id", order.ID, "error", err)
		RespondErr(w, err)
		return
	}
	web.Respond(w, http.StatusCreated, map[string]any{
		"order":   order,
		"entries": entries,
	}, nil)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "order")
	if !ok {
		return
	}
	order, entries, err := h.ledger.Order(r.Context(), id)
	if err != nil {
		RespondErr(w, err)
		return
	}
	web.Respond(w, http.StatusOK, map[string]any{
		"order":   order,
		"entries": entries,
	}, nil)
}

// RespondErr writes err with its kind and reference so the caller can
// retry the specific action.
func RespondErr(w http.ResponseWriter, err error) {
	msg := "Internal error"
	var op *OpError
	if errors.As(err, &op) || KindOf(err) != nil {
		msg = err.Error()
	}
	web.RespondTypedError(w, HTTPStatus(err), msg, KindName(err), RefOf(err))
}

func parseID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.RespondError(w, http.StatusBadRequest, "Invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, web.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		web.RespondError(w, http.StatusBadRequest, "Could not read request body")
		return false
	}
	if len(body) == 0 {
		web.RespondError(w, http.StatusBadRequest, "Empty request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		web.RespondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return false
	}
	return true
}
