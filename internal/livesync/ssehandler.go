package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/pkg/logging"
	"github.com/go-chi/chi/v5"
)

const (
	DefaultKeepalive = 30 * time.Second
	retryMillis      = 2000
)

// StationLookup resolves the station a display filter names.
type StationLookup interface {
	Get(ctx context.Context, id kitchen.StationID) (*kitchen.Station, error)
}

// SSEHandler streams live updates to displays as Server-Sent Events.
// Each connection acquires a listener from the registry, so displays
// with the same filter share one bus subscription.
type SSEHandler struct {
	registry  *Registry
	stations  StationLookup
	keepalive time.Duration
	logger    logging.Logger
}

func NewSSEHandler(registry *Registry, stations StationLookup, keepalive time.Duration, logger logging.Logger) *SSEHandler {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	return &SSEHandler{
		registry:  registry,
		stations:  stations,
		keepalive: keepalive,
		logger:    logger.With("component", "SSEHandler"),
	}
}

func (h *SSEHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.ServeHTTP)
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		kitchen.RespondErr(w, err)
		return
	}
	if filter.StationID != nil && h.stations != nil {
		if _, err := h.stations.Get(r.Context(), *filter.StationID); err != nil {
			kitchen.RespondErr(w, err)
			return
		}
	}

	listener, err := h.registry.Acquire(r.Context(), filter)
	if err != nil {
		h.logger.Error("cannot acquire feed", "filter", filter.String(), "error", err)
		kitchen.RespondErr(w, err)
		return
	}
	defer listener.Release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flush()

	h.logger.Info("display connected", "signature", listener.Signature())

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("display disconnected", "signature", listener.Signature())
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flush()

		case u, ok := <-listener.Updates():
			if !ok {
				return
			}
			data, err := json.Marshal(u)
			if err != nil {
				h.logger.Error("cannot encode update", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\n", u.Kind)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flush()
		}
	}
}
