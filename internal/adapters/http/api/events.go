package api

import (
	"net/http"
	"strconv"
)

// EventsHandler serves the recent ledger events.
type EventsHandler struct {
	deps     EventDependencies
	maxLimit int
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, maxLimit int) *EventsHandler {
	if maxLimit < 1 {
		maxLimit = defaultMaxListLimit
	}
	return &EventsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGetEvents handles GET /events?limit=n.
func (h *EventsHandler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, ErrBadRequest)
			return
		}
		limit = n
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": h.deps.RecentEvents(limit)})
}
