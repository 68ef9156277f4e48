package api

import (
	"maps"
	"net/http"
)

// StatsProvider reports a flat set of runtime counters.
type StatsProvider interface {
	GetStats() map[string]any
}

// StatsHandler serves the merged counters of every provider. Later
// providers win on key collisions.
type StatsHandler struct {
	providers []StatsProvider
}

// NewStatsHandler creates a stats handler over providers.
func NewStatsHandler(providers ...StatsProvider) *StatsHandler {
	return &StatsHandler{providers: providers}
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	stats := make(map[string]any)
	for _, p := range h.providers {
		maps.Copy(stats, p.GetStats())
	}
	writeJSON(w, http.StatusOK, stats)
}
