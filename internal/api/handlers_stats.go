package api

import (
	"net/http"

	"github.com/ekklesia/commhub/internal/pkg/httputil"
)

// Dashboard returns the aggregate counts.
//
//	GET /api/stats
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.stats.Dashboard(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, d)
}

// ProviderStats returns the configured SMS gateways.
//
//	GET /api/stats/providers
func (h *Handlers) ProviderStats(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.stats.Providers())
}
