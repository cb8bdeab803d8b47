package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ekklesia/commhub/internal/auth"
	"github.com/ekklesia/commhub/internal/pkg/httputil"
	"github.com/ekklesia/commhub/internal/service/attendance"
	"github.com/ekklesia/commhub/internal/service/communication"
	"github.com/ekklesia/commhub/internal/service/contact"
	"github.com/ekklesia/commhub/internal/service/scenario"
	"github.com/ekklesia/commhub/internal/service/stats"
)

// maxBodyBytes bounds JSON request bodies. vCard uploads use maxUploadBytes.
const (
	maxBodyBytes   = 4 << 20
	maxUploadBytes = 16 << 20
)

// Deps are the services the HTTP layer serves. Auth is required; Google and
// Health may be nil.
type Deps struct {
	Auth           *auth.Manager
	Google         *auth.GoogleSignIn
	Contacts       *contact.Service
	Communications *communication.Service
	Scenarios      *scenario.Service
	Attendance     *attendance.Service
	Stats          *stats.Service
	Health         *HealthChecker
}

// Handlers contains all HTTP handlers
type Handlers struct {
	auth           *auth.Manager
	google         *auth.GoogleSignIn
	contacts       *contact.Service
	communications *communication.Service
	scenarios      *scenario.Service
	attendance     *attendance.Service
	stats          *stats.Service
	health         *HealthChecker
}

// NewHandlers creates a new Handlers instance
func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		auth:           d.Auth,
		google:         d.Google,
		contacts:       d.Contacts,
		communications: d.Communications,
		scenarios:      d.Scenarios,
		attendance:     d.Attendance,
		stats:          d.Stats,
		health:         d.Health,
	}
}

// decode reads a bounded JSON body into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return httputil.Decode(w, r, dst)
}

// decodeListOr accepts either a bare JSON array or an object whose field
// carries the array, and decodes the array into dst.
func decodeListOr(w http.ResponseWriter, r *http.Request, field string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, "could not read body: "+err.Error())
		return false
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapper); err != nil {
			httputil.BadRequest(w, "invalid JSON: "+err.Error())
			return false
		}
		raw, ok := wrapper[field]
		if !ok {
			httputil.BadRequest(w, fmt.Sprintf("missing %q", field))
			return false
		}
		body = raw
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httputil.BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// pathID returns the named URL parameter if it is a UUID. Any other value
// cannot name a row and is answered with notFound.
func pathID(w http.ResponseWriter, r *http.Request, name string, notFound error) (string, bool) {
	id := chi.URLParam(r, name)
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, notFound)
		return "", false
	}
	return id, true
}

// userID returns the id of the signed-in user, or "" outside /api.
func userID(r *http.Request) string {
	if u := auth.UserFromContext(r.Context()); u != nil {
		return u.ID
	}
	return ""
}

// invalidateStats drops the cached dashboard after a write that changes it.
func (h *Handlers) invalidateStats(ctx context.Context) {
	if h.stats != nil {
		h.stats.Invalidate(ctx)
	}
}

// messageResponse is the body of deletes and other actions without a resource.
type messageResponse struct {
	Message string `json:"message"`
}

func respondMessage(w http.ResponseWriter, format string, args ...any) {
	httputil.OK(w, messageResponse{Message: fmt.Sprintf(format, args...)})
}

// providerOf returns the provider query parameter, defaulting to the body
// value when the query is empty.
func providerOf(r *http.Request, fallback string) string {
	if p := r.URL.Query().Get("provider"); p != "" {
		return p
	}
	return fallback
}
