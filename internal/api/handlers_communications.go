package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/pkg/httputil"
	"github.com/ekklesia/commhub/internal/service/communication"
)

// ListCommunications returns a page of communications, newest first.
//
//	GET /api/communications?status=&message_type=&page=&limit=
func (h *Handlers) ListCommunications(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, defaultPageSize, maxPageSize)
	q := r.URL.Query()
	list, total, err := h.communications.List(r.Context(), communication.ListFilter{
		Status:      q.Get("status"),
		MessageType: q.Get("message_type"),
		Limit:       p.Limit,
		Offset:      p.Offset,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []domain.Communication{}
	}
	httputil.OK(w, NewPaginatedResponse(list, p, total))
}

// CreateCommunication stores a draft.
//
//	POST /api/communications
func (h *Handlers) CreateCommunication(w http.ResponseWriter, r *http.Request) {
	var in communication.CreateInput
	if !decode(w, r, &in) {
		return
	}
	in.CreatedBy = userID(r)
	c, err := h.communications.Create(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	httputil.Created(w, c)
}

// GetCommunication returns one communication.
//
//	GET /api/communications/{id}
func (h *Handlers) GetCommunication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", communication.ErrNotFound)
	if !ok {
		return
	}
	c, err := h.communications.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

type updateCommunicationRequest struct {
	MessageType    *domain.Channel        `json:"message_type"`
	RecipientGroup *domain.RecipientGroup `json:"recipient_group"`
	TagFilter      *domain.Tags           `json:"tag_filter"`
	Subject        *string                `json:"subject"`
	Message        *string                `json:"message"`
	ScheduledAt    *time.Time             `json:"scheduled_at"`
	Metadata       json.RawMessage        `json:"metadata"`
}

// UpdateCommunication edits a draft. Sent communications answer 409.
//
//	PUT /api/communications/{id}
func (h *Handlers) UpdateCommunication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", communication.ErrNotFound)
	if !ok {
		return
	}
	var req updateCommunicationRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.communications.Update(r.Context(), id, communication.UpdateFields{
		MessageType:    req.MessageType,
		RecipientGroup: req.RecipientGroup,
		TagFilter:      req.TagFilter,
		Subject:        req.Subject,
		Message:        req.Message,
		ScheduledAt:    req.ScheduledAt,
		Metadata:       req.Metadata,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

// DeleteCommunication removes a communication.
//
//	DELETE /api/communications/{id}
func (h *Handlers) DeleteCommunication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", communication.ErrNotFound)
	if !ok {
		return
	}
	if err := h.communications.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	respondMessage(w, "Communication %s deleted", id)
}

// CommunicationStatus returns the delivery tally.
//
//	GET /api/communications/{id}/status
func (h *Handlers) CommunicationStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", communication.ErrNotFound)
	if !ok {
		return
	}
	rep, err := h.communications.Status(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, rep)
}

// SendCommunication delivers a draft to its recipient group. A broadcast
// with some failed recipients still answers 200 with the final counts.
//
//	POST /api/communications/{id}/send?provider=
func (h *Handlers) SendCommunication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", communication.ErrNotFound)
	if !ok {
		return
	}
	c, err := h.communications.Send(r.Context(), id, providerOf(r, ""))
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	httputil.OK(w, c)
}

type sendBulkRequest struct {
	PhoneNumbers []string `json:"phone_numbers"`
	Provider     string   `json:"provider"`
}

// SendBulk delivers a draft to an explicit list of numbers.
//
//	POST /api/communications/{id}/send-bulk
func (h *Handlers) SendBulk(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", communication.ErrNotFound)
	if !ok {
		return
	}
	var req sendBulkRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.communications.SendToNumbers(r.Context(), id, req.PhoneNumbers, providerOf(r, req.Provider))
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	httputil.OK(w, c)
}

// ListProviders names the configured SMS gateways.
//
//	GET /api/communications/providers
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	names := h.communications.Providers()
	if names == nil {
		names = []string{}
	}
	httputil.OK(w, map[string]any{"providers": names})
}
