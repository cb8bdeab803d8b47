package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/pkg/httputil"
	"github.com/ekklesia/commhub/internal/pkg/logger"
	"github.com/ekklesia/commhub/internal/service/contact"
)

// ListContacts returns a page of contacts.
//
//	GET /api/contacts?search=&status=&tag=&page=&limit=
func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, defaultPageSize, maxPageSize)
	q := r.URL.Query()
	list, total, err := h.contacts.List(r.Context(), contact.ListFilter{
		Search: q.Get("search"),
		Status: q.Get("status"),
		Tag:    q.Get("tag"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []domain.Contact{}
	}
	httputil.OK(w, NewPaginatedResponse(list, p, total))
}

// CreateContact adds one contact.
//
//	POST /api/contacts
func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	var in contact.CreateInput
	if !decode(w, r, &in) {
		return
	}
	c, err := h.contacts.Create(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	httputil.Created(w, c)
}

// GetContact returns one contact.
//
//	GET /api/contacts/{id}
func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", contact.ErrNotFound)
	if !ok {
		return
	}
	c, err := h.contacts.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

type updateContactRequest struct {
	Name           *string         `json:"name"`
	Phone          *string         `json:"phone"`
	Status         *string         `json:"status"`
	OptOutSMS      *bool           `json:"opt_out_sms"`
	OptOutWhatsApp *bool           `json:"opt_out_whatsapp"`
	Tags           *domain.Tags    `json:"tags"`
	Metadata       json.RawMessage `json:"metadata"`
}

// UpdateContact applies the fields present in the body.
//
//	PUT /api/contacts/{id}
func (h *Handlers) UpdateContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", contact.ErrNotFound)
	if !ok {
		return
	}
	var req updateContactRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.contacts.Update(r.Context(), id, contact.UpdateFields{
		Name:           req.Name,
		Phone:          req.Phone,
		Status:         req.Status,
		OptOutSMS:      req.OptOutSMS,
		OptOutWhatsApp: req.OptOutWhatsApp,
		Tags:           req.Tags,
		Metadata:       req.Metadata,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	httputil.OK(w, c)
}

// DeleteContact removes one contact.
//
//	DELETE /api/contacts/{id}
func (h *Handlers) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", contact.ErrNotFound)
	if !ok {
		return
	}
	if err := h.contacts.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	respondMessage(w, "Contact %s deleted", id)
}

// MassDeleteContacts removes many contacts. The body is a list of ids or
// {"ids": [...]}.
//
//	POST /api/contacts/mass-delete
func (h *Handlers) MassDeleteContacts(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if !decodeListOr(w, r, "ids", &ids) {
		return
	}
	n, err := h.contacts.MassDelete(r.Context(), ids)
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	httputil.OK(w, map[string]any{
		"deleted_count": n,
		"message":       fmt.Sprintf("Deleted %d contacts", n),
	})
}

// AddContactList imports many contacts. The body is {"contacts": [...]} or
// a bare list.
//
//	POST /api/contacts/add-list
func (h *Handlers) AddContactList(w http.ResponseWriter, r *http.Request) {
	var list []contact.CreateInput
	if !decodeListOr(w, r, "contacts", &list) {
		return
	}
	res, err := h.contacts.AddList(r.Context(), list)
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	httputil.OK(w, res)
}

// ImportContacts imports a vCard file sent as multipart field "file" or as
// the raw request body.
//
//	POST /api/contacts/import
func (h *Handlers) ImportContacts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var src io.Reader = r.Body
	if err := r.ParseMultipartForm(maxUploadBytes); err == nil {
		f, _, err := r.FormFile("file")
		if err != nil {
			httputil.BadRequest(w, "missing file field")
			return
		}
		defer f.Close()
		src = f
	} else if !errors.Is(err, http.ErrNotMultipart) {
		httputil.BadRequest(w, "invalid upload: "+err.Error())
		return
	}

	res, err := h.contacts.ImportVCard(r.Context(), src)
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	httputil.OK(w, res)
}

func exportFormat(r *http.Request) domain.ExportFormat {
	if f := r.URL.Query().Get("format"); f != "" {
		return domain.ExportFormat(f)
	}
	return domain.ExportCSV
}

// ExportContacts downloads every contact as CSV or vCard.
//
//	GET /api/contacts/export?format=csv|vcf
func (h *Handlers) ExportContacts(w http.ResponseWriter, r *http.Request) {
	format := exportFormat(r)
	data, n, err := h.contacts.Export(r.Context(), format)
	if err != nil {
		respondError(w, err)
		return
	}
	name := fmt.Sprintf("contacts-%s.%s", time.Now().UTC().Format("20060102"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("X-Contact-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Warn("export write failed", "error", err)
	}
}

// ArchiveContacts stores an export in the archive and returns its record.
//
//	POST /api/contacts/export/archive?format=csv|vcf
func (h *Handlers) ArchiveContacts(w http.ResponseWriter, r *http.Request) {
	rec, err := h.contacts.ArchiveExport(r.Context(), exportFormat(r), userID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, rec)
}

// ListExports returns archived exports, newest first.
//
//	GET /api/contacts/exports?limit=
func (h *Handlers) ListExports(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	recs, err := h.contacts.ListExports(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.ExportRecord{}
	}
	httputil.OK(w, map[string]any{"exports": recs, "total": len(recs)})
}

// DownloadExport streams an archived export.
//
//	GET /api/contacts/exports/download?key=
func (h *Handlers) DownloadExport(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		httputil.BadRequest(w, "key is required")
		return
	}
	rc, err := h.contacts.OpenExport(r.Context(), key)
	if err != nil {
		respondError(w, err)
		return
	}
	defer rc.Close()

	format := domain.ExportFormat(path.Ext(key))
	if len(format) > 0 {
		format = format[1:]
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("export download interrupted", "key", key, "error", err)
	}
}

// LocationTags lists the known congregation locations.
//
//	GET /api/contacts/location-tags
func (h *Handlers) LocationTags(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{"location_tags": h.contacts.LocationTags()})
}
