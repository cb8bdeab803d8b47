package api

import (
	"net/http"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/pkg/httputil"
	"github.com/ekklesia/commhub/internal/service/attendance"
)

// RecordAttendance records one contact at one service.
//
//	POST /api/attendance
func (h *Handlers) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	var in attendance.RecordInput
	if !decode(w, r, &in) {
		return
	}
	in.RecordedBy = userID(r)
	a, err := h.attendance.Record(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	httputil.Created(w, a)
}

// ListAttendance returns a page of records, newest first.
//
//	GET /api/attendance?date_from=&date_to=&service_type=&contact_id=&page=&limit=
func (h *Handlers) ListAttendance(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "date_from")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	to, err := queryDate(r, "date_to")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	p := ParsePagination(r, defaultPageSize, maxPageSize)
	q := r.URL.Query()
	list, total, err := h.attendance.List(r.Context(), attendance.ListFilter{
		From:        from,
		To:          to,
		ServiceType: domain.ServiceType(q.Get("service_type")),
		ContactID:   q.Get("contact_id"),
		Limit:       p.Limit,
		Offset:      p.Offset,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []domain.Attendance{}
	}
	httputil.OK(w, NewPaginatedResponse(list, p, total))
}

// AttendanceSummary counts attendance per service type.
//
//	GET /api/attendance/summary?date_from=&date_to=
func (h *Handlers) AttendanceSummary(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "date_from")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	to, err := queryDate(r, "date_to")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sum, err := h.attendance.Summary(r.Context(), from, to)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, sum)
}

// ContactAttendance lists every record of one contact.
//
//	GET /api/attendance/contact/{contactID}
func (h *Handlers) ContactAttendance(w http.ResponseWriter, r *http.Request) {
	contactID, ok := pathID(w, r, "contactID", attendance.ErrContactNotFound)
	if !ok {
		return
	}
	list, err := h.attendance.ByContact(r.Context(), contactID)
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []domain.Attendance{}
	}
	httputil.OK(w, list)
}

// DeleteAttendance removes a record.
//
//	DELETE /api/attendance/{id}
func (h *Handlers) DeleteAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", attendance.ErrNotFound)
	if !ok {
		return
	}
	if err := h.attendance.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	respondMessage(w, "Attendance record %s deleted", id)
}
