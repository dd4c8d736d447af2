package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shiftline/shiftline-backend/internal/timeclock/repository"
	"github.com/shiftline/shiftline-backend/internal/timeclock/service"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
)

// TimeHandler handles punch and time entry endpoints
type TimeHandler struct {
	punches *service.PunchService
	entries *service.EntryService
	logger  *logger.Logger
}

// NewTimeHandler creates a new time handler
func NewTimeHandler(punches *service.PunchService, entries *service.EntryService, log *logger.Logger) *TimeHandler {
	return &TimeHandler{punches: punches, entries: entries, logger: log}
}

func punchMeta(r *http.Request) repository.PunchMeta {
	meta := repository.PunchMeta{}
	if addr := r.RemoteAddr; addr != "" {
		meta.IP = &addr
	}
	if ua := r.UserAgent(); ua != "" {
		meta.UserAgent = &ua
	}
	return meta
}

// Punch toggles a shift; resolution by employee id or email.
func (h *TimeHandler) Punch(w http.ResponseWriter, r *http.Request) {
	var req service.PunchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	req.Source = repository.SourceWeb
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}
	req.Meta = punchMeta(r)

	result, err := h.punches.Punch(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, result)
}

// PunchByPIN toggles a shift resolved by kiosk PIN within the caller's company
func (h *TimeHandler) PunchByPIN(w http.ResponseWriter, r *http.Request) {
	var req service.PunchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	req.Source = repository.SourceKiosk
	req.EmployeeID = ""
	req.Email = ""
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}
	req.Meta = punchMeta(r)

	result, err := h.punches.Punch(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, result)
}

// PunchMe toggles the authenticated caller's own shift
func (h *TimeHandler) PunchMe(w http.ResponseWriter, r *http.Request) {
	var req service.PunchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	req.Source = repository.SourceWeb
	req.EmployeeID = httputil.GetUserID(r.Context())
	req.Email = ""
	req.PIN = ""
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}
	req.Meta = punchMeta(r)

	result, err := h.punches.Punch(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, result)
}

func entryFilter(r *http.Request) service.EntryFilter {
	q := r.URL.Query()
	f := service.EntryFilter{
		FromDate: q.Get("from"),
		ToDate:   q.Get("to"),
	}
	if v := q.Get("employee_id"); v != "" {
		f.EmployeeID = &v
	}
	if v := q.Get("status"); v != "" {
		f.Status = &v
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	return f
}

// ListMine returns the caller's own entries
func (h *TimeHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	entries, err := h.entries.ListMine(r.Context(), entryFilter(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, entries)
}

// List returns entries for admins
func (h *TimeHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.entries.List(r.Context(), entryFilter(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, entries)
}

// Edit applies an admin edit to an entry
func (h *TimeHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req service.EntryEditRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	entry, err := h.entries.Edit(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, entry)
}

// CreateManual inserts an entry by hand
func (h *TimeHandler) CreateManual(w http.ResponseWriter, r *http.Request) {
	var req service.ManualRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	entry, err := h.entries.CreateManual(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, entry)
}

// Delete removes an entry
func (h *TimeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.entries.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}
