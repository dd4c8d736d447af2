package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shiftline/shiftline-backend/internal/schedule/repository"
	"github.com/shiftline/shiftline-backend/internal/schedule/service"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/timeutil"
)

// ScheduleHandler handles shift, template and bulk week endpoints
type ScheduleHandler struct {
	service *service.ScheduleService
	logger  *logger.Logger
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(svc *service.ScheduleService, log *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: svc, logger: log}
}

func shiftListParams(r *http.Request) (repository.ShiftListParams, error) {
	q := r.URL.Query()
	params := repository.ShiftListParams{}

	if v := q.Get("employee_id"); v != "" {
		params.EmployeeID = &v
	}
	if v := q.Get("status"); v != "" {
		params.Status = &v
	}
	if v := q.Get("from"); v != "" {
		d, err := timeutil.ParseDate(v)
		if err != nil {
			return params, errors.BadRequest("from must be a YYYY-MM-DD date")
		}
		params.From = &d
	}
	if v := q.Get("to"); v != "" {
		d, err := timeutil.ParseDate(v)
		if err != nil {
			return params, errors.BadRequest("to must be a YYYY-MM-DD date")
		}
		params.To = &d
	}
	return params, nil
}

// List returns shifts with filters
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := shiftListParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	shifts, err := h.service.List(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, shifts)
}

// ListMine returns the caller's own shifts
func (h *ScheduleHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	params, err := shiftListParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	userID := httputil.GetUserID(r.Context())
	params.EmployeeID = &userID

	shifts, err := h.service.List(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, shifts)
}

// Create saves one shift and reports scheduling conflicts
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.ShiftRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Create(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, result)
}

// Update rewrites a shift
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.ShiftRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// Approve moves a shift to APPROVED
func (h *ScheduleHandler) Approve(w http.ResponseWriter, r *http.Request) {
	shift, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, shift)
}

// Delete removes a shift
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// PreviewWeek dry-runs a bulk week request
func (h *ScheduleHandler) PreviewWeek(w http.ResponseWriter, r *http.Request) {
	var req service.BulkWeekRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.PreviewWeek(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// CommitWeek creates a bulk week of shifts
func (h *ScheduleHandler) CommitWeek(w http.ResponseWriter, r *http.Request) {
	var req service.BulkWeekRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.CommitWeek(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, result)
}

// CreateTemplate saves a recurrence template
func (h *ScheduleHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req service.TemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	tmpl, err := h.service.CreateTemplate(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, tmpl)
}

// ListTemplates returns the company's templates
func (h *ScheduleHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.ListTemplates(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, templates)
}

type generateRequest struct {
	FromDate string `json:"from_date" validate:"required"`
	ToDate   string `json:"to_date" validate:"required"`
}

// Generate expands a template into shifts over a window
func (h *ScheduleHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Generate(r.Context(), chi.URLParam(r, "id"), req.FromDate, req.ToDate)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, result)
}
