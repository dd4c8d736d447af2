package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shiftline/shiftline-backend/internal/leave/repository"
	"github.com/shiftline/shiftline-backend/internal/leave/service"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/timeutil"
)

// LeaveHandler handles leave request endpoints
type LeaveHandler struct {
	service *service.LeaveService
	logger  *logger.Logger
}

// NewLeaveHandler creates a new leave handler
func NewLeaveHandler(svc *service.LeaveService, log *logger.Logger) *LeaveHandler {
	return &LeaveHandler{service: svc, logger: log}
}

func leaveListParams(r *http.Request) (repository.LeaveListParams, error) {
	q := r.URL.Query()
	params := repository.LeaveListParams{}

	if v := q.Get("employee_id"); v != "" {
		params.EmployeeID = &v
	}
	if v := q.Get("status"); v != "" {
		params.Status = &v
	}
	if v := q.Get("type"); v != "" {
		params.LeaveType = &v
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

// Submit opens a new request for the caller
func (h *LeaveHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	lr, err := h.service.Submit(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, lr)
}

// ListMine returns the caller's own requests
func (h *LeaveHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	params, err := leaveListParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	requests, err := h.service.ListMine(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, requests)
}

// List returns the company's requests with filters
func (h *LeaveHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := leaveListParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	requests, err := h.service.List(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, requests)
}

// Get returns one request
func (h *LeaveHandler) Get(w http.ResponseWriter, r *http.Request) {
	lr, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, lr)
}

// Approve resolves a pending request to approved
func (h *LeaveHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.reviewWith(w, r, h.service.Approve)
}

// Reject resolves a pending request to rejected
func (h *LeaveHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.reviewWith(w, r, h.service.Reject)
}

func (h *LeaveHandler) reviewWith(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, id string, req service.ReviewRequest) (*repository.LeaveRequest, error),
) {
	var req service.ReviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	lr, err := fn(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, lr)
}

// Cancel withdraws the caller's own pending request
func (h *LeaveHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	lr, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, lr)
}
