package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shiftline/shiftline-backend/internal/user/repository"
	"github.com/shiftline/shiftline-backend/internal/user/service"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
)

// UserHandler handles employee administration endpoints
type UserHandler struct {
	service *service.UserService
	logger  *logger.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(svc *service.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: log}
}

// List returns employees with filters and pagination
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := repository.ListParams{}

	if v := q.Get("role"); v != "" {
		params.Role = &v
	}
	if v := q.Get("status"); v != "" {
		params.Status = &v
	}
	if v := q.Get("search"); v != "" {
		params.Search = &v
	}
	if v := q.Get("with_pin"); v != "" {
		withPIN := v == "true"
		params.WithPIN = &withPIN
	}
	params.Page, _ = strconv.Atoi(q.Get("page"))
	params.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	users, total, err := h.service.List(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage < 1 || params.PerPage > 100 {
		params.PerPage = 50
	}
	totalPages := int((total + int64(params.PerPage) - 1) / int64(params.PerPage))
	httputil.JSONWithMeta(w, http.StatusOK, users, &httputil.Meta{
		Page:       params.Page,
		PerPage:    params.PerPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Get returns one employee
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, u)
}

// Me returns the caller's own record
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Me(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, u)
}

// Invite creates a new employee
func (h *UserHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req service.InviteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	u, err := h.service.Invite(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, u)
}

// ResendInvitation mails a fresh setup link
func (h *UserHandler) ResendInvitation(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResendInvitation(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "invitation sent"})
}

// Update applies a partial update to an employee
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	u, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, u)
}

type setPINRequest struct {
	PIN string `json:"pin" validate:"required"`
}

// SetPIN sets or replaces an employee's kiosk PIN
func (h *UserHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	var req setPINRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.SetPIN(r.Context(), chi.URLParam(r, "id"), req.PIN); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "PIN updated"})
}

// ClearPIN removes an employee's kiosk PIN
func (h *UserHandler) ClearPIN(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearPIN(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// Deactivate marks an employee inactive
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "employee deactivated"})
}

// Reactivate returns an employee to active status
func (h *UserHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "employee reactivated"})
}
