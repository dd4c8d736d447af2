package company

import (
	"io"
	"net/http"

	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
)

// Handler handles company admin endpoints
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new company handler
func NewHandler(svc *Service, log *logger.Logger) *Handler {
	return &Handler{service: svc, logger: log}
}

// Get returns the caller's company
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, view)
}

type renameRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// Rename changes the company name
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.Rename(r.Context(), req.Name); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"name": req.Name})
}

// UpdateSettings applies a partial settings update. The body is the
// raw settings document so unknown-key rejection happens in one place.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		httputil.Error(w, errors.BadRequest("failed to read request body"))
		return
	}

	settings, err := h.service.UpdateSettings(r.Context(), raw)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, settings)
}

type kioskToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SetKioskEnabled toggles the kiosk flag
func (h *Handler) SetKioskEnabled(w http.ResponseWriter, r *http.Request) {
	var req kioskToggleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.SetKioskEnabled(r.Context(), *req.Enabled); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]bool{"kiosk_enabled": *req.Enabled})
}
