package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shiftline/shiftline-backend/internal/company"
	"github.com/shiftline/shiftline-backend/internal/timeclock/repository"
	"github.com/shiftline/shiftline-backend/internal/timeclock/service"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
)

// KioskHandler handles the public slug-keyed kiosk endpoints. No
// bearer token: the slug scopes the company and the PIN identifies the
// employee.
type KioskHandler struct {
	punches   *service.PunchService
	companies *company.Service
	logger    *logger.Logger
}

// NewKioskHandler creates a new kiosk handler
func NewKioskHandler(punches *service.PunchService, companies *company.Service, log *logger.Logger) *KioskHandler {
	return &KioskHandler{punches: punches, companies: companies, logger: log}
}

type kioskInfoResponse struct {
	CompanyName  string `json:"company_name"`
	Slug         string `json:"slug"`
	KioskEnabled bool   `json:"kiosk_enabled"`

	CashDrawerEnabled             bool  `json:"cash_drawer_enabled"`
	CashDrawerStartingAmountCents int64 `json:"cash_drawer_starting_amount_cents"`
}

// Info returns the kiosk configuration for a slug
func (h *KioskHandler) Info(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	c, settings, err := h.companies.ResolveSlug(r.Context(), slug)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, kioskInfoResponse{
		CompanyName:                   c.Name,
		Slug:                          c.Slug,
		KioskEnabled:                  c.KioskEnabled,
		CashDrawerEnabled:             settings.CashDrawerEnabled,
		CashDrawerStartingAmountCents: settings.CashDrawerStartingAmountCents,
	})
}

type checkPINRequest struct {
	CompanySlug string `json:"company_slug" validate:"required"`
	PIN         string `json:"pin" validate:"required"`
}

// CheckPIN resolves a PIN to the employee and their next action
func (h *KioskHandler) CheckPIN(w http.ResponseWriter, r *http.Request) {
	var req checkPINRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.punches.CheckPIN(r.Context(), req.CompanySlug, req.PIN)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

type kioskClockRequest struct {
	CompanySlug string `json:"company_slug" validate:"required"`
	service.PunchRequest
}

// Clock punches by slug and PIN
func (h *KioskHandler) Clock(w http.ResponseWriter, r *http.Request) {
	var req kioskClockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	req.Source = repository.SourceKiosk
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}
	req.Meta = punchMeta(r)

	result, err := h.punches.PunchBySlug(r.Context(), req.CompanySlug, req.PunchRequest)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, result)
}
