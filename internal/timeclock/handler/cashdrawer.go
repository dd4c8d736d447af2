package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shiftline/shiftline-backend/internal/timeclock/repository"
	"github.com/shiftline/shiftline-backend/internal/timeclock/service"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
)

// CashDrawerHandler handles cash drawer admin endpoints
type CashDrawerHandler struct {
	service *service.CashDrawerService
	logger  *logger.Logger
}

// NewCashDrawerHandler creates a new cash drawer handler
func NewCashDrawerHandler(svc *service.CashDrawerService, log *logger.Logger) *CashDrawerHandler {
	return &CashDrawerHandler{service: svc, logger: log}
}

func cashListParams(r *http.Request) (repository.CashListParams, error) {
	q := r.URL.Query()
	params := repository.CashListParams{}

	if v := q.Get("employee_id"); v != "" {
		params.EmployeeID = &v
	}
	if v := q.Get("status"); v != "" {
		params.Status = &v
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, errors.BadRequest("from must be an RFC 3339 timestamp")
		}
		params.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, errors.BadRequest("to must be an RFC 3339 timestamp")
		}
		params.To = &t
	}
	params.Limit, _ = strconv.Atoi(q.Get("limit"))
	return params, nil
}

// List returns cash drawer sessions with filters
func (h *CashDrawerHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := cashListParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	sessions, err := h.service.List(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, sessions)
}

// Summary aggregates sessions matching the filters
func (h *CashDrawerHandler) Summary(w http.ResponseWriter, r *http.Request) {
	params, err := cashListParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	summary, err := h.service.Summary(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, summary)
}

// Export streams the filtered sessions as CSV
func (h *CashDrawerHandler) Export(w http.ResponseWriter, r *http.Request) {
	params, err := cashListParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	sessions, err := h.service.List(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="cash-drawer-%s.csv"`, time.Now().UTC().Format("2006-01-02")))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"session_id", "employee_id", "employee_name", "status",
		"start_cash_cents", "start_counted_at",
		"end_cash_cents", "end_counted_at",
		"collected_cash_cents", "drop_amount_cents", "beverages_cash_cents",
		"delta_cents", "reviewed_by", "reviewed_at",
	})
	for _, s := range sessions {
		_ = cw.Write([]string{
			s.ID, s.EmployeeID, s.EmployeeName, s.Status,
			strconv.FormatInt(s.StartCashCents, 10),
			s.StartCountedAt.UTC().Format(time.RFC3339),
			optCents(s.EndCashCents), optTime(s.EndCountedAt),
			optCents(s.CollectedCashCents), optCents(s.DropAmountCents), optCents(s.BeveragesCashCents),
			optCents(s.DeltaCents), optString(s.ReviewedBy), optTime(s.ReviewedAt),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn().Err(err).Msg("cash drawer csv export aborted mid-stream")
	}
}

func optCents(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func optTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Get returns one session with its audit trail
func (h *CashDrawerHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, audits, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]any{
		"session": session,
		"audits":  audits,
	})
}

// Edit rewrites the counted amounts
func (h *CashDrawerHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req service.CashEditRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	session, err := h.service.Edit(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, session)
}

// Review closes out a flagged session
func (h *CashDrawerHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req service.ReviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	session, err := h.service.Review(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, session)
}
