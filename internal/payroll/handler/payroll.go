package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shiftline/shiftline-backend/internal/payroll/repository"
	"github.com/shiftline/shiftline-backend/internal/payroll/service"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/timeutil"
)

// PayrollHandler handles payroll run endpoints
type PayrollHandler struct {
	service *service.PayrollService
	logger  *logger.Logger
}

// NewPayrollHandler creates a new payroll handler
func NewPayrollHandler(svc *service.PayrollService, log *logger.Logger) *PayrollHandler {
	return &PayrollHandler{service: svc, logger: log}
}

// Generate creates a new draft run
func (h *PayrollHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req service.GenerateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	detail, err := h.service.Generate(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, detail)
}

// List returns runs with filters
func (h *PayrollHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := repository.RunListParams{}

	if v := q.Get("payroll_type"); v != "" {
		params.PayrollType = &v
	}
	if v := q.Get("status"); v != "" {
		params.Status = &v
	}
	if v := q.Get("from"); v != "" {
		d, err := timeutil.ParseDate(v)
		if err != nil {
			httputil.Error(w, errors.BadRequest("from must be a YYYY-MM-DD date"))
			return
		}
		params.From = &d
	}
	if v := q.Get("to"); v != "" {
		d, err := timeutil.ParseDate(v)
		if err != nil {
			httputil.Error(w, errors.BadRequest("to must be a YYYY-MM-DD date"))
			return
		}
		params.To = &d
	}
	params.Limit, _ = strconv.Atoi(q.Get("limit"))

	runs, err := h.service.List(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, runs)
}

// Get returns one run with line items
func (h *PayrollHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, detail)
}

// Export streams a run's line items as CSV
func (h *PayrollHandler) Export(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="payroll-%s-%s.csv"`,
			detail.Run.PayrollType, timeutil.FormatDate(detail.Run.PeriodStartDate)))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"employee_id", "employee_name",
		"regular_minutes", "overtime_minutes", "total_minutes",
		"pay_rate_cents", "overtime_multiplier",
		"regular_pay_cents", "overtime_pay_cents", "total_pay_cents",
		"exceptions_count",
	})
	for _, item := range detail.Items {
		_ = cw.Write([]string{
			item.EmployeeID, item.EmployeeName,
			strconv.Itoa(item.RegularMinutes), strconv.Itoa(item.OvertimeMinutes), strconv.Itoa(item.TotalMinutes),
			strconv.FormatInt(item.PayRateCents, 10), item.OvertimeMultiplier.String(),
			strconv.FormatInt(item.RegularPayCents, 10), strconv.FormatInt(item.OvertimePayCents, 10),
			strconv.FormatInt(item.TotalPayCents, 10),
			strconv.Itoa(item.ExceptionsCount),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn().Err(err).Msg("payroll csv export aborted mid-stream")
	}
}

// Finalize closes a draft run
func (h *PayrollHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req service.FinalizeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	run, err := h.service.Finalize(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, run)
}

// Void voids a run with a reason
func (h *PayrollHandler) Void(w http.ResponseWriter, r *http.Request) {
	var req service.VoidRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	run, err := h.service.Void(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, run)
}

// Delete removes a draft run
func (h *PayrollHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// My returns the caller's own finalized line items
func (h *PayrollHandler) My(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.My(r.Context(), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, items)
}
