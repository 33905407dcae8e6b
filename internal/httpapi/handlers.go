package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"kasbon/backend/internal/domain"
)

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	resp, err := a.auth.Login(ctx, req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.RecordSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.RecordPayment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleRecordAdjustment(w http.ResponseWriter, r *http.Request) {
	var req domain.AdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.RecordAdjustment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.service.Balance(r.Context(), chi.URLParam(r, "branchID"), chi.URLParam(r, "customerID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleStatement(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	statement, err := a.service.AccountStatement(r.Context(), chi.URLParam(r, "branchID"), chi.URLParam(r, "customerID"), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statement)
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.VerifyAccount(r.Context(), chi.URLParam(r, "branchID"), chi.URLParam(r, "customerID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseTimeParam(query, "from", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseTimeParam(query, "to", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sales, err := a.service.ListSales(r.Context(), domain.SaleFilter{
		BranchID:   query.Get("branch_id"),
		CustomerID: query.Get("customer_id"),
		SellerID:   query.Get("seller_id"),
		States:     parseStates(query.Get("state")),
		From:       from,
		To:         to,
		Limit:      parsePositiveLimit(query.Get("limit"), 0, 0),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleListCommissions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	records, err := a.service.ListCommissions(r.Context(), domain.CommissionFilter{
		BranchID:   query.Get("branch_id"),
		CustomerID: query.Get("customer_id"),
		SellerID:   query.Get("seller_id"),
		States:     parseStates(query.Get("state")),
		Limit:      parsePositiveLimit(query.Get("limit"), 0, 0),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commissions": records})
}

func (a *API) handleResolveCommission(w http.ResponseWriter, r *http.Request) {
	sellerID := strings.TrimSpace(r.URL.Query().Get("seller_id"))
	productType := strings.TrimSpace(r.URL.Query().Get("product_type"))
	unit, err := a.service.ResolveCommission(r.Context(), sellerID, productType)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"seller_id":             sellerID,
		"product_type":          productType,
		"unit_commission_cents": unit,
	})
}

func (a *API) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	overrides, err := a.service.ListCommissionOverrides(r.Context(), r.URL.Query().Get("seller_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"overrides": overrides})
}

func (a *API) handleUpsertOverride(w http.ResponseWriter, r *http.Request) {
	var req domain.CommissionOverride
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	saved, err := a.service.UpsertCommissionOverride(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"override": saved})
}

func (a *API) handleListDefaults(w http.ResponseWriter, r *http.Request) {
	defaults, err := a.service.ListCommissionDefaults(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"defaults": defaults})
}

func (a *API) handleUpsertDefault(w http.ResponseWriter, r *http.Request) {
	var req domain.CommissionDefault
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	saved, err := a.service.UpsertCommissionDefault(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"default": saved})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("branch_id"), query.Get("date"), parsePositiveLimit(query.Get("limit"), 100, 500))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.SellerID) != "" {
		if _, err := a.service.GetSeller(r.Context(), req.SellerID); err != nil {
			a.writeServiceError(w, r, err)
			return
		}
	}

	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errUserExists) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

// parseTimeParam accepts RFC3339 or a bare YYYY-MM-DD date. A bare date used
// as an upper bound covers the whole day.
func parseTimeParam(query url.Values, name string, upper bool) (*time.Time, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		parsed = parsed.UTC()
		return &parsed, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD", name)
	}
	if upper {
		parsed = parsed.Add(24 * time.Hour)
	}
	return &parsed, nil
}

func parseStates(raw string) []domain.SettlementState {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	states := make([]domain.SettlementState, 0, len(parts))
	for _, part := range parts {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			states = append(states, domain.SettlementState(part))
		}
	}
	return states
}
