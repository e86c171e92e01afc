package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"swiim/backend/internal/domain"
	"swiim/backend/internal/service"
	"swiim/backend/internal/store/memory"
)

// newTestAPI builds a full API with the seeded in-memory store, real
// AuthManager and real Service so handler tests exercise the complete
// request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, 0, 0, 0)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func doJSON(t *testing.T, api *API, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatalf("expected access_token in response")
	}
	if body.Role != "admin" {
		t.Fatalf("expected admin role, got %q", body.Role)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleOverview_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/analytics/overview", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleOverview_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/analytics/overview", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var overview domain.AnalyticsOverview
	if err := json.NewDecoder(rec.Body).Decode(&overview); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !overview.HasData {
		t.Fatalf("expected has_data:true for seeded dataset (reason: %q)", overview.Reason)
	}
	if overview.Overview.TotalReceipts == 0 {
		t.Fatalf("expected non-zero receipts in seeded window")
	}
}

func TestHandleOverview_CSVExport(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/analytics/overview?format=csv", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("expected CSV content type, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd == "" {
		t.Fatalf("expected Content-Disposition attachment header")
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("section,key,value")) {
		t.Fatalf("expected CSV header row, got %q", rec.Body.String())
	}
}

func TestHandleTimeSeries_FiltersByStore(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/analytics/timeseries?store_id=str-bastille", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Points []domain.DailyPoint `json:"points"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Points) == 0 {
		t.Fatalf("expected daily points for seeded store")
	}
}

func TestHandleSegments_AlwaysInBand(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/analytics/segments", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var result domain.SegmentationResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if result.Status != domain.SegmentationOK {
		t.Fatalf("expected ok segmentation on seeded data, got %q (%s)", result.Status, result.Reason)
	}
}

func TestHandleEnvironment_RejectsBadProjection(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/analytics/environment?projected_increase=abc", token, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid projection, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/analytics/environment?projected_increase=25", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleCreateStore_RequiresAdminRole(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "analyst", "analyst123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/stores", token, csrf, domain.StoreCreateRequest{
		Name: "Marseille Vieux-Port",
		City: "Marseille",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for analyst, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	adminToken := loginAsAdmin(t, api)
	rec = doJSON(t, api, http.MethodPost, "/api/v1/stores", adminToken, csrf, domain.StoreCreateRequest{
		Name: "Marseille Vieux-Port",
		City: "Marseille",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleCreateReceipt_FullPath(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/receipts", token, csrf, domain.ReceiptCreateRequest{
		StoreID: "str-bastille",
		Items: []domain.LineItemCreateRequest{
			{Product: "Roman poche", Category: "Livres", Quantity: 2, UnitPrice: mustDecimal(t, "8.50")},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Receipt domain.Receipt `json:"receipt"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Receipt.ID == "" {
		t.Fatalf("expected receipt id")
	}
	if !body.Receipt.Total.Equal(mustDecimal(t, "17.00")) {
		t.Fatalf("expected server-computed total 17.00, got %s", body.Receipt.Total)
	}

	// Claim it, then confirm a second claim is rejected.
	claimPath := "/api/v1/receipts/" + body.Receipt.ID + "/claim"
	rec = doJSON(t, api, http.MethodPost, claimPath, token, csrf, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on claim, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, http.MethodPost, claimPath, token, csrf, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on double claim, got %d", rec.Code)
	}
}

func TestHandleReceipts_RejectsUnknownStatusFilter(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/receipts?status=bogus", token, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestHandleLoyaltyTiers_RequiresPut(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/loyalty/program/tiers", token, csrf, []domain.TierUpdate{})
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST on tiers, got %d", rec.Code)
	}
}

func TestHandleAnalysts_AdminOnly(t *testing.T) {
	api := newTestAPI(t)
	analystToken := loginAs(t, api, "analyst", "analyst123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/users/analysts", analystToken, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for analyst, got %d", rec.Code)
	}

	adminToken := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)
	rec = doJSON(t, api, http.MethodPost, "/api/v1/users/analysts", adminToken, csrf, domain.AnalystCreateRequest{
		Username: "claire",
		Password: "secret99",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/users/analysts", adminToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Analysts []domain.AnalystUser `json:"analysts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	found := false
	for _, a := range body.Analysts {
		if a.Username == "claire" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected new analyst in listing, got %v", body.Analysts)
	}
}

func TestHandleGetStore_NotFound(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/stores/str-nope", token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
