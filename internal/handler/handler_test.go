package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/staffpoints/internal/middleware"
	"github.com/mmeshcher/staffpoints/internal/model"
)

type stubService struct {
	users    []model.User
	pending  []model.RequestView
	approved []model.RequestView
	pingErr  error

	approvedLimit int
}

func (s *stubService) ListUsers(context.Context) ([]model.User, error) {
	return s.users, nil
}

func (s *stubService) PendingRequests(context.Context) ([]model.RequestView, error) {
	return s.pending, nil
}

func (s *stubService) ApprovedQueue(_ context.Context, limit int) ([]model.RequestView, error) {
	s.approvedLimit = limit
	return s.approved, nil
}

func (s *stubService) Ping(context.Context) error {
	return s.pingErr
}

func newTestServer(t *testing.T, svc *stubService, token string) *httptest.Server {
	t.Helper()

	h := NewHandler(svc, zap.NewNop())
	srv := httptest.NewServer(h.SetupRouter(middleware.NewAuthMiddleware(token)))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(t, svc, "")

	resp := get(t, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	svc.pingErr = errors.New("connection refused")
	resp = get(t, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestGetUsers(t *testing.T) {
	svc := &stubService{users: []model.User{
		{ID: 1, FullName: "Иванов Иван", Role: model.RoleConsultant, Points: 120},
		{ID: 2, FullName: "Петров Пётр", Role: model.RoleSupport, Points: -10},
	}}
	srv := newTestServer(t, svc, "")

	resp := get(t, srv.URL+"/api/users", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got []userResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("users = %d, want 2", len(got))
	}
	if got[1].Points != -10 {
		t.Fatalf("negative balance must survive serialization, got %d", got[1].Points)
	}
}

func TestGetApproved_Limit(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(t, svc, "")

	resp := get(t, srv.URL+"/api/requests/approved", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if svc.approvedLimit != 10 {
		t.Fatalf("default limit = %d, want 10", svc.approvedLimit)
	}

	resp = get(t, srv.URL+"/api/requests/approved?limit=3", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if svc.approvedLimit != 3 {
		t.Fatalf("limit = %d, want 3", svc.approvedLimit)
	}

	resp = get(t, srv.URL+"/api/requests/approved?limit=abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetPending_BookingDate(t *testing.T) {
	date := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	svc := &stubService{pending: []model.RequestView{
		{
			UsageRequest: model.UsageRequest{
				ID:          1,
				UserID:      1,
				Description: "Уйти на 2 ч. раньше",
				Status:      model.RequestStatusPending,
				Category:    model.CategoryEarlyLeave,
				CreatedAt:   time.Now(),
				BookingDate: &date,
			},
			FullName: "Иванов Иван",
		},
	}}
	srv := newTestServer(t, svc, "")

	resp := get(t, srv.URL+"/api/requests/pending", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got []requestResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("pending = %d, want 1", len(got))
	}
	if got[0].BookingDate == nil || *got[0].BookingDate != "2026-09-14" {
		t.Fatalf("booking_date = %v, want 2026-09-14", got[0].BookingDate)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(t, svc, "secret")

	resp := get(t, srv.URL+"/api/users", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", resp.StatusCode)
	}

	resp = get(t, srv.URL+"/api/users", "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 with wrong token", resp.StatusCode)
	}

	resp = get(t, srv.URL+"/api/users", "secret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 with valid token", resp.StatusCode)
	}

	// healthz доступен без токена.
	resp = get(t, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}
}
