package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/chatman/internal/model"
)

type mockUserService struct {
	listOthersFn func(ctx context.Context, selfID string) ([]*model.User, error)
}

func (m *mockUserService) ListOthers(ctx context.Context, selfID string) ([]*model.User, error) {
	if m.listOthersFn != nil {
		return m.listOthersFn(ctx, selfID)
	}
	return nil, nil
}

var _ UserServiceInterface = (*mockUserService)(nil)

func TestListUsers_ReturnsOthers(t *testing.T) {
	svc := &mockUserService{
		listOthersFn: func(_ context.Context, selfID string) ([]*model.User, error) {
			if selfID != "alice" {
				t.Errorf("selfID = %s, want alice", selfID)
			}
			return []*model.User{
				{ID: "bob", Email: "bob@example.com", Name: "Bob"},
				{ID: "carol", Email: "carol@example.com", Name: "Carol"},
			}, nil
		},
	}
	h := NewUserHandler(svc)

	req := authedRequest(http.MethodGet, "/api/users", "", "alice")
	rec := httptest.NewRecorder()

	h.ListUsers(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp []userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("len = %d, want 2", len(resp))
	}
	if resp[0].ID != "bob" || resp[1].ID != "carol" {
		t.Errorf("response = %+v", resp)
	}
}

func TestListUsers_EmptyDirectory(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := authedRequest(http.MethodGet, "/api/users", "", "alice")
	rec := httptest.NewRecorder()

	h.ListUsers(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	// 空でもnullではなく[]を返す
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestListUsers_WithoutAuthContext(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()

	h.ListUsers(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestListUsers_ServiceError(t *testing.T) {
	svc := &mockUserService{
		listOthersFn: func(_ context.Context, _ string) ([]*model.User, error) {
			return nil, fmt.Errorf("db connection lost")
		},
	}
	h := NewUserHandler(svc)

	req := authedRequest(http.MethodGet, "/api/users", "", "alice")
	rec := httptest.NewRecorder()

	h.ListUsers(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
