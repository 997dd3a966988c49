package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/chatman/internal/chat"
	"github.com/hitoshi/chatman/internal/middleware"
	"github.com/hitoshi/chatman/internal/model"
)

// fakeSessionFinder はセッションIDとユーザーIDの対応を保持するインメモリ実装。
type fakeSessionFinder struct {
	sessions map[string]string // session ID -> user ID
}

func (f *fakeSessionFinder) FindByID(_ context.Context, id string) (*model.Session, error) {
	userID, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	return &model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

var _ middleware.SessionFinder = (*fakeSessionFinder)(nil)

type fakeHealthChecker struct {
	err error
}

func (f *fakeHealthChecker) Ping() error {
	return f.err
}

// newTestRouter はインメモリ構成のルーターを返す。
// クリーンアップはt.Cleanupで登録する。
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	chats := newFakeChatRepo()
	users := newFakeUserRepo(
		&model.User{ID: "alice", Email: "alice@example.com", Name: "Alice"},
		&model.User{ID: "bob", Email: "bob@example.com", Name: "Bob"},
	)
	messages := &fakeMessageRepo{}

	resolver := chat.NewResolver(chats, users, nil)
	store := chat.NewStore(messages, nil)
	controller := chat.NewController(resolver, store)

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(6000, 6000))
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		SessionFinder: &fakeSessionFinder{
			sessions: map[string]string{"session-alice": "alice"},
		},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		AuthService: &mockAuthService{
			signinFn: func(_ context.Context, email, _ string) (*model.User, *model.Session, error) {
				return &model.User{ID: "alice", Email: email, Name: "Alice"},
					&model.Session{ID: "session-alice", UserID: "alice"},
					nil
			},
		},
		AuthConfig: testAuthConfig(),
		ChatController: controller,
		ChatFinder:     chats,
		MessageStore:   store,
		UserService: &mockUserService{
			listOthersFn: func(_ context.Context, _ string) ([]*model.User, error) {
				return []*model.User{{ID: "bob", Email: "bob@example.com", Name: "Bob"}}, nil
			},
		},
		HealthChecker: &fakeHealthChecker{},
	}

	return NewRouter(deps)
}

func TestRouter_UnauthenticatedAPIRequest(t *testing.T) {
	router := newTestRouter(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/users"},
		{http.MethodPost, "/api/chats/open"},
		{http.MethodGet, "/api/chats/chat-1/messages"},
		{http.MethodPost, "/api/chats/chat-1/messages"},
	}

	for _, p := range paths {
		t.Run(p.method+"_"+p.path, func(t *testing.T) {
			req := httptest.NewRequest(p.method, p.path, nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			var resp errorBody
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("401 should carry a JSON error body: %v", err)
			}
			if resp.Code != model.ErrCodeAuthFailed {
				t.Errorf("error code = %s, want AUTH_FAILED", resp.Code)
			}
		})
	}
}

func TestRouter_AuthRoutesReachableWithoutSession(t *testing.T) {
	router := newTestRouter(t)

	body := `{"email":"alice@example.com","password":"password123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
}

// セッションCookieを経由した認証済みAPIアクセスの確認
func TestRouter_SessionCookieGrantsAPIAccess(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-alice"})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp []userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "bob" {
		t.Errorf("response = %+v", resp)
	}
}

func TestRouter_InvalidSessionCookie(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "forged-session"})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// Cookieでの会話解決からメッセージ送信までの一連のフロー
func TestRouter_OpenAndSendFlow(t *testing.T) {
	router := newTestRouter(t)

	cookie := &http.Cookie{Name: "session_id", Value: "session-alice"}

	openReq := httptest.NewRequest(http.MethodPost, "/api/chats/open", strings.NewReader(`{"partner_id":"bob"}`))
	openReq.AddCookie(cookie)
	openRec := httptest.NewRecorder()
	router.ServeHTTP(openRec, openReq)

	if openRec.Code != http.StatusOK {
		t.Fatalf("open status = %d, want 200 (body: %s)", openRec.Code, openRec.Body.String())
	}
	var opened openChatResponse
	if err := json.NewDecoder(openRec.Body).Decode(&opened); err != nil {
		t.Fatalf("decode open: %v", err)
	}

	sendReq := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/chats/%s/messages", opened.Chat.ID),
		strings.NewReader(`{"text":"こんにちは"}`))
	sendReq.AddCookie(cookie)
	sendRec := httptest.NewRecorder()
	router.ServeHTTP(sendRec, sendReq)

	if sendRec.Code != http.StatusCreated {
		t.Fatalf("send status = %d, want 201 (body: %s)", sendRec.Code, sendRec.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/chats/%s/messages", opened.Chat.ID), nil)
	listReq.AddCookie(cookie)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)

	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", listRec.Code)
	}
	var msgs []messageResponse
	if err := json.NewDecoder(listRec.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "こんにちは" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_SecurityHeadersApplied(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/users", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
