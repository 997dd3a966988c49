package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig(generalBurst, sendBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(0.001), // テスト中に補充されない程度に遅く
		GeneralBurst:    generalBurst,
		SendRate:        rate.Limit(0.001),
		SendBurst:       sendBurst,
		CleanupInterval: time.Hour,
	}
}

func newLimitedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGeneralMiddleware_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(3, 3))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newLimitedRequest("alice"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}
}

func TestGeneralMiddleware_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(2, 2))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newLimitedRequest("alice"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newLimitedRequest("alice"))

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
}

// ユーザーごとに独立したリミッターを持つこと
func TestGeneralMiddleware_PerUserLimits(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// aliceがバーストを使い切る
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newLimitedRequest("alice"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newLimitedRequest("alice"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("alice second request: status = %d, want 429", rec.Code)
	}

	// bobは影響を受けない
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newLimitedRequest("bob"))
	if rec.Code != http.StatusOK {
		t.Errorf("bob: status = %d, want 200", rec.Code)
	}

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("limiter count = %d, want 2", got)
	}
}

// メッセージ送信のレート制限はAPI全般のレート制限と独立に動作すること
func TestMessageSendMiddleware_IndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 2))
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	send := rl.MessageSendMiddleware()(okHandler())

	// 一般リミッターを使い切る
	rec := httptest.NewRecorder()
	general.ServeHTTP(rec, newLimitedRequest("alice"))
	rec = httptest.NewRecorder()
	general.ServeHTTP(rec, newLimitedRequest("alice"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("general: status = %d, want 429", rec.Code)
	}

	// 送信リミッターはまだ許可する
	rec = httptest.NewRecorder()
	send.ServeHTTP(rec, newLimitedRequest("alice"))
	if rec.Code != http.StatusOK {
		t.Errorf("send: status = %d, want 200", rec.Code)
	}

	if got := rl.SendLimiterCount(); got != 1 {
		t.Errorf("send limiter count = %d, want 1", got)
	}
}

func TestRateLimitMiddleware_WithoutUserContext(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(10, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    1,
		SendRate:        rate.Limit(1),
		SendBurst:       1,
		CleanupInterval: 10 * time.Millisecond,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newLimitedRequest("alice"))

	if got := rl.GeneralLimiterCount(); got != 1 {
		t.Fatalf("limiter count = %d, want 1", got)
	}

	// TTL（CleanupInterval×2）経過後にクリーンアップされるまで待機
	deadline := time.Now().Add(time.Second)
	for rl.GeneralLimiterCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stale limiter entry was not cleaned up")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 30)

	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.SendBurst != 30 {
		t.Errorf("SendBurst = %d, want 30", cfg.SendBurst)
	}
	if cfg.GeneralRate != rate.Limit(2.0) {
		t.Errorf("GeneralRate = %v, want 2.0 req/sec", cfg.GeneralRate)
	}
	if cfg.SendRate != rate.Limit(0.5) {
		t.Errorf("SendRate = %v, want 0.5 req/sec", cfg.SendRate)
	}
}
