package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/chatman/internal/metrics"
	"github.com/hitoshi/chatman/internal/middleware"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	Ping() error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           middleware.StatusRecorder

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 会話
	ChatController ChatControllerInterface
	ChatFinder     ChatFinder
	MessageStore   MessageStoreInterface

	// ユーザーディレクトリ
	UserService UserServiceInterface

	// 運用
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → SessionMiddleware → RateLimit(General)
//
// 認証ルート（/auth/*）と運用エンドポイント（/health、/metrics）は
// セッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	chatHandler := NewChatHandler(deps.ChatController, deps.ChatFinder, deps.MessageStore)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	// 認証ルート（メール・パスワード認証フロー）
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/signin", authHandler.Signin)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.Ping(); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheusスクレイプ
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ユーザーディレクトリ（会話相手の選択用）
		r.Get("/api/users", userHandler.ListUsers)

		// 会話管理
		r.Route("/api/chats", func(r chi.Router) {
			// POST /api/chats/open - 会話の解決（なければ作成）
			r.Post("/open", chatHandler.OpenChat)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/messages", chatHandler.ListMessages)

				// POST /api/chats/{id}/messages - メッセージ送信（送信専用レート制限を追加）
				r.With(deps.RateLimiter.MessageSendMiddleware()).Post("/messages", chatHandler.SendMessage)
			})
		})
	})

	return r
}
