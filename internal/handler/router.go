package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/PRAGNESH1006/Smoothies/internal/metrics"
	"github.com/PRAGNESH1006/Smoothies/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	Metrics            metrics.MetricsCollector
	MetricsHandler     http.Handler
	SessionFinder      middleware.SessionFinder
	CORSAllowedOrigins []string
	HSTS               bool
	CSRFConfig         middleware.CSRFConfig
	RateLimiter        *middleware.RateLimiter
	HealthChecker      HealthChecker

	// ブラウザセッションごとのWorkspace
	Workspaces WorkspaceSource

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// アップロードと公開オブジェクト
	Uploader      Uploader
	UploadMaxSize int64
	StorageFiles  http.Handler

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → OptionalSession
//	  （認証が必要なルート）→ Session → RateLimit(General) → CSRF
//
// 公開ルートは未認証でも閲覧でき、認証済みであればcan_mutateに反映される。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{
		HSTS:         deps.HSTS,
		PublicPrefix: "/storage/",
	}))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))

	authHandler := NewAuthHandler(deps.AuthService, deps.Workspaces, deps.AuthConfig)
	recordHandler := NewRecordHandler(deps.Workspaces, deps.Uploader)
	uploadHandler := NewUploadHandler(deps.Uploader, deps.UploadMaxSize)
	profileHandler := NewProfileHandler(deps.Workspaces, deps.Uploader, deps.UploadMaxSize)
	userHandler := NewUserHandler(deps.UserService, deps.Workspaces, deps.AuthConfig)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	if deps.StorageFiles != nil {
		r.Method(http.MethodGet, "/storage/*", http.StripPrefix("/storage/", deps.StorageFiles))
		r.Method(http.MethodHead, "/storage/*", http.StripPrefix("/storage/", deps.StorageFiles))
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証ルート（OAuthフロー・パスワードログイン）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/providers", authHandler.Providers)
		r.With(middleware.NewCSRFMiddleware(deps.CSRFConfig)).Post("/password/login", authHandler.PasswordLogin)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Get("/{provider}/login", authHandler.Login)
		r.Get("/{provider}/callback", authHandler.Callback)
	})

	// 一覧・詳細は未認証でも閲覧できる
	r.Get("/api/records", recordHandler.ListRecords)
	r.Get("/api/records/{id}", recordHandler.GetRecord)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/api/dashboard", recordHandler.Dashboard)

		// POST /api/uploads - 画像アップロード（アップロード専用レート制限を追加）
		r.With(deps.RateLimiter.UploadMiddleware()).Post("/api/uploads", uploadHandler.Upload)

		r.Post("/api/records", recordHandler.CreateRecord)
		r.Put("/api/records/{id}", recordHandler.UpdateRecord)
		r.Delete("/api/records/{id}", recordHandler.DeleteRecord)

		r.Get("/api/profile", profileHandler.GetProfile)
		r.Patch("/api/profile", profileHandler.UpdateProfile)
		r.With(deps.RateLimiter.UploadMiddleware()).Post("/api/profile/avatar", profileHandler.UploadAvatar)

		r.Delete("/api/users/me", userHandler.Withdraw)
	})

	return r
}
