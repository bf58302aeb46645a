package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/PRAGNESH1006/Smoothies/internal/auth"
	"github.com/PRAGNESH1006/Smoothies/internal/config"
	"github.com/PRAGNESH1006/Smoothies/internal/database"
	"github.com/PRAGNESH1006/Smoothies/internal/handler"
	"github.com/PRAGNESH1006/Smoothies/internal/logger"
	"github.com/PRAGNESH1006/Smoothies/internal/metrics"
	"github.com/PRAGNESH1006/Smoothies/internal/middleware"
	"github.com/PRAGNESH1006/Smoothies/internal/platform"
	"github.com/PRAGNESH1006/Smoothies/internal/repository"
	"github.com/PRAGNESH1006/Smoothies/internal/security"
	"github.com/PRAGNESH1006/Smoothies/internal/storage"
	"github.com/PRAGNESH1006/Smoothies/internal/upload"
	"github.com/PRAGNESH1006/Smoothies/internal/user"
	"github.com/PRAGNESH1006/Smoothies/internal/worker/cleanup"
	"github.com/PRAGNESH1006/Smoothies/internal/workspace"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにするため、レベルは後から反映する）
	level := new(slog.LevelVar)
	logger.SetupDefault(w, logger.WithLevel(level))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level.Set(logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if !cmd.needsDatabase() {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandPurgeSessions:
		return runPurgeSessions(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// poolConfig は設定からコネクションプールの設定を組み立てる。
func poolConfig(cfg *config.Config) database.PoolConfig {
	return database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}
}

// trustedOrigins は状態変更リクエストを受け付けるOriginの一覧を返す。
// CORSで許可したOriginに、BASE_URL自身のOriginを加える。
func trustedOrigins(cfg *config.Config) []string {
	origins := slices.Clone(cfg.CORSAllowedOrigins)
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Scheme != "" && u.Host != "" {
		if self := u.Scheme + "://" + u.Host; !slices.Contains(origins, self) {
			origins = append(origins, self)
		}
	}
	return origins
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	return database.Connect(context.Background(), cfg.DatabaseURL, poolConfig(cfg), cfg.DBConnectTimeout)
}

// server はAPIサーバーの構成要素。closeはバックグラウンドのループを停止する。
type server struct {
	handler    http.Handler
	workspaces *workspace.Registry
	limiter    *middleware.RateLimiter
}

func (s *server) close() {
	s.workspaces.Stop()
	s.limiter.Stop()
}

// newServer は全依存関係をワイヤリングしてルーターを構築する。
// DBへの接続は行わないため、疎通確認は呼び出し側の責務。
func newServer(cfg *config.Config, db *sql.DB, log *slog.Logger) (*server, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	recordRepo := repository.NewPostgresRecordRepo(db)

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. 公開オブジェクトストレージとUpload Pipeline
	store, err := storage.NewLocal(cfg.StorageDir, cfg.StoragePublicBaseURL)
	if err != nil {
		return nil, err
	}
	pipeline := upload.NewPipeline(store, upload.Config{
		Namespace: cfg.StorageNamespace,
		MaxSize:   cfg.UploadMaxSize,
	}, collector, logger.Component(log, "upload"))

	// 4. セキュリティ
	ssrfGuard := security.NewSSRFGuard("googleusercontent.com", "githubusercontent.com")
	sanitizer := security.NewTextSanitizer()

	// 5. 認証とユーザー管理
	providers := []auth.OAuthProvider{
		auth.NewGoogleOAuthProvider(auth.ProviderConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}),
	}
	if cfg.GitHubEnabled() {
		providers = append(providers, auth.NewGitHubOAuthProvider(auth.ProviderConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		}))
	}
	authService := auth.NewService(providers, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	authService.SetAvatarImporter(user.NewAvatarImporter(
		ssrfGuard.NewSafeClient(cfg.AvatarFetchTimeout, cfg.UploadMaxSize),
		ssrfGuard, pipeline, cfg.UploadMaxSize,
	))
	userService := user.NewService(userRepo, sessionRepo, recordRepo)

	// 6. ブラウザセッションごとのWorkspace
	backends := platform.NewBackends(authService, userService, recordRepo, sanitizer)
	workspaces := workspace.NewRegistry(
		workspace.NewFactory(backends, collector, log),
		workspace.RegistryConfig{TTL: cfg.WorkspaceTTL, CleanupInterval: cfg.WorkspaceTTL / 2},
		logger.Component(log, "workspace"),
	)

	// 7. ルーターの構築（レート制限はreq/min単位）
	limiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitUpload),
	)
	authConfig := handler.AuthHandlerConfig{
		BaseURL:       cfg.BaseURL,
		CookieDomain:  cfg.CookieDomain,
		CookieSecure:  cfg.CookieSecure,
		SessionMaxAge: cfg.SessionMaxAge,
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             log,
		Metrics:            collector,
		MetricsHandler:     metrics.Handler(registry),
		SessionFinder:      sessionRepo,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HSTS:               cfg.CookieSecure,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure:   cfg.CookieSecure,
			CookieDomain:   cfg.CookieDomain,
			MaxAge:         time.Duration(cfg.SessionMaxAge) * time.Second,
			TrustedOrigins: trustedOrigins(cfg),
			Logger:         logger.Component(log, "csrf"),
		},
		RateLimiter:   limiter,
		HealthChecker: db,
		Workspaces:    workspaces,
		AuthService:   authService,
		AuthConfig:    authConfig,
		Uploader:      pipeline,
		UploadMaxSize: cfg.UploadMaxSize,
		StorageFiles:  store.Handler(),
		UserService:   userService,
	})

	return &server{handler: router, workspaces: workspaces, limiter: limiter}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	srv, err := newServer(cfg, db, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}
	defer srv.close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除ジョブをシグナル受信まで定期実行する。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	job := newSessionPurgeJob(db)
	job.Loop(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

func newSessionPurgeJob(db *sql.DB) *cleanup.SessionPurgeJob {
	return cleanup.NewSessionPurgeJob(
		repository.NewPostgresSessionRepo(db),
		logger.Component(slog.Default(), "session_purge"),
	)
}

// runPurgeSessions は期限切れセッションの削除を1回だけ実行する。
func runPurgeSessions(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := newSessionPurgeJob(db).Run(ctx); err != nil {
		return fmt.Errorf("session purge failed: %w", err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.RunMigrations(cfg.DatabaseURL, slog.Default())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(status.Version)),
		slog.Bool("changed", status.Changed),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
