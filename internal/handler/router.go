package handler

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/pageinsights/internal/metrics"
	"github.com/hitoshi/pageinsights/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// HealthChecker はヘルスチェックでDB接続の疎通を確認するためのインターフェース。
// *sql.DB が実装する。
type HealthChecker interface {
	Ping() error
}

var _ HealthChecker = (*sql.DB)(nil)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger        *slog.Logger
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// パネルとAPI
	Controllers ControllerSource
	Presenter   *Presenter
	PanelConfig PanelConfig

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通:
//
//	RequestID → RealIP → Recovery → SecurityHeaders → Logging → CORS
//
// パネル: OptionalSession → CSRF(フォーム) → RateLimit(General)
// API:    Session → CSRF(ヘッダー) → RateLimit(General)
// Graph APIを呼ぶルートには RateLimit(Insights) を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	panelHandler := NewPanelHandler(deps.Controllers, deps.Presenter, deps.PanelConfig)
	insightsHandler := NewInsightsHandler(deps.Controllers, deps.Presenter)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)

	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)
	general := deps.RateLimiter.GeneralMiddleware()
	insightsLimit := deps.RateLimiter.InsightsMiddleware()

	// --- 運用 ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証（ログインフロー） ---
	r.Route("/auth", func(r chi.Router) {
		r.Use(general)
		r.Get("/facebook/login", authHandler.Login)
		r.With(insightsLimit).Get("/facebook/callback", authHandler.Callback)
		r.Get("/me", authHandler.Me)
		r.With(csrf).Post("/logout", authHandler.Logout)
	})

	// --- HTMLパネル ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))
		r.Use(csrf)
		r.Use(general)

		r.Get("/", panelHandler.Show)
		r.Route("/panel", func(r chi.Router) {
			r.Post("/select", panelHandler.Select)
			r.Post("/range", panelHandler.Range)
			r.With(insightsLimit).Post("/insights", panelHandler.Submit)
			r.With(insightsLimit).Post("/pages/refresh", panelHandler.Refresh)
		})
	})

	// --- JSON API ---
	r.Route("/api", func(r chi.Router) {
		r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
			r.Use(csrf)
			r.Use(general)

			r.Get("/state", insightsHandler.GetState)
			r.Put("/selection", insightsHandler.SelectPage)
			r.Put("/date-range", insightsHandler.UpdateDateRange)
			r.With(insightsLimit).Post("/pages/refresh", insightsHandler.RefreshPages)
			r.With(insightsLimit).Post("/insights", insightsHandler.SubmitInsights)
			r.Delete("/users/me", userHandler.Withdraw)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.Ping(); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
