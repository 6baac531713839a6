package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hitoshi/articlerepo/internal/metrics"
	"github.com/hitoshi/articlerepo/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ヘルスチェック対象。名前はレスポンスのキーになる
	HealthChecks map[string]Pinger

	// メトリクスの収集元。nilの場合は/metricsを登録しない
	Gatherer prometheus.Gatherer

	// 取り込み待ちディレクトリ。nilの場合は/ingestiblesを登録しない
	Ingestibles IngestibleLister

	Logger *zap.Logger
}

// NewRouter は運用向けエンドポイントを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))

	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecks, logger))

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	if deps.Ingestibles != nil {
		r.Method(http.MethodGet, "/ingestibles", NewIngestiblesHandler(deps.Ingestibles, logger))
	}

	return r
}
