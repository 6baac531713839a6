// Package app はコマンドライン引数に応じて各コンポーネントを組み立てて起動する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hitoshi/articlerepo/internal/config"
	"github.com/hitoshi/articlerepo/internal/database"
	"github.com/hitoshi/articlerepo/internal/handler"
	"github.com/hitoshi/articlerepo/internal/logger"
	"github.com/hitoshi/articlerepo/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルを反映する
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。ログはwへ、コマンドの出力は標準出力へ書く。
func Run(w io.Writer, args []string) error {
	return run(w, os.Stdout, args)
}

func run(w, out io.Writer, args []string) error {
	cmd, rest := ParseCommand(args)

	switch cmd {
	case CommandUnknown:
		return fmt.Errorf("%w: unknown command %q\n%s", ErrUsage, args[0], usage)
	case CommandHelp:
		_, err := io.WriteString(out, usage)
		return err
	case CommandHealthcheck:
		// 軽量サブコマンドのため、フル初期化をスキップする
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

	log := zap.L()
	log.Info("starting application",
		zap.String("command", string(cmd)),
		zap.String("blob_backend", cfg.BlobBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandServe:
		return runServe(ctx, cfg, log)
	case CommandMigrate:
		return runMigrate(cfg, log)
	}

	env, err := openEnv(ctx, cfg, log, prometheus.NewRegistry(), out)
	if err != nil {
		return err
	}
	defer env.Close()

	return env.Exec(ctx, cmd, rest)
}

// runServe は運用APIを起動し、取り込み待ちディレクトリが設定されていれば監視する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	env, err := openEnv(ctx, cfg, log, reg, io.Discard)
	if err != nil {
		return err
	}
	defer env.Close()

	if st, err := database.Status(cfg.DatabaseURL); err != nil {
		log.Warn("failed to read schema version", zap.Error(err))
	} else if st.Pending() || st.Dirty {
		log.Warn("database schema is not up to date; run migrate",
			zap.Uint("version", st.Version),
			zap.Uint("latest", st.Latest),
			zap.Bool("dirty", st.Dirty),
		)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var workers sync.WaitGroup
	var ingestibles handler.IngestibleLister
	if cfg.IngestSourceDir != "" {
		ib, scheduler, err := env.newInbox()
		if err != nil {
			return err
		}
		ingestibles = ib
		workers.Add(1)
		go func() {
			defer workers.Done()
			scheduler.Start(ctx, cfg.IngestPollInterval)
		}()

		if cfg.IngestRetention > 0 {
			dirs := ib.Dirs()
			job := cleanup.NewJob(log, dirs.Dest, dirs.Failed)
			job.Retention = cfg.IngestRetention
			workers.Add(1)
			go func() {
				defer workers.Done()
				job.Start(ctx, 24*time.Hour)
			}()
		}
	} else {
		log.Info("INGEST_SOURCE_DIR is not set; inbox scheduler disabled")
	}
	server.Handler = handler.NewRouter(&handler.RouterDeps{
		HealthChecks: env.healthChecks,
		Gatherer:     reg,
		Ingestibles:  ingestibles,
		Logger:       log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	workers.Wait()

	log.Info("API server stopped gracefully")
	return nil
}

// runMigrate は未適用のデータベースマイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *zap.Logger) error {
	before, err := database.Status(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Info("running database migrations",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Uint("version", before.Version),
		zap.Uint("latest", before.Latest),
	)
	if !before.Pending() && !before.Dirty {
		log.Info("database schema is up to date")
		return nil
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully", zap.Uint("version", before.Latest))
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
