package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// BlobStoreのバックエンド種別
const (
	BlobBackendFS     = "fs"
	BlobBackendS3     = "s3"
	BlobBackendMinio  = "minio"
	BlobBackendMemory = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// BlobStore
	BlobBackend          string  `envconfig:"BLOB_BACKEND" default:"fs"`
	BlobBucket           string  `envconfig:"BLOB_BUCKET" default:"corpus"`
	BlobRoot             string  `envconfig:"BLOB_ROOT"`
	BlobEndpoint         string  `envconfig:"BLOB_ENDPOINT"`
	BlobRegion           string  `envconfig:"BLOB_REGION" default:"us-east-1"`
	BlobAccessKey        string  `envconfig:"BLOB_ACCESS_KEY"`
	BlobSecretKey        string  `envconfig:"BLOB_SECRET_KEY"`
	BlobUseSSL           bool    `envconfig:"BLOB_USE_SSL" default:"false"`
	BlobWriteConcurrency int     `envconfig:"BLOB_WRITE_CONCURRENCY" default:"8"`
	BlobWritesPerSecond  float64 `envconfig:"BLOB_WRITES_PER_SECOND" default:"0"`

	// Ingest
	IngestMaxAttempts  int           `envconfig:"INGEST_MAX_ATTEMPTS" default:"3"`
	IngestSourceDir    string        `envconfig:"INGEST_SOURCE_DIR"`
	IngestDestDir      string        `envconfig:"INGEST_DEST_DIR"`
	IngestFailedDir    string        `envconfig:"INGEST_FAILED_DIR"`
	IngestPollInterval time.Duration `envconfig:"INGEST_POLL_INTERVAL" default:"1m"`
	IngestConcurrency  int           `envconfig:"INGEST_CONCURRENCY" default:"2"`
	// 0の場合は取り込み済みアーカイブを削除しない
	IngestRetention time.Duration `envconfig:"INGEST_RETENTION" default:"0"`

	// Notification
	RedisURL      string `envconfig:"REDIS_URL"`
	NotifyChannel string `envconfig:"NOTIFY_CHANNEL" default:"articlerepo.index"`

	// Server
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load は.envファイル（存在すれば）と環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定の変数名をまとめてエラーとして返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	switch cfg.BlobBackend {
	case BlobBackendFS:
		if cfg.BlobRoot == "" {
			missing = append(missing, "BLOB_ROOT")
		}
	case BlobBackendS3:
		// 認証情報が未設定の場合はAWSの既定の認証チェーンを使う
	case BlobBackendMinio:
		if cfg.BlobEndpoint == "" {
			missing = append(missing, "BLOB_ENDPOINT")
		}
		if cfg.BlobAccessKey == "" {
			missing = append(missing, "BLOB_ACCESS_KEY")
		}
		if cfg.BlobSecretKey == "" {
			missing = append(missing, "BLOB_SECRET_KEY")
		}
	case BlobBackendMemory:
	default:
		return nil, fmt.Errorf("unsupported BLOB_BACKEND: %q", cfg.BlobBackend)
	}

	// 取り込み待ちディレクトリを使う場合は保管先も必要
	if cfg.IngestSourceDir != "" && cfg.IngestDestDir == "" {
		missing = append(missing, "INGEST_DEST_DIR")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.BlobWriteConcurrency < 1 {
		cfg.BlobWriteConcurrency = 1
	}
	if cfg.IngestMaxAttempts < 1 {
		cfg.IngestMaxAttempts = 1
	}
	if cfg.IngestConcurrency < 1 {
		cfg.IngestConcurrency = 1
	}
	if cfg.IngestRetention < 0 {
		cfg.IngestRetention = 0
	}
	if cfg.IngestPollInterval <= 0 {
		cfg.IngestPollInterval = time.Minute
	}

	return cfg, nil
}
