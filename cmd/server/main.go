// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pki-ca-service/config"
	"pki-ca-service/internal/domain"
	"pki-ca-service/internal/handler"
	"pki-ca-service/internal/infra"
	"pki-ca-service/internal/nonce"
	"pki-ca-service/internal/notify"
	"pki-ca-service/internal/pki"
	"pki-ca-service/internal/repository"
	"pki-ca-service/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	logger := infra.SetupLogger(cfg)

	// CA鍵の読み込みに失敗した場合は起動しない
	ca, err := loadCA(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("CA loaded", "subject", ca.Subject().String())

	// DB初期化
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if infra.IsSQLite(cfg.DatabaseURL) {
		// SQLiteは開発用のためスキーマを自動作成する
		if err := repository.AutoMigrate(ctx, db); err != nil {
			return fmt.Errorf("migrate sqlite schema: %w", err)
		}
	}

	nonces, err := newNonceStore(ctx, cfg)
	if err != nil {
		return err
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	// DI
	users := repository.NewUserRepository(db)
	apps := repository.NewApplicationRepository(db)
	certs := repository.NewCertificateRepository(db)
	revocations := repository.NewRevocationRepository(db)
	tx := repository.NewTransactor(db)

	certService := usecase.NewCertificateService(certs, revocations, ca)
	router := handler.NewRouter(handler.Handlers{
		Auth: handler.NewAuthHandler(usecase.NewAuthService(users, nonces)),
		Applications: handler.NewApplicationHandler(
			usecase.NewApplicationService(nonces, apps, certs, users, tx, pki.NewIssuer(ca), pki.NewSerialGenerator(), notifier),
			certService,
		),
		Revocations:  handler.NewRevocationHandler(usecase.NewRevocationService(certs, revocations, users, tx, notifier)),
		Certificates: handler.NewCertificateHandler(certService),
	})

	var h http.Handler = router
	if cfg.OtelEnabled {
		h = otelhttp.NewHandler(router, cfg.OtelServiceName)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		// 配送中の通知を待つ
		if w, ok := notifier.(interface{ Wait(context.Context) error }); ok {
			if err := w.Wait(shutdownCtx); err != nil {
				slog.Error("notifications still in flight at shutdown", "error", err)
			}
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "nonce_backend", cfg.NonceBackend)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	<-stopped
	slog.Info("server stopped")
	return nil
}

// loadCA はCA証明書と秘密鍵を読み込む。CA_KEY_KMS_ENCRYPTED の場合はKMSで復号する。
func loadCA(ctx context.Context, cfg *config.Config) (*pki.CAContext, error) {
	var decrypter infra.KeyDecrypter
	if cfg.CAKeyKMSEncrypted {
		kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCAKeyLoad, err)
		}
		defer func() {
			if closeErr := kmsClient.Close(); closeErr != nil {
				slog.Error("failed to close KMS client", "error", closeErr)
			}
		}()
		decrypter = kmsClient
	}
	return infra.LoadCA(ctx, cfg.CACertPath, cfg.CAKeyPath, decrypter)
}

// newNonceStore は NONCE_BACKEND に応じたチャレンジ保存領域を返す。
// メモリ実装の場合は期限切れエントリの掃除をバックグラウンドで開始する。
func newNonceStore(ctx context.Context, cfg *config.Config) (usecase.NonceStore, error) {
	switch cfg.NonceBackend {
	case "redis":
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		store, err := nonce.NewRedisStore(client, nil)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory", "":
		store := nonce.NewMemoryStore(nil)
		go store.Run(ctx, cfg.NonceSweepInterval)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown NONCE_BACKEND: %s", cfg.NonceBackend)
	}
}

// newNotifier は NOTIFY_WEBHOOK_URL が設定されていればWebhook、なければログへ通知する。
func newNotifier(cfg *config.Config, logger *slog.Logger) (usecase.Notifier, error) {
	if cfg.NotifyWebhookURL == "" {
		return notify.NewLogNotifier(logger), nil
	}
	n, err := notify.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyWebhookAuth)
	if err != nil {
		return nil, fmt.Errorf("init webhook notifier: %w", err)
	}
	return n, nil
}
