// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"

	"vault-secret-store/config"
	"vault-secret-store/internal/app"
	"vault-secret-store/internal/handler"
	"vault-secret-store/internal/infra"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// シグナルは graceful shutdown で扱うため CatchInterrupt は使わない
	defer memguard.Purge()

	if err := run(); err != nil {
		slog.Error("server error", "error", err)
		memguard.Purge()
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		return err
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	infra.SetupLogger(os.Stdout, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	// DI
	a, err := app.Open(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("failed to release resources", "error", err)
		}
	}()

	router := handler.NewRouter(
		handler.NewEntryHandler(a.Vault),
		handler.NewKeyHandler(a.Keys),
		cfg.OtelServiceName,
	)

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return err
	}

	slog.Info("starting server",
		"port", cfg.Port,
		"key_alias", cfg.KeyAlias,
		"key_wrapper", cfg.KeyWrapper,
		"allow_degraded_encoding", cfg.AllowDegradedEncoding,
	)

	// Graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	if err := serve(sigCtx, server, ln, shutdownTimeout); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// serve は ctx が終了するまでリクエストを処理する。
// 処理中のリクエストが完了するまで戻らないため、呼び出し元はその後にリソースを解放できる。
func serve(ctx context.Context, server *http.Server, ln net.Listener, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
