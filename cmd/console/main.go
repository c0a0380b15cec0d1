package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/harborsupport/console/internal/config"
	"github.com/harborsupport/console/internal/handler"
	"github.com/harborsupport/console/internal/handler/stream"
	"github.com/harborsupport/console/internal/logger"
	"github.com/harborsupport/console/internal/model/chat"
	"github.com/harborsupport/console/internal/service/assist"
	"github.com/harborsupport/console/internal/service/engine"
	"github.com/harborsupport/console/internal/service/upload"
	"github.com/harborsupport/console/internal/upstream/api"
	"github.com/harborsupport/console/internal/upstream/push"
	"github.com/harborsupport/console/internal/upstream/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		logger.Warn("failed to load .env file, continuing with system environment", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		os.Exit(1)
	}

	apiClient := api.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Token)
	uploader := storage.NewHTTPUploader(cfg.Upload.Endpoint, cfg.Upstream.Token)
	uploads := upload.NewCoordinator(uploader, cfg.Upload.Concurrency)

	eng := engine.New(cfg.Agent.ID, cfg.Sync.SignatureTTL)

	hub := stream.NewHub()
	eng.SetNotify(hub.Publish)

	var assistSvc *assist.Service
	if cfg.Assist.Enabled() {
		assistSvc, err = assist.NewService(ctx, cfg.Assist)
		if err != nil {
			logger.Warn("failed to initialize assist service, continuing without it", zap.Error(err))
			assistSvc = nil
		} else {
			logger.Info("assist service initialized")
		}
	} else {
		logger.Info("assist credentials not configured, suggestions disabled")
	}

	dispatcher := engine.NewDispatcher(eng, 0)
	go dispatcher.Run(ctx)

	pushClient := push.NewClient(cfg.Upstream.WSURL, cfg.Upstream.Token, dispatcher.Enqueue)
	go pushClient.Run(ctx)

	go syncDirectory(ctx, apiClient, eng, cfg.Upstream.PageSize)

	router := handler.NewRouter(eng, apiClient, uploads, assistSvc, hub, cfg.Upstream.PageSize)

	startServer(ctx, cfg.Server, router)
}

// syncDirectory pulls the full conversation snapshot once at startup. Later
// changes arrive over the push channel.
func syncDirectory(ctx context.Context, client *api.Client, eng *engine.Engine, pageSize int) {
	for page := 0; ; page++ {
		result, err := client.ListConversations(ctx, chat.TabAll, "", page, pageSize)
		if err != nil {
			logger.Error("directory snapshot fetch failed", zap.Int("page", page), zap.Error(err))
			return
		}

		snapshot := make([]chat.Conversation, 0, len(result.Items))
		for _, dto := range result.Items {
			snapshot = append(snapshot, dto.Normalize())
		}
		eng.MergeDirectory(snapshot)

		if len(result.Items) < pageSize {
			logger.Info("directory snapshot loaded", zap.Int("conversations", eng.Directory().Len()))
			return
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("console daemon listening", zap.String("addr", serverCfg.Addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
