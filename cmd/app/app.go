package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vietanh2810/eventfinder-api/internal/api"
	"github.com/vietanh2810/eventfinder-api/internal/chat"
	"github.com/vietanh2810/eventfinder-api/internal/config"
	"github.com/vietanh2810/eventfinder-api/internal/db"
	"github.com/vietanh2810/eventfinder-api/internal/logger"
	"github.com/vietanh2810/eventfinder-api/internal/repository/dao"
)

const (
	configPath      = "./cmd/app/config.yml"
	shutdownTimeout = 15 * time.Second
)

func Start() error {
	conf, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize config -> %w", err)
	}

	if err = logger.Init(conf.API.Environment); err != nil {
		return fmt.Errorf("failed to initialize logger -> %w", err)
	}
	defer zap.L().Sync() //nolint:errcheck

	if err = logger.SetLevel(conf.API.LogLevel); err != nil {
		return fmt.Errorf("failed to set log level -> %w", err)
	}

	err = config.Watch(configPath, func(c *config.AppConfig) {
		if err := logger.SetLevel(c.API.LogLevel); err != nil {
			zap.L().Warn("log level not changed", zap.Error(err))
		}
	})
	if err != nil {
		zap.L().Warn("config hot reload disabled", zap.Error(err))
	}

	gormDB, err := openDatabase(conf)
	if err != nil {
		return fmt.Errorf("failed to initialize database -> %w", err)
	}

	if err = dao.InitTables(gormDB); err != nil {
		return fmt.Errorf("failed to migrate database -> %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channel, closeChannel, err := openChannel(ctx, conf.Chat)
	if err != nil {
		return fmt.Errorf("failed to initialize chat channel -> %w", err)
	}
	defer closeChannel()

	s := api.NewServer(conf, gormDB, channel)

	srv := &http.Server{
		Addr:              ":" + s.Config.API.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start the server -> %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down the server -> %w", err)
	}

	// Websocket connections are hijacked, so srv.Shutdown does not wait for
	// them.
	if err = s.Chat.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to close chat sessions -> %w", err)
	}

	return nil
}

func openDatabase(conf *config.AppConfig) (*gorm.DB, error) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return db.OpenPostgresWithURL(dbURL)
	}

	return db.Open(conf.Database)
}

// openChannel returns the room channel and a function releasing it. With
// Redis enabled, rooms span every instance sharing the same Redis.
func openChannel(ctx context.Context, conf *config.ChatConfig) (chat.Channel, func(), error) {
	hub := chat.NewHub()
	if conf.Redis == nil || !conf.Redis.Enabled {
		return hub, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("client.Ping -> %w", err)
	}

	relay := chat.NewRedisRelay(hub, client)
	go relay.Run(ctx)

	zap.L().Info("chat rooms relayed through redis", zap.String("address", conf.Redis.Address))
	return relay, func() { _ = client.Close() }, nil
}
