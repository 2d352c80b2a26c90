package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/mailforge/bulksender/internal/api"
	"github.com/mailforge/bulksender/internal/config"
	"github.com/mailforge/bulksender/internal/mailing"
	"github.com/mailforge/bulksender/internal/pkg/logger"
	"github.com/mailforge/bulksender/internal/repository/memory"
	"github.com/mailforge/bulksender/internal/repository/postgres"
	"github.com/mailforge/bulksender/internal/service/campaign"
	"github.com/mailforge/bulksender/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	store := memory.NewStore()
	ctx := context.Background()
	for _, acct := range cfg.Accounts {
		if _, err := store.AddAccount(ctx, acct); err != nil {
			logger.Warn("skipping configured account", "account", acct.Label(), "error", err.Error())
		}
	}

	// Campaigns persist to Postgres when configured, otherwise stay in
	// memory with everything else.
	var repo campaign.Repository = store
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			logger.Error("open postgres", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Error("ping postgres", "error", err.Error())
			os.Exit(1)
		}
		repo = postgres.NewCampaignRepo(db)
		logger.Info("using postgres campaign repository")
	}

	// Redis enables per-account send caps; without it, caps are not
	// enforced.
	var gate worker.RateGate
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("ping redis", "error", err.Error())
			os.Exit(1)
		}
		gate = mailing.NewAccountRateLimiter(rdb)
		logger.Info("send caps enforced via redis", "addr", cfg.Redis.Addr)
	}

	manager := worker.NewManager()
	svc := campaign.NewService(repo, store, store, manager, gate)
	handlers := api.NewHandlers(svc, store, mailing.NewSMTPMailer())
	server := api.NewServer(cfg.Server, handlers)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server stopped", "error", err.Error())
		os.Exit(1)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err.Error())
	}
	// Running campaigns stop at the next recipient boundary.
	manager.Shutdown()
	logger.Info("shutdown complete")
}
