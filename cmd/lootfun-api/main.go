package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lootfun/internal/api"
	"lootfun/internal/bus"
	"lootfun/internal/config"
	"lootfun/internal/game"
	"lootfun/internal/sched"

	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	clock := sched.SystemClock()
	table := sched.New(clock)
	events := bus.New(logger)
	board := bus.NewLeaderboard()
	board.Attach(events)
	feed := bus.NewFeed(table, bus.FeedOptions{Capacity: cfg.FeedCapacity, Lifetime: cfg.FeedLifetime})
	feed.Attach(events, "feed")
	ticker := bus.NewTicker(table)
	ticker.Attach(events, "ticker")
	if cfg.Crowd {
		rng := game.DefaultRNG()
		bus.SeedLeaders(board, rng)
		bus.NewCrowd(events, rng).Start(table, cfg.CrowdEvery)
	}

	server := api.New(ctx, cfg, logger, api.Deps{
		Bus:         events,
		Leaderboard: board,
		Feed:        feed,
		Ticker:      ticker,
		Clock:       clock,
		Scheduler:   table,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return table.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("lootfun api listening", "addr", cfg.Addr, "crowd", cfg.Crowd, "fair", cfg.ServerSeed != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		server.Close()
		table.Close()
		logger.Info("lootfun api stopped")
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
