package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Wardmisp/Bingo/internal/gateway"
	"github.com/Wardmisp/Bingo/internal/httpapi"
	"github.com/Wardmisp/Bingo/internal/persist"
	"github.com/Wardmisp/Bingo/internal/poller"
	"github.com/Wardmisp/Bingo/internal/session"
	"github.com/Wardmisp/Bingo/internal/stream"
)

const shutdownTimeout = 5 * time.Second

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "bingo-session.json"
	}
	return filepath.Join(dir, "bingo", "session.json")
}

func newLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openKeeper(cfg *Config) (persist.Keeper, func() error, error) {
	if cfg.databaseURL != "" {
		db, err := persist.OpenDB(cfg.databaseURL)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}
	return persist.NewFile(cfg.stateFile), func() error { return nil }, nil
}

func run(parent context.Context, cfg *Config) (err error) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	policy, err := poller.ParseErrorPolicy(cfg.pollErrorPolicy)
	if err != nil {
		return err
	}

	keeper, closeKeeper, err := openKeeper(cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeKeeper()) }()

	gw := gateway.New(cfg.serverURL,
		gateway.WithLogger(logger.Named("gateway")),
		gateway.WithTimeout(cfg.requestTimeout))
	tr := stream.New(cfg.serverURL,
		stream.WithLogger(logger.Named("stream")),
		stream.WithIdleTimeout(cfg.streamIdleTimeout))

	store := session.New(ctx, gw, tr,
		session.WithLogger(logger),
		session.WithKeeper(keeper),
		session.WithPollInterval(cfg.pollInterval),
		session.WithPollErrorPolicy(policy),
		session.WithReconnectDelay(cfg.reconnectDelay),
		session.WithAutoStream(cfg.autoStream))
	defer store.Close()

	if sess, ok, err := store.Restore(ctx); err != nil {
		logger.Warn("could not restore saved session", zap.Error(err))
	} else if ok {
		logger.Info("resuming saved session", zap.String("game_id", sess.GameID))
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           httpapi.SetupRoutes(store, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving local ui",
			zap.String("addr", "http://"+srv.Addr),
			zap.String("server_url", cfg.serverURL),
			zap.String("version", releaseVersion))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutting down")
	return err
}
