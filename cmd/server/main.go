package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"missionhub/internal/app"
	grpcProtocol "missionhub/internal/protocols/grpc"
	httpProtocol "missionhub/internal/protocols/http"
	wsProtocol "missionhub/internal/protocols/websocket"
	"missionhub/pkg/config"
	"missionhub/pkg/logger"
)

// reconcileBatch bounds the startup credit recovery pass
const reconcileBatch = 500

func main() {
	configPath := flag.String("config", "./configs/development.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting missionhub server...")
	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to initialise: %v", err)
	}
	defer a.Close()

	// Finish crediting attempts a previous process finalized but never credited.
	if n, err := a.Engine.ReconcileCredits(ctx, reconcileBatch); err != nil {
		logger.Errorf("credit reconciliation failed after %d attempts: %v", n, err)
	}

	hub := wsProtocol.NewHub(a.Bus)
	wsHandler := wsProtocol.NewHandler(ctx, hub, a.Tokens, cfg.Server.AllowedOrigins)
	httpServer := httpProtocol.NewServer(cfg, httpProtocol.Options{
		Engine:        a.Engine,
		Tokens:        a.Tokens,
		Store:         a.Store,
		Notifications: wsHandler.Serve,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpServer.Run(gctx, cfg.HTTPAddr())
	})
	if cfg.GRPC.Enabled {
		grpcServer := grpcProtocol.NewServer(cfg.GRPCAddr(), a.Store)
		g.Go(func() error {
			return grpcServer.Run(gctx)
		})
	}
	if a.RedisBus != nil {
		g.Go(func() error {
			return a.RedisBus.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		hub.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server stopped with error: %v", err)
		os.Exit(1)
	}
	logger.Info("missionhub server stopped")
}
