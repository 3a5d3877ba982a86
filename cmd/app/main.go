package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"bingo_bot/internal/api"
	"bingo_bot/internal/bot"
	"bingo_bot/internal/middleware"
	"bingo_bot/internal/notify"
	"bingo_bot/internal/repository"
	"bingo_bot/internal/service"
	"bingo_bot/internal/session"
	"bingo_bot/internal/tasks"
	"bingo_bot/pkg/auth"
	"bingo_bot/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "bingo",
		Short:        "BinGo Telegram rewards bot",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to the config file (default ./config.yaml)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg)
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := setup(configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			repo, err := repository.New(cfg.Database)
			if err != nil {
				return err
			}
			return repo.Close()
		},
	}

	listTasks := &cobra.Command{
		Use:   "tasks",
		Short: "Validate and print the task catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return err
			}

			catalog, err := tasks.Load(cfg.Tasks.ConfigPath)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tPOINTS\tTITLE\tCHANNEL")
			for _, t := range catalog.Tasks {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", t.ID, t.Kind, t.Points, t.Title, t.ChannelRef)
			}
			return w.Flush()
		},
	}

	root.AddCommand(serve, migrate, listTasks)
	root.RunE = serve.RunE

	return root
}

func setup(configFile string) (*Config, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return nil, err
	}

	return cfg, nil
}

func serve(parent context.Context, cfg *Config) error {
	zapLogger := logger.Logger()

	if err := cfg.validate(); err != nil {
		zapLogger.Error("Invalid configuration", zap.Error(err))
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Database)
	if err != nil {
		zapLogger.Error("Failed to initialize repository", zap.Error(err))
		return err
	}
	defer repo.Close()

	sessions, closeSessions, err := session.NewStore(ctx, cfg.Sessions)
	if err != nil {
		zapLogger.Error("Failed to initialize session store", zap.Error(err))
		return err
	}
	defer closeSessions()

	gateway, err := bot.NewTelegramGateway(cfg.Telegram)
	if err != nil {
		zapLogger.Error("Failed to initialize telegram gateway", zap.Error(err))
		return err
	}
	if cfg.Telegram.BotUsername == "" {
		cfg.Telegram.BotUsername = gateway.Username()
	}

	hub := notify.NewHub()
	registry := tasks.NewRegistry(cfg.Tasks.ConfigPath)
	ledgerService := service.NewLedgerService(repo, cfg.Ledger, cfg.Wallet, hub)
	taskService := service.NewTaskService(ledgerService, repo, registry, bot.NewMembershipChecker(gateway))
	svc := service.NewService(ledgerService, taskService)

	b := bot.New(gateway, svc.LedgerService, svc.TaskService, sessions, cfg.Telegram, cfg.Broadcast)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           newRouter(cfg, svc, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		zapLogger.Info("Starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		gateway.Poll(ctx, b.HandleEvent)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			zapLogger.Error("Server failed", zap.Error(err))
		}
		stop()
	}

	zapLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("Server shutdown failed", zap.Error(err))
	}

	<-pollDone
	b.Wait()

	return nil
}

func newRouter(cfg *Config, svc *service.Service, hub *notify.Hub) *gin.Engine {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{
		http.MethodHead,
		http.MethodGet,
		http.MethodOptions,
	}
	corsConfig.AllowHeaders = []string{"*"}
	corsConfig.MaxAge = 12 * time.Hour

	router.Use(cors.New(corsConfig))

	telegramAuth := auth.NewTelegramAuth(cfg.Telegram.BotToken, cfg.MiniApp.Debug)
	authorization := middleware.NewAuthorization(cfg.Telegram.AdminID)

	api.NewHealthRoutes(router)

	a := router.Group("/api/v1")
	api.NewUserRoutes(a, svc.LedgerService, svc.TaskService, telegramAuth)
	api.NewAdminRoutes(a, svc.LedgerService, svc.TaskService, telegramAuth, authorization)
	api.NewEventRoutes(a, hub, telegramAuth)

	return router
}
