/*
Package main is the entry point for the WNSChat server.

It is responsible for loading configuration, initializing the global logging system, opening the
grant store and the event publisher, starting the chat listener, the optional operator HTTP API
and the interactive console, and shutting everything down on SIGINT, SIGTERM or /stop.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wnschat/internal/app/chat"
	"wnschat/internal/app/events"
	"wnschat/internal/app/store"
	"wnschat/internal/app/user"
	"wnschat/internal/configs"
	"wnschat/internal/handler"
	"wnschat/internal/pkg/auth/jwt"
	"wnschat/internal/pkg/logx"
)

var configPath string

// rootCmd starts the chat server.
var rootCmd = &cobra.Command{
	Use:   "wnschat",
	Short: "WNSChat multi-user chat server",
	Long: `wnschat runs the chat server: the TCP listener, the optional operator HTTP API with
its WebSocket endpoint, and an interactive console on stdin.

Settings come from built-in defaults, an optional YAML file (--config, or ./wnschat.yaml)
and WNSCHAT_* environment variables, in increasing order of precedence.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := configs.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logx.InitGlobalLogger(logx.Options{
		Development: cfg.IsDevelopment(),
		Level:       cfg.Log.Level,
		FilePath:    cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		Compress:    cfg.Log.Compress,
	})
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("listen_address", cfg.ListenAddress).
		Int("port", cfg.Port).
		Int("http_port", cfg.HTTPPort).
		Bool("database", cfg.DatabaseURL != "").
		Bool("nats", cfg.NATSURL != "").
		Msg("Configuration loaded successfully")

	if err := run(ctx, cfg); err != nil {
		logx.Error(err, "Server stopped with an error")
		return err
	}

	logx.Info("Server gracefully stopped.")
	return nil
}

func run(ctx context.Context, cfg *configs.AppConfig) error {
	grants, err := openGrantStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer grants.Close()

	publisher, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	srv, err := chat.NewServer(chat.Options{
		ListenAddress: cfg.ListenAddress,
		Port:          cfg.Port,
		ServerName:    cfg.ServerName,
		Password:      cfg.Password,
		ConsoleName:   cfg.ConsoleName,
		ConsoleOutput: os.Stdout,
		SendQueueSize: cfg.SendQueueSize,
		WriteTimeout:  cfg.WriteTimeout,
		Grants:        grants,
		Events:        publisher,
	})
	if err != nil {
		return fmt.Errorf("failed to create chat server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	if cfg.HTTPPort > 0 {
		startOperatorAPI(gctx, g, cfg, srv)
	}

	go func() {
		if err := srv.RunConsole(gctx, os.Stdin); err != nil {
			logx.Error(err, "Console input failed")
		}
	}()

	return g.Wait()
}

func openGrantStore(ctx context.Context, cfg *configs.AppConfig) (store.GrantStore, error) {
	var grants store.GrantStore = store.NewMemory()

	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open grant store: %w", err)
		}
		grants = pg
	}

	for name, levelName := range cfg.Grants {
		level, err := user.ParsePermissionLevel(levelName)
		if err != nil {
			grants.Close()
			return nil, fmt.Errorf("invalid grant for %s: %w", name, err)
		}
		if err := grants.SetLevel(ctx, name, level, "config"); err != nil {
			grants.Close()
			return nil, fmt.Errorf("failed to seed grant for %s: %w", name, err)
		}
	}

	return grants, nil
}

func openPublisher(cfg *configs.AppConfig) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		return events.Nop{}, nil
	}

	publisher, err := events.NewNATS(cfg.NATSURL, cfg.NATSSubject, "wnschat-"+cfg.ServerName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return publisher, nil
}

// startOperatorAPI serves the operator API and /ws until the chat server stops or ctx ends.
func startOperatorAPI(ctx context.Context, g *errgroup.Group, cfg *configs.AppConfig, srv *chat.Server) {
	token, err := jwt.OperatorToken(srv.Console().Username(), cfg.APISecret)
	if err != nil {
		logx.Error(err, "Failed to mint operator token")
	} else {
		srv.Console().SendMessage("Operator API token (valid 24h): " + token)
	}

	addr := net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.HTTPPort))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(ctx, &handler.AppDeps{Server: srv, Config: cfg}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g.Go(func() error {
		logx.Info(fmt.Sprintf("Operator API starting on http://%s", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("operator API failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-srv.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("operator API forced to shutdown: %w", err)
		}
		return nil
	})
}
