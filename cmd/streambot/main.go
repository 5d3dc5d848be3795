package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"streambot/internal/bus"
	"streambot/internal/channel"
	"streambot/internal/config"
	"streambot/internal/metrics"
	"streambot/internal/persona"
	"streambot/internal/pipeline"
	"streambot/internal/provider"
	"streambot/internal/registry"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// A .env next to the binary is convenient for tokens during development.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "streambot",
		Short: "StreamBot: an LLM chat bot for live stream chats",
		Long:  "StreamBot watches Twitch and Telegram chats, batches questions to an AI backend, and replies in-channel.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.streambot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(channelsCmd())
	root.AddCommand(statusCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfigOrDefaults() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(config.DefaultConfigDir(), 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			// Force CLI-only regardless of what the config enables.
			cfg.Channels.Twitch.Enabled = false
			cfg.Channels.Telegram.Enabled = false
			cfg.Channels.CLI.Enabled = true
			cfg.Metrics.Enabled = false
			return runBot(cfg)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot with all enabled channels",
		Long:  "Starts the pipeline and every channel enabled in the config. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runBot(cfg)
		},
	}
}

func runBot(cfg *config.Config) error {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.General.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	preamble, err := persona.Load(cfg.General.PersonaFile, cfg.General.Persona, logger)
	if err != nil {
		return fmt.Errorf("persona: %w", err)
	}

	gen, err := provider.New(provider.Settings{
		Backend:        cfg.Provider.Backend,
		BaseURL:        cfg.Provider.BaseURL,
		APIKey:         cfg.Provider.APIKey,
		Model:          cfg.Provider.Model,
		TimeoutSeconds: cfg.Provider.TimeoutSeconds,
	}, logger)
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if err := gen.Healthy(ctx); err != nil {
		logger.Warn("backend unhealthy at startup", "provider", gen.Name(), "err", err)
	} else {
		logger.Info("backend healthy", "provider", gen.Name())
	}

	messageBus := bus.New(cfg.Pipeline.BusBuffer, logger)

	pipe := pipeline.New(pipeline.Config{
		Bus:             messageBus,
		Generator:       gen,
		Logger:          logger,
		BotName:         cfg.General.BotName,
		CommandPrefix:   cfg.General.CommandPrefix,
		Preamble:        preamble,
		BatchSize:       cfg.Pipeline.BatchSize,
		BatchPollTime:   cfg.Pipeline.BatchPollTimeout(),
		IdleInterval:    cfg.Pipeline.IdleInterval(),
		MaxHistoryTurns: cfg.Pipeline.MaxHistoryTurns,
		MaxHistoryAge:   cfg.Pipeline.MaxHistoryAge(),
		ChunkSize:       cfg.Pipeline.OutboundChunkSize,
		MaxTokens:       cfg.Pipeline.MaxTokens,
	})
	go pipe.Run(ctx)

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Port)
	}

	var twitchCh *channel.Twitch
	if cfg.Channels.Twitch.Enabled {
		reg, err := registry.NewSQLite(cfg.Registry.DBPath, logger)
		if err != nil {
			return fmt.Errorf("channel registry: %w", err)
		}
		defer reg.Close()

		rooms, err := reg.ListChannels(ctx)
		if err != nil {
			return fmt.Errorf("list channels: %w", err)
		}
		if len(rooms) == 0 {
			return fmt.Errorf("twitch is enabled but no channels are registered; run `streambot channels add <name>`")
		}

		twitchCh = channel.NewTwitch(channel.TwitchConfig{
			Token:    cfg.Channels.Twitch.Token,
			Nick:     cfg.Channels.Twitch.Nick,
			Channels: rooms,
			Logger:   logger,
		})
		go func() {
			if err := twitchCh.Start(ctx, messageBus); err != nil {
				logger.Error("twitch channel error", "err", err)
			}
		}()
		logger.Info("twitch channel enabled", "rooms", rooms)
	}

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:  cfg.Channels.Telegram.Token,
			Logger: logger,
		})
		go func() {
			if err := telegramCh.Start(ctx, messageBus); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
		logger.Info("telegram channel enabled")
	}

	if cfg.Channels.CLI.Enabled {
		cliCh := channel.NewCLI(channel.CLIConfig{Logger: logger})
		go func() {
			if err := cliCh.Start(ctx, messageBus); err != nil {
				logger.Error("cli channel error", "err", err)
			}
			stop() // /quit or EOF ends the process
		}()
	}

	logger.Info("streambot started", "version", version)
	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if twitchCh != nil {
			_ = twitchCh.Stop()
		}
		if telegramCh != nil {
			_ = telegramCh.Stop()
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func serveMetrics(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", metrics.Collector.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "err", err)
	}
}

func channelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Manage the Twitch channels the bot joins",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add [name]",
		Short: "Register a channel to join on startup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			reg, err := registry.NewSQLite(cfg.Registry.DBPath, logger)
			if err != nil {
				return err
			}
			defer reg.Close()

			if err := reg.AddChannel(cmd.Context(), args[0]); err != nil {
				return err
			}
			logger.Info("channel registered", "name", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			reg, err := registry.NewSQLite(cfg.Registry.DBPath, logger)
			if err != nil {
				return err
			}
			defer reg.Close()

			rooms, err := reg.ListChannels(cmd.Context())
			if err != nil {
				return err
			}
			if len(rooms) == 0 {
				fmt.Println("no channels registered")
				return nil
			}
			for _, room := range rooms {
				fmt.Println(room)
			}
			return nil
		},
	})

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show config, backend, and registry status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			ctx := cmd.Context()
			gen, err := provider.New(provider.Settings{
				Backend:        cfg.Provider.Backend,
				BaseURL:        cfg.Provider.BaseURL,
				APIKey:         cfg.Provider.APIKey,
				Model:          cfg.Provider.Model,
				TimeoutSeconds: cfg.Provider.TimeoutSeconds,
			}, logger)
			if err != nil {
				logger.Info("backend", "configured", false, "err", err)
				return nil
			}
			if err := gen.Healthy(ctx); err != nil {
				logger.Info("backend", "provider", gen.Name(), "healthy", false, "err", err)
			} else {
				info, err := gen.Info(ctx)
				if err == nil {
					logger.Info("backend", "provider", gen.Name(), "healthy", true, "model", info.Model, "device", info.Device)
				} else {
					logger.Info("backend", "provider", gen.Name(), "healthy", true)
				}
			}

			reg, err := registry.NewSQLite(cfg.Registry.DBPath, logger)
			if err == nil {
				defer reg.Close()
				if rooms, err := reg.ListChannels(ctx); err == nil {
					logger.Info("registry", "channels", len(rooms))
				}
			}
			return nil
		},
	}
}
