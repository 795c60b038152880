package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"relaybot/internal/bus"
	"relaybot/internal/channel"
	"relaybot/internal/config"
	"relaybot/internal/domain"
	"relaybot/internal/health"
	"relaybot/internal/journal"
	"relaybot/internal/provider"
	"relaybot/internal/relay"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "relaybot",
		Short: "relaybot: Telegram bot for Gemini chat, vision and image generation",
		Long: "relaybot relays Telegram messages to Google Gemini, describes photos, " +
			"and draws images with /draw. Configuration comes from the environment " +
			"(BOT_TOKEN, GEMINI_API_KEY, ...) and an optional config file.",
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.relaybot/config.json)")

	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

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

// newLogger builds the process logger from config. The returned closer
// releases the log file, if any.
func newLogger(cfg config.GeneralConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	var out io.Writer = os.Stderr
	closer := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closer, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bot and the liveness server",
		Long:  "Long-polls Telegram, handles messages and serves GET / for liveness probes. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := newLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	generator := provider.NewGenerator(cfg.Gemini, logger)
	images, err := provider.NewImageGenerator(cfg.Image, logger)
	if err != nil {
		return fmt.Errorf("image generator: %w", err)
	}

	var requests domain.Journal
	if cfg.Journal.Enabled {
		j, err := journal.NewSQLite(cfg.Journal.DBPath, logger)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer j.Close()
		requests = j
	}

	telegram := channel.NewTelegram(channel.TelegramConfig{
		Token:              cfg.Telegram.Token,
		ParseMode:          cfg.Telegram.ParseMode,
		PollTimeoutSeconds: cfg.Telegram.PollTimeoutSeconds,
		MaxDownloadBytes:   cfg.Telegram.MaxDownloadBytes,
		APIEndpoint:        cfg.Telegram.APIEndpoint,
		Logger:             logger,
	})
	if err := telegram.Connect(); err != nil {
		return err
	}
	var source domain.Channel = telegram

	router := relay.NewRouter(relay.RouterConfig{
		Bus:            messageBus,
		Messenger:      telegram,
		Generator:      generator,
		Images:         images,
		Journal:        requests,
		Logger:         logger,
		MaxConcurrent:  cfg.General.MaxConcurrentEvents,
		MaxReplyRunes:  cfg.General.MaxReplyRunes,
		VisionPrompt:   cfg.General.VisionPrompt,
		Translate:      cfg.Image.Translate,
		SeedMax:        int64(cfg.Image.SeedMax),
		Width:          cfg.Image.Width,
		Height:         cfg.Image.Height,
		MaxPromptRunes: cfg.Image.MaxPromptRunes,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return source.Start(gctx, messageBus) })
	g.Go(func() error { return router.Run(gctx) })
	if cfg.Health.Enabled {
		srv := health.NewServer(health.Config{
			Host:    cfg.Health.Host,
			Port:    cfg.Health.Port,
			Version: version,
			Logger:  logger,
		})
		g.Go(func() error { return srv.Start(gctx) })
	}

	imageBackend := "disabled"
	if images != nil {
		imageBackend = images.Name()
	}
	logger.Info("relaybot started. Press Ctrl+C to stop.",
		"version", version,
		"channel", source.Name(),
		"model", generator.Model(),
		"image_backend", imageBackend,
		"parse_mode", cfg.Telegram.ParseMode,
		"journal", cfg.Journal.Enabled,
	)

	err = g.Wait()
	logger.Info("relaybot stopped")
	return err
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long: "Get, set, and list configuration file values. The environment is not " +
			"applied here, so secrets set via BOT_TOKEN etc. are never written to the file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. gemini.model)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. image.backend inference)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.LoadFile(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	var flat bool
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"show"},
		Short:   "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			if flat {
				paths := config.ListPaths(sanitized)
				keys := make([]string, 0, len(paths))
				for k := range paths {
					keys = append(keys, k)
				}
				slices.Sort(keys)
				for _, k := range keys {
					fmt.Printf("%s = %v\n", k, paths[k])
				}
				return nil
			}
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	list.Flags().BoolVar(&flat, "flat", false, "print one dotted path per line")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relaybot %s\n", strings.TrimSpace(version))
		},
	}
}
