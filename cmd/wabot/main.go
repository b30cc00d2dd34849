package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"wabot/internal/agent"
	"wabot/internal/config"
	"wabot/internal/domain"
	"wabot/internal/knowledge"
)

var (
	version    = "1.0.0"
	logger     *slog.Logger
	configPath string   // overridable via --config flag
	envFiles   []string // overridable via --env-file flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:           "wabot",
		Short:         "WABOT: WhatsApp business assistant backend",
		Long:          "WABOT answers WhatsApp messages from a curated knowledge base with OpenAI or Gemini, and forwards replies through n8n.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.wabot/config.json)")
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")

	root.AddCommand(serveCmd())
	root.AddCommand(initCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(askCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("wabot", version)
		},
	})

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "err", err)
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

// loadConfig loads .env files, then the config file (or defaults) with
// environment overrides, and rebuilds the logger from the result.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	l, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger = l
	return cfg, nil
}

func newLogger(lc config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if lc.File != "" {
		if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and prepare the database",
		Long:  "Creates ~/.wabot/config.json, applies database migrations and seeds the knowledge base when it is empty.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			if _, err := os.Stat(cfgPath); err == nil && !force {
				logger.Info("config already exists, keeping it", "config", cfgPath)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			} else {
				if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
					return err
				}
				if err := config.Save(cfgPath, config.Defaults()); err != nil {
					return err
				}
				logger.Info("config written", "config", cfgPath)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			n, err := store.CountKnowledge(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("knowledge base not empty, skipping seed", "entries", n)
				return nil
			}
			entries, err := seedEntries(cfg.Knowledge.SeedFile)
			if err != nil {
				return err
			}
			_, err = knowledge.Seed(ctx, store, entries, false, logger)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func seedCmd() *cobra.Command {
	var (
		file  string
		reset bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load knowledge base entries",
		Long:  "Loads the built-in sample knowledge base, or entries from a YAML file. --reset clears existing entries first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Knowledge.SeedFile
			}
			entries, err := seedEntries(file)
			if err != nil {
				return err
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			n, err := knowledge.Seed(ctx, store, entries, reset, logger)
			if err != nil {
				return err
			}
			total, err := store.CountKnowledge(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d entries (%d in knowledge base)\n", n, total)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML seed file (default: built-in sample data)")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete existing entries before seeding")
	return cmd
}

func seedEntries(file string) ([]domain.KnowledgeEntry, error) {
	if file == "" {
		return knowledge.DefaultSeed()
	}
	return knowledge.LoadSeedFile(config.ExpandPath(file))
}

func askCmd() *cobra.Command {
	var (
		from string
		name string
	)
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run one message through the assistant and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			reply := a.pipeline.Respond(ctx, agent.Request{
				UserID:   from,
				UserName: name,
				Message:  strings.Join(args, " "),
			})
			fmt.Println(reply.Text)
			fmt.Fprintf(os.Stderr, "\nintent=%s model=%s knowledge=%d time=%dms\n",
				reply.Intent, reply.Model, reply.KnowledgeHits, reply.ResponseTimeMs)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "cli", "sender phone number")
	cmd.Flags().StringVar(&name, "name", "", "sender display name")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. server.port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
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
		Short: "Set a config value (e.g. server.rateLimit.maxRequests 200)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.ListPaths(config.Sanitize(cfg)), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
