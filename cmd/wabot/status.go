package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"wabot/internal/config"
	"wabot/internal/memory"
	"wabot/internal/provider"
)

// checks tallies the outcome of status checks.
type checks struct {
	passed, warned, failed int
}

func (c *checks) pass(check, detail string) {
	c.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (c *checks) fail(check, detail string) {
	c.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func (c *checks) warn(check, detail string) {
	c.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Run diagnostic checks on the configuration and its services",
		Long: `Verifies that the configuration loads, the database is reachable and
seeded, and reports which model backend and integrations are configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("WABOT status v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var c checks
			cfg, err := loadConfig()
			if err != nil {
				c.fail("Config", err.Error())
				return summarize(c)
			}
			c.pass("Config", resolveConfigPath())

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			checkDatabase(ctx, cfg, &c)
			checkRedis(ctx, cfg, &c)

			switch b := provider.SelectBackend(provider.Config{
				OpenAIKey: cfg.Providers.OpenAI.APIKey,
				GeminiKey: cfg.Providers.Gemini.APIKey,
			}); b {
			case provider.Primary:
				c.pass("Model backend", "OpenAI "+cfg.Providers.OpenAI.Model)
			case provider.Secondary:
				c.pass("Model backend", "Gemini "+cfg.Providers.Gemini.Model)
			default:
				c.warn("Model backend", "no API key, replies use templates only")
			}

			if cfg.N8N.WebhookURL != "" {
				c.pass("n8n", "forwarding replies")
			} else {
				c.warn("n8n", "N8N_WEBHOOK_URL not set, replies are not forwarded")
			}
			if cfg.KWAP.APIKey != "" {
				c.pass("KWAP", cfg.KWAP.URL)
			} else {
				c.warn("KWAP", "KWAP_API_KEY not set, inquiries disabled")
			}
			if cfg.WhatsApp.Enabled {
				c.pass("WhatsApp", "webhook at "+cfg.WhatsApp.WebhookPath)
			}

			if err := checkPort(cfg.Server.Port); err != nil {
				c.warn("HTTP port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				c.pass("HTTP port", fmt.Sprintf(":%d available", cfg.Server.Port))
			}

			return summarize(c)
		},
	}
}

func checkDatabase(ctx context.Context, cfg *config.Config, c *checks) {
	store, err := openStore(cfg)
	if err != nil {
		c.fail("Database", err.Error())
		return
	}
	defer store.Close()

	st := store.Status(ctx)
	if !st.Connected {
		c.fail("Database", st.Error)
		return
	}
	c.pass("Database", fmt.Sprintf("%s, schema v%d", st.Driver, st.SchemaVersion))

	n, err := store.CountKnowledge(ctx)
	switch {
	case err != nil:
		c.fail("Knowledge base", err.Error())
	case n == 0:
		c.warn("Knowledge base", "empty, run 'wabot seed'")
	default:
		c.pass("Knowledge base", strconv.Itoa(n)+" entries")
	}
}

func checkRedis(ctx context.Context, cfg *config.Config, c *checks) {
	if cfg.Redis.URL == "" {
		return
	}
	client, err := memory.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		c.warn("Redis", err.Error())
		return
	}
	client.Close()
	c.pass("Redis", "history cache reachable")
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func summarize(c checks) error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", c.passed, c.warned, c.failed)
	if c.failed > 0 {
		return fmt.Errorf("%d check(s) failed", c.failed)
	}
	return nil
}
