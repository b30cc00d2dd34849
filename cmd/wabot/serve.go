package main

import (
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"wabot/internal/channel"
	"wabot/internal/kwap"
)

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  "Serves the message webhook, WhatsApp webhook, admin API and metrics. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srvCfg := channel.ServerConfig{
				Config:   cfg.Server,
				WhatsApp: cfg.WhatsApp,
				Pipeline: a.pipeline,
				Forwarder: channel.NewN8N(channel.N8NConfig{
					WebhookURL: cfg.N8N.WebhookURL,
					Timeout:    time.Duration(cfg.N8N.TimeoutSeconds) * time.Second,
					Logger:     logger,
				}),
				Pensions: kwap.New(kwap.Config{
					URL:     cfg.KWAP.URL,
					APIKey:  cfg.KWAP.APIKey,
					Timeout: time.Duration(cfg.KWAP.TimeoutSeconds) * time.Second,
					Logger:  logger,
				}),
				Store:  a.store,
				Logger: logger,
			}
			if a.cache != nil {
				srvCfg.Cache = a.cache
			}
			if cfg.Metrics.Enabled {
				srvCfg.Collector = a.collector
				srvCfg.MetricsPath = cfg.Metrics.Endpoint
			}

			logger.Info("wabot starting",
				"version", version,
				"backend", a.backend,
				"database", cfg.Database.Driver,
				"redis", a.redis != nil,
				"whatsapp", cfg.WhatsApp.Enabled,
				"n8n", cfg.N8N.WebhookURL != "",
			)

			addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
			if err := channel.NewServer(srvCfg).Run(ctx, addr); err != nil {
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config and PORT)")
	return cmd
}
