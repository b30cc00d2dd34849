package config

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           3000,
			Environment:    "production",
			AllowedOrigins: []string{"http://localhost:3000"},
			MaxBodyBytes:   10 << 20,
			RateLimit: RateLimitConfig{
				Enabled:     true,
				WindowMs:    15 * 60 * 1000,
				MaxRequests: 100,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			Path:     "~/.wabot/wabot.db",
			Port:     3306,
			MaxConns: 10,
		},
		Redis: RedisConfig{
			HistoryTTLHours: 24,
			HistoryMax:      50,
		},
		Providers: ProvidersConfig{
			OpenAI:         ProviderConfig{Model: "gpt-3.5-turbo"},
			Gemini:         ProviderConfig{Model: "gemini-1.5-pro"},
			TimeoutSeconds: 30,
		},
		WhatsApp: WhatsAppConfig{
			Enabled:     false,
			WebhookPath: "/webhook/whatsapp",
		},
		N8N: N8NConfig{
			TimeoutSeconds: 10,
		},
		KWAP: KWAPConfig{
			URL:            "https://apim.kwap.my/ws/PortalServiceInquireEmass/1.0",
			TimeoutSeconds: 30,
		},
		Knowledge: KnowledgeConfig{
			CacheSize:       256,
			CacheTTLSeconds: 300,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
