package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wabot/internal/agent"
	"wabot/internal/config"
	"wabot/internal/domain"
	"wabot/internal/kwap"
	"wabot/internal/memory"
	"wabot/internal/metrics"
)

// Responder produces the assistant reply for one inbound message.
type Responder interface {
	Respond(ctx context.Context, req agent.Request) agent.Reply
}

// Forwarder hands outbound messages to the delivery workflow.
type Forwarder interface {
	Configured() bool
	Forward(ctx context.Context, msg Outbound) (any, error)
}

// PensionLookup resolves a pensioner by IC number.
type PensionLookup interface {
	Configured() bool
	Inquire(ctx context.Context, nokp string) (*kwap.Pensioner, error)
}

// AdminStore is the persistence surface behind the admin and history routes.
type AdminStore interface {
	domain.KnowledgeAdmin
	domain.AnalyticsStore
	domain.ProfileStore
	domain.ConversationStore
	agent.UserHistory
	CountConversations(ctx context.Context, from, to time.Time) (int64, error)
	CountActiveUsers(ctx context.Context, from, to time.Time) (int64, error)
	Status(ctx context.Context) memory.Status
}

// Purger drops cached knowledge lookups after admin writes.
type Purger interface {
	Purge()
}

// Server is the HTTP surface of the assistant.
type Server struct {
	cfg       config.ServerConfig
	pipeline  Responder
	forwarder Forwarder
	pensions  PensionLookup
	store     AdminStore
	cache     Purger
	whatsapp  *WhatsApp
	collector *metrics.MetricsCollector
	metrics   string
	limiter   *RateLimiter
	logger    *slog.Logger
}

type ServerConfig struct {
	Config    config.ServerConfig
	WhatsApp  config.WhatsAppConfig
	Pipeline  Responder
	Forwarder Forwarder
	Pensions  PensionLookup
	Store     AdminStore
	Cache     Purger // optional
	// Collector serves MetricsPath when set.
	Collector   *metrics.MetricsCollector
	MetricsPath string
	Logger      *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{
		cfg:       cfg.Config,
		pipeline:  cfg.Pipeline,
		forwarder: cfg.Forwarder,
		pensions:  cfg.Pensions,
		store:     cfg.Store,
		cache:     cfg.Cache,
		collector: cfg.Collector,
		metrics:   cfg.MetricsPath,
		logger:    cfg.Logger,
	}
	if cfg.Config.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.Config.RateLimit.MaxRequests,
			time.Duration(cfg.Config.RateLimit.WindowMs)*time.Millisecond)
	}
	if cfg.WhatsApp.Enabled {
		s.whatsapp = NewWhatsApp(WhatsAppChannelConfig{
			Config:   cfg.WhatsApp,
			Pipeline: cfg.Pipeline,
			Logger:   cfg.Logger,
		})
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger, s.collector))
	r.Use(middleware.Recoverer)
	r.Use(cors(s.cfg.AllowedOrigins, s.cfg.Environment == "development"))
	r.Use(bodyLimit(s.cfg.MaxBodyBytes))

	r.Get("/health", s.handleHealth)
	if s.collector != nil {
		r.Get(s.metrics, s.collector.Handler())
	}

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(rateLimit(s.limiter, s.logger))
		}

		r.Post("/webhook/message", s.handleWebhook)
		if s.whatsapp != nil {
			s.whatsapp.RegisterRoutes(r)
		}

		r.Route("/api", func(r chi.Router) {
			r.Post("/send", s.handleSend)
			r.Post("/kwap/inquiry", s.handleKWAPInquiry)
			r.Get("/conversation/{phone}", s.handleConversation)
			r.Route("/admin", func(r chi.Router) {
				r.Use(requireToken(s.cfg.AdminToken))
				s.registerAdminRoutes(r)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": timestamp(),
	})
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if s.limiter != nil {
		go s.sweep(ctx)
	}

	s.logger.Info("http server starting", "addr", addr, "environment", s.cfg.Environment)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if s.whatsapp != nil {
			s.whatsapp.Wait()
		}
		return err
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.limiter.Window())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Sweep(); n > 0 {
				s.logger.Debug("rate limiter swept idle clients", "removed", n)
			}
		}
	}
}
