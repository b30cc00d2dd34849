package agent

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"wabot/internal/domain"
	"wabot/internal/intent"
)

// Exchange is everything the recorder persists about one reply.
type Exchange struct {
	UserID         string
	UserName       string
	UserMessage    string
	Reply          string
	Intent         intent.Intent
	Model          string
	ResponseTimeMs int64
	KnowledgeHits  int
}

// Recorder writes metrics, the profile update and both conversation turns.
// Every write is best-effort: failures are logged and the rest proceed.
type Recorder struct {
	metrics       domain.MetricsSink
	profiles      domain.ProfileStore
	conversations domain.ConversationStore
	logger        *slog.Logger
	now           func() time.Time
}

type RecorderConfig struct {
	Metrics       domain.MetricsSink // optional
	Profiles      domain.ProfileStore
	Conversations domain.ConversationStore
	Logger        *slog.Logger
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Recorder{
		metrics:       cfg.Metrics,
		profiles:      cfg.Profiles,
		conversations: cfg.Conversations,
		logger:        cfg.Logger,
		now:           time.Now,
	}
}

// Record persists ex. The three metric writes run concurrently and all
// finish before the profile and turns are written.
func (r *Recorder) Record(ctx context.Context, ex Exchange) {
	label := ex.Intent.String()
	if r.metrics != nil {
		var g errgroup.Group
		r.metric(ctx, &g, domain.MetricResponseTime, float64(ex.ResponseTimeMs), map[string]string{"model": ex.Model, "intent": label})
		r.metric(ctx, &g, domain.MetricKnowledgeBaseHits, float64(ex.KnowledgeHits), map[string]string{"intent": label})
		r.metric(ctx, &g, domain.MetricIntentDetected, 1, map[string]string{"intent": label})
		g.Wait()
	}

	if r.profiles != nil {
		pc := domain.ProfileContext{LastIntent: label, LastInteraction: r.now().UTC()}
		if err := r.profiles.UpsertProfile(ctx, ex.UserID, ex.UserName, pc); err != nil {
			r.logger.Error("profile update failed", "user", ex.UserID, "err", err)
		}
	}

	if r.conversations == nil {
		return
	}
	turns := []domain.ConversationTurn{
		{UserID: ex.UserID, UserName: ex.UserName, Role: domain.RoleUser, Content: ex.UserMessage},
		{UserID: ex.UserID, Role: domain.RoleAssistant, Content: ex.Reply, Model: ex.Model, ResponseTimeMs: ex.ResponseTimeMs},
	}
	for _, t := range turns {
		if err := r.conversations.AppendTurn(ctx, t); err != nil {
			r.logger.Error("save conversation turn failed", "user", ex.UserID, "role", t.Role, "err", err)
		}
	}
}

func (r *Recorder) metric(ctx context.Context, g *errgroup.Group, name string, value float64, tags map[string]string) {
	g.Go(func() error {
		if err := r.metrics.RecordMetric(ctx, name, value, tags); err != nil {
			r.logger.Warn("record metric failed", "metric", name, "value", strconv.FormatFloat(value, 'f', -1, 64), "err", err)
		}
		return nil
	})
}
