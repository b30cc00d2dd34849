package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"wabot/internal/domain"
	"wabot/internal/intent"
	"wabot/internal/knowledge"
	"wabot/internal/provider"
)

// IntentError is the intent label reported when the pipeline itself fails.
const IntentError = "error"

// Request is one inbound message.
type Request struct {
	UserID   string
	UserName string
	Message  string
}

// Reply is the text sent back plus metadata for logging and the API.
type Reply struct {
	Text           string `json:"response"`
	Intent         string `json:"intent"`
	KnowledgeUsed  bool   `json:"knowledgeUsed"`
	KnowledgeHits  int    `json:"knowledgeHits"`
	ResponseTimeMs int64  `json:"responseTime"`
	Model          string `json:"model"`
}

// Pipeline runs classify, retrieve, assemble, generate and record for each
// message. It is safe for concurrent use.
type Pipeline struct {
	retriever     *knowledge.Retriever
	generator     *Generator
	recorder      *Recorder
	profiles      domain.ProfileStore
	conversations domain.ConversationStore
	logger        *slog.Logger
}

type PipelineConfig struct {
	Retriever     *knowledge.Retriever
	Generator     *Generator
	Recorder      *Recorder
	Profiles      domain.ProfileStore
	Conversations domain.ConversationStore
	Logger        *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		retriever:     cfg.Retriever,
		generator:     cfg.Generator,
		recorder:      cfg.Recorder,
		profiles:      cfg.Profiles,
		conversations: cfg.Conversations,
		logger:        cfg.Logger,
	}
}

// Respond always produces a reply. Backend failures degrade to the
// template fallback; anything else yields ErrorReply.
func (p *Pipeline) Respond(ctx context.Context, req Request) (reply Reply) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic", "user", req.UserID, "panic", r, "stack", string(debug.Stack()))
			reply = errorReply(start)
		}
	}()

	reply, err := p.respond(ctx, req, start)
	if err != nil {
		p.logger.Error("pipeline failed", "user", req.UserID, "err", err)
		return errorReply(start)
	}
	return reply
}

func (p *Pipeline) respond(ctx context.Context, req Request, start time.Time) (Reply, error) {
	in := intent.Classify(req.Message)
	entries := p.retriever.Retrieve(ctx, req.Message, in)

	var (
		profile *domain.UserProfile
		history []domain.ConversationTurn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if p.profiles != nil {
			profile, err = p.profiles.GetProfile(gctx, req.UserID)
		}
		if err != nil {
			return fmt.Errorf("get profile: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if p.conversations == nil {
			return nil
		}
		turns, err := p.conversations.RecentTurns(gctx, req.UserID, HistoryWindow)
		if err != nil {
			p.logger.Warn("load history failed", "user", req.UserID, "err", err)
			return nil
		}
		history = turns
		return nil
	})
	if err := g.Wait(); err != nil {
		return Reply{}, err
	}

	rc := Assemble(req.Message, in, entries, profile, history)
	gen, err := p.generator.Generate(ctx, rc, req.Message)
	if err != nil {
		p.logger.Error("model backend failed, using fallback", "user", req.UserID, "intent", in, "err", err)
		gen = Generation{Text: Fallback(in, req.Message, entries), Model: provider.None.ModelID()}
	}

	elapsed := time.Since(start).Milliseconds()
	if p.recorder != nil {
		// The reply is committed; a caller that hangs up now must not undo it.
		p.recorder.Record(context.WithoutCancel(ctx), Exchange{
			UserID:         req.UserID,
			UserName:       req.UserName,
			UserMessage:    req.Message,
			Reply:          gen.Text,
			Intent:         in,
			Model:          gen.Model,
			ResponseTimeMs: elapsed,
			KnowledgeHits:  len(entries),
		})
	}

	p.logger.Info("reply generated", "user", req.UserID, "intent", in, "knowledge", len(entries), "model", gen.Model, "ms", elapsed)
	return Reply{
		Text:           gen.Text,
		Intent:         in.String(),
		KnowledgeUsed:  len(entries) > 0,
		KnowledgeHits:  len(entries),
		ResponseTimeMs: elapsed,
		Model:          gen.Model,
	}, nil
}

func errorReply(start time.Time) Reply {
	return Reply{
		Text:           ErrorReply,
		Intent:         IntentError,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		Model:          provider.None.ModelID(),
	}
}
