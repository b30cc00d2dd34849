package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"wabot/internal/domain"
)

const (
	historyKeyPrefix  = "wabot:history:"
	defaultHistoryTTL = 24 * time.Hour
	defaultHistoryMax = 50
)

// RedisHistory is a read-through cache of recent conversation turns in
// front of a durable ConversationStore.
//
// Appends go to the durable store first and are pushed only onto lists that
// are already cached; a missing list is rebuilt from the durable store on
// the next read.
type RedisHistory struct {
	client *redis.Client
	next   domain.ConversationStore
	ttl    time.Duration
	max    int64
	logger *slog.Logger
}

type RedisHistoryConfig struct {
	Client *redis.Client
	Next   domain.ConversationStore
	TTL    time.Duration // default: 24h
	Max    int           // turns kept per user (default: 50)
	Logger *slog.Logger
}

func NewRedisHistory(cfg RedisHistoryConfig) *RedisHistory {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultHistoryTTL
	}
	if cfg.Max <= 0 {
		cfg.Max = defaultHistoryMax
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RedisHistory{
		client: cfg.Client,
		next:   cfg.Next,
		ttl:    cfg.TTL,
		max:    int64(cfg.Max),
		logger: cfg.Logger,
	}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func historyKey(userID string) string {
	return historyKeyPrefix + userID
}

func (h *RedisHistory) AppendTurn(ctx context.Context, turn domain.ConversationTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now()
	}
	if h.next != nil {
		if err := h.next.AppendTurn(ctx, turn); err != nil {
			return err
		}
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	key := historyKey(turn.UserID)

	var pushErr error
	if h.next == nil {
		pushErr = h.push(ctx, key, data)
	} else {
		pushErr = h.pushExisting(ctx, key, data)
	}
	if pushErr != nil {
		if h.next == nil {
			return fmt.Errorf("redis append: %w", pushErr)
		}
		h.logger.Warn("redis history append failed", "user", turn.UserID, "err", pushErr)
	}
	return nil
}

func (h *RedisHistory) push(ctx context.Context, key string, values ...any) error {
	_, err := h.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, values...)
		p.LTrim(ctx, key, -h.max, -1)
		p.Expire(ctx, key, h.ttl)
		return nil
	})
	return err
}

func (h *RedisHistory) pushExisting(ctx context.Context, key string, data []byte) error {
	_, err := h.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPushX(ctx, key, data)
		p.LTrim(ctx, key, -h.max, -1)
		p.Expire(ctx, key, h.ttl)
		return nil
	})
	return err
}

// RecentTurns serves from Redis, falling back to the durable store on a
// miss or a Redis failure.
func (h *RedisHistory) RecentTurns(ctx context.Context, userID string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		limit = 10
	}
	key := historyKey(userID)

	raw, err := h.client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		if h.next == nil {
			return nil, fmt.Errorf("redis history: %w", err)
		}
		h.logger.Warn("redis history read failed, using database", "user", userID, "err", err)
		return h.next.RecentTurns(ctx, userID, limit)
	}

	if len(raw) > 0 || h.next == nil {
		turns := make([]domain.ConversationTurn, 0, len(raw))
		for _, item := range raw {
			var t domain.ConversationTurn
			if err := json.Unmarshal([]byte(item), &t); err != nil {
				h.logger.Warn("skipping malformed cached turn", "user", userID, "err", err)
				continue
			}
			turns = append(turns, t)
		}
		return turns, nil
	}

	turns, err := h.next.RecentTurns(ctx, userID, int(h.max))
	if err != nil {
		return nil, err
	}
	if len(turns) > 0 {
		values := make([]any, 0, len(turns))
		for _, t := range turns {
			data, err := json.Marshal(t)
			if err != nil {
				return nil, fmt.Errorf("marshal turn: %w", err)
			}
			values = append(values, data)
		}
		if err := h.push(ctx, key, values...); err != nil {
			h.logger.Warn("redis history backfill failed", "user", userID, "err", err)
		}
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}
