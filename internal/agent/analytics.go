package agent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"wabot/internal/domain"
	"wabot/internal/intent"
)

const (
	topicWindow       = 50
	topTopics         = 5
	responseTimeRange = 30 * 24 * time.Hour
)

// UserHistory is the conversation query surface needed for per-user analytics.
type UserHistory interface {
	RecentUserMessages(ctx context.Context, userID string, limit int) ([]string, error)
	AverageResponseTime(ctx context.Context, userID string, since time.Time) (float64, error)
}

type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

type UserAnalytics struct {
	UserID                string       `json:"phone_number"`
	TotalMessages         int          `json:"totalMessages"`
	LastInteraction       *time.Time   `json:"lastInteraction"`
	RecentTopics          []TopicCount `json:"recentTopics"`
	AverageResponseTimeMs float64      `json:"averageResponseTime"`
}

// Topics re-classifies messages and returns the most frequent intents,
// highest count first. Ties keep intent declaration order.
func Topics(messages []string, n int) []TopicCount {
	counts := make(map[intent.Intent]int)
	for _, m := range messages {
		counts[intent.Classify(m)]++
	}
	out := make([]TopicCount, 0, len(counts))
	for _, in := range intent.All() {
		if c := counts[in]; c > 0 {
			out = append(out, TopicCount{Topic: in.String(), Count: c})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// AnalyzeUser gathers the profile counters, recent topics and the 30-day
// average response time for one user.
func AnalyzeUser(ctx context.Context, profiles domain.ProfileStore, history UserHistory, userID string) (UserAnalytics, error) {
	ua := UserAnalytics{UserID: userID, RecentTopics: []TopicCount{}}

	var (
		profile  *domain.UserProfile
		messages []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = profiles.GetProfile(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		messages, err = history.RecentUserMessages(gctx, userID, topicWindow)
		return err
	})
	g.Go(func() error {
		var err error
		ua.AverageResponseTimeMs, err = history.AverageResponseTime(gctx, userID, time.Now().Add(-responseTimeRange))
		return err
	})
	if err := g.Wait(); err != nil {
		return UserAnalytics{}, fmt.Errorf("user analytics: %w", err)
	}

	if profile != nil {
		ua.TotalMessages = profile.TotalMessages
		if !profile.LastInteraction.IsZero() {
			last := profile.LastInteraction
			ua.LastInteraction = &last
		}
	}
	ua.RecentTopics = Topics(messages, topTopics)
	return ua, nil
}
