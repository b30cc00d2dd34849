package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wabot/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "wabot.db"), testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addEntry(t *testing.T, s *Store, category, keywords, question string, priority int, active bool) int64 {
	t.Helper()
	id, err := s.AddKnowledge(context.Background(), domain.KnowledgeEntry{
		Category: category, Keywords: keywords, Question: question,
		Answer: "answer: " + question, Priority: priority, Active: active,
	})
	if err != nil {
		t.Fatalf("add knowledge: %v", err)
	}
	return id
}

// --- Knowledge search ---

func TestSearch_ByCategoryOrderedByPriority(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	addEntry(t, s, "pricing", "price", "low", 1, true)
	addEntry(t, s, "pricing", "price", "high", 5, true)
	addEntry(t, s, "pricing", "price", "hidden", 9, false)
	addEntry(t, s, "support", "help", "other", 9, true)

	got, err := s.Search(ctx, "anything", "pricing", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 active pricing entries, got %d", len(got))
	}
	if got[0].Question != "high" || got[1].Question != "low" {
		t.Errorf("unexpected order: %q, %q", got[0].Question, got[1].Question)
	}
	for _, e := range got {
		if !e.Active {
			t.Errorf("inactive entry returned: %q", e.Question)
		}
	}
}

func TestSearch_FallsBackToKeywords(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	addEntry(t, s, "business", "business hours, office", "When are you open?", 2, true)
	addEntry(t, s, "business", "office", "Hidden office entry", 9, false)

	// Category with no rows falls back to keyword match.
	got, err := s.Search(ctx, "OFFICE", "kwap", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Question != "When are you open?" {
		t.Fatalf("unexpected fallback result: %+v", got)
	}

	// No category at all goes straight to keyword match.
	got, _ = s.Search(ctx, "open", "", 3)
	if len(got) != 1 {
		t.Fatalf("expected question match, got %d", len(got))
	}
}

func TestSearch_EscapesWildcards(t *testing.T) {
	s := testStore(t)
	addEntry(t, s, "misc", "plain words", "Plain question", 1, true)

	got, err := s.Search(context.Background(), "%", "", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("a literal %% must not match everything, got %d", len(got))
	}
}

func TestSearch_RespectsLimit(t *testing.T) {
	s := testStore(t)
	for i := 0; i < 6; i++ {
		addEntry(t, s, "ai", "ai", fmt.Sprintf("q%d", i), i, true)
	}
	got, _ := s.Search(context.Background(), "", "ai", 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Priority != 5 {
		t.Errorf("expected highest priority first, got %d", got[0].Priority)
	}
}

func TestSearch_EmptyQueryNoCategory(t *testing.T) {
	s := testStore(t)
	addEntry(t, s, "ai", "ai", "q", 1, true)
	got, err := s.Search(context.Background(), "  ", "", 3)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no results, got %d, %v", len(got), err)
	}
}

// --- Knowledge admin ---

func TestKnowledgeCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id := addEntry(t, s, "company", "about", "Who are you?", 3, true)
	e, err := s.GetKnowledge(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Question != "Who are you?" || !e.Active || e.Priority != 3 {
		t.Fatalf("unexpected entry %+v", e)
	}

	e.Answer = "We are WABOT."
	e.Active = false
	if err := s.UpdateKnowledge(ctx, *e); err != nil {
		t.Fatalf("update: %v", err)
	}
	e2, _ := s.GetKnowledge(ctx, id)
	if e2.Answer != "We are WABOT." || e2.Active {
		t.Fatalf("update not persisted: %+v", e2)
	}

	if err := s.DeleteKnowledge(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetKnowledge(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteKnowledge(ctx, id); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := s.UpdateKnowledge(ctx, domain.KnowledgeEntry{ID: 999}); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestListKnowledge_FiltersAndPages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		addEntry(t, s, "pricing", "plan", fmt.Sprintf("pricing %d", i), 1, true)
	}
	addEntry(t, s, "support", "help", "support question", 1, false)

	page, total, err := s.ListKnowledge(ctx, domain.KnowledgeFilter{Category: "pricing", Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("expected 2 of 5, got %d of %d", len(page), total)
	}

	found, total, _ := s.ListKnowledge(ctx, domain.KnowledgeFilter{Search: "SUPPORT"})
	if total != 1 || len(found) != 1 || found[0].Active {
		t.Fatalf("expected the inactive support entry, got %+v", found)
	}

	n, _ := s.CountKnowledge(ctx)
	if n != 6 {
		t.Fatalf("expected 6 entries, got %d", n)
	}
	if err := s.ClearKnowledge(ctx); err != nil {
		t.Fatal(err)
	}
	n, _ = s.CountKnowledge(ctx)
	if n != 0 {
		t.Fatalf("expected empty knowledge base, got %d", n)
	}
}

// --- Conversations ---

func TestRecentTurns_ChronologicalNewest(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		if err := s.AppendTurn(ctx, domain.ConversationTurn{UserID: "601", Role: role, Content: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	s.AppendTurn(ctx, domain.ConversationTurn{UserID: "602", Role: domain.RoleUser, Content: "other user"})

	turns, err := s.RecentTurns(ctx, "601", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 10 {
		t.Fatalf("expected 10 turns, got %d", len(turns))
	}
	if turns[0].Content != "m5" || turns[9].Content != "m14" {
		t.Fatalf("expected m5..m14, got %s..%s", turns[0].Content, turns[9].Content)
	}
}

func TestAppendTurn_StoresModelAndLatency(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.AppendTurn(ctx, domain.ConversationTurn{UserID: "601", UserName: "Aina", Role: domain.RoleUser, Content: "hi"})
	s.AppendTurn(ctx, domain.ConversationTurn{UserID: "601", Role: domain.RoleAssistant, Content: "hello", Model: "openai-gpt", ResponseTimeMs: 420})

	turns, _ := s.RecentTurns(ctx, "601", 10)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].UserName != "Aina" || turns[0].Role != domain.RoleUser {
		t.Errorf("unexpected user turn %+v", turns[0])
	}
	if turns[1].Model != "openai-gpt" || turns[1].ResponseTimeMs != 420 {
		t.Errorf("unexpected assistant turn %+v", turns[1])
	}

	avg, err := s.AverageResponseTime(ctx, "601", time.Now().Add(-time.Hour))
	if err != nil || avg != 420 {
		t.Fatalf("expected avg 420, got %v, %v", avg, err)
	}
	msgs, _ := s.RecentUserMessages(ctx, "601", 50)
	if len(msgs) != 1 || msgs[0] != "hi" {
		t.Fatalf("unexpected user messages %v", msgs)
	}
}

// --- Profiles ---

func TestUpsertProfile_CountsMessages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p, err := s.GetProfile(ctx, "601")
	if err != nil || p != nil {
		t.Fatalf("expected no profile, got %+v, %v", p, err)
	}

	pc := domain.ProfileContext{LastIntent: "pricing", LastInteraction: time.Now().UTC()}
	if err := s.UpsertProfile(ctx, "601", "Aina", pc); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p, _ = s.GetProfile(ctx, "601")
	if p.TotalMessages != 1 || p.Name != "Aina" || p.Context.LastIntent != "pricing" {
		t.Fatalf("unexpected profile after first upsert: %+v", p)
	}

	// An empty name keeps the stored one.
	pc.LastIntent = "support"
	if err := s.UpsertProfile(ctx, "601", "", pc); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p, _ = s.GetProfile(ctx, "601")
	if p.TotalMessages != 2 || p.Name != "Aina" || p.Context.LastIntent != "support" {
		t.Fatalf("unexpected profile after second upsert: %+v", p)
	}
}

func TestUpsertProfile_Preferences(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.UpsertProfile(ctx, "602", "Hafiz", domain.ProfileContext{LastIntent: "greeting"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p, _ := s.GetProfile(ctx, "602")
	if p.Preferences == nil || len(p.Preferences) != 0 {
		t.Fatalf("expected empty preferences, got %v", p.Preferences)
	}

	prefs := map[string]any{"language": "ms", "newsletter": true}
	if err := s.UpsertProfile(ctx, "602", "", domain.ProfileContext{Preferences: prefs}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Nil preferences keep the stored map.
	if err := s.UpsertProfile(ctx, "602", "", domain.ProfileContext{LastIntent: "pricing"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p, _ = s.GetProfile(ctx, "602")
	if p.Preferences["language"] != "ms" || p.Preferences["newsletter"] != true {
		t.Fatalf("preferences = %v", p.Preferences)
	}
	if p.TotalMessages != 3 || p.Context.LastIntent != "pricing" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}

func TestUpsertProfile_ConcurrentIncrements(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 11; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.UpsertProfile(ctx, "601", "", domain.ProfileContext{LastIntent: "general"}); err != nil {
				t.Errorf("upsert: %v", err)
			}
		}()
	}
	wg.Wait()

	p, _ := s.GetProfile(ctx, "601")
	if p == nil || p.TotalMessages != 11 {
		t.Fatalf("expected 11 messages, got %+v", p)
	}
}

// --- Analytics ---

func TestRecordAndSummarizeMetric(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	from := time.Now().Add(-time.Minute)

	for _, v := range []float64{100, 200, 600} {
		if err := s.RecordMetric(ctx, domain.MetricResponseTime, v, map[string]string{"model": "fallback"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	s.RecordMetric(ctx, domain.MetricIntentDetected, 1, nil)

	sum, err := s.SummarizeMetric(ctx, domain.MetricResponseTime, from, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Count != 3 || sum.Average != 300 || sum.Min != 100 || sum.Max != 600 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	empty, err := s.SummarizeMetric(ctx, "nothing", from, time.Now())
	if err != nil || empty.Count != 0 || empty.Average != 0 {
		t.Fatalf("expected zero summary, got %+v, %v", empty, err)
	}
}

func TestStatus(t *testing.T) {
	s := testStore(t)
	st := s.Status(context.Background())
	if !st.Connected || st.Driver != "sqlite" || st.SchemaVersion != schemaVersion {
		t.Fatalf("unexpected status %+v", st)
	}
}
