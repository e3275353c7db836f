package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/thinkgate/thinkgate/internal/ledger"
)

func TestRecordAndSummary(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	entries := []ledger.Entry{
		{StreamID: "s1", Model: "deepseek-r1", Endpoint: "chat.completions", PromptTokens: 10, CompletionTokens: 20, CreatedAt: base},
		{StreamID: "s2", Model: "qwq-32b", Endpoint: "chat.completions.stream", PromptTokens: 5, CompletionTokens: 15, CreatedAt: base.Add(time.Minute)},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Requests != 2 {
		t.Fatalf("expected 2 requests, got %d", summary.Requests)
	}
	if summary.PromptTokens != 15 || summary.CompletionTokens != 35 {
		t.Fatalf("unexpected token totals %+v", summary)
	}
	if summary.TotalTokens != 50 {
		t.Fatalf("unexpected total %d", summary.TotalTokens)
	}
}

func TestListRecentOrdering(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	now := time.Now().UTC()
	for i, age := range []time.Duration{2 * time.Hour, time.Hour, 0} {
		err := store.Record(ctx, ledger.Entry{
			StreamID:         "s",
			Model:            "m",
			Endpoint:         "chat.completions",
			PromptTokens:     int64(i + 1),
			CompletionTokens: int64(i + 1),
			CreatedAt:        now.Add(-age),
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recent, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].PromptTokens != 3 || recent[1].PromptTokens != 2 {
		t.Fatalf("unexpected ordering %#v", recent)
	}
}

func TestSummaryOnEmptyStore(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	summary, err := store.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary != (ledger.Summary{}) {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
}
