package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/thinkgate/thinkgate/internal/ledger"
)

type memStore struct {
	mu      sync.Mutex
	entries []ledger.Entry
	closed  bool
}

func (m *memStore) Record(ctx context.Context, entry ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memStore) Summary(ctx context.Context) (ledger.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s ledger.Summary
	for _, e := range m.entries {
		s.Requests++
		s.PromptTokens += e.PromptTokens
		s.CompletionTokens += e.CompletionTokens
	}
	s.TotalTokens = s.PromptTokens + s.CompletionTokens
	return s, nil
}

func (m *memStore) ListRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.Entry(nil), m.entries...), nil
}

func (m *memStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestCloseFlushesQueuedEntries(t *testing.T) {
	mem := &memStore{}
	store := New(mem, Config{FlushInterval: time.Hour}) // only Close flushes

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := store.Record(ctx, ledger.Entry{Model: "m", PromptTokens: 1}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := mem.count(); got != 5 {
		t.Fatalf("expected 5 flushed entries, got %d", got)
	}
	if !mem.closed {
		t.Fatal("underlying store not closed")
	}
}

func TestBatchSizeTriggersFlush(t *testing.T) {
	mem := &memStore{}
	store := New(mem, Config{BatchSize: 2, FlushInterval: time.Hour})
	defer store.Close()

	ctx := context.Background()
	store.Record(ctx, ledger.Entry{Model: "a"})
	store.Record(ctx, ledger.Entry{Model: "b"})

	deadline := time.Now().Add(2 * time.Second)
	for mem.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("batch never flushed, have %d entries", mem.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	mem := &memStore{}
	store := New(mem, Config{Buffer: 1, BatchSize: 100, FlushInterval: time.Hour})

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			store.Record(ctx, ledger.Entry{Model: "m"})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on full queue")
	}
	store.Close()
}

func TestReadsDelegate(t *testing.T) {
	mem := &memStore{entries: []ledger.Entry{{Model: "m", PromptTokens: 2, CompletionTokens: 3}}}
	store := New(mem, Config{})
	defer store.Close()

	summary, err := store.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalTokens != 5 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	recent, err := store.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("unexpected entries %+v", recent)
	}
}
