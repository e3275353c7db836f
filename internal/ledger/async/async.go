// Package async wraps a ledger.Store with buffered background writes so a
// slow database never stalls a live completion stream.
package async

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/thinkgate/thinkgate/internal/ledger"
)

// Store queues entries in memory and writes them from a background worker.
// Entries still queued when the process dies are lost.
type Store struct {
	underlying    ledger.Store
	entries       chan ledger.Entry
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stop          chan struct{}
	logger        *log.Logger
}

// Config tunes the async ledger behaviour. Zero values use the defaults.
type Config struct {
	BatchSize     int           // entries per write batch (default 100)
	FlushInterval time.Duration // max time between flushes (default 1s)
	Buffer        int           // queue capacity (default 1024)
	Logger        *log.Logger
}

// New wraps an existing ledger store with async writing.
func New(underlying ledger.Store, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}

	s := &Store{
		underlying:    underlying,
		entries:       make(chan ledger.Entry, cfg.Buffer),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		stop:          make(chan struct{}),
		logger:        cfg.Logger,
	}
	s.wg.Add(1)
	go s.writer()
	return s
}

func (s *Store) writer() {
	defer s.wg.Done()

	batch := make([]ledger.Entry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx := context.Background()
		for _, entry := range batch {
			if err := s.underlying.Record(ctx, entry); err != nil && s.logger != nil {
				s.logger.Printf("ledger.async write failed model=%s: %v", entry.Model, err)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-s.entries:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stop:
			close(s.entries)
			for entry := range s.entries {
				batch = append(batch, entry)
				if len(batch) >= s.batchSize {
					flush()
				}
			}
			flush()
			return
		}
	}
}

// Record queues an entry without blocking. When the queue is full the entry
// is dropped and logged rather than back-pressuring the caller.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	select {
	case s.entries <- entry:
	default:
		if s.logger != nil {
			s.logger.Printf("ledger.async queue full, dropping entry model=%s", entry.Model)
		}
	}
	return nil
}

// Summary delegates to the underlying store.
func (s *Store) Summary(ctx context.Context) (ledger.Summary, error) {
	return s.underlying.Summary(ctx)
}

// ListRecent delegates to the underlying store.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	return s.underlying.ListRecent(ctx, limit)
}

// Close flushes queued entries and closes the underlying store.
func (s *Store) Close() error {
	close(s.stop)
	s.wg.Wait()
	return s.underlying.Close()
}
