package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/thinkgate/thinkgate/internal/config"
	"github.com/thinkgate/thinkgate/internal/httpserver"
	"github.com/thinkgate/thinkgate/internal/ledger"
	ledgerasync "github.com/thinkgate/thinkgate/internal/ledger/async"
	ledgerpg "github.com/thinkgate/thinkgate/internal/ledger/postgres"
	ledgersql "github.com/thinkgate/thinkgate/internal/ledger/sqlite"
	"github.com/thinkgate/thinkgate/internal/logging"
	"github.com/thinkgate/thinkgate/internal/reasoning"
	"github.com/thinkgate/thinkgate/internal/upstream"
	"github.com/thinkgate/thinkgate/internal/version"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logOutput := io.Writer(os.Stdout)
	if target := strings.TrimSpace(cfg.LogFile); target != "" {
		rot, err := logging.NewRotatingWriter(target, cfg.LogMaxBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		defer rot.Close()
		// Mirror to stdout as well for foreground runs
		logOutput = io.MultiWriter(os.Stdout, rot)
	}
	levelTag := strings.ToUpper(cfg.LogLevel)
	rootLogger := log.New(logOutput, fmt.Sprintf("[thinkgate/main][%s] ", levelTag), log.LstdFlags|log.Lmicroseconds)

	client, err := upstream.New(cfg.UpstreamBaseURL, cfg.UpstreamTimeout)
	if err != nil {
		rootLogger.Fatalf("upstream client init failed: %v", err)
	}
	defer client.Close()

	fallback := reasoning.Markers{Start: cfg.MarkerStart, End: cfg.MarkerEnd}
	if err := fallback.Validate(); err != nil {
		rootLogger.Fatalf("marker configuration invalid: %v", err)
	}
	profiles, err := reasoning.LoadProfiles(cfg.MarkerProfilesFile, fallback)
	if err != nil {
		rootLogger.Fatalf("load marker profiles: %v", err)
	}

	store, err := openLedger(cfg, log.New(logOutput, fmt.Sprintf("[thinkgate/ledger][%s] ", levelTag), log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		rootLogger.Fatalf("open usage ledger: %v", err)
	}
	if store != nil {
		defer store.Close()
	} else {
		rootLogger.Printf("usage ledger disabled")
	}

	srv := httpserver.New(client, store, profiles, cfg.ReasoningEffort)
	srv.SetLogger(cfg.LogLevel, log.New(logOutput, fmt.Sprintf("[thinkgate/http][%s] ", levelTag), log.LstdFlags|log.Lmicroseconds))

	httpSrv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     srv.Router(),
		ReadTimeout: 15 * time.Second,
		// Write timeout stays off; completion streams run for minutes.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		rootLogger.Printf("thinkgate %s listening on %s upstream=%s effort=%q", version.Info(), cfg.ListenAddr, cfg.UpstreamBaseURL, cfg.ReasoningEffort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rootLogger.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		rootLogger.Printf("graceful shutdown failed: %v", err)
	}
}

func openLedger(cfg config.ProxyConfig, logger *log.Logger) (ledger.Store, error) {
	var store ledger.Store
	switch cfg.LedgerBackend {
	case "sqlite":
		s, err := ledgersql.New(cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		store = s
	case "postgres":
		s, err := ledgerpg.New(cfg.LedgerDSN, 8, 4, 30*time.Minute)
		if err != nil {
			return nil, err
		}
		store = s
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
	if cfg.LedgerAsync {
		store = ledgerasync.New(store, ledgerasync.Config{Logger: logger})
	}
	return store, nil
}
