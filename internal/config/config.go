// Package config loads runtime options for the proxy from an INI file with
// THINKGATE_* environment overrides.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const configFile = "config/thinkgate.ini"

// ProxyConfig describes runtime options for the proxy daemon.
type ProxyConfig struct {
	ListenAddr string
	// Upstream chat-completions API the proxy sits in front of.
	UpstreamBaseURL string
	// Per-exchange upstream timeout, body included.
	UpstreamTimeout time.Duration
	// Value injected as reasoning_effort when the caller omits it; empty
	// disables injection.
	ReasoningEffort string
	// Default marker literals delimiting reasoning blocks.
	MarkerStart string
	MarkerEnd   string
	// Optional YAML file mapping model patterns to marker pairs.
	MarkerProfilesFile string
	// Usage ledger: "sqlite", "postgres" or "none".
	LedgerBackend string
	LedgerPath    string
	LedgerDSN     string
	LedgerAsync   bool
	// Logging
	LogLevel    string
	LogFile     string
	LogMaxBytes int64
}

// Load reads config/thinkgate.ini under root (missing file is fine) and
// applies environment overrides.
func Load(root string) (ProxyConfig, error) {
	if root == "" {
		root = "."
	}
	values, err := parseINI(filepath.Join(root, configFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return ProxyConfig{}, err
		}
		values = map[string]string{}
	}

	cfg := ProxyConfig{
		ListenAddr:         firstNonEmpty(os.Getenv("THINKGATE_LISTEN_ADDR"), values["listen_addr"], ":8000"),
		UpstreamBaseURL:    firstNonEmpty(os.Getenv("THINKGATE_UPSTREAM_BASE_URL"), values["upstream_base_url"], "https://api.glhf.chat"),
		ReasoningEffort:    firstNonEmpty(os.Getenv("THINKGATE_REASONING_EFFORT"), values["reasoning_effort"], "high"),
		MarkerStart:        firstNonEmpty(os.Getenv("THINKGATE_MARKER_START"), values["marker_start"], "<think>"),
		MarkerEnd:          firstNonEmpty(os.Getenv("THINKGATE_MARKER_END"), values["marker_end"], "</think>"),
		MarkerProfilesFile: firstNonEmpty(os.Getenv("THINKGATE_MARKER_PROFILES"), values["marker_profiles"]),
		LedgerBackend:      strings.ToLower(firstNonEmpty(os.Getenv("THINKGATE_LEDGER_BACKEND"), values["ledger_backend"], "sqlite")),
		LedgerPath:         firstNonEmpty(os.Getenv("THINKGATE_LEDGER_PATH"), values["ledger_path"], defaultLedgerPath()),
		LedgerDSN:          firstNonEmpty(os.Getenv("THINKGATE_LEDGER_DSN"), values["ledger_dsn"]),
		LedgerAsync:        parseOptionalBool(firstNonEmpty(os.Getenv("THINKGATE_LEDGER_ASYNC"), values["ledger_async"]), true),
		LogLevel:           strings.ToLower(firstNonEmpty(os.Getenv("THINKGATE_LOG_LEVEL"), values["log_level"], "info")),
		LogFile:            firstNonEmpty(os.Getenv("THINKGATE_LOG_FILE"), values["log_file"]),
	}

	timeoutRaw := firstNonEmpty(os.Getenv("THINKGATE_UPSTREAM_TIMEOUT"), values["upstream_timeout"], "300s")
	cfg.UpstreamTimeout, err = time.ParseDuration(timeoutRaw)
	if err != nil {
		return ProxyConfig{}, fmt.Errorf("invalid upstream_timeout %q: %w", timeoutRaw, err)
	}

	maxBytesRaw := firstNonEmpty(os.Getenv("THINKGATE_LOG_MAX_BYTES"), values["log_max_bytes"])
	if strings.TrimSpace(maxBytesRaw) != "" {
		parsed, err := strconv.ParseInt(strings.TrimSpace(maxBytesRaw), 10, 64)
		if err != nil {
			return ProxyConfig{}, fmt.Errorf("invalid log_max_bytes %q: %w", maxBytesRaw, err)
		}
		cfg.LogMaxBytes = parsed
	} else {
		cfg.LogMaxBytes = 64 << 20
	}

	switch cfg.LedgerBackend {
	case "sqlite", "postgres", "none":
	default:
		return ProxyConfig{}, fmt.Errorf("invalid ledger_backend %q (want sqlite, postgres or none)", cfg.LedgerBackend)
	}
	if cfg.LedgerBackend == "postgres" && strings.TrimSpace(cfg.LedgerDSN) == "" {
		return ProxyConfig{}, errors.New("ledger_backend=postgres requires ledger_dsn")
	}
	return cfg, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func defaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ledger.db"
	}
	return filepath.Join(home, ".thinkgate", "ledger.db")
}
