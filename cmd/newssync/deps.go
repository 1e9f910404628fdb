package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/redis/go-redis/v9"

	"github.com/TobiSchelling/NewsSync/internal/collect"
	"github.com/TobiSchelling/NewsSync/internal/config"
	"github.com/TobiSchelling/NewsSync/internal/database"
	"github.com/TobiSchelling/NewsSync/internal/enrich"
	"github.com/TobiSchelling/NewsSync/internal/fetch"
	"github.com/TobiSchelling/NewsSync/internal/llm"
	"github.com/TobiSchelling/NewsSync/internal/lock"
	"github.com/TobiSchelling/NewsSync/internal/logger"
	"github.com/TobiSchelling/NewsSync/internal/metrics"
	"github.com/TobiSchelling/NewsSync/internal/pipeline"
	"github.com/TobiSchelling/NewsSync/internal/reconcile"
	"github.com/TobiSchelling/NewsSync/internal/taxonomy"
)

// app holds the long-lived resources of a sync process.
type app struct {
	db       *database.DB
	redis    *redis.Client
	pipeline *pipeline.Pipeline
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.db.Close()
}

func newApp(ctx context.Context) (*app, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}

	vocab, err := vocabulary(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	summ := cfg.Summarization
	provider := llm.CreateProvider(llmSettings(cfg), log)
	enricher := enrich.New(db, provider, vocab, enrich.Options{
		MaxTokens:         summ.MaxTokens,
		MaxBodyChars:      summ.MaxBodyChars,
		RequestsPerMinute: summ.RequestsPerMinute,
	}, log)

	deps := pipeline.Deps{
		Collector:  collect.NewCollector(collect.SourcesFromConfig(cfg, log), log),
		Enricher:   enricher,
		Store:      db,
		Reconciler: reconcile.New(db, cfg.Reconcile.SkipWhenEmpty, log),
		Log:        log,
	}
	if cfg.Fetch.BackfillContent {
		deps.Backfiller = fetch.NewContentFetcher(fetchTimeout(cfg), cfg.Fetch.UserAgent, log)
	}
	if cfg.Metrics.PushgatewayURL != "" {
		deps.Metrics = metrics.New(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job)
	}

	ttl := time.Duration(cfg.Lock.TTLSeconds) * time.Second
	if cfg.Lock.RedisAddress != "" {
		a.redis, err = lock.NewRedisClient(cfg.Lock.RedisAddress, os.Getenv(cfg.Lock.RedisPasswordEnv))
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Locker = lock.NewRedisLocker(a.redis, lock.Name, ttl)
	} else {
		deps.Locker = lock.NewDBLocker(db, lock.Name, ttl)
	}

	a.pipeline = pipeline.New(deps)
	return a, nil
}

func openDB(ctx context.Context, c *config.Config) (*database.DB, error) {
	switch strings.ToLower(c.Storage.Driver) {
	case database.DriverPostgres:
		dsn := os.Getenv(c.Storage.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("storage.driver is postgres but %s is not set", c.Storage.DSNEnv)
		}
		return database.Connect(ctx, database.DriverPostgres, dsn)
	default:
		dataDir := c.GetDataDir()
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return database.Connect(ctx, database.DriverSQLite, filepath.Join(dataDir, "newssync.db"))
	}
}

func vocabulary(c *config.Config) (*taxonomy.Vocabulary, error) {
	v, err := taxonomy.New(c.Vocabulary)
	if err != nil {
		return nil, fmt.Errorf("building vocabulary: %w", err)
	}
	return v, nil
}

func llmSettings(c *config.Config) llm.Settings {
	s := c.Summarization
	return llm.Settings{
		Provider:        s.Provider,
		Model:           s.Model,
		OllamaURL:       s.OllamaURL,
		OpenAIModel:     s.OpenAIModel,
		OpenAIKeyEnv:    s.APIKeyEnv,
		AnthropicModel:  s.AnthropicModel,
		AnthropicKeyEnv: s.AnthropicKeyEnv,
	}
}

func fetchTimeout(c *config.Config) time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// --- connectivity checks ---

type checkResult struct {
	Check  string
	Target string
	OK     bool
	Detail string
}

var errMissingKey = errors.New("API key not set")

func runChecks(ctx context.Context, c *config.Config, log logger.Logger) []checkResult {
	var results []checkResult
	add := func(check, target string, err error, okDetail string) {
		r := checkResult{Check: check, Target: target, OK: err == nil, Detail: okDetail}
		if err != nil {
			r.Detail = err.Error()
		}
		results = append(results, r)
	}

	if db, err := openDB(ctx, c); err != nil {
		add("store", c.Storage.Driver, err, "")
	} else {
		add("store", c.Storage.Driver, db.Ping(ctx), "reachable")
		db.Close()
	}

	if p := llm.CreateProvider(llmSettings(c), log); p == nil {
		add("llm", c.Summarization.Provider, errors.New("no provider available"), "")
	} else {
		add("llm", c.Summarization.Provider, nil, "using "+p.Name())
	}

	client := &http.Client{Timeout: fetchTimeout(c)}
	for _, f := range c.Sources.Feeds {
		add("feed", f.ID, checkURL(ctx, client, f.URL, c.Fetch.UserAgent), "reachable")
	}

	if c.Sources.NewsAPI.Enabled {
		var err error
		if os.Getenv(c.Sources.NewsAPI.APIKeyEnv) == "" {
			err = fmt.Errorf("%w: %s", errMissingKey, c.Sources.NewsAPI.APIKeyEnv)
		}
		add("newsapi", c.Sources.NewsAPI.APIKeyEnv, err, "key present")
	}

	if c.Lock.RedisAddress != "" {
		rc, err := lock.NewRedisClient(c.Lock.RedisAddress, os.Getenv(c.Lock.RedisPasswordEnv))
		if err == nil {
			rc.Close()
		}
		add("redis", c.Lock.RedisAddress, err, "reachable")
	}

	return results
}

func checkURL(ctx context.Context, client *http.Client, url, userAgent string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}

func renderChecks(w io.Writer, results []checkResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Check", "Target", "Status", "Detail"})
	for _, r := range results {
		status := "OK"
		if !r.OK {
			status = "FAIL"
		}
		t.AppendRow(table.Row{r.Check, r.Target, status, r.Detail})
	}
	t.Render()
}

func countFailed(results []checkResult) int {
	n := 0
	for _, r := range results {
		if !r.OK {
			n++
		}
	}
	return n
}
