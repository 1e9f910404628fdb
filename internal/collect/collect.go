package collect

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/NewsSync/internal/article"
	"github.com/TobiSchelling/NewsSync/internal/config"
	"github.com/TobiSchelling/NewsSync/internal/logger"
)

// Source is anything that can produce articles for one run. Fetch never
// fails: problems are logged and the source contributes nothing.
type Source interface {
	Name() string
	Fetch(ctx context.Context) []article.Article
}

// Result holds the results of a collection run.
type Result struct {
	Articles []article.Article // merged, in source order, not yet deduplicated
	Fetched  int
	BySource map[string]int
}

// Collector runs all sources concurrently and merges their output.
type Collector struct {
	sources []Source
	log     logger.Logger
}

// NewCollector creates a collector over the given sources.
func NewCollector(sources []Source, log logger.Logger) *Collector {
	return &Collector{sources: sources, log: log}
}

// SourcesFromConfig builds the feed fetcher and, when enabled, the NewsAPI
// fetcher described by cfg.
func SourcesFromConfig(cfg *config.Config, log logger.Logger) []Source {
	client := &http.Client{Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second}

	var sources []Source
	if len(cfg.Sources.Feeds) > 0 {
		feeds := make([]FeedSource, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			feeds[i] = FeedSource{
				ID:            f.ID,
				Name:          f.Name,
				URL:           f.URL,
				FallbackImage: f.FallbackImage,
				MediaMedium:   f.MediaMedium,
			}
		}
		sources = append(sources, NewFeedFetcher(feeds, client, cfg.Fetch.UserAgent, log))
	}

	api := cfg.Sources.NewsAPI
	if api.Enabled {
		allow := make([]NewsAPISource, len(api.Sources))
		for i, s := range api.Sources {
			allow[i] = NewsAPISource{ID: s.ID, Name: s.Name, FallbackImage: s.FallbackImage}
		}
		sources = append(sources, NewNewsAPIFetcher(os.Getenv(api.APIKeyEnv), api.BaseURL, allow, client, log))
	}
	return sources
}

// Collect fetches from every source and waits for all of them. The only
// error is cancellation of ctx or a panicking source.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	results := make([][]article.Article, len(c.sources))

	var g errgroup.Group
	for i, src := range c.sources {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("source %s panicked: %v", src.Name(), r)
				}
			}()
			results[i] = src.Fetch(ctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collect cancelled: %w", err)
	}

	r := &Result{BySource: make(map[string]int)}
	for i, articles := range results {
		r.Fetched += len(articles)
		r.BySource[c.sources[i].Name()] += len(articles)
		r.Articles = append(r.Articles, articles...)
	}

	c.log.Info("Collection complete",
		logger.Int("fetched", r.Fetched), logger.Int("sources", len(c.sources)))
	return r, nil
}
