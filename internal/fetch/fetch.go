// Package fetch fills in missing article bodies from the article page.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/NewsSync/internal/article"
	"github.com/TobiSchelling/NewsSync/internal/logger"
)

const (
	minContentChars = 100
	maxPageBytes    = 5 << 20
)

// Result holds the results of a backfill pass.
type Result struct {
	Fetched int
	Skipped int
	Failed  int
}

// ContentFetcher fetches full article text via HTTP + readability extraction.
type ContentFetcher struct {
	client    *http.Client
	userAgent string
	log       logger.Logger
}

// NewContentFetcher creates a new content fetcher.
func NewContentFetcher(timeout time.Duration, userAgent string, log logger.Logger) *ContentFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ContentFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: userAgent,
		log:       log,
	}
}

// Backfill sets Description for articles that have none and whose identity
// is a web URL. A domain answering with an HTTP error is skipped for the rest
// of the pass. The input slice is updated in place.
func (f *ContentFetcher) Backfill(ctx context.Context, articles []article.Article) *Result {
	result := &Result{}
	failedDomains := make(map[string]struct{})

	for i := range articles {
		a := &articles[i]
		if strings.TrimSpace(a.Description) != "" {
			continue
		}
		u, err := url.Parse(a.Identity)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		domain := strings.ToLower(u.Host)
		if _, failed := failedDomains[domain]; failed {
			result.Skipped++
			continue
		}

		content, err := f.fetchArticleContent(ctx, u)
		if err != nil {
			result.Failed++
			failedDomains[domain] = struct{}{}
			f.log.Warn("Content fetch failed; skipping domain for this run",
				logger.String("url", a.Identity), logger.String("domain", domain), logger.Error(err))
			continue
		}
		if content == "" {
			result.Failed++
			f.log.Debug("No extractable content", logger.String("url", a.Identity))
			continue
		}

		a.Description = content
		result.Fetched++
	}

	f.log.Info("Content backfill complete",
		logger.Int("fetched", result.Fetched),
		logger.Int("skipped", result.Skipped),
		logger.Int("failed", result.Failed))
	return result
}

// fetchArticleContent returns an error only for HTTP error statuses. Network
// and extraction problems yield empty content.
func (f *ContentFetcher) fetchArticleContent(ctx context.Context, pageURL *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), http.NoBody)
	if err != nil {
		return "", nil
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	page, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), pageURL)
	if err != nil {
		return "", nil
	}

	text := strings.Join(strings.Fields(page.TextContent), " ")
	if len(text) > minContentChars {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, http.StatusText(e.code))
}
