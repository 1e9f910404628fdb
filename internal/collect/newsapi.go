package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/NewsSync/internal/article"
	"github.com/TobiSchelling/NewsSync/internal/logger"
)

// DefaultNewsAPIURL is the top-headlines endpoint.
const DefaultNewsAPIURL = "https://newsapi.org/v2/top-headlines"

const removedPlaceholder = "[Removed]"

var (
	errNewsAPIStatus     = errors.New("newsapi returned error status")
	errNewsAPINoArticles = errors.New("newsapi response has no articles field")
	errNewsAPINoKey      = errors.New("newsapi key not configured")
)

// NewsAPISource is one allow-listed publisher.
type NewsAPISource struct {
	ID            string
	Name          string
	FallbackImage string
}

// NewsAPIFetcher fetches top headlines for an allow-list of publishers.
type NewsAPIFetcher struct {
	apiKey  string
	baseURL string
	sources []NewsAPISource
	client  *http.Client
	log     logger.Logger
	now     func() time.Time
}

// NewNewsAPIFetcher creates a NewsAPI fetcher. An empty baseURL selects the
// public endpoint.
func NewNewsAPIFetcher(apiKey, baseURL string, sources []NewsAPISource, client *http.Client, log logger.Logger) *NewsAPIFetcher {
	if baseURL == "" {
		baseURL = DefaultNewsAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &NewsAPIFetcher{
		apiKey:  apiKey,
		baseURL: baseURL,
		sources: sources,
		client:  client,
		log:     log,
		now:     time.Now,
	}
}

// Name identifies the fetcher in logs and results.
func (n *NewsAPIFetcher) Name() string { return "newsapi" }

// IsConfigured returns whether the API key is available.
func (n *NewsAPIFetcher) IsConfigured() bool {
	return n.apiKey != ""
}

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Articles *[]newsAPIRecord `json:"articles"`
}

type newsAPIRecord struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
}

// Fetch performs one request. Any failure is logged and yields nothing.
func (n *NewsAPIFetcher) Fetch(ctx context.Context) []article.Article {
	records, err := n.request(ctx)
	if err != nil {
		n.log.Warn("NewsAPI fetch failed", logger.Error(err))
		return nil
	}

	fetchedAt := n.now()
	var out []article.Article
	for i, rec := range records {
		src, ok := n.match(rec.Source.Name)
		if !ok {
			continue
		}
		title := collapseSpace(DecodeEntities(rec.Title))
		if title == removedPlaceholder {
			continue
		}

		body := rec.Description
		if strings.TrimSpace(body) == "" {
			body = rec.Content
		}
		image := strings.TrimSpace(rec.URLToImage)
		if image == "" {
			image = src.FallbackImage
		}
		published, _ := time.Parse(time.RFC3339, strings.TrimSpace(rec.PublishedAt))

		a, err := article.New(article.Fields{
			Link:        cleanLink(rec.URL),
			Title:       title,
			Description: cleanText(body),
			ImageURL:    image,
			PublishedAt: published,
			SourceID:    src.ID,
			SourceName:  src.Name,
			Ordinal:     i,
		}, fetchedAt)
		if err != nil {
			n.log.Debug("Dropping NewsAPI item", logger.String("url", rec.URL), logger.Error(err))
			continue
		}
		out = append(out, a)
	}

	n.log.Info("Fetched NewsAPI headlines",
		logger.Int("received", len(records)), logger.Int("kept", len(out)))
	return out
}

func (n *NewsAPIFetcher) request(ctx context.Context) ([]newsAPIRecord, error) {
	if !n.IsConfigured() {
		return nil, errNewsAPINoKey
	}

	ids := make([]string, 0, len(n.sources))
	for _, s := range n.sources {
		ids = append(ids, s.ID)
	}
	params := url.Values{
		"apiKey":   {n.apiKey},
		"language": {"en"},
		"pageSize": {"100"},
		"sources":  {strings.Join(ids, ",")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var result newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if result.Status == "error" {
		return nil, fmt.Errorf("%w: %s: %s", errNewsAPIStatus, result.Code, result.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if result.Articles == nil {
		return nil, errNewsAPINoArticles
	}
	return *result.Articles, nil
}

// match maps a reported publisher name back to its allow-list entry.
func (n *NewsAPIFetcher) match(reported string) (NewsAPISource, bool) {
	reported = strings.ToLower(reported)
	if reported == "" {
		return NewsAPISource{}, false
	}
	for _, s := range n.sources {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name != "" && strings.Contains(reported, name) {
			return s, true
		}
	}
	return NewsAPISource{}, false
}
