package collect

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/NewsSync/internal/article"
	"github.com/TobiSchelling/NewsSync/internal/logger"
)

const (
	maxPerFeed   = 100
	maxFeedBytes = 10 << 20
)

// placeholderTitle matches test items some feeds publish ("test", "Test1", ...).
var placeholderTitle = regexp.MustCompile(`(?i)^test\d*$`)

// dateLayouts are tried when the feed parser could not parse a date itself.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FeedSource describes one configured feed.
type FeedSource struct {
	ID            string
	Name          string
	URL           string
	FallbackImage string
	MediaMedium   string
}

// IsPlaceholder reports whether title is a feed test item.
func IsPlaceholder(title string) bool {
	return placeholderTitle.MatchString(strings.TrimSpace(title))
}

// FeedParser turns raw feed documents into articles.
type FeedParser struct {
	log logger.Logger
	now func() time.Time
}

// NewFeedParser creates a FeedParser.
func NewFeedParser(log logger.Logger) *FeedParser {
	return &FeedParser{log: log, now: time.Now}
}

// ParseFeed parses body and returns a restartable sequence of the articles
// among its first 100 items. A document that cannot be parsed yields an empty
// sequence.
func ParseFeed(body string, src FeedSource, now time.Time) iter.Seq[article.Article] {
	seq, err := parseFeed(body, src, now, logger.NewNop())
	if err != nil {
		return emptySeq
	}
	return seq
}

// Parse is ParseFeed with failures logged.
func (fp *FeedParser) Parse(body string, src FeedSource) iter.Seq[article.Article] {
	seq, err := parseFeed(body, src, fp.now(), fp.log)
	if err != nil {
		fp.log.Warn("Failed to parse feed",
			logger.String("source", src.ID), logger.Error(err))
		return emptySeq
	}
	return seq
}

func emptySeq(func(article.Article) bool) {}

func parseFeed(body string, src FeedSource, fetchedAt time.Time, log logger.Logger) (iter.Seq[article.Article], error) {
	feed, err := gofeed.NewParser().ParseString(markCDATA(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	items := feed.Items[:min(len(feed.Items), maxPerFeed)]
	raw := feed.FeedType == "json"

	return func(yield func(article.Article) bool) {
		for i, item := range items {
			a, ok := normalizeItem(item, src, i, raw, fetchedAt, log)
			if !ok {
				continue
			}
			if !yield(a) {
				return
			}
		}
	}, nil
}

func normalizeItem(item *gofeed.Item, src FeedSource, ordinal int, raw bool, fetchedAt time.Time, log logger.Logger) (article.Article, bool) {
	if item == nil {
		return article.Article{}, false
	}

	title := feedTitle(item.Title, raw)
	link := itemLink(item)
	if title == "" && link == "" {
		return article.Article{}, false
	}

	body := item.Description
	if strings.TrimSpace(body) == "" {
		body = item.Content
	}

	a, err := article.New(article.Fields{
		Link:        link,
		Title:       title,
		Description: feedBody(body, raw),
		ImageURL:    resolveImage(item, src),
		PublishedAt: itemPublished(item),
		SourceID:    src.ID,
		SourceName:  src.Name,
		Ordinal:     ordinal,
	}, fetchedAt)
	if err != nil {
		log.Debug("Dropping feed item",
			logger.String("source", src.ID), logger.String("link", link), logger.Error(err))
		return article.Article{}, false
	}
	return a, true
}

// itemLink prefers the explicit link, falling back to the GUID if it looks
// like an HTTP URL.
func itemLink(item *gofeed.Item) string {
	if link := cleanLink(item.Link); link != "" {
		return link
	}
	if guid := cleanLink(item.GUID); strings.HasPrefix(guid, "http") {
		return guid
	}
	return ""
}

// itemPublished returns the item date, or the zero time when none parses.
func itemPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	for _, raw := range []string{item.Published, item.Updated} {
		if t, ok := parseDate(raw); ok {
			return t
		}
	}
	return time.Time{}
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FeedFetcher fetches every configured feed over HTTP.
type FeedFetcher struct {
	feeds     []FeedSource
	parser    *FeedParser
	client    *http.Client
	userAgent string
	log       logger.Logger
}

// NewFeedFetcher creates a fetcher for the given feeds.
func NewFeedFetcher(feeds []FeedSource, client *http.Client, userAgent string, log logger.Logger) *FeedFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &FeedFetcher{
		feeds:     feeds,
		parser:    NewFeedParser(log),
		client:    client,
		userAgent: userAgent,
		log:       log,
	}
}

// Name identifies the fetcher in logs and results.
func (f *FeedFetcher) Name() string { return "feeds" }

// Fetch fetches all feeds concurrently. A failing feed contributes nothing;
// results keep configuration order.
func (f *FeedFetcher) Fetch(ctx context.Context) []article.Article {
	results := make([][]article.Article, len(f.feeds))

	var g errgroup.Group
	for i, src := range f.feeds {
		g.Go(func() error {
			results[i] = f.fetchFeed(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var all []article.Article
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func (f *FeedFetcher) fetchFeed(ctx context.Context, src FeedSource) []article.Article {
	body, err := f.download(ctx, src.URL)
	if err != nil {
		f.log.Warn("Failed to fetch feed",
			logger.String("source", src.ID), logger.String("url", src.URL), logger.Error(err))
		return nil
	}

	var entries []article.Article
	skipped := 0
	for a := range f.parser.Parse(body, src) {
		if IsPlaceholder(a.Title) {
			skipped++
			continue
		}
		entries = append(entries, a)
	}

	f.log.Info("Parsed feed",
		logger.String("source", src.ID),
		logger.Int("articles", len(entries)),
		logger.Int("placeholders", skipped))
	return entries
}

func (f *FeedFetcher) download(ctx context.Context, feedURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(data), nil
}
