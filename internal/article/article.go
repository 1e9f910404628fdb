// Package article defines the normalized article flowing through the sync pipeline.
package article

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingTitle   = errors.New("article title is empty")
	ErrMissingSource  = errors.New("article source id is empty")
	ErrMissingSummary = errors.New("article summary is empty")
	ErrMissingTags    = errors.New("article has no category tags")
	ErrTooManyTags    = errors.New("article has more than 3 category tags")
)

// MaxTags is the upper bound on category tags per article.
const MaxTags = 3

// Article is a normalized news article. Construct it with New.
type Article struct {
	Identity    string
	Title       string
	Description string
	ImageURL    string
	PublishedAt time.Time
	SourceID    string
	SourceName  string
	Summary     string
	Tags        []string
}

// Fields are the raw values a fetcher extracted for one item.
type Fields struct {
	Link        string
	Title       string
	Description string
	ImageURL    string
	PublishedAt time.Time
	SourceID    string
	SourceName  string
	Ordinal     int // position of the item within its document
}

// New validates f and builds an Article. A zero PublishedAt becomes now.
func New(f Fields, now time.Time) (Article, error) {
	title := strings.TrimSpace(f.Title)
	if title == "" {
		return Article{}, ErrMissingTitle
	}
	sourceID := strings.TrimSpace(f.SourceID)
	if sourceID == "" {
		return Article{}, ErrMissingSource
	}

	published := f.PublishedAt
	if published.IsZero() {
		published = now
	}

	sourceName := strings.TrimSpace(f.SourceName)
	if sourceName == "" {
		sourceName = sourceID
	}

	return Article{
		Identity:    Identity(f.Link, title, f.Ordinal),
		Title:       title,
		Description: strings.TrimSpace(f.Description),
		ImageURL:    strings.TrimSpace(f.ImageURL),
		PublishedAt: published.UTC(),
		SourceID:    sourceID,
		SourceName:  sourceName,
	}, nil
}

// Identity returns the canonical key: the link when present, otherwise a
// composite of title and ordinal position.
func Identity(link, title string, ordinal int) string {
	if link = strings.TrimSpace(link); link != "" {
		return link
	}
	return fmt.Sprintf("%s::%d", strings.TrimSpace(title), ordinal)
}

// WithEnrichment returns a copy carrying summary and tags, enforcing the
// invariants required before persistence.
func (a Article) WithEnrichment(summary string, tags []string) (Article, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return Article{}, ErrMissingSummary
	}
	if len(tags) == 0 {
		return Article{}, ErrMissingTags
	}
	if len(tags) > MaxTags {
		return Article{}, ErrTooManyTags
	}
	a.Summary = summary
	a.Tags = append([]string(nil), tags...)
	return a, nil
}
