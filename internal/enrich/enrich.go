// Package enrich produces the summary and category tags for each article,
// reusing stored results when they exist.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/NewsSync/internal/article"
	"github.com/TobiSchelling/NewsSync/internal/database"
	"github.com/TobiSchelling/NewsSync/internal/llm"
	"github.com/TobiSchelling/NewsSync/internal/logger"
	"github.com/TobiSchelling/NewsSync/internal/taxonomy"
)

// UnavailableSummary is stored when no summary could be generated. It never
// counts as a cache hit.
const UnavailableSummary = "Summary unavailable."

const summarizePrompt = `You are summarizing a news article for a news digest.

Write a neutral summary of 2-3 sentences in plain prose. Then choose between 1 and %d categories from the list below, most relevant first. Use the categories exactly as written.

Categories:
%s

Article Title: %s
Article Text:
%s

Respond in exactly this format:
SUMMARY: <your summary>
CATEGORIES: <category>, <category>`

// Source tells where a result came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// Result is the enrichment for one article.
type Result struct {
	Summary string
	Tags    []string
	Source  Source
}

// Store is the read side of the article store used as cache.
type Store interface {
	SelectSummary(ctx context.Context, identity string) (*database.StoredSummary, error)
}

// Options tune generation.
type Options struct {
	MaxTokens         int
	MaxBodyChars      int
	RequestsPerMinute int // 0 disables limiting
}

// Enricher looks up cached enrichments and generates missing ones.
type Enricher struct {
	store    Store
	provider llm.Provider
	vocab    *taxonomy.Vocabulary
	opts     Options
	limiter  *rate.Limiter
	log      logger.Logger
}

// New creates an Enricher. provider may be nil, in which case every cache
// miss gets the fallback.
func New(store Store, provider llm.Provider, vocab *taxonomy.Vocabulary, opts Options, log logger.Logger) *Enricher {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 400
	}
	if opts.MaxBodyChars <= 0 {
		opts.MaxBodyChars = 2000
	}
	e := &Enricher{
		store:    store,
		provider: provider,
		vocab:    vocab,
		opts:     opts,
		log:      log,
	}
	if opts.RequestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return e
}

// Enrich returns the summary and tags for a. It never fails: any problem
// yields the fallback result.
func (e *Enricher) Enrich(ctx context.Context, a article.Article) Result {
	if cached, ok := e.lookup(ctx, a.Identity); ok {
		return cached
	}

	if e.provider == nil {
		return e.fallback()
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			e.log.Warn("Rate limiter wait aborted",
				logger.String("identity", a.Identity), logger.Error(err))
			return e.fallback()
		}
	}

	reply, err := e.provider.Generate(ctx, e.prompt(a), e.opts.MaxTokens)
	if err != nil {
		e.log.Warn("Summary generation failed",
			logger.String("identity", a.Identity),
			logger.String("provider", e.provider.Name()),
			logger.Error(err))
		return e.fallback()
	}

	sections := llm.ParseSections(reply)
	summary := PlainText(sections.Summary)
	if summary == "" {
		e.log.Warn("Reply has no summary", logger.String("identity", a.Identity))
		return e.fallback()
	}

	return Result{
		Summary: summary,
		Tags:    ValidTags(e.vocab, sections.Categories),
		Source:  SourceGenerated,
	}
}

// Cached reports whether identity has a stored result Enrich would reuse.
func (e *Enricher) Cached(ctx context.Context, identity string) bool {
	_, ok := e.lookup(ctx, identity)
	return ok
}

func (e *Enricher) lookup(ctx context.Context, identity string) (Result, bool) {
	stored, err := e.store.SelectSummary(ctx, identity)
	if err != nil {
		e.log.Warn("Cache lookup failed",
			logger.String("identity", identity), logger.Error(err))
		return Result{}, false
	}
	if stored == nil || len(stored.Tags) == 0 {
		return Result{}, false
	}
	summary := strings.TrimSpace(stored.Summary)
	if summary == "" || summary == UnavailableSummary {
		return Result{}, false
	}
	return Result{Summary: stored.Summary, Tags: stored.Tags, Source: SourceCache}, true
}

func (e *Enricher) fallback() Result {
	return Result{
		Summary: UnavailableSummary,
		Tags:    []string{taxonomy.DefaultTag},
		Source:  SourceFallback,
	}
}

func (e *Enricher) prompt(a article.Article) string {
	body := a.Description
	if strings.TrimSpace(body) == "" {
		body = a.Title
	}
	return fmt.Sprintf(summarizePrompt, article.MaxTags, e.vocab.Listing(), a.Title, truncate(body, e.opts.MaxBodyChars))
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// ValidTags canonicalizes candidates against vocab, dropping unknown and
// repeated tags, and keeps at most article.MaxTags. An empty result becomes
// the default tag.
func ValidTags(vocab *taxonomy.Vocabulary, candidates []string) []string {
	tags := make([]string, 0, article.MaxTags)
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		tag, ok := vocab.Canonical(c)
		if !ok {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == article.MaxTags {
			break
		}
	}
	if len(tags) == 0 {
		return []string{taxonomy.DefaultTag}
	}
	return tags
}
