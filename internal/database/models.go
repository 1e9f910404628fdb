package database

import (
	"encoding/json"
	"time"

	"github.com/TobiSchelling/NewsSync/internal/article"
	"github.com/TobiSchelling/NewsSync/internal/taxonomy"
)

// ArticleRecord is the stored projection of an enriched article.
type ArticleRecord struct {
	Identity        string    `json:"identity"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Summary         string    `json:"summary"`
	ImageURL        string    `json:"image_url"`
	PublishedAt     time.Time `json:"published_at"`
	SourceID        string    `json:"source_id"`
	SourceName      string    `json:"source_name"`
	Tags            []string  `json:"category_tags"`
	PrimaryCategory string    `json:"primary_category"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RecordFromArticle projects an enriched article into a record.
func RecordFromArticle(a article.Article) ArticleRecord {
	return ArticleRecord{
		Identity:        a.Identity,
		Title:           a.Title,
		Description:     a.Description,
		Summary:         a.Summary,
		ImageURL:        a.ImageURL,
		PublishedAt:     a.PublishedAt,
		SourceID:        a.SourceID,
		SourceName:      a.SourceName,
		Tags:            append([]string(nil), a.Tags...),
		PrimaryCategory: taxonomy.PrimaryCategory(a.Tags),
	}
}

// StoredSummary is the cached enrichment for one identity.
type StoredSummary struct {
	Summary string
	Tags    []string
}

// CategoryCount is the number of stored articles in one primary category.
type CategoryCount struct {
	Category string `db:"primary_category" json:"category"`
	Count    int    `db:"n" json:"count"`
}

// Stats summarizes the store.
type Stats struct {
	Total      int             `json:"total"`
	ByCategory []CategoryCount `json:"by_category"`
}

// RunReport records the outcome of one sync run.
type RunReport struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	State          string    `json:"state"`
	Fetched        int       `json:"fetched"`
	UniqueArticles int       `json:"unique_articles"`
	Cached         int       `json:"cached"`
	Generated      int       `json:"generated"`
	Fallback       int       `json:"fallback"`
	Persisted      int       `json:"persisted"`
	Removed        int64     `json:"removed"`
	Errors         int       `json:"errors"`
}

// articleRow mirrors the articles table.
type articleRow struct {
	Identity        string `db:"identity"`
	Title           string `db:"title"`
	Description     string `db:"description"`
	Summary         string `db:"summary"`
	ImageURL        string `db:"image_url"`
	PublishedAt     string `db:"published_at"`
	SourceID        string `db:"source_id"`
	SourceName      string `db:"source_name"`
	CategoryTags    string `db:"category_tags"`
	PrimaryCategory string `db:"primary_category"`
	CreatedAt       string `db:"created_at"`
	UpdatedAt       string `db:"updated_at"`
}

func (r articleRow) record() ArticleRecord {
	return ArticleRecord{
		Identity:        r.Identity,
		Title:           r.Title,
		Description:     r.Description,
		Summary:         r.Summary,
		ImageURL:        r.ImageURL,
		PublishedAt:     parseTime(r.PublishedAt),
		SourceID:        r.SourceID,
		SourceName:      r.SourceName,
		Tags:            decodeTags(r.CategoryTags),
		PrimaryCategory: r.PrimaryCategory,
		CreatedAt:       parseTime(r.CreatedAt),
		UpdatedAt:       parseTime(r.UpdatedAt),
	}
}

type runReportRow struct {
	RunID          string `db:"run_id"`
	StartedAt      string `db:"started_at"`
	FinishedAt     string `db:"finished_at"`
	State          string `db:"state"`
	Fetched        int    `db:"fetched"`
	UniqueArticles int    `db:"unique_articles"`
	Cached         int    `db:"cached"`
	Generated      int    `db:"generated"`
	Fallback       int    `db:"fallback"`
	Persisted      int    `db:"persisted"`
	Removed        int64  `db:"removed"`
	Errors         int    `db:"errors"`
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

// decodeTags tolerates malformed values by returning no tags.
func decodeTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}
