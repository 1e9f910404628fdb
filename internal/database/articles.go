package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// MaxDeleteBatch is the largest identity list DeleteByIdentities accepts.
const MaxDeleteBatch = 50

// ErrBatchTooLarge is returned when a delete batch exceeds MaxDeleteBatch.
var ErrBatchTooLarge = errors.New("delete batch exceeds limit")

const articleColumns = `identity, title, description, summary, image_url, published_at,
	source_id, source_name, category_tags, primary_category, created_at, updated_at`

// UpsertArticle inserts rec or overwrites the stored row with the same
// identity. created_at survives updates.
func (db *DB) UpsertArticle(ctx context.Context, rec ArticleRecord) error {
	now := db.timestamp()
	row := articleRow{
		Identity:        rec.Identity,
		Title:           rec.Title,
		Description:     rec.Description,
		Summary:         rec.Summary,
		ImageURL:        rec.ImageURL,
		PublishedAt:     formatTime(rec.PublishedAt),
		SourceID:        rec.SourceID,
		SourceName:      rec.SourceName,
		CategoryTags:    encodeTags(rec.Tags),
		PrimaryCategory: rec.PrimaryCategory,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := db.conn.NamedExecContext(ctx, `
INSERT INTO articles (`+articleColumns+`)
VALUES (:identity, :title, :description, :summary, :image_url, :published_at,
	:source_id, :source_name, :category_tags, :primary_category, :created_at, :updated_at)
ON CONFLICT(identity) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	summary = excluded.summary,
	image_url = excluded.image_url,
	published_at = excluded.published_at,
	source_id = excluded.source_id,
	source_name = excluded.source_name,
	category_tags = excluded.category_tags,
	primary_category = excluded.primary_category,
	updated_at = excluded.updated_at`, row)
	if err != nil {
		return fmt.Errorf("upserting article %q: %w", rec.Identity, err)
	}
	return nil
}

// SelectSummary returns the stored summary and tags, or nil if identity is
// not stored.
func (db *DB) SelectSummary(ctx context.Context, identity string) (*StoredSummary, error) {
	var row struct {
		Summary      string `db:"summary"`
		CategoryTags string `db:"category_tags"`
	}
	err := db.conn.GetContext(ctx, &row,
		db.conn.Rebind(`SELECT summary, category_tags FROM articles WHERE identity = ?`), identity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting summary: %w", err)
	}
	return &StoredSummary{Summary: row.Summary, Tags: decodeTags(row.CategoryTags)}, nil
}

// SelectAllIdentities returns every stored identity.
func (db *DB) SelectAllIdentities(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	if err := db.conn.SelectContext(ctx, &ids, `SELECT identity FROM articles`); err != nil {
		return nil, fmt.Errorf("selecting identities: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// DeleteByIdentities deletes up to MaxDeleteBatch rows and returns how many
// were removed.
func (db *DB) DeleteByIdentities(ctx context.Context, identities []string) (int64, error) {
	if len(identities) == 0 {
		return 0, nil
	}
	if len(identities) > MaxDeleteBatch {
		return 0, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(identities), MaxDeleteBatch)
	}

	query, args, err := sqlx.In(`DELETE FROM articles WHERE identity IN (?)`, identities)
	if err != nil {
		return 0, fmt.Errorf("building delete: %w", err)
	}
	res, err := db.conn.ExecContext(ctx, db.conn.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("deleting articles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListOptions filters ListArticles.
type ListOptions struct {
	Category string
	Limit    int
}

// ListArticles returns stored articles, newest first.
func (db *DB) ListArticles(ctx context.Context, opts ListOptions) ([]ArticleRecord, error) {
	query := `SELECT ` + articleColumns + ` FROM articles`
	var args []any
	if opts.Category != "" {
		query += ` WHERE primary_category = ?`
		args = append(args, opts.Category)
	}
	query += ` ORDER BY published_at DESC, identity`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	var rows []articleRow
	if err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	records := make([]ArticleRecord, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}
	return records, nil
}

// GetArticle returns a single article, or nil if not stored.
func (db *DB) GetArticle(ctx context.Context, identity string) (*ArticleRecord, error) {
	var row articleRow
	err := db.conn.GetContext(ctx, &row,
		db.conn.Rebind(`SELECT `+articleColumns+` FROM articles WHERE identity = ?`), identity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting article: %w", err)
	}
	rec := row.record()
	return &rec, nil
}

// GetStats counts stored articles per primary category.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	var counts []CategoryCount
	err := db.conn.SelectContext(ctx, &counts, `
SELECT primary_category, COUNT(*) AS n FROM articles
GROUP BY primary_category ORDER BY n DESC, primary_category`)
	if err != nil {
		return nil, fmt.Errorf("counting articles: %w", err)
	}
	stats := &Stats{ByCategory: counts}
	for _, c := range counts {
		stats.Total += c.Count
	}
	return stats, nil
}
