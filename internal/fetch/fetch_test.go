package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/NewsSync/internal/article"
	"github.com/TobiSchelling/NewsSync/internal/logger"
)

var storyParagraph = strings.Repeat("The council approved the new transit budget after a long debate about fares and service levels. ", 8)

const storyPage = `<!DOCTYPE html>
<html><head><title>Transit budget approved</title></head>
<body>
<nav><a href="/">Home</a> <a href="/news">News</a></nav>
<article>
<h1>Transit budget approved</h1>
<p>%s</p>
<p>%s</p>
</article>
<footer>Copyright</footer>
</body></html>`

func mustArticle(t *testing.T, link, title, description string) article.Article {
	t.Helper()
	a, err := article.New(article.Fields{Link: link, Title: title, Description: description, SourceID: "test"}, time.Now())
	require.NoError(t, err)
	return a
}

func TestBackfillFillsEmptyDescriptions(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if ua := r.Header.Get("User-Agent"); ua != "newssync-test" {
			t.Errorf("unexpected user agent %q", ua)
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(strings.ReplaceAll(storyPage, "%s", storyParagraph)))
	}))
	defer srv.Close()

	articles := []article.Article{
		mustArticle(t, srv.URL+"/story", "Transit budget approved", ""),
		mustArticle(t, srv.URL+"/other", "Has body", "Already has a description"),
		mustArticle(t, "", "No link", ""),
	}

	f := NewContentFetcher(5*time.Second, "newssync-test", logger.NewNop())
	r := f.Backfill(context.Background(), articles)

	assert.Equal(t, 1, r.Fetched)
	assert.Equal(t, 1, hits)
	assert.Contains(t, articles[0].Description, "transit budget")
	assert.Equal(t, "Already has a description", articles[1].Description)
	assert.Empty(t, articles[2].Description)
}

func TestBackfillSkipsFailedDomain(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	articles := []article.Article{
		mustArticle(t, srv.URL+"/a", "A", ""),
		mustArticle(t, srv.URL+"/b", "B", ""),
		mustArticle(t, srv.URL+"/c", "C", ""),
	}

	f := NewContentFetcher(5*time.Second, "", logger.NewNop())
	r := f.Backfill(context.Background(), articles)

	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 2, r.Skipped)
	for _, a := range articles {
		assert.Empty(t, a.Description)
	}
}

func TestBackfillShortContentIsIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Too short.</p></body></html>`))
	}))
	defer srv.Close()

	articles := []article.Article{mustArticle(t, srv.URL+"/short", "Short", "")}
	r := NewContentFetcher(5*time.Second, "", logger.NewNop()).Backfill(context.Background(), articles)

	assert.Zero(t, r.Fetched)
	assert.Equal(t, 1, r.Failed)
	assert.Empty(t, articles[0].Description)
}

func TestHTTPErrorMessage(t *testing.T) {
	err := &httpError{code: http.StatusNotFound}
	assert.Equal(t, "HTTP 404 Not Found", err.Error())
}
