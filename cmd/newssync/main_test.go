package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/NewsSync/internal/config"
	"github.com/TobiSchelling/NewsSync/internal/logger"
	"github.com/TobiSchelling/NewsSync/internal/taxonomy"
)

func testConfig(t *testing.T, ollamaURL string, feeds ...config.Feed) *config.Config {
	t.Helper()
	return &config.Config{
		Sources: config.Sources{
			Feeds: feeds,
			NewsAPI: config.NewsAPIConfig{
				Enabled:   true,
				APIKeyEnv: "NEWSSYNC_TEST_NEWSAPI_KEY",
				Sources:   []config.NewsAPISource{{ID: "reuters", Name: "Reuters"}},
			},
		},
		Summarization: config.Summarization{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       ollamaURL,
			APIKeyEnv:       "NEWSSYNC_TEST_OPENAI_KEY",
			AnthropicKeyEnv: "NEWSSYNC_TEST_ANTHROPIC_KEY",
		},
		Vocabulary: []taxonomy.Group{{Name: "Science", Tags: []string{"Space"}}},
		Storage:    config.Storage{Driver: "sqlite", DataDir: t.TempDir()},
		Fetch:      config.Fetch{TimeoutSeconds: 5},
	}
}

func TestRunChecks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"qwen2.5:7b"}]}`))
		case "/feed.xml":
			_, _ = w.Write([]byte(`<rss version="2.0"><channel></channel></rss>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Setenv("NEWSSYNC_TEST_NEWSAPI_KEY", "")
	c := testConfig(t, srv.URL,
		config.Feed{ID: "good", URL: srv.URL + "/feed.xml"},
		config.Feed{ID: "gone", URL: srv.URL + "/missing.xml"},
	)

	results := runChecks(context.Background(), c, logger.NewNop())
	byTarget := make(map[string]checkResult)
	for _, r := range results {
		byTarget[r.Check+"/"+r.Target] = r
	}

	assert.True(t, byTarget["store/sqlite"].OK)
	assert.True(t, byTarget["llm/ollama"].OK)
	assert.Equal(t, "using ollama", byTarget["llm/ollama"].Detail)
	assert.True(t, byTarget["feed/good"].OK)
	assert.False(t, byTarget["feed/gone"].OK)
	assert.Equal(t, "HTTP 404 Not Found", byTarget["feed/gone"].Detail)
	assert.False(t, byTarget["newsapi/NEWSSYNC_TEST_NEWSAPI_KEY"].OK)
	assert.Equal(t, 2, countFailed(results))

	var buf bytes.Buffer
	renderChecks(&buf, results)
	assert.Contains(t, buf.String(), "FAIL")
	assert.Contains(t, buf.String(), "HTTP 404 Not Found")
}

func TestRunChecksNoProvider(t *testing.T) {
	t.Setenv("NEWSSYNC_TEST_NEWSAPI_KEY", "secret")
	t.Setenv("NEWSSYNC_TEST_OPENAI_KEY", "")
	t.Setenv("NEWSSYNC_TEST_ANTHROPIC_KEY", "")

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()

	results := runChecks(context.Background(), testConfig(t, down.URL), logger.NewNop())
	require.Len(t, results, 3)
	assert.Equal(t, "llm", results[1].Check)
	assert.False(t, results[1].OK)
	assert.True(t, results[2].OK)
}

func TestOpenDBPostgresNeedsDSN(t *testing.T) {
	t.Setenv("NEWSSYNC_TEST_DSN", "")
	c := testConfig(t, "")
	c.Storage = config.Storage{Driver: "postgres", DSNEnv: "NEWSSYNC_TEST_DSN"}

	_, err := openDB(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NEWSSYNC_TEST_DSN")
}
