// Package server exposes the stored articles over a read-only HTTP API.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TobiSchelling/NewsSync/internal/database"
	"github.com/TobiSchelling/NewsSync/internal/logger"
	"github.com/TobiSchelling/NewsSync/internal/taxonomy"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	defaultLimit    = 50
	maxLimit        = 500
	shutdownTimeout = 10 * time.Second
)

// Store is the read side of the article store.
type Store interface {
	ListArticles(ctx context.Context, opts database.ListOptions) ([]database.ArticleRecord, error)
	GetArticle(ctx context.Context, identity string) (*database.ArticleRecord, error)
	GetStats(ctx context.Context) (*database.Stats, error)
	Ping(ctx context.Context) error
}

// Server is the HTTP server for browsing synced articles.
type Server struct {
	store  Store
	vocab  *taxonomy.Vocabulary
	log    logger.Logger
	engine *gin.Engine
}

type vocabularyGroup struct {
	Group string   `json:"group"`
	Tags  []string `json:"tags"`
}

// New creates a new Server.
func New(store Store, vocab *taxonomy.Vocabulary, log logger.Logger) (*Server, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"date": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), loggerMiddleware(log))
	engine.SetHTMLTemplate(tmpl)

	s := &Server{store: store, vocab: vocab, log: log, engine: engine}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.HEAD("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/articles", s.handleArticles)
	api.GET("/article", s.handleArticle)
	api.GET("/stats", s.handleStats)
	api.GET("/vocabulary", s.handleVocabulary)
}

func (s *Server) handleIndex(c *gin.Context) {
	category := c.Query("category")
	articles, err := s.store.ListArticles(c.Request.Context(), database.ListOptions{Category: category, Limit: defaultLimit})
	if err != nil {
		s.internalError(c, err)
		return
	}
	stats, err := s.store.GetStats(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Articles": articles,
		"Stats":    stats,
		"Category": category,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleArticles(c *gin.Context) {
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLimit)
	}

	articles, err := s.store.ListArticles(c.Request.Context(), database.ListOptions{
		Category: c.Query("category"),
		Limit:    limit,
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	if articles == nil {
		articles = []database.ArticleRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles, "count": len(articles)})
}

func (s *Server) handleArticle(c *gin.Context) {
	identity := c.Query("identity")
	if identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity is required"})
		return
	}
	a, err := s.store.GetArticle(c.Request.Context(), identity)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.GetStats(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleVocabulary(c *gin.Context) {
	groups := s.vocab.Groups()
	out := make([]vocabularyGroup, len(groups))
	for i, g := range groups {
		out[i] = vocabularyGroup{Group: g.Name, Tags: g.Tags}
	}
	c.JSON(http.StatusOK, gin.H{"groups": out, "tags": s.vocab.Tags()})
}

func (s *Server) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// Serve listens on 127.0.0.1:port until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server listening", logger.String("addr", "http://"+srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// loggerMiddleware logs each request once.
func loggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			log.Error("HTTP request with errors", append(fields, logger.String("errors", c.Errors.String()))...)
			return
		}
		log.Debug("HTTP request", fields...)
	}
}
