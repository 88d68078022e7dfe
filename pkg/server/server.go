package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/elonfeng/subexplorer/internal/store"
	"github.com/elonfeng/subexplorer/pkg/reddit"
	"github.com/elonfeng/subexplorer/pkg/similar"
)

//go:embed public
var assets embed.FS

// Finder is the lookup service behind the API.
type Finder interface {
	Find(ctx context.Context, q similar.Query) (*similar.Result, error)
	Search(ctx context.Context, query string, includeNSFW bool) ([]string, error)
	Transport() string
	DefaultMode() similar.Mode
}

// Options configures the HTTP server.
type Options struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

// Server provides the HTTP API and the web UI.
type Server struct {
	finder Finder
	store  store.Store // optional, backs /api/recent
	opts   Options
}

// New creates a new HTTP server. s may be nil.
func New(f Finder, s store.Store, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 3000
	}
	if opts.ReadHeaderTimeout == 0 {
		opts.ReadHeaderTimeout = 10 * time.Second
	}
	return &Server{finder: f, store: s, opts: opts}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/similar/{subreddit}", s.handleSimilar)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/recent", s.handleRecent)
	mux.HandleFunc("GET /api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	mux.Handle("GET /", staticHandler())

	return recoverer(logRequests(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":      srv.Addr,
			"transport": s.finder.Transport(),
		}).Info("server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Subreddit Explorer API is running",
		"status":    "ok",
		"transport": s.finder.Transport(),
	})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("subreddit")
	q := r.URL.Query()

	mode, err := similar.ParseMode(q.Get("mode"), s.finder.DefaultMode())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(q.Get("limit"), 0, similar.MaxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.finder.Find(r.Context(), similar.Query{Subreddit: name, Mode: mode, Limit: limit})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, reddit.ErrInvalidName), errors.Is(err, similar.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reddit.ErrNotFound):
		writeError(w, http.StatusNotFound, "Subreddit not found")
	default:
		log.WithError(err).WithField("subreddit", name).Error("error fetching similar subreddits")
		writeError(w, http.StatusInternalServerError, "Error fetching similar subreddits")
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, map[string][]string{"names": {}})
		return
	}

	nsfw := false
	if v := q.Get("nsfw"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid nsfw %q", v))
			return
		}
		nsfw = b
	}

	names, err := s.finder.Search(r.Context(), query, nsfw)
	if err != nil {
		log.WithError(err).WithField("query", query).Error("error searching subreddits")
		writeError(w, http.StatusInternalServerError, "Error fetching subreddits")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"names": names})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), 20, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lookups := []store.Lookup{}
	if s.store != nil {
		lookups, err = s.store.ListLookups(r.Context(), store.LookupListOpts{
			Subreddit: r.URL.Query().Get("subreddit"),
			Limit:     limit,
		})
		if err != nil {
			log.WithError(err).Error("error listing lookups")
			writeError(w, http.StatusInternalServerError, "Error listing recent lookups")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  lookups,
		"count": len(lookups),
	})
}

// parseLimit parses an optional limit in [1, max]. A missing value yields def.
func parseLimit(v string, def, max int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("invalid limit %q (want 1-%d)", v, max)
	}
	return n, nil
}

// staticHandler serves the embedded UI. Paths without a file get index.html.
func staticHandler() http.Handler {
	public, err := fs.Sub(assets, "public")
	if err != nil {
		panic(err)
	}
	files := http.FileServerFS(public)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name != "" {
			if info, err := fs.Stat(public, name); err != nil || info.IsDir() {
				http.ServeFileFS(w, r, public, "index.html")
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
