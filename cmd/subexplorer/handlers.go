package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/subexplorer/internal/config"
	"github.com/elonfeng/subexplorer/internal/scheduler"
	"github.com/elonfeng/subexplorer/internal/store"
	"github.com/elonfeng/subexplorer/pkg/reddit"
	"github.com/elonfeng/subexplorer/pkg/server"
	"github.com/elonfeng/subexplorer/pkg/similar"
)

func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}

	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	initLogging(cfg.Log)
	return cfg, nil
}

func initLogging(lc config.LogConfig) {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		level = log.InfoLevel
	}
	if Verbose {
		level = log.DebugLevel
	}
	if Quiet {
		level = log.ErrorLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(lc.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

// app bundles the long-lived dependencies of a command.
type app struct {
	cfg    *config.Config
	db     *store.SQLiteStore
	finder *similar.Finder
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	api, err := reddit.New(reddit.Config{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		UserAgent:    cfg.Reddit.UserAgent,
		Transport:    strings.ToLower(cfg.Reddit.Transport),
		AuthURL:      cfg.Reddit.AuthURL,
		APIURL:       cfg.Reddit.APIURL,
		PublicURL:    cfg.Reddit.PublicURL,
		Timeout:      cfg.Reddit.ParseTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	defaultMode, _ := similar.ParseMode(cfg.Similar.DefaultMode, similar.ModePosts)
	finder := similar.NewFinder(api, db, similar.Options{
		DefaultMode:  defaultMode,
		DefaultLimit: cfg.Similar.Limit,
		HotLimit:     cfg.Similar.HotLimit,
		MaxUsers:     cfg.Similar.MaxUsers,
		HistoryLimit: cfg.Similar.HistoryLimit,
		Concurrency:  cfg.Similar.Concurrency,
		CacheTTL:     cfg.Cache.ParseTTL(),
	})

	log.WithFields(log.Fields{
		"transport": api.Name(),
		"db":        cfg.Database.Path,
	}).Debug("initialized")

	return &app{cfg: cfg, db: db, finder: finder}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func runServe(port int, daemon bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := server.New(a.finder, a.db, server.Options{
		Port:              port,
		ReadHeaderTimeout: a.cfg.Server.ParseReadHeaderTimeout(),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	if daemon {
		sched := scheduler.New(a.db, a.finder, scheduler.Options{
			Warm:          a.cfg.Schedule.Warm,
			CacheTTL:      a.cfg.Cache.ParseTTL(),
			HistoryTTL:    a.cfg.Cache.ParseHistoryTTL(),
			PurgeInterval: a.cfg.Schedule.ParsePurgeInterval(),
			WarmInterval:  a.cfg.Schedule.ParseWarmInterval(),
		})
		g.Go(func() error {
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("scheduler: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func runSimilar(name, mode string, limit int, jsonOutput bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := similar.ParseMode(mode, a.finder.DefaultMode())
	if err != nil {
		return err
	}
	if limit < 0 || limit > similar.MaxLimit {
		return fmt.Errorf("limit must be between 1 and %d", similar.MaxLimit)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := a.finder.Find(ctx, similar.Query{Subreddit: name, Mode: m, Limit: limit})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(os.Stdout, res)
	}
	return printResult(os.Stdout, res)
}

func printResult(out io.Writer, res *similar.Result) error {
	if len(res.Related) == 0 {
		fmt.Fprintf(out, "no similar subreddits found for r/%s\n", res.Subreddit)
		return nil
	}

	fmt.Fprintf(out, "r/%s (%s mode, %d sampled)\n\n", res.Subreddit, res.Mode, res.Sampled)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COUNT\tSUBREDDIT\tSUBSCRIBERS\tDESCRIPTION")
	for _, r := range res.Related {
		fmt.Fprintf(w, "%d\tr/%s\t%s\t%s\n",
			r.Count, r.Name, formatSubscribers(r.Subscribers), truncate(r.Description, 60))
	}
	return w.Flush()
}

func runSearch(query string, nsfw bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	names, err := a.finder.Search(context.Background(), query, nsfw)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no subreddits found")
		return nil
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runRecent(subreddit string, limit int, jsonOutput bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lookups, err := a.db.ListLookups(context.Background(), store.LookupListOpts{
		Subreddit: subreddit,
		Limit:     limit,
	})
	if err != nil {
		return fmt.Errorf("list lookups: %w", err)
	}

	if jsonOutput {
		return printJSON(os.Stdout, lookups)
	}

	if len(lookups) == 0 {
		fmt.Println("no lookups yet (try: subexplorer similar golang)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSUBREDDIT\tMODE\tSAMPLED\tRELATED")
	for _, l := range lookups {
		fmt.Fprintf(w, "%s\tr/%s\t%s\t%d\t%s\n",
			l.CreatedAt.Local().Format(time.RFC3339), l.Subreddit, l.Mode, l.Sampled,
			strings.Join(l.Related, ", "))
	}
	return w.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatSubscribers(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
