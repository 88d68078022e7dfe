package scheduler

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/elonfeng/subexplorer/pkg/similar"
)

// Purger deletes rows recorded before a cutoff.
type Purger interface {
	PurgeSubreddits(ctx context.Context, olderThan time.Time) (int64, error)
	PurgeLookups(ctx context.Context, olderThan time.Time) (int64, error)
}

// Finder computes related subreddits.
type Finder interface {
	Find(ctx context.Context, q similar.Query) (*similar.Result, error)
}

// Options configures the background jobs. Zero durations fall back to defaults.
type Options struct {
	Warm          []string
	CacheTTL      time.Duration // subreddit rows older than this are purged
	HistoryTTL    time.Duration // lookups older than this are purged
	PurgeInterval time.Duration
	WarmInterval  time.Duration
}

// Scheduler runs periodic purges and precomputes configured lookups.
type Scheduler struct {
	purger Purger
	finder Finder
	opts   Options
	now    func() time.Time
}

// New creates a new scheduler.
func New(p Purger, f Finder, opts Options) *Scheduler {
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 6 * time.Hour
	}
	if opts.HistoryTTL == 0 {
		opts.HistoryTTL = 30 * 24 * time.Hour
	}
	if opts.PurgeInterval == 0 {
		opts.PurgeInterval = time.Hour
	}
	if opts.WarmInterval == 0 {
		opts.WarmInterval = 30 * time.Minute
	}
	return &Scheduler{
		purger: p,
		finder: f,
		opts:   opts,
		now:    time.Now,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	purgeTicker := time.NewTicker(s.opts.PurgeInterval)
	warmTicker := time.NewTicker(s.opts.WarmInterval)
	defer purgeTicker.Stop()
	defer warmTicker.Stop()

	// Run immediately on start.
	s.warmAll(ctx)

	log.WithFields(log.Fields{
		"purge_every": s.opts.PurgeInterval,
		"warm_every":  s.opts.WarmInterval,
		"warm":        len(s.opts.Warm),
	}).Info("scheduler running")

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return ctx.Err()
		case <-purgeTicker.C:
			s.purge(ctx)
		case <-warmTicker.C:
			s.warmAll(ctx)
		}
	}
}

func (s *Scheduler) purge(ctx context.Context) {
	now := s.now()

	subs, err := s.purger.PurgeSubreddits(ctx, now.Add(-s.opts.CacheTTL))
	if err != nil {
		log.WithError(err).Error("purge subreddits failed")
	}
	lookups, err := s.purger.PurgeLookups(ctx, now.Add(-s.opts.HistoryTTL))
	if err != nil {
		log.WithError(err).Error("purge lookups failed")
	}

	log.WithFields(log.Fields{
		"subreddits": subs,
		"lookups":    lookups,
	}).Debug("purged stale rows")
}

func (s *Scheduler) warmAll(ctx context.Context) {
	for _, name := range s.opts.Warm {
		if ctx.Err() != nil {
			return
		}
		res, err := s.finder.Find(ctx, similar.Query{Subreddit: name, Background: true})
		if err != nil {
			log.WithError(err).WithField("subreddit", name).Warn("warm failed")
			continue
		}
		log.WithFields(log.Fields{
			"subreddit": res.Subreddit,
			"related":   len(res.Related),
		}).Debug("warmed")
	}
}
