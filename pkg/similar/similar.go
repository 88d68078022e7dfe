package similar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/subexplorer/internal/store"
	"github.com/elonfeng/subexplorer/pkg/reddit"
)

// Mode selects how relatedness is measured.
type Mode string

const (
	// ModePosts tallies the communities of posts in the target's hot feed
	// and of their crosspost parents.
	ModePosts Mode = "posts"
	// ModeUsers tallies the communities the target's active posters take part in.
	ModeUsers Mode = "users"
)

const (
	DefaultLimit = 5
	MaxLimit     = 25

	noDescription = "No description available"
)

// ErrInvalidMode is returned by ParseMode for unknown modes.
var ErrInvalidMode = errors.New("invalid mode")

// ParseMode parses a mode name; the empty string yields def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case ModePosts:
		return ModePosts, nil
	case ModeUsers:
		return ModeUsers, nil
	}
	return "", fmt.Errorf("%w %q (want %s or %s)", ErrInvalidMode, s, ModePosts, ModeUsers)
}

// pseudoSubreddits are aggregate feeds without an about page. They are the
// listings where posts mode sees the most distinct communities.
var pseudoSubreddits = map[string]string{
	"all":     "all",
	"popular": "popular",
}

// Options tunes a Finder. Zero values fall back to defaults.
type Options struct {
	DefaultMode  Mode
	DefaultLimit int
	HotLimit     int
	MaxUsers     int
	HistoryLimit int
	Concurrency  int
	CacheTTL     time.Duration
}

// Query is one similarity request.
type Query struct {
	Subreddit string
	Mode      Mode
	Limit     int
	// Background marks precomputation runs; they are not recorded as lookups.
	Background bool
}

// Related is a ranked community with its display metadata.
type Related struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Count       int    `json:"count"`
}

// Result is the answer to a Query.
type Result struct {
	Subreddit   string    `json:"subreddit"`
	Mode        Mode      `json:"mode"`
	Related     []Related `json:"relatedSubreddits"`
	Sampled     int       `json:"sampled"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Finder computes related subreddits.
type Finder struct {
	api   reddit.API
	store store.Store // optional, nil = no cache and no history
	opts  Options
}

// NewFinder creates a new Finder. s may be nil.
func NewFinder(api reddit.API, s store.Store, opts Options) *Finder {
	if opts.DefaultMode == "" {
		opts.DefaultMode = ModePosts
	}
	if opts.DefaultLimit <= 0 || opts.DefaultLimit > MaxLimit {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.HotLimit <= 0 {
		opts.HotLimit = 100
	}
	if opts.MaxUsers <= 0 {
		opts.MaxUsers = 25
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Finder{api: api, store: s, opts: opts}
}

// Transport names the Reddit client in use.
func (f *Finder) Transport() string {
	return f.api.Name()
}

// DefaultMode is the mode used when a query does not name one.
func (f *Finder) DefaultMode() Mode {
	return f.opts.DefaultMode
}

// Search looks up community names matching query.
func (f *Finder) Search(ctx context.Context, query string, includeNSFW bool) ([]string, error) {
	names, err := f.api.SearchNames(ctx, query, includeNSFW)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return names, nil
}

// Find runs the full pipeline for q: resolve the target, fetch its hot
// feed, tally, rank and enrich the top entries.
func (f *Finder) Find(ctx context.Context, q Query) (*Result, error) {
	mode := q.Mode
	if mode == "" {
		mode = f.opts.DefaultMode
	}
	if mode != ModePosts && mode != ModeUsers {
		return nil, fmt.Errorf("%w %q", ErrInvalidMode, mode)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = f.opts.DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	target, err := f.resolveTarget(ctx, q.Subreddit)
	if err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{"subreddit": target, "mode": mode})
	started := time.Now()

	posts, err := f.api.Hot(ctx, target, f.opts.HotLimit)
	if err != nil {
		return nil, fmt.Errorf("hot r/%s: %w", target, err)
	}

	var (
		tally   *Tally
		sampled int
	)
	switch mode {
	case ModePosts:
		tally = TallyPosts(target, posts)
		sampled = len(posts)
	case ModeUsers:
		histories := f.histories(ctx, ActiveAuthors(posts, f.opts.MaxUsers))
		tally = TallyUsers(target, histories)
		sampled = len(histories)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := Rank(tally, limit)
	related, err := f.enrich(ctx, ranked)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Subreddit:   target,
		Mode:        mode,
		Related:     related,
		Sampled:     sampled,
		GeneratedAt: time.Now().UTC(),
	}

	logger.WithFields(log.Fields{
		"posts":    len(posts),
		"sampled":  sampled,
		"distinct": tally.Len(),
		"related":  len(related),
		"took":     time.Since(started).Round(time.Millisecond),
	}).Info("similar subreddits computed")

	if !q.Background {
		f.record(ctx, result)
	}
	return result, nil
}

// resolveTarget validates the requested name and returns its canonical
// spelling. Unknown communities surface reddit.ErrNotFound.
func (f *Finder) resolveTarget(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "r/")
	if !reddit.ValidSubreddit(name) {
		return "", fmt.Errorf("subreddit %q: %w", name, reddit.ErrInvalidName)
	}
	if canonical, ok := pseudoSubreddits[strings.ToLower(name)]; ok {
		return canonical, nil
	}
	sub, err := f.About(ctx, name)
	if err != nil {
		return "", fmt.Errorf("resolve r/%s: %w", name, err)
	}
	return sub.Name, nil
}

// About returns subreddit metadata, served from the store while fresh.
func (f *Finder) About(ctx context.Context, name string) (*reddit.Subreddit, error) {
	if f.store != nil {
		sub, err := f.store.GetSubreddit(ctx, name, f.opts.CacheTTL)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).WithField("subreddit", name).Warn("subreddit cache read failed")
		}
	}

	sub, err := f.api.About(ctx, name)
	if err != nil {
		return nil, err
	}

	if f.store != nil {
		if err := f.store.PutSubreddit(ctx, sub); err != nil {
			log.WithError(err).WithField("subreddit", name).Warn("subreddit cache write failed")
		}
	}
	return sub, nil
}

// histories fetches user activity in parallel, keeping the order of users.
// Users that fail are left out.
func (f *Finder) histories(ctx context.Context, users []string) []History {
	slots := make([]*History, len(users))
	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)

	for i, user := range users {
		g.Go(func() error {
			activity, err := f.api.UserActivity(ctx, user, f.opts.HistoryLimit)
			if err != nil {
				log.WithError(err).WithField("user", user).Debug("skipping user history")
				return nil
			}
			slots[i] = &History{User: user, Activity: activity}
			return nil
		})
	}
	g.Wait()

	out := make([]History, 0, len(slots))
	for _, h := range slots {
		if h != nil {
			out = append(out, *h)
		}
	}
	return out
}

// enrich resolves metadata for each ranked name in parallel. Entries whose
// lookup fails are dropped; the rest keep their rank order.
func (f *Finder) enrich(ctx context.Context, ranked []Count) ([]Related, error) {
	slots := make([]*Related, len(ranked))
	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)

	for i, c := range ranked {
		g.Go(func() error {
			sub, err := f.About(ctx, c.Name)
			if err != nil {
				log.WithError(err).WithField("subreddit", c.Name).Warn("error fetching subreddit details")
				return nil
			}
			slots[i] = newRelated(sub, c)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	related := make([]Related, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			related = append(related, *r)
		}
	}
	return related, nil
}

func newRelated(sub *reddit.Subreddit, c Count) *Related {
	r := &Related{
		Name:        sub.Name,
		Subscribers: sub.Subscribers,
		Description: strings.TrimSpace(sub.Description),
		URL:         sub.URL,
		Count:       c.Count,
	}
	if r.Name == "" {
		r.Name = c.Name
	}
	if r.Description == "" {
		r.Description = noDescription
	}
	if r.URL == "" {
		r.URL = reddit.SubredditURL(r.Name)
	}
	return r
}

func (f *Finder) record(ctx context.Context, result *Result) {
	if f.store == nil {
		return
	}
	names := make([]string, len(result.Related))
	for i, r := range result.Related {
		names[i] = r.Name
	}
	err := f.store.RecordLookup(ctx, &store.Lookup{
		Subreddit: result.Subreddit,
		Mode:      string(result.Mode),
		Related:   names,
		Sampled:   result.Sampled,
		CreatedAt: result.GeneratedAt,
	})
	if err != nil {
		log.WithError(err).WithField("subreddit", result.Subreddit).Warn("record lookup failed")
	}
}
