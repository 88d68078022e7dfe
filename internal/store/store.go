package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/subexplorer/pkg/reddit"
)

// ErrNotFound is returned when a row is missing or too old to use.
var ErrNotFound = errors.New("not found")

// Lookup is one recorded similarity request.
type Lookup struct {
	ID          int64     `db:"id" json:"id"`
	Subreddit   string    `db:"subreddit" json:"subreddit"`
	Mode        string    `db:"mode" json:"mode"`
	RelatedJSON string    `db:"related" json:"-"`
	Related     []string  `db:"-" json:"related"`
	Sampled     int       `db:"sampled" json:"sampled"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// LookupListOpts controls lookup listing.
type LookupListOpts struct {
	Subreddit string
	Limit     int
}

// Store is the persistence interface.
type Store interface {
	GetSubreddit(ctx context.Context, name string, maxAge time.Duration) (*reddit.Subreddit, error)
	PutSubreddit(ctx context.Context, sub *reddit.Subreddit) error
	PurgeSubreddits(ctx context.Context, olderThan time.Time) (int64, error)

	RecordLookup(ctx context.Context, l *Lookup) error
	ListLookups(ctx context.Context, opts LookupListOpts) ([]Lookup, error)
	PurgeLookups(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

type subredditRow struct {
	NameKey string `db:"name_key"`
	reddit.Subreddit
	FetchedAt time.Time `db:"fetched_at"`
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: the finder writes cache rows from several goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC().Truncate(time.Second) }}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetSubreddit returns cached metadata fetched within maxAge. A zero maxAge
// accepts any age.
func (s *SQLiteStore) GetSubreddit(ctx context.Context, name string, maxAge time.Duration) (*reddit.Subreddit, error) {
	var row subredditRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM subreddits WHERE name_key = ?", nameKey(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get subreddit %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subreddit %s: %w", name, err)
	}
	if maxAge > 0 && s.now().Sub(row.FetchedAt) > maxAge {
		return nil, fmt.Errorf("get subreddit %s: stale: %w", name, ErrNotFound)
	}
	sub := row.Subreddit
	return &sub, nil
}

func (s *SQLiteStore) PutSubreddit(ctx context.Context, sub *reddit.Subreddit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subreddits (name_key, name, title, subscribers, description, url, over_18, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name_key) DO UPDATE SET
			name = excluded.name,
			title = excluded.title,
			subscribers = excluded.subscribers,
			description = excluded.description,
			url = excluded.url,
			over_18 = excluded.over_18,
			fetched_at = excluded.fetched_at
	`, nameKey(sub.Name), sub.Name, sub.Title, sub.Subscribers, sub.Description,
		sub.URL, sub.Over18, s.now())
	if err != nil {
		return fmt.Errorf("put subreddit %s: %w", sub.Name, err)
	}
	return nil
}

// PurgeSubreddits deletes cache rows fetched before olderThan.
func (s *SQLiteStore) PurgeSubreddits(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM subreddits WHERE fetched_at < ?",
		olderThan.UTC().Truncate(time.Second))
	if err != nil {
		return 0, fmt.Errorf("purge subreddits: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) RecordLookup(ctx context.Context, l *Lookup) error {
	related := l.Related
	if related == nil {
		related = []string{}
	}
	relatedJSON, _ := json.Marshal(related)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	l.CreatedAt = l.CreatedAt.UTC().Truncate(time.Second)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO lookups (subreddit, mode, related, sampled, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, l.Subreddit, l.Mode, string(relatedJSON), l.Sampled, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("record lookup %s: %w", l.Subreddit, err)
	}
	l.ID, _ = res.LastInsertId()
	l.RelatedJSON = string(relatedJSON)
	return nil
}

// ListLookups returns lookups newest first.
func (s *SQLiteStore) ListLookups(ctx context.Context, opts LookupListOpts) ([]Lookup, error) {
	query := "SELECT * FROM lookups WHERE 1=1"
	var args []any

	if opts.Subreddit != "" {
		query += " AND subreddit = ? COLLATE NOCASE"
		args = append(args, opts.Subreddit)
	}

	query += " ORDER BY created_at DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var lookups []Lookup
	if err := s.db.SelectContext(ctx, &lookups, query, args...); err != nil {
		return nil, fmt.Errorf("list lookups: %w", err)
	}

	for i := range lookups {
		json.Unmarshal([]byte(lookups[i].RelatedJSON), &lookups[i].Related)
	}
	return lookups, nil
}

// PurgeLookups deletes lookups recorded before olderThan.
func (s *SQLiteStore) PurgeLookups(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM lookups WHERE created_at < ?",
		olderThan.UTC().Truncate(time.Second))
	if err != nil {
		return 0, fmt.Errorf("purge lookups: %w", err)
	}
	return res.RowsAffected()
}

func nameKey(name string) string {
	return strings.ToLower(name)
}
