package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultUserAgent = "SubredditExplorer/1.0"
	DefaultAuthURL   = "https://www.reddit.com/api/v1/access_token"
	DefaultAPIURL    = "https://oauth.reddit.com"
	DefaultPublicURL = "https://www.reddit.com"
)

var (
	// ErrNotFound is returned for unknown, private or banned subreddits and users.
	ErrNotFound = errors.New("not found")

	// ErrInvalidName is returned before any request is made for names Reddit
	// would never accept.
	ErrInvalidName = errors.New("invalid name")
)

var (
	subredditName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]{1,20}$`)
	userName      = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)
)

// StatusError reports an unexpected HTTP status from Reddit.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reddit %s status %d", e.Op, e.Code)
}

// Subreddit is the display metadata for a community.
type Subreddit struct {
	Name        string `json:"name" db:"name"`
	Title       string `json:"title" db:"title"`
	Subscribers int    `json:"subscribers" db:"subscribers"`
	Description string `json:"description" db:"description"`
	URL         string `json:"url" db:"url"`
	Over18      bool   `json:"over_18" db:"over_18"`
}

// Post is one entry of a subreddit listing.
type Post struct {
	ID         string   `json:"id"`
	Subreddit  string   `json:"subreddit"`
	Author     string   `json:"author"`
	Title      string   `json:"title"`
	Permalink  string   `json:"permalink"`
	Stickied   bool     `json:"stickied"`
	Crossposts []string `json:"crossposts,omitempty"` // subreddits of crosspost parents
}

// ActivityKind distinguishes submissions from comments in a user history.
type ActivityKind string

const (
	KindSubmission ActivityKind = "submission"
	KindComment    ActivityKind = "comment"
)

// Activity is a single item of a user's public history.
type Activity struct {
	Kind      ActivityKind `json:"kind"`
	Subreddit string       `json:"subreddit"`
}

// API is the read-only surface of Reddit the explorer needs.
type API interface {
	Name() string
	About(ctx context.Context, subreddit string) (*Subreddit, error)
	Hot(ctx context.Context, subreddit string, limit int) ([]Post, error)
	UserActivity(ctx context.Context, user string, limit int) ([]Activity, error)
	SearchNames(ctx context.Context, query string, includeNSFW bool) ([]string, error)
}

// Config selects and configures a transport.
type Config struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	Transport    string // "auto", "oauth" or "public"
	AuthURL      string
	APIURL       string
	PublicURL    string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// New returns the OAuth client when credentials are configured (or the
// transport is forced to oauth) and the public feed client otherwise.
func New(cfg Config) (API, error) {
	switch cfg.Transport {
	case "", "auto":
		if cfg.ClientID != "" && cfg.ClientSecret != "" {
			return NewOAuth(cfg), nil
		}
		return NewPublic(cfg), nil
	case "oauth":
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("oauth transport requires client id and secret")
		}
		return NewOAuth(cfg), nil
	case "public":
		return NewPublic(cfg), nil
	}
	return nil, fmt.Errorf("unknown reddit transport %q", cfg.Transport)
}

// ValidSubreddit reports whether name is a syntactically valid community name.
func ValidSubreddit(name string) bool {
	return subredditName.MatchString(name)
}

// ValidUser reports whether name is a syntactically valid account name.
func ValidUser(name string) bool {
	return userName.MatchString(name)
}

// SubredditURL is the canonical browser URL of a community.
func SubredditURL(name string) string {
	return "https://www.reddit.com/r/" + name + "/"
}

func (c Config) userAgent() string {
	if c.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.UserAgent
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return strings.TrimRight(v, "/")
}

func checkStatus(op string, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound, code == http.StatusForbidden:
		return fmt.Errorf("reddit %s: %w", op, ErrNotFound)
	}
	return &StatusError{Op: op, Code: code}
}
