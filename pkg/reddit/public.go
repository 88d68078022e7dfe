package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Public reads Reddit without credentials. Hot listings, metadata and name
// search use the public .json endpoints; user history comes from the Atom
// feed www.reddit.com publishes for every user.
type Public struct {
	client    *http.Client
	userAgent string
	baseURL   string
}

// NewPublic creates a credential-free Reddit client.
func NewPublic(cfg Config) *Public {
	return &Public{
		client:    cfg.httpClient(),
		userAgent: cfg.userAgent(),
		baseURL:   orDefault(cfg.PublicURL, DefaultPublicURL),
	}
}

func (p *Public) Name() string { return "public" }

func (p *Public) About(ctx context.Context, subreddit string) (*Subreddit, error) {
	if !ValidSubreddit(subreddit) {
		return nil, fmt.Errorf("about r/%s: %w", subreddit, ErrInvalidName)
	}

	var thing aboutThing
	if err := p.getJSON(ctx, "about r/"+subreddit, "/r/"+subreddit+"/about.json", nil, &thing); err != nil {
		return nil, err
	}
	if thing.Kind != "t5" || thing.Data.DisplayName == "" {
		return nil, fmt.Errorf("about r/%s: %w", subreddit, ErrNotFound)
	}
	return thing.Data.subreddit(), nil
}

func (p *Public) Hot(ctx context.Context, subreddit string, limit int) ([]Post, error) {
	if !ValidSubreddit(subreddit) {
		return nil, fmt.Errorf("hot r/%s: %w", subreddit, ErrInvalidName)
	}

	var l listing[postData]
	params := url.Values{"limit": {strconv.Itoa(clampLimit(limit))}}
	if err := p.getJSON(ctx, "hot r/"+subreddit, "/r/"+subreddit+"/hot.json", params, &l); err != nil {
		return nil, err
	}
	return postsOf(l), nil
}

func (p *Public) UserActivity(ctx context.Context, user string, limit int) ([]Activity, error) {
	if !ValidUser(user) {
		return nil, fmt.Errorf("activity u/%s: %w", user, ErrInvalidName)
	}

	feed, err := p.getFeed(ctx, "overview u/"+user, "/user/"+user+"/.rss", limit)
	if err != nil {
		return nil, err
	}

	activity := make([]Activity, 0, len(feed.Items))
	for _, entry := range feed.Items {
		sub := entrySubreddit(entry)
		if sub == "" {
			continue
		}
		kind := KindSubmission
		if strings.HasPrefix(entry.GUID, "t1_") {
			kind = KindComment
		}
		activity = append(activity, Activity{Kind: kind, Subreddit: sub})
	}
	return activity, nil
}

func (p *Public) SearchNames(ctx context.Context, query string, includeNSFW bool) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}, nil
	}

	params := url.Values{
		"query":           {query},
		"include_over_18": {strconv.FormatBool(includeNSFW)},
	}
	var resp namesResponse
	if err := p.getJSON(ctx, "search names", "/api/search_reddit_names.json", params, &resp); err != nil {
		return nil, err
	}
	if resp.Names == nil {
		return []string{}, nil
	}
	return resp.Names, nil
}

func (p *Public) newRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	reqURL := p.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	return req, nil
}

func (p *Public) getJSON(ctx context.Context, op, path string, params url.Values, out any) error {
	req, err := p.newRequest(ctx, path, params)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", op, err)
	}
	return decodeResponse(op, resp, out)
}

func (p *Public) getFeed(ctx context.Context, op, path string, limit int) (*gofeed.Feed, error) {
	req, err := p.newRequest(ctx, path, url.Values{"limit": {strconv.Itoa(clampLimit(limit))}})
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", op, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(op, resp.StatusCode); err != nil {
		drain(resp.Body)
		return nil, err
	}

	// gofeed parsers keep per-document state; one per call keeps
	// concurrent user fetches independent.
	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", op, err)
	}
	return feed, nil
}

// entrySubreddit reads the community from the entry's category term.
func entrySubreddit(entry *gofeed.Item) string {
	for _, c := range entry.Categories {
		c = strings.TrimPrefix(strings.TrimSpace(c), "r/")
		if c != "" {
			return c
		}
	}
	return ""
}

var (
	_ API = (*OAuth)(nil)
	_ API = (*Public)(nil)
)
