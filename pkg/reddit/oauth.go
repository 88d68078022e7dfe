package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// OAuth reads Reddit through oauth.reddit.com with an application-only
// (client credentials) bearer token.
type OAuth struct {
	client       *http.Client
	clientID     string
	clientSecret string
	userAgent    string
	authURL      string
	apiURL       string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewOAuth creates a client-credentials Reddit client.
func NewOAuth(cfg Config) *OAuth {
	return &OAuth{
		client:       cfg.httpClient(),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		userAgent:    cfg.userAgent(),
		authURL:      orDefault(cfg.AuthURL, DefaultAuthURL),
		apiURL:       orDefault(cfg.APIURL, DefaultAPIURL),
	}
}

func (o *OAuth) Name() string { return "oauth" }

func (o *OAuth) About(ctx context.Context, subreddit string) (*Subreddit, error) {
	if !ValidSubreddit(subreddit) {
		return nil, fmt.Errorf("about r/%s: %w", subreddit, ErrInvalidName)
	}

	var thing aboutThing
	if err := o.get(ctx, "about r/"+subreddit, "/r/"+subreddit+"/about", nil, &thing); err != nil {
		return nil, err
	}
	if thing.Kind != "t5" || thing.Data.DisplayName == "" {
		return nil, fmt.Errorf("about r/%s: %w", subreddit, ErrNotFound)
	}
	return thing.Data.subreddit(), nil
}

func (o *OAuth) Hot(ctx context.Context, subreddit string, limit int) ([]Post, error) {
	if !ValidSubreddit(subreddit) {
		return nil, fmt.Errorf("hot r/%s: %w", subreddit, ErrInvalidName)
	}

	var l listing[postData]
	params := url.Values{"limit": {strconv.Itoa(clampLimit(limit))}}
	if err := o.get(ctx, "hot r/"+subreddit, "/r/"+subreddit+"/hot", params, &l); err != nil {
		return nil, err
	}

	return postsOf(l), nil
}

func (o *OAuth) UserActivity(ctx context.Context, user string, limit int) ([]Activity, error) {
	if !ValidUser(user) {
		return nil, fmt.Errorf("activity u/%s: %w", user, ErrInvalidName)
	}

	params := url.Values{"limit": {strconv.Itoa(clampLimit(limit))}}

	var submitted listing[activityData]
	if err := o.get(ctx, "submitted u/"+user, "/user/"+user+"/submitted", params, &submitted); err != nil {
		return nil, err
	}
	var comments listing[activityData]
	if err := o.get(ctx, "comments u/"+user, "/user/"+user+"/comments", params, &comments); err != nil {
		return nil, err
	}

	activity := make([]Activity, 0, len(submitted.Data.Children)+len(comments.Data.Children))
	for _, child := range submitted.Data.Children {
		activity = append(activity, Activity{Kind: KindSubmission, Subreddit: child.Data.Subreddit})
	}
	for _, child := range comments.Data.Children {
		activity = append(activity, Activity{Kind: KindComment, Subreddit: child.Data.Subreddit})
	}
	return activity, nil
}

func (o *OAuth) SearchNames(ctx context.Context, query string, includeNSFW bool) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}, nil
	}

	params := url.Values{
		"query":           {query},
		"include_over_18": {strconv.FormatBool(includeNSFW)},
	}
	var resp namesResponse
	if err := o.get(ctx, "search names", "/api/search_reddit_names", params, &resp); err != nil {
		return nil, err
	}
	if resp.Names == nil {
		return []string{}, nil
	}
	return resp.Names, nil
}

// authenticate fetches a new token unless the cached one is still valid.
func (o *OAuth) authenticate(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.token != "" && time.Now().Before(o.tokenExpiry) {
		return o.token, nil
	}

	data := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.authURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}

	req.SetBasicAuth(o.clientID, o.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", o.userAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reddit token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Op: "auth", Code: resp.StatusCode}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode reddit token: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("reddit token request: empty token (%s)", tokenResp.Error)
	}

	o.token = tokenResp.AccessToken
	o.tokenExpiry = time.Now().Add(tokenLifetime(tokenResp.ExpiresIn))
	return o.token, nil
}

// tokenLifetime is how long a granted token is reused. Tokens are refreshed a
// minute early; short lifetimes are halved and a missing one counts as an hour.
func tokenLifetime(expiresIn int) time.Duration {
	switch {
	case expiresIn <= 0:
		return time.Hour - time.Minute
	case expiresIn > 120:
		return time.Duration(expiresIn-60) * time.Second
	default:
		return time.Duration(expiresIn) * time.Second / 2
	}
}

func (o *OAuth) invalidate(token string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.token == token {
		o.token = ""
	}
}

// get performs an authenticated GET and decodes the JSON body into out.
// A 401 drops the cached token and retries once.
func (o *OAuth) get(ctx context.Context, op, path string, params url.Values, out any) error {
	reqURL := o.apiURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	for attempt := 0; ; attempt++ {
		token, err := o.authenticate(ctx)
		if err != nil {
			return fmt.Errorf("reddit auth: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", o.userAgent)

		resp, err := o.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", op, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			drain(resp.Body)
			o.invalidate(token)
			continue
		}

		return decodeResponse(op, resp, out)
	}
}

func decodeResponse(op string, resp *http.Response, out any) error {
	defer resp.Body.Close()

	if err := checkStatus(op, resp.StatusCode); err != nil {
		drain(resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", op, err)
	}
	return nil
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
}

// clampLimit keeps listing sizes within what Reddit serves in one page.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 25
	}
	if limit > 100 {
		return 100
	}
	return limit
}

type listing[T any] struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data T      `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type postData struct {
	ID                  string `json:"id"`
	Subreddit           string `json:"subreddit"`
	Author              string `json:"author"`
	Title               string `json:"title"`
	Permalink           string `json:"permalink"`
	Stickied            bool   `json:"stickied"`
	CrosspostParentList []struct {
		Subreddit string `json:"subreddit"`
	} `json:"crosspost_parent_list"`
}

func (p postData) post() Post {
	post := Post{
		ID:        p.ID,
		Subreddit: p.Subreddit,
		Author:    p.Author,
		Title:     p.Title,
		Permalink: p.Permalink,
		Stickied:  p.Stickied,
	}
	for _, parent := range p.CrosspostParentList {
		if parent.Subreddit != "" {
			post.Crossposts = append(post.Crossposts, parent.Subreddit)
		}
	}
	return post
}

// postsOf maps a link listing to posts in listing order.
func postsOf(l listing[postData]) []Post {
	posts := make([]Post, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		posts = append(posts, child.Data.post())
	}
	return posts
}

type activityData struct {
	Subreddit string `json:"subreddit"`
}

type aboutThing struct {
	Kind string    `json:"kind"`
	Data aboutData `json:"data"`
}

type aboutData struct {
	DisplayName       string `json:"display_name"`
	Title             string `json:"title"`
	Subscribers       int    `json:"subscribers"`
	PublicDescription string `json:"public_description"`
	URL               string `json:"url"`
	Over18            bool   `json:"over18"`
}

func (a aboutData) subreddit() *Subreddit {
	return &Subreddit{
		Name:        a.DisplayName,
		Title:       a.Title,
		Subscribers: a.Subscribers,
		Description: a.PublicDescription,
		URL:         SubredditURL(a.DisplayName),
		Over18:      a.Over18,
	}
}

type namesResponse struct {
	Names []string `json:"names"`
}
