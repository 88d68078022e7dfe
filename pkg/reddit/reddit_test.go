package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hotListing = `{"kind":"Listing","data":{"children":[
 {"kind":"t3","data":{"id":"a1","subreddit":"golang","author":"alice","title":"one","permalink":"/r/golang/comments/a1/","stickied":true}},
 {"kind":"t3","data":{"id":"a2","subreddit":"golang","author":"bob","title":"two","permalink":"/r/golang/comments/a2/",
   "crosspost_parent_list":[{"subreddit":"rust"}]}}
]}}`

const aboutGolang = `{"kind":"t5","data":{"display_name":"golang","title":"The Go Programming Language",
 "subscribers":250000,"public_description":"Ask questions and post articles about Go.","url":"/r/golang/","over18":false}}`

// fakeOAuth serves the token endpoint and a handful of API paths.
type fakeOAuth struct {
	tokens   atomic.Int32
	rejectN  atomic.Int32 // number of API calls to answer with 401
	lastAuth atomic.Value
	noExpiry bool // omit expires_in from token grants
}

func (f *fakeOAuth) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		n := f.tokens.Add(1)
		if f.noExpiry {
			fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer"}`, n)
			return
		}
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":3600}`, n)
	})
	api := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.lastAuth.Store(r.Header.Get("Authorization"))
			assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
			if f.rejectN.Load() > 0 {
				f.rejectN.Add(-1)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, body)
		}
	}
	mux.HandleFunc("GET /r/golang/about", api(aboutGolang))
	mux.HandleFunc("GET /r/golang/hot", api(hotListing))
	mux.HandleFunc("GET /r/gone/about", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"reason":"banned","message":"Not Found","error":404}`)
	})
	mux.HandleFunc("GET /r/search/about", api(`{"kind":"Listing","data":{"children":[]}}`))
	mux.HandleFunc("GET /user/alice/submitted", api(`{"data":{"children":[{"kind":"t3","data":{"subreddit":"golang"}},{"kind":"t3","data":{"subreddit":"rust"}}]}}`))
	mux.HandleFunc("GET /user/alice/comments", api(`{"data":{"children":[{"kind":"t1","data":{"subreddit":"programming"}}]}}`))
	mux.HandleFunc("GET /api/search_reddit_names", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "go", r.URL.Query().Get("query"))
		assert.Equal(t, "false", r.URL.Query().Get("include_over_18"))
		fmt.Fprint(w, `{"names":["golang","GoRoutines"]}`)
	})
	mux.HandleFunc("GET /r/broken/about", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestOAuth(srv *httptest.Server) *OAuth {
	return NewOAuth(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		UserAgent:    "test-agent",
		AuthURL:      srv.URL + "/api/v1/access_token",
		APIURL:       srv.URL,
	})
}

func TestOAuthAboutReusesToken(t *testing.T) {
	f := &fakeOAuth{}
	c := newTestOAuth(f.server(t))
	ctx := context.Background()

	sub, err := c.About(ctx, "golang")
	require.NoError(t, err)
	assert.Equal(t, "golang", sub.Name)
	assert.Equal(t, 250000, sub.Subscribers)
	assert.Equal(t, "Ask questions and post articles about Go.", sub.Description)
	assert.Equal(t, "https://www.reddit.com/r/golang/", sub.URL)

	_, err = c.About(ctx, "golang")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokens.Load(), "token should be cached between calls")
	assert.Equal(t, "Bearer tok-1", f.lastAuth.Load())
}

func TestOAuthReusesTokenWithoutExpiry(t *testing.T) {
	f := &fakeOAuth{noExpiry: true}
	c := newTestOAuth(f.server(t))

	for i := 0; i < 3; i++ {
		_, err := c.About(context.Background(), "golang")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.tokens.Load())
}

func TestTokenLifetime(t *testing.T) {
	tests := []struct {
		expiresIn int
		want      time.Duration
	}{
		{expiresIn: 3600, want: 59 * time.Minute},
		{expiresIn: 0, want: 59 * time.Minute},
		{expiresIn: -5, want: 59 * time.Minute},
		{expiresIn: 60, want: 30 * time.Second},
		{expiresIn: 1, want: 500 * time.Millisecond},
	}
	for _, tt := range tests {
		got := tokenLifetime(tt.expiresIn)
		assert.Equal(t, tt.want, got, "expires_in=%d", tt.expiresIn)
		assert.Positive(t, got)
	}
}

func TestOAuthRetriesOnceAfterUnauthorized(t *testing.T) {
	f := &fakeOAuth{}
	c := newTestOAuth(f.server(t))

	f.rejectN.Store(1)
	_, err := c.About(context.Background(), "golang")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokens.Load())
	assert.Equal(t, "Bearer tok-2", f.lastAuth.Load())

	f.rejectN.Store(2)
	_, err = c.About(context.Background(), "golang")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestOAuthAboutErrors(t *testing.T) {
	f := &fakeOAuth{}
	c := newTestOAuth(f.server(t))
	ctx := context.Background()

	tests := []struct {
		name string
		sub  string
		want error
	}{
		{name: "banned subreddit", sub: "gone", want: ErrNotFound},
		{name: "search redirect listing", sub: "search", want: ErrNotFound},
		{name: "invalid name", sub: "no/slashes", want: ErrInvalidName},
		{name: "single character", sub: "a", want: ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.About(ctx, tt.sub)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := c.About(ctx, "broken")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestOAuthBadCredentials(t *testing.T) {
	f := &fakeOAuth{}
	srv := f.server(t)
	c := NewOAuth(Config{ClientID: "id", ClientSecret: "wrong", AuthURL: srv.URL + "/api/v1/access_token", APIURL: srv.URL})

	_, err := c.Hot(context.Background(), "golang", 10)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "auth", statusErr.Op)
}

func TestOAuthHot(t *testing.T) {
	f := &fakeOAuth{}
	c := newTestOAuth(f.server(t))

	posts, err := c.Hot(context.Background(), "golang", 100)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.True(t, posts[0].Stickied)
	assert.Equal(t, "bob", posts[1].Author)
	assert.Equal(t, []string{"rust"}, posts[1].Crossposts)
}

func TestOAuthUserActivity(t *testing.T) {
	f := &fakeOAuth{}
	c := newTestOAuth(f.server(t))

	activity, err := c.UserActivity(context.Background(), "alice", 50)
	require.NoError(t, err)
	assert.Equal(t, []Activity{
		{Kind: KindSubmission, Subreddit: "golang"},
		{Kind: KindSubmission, Subreddit: "rust"},
		{Kind: KindComment, Subreddit: "programming"},
	}, activity)

	_, err = c.UserActivity(context.Background(), "x", 50)
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestOAuthSearchNames(t *testing.T) {
	f := &fakeOAuth{}
	c := newTestOAuth(f.server(t))

	names, err := c.SearchNames(context.Background(), " go ", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"golang", "GoRoutines"}, names)

	names, err = c.SearchNames(context.Background(), "   ", false)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, int32(1), f.tokens.Load(), "blank query must not hit the API")
}

const publicHot = `{"kind":"Listing","data":{"children":[
 {"kind":"t3","data":{"id":"a1","subreddit":"golang","author":"alice","title":"one","permalink":"/r/golang/comments/a1/one/"}},
 {"kind":"t3","data":{"id":"a2","subreddit":"rust","author":"bob","title":"two","permalink":"/r/rust/comments/a2/two/",
   "crosspost_parent_list":[{"subreddit":"programming"},{"subreddit":""}]}}
]}}`

const userFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
 <title>overview for alice</title>
 <entry><author><name>/u/alice</name></author><category term="golang" label="r/golang"/><id>t3_p1</id><title>post</title><updated>2024-05-01T10:00:00+00:00</updated></entry>
 <entry><author><name>/u/alice</name></author><category term="rust" label="r/rust"/><id>t1_c1</id><title>comment</title><updated>2024-05-01T09:00:00+00:00</updated></entry>
 <entry><author><name>/u/alice</name></author><id>t1_c2</id><title>no category</title><updated>2024-05-01T08:00:00+00:00</updated></entry>
</feed>`

func newPublicServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /r/all/hot.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, publicHot)
	})
	mux.HandleFunc("GET /user/alice/.rss", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, userFeed)
	})
	mux.HandleFunc("GET /user/ghost/.rss", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("GET /r/golang/about.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, aboutGolang)
	})
	mux.HandleFunc("GET /api/search_reddit_names.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("include_over_18"))
		fmt.Fprint(w, `{"names":["golang"]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPublicHotListing(t *testing.T) {
	srv := newPublicServer(t)
	c := NewPublic(Config{PublicURL: srv.URL})

	posts, err := c.Hot(context.Background(), "all", 500)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, Post{
		ID:        "a1",
		Subreddit: "golang",
		Author:    "alice",
		Title:     "one",
		Permalink: "/r/golang/comments/a1/one/",
	}, posts[0])
	assert.Equal(t, "rust", posts[1].Subreddit)
	assert.Equal(t, "bob", posts[1].Author)
	assert.Equal(t, []string{"programming"}, posts[1].Crossposts)
}

func TestPublicUserActivity(t *testing.T) {
	srv := newPublicServer(t)
	c := NewPublic(Config{PublicURL: srv.URL})

	activity, err := c.UserActivity(context.Background(), "alice", 100)
	require.NoError(t, err)
	assert.Equal(t, []Activity{
		{Kind: KindSubmission, Subreddit: "golang"},
		{Kind: KindComment, Subreddit: "rust"},
	}, activity)

	_, err = c.UserActivity(context.Background(), "ghost", 100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublicAboutAndSearch(t *testing.T) {
	srv := newPublicServer(t)
	c := NewPublic(Config{PublicURL: srv.URL})

	sub, err := c.About(context.Background(), "golang")
	require.NoError(t, err)
	assert.Equal(t, "The Go Programming Language", sub.Title)

	names, err := c.SearchNames(context.Background(), "go", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"golang"}, names)
}

func TestNewSelectsTransport(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "auto without credentials", cfg: Config{}, want: "public"},
		{name: "auto with credentials", cfg: Config{ClientID: "id", ClientSecret: "s"}, want: "oauth"},
		{name: "forced public", cfg: Config{ClientID: "id", ClientSecret: "s", Transport: "public"}, want: "public"},
		{name: "forced oauth without credentials", cfg: Config{Transport: "oauth"}, wantErr: true},
		{name: "unknown transport", cfg: Config{Transport: "carrier-pigeon"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, api.Name())
		})
	}
}

func TestValidNames(t *testing.T) {
	assert.True(t, ValidSubreddit("golang"))
	assert.True(t, ValidSubreddit("AskReddit"))
	assert.True(t, ValidSubreddit("de_IAmA"))
	assert.False(t, ValidSubreddit("_leading"))
	assert.False(t, ValidSubreddit("this_name_is_far_too_long"))
	assert.False(t, ValidSubreddit("../etc"))

	assert.True(t, ValidUser("some-user_1"))
	assert.False(t, ValidUser("ab"))
	assert.False(t, ValidUser("[deleted]"))
}
