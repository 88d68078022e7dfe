package similar

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elonfeng/subexplorer/pkg/reddit"
)

func tallyOf(names ...string) *Tally {
	t := NewTally()
	for _, name := range names {
		t.Add(name, 1)
	}
	return t
}

func TestTallyPosts(t *testing.T) {
	posts := []reddit.Post{
		{Subreddit: "golang"},
		{Subreddit: "GoLang"},
		{Subreddit: "rust"},
		{Subreddit: "Rust", Crossposts: []string{"programming"}},
		{Subreddit: "golang", Crossposts: []string{"programming", "golang"}},
		{Subreddit: ""},
	}

	got := TallyPosts("golang", posts)
	assert.Equal(t, []Count{{"rust", 2}, {"programming", 2}}, Rank(got, 10))
	assert.Equal(t, 2, got.Get("RUST"))
}

func TestTallyUsers(t *testing.T) {
	histories := []History{
		{User: "alice", Activity: []reddit.Activity{
			{Kind: reddit.KindSubmission, Subreddit: "rust"},
			{Kind: reddit.KindComment, Subreddit: "rust"},
			{Kind: reddit.KindComment, Subreddit: "golang"},
			{Kind: reddit.KindSubmission, Subreddit: "u_alice"},
		}},
		{User: "bob", Activity: []reddit.Activity{
			{Kind: reddit.KindComment, Subreddit: "Rust"},
			{Kind: reddit.KindComment, Subreddit: "kubernetes"},
		}},
		{User: "carol", Activity: []reddit.Activity{
			{Kind: reddit.KindComment, Subreddit: "other"},
		}},
		{User: "dave"},
	}

	got := TallyUsers("GOLANG", histories)
	assert.Equal(t, 2, got.Get("rust"), "each user counts once per community, whatever the casing")
	assert.Equal(t, 1, got.Get("kubernetes"))
	assert.False(t, got.Has("golang"))
	assert.False(t, got.Has("u_alice"))
	assert.Equal(t, []Count{{"rust", 2}, {"kubernetes", 1}, {"other", 1}}, Rank(got, 10))
}

func TestRank(t *testing.T) {
	tally := tallyOf("zeta", "yak", "alpha", "yak", "beta", "alpha", "c", "c", "c")

	tests := []struct {
		name string
		n    int
		want []Count
	}{
		{name: "top two", n: 2, want: []Count{{"c", 3}, {"yak", 2}}},
		{name: "ties keep first-seen order", n: 3, want: []Count{{"c", 3}, {"yak", 2}, {"alpha", 2}}},
		{name: "n larger than tally", n: 10, want: []Count{{"c", 3}, {"yak", 2}, {"alpha", 2}, {"zeta", 1}, {"beta", 1}}},
		{name: "zero n", n: 0, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rank(tally, tt.n))
		})
	}

	assert.Nil(t, Rank(NewTally(), 5))
	assert.Equal(t, []Count{{"zeta", 1}, {"yak", 1}}, Rank(tallyOf("zeta", "yak", "alpha", "beta"), 2))
}

func TestTallyAddAndMerge(t *testing.T) {
	tally := NewTally()
	tally.Add("a", 2)
	tally.Add("a", -5)
	tally.Add("", 1)
	tally.Merge(tallyOf("b", "A", "b"))

	assert.Equal(t, 2, tally.Len())
	assert.Equal(t, []Count{{"a", 3}, {"b", 2}}, Rank(tally, 5), "first spelling wins")
}

func TestActiveAuthors(t *testing.T) {
	posts := []reddit.Post{
		{Author: "alice"},
		{Author: "[deleted]"},
		{Author: "AutoModerator"},
		{Author: "Alice"},
		{Author: "bob"},
		{Author: ""},
		{Author: "carol"},
	}

	assert.Equal(t, []string{"alice", "bob", "carol"}, ActiveAuthors(posts, 10))
	assert.Equal(t, []string{"alice", "bob"}, ActiveAuthors(posts, 2))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("", ModeUsers)
	assert.NoError(t, err)
	assert.Equal(t, ModeUsers, m)

	m, err = ParseMode(" Posts ", ModeUsers)
	assert.NoError(t, err)
	assert.Equal(t, ModePosts, m)

	_, err = ParseMode("comments", ModePosts)
	assert.ErrorIs(t, err, ErrInvalidMode)
}
