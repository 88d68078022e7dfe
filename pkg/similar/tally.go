package similar

import (
	"sort"
	"strings"

	"github.com/elonfeng/subexplorer/pkg/reddit"
)

// Tally counts subreddit sightings. Names are matched case-insensitively;
// the first spelling seen is the one reported. Counts are never negative.
type Tally struct {
	index   map[string]int // lower-case name -> position in entries
	entries []Count
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{index: make(map[string]int)}
}

// Add increases the count for name by n. Empty names and non-positive
// increments are ignored.
func (t *Tally) Add(name string, n int) {
	if name == "" || n <= 0 {
		return
	}
	key := strings.ToLower(name)
	if i, ok := t.index[key]; ok {
		t.entries[i].Count += n
		return
	}
	t.index[key] = len(t.entries)
	t.entries = append(t.entries, Count{Name: name, Count: n})
}

// Has reports whether name has been counted.
func (t *Tally) Has(name string) bool {
	_, ok := t.index[strings.ToLower(name)]
	return ok
}

// Get returns the count for name.
func (t *Tally) Get(name string) int {
	if i, ok := t.index[strings.ToLower(name)]; ok {
		return t.entries[i].Count
	}
	return 0
}

// Len is the number of distinct names.
func (t *Tally) Len() int {
	return len(t.entries)
}

// Merge adds every count of other into t, in other's first-seen order.
func (t *Tally) Merge(other *Tally) {
	for _, c := range other.entries {
		t.Add(c.Name, c.Count)
	}
}

// Count is one ranked entry.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Rank orders the tally by count descending and keeps the first n entries.
// Equal counts keep first-seen order, which for a hot feed is hotness order.
func Rank(t *Tally, n int) []Count {
	if n <= 0 || t.Len() == 0 {
		return nil
	}

	counts := make([]Count, len(t.entries))
	copy(counts, t.entries)

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})

	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// TallyPosts counts the communities hot posts belong to, plus the
// communities their crossposts came from, skipping the target itself.
func TallyPosts(target string, posts []reddit.Post) *Tally {
	t := NewTally()
	for _, post := range posts {
		if !strings.EqualFold(post.Subreddit, target) {
			t.Add(post.Subreddit, 1)
		}
		for _, parent := range post.Crossposts {
			if !strings.EqualFold(parent, target) {
				t.Add(parent, 1)
			}
		}
	}
	return t
}

// History is one sampled user's recent activity.
type History struct {
	User     string
	Activity []reddit.Activity
}

// TallyUsers counts, per community, how many of the sampled users were
// active in it. A user contributes at most one to each community.
// The target and user profile pages (u_<name>) are skipped.
func TallyUsers(target string, histories []History) *Tally {
	t := NewTally()
	for _, h := range histories {
		member := NewTally()
		for _, a := range h.Activity {
			if a.Subreddit == "" || member.Has(a.Subreddit) ||
				strings.EqualFold(a.Subreddit, target) ||
				strings.HasPrefix(strings.ToLower(a.Subreddit), "u_") {
				continue
			}
			member.Add(a.Subreddit, 1)
		}
		t.Merge(member)
	}
	return t
}

// ignoredAuthors never represent a real community member.
var ignoredAuthors = map[string]bool{
	"[deleted]":     true,
	"automoderator": true,
}

// ActiveAuthors returns up to max distinct authors in feed order.
func ActiveAuthors(posts []reddit.Post, max int) []string {
	var authors []string
	seen := make(map[string]bool)
	for _, post := range posts {
		if len(authors) >= max {
			break
		}
		key := strings.ToLower(post.Author)
		if key == "" || seen[key] || ignoredAuthors[key] || !reddit.ValidUser(post.Author) {
			continue
		}
		seen[key] = true
		authors = append(authors, post.Author)
	}
	return authors
}
