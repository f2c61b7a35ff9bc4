package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSite(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  error
	}{
		{"https://www.Twitter.com/home", "twitter.com", nil},
		{"http://facebook.com", "facebook.com", nil},
		{"HTTPS://WWW.YouTube.com/watch?v=1", "youtube.com", nil},
		{"  reddit.com  ", "reddit.com", nil},
		{"www.news.ycombinator.com/item", "news.ycombinator.com", nil},
		{"m.facebook.com", "m.facebook.com", nil},
		{"ftp://example.com", "", ErrInvalidDomain},
		{"localhost", "", ErrInvalidDomain},
		{"https://localhost/path.html", "", ErrInvalidDomain},
		{"www.", "", ErrInvalidDomain},
		{"", "", ErrEmptySite},
		{"   ", "", ErrEmptySite},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizeSite(tc.in)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAddSite_Idempotent(t *testing.T) {
	sites := []string{"facebook.com"}

	sites, changed := AddSite(sites, "twitter.com")
	assert.True(t, changed)
	assert.Equal(t, []string{"facebook.com", "twitter.com"}, sites)

	again, changed := AddSite(sites, "twitter.com")
	assert.False(t, changed)
	assert.Equal(t, sites, again)
}

func TestAddSite_NilList(t *testing.T) {
	sites, changed := AddSite(nil, "example.com")
	assert.True(t, changed)
	assert.Equal(t, []string{"example.com"}, sites)
}

func TestRemoveSite(t *testing.T) {
	sites := []string{"a.com", "b.com", "c.com"}

	out, changed := RemoveSite(sites, "b.com")
	assert.True(t, changed)
	assert.Equal(t, []string{"a.com", "c.com"}, out)

	out, changed = RemoveSite(out, "zzz.com")
	assert.False(t, changed)
	assert.Equal(t, []string{"a.com", "c.com"}, out)
}

func TestRemoveSiteAt(t *testing.T) {
	sites := []string{"a.com", "b.com", "c.com"}

	out, changed := RemoveSiteAt(sites, 0)
	assert.True(t, changed)
	assert.Equal(t, []string{"b.com", "c.com"}, out)
	assert.Equal(t, []string{"a.com", "b.com", "c.com"}, sites, "input must not be modified")

	for _, i := range []int{-1, 3, 10} {
		out, changed = RemoveSiteAt(sites, i)
		assert.False(t, changed, "index %d", i)
		assert.Equal(t, sites, out)
	}
}
