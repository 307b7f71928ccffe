package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://WWW.Example.COM/Path", "https://example.com/Path"},
		{"strips default https port", "https://example.com:443/a", "https://example.com/a"},
		{"strips default http port", "http://example.com:80/a", "http://example.com/a"},
		{"keeps custom port", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"drops fragment", "https://example.com/a#reviews", "https://example.com/a"},
		{"drops trailing slash", "https://example.com/a/b/", "https://example.com/a/b"},
		{"root path", "https://example.com/", "https://example.com"},
		{"drops tracking params", "https://example.com/a?utm_source=x&utm_medium=y&gclid=1&id=7", "https://example.com/a?id=7"},
		{"sorts query", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"drops userinfo", "https://user:pw@example.com/a", "https://example.com/a"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURLRejectsHostless(t *testing.T) {
	t.Parallel()

	_, err := NormalizeURL("/relative/path")
	require.Error(t, err)
	_, err = URLHash("::::")
	require.Error(t, err)
}

func TestURLHashEquivalentURLs(t *testing.T) {
	t.Parallel()

	base, err := URLHash("https://example.com/whisky/lagavulin-16")
	require.NoError(t, err)
	require.Len(t, base, 64)

	variants := []string{
		"HTTPS://example.com/whisky/lagavulin-16",
		"https://example.com/whisky/lagavulin-16/",
		"https://www.example.com/whisky/lagavulin-16",
		"https://example.com/whisky/lagavulin-16?utm_campaign=spring",
		"https://example.com/whisky/lagavulin-16?fbclid=abc#top",
	}
	for _, v := range variants {
		got, err := URLHash(v)
		require.NoError(t, err)
		require.Equal(t, base, got, v)
	}

	other, err := URLHash("https://example.com/whisky/lagavulin-8")
	require.NoError(t, err)
	require.NotEqual(t, base, other)
}

func TestCustomTrackingParams(t *testing.T) {
	t.Parallel()

	n := NewNormalizer([]string{"session", "aff_*"})
	got, err := n.Normalize("https://shop.example/p?session=1&aff_id=2&utm_source=x")
	require.NoError(t, err)
	require.Equal(t, "https://shop.example/p?utm_source=x", got)
}
