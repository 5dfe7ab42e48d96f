package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	URL   string
	Title string
}

func urlOf(i item) string { return i.URL }

func TestSanitizeURL(t *testing.T) {
	require.Equal(t, "https://img.example.com/a%20b%20c.jpg", SanitizeURL("https://img.example.com/a b \t c.jpg"))
	require.Equal(t, "https://x.com/a.png", SanitizeURL("https://x.com/a.png"))
}

func TestExtractDomain(t *testing.T) {
	cases := map[string]string{
		"https://a.com/1":           "a.com",
		"http://A.com?x=1":          "A.com",
		"HTTPS://sub.b.org#frag":    "sub.b.org",
		"https://c.net":             "c.net",
		"https://host:8443/path":    "host:8443",
		"ftp://files.example.com/x": "ftp://files.example.com/x",
		"not a url":                 "not a url",
	}
	for input, want := range cases {
		require.Equal(t, want, ExtractDomain(input), input)
	}
}

func TestDedupe_FirstSeenWins(t *testing.T) {
	in := []item{
		{URL: "https://a.com/1", Title: "first"},
		{URL: "https://a.com/2", Title: "same domain"},
		{URL: "https://b.com/1", Title: "b"},
		{URL: "https://a.com/1", Title: "dup url"},
	}
	out := Dedupe(in, urlOf)
	require.Equal(t, []item{
		{URL: "https://a.com/1", Title: "first"},
		{URL: "https://b.com/1", Title: "b"},
	}, out)
}

func TestDedupe_DomainIsCaseSensitive(t *testing.T) {
	out := Dedupe([]item{{URL: "https://A.com/x"}, {URL: "https://a.com/x"}}, urlOf)
	require.Len(t, out, 2)
}

func TestDedupe_NoDuplicatesProperty(t *testing.T) {
	in := []item{
		{URL: "https://x.io/a"}, {URL: "https://y.io/a"}, {URL: "https://x.io/b"},
		{URL: "https://z.io"}, {URL: "https://y.io/a"}, {URL: "https://z.io/"},
		{URL: "weird"}, {URL: "weird"},
	}
	out := Dedupe(in, urlOf)
	urls := map[string]bool{}
	domains := map[string]bool{}
	for _, it := range out {
		require.False(t, urls[it.URL])
		require.False(t, domains[ExtractDomain(it.URL)])
		urls[it.URL] = true
		domains[ExtractDomain(it.URL)] = true
	}
	require.Equal(t, []string{"https://x.io/a", "https://y.io/a", "https://z.io", "weird"}, []string{out[0].URL, out[1].URL, out[2].URL, out[3].URL})
}

func TestDedupe_Empty(t *testing.T) {
	require.Empty(t, Dedupe([]item(nil), urlOf))
}
