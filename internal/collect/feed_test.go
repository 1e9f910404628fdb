package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/NewsSync/internal/article"
	"github.com/TobiSchelling/NewsSync/internal/logger"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Example News</title>
  <item>
    <title><![CDATA[Tom &amp; Jerry&#8217;s &quot;big&quot; day]]></title>
    <link>https://example.com/a</link>
    <description><![CDATA[<p>First &lt;paragraph&gt;</p>]]></description>
    <pubDate>Mon, 02 Feb 2026 10:00:00 +0000</pubDate>
    <media:content url="https://img.example.com/a.jpg" medium="image"/>
  </item>
  <item>
    <title>No link item</title>
    <description>Body only</description>
  </item>
  <item>
    <guid>https://example.com/from-guid</guid>
    <title>Guid link</title>
    <media:thumbnail url="https://img.example.com/thumb.jpg"/>
  </item>
  <item>
    <description>no title and no link</description>
  </item>
  <item>
    <title>Inline image</title>
    <link>  <![CDATA[https://example.com/inline]]>  </link>
    <description><![CDATA[<div><img src="https://img.example.com/inline.png"/> text</div>]]></description>
  </item>
</channel>
</rss>`

func collectSeq(t *testing.T, body string, src FeedSource) []article.Article {
	t.Helper()
	return slices.Collect(ParseFeed(body, src, fixedNow))
}

func TestParseFeedNormalizesItems(t *testing.T) {
	src := FeedSource{ID: "example", Name: "Example", FallbackImage: "https://example.com/logo.png"}
	got := collectSeq(t, sampleRSS, src)

	require.Len(t, got, 4)

	first := got[0]
	assert.Equal(t, "https://example.com/a", first.Identity)
	assert.Equal(t, `Tom & Jerry’s "big" day`, first.Title)
	assert.Equal(t, "First <paragraph>", first.Description)
	assert.Equal(t, "https://img.example.com/a.jpg", first.ImageURL)
	assert.Equal(t, time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC), first.PublishedAt)
	assert.Equal(t, "example", first.SourceID)
	assert.Equal(t, "Example", first.SourceName)

	second := got[1]
	assert.Equal(t, "No link item::1", second.Identity)
	assert.Equal(t, fixedNow, second.PublishedAt)
	assert.Equal(t, "https://example.com/logo.png", second.ImageURL)

	third := got[2]
	assert.Equal(t, "https://example.com/from-guid", third.Identity)
	assert.Equal(t, "https://img.example.com/thumb.jpg", third.ImageURL)

	fourth := got[3]
	assert.Equal(t, "https://example.com/inline", fourth.Identity)
	assert.Equal(t, "https://img.example.com/inline.png", fourth.ImageURL)
}

func TestParseFeedIsRestartable(t *testing.T) {
	seq := ParseFeed(sampleRSS, FeedSource{ID: "example"}, fixedNow)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)
}

func TestParseFeedCapsItems(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Big</title>`)
	for i := range 150 {
		fmt.Fprintf(&b, "<item><title>Story %d</title><link>https://example.com/%d</link></item>", i, i)
	}
	b.WriteString(`</channel></rss>`)

	got := collectSeq(t, b.String(), FeedSource{ID: "big"})
	assert.Len(t, got, maxPerFeed)
	assert.Equal(t, "https://example.com/0", got[0].Identity)
}

func TestParseFeedCapCountsDocumentItems(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Big</title>`)
	for range 5 {
		b.WriteString("<item><description>no title and no link</description></item>")
	}
	for i := range 150 {
		fmt.Fprintf(&b, "<item><title>Story %d</title><link>https://example.com/%d</link></item>", i, i)
	}
	b.WriteString(`</channel></rss>`)

	got := collectSeq(t, b.String(), FeedSource{ID: "big"})
	require.Len(t, got, maxPerFeed-5)
	assert.Equal(t, "https://example.com/94", got[len(got)-1].Identity)
}

func TestParseFeedDecodesEntitiesOnce(t *testing.T) {
	const rss = `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>
<item><title>AT&amp;amp;T &amp;lt;b&amp;gt;</title><link>https://example.com/plain</link>
<description>Fish &amp;amp; chips</description></item>
<item><title><![CDATA[AT&amp;T &lt;b&gt;]]></title><link>https://example.com/cdata</link>
<description><![CDATA[<p>Fish &amp; chips</p>]]></description></item>
</channel></rss>`

	got := collectSeq(t, rss, FeedSource{ID: "entities"})
	require.Len(t, got, 2)
	assert.Equal(t, "AT&amp;T &lt;b&gt;", got[0].Title)
	assert.Equal(t, "Fish &amp; chips", got[0].Description)
	assert.Equal(t, "AT&T <b>", got[1].Title)
	assert.Equal(t, "Fish & chips", got[1].Description)
}

func TestParseFeedJSONDecodesEntities(t *testing.T) {
	const feed = `{"version":"https://jsonfeed.org/version/1.1","title":"J",
"items":[{"id":"1","url":"https://example.com/j","title":"AT&amp;T &#8217;24","content_text":"Fish &amp; chips"}]}`

	got := collectSeq(t, feed, FeedSource{ID: "json"})
	require.Len(t, got, 1)
	assert.Equal(t, "AT&T ’24", got[0].Title)
	assert.Equal(t, "Fish & chips", got[0].Description)
}

func TestParseFeedInvalidDocument(t *testing.T) {
	got := collectSeq(t, "this is not a feed", FeedSource{ID: "broken"})
	assert.Empty(t, got)
}

func TestParseFeedMediumOverride(t *testing.T) {
	const rss = `<?xml version="1.0"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/"><channel><title>T</title>
<item>
  <title>Video first</title>
  <link>https://example.com/v</link>
  <media:content url="https://cdn.example.com/clip.mp4" medium="video"/>
  <media:content url="https://cdn.example.com/still.jpg" medium="image"/>
</item>
<item>
  <title>Enclosure only</title>
  <link>https://example.com/e</link>
  <enclosure url="https://cdn.example.com/enc.jpg" type="image/jpeg" length="1"/>
</item>
</channel></rss>`

	override := collectSeq(t, rss, FeedSource{ID: "nyt", MediaMedium: "image", FallbackImage: "https://example.com/logo.png"})
	require.Len(t, override, 2)
	assert.Equal(t, "https://cdn.example.com/still.jpg", override[0].ImageURL)

	generic := collectSeq(t, rss, FeedSource{ID: "other"})
	require.Len(t, generic, 2)
	assert.Equal(t, "https://cdn.example.com/clip.mp4", generic[0].ImageURL)
	assert.Equal(t, "https://cdn.example.com/enc.jpg", generic[1].ImageURL)
}

func TestParseFeedAtom(t *testing.T) {
	const atom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom</title>
  <entry>
    <title>Atom entry</title>
    <link href="https://example.com/atom/1"/>
    <id>urn:uuid:1</id>
    <updated>2026-02-03T08:30:00Z</updated>
    <summary>Short summary</summary>
  </entry>
</feed>`

	got := collectSeq(t, atom, FeedSource{ID: "atom"})
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.com/atom/1", got[0].Identity)
	assert.Equal(t, "Short summary", got[0].Description)
	assert.Equal(t, time.Date(2026, 2, 3, 8, 30, 0, 0, time.UTC), got[0].PublishedAt)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"2026-02-03", time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), true},
		{"2026-02-03 04:05:06", time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := parseDate(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.True(t, tt.want.Equal(got), "%q: got %v", tt.raw, got)
	}
}

func TestIsPlaceholder(t *testing.T) {
	for _, title := range []string{"test", "Test1", " TEST42 ", "test0"} {
		assert.True(t, IsPlaceholder(title), title)
	}
	for _, title := range []string{"Testing times", "A test", "test 1", ""} {
		assert.False(t, IsPlaceholder(title), title)
	}
}

func TestFeedFetcherFiltersPlaceholders(t *testing.T) {
	const rss = `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>
<item><title>Test1</title><link>https://example.com/t1</link></item>
<item><title>Real story</title><link>https://example.com/real</link></item>
</channel></rss>`

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rss))
	}))
	defer srv.Close()

	f := NewFeedFetcher([]FeedSource{{ID: "one", URL: srv.URL}}, srv.Client(), "newssync-test", logger.NewNop())
	got := f.Fetch(context.Background())

	require.Len(t, got, 1)
	assert.Equal(t, "Real story", got[0].Title)
	assert.Equal(t, "newssync-test", gotUA)
}

func TestFeedFetcherKeepsOrderAndSkipsFailures(t *testing.T) {
	feed := func(title string) string {
		return fmt.Sprintf(`<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>
<item><title>%s</title><link>https://example.com/%s</link></item></channel></rss>`, title, title)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(feed("slow")))
	})
	mux.HandleFunc("/fast", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(feed("fast")))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFeedFetcher([]FeedSource{
		{ID: "slow", URL: srv.URL + "/slow"},
		{ID: "broken", URL: srv.URL + "/broken"},
		{ID: "fast", URL: srv.URL + "/fast"},
	}, srv.Client(), "", logger.NewNop())

	got := f.Fetch(context.Background())
	require.Len(t, got, 2)
	assert.Equal(t, "slow", got[0].Title)
	assert.Equal(t, "fast", got[1].Title)
}
