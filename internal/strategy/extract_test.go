package strategy

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-tracker/internal/classify"
	"engagement-tracker/pkg/types"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestClassifyPageState(t *testing.T) {
	cases := []struct {
		name     string
		html     string
		want     classify.Kind
		terminal bool
	}{
		{
			name:     "private account",
			html:     `<body><h2>This Account is Private</h2></body>`,
			want:     classify.KindPrivateAccount,
			terminal: true,
		},
		{
			name:     "not found",
			html:     `<body><p>Sorry, this page isn't available.</p></body>`,
			want:     classify.KindUserNotFound,
			terminal: true,
		},
		{
			name:     "auth wall",
			html:     `<body><div>Log in to Instagram to continue</div></body>`,
			want:     classify.KindAuthRequired,
			terminal: true,
		},
		{
			name:     "normal profile",
			html:     `<body><main><article></article></main></body>`,
			terminal: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, terminal := classifyPageState(docFromHTML(t, tc.html), instagramRules)
			assert.Equal(t, tc.terminal, terminal)
			if tc.terminal {
				assert.Equal(t, tc.want, kind)
			}
		})
	}
}

func TestExtractInstagramProfilePosts(t *testing.T) {
	html := `
<body><main><article>
  <a href="/p/AAA111/"><time datetime="2026-08-20T10:00:00Z"></time></a>
  <a href="/reel/BBB222/"></a>
  <a href="/p/AAA111/"></a>
  <a href="/explore/tags/cats/"></a>
</article></main></body>`

	identity := types.NewIdentity("creator", types.PlatformInstagram)
	posts := extractProfilePosts(docFromHTML(t, html), instagramRules, identity, 10)

	require.Len(t, posts, 2, "duplicates and non-post links are skipped")
	assert.Equal(t, "https://www.instagram.com/p/AAA111/", posts[0].PostLink)
	assert.Equal(t, "https://www.instagram.com/reel/BBB222/", posts[1].PostLink)
	assert.Equal(t, "2026-08-20T10:00:00Z", posts[0].PostedDate.Format("2006-01-02T15:04:05Z"))
	assert.True(t, posts[1].PostedDate.IsZero())
}

func TestExtractProfilePostsHonorsCount(t *testing.T) {
	html := `
<body><main><article>
  <a href="/p/ONE/"></a>
  <a href="/p/TWO/"></a>
  <a href="/p/THREE/"></a>
</article></main></body>`

	identity := types.NewIdentity("creator", types.PlatformInstagram)
	posts := extractProfilePosts(docFromHTML(t, html), instagramRules, identity, 2)
	assert.Len(t, posts, 2)
}

func TestExtractTikTokProfilePosts(t *testing.T) {
	html := `
<body>
  <div data-e2e="user-post-item">
    <a href="https://www.tiktok.com/@creator/video/123?is_from_webapp=1"></a>
    <strong data-e2e="video-views">1.2M</strong>
  </div>
  <div data-e2e="user-post-item">
    <a href="/@creator/video/456"></a>
    <strong data-e2e="video-views">3,400</strong>
  </div>
</body>`

	identity := types.NewIdentity("creator", types.PlatformTikTok)
	posts := extractProfilePosts(docFromHTML(t, html), tiktokRules, identity, 10)

	require.Len(t, posts, 2)
	assert.Equal(t, "https://www.tiktok.com/@creator/video/123", posts[0].PostLink,
		"tracking parameters are stripped")
	require.NotNil(t, posts[0].Views)
	assert.EqualValues(t, 1200000, *posts[0].Views)
	require.NotNil(t, posts[1].Views)
	assert.EqualValues(t, 3400, *posts[1].Views)
}

func TestCountFromChainFallsBackToAttributes(t *testing.T) {
	html := `<div><strong data-e2e="like-count" aria-label="5,200 likes"></strong></div>`
	doc := docFromHTML(t, html)

	n, ok := countFromChain(doc.Selection, tiktokRules.likeSelectors)
	require.True(t, ok)
	assert.EqualValues(t, 5200, n)
}

func TestFindFirstSelfSelector(t *testing.T) {
	html := `<body><a href="/p/ONLY/">x</a></body>`
	doc := docFromHTML(t, html)
	anchor := doc.Find("a")

	found := findFirst(anchor, []string{selfSelector, `a[href*="/p/"]`})
	require.NotNil(t, found)
	href, _ := found.Attr("href")
	assert.Equal(t, "/p/ONLY/", href)
}

func TestExtractOverlayStatsFromAriaLabels(t *testing.T) {
	html := `
<div role="dialog"><article>
  <span aria-label="12.3K likes"></span>
  <span aria-label="456 comments"></span>
  <span aria-label="2.1M views"></span>
</article></div>`

	stats := extractOverlayStats(docFromHTML(t, html))

	require.NotNil(t, stats.Likes)
	assert.EqualValues(t, 12300, *stats.Likes)
	require.NotNil(t, stats.Comments)
	assert.EqualValues(t, 456, *stats.Comments)
	require.NotNil(t, stats.Views)
	assert.EqualValues(t, 2100000, *stats.Views)
}

func TestExtractOverlayStatsFromVisibleText(t *testing.T) {
	html := `<div><p>1,024 likes</p><p>87 comments</p><p>55.5K plays</p></div>`

	stats := extractOverlayStats(docFromHTML(t, html))

	require.NotNil(t, stats.Likes)
	assert.EqualValues(t, 1024, *stats.Likes)
	require.NotNil(t, stats.Comments)
	assert.EqualValues(t, 87, *stats.Comments)
	require.NotNil(t, stats.Views)
	assert.EqualValues(t, 55500, *stats.Views)
}

func TestExtractOverlayStatsEmpty(t *testing.T) {
	stats := extractOverlayStats(docFromHTML(t, `<div><p>nothing numeric</p></div>`))
	assert.True(t, stats.empty())
}

func TestCanonicalLinks(t *testing.T) {
	assert.Equal(t, "https://www.instagram.com/p/X/",
		instagramRules.canonicalLink("/p/X"))
	assert.Equal(t, "", instagramRules.canonicalLink("/explore/"))
	assert.Equal(t, "", instagramRules.canonicalLink(""))

	assert.Equal(t, "https://www.tiktok.com/@u/video/9",
		tiktokRules.canonicalLink("/@u/video/9#frag"))
	assert.Equal(t, "", tiktokRules.canonicalLink("/@u/"))
}
