package strategy

import (
	"fmt"
	"strings"

	"engagement-tracker/pkg/types"
)

// platformRules captures everything platform-specific about browser
// extraction as plain data: profile URL shape, page-state markers and the
// ordered selector fallback chains. Front-end markup changes without
// notice, so chains are ordered lists tried first-match-wins rather than
// nested conditionals, and each chain is testable apart from navigation.
type platformRules struct {
	platform types.Platform

	profileURL func(username string) string
	// canonicalLink normalizes an extracted href into the canonical
	// post link used as the post's unique key.
	canonicalLink func(href string) string

	notFoundMarkers []string
	privateMarkers  []string
	authMarkers     []string

	postContainers   []string
	linkSelectors    []string
	likeSelectors    []string
	commentSelectors []string
	viewSelectors    []string
	timeSelectors    []string

	overlayReady []string
}

var instagramRules = platformRules{
	platform: types.PlatformInstagram,
	profileURL: func(username string) string {
		return fmt.Sprintf("https://www.instagram.com/%s/", username)
	},
	canonicalLink: func(href string) string {
		href = strings.TrimSpace(href)
		if href == "" {
			return ""
		}
		if strings.HasPrefix(href, "/") {
			href = "https://www.instagram.com" + href
		}
		if !strings.Contains(href, "/p/") && !strings.Contains(href, "/reel/") {
			return ""
		}
		if !strings.HasSuffix(href, "/") {
			href += "/"
		}
		return href
	},
	notFoundMarkers: []string{
		"sorry, this page isn't available",
		"the link you followed may be broken",
	},
	privateMarkers: []string{
		"this account is private",
	},
	authMarkers: []string{
		"log in to instagram",
		"log in to see photos",
	},
	postContainers: []string{
		`main article a[href*="/p/"], main article a[href*="/reel/"]`,
		`article div a[href*="/p/"]`,
		`a[href*="/p/"], a[href*="/reel/"]`,
	},
	linkSelectors: []string{
		// Grid items are anchors themselves; the self marker makes the
		// container's own href usable.
		selfSelector,
		`a[href*="/p/"]`,
	},
	likeSelectors: []string{
		`span[aria-label*="like"]`,
		`li span[title]`,
	},
	commentSelectors: []string{
		`span[aria-label*="comment"]`,
	},
	viewSelectors: []string{
		`span[aria-label*="view"]`,
		`span[aria-label*="play"]`,
	},
	timeSelectors: []string{
		`time[datetime]`,
	},
	overlayReady: []string{
		`div[role="dialog"] article`,
		`div[role="dialog"]`,
		`main article section`,
	},
}

var tiktokRules = platformRules{
	platform: types.PlatformTikTok,
	profileURL: func(username string) string {
		return fmt.Sprintf("https://www.tiktok.com/@%s", username)
	},
	canonicalLink: func(href string) string {
		href = strings.TrimSpace(href)
		if href == "" {
			return ""
		}
		if strings.HasPrefix(href, "/") {
			href = "https://www.tiktok.com" + href
		}
		if !strings.Contains(href, "/video/") {
			return ""
		}
		// Tracking parameters would break link-based deduplication.
		if i := strings.IndexAny(href, "?#"); i >= 0 {
			href = href[:i]
		}
		return href
	},
	notFoundMarkers: []string{
		"couldn't find this account",
		"couldn't find that account",
	},
	privateMarkers: []string{
		"this account is private",
	},
	authMarkers: []string{
		"log in to tiktok",
		"too many attempts",
	},
	postContainers: []string{
		`div[data-e2e="user-post-item"]`,
		`div[class*="DivItemContainer"]`,
		`div[data-e2e="user-post-item-list"] > div`,
	},
	linkSelectors: []string{
		`a[href*="/video/"]`,
	},
	likeSelectors: []string{
		`strong[data-e2e="like-count"]`,
		`span[data-e2e="like-count"]`,
	},
	commentSelectors: []string{
		`strong[data-e2e="comment-count"]`,
		`span[data-e2e="comment-count"]`,
	},
	viewSelectors: []string{
		`strong[data-e2e="video-views"]`,
		`span[data-e2e="video-views"]`,
	},
	timeSelectors: []string{
		`time[datetime]`,
	},
	overlayReady: []string{
		`div[data-e2e="browse-video"]`,
		`div[data-e2e="video-detail"]`,
		`div[class*="DivVideoContainer"]`,
	},
}

// selfSelector marks a chain entry meaning "the container element itself".
const selfSelector = ":self"

func rulesFor(platform types.Platform) (platformRules, error) {
	switch platform {
	case types.PlatformInstagram:
		return instagramRules, nil
	case types.PlatformTikTok:
		return tiktokRules, nil
	default:
		return platformRules{}, fmt.Errorf("no browser extraction rules for platform %q", platform)
	}
}
