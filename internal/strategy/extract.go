package strategy

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"engagement-tracker/internal/classify"
	"engagement-tracker/internal/numfmt"
	"engagement-tracker/pkg/types"
)

// findFirst walks an ordered selector chain and returns the first
// candidate yielding a non-zero match, or nil when the whole chain misses.
func findFirst(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, selector := range selectors {
		if selector == selfSelector {
			if root.Length() > 0 {
				return root
			}
			continue
		}
		found := root.Find(selector)
		if found.Length() > 0 {
			return found
		}
	}
	return nil
}

// classifyPageState inspects the rendered page for terminal-state markers.
// The bool reports whether a terminal state was detected; private and
// auth-wall profiles are expected outcomes, not exceptions.
func classifyPageState(doc *goquery.Document, rules platformRules) (classify.Kind, bool) {
	text := strings.ToLower(doc.Text())

	for _, marker := range rules.privateMarkers {
		if strings.Contains(text, marker) {
			return classify.KindPrivateAccount, true
		}
	}
	for _, marker := range rules.notFoundMarkers {
		if strings.Contains(text, marker) {
			return classify.KindUserNotFound, true
		}
	}
	for _, marker := range rules.authMarkers {
		if strings.Contains(text, marker) {
			return classify.KindAuthRequired, true
		}
	}
	return "", false
}

// extractProfilePosts pulls up to count posts out of a rendered profile
// page. Elements without a resolvable canonical link are skipped.
func extractProfilePosts(doc *goquery.Document, rules platformRules, identity types.Identity, count int) []types.Post {
	containers := findFirst(doc.Selection, rules.postContainers)
	if containers == nil {
		return nil
	}

	var posts []types.Post
	seen := make(map[string]bool)
	containers.EachWithBreak(func(_ int, container *goquery.Selection) bool {
		post, ok := extractPostFields(container, rules, identity)
		if !ok || seen[post.PostLink] {
			return true
		}
		seen[post.PostLink] = true
		posts = append(posts, post)
		return len(posts) < count
	})
	return posts
}

func extractPostFields(container *goquery.Selection, rules platformRules, identity types.Identity) (types.Post, bool) {
	post := types.Post{
		Username: identity.Username,
		Platform: identity.Platform,
	}

	if link := findFirst(container, rules.linkSelectors); link != nil {
		href, _ := link.First().Attr("href")
		post.PostLink = rules.canonicalLink(href)
	}
	if post.PostLink == "" {
		return types.Post{}, false
	}

	if likes, ok := countFromChain(container, rules.likeSelectors); ok {
		post.Likes = int(likes)
	}
	if comments, ok := countFromChain(container, rules.commentSelectors); ok {
		post.Comments = int(comments)
	}
	if views, ok := countFromChain(container, rules.viewSelectors); ok {
		post.Views = types.Int64Ptr(views)
	}
	if ts := findFirst(container, rules.timeSelectors); ts != nil {
		if datetime, ok := ts.First().Attr("datetime"); ok {
			if parsed, err := time.Parse(time.RFC3339, datetime); err == nil {
				post.PostedDate = parsed.UTC()
			}
		}
	}
	return post, true
}

// countFromChain resolves a numeric field through a selector chain,
// preferring element text and falling back to the aria-label / title
// attributes the front-ends hide exact counts in.
func countFromChain(container *goquery.Selection, selectors []string) (int64, bool) {
	found := findFirst(container, selectors)
	if found == nil {
		return 0, false
	}
	el := found.First()

	candidates := []string{el.Text()}
	if label, ok := el.Attr("aria-label"); ok {
		candidates = append(candidates, label)
	}
	if title, ok := el.Attr("title"); ok {
		candidates = append(candidates, title)
	}
	for _, raw := range candidates {
		if n, err := numfmt.ParseCount(raw); err == nil {
			return n, true
		}
	}
	return 0, false
}

// overlayStats is the finer-grained counter set pulled from a post's
// detail overlay during enrichment. Nil fields keep their pre-enrichment
// values.
type overlayStats struct {
	Likes    *int64
	Comments *int64
	Views    *int64
}

func (o overlayStats) empty() bool {
	return o.Likes == nil && o.Comments == nil && o.Views == nil
}

var statTextPattern = regexp.MustCompile(`(\d[\d.,]*\s*[kmbKMB]?)\s*(likes?|comments?|views?|plays?)`)

// extractOverlayStats applies the layered enrichment heuristics in
// priority order: accessibility-label parse, then a regex sweep over the
// visible text, then the text of interactive elements. Later layers only
// fill counters earlier layers left missing.
func extractOverlayStats(doc *goquery.Document) overlayStats {
	var stats overlayStats

	doc.Find("[aria-label]").Each(func(_ int, el *goquery.Selection) {
		label, _ := el.Attr("aria-label")
		assignStat(&stats, label, label)
	})

	if stats.empty() || stats.Views == nil {
		for _, match := range statTextPattern.FindAllStringSubmatch(doc.Text(), -1) {
			assignStat(&stats, match[2], match[1])
		}
	}

	if stats.empty() {
		doc.Find("button, a, [role='button']").Each(func(_ int, el *goquery.Selection) {
			assignStat(&stats, el.Text(), el.Text())
		})
	}

	return stats
}

// assignStat classifies a labeled counter fragment and stores the parsed
// value for whichever metric the label names, first value wins.
func assignStat(stats *overlayStats, label, value string) {
	n, err := numfmt.ParseCount(value)
	if err != nil {
		return
	}
	lower := strings.ToLower(label)
	switch {
	case strings.Contains(lower, "like"):
		if stats.Likes == nil {
			stats.Likes = &n
		}
	case strings.Contains(lower, "comment"):
		if stats.Comments == nil {
			stats.Comments = &n
		}
	case strings.Contains(lower, "view"), strings.Contains(lower, "play"):
		if stats.Views == nil {
			stats.Views = &n
		}
	}
}
