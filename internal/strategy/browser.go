package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/sirupsen/logrus"

	"engagement-tracker/internal/browser"
	"engagement-tracker/internal/classify"
	"engagement-tracker/internal/config"
	"engagement-tracker/pkg/types"
)

const maxStagnantScrolls = 3

// browserStrategy extracts post stats straight out of the rendered public
// profile page. One fetch operation runs the state machine
// Initializing → Navigated → Classified → Extracting → Enriching, against
// a transient tab owned by this strategy instance; the shared browser
// process behind it is reused across operations.
//
// When no Chrome-family binary is available the strategy degrades to the
// selenium static path: same extraction chains, no enrichment.
type browserStrategy struct {
	rules   platformRules
	cfg     *config.Config
	logger  *logrus.Logger
	manager *browser.Manager

	pageCtx    context.Context
	pageCancel context.CancelFunc
	selenium   *browser.SeleniumFetcher

	rateLimited atomic.Bool
	authBlocked atomic.Bool
}

func newBrowserStrategy(platform types.Platform, deps Deps) (*browserStrategy, error) {
	rules, err := rulesFor(platform)
	if err != nil {
		return nil, err
	}
	if deps.Browser == nil {
		return nil, fmt.Errorf("browser strategy requires a browser manager")
	}
	return &browserStrategy{
		rules:   rules,
		cfg:     deps.Config,
		logger:  deps.Logger,
		manager: deps.Browser,
	}, nil
}

// Initialize opens the transient tab for this operation. When the shared
// browser cannot launch it falls back to a selenium-driven session, the
// same fallback order the static-vs-browser split uses elsewhere.
func (s *browserStrategy) Initialize() error {
	if s.pageCtx != nil || s.selenium != nil {
		return nil
	}

	pageCtx, pageCancel, err := s.manager.NewPage()
	if err != nil {
		s.logger.Warnf("chromedp page unavailable, trying selenium fallback: %v", err)
		fetcher, serr := browser.NewSeleniumFetcher(s.cfg.Browser.UserAgent, s.logger)
		if serr != nil {
			return fmt.Errorf("no usable browser backend: chromedp: %v, selenium: %w", err, serr)
		}
		s.selenium = fetcher
		return nil
	}

	// The response listener flags rate-limit and auth walls that render
	// as normal-looking pages. It detaches with the tab context.
	if err := chromedp.Run(pageCtx, network.Enable()); err != nil {
		pageCancel()
		return fmt.Errorf("failed to enable network events: %w", err)
	}
	chromedp.ListenTarget(pageCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		switch resp.Response.Status {
		case 429:
			s.rateLimited.Store(true)
		case 401:
			s.authBlocked.Store(true)
		}
	})

	s.pageCtx = pageCtx
	s.pageCancel = pageCancel
	return nil
}

func (s *browserStrategy) FetchRecentPosts(ctx context.Context, identity types.Identity, count int) ([]types.Post, error) {
	if s.pageCtx == nil && s.selenium == nil {
		return nil, fmt.Errorf("browser strategy not initialized")
	}
	if s.selenium != nil {
		return s.fetchStatic(identity, count)
	}

	posts, err := s.fetchWithPage(ctx, identity, count)
	if err != nil && classify.KindOf(err) == classify.KindTimeout {
		// A dead tab behaves like an endless navigation; the static path
		// still has a chance at the profile grid.
		if fetcher, serr := browser.NewSeleniumFetcher(s.cfg.Browser.UserAgent, s.logger); serr == nil {
			s.logger.Warnf("page navigation timed out for %s, retrying via selenium", identity)
			s.selenium = fetcher
			return s.fetchStatic(identity, count)
		}
	}
	return posts, err
}

func (s *browserStrategy) fetchWithPage(ctx context.Context, identity types.Identity, count int) ([]types.Post, error) {
	profileURL := s.rules.profileURL(identity.Username)
	settle := time.Duration(s.cfg.Browser.SettleDelayMs) * time.Millisecond

	s.logger.Infof("navigating to %s", profileURL)
	navCtx, cancel := context.WithTimeout(s.pageCtx, s.navigateTimeout())
	err := chromedp.Run(navCtx,
		chromedp.Navigate(profileURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
	)
	cancel()
	if err != nil {
		return nil, classify.FromError(err)
	}

	if s.rateLimited.Load() {
		return nil, classify.New(classify.KindRateLimited, "document request for %s was rate limited", identity)
	}
	if s.authBlocked.Load() {
		return nil, classify.New(classify.KindAuthRequired, "document request for %s hit an auth wall", identity)
	}

	doc, err := s.captureDocument()
	if err != nil {
		return nil, err
	}
	if kind, terminal := classifyPageState(doc, s.rules); terminal {
		s.logger.Infof("profile %s classified as %s", identity, kind)
		return nil, classify.New(kind, "profile page for %s", identity)
	}

	s.paginate(count)

	doc, err = s.captureDocument()
	if err != nil {
		return nil, err
	}
	posts := extractProfilePosts(doc, s.rules, identity, count)
	s.logger.Infof("extracted %d posts for %s", len(posts), identity)

	s.enrich(ctx, posts)
	return posts, nil
}

// paginate scrolls to the bottom until enough post elements exist or the
// scroll height stops growing; the stagnation bound keeps platforms that
// lazy-load indefinitely from looping forever.
func (s *browserStrategy) paginate(want int) {
	script := countScript(s.rules.postContainers)
	stagnant := 0
	var lastHeight int64
	settle := time.Duration(s.cfg.Browser.SettleDelayMs) * time.Millisecond

	for attempt := 0; attempt < s.cfg.Browser.MaxScrollAttempts; attempt++ {
		var found int
		var height int64

		runCtx, cancel := context.WithTimeout(s.pageCtx, s.navigateTimeout())
		err := chromedp.Run(runCtx,
			chromedp.Evaluate(script, &found),
			chromedp.Evaluate(`document.body.scrollHeight`, &height),
		)
		cancel()
		if err != nil {
			s.logger.Warnf("scroll measurement failed: %v", err)
			return
		}

		if found >= want {
			return
		}
		if height == lastHeight {
			stagnant++
			if stagnant >= maxStagnantScrolls {
				s.logger.Debugf("scroll height stagnant at %d after %d posts, stopping", height, found)
				return
			}
		} else {
			stagnant = 0
			lastHeight = height
		}

		runCtx, cancel = context.WithTimeout(s.pageCtx, s.navigateTimeout())
		err = chromedp.Run(runCtx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(settle),
		)
		cancel()
		if err != nil {
			s.logger.Warnf("scroll failed: %v", err)
			return
		}
	}
}

// enrich opens the detail overlay for up to the configured cap of posts
// and upgrades their counters with the finer-grained overlay stats. A
// single item's failure keeps its listed values and never aborts the rest.
func (s *browserStrategy) enrich(ctx context.Context, posts []types.Post) {
	limit := s.cfg.Tracker.EnrichmentCap
	if limit <= 0 {
		return
	}
	if limit > len(posts) {
		limit = len(posts)
	}

	for i := 0; i < limit; i++ {
		if err := s.sleepJitter(ctx); err != nil {
			return
		}
		if err := s.enrichOne(i, &posts[i]); err != nil {
			s.logger.Warnf("enrichment failed for %s, keeping listed values: %v", posts[i].PostLink, err)
		}
	}
}

func (s *browserStrategy) enrichOne(index int, post *types.Post) error {
	clicked := false
	navigated := false

	runCtx, cancel := context.WithTimeout(s.pageCtx, s.navigateTimeout())
	err := chromedp.Run(runCtx, chromedp.Evaluate(clickScript(s.rules.postContainers, index), &clicked))
	cancel()

	if err != nil || !clicked {
		// Click can miss when the grid re-rendered under us; direct
		// navigation to the canonical link is the fallback.
		navigated = true
		runCtx, cancel = context.WithTimeout(s.pageCtx, s.navigateTimeout())
		err = chromedp.Run(runCtx,
			chromedp.Navigate(post.PostLink),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
		cancel()
		if err != nil {
			return classify.FromError(err)
		}
	}

	// Overlay state is always restored, success or not, so the next item
	// starts from the profile grid.
	defer s.closeOverlay(navigated)

	if err := s.waitOverlayReady(); err != nil {
		return err
	}

	doc, err := s.captureDocument()
	if err != nil {
		return err
	}
	stats := extractOverlayStats(doc)
	if stats.empty() {
		return fmt.Errorf("no overlay stats found for %s", post.PostLink)
	}

	if stats.Likes != nil {
		post.Likes = int(*stats.Likes)
	}
	if stats.Comments != nil {
		post.Comments = int(*stats.Comments)
	}
	if stats.Views != nil {
		post.Views = stats.Views
	}
	return nil
}

// waitOverlayReady tries each overlay readiness selector with a short
// timeout; the first one that appears wins.
func (s *browserStrategy) waitOverlayReady() error {
	var lastErr error
	for _, selector := range s.rules.overlayReady {
		runCtx, cancel := context.WithTimeout(s.pageCtx, 5*time.Second)
		lastErr = chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return classify.Wrap(classify.KindTimeout, fmt.Errorf("overlay never became ready: %v", lastErr))
}

func (s *browserStrategy) closeOverlay(navigated bool) {
	runCtx, cancel := context.WithTimeout(s.pageCtx, s.navigateTimeout())
	defer cancel()

	var err error
	if navigated {
		err = chromedp.Run(runCtx,
			chromedp.NavigateBack(),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
	} else {
		err = chromedp.Run(runCtx, chromedp.KeyEvent(kb.Escape))
	}
	if err != nil {
		s.logger.Warnf("failed to restore profile page state: %v", err)
	}
}

func (s *browserStrategy) captureDocument() (*goquery.Document, error) {
	var html string
	runCtx, cancel := context.WithTimeout(s.pageCtx, s.navigateTimeout())
	err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	cancel()
	if err != nil {
		return nil, classify.FromError(err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// fetchStatic is the selenium path: load, scroll, parse the page source
// through the same extraction chains. No overlay enrichment.
func (s *browserStrategy) fetchStatic(identity types.Identity, count int) ([]types.Post, error) {
	profileURL := s.rules.profileURL(identity.Username)
	settle := time.Duration(s.cfg.Browser.SettleDelayMs) * time.Millisecond

	html, err := s.selenium.FetchPageHTML(profileURL, s.cfg.Browser.MaxScrollAttempts, settle)
	if err != nil {
		return nil, classify.FromError(err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, classify.FromError(err)
	}
	if kind, terminal := classifyPageState(doc, s.rules); terminal {
		return nil, classify.New(kind, "profile page for %s", identity)
	}

	posts := extractProfilePosts(doc, s.rules, identity, count)
	s.logger.Infof("extracted %d posts for %s via selenium", len(posts), identity)
	return posts, nil
}

// sleepJitter pauses for a random duration inside the configured bounds,
// throttling enrichment request rate.
func (s *browserStrategy) sleepJitter(ctx context.Context) error {
	min := s.cfg.Tracker.DelayMinMs
	max := s.cfg.Tracker.DelayMaxMs
	delay := time.Duration(min+rand.Intn(max-min+1)) * time.Millisecond

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *browserStrategy) navigateTimeout() time.Duration {
	return time.Duration(s.cfg.Browser.NavigateTimeout) * time.Second
}

// Cleanup closes the transient tab (detaching the response listener with
// it) and the selenium session when one was opened. The shared browser
// process stays up for the next operation.
func (s *browserStrategy) Cleanup() {
	if s.pageCancel != nil {
		s.pageCancel()
		s.pageCtx = nil
		s.pageCancel = nil
	}
	if s.selenium != nil {
		s.selenium.Close()
		s.selenium = nil
	}
	s.rateLimited.Store(false)
	s.authBlocked.Store(false)
}

func countScript(selectors []string) string {
	encoded, _ := json.Marshal(selectors)
	return fmt.Sprintf(`(() => {
    const sels = %s;
    for (const s of sels) {
        const n = document.querySelectorAll(s).length;
        if (n > 0) return n;
    }
    return 0;
})()`, encoded)
}

func clickScript(selectors []string, index int) string {
	encoded, _ := json.Marshal(selectors)
	return fmt.Sprintf(`(() => {
    const sels = %s;
    for (const s of sels) {
        const els = document.querySelectorAll(s);
        if (els.length > %d) {
            els[%d].scrollIntoView({block: "center"});
            els[%d].click();
            return true;
        }
    }
    return false;
})()`, encoded, index, index, index)
}
