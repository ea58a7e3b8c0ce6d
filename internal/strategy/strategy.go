// Package strategy implements the backend-polymorphic fetch contract:
// every variant (RapidAPI transport, official graph API, browser
// automation) fetches recent posts for one identity over its own transport
// and reports failures through the shared classified taxonomy.
package strategy

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"engagement-tracker/internal/browser"
	"engagement-tracker/internal/config"
	"engagement-tracker/pkg/types"
)

// Strategy is the uniform fetch contract.
//
// Initialize is idempotent and acquires backend resources; a failure here
// is a configuration-time error. FetchRecentPosts returns recent posts
// (ordering not guaranteed) or an empty list plus a classified error for
// expected failure modes. Cleanup releases per-operation resources and is
// always invoked by the caller, on success and failure paths alike.
type Strategy interface {
	Initialize() error
	FetchRecentPosts(ctx context.Context, identity types.Identity, count int) ([]types.Post, error)
	Cleanup()
}

// Method names accepted in the per-platform configuration.
const (
	MethodRapidAPI = "rapidapi"
	MethodGraphAPI = "graphapi"
	MethodBrowser  = "browser"
)

// Deps carries the shared collaborators a strategy may need.
type Deps struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Browser *browser.Manager
}

// newHTTPClient builds the transport used by API-based strategies: fixed
// per-call timeout, optional upstream proxy.
func newHTTPClient(cfg *config.Config) (*http.Client, error) {
	client := &http.Client{
		Timeout: cfg.Tracker.RequestTimeoutDuration(),
	}
	if cfg.Proxy.Enabled() {
		proxyURL, err := url.Parse(cfg.Proxy.URL())
		if err != nil {
			return nil, err
		}
		client.Transport = &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		}
	}
	return client, nil
}
