package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"engagement-tracker/internal/classify"
	"engagement-tracker/internal/config"
	"engagement-tracker/pkg/types"
)

// graphAPIStrategy talks to the official graph API. The listing call does
// not carry the play metric inline, so each media item needs a second
// insights call; a single item's insights failure degrades that item to a
// zero metric instead of aborting the batch.
type graphAPIStrategy struct {
	cfg      *config.Config
	attempts int
	client   *http.Client
	limiter  *rate.Limiter
	logger   *logrus.Logger
	baseURL  string
}

func newGraphAPIStrategy(deps Deps) (*graphAPIStrategy, error) {
	if deps.Config.GraphAPI.AccessToken == "" {
		return nil, fmt.Errorf("graph API access token is not configured")
	}
	if len(deps.Config.GraphAPI.AccountIDs) == 0 {
		return nil, fmt.Errorf("graph API account_ids mapping is empty")
	}

	rpm := deps.Config.GraphAPI.RequestsPerMinute
	if rpm <= 0 {
		return nil, fmt.Errorf("graph API requests_per_minute must be positive, got %d", rpm)
	}
	interval := time.Minute / time.Duration(rpm)

	return &graphAPIStrategy{
		cfg:      deps.Config,
		attempts: deps.Config.Tracker.RetryAttempts,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		logger:   deps.Logger,
		baseURL:  deps.Config.GraphAPI.BaseURL,
	}, nil
}

func (s *graphAPIStrategy) Initialize() error {
	if s.client != nil {
		return nil
	}
	client, err := newHTTPClient(s.cfg)
	if err != nil {
		return fmt.Errorf("failed to build graph API http client: %w", err)
	}
	s.client = client
	return nil
}

type graphMediaResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Permalink     string `json:"permalink"`
		Timestamp     string `json:"timestamp"`
		LikeCount     *int   `json:"like_count"`
		CommentsCount *int   `json:"comments_count"`
	} `json:"data"`
	Error *graphError `json:"error"`
}

type graphInsightsResponse struct {
	Data []struct {
		Name   string `json:"name"`
		Values []struct {
			Value int64 `json:"value"`
		} `json:"values"`
	} `json:"data"`
	Error *graphError `json:"error"`
}

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func (s *graphAPIStrategy) FetchRecentPosts(ctx context.Context, identity types.Identity, count int) ([]types.Post, error) {
	accountID, ok := s.cfg.GraphAPI.AccountIDs[identity.Username]
	if !ok {
		return nil, classify.New(classify.KindUserNotFound,
			"no graph API account ID mapped for %s", identity.Username)
	}

	var media graphMediaResponse
	err := withRetry(ctx, s.logger, s.attempts, func() error {
		return s.getJSON(ctx, s.mediaURL(accountID, count), &media)
	})
	if err != nil {
		return nil, err
	}

	var posts []types.Post
	for _, item := range media.Data {
		if item.Permalink == "" {
			continue
		}
		post := types.Post{
			Username: identity.Username,
			Platform: identity.Platform,
			PostLink: item.Permalink,
		}
		if ts, perr := time.Parse(time.RFC3339, item.Timestamp); perr == nil {
			post.PostedDate = ts.UTC()
		}
		if item.LikeCount != nil {
			post.Likes = *item.LikeCount
		}
		if item.CommentsCount != nil {
			post.Comments = *item.CommentsCount
		}

		views, merr := s.fetchMetric(ctx, item.ID)
		if merr != nil {
			// Per-item metric failures never abort the batch.
			s.logger.Warnf("insights fetch failed for media %s, substituting zero: %v", item.ID, merr)
			views = 0
		}
		post.Views = types.Int64Ptr(views)

		posts = append(posts, post)
	}

	s.logger.Infof("graph API fetched %d posts for %s", len(posts), identity)
	return posts, nil
}

func (s *graphAPIStrategy) fetchMetric(ctx context.Context, mediaID string) (int64, error) {
	var insights graphInsightsResponse
	err := withRetry(ctx, s.logger, s.attempts, func() error {
		return s.getJSON(ctx, s.insightsURL(mediaID), &insights)
	})
	if err != nil {
		return 0, err
	}
	for _, entry := range insights.Data {
		if entry.Name == s.cfg.GraphAPI.Metric && len(entry.Values) > 0 {
			return entry.Values[0].Value, nil
		}
	}
	return 0, fmt.Errorf("metric %q missing from insights response", s.cfg.GraphAPI.Metric)
}

func (s *graphAPIStrategy) mediaURL(accountID string, count int) string {
	query := url.Values{}
	query.Set("fields", "id,permalink,timestamp,like_count,comments_count")
	query.Set("limit", fmt.Sprintf("%d", count))
	query.Set("access_token", s.cfg.GraphAPI.AccessToken)
	return fmt.Sprintf("%s/%s/media?%s", s.baseURL, accountID, query.Encode())
}

func (s *graphAPIStrategy) insightsURL(mediaID string) string {
	query := url.Values{}
	query.Set("metric", s.cfg.GraphAPI.Metric)
	query.Set("access_token", s.cfg.GraphAPI.AccessToken)
	return fmt.Sprintf("%s/%s/insights?%s", s.baseURL, mediaID, query.Encode())
}

// getJSON performs one rate-limited GET and decodes into out; out types
// embed a *graphError which is classified when present.
func (s *graphAPIStrategy) getJSON(ctx context.Context, reqURL string, out interface{}) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return classify.FromError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return classify.FromError(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return classify.FromError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify.FromError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return classify.FromStatusCode(resp.StatusCode, apiErrorMessage(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return classify.New(classify.KindUnknown, "failed to decode graph API payload: %v", err)
	}

	// Graph API reports errors in-band with a 200 on some edges.
	switch v := out.(type) {
	case *graphMediaResponse:
		if v.Error != nil {
			return classify.FromMessage(v.Error.Message)
		}
	case *graphInsightsResponse:
		if v.Error != nil {
			return classify.FromMessage(v.Error.Message)
		}
	}
	return nil
}

func (s *graphAPIStrategy) Cleanup() {
	// Stateless per call.
}
