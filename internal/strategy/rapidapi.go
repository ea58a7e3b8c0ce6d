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

// rapidEndpoint describes the provider endpoint shape for one platform.
type rapidEndpoint struct {
	path      string
	userParam string
	decode    func(body []byte, identity types.Identity) ([]types.Post, *classify.Error)
}

var rapidEndpoints = map[types.Platform]rapidEndpoint{
	types.PlatformInstagram: {
		path:      "/v1/posts",
		userParam: "username_or_id_or_url",
		decode:    decodeInstagramPosts,
	},
	types.PlatformTikTok: {
		path:      "/api/user/posts",
		userParam: "unique_id",
		decode:    decodeTikTokPosts,
	},
}

type rapidAPIStrategy struct {
	platform types.Platform
	endpoint rapidEndpoint
	host     string
	baseURL  string
	key      string
	attempts int
	cfg      *config.Config
	client   *http.Client
	limiter  *rate.Limiter
	logger   *logrus.Logger
}

func newRapidAPIStrategy(platform types.Platform, deps Deps) (*rapidAPIStrategy, error) {
	endpoint, ok := rapidEndpoints[platform]
	if !ok {
		return nil, fmt.Errorf("no rapidapi endpoint table for platform %q", platform)
	}
	host := deps.Config.RapidAPI.Hosts[string(platform)]
	if host == "" {
		return nil, fmt.Errorf("no rapidapi host configured for platform %q", platform)
	}
	if deps.Config.RapidAPI.Key == "" {
		return nil, fmt.Errorf("rapidapi key is not configured")
	}

	interval := time.Minute / time.Duration(deps.Config.RapidAPI.RequestsPerMinute)

	return &rapidAPIStrategy{
		platform: platform,
		endpoint: endpoint,
		host:     host,
		baseURL:  "https://" + host,
		key:      deps.Config.RapidAPI.Key,
		attempts: deps.Config.Tracker.RetryAttempts,
		cfg:      deps.Config,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		logger:   deps.Logger,
	}, nil
}

func (s *rapidAPIStrategy) Initialize() error {
	if s.client != nil {
		return nil
	}
	client, err := newHTTPClient(s.cfg)
	if err != nil {
		return fmt.Errorf("failed to build rapidapi http client: %w", err)
	}
	s.client = client
	return nil
}

func (s *rapidAPIStrategy) FetchRecentPosts(ctx context.Context, identity types.Identity, count int) ([]types.Post, error) {
	var posts []types.Post

	err := withRetry(ctx, s.logger, s.attempts, func() error {
		fetched, err := s.fetchOnce(ctx, identity, count)
		if err != nil {
			return err
		}
		posts = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("rapidapi fetched %d posts for %s", len(posts), identity)
	return posts, nil
}

func (s *rapidAPIStrategy) fetchOnce(ctx context.Context, identity types.Identity, count int) ([]types.Post, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, classify.FromError(err)
	}

	query := url.Values{}
	query.Set(s.endpoint.userParam, identity.Username)
	query.Set("count", fmt.Sprintf("%d", count))

	reqURL := fmt.Sprintf("%s%s?%s", s.baseURL, s.endpoint.path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, classify.FromError(err)
	}
	req.Header.Set("X-RapidAPI-Key", s.key)
	req.Header.Set("X-RapidAPI-Host", s.host)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classify.FromError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify.FromError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classify.FromStatusCode(resp.StatusCode, apiErrorMessage(body))
	}

	posts, cerr := s.endpoint.decode(body, identity)
	if cerr != nil {
		return nil, cerr
	}
	return posts, nil
}

func (s *rapidAPIStrategy) Cleanup() {
	// Stateless per call; the HTTP client carries no per-operation state.
}

// apiErrorMessage pulls the human-readable error out of a provider error
// payload, falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, msg := range []string{payload.Message, payload.Error, payload.Detail} {
			if msg != "" {
				return msg
			}
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// Instagram provider wire format. Counts are pointers so "absent" is
// distinguishable from zero.
type igPostsResponse struct {
	Data struct {
		User struct {
			IsPrivate bool `json:"is_private"`
		} `json:"user"`
		Items []struct {
			Code         string `json:"code"`
			TakenAt      int64  `json:"taken_at"`
			LikeCount    *int   `json:"like_count"`
			CommentCount *int   `json:"comment_count"`
			// Legacy field: older provider payloads repurposed the share
			// counter as the comment proxy. Accepted strictly as an alias
			// when comment_count is absent.
			ShareCount *int   `json:"share_count"`
			PlayCount  *int64 `json:"play_count"`
			ViewCount  *int64 `json:"view_count"`
		} `json:"items"`
	} `json:"data"`
}

func decodeInstagramPosts(body []byte, identity types.Identity) ([]types.Post, *classify.Error) {
	var resp igPostsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, classify.New(classify.KindUnknown, "failed to decode instagram payload: %v", err)
	}
	if resp.Data.User.IsPrivate {
		return nil, classify.New(classify.KindPrivateAccount, "account %s is private", identity.Username)
	}

	var posts []types.Post
	for _, item := range resp.Data.Items {
		if item.Code == "" {
			continue
		}
		post := types.Post{
			Username: identity.Username,
			Platform: identity.Platform,
			PostLink: fmt.Sprintf("https://www.instagram.com/p/%s/", item.Code),
		}
		if item.TakenAt > 0 {
			post.PostedDate = time.Unix(item.TakenAt, 0).UTC()
		}
		if item.LikeCount != nil {
			post.Likes = *item.LikeCount
		}
		post.Comments = commentsFromCounts(item.CommentCount, item.ShareCount)
		if item.PlayCount != nil {
			post.Views = item.PlayCount
		} else if item.ViewCount != nil {
			post.Views = item.ViewCount
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// TikTok provider wire format.
type ttPostsResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Videos []struct {
			VideoID      string `json:"video_id"`
			CreateTime   int64  `json:"create_time"`
			DiggCount    *int   `json:"digg_count"`
			CommentCount *int   `json:"comment_count"`
			ShareCount   *int   `json:"share_count"`
			PlayCount    *int64 `json:"play_count"`
		} `json:"videos"`
	} `json:"data"`
}

func decodeTikTokPosts(body []byte, identity types.Identity) ([]types.Post, *classify.Error) {
	var resp ttPostsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, classify.New(classify.KindUnknown, "failed to decode tiktok payload: %v", err)
	}
	if resp.Code != 0 {
		return nil, classify.FromMessage(resp.Msg)
	}

	var posts []types.Post
	for _, video := range resp.Data.Videos {
		if video.VideoID == "" {
			continue
		}
		post := types.Post{
			Username: identity.Username,
			Platform: identity.Platform,
			PostLink: fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", identity.Username, video.VideoID),
		}
		if video.CreateTime > 0 {
			post.PostedDate = time.Unix(video.CreateTime, 0).UTC()
		}
		if video.DiggCount != nil {
			post.Likes = *video.DiggCount
		}
		post.Comments = commentsFromCounts(video.CommentCount, video.ShareCount)
		post.Views = video.PlayCount
		posts = append(posts, post)
	}
	return posts, nil
}

// commentsFromCounts resolves the canonical comment count: comment_count
// wins; the legacy share counter is honored only when comment_count is
// entirely absent.
func commentsFromCounts(comments, legacyShares *int) int {
	if comments != nil {
		return *comments
	}
	if legacyShares != nil {
		return *legacyShares
	}
	return 0
}
