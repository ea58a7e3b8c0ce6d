package strategy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-tracker/internal/classify"
	"engagement-tracker/internal/config"
	"engagement-tracker/pkg/types"
)

func testConfig(retryAttempts int) *config.Config {
	return &config.Config{
		Tracker: config.TrackerConfig{
			Concurrency:    2,
			RetryAttempts:  retryAttempts,
			RequestTimeout: 5,
			FetchCount:     12,
			RecencyWindow:  10,
			DelayMinMs:     1,
			DelayMaxMs:     2,
		},
		RapidAPI: config.RapidAPIConfig{
			Key: "test-key",
			Hosts: map[string]string{
				"instagram": "ig.example.p.rapidapi.com",
				"tiktok":    "tt.example.p.rapidapi.com",
			},
			// High enough that the limiter never blocks a test.
			RequestsPerMinute: 60000,
		},
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRapidAPI(t *testing.T, platform types.Platform, server *httptest.Server, retryAttempts int) *rapidAPIStrategy {
	t.Helper()
	deps := Deps{Config: testConfig(retryAttempts), Logger: testLogger()}
	strat, err := newRapidAPIStrategy(platform, deps)
	require.NoError(t, err)
	strat.baseURL = server.URL
	require.NoError(t, strat.Initialize())
	return strat
}

func TestRapidAPIFetchInstagramPosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/posts", r.URL.Path)
		assert.Equal(t, "creator", r.URL.Query().Get("username_or_id_or_url"))
		assert.Equal(t, "test-key", r.Header.Get("X-RapidAPI-Key"))
		assert.Equal(t, "ig.example.p.rapidapi.com", r.Header.Get("X-RapidAPI-Host"))

		w.Write([]byte(`{"data":{"user":{"is_private":false},"items":[
			{"code":"AAA","taken_at":1755600000,"like_count":10,"comment_count":3,"play_count":5000},
			{"code":"BBB","taken_at":1755500000,"like_count":7,"share_count":9},
			{"code":"CCC","like_count":1}
		]}}`))
	}))
	defer server.Close()

	strat := newTestRapidAPI(t, types.PlatformInstagram, server, 1)
	identity := types.NewIdentity("creator", types.PlatformInstagram)

	posts, err := strat.FetchRecentPosts(context.Background(), identity, 12)
	require.NoError(t, err)
	require.Len(t, posts, 3)

	assert.Equal(t, "https://www.instagram.com/p/AAA/", posts[0].PostLink)
	assert.Equal(t, 10, posts[0].Likes)
	assert.Equal(t, 3, posts[0].Comments)
	require.NotNil(t, posts[0].Views)
	assert.EqualValues(t, 5000, *posts[0].Views)
	assert.False(t, posts[0].PostedDate.IsZero())

	// Legacy share counter only stands in when comment_count is absent.
	assert.Equal(t, 9, posts[1].Comments)
	assert.Nil(t, posts[1].Views)

	assert.Equal(t, 0, posts[2].Comments)
	assert.True(t, posts[2].PostedDate.IsZero())
}

func TestRapidAPICommentCountWinsOverLegacyShares(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"items":[
			{"code":"X","comment_count":4,"share_count":99}
		]}}`))
	}))
	defer server.Close()

	strat := newTestRapidAPI(t, types.PlatformInstagram, server, 1)
	posts, err := strat.FetchRecentPosts(context.Background(),
		types.NewIdentity("creator", types.PlatformInstagram), 12)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, 4, posts[0].Comments)
}

func TestRapidAPIFetchTikTokPosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user/posts", r.URL.Path)
		assert.Equal(t, "creator", r.URL.Query().Get("unique_id"))

		w.Write([]byte(`{"code":0,"data":{"videos":[
			{"video_id":"111","create_time":1755600000,"digg_count":50,"comment_count":6,"play_count":12000}
		]}}`))
	}))
	defer server.Close()

	strat := newTestRapidAPI(t, types.PlatformTikTok, server, 1)
	posts, err := strat.FetchRecentPosts(context.Background(),
		types.NewIdentity("creator", types.PlatformTikTok), 12)
	require.NoError(t, err)
	require.Len(t, posts, 1)

	assert.Equal(t, "https://www.tiktok.com/@creator/video/111", posts[0].PostLink)
	assert.Equal(t, 50, posts[0].Likes)
	assert.Equal(t, 6, posts[0].Comments)
	require.NotNil(t, posts[0].Views)
	assert.EqualValues(t, 12000, *posts[0].Views)
}

func TestRapidAPIPrivateAccountIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"data":{"user":{"is_private":true},"items":[]}}`))
	}))
	defer server.Close()

	strat := newTestRapidAPI(t, types.PlatformInstagram, server, 3)
	_, err := strat.FetchRecentPosts(context.Background(),
		types.NewIdentity("creator", types.PlatformInstagram), 12)

	require.Error(t, err)
	assert.Equal(t, classify.KindPrivateAccount, classify.KindOf(err))
	assert.EqualValues(t, 1, calls.Load(), "terminal kinds are never retried")
}

func TestRapidAPINotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"user not found"}`))
	}))
	defer server.Close()

	strat := newTestRapidAPI(t, types.PlatformInstagram, server, 3)
	_, err := strat.FetchRecentPosts(context.Background(),
		types.NewIdentity("ghost", types.PlatformInstagram), 12)

	require.Error(t, err)
	assert.Equal(t, classify.KindUserNotFound, classify.KindOf(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestRapidAPIRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data":{"items":[{"code":"OK"}]}}`))
	}))
	defer server.Close()

	strat := newTestRapidAPI(t, types.PlatformInstagram, server, 2)
	posts, err := strat.FetchRecentPosts(context.Background(),
		types.NewIdentity("creator", types.PlatformInstagram), 12)

	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRapidAPIRequiresConfiguration(t *testing.T) {
	cfg := testConfig(1)
	cfg.RapidAPI.Key = ""
	_, err := newRapidAPIStrategy(types.PlatformInstagram, Deps{Config: cfg, Logger: testLogger()})
	assert.Error(t, err)

	cfg = testConfig(1)
	delete(cfg.RapidAPI.Hosts, "tiktok")
	_, err = newRapidAPIStrategy(types.PlatformTikTok, Deps{Config: cfg, Logger: testLogger()})
	assert.Error(t, err)
}
