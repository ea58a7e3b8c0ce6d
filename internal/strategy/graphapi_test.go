package strategy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-tracker/internal/classify"
	"engagement-tracker/internal/config"
	"engagement-tracker/pkg/types"
)

func graphConfig() *config.Config {
	cfg := testConfig(1)
	cfg.GraphAPI = config.GraphAPIConfig{
		AccessToken:       "test-token",
		AccountIDs:        map[string]string{"creator": "17841400000000000"},
		Metric:            "plays",
		RequestsPerMinute: 60000,
	}
	return cfg
}

func newTestGraphAPI(t *testing.T, server *httptest.Server) *graphAPIStrategy {
	t.Helper()
	cfg := graphConfig()
	cfg.GraphAPI.BaseURL = server.URL
	strat, err := newGraphAPIStrategy(Deps{Config: cfg, Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, strat.Initialize())
	return strat
}

func TestGraphAPIFetchPostsWithInsights(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.URL.Query().Get("access_token"))

		switch {
		case strings.HasSuffix(r.URL.Path, "/media"):
			w.Write([]byte(`{"data":[
				{"id":"m1","permalink":"https://www.instagram.com/p/AAA/","timestamp":"2026-08-20T10:00:00+0000","like_count":10,"comments_count":2},
				{"id":"m2","permalink":"https://www.instagram.com/p/BBB/","timestamp":"2026-08-21T10:00:00Z","like_count":20,"comments_count":4}
			]}`))
		case strings.HasSuffix(r.URL.Path, "/m1/insights"):
			w.Write([]byte(`{"data":[{"name":"plays","values":[{"value":900}]}]}`))
		case strings.HasSuffix(r.URL.Path, "/m2/insights"):
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"unsupported"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	strat := newTestGraphAPI(t, server)
	posts, err := strat.FetchRecentPosts(context.Background(),
		types.NewIdentity("creator", types.PlatformInstagram), 12)

	require.NoError(t, err)
	require.Len(t, posts, 2)

	require.NotNil(t, posts[0].Views)
	assert.EqualValues(t, 900, *posts[0].Views)

	// A failed insights call degrades the item to zero, never drops it.
	require.NotNil(t, posts[1].Views)
	assert.EqualValues(t, 0, *posts[1].Views)
	assert.Equal(t, 20, posts[1].Likes)
}

func TestGraphAPIUnmappedUsername(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for unmapped usernames")
	}))
	defer server.Close()

	strat := newTestGraphAPI(t, server)
	_, err := strat.FetchRecentPosts(context.Background(),
		types.NewIdentity("stranger", types.PlatformInstagram), 12)

	require.Error(t, err)
	assert.Equal(t, classify.KindUserNotFound, classify.KindOf(err))
}

func TestGraphAPIInBandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"message":"Unsupported get request: user not found","type":"GraphMethodException","code":100}}`)
	}))
	defer server.Close()

	strat := newTestGraphAPI(t, server)
	_, err := strat.FetchRecentPosts(context.Background(),
		types.NewIdentity("creator", types.PlatformInstagram), 12)

	require.Error(t, err)
	assert.Equal(t, classify.KindUserNotFound, classify.KindOf(err))
}

func TestGraphAPIRequiresConfiguration(t *testing.T) {
	cfg := graphConfig()
	cfg.GraphAPI.AccessToken = ""
	_, err := newGraphAPIStrategy(Deps{Config: cfg, Logger: testLogger()})
	assert.Error(t, err)

	cfg = graphConfig()
	cfg.GraphAPI.AccountIDs = nil
	_, err = newGraphAPIStrategy(Deps{Config: cfg, Logger: testLogger()})
	assert.Error(t, err)

	cfg = graphConfig()
	cfg.GraphAPI.RequestsPerMinute = 0
	_, err = newGraphAPIStrategy(Deps{Config: cfg, Logger: testLogger()})
	assert.Error(t, err, "an unset rate limit must fail loudly, not divide by zero")
}
