package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-tracker/internal/storage"
	"engagement-tracker/pkg/types"
)

type fakeReportStore struct {
	posts     []types.Post
	summaries []storage.IdentitySummary
	lastLimit int
	pingErr   error
}

func (f *fakeReportStore) GetRecentPosts(limit int) ([]types.Post, error) {
	f.lastLimit = limit
	if limit < len(f.posts) {
		return f.posts[:limit], nil
	}
	return f.posts, nil
}

func (f *fakeReportStore) GetIdentitySummaries() ([]storage.IdentitySummary, error) {
	return f.summaries, nil
}

func (f *fakeReportStore) GetTrackingStats() (map[string]interface{}, error) {
	return map[string]interface{}{"total_posts": len(f.posts)}, nil
}

func (f *fakeReportStore) Ping() error { return f.pingErr }

func testServer(store *fakeReportStore) *httptest.Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return httptest.NewServer(NewServer(store, logger, "0").Routes())
}

func getJSON(t *testing.T, url string) APIResponse {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHandlePostsClampsLimit(t *testing.T) {
	views := int64(42)
	store := &fakeReportStore{posts: []types.Post{{
		Username: "creator",
		Platform: types.PlatformInstagram,
		PostLink: "https://www.instagram.com/p/A/",
		Views:    &views,
	}}}
	server := testServer(store)
	defer server.Close()

	body := getJSON(t, server.URL+"/api/posts")
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, 50, store.lastLimit, "missing limit falls back to the default")

	getJSON(t, server.URL+"/api/posts?limit=9999")
	assert.Equal(t, 50, store.lastLimit, "out-of-range limit falls back to the default")

	getJSON(t, server.URL+"/api/posts?limit=7")
	assert.Equal(t, 7, store.lastLimit)
}

func TestHandleIdentities(t *testing.T) {
	avg := int64(1200)
	store := &fakeReportStore{summaries: []storage.IdentitySummary{
		{Username: "creator", Platform: "instagram", AverageViews: &avg, PostCount: 3},
	}}
	server := testServer(store)
	defer server.Close()

	body := getJSON(t, server.URL+"/api/identities")
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Count)
}

func TestHandleExportCSV(t *testing.T) {
	views := int64(900)
	store := &fakeReportStore{posts: []types.Post{{
		Username:   "creator",
		Platform:   types.PlatformTikTok,
		PostLink:   "https://www.tiktok.com/@creator/video/1",
		PostedDate: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		Likes:      10,
		Comments:   2,
		Views:      &views,
	}}}
	server := testServer(store)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/export/csv")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Username,Platform,Post Link,Posted Date,Likes,Comments,Views", lines[0])
	assert.Equal(t, "creator,tiktok,https://www.tiktok.com/@creator/video/1,2026-08-20 12:00:00,10,2,900", lines[1])
}

func TestHandleHealthReportsStoreFailure(t *testing.T) {
	server := testServer(&fakeReportStore{pingErr: fmt.Errorf("connection refused")})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
