package types

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies a supported social network.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
)

// ParsePlatform normalizes a raw platform name.
func ParsePlatform(raw string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(raw))) {
	case PlatformInstagram:
		return PlatformInstagram, nil
	case PlatformTikTok:
		return PlatformTikTok, nil
	default:
		return "", fmt.Errorf("unsupported platform: %q", raw)
	}
}

// Identity is a tracked (username, platform) pair. It is immutable for the
// duration of a run.
type Identity struct {
	Username string   `json:"username"`
	Platform Platform `json:"platform"`
}

// NewIdentity builds a case/whitespace-normalized identity.
func NewIdentity(username string, platform Platform) Identity {
	return Identity{
		Username: strings.ToLower(strings.TrimSpace(username)),
		Platform: platform,
	}
}

// Key returns the unique identity key.
func (i Identity) Key() string {
	return fmt.Sprintf("%s@%s", i.Username, i.Platform)
}

func (i Identity) String() string {
	return i.Key()
}

// Post is one observed post. PostLink is the canonical unique key; a post
// without a link is unusable and gets dropped before reconciliation.
// Views is nil when the backend exposes no parseable view/play count.
type Post struct {
	Username   string    `json:"username"`
	Platform   Platform  `json:"platform"`
	PostLink   string    `json:"post_link"`
	PostedDate time.Time `json:"posted_date"`
	Likes      int       `json:"likes"`
	Comments   int       `json:"comments"`
	Views      *int64    `json:"views"`
}

// Identity returns the owner identity of the post.
func (p Post) Identity() Identity {
	return NewIdentity(p.Username, p.Platform)
}

// HasLink reports whether the post carries a resolvable canonical link.
func (p Post) HasLink() bool {
	return strings.TrimSpace(p.PostLink) != ""
}

// ValidViews reports whether the post has a usable view count for
// average computation: present and non-negative.
func (p Post) ValidViews() bool {
	return p.Views != nil && *p.Views >= 0
}

// Int64Ptr is a small helper for building optional counters.
func Int64Ptr(v int64) *int64 {
	return &v
}
