// Package storage persists tracked identities, their observed posts, and
// the rolling average engagement per identity.
package storage

import (
	"engagement-tracker/pkg/types"
)

// Store is the persistence boundary the orchestrator runs against.
// Implementations must keep post_link unique per stored post.
type Store interface {
	// ReadIdentities returns every identity currently tracked.
	ReadIdentities() ([]types.Identity, error)

	// ReadExistingPosts returns all known posts for one identity.
	ReadExistingPosts(identity types.Identity) ([]types.Post, error)

	// AppendPosts inserts previously unseen posts.
	AppendPosts(posts []types.Post) error

	// UpdateExistingPosts refreshes mutable counters (likes, comments,
	// views) of already known posts, matched by post link.
	UpdateExistingPosts(posts []types.Post) error

	// UpdateAverageViews stores the rolling average for an identity.
	// A nil average means no valid view data existed this run and is
	// persisted as NULL rather than zero.
	UpdateAverageViews(identity types.Identity, avg *int64) error
}
