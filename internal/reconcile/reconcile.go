// Package reconcile merges freshly fetched posts against previously known
// ones and computes the rolling average engagement metric. It performs no
// I/O; outputs are fully determined by inputs.
package reconcile

import (
	"sort"

	"github.com/sirupsen/logrus"

	"engagement-tracker/pkg/types"
)

// Outcome partitions fresh posts relative to the existing set for one
// identity. ToAppend never intersects the existing link set; together with
// ToUpdate it covers exactly the fresh posts that carry a resolvable link.
type Outcome struct {
	ToAppend []types.Post
	ToUpdate []types.Post
}

type Engine struct {
	logger *logrus.Logger
}

func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{logger: logger}
}

// Reconcile classifies each fresh post against the existing posts by
// canonical post link. A link match refreshes the existing record
// (ToUpdate); a new link is appended. Fresh posts without a link are
// dropped with a warning. Duplicate links within the fresh batch keep the
// first occurrence only, preserving the one-record-per-link invariant.
func (e *Engine) Reconcile(existing, fresh []types.Post) Outcome {
	known := make(map[string]bool, len(existing))
	for _, post := range existing {
		if post.HasLink() {
			known[post.PostLink] = true
		}
	}

	var outcome Outcome
	seen := make(map[string]bool, len(fresh))
	for _, post := range fresh {
		if !post.HasLink() {
			e.logger.Warnf("dropping post without link for %s/%s", post.Username, post.Platform)
			continue
		}
		if seen[post.PostLink] {
			continue
		}
		seen[post.PostLink] = true

		if known[post.PostLink] {
			outcome.ToUpdate = append(outcome.ToUpdate, post)
		} else {
			outcome.ToAppend = append(outcome.ToAppend, post)
		}
	}
	return outcome
}

// SelectRecent sorts posts by posted date descending and returns the first
// n. Posts with a missing date sort as oldest; ties keep input order so the
// selection stays deterministic.
func SelectRecent(posts []types.Post, n int) []types.Post {
	if n <= 0 {
		return nil
	}
	selected := make([]types.Post, len(posts))
	copy(selected, posts)

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].PostedDate.After(selected[j].PostedDate)
	})

	if len(selected) > n {
		selected = selected[:n]
	}
	return selected
}

// ComputeAverage returns the arithmetic mean of view counts across the
// given posts, rounded to the nearest integer. Posts with a missing or
// negative count are excluded; the result is nil when no valid counts
// remain, never zero.
func ComputeAverage(posts []types.Post) *int64 {
	var sum, valid int64
	for _, post := range posts {
		if !post.ValidViews() {
			continue
		}
		sum += *post.Views
		valid++
	}
	if valid == 0 {
		return nil
	}
	avg := (sum + valid/2) / valid
	return &avg
}
