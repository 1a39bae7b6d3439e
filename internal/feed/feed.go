// Package feed resolves a user's home feed from the follow graph.
package feed

import (
	"context"
	"fmt"

	"example.com/tweetfeed/internal/models"
)

// DefaultLimit is the number of feed entries returned when no limit is configured.
const DefaultLimit = 4

// Source is the slice of the store the resolver needs.
type Source interface {
	GetFollowingIDs(ctx context.Context, userID string) ([]string, error)
	GetTweetsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]models.FeedItem, error)
}

// Resolver computes feeds with a fixed upper bound on entries.
type Resolver struct {
	src   Source
	limit int
}

// NewResolver returns a Resolver. A non-positive limit uses DefaultLimit.
func NewResolver(src Source, limit int) *Resolver {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Resolver{src: src, limit: limit}
}

// Limit reports the maximum number of entries Resolve returns.
func (r *Resolver) Limit() int { return r.limit }

// Resolve returns the newest tweets of the accounts userID follows, newest first.
// Following nobody yields an empty, non-nil feed and no tweet query.
func (r *Resolver) Resolve(ctx context.Context, userID string) ([]models.FeedItem, error) {
	followees, err := r.src.GetFollowingIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve followees: %w", err)
	}
	if len(followees) == 0 {
		return []models.FeedItem{}, nil
	}

	items, err := r.src.GetTweetsByAuthors(ctx, followees, r.limit)
	if err != nil {
		return nil, fmt.Errorf("resolve feed tweets: %w", err)
	}
	if len(items) > r.limit {
		items = items[:r.limit]
	}
	return items, nil
}
