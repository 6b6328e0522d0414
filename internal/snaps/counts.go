package snaps

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/snaps/internal/domain"
)

// Counter answers "how many snaps does this URL have".
type Counter struct {
	aggregates AggregateStore
}

// NewCounter creates a read-only view over the aggregate store.
func NewCounter(aggregates AggregateStore) *Counter {
	return &Counter{aggregates: aggregates}
}

// Count canonicalizes rawURL and returns its key with its total.
// Unverified submissions are not included.
func (c *Counter) Count(ctx context.Context, rawURL string) (string, int64, error) {
	canonical, err := domain.Canonicalize(rawURL)
	if err != nil {
		return "", 0, err
	}

	n, err := c.aggregates.Count(ctx, canonical)
	if err != nil {
		return canonical, 0, fmt.Errorf("count %s: %w", canonical, err)
	}
	return canonical, n, nil
}
