package cmd

import (
	"context"
	"strings"

	"github.com/voxmuse/atelier/pkg/statestore"
	"github.com/voxmuse/atelier/pkg/statestore/memory"
	redisstore "github.com/voxmuse/atelier/pkg/statestore/redis"
)

// NewStateStore creates a state store for the given URL. Redis URLs
// select the production backend; anything else falls back to the
// in-memory store for local runs.
func NewStateStore(ctx context.Context, url string) (statestore.StateStore, error) {
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		return redisstore.NewStoreFromURL(ctx, url)
	}

	return memory.NewStore(), nil
}
