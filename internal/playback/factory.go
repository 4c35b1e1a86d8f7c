package playback

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise the
// JSON records file.
func NewStore(ctx context.Context, databaseURL, recordsFile string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewFileStore(recordsFile)
	}
	return NewPostgresStore(ctx, databaseURL)
}
