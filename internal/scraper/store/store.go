// Package store persists whole collections as JSON arrays. Every Save rewrites
// the full collection; there is no locking and a single writer is assumed.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorrupt is returned by Load when the stored bytes are not a JSON array
// of the expected type. The returned collection is empty in that case.
var ErrCorrupt = errors.New("stored collection is not valid JSON")

// Store loads and saves a full collection
type Store[T any] interface {
	Load(ctx context.Context) ([]T, error)
	Save(ctx context.Context, items []T) error
}

func encode[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal collection: %w", err)
	}
	return data, nil
}

func decode[T any](data []byte) ([]T, error) {
	items := []T{}
	if err := json.Unmarshal(data, &items); err != nil {
		return []T{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if items == nil {
		// literal null
		items = []T{}
	}
	return items, nil
}
