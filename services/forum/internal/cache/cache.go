// Package cache holds rendered comment threads between writes.
package cache

import "context"

// InvalidateSubject carries keys every instance should drop from its local cache.
// An empty payload or "ALL" clears everything.
const InvalidateSubject = "forum.cache.invalidate"

// ThreadCache stores JSON-serializable values. Implementations must be safe
// for concurrent use.
//
// Every Delete advances the key's generation. Callers read Generation before
// loading the value from the source and hand it back to Set; a value loaded
// before a later Delete is never served.
type ThreadCache interface {
	// Get decodes the cached value into dest and reports whether it was present.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Generation(ctx context.Context, key string) (uint64, error)
	Set(ctx context.Context, key string, gen uint64, v any) error
	Delete(ctx context.Context, key string) error
}

// ThreadKey is the cache key of a discussion's comment tree.
func ThreadKey(discussionID string) string {
	return "thread:" + discussionID
}
