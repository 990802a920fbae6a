package store

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

func encodeCursor(t time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", t.UnixNano(), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(c string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(c)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidCursor, errors.New("malformed cursor"))
	}
	var nanos int64
	if _, err := fmt.Sscanf(parts[0], "%d", &nanos); err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return time.Unix(0, nanos).UTC(), parts[1], nil
}

// newerFirst orders discussions by createdAt then id, both descending.
func newerFirst(a, b Discussion) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// beforeCursor reports whether d sorts strictly after the cursor position.
func beforeCursor(d Discussion, t time.Time, id string) bool {
	if !d.CreatedAt.Equal(t) {
		return d.CreatedAt.Before(t)
	}
	return d.ID < id
}
