package store

import (
	"errors"
	"testing"
	"time"
)

func TestCursor_RoundTrip(t *testing.T) {
	at := time.Date(2024, 2, 3, 4, 5, 6, 7000, time.UTC)
	gotT, gotID, err := decodeCursor(encodeCursor(at, "disc-1"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !gotT.Equal(at) || gotID != "disc-1" {
		t.Fatalf("round trip mismatch: %s %q", gotT, gotID)
	}
}

func TestCursor_Malformed(t *testing.T) {
	for _, c := range []string{"not base64!", "bm9waXBl", "MTIzfA=="} {
		if _, _, err := decodeCursor(c); !errors.Is(err, ErrInvalidCursor) {
			t.Fatalf("cursor %q: expected ErrInvalidCursor, got %v", c, err)
		}
	}
}

func TestNormalizeTimestamps(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2023, 6, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))

	c, u := NormalizeTimestamps(time.Time{}, time.Time{}, now)
	if !c.Equal(now) || !u.Equal(now) {
		t.Fatalf("missing values must fall back to now, got %s %s", c, u)
	}
	c, u = NormalizeTimestamps(created, time.Time{}, now)
	if !c.Equal(created) || !u.Equal(created) {
		t.Fatalf("missing updatedAt must fall back to createdAt, got %s %s", c, u)
	}
	if c.Location() != time.UTC {
		t.Fatal("expected UTC")
	}
}
