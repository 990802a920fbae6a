package store

import (
	"errors"
	"strconv"
	"testing"
)

func lookupFrom(parents map[string][]string) childLookup {
	return func(ids []string) ([]string, error) {
		var out []string
		for _, id := range ids {
			out = append(out, parents[id]...)
		}
		return out, nil
	}
}

func TestCollectSubtree_BreadthFirst(t *testing.T) {
	ids, err := collectSubtree("r", lookupFrom(map[string][]string{
		"r": {"a", "b"},
		"a": {"a1"},
		"b": {"b1", "b2"},
	}))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := []string{"r", "a", "b", "a1", "b1", "b2"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestCollectSubtree_Cycle(t *testing.T) {
	ids, err := collectSubtree("a", lookupFrom(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected each node once, got %v", ids)
	}
}

func TestCollectSubtree_DeepChain(t *testing.T) {
	parents := map[string][]string{}
	prev := "n0"
	for i := 1; i <= 10000; i++ {
		id := "n" + strconv.Itoa(i)
		parents[prev] = []string{id}
		prev = id
	}
	ids, err := collectSubtree("n0", lookupFrom(parents))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(ids) != 10001 {
		t.Fatalf("expected 10001 ids, got %d", len(ids))
	}
}

func TestCollectSubtree_PropagatesError(t *testing.T) {
	boom := errors.New("query failed")
	_, err := collectSubtree("r", func([]string) ([]string, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}
