// Package thread assembles flat comment records into a reply forest.
package thread

import (
	"slices"
	"sort"
	"time"

	"github.com/example/acadmate/services/forum/internal/store"
)

// Node is a comment with its replies. Comment fields serialize inline.
type Node struct {
	store.Comment
	ContentHTML string  `json:"contentHtml,omitempty"`
	Replies     []*Node `json:"replies"`
}

func olderFirst(a, b store.Comment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Build returns the root nodes in chronological order and the number of
// comments placed in the forest. Siblings are chronological too. A comment
// whose parent is absent from the input becomes a root, and so does the
// oldest member of any parent cycle found in stored data.
func Build(comments []store.Comment, now time.Time) ([]*Node, int) {
	sorted := make([]store.Comment, 0, len(comments))
	seen := make(map[string]struct{}, len(comments))
	for _, c := range comments {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		sorted = append(sorted, c.Normalize(now))
	}
	sort.SliceStable(sorted, func(i, j int) bool { return olderFirst(sorted[i], sorted[j]) })

	nodes := make(map[string]*Node, len(sorted))
	for _, c := range sorted {
		nodes[c.ID] = &Node{Comment: c, Replies: []*Node{}}
	}

	roots := []*Node{}
	parentOf := make(map[string]*Node, len(sorted))
	for _, c := range sorted {
		n := nodes[c.ID]
		if c.ParentID != nil && *c.ParentID != c.ID {
			if p, ok := nodes[*c.ParentID]; ok {
				p.Replies = append(p.Replies, n)
				parentOf[c.ID] = p
				continue
			}
		}
		roots = append(roots, n)
	}

	reached := make(map[string]struct{}, len(sorted))
	mark := func(from *Node) {
		Walk([]*Node{from}, func(n *Node, _ int) { reached[n.ID] = struct{}{} })
	}
	for _, r := range roots {
		mark(r)
	}
	if len(reached) < len(sorted) {
		for _, c := range sorted {
			if _, ok := reached[c.ID]; ok {
				continue
			}
			n := nodes[c.ID]
			if p := parentOf[c.ID]; p != nil {
				p.Replies = slices.DeleteFunc(p.Replies, func(x *Node) bool { return x == n })
			}
			roots = append(roots, n)
			mark(n)
		}
		sort.SliceStable(roots, func(i, j int) bool { return olderFirst(roots[i].Comment, roots[j].Comment) })
	}
	return roots, len(sorted)
}

// Walk visits every node depth-first, parents before children, siblings in order.
func Walk(roots []*Node, fn func(n *Node, depth int)) {
	type frame struct {
		n     *Node
		depth int
	}
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{roots[i], 0})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(f.n, f.depth)
		for i := len(f.n.Replies) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.n.Replies[i], f.depth + 1})
		}
	}
}

// Flatten lists the forest in Walk order.
func Flatten(roots []*Node) []store.Comment {
	var out []store.Comment
	Walk(roots, func(n *Node, _ int) { out = append(out, n.Comment) })
	return out
}
