package store

// childLookup returns the ids of comments whose parent is any of parentIDs.
type childLookup func(parentIDs []string) ([]string, error)

// collectSubtree walks the reply tree under rootID level by level and
// returns rootID followed by every descendant, each exactly once. Ids seen
// before are skipped, so a parent cycle in stored data still terminates.
func collectSubtree(rootID string, children childLookup) ([]string, error) {
	visited := map[string]struct{}{rootID: {}}
	ids := []string{rootID}
	frontier := []string{rootID}

	for len(frontier) > 0 {
		kids, err := children(frontier)
		if err != nil {
			return nil, err
		}
		var next []string
		for _, id := range kids {
			if _, seen := visited[id]; seen {
				continue
			}
			visited[id] = struct{}{}
			ids = append(ids, id)
			next = append(next, id)
		}
		frontier = next
	}
	return ids, nil
}
