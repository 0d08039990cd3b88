package thread

import (
	"iter"
	"sort"

	"CommentThreads/internal/models"
)

// Materialize walks the index from the root sentinel and returns the nested,
// ordered discussion. Every sibling group is ordered newest first.
//
// Comments whose parent is missing from the snapshot are not reachable from
// the root and do not appear, together with their replies. When the data holds
// a parent cycle a *CycleError is returned along with the well-formed part of
// the tree, so callers can still render what is valid.
func Materialize(idx Index) ([]models.Node, error) {
	m := &materializer{
		idx:     idx,
		onPath:  map[string]bool{models.RootID: true},
		reached: make(map[string]bool, idx.Len()),
	}

	nodes := m.children(models.RootID, 0)
	if m.err != nil {
		return nodes, m.err
	}

	if err := detectCycle(idx, m.reached); err != nil {
		return nodes, err
	}

	return nodes, nil
}

type materializer struct {
	idx     Index
	onPath  map[string]bool
	reached map[string]bool
	path    []string
	err     error
}

func (m *materializer) children(key string, depth int) []models.Node {
	kids := sortedChildren(m.idx[key])
	if len(kids) == 0 {
		return nil
	}

	nodes := make([]models.Node, 0, len(kids))
	for _, c := range kids {
		if m.onPath[c.ID] {
			if m.err == nil {
				m.err = newCycleError(m.loopFrom(c.ID))
			}
			continue
		}

		m.onPath[c.ID] = true
		m.reached[c.ID] = true
		m.path = append(m.path, c.ID)

		replies := m.children(c.ID, depth+1)

		m.path = m.path[:len(m.path)-1]
		delete(m.onPath, c.ID)

		nodes = append(nodes, models.Node{Comment: c, Depth: depth, Replies: replies})
	}

	return nodes
}

// loopFrom returns the part of the current path that starts at id.
func (m *materializer) loopFrom(id string) []string {
	for i, p := range m.path {
		if p == id {
			return append([]string(nil), m.path[i:]...)
		}
	}
	// id is the root sentinel itself
	return append([]string{id}, m.path...)
}

// detectCycle looks at every record the root walk did not reach and follows
// its parent chain. Chains end at the root, at a missing parent (an orphan) or
// on a record seen earlier on the same chain, which is a cycle.
func detectCycle(idx Index, reached map[string]bool) error {
	byID := idx.byID()

	ids := make([]string, 0, len(byID))
	for id := range byID {
		if !reached[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(ids))

	for _, start := range ids {
		if state[start] != unvisited {
			continue
		}

		var chain []string
		cur := start
		for {
			if state[cur] == inProgress {
				for i, id := range chain {
					if id == cur {
						return newCycleError(chain[i:])
					}
				}
			}
			if state[cur] == done {
				break
			}

			state[cur] = inProgress
			chain = append(chain, cur)

			c := byID[cur]
			if c.IsRoot() {
				break
			}
			parent, ok := byID[c.ParentID]
			if !ok {
				break
			}
			cur = parent.ID
		}

		for _, id := range chain {
			state[id] = done
		}
	}

	return nil
}

// Walk lazily yields every comment reachable from the root together with its
// depth, in the same order Materialize produces. A comment already on the
// current path is skipped rather than revisited.
func Walk(idx Index) iter.Seq2[int, models.Comment] {
	return func(yield func(int, models.Comment) bool) {
		onPath := map[string]bool{models.RootID: true}

		var walk func(key string, depth int) bool
		walk = func(key string, depth int) bool {
			for _, c := range sortedChildren(idx[key]) {
				if onPath[c.ID] {
					continue
				}
				if !yield(depth, c) {
					return false
				}
				onPath[c.ID] = true
				ok := walk(c.ID, depth+1)
				delete(onPath, c.ID)
				if !ok {
					return false
				}
			}
			return true
		}

		walk(models.RootID, 0)
	}
}

// Build indexes and materializes one snapshot of a post.
func Build(postID string, snap models.Snapshot) (models.Thread, error) {
	idx := BuildIndex(snap)
	nodes, err := Materialize(idx)

	return models.Thread{
		PostID:   postID,
		Comments: nodes,
		Total:    len(snap),
		Visible:  countNodes(nodes),
	}, err
}

func countNodes(nodes []models.Node) int {
	n := len(nodes)
	for _, node := range nodes {
		n += countNodes(node.Replies)
	}
	return n
}

// sortedChildren returns a sorted copy so the index itself is never reordered.
// Ties on timestamp fall back to the id to keep rebuilds deterministic.
func sortedChildren(children []models.Comment) []models.Comment {
	if len(children) == 0 {
		return nil
	}
	out := make([]models.Comment, len(children))
	copy(out, children)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	return out
}
