// Package thread turns a flat snapshot of comments into an ordered reply tree.
//
// Every snapshot is indexed from scratch: BuildIndex groups records by their
// parent key and Materialize walks the groups from the root sentinel. Nothing
// is carried over between rebuilds.
package thread

import "CommentThreads/internal/models"

// Index maps a parent key (a comment id or models.RootID) to the records that
// declare it as their parent. Children are not ordered.
type Index map[string][]models.Comment

// BuildIndex groups every record of the snapshot under its declared parent.
// Records pointing at a parent missing from the snapshot are still grouped
// under that parent id, so they are unreachable from the root.
func BuildIndex(snap models.Snapshot) Index {
	idx := make(Index, len(snap)+1)
	idx[models.RootID] = nil

	for id, c := range snap {
		if c.ID == "" {
			c.ID = id
		}
		key := c.ParentKey()
		idx[key] = append(idx[key], c)
	}

	return idx
}

// Children returns the direct children of key in display order.
func (idx Index) Children(key string) []models.Comment {
	return sortedChildren(idx[key])
}

// Len is the number of records in the index.
func (idx Index) Len() int {
	n := 0
	for _, children := range idx {
		n += len(children)
	}
	return n
}

func (idx Index) byID() map[string]models.Comment {
	out := make(map[string]models.Comment, idx.Len())
	for _, children := range idx {
		for _, c := range children {
			out[c.ID] = c
		}
	}
	return out
}
