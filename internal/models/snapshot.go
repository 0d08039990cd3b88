package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Snapshot is the complete state of one post's comments at a point in time,
// keyed by comment id.
type Snapshot map[string]Comment

func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, c := range s {
		out[id] = c
	}
	return out
}

// Rejected is a record kept out of a snapshot together with the reason.
type Rejected struct {
	Key string
	Err error
}

// DecodeSnapshot turns raw stored values into typed records. Records that do
// not decode, whose id disagrees with their key, or that fail Validate are
// returned as rejected and left out of the snapshot.
func DecodeSnapshot(raw map[string][]byte) (Snapshot, []Rejected) {
	snap := make(Snapshot, len(raw))
	var rejected []Rejected

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var c Comment
		if err := json.Unmarshal(raw[key], &c); err != nil {
			rejected = append(rejected, Rejected{Key: key, Err: err})
			continue
		}
		if c.ID == "" {
			c.ID = key
		}
		if c.ID != key {
			rejected = append(rejected, Rejected{Key: key, Err: fmt.Errorf("id %q does not match key", c.ID)})
			continue
		}
		if err := c.Validate(); err != nil {
			rejected = append(rejected, Rejected{Key: key, Err: err})
			continue
		}
		snap[key] = c
	}

	return snap, rejected
}

// Node is a comment placed in the materialized tree.
type Node struct {
	Comment
	Depth   int    `json:"depth"`
	Replies []Node `json:"replies,omitempty"`
}

// UnmarshalJSON is needed because the embedded Comment's method would
// otherwise swallow the whole object.
func (n *Node) UnmarshalJSON(data []byte) error {
	if err := n.Comment.UnmarshalJSON(data); err != nil {
		return err
	}

	var rest struct {
		Depth   int    `json:"depth"`
		Replies []Node `json:"replies"`
	}
	if err := json.Unmarshal(data, &rest); err != nil {
		return err
	}
	n.Depth, n.Replies = rest.Depth, rest.Replies

	return nil
}

// Thread is the materialized discussion of one post.
type Thread struct {
	PostID   string    `json:"post_id"`
	Comments []Node    `json:"comments"`
	Total    int       `json:"total"`
	Visible  int       `json:"visible"`
	BuiltAt  time.Time `json:"built_at"`
}
