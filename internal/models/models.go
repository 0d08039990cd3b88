package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RootID is the parent key of top-level comments.
const RootID = "root"

var (
	ErrMissingID        = errors.New("comment id is empty")
	ErrEmptyText        = errors.New("comment text is empty")
	ErrMissingAuthor    = errors.New("comment author id is empty")
	ErrMissingTimestamp = errors.New("comment timestamp is not set")
)

// Comment is a single record of a post's discussion as the remote store keeps it.
// Records are never edited after creation.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	ParentID  string    `json:"parentId,omitempty"`
}

// ParentKey returns the key the comment is grouped under in a thread index.
func (c Comment) ParentKey() string {
	if c.IsRoot() {
		return RootID
	}
	return c.ParentID
}

func (c Comment) IsRoot() bool {
	return c.ParentID == "" || c.ParentID == RootID
}

// Validate reports the first reason the record can not be part of a thread.
func (c Comment) Validate() error {
	switch {
	case c.ID == "":
		return ErrMissingID
	case strings.TrimSpace(c.Text) == "":
		return ErrEmptyText
	case c.AuthorID == "":
		return ErrMissingAuthor
	case c.Timestamp.IsZero():
		return ErrMissingTimestamp
	}
	return nil
}

// UnmarshalJSON accepts the timestamp either as an RFC 3339 string or as
// Unix milliseconds, which is what server-side timestamps are stored as.
func (c *Comment) UnmarshalJSON(data []byte) error {
	type alias Comment
	aux := struct {
		*alias
		Timestamp json.RawMessage `json:"timestamp"`
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ts, err := parseTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	c.Timestamp = ts

	return nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return ts, nil
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s: %w", raw, err)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// MarshalBinary lets the record be stored as a redis hash value.
func (c Comment) MarshalBinary() ([]byte, error) {
	return json.Marshal(c)
}

func (c *Comment) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, c)
}

// Identity is the acting user supplied by the authentication layer.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
