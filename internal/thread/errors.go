package thread

import (
	"errors"
	"strings"
)

// ErrStructural marks data that can not form a tree.
var ErrStructural = errors.New("thread: structural error")

// CycleError reports comments whose parent chain loops back on itself.
// IDs lists the loop starting at its smallest id.
type CycleError struct {
	IDs []string
}

func (e *CycleError) Error() string {
	if len(e.IDs) == 0 {
		return "thread: comment cycle detected"
	}
	return "thread: comment cycle detected: " + strings.Join(e.IDs, " -> ") + " -> " + e.IDs[0]
}

func (e *CycleError) Is(target error) bool {
	return target == ErrStructural
}

func newCycleError(ids []string) *CycleError {
	if len(ids) == 0 {
		return &CycleError{}
	}
	start := 0
	for i, id := range ids {
		if id < ids[start] {
			start = i
		}
	}
	rotated := make([]string, 0, len(ids))
	rotated = append(rotated, ids[start:]...)
	rotated = append(rotated, ids[:start]...)
	return &CycleError{IDs: rotated}
}
