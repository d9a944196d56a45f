package store

import (
	"bytes"
	"slices"

	"github.com/google/uuid"
)

// LockOrder returns ids without duplicates in ascending byte order, the
// order in which every CardStore acquires record locks. PostgreSQL compares
// UUIDs the same way.
func LockOrder(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return out
}
