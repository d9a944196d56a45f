package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLockOrder(t *testing.T) {
	t.Parallel()

	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	mid := uuid.MustParse("7fffffff-0000-0000-0000-000000000000")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000002")

	assert.Equal(t, []uuid.UUID{low, mid, high}, LockOrder([]uuid.UUID{high, low, mid, high}))
	assert.Equal(t, LockOrder([]uuid.UUID{low, high}), LockOrder([]uuid.UUID{high, low}))
	assert.Empty(t, LockOrder(nil))
}
