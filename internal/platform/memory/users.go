package memory

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/store"
)

// Create implements store.UserStore.Create
func (s *UserStore) Create(_ context.Context, user *domain.User) error {
	if user.HashedPassword == "" {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrEmptyHashedPassword)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usernames[user.Username]; ok {
		return store.ErrUsernameExists
	}
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%w: user id", store.ErrDuplicate)
	}
	s.users[user.ID] = copyUser(user)
	s.usernames[user.Username] = user.ID
	return nil
}

// GetByID implements store.UserStore.GetByID
func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return copyUser(user), nil
}

// GetByUsername implements store.UserStore.GetByUsername
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.usernames[username]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return s.GetByID(ctx, id)
}

// Update implements store.UserStore.Update
func (s *UserStore) Update(_ context.Context, user *domain.User) error {
	if user.HashedPassword == "" {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrEmptyHashedPassword)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return store.ErrUserNotFound
	}
	updated := copyUser(existing)
	updated.HashedPassword = user.HashedPassword
	updated.Roles = slices.Clone(user.Roles)
	updated.UpdatedAt = user.UpdatedAt
	s.users[user.ID] = updated
	return nil
}

// Delete implements store.UserStore.Delete
func (s *UserStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	for _, card := range s.cards {
		if card.OwnerID == id {
			return fmt.Errorf("%w: user %s owns cards", store.ErrReferenced, id)
		}
	}
	delete(s.usernames, user.Username)
	delete(s.users, id)
	return nil
}

// List implements store.UserStore.List
func (s *UserStore) List(_ context.Context, filter domain.UserFilter) ([]*domain.User, int64, error) {
	page := domain.NewPageRequest(filter.Page, filter.Size)
	fragment := strings.ToLower(filter.UsernameFragment)

	s.mu.RLock()
	var matched []*domain.User
	for _, user := range s.users {
		if fragment != "" && !strings.Contains(strings.ToLower(user.Username), fragment) {
			continue
		}
		if filter.Role != nil && !user.HasRole(*filter.Role) {
			continue
		}
		matched = append(matched, copyUser(user))
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *domain.User) int {
		if c := strings.Compare(a.Username, b.Username); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})

	return paginate(matched, page), int64(len(matched)), nil
}
