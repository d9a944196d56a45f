package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/store"
)

// translateStoreError maps store errors onto the domain error kinds the API
// understands. Errors that already carry a domain kind pass through
// unchanged, and anything unrecognised is wrapped with op.
func translateStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	var cardErr *domain.CardError
	if errors.As(err, &cardErr) {
		return err
	}
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return err
	}

	switch {
	case errors.Is(err, store.ErrCardNotFound):
		return domain.NewCardError(op, domain.ErrCardNotFound, "")
	case errors.Is(err, store.ErrUserNotFound):
		return domain.NewCardError(op, domain.ErrOwnerNotFound, "")
	case errors.Is(err, store.ErrCardNumberExists):
		return domain.NewFieldError(op, "number", domain.ErrDuplicateCardNumber, "")
	case errors.Is(err, store.ErrUsernameExists):
		return domain.NewFieldError(op, "username", domain.ErrUsernameTaken, "")
	case errors.Is(err, store.ErrReferenced):
		return domain.NewCardError(op, domain.ErrUserHasCards, "")
	case store.IsRetryable(err):
		return domain.NewCardError(op, domain.ErrConcurrentModification, "please retry")
	case errors.Is(err, store.ErrUnavailable):
		return domain.NewCardError(op, domain.ErrStorageUnavailable, "")
	}

	return fmt.Errorf("%s: %w", op, err)
}
