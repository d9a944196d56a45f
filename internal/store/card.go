package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/shopspring/decimal"
)

// CardTx is the view of the store available inside CardStore.Update.
// Every card reachable through it is held under an exclusive lock until
// the update function returns.
type CardTx interface {
	// Card returns a copy of a locked card.
	// Returns ErrCardNotFound if the card does not exist or was not locked by this update.
	Card(id uuid.UUID) (*domain.Card, error)

	// Save stages the new state of a locked card. The stored version is
	// incremented when the update commits; callers must not change the
	// card's Version field themselves.
	Save(ctx context.Context, card *domain.Card) error

	// Delete stages removal of a locked card.
	Delete(ctx context.Context, id uuid.UUID) error

	// AppendTransfer stages a transfer record and assigns its ID from the
	// store-wide transfer sequence. IDs increase with every call and are
	// never reused, even when the update is rolled back.
	AppendTransfer(ctx context.Context, record *domain.TransferRecord) error
}

// UpdateFn mutates cards through tx. Returning an error discards every
// staged change.
type UpdateFn func(ctx context.Context, tx CardTx) error

// OwnerCardSummary aggregates the cards of a single owner.
type OwnerCardSummary struct {
	Total        int
	Active       int
	Blocked      int
	Expired      int
	TotalBalance decimal.Decimal
}

// CardStore defines the interface for card data persistence.
type CardStore interface {
	// Create saves a new card to the store.
	// Returns ErrCardNumberExists if a card with the same number already exists.
	// Returns ErrUserNotFound if the owner does not exist.
	Create(ctx context.Context, card *domain.Card) error

	// GetByID retrieves a committed snapshot of a card by its unique ID.
	// Returns ErrCardNotFound if the card does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error)

	// GetForOwner retrieves a card only if it belongs to ownerID.
	// A card owned by someone else is reported as ErrCardNotFound, so
	// callers cannot probe for the existence of foreign cards.
	GetForOwner(ctx context.Context, id, ownerID uuid.UUID) (*domain.Card, error)

	// ExistsByNumber reports whether any card uses number.
	ExistsByNumber(ctx context.Context, number string) (bool, error)

	// List returns one page of cards matching filter, ordered by the
	// filter's sort field with ties broken by ID, plus the total count of
	// matching cards.
	List(ctx context.Context, filter domain.CardFilter) ([]*domain.Card, int64, error)

	// SummarizeOwner counts the cards of ownerID by stored status and sums their balances.
	SummarizeOwner(ctx context.Context, ownerID uuid.UUID) (*OwnerCardSummary, error)

	// ListExpiredIDs returns up to limit IDs of cards whose expiry date is
	// before today and whose stored status is not yet EXPIRED.
	ListExpiredIDs(ctx context.Context, today time.Time, limit int) ([]uuid.UUID, error)

	// Update locks the cards in ids, in ascending ID order, and runs fn.
	// If fn returns nil every staged change is committed atomically;
	// otherwise nothing is applied. Readers never observe a partially
	// applied update.
	//
	// Missing IDs are not an error at lock time; tx.Card reports them.
	// Returns ErrConflict if the locks cannot be acquired before ctx is done
	// or the database aborts the transaction because of contention.
	Update(ctx context.Context, ids []uuid.UUID, fn UpdateFn) error
}

// TransferStore provides read access to the transfer history.
// Records are written only through CardTx.AppendTransfer.
type TransferStore interface {
	// ListByOwner returns one page of ownerID's transfers, newest first,
	// plus the owner's total number of transfers.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, page domain.PageRequest) ([]*domain.TransferRecord, int64, error)
}
