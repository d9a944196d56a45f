package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/platform/logger"
	"github.com/phrazzld/bankcards-api/internal/platform/metrics"
	"github.com/phrazzld/bankcards-api/internal/store"
	"github.com/shopspring/decimal"
)

// TransferInput describes a transfer between two cards of the same owner.
type TransferInput struct {
	FromCardID  uuid.UUID
	ToCardID    uuid.UUID
	Amount      decimal.Decimal
	OwnerID     uuid.UUID
	Description string
}

// TransferService moves funds between cards.
type TransferService interface {
	// Transfer debits the source card and credits the destination card
	// atomically and returns the receipt.
	Transfer(ctx context.Context, in TransferInput) (*domain.TransferRecord, error)

	// ListTransfers returns one page of ownerID's transfers, newest first.
	ListTransfers(
		ctx context.Context,
		ownerID uuid.UUID,
		page domain.PageRequest,
	) (domain.Page[*domain.TransferRecord], error)
}

// TransferServiceOptions configures a TransferService.
type TransferServiceOptions struct {
	CardServiceOptions

	// MaxAmount is the inclusive per-transfer ceiling. Zero means
	// domain.DefaultMaxTransferAmount.
	MaxAmount decimal.Decimal
}

type transferServiceImpl struct {
	cards       store.CardStore
	transfers   store.TransferStore
	clock       Clock
	lockTimeout time.Duration
	maxAmount   decimal.Decimal
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

var _ TransferService = (*transferServiceImpl)(nil)

// NewTransferService creates a new TransferService.
// It returns an error if any of the required dependencies are nil.
func NewTransferService(
	cards store.CardStore,
	transfers store.TransferStore,
	opts TransferServiceOptions,
	logger *slog.Logger,
) (TransferService, error) {
	if cards == nil {
		return nil, domain.NewValidationError("cards", "cannot be nil", domain.ErrValidation)
	}
	if transfers == nil {
		return nil, domain.NewValidationError("transfers", "cannot be nil", domain.ErrValidation)
	}

	maxAmount := opts.MaxAmount
	if !maxAmount.IsPositive() {
		maxAmount = domain.DefaultMaxTransferAmount
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &transferServiceImpl{
		cards:       cards,
		transfers:   transfers,
		clock:       opts.Clock,
		lockTimeout: opts.LockTimeout,
		maxAmount:   maxAmount,
		metrics:     opts.Metrics,
		logger:      logger.With(slog.String("component", "transfer_service")),
	}, nil
}

// Transfer implements TransferService.Transfer.
//
// Checks run in a fixed order so that a request violating several rules
// always reports the same error: ownership and existence, same card,
// amount bounds, card status, expiry, and finally the available balance.
func (s *transferServiceImpl) Transfer(ctx context.Context, in TransferInput) (*domain.TransferRecord, error) {
	start := time.Now()
	record, err := s.transfer(ctx, in)
	s.metrics.ObserveTransfer(transferOutcome(err), time.Since(start))

	log := logger.FromContextOrDefault(ctx, s.logger)
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			s.metrics.IncrementLockConflicts()
		}
		log.Info("transfer rejected",
			slog.String("owner_id", in.OwnerID.String()),
			slog.String("from_card_id", in.FromCardID.String()),
			slog.String("to_card_id", in.ToCardID.String()),
			slog.String("error", err.Error()))
		return nil, err
	}

	log.Info("transfer completed",
		slog.Int64("transaction_id", record.ID),
		slog.String("owner_id", in.OwnerID.String()),
		slog.String("amount", record.Amount.StringFixed(domain.MoneyScale)))
	return record, nil
}

func (s *transferServiceImpl) transfer(ctx context.Context, in TransferInput) (*domain.TransferRecord, error) {
	const op = "transfer"

	if _, err := s.cards.GetForOwner(ctx, in.FromCardID, in.OwnerID); err != nil {
		return nil, translateStoreError(op, err)
	}
	if _, err := s.cards.GetForOwner(ctx, in.ToCardID, in.OwnerID); err != nil {
		return nil, translateStoreError(op, err)
	}

	if in.FromCardID == in.ToCardID {
		return nil, domain.NewCardError(op, domain.ErrSameCardTransfer, "")
	}

	if err := domain.ValidateTransferAmount(in.Amount, s.maxAmount); err != nil {
		return nil, err
	}

	ctx, cancel := withLockTimeout(ctx, s.lockTimeout)
	defer cancel()

	var record *domain.TransferRecord
	ids := []uuid.UUID{in.FromCardID, in.ToCardID}
	err := s.cards.Update(ctx, ids, func(ctx context.Context, tx store.CardTx) error {
		// The snapshots read above may be stale; everything is re-checked
		// against the locked rows.
		from, err := s.lockedCard(tx, in.FromCardID, in.OwnerID)
		if err != nil {
			return err
		}
		to, err := s.lockedCard(tx, in.ToCardID, in.OwnerID)
		if err != nil {
			return err
		}

		if from.Status != domain.CardStatusActive {
			return domain.NewFieldError(op, "fromCardId", domain.ErrSourceNotActive,
				"source card is "+from.Status.String())
		}
		if to.Status != domain.CardStatusActive {
			return domain.NewFieldError(op, "toCardId", domain.ErrDestinationNotActive,
				"destination card is "+to.Status.String())
		}

		today := s.clock.Today()
		if from.IsExpired(today) {
			return domain.NewFieldError(op, "fromCardId", domain.ErrCardExpired,
				"source card expired on "+from.ExpiryDate.Format(domain.DateLayout))
		}
		if to.IsExpired(today) {
			return domain.NewFieldError(op, "toCardId", domain.ErrCardExpired,
				"destination card expired on "+to.ExpiryDate.Format(domain.DateLayout))
		}

		if from.Balance.LessThan(in.Amount) {
			return domain.NewInsufficientFundsError(op, from.Balance)
		}

		now := s.clock.Now()
		if err := from.Debit(in.Amount, now); err != nil {
			return err
		}
		to.Credit(in.Amount, now)

		if err := tx.Save(ctx, from); err != nil {
			return err
		}
		if err := tx.Save(ctx, to); err != nil {
			return err
		}

		record = domain.NewTransferRecord(from, to, in.Amount, in.Description, now)
		return tx.AppendTransfer(ctx, record)
	})
	if err != nil {
		return nil, translateStoreError(op, err)
	}

	return record, nil
}

func (s *transferServiceImpl) lockedCard(tx store.CardTx, id, ownerID uuid.UUID) (*domain.Card, error) {
	card, err := tx.Card(id)
	if err != nil {
		return nil, err
	}
	if card.OwnerID != ownerID {
		return nil, domain.NewCardError("transfer", domain.ErrCardNotFound, "")
	}
	return card, nil
}

// ListTransfers implements TransferService.ListTransfers.
func (s *transferServiceImpl) ListTransfers(
	ctx context.Context,
	ownerID uuid.UUID,
	page domain.PageRequest,
) (domain.Page[*domain.TransferRecord], error) {
	page = domain.NewPageRequest(page.Page, page.Size)

	records, total, err := s.transfers.ListByOwner(ctx, ownerID, page)
	if err != nil {
		return domain.Page[*domain.TransferRecord]{}, translateStoreError("list transfers", err)
	}
	return domain.NewPage(records, page, total), nil
}

// transferOutcomes labels the transfer metric by failure kind.
var transferOutcomes = []struct {
	kind  error
	label string
}{
	{domain.ErrCardNotFound, "card_not_found"},
	{domain.ErrSameCardTransfer, "same_card"},
	{domain.ErrInvalidAmount, "invalid_amount"},
	{domain.ErrAmountTooLarge, "amount_too_large"},
	{domain.ErrSourceNotActive, "source_not_active"},
	{domain.ErrDestinationNotActive, "destination_not_active"},
	{domain.ErrCardExpired, "card_expired"},
	{domain.ErrInsufficientFunds, "insufficient_funds"},
	{domain.ErrConcurrentModification, "conflict"},
	{domain.ErrStorageUnavailable, "unavailable"},
}

func transferOutcome(err error) string {
	if err == nil {
		return "completed"
	}
	for _, o := range transferOutcomes {
		if errors.Is(err, o.kind) {
			return o.label
		}
	}
	return "error"
}
