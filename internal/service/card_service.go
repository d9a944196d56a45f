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

// CardDetails is a card plus the facts derived when it is read.
type CardDetails struct {
	Card *domain.Card

	// EffectiveStatus is EXPIRED for a card past its expiry date even when
	// the stored status has not been updated yet.
	EffectiveStatus domain.CardStatus

	// OwnerName is the owner's username, or empty if the owner could not be resolved.
	OwnerName string
}

// CreateCardInput carries the fields of a new card. A nil Balance means zero.
type CreateCardInput struct {
	Number     string
	ExpiryDate time.Time
	Balance    *decimal.Decimal
	OwnerID    uuid.UUID
}

// UpdateCardInput carries the optional fields of an administrative update.
// Status is the raw token supplied by the caller; matching is case-sensitive.
type UpdateCardInput struct {
	Balance *decimal.Decimal
	Status  *string
}

// CardService provides the card lifecycle operations.
type CardService interface {
	// CreateCard issues a new ACTIVE card.
	CreateCard(ctx context.Context, in CreateCardInput) (*CardDetails, error)

	// UpdateCard applies the provided fields of in to the card.
	UpdateCard(ctx context.Context, id uuid.UUID, in UpdateCardInput) (*CardDetails, error)

	// BlockCard moves a card to BLOCKED. Blocking a BLOCKED or EXPIRED card
	// succeeds without changing it.
	BlockCard(ctx context.Context, id uuid.UUID) (*CardDetails, error)

	// ActivateCard moves a card to ACTIVE unless it has expired.
	ActivateCard(ctx context.Context, id uuid.UUID) (*CardDetails, error)

	// DeleteCard removes a card permanently.
	DeleteCard(ctx context.Context, id uuid.UUID) error

	// GetCard returns any card by ID.
	GetCard(ctx context.Context, id uuid.UUID) (*CardDetails, error)

	// GetCardForOwner returns a card only if ownerID owns it; a foreign card
	// is reported as not found.
	GetCardForOwner(ctx context.Context, id, ownerID uuid.UUID) (*CardDetails, error)

	// GetCardBalance returns the balance of a card owned by ownerID.
	GetCardBalance(ctx context.Context, id, ownerID uuid.UUID) (decimal.Decimal, error)

	// RequestBlock lets an owner block one of their own cards.
	RequestBlock(ctx context.Context, id, ownerID uuid.UUID, reason string) (*CardDetails, error)

	// ListCards returns one page of cards matching filter.
	ListCards(ctx context.Context, filter domain.CardFilter) (domain.Page[*CardDetails], error)

	// ExpireCards moves up to batch past-expiry cards to EXPIRED and reports
	// how many were changed.
	ExpireCards(ctx context.Context, batch int) (int, error)
}

// CardServiceOptions configures a card or transfer service.
type CardServiceOptions struct {
	Clock Clock

	// LockTimeout bounds the wait for card locks. Zero means no bound beyond ctx.
	LockTimeout time.Duration

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

type cardServiceImpl struct {
	cards       store.CardStore
	users       store.UserStore
	clock       Clock
	lockTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

var _ CardService = (*cardServiceImpl)(nil)

// NewCardService creates a new CardService.
// It returns an error if any of the required dependencies are nil.
func NewCardService(
	cards store.CardStore,
	users store.UserStore,
	opts CardServiceOptions,
	logger *slog.Logger,
) (CardService, error) {
	if cards == nil {
		return nil, domain.NewValidationError("cards", "cannot be nil", domain.ErrValidation)
	}
	if users == nil {
		return nil, domain.NewValidationError("users", "cannot be nil", domain.ErrValidation)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &cardServiceImpl{
		cards:       cards,
		users:       users,
		clock:       opts.Clock,
		lockTimeout: opts.LockTimeout,
		metrics:     opts.Metrics,
		logger:      logger.With(slog.String("component", "card_service")),
	}, nil
}

// CreateCard implements CardService.CreateCard.
func (s *cardServiceImpl) CreateCard(ctx context.Context, in CreateCardInput) (*CardDetails, error) {
	const op = "create card"
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := domain.ValidateCardNumber(in.Number); err != nil {
		return nil, err
	}

	exists, err := s.cards.ExistsByNumber(ctx, in.Number)
	if err != nil {
		return nil, translateStoreError(op, err)
	}
	if exists {
		return nil, domain.NewFieldError(op, "number", domain.ErrDuplicateCardNumber, "")
	}

	today := s.clock.Today()
	if in.ExpiryDate.IsZero() {
		return nil, domain.NewFieldError(op, "expiryDate", domain.ErrInvalidExpiry, "expiry date is required")
	}
	if domain.DateOnly(in.ExpiryDate).Before(today) {
		return nil, domain.NewFieldError(op, "expiryDate", domain.ErrInvalidExpiry, "expiry date is in the past")
	}

	owner, err := s.users.GetByID(ctx, in.OwnerID)
	if err != nil {
		return nil, translateStoreError(op, err)
	}

	balance := decimal.Zero
	if in.Balance != nil {
		balance = *in.Balance
	}

	card, err := domain.NewCard(in.Number, in.ExpiryDate, balance, owner.ID, today, s.clock.Now())
	if err != nil {
		return nil, err
	}

	// ExistsByNumber can race with another create; the store's unique
	// constraint is the final word.
	if err := s.cards.Create(ctx, card); err != nil {
		return nil, translateStoreError(op, err)
	}

	s.metrics.IncrementCardOperation("create")
	log.Info("card created",
		slog.String("card_id", card.ID.String()),
		slog.String("owner_id", card.OwnerID.String()),
		slog.String("number", card.MaskedNumber()))

	return s.details(card, owner.Username), nil
}

// UpdateCard implements CardService.UpdateCard.
func (s *cardServiceImpl) UpdateCard(
	ctx context.Context,
	id uuid.UUID,
	in UpdateCardInput,
) (*CardDetails, error) {
	const op = "update card"

	var status *domain.CardStatus
	if in.Status != nil {
		parsed, err := domain.ParseCardStatus(*in.Status)
		if err != nil {
			return nil, err
		}
		status = &parsed
	}
	if in.Balance != nil && in.Balance.IsNegative() {
		return nil, domain.NewFieldError(op, "balance", domain.ErrInvalidBalance, "balance cannot be negative")
	}

	card, err := s.mutate(ctx, op, id, func(card *domain.Card) (bool, error) {
		before := *card
		now := s.clock.Now()
		if in.Balance != nil {
			if err := card.SetBalance(*in.Balance, now); err != nil {
				return false, err
			}
		}
		if status != nil {
			if err := card.TransitionTo(*status, s.clock.Today(), now); err != nil {
				return false, err
			}
		}
		return !card.Balance.Equal(before.Balance) || card.Status != before.Status, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCardOperation("update")
	return s.withOwner(ctx, card), nil
}

// BlockCard implements CardService.BlockCard.
func (s *cardServiceImpl) BlockCard(ctx context.Context, id uuid.UUID) (*CardDetails, error) {
	card, err := s.mutate(ctx, "block card", id, func(card *domain.Card) (bool, error) {
		before := card.Status
		card.Block(s.clock.Now())
		return card.Status != before, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCardOperation("block")
	logger.FromContextOrDefault(ctx, s.logger).Info("card blocked",
		slog.String("card_id", id.String()))
	return s.withOwner(ctx, card), nil
}

// ActivateCard implements CardService.ActivateCard.
func (s *cardServiceImpl) ActivateCard(ctx context.Context, id uuid.UUID) (*CardDetails, error) {
	card, err := s.mutate(ctx, "activate card", id, func(card *domain.Card) (bool, error) {
		before := card.Status
		if err := card.Activate(s.clock.Today(), s.clock.Now()); err != nil {
			return false, err
		}
		return card.Status != before, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCardOperation("activate")
	logger.FromContextOrDefault(ctx, s.logger).Info("card activated",
		slog.String("card_id", id.String()))
	return s.withOwner(ctx, card), nil
}

// DeleteCard implements CardService.DeleteCard.
func (s *cardServiceImpl) DeleteCard(ctx context.Context, id uuid.UUID) error {
	const op = "delete card"

	ctx, cancel := withLockTimeout(ctx, s.lockTimeout)
	defer cancel()

	err := s.cards.Update(ctx, []uuid.UUID{id}, func(ctx context.Context, tx store.CardTx) error {
		if _, err := tx.Card(id); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return s.updateError(op, err)
	}

	s.metrics.IncrementCardOperation("delete")
	logger.FromContextOrDefault(ctx, s.logger).Info("card deleted",
		slog.String("card_id", id.String()))
	return nil
}

// GetCard implements CardService.GetCard.
func (s *cardServiceImpl) GetCard(ctx context.Context, id uuid.UUID) (*CardDetails, error) {
	card, err := s.cards.GetByID(ctx, id)
	if err != nil {
		return nil, translateStoreError("get card", err)
	}
	return s.withOwner(ctx, card), nil
}

// GetCardForOwner implements CardService.GetCardForOwner.
func (s *cardServiceImpl) GetCardForOwner(ctx context.Context, id, ownerID uuid.UUID) (*CardDetails, error) {
	card, err := s.cards.GetForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, translateStoreError("get card", err)
	}
	return s.withOwner(ctx, card), nil
}

// GetCardBalance implements CardService.GetCardBalance.
func (s *cardServiceImpl) GetCardBalance(ctx context.Context, id, ownerID uuid.UUID) (decimal.Decimal, error) {
	card, err := s.cards.GetForOwner(ctx, id, ownerID)
	if err != nil {
		return decimal.Zero, translateStoreError("get balance", err)
	}
	return card.Balance, nil
}

// RequestBlock implements CardService.RequestBlock.
func (s *cardServiceImpl) RequestBlock(
	ctx context.Context,
	id, ownerID uuid.UUID,
	reason string,
) (*CardDetails, error) {
	const op = "request block"

	card, err := s.mutate(ctx, op, id, func(card *domain.Card) (bool, error) {
		if card.OwnerID != ownerID {
			return false, domain.NewCardError(op, domain.ErrCardNotFound, "")
		}
		before := card.Status
		card.Block(s.clock.Now())
		return card.Status != before, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCardOperation("request_block")
	logger.FromContextOrDefault(ctx, s.logger).Info("card blocked at owner request",
		slog.String("card_id", id.String()),
		slog.String("owner_id", ownerID.String()),
		slog.String("reason", reason))
	return s.withOwner(ctx, card), nil
}

// ListCards implements CardService.ListCards.
func (s *cardServiceImpl) ListCards(
	ctx context.Context,
	filter domain.CardFilter,
) (domain.Page[*CardDetails], error) {
	filter.PageRequest = domain.NewPageRequest(filter.Page, filter.Size)

	cards, total, err := s.cards.List(ctx, filter)
	if err != nil {
		return domain.Page[*CardDetails]{}, translateStoreError("list cards", err)
	}

	names := make(map[uuid.UUID]string)
	page := domain.NewPage(cards, filter.PageRequest, total)
	return domain.MapPage(page, func(card *domain.Card) *CardDetails {
		name, ok := names[card.OwnerID]
		if !ok {
			name = s.ownerName(ctx, card.OwnerID)
			names[card.OwnerID] = name
		}
		return s.details(card, name)
	}), nil
}

// ExpireCards implements CardService.ExpireCards.
// Each card is expired in its own update so a sweep never holds more than one lock.
func (s *cardServiceImpl) ExpireCards(ctx context.Context, batch int) (int, error) {
	const op = "expire cards"
	log := logger.FromContextOrDefault(ctx, s.logger)

	today := s.clock.Today()
	ids, err := s.cards.ListExpiredIDs(ctx, today, batch)
	if err != nil {
		return 0, translateStoreError(op, err)
	}

	expired := 0
	for _, id := range ids {
		changed := false
		err := s.update(ctx, []uuid.UUID{id}, func(ctx context.Context, tx store.CardTx) error {
			card, err := tx.Card(id)
			if errors.Is(err, store.ErrCardNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !card.Expire(today, s.clock.Now()) {
				return nil
			}
			changed = true
			return tx.Save(ctx, card)
		})
		if err != nil {
			s.metrics.AddCardsExpired(expired)
			return expired, s.updateError(op, err)
		}
		if changed {
			expired++
			log.Debug("card expired", slog.String("card_id", id.String()))
		}
	}

	s.metrics.AddCardsExpired(expired)
	return expired, nil
}

// mutate runs fn against one locked card and saves it when fn reports a change.
func (s *cardServiceImpl) mutate(
	ctx context.Context,
	op string,
	id uuid.UUID,
	fn func(card *domain.Card) (bool, error),
) (*domain.Card, error) {
	var result *domain.Card
	err := s.update(ctx, []uuid.UUID{id}, func(ctx context.Context, tx store.CardTx) error {
		card, err := tx.Card(id)
		if err != nil {
			return err
		}
		changed, err := fn(card)
		if err != nil {
			return err
		}
		if changed {
			if err := tx.Save(ctx, card); err != nil {
				return err
			}
			card.Version++
		}
		result = card
		return nil
	})
	if err != nil {
		return nil, s.updateError(op, err)
	}
	return result, nil
}

func (s *cardServiceImpl) update(ctx context.Context, ids []uuid.UUID, fn store.UpdateFn) error {
	ctx, cancel := withLockTimeout(ctx, s.lockTimeout)
	defer cancel()
	return s.cards.Update(ctx, ids, fn)
}

func (s *cardServiceImpl) updateError(op string, err error) error {
	if store.IsRetryable(err) {
		s.metrics.IncrementLockConflicts()
	}
	return translateStoreError(op, err)
}

func (s *cardServiceImpl) withOwner(ctx context.Context, card *domain.Card) *CardDetails {
	return s.details(card, s.ownerName(ctx, card.OwnerID))
}

func (s *cardServiceImpl) details(card *domain.Card, ownerName string) *CardDetails {
	return &CardDetails{
		Card:            card,
		EffectiveStatus: card.EffectiveStatus(s.clock.Today()),
		OwnerName:       ownerName,
	}
}

// ownerName never fails; the card itself is still worth returning.
func (s *cardServiceImpl) ownerName(ctx context.Context, ownerID uuid.UUID) string {
	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to resolve card owner",
			slog.String("owner_id", ownerID.String()),
			slog.String("error", err.Error()))
		return ""
	}
	return owner.Username
}

func withLockTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
