// Package memory provides an in-process implementation of the store
// interfaces. It honours the same locking contract as the PostgreSQL stores
// and backs tests as well as the "memory" storage mode.
package memory

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/platform/logger"
	"github.com/phrazzld/bankcards-api/internal/store"
)

// DB keeps users, cards and transfers in maps guarded by mu. Writers to
// a card additionally hold that card's lock slot for the whole update, so mu
// is only ever held for short copy-in/copy-out sections.
type DB struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]*domain.User
	usernames map[string]uuid.UUID
	cards     map[uuid.UUID]*domain.Card
	numbers   map[string]uuid.UUID
	transfers []*domain.TransferRecord

	slotsMu sync.Mutex
	slots   map[uuid.UUID]chan struct{}

	seqMu   sync.Mutex
	lastSeq int64

	logger *slog.Logger
}

// CardStore is the store.CardStore view of a DB.
type CardStore struct{ *DB }

// TransferStore is the store.TransferStore view of a DB.
type TransferStore struct{ *DB }

// UserStore is the store.UserStore view of a DB.
type UserStore struct{ *DB }

var (
	_ store.CardStore     = (*CardStore)(nil)
	_ store.TransferStore = (*TransferStore)(nil)
	_ store.UserStore     = (*UserStore)(nil)
)

// New creates an empty DB.
func New(logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{
		users:     make(map[uuid.UUID]*domain.User),
		usernames: make(map[string]uuid.UUID),
		cards:     make(map[uuid.UUID]*domain.Card),
		numbers:   make(map[string]uuid.UUID),
		slots:     make(map[uuid.UUID]chan struct{}),
		logger:    logger.With(slog.String("component", "memory_store")),
	}
}

// Cards returns the card store backed by s.
func (s *DB) Cards() *CardStore { return &CardStore{s} }

// Transfers returns the transfer history backed by s.
func (s *DB) Transfers() *TransferStore { return &TransferStore{s} }

// Users returns the user store backed by s.
func (s *DB) Users() *UserStore { return &UserStore{s} }

func copyCard(c *domain.Card) *domain.Card {
	cp := *c
	return &cp
}

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.Password = ""
	cp.Roles = slices.Clone(u.Roles)
	return &cp
}

// slot returns the lock slot of id, creating it on first use.
func (s *DB) slot(id uuid.UUID) chan struct{} {
	s.slotsMu.Lock()
	defer s.slotsMu.Unlock()
	ch, ok := s.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.slots[id] = ch
	}
	return ch
}

// nextTransferID hands out the next value of the transfer sequence.
func (s *DB) nextTransferID() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.lastSeq++
	return s.lastSeq
}

// Create implements store.CardStore.Create
func (s *CardStore) Create(ctx context.Context, card *domain.Card) error {
	if err := card.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[card.OwnerID]; !ok {
		return store.ErrUserNotFound
	}
	if _, ok := s.numbers[card.Number]; ok {
		return store.ErrCardNumberExists
	}
	if _, ok := s.cards[card.ID]; ok {
		return fmt.Errorf("%w: card id", store.ErrDuplicate)
	}

	s.cards[card.ID] = copyCard(card)
	s.numbers[card.Number] = card.ID

	logger.FromContextOrDefault(ctx, s.logger).Debug("card created",
		slog.String("card_id", card.ID.String()))
	return nil
}

// GetByID implements store.CardStore.GetByID
func (s *CardStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	card, ok := s.cards[id]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	return copyCard(card), nil
}

// GetForOwner implements store.CardStore.GetForOwner
func (s *CardStore) GetForOwner(ctx context.Context, id, ownerID uuid.UUID) (*domain.Card, error) {
	card, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if card.OwnerID != ownerID {
		return nil, store.ErrCardNotFound
	}
	return card, nil
}

// ExistsByNumber implements store.CardStore.ExistsByNumber
func (s *CardStore) ExistsByNumber(_ context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.numbers[number]
	return ok, nil
}

func compareCards(a, b *domain.Card, field domain.CardSortField) int {
	var c int
	switch field {
	case domain.CardSortNumber:
		c = strings.Compare(a.Number, b.Number)
	case domain.CardSortExpiryDate:
		c = a.ExpiryDate.Compare(b.ExpiryDate)
	case domain.CardSortBalance:
		c = a.Balance.Cmp(b.Balance)
	case domain.CardSortStatus:
		c = strings.Compare(string(a.Status), string(b.Status))
	case domain.CardSortCreatedAt:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}

// paginate returns the slice of items that falls on page.
func paginate[T any](items []T, page domain.PageRequest) []T {
	start := page.Offset()
	if start < 0 || start >= len(items) {
		return []T{}
	}
	end := min(start+page.Size, len(items))
	return items[start:end]
}

// List implements store.CardStore.List
func (s *CardStore) List(_ context.Context, filter domain.CardFilter) ([]*domain.Card, int64, error) {
	page := domain.NewPageRequest(filter.Page, filter.Size)

	s.mu.RLock()
	matched := make([]*domain.Card, 0)
	for _, card := range s.cards {
		if filter.Matches(card) {
			matched = append(matched, copyCard(card))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *domain.Card) int {
		c := compareCards(a, b, filter.Sort)
		if filter.Direction != domain.SortAsc {
			c = -c
		}
		return c
	})

	return paginate(matched, page), int64(len(matched)), nil
}

// SummarizeOwner implements store.CardStore.SummarizeOwner
func (s *CardStore) SummarizeOwner(_ context.Context, ownerID uuid.UUID) (*store.OwnerCardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary store.OwnerCardSummary
	for _, card := range s.cards {
		if card.OwnerID != ownerID {
			continue
		}
		summary.Total++
		switch card.Status {
		case domain.CardStatusActive:
			summary.Active++
		case domain.CardStatusBlocked:
			summary.Blocked++
		case domain.CardStatusExpired:
			summary.Expired++
		}
		summary.TotalBalance = summary.TotalBalance.Add(card.Balance)
	}
	return &summary, nil
}

// ListExpiredIDs implements store.CardStore.ListExpiredIDs
func (s *CardStore) ListExpiredIDs(_ context.Context, today time.Time, limit int) ([]uuid.UUID, error) {
	today = domain.DateOnly(today)

	s.mu.RLock()
	var ids []uuid.UUID
	for id, card := range s.cards {
		if card.Status != domain.CardStatusExpired && card.ExpiryDate.Before(today) {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	ids = store.LockOrder(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Update implements store.CardStore.Update
func (s *CardStore) Update(ctx context.Context, ids []uuid.UUID, fn store.UpdateFn) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	ordered := store.LockOrder(ids)

	acquired := make([]chan struct{}, 0, len(ordered))
	defer func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			<-acquired[i]
		}
	}()
	for _, id := range ordered {
		slot := s.slot(id)
		select {
		case slot <- struct{}{}:
			acquired = append(acquired, slot)
		case <-ctx.Done():
			log.Warn("timed out waiting for card lock",
				slog.String("card_id", id.String()),
				slog.String("error", ctx.Err().Error()))
			return fmt.Errorf("%w: waiting for card %s: %v", store.ErrConflict, id, ctx.Err())
		}
	}

	tx := &memTx{
		store:   s.DB,
		locked:  make(map[uuid.UUID]*domain.Card, len(ordered)),
		deleted: make(map[uuid.UUID]bool),
	}
	s.mu.RLock()
	for _, id := range ordered {
		if card, ok := s.cards[id]; ok {
			tx.locked[id] = copyCard(card)
		}
	}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

// memTx stages changes until Update commits them in one critical section.
type memTx struct {
	store     *DB
	locked    map[uuid.UUID]*domain.Card
	saved     []uuid.UUID
	deleted   map[uuid.UUID]bool
	transfers []*domain.TransferRecord
}

var _ store.CardTx = (*memTx)(nil)

func (t *memTx) Card(id uuid.UUID) (*domain.Card, error) {
	card, ok := t.locked[id]
	if !ok || t.deleted[id] {
		return nil, store.ErrCardNotFound
	}
	return copyCard(card), nil
}

func (t *memTx) Save(_ context.Context, card *domain.Card) error {
	locked, ok := t.locked[card.ID]
	if !ok || t.deleted[card.ID] {
		return store.ErrCardNotFound
	}
	if err := card.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	saved := copyCard(card)
	saved.Number = locked.Number
	saved.OwnerID = locked.OwnerID
	saved.ExpiryDate = locked.ExpiryDate
	saved.CreatedAt = locked.CreatedAt
	saved.Version = locked.Version + 1
	t.locked[card.ID] = saved
	if !slices.Contains(t.saved, card.ID) {
		t.saved = append(t.saved, card.ID)
	}
	return nil
}

func (t *memTx) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := t.locked[id]; !ok || t.deleted[id] {
		return store.ErrCardNotFound
	}
	t.deleted[id] = true
	return nil
}

func (t *memTx) AppendTransfer(_ context.Context, record *domain.TransferRecord) error {
	record.ID = t.store.nextTransferID()
	cp := *record
	t.transfers = append(t.transfers, &cp)
	return nil
}

func (t *memTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range t.saved {
		if t.deleted[id] {
			continue
		}
		s.cards[id] = t.locked[id]
	}
	for id := range t.deleted {
		if card, ok := s.cards[id]; ok {
			delete(s.numbers, card.Number)
			delete(s.cards, id)
		}
	}
	// Records stay in ID order even if a concurrent update drew a lower
	// sequence number but committed later.
	for _, rec := range t.transfers {
		i, _ := slices.BinarySearchFunc(s.transfers, rec.ID, func(r *domain.TransferRecord, id int64) int {
			return cmp.Compare(r.ID, id)
		})
		s.transfers = slices.Insert(s.transfers, i, rec)
	}
}

// ListByOwner implements store.TransferStore.ListByOwner
func (s *TransferStore) ListByOwner(
	_ context.Context,
	ownerID uuid.UUID,
	page domain.PageRequest,
) ([]*domain.TransferRecord, int64, error) {
	page = domain.NewPageRequest(page.Page, page.Size)

	s.mu.RLock()
	var owned []*domain.TransferRecord
	for i := len(s.transfers) - 1; i >= 0; i-- {
		if r := s.transfers[i]; r.OwnerID == ownerID {
			cp := *r
			owned = append(owned, &cp)
		}
	}
	s.mu.RUnlock()

	return paginate(owned, page), int64(len(owned)), nil
}
