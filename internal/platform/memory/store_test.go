package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, db *DB, username string) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:             uuid.New(),
		Username:       username,
		HashedPassword: "hash",
		Roles:          []domain.Role{domain.RoleUser},
	}
	require.NoError(t, db.Users().Create(context.Background(), user))
	return user
}

func seedCard(t *testing.T, db *DB, ownerID uuid.UUID, number, balance string) *domain.Card {
	t.Helper()
	card, err := domain.NewCard(number, today.AddDate(2, 0, 0), decimal.RequireFromString(balance), ownerID, today, today)
	require.NoError(t, err)
	require.NoError(t, db.Cards().Create(context.Background(), card))
	return card
}

func TestCardStore_CreateConstraints(t *testing.T) {
	t.Parallel()
	db := New(nil)
	owner := seedUser(t, db, "alice")
	card := seedCard(t, db, owner.ID, "4000123412341234", "10")

	dup, err := domain.NewCard(card.Number, today.AddDate(1, 0, 0), decimal.Zero, owner.ID, today, today)
	require.NoError(t, err)
	assert.ErrorIs(t, db.Cards().Create(context.Background(), dup), store.ErrCardNumberExists)

	orphan, err := domain.NewCard("4000123412345678", today.AddDate(1, 0, 0), decimal.Zero, uuid.New(), today, today)
	require.NoError(t, err)
	assert.ErrorIs(t, db.Cards().Create(context.Background(), orphan), store.ErrUserNotFound)

	exists, err := db.Cards().ExistsByNumber(context.Background(), card.Number)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCardStore_ReadsReturnCopies(t *testing.T) {
	t.Parallel()
	db := New(nil)
	owner := seedUser(t, db, "alice")
	card := seedCard(t, db, owner.ID, "4000123412341234", "10")

	got, err := db.Cards().GetByID(context.Background(), card.ID)
	require.NoError(t, err)
	got.Balance = decimal.NewFromInt(1_000)

	again, err := db.Cards().GetByID(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", again.Balance.String())

	_, err = db.Cards().GetForOwner(context.Background(), card.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrCardNotFound)
}

func TestCardStore_UpdateCommitsAtomically(t *testing.T) {
	t.Parallel()
	db := New(nil)
	owner := seedUser(t, db, "alice")
	a := seedCard(t, db, owner.ID, "4000123412341111", "500")
	b := seedCard(t, db, owner.ID, "4000123412342222", "300")
	cards := db.Cards()

	err := cards.Update(context.Background(), []uuid.UUID{a.ID, b.ID}, func(ctx context.Context, tx store.CardTx) error {
		src, _ := tx.Card(a.ID)
		dst, _ := tx.Card(b.ID)
		amount := decimal.NewFromInt(100)
		require.NoError(t, src.Debit(amount, time.Now()))
		dst.Credit(amount, time.Now())
		require.NoError(t, tx.Save(ctx, src))
		require.NoError(t, tx.Save(ctx, dst))

		// Nothing is visible to readers before the update function returns.
		committed, err := cards.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "500", committed.Balance.String())

		return tx.AppendTransfer(ctx, domain.NewTransferRecord(src, dst, amount, "", time.Now()))
	})
	require.NoError(t, err)

	gotA, _ := cards.GetByID(context.Background(), a.ID)
	gotB, _ := cards.GetByID(context.Background(), b.ID)
	assert.Equal(t, "400", gotA.Balance.String())
	assert.Equal(t, "400", gotB.Balance.String())
	assert.Equal(t, int64(2), gotA.Version)
	assert.Equal(t, a.Number, gotA.Number)

	records, total, err := db.Transfers().ListByOwner(context.Background(), owner.ID, domain.NewPageRequest(0, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(1), records[0].ID)
}

func TestCardStore_UpdateErrorDiscardsChanges(t *testing.T) {
	t.Parallel()
	db := New(nil)
	owner := seedUser(t, db, "alice")
	card := seedCard(t, db, owner.ID, "4000123412341111", "500")
	boom := errors.New("boom")

	err := db.Cards().Update(context.Background(), []uuid.UUID{card.ID}, func(ctx context.Context, tx store.CardTx) error {
		c, _ := tx.Card(card.ID)
		c.Block(time.Now())
		require.NoError(t, tx.Save(ctx, c))
		require.NoError(t, tx.AppendTransfer(ctx, &domain.TransferRecord{OwnerID: owner.ID}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := db.Cards().GetByID(context.Background(), card.ID)
	assert.Equal(t, domain.CardStatusActive, got.Status)
	assert.Equal(t, int64(1), got.Version)

	_, total, _ := db.Transfers().ListByOwner(context.Background(), owner.ID, domain.PageRequest{})
	assert.Zero(t, total)

	// The sequence value drawn by the discarded update is not reused.
	err = db.Cards().Update(context.Background(), []uuid.UUID{card.ID}, func(ctx context.Context, tx store.CardTx) error {
		record := &domain.TransferRecord{OwnerID: owner.ID}
		require.NoError(t, tx.AppendTransfer(ctx, record))
		assert.Equal(t, int64(2), record.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestCardStore_UpdateMissingAndDeleted(t *testing.T) {
	t.Parallel()
	db := New(nil)
	owner := seedUser(t, db, "alice")
	card := seedCard(t, db, owner.ID, "4000123412341111", "0")
	missing := uuid.New()

	err := db.Cards().Update(context.Background(), []uuid.UUID{card.ID, missing}, func(ctx context.Context, tx store.CardTx) error {
		_, err := tx.Card(missing)
		assert.ErrorIs(t, err, store.ErrCardNotFound)
		return tx.Delete(ctx, card.ID)
	})
	require.NoError(t, err)

	_, err = db.Cards().GetByID(context.Background(), card.ID)
	assert.ErrorIs(t, err, store.ErrCardNotFound)
	exists, _ := db.Cards().ExistsByNumber(context.Background(), card.Number)
	assert.False(t, exists, "a deleted card frees its number")
}

func TestCardStore_LockWaitHonoursContext(t *testing.T) {
	t.Parallel()
	db := New(nil)
	owner := seedUser(t, db, "alice")
	card := seedCard(t, db, owner.ID, "4000123412341111", "0")

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- db.Cards().Update(context.Background(), []uuid.UUID{card.ID}, func(ctx context.Context, tx store.CardTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := db.Cards().Update(ctx, []uuid.UUID{card.ID}, func(ctx context.Context, tx store.CardTx) error {
		t.Error("update function must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.True(t, store.IsRetryable(err))

	close(release)
	require.NoError(t, <-done)
}

func TestCardStore_OpposingTransfersDoNotDeadlock(t *testing.T) {
	t.Parallel()
	db := New(nil)
	owner := seedUser(t, db, "alice")
	a := seedCard(t, db, owner.ID, "4000123412341111", "1000")
	b := seedCard(t, db, owner.ID, "4000123412342222", "1000")
	cards := db.Cards()

	move := func(from, to uuid.UUID) error {
		return cards.Update(context.Background(), []uuid.UUID{from, to}, func(ctx context.Context, tx store.CardTx) error {
			src, err := tx.Card(from)
			if err != nil {
				return err
			}
			dst, err := tx.Card(to)
			if err != nil {
				return err
			}
			if err := src.Debit(decimal.NewFromInt(1), time.Now()); err != nil {
				return err
			}
			dst.Credit(decimal.NewFromInt(1), time.Now())
			if err := tx.Save(ctx, src); err != nil {
				return err
			}
			if err := tx.Save(ctx, dst); err != nil {
				return err
			}
			return tx.AppendTransfer(ctx, domain.NewTransferRecord(src, dst, decimal.NewFromInt(1), "", time.Now()))
		})
	}

	const rounds = 200
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); errs <- move(a.ID, b.ID) }()
		go func() { defer wg.Done(); errs <- move(b.ID, a.ID) }()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	gotA, _ := cards.GetByID(context.Background(), a.ID)
	gotB, _ := cards.GetByID(context.Background(), b.ID)
	assert.Equal(t, "1000", gotA.Balance.String())
	assert.Equal(t, "1000", gotB.Balance.String())
	assert.Equal(t, int64(1+2*rounds), gotA.Version)

	records, total, err := db.Transfers().ListByOwner(context.Background(), owner.ID, domain.NewPageRequest(0, 100))
	require.NoError(t, err)
	assert.Equal(t, int64(2*rounds), total)
	for i := 1; i < len(records); i++ {
		assert.Greater(t, records[i-1].ID, records[i].ID, "newest first")
	}
}

func TestCardStore_List(t *testing.T) {
	t.Parallel()
	db := New(nil)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	for i, balance := range []string{"30", "10", "20"} {
		seedCard(t, db, alice.ID, fmt.Sprintf("400012341234%04d", 1000+i), balance)
	}
	seedCard(t, db, bob.ID, "5500000000001001", "99")

	cards := db.Cards()
	ownerID := alice.ID

	got, total, err := cards.List(context.Background(), domain.NewCardFilter(&ownerID, nil, "", "balance", "asc", 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, got, 2)
	assert.Equal(t, "10", got[0].Balance.String())
	assert.Equal(t, "20", got[1].Balance.String())

	got, _, err = cards.List(context.Background(), domain.NewCardFilter(&ownerID, nil, "", "balance", "asc", 1, 2))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "30", got[0].Balance.String())

	got, total, err = cards.List(context.Background(), domain.NewCardFilter(nil, nil, "**1001", "", "", 0, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "fragment matches across owners when no owner is given")
	assert.Len(t, got, 2)

	blocked := domain.CardStatusBlocked
	_, total, err = cards.List(context.Background(), domain.NewCardFilter(nil, &blocked, "", "", "", 0, 10))
	require.NoError(t, err)
	assert.Zero(t, total)

	got, _, err = cards.List(context.Background(), domain.NewCardFilter(nil, nil, "", "", "", 9, 10))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList_HugePageIsEmpty(t *testing.T) {
	t.Parallel()
	db := New(nil)
	owner := seedUser(t, db, "alice")
	a := seedCard(t, db, owner.ID, "4000123412341111", "100")
	b := seedCard(t, db, owner.ID, "4000123412342222", "0")
	err := db.Cards().Update(context.Background(), []uuid.UUID{a.ID, b.ID}, func(ctx context.Context, tx store.CardTx) error {
		src, _ := tx.Card(a.ID)
		dst, _ := tx.Card(b.ID)
		return tx.AppendTransfer(ctx, domain.NewTransferRecord(src, dst, decimal.NewFromInt(1), "", time.Now()))
	})
	require.NoError(t, err)

	huge := domain.NewPageRequest(math.MaxInt64/5, 10)
	// Unnormalised requests reach the store through the filter structs too.
	raw := domain.PageRequest{Page: math.MaxInt64 / 5, Size: 10}

	for _, page := range []domain.PageRequest{huge, raw} {
		assert.NotPanics(t, func() {
			cards, total, err := db.Cards().List(context.Background(), domain.CardFilter{PageRequest: page})
			require.NoError(t, err)
			assert.Equal(t, int64(2), total)
			assert.Empty(t, cards)

			records, total, err := db.Transfers().ListByOwner(context.Background(), owner.ID, page)
			require.NoError(t, err)
			assert.Equal(t, int64(1), total)
			assert.Empty(t, records)

			users, total, err := db.Users().List(context.Background(), domain.UserFilter{PageRequest: page})
			require.NoError(t, err)
			assert.Equal(t, int64(1), total)
			assert.Empty(t, users)
		})
	}
}

func TestTransferStore_OutOfOrderCommitsStaySorted(t *testing.T) {
	t.Parallel()
	db := New(nil)
	owner := seedUser(t, db, "alice")
	a := seedCard(t, db, owner.ID, "4000123412341111", "100")
	b := seedCard(t, db, owner.ID, "4000123412342222", "100")
	c := seedCard(t, db, owner.ID, "4000123412343333", "100")
	d := seedCard(t, db, owner.ID, "4000123412344444", "100")

	appendOne := func(ctx context.Context, tx store.CardTx, from, to uuid.UUID) error {
		src, _ := tx.Card(from)
		dst, _ := tx.Card(to)
		return tx.AppendTransfer(ctx, domain.NewTransferRecord(src, dst, decimal.NewFromInt(1), "", time.Now()))
	}

	appended := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- db.Cards().Update(context.Background(), []uuid.UUID{a.ID, b.ID}, func(ctx context.Context, tx store.CardTx) error {
			if err := appendOne(ctx, tx, a.ID, b.ID); err != nil {
				return err
			}
			close(appended)
			<-release
			return nil
		})
	}()

	// The second update draws the higher ID but commits first.
	<-appended
	require.NoError(t, db.Cards().Update(context.Background(), []uuid.UUID{c.ID, d.ID}, func(ctx context.Context, tx store.CardTx) error {
		return appendOne(ctx, tx, c.ID, d.ID)
	}))
	require.NoError(t, db.Cards().Update(context.Background(), []uuid.UUID{c.ID, d.ID}, func(ctx context.Context, tx store.CardTx) error {
		return appendOne(ctx, tx, d.ID, c.ID)
	}))
	close(release)
	require.NoError(t, <-done)

	records, total, err := db.Transfers().ListByOwner(context.Background(), owner.ID, domain.NewPageRequest(0, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, records, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{records[0].ID, records[1].ID, records[2].ID}, "newest first")
}

func TestCardStore_SummaryAndExpired(t *testing.T) {
	t.Parallel()
	db := New(nil)
	owner := seedUser(t, db, "alice")
	a := seedCard(t, db, owner.ID, "4000123412341111", "100.50")
	seedCard(t, db, owner.ID, "4000123412342222", "50")

	err := db.Cards().Update(context.Background(), []uuid.UUID{a.ID}, func(ctx context.Context, tx store.CardTx) error {
		c, _ := tx.Card(a.ID)
		c.Block(time.Now())
		return tx.Save(ctx, c)
	})
	require.NoError(t, err)

	summary, err := db.Cards().SummarizeOwner(context.Background(), owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Active)
	assert.Equal(t, 1, summary.Blocked)
	assert.Equal(t, "150.5", summary.TotalBalance.String())

	ids, err := db.Cards().ListExpiredIDs(context.Background(), today.AddDate(3, 0, 0), 1)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	ids, err = db.Cards().ListExpiredIDs(context.Background(), today, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUserStore(t *testing.T) {
	t.Parallel()
	db := New(nil)
	users := db.Users()
	alice := seedUser(t, db, "alice")
	seedUser(t, db, "alan")
	seedUser(t, db, "bob")

	assert.ErrorIs(t, users.Create(context.Background(), &domain.User{
		ID: uuid.New(), Username: "alice", HashedPassword: "x",
	}), store.ErrUsernameExists)

	got, err := users.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	list, total, err := users.List(context.Background(), domain.UserFilter{UsernameFragment: "AL", PageRequest: domain.NewPageRequest(0, 10)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "alan", list[0].Username)

	got.Roles = []domain.Role{domain.RoleUser, domain.RoleAdmin}
	got.HashedPassword = "new-hash"
	require.NoError(t, users.Update(context.Background(), got))
	admin := domain.RoleAdmin
	list, _, err = users.List(context.Background(), domain.UserFilter{Role: &admin})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new-hash", list[0].HashedPassword)

	seedCard(t, db, alice.ID, "4000123412341111", "0")
	assert.ErrorIs(t, users.Delete(context.Background(), alice.ID), store.ErrReferenced)
	assert.ErrorIs(t, users.Delete(context.Background(), uuid.New()), store.ErrUserNotFound)

	bob, _ := users.GetByUsername(context.Background(), "bob")
	require.NoError(t, users.Delete(context.Background(), bob.ID))
	_, err = users.GetByID(context.Background(), bob.ID)
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}
