package service_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/service"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer_Completed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.createCard(t, f.owner.ID, "4000000000001111", "500")
	b := f.createCard(t, f.owner.ID, "4000000000002222", "300")

	record, err := f.transfers.Transfer(ctx, service.TransferInput{
		FromCardID:  a.ID,
		ToCardID:    b.ID,
		Amount:      dec("100"),
		OwnerID:     f.owner.ID,
		Description: "test",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCompleted, record.Status)
	assert.Equal(t, int64(1), record.ID)
	assert.Equal(t, "**** **** **** 1111", record.FromMasked)
	assert.Equal(t, "**** **** **** 2222", record.ToMasked)
	assert.True(t, dec("100").Equal(record.Amount))
	assert.Equal(t, "test", record.Description)
	assert.True(t, startTime.Equal(record.CreatedAt))

	assert.True(t, dec("400").Equal(f.balance(t, a.ID)))
	assert.True(t, dec("400").Equal(f.balance(t, b.ID)))

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TransferOutcome.WithLabelValues("completed")))
}

func TestTransfer_Conservation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.createCard(t, f.owner.ID, "4000000000001111", "1234.56")
	b := f.createCard(t, f.owner.ID, "4000000000002222", "0.44")

	_, err := f.transfers.Transfer(ctx, service.TransferInput{
		FromCardID: a.ID, ToCardID: b.ID, Amount: dec("0.01"), OwnerID: f.owner.ID,
	})
	require.NoError(t, err)

	after := f.balance(t, a.ID).Add(f.balance(t, b.ID))
	assert.True(t, dec("1235.00").Equal(after))
	assert.True(t, dec("1234.55").Equal(f.balance(t, a.ID)))
	assert.True(t, dec("0.45").Equal(f.balance(t, b.ID)))
}

func TestTransfer_Rejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	a := f.createCard(t, f.owner.ID, "4000000000001111", "500")
	b := f.createCard(t, f.owner.ID, "4000000000002222", "300")
	blocked := f.createCard(t, f.owner.ID, "4000000000003333", "500")
	_, err := f.cards.BlockCard(ctx, blocked.ID)
	require.NoError(t, err)

	bob := f.createUser(t, "bob")
	foreign := f.createCard(t, bob.ID, "4000000000004444", "500")

	tests := []struct {
		name string
		from uuid.UUID
		to   uuid.UUID
		amt  string
		want error
	}{
		{"missing source", uuid.New(), b.ID, "10", domain.ErrCardNotFound},
		{"missing destination", a.ID, uuid.New(), "10", domain.ErrCardNotFound},
		{"foreign destination", a.ID, foreign.ID, "10", domain.ErrCardNotFound},
		{"foreign source", foreign.ID, a.ID, "10", domain.ErrCardNotFound},
		{"same card", a.ID, a.ID, "10", domain.ErrSameCardTransfer},
		{"same card beats bad amount", a.ID, a.ID, "0", domain.ErrSameCardTransfer},
		{"zero amount", a.ID, b.ID, "0", domain.ErrInvalidAmount},
		{"negative amount", a.ID, b.ID, "-5", domain.ErrInvalidAmount},
		{"too many decimals", a.ID, b.ID, "1.001", domain.ErrInvalidAmount},
		{"amount above ceiling", a.ID, b.ID, "1000001", domain.ErrAmountTooLarge},
		{"ceiling beats blocked source", blocked.ID, b.ID, "1000001", domain.ErrAmountTooLarge},
		{"blocked source", blocked.ID, b.ID, "10", domain.ErrSourceNotActive},
		{"blocked destination", a.ID, blocked.ID, "10", domain.ErrDestinationNotActive},
		{"blocked source beats funds", blocked.ID, b.ID, "999", domain.ErrSourceNotActive},
		{"insufficient funds", a.ID, b.ID, "500.01", domain.ErrInsufficientFunds},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			record, err := f.transfers.Transfer(ctx, service.TransferInput{
				FromCardID: tc.from,
				ToCardID:   tc.to,
				Amount:     dec(tc.amt),
				OwnerID:    f.owner.ID,
			})
			assert.Nil(t, record)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// No rejected transfer moved any money.
	assert.True(t, dec("500").Equal(f.balance(t, a.ID)))
	assert.True(t, dec("300").Equal(f.balance(t, b.ID)))
	assert.True(t, dec("500").Equal(f.balance(t, foreign.ID)))

	page, err := f.transfers.ListTransfers(ctx, f.owner.ID, domain.NewPageRequest(0, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.TotalElements)
}

func TestTransfer_InsufficientFundsReportsAvailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.createCard(t, f.owner.ID, "4000000000001111", "50.25")
	b := f.createCard(t, f.owner.ID, "4000000000002222", "0")

	_, err := f.transfers.Transfer(context.Background(), service.TransferInput{
		FromCardID: a.ID, ToCardID: b.ID, Amount: dec("100"), OwnerID: f.owner.ID,
	})

	var cardErr *domain.CardError
	require.True(t, errors.As(err, &cardErr))
	assert.Equal(t, domain.ErrInsufficientFunds, cardErr.Kind)
	require.NotNil(t, cardErr.Available)
	assert.True(t, dec("50.25").Equal(*cardErr.Available))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(f.metrics.TransferOutcome.WithLabelValues("insufficient_funds")))
}

func TestTransfer_ExpiredCards(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	expiry := startTime.AddDate(0, 0, 10)
	soon := f.createCardExpiring(t, f.owner.ID, "4000000000001111", "500", expiry)
	later := f.createCard(t, f.owner.ID, "4000000000002222", "500")

	// The card stays usable through its expiry day.
	f.clock.Set(expiry.Add(11 * time.Hour))
	_, err := f.transfers.Transfer(ctx, service.TransferInput{
		FromCardID: soon.ID, ToCardID: later.ID, Amount: dec("1"), OwnerID: f.owner.ID,
	})
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	_, err = f.transfers.Transfer(ctx, service.TransferInput{
		FromCardID: soon.ID, ToCardID: later.ID, Amount: dec("1"), OwnerID: f.owner.ID,
	})
	assert.ErrorIs(t, err, domain.ErrCardExpired)

	_, err = f.transfers.Transfer(ctx, service.TransferInput{
		FromCardID: later.ID, ToCardID: soon.ID, Amount: dec("1"), OwnerID: f.owner.ID,
	})
	assert.ErrorIs(t, err, domain.ErrCardExpired)

	// Eligibility never waited for the stored status to change.
	details, err := f.cards.GetCard(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CardStatusActive, details.Card.Status)
	assert.Equal(t, domain.CardStatusExpired, details.EffectiveStatus)
}

func TestTransfer_ConcurrentOpposingTransfersNetZero(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.createCard(t, f.owner.ID, "4000000000001111", "1000")
	b := f.createCard(t, f.owner.ID, "4000000000002222", "1000")

	// Both cards can cover every transfer in either direction, so any
	// serial order succeeds.
	const rounds = 50
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.transfers.Transfer(ctx, service.TransferInput{
				FromCardID: a.ID, ToCardID: b.ID, Amount: dec("10"), OwnerID: f.owner.ID,
			})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.transfers.Transfer(ctx, service.TransferInput{
				FromCardID: b.ID, ToCardID: a.ID, Amount: dec("10"), OwnerID: f.owner.ID,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.True(t, dec("1000").Equal(f.balance(t, a.ID)))
	assert.True(t, dec("1000").Equal(f.balance(t, b.ID)))

	page, err := f.transfers.ListTransfers(ctx, f.owner.ID, domain.NewPageRequest(0, 100))
	require.NoError(t, err)
	assert.Equal(t, int64(2*rounds), page.TotalElements)
	seen := make(map[int64]bool)
	for _, r := range page.Content {
		assert.False(t, seen[r.ID], "duplicate transaction id %d", r.ID)
		seen[r.ID] = true
	}
}

func TestTransfer_ConcurrentNeverOverdraws(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	cards := []*domain.Card{
		f.createCard(t, f.owner.ID, "4000000000001111", "30"),
		f.createCard(t, f.owner.ID, "4000000000002222", "20"),
		f.createCard(t, f.owner.ID, "4000000000003333", "10"),
	}

	var wg sync.WaitGroup
	for i := 0; i < 90; i++ {
		from := cards[i%3]
		to := cards[(i+1)%3]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.transfers.Transfer(ctx, service.TransferInput{
				FromCardID: from.ID, ToCardID: to.ID, Amount: dec("7"), OwnerID: f.owner.ID,
			})
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	total := dec("0")
	for _, c := range cards {
		bal := f.balance(t, c.ID)
		assert.False(t, bal.IsNegative())
		total = total.Add(bal)
	}
	assert.True(t, dec("60").Equal(total))
}

func TestListTransfers_NewestFirst(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.createCard(t, f.owner.ID, "4000000000001111", "100")
	b := f.createCard(t, f.owner.ID, "4000000000002222", "100")

	for _, amt := range []string{"1", "2", "3"} {
		_, err := f.transfers.Transfer(ctx, service.TransferInput{
			FromCardID: a.ID, ToCardID: b.ID, Amount: dec(amt), OwnerID: f.owner.ID,
		})
		require.NoError(t, err)
	}

	page, err := f.transfers.ListTransfers(ctx, f.owner.ID, domain.PageRequest{Page: 0, Size: 2})
	require.NoError(t, err)
	require.Len(t, page.Content, 2)
	assert.Equal(t, int64(3), page.Content[0].ID)
	assert.Equal(t, int64(2), page.Content[1].ID)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.First)
	assert.False(t, page.Last)

	other, err := f.transfers.ListTransfers(ctx, uuid.New(), domain.PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, other.Content)
}

func TestListing_HugePageDoesNotPanic(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.createCard(t, f.owner.ID, "4000000000001111", "100")
	b := f.createCard(t, f.owner.ID, "4000000000002222", "100")
	_, err := f.transfers.Transfer(ctx, service.TransferInput{
		FromCardID: a.ID, ToCardID: b.ID, Amount: dec("1"), OwnerID: f.owner.ID,
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		page, err := f.transfers.ListTransfers(ctx, f.owner.ID, domain.NewPageRequest(math.MaxInt64/5, 10))
		require.NoError(t, err)
		assert.Empty(t, page.Content)
		assert.Equal(t, int64(1), page.TotalElements)
		assert.True(t, page.Last)
	})
	assert.NotPanics(t, func() {
		owner := f.owner.ID
		page, err := f.cards.ListCards(ctx, domain.NewCardFilter(&owner, nil, "", "", "", math.MaxInt64/5, 10))
		require.NoError(t, err)
		assert.Empty(t, page.Content)
		assert.Equal(t, int64(2), page.TotalElements)
	})
}
