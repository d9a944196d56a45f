package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CardStatus is the stored lifecycle state of a card.
type CardStatus string

const (
	CardStatusActive  CardStatus = "ACTIVE"
	CardStatusBlocked CardStatus = "BLOCKED"
	CardStatusExpired CardStatus = "EXPIRED"
)

// Card number constraints.
const (
	MinCardNumberLength = 16
	MaxCardNumberLength = 19

	// maskPrefix replaces everything except the last four digits.
	maskPrefix = "**** **** **** "

	// MoneyScale is the number of decimal places kept for balances and amounts.
	MoneyScale = 2
)

// IsValid reports whether s is one of the known statuses.
func (s CardStatus) IsValid() bool {
	switch s {
	case CardStatusActive, CardStatusBlocked, CardStatusExpired:
		return true
	}
	return false
}

// String returns the status token.
func (s CardStatus) String() string {
	return string(s)
}

// ParseCardStatus converts a status token into a CardStatus.
// Matching is case-sensitive: "active" is rejected.
func ParseCardStatus(s string) (CardStatus, error) {
	status := CardStatus(s)
	if !status.IsValid() {
		return "", NewFieldError("parse status", "status", ErrInvalidStatus,
			fmt.Sprintf("unknown status %q", s))
	}
	return status, nil
}

// Card is a payment card owned by a single user.
// Number, OwnerID and ExpiryDate never change after creation.
type Card struct {
	ID         uuid.UUID       `json:"id"`
	Number     string          `json:"number"`
	OwnerID    uuid.UUID       `json:"owner_id"`
	ExpiryDate time.Time       `json:"expiry_date"`
	Status     CardStatus      `json:"status"`
	Balance    decimal.Decimal `json:"balance"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewCard creates a new ACTIVE card. today is the current calendar date used
// to reject expiry dates in the past; now stamps CreatedAt and UpdatedAt.
func NewCard(
	number string,
	expiryDate time.Time,
	balance decimal.Decimal,
	ownerID uuid.UUID,
	today, now time.Time,
) (*Card, error) {
	card := &Card{
		ID:         uuid.New(),
		Number:     number,
		OwnerID:    ownerID,
		ExpiryDate: DateOnly(expiryDate),
		Status:     CardStatusActive,
		Balance:    balance,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := card.Validate(); err != nil {
		return nil, err
	}

	if card.ExpiryDate.Before(DateOnly(today)) {
		return nil, NewFieldError("create card", "expiryDate", ErrInvalidExpiry,
			"expiry date is in the past")
	}

	return card, nil
}

// Validate checks the structural invariants of the card.
func (c *Card) Validate() error {
	if c.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", nil)
	}
	if err := ValidateCardNumber(c.Number); err != nil {
		return err
	}
	if c.OwnerID == uuid.Nil {
		return NewValidationError("ownerId", "cannot be empty", nil)
	}
	if c.ExpiryDate.IsZero() {
		return NewFieldError("validate card", "expiryDate", ErrInvalidExpiry, "expiry date is required")
	}
	if !c.Status.IsValid() {
		return NewFieldError("validate card", "status", ErrInvalidStatus,
			fmt.Sprintf("unknown status %q", c.Status))
	}
	if c.Balance.IsNegative() {
		return NewFieldError("validate card", "balance", ErrInvalidBalance, "balance cannot be negative")
	}
	if !HasMoneyScale(c.Balance) {
		return NewFieldError("validate card", "balance", ErrInvalidBalance,
			"balance cannot have more than 2 decimal places")
	}
	return nil
}

// HasMoneyScale reports whether d has no more than MoneyScale decimal places.
func HasMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// ValidateCardNumber checks that number is 16 to 19 ASCII digits.
func ValidateCardNumber(number string) error {
	if len(number) < MinCardNumberLength || len(number) > MaxCardNumberLength {
		return NewFieldError("validate card", "number", ErrInvalidCardNumber,
			fmt.Sprintf("card number must be %d to %d digits", MinCardNumberLength, MaxCardNumberLength))
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return NewFieldError("validate card", "number", ErrInvalidCardNumber,
				"card number must contain only digits")
		}
	}
	return nil
}

// LastFour returns the last four digits of the card number.
func (c *Card) LastFour() string {
	return lastN(c.Number, 4)
}

// MaskedNumber hides all but the last four digits: "**** **** **** 1234".
func (c *Card) MaskedNumber() string {
	return maskPrefix + c.LastFour()
}

// IsExpired reports whether the expiry date is strictly before today.
// A card remains usable through the whole of its expiry day.
func (c *Card) IsExpired(today time.Time) bool {
	return c.ExpiryDate.Before(DateOnly(today))
}

// EffectiveStatus combines the stored status with the expiry date.
// A card past expiry is EXPIRED regardless of whether the stored field has
// been updated yet.
func (c *Card) EffectiveStatus(today time.Time) CardStatus {
	if c.Status == CardStatusExpired || c.IsExpired(today) {
		return CardStatusExpired
	}
	return c.Status
}

// Block moves the card to BLOCKED. Blocking never fails; an already BLOCKED
// or EXPIRED card is left as is, since EXPIRED is terminal.
func (c *Card) Block(now time.Time) {
	if c.Status != CardStatusActive {
		return
	}
	c.Status = CardStatusBlocked
	c.UpdatedAt = now.UTC()
}

// Activate moves the card to ACTIVE. It fails with ErrInvalidStateTransition
// when the card is past its expiry date or its stored status is EXPIRED.
func (c *Card) Activate(today, now time.Time) error {
	switch c.Status {
	case CardStatusExpired:
		return NewCardError("activate card", ErrInvalidStateTransition,
			"an expired card cannot be activated")
	case CardStatusActive, CardStatusBlocked:
	}

	if c.IsExpired(today) {
		return NewCardError("activate card", ErrInvalidStateTransition,
			"card expiry date "+c.ExpiryDate.Format(DateLayout)+" has passed")
	}

	if c.Status != CardStatusActive {
		c.Status = CardStatusActive
		c.UpdatedAt = now.UTC()
	}
	return nil
}

// Expire moves the card to EXPIRED. It reports false when the card is not yet
// past its expiry date or is already EXPIRED.
func (c *Card) Expire(today, now time.Time) bool {
	if c.Status == CardStatusExpired || !c.IsExpired(today) {
		return false
	}
	c.Status = CardStatusExpired
	c.UpdatedAt = now.UTC()
	return true
}

// TransitionTo applies the state machine edge leading to status.
func (c *Card) TransitionTo(status CardStatus, today, now time.Time) error {
	switch status {
	case CardStatusActive:
		return c.Activate(today, now)
	case CardStatusBlocked:
		c.Block(now)
		return nil
	case CardStatusExpired:
		if c.Status == CardStatusExpired {
			return nil
		}
		if !c.Expire(today, now) {
			return NewCardError("update card", ErrInvalidStateTransition,
				"a card cannot be expired before its expiry date")
		}
		return nil
	default:
		return NewFieldError("update card", "status", ErrInvalidStatus,
			fmt.Sprintf("unknown status %q", status))
	}
}

// SetBalance replaces the balance. Negative values are rejected.
func (c *Card) SetBalance(balance decimal.Decimal, now time.Time) error {
	if balance.IsNegative() {
		return NewFieldError("update card", "balance", ErrInvalidBalance, "balance cannot be negative")
	}
	if !HasMoneyScale(balance) {
		return NewFieldError("update card", "balance", ErrInvalidBalance,
			"balance cannot have more than 2 decimal places")
	}
	c.Balance = balance
	c.UpdatedAt = now.UTC()
	return nil
}

// Debit removes amount from the balance. It never lets the balance go negative.
func (c *Card) Debit(amount decimal.Decimal, now time.Time) error {
	if c.Balance.LessThan(amount) {
		return NewInsufficientFundsError("debit card", c.Balance)
	}
	c.Balance = c.Balance.Sub(amount)
	c.UpdatedAt = now.UTC()
	return nil
}

// Credit adds amount to the balance.
func (c *Card) Credit(amount decimal.Decimal, now time.Time) {
	c.Balance = c.Balance.Add(amount)
	c.UpdatedAt = now.UTC()
}

func lastN(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
