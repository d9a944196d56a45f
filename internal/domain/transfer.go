package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferStatus is the outcome recorded on a TransferRecord.
type TransferStatus string

// TransferStatusCompleted is the only status a persisted transfer can have;
// failed transfers leave no record.
const TransferStatusCompleted TransferStatus = "COMPLETED"

// DefaultMaxTransferAmount is the inclusive upper bound for a single transfer
// unless configured otherwise.
var DefaultMaxTransferAmount = decimal.NewFromInt(1_000_000)

// TransferRecord is the immutable receipt of a completed transfer between two
// cards of the same owner. The card numbers are only kept in masked form.
type TransferRecord struct {
	ID          int64           `json:"transaction_id"`
	OwnerID     uuid.UUID       `json:"owner_id"`
	FromCardID  uuid.UUID       `json:"from_card_id"`
	ToCardID    uuid.UUID       `json:"to_card_id"`
	FromMasked  string          `json:"from_masked"`
	ToMasked    string          `json:"to_masked"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Status      TransferStatus  `json:"status"`
	CreatedAt   time.Time       `json:"timestamp"`
}

// NewTransferRecord builds a COMPLETED record for a transfer between from and to.
// The ID is assigned by the store when the record is appended.
func NewTransferRecord(
	from, to *Card,
	amount decimal.Decimal,
	description string,
	now time.Time,
) *TransferRecord {
	return &TransferRecord{
		OwnerID:     from.OwnerID,
		FromCardID:  from.ID,
		ToCardID:    to.ID,
		FromMasked:  from.MaskedNumber(),
		ToMasked:    to.MaskedNumber(),
		Amount:      amount,
		Description: description,
		Status:      TransferStatusCompleted,
		CreatedAt:   now.UTC(),
	}
}

// ValidateTransferAmount checks that amount is positive and does not exceed limit.
func ValidateTransferAmount(amount, limit decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewFieldError("transfer", "amount", ErrInvalidAmount, "amount must be positive")
	}
	if amount.GreaterThan(limit) {
		return NewFieldError("transfer", "amount", ErrAmountTooLarge,
			"amount cannot exceed "+limit.String())
	}
	if !HasMoneyScale(amount) {
		return NewFieldError("transfer", "amount", ErrInvalidAmount,
			"amount cannot have more than 2 decimal places")
	}
	return nil
}
