package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/service"
	"github.com/shopspring/decimal"
)

// Decimal request fields accept both JSON strings and numbers; responses
// always render amounts as strings with two decimals.

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Username        string `json:"username"        validate:"required,min=3,max=50"`
	Password        string `json:"password"        validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	Roles    []string  `json:"roles"`

	// AccessToken is the JWT token used for API authorization
	AccessToken string `json:"token"`

	// ExpiresAt is the RFC 3339 timestamp when the access token expires
	ExpiresAt string `json:"expiresAt"`
}

// CreateCardRequest defines the payload for issuing a card.
type CreateCardRequest struct {
	Number         string           `json:"number"         validate:"required"`
	ExpiryDate     string           `json:"expiryDate"     validate:"required"`
	InitialBalance *decimal.Decimal `json:"initialBalance"`
	OwnerID        uuid.UUID        `json:"ownerId"        validate:"required"`
}

// UpdateCardRequest carries the optional fields of an administrative card update.
type UpdateCardRequest struct {
	Balance *decimal.Decimal `json:"balance"`
	Status  *string          `json:"status"`
}

// BlockCardRequest is sent by an owner asking to block their card.
type BlockCardRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// TransferRequest defines the payload for a transfer between two own cards.
type TransferRequest struct {
	FromCardID  uuid.UUID        `json:"fromCardId"  validate:"required"`
	ToCardID    uuid.UUID        `json:"toCardId"    validate:"required"`
	Amount      *decimal.Decimal `json:"amount"      validate:"required"`
	Description string           `json:"description" validate:"max=255"`
}

// CreateUserRequest defines the payload for creating a user as an administrator.
type CreateUserRequest struct {
	Username string   `json:"username" validate:"required,min=3,max=50"`
	Password string   `json:"password" validate:"required,min=6,max=72"`
	Roles    []string `json:"roles"`
}

// UpdateUserRequest carries the optional fields of a user update.
type UpdateUserRequest struct {
	Password *string  `json:"password" validate:"omitempty,min=6,max=72"`
	Roles    []string `json:"roles"`
}

// CardResponse is the public representation of a card.
type CardResponse struct {
	ID               uuid.UUID `json:"id"`
	Number           string    `json:"number"`
	MaskedNumber     string    `json:"maskedNumber"`
	ExpiryDate       string    `json:"expiryDate"`
	Status           string    `json:"status"`
	EffectiveStatus  string    `json:"effectiveStatus"`
	Balance          string    `json:"balance"`
	OwnerID          uuid.UUID `json:"ownerId"`
	OwnerDisplayName string    `json:"ownerDisplayName"`
}

// BalanceResponse reports the balance of one card.
type BalanceResponse struct {
	CardID       uuid.UUID `json:"cardId"`
	MaskedNumber string    `json:"maskedNumber"`
	Balance      string    `json:"balance"`
}

// TransferResponse is the receipt of a completed transfer.
type TransferResponse struct {
	TransactionID int64     `json:"transactionId"`
	FromCardID    uuid.UUID `json:"fromCardId"`
	ToCardID      uuid.UUID `json:"toCardId"`
	FromMasked    string    `json:"fromMasked"`
	ToMasked      string    `json:"toMasked"`
	Amount        string    `json:"amount"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"`
}

// UserResponse is the public representation of a user.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserStatsResponse summarises the cards of a user.
type UserStatsResponse struct {
	UserID       uuid.UUID `json:"userId"`
	Username     string    `json:"username"`
	TotalCards   int       `json:"totalCards"`
	ActiveCards  int       `json:"activeCards"`
	BlockedCards int       `json:"blockedCards"`
	ExpiredCards int       `json:"expiredCards"`
	TotalBalance string    `json:"totalBalance"`
}

// PageResponse is one page of a listing.
type PageResponse[T any] struct {
	Content       []T   `json:"content"`
	CurrentPage   int   `json:"currentPage"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
	PageSize      int   `json:"pageSize"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyScale)
}

// cardToResponse renders a card. Unless fullNumber is set the number field
// carries the masked number too.
func cardToResponse(d *service.CardDetails, fullNumber bool) CardResponse {
	c := d.Card
	number := c.MaskedNumber()
	if fullNumber {
		number = c.Number
	}
	return CardResponse{
		ID:               c.ID,
		Number:           number,
		MaskedNumber:     c.MaskedNumber(),
		ExpiryDate:       c.ExpiryDate.Format(domain.DateLayout),
		Status:           c.Status.String(),
		EffectiveStatus:  d.EffectiveStatus.String(),
		Balance:          money(c.Balance),
		OwnerID:          c.OwnerID,
		OwnerDisplayName: d.OwnerName,
	}
}

func transferToResponse(t *domain.TransferRecord) TransferResponse {
	return TransferResponse{
		TransactionID: t.ID,
		FromCardID:    t.FromCardID,
		ToCardID:      t.ToCardID,
		FromMasked:    t.FromMasked,
		ToMasked:      t.ToMasked,
		Amount:        money(t.Amount),
		Description:   t.Description,
		Timestamp:     t.CreatedAt,
		Status:        string(t.Status),
	}
}

func userToResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Roles:     u.RoleStrings(),
		CreatedAt: u.CreatedAt,
	}
}

func statsToResponse(s *domain.UserStats) UserStatsResponse {
	return UserStatsResponse{
		UserID:       s.UserID,
		Username:     s.Username,
		TotalCards:   s.TotalCards,
		ActiveCards:  s.ActiveCards,
		BlockedCards: s.BlockedCards,
		ExpiredCards: s.ExpiredCards,
		TotalBalance: money(s.TotalBalance),
	}
}

func toPageResponse[T, U any](p domain.Page[T], fn func(T) U) PageResponse[U] {
	mapped := domain.MapPage(p, fn)
	return PageResponse[U]{
		Content:       mapped.Content,
		CurrentPage:   mapped.CurrentPage,
		TotalPages:    mapped.TotalPages,
		TotalElements: mapped.TotalElements,
		PageSize:      mapped.PageSize,
		First:         mapped.First,
		Last:          mapped.Last,
	}
}

// parseRoles converts role tokens; matching is case-sensitive. A nil input
// stays nil so an update leaves the roles unchanged.
func parseRoles(tokens []string) ([]domain.Role, error) {
	if tokens == nil {
		return nil, nil
	}
	roles := make([]domain.Role, 0, len(tokens))
	for _, t := range tokens {
		role, err := domain.ParseRole(t)
		if err != nil {
			return nil, domain.NewValidationError("roles", "invalid value", err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}
