package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/api/shared"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/platform/logger"
	"github.com/phrazzld/bankcards-api/internal/service"
)

// CardHandler serves the card routes of the authenticated owner.
// A card owned by someone else is always reported as not found.
type CardHandler struct {
	cardService service.CardService
	logger      *slog.Logger
}

// NewCardHandler creates a new CardHandler
func NewCardHandler(cardService service.CardService, logger *slog.Logger) *CardHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CardHandler")
	}

	return &CardHandler{
		cardService: cardService,
		logger:      logger.With(slog.String("component", "card_handler")),
	}
}

// ListCards handles GET /api/cards
func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	filter, err := cardFilterFromQuery(r, &userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	page, err := h.cardService.ListCards(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list cards")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, toPageResponse(page, func(d *service.CardDetails) CardResponse {
		return cardToResponse(d, false)
	}))
}

// GetCard handles GET /api/cards/{id}
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	details, err := h.cardService.GetCardForOwner(r.Context(), cardID, userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get card")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, cardToResponse(details, false))
}

// GetBalance handles GET /api/cards/{id}/balance
func (h *CardHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	details, err := h.cardService.GetCardForOwner(r.Context(), cardID, userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get balance")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, BalanceResponse{
		CardID:       details.Card.ID,
		MaskedNumber: details.Card.MaskedNumber(),
		Balance:      money(details.Card.Balance),
	})
}

// RequestBlock handles POST /api/cards/{id}/block-request
func (h *CardHandler) RequestBlock(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	var req BlockCardRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	details, err := h.cardService.RequestBlock(r.Context(), cardID, userID, req.Reason)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to block card")
		return
	}

	log.Info("card blocked by owner",
		slog.String("card_id", cardID.String()),
		slog.String("user_id", userID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, cardToResponse(details, false))
}

// cardFilterFromQuery reads status, search, page, size, sortBy and
// sortDirection. ownerID restricts the listing when non-nil.
func cardFilterFromQuery(r *http.Request, ownerID *uuid.UUID) (domain.CardFilter, error) {
	q := r.URL.Query()

	var status *domain.CardStatus
	if raw := q.Get("status"); raw != "" {
		s, err := domain.ParseCardStatus(raw)
		if err != nil {
			return domain.CardFilter{}, err
		}
		status = &s
	}

	return domain.NewCardFilter(
		ownerID,
		status,
		q.Get("search"),
		q.Get("sortBy"),
		q.Get("sortDirection"),
		queryInt(r, "page", domain.DefaultPage),
		queryInt(r, "size", domain.DefaultPageSize),
	), nil
}
