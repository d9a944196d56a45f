package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/api/shared"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/platform/logger"
	"github.com/phrazzld/bankcards-api/internal/service"
)

// AdminCardHandler serves the administrative card routes. Responses carry
// the full card number.
type AdminCardHandler struct {
	cardService service.CardService
	logger      *slog.Logger
}

// NewAdminCardHandler creates a new AdminCardHandler
func NewAdminCardHandler(cardService service.CardService, logger *slog.Logger) *AdminCardHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for AdminCardHandler")
	}

	return &AdminCardHandler{
		cardService: cardService,
		logger:      logger.With(slog.String("component", "admin_card_handler")),
	}
}

// CreateCard handles POST /api/admin/cards
func (h *AdminCardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateCardRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	expiry, err := domain.ParseDate(req.ExpiryDate)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	details, err := h.cardService.CreateCard(r.Context(), service.CreateCardInput{
		Number:     req.Number,
		ExpiryDate: expiry,
		Balance:    req.InitialBalance,
		OwnerID:    req.OwnerID,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create card")
		return
	}

	log.Info("card created",
		slog.String("card_id", details.Card.ID.String()),
		slog.String("owner_id", details.Card.OwnerID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, cardToResponse(details, true))
}

// ListCards handles GET /api/admin/cards. An optional ownerId narrows the
// listing to one owner.
func (h *AdminCardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	var ownerID *uuid.UUID
	if raw := r.URL.Query().Get("ownerId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			HandleAPIError(w, r, domain.NewValidationError("ownerId", "has invalid format", nil), "")
			return
		}
		ownerID = &id
	}

	filter, err := cardFilterFromQuery(r, ownerID)
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
		return cardToResponse(d, true)
	}))
}

// GetCard handles GET /api/admin/cards/{id}
func (h *AdminCardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := requirePathUUID(w, r, "id")
	if !ok {
		return
	}

	details, err := h.cardService.GetCard(r.Context(), cardID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get card")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, cardToResponse(details, true))
}

// UpdateCard handles PUT /api/admin/cards/{id}
func (h *AdminCardHandler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := requirePathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateCardRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	details, err := h.cardService.UpdateCard(r.Context(), cardID, service.UpdateCardInput{
		Balance: req.Balance,
		Status:  req.Status,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update card")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, cardToResponse(details, true))
}

// BlockCard handles POST /api/admin/cards/{id}/block
func (h *AdminCardHandler) BlockCard(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "block", h.cardService.BlockCard)
}

// ActivateCard handles POST /api/admin/cards/{id}/activate
func (h *AdminCardHandler) ActivateCard(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "activate", h.cardService.ActivateCard)
}

func (h *AdminCardHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	fn func(context.Context, uuid.UUID) (*service.CardDetails, error),
) {
	cardID, ok := requirePathUUID(w, r, "id")
	if !ok {
		return
	}

	details, err := fn(r.Context(), cardID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to "+action+" card")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("card status changed",
		slog.String("card_id", cardID.String()),
		slog.String("action", action),
		slog.String("status", details.Card.Status.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, cardToResponse(details, true))
}

// DeleteCard handles DELETE /api/admin/cards/{id}
func (h *AdminCardHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := requirePathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.cardService.DeleteCard(r.Context(), cardID); err != nil {
		HandleAPIError(w, r, err, "Failed to delete card")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("card deleted",
		slog.String("card_id", cardID.String()))
	w.WriteHeader(http.StatusNoContent)
}
