package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/bankcards-api/internal/api/shared"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/platform/logger"
	"github.com/phrazzld/bankcards-api/internal/service"
)

// TransferHandler serves transfers between cards of the authenticated owner.
type TransferHandler struct {
	transferService service.TransferService
	logger          *slog.Logger
}

// NewTransferHandler creates a new TransferHandler
func NewTransferHandler(transferService service.TransferService, logger *slog.Logger) *TransferHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TransferHandler")
	}

	return &TransferHandler{
		transferService: transferService,
		logger:          logger.With(slog.String("component", "transfer_handler")),
	}
}

// CreateTransfer handles POST /api/transfers
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req TransferRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	record, err := h.transferService.Transfer(r.Context(), service.TransferInput{
		FromCardID:  req.FromCardID,
		ToCardID:    req.ToCardID,
		Amount:      *req.Amount,
		OwnerID:     userID,
		Description: req.Description,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to transfer funds")
		return
	}

	log.Info("transfer completed",
		slog.Int64("transaction_id", record.ID),
		slog.String("user_id", userID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, transferToResponse(record))
}

// ListTransfers handles GET /api/transfers
func (h *TransferHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	page, err := h.transferService.ListTransfers(r.Context(), userID, pageRequest(r))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list transfers")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, toPageResponse(page, func(t *domain.TransferRecord) TransferResponse {
		return transferToResponse(t)
	}))
}
