package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/platform/logger"
	"github.com/phrazzld/bankcards-api/internal/store"
)

// PostgresTransferStore implements the store.TransferStore interface.
type PostgresTransferStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTransferStore creates a read-only view of the transfers table.
func NewPostgresTransferStore(db store.DBTX, logger *slog.Logger) *PostgresTransferStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTransferStore{
		db:     db,
		logger: logger.With(slog.String("component", "transfer_store")),
	}
}

var _ store.TransferStore = (*PostgresTransferStore)(nil)

// ListByOwner implements store.TransferStore.ListByOwner
func (s *PostgresTransferStore) ListByOwner(
	ctx context.Context,
	ownerID uuid.UUID,
	page domain.PageRequest,
) ([]*domain.TransferRecord, int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	page = domain.NewPageRequest(page.Page, page.Size)

	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transfers WHERE owner_id = $1`, ownerID,
	).Scan(&total)
	if err != nil {
		log.Error("failed to count transfers",
			slog.String("owner_id", ownerID.String()),
			slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}
	if total == 0 {
		return []*domain.TransferRecord{}, 0, nil
	}

	query := `
		SELECT id, owner_id, from_card_id, to_card_id, from_masked, to_masked,
			amount, description, status, created_at
		FROM transfers
		WHERE owner_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID, page.Size, page.Offset())
	if err != nil {
		log.Error("failed to list transfers",
			slog.String("owner_id", ownerID.String()),
			slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*domain.TransferRecord, 0, page.Size)
	for rows.Next() {
		var (
			record domain.TransferRecord
			status string
		)
		err := rows.Scan(
			&record.ID,
			&record.OwnerID,
			&record.FromCardID,
			&record.ToCardID,
			&record.FromMasked,
			&record.ToMasked,
			&record.Amount,
			&record.Description,
			&status,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, 0, MapError(err)
		}
		record.Status = domain.TransferStatus(status)
		record.CreatedAt = record.CreatedAt.UTC()
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, MapError(err)
	}

	return records, total, nil
}
