package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/platform/logger"
	"github.com/phrazzld/bankcards-api/internal/store"
)

const cardColumns = `id, number, owner_id, expiry_date, status, balance, version, created_at, updated_at`

// sortColumns whitelists the ORDER BY columns for each sort field.
var sortColumns = map[domain.CardSortField]string{
	domain.CardSortID:         "id",
	domain.CardSortNumber:     "number",
	domain.CardSortExpiryDate: "expiry_date",
	domain.CardSortBalance:    "balance",
	domain.CardSortStatus:     "status",
	domain.CardSortCreatedAt:  "created_at",
}

// PostgresCardStore implements the store.CardStore interface
// using a PostgreSQL database as the storage backend.
type PostgresCardStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCardStore creates a new PostgreSQL implementation of the CardStore interface.
// It needs a *sql.DB rather than a transaction because Update manages its own transactions.
// If logger is nil, a default logger will be used.
func NewPostgresCardStore(db *sql.DB, logger *slog.Logger) *PostgresCardStore {
	// Validate inputs
	if db == nil {
		panic("db cannot be nil")
	}

	// Use provided logger or create default
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCardStore{
		db:     db,
		logger: logger.With(slog.String("component", "card_store")),
	}
}

// Ensure PostgresCardStore implements store.CardStore interface
var _ store.CardStore = (*PostgresCardStore)(nil)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*domain.Card, error) {
	var (
		card   domain.Card
		status string
	)
	err := row.Scan(
		&card.ID,
		&card.Number,
		&card.OwnerID,
		&card.ExpiryDate,
		&status,
		&card.Balance,
		&card.Version,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	card.Status = domain.CardStatus(status)
	card.ExpiryDate = domain.DateOnly(card.ExpiryDate)
	card.CreatedAt = card.CreatedAt.UTC()
	card.UpdatedAt = card.UpdatedAt.UTC()
	return &card, nil
}

// Create implements store.CardStore.Create
func (s *PostgresCardStore) Create(ctx context.Context, card *domain.Card) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := card.Validate(); err != nil {
		log.Warn("attempted to create invalid card",
			slog.String("card_id", card.ID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO cards (` + cardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		card.ID,
		card.Number,
		card.OwnerID,
		card.ExpiryDate,
		string(card.Status),
		card.Balance,
		card.Version,
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		switch {
		case IsUniqueViolation(err):
			log.Debug("card number already exists", slog.String("card_id", card.ID.String()))
			return MapUniqueViolation(err, store.ErrCardNumberExists)
		case IsForeignKeyViolation(err):
			log.Debug("card owner does not exist", slog.String("owner_id", card.OwnerID.String()))
			return fmt.Errorf("%w: %v", store.ErrUserNotFound, err)
		}
		log.Error("failed to insert card",
			slog.String("card_id", card.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	log.Debug("card created successfully",
		slog.String("card_id", card.ID.String()),
		slog.String("owner_id", card.OwnerID.String()))
	return nil
}

// GetByID implements store.CardStore.GetByID
func (s *PostgresCardStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1`
	return s.getOne(ctx, query, id)
}

// GetForOwner implements store.CardStore.GetForOwner
func (s *PostgresCardStore) GetForOwner(ctx context.Context, id, ownerID uuid.UUID) (*domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1 AND owner_id = $2`
	return s.getOne(ctx, query, id, ownerID)
}

func (s *PostgresCardStore) getOne(ctx context.Context, query string, args ...any) (*domain.Card, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	card, err := scanCard(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCardNotFound
		}
		log.Error("failed to get card", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return card, nil
}

// ExistsByNumber implements store.CardStore.ExistsByNumber
func (s *PostgresCardStore) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM cards WHERE number = $1)`, number,
	).Scan(&exists)
	if err != nil {
		return false, MapError(err)
	}
	return exists, nil
}

// buildCardWhere renders the WHERE clause of a listing and its positional arguments.
func buildCardWhere(filter domain.CardFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.OwnerID != nil {
		add("owner_id = $%d", *filter.OwnerID)
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	// The fragment is digits only, so it needs no LIKE escaping.
	if filter.NumberFragment != "" {
		add("number LIKE $%d", "%"+filter.NumberFragment+"%")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List implements store.CardStore.List
func (s *PostgresCardStore) List(
	ctx context.Context,
	filter domain.CardFilter,
) ([]*domain.Card, int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	where, args := buildCardWhere(filter)

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`+where, args...).Scan(&total); err != nil {
		log.Error("failed to count cards", slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}
	if total == 0 {
		return []*domain.Card{}, 0, nil
	}

	column, ok := sortColumns[filter.Sort]
	if !ok {
		column = sortColumns[domain.CardSortCreatedAt]
	}
	direction := "DESC"
	if filter.Direction == domain.SortAsc {
		direction = "ASC"
	}

	page := domain.NewPageRequest(filter.Page, filter.Size)
	args = append(args, page.Size, page.Offset())
	query := fmt.Sprintf(
		`SELECT %s FROM cards%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		cardColumns, where, column, direction, direction, len(args)-1, len(args),
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list cards", slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Error("failed to close rows", slog.String("error", closeErr.Error()))
		}
	}()

	cards := make([]*domain.Card, 0, page.Size)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, 0, MapError(err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, MapError(err)
	}

	log.Debug("listed cards",
		slog.Int("count", len(cards)),
		slog.Int64("total", total))
	return cards, total, nil
}

// SummarizeOwner implements store.CardStore.SummarizeOwner
func (s *PostgresCardStore) SummarizeOwner(
	ctx context.Context,
	ownerID uuid.UUID,
) (*store.OwnerCardSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'ACTIVE'),
			COUNT(*) FILTER (WHERE status = 'BLOCKED'),
			COUNT(*) FILTER (WHERE status = 'EXPIRED'),
			COALESCE(SUM(balance), 0)
		FROM cards
		WHERE owner_id = $1
	`
	var summary store.OwnerCardSummary
	err := s.db.QueryRowContext(ctx, query, ownerID).Scan(
		&summary.Total,
		&summary.Active,
		&summary.Blocked,
		&summary.Expired,
		&summary.TotalBalance,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to summarize cards",
			slog.String("owner_id", ownerID.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return &summary, nil
}

// ListExpiredIDs implements store.CardStore.ListExpiredIDs
func (s *PostgresCardStore) ListExpiredIDs(
	ctx context.Context,
	today time.Time,
	limit int,
) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM cards
		WHERE expiry_date < $1 AND status <> 'EXPIRED'
		ORDER BY id
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, domain.DateOnly(today), limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, MapError(err)
		}
		ids = append(ids, id)
	}
	return ids, MapError(rows.Err())
}

// Update implements store.CardStore.Update
// Rows are locked one at a time with SELECT ... FOR UPDATE in ascending ID
// order, so two updates over the same cards can never deadlock each other.
func (s *PostgresCardStore) Update(ctx context.Context, ids []uuid.UUID, fn store.UpdateFn) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	ordered := store.LockOrder(ids)

	err := store.RunInTransaction(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		cardTx := &pgCardTx{
			tx:     tx,
			locked: make(map[uuid.UUID]*domain.Card, len(ordered)),
		}

		query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1 FOR UPDATE`
		for _, id := range ordered {
			card, err := scanCard(tx.QueryRowContext(ctx, query, id))
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return MapError(err)
			}
			cardTx.locked[id] = card
		}

		return fn(ctx, cardTx)
	})
	if err != nil {
		err = MapError(err)
		if errors.Is(err, store.ErrConflict) {
			log.Warn("card update aborted by contention",
				slog.Int("card_count", len(ordered)),
				slog.String("error", err.Error()))
		}
		return err
	}
	return nil
}

// pgCardTx implements store.CardTx on top of an open transaction.
type pgCardTx struct {
	tx     *sql.Tx
	locked map[uuid.UUID]*domain.Card
}

var _ store.CardTx = (*pgCardTx)(nil)

func (t *pgCardTx) Card(id uuid.UUID) (*domain.Card, error) {
	card, ok := t.locked[id]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	cp := *card
	return &cp, nil
}

func (t *pgCardTx) Save(ctx context.Context, card *domain.Card) error {
	locked, ok := t.locked[card.ID]
	if !ok {
		return store.ErrCardNotFound
	}
	if err := card.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE cards
		SET status = $1, balance = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5
	`
	result, err := t.tx.ExecContext(ctx, query,
		string(card.Status),
		card.Balance,
		card.UpdatedAt,
		card.ID,
		locked.Version,
	)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrConflict); err != nil {
		return err
	}

	saved := *card
	saved.Number = locked.Number
	saved.OwnerID = locked.OwnerID
	saved.ExpiryDate = locked.ExpiryDate
	saved.Version = locked.Version + 1
	t.locked[card.ID] = &saved
	return nil
}

func (t *pgCardTx) Delete(ctx context.Context, id uuid.UUID) error {
	locked, ok := t.locked[id]
	if !ok {
		return store.ErrCardNotFound
	}

	result, err := t.tx.ExecContext(ctx,
		`DELETE FROM cards WHERE id = $1 AND version = $2`, id, locked.Version)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrConflict); err != nil {
		return err
	}

	delete(t.locked, id)
	return nil
}

func (t *pgCardTx) AppendTransfer(ctx context.Context, record *domain.TransferRecord) error {
	query := `
		INSERT INTO transfers (
			owner_id, from_card_id, to_card_id, from_masked, to_masked,
			amount, description, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRowContext(ctx, query,
		record.OwnerID,
		record.FromCardID,
		record.ToCardID,
		record.FromMasked,
		record.ToMasked,
		record.Amount,
		record.Description,
		string(record.Status),
		record.CreatedAt,
	).Scan(&id)
	if err != nil {
		return MapError(err)
	}
	record.ID = id
	return nil
}
