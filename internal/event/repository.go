package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/funnelworks/campaign-logger/pkg/postgres"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repository is the postgres storage backend: one row per event with the
// canonical record kept as jsonb.
type Repository struct {
	db     *postgres.DB
	logger *zap.Logger
}

func NewRepository(db *postgres.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the events table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			page TEXT NOT NULL,
			session_id TEXT,
			record JSONB NOT NULL,
			server_received_at TIMESTAMPTZ NOT NULL
		)
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure events table: %w", err)
	}
	return nil
}

func (r *Repository) Store(ctx context.Context, page string, rec *Record) (*Receipt, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event record: %w", err)
	}

	id := uuid.New()

	var sessionID *string
	if rec.SessionID != nil && *rec.SessionID != "" {
		sessionID = rec.SessionID
	}

	query := `
		INSERT INTO events (id, page, session_id, record, server_received_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.ExecContext(ctx, query, id, page, sessionID, body, rec.ServerReceivedAt)
	if err != nil {
		r.logger.Error("Failed to insert event",
			zap.Error(err),
			zap.String("event_id", id.String()),
		)
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	r.logger.Debug("Event inserted",
		zap.String("event_id", id.String()),
		zap.String("page", page),
	)

	return &Receipt{
		Backend:   "postgres",
		Location:  id.String(),
		Confirmed: true,
	}, nil
}

type eventRow struct {
	Record           json.RawMessage `db:"record"`
	ServerReceivedAt time.Time       `db:"server_received_at"`
}

func (r *Repository) List(ctx context.Context, page string, limit int) ([]*StoredRecord, error) {
	query := `
		SELECT record, server_received_at
		FROM events
	`
	args := []any{}

	if page != "" {
		query += " WHERE page = $1"
		args = append(args, page)
	}

	query += fmt.Sprintf(" ORDER BY server_received_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	records := make([]*StoredRecord, 0, len(rows))
	for _, row := range rows {
		var rec StoredRecord
		if err := json.Unmarshal(row.Record, &rec.Record); err != nil {
			r.logger.Warn("Dropping unparsable event row", zap.Error(err))
			continue
		}
		rec.UploadedAt = row.ServerReceivedAt.UTC().Format(time.RFC3339Nano)
		records = append(records, &rec)
	}

	return records, nil
}
