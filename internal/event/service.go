package event

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultListLimit bounds the read path when the caller gives no limit.
const DefaultListLimit = 100

// Publisher mirrors accepted records to a message broker. Mirroring is
// best-effort and independent of the storage outcome.
type Publisher interface {
	SendMessage(ctx context.Context, key string, value any) error
}

type Service struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the write and read paths onto one storage backend.
// publisher may be nil when the Kafka mirror is disabled.
func NewService(store Store, publisher Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Log normalizes a client payload into a canonical record and persists it.
// The returned error is backend-dependent: the file backend never fails
// the caller, blob and postgres surface write failures.
func (s *Service) Log(ctx context.Context, payload Payload, meta RequestMeta) (*Record, *Receipt, error) {
	rec := Normalize(payload, meta, s.now())
	page := Partition(rec.Page)

	// Backends already wrap their failures; no second layer here.
	receipt, err := s.store.Store(ctx, page, rec)
	if err != nil {
		return nil, nil, err
	}

	if s.publisher != nil {
		key := "unknown"
		if rec.SessionID != nil && *rec.SessionID != "" {
			key = *rec.SessionID
		}
		if err := s.publisher.SendMessage(ctx, key, rec); err != nil {
			s.logger.Error("Failed to mirror event",
				zap.Error(err),
				zap.String("session_id", key),
			)
		}
	}

	s.logger.Info("Event logged",
		zap.String("page", page),
		zap.String("backend", receipt.Backend),
		zap.Bool("confirmed", receipt.Confirmed),
	)

	return rec, receipt, nil
}

// List retrieves previously stored records through the backend's read
// capability, when it has one.
func (s *Service) List(ctx context.Context, page string, limit int) ([]*StoredRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	// Reads resolve the page through the same partition rule as writes, so
	// a record is retrievable under whatever page value it was logged with.
	if page != "" {
		page = Partition(&page)
	}

	lister, ok := s.store.(Lister)
	if !ok {
		return nil, ErrListingUnsupported
	}

	records, err := lister.List(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to list events",
			zap.Error(err),
			zap.String("page", page),
		)
		return nil, err
	}

	s.logger.Info("Events retrieved",
		zap.String("page", page),
		zap.Int("count", len(records)),
	)

	return records, nil
}
