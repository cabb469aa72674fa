package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/funnelworks/campaign-logger/pkg/blob"
	"go.uber.org/zap"
)

// BlobStore keeps one object per event in object storage. Unlike the file
// backend a failed put is surfaced to the caller.
type BlobStore struct {
	client *blob.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewBlobStore(client *blob.Client, logger *zap.Logger) *BlobStore {
	return &BlobStore{
		client: client,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *BlobStore) Store(ctx context.Context, page string, rec *Record) (*Receipt, error) {
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode event record: %w", err)
	}

	key := s.objectKey(page, rec.SessionID)

	obj, err := s.client.Put(ctx, key, body, "application/json")
	if err != nil {
		s.logger.Error("Failed to store event",
			zap.Error(err),
			zap.String("key", key),
		)
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	s.logger.Info("Event stored", zap.String("url", obj.URL))

	return &Receipt{
		Backend:   "blob",
		Location:  obj.URL,
		Confirmed: true,
	}, nil
}

// objectKey synthesizes a fresh storage key. Colons and periods in the
// timestamp are replaced to satisfy storage-key character constraints.
func (s *BlobStore) objectKey(page string, sessionID *string) string {
	ts := s.now().UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")

	session := "unknown"
	if sessionID != nil && *sessionID != "" {
		session = *sessionID
	}

	return fmt.Sprintf("logs/%s/%s-%s.json", page, ts, session)
}

func (s *BlobStore) List(ctx context.Context, page string, limit int) ([]*StoredRecord, error) {
	prefix := "logs/"
	if page != "" {
		prefix = "logs/" + page + "/"
	}

	objects, err := s.client.List(ctx, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	// Bodies are fetched concurrently; an unreadable or unparsable object
	// drops that record only, never the whole listing.
	results := make([]*StoredRecord, len(objects))
	var wg sync.WaitGroup
	for i, obj := range objects {
		wg.Add(1)
		go func(i int, obj blob.Object) {
			defer wg.Done()
			results[i] = s.fetchRecord(ctx, obj)
		}(i, obj)
	}
	wg.Wait()

	records := make([]*StoredRecord, 0, len(results))
	for _, rec := range results {
		if rec != nil {
			records = append(records, rec)
		}
	}

	return records, nil
}

func (s *BlobStore) fetchRecord(ctx context.Context, obj blob.Object) *StoredRecord {
	body, err := s.client.Fetch(ctx, obj.URL)
	if err != nil {
		s.logger.Warn("Dropping unreadable event object",
			zap.Error(err),
			zap.String("url", obj.URL),
		)
		return nil
	}

	var rec StoredRecord
	if err := json.Unmarshal(body, &rec.Record); err != nil {
		s.logger.Warn("Dropping unparsable event object",
			zap.Error(err),
			zap.String("url", obj.URL),
		)
		return nil
	}

	rec.BlobURL = obj.URL
	rec.UploadedAt = obj.UploadedAt
	return &rec
}
