package event

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileStore appends records as JSON lines, one file per page partition.
// Writes are fire-and-forget: a failed append is logged and reported via
// Receipt.Confirmed, never as an error.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logger.Info("File store initialized", zap.String("dir", dir))

	return &FileStore{
		dir:    dir,
		logger: logger,
	}, nil
}

func (s *FileStore) Store(ctx context.Context, page string, rec *Record) (*Receipt, error) {
	path := filepath.Join(s.dir, page+".jsonl")

	receipt := &Receipt{
		Backend:  "file",
		Location: path,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("Failed to encode event record", zap.Error(err))
		return receipt, nil
	}

	if err := s.append(path, line); err != nil {
		s.logger.Error("Failed to write log",
			zap.Error(err),
			zap.String("path", path),
		)
		return receipt, nil
	}

	receipt.Confirmed = true

	s.logger.Debug("Event appended",
		zap.String("path", path),
		zap.String("page", page),
	)

	return receipt, nil
}

func (s *FileStore) append(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
