package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/outbox"
)

const ndjsonContentType = "application/x-ndjson"

// ArchiveSink writes each batch as one newline-delimited JSON object to a
// blob store, partitioned by the date and hour of its first envelope.
type ArchiveSink struct {
	store  BlobStore
	ids    IDGenerator
	prefix string
	logger *zap.Logger
}

// NewArchiveSink constructs an ArchiveSink writing under prefix.
func NewArchiveSink(store BlobStore, ids IDGenerator, prefix string, logger *zap.Logger) (*ArchiveSink, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{
		store:  store,
		ids:    ids,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}, nil
}

// Consume serializes the batch and uploads it.
func (s *ArchiveSink) Consume(ctx context.Context, batch []outbox.Envelope) error {
	if len(batch) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, env := range batch {
		if err := enc.Encode(env); err != nil {
			return fmt.Errorf("encode envelope: %w", err)
		}
	}
	id, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("archive object id: %w", err)
	}
	uri, err := s.store.PutObject(ctx, s.objectPath(batch[0], id), ndjsonContentType, &buf)
	if err != nil {
		return fmt.Errorf("archive put object: %w", err)
	}
	s.logger.Debug("archived outbox batch", zap.String("uri", uri), zap.Int("envelopes", len(batch)))
	return nil
}

func (s *ArchiveSink) objectPath(first outbox.Envelope, id string) string {
	ts := first.TS.UTC()
	name := fmt.Sprintf("dt=%s/hour=%02d/%s.ndjson", ts.Format("2006-01-02"), ts.Hour(), id)
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Close implements the Sink interface; it performs no action.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
