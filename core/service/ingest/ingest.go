package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"lukechampine.com/blake3"

	"mailroom/core/domain"
	"mailroom/core/port/out"
	"mailroom/pkg/apperr"
)

// Ingestor persists one inbound message with its attachments. The
// external id's unique index is the deduplication authority: a lost
// insert race surfaces as a normal duplicate outcome, never an error.
type Ingestor struct {
	repo  out.MessageRepository
	blobs out.BlobStore
	log   zerolog.Logger
}

func NewIngestor(repo out.MessageRepository, blobs out.BlobStore, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		repo:  repo,
		blobs: blobs,
		log:   log.With().Str("component", "ingest").Logger(),
	}
}

// Ingest stores the message and returns its persisted id. Re-ingesting
// an external id that already exists short-circuits with Duplicate set
// and performs no writes.
func (s *Ingestor) Ingest(ctx context.Context, msg *domain.InboundMessage) (*domain.IngestResult, error) {
	if id, found, err := s.repo.FindIDByExternalID(ctx, msg.ExternalID); err != nil {
		return nil, apperr.Database("dedup lookup failed", err)
	} else if found {
		s.log.Debug().Str("external_id", msg.ExternalID).Int64("message_id", id).Msg("duplicate message skipped")
		return &domain.IngestResult{MessageID: id, Duplicate: true}, nil
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, apperr.Database("begin ingest transaction", err)
	}

	id, err := tx.InsertMessage(ctx, msg, msg.ThreadToken())
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, out.ErrDuplicateMessage) {
			// Lost the insert race; the winner's row is the record.
			return s.resolveRace(ctx, msg.ExternalID)
		}
		return nil, apperr.Database("insert message", err)
	}

	// Attachments are written only after the parent id is known, so a
	// failed ingest leaves nothing half-addressed in the object store.
	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		key := ContentKey(id, att.Data)
		if err := s.blobs.Put(ctx, key, att.Data); err != nil {
			_ = tx.Rollback(ctx)
			return nil, apperr.Storage(fmt.Sprintf("store attachment %s", att.Filename), err)
		}
		if err := tx.InsertAttachment(ctx, id, i, att, key); err != nil {
			_ = tx.Rollback(ctx)
			return nil, apperr.Database(fmt.Sprintf("insert attachment %s", att.Filename), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Database("commit ingest transaction", err)
	}

	s.log.Info().
		Str("external_id", msg.ExternalID).
		Int64("message_id", id).
		Int("attachments", len(msg.Attachments)).
		Msg("message ingested")
	return &domain.IngestResult{MessageID: id}, nil
}

func (s *Ingestor) resolveRace(ctx context.Context, externalID string) (*domain.IngestResult, error) {
	id, found, err := s.repo.FindIDByExternalID(ctx, externalID)
	if err != nil || !found {
		return nil, apperr.Database("resolve duplicate after insert race", err)
	}
	s.log.Debug().Str("external_id", externalID).Int64("message_id", id).Msg("insert race resolved as duplicate")
	return &domain.IngestResult{MessageID: id, Duplicate: true}, nil
}

// ContentKey addresses attachment content by the owning message and a
// BLAKE3 digest of the bytes, so identical re-uploads land on the same
// object.
func ContentKey(messageID int64, data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("attachments/%d/%x", messageID, sum)
}
