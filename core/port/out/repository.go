// Package out defines outbound ports (driven ports) for the application.
// These interfaces represent dependencies that the application needs.
package out

import (
	"context"
	"errors"

	"mailroom/core/domain"
)

// ErrDuplicateMessage is returned by MessageTx.InsertMessage when the
// transport message id already exists. The unique index on external_id
// is the authority for deduplication; adapters map their driver's
// uniqueness violation to this sentinel.
var ErrDuplicateMessage = errors.New("duplicate message")

// MessageRepository defines the outbound port for inbound-message
// persistence. Ingestion runs inside one transaction per message.
type MessageRepository interface {
	// FindIDByExternalID returns the persisted message id for a
	// transport message id, with found=false when it does not exist.
	FindIDByExternalID(ctx context.Context, externalID string) (id int64, found bool, err error)

	// Begin opens the per-message ingestion transaction.
	Begin(ctx context.Context) (MessageTx, error)

	// UpdateClassification attaches a classification result to a
	// persisted message.
	UpdateClassification(ctx context.Context, messageID int64, result *domain.ClassificationResult) error

	// UpdateFinding attaches an extraction finding to a persisted
	// attachment, keyed by message id and the attachment's position
	// within the message. Filenames are not unique inside a message
	// (inline "image001.png" repeats), positions are.
	UpdateFinding(ctx context.Context, messageID int64, position int, finding *domain.AttachmentFinding) error
}

// MessageTx is the ingestion transaction.
type MessageTx interface {
	// InsertMessage persists the message row and returns its id.
	// Returns ErrDuplicateMessage when the external id is already
	// taken (lost insert race).
	InsertMessage(ctx context.Context, msg *domain.InboundMessage, threadToken string) (int64, error)

	// InsertAttachment persists attachment metadata pointing at the
	// object already written under storageKey. position is the
	// attachment's zero-based index within the message.
	InsertAttachment(ctx context.Context, messageID int64, position int, att *domain.Attachment, storageKey string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
