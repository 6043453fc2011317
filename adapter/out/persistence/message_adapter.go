// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mailroom/core/domain"
	"mailroom/core/port/out"
)

// uniqueViolation is the PostgreSQL class 23 code raised by the unique
// index on inbound_messages.external_id.
const uniqueViolation = "23505"

// MessageAdapter implements out.MessageRepository on PostgreSQL.
type MessageAdapter struct {
	db *sqlx.DB
}

func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

func (a *MessageAdapter) FindIDByExternalID(ctx context.Context, externalID string) (int64, bool, error) {
	var id int64
	err := a.db.GetContext(ctx, &id,
		`SELECT id FROM inbound_messages WHERE external_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (a *MessageAdapter) Begin(ctx context.Context) (out.MessageTx, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &messageTx{tx: tx}, nil
}

func (a *MessageAdapter) UpdateClassification(ctx context.Context, messageID int64, result *domain.ClassificationResult) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE inbound_messages
		SET category = NULLIF($2, ''),
		    confidence = $3,
		    reasoning = $4,
		    escalate = $5,
		    tokens_used = $6,
		    classification_source = $7,
		    classified_at = NOW()
		WHERE id = $1`,
		messageID,
		string(result.Category),
		result.Confidence,
		result.Reasoning,
		result.Escalate,
		result.TokensUsed,
		result.Source,
	)
	return err
}

func (a *MessageAdapter) UpdateFinding(ctx context.Context, messageID int64, position int, finding *domain.AttachmentFinding) error {
	var layers, blocks pq.StringArray
	var productName, material, protocolVersion sql.NullString
	if finding.CAD != nil {
		layers = finding.CAD.Layers
		blocks = finding.CAD.Blocks
		productName = nullString(finding.CAD.ProductName)
		material = nullString(finding.CAD.Material)
		protocolVersion = nullString(finding.CAD.ProtocolVersion)
	}

	_, err := a.db.ExecContext(ctx, `
		UPDATE message_attachments
		SET extracted_text = $3,
		    extraction_confidence = $4,
		    doc_type = $5,
		    type_confidence = $6,
		    cad_product_name = $7,
		    cad_material = $8,
		    cad_protocol_version = $9,
		    cad_layers = $10,
		    cad_blocks = $11,
		    extraction_note = NULLIF($12, ''),
		    extracted_at = NOW()
		WHERE message_id = $1 AND position = $2`,
		messageID,
		position,
		finding.Text,
		finding.Confidence,
		string(finding.DocType),
		finding.TypeConfidence,
		productName,
		material,
		protocolVersion,
		layers,
		blocks,
		finding.Note,
	)
	return err
}

// messageTx is the per-message ingestion transaction.
type messageTx struct {
	tx *sqlx.Tx
}

func (t *messageTx) InsertMessage(ctx context.Context, msg *domain.InboundMessage, threadToken string) (int64, error) {
	var id int64
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO inbound_messages
			(external_id, from_email, from_name, subject, body,
			 received_at, in_reply_to, "references", thread_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id`,
		msg.ExternalID,
		msg.FromEmail,
		nullString(msg.FromName),
		msg.Subject,
		msg.Body,
		msg.ReceivedAt,
		nullString(msg.InReplyTo),
		pq.StringArray(msg.References),
		nullString(threadToken),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, out.ErrDuplicateMessage
		}
		return 0, err
	}
	return id, nil
}

func (t *messageTx) InsertAttachment(ctx context.Context, messageID int64, position int, att *domain.Attachment, storageKey string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO message_attachments
			(message_id, position, filename, content_type, size_bytes, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		messageID, position, att.Filename, att.ContentType, att.Size, storageKey,
	)
	return err
}

func (t *messageTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *messageTx) Rollback(context.Context) error { return t.tx.Rollback() }

// isUniqueViolation recognizes the 23505 SQLSTATE from both the pgx and
// lib/pq drivers.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
