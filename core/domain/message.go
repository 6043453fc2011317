package domain

import (
	"time"
)

// InboundMessage is a raw message fetched from the monitored mailbox.
// ExternalID is the transport-assigned Message-ID and acts as the
// idempotency key for ingestion. The struct is immutable after fetch;
// the ingestion stage owns it until it is persisted.
type InboundMessage struct {
	ExternalID  string
	FromEmail   string
	FromName    string
	Subject     string
	Body        string
	ReceivedAt  time.Time
	InReplyTo   string
	References  []string
	Attachments []Attachment
}

// HasAttachments reports whether the message carries at least one attachment.
func (m *InboundMessage) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// ThreadToken derives the thread-linkage token from the reply chain:
// the oldest id in References, falling back to In-Reply-To.
func (m *InboundMessage) ThreadToken() string {
	if len(m.References) > 0 {
		return m.References[0]
	}
	return m.InReplyTo
}

// Attachment is a single MIME attachment. Data is dropped after the
// ingestion stage writes it to durable storage.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
	Size        int64
}

// IngestResult is the outcome of ingesting one inbound message.
type IngestResult struct {
	MessageID int64
	Duplicate bool
}
