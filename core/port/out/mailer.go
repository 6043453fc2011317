package out

import (
	"context"

	"mailroom/core/domain"
)

// MailTransport fetches unseen messages from the monitored mailbox.
// Implementations must not mark messages seen; a re-poll after a crash
// is safe and deduplication happens at ingestion.
type MailTransport interface {
	FetchUnseen(ctx context.Context) ([]*domain.InboundMessage, error)
}

// SendStatus is the outcome of an outbound send attempt.
type SendStatus string

const (
	SendStatusSent    SendStatus = "sent"
	SendStatusBlocked SendStatus = "blocked" // outbound sending disabled by config
)

// MailSender sends outbound mail. When sending is disabled the
// implementation returns SendStatusBlocked without touching the network.
type MailSender interface {
	Send(ctx context.Context, to []string, subject, body string) (SendStatus, error)
}
