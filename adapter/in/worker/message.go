package worker

import (
	"time"

	"github.com/google/uuid"

	"mailroom/core/domain"
)

// JobType identifies what a pool job does.
type JobType = string

const (
	// JobMailPoll runs one mailbox poll cycle and fans the fetched
	// messages out as JobMessageProcess jobs.
	JobMailPoll JobType = "mail.poll"

	// JobMessageProcess runs the ingest-classify-extract-route unit
	// for one inbound message.
	JobMessageProcess JobType = "message.process"
)

// Message is one unit of work for the pool. Raw carries the fetched
// message in-process; it is never serialized.
type Message struct {
	ID        string         `json:"id"`
	Type      JobType        `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Retries   int            `json:"retries"`

	Raw *domain.InboundMessage `json:"-"`
}

func NewMessage(jobType JobType, payload map[string]any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// NewProcessMessage wraps one fetched inbound message as a pool job.
func NewProcessMessage(raw *domain.InboundMessage) *Message {
	msg := NewMessage(JobMessageProcess, map[string]any{
		"external_id": raw.ExternalID,
	})
	msg.Raw = raw
	return msg
}
