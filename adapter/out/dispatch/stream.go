// Package dispatch hands routing plans to downstream business
// workflows over Redis Streams.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mailroom/core/domain"
)

const streamPrefix = "stages:"

// maxStreamLen caps each stage stream; old entries are trimmed
// approximately for O(1) inserts.
const maxStreamLen = 100000

// StageJob is the payload downstream stage consumers read.
type StageJob struct {
	JobID      string  `json:"job_id"`
	MessageID  int64   `json:"message_id"`
	Stage      string  `json:"stage"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
	Escalate   bool    `json:"escalate"`
	EnqueuedAt string  `json:"enqueued_at"`
}

// StreamDispatcher publishes one entry per stage to that stage's
// stream. The router never calls downstream logic directly; consumers
// pick stages up as independent tasks.
type StreamDispatcher struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewStreamDispatcher(client *redis.Client, log zerolog.Logger) *StreamDispatcher {
	return &StreamDispatcher{
		client: client,
		log:    log.With().Str("component", "dispatch").Logger(),
	}
}

func (d *StreamDispatcher) Dispatch(ctx context.Context, messageID int64, result *domain.ClassificationResult, plan domain.RoutingPlan) error {
	if d.client == nil {
		d.log.Warn().Int64("message_id", messageID).Msg("redis not configured, dropping routing plan")
		return nil
	}

	for _, stage := range plan {
		job := StageJob{
			JobID:      uuid.New().String(),
			MessageID:  messageID,
			Stage:      string(stage),
			Category:   string(result.Category),
			Confidence: result.Confidence,
			Escalate:   result.Escalate,
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		}

		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal stage job: %w", err)
		}

		err = d.client.XAdd(ctx, &redis.XAddArgs{
			Stream: streamPrefix + string(stage),
			MaxLen: maxStreamLen,
			Approx: true,
			ID:     "*",
			Values: map[string]interface{}{
				"data": string(data),
			},
		}).Err()
		if err != nil {
			return fmt.Errorf("publish stage %s for message %d: %w", stage, messageID, err)
		}
	}

	d.log.Info().
		Int64("message_id", messageID).
		Str("category", string(result.Category)).
		Interface("plan", plan).
		Msg("stages dispatched")
	return nil
}
