package worker

import (
	"context"
)

// Handler routes pool jobs to their processor.
type Handler struct {
	pipeline *PipelineProcessor
}

func NewHandler(pipeline *PipelineProcessor) *Handler {
	return &Handler{pipeline: pipeline}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	switch msg.Type {
	case JobMailPoll:
		return h.pipeline.ProcessPoll(ctx, msg)
	case JobMessageProcess:
		return h.pipeline.ProcessMessage(ctx, msg)
	default:
		// Unknown types are dropped, not retried.
		return nil
	}
}
