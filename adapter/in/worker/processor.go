package worker

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"mailroom/core/domain"
	"mailroom/core/port/out"
	"mailroom/core/service/classify"
	"mailroom/core/service/extract"
	"mailroom/core/service/ingest"
	"mailroom/core/service/route"
)

// Submitter is the slice of the pool the processor needs to fan out
// follow-up jobs.
type Submitter interface {
	Submit(msg *Message) bool
}

// PipelineProcessor runs poll cycles and the per-message
// ingest-classify-extract-route unit.
type PipelineProcessor struct {
	transport  out.MailTransport
	ingestor   *ingest.Ingestor
	classifier *classify.AIClassifier
	extractor  *extract.Processor
	router     *route.Router
	repo       out.MessageRepository
	dispatcher out.StageDispatcher

	submitter Submitter
	log       zerolog.Logger
}

func NewPipelineProcessor(
	transport out.MailTransport,
	ingestor *ingest.Ingestor,
	classifier *classify.AIClassifier,
	extractor *extract.Processor,
	router *route.Router,
	repo out.MessageRepository,
	dispatcher out.StageDispatcher,
	log zerolog.Logger,
) *PipelineProcessor {
	return &PipelineProcessor{
		transport:  transport,
		ingestor:   ingestor,
		classifier: classifier,
		extractor:  extractor,
		router:     router,
		repo:       repo,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// SetSubmitter wires the pool after construction; the pool and the
// processor reference each other.
func (p *PipelineProcessor) SetSubmitter(s Submitter) {
	p.submitter = s
}

// ProcessPoll runs one mailbox poll cycle and fans each fetched message
// out as its own job, so a slow message never blocks its siblings.
func (p *PipelineProcessor) ProcessPoll(ctx context.Context, _ *Message) error {
	messages, err := p.transport.FetchUnseen(ctx)
	if err != nil {
		return fmt.Errorf("poll cycle: %w", err)
	}

	submitted := 0
	for _, raw := range messages {
		if p.submitter != nil && p.submitter.Submit(NewProcessMessage(raw)) {
			submitted++
		}
	}

	p.log.Info().Int("fetched", len(messages)).Int("submitted", submitted).Msg("poll cycle done")
	return nil
}

// ProcessMessage runs the whole pipeline for one inbound message:
// ingest, classify, extract attachment findings, route, dispatch.
func (p *PipelineProcessor) ProcessMessage(ctx context.Context, msg *Message) error {
	raw := msg.Raw
	if raw == nil {
		p.log.Warn().Str("job_id", msg.ID).Msg("process job without raw message, skipping")
		return nil
	}

	res, err := p.ingestor.Ingest(ctx, raw)
	if err != nil {
		return err
	}
	if res.Duplicate {
		p.log.Debug().Str("external_id", raw.ExternalID).Msg("duplicate, pipeline skipped")
		return nil
	}

	result := p.classifyMessage(ctx, raw)
	if err := p.repo.UpdateClassification(ctx, res.MessageID, result); err != nil {
		return err
	}

	if raw.HasAttachments() {
		findings := p.extractor.Process(ctx, raw.Attachments)
		for i := range findings {
			if err := p.repo.UpdateFinding(ctx, res.MessageID, i, &findings[i]); err != nil {
				return err
			}
		}
	}

	plan := p.router.Plan(result.Category, result.Confidence, raw.HasAttachments(), result.Escalate)
	if err := p.dispatcher.Dispatch(ctx, res.MessageID, result, plan); err != nil {
		return err
	}

	p.log.Info().
		Int64("message_id", res.MessageID).
		Str("category", string(result.Category)).
		Float64("confidence", result.Confidence).
		Str("source", result.Source).
		Interface("plan", plan).
		Msg("message processed")
	return nil
}

// classifyMessage runs the heuristic stage and falls through to the AI
// stage only when keyword evidence is inconclusive.
func (p *PipelineProcessor) classifyMessage(ctx context.Context, raw *domain.InboundMessage) *domain.ClassificationResult {
	if result := classify.Heuristic(raw.Subject, raw.Body, raw.HasAttachments(), utf8.RuneCountInString(raw.Body)); result != nil {
		return result
	}
	return p.classifier.Classify(ctx, raw.Subject, raw.Body, raw.HasAttachments())
}
