package classify

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"mailroom/core/domain"
	"mailroom/pkg/apperr"
	"mailroom/pkg/guard"
)

// ChatCompleter is the slice of the OpenAI client the classifier uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type AIConfig struct {
	Model              string
	MaxTokens          int
	Timeout            time.Duration
	FallbackCategories []domain.Category
}

// AIClassifier calls the model behind the resource guard: breaker
// first, then limiter, and every exit path releases the slot and
// records the outcome.
type AIClassifier struct {
	chat  ChatCompleter
	guard *guard.Guard
	cfg   AIConfig
	log   zerolog.Logger
}

func NewAIClassifier(chat ChatCompleter, g *guard.Guard, cfg AIConfig, log zerolog.Logger) *AIClassifier {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &AIClassifier{
		chat:  chat,
		guard: g,
		cfg:   cfg,
		log:   log.With().Str("component", "ai_classifier").Logger(),
	}
}

// schemaResponse mirrors the structured output schema.
type schemaResponse struct {
	Category   string          `json:"category"`
	Confidence json.RawMessage `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
}

var classificationSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"category": {
			Type: jsonschema.String,
			Enum: categoryEnum(),
		},
		"confidence": {
			Type:        jsonschema.Number,
			Description: "classification confidence between 0 and 1",
		},
		"reasoning": {
			Type: jsonschema.String,
		},
	},
	Required:             []string{"category", "confidence", "reasoning"},
	AdditionalProperties: false,
}

func categoryEnum() []string {
	out := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		out[i] = string(c)
	}
	return out
}

// estimateTokens is a coarse chars/4 estimate used only for the
// limiter's pre-call budget check.
func estimateTokens(prompt string) int {
	return len(systemPrompt)/4 + len(prompt)/4 + 256
}

// Classify runs the guarded model call. It never returns an error:
// every failure mode degrades to an escalating result so the message
// still flows to the router.
func (c *AIClassifier) Classify(ctx context.Context, subject, body string, hasAttachments bool) *domain.ClassificationResult {
	if !c.guard.Breaker.CanExecute() {
		c.log.Warn().Msg("circuit open, using keyword fallback")
		return KeywordFallback(subject, body, c.cfg.FallbackCategories)
	}

	prompt := BuildPrompt(subject, body, hasAttachments)

	release, err := c.guard.Limiter.Acquire(ctx, estimateTokens(prompt))
	if err != nil {
		c.log.Warn().Err(err).Msg("rate limited, skipping ai call")
		return (&domain.ClassificationResult{
			Reasoning: "ai call skipped: hourly budget or concurrency limit reached",
			Source:    "ai",
		}).Finalize()
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var resp openai.ChatCompletionResponse
	err = c.guard.Breaker.Execute(func() error {
		var callErr error
		resp, callErr = c.chat.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:     c.cfg.Model,
			MaxTokens: c.cfg.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   "email_classification",
					Schema: &classificationSchema,
					Strict: true,
				},
			},
		})
		return callErr
	})

	if resp.Usage.TotalTokens > 0 {
		c.guard.Limiter.RecordUsage(ctx, resp.Usage.TotalTokens)
	}

	if err != nil {
		if errors.Is(err, guard.ErrCircuitOpen) {
			c.log.Warn().Msg("circuit opened mid-flight, using keyword fallback")
			return KeywordFallback(subject, body, c.cfg.FallbackCategories)
		}
		reasoning := "ai classification failed"
		wrapped := apperr.ClassifyAPI(err)
		if errors.Is(err, context.DeadlineExceeded) {
			reasoning = "ai classification timed out"
			wrapped = apperr.ClassifyTimeout(err)
		}
		c.log.Error().Err(wrapped).Msg("ai classification failed")
		return (&domain.ClassificationResult{
			Reasoning:  reasoning,
			TokensUsed: resp.Usage.TotalTokens,
			Source:     "ai",
		}).Finalize()
	}

	result := parseResponse(resp)
	result.TokensUsed = resp.Usage.TotalTokens
	c.log.Debug().
		Str("category", string(result.Category)).
		Float64("confidence", result.Confidence).
		Int("tokens", result.TokensUsed).
		Msg("ai classification done")
	return result
}

// parseResponse reads the structured output defensively: a missing
// block or unknown category becomes absent, a non-numeric confidence
// becomes 0.
func parseResponse(resp openai.ChatCompletionResponse) *domain.ClassificationResult {
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return (&domain.ClassificationResult{
			Reasoning: "model returned no structured output",
			Source:    "ai",
		}).Finalize()
	}

	var parsed schemaResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return (&domain.ClassificationResult{
			Reasoning: "model output was not valid json",
			Source:    "ai",
		}).Finalize()
	}

	result := &domain.ClassificationResult{
		Reasoning: parsed.Reasoning,
		Source:    "ai",
	}
	// An unknown category invalidates the whole claim: the confidence
	// belonged to a category that does not exist, so it is dropped too.
	if domain.ValidCategory(parsed.Category) {
		result.Category = domain.Category(parsed.Category)
		var conf float64
		if err := json.Unmarshal(parsed.Confidence, &conf); err == nil {
			result.Confidence = conf
		}
	}
	return result.Finalize()
}
