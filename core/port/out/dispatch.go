package out

import (
	"context"

	"mailroom/core/domain"
)

// StageDispatcher hands a message's routing plan to downstream business
// workflows. Each stage is dispatched as an independent task carrying
// the message identifier and classification result; the pipeline never
// calls downstream logic directly.
type StageDispatcher interface {
	Dispatch(ctx context.Context, messageID int64, result *domain.ClassificationResult, plan domain.RoutingPlan) error
}
