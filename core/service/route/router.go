package route

import (
	"mailroom/core/domain"
)

// Router maps a finished classification to the ordered list of
// downstream stages. It is a pure decision table: no I/O, no state
// beyond the review threshold.
type Router struct {
	ReviewThreshold float64
}

func NewRouter(reviewThreshold float64) *Router {
	if reviewThreshold <= 0 {
		reviewThreshold = domain.ReviewThreshold
	}
	return &Router{ReviewThreshold: reviewThreshold}
}

// Plan returns the stages for one message in execution order. Later
// stages assume earlier stages' outputs exist, so the order is part of
// the contract.
func (r *Router) Plan(category domain.Category, confidence float64, hasAttachments, needsReview bool) domain.RoutingPlan {
	if needsReview || confidence < r.ReviewThreshold {
		return domain.RoutingPlan{domain.StageReview}
	}

	var plan domain.RoutingPlan
	switch category {
	case domain.CategoryInquiry:
		if hasAttachments {
			plan = append(plan, domain.StageAttachments)
		}
		plan = append(plan,
			domain.StageParseContent,
			domain.StageOrderMatching,
			domain.StageAutoCalculation,
			domain.StageOfferGeneration,
		)
	case domain.CategoryPurchaseOrder, domain.CategoryStatusInfo:
		if hasAttachments {
			plan = append(plan, domain.StageAttachments)
		}
		plan = append(plan, domain.StageParseContent, domain.StageOrderMatching)
	case domain.CategoryComplaint:
		plan = append(plan, domain.StageParseContent, domain.StageEscalate)
	case domain.CategoryMarketing, domain.CategoryNewsletter:
		plan = append(plan, domain.StageArchive)
	case domain.CategoryGeneralInquiry:
		plan = append(plan, domain.StageOrderMatching, domain.StageNotify)
	case domain.CategoryAttachmentForwarding:
		if hasAttachments {
			plan = append(plan, domain.StageAttachments)
		} else {
			plan = append(plan, domain.StageReview)
		}
	default:
		plan = append(plan, domain.StageReview)
	}
	return plan
}
