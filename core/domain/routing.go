package domain

// Stage names the downstream pipeline stages a message can be routed to.
// Stage order inside a RoutingPlan is significant: later stages assume
// the outputs of earlier ones exist.
type Stage string

const (
	StageReview          Stage = "review"
	StageAttachments     Stage = "attachment-processing"
	StageParseContent    Stage = "parse-structured-content"
	StageOrderMatching   Stage = "order-matching"
	StageAutoCalculation Stage = "auto-calculation"
	StageOfferGeneration Stage = "offer-generation"
	StageEscalate        Stage = "escalate"
	StageArchive         Stage = "archive"
	StageNotify          Stage = "notify"
)

// RoutingPlan is an ordered, duplicate-free list of stages for one
// message. It is a pure value with no persisted identity.
type RoutingPlan []Stage

// Contains reports whether the plan includes the given stage.
func (p RoutingPlan) Contains(s Stage) bool {
	for _, st := range p {
		if st == s {
			return true
		}
	}
	return false
}
