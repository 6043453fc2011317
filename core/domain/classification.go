package domain

// Category is the business category assigned to an inbound message.
// The empty string means "could not classify"; such messages always
// escalate to human review.
type Category string

const (
	CategoryInquiry              Category = "inquiry"               // poptávka / request for quotation
	CategoryPurchaseOrder        Category = "purchase_order"        // objednávka
	CategoryComplaint            Category = "complaint"             // reklamace
	CategoryStatusInfo           Category = "status_info"           // order status / delivery date
	CategoryGeneralInquiry       Category = "general_inquiry"       // general question, no commercial intent yet
	CategoryMarketing            Category = "marketing"             // unsolicited promotion
	CategoryNewsletter           Category = "newsletter"            // subscribed bulk mail
	CategoryAttachmentForwarding Category = "attachment_forwarding" // bare forward of documents
)

// Categories lists all valid categories in a stable order.
var Categories = []Category{
	CategoryInquiry,
	CategoryPurchaseOrder,
	CategoryComplaint,
	CategoryStatusInfo,
	CategoryGeneralInquiry,
	CategoryMarketing,
	CategoryNewsletter,
	CategoryAttachmentForwarding,
}

// ValidCategory reports whether s is one of the eight known categories.
func ValidCategory(s string) bool {
	for _, c := range Categories {
		if string(c) == s {
			return true
		}
	}
	return false
}

// ReviewThreshold is the default confidence below which a message goes
// to human review.
const ReviewThreshold = 0.8

// ClassificationResult is the outcome of one classification stage.
// Invariants: Confidence is clamped to [0,1]; Escalate is true exactly
// when Confidence < ReviewThreshold or Category is absent. Use Finalize
// to enforce both.
type ClassificationResult struct {
	Category   Category
	Confidence float64
	Reasoning  string
	Escalate   bool
	TokensUsed int
	Source     string // "heuristic", "ai", "ai:fallback"
}

// Finalize clamps Confidence and recomputes Escalate, returning the
// result for chaining.
func (r *ClassificationResult) Finalize() *ClassificationResult {
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	r.Escalate = r.Category == "" || r.Confidence < ReviewThreshold
	return r
}
