package classify

import (
	"fmt"

	"mailroom/core/domain"
)

// fallbackConfidence is deliberately low: keyword evidence without the
// model behind it is a guess, and every fallback result escalates.
const fallbackConfidence = 0.3

// KeywordFallback classifies with the heuristic rule tables restricted
// to the given categories. It backs the AI stage while the circuit
// breaker is open. Categories outside the configured set are never
// returned; with no match at all the result carries an absent category
// at confidence 0.
func KeywordFallback(subject, body string, categories []domain.Category) *domain.ClassificationResult {
	allowed := make(map[domain.Category]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}

	text := subject + "\n" + body

	for _, rule := range rules {
		if !allowed[rule.category] {
			continue
		}
		for _, p := range rule.patterns {
			if p.MatchString(text) {
				return (&domain.ClassificationResult{
					Category:   rule.category,
					Confidence: fallbackConfidence,
					Reasoning:  fmt.Sprintf("ai unavailable, keyword fallback matched %s", rule.category),
					Source:     "ai:fallback",
				}).Finalize()
			}
		}
	}

	return (&domain.ClassificationResult{
		Confidence: 0,
		Reasoning:  "ai unavailable and no fallback keyword matched",
		Source:     "ai:fallback",
	}).Finalize()
}
