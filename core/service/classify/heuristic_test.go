package classify

import (
	"strings"
	"testing"

	"mailroom/core/domain"
)

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name           string
		subject        string
		body           string
		hasAttachments bool
		wantCategory   domain.Category
		wantConfidence float64
		wantNil        bool
	}{
		{
			name:           "inquiry with dimension codes",
			subject:        "Poptávka DN200 PN16",
			body:           "Dobrý den, prosím o cenovou nabídku na přírubu.",
			wantCategory:   domain.CategoryInquiry,
			wantConfidence: 0.92,
		},
		{
			name:           "ascii folded inquiry",
			subject:        "poptavka na vyrobu",
			body:           "Prosim o kalkulaci dle vykresu.",
			wantCategory:   domain.CategoryInquiry,
			wantConfidence: 0.92,
		},
		{
			name:           "single pattern purchase order",
			subject:        "Objednávka č. 2024/118",
			body:           "V příloze zasíláme podklady.",
			wantCategory:   domain.CategoryPurchaseOrder,
			wantConfidence: 0.85,
		},
		{
			name:           "complaint with defect vocabulary",
			subject:        "Reklamace dodávky",
			body:           "Zjistili jsme vadu svaru, zboží je poškozené.",
			wantCategory:   domain.CategoryComplaint,
			wantConfidence: 0.92,
		},
		{
			name:           "delivery status question",
			subject:        "Termín dodání objednávky 5521",
			body:           "Kdy bude zboží expedováno? Prosím o tracking.",
			wantCategory:   domain.CategoryStatusInfo,
			wantConfidence: 0.92,
		},
		{
			name:           "newsletter footer",
			subject:        "Srpnový zpravodaj",
			body:           strings.Repeat("Novinky z oboru. ", 10) + "Pokud si přejete odhlásit se z odběru, klikněte zde. Unsubscribe.",
			wantCategory:   domain.CategoryNewsletter,
			wantConfidence: 0.92,
		},
		{
			name:           "short body with attachments short-circuits",
			subject:        "FW: dokumenty",
			body:           "viz příloha",
			hasAttachments: true,
			wantCategory:   domain.CategoryAttachmentForwarding,
			wantConfidence: 0.85,
		},
		{
			name:    "no keyword evidence defers",
			subject: "Ahoj",
			body:    strings.Repeat("Tady není nic k nalezení. ", 10),
			wantNil: true,
		},
		{
			name:           "long body with attachments does not short-circuit",
			subject:        "Poptávka",
			body:           strings.Repeat("Detailní popis požadavku na výrobu. ", 5),
			hasAttachments: true,
			wantCategory:   domain.CategoryInquiry,
			wantConfidence: 0.85,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Heuristic(tt.subject, tt.body, tt.hasAttachments, len(tt.body))
			if tt.wantNil {
				if got != nil {
					t.Fatalf("Heuristic = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Heuristic = nil, want a result")
			}
			if got.Category != tt.wantCategory {
				t.Errorf("category = %s, want %s", got.Category, tt.wantCategory)
			}
			if got.Confidence != tt.wantConfidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
			if got.Escalate {
				t.Error("escalate = true, heuristic hits never escalate")
			}
			if got.TokensUsed != 0 {
				t.Errorf("tokens used = %d, want 0", got.TokensUsed)
			}
		})
	}
}

// TestHeuristicDeterministic verifies repeated calls on the same input
// yield identical results.
func TestHeuristicDeterministic(t *testing.T) {
	subject := "Poptávka DN200 PN16"
	body := "Prosím o cenovou nabídku."

	first := Heuristic(subject, body, false, len(body))
	for i := 0; i < 10; i++ {
		got := Heuristic(subject, body, false, len(body))
		if got == nil || *got != *first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}

func TestKeywordFallback(t *testing.T) {
	fallback := []domain.Category{
		domain.CategoryComplaint,
		domain.CategoryInquiry,
		domain.CategoryPurchaseOrder,
	}

	t.Run("matches within allowed set", func(t *testing.T) {
		got := KeywordFallback("Reklamace", "Zjistili jsme vadu materiálu.", fallback)
		if got.Category != domain.CategoryComplaint {
			t.Errorf("category = %s, want %s", got.Category, domain.CategoryComplaint)
		}
		if got.Confidence != 0.3 {
			t.Errorf("confidence = %v, want 0.3", got.Confidence)
		}
		if !got.Escalate {
			t.Error("escalate = false, fallback results must escalate")
		}
	})

	t.Run("category outside the set is not used", func(t *testing.T) {
		got := KeywordFallback("Newsletter", "Unsubscribe here.", fallback)
		if got.Category != "" {
			t.Errorf("category = %s, want absent", got.Category)
		}
		if got.Confidence != 0 {
			t.Errorf("confidence = %v, want 0", got.Confidence)
		}
		if !got.Escalate {
			t.Error("escalate = false, want true")
		}
	})
}
