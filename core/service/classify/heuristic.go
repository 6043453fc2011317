package classify

import (
	"fmt"
	"regexp"

	"mailroom/core/domain"
)

// shortBodyLimit is the body length below which a message carrying
// attachments is treated as a bare document forward.
const shortBodyLimit = 100

const (
	confStrong = 0.92 // two or more distinct patterns matched
	confSingle = 0.85 // exactly one pattern matched
)

// categoryRule binds a category to its keyword evidence. Patterns cover
// both the diacritic and ASCII-folded spelling of the Czech vocabulary,
// so "Poptávka" and "poptavka" hit the same rule.
type categoryRule struct {
	category domain.Category
	patterns []*regexp.Regexp
}

func pats(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// rules is ordered: on an equal match count the earlier category wins.
// Commercial-intent categories come first so a message that mentions
// both an order and a newsletter footer lands on the order.
var rules = []categoryRule{
	{domain.CategoryInquiry, pats(
		`popt[áa]vk`,
		`popt[áa]v[áa]me`,
		`cenovou nab[íi]dku`,
		`\bdn\s?\d{2,4}\b`,
		`\bpn\s?\d{1,3}\b`,
		`\bnacen`,
		`kalkulac`,
		`request for quot`,
		`\brfq\b`,
		`\binquiry\b`,
	)},
	{domain.CategoryPurchaseOrder, pats(
		`objedn[áa]vk`,
		`objedn[áa]v[áa]me`,
		`z[áa]vazn[ěe] objedn`,
		`purchase order`,
		`\bpo[-\s]?\d{4,}\b`,
		`potvrzen[íi] objedn`,
	)},
	{domain.CategoryComplaint, pats(
		`reklamac`,
		`reklamujeme`,
		`\bvad[auy]\b`,
		`neshod[auy]`,
		`po[šs]kozen`,
		`st[íi][žz]nost`,
		`complaint`,
		`non[- ]?conform`,
	)},
	{domain.CategoryStatusInfo, pats(
		`stav objedn[áa]vky`,
		`term[íi]n dod[áa]n[íi]`,
		`kdy (?:bude|dostaneme|dorazí|dorazi)`,
		`dodac[íi] lh[ůu]t`,
		`expedic`,
		`order status`,
		`delivery date`,
		`tracking`,
	)},
	{domain.CategoryGeneralInquiry, pats(
		`obecn[ýy] dotaz`,
		`m[áa]m dotaz`,
		`cht[ěe]l[ia]? bych se zeptat`,
		`otev[íi]rac[íi] dob`,
		`kontakt na`,
		`general question`,
	)},
	{domain.CategoryMarketing, pats(
		`nab[íi]z[íi]me v[áa]m`,
		`akčn[íi] nab[íi]dk|akcni nabidk`,
		`slev[auy]\b`,
		`exkluzivn[íi]`,
		`special offer`,
		`discount`,
		`limited time`,
	)},
	{domain.CategoryNewsletter, pats(
		`newsletter`,
		`zpravodaj`,
		`odhl[áa]sit (?:se )?z odb[ěe]ru`,
		`unsubscribe`,
		`mailing list`,
		`view (?:this email )?in (?:your )?browser`,
	)},
}

// Heuristic classifies a message from keyword evidence alone. It is a
// pure function: no I/O, no state, same inputs always give the same
// result. A nil return means no rule matched and the AI stage should
// decide.
func Heuristic(subject, body string, hasAttachments bool, bodyLength int) *domain.ClassificationResult {
	if bodyLength < shortBodyLimit && hasAttachments {
		return (&domain.ClassificationResult{
			Category:   domain.CategoryAttachmentForwarding,
			Confidence: confSingle,
			Reasoning:  "short body with attachments, treated as document forward",
			Source:     "heuristic",
		}).Finalize()
	}

	text := subject + "\n" + body

	best := -1
	bestCount := 0
	for i, rule := range rules {
		count := 0
		for _, p := range rule.patterns {
			if p.MatchString(text) {
				count++
			}
		}
		if count > bestCount {
			best = i
			bestCount = count
		}
	}
	if best < 0 {
		return nil
	}

	conf := confSingle
	if bestCount >= 2 {
		conf = confStrong
	}
	return (&domain.ClassificationResult{
		Category:   rules[best].category,
		Confidence: conf,
		Reasoning:  fmt.Sprintf("%d keyword pattern(s) matched for %s", bestCount, rules[best].category),
		Source:     "heuristic",
	}).Finalize()
}
