package extract

import (
	"regexp"
	"strings"

	"mailroom/core/domain"
)

const (
	confFilename = 0.90
	confMIME     = 0.85
	confText     = 0.75
	confDefault  = 0.50
)

type filenameRule struct {
	docType    domain.DocumentType
	substrings []string
	extensions []string
}

// filenameRules is tier 1. Substrings cover the diacritic and folded
// Czech spellings used in real attachment names.
var filenameRules = []filenameRule{
	{domain.DocTypeDrawing, []string{"vykres", "výkres", "drawing", "dwg"}, []string{".dxf", ".dwg", ".step", ".stp"}},
	{domain.DocTypeInvoice, []string{"faktura", "invoice", "danovy-doklad", "daňový"}, nil},
	{domain.DocTypeCertificate, []string{"certifikat", "certifikát", "certificate", "atest", "en10204"}, nil},
	{domain.DocTypeOffer, []string{"nabidka", "nabídka", "offer", "quotation"}, nil},
	{domain.DocTypePurchaseOrder, []string{"objednavka", "objednávka", "purchase-order", "purchase_order"}, nil},
	{domain.DocTypeWeldingProcedure, []string{"wps", "wpqr", "svarovaci-postup", "svařovací"}, nil},
	{domain.DocTypeInspectionReport, []string{"inspekce", "inspection", "mereni", "měření", "protokol"}, nil},
}

// cadMIMETypes is tier 2.
var cadMIMETypes = map[string]domain.DocumentType{
	"image/vnd.dxf":        domain.DocTypeDrawing,
	"image/vnd.dwg":        domain.DocTypeDrawing,
	"application/dxf":      domain.DocTypeDrawing,
	"application/acad":     domain.DocTypeDrawing,
	"model/step":           domain.DocTypeDrawing,
	"application/step":     domain.DocTypeDrawing,
	"application/x-step":   domain.DocTypeDrawing,
	"application/vnd.step": domain.DocTypeDrawing,
}

type textSignature struct {
	docType  domain.DocumentType
	patterns []*regexp.Regexp
}

// textSignatures is tier 3: all listed patterns must match.
var textSignatures = []textSignature{
	{domain.DocTypeDrawing, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bdn\s?\d{2,4}\b`),
		regexp.MustCompile(`(?i)\bpn\s?\d{1,3}\b`),
	}},
	{domain.DocTypeInvoice, []*regexp.Regexp{
		regexp.MustCompile(`(?i)di[čc]|vat\s?(?:id|no)`),
		regexp.MustCompile(`(?i)splatnost|due date|payment term`),
	}},
	{domain.DocTypeCertificate, []*regexp.Regexp{
		regexp.MustCompile(`(?i)en\s?10204|inspection certificate|atest`),
	}},
	{domain.DocTypeOffer, []*regexp.Regexp{
		regexp.MustCompile(`(?i)cenov[áa] nab[íi]dka|platnost nab[íi]dky|quotation valid`),
	}},
	{domain.DocTypePurchaseOrder, []*regexp.Regexp{
		regexp.MustCompile(`(?i)objedn[áa]vka|purchase order`),
		regexp.MustCompile(`(?i)dodac[íi] adresa|delivery address|ship to`),
	}},
	{domain.DocTypeWeldingProcedure, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bwps\b|\bwpqr\b|welding procedure|sva[řr]ovac[íi] postup`),
	}},
	{domain.DocTypeInspectionReport, []*regexp.Regexp{
		regexp.MustCompile(`(?i)protokol o m[ěe][řr]en[íi]|inspection report|measurement protocol`),
	}},
}

// DetectType classifies one attachment. The tiers are a hard priority:
// a filename hit is never overridden by MIME or text evidence, and a
// MIME hit is never overridden by text.
func DetectType(filename, contentType, text string) (domain.DocumentType, float64) {
	lower := strings.ToLower(filename)
	for _, rule := range filenameRules {
		for _, sub := range rule.substrings {
			if strings.Contains(lower, sub) {
				return rule.docType, confFilename
			}
		}
		for _, ext := range rule.extensions {
			if strings.HasSuffix(lower, ext) {
				return rule.docType, confFilename
			}
		}
	}

	mime := strings.ToLower(contentType)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if dt, ok := cadMIMETypes[mime]; ok {
		return dt, confMIME
	}

	if text != "" {
		for _, sig := range textSignatures {
			all := true
			for _, p := range sig.patterns {
				if !p.MatchString(text) {
					all = false
					break
				}
			}
			if all {
				return sig.docType, confText
			}
		}
	}

	return domain.DocTypeOther, confDefault
}
