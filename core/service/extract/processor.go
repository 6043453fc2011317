package extract

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"mailroom/core/domain"
	"mailroom/pkg/apperr"
)

// extractionFailedNote marks findings whose extraction step erred; the
// document type is still detected from filename and content type.
const extractionFailedNote = "extraction failed"

// Processor extracts text and structured metadata from message
// attachments and detects their document type. Attachments are
// processed in parallel; a failure on one never touches its siblings.
type Processor struct {
	ocr *OCRService
	log zerolog.Logger
}

func NewProcessor(ocr *OCRService, log zerolog.Logger) *Processor {
	return &Processor{
		ocr: ocr,
		log: log.With().Str("component", "extract").Logger(),
	}
}

// Process runs extraction over all attachments of one message and
// returns one finding per attachment, in input order.
func (p *Processor) Process(ctx context.Context, attachments []domain.Attachment) []domain.AttachmentFinding {
	findings := make([]domain.AttachmentFinding, len(attachments))

	var wg sync.WaitGroup
	for i := range attachments {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			findings[i] = p.processOne(ctx, attachments[i])
		}(i)
	}
	wg.Wait()

	return findings
}

// processOne dispatches into exactly one extractor, by extension first
// and declared content-type second, then detects the document type.
func (p *Processor) processOne(ctx context.Context, att domain.Attachment) domain.AttachmentFinding {
	finding := domain.AttachmentFinding{Filename: att.Filename}

	ext := strings.ToLower(filepath.Ext(att.Filename))
	switch {
	case ext == ".dxf" || ext == ".dwg" || isCADMime(att.ContentType, "dxf", "dwg", "acad"):
		cad, text, note := ParseDXF(att.Data)
		finding.CAD = cad
		finding.Text = text
		finding.Note = note
		if note == "" && (text != "" || len(cad.Layers) > 0 || len(cad.Blocks) > 0) {
			finding.Confidence = 1 // structural parse, not probabilistic
		}
	case ext == ".step" || ext == ".stp" || isCADMime(att.ContentType, "step"):
		finding.CAD = ParseSTEP(att.Data)
		if finding.CAD.ProductName != "" || finding.CAD.Material != "" || finding.CAD.ProtocolVersion != "" {
			finding.Confidence = 1
		}
	case ext == ".pdf" || strings.HasPrefix(att.ContentType, "application/pdf"):
		text, conf, err := p.ocr.ExtractPDF(ctx, att.Data)
		if err != nil {
			p.log.Warn().Err(apperr.Extraction(att.Filename, err)).Msg("pdf extraction failed")
			finding.Note = extractionFailedNote
		}
		finding.Text, finding.Confidence = text, conf
	case isRasterImage(ext, att.ContentType):
		text, conf, err := p.ocr.ExtractImage(ctx, att.Data)
		if err != nil {
			p.log.Warn().Err(apperr.Extraction(att.Filename, err)).Msg("image extraction failed")
			finding.Note = extractionFailedNote
		}
		finding.Text, finding.Confidence = text, conf
	default:
		// Unsupported type: no extraction, straight to detection.
	}

	finding.DocType, finding.TypeConfidence = DetectType(att.Filename, att.ContentType, finding.Text)

	p.log.Debug().
		Str("filename", att.Filename).
		Str("doc_type", string(finding.DocType)).
		Float64("confidence", finding.Confidence).
		Msg("attachment processed")
	return finding
}

func isCADMime(contentType string, keywords ...string) bool {
	ct := strings.ToLower(contentType)
	for _, kw := range keywords {
		if strings.Contains(ct, kw) {
			return true
		}
	}
	return false
}

func isRasterImage(ext, contentType string) bool {
	switch ext {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp":
		return true
	}
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}
