package extract

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"mailroom/core/port/out"
)

// OCRService runs optical text extraction over raster images and
// PDF pages. Engine failures surface as errors alongside empty text at
// zero confidence; the caller absorbs them into the finding.
type OCRService struct {
	rasterizer out.PageRasterizer
	recognizer out.TextRecognizer
	log        zerolog.Logger
}

func NewOCRService(rasterizer out.PageRasterizer, recognizer out.TextRecognizer, log zerolog.Logger) *OCRService {
	return &OCRService{
		rasterizer: rasterizer,
		recognizer: recognizer,
		log:        log.With().Str("component", "ocr").Logger(),
	}
}

// ExtractImage recognizes one raster image.
func (s *OCRService) ExtractImage(ctx context.Context, image []byte) (string, float64, error) {
	tokens, err := s.recognizer.Recognize(ctx, image)
	if err != nil {
		return "", 0, err
	}
	text, conf := joinTokens(tokens)
	return text, conf, nil
}

// ExtractPDF rasterizes each page and recognizes them independently.
// Pages are joined with a blank line; the document confidence is the
// average of the per-page confidences. A page the engine cannot read
// counts as a zero-confidence page; only rasterization failure aborts
// the document.
func (s *OCRService) ExtractPDF(ctx context.Context, pdf []byte) (string, float64, error) {
	pages, err := s.rasterizer.RasterizePDF(ctx, pdf)
	if err != nil {
		return "", 0, err
	}
	if len(pages) == 0 {
		return "", 0, nil
	}

	var texts []string
	var confSum float64
	for i, page := range pages {
		text, conf, err := s.ExtractImage(ctx, page)
		if err != nil {
			s.log.Warn().Err(err).Int("page", i+1).Msg("page recognition failed")
		}
		texts = append(texts, text)
		confSum += conf
		s.log.Debug().Int("page", i+1).Float64("confidence", conf).Msg("page recognized")
	}
	return strings.Join(texts, "\n\n"), confSum / float64(len(pages)), nil
}

// joinTokens assembles recognized words into a line of text and
// averages their confidences. Negative confidences are the engine's
// "no detection" sentinel and are discarded.
func joinTokens(tokens []out.OCRToken) (string, float64) {
	var words []string
	var confSum float64
	var scored int
	for _, tok := range tokens {
		if tok.Text != "" {
			words = append(words, tok.Text)
		}
		if tok.Confidence >= 0 {
			confSum += tok.Confidence
			scored++
		}
	}
	if scored == 0 {
		return strings.Join(words, " "), 0
	}
	// Engine confidences are 0-100, findings carry 0-1.
	return strings.Join(words, " "), confSum / float64(scored) / 100
}
