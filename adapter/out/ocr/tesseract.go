// Package ocr binds the optical recognition and PDF rasterization
// ports to Tesseract and MuPDF.
package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"mailroom/core/port/out"
)

// TesseractRecognizer recognizes text with a bilingual Tesseract model.
// The underlying client is not safe for concurrent use, so each call
// gets its own.
type TesseractRecognizer struct {
	languages []string
	log       zerolog.Logger
}

func NewTesseractRecognizer(languages []string, log zerolog.Logger) *TesseractRecognizer {
	if len(languages) == 0 {
		languages = []string{"ces", "eng"}
	}
	return &TesseractRecognizer{
		languages: languages,
		log:       log.With().Str("component", "tesseract").Logger(),
	}
}

func (r *TesseractRecognizer) Recognize(ctx context.Context, image []byte) ([]out.OCRToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.languages...); err != nil {
		return nil, fmt.Errorf("set languages %s: %w", strings.Join(r.languages, "+"), err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	tokens := make([]out.OCRToken, 0, len(boxes))
	for _, box := range boxes {
		tokens = append(tokens, out.OCRToken{
			Text:       strings.TrimSpace(box.Word),
			Confidence: box.Confidence,
		})
	}
	return tokens, nil
}
