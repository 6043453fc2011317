package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"
)

// FitzRasterizer renders PDF pages to PNG images with MuPDF.
type FitzRasterizer struct {
	log zerolog.Logger
}

func NewFitzRasterizer(log zerolog.Logger) *FitzRasterizer {
	return &FitzRasterizer{log: log.With().Str("component", "rasterizer").Logger()}
}

func (r *FitzRasterizer) RasterizePDF(ctx context.Context, pdf []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pages := make([][]byte, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.Image(n)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", n+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", n+1, err)
		}
		pages = append(pages, buf.Bytes())
	}

	r.log.Debug().Int("pages", len(pages)).Msg("pdf rasterized")
	return pages, nil
}
