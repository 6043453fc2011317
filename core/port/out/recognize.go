package out

import "context"

// OCRToken is a single recognized word with its confidence in [0,100].
// Negative confidence is the engine's "no detection" sentinel and is
// discarded by the extraction service.
type OCRToken struct {
	Text       string
	Confidence float64
}

// TextRecognizer runs optical text recognition over one raster image.
type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte) ([]OCRToken, error)
}

// PageRasterizer renders each page of a PDF document to a raster image.
type PageRasterizer interface {
	RasterizePDF(ctx context.Context, pdf []byte) ([][]byte, error)
}
