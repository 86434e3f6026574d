package openai

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
)

// PageRasterizer turns a PDF document into JPEG page images.
type PageRasterizer interface {
	Rasterize(pdf []byte, maxPages int) ([][]byte, error)
}

// FitzRasterizer renders PDF pages with MuPDF.
type FitzRasterizer struct {
	Quality int
}

// Rasterize renders at most maxPages pages of pdf as JPEG images
func (r FitzRasterizer) Rasterize(pdf []byte, maxPages int) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}
	if pages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	quality := r.Quality
	if quality <= 0 {
		quality = 85
	}

	images := make([][]byte, 0, pages)
	for i := 0; i < pages; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", i+1, err)
		}
		images = append(images, buf.Bytes())
	}
	return images, nil
}
