package reviewer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"curator/internal/core"
	"curator/internal/objectstore"
)

// extractFigures pulls every raster image out of the PDF, keeping only
// those meeting the configured size floor, and uploads each to the
// object store under figures/{arxivID}/fig_{index}.{ext}. Figures are
// kept in PDF extraction order with no caption-proximity heuristic
// (see DESIGN.md).
func extractFigures(ctx context.Context, store *objectstore.Store, arxivID string, pdfBytes []byte, minWidth, minHeight int) ([]core.Figure, error) {
	images, err := api.ExtractImagesRaw(bytes.NewReader(pdfBytes), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("extract images: %w", err)
	}

	var figures []core.Figure
	kept := 0
	for _, img := range images {
		data, err := io.ReadAll(img.Reader)
		if err != nil {
			continue
		}

		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			continue
		}
		if cfg.Width < minWidth || cfg.Height < minHeight {
			continue
		}

		ext := img.FileType
		if ext == "" {
			ext = "png"
		}
		key := objectstore.Key(arxivID, kept, ext)
		contentType := "image/" + ext

		url, err := store.Upload(ctx, key, data, contentType)
		if err != nil {
			return nil, fmt.Errorf("upload figure %d for %s: %w", kept, arxivID, err)
		}

		figures = append(figures, core.Figure{
			ArxivID:       arxivID,
			FigureIndex:   kept,
			ObjectKey:     key,
			URL:           url,
			Width:         cfg.Width,
			Height:        cfg.Height,
			FileSizeBytes: len(data),
		})
		kept++
	}
	return figures, nil
}
