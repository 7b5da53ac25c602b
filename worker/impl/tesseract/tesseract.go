// Package tesseract detects page text offline with a local Tesseract installation.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/model"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
)

type OCR struct {
	// Tesseract traineddata names, e.g. "jpn", "jpn_vert" and "eng".
	languages []string
}

func New(languages ...string) *OCR {
	return &OCR{languages: languages}
}

// Detect returns one detection per Tesseract paragraph. Tesseract cannot be
// interrupted, so ctx is only checked before recognition starts.
func (o *OCR) Detect(ctx context.Context, byteImage []byte) ([]model.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A client holds native state and is not safe for concurrent use.
	client := gosseract.NewClient()
	defer client.Close()

	if len(o.languages) > 0 {
		if err := client.SetLanguage(o.languages...); err != nil {
			return nil, fmt.Errorf("failed to set languages %v: %w", o.languages, err)
		}
	}
	if err := client.SetImageFromBytes(byteImage); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_PARA)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	detections := make([]model.Detection, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" || box.Box.Empty() {
			continue
		}
		bbox := geometry.FromRectangle(box.Box)
		detections = append(detections, model.Detection{
			Text: text,
			BBox: bbox,
			// Tesseract reports 0-100; ingestion normalizes it.
			Confidence:  box.Confidence,
			Orientation: model.InferOrientation(bbox, text),
		})
	}
	return detections, nil
}
