// Package documentai detects page text with a Document AI OCR processor.
package documentai

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/model"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/utils"
)

// Client is an interface for the DocumentProcessorClient.
// Ref: https://pkg.go.dev/cloud.google.com/go/documentai
// This interface is used for mocking the documentai.DocumentProcessorClient in tests.
type Client interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
}

type Processor struct {
	// E.g., special-tf-prod
	ProjectID string
	// E.g., us
	Location string
	// E.g., 98dae69a95e1906
	ProcessorID string
}

func (p Processor) Name() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", p.ProjectID, p.Location, p.ProcessorID)
}

type OCR struct {
	client        Client
	processor     Processor
	languageHints []string
}

func New(client Client, processor Processor, languageHints ...string) *OCR {
	return &OCR{client: client, processor: processor, languageHints: languageHints}
}

// Detect returns one detection per paragraph of the processed document.
func (o *OCR) Detect(ctx context.Context, byteImage []byte) ([]model.Detection, error) {
	ocrConfig := &documentaipb.OcrConfig{
		PremiumFeatures: &documentaipb.OcrConfig_PremiumFeatures{
			EnableSelectionMarkDetection: true,
		},
	}
	if len(o.languageHints) > 0 {
		ocrConfig.Hints = &documentaipb.OcrConfig_Hints{LanguageHints: o.languageHints}
	}

	response, err := o.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: o.processor.Name(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  byteImage,
				MimeType: http.DetectContentType(byteImage),
			},
		},
		ProcessOptions: &documentaipb.ProcessOptions{OcrConfig: ocrConfig},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process document: %w", err)
	}
	return toDetections(response.GetDocument()), nil
}

// Document structure:
// Document
//
//	├── Text
//	└── Pages []Document_Page
//	     ├── Dimension (Width, Height)
//	     └── Paragraphs []Document_Page_Paragraph
//	          └── Layout
//	               ├── TextAnchor
//	               │    └── TextSegments [](StartIndex, EndIndex) into Document.Text
//	               ├── BoundingPoly (Vertices or NormalizedVertices)
//	               └── Confidence
func toDetections(document *documentaipb.Document) []model.Detection {
	text := []rune(document.GetText())
	return utils.FlatMap(document.GetPages(), func(page *documentaipb.Document_Page) []model.Detection {
		detections := []model.Detection{}
		for _, paragraph := range page.GetParagraphs() {
			layout := paragraph.GetLayout()
			content := strings.TrimSpace(anchorText(text, layout.GetTextAnchor()))
			box, ok := boundingBox(layout.GetBoundingPoly(), page.GetDimension())
			if content == "" || !ok {
				continue
			}
			detections = append(detections, model.Detection{
				Text:        content,
				BBox:        box,
				Confidence:  float64(layout.GetConfidence()),
				Orientation: model.InferOrientation(box, content),
			})
		}
		return detections
	})
}

func anchorText(text []rune, anchor *documentaipb.Document_TextAnchor) string {
	return strings.Join(utils.Map(anchor.GetTextSegments(), func(segment *documentaipb.Document_TextAnchor_TextSegment) string {
		start := min(max(segment.GetStartIndex(), 0), int64(len(text)))
		end := min(max(segment.GetEndIndex(), start), int64(len(text)))
		return string(text[start:end])
	}), "")
}

// boundingBox prefers pixel vertices and falls back to normalized ones scaled by the
// page dimension.
func boundingBox(poly *documentaipb.BoundingPoly, dimension *documentaipb.Document_Page_Dimension) (geometry.Box, bool) {
	type point struct{ x, y float64 }
	var points []point
	if vertices := poly.GetVertices(); len(vertices) > 0 {
		points = utils.Map(vertices, func(vertex *documentaipb.Vertex) point {
			return point{float64(vertex.GetX()), float64(vertex.GetY())}
		})
	} else if dimension.GetWidth() > 0 && dimension.GetHeight() > 0 {
		points = utils.Map(poly.GetNormalizedVertices(), func(vertex *documentaipb.NormalizedVertex) point {
			return point{float64(vertex.GetX() * dimension.GetWidth()), float64(vertex.GetY() * dimension.GetHeight())}
		})
	}
	if len(points) == 0 {
		return geometry.Box{}, false
	}

	left, top := math.Inf(1), math.Inf(1)
	right, bottom := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		left, top = min(left, p.x), min(top, p.y)
		right, bottom = max(right, p.x), max(bottom, p.y)
	}
	return geometry.FromCorners(left, top, right, bottom), true
}
