// Package vision detects page text with the Cloud Vision document text API.
package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"
	"golang.org/x/sync/errgroup"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/model"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/utils"
)

// Client is an interface for the vision.ImageAnnotatorClient
// Ref: https://pkg.go.dev/cloud.google.com/go/vision/v2/apiv1
// This interface is used for mocking the vision.ImageAnnotatorClient in unit tests.
type Client interface {
	DetectDocumentText(ctx context.Context, image *visionpb.Image, imageContext *visionpb.ImageContext, opts ...gax.CallOption) (*visionpb.TextAnnotation, error)
}

// Paragraphs further apart than this are OCRed as separate segments of a long page.
const maxParagraphGapPx = 200

type OCR struct {
	client Client
	// Split tall pages at large gaps between paragraphs and OCR each part on its own.
	// Very long images (webtoon strips) otherwise lose text.
	splitLongImages bool
	languageHints   []string
}

func New(client Client, splitLongImages bool, languageHints ...string) *OCR {
	return &OCR{client: client, splitLongImages: splitLongImages, languageHints: languageHints}
}

// Detect returns one detection per recognised paragraph.
func (o *OCR) Detect(ctx context.Context, byteImage []byte) ([]model.Detection, error) {
	annotation, err := o.detect(ctx, byteImage)
	if err != nil {
		return nil, err
	}
	if !o.splitLongImages {
		return toDetections(annotation), nil
	}

	img, _, err := image.Decode(bytes.NewReader(byteImage))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for splitting: %w", err)
	}
	points := splitPoints(annotation, img.Bounds().Dy())
	// [0, imageHeight] means the entire image is processed in one go.
	if len(points) == 2 {
		return toDetections(annotation), nil
	}

	merged, err := o.detectSegments(ctx, img, points)
	if err != nil {
		return nil, err
	}
	return toDetections(merged), nil
}

func (o *OCR) detect(ctx context.Context, byteImage []byte) (*visionpb.TextAnnotation, error) {
	var imageContext *visionpb.ImageContext
	if len(o.languageHints) > 0 {
		imageContext = &visionpb.ImageContext{LanguageHints: o.languageHints}
	}
	annotation, err := o.client.DetectDocumentText(ctx, &visionpb.Image{Content: byteImage}, imageContext)
	if err != nil {
		return nil, fmt.Errorf("failed to detect text: %w", err)
	}
	if annotation == nil {
		return &visionpb.TextAnnotation{}, nil
	}
	return annotation, nil
}

// detectSegments OCRs the horizontal strips between consecutive points concurrently
// and merges their pages back in order, in page coordinates.
func (o *OCR) detectSegments(ctx context.Context, img image.Image, points []int) (*visionpb.TextAnnotation, error) {
	subImager, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("image type %T cannot be split", img)
	}

	bounds := img.Bounds()
	annotations := make([]*visionpb.TextAnnotation, len(points)-1)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < len(points)-1; i++ {
		i, start, end := i, points[i], points[i+1]
		g.Go(func() error {
			segment := subImager.SubImage(image.Rect(bounds.Min.X, bounds.Min.Y+start, bounds.Max.X, bounds.Min.Y+end))
			var buf bytes.Buffer
			if err := png.Encode(&buf, segment); err != nil {
				return fmt.Errorf("failed to encode segment %d: %w", i, err)
			}
			annotation, err := o.detect(ctx, buf.Bytes())
			if err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			adjustVerticalPositions(annotation, int32(start))
			annotations[i] = annotation
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return utils.Reduce(annotations, func(merged *visionpb.TextAnnotation, annotation *visionpb.TextAnnotation) *visionpb.TextAnnotation {
		merged.Pages = append(merged.Pages, annotation.GetPages()...)
		return merged
	}, &visionpb.TextAnnotation{}), nil
}

func paragraphs(annotation *visionpb.TextAnnotation) []*visionpb.Paragraph {
	blocks := utils.FlatMap(annotation.GetPages(), func(page *visionpb.Page) []*visionpb.Block {
		return page.GetBlocks()
	})
	return utils.FlatMap(blocks, func(block *visionpb.Block) []*visionpb.Paragraph {
		return block.GetParagraphs()
	})
}

func toDetections(annotation *visionpb.TextAnnotation) []model.Detection {
	detections := []model.Detection{}
	for _, paragraph := range paragraphs(annotation) {
		text := paragraphText(paragraph)
		box, ok := boundingBox(paragraph.GetBoundingBox())
		if strings.TrimSpace(text) == "" || !ok {
			continue
		}
		detections = append(detections, model.Detection{
			Text:        text,
			BBox:        box,
			Confidence:  float64(paragraph.GetConfidence()),
			Orientation: model.InferOrientation(box, text),
		})
	}
	return detections
}

// paragraphText joins the paragraph's symbols, turning detected breaks into spaces or
// newlines.
func paragraphText(paragraph *visionpb.Paragraph) string {
	var builder strings.Builder
	for _, word := range paragraph.GetWords() {
		for _, symbol := range word.GetSymbols() {
			builder.WriteString(symbol.GetText())
			switch symbol.GetProperty().GetDetectedBreak().GetType() {
			case visionpb.TextAnnotation_DetectedBreak_SPACE, visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
				builder.WriteString(" ")
			case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE, visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
				builder.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(builder.String())
}

func boundingBox(poly *visionpb.BoundingPoly) (geometry.Box, bool) {
	vertices := poly.GetVertices()
	if len(vertices) == 0 {
		return geometry.Box{}, false
	}
	left, top := int32(math.MaxInt32), int32(math.MaxInt32)
	right, bottom := int32(math.MinInt32), int32(math.MinInt32)
	for _, vertex := range vertices {
		left, top = min(left, vertex.GetX()), min(top, vertex.GetY())
		right, bottom = max(right, vertex.GetX()), max(bottom, vertex.GetY())
	}
	return geometry.FromCorners(float64(left), float64(top), float64(right), float64(bottom)), true
}

// splitPoints returns the y coordinates to cut the page at, starting with 0 and ending
// with imageHeight. A cut is placed at the bottom of a paragraph when the next one ends
// more than maxParagraphGapPx further down.
func splitPoints(annotation *visionpb.TextAnnotation, imageHeight int) []int {
	currentHeight := 0
	points := utils.Reduce(paragraphs(annotation), func(points []int, paragraph *visionpb.Paragraph) []int {
		bottom := utils.Reduce(paragraph.GetBoundingBox().GetVertices(), func(bottom int, vertex *visionpb.Vertex) int {
			return max(bottom, int(vertex.GetY()))
		}, 0)
		if bottom-currentHeight > maxParagraphGapPx && currentHeight > points[len(points)-1] && currentHeight < imageHeight {
			points = append(points, currentHeight)
		}
		currentHeight = max(currentHeight, bottom)
		return points
	}, []int{0})

	if points[len(points)-1] != imageHeight {
		points = append(points, imageHeight)
	}
	return points
}

// adjustVerticalPositions shifts every vertex of a segment's annotation by offset so it
// lines up with the full page.
func adjustVerticalPositions(annotation *visionpb.TextAnnotation, offset int32) {
	shift := func(poly *visionpb.BoundingPoly) {
		for _, vertex := range poly.GetVertices() {
			vertex.Y += offset
		}
	}
	for _, page := range annotation.GetPages() {
		for _, block := range page.GetBlocks() {
			shift(block.GetBoundingBox())
			for _, paragraph := range block.GetParagraphs() {
				shift(paragraph.GetBoundingBox())
				for _, word := range paragraph.GetWords() {
					shift(word.GetBoundingBox())
					for _, symbol := range word.GetSymbols() {
						shift(symbol.GetBoundingBox())
					}
				}
			}
		}
	}
}
