package model

import (
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/script"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/utils"
)

// Detection is one OCR result as returned by a provider. Confidence is either in
// [0, 1] or in [0, 100] depending on the provider.
type Detection struct {
	Text        string
	BBox        geometry.Box
	Confidence  float64
	Orientation Orientation
}

type IngestOptions struct {
	// Generates block ids. Defaults to random UUIDs.
	NewID func() string
	// Boxes smaller than this on either axis after clamping are dropped.
	MinSidePx float64
}

// NormalizeConfidence maps provider confidences onto [0, 1]. Values above 1 are
// treated as percentages.
func NormalizeConfidence(confidence float64) float64 {
	if math.IsNaN(confidence) || confidence < 0 {
		return 0
	}
	if confidence > 1 {
		confidence /= 100
	}
	return math.Min(confidence, 1)
}

// Ingest turns OCR detections into text blocks. Boxes are clamped to bounds; blank
// detections and boxes left empty by clamping are dropped.
func Ingest(detections []Detection, bounds geometry.Box, opts IngestOptions) []TextBlock {
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	blocks := make([]TextBlock, 0, len(detections))
	for _, detection := range detections {
		text := strings.TrimSpace(detection.Text)
		if text == "" {
			continue
		}
		box := detection.BBox.ClampTo(bounds)
		if box.IsEmpty() || box.Width < opts.MinSidePx || box.Height < opts.MinSidePx {
			continue
		}
		blocks = append(blocks, TextBlock{
			ID:          newID(),
			BBox:        box,
			SourceText:  StringPtr(text),
			Confidence:  NormalizeConfidence(detection.Confidence),
			Orientation: detection.Orientation,
		})
	}
	return blocks
}

// MergeBubbles collapses each bubble's member blocks into one dialogue block covering
// the bubble. Member text is joined in the bubble's member order: without a separator
// for CJK text, with a space otherwise. Blocks that belong to no bubble are kept as is.
// The merged block takes the bubble id.
func MergeBubbles(blocks []TextBlock, bubbles []Bubble, bounds geometry.Box) []TextBlock {
	byID := make(map[string]TextBlock, len(blocks))
	for _, block := range blocks {
		byID[block.ID] = block
	}

	claimed := make(map[string]bool, len(blocks))
	merged := make([]TextBlock, 0, len(bubbles))
	for _, bubble := range bubbles {
		members := utils.Filter(utils.Map(bubble.MemberBlockIDs, func(id string) TextBlock {
			return byID[id]
		}), func(block TextBlock) bool {
			return block.ID != "" && !claimed[block.ID]
		})
		if len(members) == 0 {
			continue
		}
		for _, member := range members {
			claimed[member.ID] = true
		}
		merged = append(merged, mergeMembers(bubble, members, bounds))
	}

	for _, block := range blocks {
		if !claimed[block.ID] {
			merged = append(merged, block)
		}
	}
	return merged
}

func mergeMembers(bubble Bubble, members []TextBlock, bounds geometry.Box) TextBlock {
	texts := utils.Filter(utils.Map(members, TextBlock.Source), func(text string) bool {
		return text != ""
	})
	separator := " "
	if script.Detect(strings.Join(texts, "")) == script.CJK {
		separator = ""
	}

	vertical := utils.Count(members, func(block TextBlock) bool {
		return block.Orientation == OrientationVertical
	})
	horizontal := utils.Count(members, func(block TextBlock) bool {
		return block.Orientation == OrientationHorizontal
	})
	orientation := OrientationUnspecified
	switch {
	case vertical > horizontal:
		orientation = OrientationVertical
	case horizontal > 0:
		orientation = OrientationHorizontal
	}

	box := bubble.BBox
	if !bounds.IsEmpty() {
		box = box.ClampTo(bounds)
	}

	block := TextBlock{
		ID:   bubble.ID,
		BBox: box,
		Confidence: utils.Reduce(members, func(sum float64, block TextBlock) float64 {
			return sum + block.Confidence
		}, 0) / float64(len(members)),
		Orientation: orientation,
	}
	if len(texts) > 0 {
		block.SourceText = StringPtr(strings.Join(texts, separator))
	}
	return block
}

// InferOrientation guesses the writing direction of a detection whose provider does
// not report one: CJK text in a box much taller than wide is vertical.
func InferOrientation(box geometry.Box, text string) Orientation {
	if script.Detect(text) == script.CJK && box.Height > 1.5*box.Width {
		return OrientationVertical
	}
	return OrientationHorizontal
}
