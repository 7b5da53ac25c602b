// Package cluster groups raw text detections into dialogue units ("bubbles").
//
// Two strategies share the Clusterer contract: Proximity walks OCR boxes in reading
// order and merges neighbours, Raster finds text clusters from pixel connectivity on
// an edge map. Layout and compositing never depend on which one produced a bubble.
package cluster

import (
	"fmt"
	"math"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/model"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
)

type Clusterer interface {
	// Cluster returns bubbles in reading order. It never fails; at worst it over- or
	// under-merges.
	Cluster(blocks []model.TextBlock) []model.Bubble
}

// PaddingRatio is the fraction of a bubble's extent added on each side of the
// member union to approximate the speech-bubble border.
const PaddingRatio = 0.1

func bubbleID(index int) string {
	return fmt.Sprintf("bubble-%d", index+1)
}

// padBubble expands box by ratio of its extent on every side and optionally clamps it.
func padBubble(box geometry.Box, ratio float64, bounds *geometry.Box) geometry.Box {
	padded := box.Expand(box.Width*ratio, box.Height*ratio)
	if bounds != nil && !bounds.IsEmpty() {
		padded = padded.ClampTo(*bounds)
	}
	return padded
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// aspectScore is 1 for square boxes and decays towards 0 as the box gets elongated.
func aspectScore(box geometry.Box) float64 {
	if box.IsEmpty() {
		return 0
	}
	ratio := box.Width / box.Height
	if ratio > 1 {
		ratio = 1 / ratio
	}
	return clamp01(ratio)
}

// centralityScore is 1 for boxes centred in bounds and 0 at the corners.
func centralityScore(box geometry.Box, bounds geometry.Box) float64 {
	if bounds.IsEmpty() {
		return 0.5
	}
	c, bc := box.Center(), bounds.Center()
	maxDistance := math.Hypot(bounds.Width/2, bounds.Height/2)
	return clamp01(1 - math.Hypot(c.X-bc.X, c.Y-bc.Y)/maxDistance)
}
