package cluster

import (
	"math"
	"sort"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/model"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/utils"
)

type Mode int

const (
	// ModeIsotropic merges neighbours whose center distance is below DistanceFactor
	// times their average side length.
	ModeIsotropic Mode = iota
	// ModePerAxis merges neighbours whose edge gaps stay within per-axis multiples of
	// the average block dimension for the detected orientation.
	ModePerAxis
)

type Linkage int

const (
	// LinkageGreedy compares each block only with its predecessor in reading order and
	// starts a new bubble whenever that test fails.
	LinkageGreedy Linkage = iota
	// LinkageSingle links each block to every earlier block that passes the merge test,
	// so a block can rejoin a bubble after an unrelated block came between them.
	LinkageSingle
)

// Params are the tunable thresholds of the proximity heuristic. The factors were
// chosen empirically and should be recalibrated against real pages.
type Params struct {
	Mode    Mode
	Linkage Linkage
	// Blocks whose leading edges are within this many pixels share a row (or a column
	// for vertical text).
	RowTolerancePx float64
	// Isotropic merge threshold as a multiple of the average side length.
	DistanceFactor float64
	// Per-axis thresholds: allowed gap along the reading direction and across it.
	AlongGapFactor float64
	CrossGapFactor float64
	// Fraction of the bubble extent added on each side.
	PaddingRatio float64
	// When set, padded bubble boxes are clamped to these bounds.
	Bounds *geometry.Box
}

func DefaultParams() Params {
	return Params{
		Mode:           ModeIsotropic,
		Linkage:        LinkageGreedy,
		RowTolerancePx: 25,
		DistanceFactor: 1.5,
		AlongGapFactor: 2.5,
		CrossGapFactor: 0.5,
		PaddingRatio:   PaddingRatio,
	}
}

func (p Params) withDefaults() Params {
	defaults := DefaultParams()
	if p.RowTolerancePx <= 0 {
		p.RowTolerancePx = defaults.RowTolerancePx
	}
	if p.DistanceFactor <= 0 {
		p.DistanceFactor = defaults.DistanceFactor
	}
	if p.AlongGapFactor <= 0 {
		p.AlongGapFactor = defaults.AlongGapFactor
	}
	if p.CrossGapFactor <= 0 {
		p.CrossGapFactor = defaults.CrossGapFactor
	}
	if p.PaddingRatio < 0 {
		p.PaddingRatio = defaults.PaddingRatio
	}
	return p
}

// Proximity clusters OCR boxes by walking them in reading order.
type Proximity struct {
	params Params
}

func NewProximity(params Params) *Proximity {
	return &Proximity{params: params.withDefaults()}
}

func (p *Proximity) Cluster(blocks []model.TextBlock) []model.Bubble {
	if len(blocks) == 0 {
		return []model.Bubble{}
	}

	orientation := DetectOrientation(blocks, p.params.RowTolerancePx)
	sorted := ReadingOrder(blocks, orientation, p.params.RowTolerancePx)

	var groups [][]model.TextBlock
	if p.params.Linkage == LinkageSingle {
		groups = p.singleLinkage(sorted, orientation)
	} else {
		groups = p.greedy(sorted, orientation)
	}

	bubbles := make([]model.Bubble, 0, len(groups))
	for i, members := range groups {
		bubbles = append(bubbles, p.closeBubble(i, members))
	}
	return bubbles
}

// greedy walks sorted once, keeping a block in the open bubble while it is close to the
// block before it.
func (p *Proximity) greedy(sorted []model.TextBlock, orientation model.Orientation) [][]model.TextBlock {
	groups := [][]model.TextBlock{{sorted[0]}}
	for i := 1; i < len(sorted); i++ {
		last := len(groups) - 1
		if p.shouldMerge(sorted[i-1].BBox, sorted[i].BBox, orientation) {
			groups[last] = append(groups[last], sorted[i])
			continue
		}
		groups = append(groups, []model.TextBlock{sorted[i]})
	}
	return groups
}

func (p *Proximity) singleLinkage(sorted []model.TextBlock, orientation model.Orientation) [][]model.TextBlock {
	parent := make([]int, len(sorted))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := 1; i < len(sorted); i++ {
		for j := i - 1; j >= 0; j-- {
			if !p.shouldMerge(sorted[j].BBox, sorted[i].BBox, orientation) {
				continue
			}
			ri, rj := find(i), find(j)
			// The root is always the earliest block so groups keep reading order.
			if ri < rj {
				parent[rj] = ri
			} else if rj < ri {
				parent[ri] = rj
			}
		}
	}

	index := map[int]int{}
	var groups [][]model.TextBlock
	for i, block := range sorted {
		root := find(i)
		at, ok := index[root]
		if !ok {
			at = len(groups)
			index[root] = at
			groups = append(groups, nil)
		}
		groups[at] = append(groups[at], block)
	}
	return groups
}

func (p *Proximity) shouldMerge(previous, current geometry.Box, orientation model.Orientation) bool {
	if p.params.Mode == ModePerAxis {
		gapX := math.Max(0, math.Max(previous.X, current.X)-math.Min(previous.Right(), current.Right()))
		gapY := math.Max(0, math.Max(previous.Y, current.Y)-math.Min(previous.Bottom(), current.Bottom()))
		averageWidth := (previous.Width + current.Width) / 2
		averageHeight := (previous.Height + current.Height) / 2
		if orientation == model.OrientationVertical {
			return gapY <= p.params.AlongGapFactor*averageHeight && gapX <= p.params.CrossGapFactor*averageWidth
		}
		return gapX <= p.params.AlongGapFactor*averageWidth && gapY <= p.params.CrossGapFactor*averageHeight
	}

	averageSize := (previous.Width + previous.Height + current.Width + current.Height) / 4
	return geometry.DistanceCenters(previous, current) < p.params.DistanceFactor*averageSize
}

func (p *Proximity) closeBubble(index int, members []model.TextBlock) model.Bubble {
	union := geometry.UnionAll(utils.Map(members, func(block model.TextBlock) geometry.Box {
		return block.BBox
	})...)
	box := padBubble(union, p.params.PaddingRatio, p.params.Bounds)

	meanConfidence := utils.Reduce(members, func(sum float64, block model.TextBlock) float64 {
		return sum + block.Confidence
	}, 0) / float64(len(members))
	centrality := 0.5
	if p.params.Bounds != nil {
		centrality = centralityScore(box, *p.params.Bounds)
	}

	return model.Bubble{
		ID:   bubbleID(index),
		BBox: box,
		MemberBlockIDs: utils.Map(members, func(block model.TextBlock) string {
			return block.ID
		}),
		Score: clamp01(0.4*aspectScore(box) + 0.3*clamp01(meanConfidence) + 0.3*centrality),
	}
}

// DetectOrientation decides the page's writing direction. Explicit block orientations
// win by majority when any are set; otherwise consecutive blocks in horizontal reading
// order vote by whether their vertical displacement exceeds the horizontal one.
// Ties resolve to horizontal.
func DetectOrientation(blocks []model.TextBlock, rowTolerancePx float64) model.Orientation {
	vertical := utils.Count(blocks, func(block model.TextBlock) bool {
		return block.Orientation == model.OrientationVertical
	})
	horizontal := utils.Count(blocks, func(block model.TextBlock) bool {
		return block.Orientation == model.OrientationHorizontal
	})
	if vertical+horizontal > 0 {
		if vertical > horizontal {
			return model.OrientationVertical
		}
		return model.OrientationHorizontal
	}

	sorted := ReadingOrder(blocks, model.OrientationHorizontal, rowTolerancePx)
	vertical, horizontal = 0, 0
	for i := 1; i < len(sorted); i++ {
		a, b := sorted[i-1].BBox.Center(), sorted[i].BBox.Center()
		dx, dy := math.Abs(b.X-a.X), math.Abs(b.Y-a.Y)
		switch {
		case dy > dx:
			vertical++
		case dx > dy:
			horizontal++
		}
	}
	if vertical > horizontal {
		return model.OrientationVertical
	}
	return model.OrientationHorizontal
}

// ReadingOrder sorts blocks for the given orientation. Horizontal text reads rows top to
// bottom and each row left to right; vertical text reads columns right to left and each
// column top to bottom. The input slice is not modified.
func ReadingOrder(blocks []model.TextBlock, orientation model.Orientation, tolerancePx float64) []model.TextBlock {
	sorted := append([]model.TextBlock(nil), blocks...)

	if orientation == model.OrientationVertical {
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].BBox.Right() > sorted[j].BBox.Right()
		})
		return banded(sorted, func(block model.TextBlock) float64 {
			return -block.BBox.Right()
		}, func(block model.TextBlock) float64 {
			return block.BBox.Y
		}, tolerancePx)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BBox.Y < sorted[j].BBox.Y
	})
	return banded(sorted, func(block model.TextBlock) float64 {
		return block.BBox.Y
	}, func(block model.TextBlock) float64 {
		return block.BBox.X
	}, tolerancePx)
}

// banded groups blocks already sorted by primary into bands of the given tolerance,
// measured from each band's first block, and sorts every band by secondary.
func banded(sorted []model.TextBlock, primary, secondary func(model.TextBlock) float64, tolerancePx float64) []model.TextBlock {
	result := make([]model.TextBlock, 0, len(sorted))
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && primary(sorted[end])-primary(sorted[start]) <= tolerancePx {
			end++
		}
		band := sorted[start:end]
		sort.SliceStable(band, func(i, j int) bool {
			return secondary(band[i]) < secondary(band[j])
		})
		result = append(result, band...)
		start = end
	}
	return result
}
