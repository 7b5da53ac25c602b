package cluster

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/model"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/utils"
)

// RasterParams tune the pixel-connectivity clusterer. Like the proximity factors these
// are empirical starting points.
type RasterParams struct {
	// Gaussian blur applied before edge detection.
	BlurSigma float64
	// Sobel magnitude (0-255 scale) above which a pixel counts as an edge.
	EdgeThreshold float64
	// Side of the square grid cells the edge map is pooled into.
	CellSizePx int
	// Minimum fraction of edge pixels for a cell to be lit.
	CellEdgeFraction float64
	// Lit cells are dilated by this many cells to bridge gaps between glyphs.
	DilateCells int
	// Plausible bubble area as a fraction of the image area.
	MinAreaRatio float64
	MaxAreaRatio float64
	// Plausible width/height ratio.
	MinAspect float64
	MaxAspect float64
	PaddingRatio float64
}

func DefaultRasterParams() RasterParams {
	return RasterParams{
		BlurSigma:        1.0,
		EdgeThreshold:    80,
		CellSizePx:       8,
		CellEdgeFraction: 0.04,
		DilateCells:      1,
		MinAreaRatio:     0.0005,
		MaxAreaRatio:     0.25,
		MinAspect:        0.1,
		MaxAspect:        10,
		PaddingRatio:     PaddingRatio,
	}
}

// Raster clusters text by connectivity of an edge-detected binary image. It is used
// when OCR lines are unavailable or untrustworthy; blocks passed to Cluster are
// assigned to the bubble containing their center.
type Raster struct {
	img    image.Image
	params RasterParams
}

func NewRaster(img image.Image, params RasterParams) *Raster {
	defaults := DefaultRasterParams()
	if params.CellSizePx <= 0 {
		params.CellSizePx = defaults.CellSizePx
	}
	if params.EdgeThreshold <= 0 {
		params.EdgeThreshold = defaults.EdgeThreshold
	}
	if params.CellEdgeFraction <= 0 {
		params.CellEdgeFraction = defaults.CellEdgeFraction
	}
	if params.MaxAreaRatio <= 0 {
		params.MaxAreaRatio = defaults.MaxAreaRatio
	}
	if params.MaxAspect <= 0 {
		params.MaxAspect = defaults.MaxAspect
	}
	if params.DilateCells < 0 {
		params.DilateCells = 0
	}
	return &Raster{img: img, params: params}
}

// Cluster detects bubbles on the image and attaches the given blocks to them. Blocks
// whose center lies in no detected bubble each get a bubble of their own, so every
// block ends up in exactly one bubble. Detected regions that no block falls into are
// dropped; Detect still reports them.
func (r *Raster) Cluster(blocks []model.TextBlock) []model.Bubble {
	detected := r.Detect()
	bounds := geometry.FromRectangle(r.img.Bounds())

	members := make([][]string, len(detected))
	var unmatched []model.TextBlock
	for _, block := range ReadingOrder(blocks, model.OrientationHorizontal, float64(r.params.CellSizePx)) {
		center := block.BBox.Center()
		index := -1
		for i, bubble := range detected {
			if geometry.Contains(bubble.BBox, center) {
				index = i
				break
			}
		}
		if index < 0 {
			unmatched = append(unmatched, block)
			continue
		}
		members[index] = append(members[index], block.ID)
	}

	bubbles := make([]model.Bubble, 0, len(detected)+len(unmatched))
	for i, bubble := range detected {
		if len(members[i]) == 0 {
			continue
		}
		bubble.MemberBlockIDs = members[i]
		bubbles = append(bubbles, bubble)
	}
	for _, block := range unmatched {
		bubbles = append(bubbles, model.Bubble{
			BBox:           padBubble(block.BBox, r.params.PaddingRatio, &bounds),
			MemberBlockIDs: []string{block.ID},
			Score:          clamp01(0.5 * block.Confidence),
		})
	}
	for i := range bubbles {
		bubbles[i].ID = bubbleID(i)
	}
	return bubbles
}

// Detect returns plausible text clusters in reading order with no members.
func (r *Raster) Detect() []model.Bubble {
	srcBounds := r.img.Bounds()
	width, height := srcBounds.Dx(), srcBounds.Dy()
	if width == 0 || height == 0 {
		return []model.Bubble{}
	}

	gray := imaging.Grayscale(r.img)
	if r.params.BlurSigma > 0 {
		gray = imaging.Blur(gray, r.params.BlurSigma)
	}
	edges := sobelEdges(gray, r.params.EdgeThreshold)

	cell := r.params.CellSizePx
	cols, rows := (width+cell-1)/cell, (height+cell-1)/cell
	grid := make([]byte, cols*rows)
	for gy := 0; gy < rows; gy++ {
		for gx := 0; gx < cols; gx++ {
			count, area := 0, 0
			for y := gy * cell; y < min((gy+1)*cell, height); y++ {
				for x := gx * cell; x < min((gx+1)*cell, width); x++ {
					area++
					if edges[y*width+x] {
						count++
					}
				}
			}
			if area > 0 && float64(count)/float64(area) >= r.params.CellEdgeFraction {
				grid[gy*cols+gx] = 1
			}
		}
	}
	grid = dilateGrid(grid, cols, rows, r.params.DilateCells)

	imageBox := geometry.NewBox(0, 0, float64(width), float64(height))
	imageArea := imageBox.Area()
	visited := make([]byte, len(grid))
	var candidates []model.Bubble
	for gy := 0; gy < rows; gy++ {
		for gx := 0; gx < cols; gx++ {
			idx := gy*cols + gx
			if grid[idx] == 0 || visited[idx] != 0 {
				continue
			}
			cells := floodFill(grid, visited, gx, gy, cols, rows)
			box := geometry.FromCorners(
				float64(cells.Min.X*cell),
				float64(cells.Min.Y*cell),
				math.Min(float64(cells.Max.X*cell), float64(width)),
				math.Min(float64(cells.Max.Y*cell), float64(height)),
			)
			if !r.plausible(box, imageArea) {
				continue
			}
			candidates = append(candidates, model.Bubble{
				BBox:  box,
				Score: r.score(box, imageBox),
			})
		}
	}

	asBlocks := utils.Map(candidates, func(bubble model.Bubble) model.TextBlock {
		return model.TextBlock{BBox: bubble.BBox, Confidence: bubble.Score}
	})
	ordered := ReadingOrder(asBlocks, model.OrientationHorizontal, float64(cell*2))

	offsetX, offsetY := float64(srcBounds.Min.X), float64(srcBounds.Min.Y)
	srcBox := geometry.FromRectangle(srcBounds)
	bubbles := make([]model.Bubble, 0, len(ordered))
	for i, block := range ordered {
		box := block.BBox
		box.X += offsetX
		box.Y += offsetY
		bubbles = append(bubbles, model.Bubble{
			ID:             bubbleID(i),
			BBox:           padBubble(box, r.params.PaddingRatio, &srcBox),
			MemberBlockIDs: []string{},
			Score:          block.Confidence,
		})
	}
	return bubbles
}

func (r *Raster) plausible(box geometry.Box, imageArea float64) bool {
	if box.IsEmpty() {
		return false
	}
	areaRatio := box.Area() / imageArea
	if areaRatio < r.params.MinAreaRatio || areaRatio > r.params.MaxAreaRatio {
		return false
	}
	aspect := box.Width / box.Height
	return aspect >= r.params.MinAspect && aspect <= r.params.MaxAspect
}

// score combines size, shape, position and lightness contrast into [0, 1].
func (r *Raster) score(box, imageBox geometry.Box) float64 {
	// Mid-sized regions (about 2% of the page) are the most bubble-like.
	areaRatio := box.Area() / imageBox.Area()
	size := clamp01(1 - math.Abs(math.Log10(areaRatio/0.02))/2)
	return clamp01(0.3*size + 0.2*aspectScore(box) + 0.2*centralityScore(box, imageBox) + 0.3*r.contrast(box))
}

// contrast is the spread of CIE L* lightness sampled inside the box; dark glyphs on a
// light balloon give values close to 1.
func (r *Raster) contrast(box geometry.Box) float64 {
	rect := box.Rectangle().Add(r.img.Bounds().Min).Intersect(r.img.Bounds())
	step := max(1, min(rect.Dx(), rect.Dy())/16)
	minL, maxL := 1.0, 0.0
	for y := rect.Min.Y; y < rect.Max.Y; y += step {
		for x := rect.Min.X; x < rect.Max.X; x += step {
			c, ok := colorful.MakeColor(r.img.At(x, y))
			if !ok {
				continue
			}
			l, _, _ := c.Lab()
			minL = math.Min(minL, l)
			maxL = math.Max(maxL, l)
		}
	}
	if maxL < minL {
		return 0
	}
	return clamp01(maxL - minL)
}

// sobelEdges returns a row-major edge mask for an image whose bounds start at the origin.
func sobelEdges(gray *image.NRGBA, threshold float64) []bool {
	width, height := gray.Bounds().Dx(), gray.Bounds().Dy()
	at := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x*4])
	}

	edges := make([]bool, width*height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			edges[y*width+x] = math.Hypot(gx, gy) >= threshold
		}
	}
	return edges
}

func dilateGrid(grid []byte, cols, rows, radius int) []byte {
	if radius <= 0 {
		return grid
	}
	result := make([]byte, len(grid))
	for gy := 0; gy < rows; gy++ {
		for gx := 0; gx < cols; gx++ {
			if grid[gy*cols+gx] == 0 {
				continue
			}
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := gx+dx, gy+dy
					if nx >= 0 && nx < cols && ny >= 0 && ny < rows {
						result[ny*cols+nx] = 1
					}
				}
			}
		}
	}
	return result
}

// floodFill marks the 4-connected lit region containing (startX, startY) and returns
// its bounds in cell coordinates.
func floodFill(grid, visited []byte, startX, startY, cols, rows int) image.Rectangle {
	bounds := image.Rect(startX, startY, startX+1, startY+1)
	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= cols || p.Y < 0 || p.Y >= rows {
			continue
		}
		idx := p.Y*cols + p.X
		if visited[idx] != 0 || grid[idx] == 0 {
			continue
		}
		visited[idx] = 1
		bounds = bounds.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

		stack = append(stack,
			image.Point{X: p.X - 1, Y: p.Y},
			image.Point{X: p.X + 1, Y: p.Y},
			image.Point{X: p.X, Y: p.Y - 1},
			image.Point{X: p.X, Y: p.Y + 1},
		)
	}
	return bounds
}
