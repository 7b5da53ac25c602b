// Package compositor draws translated text blocks onto a copy of a page image.
package compositor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"strings"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	_ "golang.org/x/image/webp"

	enginefont "github.com/childhoods-end/v0-manga-flow-sub000/engine/font"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/layout"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/measure"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/model"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/script"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
)

var (
	ErrImageDecode      = errors.New("failed to decode source image")
	ErrImageEncode      = errors.New("failed to encode rendered image")
	ErrDegenerateRegion = errors.New("region has no drawable area")
	ErrInpaint          = errors.New("failed to inpaint masked regions")
)

// DefaultMaskColor is a near-opaque white that hides the original lettering.
var DefaultMaskColor color.Color = color.NRGBA{R: 255, G: 255, B: 255, A: 245}

type Options struct {
	MaskOriginalRegions bool
	// Fill for masked regions. Defaults to DefaultMaskColor.
	MaskColor color.Color
	// Extra pixels masked around every block, clamped to the image.
	MaskPaddingPx int
	// Text colour. When nil, black or white is picked for contrast with the region
	// behind the text.
	TextColor color.Color
	Style     layout.Style
	// When set together with MaskOriginalRegions, masked regions are reconstructed by
	// the inpainter instead of being filled with MaskColor.
	Inpainter Inpainter
	// Measures and draws the text. When nil, a TrueType measurer over the compositor's
	// fonts is created for the call. An injected measurer is not closed.
	Measurer measure.FaceMeasurer
}

type BlockFailure struct {
	BlockID string
	Err     error
}

type Report struct {
	Rendered  []string
	Truncated []string
	Skipped   []BlockFailure
}

type Compositor struct {
	fonts  enginefont.Provider
	logger *slog.Logger
}

func New(fonts enginefont.Provider, logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{fonts: fonts, logger: logger}
}

// planned is a block whose layout succeeded and that will be drawn.
type planned struct {
	block  model.TextBlock
	box    geometry.Box
	style  layout.Style
	result layout.Result
	face   font.Face
}

// Composite renders blocks onto a copy of img in input order. Blocks without a
// translation contribute nothing. A block whose measurement fails or whose region is
// degenerate is skipped and reported; an invalid style aborts the whole call. img is
// never modified.
func (c *Compositor) Composite(img image.Image, blocks []model.TextBlock, opts Options) (*image.RGBA, Report, error) {
	report := Report{Rendered: []string{}, Truncated: []string{}, Skipped: []BlockFailure{}}
	if err := opts.Style.Validate(); err != nil {
		return nil, report, err
	}
	maskColor := opts.MaskColor
	if maskColor == nil {
		maskColor = DefaultMaskColor
	}

	measurer := opts.Measurer
	if measurer == nil {
		trueType := measure.NewTrueType(c.fonts)
		defer trueType.Close()
		measurer = trueType
	}
	engine := layout.New(measurer)
	bounds := geometry.FromRectangle(img.Bounds())

	plans := make([]planned, 0, len(blocks))
	for _, block := range blocks {
		if !block.HasTranslation() {
			continue
		}
		plan, err := c.plan(engine, measurer, block, bounds, opts.Style)
		if errors.Is(err, layout.ErrInvalidStyle) {
			return nil, report, err
		}
		if err != nil {
			c.logger.Warn("skipping text block", slog.String("block_id", block.ID), slog.Any("error", err))
			report.Skipped = append(report.Skipped, BlockFailure{BlockID: block.ID, Err: err})
			continue
		}
		plans = append(plans, plan)
	}

	base := img
	inpainting := opts.MaskOriginalRegions && opts.Inpainter != nil
	if inpainting && len(plans) > 0 {
		mask := image.NewAlpha(img.Bounds())
		for _, plan := range plans {
			fillAlpha(mask, maskRect(plan.box, opts.MaskPaddingPx, img.Bounds()))
		}
		inpainted, err := opts.Inpainter.Inpaint(img, mask)
		if err != nil {
			return nil, report, fmt.Errorf("%w: %w", ErrInpaint, err)
		}
		base = inpainted
	}

	// NewContextForImage draws into a fresh RGBA copy.
	dc := gg.NewContextForImage(base)
	for _, plan := range plans {
		background := maskColor
		if opts.MaskOriginalRegions && !inpainting {
			rect := maskRect(plan.box, opts.MaskPaddingPx, img.Bounds())
			dc.SetColor(maskColor)
			dc.DrawRectangle(float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()))
			dc.Fill()
		} else {
			background = meanColor(dc.Image(), plan.box.Rectangle())
		}

		dc.SetFontFace(plan.face)
		textColor := opts.TextColor
		if textColor == nil {
			textColor = contrastingColor(background)
		}
		dc.SetColor(textColor)
		for _, placement := range plan.result.Placements {
			dc.DrawStringAnchored(placement.Text, placement.X, placement.Y+placement.Height/2, 0, 0.5)
		}

		report.Rendered = append(report.Rendered, plan.block.ID)
		if plan.result.Truncated {
			report.Truncated = append(report.Truncated, plan.block.ID)
		}
	}

	c.logger.Debug("composited page",
		slog.Int("rendered", len(report.Rendered)),
		slog.Int("skipped", len(report.Skipped)),
	)
	return dc.Image().(*image.RGBA), report, nil
}

// plan lays out one block and resolves the face it is drawn with. Nothing is drawn, so
// a failing block leaves its region untouched.
func (c *Compositor) plan(engine *layout.Engine, measurer measure.FaceMeasurer, block model.TextBlock, bounds geometry.Box, base layout.Style) (planned, error) {
	text := block.Translation()
	style := base
	if style.WritingMode == layout.WritingAuto {
		style.WritingMode = layout.WritingHorizontal
		if block.Orientation == model.OrientationVertical && script.Detect(text) == script.CJK {
			style.WritingMode = layout.WritingVertical
		}
	}

	box := block.BBox.ClampTo(bounds)
	var result layout.Result
	var err error
	if block.FontSize != nil && *block.FontSize > 0 {
		result, err = engine.LayoutAt(text, box, style, *block.FontSize)
	} else {
		result, err = engine.Layout(text, box, style)
	}
	if err != nil {
		return planned{}, err
	}
	if result.Degenerate {
		return planned{}, fmt.Errorf("%w: %v", ErrDegenerateRegion, box)
	}
	face, err := measurer.Face(style.FontFamily, float64(result.FontSizePx))
	if err != nil {
		return planned{}, fmt.Errorf("%w: %w", layout.ErrMeasurement, err)
	}
	return planned{block: block, box: box, style: style, result: result, face: face}, nil
}

// CompositeBytes decodes src (PNG, JPEG, GIF or WebP), composites blocks and returns
// the PNG-encoded result.
func (c *Compositor) CompositeBytes(src []byte, blocks []model.TextBlock, opts Options) ([]byte, Report, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, Report{}, fmt.Errorf("%w: %w", ErrImageDecode, err)
	}

	rendered, report, err := c.Composite(img, blocks, opts)
	if err != nil {
		return nil, report, err
	}

	buffer := new(bytes.Buffer)
	if err := png.Encode(buffer, rendered); err != nil {
		return nil, report, fmt.Errorf("%w: %w", ErrImageEncode, err)
	}
	return buffer.Bytes(), report, nil
}

func maskRect(box geometry.Box, paddingPx int, bounds image.Rectangle) image.Rectangle {
	padding := float64(paddingPx)
	return box.Expand(padding, padding).Rectangle().Intersect(bounds)
}

func fillAlpha(mask *image.Alpha, rect image.Rectangle) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			mask.SetAlpha(x, y, color.Alpha{A: 255})
		}
	}
}

// meanColor averages a sparse sample of the region; an empty region reads as white.
func meanColor(img image.Image, rect image.Rectangle) color.Color {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return color.White
	}
	step := max(1, min(rect.Dx(), rect.Dy())/8)
	var r, g, b, n float64
	for y := rect.Min.Y; y < rect.Max.Y; y += step {
		for x := rect.Min.X; x < rect.Max.X; x += step {
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				continue
			}
			r, g, b, n = r+c.R, g+c.G, b+c.B, n+1
		}
	}
	if n == 0 {
		return color.White
	}
	return colorful.Color{R: r / n, G: g / n, B: b / n}.Clamped()
}

// contrastingColor returns black on light backgrounds and white on dark ones, judged by
// CIE L* lightness.
func contrastingColor(background color.Color) color.Color {
	c, ok := colorful.MakeColor(background)
	if !ok {
		return color.Black
	}
	if l, _, _ := c.Lab(); l > 0.5 {
		return color.Black
	}
	return color.White
}

// ParseHexColor parses "#rrggbb" (or "#rgb") colours, also accepting a missing "#".
func ParseHexColor(s string) (color.Color, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty colour")
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return nil, err
	}
	return c, nil
}
