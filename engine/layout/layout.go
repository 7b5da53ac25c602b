// Package layout fits translated text into a region: it picks the largest font size
// that fits, wraps lines, truncates overflow and positions every line.
package layout

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/measure"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/script"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
)

const (
	Ellipsis = "…"
	// VerticalEllipsis replaces the last character of a truncated vertical column.
	VerticalEllipsis = "︙"

	// Height comparisons tolerate float rounding of size × multiplier products.
	epsilon = 1e-6
)

// Placement is one drawn unit (a line, or a character in vertical mode) with its top-left
// corner in page coordinates.
type Placement struct {
	Text   string
	X      float64
	Y      float64
	Width  float64
	Height float64
}

type Result struct {
	FontSizePx   int
	Lines        []string
	Placements   []Placement
	LineHeightPx float64
	Vertical     bool
	// Truncated is set when text was dropped or ellipsized to fit.
	Truncated bool
	// Degenerate is set when padding leaves no drawable area. Nothing is drawn.
	Degenerate bool
}

func emptyResult() Result {
	return Result{Lines: []string{}, Placements: []Placement{}}
}

type Engine struct {
	measurer measure.Measurer
}

func New(measurer measure.Measurer) *Engine {
	return &Engine{measurer: measurer}
}

// Layout searches the largest font size in [MinFontPx, MaxFontPx] at which the text
// fits the box and lays it out at that size. Text that does not fit even at MinFontPx
// is truncated; Layout never fails for lack of space.
func (e *Engine) Layout(text string, box geometry.Box, style Style) (Result, error) {
	f, result, err := e.prepare(text, box, style)
	if f == nil || err != nil {
		return result, err
	}
	if f.vertical {
		return f.layoutVertical(f.searchVertical())
	}

	size, err := f.search()
	if err != nil {
		return Result{}, err
	}
	return f.layoutHorizontal(size, f.style.OverflowPolicy == OverflowShrink)
}

// LayoutAt lays text out at a fixed font size. Wrapping, truncation and alignment
// behave as in Layout.
func (e *Engine) LayoutAt(text string, box geometry.Box, style Style, sizePx int) (Result, error) {
	if sizePx <= 0 {
		return Result{}, fmt.Errorf("%w: font size must be positive, got %d", ErrInvalidStyle, sizePx)
	}
	f, result, err := e.prepare(text, box, style)
	if f == nil || err != nil {
		return result, err
	}
	if f.vertical {
		return f.layoutVertical(sizePx)
	}
	return f.layoutHorizontal(sizePx, false)
}

// Ellipsize shortens line until it ends with an ellipsis and fits maxWidth. A line
// that already ends with an ellipsis and fits is returned unchanged, so applying it
// twice is the same as applying it once. It returns "" when not even the ellipsis
// fits.
func (e *Engine) Ellipsize(line string, maxWidth float64, fontFamily string, sizePx int) (string, error) {
	f := &fitter{measurer: e.measurer, style: Style{FontFamily: fontFamily}, maxWidth: maxWidth}
	return f.ellipsize(line, float64(sizePx))
}

// prepare validates inputs and returns a fitter, or a nil fitter with the final result
// for empty text and degenerate regions.
func (e *Engine) prepare(text string, box geometry.Box, style Style) (*fitter, Result, error) {
	style = style.normalized()
	if err := style.Validate(); err != nil {
		return nil, Result{}, err
	}

	text = norm.NFC.String(strings.TrimSpace(text))
	if text == "" {
		return nil, emptyResult(), nil
	}

	area := box.Inset(style.PaddingPx)
	if box.Width-2*style.PaddingPx <= 0 || box.Height-2*style.PaddingPx <= 0 {
		result := emptyResult()
		result.Degenerate = true
		return nil, result, nil
	}

	cjk := style.ScriptHint == ScriptCJK
	if style.ScriptHint == ScriptAuto {
		cjk = script.Detect(text) == script.CJK
	}

	return &fitter{
		measurer:  e.measurer,
		style:     style,
		text:      text,
		area:      area,
		maxWidth:  area.Width,
		maxHeight: area.Height,
		cjk:       cjk,
		vertical:  style.WritingMode == WritingVertical,
	}, Result{}, nil
}

// fitter carries the state of one layout call.
type fitter struct {
	measurer  measure.Measurer
	style     Style
	text      string
	area      geometry.Box
	maxWidth  float64
	maxHeight float64
	cjk       bool
	vertical  bool
}

func (f *fitter) width(text string, size float64) (float64, error) {
	width, err := f.measurer.MeasureWidth(text, f.style.FontFamily, size)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMeasurement, err)
	}
	return width, nil
}

func (f *fitter) lineHeight(size int) float64 {
	return float64(size) * f.style.LineHeightMultiplier
}

func (f *fitter) heightFits(lines, size int) bool {
	return float64(lines)*f.lineHeight(size) <= f.maxHeight+epsilon
}

// fits reports whether the text wrapped at size fills at most the available height,
// counting no more than MaxLines lines, with no line wider than the area.
func (f *fitter) fits(size int) (bool, error) {
	lines, overflow, err := f.wrap(f.text, float64(size))
	if err != nil {
		return false, err
	}
	return !overflow && f.heightFits(min(len(lines), f.style.MaxLines), size), nil
}

// search is a binary search over integer sizes. Wrapping never produces more lines at a
// smaller size, so fits is monotonic in size. MinFontPx is returned when nothing fits.
func (f *fitter) search() (int, error) {
	best := f.style.MinFontPx
	lo, hi := f.style.MinFontPx, f.style.MaxFontPx
	for lo <= hi {
		mid := lo + (hi-lo)/2
		ok, err := f.fits(mid)
		if err != nil {
			return 0, err
		}
		if ok {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best, nil
}

func (f *fitter) layoutHorizontal(size int, shrink bool) (Result, error) {
	lines, _, err := f.wrap(f.text, float64(size))
	if err != nil {
		return Result{}, err
	}

	truncated := false
	if len(lines) > f.style.MaxLines && shrink {
		for i := 0; i < f.style.MaxFontPx-f.style.MinFontPx && size > f.style.MinFontPx && len(lines) > f.style.MaxLines; i++ {
			size--
			if lines, _, err = f.wrap(f.text, float64(size)); err != nil {
				return Result{}, err
			}
		}
	}
	if len(lines) > f.style.MaxLines {
		if lines, err = f.ellipsizeLast(lines[:f.style.MaxLines], float64(size)); err != nil {
			return Result{}, err
		}
		truncated = true
	}

	// Even MaxLines lines can be too tall when MinFontPx's line height exceeds the box.
	for len(lines) > 0 && !f.heightFits(len(lines), size) {
		if lines, err = f.ellipsizeLast(lines[:len(lines)-1], float64(size)); err != nil {
			return Result{}, err
		}
		truncated = true
	}

	placements, err := f.placeLines(lines, size)
	if err != nil {
		return Result{}, err
	}
	return Result{
		FontSizePx:   size,
		Lines:        lines,
		Placements:   placements,
		LineHeightPx: f.lineHeight(size),
		Truncated:    truncated,
	}, nil
}

// ellipsizeLast ends the last line with an ellipsis, dropping lines that cannot hold
// one.
func (f *fitter) ellipsizeLast(lines []string, size float64) ([]string, error) {
	for len(lines) > 0 {
		last, err := f.ellipsize(lines[len(lines)-1], size)
		if err != nil {
			return nil, err
		}
		if last != "" {
			lines[len(lines)-1] = last
			return lines, nil
		}
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}

func (f *fitter) ellipsize(line string, size float64) (string, error) {
	if strings.HasSuffix(line, Ellipsis) {
		width, err := f.width(line, size)
		if err != nil {
			return "", err
		}
		if width <= f.maxWidth {
			return line, nil
		}
		line = strings.TrimSuffix(line, Ellipsis)
	}

	parts := clusters(line)
	for n := len(parts); n >= 0; n-- {
		candidate := strings.TrimRightFunc(strings.Join(parts[:n], ""), unicode.IsSpace) + Ellipsis
		width, err := f.width(candidate, size)
		if err != nil {
			return "", err
		}
		if width <= f.maxWidth {
			return candidate, nil
		}
	}
	return "", nil
}

func (f *fitter) placeLines(lines []string, size int) ([]Placement, error) {
	lineHeight := f.lineHeight(size)
	top := f.verticalStart(float64(len(lines)) * lineHeight)

	placements := make([]Placement, 0, len(lines))
	for i, line := range lines {
		width, err := f.width(line, float64(size))
		if err != nil {
			return nil, err
		}
		placements = append(placements, Placement{
			Text:   line,
			X:      f.horizontalStart(width),
			Y:      top + float64(i)*lineHeight,
			Width:  width,
			Height: lineHeight,
		})
	}
	return placements, nil
}

func (f *fitter) horizontalStart(width float64) float64 {
	switch f.style.HorizontalAlign {
	case AlignLeft:
		return f.area.X
	case AlignRight:
		return f.area.Right() - width
	default:
		return f.area.X + (f.maxWidth-width)/2
	}
}

func (f *fitter) verticalStart(height float64) float64 {
	switch f.style.VerticalAlign {
	case AlignTop:
		return f.area.Y
	case AlignBottom:
		return f.area.Bottom() - height
	default:
		return f.area.Y + (f.maxHeight-height)/2
	}
}

// columnCharacters returns the characters of a vertical column, skipping whitespace.
func (f *fitter) columnCharacters() []string {
	var characters []string
	for _, cluster := range clusters(f.text) {
		if !isBlank(cluster) {
			characters = append(characters, cluster)
		}
	}
	return characters
}

func (f *fitter) verticalFits(count, size int) bool {
	return float64(size) <= f.maxWidth+epsilon && f.heightFits(count, size)
}

func (f *fitter) searchVertical() int {
	count := len(f.columnCharacters())
	best := f.style.MinFontPx
	lo, hi := f.style.MinFontPx, f.style.MaxFontPx
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if f.verticalFits(count, mid) {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

// layoutVertical stacks characters top to bottom in a single column. Characters that
// do not fit are dropped and the last kept one becomes a vertical ellipsis.
func (f *fitter) layoutVertical(size int) (Result, error) {
	characters := f.columnCharacters()
	lineHeight := f.lineHeight(size)

	truncated := false
	if capacity := int(math.Floor((f.maxHeight + epsilon) / lineHeight)); len(characters) > capacity {
		characters = characters[:max(capacity, 0)]
		if len(characters) > 0 {
			characters[len(characters)-1] = VerticalEllipsis
		}
		truncated = true
	}

	columnX := f.horizontalStart(float64(size))
	top := f.verticalStart(float64(len(characters)) * lineHeight)
	placements := make([]Placement, 0, len(characters))
	for i, character := range characters {
		width, err := f.width(character, float64(size))
		if err != nil {
			return Result{}, err
		}
		placements = append(placements, Placement{
			Text:   character,
			X:      columnX + (float64(size)-width)/2,
			Y:      top + float64(i)*lineHeight,
			Width:  width,
			Height: lineHeight,
		})
	}

	if characters == nil {
		characters = []string{}
	}
	return Result{
		FontSizePx:   size,
		Lines:        characters,
		Placements:   placements,
		LineHeightPx: lineHeight,
		Vertical:     true,
		Truncated:    truncated,
	}, nil
}
