package compositor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	enginefont "github.com/childhoods-end/v0-manga-flow-sub000/engine/font"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/layout"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/measure"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/model"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
)

func newCompositor(t *testing.T) *Compositor {
	t.Helper()
	fonts, err := enginefont.New("")
	require.NoError(t, err)
	return New(fonts, nil)
}

func grayPage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 128, G: 128, B: 128, A: 255}), image.Point{}, draw.Src)
	return img
}

func translated(id string, box geometry.Box, text string) model.TextBlock {
	return model.TextBlock{ID: id, BBox: box, TranslatedText: model.StringPtr(text), Confidence: 1}
}

func defaultOptions() Options {
	return Options{MaskOriginalRegions: true, Style: layout.DefaultStyle()}
}

// bitmapFaces measures every rune at a fixed ratio and draws with the 7x13 bitmap face.
type bitmapFaces struct {
	*measure.Monospace
	faceErr   error
	requested []float64
}

func (b *bitmapFaces) Face(family string, sizePx float64) (font.Face, error) {
	b.requested = append(b.requested, sizePx)
	if b.faceErr != nil {
		return nil, b.faceErr
	}
	return basicfont.Face7x13, nil
}

func regionEqual(t *testing.T, a, b *image.RGBA, rect image.Rectangle) bool {
	t.Helper()
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if a.RGBAAt(x, y) != b.RGBAAt(x, y) {
				return false
			}
		}
	}
	return true
}

func darkestRed(img *image.RGBA, rect image.Rectangle) uint8 {
	darkest := uint8(255)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			darkest = min(darkest, img.RGBAAt(x, y).R)
		}
	}
	return darkest
}

func TestCompositeDoesNotMutateInput(t *testing.T) {
	src := grayPage(200, 120)
	original := append([]byte(nil), src.Pix...)

	out, report, err := newCompositor(t).Composite(src, []model.TextBlock{
		translated("a", geometry.Box{X: 20, Y: 20, Width: 160, Height: 80}, "Hello there"),
	}, defaultOptions())
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, report.Rendered)

	require.Equal(t, original, src.Pix)
	require.NotSame(t, &src.Pix[0], &out.Pix[0])
	require.Equal(t, src.Bounds(), out.Bounds())
}

func TestCompositeMasksAndDraws(t *testing.T) {
	src := grayPage(200, 120)
	region := image.Rect(20, 20, 180, 100)

	out, _, err := newCompositor(t).Composite(src, []model.TextBlock{
		translated("a", geometry.FromRectangle(region), "Hello there"),
	}, defaultOptions())
	require.NoError(t, err)

	// Corners of the region are masked, away from any glyph.
	require.Greater(t, out.RGBAAt(21, 21).R, uint8(240))
	require.Greater(t, out.RGBAAt(178, 98).R, uint8(240))
	// Auto colour on a white mask is black text.
	require.Less(t, darkestRed(out, region), uint8(100))
	// Outside the block nothing changes.
	require.True(t, regionEqual(t, src, out, image.Rect(0, 0, 200, 19)))
}

func TestCompositeUntranslatedBlockUntouched(t *testing.T) {
	src := grayPage(200, 120)
	region := image.Rect(10, 10, 110, 60)

	for _, block := range []model.TextBlock{
		{ID: "nil", BBox: geometry.FromRectangle(region)},
		{ID: "blank", BBox: geometry.FromRectangle(region), TranslatedText: model.StringPtr("   ")},
	} {
		out, report, err := newCompositor(t).Composite(src, []model.TextBlock{block}, defaultOptions())
		require.NoError(t, err)
		require.Empty(t, report.Rendered)
		require.Empty(t, report.Skipped)
		require.True(t, regionEqual(t, src, out, src.Bounds()), "block %s", block.ID)
	}
}

func TestCompositeSkipsFailingBlocks(t *testing.T) {
	src := grayPage(300, 200)
	good := image.Rect(10, 10, 200, 90)
	tiny := image.Rect(250, 150, 260, 160)

	out, report, err := newCompositor(t).Composite(src, []model.TextBlock{
		translated("tiny", geometry.FromRectangle(tiny), "does not fit"),
		translated("good", geometry.FromRectangle(good), "Fits nicely"),
	}, defaultOptions())
	require.NoError(t, err)
	require.Equal(t, []string{"good"}, report.Rendered)
	require.Len(t, report.Skipped, 1)
	require.Equal(t, "tiny", report.Skipped[0].BlockID)
	require.ErrorIs(t, report.Skipped[0].Err, ErrDegenerateRegion)
	// A skipped block gets no mask either.
	require.True(t, regionEqual(t, src, out, tiny))
}

func TestCompositeMeasurementFailure(t *testing.T) {
	src := grayPage(200, 120)
	opts := defaultOptions()
	opts.Style.FontFamily = "No Such Font"

	out, report, err := newCompositor(t).Composite(src, []model.TextBlock{
		translated("a", geometry.Box{X: 20, Y: 20, Width: 160, Height: 80}, "Hello"),
	}, opts)
	require.NoError(t, err)
	require.Empty(t, report.Rendered)
	require.Len(t, report.Skipped, 1)
	require.ErrorIs(t, report.Skipped[0].Err, layout.ErrMeasurement)
	require.ErrorIs(t, report.Skipped[0].Err, enginefont.ErrFontNotFound)
	require.True(t, regionEqual(t, src, out, src.Bounds()))
}

func TestCompositeFaceFailureLeavesRegionUntouched(t *testing.T) {
	src := grayPage(200, 120)
	faceErr := errors.New("face unavailable")
	opts := defaultOptions()
	opts.Measurer = &bitmapFaces{Monospace: measure.NewMonospace(0.6), faceErr: faceErr}

	out, report, err := newCompositor(t).Composite(src, []model.TextBlock{
		translated("a", geometry.Box{X: 20, Y: 20, Width: 160, Height: 80}, "Hello"),
	}, opts)
	require.NoError(t, err)
	require.Empty(t, report.Rendered)
	require.Len(t, report.Skipped, 1)
	require.Equal(t, "a", report.Skipped[0].BlockID)
	require.ErrorIs(t, report.Skipped[0].Err, layout.ErrMeasurement)
	require.ErrorIs(t, report.Skipped[0].Err, faceErr)
	// Layout succeeded but the face did not, so no mask was drawn.
	require.True(t, regionEqual(t, src, out, src.Bounds()))
}

func TestCompositeInjectedMeasurer(t *testing.T) {
	src := grayPage(200, 120)
	box := geometry.Box{X: 20, Y: 20, Width: 160, Height: 80}
	faces := &bitmapFaces{Monospace: measure.NewMonospace(0.6)}
	opts := defaultOptions()
	opts.Measurer = faces

	out, report, err := newCompositor(t).Composite(src, []model.TextBlock{
		translated("a", box, "Hello there"),
	}, opts)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, report.Rendered)
	require.Empty(t, report.Skipped)

	// The face is requested at the size the injected measurer's layout chose.
	want, err := layout.New(measure.NewMonospace(0.6)).Layout("Hello there", box, opts.Style)
	require.NoError(t, err)
	require.Equal(t, []float64{float64(want.FontSizePx)}, faces.requested)
	require.False(t, regionEqual(t, src, out, box.Rectangle()))
}

func TestCompositeInvalidStyleIsFatal(t *testing.T) {
	opts := defaultOptions()
	opts.Style.MinFontPx = 50

	out, _, err := newCompositor(t).Composite(grayPage(50, 50), nil, opts)
	require.ErrorIs(t, err, layout.ErrInvalidStyle)
	require.Nil(t, out)
}

func TestCompositeFixedFontSizeAndVertical(t *testing.T) {
	src := grayPage(300, 300)
	fixed := translated("fixed", geometry.Box{X: 10, Y: 10, Width: 200, Height: 60}, "Fixed size")
	fixed.FontSize = model.IntPtr(14)
	vertical := translated("vertical", geometry.Box{X: 240, Y: 10, Width: 50, Height: 280}, "こんにちは")
	vertical.Orientation = model.OrientationVertical

	opts := defaultOptions()
	opts.Style.WritingMode = layout.WritingAuto
	opts.TextColor = color.RGBA{R: 200, A: 255}

	out, report, err := newCompositor(t).Composite(src, []model.TextBlock{fixed, vertical}, opts)
	require.NoError(t, err)
	require.Equal(t, []string{"fixed", "vertical"}, report.Rendered)
	require.NotNil(t, out)
}

func TestCompositeWithoutMask(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	draw.Draw(src, src.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	region := image.Rect(10, 10, 190, 90)

	opts := defaultOptions()
	opts.MaskOriginalRegions = false
	out, _, err := newCompositor(t).Composite(src, []model.TextBlock{
		translated("a", geometry.FromRectangle(region), "Light text"),
	}, opts)
	require.NoError(t, err)

	// Unmasked black region keeps its background and gets white text.
	require.Equal(t, uint8(0), out.RGBAAt(11, 11).R)
	brightest := uint8(0)
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			brightest = max(brightest, out.RGBAAt(x, y).R)
		}
	}
	require.Greater(t, brightest, uint8(150))
}

func TestCompositeWithInpainter(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	draw.Draw(src, src.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	// Original lettering in the corner of the block.
	draw.Draw(src, image.Rect(12, 12, 20, 20), image.NewUniform(color.Black), image.Point{}, draw.Src)

	opts := defaultOptions()
	opts.Inpainter = NewDiffusionInpainter()
	out, report, err := newCompositor(t).Composite(src, []model.TextBlock{
		translated("a", geometry.Box{X: 10, Y: 10, Width: 180, Height: 80}, "Hi"),
	}, opts)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, report.Rendered)
	require.Greater(t, out.RGBAAt(15, 15).R, uint8(240))
}

func TestCompositeBytes(t *testing.T) {
	c := newCompositor(t)

	_, _, err := c.CompositeBytes([]byte("definitely not an image"), nil, defaultOptions())
	require.ErrorIs(t, err, ErrImageDecode)

	var buffer bytes.Buffer
	require.NoError(t, png.Encode(&buffer, grayPage(120, 80)))
	source := append([]byte(nil), buffer.Bytes()...)

	encoded, report, err := c.CompositeBytes(source, []model.TextBlock{
		translated("a", geometry.Box{X: 5, Y: 5, Width: 110, Height: 70}, "Hello"),
	}, defaultOptions())
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, report.Rendered)
	require.Equal(t, buffer.Bytes(), source)

	decoded, err := png.Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 120, 80), decoded.Bounds())
}

func TestDiffusionInpainter(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 60, 60))
	draw.Draw(src, src.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(src, image.Rect(20, 20, 30, 30), image.NewUniform(color.Black), image.Point{}, draw.Src)

	mask := image.NewAlpha(src.Bounds())
	fillAlpha(mask, image.Rect(15, 15, 35, 35))

	out, err := NewDiffusionInpainter().Inpaint(src, mask)
	require.NoError(t, err)
	r, _, _, _ := out.At(25, 25).RGBA()
	require.Greater(t, r>>8, uint32(250))

	full := image.NewAlpha(src.Bounds())
	fillAlpha(full, full.Bounds())
	_, err = (&DiffusionInpainter{}).Inpaint(src, full)
	require.NoError(t, err)
}

func TestColors(t *testing.T) {
	require.Equal(t, color.Black, contrastingColor(color.White))
	require.Equal(t, color.White, contrastingColor(color.Black))
	require.Equal(t, color.Black, contrastingColor(DefaultMaskColor))

	c, err := ParseHexColor("#ff0000")
	require.NoError(t, err)
	r, g, b, _ := c.RGBA()
	require.Equal(t, []uint32{0xffff, 0, 0}, []uint32{r, g, b})

	_, err = ParseHexColor("00ff00")
	require.NoError(t, err)
	_, err = ParseHexColor("")
	require.Error(t, err)
	_, err = ParseHexColor("not-a-colour")
	require.Error(t, err)
}
