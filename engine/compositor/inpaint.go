package compositor

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Inpainter reconstructs the pixels of img covered by mask. Mask pixels with non-zero
// alpha are to be replaced.
type Inpainter interface {
	Inpaint(img image.Image, mask image.Image) (image.Image, error)
}

// DiffusionInpainter fills masked pixels from the outside in, each taking the mean of its
// already known neighbours, then softens the fill with a Gaussian blur. It works well
// on the flat backgrounds of speech balloons and poorly on screentone.
type DiffusionInpainter struct {
	// Blur applied to the filled pixels. Zero disables smoothing.
	Sigma float64
}

func NewDiffusionInpainter() *DiffusionInpainter {
	return &DiffusionInpainter{Sigma: 2}
}

func (d *DiffusionInpainter) Inpaint(img image.Image, mask image.Image) (image.Image, error) {
	filled := imaging.Clone(img)
	bounds := img.Bounds()
	width, height := filled.Bounds().Dx(), filled.Bounds().Dy()

	known := make([]bool, width*height)
	var pending []image.Point
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if _, _, _, a := mask.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA(); a != 0 {
				pending = append(pending, image.Point{X: x, Y: y})
				continue
			}
			known[y*width+x] = true
		}
	}
	masked := append([]image.Point(nil), pending...)

	for len(pending) > 0 {
		type update struct {
			p image.Point
			c color.NRGBA
		}
		var layer []update
		var rest []image.Point
		for _, p := range pending {
			var r, g, b, a, n int
			for _, offset := range [...]image.Point{{X: -1}, {X: 1}, {Y: -1}, {Y: 1}} {
				q := p.Add(offset)
				if q.X < 0 || q.X >= width || q.Y < 0 || q.Y >= height || !known[q.Y*width+q.X] {
					continue
				}
				c := filled.NRGBAAt(q.X, q.Y)
				r, g, b, a, n = r+int(c.R), g+int(c.G), b+int(c.B), a+int(c.A), n+1
			}
			if n == 0 {
				rest = append(rest, p)
				continue
			}
			layer = append(layer, update{p: p, c: color.NRGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n), A: uint8(a / n)}})
		}
		// A fully masked image has no known pixels to grow from.
		if len(layer) == 0 {
			break
		}
		for _, u := range layer {
			filled.SetNRGBA(u.p.X, u.p.Y, u.c)
			known[u.p.Y*width+u.p.X] = true
		}
		pending = rest
	}

	if d.Sigma <= 0 {
		return filled, nil
	}
	smooth := imaging.Blur(filled, d.Sigma)
	for _, p := range masked {
		filled.SetNRGBA(p.X, p.Y, smooth.NRGBAAt(p.X, p.Y))
	}
	return filled, nil
}
