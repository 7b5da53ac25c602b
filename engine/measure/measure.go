// Package measure answers "how wide is this string at this size" for the layout engine
// without tying it to a rendering backend.
package measure

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	enginefont "github.com/childhoods-end/v0-manga-flow-sub000/engine/font"
)

type Measurer interface {
	// Returns the advance width in pixels of text set in fontFamily at fontSizePx.
	MeasureWidth(text, fontFamily string, fontSizePx float64) (float64, error)
}

// FaceMeasurer also supplies the faces measured text is drawn with.
type FaceMeasurer interface {
	Measurer
	Face(family string, sizePx float64) (font.Face, error)
}

// Func adapts a plain function to Measurer.
type Func func(text, fontFamily string, fontSizePx float64) (float64, error)

func (f Func) MeasureWidth(text, fontFamily string, fontSizePx float64) (float64, error) {
	return f(text, fontFamily, fontSizePx)
}

type faceKey struct {
	family string
	size   float64
}

// TrueType measures with real glyph advances. It caches one face per family and size
// and is not safe for concurrent use; create one per composite call.
type TrueType struct {
	fonts enginefont.Provider
	faces map[faceKey]font.Face
}

func NewTrueType(fonts enginefont.Provider) *TrueType {
	return &TrueType{
		fonts: fonts,
		faces: map[faceKey]font.Face{},
	}
}

// Face returns the cached face for family at sizePx, loading it on first use. The
// same face is used for drawing so measured and drawn widths agree.
func (m *TrueType) Face(family string, sizePx float64) (font.Face, error) {
	if sizePx <= 0 {
		return nil, fmt.Errorf("invalid font size %v", sizePx)
	}
	key := faceKey{family: family, size: sizePx}
	if face, ok := m.faces[key]; ok {
		return face, nil
	}

	f, err := m.fonts.Font(family)
	if err != nil {
		return nil, err
	}
	// At 72 DPI one point is one pixel.
	face := truetype.NewFace(f, &truetype.Options{
		Size:    sizePx,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	m.faces[key] = face
	return face, nil
}

func (m *TrueType) MeasureWidth(text, fontFamily string, fontSizePx float64) (float64, error) {
	face, err := m.Face(fontFamily, fontSizePx)
	if err != nil {
		return 0, err
	}
	return float64(font.MeasureString(face, text)) / 64, nil
}

// Close releases every cached face.
func (m *TrueType) Close() error {
	var errs []error
	for key, face := range m.faces {
		if err := face.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(m.faces, key)
	}
	return errors.Join(errs...)
}

// Monospace is a deterministic measurer where every rune is Ratio × size wide.
type Monospace struct {
	Ratio   float64
	failing map[string]error
}

func NewMonospace(ratio float64) *Monospace {
	return &Monospace{Ratio: ratio, failing: map[string]error{}}
}

// Fail makes every measurement for family return err.
func (m *Monospace) Fail(family string, err error) *Monospace {
	m.failing[family] = err
	return m
}

func (m *Monospace) MeasureWidth(text, fontFamily string, fontSizePx float64) (float64, error) {
	if err, ok := m.failing[fontFamily]; ok {
		return 0, err
	}
	return m.Ratio * fontSizePx * float64(utf8.RuneCountInString(text)), nil
}
