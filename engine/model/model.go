// Package model holds the entities shared by the clustering, layout and compositing
// stages: text blocks produced by OCR or user edits, derived bubbles, and pages.
package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
)

type Orientation int

const (
	OrientationUnspecified Orientation = iota
	OrientationHorizontal
	OrientationVertical
)

func (o Orientation) String() string {
	switch o {
	case OrientationHorizontal:
		return "horizontal"
	case OrientationVertical:
		return "vertical"
	default:
		return "unspecified"
	}
}

func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unspecified":
		return OrientationUnspecified, nil
	case "horizontal":
		return OrientationHorizontal, nil
	case "vertical":
		return OrientationVertical, nil
	}
	return OrientationUnspecified, fmt.Errorf("unknown orientation %q", s)
}

func (o Orientation) MarshalText() ([]byte, error) {
	if o == OrientationUnspecified {
		return []byte(""), nil
	}
	return []byte(o.String()), nil
}

func (o *Orientation) UnmarshalText(text []byte) error {
	parsed, err := ParseOrientation(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// TextBlock is one OCR-detected or user-defined text region.
type TextBlock struct {
	ID   string       `json:"id"`
	BBox geometry.Box `json:"bbox"`
	// Original-language text. Nil until OCR completes.
	SourceText *string `json:"sourceText,omitempty"`
	// Target-language text. Nil until translation completes.
	TranslatedText *string `json:"translatedText,omitempty"`
	// OCR certainty in [0, 1].
	Confidence  float64     `json:"confidence"`
	Orientation Orientation `json:"orientation,omitempty"`
	// Explicit font size override in pixels. Nil means the layout engine picks one.
	FontSize *int `json:"fontSize,omitempty"`
}

// Source returns the source text or "" when it is not populated.
func (b TextBlock) Source() string {
	if b.SourceText == nil {
		return ""
	}
	return *b.SourceText
}

// Translation returns the translated text or "" when it is not populated.
func (b TextBlock) Translation() string {
	if b.TranslatedText == nil {
		return ""
	}
	return *b.TranslatedText
}

// HasTranslation reports whether the block carries non-blank translated text.
func (b TextBlock) HasTranslation() bool {
	return strings.TrimSpace(b.Translation()) != ""
}

// Bubble is a clustered group of text blocks believed to form one dialogue region.
// Bubbles are regenerated on every clustering run and never mutated.
type Bubble struct {
	ID             string       `json:"id"`
	BBox           geometry.Box `json:"bbox"`
	MemberBlockIDs []string     `json:"memberBlockIds"`
	// Heuristic confidence in [0, 1], used only for ranking.
	Score float64 `json:"score"`
}

// Page is an ordered container of text blocks plus the original and rendered rasters.
// Both rasters are encoded image bytes; RenderedImage is nil until a composite runs.
type Page struct {
	ID            string      `json:"id"`
	Width         int         `json:"width"`
	Height        int         `json:"height"`
	OriginalImage []byte      `json:"-"`
	RenderedImage []byte      `json:"-"`
	Blocks        []TextBlock `json:"blocks"`
	Bubbles       []Bubble    `json:"bubbles,omitempty"`
}

// Bounds returns the page's image bounds as a box.
func (p *Page) Bounds() geometry.Box {
	return geometry.NewBox(0, 0, float64(p.Width), float64(p.Height))
}

func (p *Page) Block(id string) (TextBlock, bool) {
	for _, block := range p.Blocks {
		if block.ID == id {
			return block, true
		}
	}
	return TextBlock{}, false
}

// UpdateBlock applies fn to the block with the given id. The bbox is clamped to the
// page bounds afterwards so user edits cannot move a block off the image.
func (p *Page) UpdateBlock(id string, fn func(*TextBlock)) bool {
	for i := range p.Blocks {
		if p.Blocks[i].ID != id {
			continue
		}
		fn(&p.Blocks[i])
		p.Blocks[i].ID = id
		if p.Width > 0 && p.Height > 0 {
			p.Blocks[i].BBox = p.Blocks[i].BBox.ClampTo(p.Bounds())
		}
		return true
	}
	return false
}

// DeleteBlock removes the block with the given id, reporting whether it existed.
func (p *Page) DeleteBlock(id string) bool {
	for i, block := range p.Blocks {
		if block.ID == id {
			p.Blocks = append(p.Blocks[:i:i], p.Blocks[i+1:]...)
			return true
		}
	}
	return false
}

// ApplyTranslations attaches translated text to blocks by id. Unknown ids are ignored.
// It returns the number of blocks updated.
func (p *Page) ApplyTranslations(translations map[string]string) int {
	updated := 0
	for i := range p.Blocks {
		text, ok := translations[p.Blocks[i].ID]
		if !ok {
			continue
		}
		p.Blocks[i].TranslatedText = &text
		updated++
	}
	return updated
}

// MarshalBlocks encodes the page's blocks and bubbles for handing to persistence.
func (p *Page) MarshalBlocks() ([]byte, error) {
	return json.Marshal(struct {
		Blocks  []TextBlock `json:"blocks"`
		Bubbles []Bubble    `json:"bubbles"`
	}{p.Blocks, p.Bubbles})
}

// StringPtr is a convenience for populating the nullable text fields.
func StringPtr(s string) *string {
	return &s
}

func IntPtr(i int) *int {
	return &i
}
