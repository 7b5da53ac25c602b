package layout

import (
	"errors"
	"fmt"

	enginefont "github.com/childhoods-end/v0-manga-flow-sub000/engine/font"
)

var (
	ErrInvalidStyle = errors.New("invalid layout style")
	ErrMeasurement  = errors.New("text measurement failed")
)

type HorizontalAlign string

const (
	AlignLeft   HorizontalAlign = "left"
	AlignCenter HorizontalAlign = "center"
	AlignRight  HorizontalAlign = "right"
)

type VerticalAlign string

const (
	AlignTop    VerticalAlign = "top"
	AlignMiddle VerticalAlign = "middle"
	AlignBottom VerticalAlign = "bottom"
)

type OverflowPolicy string

const (
	// OverflowEllipsis truncates to MaxLines and ends the last line with an ellipsis.
	OverflowEllipsis OverflowPolicy = "ellipsis"
	// OverflowShrink keeps reducing the font size until the text fits in MaxLines,
	// falling back to ellipsis at MinFontPx.
	OverflowShrink OverflowPolicy = "shrink"
)

type ScriptHint string

const (
	ScriptAuto  ScriptHint = "auto"
	ScriptCJK   ScriptHint = "cjk"
	ScriptLatin ScriptHint = "latin"
)

type WritingMode string

const (
	WritingHorizontal WritingMode = "horizontal"
	WritingVertical   WritingMode = "vertical"
	// WritingAuto lets the compositor choose vertical for CJK text in vertical blocks.
	// The layout engine itself treats it as horizontal.
	WritingAuto WritingMode = "auto"
)

type Style struct {
	FontFamily           string          `json:"fontFamily" toml:"font_family"`
	MaxFontPx            int             `json:"maxFontPx" toml:"max_font_px"`
	MinFontPx            int             `json:"minFontPx" toml:"min_font_px"`
	LineHeightMultiplier float64         `json:"lineHeightMultiplier" toml:"line_height_multiplier"`
	PaddingPx            float64         `json:"paddingPx" toml:"padding_px"`
	HorizontalAlign      HorizontalAlign `json:"horizontalAlign" toml:"horizontal_align"`
	VerticalAlign        VerticalAlign   `json:"verticalAlign" toml:"vertical_align"`
	MaxLines             int             `json:"maxLines" toml:"max_lines"`
	OverflowPolicy       OverflowPolicy  `json:"overflowPolicy" toml:"overflow_policy"`
	ScriptHint           ScriptHint      `json:"scriptHint" toml:"script_hint"`
	WritingMode          WritingMode     `json:"writingMode" toml:"writing_mode"`
}

func DefaultStyle() Style {
	return Style{
		FontFamily:           enginefont.FamilyGo,
		MaxFontPx:            36,
		MinFontPx:            10,
		LineHeightMultiplier: 1.45,
		PaddingPx:            12,
		HorizontalAlign:      AlignCenter,
		VerticalAlign:        AlignMiddle,
		MaxLines:             3,
		OverflowPolicy:       OverflowEllipsis,
		ScriptHint:           ScriptAuto,
		WritingMode:          WritingHorizontal,
	}
}

// normalized fills empty enum fields with their defaults. Numeric fields are left for
// Validate to reject.
func (s Style) normalized() Style {
	defaults := DefaultStyle()
	if s.HorizontalAlign == "" {
		s.HorizontalAlign = defaults.HorizontalAlign
	}
	if s.VerticalAlign == "" {
		s.VerticalAlign = defaults.VerticalAlign
	}
	if s.OverflowPolicy == "" {
		s.OverflowPolicy = defaults.OverflowPolicy
	}
	if s.ScriptHint == "" {
		s.ScriptHint = defaults.ScriptHint
	}
	if s.WritingMode == "" {
		s.WritingMode = defaults.WritingMode
	}
	return s
}

func (s Style) Validate() error {
	s = s.normalized()
	switch {
	case s.MinFontPx <= 0:
		return fmt.Errorf("%w: min font size must be positive, got %d", ErrInvalidStyle, s.MinFontPx)
	case s.MinFontPx > s.MaxFontPx:
		return fmt.Errorf("%w: min font size %d exceeds max font size %d", ErrInvalidStyle, s.MinFontPx, s.MaxFontPx)
	case s.LineHeightMultiplier <= 0:
		return fmt.Errorf("%w: line height multiplier must be positive, got %v", ErrInvalidStyle, s.LineHeightMultiplier)
	case s.PaddingPx < 0:
		return fmt.Errorf("%w: negative padding %v", ErrInvalidStyle, s.PaddingPx)
	case s.MaxLines <= 0:
		return fmt.Errorf("%w: max lines must be positive, got %d", ErrInvalidStyle, s.MaxLines)
	}

	switch s.HorizontalAlign {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		return fmt.Errorf("%w: unknown horizontal align %q", ErrInvalidStyle, s.HorizontalAlign)
	}
	switch s.VerticalAlign {
	case AlignTop, AlignMiddle, AlignBottom:
	default:
		return fmt.Errorf("%w: unknown vertical align %q", ErrInvalidStyle, s.VerticalAlign)
	}
	switch s.OverflowPolicy {
	case OverflowEllipsis, OverflowShrink:
	default:
		return fmt.Errorf("%w: unknown overflow policy %q", ErrInvalidStyle, s.OverflowPolicy)
	}
	switch s.ScriptHint {
	case ScriptAuto, ScriptCJK, ScriptLatin:
	default:
		return fmt.Errorf("%w: unknown script hint %q", ErrInvalidStyle, s.ScriptHint)
	}
	switch s.WritingMode {
	case WritingHorizontal, WritingVertical, WritingAuto:
	default:
		return fmt.Errorf("%w: unknown writing mode %q", ErrInvalidStyle, s.WritingMode)
	}
	return nil
}
