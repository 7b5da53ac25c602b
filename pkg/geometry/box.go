package geometry

import (
	"image"
	"math"
)

// Box is an axis-aligned rectangle in pixel space with a top-left origin.
// E.g., {X: 10, Y: 10, Width: 50, Height: 20}
type Box struct {
	X      float64 `json:"x" toml:"x"`
	Y      float64 `json:"y" toml:"y"`
	Width  float64 `json:"width" toml:"width"`
	Height float64 `json:"height" toml:"height"`
}

type Point struct {
	X float64
	Y float64
}

// NewBox returns a box with negative extents clamped to zero.
func NewBox(x, y, width, height float64) Box {
	return Box{X: x, Y: y, Width: math.Max(width, 0), Height: math.Max(height, 0)}
}

// FromCorners builds a box from its top-left and bottom-right corners.
func FromCorners(left, top, right, bottom float64) Box {
	return NewBox(left, top, right-left, bottom-top)
}

func FromRectangle(r image.Rectangle) Box {
	return NewBox(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
}

func (b Box) Right() float64  { return b.X + b.Width }
func (b Box) Bottom() float64 { return b.Y + b.Height }
func (b Box) Area() float64   { return b.Width * b.Height }

func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// IsEmpty reports whether the box has zero area.
func (b Box) IsEmpty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Expand grows the box by dx on the left and right and by dy on the top and bottom.
// Negative values shrink it; the result never has negative extents.
func (b Box) Expand(dx, dy float64) Box {
	return NewBox(b.X-dx, b.Y-dy, b.Width+2*dx, b.Height+2*dy)
}

// Inset shrinks the box by p on every side.
func (b Box) Inset(p float64) Box {
	return b.Expand(-p, -p)
}

// Intersect returns the overlapping region of the two boxes, or an empty box at the
// origin of a when they are disjoint.
func (b Box) Intersect(other Box) Box {
	left := math.Max(b.X, other.X)
	top := math.Max(b.Y, other.Y)
	right := math.Min(b.Right(), other.Right())
	bottom := math.Min(b.Bottom(), other.Bottom())
	if right <= left || bottom <= top {
		return Box{X: b.X, Y: b.Y}
	}
	return FromCorners(left, top, right, bottom)
}

// ClampTo restricts the box to the given bounds.
func (b Box) ClampTo(bounds Box) Box {
	return b.Intersect(bounds)
}

// Rectangle converts the box to integer pixel coordinates, rounding outwards.
func (b Box) Rectangle() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X)),
		int(math.Floor(b.Y)),
		int(math.Ceil(b.Right())),
		int(math.Ceil(b.Bottom())),
	)
}

// DistanceCenters returns the Euclidean distance between the centers of a and b.
func DistanceCenters(a, b Box) float64 {
	ca, cb := a.Center(), b.Center()
	return math.Hypot(ca.X-cb.X, ca.Y-cb.Y)
}

// IntersectionOverUnion returns a value in [0, 1]; 0 when the boxes are disjoint or
// either one is degenerate.
func IntersectionOverUnion(a, b Box) float64 {
	if a.IsEmpty() || b.IsEmpty() {
		return 0
	}
	inter := a.Intersect(b).Area()
	if inter == 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter
	return math.Min(inter/union, 1)
}

// Union returns the smallest box containing both a and b. A degenerate operand is
// ignored so the result equals the other operand's bounds.
func Union(a, b Box) Box {
	if a.IsEmpty() && !b.IsEmpty() {
		return b
	}
	if b.IsEmpty() && !a.IsEmpty() {
		return a
	}
	return FromCorners(
		math.Min(a.X, b.X),
		math.Min(a.Y, b.Y),
		math.Max(a.Right(), b.Right()),
		math.Max(a.Bottom(), b.Bottom()),
	)
}

// UnionAll folds Union over the boxes. It returns the zero box for no input.
func UnionAll(boxes ...Box) Box {
	if len(boxes) == 0 {
		return Box{}
	}
	combined := boxes[0]
	for _, box := range boxes[1:] {
		combined = Union(combined, box)
	}
	return combined
}

// Contains reports whether p lies inside the box. The top and left edges are inclusive,
// the bottom and right edges exclusive.
func Contains(box Box, p Point) bool {
	return p.X >= box.X && p.X < box.Right() && p.Y >= box.Y && p.Y < box.Bottom()
}

// ContainsBox reports whether inner lies entirely within outer.
func ContainsBox(outer, inner Box) bool {
	return inner.X >= outer.X && inner.Y >= outer.Y &&
		inner.Right() <= outer.Right() && inner.Bottom() <= outer.Bottom()
}
