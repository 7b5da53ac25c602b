package geometry

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntersectionOverUnion(t *testing.T) {
	boxes := []Box{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 5, Y: 5, Width: 10, Height: 10},
		{X: 100, Y: 100, Width: 3, Height: 7},
		{X: 2, Y: 3, Width: 4, Height: 1},
		{X: 1, Y: 1, Width: 0, Height: 5},
	}

	for _, a := range boxes {
		for _, b := range boxes {
			assert.InDelta(t, IntersectionOverUnion(a, b), IntersectionOverUnion(b, a), 1e-12)
		}
		if !a.IsEmpty() {
			assert.InDelta(t, 1.0, IntersectionOverUnion(a, a), 1e-12)
		}
	}

	// 25 overlap / (100 + 100 - 25)
	assert.InDelta(t, 25.0/175.0, IntersectionOverUnion(boxes[0], boxes[1]), 1e-12)
	assert.Zero(t, IntersectionOverUnion(boxes[0], boxes[2]))
	assert.Zero(t, IntersectionOverUnion(boxes[4], boxes[4]))
}

func TestUnionContainsBoth(t *testing.T) {
	a := Box{X: 10, Y: 10, Width: 50, Height: 20}
	b := Box{X: 15, Y: 35, Width: 55, Height: 20}

	u := Union(a, b)
	require.True(t, ContainsBox(u, a))
	require.True(t, ContainsBox(u, b))
	require.Equal(t, Box{X: 10, Y: 10, Width: 60, Height: 45}, u)
}

func TestUnionIgnoresDegenerateOperand(t *testing.T) {
	a := Box{X: 10, Y: 10, Width: 50, Height: 20}
	degenerate := Box{X: 500, Y: 500}

	require.Equal(t, a, Union(a, degenerate))
	require.Equal(t, a, Union(degenerate, a))
	require.Equal(t, a, UnionAll(degenerate, a, degenerate))
	require.Equal(t, Box{}, UnionAll())
}

func TestDistanceCenters(t *testing.T) {
	a := Box{X: 0, Y: 0, Width: 2, Height: 2}
	b := Box{X: 3, Y: 4, Width: 2, Height: 2}
	require.InDelta(t, 5.0, DistanceCenters(a, b), 1e-12)
	require.Zero(t, DistanceCenters(a, a))
}

func TestContains(t *testing.T) {
	box := Box{X: 10, Y: 10, Width: 10, Height: 10}

	assert.True(t, Contains(box, Point{X: 10, Y: 10}))
	assert.True(t, Contains(box, Point{X: 15, Y: 19.9}))
	assert.False(t, Contains(box, Point{X: 20, Y: 15}))
	assert.False(t, Contains(box, Point{X: 9.9, Y: 15}))
}

func TestExpandIntersectRectangle(t *testing.T) {
	box := Box{X: 10, Y: 10, Width: 100, Height: 50}

	require.Equal(t, Box{X: 0, Y: 5, Width: 120, Height: 60}, box.Expand(10, 5))
	require.Equal(t, Box{X: 70, Y: 70}, box.Inset(60))
	require.Equal(t, Box{X: 10, Y: 10}, box.Intersect(Box{X: 300, Y: 300, Width: 1, Height: 1}))
	require.True(t, box.Inset(30).IsEmpty())

	bounds := Box{X: 0, Y: 0, Width: 50, Height: 50}
	require.Equal(t, Box{X: 10, Y: 10, Width: 40, Height: 40}, box.ClampTo(bounds))

	require.Equal(t, image.Rect(1, 2, 5, 7), Box{X: 1.5, Y: 2.2, Width: 3.1, Height: 4.5}.Rectangle())
	require.Equal(t, Box{X: 1, Y: 2, Width: 3, Height: 4}, FromRectangle(image.Rect(1, 2, 4, 6)))
}
