package model

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("block-%d", n)
	}
}

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.87, 0.87},
		{87, 0.87},
		{1, 1},
		{100, 1},
		{250, 1},
		{-3, 0},
	}
	for _, tt := range tests {
		require.InDelta(t, tt.want, NormalizeConfidence(tt.in), 1e-9, "NormalizeConfidence(%v)", tt.in)
	}
}

func TestIngest(t *testing.T) {
	bounds := geometry.NewBox(0, 0, 200, 100)
	detections := []Detection{
		{Text: " hello ", BBox: geometry.Box{X: 10, Y: 10, Width: 50, Height: 20}, Confidence: 93},
		{Text: "   ", BBox: geometry.Box{X: 10, Y: 40, Width: 50, Height: 20}, Confidence: 0.9},
		{Text: "edge", BBox: geometry.Box{X: 180, Y: 90, Width: 50, Height: 20}, Confidence: 0.5, Orientation: OrientationVertical},
		{Text: "outside", BBox: geometry.Box{X: 300, Y: 300, Width: 10, Height: 10}, Confidence: 0.5},
	}

	blocks := Ingest(detections, bounds, IngestOptions{NewID: sequentialIDs()})

	want := []TextBlock{
		{ID: "block-1", BBox: geometry.Box{X: 10, Y: 10, Width: 50, Height: 20}, SourceText: StringPtr("hello"), Confidence: 0.93},
		{ID: "block-2", BBox: geometry.Box{X: 180, Y: 90, Width: 20, Height: 10}, SourceText: StringPtr("edge"), Confidence: 0.5, Orientation: OrientationVertical},
	}
	if diff := cmp.Diff(want, blocks); diff != "" {
		t.Errorf("Ingest mismatch (-want +got):\n%s", diff)
	}
	for _, block := range blocks {
		require.Nil(t, block.TranslatedText)
		require.True(t, geometry.ContainsBox(bounds, block.BBox))
	}
}

func TestIngestDefaultIDs(t *testing.T) {
	blocks := Ingest([]Detection{
		{Text: "a", BBox: geometry.Box{Width: 5, Height: 5}},
		{Text: "b", BBox: geometry.Box{Width: 5, Height: 5}},
	}, geometry.NewBox(0, 0, 10, 10), IngestOptions{})

	require.Len(t, blocks, 2)
	require.NotEmpty(t, blocks[0].ID)
	require.NotEqual(t, blocks[0].ID, blocks[1].ID)
}

func TestPageEdits(t *testing.T) {
	page := &Page{
		ID:     "page-1",
		Width:  100,
		Height: 100,
		Blocks: []TextBlock{
			{ID: "a", BBox: geometry.Box{X: 0, Y: 0, Width: 10, Height: 10}},
			{ID: "b", BBox: geometry.Box{X: 20, Y: 20, Width: 10, Height: 10}},
			{ID: "c", BBox: geometry.Box{X: 40, Y: 40, Width: 10, Height: 10}},
		},
	}

	require.Equal(t, 2, page.ApplyTranslations(map[string]string{"a": "A", "c": "C", "zzz": "?"}))
	a, ok := page.Block("a")
	require.True(t, ok)
	require.Equal(t, "A", a.Translation())

	require.True(t, page.UpdateBlock("b", func(block *TextBlock) {
		block.ID = "renamed"
		block.BBox = geometry.Box{X: 90, Y: 90, Width: 30, Height: 30}
		block.FontSize = IntPtr(14)
	}))
	b, ok := page.Block("b")
	require.True(t, ok)
	require.Equal(t, geometry.Box{X: 90, Y: 90, Width: 10, Height: 10}, b.BBox)
	require.Equal(t, 14, *b.FontSize)
	require.False(t, page.UpdateBlock("missing", func(*TextBlock) {}))

	require.True(t, page.DeleteBlock("a"))
	require.False(t, page.DeleteBlock("a"))
	require.Equal(t, []string{"b", "c"}, []string{page.Blocks[0].ID, page.Blocks[1].ID})
}

func TestMergeBubbles(t *testing.T) {
	blocks := []TextBlock{
		{ID: "1", BBox: geometry.Box{X: 10, Y: 10, Width: 50, Height: 20}, SourceText: StringPtr("Hello"), Confidence: 0.8, Orientation: OrientationHorizontal},
		{ID: "2", BBox: geometry.Box{X: 15, Y: 35, Width: 55, Height: 20}, SourceText: StringPtr("there"), Confidence: 0.6, Orientation: OrientationHorizontal},
		{ID: "3", BBox: geometry.Box{X: 200, Y: 10, Width: 20, Height: 60}, SourceText: StringPtr("こんにちは"), Confidence: 0.9, Orientation: OrientationVertical},
		{ID: "4", BBox: geometry.Box{X: 175, Y: 10, Width: 20, Height: 60}, SourceText: StringPtr("世界"), Confidence: 0.7, Orientation: OrientationVertical},
		{ID: "5", BBox: geometry.Box{X: 10, Y: 150, Width: 20, Height: 20}, SourceText: StringPtr("lonely")},
	}
	bubbles := []Bubble{
		{ID: "bubble-1", BBox: geometry.Box{X: 4, Y: 5.5, Width: 72, Height: 54}, MemberBlockIDs: []string{"1", "2"}},
		{ID: "bubble-2", BBox: geometry.Box{X: 170, Y: 0, Width: 60, Height: 80}, MemberBlockIDs: []string{"3", "4"}},
	}

	merged := MergeBubbles(blocks, bubbles, geometry.NewBox(0, 0, 220, 200))
	require.Len(t, merged, 3)

	require.Equal(t, "bubble-1", merged[0].ID)
	require.Equal(t, "Hello there", merged[0].Source())
	require.InDelta(t, 0.7, merged[0].Confidence, 1e-9)
	require.Equal(t, OrientationHorizontal, merged[0].Orientation)

	require.Equal(t, "こんにちは世界", merged[1].Source())
	require.Equal(t, OrientationVertical, merged[1].Orientation)
	require.Equal(t, geometry.Box{X: 170, Y: 0, Width: 50, Height: 80}, merged[1].BBox)

	require.Equal(t, "5", merged[2].ID)
}

func TestOrientationJSON(t *testing.T) {
	raw, err := json.Marshal(TextBlock{ID: "x", Orientation: OrientationVertical})
	require.NoError(t, err)
	require.Contains(t, string(raw), `"orientation":"vertical"`)

	var block TextBlock
	require.NoError(t, json.Unmarshal([]byte(`{"id":"y","orientation":"horizontal","translatedText":"hi"}`), &block))
	require.Equal(t, OrientationHorizontal, block.Orientation)
	require.True(t, block.HasTranslation())

	require.Error(t, json.Unmarshal([]byte(`{"orientation":"diagonal"}`), &block))
}

func TestInferOrientation(t *testing.T) {
	tall := geometry.NewBox(0, 0, 30, 150)
	wide := geometry.NewBox(0, 0, 150, 30)
	require.Equal(t, OrientationVertical, InferOrientation(tall, "こんにちは"))
	require.Equal(t, OrientationHorizontal, InferOrientation(wide, "こんにちは"))
	require.Equal(t, OrientationHorizontal, InferOrientation(tall, "hello"))
}
