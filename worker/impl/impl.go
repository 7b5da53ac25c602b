// Package impl wires OCR, clustering, translation, compositing and persistence into the
// page pipeline.
package impl

import (
	"context"
	"log/slog"
	"time"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/cluster"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/compositor"
	enginefont "github.com/childhoods-end/v0-manga-flow-sub000/engine/font"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/model"
	"github.com/childhoods-end/v0-manga-flow-sub000/worker/impl/storage"
	"github.com/childhoods-end/v0-manga-flow-sub000/worker/impl/translate"
)

// OCR detects text on an encoded page image.
type OCR interface {
	Detect(ctx context.Context, image []byte) ([]model.Detection, error)
}

// Translator translates segments into the target language, keyed by segment id.
// Segments missing from the result are left untranslated.
type Translator interface {
	Translate(ctx context.Context, segments []translate.Segment, targetLanguage string) (map[string]string, error)
}

// Moderator gates translated text before it is drawn. It returns the translations that
// may be rendered, possibly rewritten.
type Moderator interface {
	Moderate(ctx context.Context, translations map[string]string) (map[string]string, error)
}

type ClusterStrategy string

const (
	ClusterProximity ClusterStrategy = "proximity"
	ClusterRaster    ClusterStrategy = "raster"
	// ClusterNone keeps the OCR blocks as they are.
	ClusterNone ClusterStrategy = "none"
)

type Clustering struct {
	Strategy  ClusterStrategy
	Proximity cluster.Params
	Raster    cluster.RasterParams
	// Collapse every bubble into a single dialogue block before translation.
	MergeBubbles bool
}

type Storage struct {
	// Client stores rendered pages and their block documents.
	Client storage.Client

	// The bucket (or directory) receiving rendered pages.
	Bucket string
}

// StageOptions bounds one stage: a wall-clock budget per attempt and the retry policy.
type StageOptions struct {
	Timeout time.Duration
	Retry   RetryPolicy
}

type Options struct {
	TargetLanguage string
	Clustering     Clustering
	Composite      compositor.Options
	// Boxes smaller than this side length are dropped on ingestion.
	MinBlockSidePx float64

	OCR       StageOptions
	Translate StageOptions
	Render    StageOptions
	Persist   StageOptions
}

type Pipeline struct {
	ocr        OCR
	translator Translator

	// Optional. When nil, translations are rendered as returned.
	moderator Moderator

	// Storage is where rendered pages end up. A nil client skips persistence.
	storage Storage

	// Used for drawing translated text on pages.
	compositor *compositor.Compositor

	options Options
	logger  *slog.Logger
}

func New(
	ocr OCR,
	translator Translator,
	moderator Moderator,
	storage Storage,
	fonts enginefont.Provider,
	options Options,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		ocr:        ocr,
		translator: translator,
		moderator:  moderator,
		storage:    storage,
		compositor: compositor.New(fonts, logger),
		options:    options,
		logger:     logger,
	}
}
