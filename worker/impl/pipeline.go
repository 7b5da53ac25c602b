package impl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/cluster"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/compositor"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/model"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/geometry"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/utils"
	"github.com/childhoods-end/v0-manga-flow-sub000/worker/impl/translate"
)

type rendered struct {
	image  []byte
	report compositor.Report
}

// Process runs a page through OCR, clustering, translation, compositing and
// persistence. Stages run strictly in sequence; the page is updated in place as each
// one completes, so a failed page keeps the results of the stages before the failure.
func (p *Pipeline) Process(ctx context.Context, page *model.Page) (compositor.Report, error) {
	started := time.Now()
	img, err := decodePage(page)
	if err != nil {
		return compositor.Report{}, stageError(StageDecode, page.ID, err)
	}

	detections, err := runStage(ctx, p, page, StageOCR, p.options.OCR, func(ctx context.Context) ([]model.Detection, error) {
		return p.ocr.Detect(ctx, page.OriginalImage)
	})
	if err != nil {
		return compositor.Report{}, err
	}

	blocks := model.Ingest(detections, page.Bounds(), model.IngestOptions{MinSidePx: p.options.MinBlockSidePx})
	page.Bubbles = []model.Bubble{}
	if clusterer := p.clusterer(img, page.Bounds()); clusterer != nil {
		page.Bubbles = clusterer.Cluster(blocks)
		if p.options.Clustering.MergeBubbles {
			blocks = model.MergeBubbles(blocks, page.Bubbles, page.Bounds())
		}
	}
	page.Blocks = blocks
	p.logger.Info("detected text",
		slog.String("page_id", page.ID),
		slog.Int("detections", len(detections)),
		slog.Int("blocks", len(page.Blocks)),
		slog.Int("bubbles", len(page.Bubbles)),
	)

	if err := p.translate(ctx, page); err != nil {
		return compositor.Report{}, err
	}

	report, err := p.render(ctx, page)
	if err != nil {
		return report, err
	}
	p.logger.Info("processed page", slog.String("page_id", page.ID), slog.Duration("elapsed", time.Since(started)))
	return report, nil
}

// Rerender composites the page's current blocks onto its original image again, as
// after a user edited or deleted blocks, and persists the result.
func (p *Pipeline) Rerender(ctx context.Context, page *model.Page) (compositor.Report, error) {
	if page.Width <= 0 || page.Height <= 0 {
		if _, err := decodePage(page); err != nil {
			return compositor.Report{}, stageError(StageDecode, page.ID, err)
		}
	}
	return p.render(ctx, page)
}

// ProcessPages processes independent pages concurrently, at most concurrency at a
// time (unbounded when concurrency is not positive). A failing page does not stop the
// others; the returned error joins every page's StageError and reports[i] belongs to
// pages[i].
func (p *Pipeline) ProcessPages(ctx context.Context, pages []*model.Page, concurrency int) ([]compositor.Report, error) {
	reports := make([]compositor.Report, len(pages))
	errs := make([]error, len(pages))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, page := range pages {
		i, page := i, page
		g.Go(func() error {
			reports[i], errs[i] = p.Process(ctx, page)
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}

func (p *Pipeline) clusterer(img image.Image, bounds geometry.Box) cluster.Clusterer {
	switch p.options.Clustering.Strategy {
	case ClusterNone:
		return nil
	case ClusterRaster:
		return cluster.NewRaster(img, p.options.Clustering.Raster)
	default:
		params := p.options.Clustering.Proximity
		params.Bounds = &bounds
		return cluster.NewProximity(params)
	}
}

func (p *Pipeline) translate(ctx context.Context, page *model.Page) error {
	segments := utils.Map(utils.Filter(page.Blocks, func(block model.TextBlock) bool {
		return block.Source() != ""
	}), func(block model.TextBlock) translate.Segment {
		return translate.Segment{ID: block.ID, Text: block.Source()}
	})
	if len(segments) == 0 {
		return nil
	}

	translations, err := runStage(ctx, p, page, StageTranslate, p.options.Translate, func(ctx context.Context) (map[string]string, error) {
		return p.translator.Translate(ctx, segments, p.options.TargetLanguage)
	})
	if err != nil {
		return err
	}

	if p.moderator != nil {
		translations, err = runStage(ctx, p, page, StageModerate, p.options.Translate, func(ctx context.Context) (map[string]string, error) {
			return p.moderator.Moderate(ctx, translations)
		})
		if err != nil {
			return err
		}
	}

	updated := page.ApplyTranslations(translations)
	if updated < len(segments) {
		p.logger.Warn("blocks left untranslated",
			slog.String("page_id", page.ID),
			slog.Int("missing", len(segments)-updated),
		)
	}
	return nil
}

func (p *Pipeline) render(ctx context.Context, page *model.Page) (compositor.Report, error) {
	out, err := runStage(ctx, p, page, StageRender, p.options.Render, func(context.Context) (rendered, error) {
		data, report, err := p.compositor.CompositeBytes(page.OriginalImage, page.Blocks, p.options.Composite)
		return rendered{image: data, report: report}, err
	})
	if err != nil {
		return out.report, err
	}
	page.RenderedImage = out.image

	if len(out.report.Skipped) > 0 {
		p.logger.Warn("page rendered with skipped blocks",
			slog.String("page_id", page.ID),
			slog.Int("skipped", len(out.report.Skipped)),
		)
	}
	return out.report, p.persist(ctx, page)
}

func (p *Pipeline) persist(ctx context.Context, page *model.Page) error {
	if p.storage.Client == nil {
		return nil
	}
	document, err := page.MarshalBlocks()
	if err != nil {
		return stageError(StagePersist, page.ID, err)
	}

	objects := []struct {
		name string
		data []byte
	}{
		{fmt.Sprintf("%s/rendered.png", page.ID), page.RenderedImage},
		{fmt.Sprintf("%s/blocks.json", page.ID), document},
	}
	for _, object := range objects {
		if _, err := runStage(ctx, p, page, StagePersist, p.options.Persist, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.storage.Client.SaveBytes(ctx, p.storage.Bucket, object.name, object.data)
		}); err != nil {
			return err
		}
	}
	return nil
}

// runStage runs one stage with its timeout and retry policy, logs its duration and
// wraps a failure in a StageError.
func runStage[T any](ctx context.Context, p *Pipeline, page *model.Page, name Stage, options StageOptions, fn func(context.Context) (T, error)) (T, error) {
	started := time.Now()
	value, err := stage(ctx, options, fn)
	if err != nil {
		p.logger.Error("stage failed",
			slog.String("page_id", page.ID),
			slog.String("stage", string(name)),
			slog.Duration("elapsed", time.Since(started)),
			slog.Any("error", err),
		)
		return value, stageError(name, page.ID, err)
	}
	p.logger.Info("stage completed",
		slog.String("page_id", page.ID),
		slog.String("stage", string(name)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return value, nil
}

// decodePage decodes the original image and records its size on the page.
func decodePage(page *model.Page) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(page.OriginalImage))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", compositor.ErrImageDecode, err)
	}
	page.Width, page.Height = img.Bounds().Dx(), img.Bounds().Dy()
	return img, nil
}
