// Package config loads worker settings from an optional TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/cluster"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/compositor"
	enginefont "github.com/childhoods-end/v0-manga-flow-sub000/engine/font"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/layout"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/env"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/utils"
	"github.com/childhoods-end/v0-manga-flow-sub000/worker/impl"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Style     layout.Style `toml:"style"`
	Mask      Mask         `toml:"mask"`
	Cluster   Cluster      `toml:"cluster"`
	Pipeline  Pipeline     `toml:"pipeline"`
	Fonts     Fonts        `toml:"fonts"`
	Providers Providers    `toml:"providers"`
	Storage   Storage      `toml:"storage"`
}

type Mask struct {
	Enabled bool `toml:"enabled"`
	// Hex colour such as "#ffffff". Empty means the default near-opaque white.
	Color     string `toml:"color"`
	PaddingPx int    `toml:"padding_px"`
	// Hex text colour. Empty picks black or white for contrast.
	TextColor string `toml:"text_color"`
	// Reconstruct the background under masked regions instead of filling them.
	Inpaint bool `toml:"inpaint"`
}

type Cluster struct {
	// proximity, raster or none.
	Strategy string `toml:"strategy"`
	// isotropic or per-axis.
	Mode string `toml:"mode"`
	// greedy compares each block with its reading-order predecessor only; single links
	// it to every earlier block.
	Linkage        string  `toml:"linkage"`
	RowTolerancePx float64 `toml:"row_tolerance_px"`
	DistanceFactor float64 `toml:"distance_factor"`
	AlongGapFactor float64 `toml:"along_gap_factor"`
	CrossGapFactor float64 `toml:"cross_gap_factor"`
	PaddingRatio   float64 `toml:"padding_ratio"`
	MergeBubbles   bool    `toml:"merge_bubbles"`
}

type Pipeline struct {
	TargetLanguage string        `toml:"target_language"`
	Concurrency    int           `toml:"concurrency"`
	MinBlockSidePx float64       `toml:"min_block_side_px"`
	StageTimeout   time.Duration `toml:"stage_timeout"`
	MaxAttempts    int           `toml:"max_attempts"`
	InitialBackoff time.Duration `toml:"initial_backoff"`
	MaxBackoff     time.Duration `toml:"max_backoff"`
}

type Fonts struct {
	// Directory scanned for *.ttf files. Empty uses the built-in Go fonts only.
	Dir      string `toml:"dir"`
	Fallback string `toml:"fallback"`
}

type Providers struct {
	// vision, documentai or tesseract.
	OCR string `toml:"ocr"`
	// openai or genai.
	Translator  string `toml:"translator"`
	OpenAIModel string `toml:"openai_model"`
	GeminiModel string `toml:"gemini_model"`
	// Split tall pages (webtoon strips) before OCR.
	SplitLongImages    bool       `toml:"split_long_images"`
	TesseractLanguages []string   `toml:"tesseract_languages"`
	DocumentAI         DocumentAI `toml:"documentai"`
}

type DocumentAI struct {
	// E.g., special-tf-prod
	ProjectID string `toml:"project_id"`
	// E.g., us
	Location    string `toml:"location"`
	ProcessorID string `toml:"processor_id"`
	// E.g., us-documentai.googleapis.com:443
	Endpoint string `toml:"endpoint"`
}

type Storage struct {
	// gcs, local or none.
	Backend string `toml:"backend"`
	Bucket  string `toml:"bucket"`
	// Root directory of the local backend.
	Dir string `toml:"dir"`
}

func Default() *Config {
	proximity := cluster.DefaultParams()
	retry := impl.DefaultRetryPolicy()
	return &Config{
		Style: layout.DefaultStyle(),
		Mask:  Mask{Enabled: true, PaddingPx: 4},
		Cluster: Cluster{
			Strategy:       string(impl.ClusterProximity),
			Mode:           "isotropic",
			Linkage:        "greedy",
			RowTolerancePx: proximity.RowTolerancePx,
			DistanceFactor: proximity.DistanceFactor,
			AlongGapFactor: proximity.AlongGapFactor,
			CrossGapFactor: proximity.CrossGapFactor,
			PaddingRatio:   proximity.PaddingRatio,
			MergeBubbles:   true,
		},
		Pipeline: Pipeline{
			TargetLanguage: "EN-US",
			Concurrency:    4,
			MinBlockSidePx: 4,
			StageTimeout:   time.Minute,
			MaxAttempts:    retry.MaxAttempts,
			InitialBackoff: retry.InitialInterval,
			MaxBackoff:     retry.MaxInterval,
		},
		Fonts: Fonts{Fallback: enginefont.FamilyGo},
		Providers: Providers{
			OCR:                "vision",
			Translator:         "openai",
			OpenAIModel:        "gpt-4o-mini",
			GeminiModel:        "gemini-1.5-flash",
			SplitLongImages:    true,
			TesseractLanguages: []string{"jpn", "jpn_vert", "eng"},
		},
		Storage: Storage{Backend: "local", Bucket: "rendered", Dir: "out"},
	}
}

// Load reads path on top of the defaults (an empty path skips the file), applies
// environment overrides and validates the result. Unknown keys in the file are an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		metadata, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return nil, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Pipeline.TargetLanguage = env.StringVariable("MANGAFLOW_TARGET_LANGUAGE", c.Pipeline.TargetLanguage)
	c.Providers.OCR = env.StringVariable("MANGAFLOW_OCR", c.Providers.OCR)
	c.Providers.Translator = env.StringVariable("MANGAFLOW_TRANSLATOR", c.Providers.Translator)
	c.Fonts.Dir = env.StringVariable("MANGAFLOW_FONT_DIR", c.Fonts.Dir)
	c.Storage.Backend = env.StringVariable("MANGAFLOW_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Bucket = env.StringVariable("MANGAFLOW_STORAGE_BUCKET", c.Storage.Bucket)
	c.Storage.Dir = env.StringVariable("MANGAFLOW_STORAGE_DIR", c.Storage.Dir)
	c.Providers.DocumentAI.ProjectID = env.StringVariable("GCP_PROJECT_ID", c.Providers.DocumentAI.ProjectID)
	c.Providers.DocumentAI.Location = env.StringVariable("DOCUMENTAI_LOCATION", c.Providers.DocumentAI.Location)
	c.Providers.DocumentAI.ProcessorID = env.StringVariable("DOCUMENTAI_PROCESSOR_ID", c.Providers.DocumentAI.ProcessorID)
	c.Providers.DocumentAI.Endpoint = env.StringVariable("DOCUMENTAI_ENDPOINT", c.Providers.DocumentAI.Endpoint)

	var err error
	if c.Pipeline.Concurrency, err = env.IntVariable("MANGAFLOW_CONCURRENCY", c.Pipeline.Concurrency); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Pipeline.StageTimeout, err = env.DurationVariable("MANGAFLOW_STAGE_TIMEOUT", c.Pipeline.StageTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Mask.Enabled, err = env.BoolVariable("MANGAFLOW_MASK", c.Mask.Enabled); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Style.Validate(); err != nil {
		return err
	}
	if _, err := c.CompositorOptions(); err != nil {
		return err
	}
	if _, err := c.clusterMode(); err != nil {
		return err
	}
	if _, err := c.clusterLinkage(); err != nil {
		return err
	}

	checks := []struct {
		name    string
		value   string
		allowed []string
	}{
		{"cluster.strategy", c.Cluster.Strategy, []string{string(impl.ClusterProximity), string(impl.ClusterRaster), string(impl.ClusterNone)}},
		{"providers.ocr", c.Providers.OCR, []string{"vision", "documentai", "tesseract"}},
		{"providers.translator", c.Providers.Translator, []string{"openai", "genai"}},
		{"storage.backend", c.Storage.Backend, []string{"gcs", "local", "none"}},
	}
	for _, check := range checks {
		if !utils.Contains(check.allowed, check.value) {
			return fmt.Errorf("%w: %s must be one of %s, got %q", ErrInvalidConfig, check.name, strings.Join(check.allowed, ", "), check.value)
		}
	}

	switch {
	case c.Pipeline.TargetLanguage == "":
		return fmt.Errorf("%w: pipeline.target_language is required", ErrInvalidConfig)
	case c.Pipeline.Concurrency < 0:
		return fmt.Errorf("%w: pipeline.concurrency must not be negative", ErrInvalidConfig)
	case c.Pipeline.StageTimeout < 0:
		return fmt.Errorf("%w: pipeline.stage_timeout must not be negative", ErrInvalidConfig)
	case c.Mask.PaddingPx < 0:
		return fmt.Errorf("%w: mask.padding_px must not be negative", ErrInvalidConfig)
	case c.Storage.Backend == "gcs" && c.Storage.Bucket == "":
		return fmt.Errorf("%w: storage.bucket is required for gcs", ErrInvalidConfig)
	case c.Providers.OCR == "documentai" && (c.Providers.DocumentAI.ProjectID == "" || c.Providers.DocumentAI.Location == "" || c.Providers.DocumentAI.ProcessorID == ""):
		return fmt.Errorf("%w: providers.documentai needs project_id, location and processor_id", ErrInvalidConfig)
	}
	return nil
}

// CompositorOptions converts the style and mask settings. Inpainting uses the
// diffusion inpainter.
func (c *Config) CompositorOptions() (compositor.Options, error) {
	options := compositor.Options{
		MaskOriginalRegions: c.Mask.Enabled,
		MaskPaddingPx:       c.Mask.PaddingPx,
		Style:               c.Style,
	}
	if c.Mask.Color != "" {
		maskColor, err := compositor.ParseHexColor(c.Mask.Color)
		if err != nil {
			return compositor.Options{}, fmt.Errorf("%w: mask.color: %w", ErrInvalidConfig, err)
		}
		options.MaskColor = maskColor
	}
	if c.Mask.TextColor != "" {
		textColor, err := compositor.ParseHexColor(c.Mask.TextColor)
		if err != nil {
			return compositor.Options{}, fmt.Errorf("%w: mask.text_color: %w", ErrInvalidConfig, err)
		}
		options.TextColor = textColor
	}
	if c.Mask.Inpaint {
		options.Inpainter = compositor.NewDiffusionInpainter()
	}
	return options, nil
}

// PipelineOptions converts the settings into pipeline options. Every stage shares the
// configured timeout and retry policy.
func (c *Config) PipelineOptions() (impl.Options, error) {
	composite, err := c.CompositorOptions()
	if err != nil {
		return impl.Options{}, err
	}
	mode, err := c.clusterMode()
	if err != nil {
		return impl.Options{}, err
	}
	linkage, err := c.clusterLinkage()
	if err != nil {
		return impl.Options{}, err
	}

	stage := impl.StageOptions{
		Timeout: c.Pipeline.StageTimeout,
		Retry: impl.RetryPolicy{
			MaxAttempts:     c.Pipeline.MaxAttempts,
			InitialInterval: c.Pipeline.InitialBackoff,
			MaxInterval:     c.Pipeline.MaxBackoff,
		},
	}
	raster := cluster.DefaultRasterParams()
	raster.PaddingRatio = c.Cluster.PaddingRatio

	return impl.Options{
		TargetLanguage: c.Pipeline.TargetLanguage,
		Clustering: impl.Clustering{
			Strategy: impl.ClusterStrategy(c.Cluster.Strategy),
			Proximity: cluster.Params{
				Mode:           mode,
				Linkage:        linkage,
				RowTolerancePx: c.Cluster.RowTolerancePx,
				DistanceFactor: c.Cluster.DistanceFactor,
				AlongGapFactor: c.Cluster.AlongGapFactor,
				CrossGapFactor: c.Cluster.CrossGapFactor,
				PaddingRatio:   c.Cluster.PaddingRatio,
			},
			Raster:       raster,
			MergeBubbles: c.Cluster.MergeBubbles,
		},
		Composite:      composite,
		MinBlockSidePx: c.Pipeline.MinBlockSidePx,
		OCR:            stage,
		Translate:      stage,
		Render:         stage,
		Persist:        stage,
	}, nil
}

func (c *Config) clusterMode() (cluster.Mode, error) {
	switch strings.ToLower(c.Cluster.Mode) {
	case "", "isotropic":
		return cluster.ModeIsotropic, nil
	case "per-axis", "per_axis":
		return cluster.ModePerAxis, nil
	}
	return 0, fmt.Errorf("%w: cluster.mode must be isotropic or per-axis, got %q", ErrInvalidConfig, c.Cluster.Mode)
}

func (c *Config) clusterLinkage() (cluster.Linkage, error) {
	switch strings.ToLower(c.Cluster.Linkage) {
	case "", "greedy":
		return cluster.LinkageGreedy, nil
	case "single":
		return cluster.LinkageSingle, nil
	}
	return 0, fmt.Errorf("%w: cluster.linkage must be greedy or single, got %q", ErrInvalidConfig, c.Cluster.Linkage)
}
