package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gcs "cloud.google.com/go/storage"
	vision "cloud.google.com/go/vision/v2/apiv1"
	"github.com/google/generative-ai-go/genai"
	"github.com/ridge/must/v2"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/compositor"
	enginefont "github.com/childhoods-end/v0-manga-flow-sub000/engine/font"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/model"
	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/env"
	"github.com/childhoods-end/v0-manga-flow-sub000/worker/impl"
	"github.com/childhoods-end/v0-manga-flow-sub000/worker/impl/config"
	implDocumentai "github.com/childhoods-end/v0-manga-flow-sub000/worker/impl/documentai"
	implGenai "github.com/childhoods-end/v0-manga-flow-sub000/worker/impl/genai"
	implOpenai "github.com/childhoods-end/v0-manga-flow-sub000/worker/impl/openai"
	"github.com/childhoods-end/v0-manga-flow-sub000/worker/impl/storage"
	"github.com/childhoods-end/v0-manga-flow-sub000/worker/impl/tesseract"
	implVision "github.com/childhoods-end/v0-manga-flow-sub000/worker/impl/vision"
)

func main() {
	env.Load()

	configPath := flag.String("config", os.Getenv("MANGAFLOW_CONFIG"), "path to a TOML config file")
	blocksPath := flag.String("blocks", "", "re-render one page from an edited blocks.json instead of running OCR and translation")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [-blocks blocks.json] image...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 || (*blocksPath != "" && flag.NArg() != 1) {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := must.OK1(config.Load(*configPath))
	options := must.OK1(cfg.PipelineOptions())

	// Fonts are every .ttf under the configured directory plus the built-in Go fonts.
	fontProvider := must.OK1(enginefont.New(cfg.Fonts.Dir))
	must.OK(fontProvider.SetFallback(cfg.Fonts.Fallback))

	ctx := context.Background()

	var storageClient storage.Client
	switch cfg.Storage.Backend {
	case "gcs":
		gcsClient := must.OK1(gcs.NewClient(ctx))
		defer gcsClient.Close()
		storageClient = storage.New(gcsClient)
	case "local":
		storageClient = storage.NewDirectory(cfg.Storage.Dir)
	}
	store := impl.Storage{Client: storageClient, Bucket: cfg.Storage.Bucket}

	if *blocksPath != "" {
		pipeline := impl.New(nil, nil, nil, store, fontProvider, options, logger)
		page := must.OK1(readEditedPage(flag.Arg(0), *blocksPath))
		report, err := pipeline.Rerender(ctx, page)
		if err != nil {
			logger.Error("re-render failed", "page_id", page.ID, "error", err)
			os.Exit(1)
		}
		logReport(logger, page, report)
		return
	}

	var ocr impl.OCR
	switch cfg.Providers.OCR {
	case "vision":
		visionClient := must.OK1(vision.NewImageAnnotatorClient(ctx))
		defer visionClient.Close()
		ocr = implVision.New(visionClient, cfg.Providers.SplitLongImages)
	case "documentai":
		var clientOptions []option.ClientOption
		if endpoint := cfg.Providers.DocumentAI.Endpoint; endpoint != "" {
			clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
		}
		documentaiClient := must.OK1(documentai.NewDocumentProcessorClient(ctx, clientOptions...))
		defer documentaiClient.Close()
		ocr = implDocumentai.New(documentaiClient, implDocumentai.Processor{
			ProjectID:   cfg.Providers.DocumentAI.ProjectID,
			Location:    cfg.Providers.DocumentAI.Location,
			ProcessorID: cfg.Providers.DocumentAI.ProcessorID,
		})
	case "tesseract":
		ocr = tesseract.New(cfg.Providers.TesseractLanguages...)
	}

	var translator impl.Translator
	switch cfg.Providers.Translator {
	case "openai":
		openaiKey := apiKey(ctx, "OPENAI_API_KEY", "OPENAI_KEY_SECRET_NAME")
		translator = implOpenai.New(openai.NewClient(openaiKey), cfg.Providers.OpenAIModel)
	case "genai":
		geminiKey := apiKey(ctx, "GEMINI_API_KEY", "GEMINI_API_KEY_SECRET_NAME")
		genaiClient := must.OK1(genai.NewClient(ctx, option.WithAPIKey(geminiKey)))
		defer genaiClient.Close()
		translator = implOpenai.New(implGenai.New(genaiClient), cfg.Providers.GeminiModel)
	}

	pages := make([]*model.Page, 0, flag.NArg())
	for _, path := range flag.Args() {
		pages = append(pages, &model.Page{
			ID:            pageID(path),
			OriginalImage: must.OK1(os.ReadFile(path)),
		})
	}

	pipeline := impl.New(ocr, translator, nil, store, fontProvider, options, logger)
	reports, err := pipeline.ProcessPages(ctx, pages, cfg.Pipeline.Concurrency)
	for i, page := range pages {
		if page.RenderedImage != nil {
			logReport(logger, page, reports[i])
		}
	}
	if err != nil {
		logger.Error("some pages failed", "error", err)
		os.Exit(1)
	}
}

// apiKey reads the key from envName for local development, otherwise from the Secret
// Manager secret named by secretEnvName.
func apiKey(ctx context.Context, envName, secretEnvName string) string {
	if key := os.Getenv(envName); key != "" {
		return key
	}
	secretmanagerClient := must.OK1(secretmanager.NewClient(ctx))
	defer secretmanagerClient.Close()
	return secretFromGCP(secretmanagerClient, ctx, env.RequiredStringVariable(secretEnvName))
}

func secretFromGCP(secretmanagerClient *secretmanager.Client, ctx context.Context, secretName string) string {
	secretValue := must.OK1(secretmanagerClient.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
			env.RequiredStringVariable("GCP_PROJECT_ID"),
			secretName,
		),
	}))
	return string(secretValue.Payload.Data)
}

// pageID names a page after its image file, e.g. "chapter1/003.png" becomes "003".
func pageID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// readEditedPage loads a page's original image with the blocks persisted by an earlier
// run, as edited by the user.
func readEditedPage(imagePath, blocksPath string) (*model.Page, error) {
	original, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(blocksPath)
	if err != nil {
		return nil, err
	}
	page := &model.Page{ID: pageID(imagePath), OriginalImage: original}
	if err := json.Unmarshal(data, page); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", blocksPath, err)
	}
	return page, nil
}

func logReport(logger *slog.Logger, page *model.Page, report compositor.Report) {
	logger.Info("page rendered",
		"page_id", page.ID,
		"blocks", len(page.Blocks),
		"rendered", len(report.Rendered),
		"truncated", len(report.Truncated),
		"skipped", len(report.Skipped),
	)
}
