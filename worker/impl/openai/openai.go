package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/childhoods-end/v0-manga-flow-sub000/worker/impl/translate"
)

// ChatCompleter is satisfied by *openai.Client and by the Gemini adapter in
// worker/impl/genai.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const (
	DefaultModel = "gpt-4o-mini"

	temperature = 0.3
	maxTokens   = 2000
)

var ErrNoChoices = errors.New("no choices found in response")

type Translator struct {
	client ChatCompleter
	model  string
}

// New creates a translator. An empty model uses DefaultModel.
func New(client ChatCompleter, model string) *Translator {
	if model == "" {
		model = DefaultModel
	}
	return &Translator{client: client, model: model}
}

// Translate sends all segments in one indexed request and returns translations keyed
// by segment id. Segments the model skipped are absent from the result.
func (t *Translator) Translate(ctx context.Context, segments []translate.Segment, targetLanguage string) (map[string]string, error) {
	if len(segments) == 0 {
		return map[string]string{}, nil
	}

	content, err := t.chatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: translate.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: translate.Prompt(segments, targetLanguage),
			},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("translation failed: %w", err)
	}
	return translate.Parse(content, segments)
}

func (t *Translator) chatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (string, error) {
	response, err := t.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", ErrNoChoices
	}
	return response.Choices[0].Message.Content, nil
}
