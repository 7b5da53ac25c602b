// Package genai serves OpenAI chat completion requests with Gemini models.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"

	"github.com/childhoods-end/v0-manga-flow-sub000/pkg/utils"
)

type GenaiModel string

const (
	GenaiModelFlash GenaiModel = "gemini-1.5-flash"
	GenaiModelPro   GenaiModel = "gemini-1.5-pro"
)

var (
	ErrInvalidModel = errors.New("invalid model")
	ErrNoResponse   = errors.New("no response from model")
	ErrNoMessages   = errors.New("no messages in request")
)

// chat is one chat turn: history followed by the parts of the newest message.
type chat func(ctx context.Context, request openai.ChatCompletionRequest, history []*genai.Content, parts []genai.Part) (*genai.GenerateContentResponse, error)

type Client struct {
	send chat
}

func New(genaiClient *genai.Client) *Client {
	return &Client{send: func(ctx context.Context, request openai.ChatCompletionRequest, history []*genai.Content, parts []genai.Part) (*genai.GenerateContentResponse, error) {
		model := genaiClient.GenerativeModel(request.Model)
		temperature := request.Temperature
		model.Temperature = &temperature
		if request.MaxTokens > 0 {
			maxTokens := int32(request.MaxTokens)
			model.MaxOutputTokens = &maxTokens
		}
		session := model.StartChat()
		session.History = history
		return session.SendMessage(ctx, parts...)
	}}
}

func (c *Client) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if err := validateModel(request.Model); err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	if len(request.Messages) == 0 {
		return openai.ChatCompletionResponse{}, ErrNoMessages
	}

	last := len(request.Messages) - 1
	history := utils.Map(request.Messages[:last], toGenaiContent)
	resp, err := c.send(ctx, request, history, toGenaiParts(request.Messages[last]))
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return openai.ChatCompletionResponse{}, ErrNoResponse
	}

	return openai.ChatCompletionResponse{
		Model: request.Model,
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: responseText(resp.Candidates[0].Content),
				},
			},
		},
	}, nil
}

// toGenaiContent converts a history message. The library version in use has no system
// instruction field, so system messages are sent as prefixed user messages.
func toGenaiContent(message openai.ChatCompletionMessage) *genai.Content {
	if message.Role == openai.ChatMessageRoleSystem {
		return &genai.Content{
			Parts: []genai.Part{genai.Text("System: " + message.Content)},
			Role:  "user",
		}
	}
	return &genai.Content{
		Parts: toGenaiParts(message),
		Role:  toGenaiRole(message.Role),
	}
}

func toGenaiParts(message openai.ChatCompletionMessage) []genai.Part {
	if message.MultiContent != nil {
		texts := utils.Filter(message.MultiContent, func(part openai.ChatMessagePart) bool {
			return part.Type == openai.ChatMessagePartTypeText
		})
		return utils.Map(texts, func(part openai.ChatMessagePart) genai.Part {
			return genai.Text(part.Text)
		})
	}
	if message.Content == "" {
		return nil
	}
	return []genai.Part{genai.Text(message.Content)}
}

func toGenaiRole(role string) string {
	switch role {
	case openai.ChatMessageRoleAssistant:
		return "model"
	default:
		return "user"
	}
}

// responseText joins the text parts of a candidate.
func responseText(content *genai.Content) string {
	var builder strings.Builder
	for _, part := range content.Parts {
		if text, ok := part.(genai.Text); ok {
			builder.WriteString(string(text))
		}
	}
	return builder.String()
}

func validateModel(model string) error {
	switch GenaiModel(model) {
	case GenaiModelFlash, GenaiModelPro:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidModel, model)
	}
}
