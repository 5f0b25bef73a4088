package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultModelName = "gemini-2.0-flash"

	roleUser  = "user"
	roleModel = "model"
)

// Turn is one prior message of a conversation in model terms; Role is
// "user" or "model".
type Turn struct {
	Role string
	Text string
}

// LanguageModel is the hosted model the engine prompts.
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Chat(ctx context.Context, history []Turn, message string) (string, error)
}

// ModelFactory builds a model bound to one API key.
type ModelFactory func(ctx context.Context, apiKey string) (LanguageModel, error)

// GeminiModel is a LanguageModel backed by the Gemini API.
type GeminiModel struct {
	client    *genai.Client
	modelName string
	Timeout   time.Duration
}

func NewGeminiModel(ctx context.Context, apiKey, modelName string) (*GeminiModel, error) {
	if modelName == "" {
		modelName = DefaultModelName
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiModel{client: client, modelName: modelName, Timeout: 60 * time.Second}, nil
}

// GeminiFactory returns a ModelFactory for the named model.
func GeminiFactory(modelName string) ModelFactory {
	return func(ctx context.Context, apiKey string) (LanguageModel, error) {
		return NewGeminiModel(ctx, apiKey, modelName)
	}
}

func (m *GeminiModel) Close() error {
	return m.client.Close()
}

func (m *GeminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	resp, err := m.client.GenerativeModel(m.modelName).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate request failed: %w", err)
	}
	return responseText(resp)
}

func (m *GeminiModel) Chat(ctx context.Context, history []Turn, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	chatSession := m.client.GenerativeModel(m.modelName).StartChat()
	chatSession.History = toContents(history)

	resp, err := chatSession.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	return responseText(resp)
}

func toContents(history []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		contents = append(contents, &genai.Content{
			Role:  t.Role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response was empty or had no valid candidates/parts")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	if responseText.Len() == 0 {
		return "", fmt.Errorf("gemini response had no text parts")
	}
	return responseText.String(), nil
}
