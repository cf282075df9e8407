// Package google implements model.ChatModel over the Gemini API using the
// official generative-ai-go SDK.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/omniaweb/chatbot/conversation/model"
)

const defaultModel = "gemini-1.5-flash"

// ChatModel calls the Gemini generateContent API.
type ChatModel struct {
	client    *genai.Client
	modelName string
	maxTokens int32
	temp      float32
}

// NewChatModel creates a Gemini-backed ChatModel. The SDK client opens its
// transport eagerly, hence the context and error return.
func NewChatModel(ctx context.Context, apiKey, modelName string, maxTokens int, temperature float64) (*ChatModel, error) {
	if modelName == "" {
		modelName = defaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &ChatModel{
		client:    client,
		modelName: modelName,
		maxTokens: int32(maxTokens),
		temp:      float32(temperature),
	}, nil
}

// Close releases the underlying transport.
func (m *ChatModel) Close() error { return m.client.Close() }

// Chat implements model.ChatModel. Gemini has no chat-message parameter in
// generateContent, so prior turns are folded into a single prompt.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	gm := m.client.GenerativeModel(m.modelName)
	gm.SetTemperature(m.temp)
	if m.maxTokens > 0 {
		gm.SetMaxOutputTokens(m.maxTokens)
	}

	var system, prompt strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system.WriteString(msg.Content)
			system.WriteString("\n")
		case model.RoleAssistant:
			prompt.WriteString("Assistente: " + msg.Content + "\n")
		default:
			prompt.WriteString("Utente: " + msg.Content + "\n")
		}
	}
	if system.Len() > 0 {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system.String())}}
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt.String()))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.ChatOut{}, errors.New("gemini generate content: empty candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := model.ChatOut{Text: text.String()}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}
