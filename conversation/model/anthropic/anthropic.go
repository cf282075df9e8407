// Package anthropic implements model.ChatModel over Anthropic's message
// protocol using the official anthropic-sdk-go.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/omniaweb/chatbot/conversation/model"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 1024
)

// ChatModel calls the Anthropic Messages API. Anthropic passes the system
// prompt as a separate parameter, so system messages are extracted from the
// conversation before the call.
type ChatModel struct {
	client      anthropic.Client
	modelName   string
	maxTokens   int64
	temperature float64
}

// NewChatModel creates an Anthropic-backed ChatModel.
func NewChatModel(apiKey, modelName string, maxTokens int, temperature float64) *ChatModel {
	if modelName == "" {
		modelName = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &ChatModel{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName:   modelName,
		maxTokens:   int64(maxTokens),
		temperature: temperature,
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	var system strings.Builder
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.modelName),
		MaxTokens:   m.maxTokens,
		Temperature: anthropic.Float(m.temperature),
	}

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(msg.Content)
		case model.RoleAssistant:
			params.Messages = append(params.Messages,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if system.Len() > 0 {
		params.System = []anthropic.TextBlockParam{{Text: system.String()}}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic message: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}

	return model.ChatOut{
		Text: text.String(),
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
