// Package openai implements model.ChatModel over OpenAI's chat-completion
// protocol using the official openai-go SDK.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/omniaweb/chatbot/conversation/model"
)

const defaultModel = "gpt-4o-mini"

// ChatModel calls OpenAI chat completions. The SDK handles transient-error
// retries; context deadlines bound each attempt.
type ChatModel struct {
	client      openai.Client
	modelName   string
	maxTokens   int64
	temperature float64
}

// NewChatModel creates an OpenAI-backed ChatModel. An empty modelName
// selects the default model; maxTokens <= 0 leaves the provider default.
func NewChatModel(apiKey, modelName string, maxTokens int, temperature float64) *ChatModel {
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		modelName:   modelName,
		maxTokens:   int64(maxTokens),
		temperature: temperature,
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(m.modelName),
		Temperature: openai.Float(m.temperature),
	}
	if m.maxTokens > 0 {
		params.MaxTokens = openai.Int(m.maxTokens)
	}
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.ChatOut{}, errors.New("openai chat completion: empty choices")
	}

	return model.ChatOut{
		Text: resp.Choices[0].Message.Content,
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}
