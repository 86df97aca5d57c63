package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/lox/showcase/internal/models"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const DefaultModel = "gpt-4o-mini"

var ErrNoAPIKey = errors.New("OPENAI_API_KEY not set")

// OpenAI completes conversations with the chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
	hasKey bool
}

// NewOpenAI creates a completer. An empty apiKey yields a completer whose
// every call fails with ErrNoAPIKey, so sessions degrade to the error reply.
func NewOpenAI(apiKey, model string, opts ...option.RequestOption) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		hasKey: apiKey != "",
	}
}

func (o *OpenAI) Model() string {
	return o.model
}

func (o *OpenAI) Complete(ctx context.Context, persona string, history []Turn) (string, error) {
	if !o.hasKey {
		return "", ErrNoAPIKey
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if persona != "" {
		messages = append(messages, openai.SystemMessage(persona))
	}
	for _, t := range history {
		switch t.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(t.Text))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Text))
		default:
			return "", fmt.Errorf("unknown role %q", t.Role)
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
