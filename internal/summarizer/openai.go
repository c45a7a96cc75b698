package summarizer

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIBackend implements Backend over any chat-completions-compatible API
// (OpenAI, Mistral, local gateways) via the official openai-go SDK.
type OpenAIBackend struct {
	model string
	opts  []option.RequestOption
}

func NewOpenAIBackend(apiKey, model, baseURL string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, errors.New("summarizer: api key missing")
	}
	if model == "" {
		return nil, errors.New("summarizer: model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIBackend{model: model, opts: opts}, nil
}

func (b *OpenAIBackend) Complete(ctx context.Context, prompt string) (string, error) {
	client := openai.NewClient(b.opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("summarizer: empty choices from completion API")
	}
	return resp.Choices[0].Message.Content, nil
}
