package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig carries the provider settings read from the environment.
// BaseURL supports OpenAI-compatible gateways; empty means the default
// endpoint.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
}

// IsConfigured reports whether an API key is present. Absence is a valid
// non-error state handled by the Placeholder provider.
func (c OpenAIConfig) IsConfigured() bool { return strings.TrimSpace(c.APIKey) != "" }

// OpenAIProvider implements Provider on top of the OpenAI API.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *openai.Client
}

// NewOpenAIProvider builds a provider from cfg. Call only when
// cfg.IsConfigured(); otherwise use NewPlaceholder.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

// CreateEmbedding returns the embedding vector for text.
func (p *OpenAIProvider) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.cfg.EmbeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create embedding: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrProviderUnavailable)
	}
	return resp.Data[0].Embedding, nil
}

// Complete performs a single blocking chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt Prompt) (Reply, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(prompt))
	if err != nil {
		return Reply{}, fmt.Errorf("%w: chat completion: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Reply{}, fmt.Errorf("%w: empty completion response", ErrProviderUnavailable)
	}
	return Reply{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		Model:      resp.Model,
	}, nil
}

// StreamCompletion streams text deltas to onDelta and returns the assembled
// reply. A callback error aborts the stream and is returned as-is; provider
// failures are wrapped in ErrProviderUnavailable. Partial output yielded
// before a mid-stream failure stays delivered.
func (p *OpenAIProvider) StreamCompletion(ctx context.Context, prompt Prompt, onDelta func(string) error) (Reply, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.request(prompt))
	if err != nil {
		return Reply{}, fmt.Errorf("%w: create stream: %v", ErrProviderUnavailable, err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Reply{Content: full.String(), Model: p.cfg.ChatModel},
				fmt.Errorf("%w: stream receive: %v", ErrProviderUnavailable, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			if cbErr := onDelta(delta); cbErr != nil {
				return Reply{Content: full.String(), Model: p.cfg.ChatModel}, cbErr
			}
		}
	}
	return Reply{Content: full.String(), Model: p.cfg.ChatModel}, nil
}

// request converts a Prompt into the SDK's message list.
func (p *OpenAIProvider) request(prompt Prompt) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(prompt.History)+2)
	if prompt.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	for _, t := range prompt.History {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt.User,
	})

	return openai.ChatCompletionRequest{
		Model:       p.cfg.ChatModel,
		Messages:    msgs,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}
}
