package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/norachat/agentic/domain"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIGenerator is the remote backend: a hosted chat-completion endpoint
// streamed over the OpenAI wire protocol.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIGenerator{client: &client, model: model}
}

func (g *OpenAIGenerator) Name() string {
	return "openai"
}

func (g *OpenAIGenerator) Stream(ctx context.Context, req domain.GenerationRequest) (domain.Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- domain.Event) error {
		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(g.model),
			Messages: buildOpenAIMessages(req.Messages),
		}
		if req.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(req.MaxTokens))
		}
		if req.Temperature > 0 {
			params.Temperature = openai.Float(req.Temperature)
		}
		if req.TopP > 0 {
			params.TopP = openai.Float(req.TopP)
		}

		stream := g.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case events <- domain.Event{Type: domain.EventTextDelta, Text: delta}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return wrapStreamErr(g.Name(), err)
		}
		select {
		case events <- domain.Event{Type: domain.EventDone}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}), nil
}

func buildOpenAIMessages(messages []domain.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case domain.SystemRole:
			out = append(out, openai.SystemMessage(msg.Content))
		case domain.AssistantRole:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
