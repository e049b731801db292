package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/norachat/agentic/domain"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "phi3:mini"
)

// OllamaGenerator is the local backend: a model loaded by an Ollama runtime
// on this host, reached over its HTTP API.
type OllamaGenerator struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewOllamaGenerator(cfg OllamaConfig) *OllamaGenerator {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &OllamaGenerator{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaChatMessage    `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

func (g *OllamaGenerator) Name() string {
	return "ollama"
}

func (g *OllamaGenerator) Stream(ctx context.Context, req domain.GenerationRequest) (domain.Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- domain.Event) error {
		options := map[string]interface{}{}
		if req.MaxTokens > 0 {
			options["num_predict"] = req.MaxTokens
		}
		if req.Temperature > 0 {
			options["temperature"] = req.Temperature
		}
		if req.TopP > 0 {
			options["top_p"] = req.TopP
		}

		messages := make([]ollamaChatMessage, 0, len(req.Messages))
		for _, msg := range req.Messages {
			messages = append(messages, ollamaChatMessage{Role: string(msg.Role), Content: msg.Content})
		}

		body, err := json.Marshal(ollamaChatRequest{
			Model:    g.model,
			Messages: messages,
			Stream:   true,
			Options:  options,
		})
		if err != nil {
			return fmt.Errorf("marshal ollama request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build ollama request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := g.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return wrapStreamErr(g.Name(), err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return wrapStreamErr(g.Name(), fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, detail))
		}

		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk ollamaChatResponse
			if err := decoder.Decode(&chunk); err != nil {
				if err == io.EOF {
					break
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return wrapStreamErr(g.Name(), fmt.Errorf("decode ollama chunk: %w", err))
			}
			if chunk.Error != "" {
				return wrapStreamErr(g.Name(), fmt.Errorf("ollama error: %s", chunk.Error))
			}
			if chunk.Message.Content != "" {
				select {
				case events <- domain.Event{Type: domain.EventTextDelta, Text: chunk.Message.Content}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if chunk.Done {
				break
			}
		}

		select {
		case events <- domain.Event{Type: domain.EventDone}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}), nil
}

// IsAvailable probes the runtime so the UI can surface local-model status.
func (g *OllamaGenerator) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
