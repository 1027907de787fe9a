package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/presslens/presslens/internal/domain"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	chatModel     = "gpt-4o-mini"
	chatTemp      = 0.7
)

type OpenAIClient struct {
	apiKey     string
	httpClient *http.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// chat types for OpenAI API
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	// Every stage expects structured output, so JSON mode is always on.
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a single-turn chat completion and returns the text
// response, classifying failures as transient or permanent.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          chatModel,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    chatTemp,
		MaxTokens:      maxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", domain.NewPermanentError("openai", fmt.Errorf("marshal chat request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIChatURL, bytes.NewReader(body))
	if err != nil {
		return "", domain.NewPermanentError("openai", fmt.Errorf("create chat request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.NewTransientError("openai", fmt.Errorf("chat request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewTransientError("openai", fmt.Errorf("read chat response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
		if retryableStatus(resp.StatusCode) {
			return "", domain.NewTransientError("openai", err)
		}
		return "", domain.NewPermanentError("openai", err)
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", domain.NewTransientError("openai", fmt.Errorf("unmarshal chat response: %w", err))
	}

	if result.Error != nil {
		return "", domain.NewPermanentError("openai", fmt.Errorf("chat API error: %s", result.Error.Message))
	}

	if len(result.Choices) == 0 {
		return "", domain.NewTransientError("openai", fmt.Errorf("chat API returned no choices"))
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
