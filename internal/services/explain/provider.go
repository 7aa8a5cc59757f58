package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	errProviderStatusCode   = errors.New("explanation provider returned unexpected status code")
	errProviderEmptyAnswer  = errors.New("explanation provider returned an empty answer")
	errProviderDecodeFailed = errors.New("error decoding explanation provider response")
)

// Provider produces a short natural-language explanation for a prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ChatCompletionProvider calls an OpenAI-compatible chat completion endpoint.
type ChatCompletionProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
}

func NewChatCompletionProvider(baseURL, apiKey, model string, maxTokens int, timeout time.Duration) *ChatCompletionProvider {
	return &ChatCompletionProvider{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You are a financial reconciliation expert. Provide clear, concise explanations for why an invoice and bank transaction might match. Focus on amounts, dates, and descriptions. Keep responses to 2-4 sentences."

func (p *ChatCompletionProvider) Generate(ctx context.Context, prompt string) (string, error) {
	payload := chatCompletionRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   p.maxTokens,
		Temperature: 0.3,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %d", errProviderStatusCode, resp.StatusCode)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %v", errProviderDecodeFailed, err)
	}

	if len(decoded.Choices) == 0 {
		return "", errProviderEmptyAnswer
	}
	answer := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if answer == "" {
		return "", errProviderEmptyAnswer
	}
	return answer, nil
}
