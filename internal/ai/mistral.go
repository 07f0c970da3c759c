// mistral.go - Mistral AI chat completions adapter

package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bosocmputer/statement_ledger/internal/common"
)

const defaultMistralBaseURL = "https://api.mistral.ai/v1"

// MistralProvider implements Provider for Mistral AI
type MistralProvider struct {
	baseURL   string
	maxTokens int
	client    *http.Client
}

// NewMistralProvider creates a new Mistral AI provider. timeout bounds every
// call.
func NewMistralProvider(timeout time.Duration, maxTokens int) *MistralProvider {
	return &MistralProvider{
		baseURL:   defaultMistralBaseURL,
		maxTokens: maxTokens,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithBaseURL points the adapter at another endpoint (proxies, tests).
func (m *MistralProvider) WithBaseURL(url string) *MistralProvider {
	m.baseURL = strings.TrimRight(url, "/")
	return m
}

// Name returns "mistral"
func (m *MistralProvider) Name() string {
	return "mistral"
}

// Mistral chat API request/response structures
type mistralContentPart struct {
	Type     string `json:"type"`                // "text" or "image_url"
	Text     string `json:"text,omitempty"`      // for type="text"
	ImageURL string `json:"image_url,omitempty"` // base64 data URL for type="image_url"
}

type mistralChatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string, or []mistralContentPart with images
}

type mistralResponseFormat struct {
	Type string `json:"type"`
}

type mistralChatRequest struct {
	Model          string                 `json:"model"`
	Messages       []mistralChatMessage   `json:"messages"`
	Temperature    float64                `json:"temperature"`
	MaxTokens      int                    `json:"max_tokens,omitempty"`
	ResponseFormat *mistralResponseFormat `json:"response_format,omitempty"`
}

type mistralChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type mistralErrorResponse struct {
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Invoke posts the collapsed conversation to /chat/completions.
func (m *MistralProvider) Invoke(ctx context.Context, apiKey, model string, req Request) (Completion, error) {
	system, turns := SplitSystem(req.Messages)
	turns = CollapseTurns(turns)
	if len(turns) == 0 {
		return Completion{}, &ProviderError{Kind: KindFatal, Provider: m.Name(), Model: model, Message: "request has no user turn"}
	}

	request := mistralChatRequest{
		Model:       model,
		Temperature: 0,
		MaxTokens:   m.maxTokens,
	}
	if system != "" {
		request.Messages = append(request.Messages, mistralChatMessage{Role: "system", Content: system})
	}
	for _, t := range turns {
		request.Messages = append(request.Messages, mistralMessage(t))
	}
	if req.JSONMode {
		request.ResponseFormat = &mistralResponseFormat{Type: "json_object"}
	}

	response, err := m.callChatAPI(ctx, apiKey, request)
	if err != nil {
		return Completion{}, Classify(m.Name(), model, err)
	}
	out := Completion{
		Usage: common.NewTokenUsage(response.Usage.PromptTokens, response.Usage.CompletionTokens, response.Usage.TotalTokens),
	}
	if len(response.Choices) > 0 {
		out.Text = response.Choices[0].Message.Content
	}
	return out, nil
}

func mistralMessage(t Message) mistralChatMessage {
	role := "user"
	if t.Role == RoleAssistant {
		role = "assistant"
	}
	if len(t.Attachments) == 0 {
		return mistralChatMessage{Role: role, Content: t.Content}
	}

	var parts []mistralContentPart
	for _, a := range t.Attachments {
		// For images, encode to base64 with proper MIME type
		dataURL := fmt.Sprintf("data:%s;base64,%s", a.MimeType, base64.StdEncoding.EncodeToString(a.Data))
		parts = append(parts, mistralContentPart{Type: "image_url", ImageURL: dataURL})
	}
	if t.Content != "" {
		parts = append(parts, mistralContentPart{Type: "text", Text: t.Content})
	}
	return mistralChatMessage{Role: role, Content: parts}
}

// callChatAPI makes HTTP request to the Mistral chat API
func (m *MistralProvider) callChatAPI(ctx context.Context, apiKey string, request mistralChatRequest) (*mistralChatResponse, error) {
	// Marshal request
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))

	// Send request
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Message: mistralErrorMessage(body)}
	}

	var response mistralChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &response, nil
}

func mistralErrorMessage(body []byte) string {
	var errResp mistralErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error.Message != "" {
			return errResp.Error.Message
		}
		if errResp.Message != "" {
			return errResp.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
