// gemini.go - Gemini adapter built on the generative-ai-go SDK

package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bosocmputer/statement_ledger/internal/common"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements Provider for Google Gemini
type GeminiProvider struct {
	timeout         time.Duration
	maxOutputTokens int32
	clientOptions   []option.ClientOption
}

// NewGeminiProvider creates a Gemini adapter. timeout bounds every call;
// extra client options (endpoint overrides) are appended to the API key.
func NewGeminiProvider(timeout time.Duration, maxOutputTokens int, opts ...option.ClientOption) *GeminiProvider {
	return &GeminiProvider{
		timeout:         timeout,
		maxOutputTokens: int32(maxOutputTokens),
		clientOptions:   opts,
	}
}

// Name returns "gemini"
func (g *GeminiProvider) Name() string {
	return "gemini"
}

// Invoke sends the conversation as a chat: system turns become the system
// instruction, earlier turns the history and the last turn the message.
func (g *GeminiProvider) Invoke(ctx context.Context, apiKey, model string, req Request) (Completion, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	system, turns := SplitSystem(req.Messages)
	turns = CollapseTurns(turns)
	if len(turns) == 0 {
		return Completion{}, &ProviderError{Kind: KindFatal, Provider: g.Name(), Model: model, Message: "request has no user turn"}
	}

	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, g.clientOptions...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return Completion{}, Classify(g.Name(), model, err)
	}
	defer client.Close()

	m := client.GenerativeModel(model)
	temperature := float32(0)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: &temperature,
	}
	if g.maxOutputTokens > 0 {
		maxTokens := g.maxOutputTokens
		m.GenerationConfig.MaxOutputTokens = &maxTokens
	}
	if req.JSONMode {
		m.ResponseMIMEType = "application/json"
	}
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	// bank statements trip the default filters on names and amounts
	m.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}

	cs := m.StartChat()
	for _, t := range turns[:len(turns)-1] {
		cs.History = append(cs.History, &genai.Content{Role: geminiRole(t.Role), Parts: geminiParts(t)})
	}

	resp, err := cs.SendMessage(ctx, geminiParts(turns[len(turns)-1])...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return Completion{}, &ProviderError{Kind: KindFatal, Provider: g.Name(), Model: model, Message: "response blocked: " + blocked.Error(), Err: err}
		}
		return Completion{}, Classify(g.Name(), model, err)
	}

	return Completion{Text: geminiText(resp), Usage: geminiUsage(resp)}, nil
}

func geminiRole(r Role) string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}

func geminiParts(m Message) []genai.Part {
	var parts []genai.Part
	for _, a := range m.Attachments {
		parts = append(parts, genai.Blob{MIMEType: a.MimeType, Data: a.Data})
	}
	if m.Content != "" {
		parts = append(parts, genai.Text(m.Content))
	}
	return parts
}

func geminiUsage(resp *genai.GenerateContentResponse) common.TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return common.TokenUsage{}
	}
	u := resp.UsageMetadata
	return common.NewTokenUsage(int(u.PromptTokenCount), int(u.CandidatesTokenCount), int(u.TotalTokenCount))
}

// geminiText concatenates the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
