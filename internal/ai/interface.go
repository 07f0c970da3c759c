// interface.go - Provider interface for supporting multiple AI providers

package ai

import (
	"context"
	"strings"

	"github.com/bosocmputer/statement_ledger/internal/common"
)

// Role of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment is binary content sent alongside a turn (a page image).
type Attachment struct {
	MimeType string
	Data     []byte
}

// Message is one conversation turn.
type Message struct {
	Role        Role
	Content     string
	Attachments []Attachment
}

// Request is a provider-neutral model call.
type Request struct {
	Messages []Message
	// JSONMode asks the provider to constrain output to a JSON object.
	JSONMode bool
}

// Completion is the raw output of one successful call.
type Completion struct {
	Text  string
	Usage common.TokenUsage
}

// Provider defines the interface that all model providers must implement.
// Invoke runs one call with one credential against one model and returns
// the raw text with the token usage the provider reported. Failures are
// returned as *ProviderError.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, apiKey, model string, req Request) (Completion, error)
}

// ModelSpec is one tier of the model waterfall.
type ModelSpec struct {
	Provider string `json:"provider" bson:"provider"`
	Name     string `json:"name" bson:"name"`
	Label    string `json:"label" bson:"label"`
}

// Credential is one API key of a provider. Ordinal is 1-based within the
// provider and is what progress reports show; the key itself never leaves
// the process.
type Credential struct {
	Provider string
	Key      string
	Ordinal  int
}

// SplitSystem pulls system turns out of msgs, joined in order, and returns
// the remaining conversation.
func SplitSystem(msgs []Message) (system string, turns []Message) {
	var parts []string
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if s := strings.TrimSpace(m.Content); s != "" {
				parts = append(parts, s)
			}
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(parts, "\n\n"), turns
}

// CollapseTurns merges consecutive turns with the same role. Providers that
// require alternating roles reject the uncollapsed form.
func CollapseTurns(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			prev := &out[n-1]
			switch {
			case prev.Content == "":
				prev.Content = m.Content
			case m.Content != "":
				prev.Content += "\n\n" + m.Content
			}
			prev.Attachments = append(prev.Attachments, m.Attachments...)
			continue
		}
		m.Attachments = append([]Attachment(nil), m.Attachments...)
		out = append(out, m)
	}
	return out
}
