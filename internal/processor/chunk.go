// chunk.go - Unit of work sent to the model

package processor

import (
	"github.com/bosocmputer/statement_ledger/internal/common"
	"github.com/bosocmputer/statement_ledger/internal/ledger"
)

// ChunkKind is the payload type of a chunk.
type ChunkKind string

const (
	KindText  ChunkKind = "text"
	KindImage ChunkKind = "image"
)

// ChunkStatus is the lifecycle state of a chunk.
type ChunkStatus string

const (
	StatusPending    ChunkStatus = "pending"
	StatusInProgress ChunkStatus = "in_progress"
	StatusCompleted  ChunkStatus = "completed"
	StatusFailed     ChunkStatus = "failed"
)

// Chunk is one bounded part of a statement. Index is 1-based and never
// changes; chunks are re-run, never deleted.
type Chunk struct {
	Index    int       `json:"index" bson:"index"`
	Kind     ChunkKind `json:"type" bson:"type"`
	Data     string    `json:"data" bson:"data"`
	MimeType string    `json:"mime_type,omitempty" bson:"mime_type,omitempty"`
	// BodyLines is the number of source lines the chunk owns, header excluded
	BodyLines int `json:"body_lines,omitempty" bson:"body_lines,omitempty"`

	Status        ChunkStatus      `json:"status" bson:"status"`
	Error         string           `json:"error,omitempty" bson:"error,omitempty"`
	ErrorCategory string           `json:"error_category,omitempty" bson:"error_category,omitempty"`
	OCRText       string           `json:"ocr_text,omitempty" bson:"ocr_text,omitempty"`
	Fragment      *ledger.Fragment `json:"fragment,omitempty" bson:"fragment,omitempty"`
	Included      bool             `json:"included" bson:"included"`

	ModelLabel        string `json:"model_label,omitempty" bson:"model_label,omitempty"`
	CredentialOrdinal int    `json:"credential_ordinal,omitempty" bson:"credential_ordinal,omitempty"`
	Calls             int    `json:"calls,omitempty" bson:"calls,omitempty"`

	// Usage sums the tokens of the successful OCR and extraction calls
	Usage common.TokenUsage `json:"usage" bson:"usage"`
}

// Reset returns the chunk to pending and drops any previous result.
func (c *Chunk) Reset() {
	c.Status = StatusPending
	c.Error = ""
	c.ErrorCategory = ""
	c.OCRText = ""
	c.Fragment = nil
	c.ModelLabel = ""
	c.CredentialOrdinal = 0
	c.Calls = 0
	c.Usage = common.TokenUsage{}
}

// Clone returns a copy that shares no mutable state with c. Fragments are
// immutable after parse and are shared.
func (c *Chunk) Clone() *Chunk {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Done reports whether the chunk reached a terminal state.
func (c *Chunk) Done() bool {
	return c.Status == StatusCompleted || c.Status == StatusFailed
}
