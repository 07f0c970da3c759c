// Package batch runs chunked statements through the processor one chunk at a
// time, and holds the merged ledger users edit afterwards.
package batch

import (
	"context"
	"time"

	"github.com/bosocmputer/statement_ledger/internal/ledger"
	"github.com/bosocmputer/statement_ledger/internal/processor"
)

// State is the batch-level lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Batch is one uploaded statement with its chunks and merged ledger.
type Batch struct {
	ID        string              `json:"id" bson:"_id"`
	Filename  string              `json:"filename" bson:"filename"`
	Kind      processor.ChunkKind `json:"kind" bson:"kind"`
	ChunkSize int                 `json:"chunk_size" bson:"chunk_size"`
	Chunks    []*processor.Chunk  `json:"chunks" bson:"chunks"`

	State State `json:"state" bson:"state"`
	// Epoch changes on every start and cancel; results carrying an older
	// epoch are dropped.
	Epoch         int                `json:"epoch" bson:"epoch"`
	Progress      processor.Progress `json:"progress" bson:"progress"`
	Error         string             `json:"error,omitempty" bson:"error,omitempty"`
	ErrorCategory string             `json:"error_category,omitempty" bson:"error_category,omitempty"`

	Session *ledger.Session `json:"-" bson:"session,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Summary is the list view of a batch.
type Summary struct {
	ID        string    `json:"id" bson:"_id"`
	Filename  string    `json:"filename" bson:"filename"`
	State     State     `json:"state" bson:"state"`
	Chunks    int       `json:"chunks" bson:"chunks"`
	Merged    bool      `json:"merged" bson:"merged"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Store persists batches. Implementations copy on save and load.
type Store interface {
	SaveBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, id string) (*Batch, error)
	ListBatches(ctx context.Context) ([]Summary, error)
	DeleteBatch(ctx context.Context, id string) error
}

// Ledger returns the merged ledger, or nil before the first merge.
func (b *Batch) Ledger() *ledger.Ledger {
	if b == nil || b.Session == nil {
		return nil
	}
	return b.Session.Ledger
}

// CanUndo reports whether the ledger has an edit to undo.
func (b *Batch) CanUndo() bool {
	return b != nil && b.Session.CanUndo()
}

// Summary returns the list view.
func (b *Batch) Summary() Summary {
	return Summary{
		ID:        b.ID,
		Filename:  b.Filename,
		State:     b.State,
		Chunks:    len(b.Chunks),
		Merged:    b.Ledger() != nil,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

// Clone returns a deep copy. Fragments are immutable and shared.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	c := *b
	c.Chunks = make([]*processor.Chunk, len(b.Chunks))
	for i, ch := range b.Chunks {
		c.Chunks[i] = ch.Clone()
	}
	c.Session = b.Session.Clone()
	return &c
}

// Chunk returns the chunk with the given 1-based index.
func (b *Batch) Chunk(index int) (*processor.Chunk, bool) {
	for _, c := range b.Chunks {
		if c.Index == index {
			return c, true
		}
	}
	return nil, false
}

// Fragments returns the results of completed chunks selected for merge, in
// chunk order.
func (b *Batch) Fragments() []ledger.Fragment {
	var out []ledger.Fragment
	for _, c := range b.Chunks {
		if c.Status == processor.StatusCompleted && c.Included && c.Fragment != nil {
			out = append(out, *c.Fragment)
		}
	}
	return out
}

func (b *Batch) doneCount() int {
	n := 0
	for _, c := range b.Chunks {
		if c.Done() {
			n++
		}
	}
	return n
}

func (b *Batch) succeeded() bool {
	for _, c := range b.Chunks {
		if c.Status == processor.StatusCompleted {
			return true
		}
	}
	return false
}
