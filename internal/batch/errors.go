package batch

import "github.com/bosocmputer/statement_ledger/internal/common"

type categorizedError struct {
	msg      string
	category string
}

func (e *categorizedError) Error() string    { return e.msg }
func (e *categorizedError) Category() string { return e.category }

var (
	// ErrNotFound is returned for an unknown batch id.
	ErrNotFound error = &categorizedError{"batch not found", common.CategoryNotFound}

	// ErrBusy is returned when a batch is running and the operation needs it idle.
	ErrBusy error = &categorizedError{"batch is running", common.CategoryBusy}

	// ErrNoChunkSucceeded is the outcome of a run in which every chunk failed.
	ErrNoChunkSucceeded error = &categorizedError{"no chunk was processed successfully", common.CategoryNoChunk}

	// ErrNotMerged is returned by ledger edits before the first merge.
	ErrNotMerged error = &categorizedError{"ledger has not been merged yet", common.CategoryNothingToMerge}

	// ErrEmptyDocument is returned when a document yields no chunks.
	ErrEmptyDocument error = &categorizedError{"document has no content to process", common.CategoryInvalidInput}
)
