package ledger

import (
	"errors"
	"fmt"

	"github.com/bosocmputer/statement_ledger/internal/common"
)

type categorizedError struct {
	msg      string
	category string
}

func (e *categorizedError) Error() string    { return e.msg }
func (e *categorizedError) Category() string { return e.category }

var (
	// ErrNothingToMerge is returned when no chunk is eligible for merging.
	ErrNothingToMerge error = &categorizedError{"no completed chunk selected for merge", common.CategoryNothingToMerge}

	// ErrNothingToUndo is returned by Undo on an empty history.
	ErrNothingToUndo error = &categorizedError{"nothing to undo", common.CategoryInvalidInput}

	errNoLedger = errors.New("ledger has not been merged yet")
)

// InputError reports an edit or override value that could not be applied.
type InputError struct {
	Field string
	Err   error
}

func (e *InputError) Error() string    { return fmt.Sprintf("invalid %s: %v", e.Field, e.Err) }
func (e *InputError) Unwrap() error    { return e.Err }
func (e *InputError) Category() string { return common.CategoryInvalidInput }

// ShapeError reports a model fragment that does not have the expected shape.
type ShapeError struct {
	Err error
}

func (e *ShapeError) Error() string    { return fmt.Sprintf("unexpected fragment shape: %v", e.Err) }
func (e *ShapeError) Unwrap() error    { return e.Err }
func (e *ShapeError) Category() string { return common.CategoryMalformedOutput }
