package repair

import (
	"fmt"

	"github.com/bosocmputer/statement_ledger/internal/common"
)

// EmptyResponseError is returned when the model answered with nothing usable.
type EmptyResponseError struct{}

func (*EmptyResponseError) Error() string    { return "model returned an empty response" }
func (*EmptyResponseError) Category() string { return common.CategoryEmptyResponse }

// ErrEmptyResponse is the sentinel for empty model output.
var ErrEmptyResponse error = &EmptyResponseError{}

// MalformedOutputError is returned when no repair tier produced a JSON object.
type MalformedOutputError struct {
	Err     error  // last parse error
	Excerpt string // start of the raw response, for logs only
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("model output is not valid JSON: %v (excerpt: %q)", e.Err, e.Excerpt)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

func (e *MalformedOutputError) Category() string { return common.CategoryMalformedOutput }
