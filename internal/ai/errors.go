// errors.go - Provider error classification

package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/bosocmputer/statement_ledger/internal/common"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind decides what the dispatcher does after a failed call.
type ErrorKind string

const (
	// KindNetwork is transient: retry the same credential with backoff.
	KindNetwork ErrorKind = "network"
	// KindQuota means this credential is used up: move to the next one.
	KindQuota ErrorKind = "quota"
	// KindFatal aborts the whole dispatch.
	KindFatal ErrorKind = "fatal"
)

// ErrNoCredentials is the cause reported when no tier had a usable key.
var ErrNoCredentials = errors.New("no API key configured for any model tier")

// ProviderError represents a categorized provider failure
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	Model      string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s/%s [%s] %s (status: %d)", e.Provider, e.Model, e.Kind, e.Message, e.StatusCode)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Category maps the kind onto the user-facing message table.
func (e *ProviderError) Category() string {
	switch {
	case errors.Is(e.Err, context.Canceled):
		return common.CategoryCancelled
	case e.Kind == KindQuota:
		return common.CategoryQuota
	case e.Kind == KindNetwork:
		return common.CategoryNetwork
	}
	return common.CategoryFatal
}

// HTTPStatusError is returned by HTTP adapters for non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// AllResourcesExhaustedError is returned when every model and credential
// failed with quota or network errors.
type AllResourcesExhaustedError struct {
	Calls int
	Last  error
}

func (e *AllResourcesExhaustedError) Error() string {
	return fmt.Sprintf("all models and API keys exhausted after %d call(s): %v", e.Calls, e.Last)
}

func (e *AllResourcesExhaustedError) Unwrap() error    { return e.Last }
func (e *AllResourcesExhaustedError) Category() string { return common.CategoryExhausted }

// Classify turns any provider failure into a *ProviderError. Structured
// signals (HTTP and gRPC status codes) win over message heuristics.
func Classify(provider, model string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr
	}

	out := &ProviderError{Provider: provider, Model: model, Message: err.Error(), Err: err}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		out.StatusCode = apiErr.Code
		out.Kind = kindForStatus(apiErr.Code)
		if apiErr.Message != "" {
			out.Message = apiErr.Message
		}
		return out
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		out.StatusCode = httpErr.StatusCode
		out.Kind = kindForStatus(httpErr.StatusCode)
		out.Message = httpErr.Message
		return out
	}

	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown && s.Code() != codes.OK {
		out.Kind = kindForCode(s.Code())
		out.Message = s.Message()
		return out
	}

	switch {
	case errors.Is(err, context.Canceled):
		out.Kind = KindFatal
		return out
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindNetwork
		out.Message = "request timeout"
		return out
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		out.Kind = KindNetwork
		return out
	}

	out.Kind = kindForMessage(err.Error())
	return out
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == 429:
		return KindQuota
	case code == 408, code >= 500:
		return KindNetwork
	}
	return KindFatal
}

func kindForCode(c codes.Code) ErrorKind {
	switch c {
	case codes.ResourceExhausted:
		return KindQuota
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return KindNetwork
	}
	return KindFatal
}

var (
	quotaHints   = []string{"429", "resource exhausted", "resource_exhausted", "too many requests", "quota", "rate limit"}
	networkHints = []string{"500", "502", "503", "504", "overloaded", "unavailable", "timeout", "deadline exceeded",
		"connection reset", "connection refused", "broken pipe", "eof", "network", "no such host", "tls handshake"}
)

func kindForMessage(msg string) ErrorKind {
	msg = strings.ToLower(msg)
	for _, h := range quotaHints {
		if strings.Contains(msg, h) {
			return KindQuota
		}
	}
	for _, h := range networkHints {
		if strings.Contains(msg, h) {
			return KindNetwork
		}
	}
	return KindFatal
}
