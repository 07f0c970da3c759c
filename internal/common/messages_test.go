package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type categorizedErr string

func (e categorizedErr) Error() string    { return string(e) }
func (e categorizedErr) Category() string { return string(e) }

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"categorized", categorizedErr(CategoryQuota), CategoryQuota},
		{"wrapped", fmt.Errorf("chunk 2: %w", categorizedErr(CategoryMalformedOutput)), CategoryMalformedOutput},
		{"cancel", context.Canceled, CategoryCancelled},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), CategoryTimeout},
		{"plain", errors.New("boom"), CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.err); got != tt.want {
				t.Errorf("CategoryOf got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserMessageLocalized(t *testing.T) {
	err := categorizedErr(CategoryExhausted)
	en := UserMessage(err, "en")
	vi := UserMessage(err, "vi")
	if en == "" || vi == "" || en == vi {
		t.Fatalf("expected distinct localized messages, got en=%q vi=%q", en, vi)
	}
	if got := UserMessage(err, "fr"); got != en {
		t.Errorf("unknown language got %q, want English fallback", got)
	}
	if got := UserMessage(categorizedErr("unheard_of"), "en"); got != messages["en"][CategoryUnknown] {
		t.Errorf("unknown category got %q", got)
	}
}

func TestErrorResponseHints(t *testing.T) {
	resp := ErrorResponse(categorizedErr(CategoryNetwork), "en")
	if resp["retry_recommended"] != true {
		t.Errorf("network error should recommend retry: %v", resp)
	}
	resp = ErrorResponse(categorizedErr(CategoryFatal), "en")
	if resp["action_required"] != "check_api_key" {
		t.Errorf("fatal error should ask for key check: %v", resp)
	}
}
