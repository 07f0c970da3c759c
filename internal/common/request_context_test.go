package common

import (
	"errors"
	"testing"
)

func TestRequestContextTokenTotals(t *testing.T) {
	rc := NewRequestContext("batch-1")

	rc.StartStep("chunk_1")
	first := NewTokenUsage(1200, 300, 0)
	rc.EndStep("success", &first, nil)

	rc.StartStep("chunk_2")
	second := NewTokenUsage(800, 100, 950)
	rc.EndStep("failed", &second, errors.New("malformed"))

	rc.StartStep("chunk_3")
	rc.EndStep("failed", nil, errors.New("quota"))
	rc.CountCall()
	rc.CountCall()

	want := TokenUsage{InputTokens: 2000, OutputTokens: 400, TotalTokens: 2450}
	if got := rc.TotalTokens(); got != want {
		t.Errorf("TotalTokens() = %+v, want %+v", got, want)
	}

	steps := rc.Steps()
	if len(steps) != 3 || steps[0].Tokens == nil || steps[0].Tokens.TotalTokens != 1500 || steps[2].Tokens != nil {
		t.Errorf("steps = %+v", steps)
	}
	first.InputTokens = 0
	if rc.Steps()[0].Tokens.InputTokens != 1200 {
		t.Error("step kept a reference to the caller's usage")
	}

	summary := rc.GetSummary()
	checks := map[string]int{"input_tokens": 2000, "output_tokens": 400, "total_tokens": 2450, "failed_steps": 2, "provider_calls": 2, "total_steps": 3}
	for key, want := range checks {
		if summary[key] != want {
			t.Errorf("summary[%s] = %v, want %d", key, summary[key], want)
		}
	}
}

func TestRequestContextNilSafe(t *testing.T) {
	var rc *RequestContext
	rc.StartStep("x")
	rc.EndStep("success", &TokenUsage{TotalTokens: 1}, nil)
	rc.CountCall()
	if !rc.TotalTokens().IsZero() || rc.Steps() != nil {
		t.Error("nil context should record nothing")
	}
}

func TestNewTokenUsage(t *testing.T) {
	if got := NewTokenUsage(10, 5, 0); got.TotalTokens != 15 {
		t.Errorf("derived total = %d, want 15", got.TotalTokens)
	}
	if got := NewTokenUsage(10, 5, 20); got.TotalTokens != 20 {
		t.Errorf("reported total = %d, want 20", got.TotalTokens)
	}
}
