// request_context.go - Batch run tracking and logging

package common

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestContext tracks one batch run (or one HTTP request) with step timings.
// It is safe for use from the runner goroutine and its progress observers.
type RequestContext struct {
	RequestID string
	BatchID   string
	StartTime time.Time

	mu               sync.Mutex
	steps            []StepLog
	currentStep      string
	currentStepStart time.Time
	calls            int
	totalTokens      TokenUsage
}

// StepLog represents a single processing step
type StepLog struct {
	Name      string      `json:"name"`
	StartTime time.Time   `json:"start_time"`
	Duration  int64       `json:"duration_ms"`
	Status    string      `json:"status"` // "success", "failed", "skipped"
	Error     string      `json:"error,omitempty"`
	Tokens    *TokenUsage `json:"tokens,omitempty"`
}

// TokenUsage tracks model token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens" bson:"input_tokens"`
	OutputTokens int `json:"output_tokens" bson:"output_tokens"`
	TotalTokens  int `json:"total_tokens" bson:"total_tokens"`
}

// NewTokenUsage builds a usage record; total falls back to input + output
// when the provider does not report it.
func NewTokenUsage(input, output, total int) TokenUsage {
	if total == 0 {
		total = input + output
	}
	return TokenUsage{InputTokens: input, OutputTokens: output, TotalTokens: total}
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// IsZero reports whether nothing was recorded.
func (u TokenUsage) IsZero() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0 && u.TotalTokens == 0
}

// NewRequestContext creates a new tracking context for a batch
func NewRequestContext(batchID string) *RequestContext {
	reqID := uuid.New().String()
	now := time.Now()

	log.Printf("[%s] 🚀 start | batch: %s | at: %s", reqID, batchID, now.Format("15:04:05"))

	return &RequestContext{
		RequestID: reqID,
		BatchID:   batchID,
		StartTime: now,
	}
}

// StartStep begins tracking a new processing step
func (rc *RequestContext) StartStep(stepName string) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	rc.currentStep = stepName
	rc.currentStepStart = time.Now()
	rc.mu.Unlock()

	log.Printf("[%s] ┌── %s", rc.RequestID, stepName)
}

// EndStep completes the current step and records timing and token usage.
// tokens may be nil.
func (rc *RequestContext) EndStep(status string, tokens *TokenUsage, err error) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	duration := time.Since(rc.currentStepStart).Milliseconds()
	step := StepLog{
		Name:      rc.currentStep,
		StartTime: rc.currentStepStart,
		Duration:  duration,
		Status:    status,
	}

	tokenMsg := ""
	if tokens != nil {
		t := *tokens
		step.Tokens = &t
		rc.totalTokens.Add(t)
		tokenMsg = fmt.Sprintf(" | 🪙 tokens: %s in + %s out = %s",
			formatNumber(t.InputTokens), formatNumber(t.OutputTokens), formatNumber(t.TotalTokens))
	}

	if err != nil {
		step.Error = err.Error()
		log.Printf("[%s] └── ❌ FAILED - %s (%.2fs) - Error: %v",
			rc.RequestID, rc.currentStep, float64(duration)/1000, err)
	} else {
		log.Printf("[%s] └── ✅ %s: %s (%.2fs)%s",
			rc.RequestID, status, rc.currentStep, float64(duration)/1000, tokenMsg)
	}

	rc.steps = append(rc.steps, step)
	rc.currentStep = ""
}

// CountCall records one provider invocation.
func (rc *RequestContext) CountCall() {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	rc.calls++
	rc.mu.Unlock()
}

// TotalTokens returns the usage summed over all finished steps.
func (rc *RequestContext) TotalTokens() TokenUsage {
	if rc == nil {
		return TokenUsage{}
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.totalTokens
}

// Steps returns a copy of the recorded steps.
func (rc *RequestContext) Steps() []StepLog {
	if rc == nil {
		return nil
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]StepLog(nil), rc.steps...)
}

// GetSummary returns a final summary of the entire run
func (rc *RequestContext) GetSummary() map[string]interface{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	totalDuration := time.Since(rc.StartTime).Milliseconds()

	failed := 0
	stepBreakdown := make(map[string]int64)
	for _, step := range rc.steps {
		stepBreakdown[step.Name] = step.Duration
		if step.Status == "failed" {
			failed++
		}
	}

	summary := map[string]interface{}{
		"request_id":         rc.RequestID,
		"batch_id":           rc.BatchID,
		"total_duration_ms":  totalDuration,
		"total_duration_sec": float64(totalDuration) / 1000,
		"step_breakdown":     stepBreakdown,
		"total_steps":        len(rc.steps),
		"failed_steps":       failed,
		"provider_calls":     rc.calls,
		"input_tokens":       rc.totalTokens.InputTokens,
		"output_tokens":      rc.totalTokens.OutputTokens,
		"total_tokens":       rc.totalTokens.TotalTokens,
	}

	log.Printf("[%s] ═══ 🎯 summary ═══", rc.RequestID)
	log.Printf("[%s] ⏱️  %.2fs | 📝 steps: %d (failed %d) | 🤖 calls: %s | 🪙 tokens: %s",
		rc.RequestID, float64(totalDuration)/1000, len(rc.steps), failed, formatNumber(rc.calls),
		formatNumber(rc.totalTokens.TotalTokens))

	return summary
}

// LogInfo logs info-level message with request ID prefix
func (rc *RequestContext) LogInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if rc == nil {
		log.Printf("ℹ️  %s", msg)
		return
	}
	log.Printf("[%s] ℹ️  %s", rc.RequestID, msg)
}

// LogWarning logs warning-level message with request ID prefix
func (rc *RequestContext) LogWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if rc == nil {
		log.Printf("⚠️  %s", msg)
		return
	}
	log.Printf("[%s] ⚠️  %s", rc.RequestID, msg)
}

// LogError logs error-level message with request ID prefix
func (rc *RequestContext) LogError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if rc == nil {
		log.Printf("❌ %s", msg)
		return
	}
	log.Printf("[%s] ❌ %s", rc.RequestID, msg)
}

// formatNumber adds comma separators to numbers
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n%1000000)/1000, n%1000)
}
