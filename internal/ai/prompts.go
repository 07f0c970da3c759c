// prompts.go - Prompt templates for statement extraction and page OCR
package ai

import (
	"fmt"
	"strings"

	"github.com/bosocmputer/statement_ledger/internal/ledger"
)

// Delimiters around the header excerpt repeated in every chunk after the
// first. The extraction prompt refers to them by name.
const (
	HeaderContextStart = "--- HEADER CONTEXT (reference only, do not extract) ---"
	HeaderContextEnd   = "--- END HEADER ---"
)

// ============================================================================
// 📋 SECTION 1: EXTRACTION
// ============================================================================

// GetExtractionSystemPrompt returns the system instruction for turning one
// chunk of statement text into a ledger fragment.
func GetExtractionSystemPrompt(convention ledger.AmountConvention) string {
	var b strings.Builder
	b.WriteString(`You are a meticulous bookkeeping assistant. You read one part of a bank statement and return its transactions as JSON.

📌 WHAT IS A TRANSACTION:
- One dated line that moves money in or out of the account
- NOT a transaction: column headers, page headers and footers, "opening balance", "balance brought forward",
  "carried forward", "subtotal", "total", "closing balance", summary blocks, blank lines

📌 HEADER CONTEXT:
- Text between "` + HeaderContextStart + `" and "` + HeaderContextEnd + `"
  is repeated from the start of the statement so you know what each column means
- Use it ONLY to understand columns and account details
- NEVER return a transaction from inside the header context block
`)
	b.WriteString(GetAmountRecordingRules(convention))
	b.WriteString("\n")
	b.WriteString(GetOutputFormatJSON())
	return b.String()
}

// ExtractionRequest builds the JSON-mode request for chunk index of total.
func ExtractionRequest(chunkText string, index, total int, convention ledger.AmountConvention) Request {
	user := fmt.Sprintf("Statement part %d of %d. Extract every transaction in this part.\n\n%s", index, total, chunkText)
	return Request{
		Messages: []Message{
			{Role: RoleSystem, Content: GetExtractionSystemPrompt(convention)},
			{Role: RoleUser, Content: user},
		},
		JSONMode: true,
	}
}

// ============================================================================
// 📋 SECTION 2: PAGE OCR
// ============================================================================

// GetOCRPrompt returns the instruction for transcribing one statement page.
func GetOCRPrompt() string {
	return `Transcribe this bank statement page.

- Return every visible line of text, top to bottom, as plain text
- Keep one table row per line and separate columns with " | "
- Copy numbers, dates and codes exactly as printed, including separators
- Do not summarise, translate, correct or reorder anything
- Do not add commentary or markdown`
}

// OCRRequest builds the vision request for one page image.
func OCRRequest(page Attachment) Request {
	return Request{
		Messages: []Message{
			{Role: RoleUser, Content: GetOCRPrompt(), Attachments: []Attachment{page}},
		},
	}
}
