package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"regexp"
	"strings"
	"testing"

	"github.com/bosocmputer/statement_ledger/internal/ai"
	"github.com/bosocmputer/statement_ledger/internal/common"
	"github.com/bosocmputer/statement_ledger/internal/extract"
	"github.com/bosocmputer/statement_ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// echoModel plays the extraction model: every "date | description | debit |
// credit" line it sees becomes a transaction, header block included.
type echoModel struct {
	requests []ai.Request
	reply    func(req ai.Request) (string, error)
}

var rowPattern = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4}) \| ([^|]+) \| ([^|]*) \|\s*([^|]*)$`)

func (m *echoModel) Dispatch(ctx context.Context, req ai.Request, reqCtx *common.RequestContext, observe func(ai.Attempt)) (*ai.Result, error) {
	m.requests = append(m.requests, req)
	model := ai.ModelSpec{Provider: "fake", Name: "echo", Label: "Echo"}
	cred := ai.Credential{Provider: "fake", Ordinal: 2}
	if observe != nil {
		observe(ai.Attempt{Model: model, Credential: cred, Try: 1})
	}
	if m.reply != nil {
		text, err := m.reply(req)
		if err != nil {
			return nil, err
		}
		return &ai.Result{Text: text, Usage: echoUsage, Model: model, Credential: cred, Calls: 1}, nil
	}

	var rows []map[string]any
	for _, line := range strings.Split(req.Messages[len(req.Messages)-1].Content, "\n") {
		if g := rowPattern.FindStringSubmatch(strings.TrimSpace(line)); g != nil {
			rows = append(rows, map[string]any{
				"date":        g[1],
				"description": strings.TrimSpace(g[2]),
				"debit":       strings.TrimSpace(g[3]),
				"credit":      strings.TrimSpace(g[4]),
			})
		}
	}
	out, _ := json.Marshal(map[string]any{"transactions": rows})
	return &ai.Result{Text: "```json\n" + string(out) + "\n```", Usage: echoUsage, Model: model, Credential: cred, Calls: 1}, nil
}

var echoUsage = common.NewTokenUsage(300, 50, 0)

func statementLines() []string {
	lines := []string{
		"ACME BANK",
		"Account statement",
		"Account name: Nguyen Van A",
		"Account number: 0123456789",
		"Period: 01/01/2024 - 31/01/2024",
		"Branch: Hanoi",
		"Currency: VND",
		"Date | Description | Debit | Credit",
		"01/01/2024 | Opening balance |  | 1,000,000.00",
		"--------------------------------",
	}
	for i := 1; i <= 40; i++ {
		lines = append(lines, fmt.Sprintf("%02d/01/2024 | Payment %d | %d.00 | ", i%28+1, i, i*10))
	}
	return lines
}

func TestProcessRecordsTokenUsage(t *testing.T) {
	p := NewProcessor(&echoModel{}, nil, Options{})
	reqCtx := common.NewRequestContext("batch-1")
	chunks := ChunkLines(statementLines(), 20, 10)
	for _, c := range chunks {
		if _, err := p.Process(context.Background(), c, len(chunks), reqCtx, nil); err != nil {
			t.Fatal(err)
		}
		if c.Usage != (common.TokenUsage{InputTokens: 300, OutputTokens: 50, TotalTokens: 350}) {
			t.Errorf("chunk %d usage = %+v", c.Index, c.Usage)
		}
	}

	if got := reqCtx.TotalTokens(); got != (common.TokenUsage{InputTokens: 600, OutputTokens: 100, TotalTokens: 700}) {
		t.Errorf("TotalTokens() = %+v", got)
	}
	summary := reqCtx.GetSummary()
	if summary["total_tokens"] != 700 || summary["input_tokens"] != 600 || summary["total_steps"] != 2 {
		t.Errorf("summary = %v", summary)
	}

	chunks[0].Reset()
	if !chunks[0].Usage.IsZero() {
		t.Error("Reset should clear usage")
	}
}

func TestSuggestChunkSize(t *testing.T) {
	tests := []struct{ lines, want int }{
		{0, 30}, {150, 30}, {151, 50}, {600, 50}, {601, 100}, {2000, 100}, {2001, 200},
	}
	for _, tt := range tests {
		if got := SuggestChunkSize(tt.lines); got != tt.want {
			t.Errorf("SuggestChunkSize(%d) = %d, want %d", tt.lines, got, tt.want)
		}
	}
}

func TestChunkLinesRepeatsHeader(t *testing.T) {
	lines := statementLines()
	chunks := ChunkLines(lines, 20, 10)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}

	first := strings.Split(chunks[0].Data, "\n")
	if len(first) != 30 || first[0] != "ACME BANK" || first[10] != lines[10] {
		t.Errorf("chunk 1 should be header + first 20 body lines, got %d lines", len(first))
	}
	if strings.Contains(chunks[0].Data, ai.HeaderContextStart) {
		t.Error("chunk 1 must not carry a delimited header block")
	}

	second := strings.Split(chunks[1].Data, "\n")
	if second[0] != ai.HeaderContextStart || second[11] != ai.HeaderContextEnd {
		t.Errorf("chunk 2 header block malformed: %q / %q", second[0], second[11])
	}
	if got := second[12:]; len(got) != 20 || got[0] != lines[30] || got[19] != lines[49] {
		t.Errorf("chunk 2 body = %d lines starting %q", len(got), got[0])
	}
	for i, c := range chunks {
		if c.Index != i+1 || c.Kind != KindText || c.Status != StatusPending || !c.Included || c.BodyLines != 20 {
			t.Errorf("chunk %d = %+v", i+1, c)
		}
	}
}

func TestChunkLinesDegenerateCases(t *testing.T) {
	lines := statementLines()

	if got := ChunkLines(lines, WholeDocument, 10); len(got) != 1 || got[0].Data != strings.Join(lines, "\n") {
		t.Errorf("whole document should be one chunk, got %d", len(got))
	}
	if got := ChunkLines(lines, 100, 10); len(got) != 1 {
		t.Errorf("short document should be one chunk, got %d", len(got))
	}
	if got := ChunkLines(lines[:5], 2, 10); len(got) != 1 || got[0].BodyLines != 0 {
		t.Errorf("header-only document = %+v", got)
	}
	if got := ChunkLines(nil, 20, 10); got != nil {
		t.Errorf("empty document = %+v", got)
	}

	auto := ChunkLines(lines, 0, 0)
	if len(auto) != 2 || auto[1].BodyLines != 20 {
		t.Errorf("suggested size should give 30+20 lines, got %d chunks", len(auto))
	}
	if strings.Contains(auto[1].Data, ai.HeaderContextStart) {
		t.Error("no header lines means no header block")
	}
}

func TestBuildChunksForImages(t *testing.T) {
	doc := &extract.Document{Images: []extract.Image{
		{MimeType: "image/png", Data: "AAA"},
		{MimeType: "image/jpeg", Data: "BBB"},
	}}
	chunks := BuildChunks(doc, 20, 10)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want one per page", len(chunks))
	}
	if chunks[1].Index != 2 || chunks[1].Kind != KindImage || chunks[1].Data != "BBB" || chunks[1].MimeType != "image/jpeg" {
		t.Errorf("chunk 2 = %+v", chunks[1])
	}
}

func TestProcessTextChunksAndMerge(t *testing.T) {
	model := &echoModel{}
	p := NewProcessor(model, nil, Options{Language: "en"})
	chunks := ChunkLines(statementLines(), 20, 10)

	var fragments []ledger.Fragment
	var observed []string
	for _, c := range chunks {
		frag, err := p.Process(context.Background(), c, len(chunks), nil, func(a ai.Attempt) {
			observed = append(observed, a.Model.Label)
		})
		if err != nil {
			t.Fatalf("Process(chunk %d) error = %v", c.Index, err)
		}
		if c.Status != StatusCompleted || c.ModelLabel != "Echo" || c.CredentialOrdinal != 2 || c.Calls != 1 {
			t.Errorf("chunk %d = %+v", c.Index, c)
		}
		fragments = append(fragments, *frag)
	}
	if len(observed) != 2 {
		t.Errorf("observer called %d times", len(observed))
	}

	// the echo model re-emits the header's opening balance line in chunk 2
	if n := len(fragments[1].Transactions); n != 21 {
		t.Errorf("chunk 2 produced %d rows, want 20 + 1 echoed header row", n)
	}

	if !model.requests[0].JSONMode || !strings.Contains(model.requests[1].Messages[1].Content, "part 2 of 2") {
		t.Error("extraction request not built as expected")
	}

	merged, err := ledger.Merge(fragments, ledger.MergeOptions{Tolerance: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(merged.Transactions) != 40 {
		t.Errorf("merged %d transactions, want 40", len(merged.Transactions))
	}
	// statement Debit column is money out: ledger credit
	if !merged.Totals.Credit.Equal(decimal.NewFromInt(8200)) || !merged.Totals.Debit.IsZero() {
		t.Errorf("totals = %+v", merged.Totals)
	}
}

func TestProcessMalformedOutputFailsChunk(t *testing.T) {
	model := &echoModel{reply: func(ai.Request) (string, error) { return "I could not read this page, sorry.", nil }}
	p := NewProcessor(model, nil, Options{Language: "vi"})
	c := &Chunk{Index: 1, Kind: KindText, Data: "x", Included: true}

	if _, err := p.Process(context.Background(), c, 1, nil, nil); err == nil {
		t.Fatal("expected failure")
	}
	if c.Status != StatusFailed || c.ErrorCategory != common.CategoryMalformedOutput {
		t.Errorf("chunk = %+v", c)
	}
	if c.Error != common.MessageFor(common.CategoryMalformedOutput, "vi") {
		t.Errorf("Error = %q, want localized message", c.Error)
	}
	if c.Fragment != nil {
		t.Error("failed chunk must not keep a fragment")
	}
}

func TestProcessDispatchFailure(t *testing.T) {
	model := &echoModel{reply: func(ai.Request) (string, error) {
		return "", &ai.AllResourcesExhaustedError{Calls: 6}
	}}
	p := NewProcessor(model, nil, Options{})
	c := &Chunk{Index: 3, Kind: KindText, Data: "x"}

	_, err := p.Process(context.Background(), c, 3, nil, nil)
	if err == nil || c.ErrorCategory != common.CategoryExhausted {
		t.Errorf("err = %v, category = %q", err, c.ErrorCategory)
	}
}

func TestProcessResetsRetriedChunk(t *testing.T) {
	p := NewProcessor(&echoModel{}, nil, Options{})
	c := &Chunk{Index: 1, Kind: KindText, Data: "05/01/2024 | Fee | 5.00 | ", Status: StatusFailed, Error: "old", ErrorCategory: "old"}

	if _, err := p.Process(context.Background(), c, 1, nil, nil); err != nil {
		t.Fatal(err)
	}
	if c.Error != "" || c.ErrorCategory != "" || c.Fragment == nil || len(c.Fragment.Transactions) != 1 {
		t.Errorf("chunk = %+v", c)
	}
}

func testPNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 5), uint8(y * 5), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestProcessImageChunk(t *testing.T) {
	var page ai.Attachment
	vision := &echoModel{reply: func(req ai.Request) (string, error) {
		page = req.Messages[0].Attachments[0]
		return "  05/01/2024 | Card payment | 25.00 | \n", nil
	}}
	text := &echoModel{}
	p := NewProcessor(text, vision, Options{PreprocessImages: true, MaxImageDimension: 10})
	c := &Chunk{Index: 1, Kind: KindImage, Data: testPNG(t, 40, 20), MimeType: "image/png"}

	frag, err := p.Process(context.Background(), c, 1, nil, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if page.MimeType != "image/jpeg" {
		t.Errorf("preprocessed page MIME = %s", page.MimeType)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(page.Data))
	if err != nil || cfg.Width != 10 || cfg.Height != 5 {
		t.Errorf("preprocessed page = %+v, %v", cfg, err)
	}
	if c.OCRText != "05/01/2024 | Card payment | 25.00 |" {
		t.Errorf("OCRText = %q", c.OCRText)
	}
	if c.Calls != 2 || len(frag.Transactions) != 1 || !frag.Transactions[0].Credit.Equal(decimal.NewFromInt(25)) {
		t.Errorf("calls = %d, fragment = %+v", c.Calls, frag)
	}
}

func TestProcessImageWithoutPreprocessing(t *testing.T) {
	var page ai.Attachment
	vision := &echoModel{reply: func(req ai.Request) (string, error) {
		page = req.Messages[0].Attachments[0]
		return "   ", nil
	}}
	p := NewProcessor(&echoModel{}, vision, Options{})
	c := &Chunk{Index: 1, Kind: KindImage, Data: base64.StdEncoding.EncodeToString([]byte("webp")), MimeType: "image/webp"}

	if _, err := p.Process(context.Background(), c, 1, nil, nil); err == nil {
		t.Fatal("blank OCR should fail the chunk")
	}
	if string(page.Data) != "webp" || page.MimeType != "image/webp" {
		t.Errorf("page sent = %q %s", page.Data, page.MimeType)
	}
	if c.ErrorCategory != common.CategoryEmptyResponse {
		t.Errorf("category = %s", c.ErrorCategory)
	}
}

func TestPreprocessPagePassesUnknownFormats(t *testing.T) {
	raw := []byte("RIFF....WEBPVP8 ")
	out, mime, ok, err := PreprocessPage(base64.StdEncoding.EncodeToString(raw), "image/webp", 100)
	if err != nil || ok || mime != "image/webp" || !bytes.Equal(out, raw) {
		t.Errorf("PreprocessPage() = %q, %s, %v, %v", out, mime, ok, err)
	}
	if _, _, _, err := PreprocessPage("%%%", "image/png", 100); err == nil {
		t.Error("invalid base64 should fail")
	}
}

func TestProgressPercent(t *testing.T) {
	if got := (Progress{Completed: 1, Total: 3}).Percent(); got != 33 {
		t.Errorf("Percent() = %d", got)
	}
	if got := (Progress{}).Percent(); got != 0 {
		t.Errorf("Percent() = %d", got)
	}
}
