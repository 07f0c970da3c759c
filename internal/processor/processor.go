// processor.go - Runs one chunk end to end: OCR if needed, extract, repair, parse

package processor

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bosocmputer/statement_ledger/internal/ai"
	"github.com/bosocmputer/statement_ledger/internal/common"
	"github.com/bosocmputer/statement_ledger/internal/ledger"
	"github.com/bosocmputer/statement_ledger/internal/repair"
)

// Dispatcher is the waterfall the processor sends requests through.
type Dispatcher interface {
	Dispatch(ctx context.Context, req ai.Request, reqCtx *common.RequestContext, observe func(ai.Attempt)) (*ai.Result, error)
}

// Options tune a Processor.
type Options struct {
	Convention        ledger.AmountConvention
	PreprocessImages  bool
	MaxImageDimension int
	Language          string
}

// Processor turns chunks into ledger fragments.
type Processor struct {
	text   Dispatcher
	vision Dispatcher
	opts   Options
}

// NewProcessor creates a processor. vision may be nil when only text
// documents are expected.
func NewProcessor(text, vision Dispatcher, opts Options) *Processor {
	if opts.Convention == "" {
		opts.Convention = ledger.ConventionGross
	}
	return &Processor{text: text, vision: vision, opts: opts}
}

// Process runs c, one of total chunks. The chunk's status, result and
// user-facing error are updated in place; the returned error is for logging
// and never has to stop the batch.
func (p *Processor) Process(ctx context.Context, c *Chunk, total int, reqCtx *common.RequestContext, observe func(ai.Attempt)) (*ledger.Fragment, error) {
	c.Reset()
	c.Status = StatusInProgress
	reqCtx.StartStep(fmt.Sprintf("chunk_%d", c.Index))

	track := func(a ai.Attempt) {
		c.ModelLabel = a.Model.Label
		c.CredentialOrdinal = a.Credential.Ordinal
		if observe != nil {
			observe(a)
		}
	}

	frag, err := p.run(ctx, c, total, reqCtx, track)
	if err != nil {
		c.Status = StatusFailed
		c.ErrorCategory = common.CategoryOf(err)
		c.Error = common.UserMessage(err, p.opts.Language)
		reqCtx.LogError("Chunk %d/%d failed: %v", c.Index, total, err)
		reqCtx.EndStep("failed", &c.Usage, err)
		return nil, err
	}

	c.Status = StatusCompleted
	c.Fragment = frag
	reqCtx.LogInfo("Chunk %d/%d: %d transaction(s) via %s (key #%d)", c.Index, total, len(frag.Transactions), c.ModelLabel, c.CredentialOrdinal)
	reqCtx.EndStep("success", &c.Usage, nil)
	return frag, nil
}

func (p *Processor) run(ctx context.Context, c *Chunk, total int, reqCtx *common.RequestContext, track func(ai.Attempt)) (*ledger.Fragment, error) {
	text := c.Data
	if c.Kind == KindImage {
		ocr, err := p.transcribe(ctx, c, reqCtx, track)
		if err != nil {
			return nil, err
		}
		c.OCRText = ocr
		text = ocr
	}

	res, err := p.text.Dispatch(ctx, ai.ExtractionRequest(text, c.Index, total, p.opts.Convention), reqCtx, track)
	if err != nil {
		return nil, err
	}
	c.Calls += res.Calls
	c.Usage.Add(res.Usage)
	c.ModelLabel = res.Model.Label
	c.CredentialOrdinal = res.Credential.Ordinal

	obj, err := repair.ParseModelJSON(res.Text)
	if err != nil {
		return nil, err
	}
	return ledger.FragmentFromObject(obj, c.Index)
}

// transcribe OCRs a page image through the vision tiers.
func (p *Processor) transcribe(ctx context.Context, c *Chunk, reqCtx *common.RequestContext, track func(ai.Attempt)) (string, error) {
	if p.vision == nil {
		return "", &ai.ProviderError{Kind: ai.KindFatal, Message: "no vision model configured for image pages"}
	}

	data, mime := []byte(nil), c.MimeType
	if p.opts.PreprocessImages {
		processed, outMime, ok, err := PreprocessPage(c.Data, c.MimeType, p.opts.MaxImageDimension)
		if err != nil {
			return "", &ledger.InputError{Field: fmt.Sprintf("page %d image", c.Index), Err: err}
		}
		if !ok {
			reqCtx.LogWarning("Page %d: format %s not preprocessed, sending original", c.Index, c.MimeType)
		}
		data, mime = processed, outMime
	} else {
		raw, err := base64.StdEncoding.DecodeString(c.Data)
		if err != nil {
			return "", &ledger.InputError{Field: fmt.Sprintf("page %d image", c.Index), Err: err}
		}
		data = raw
	}

	res, err := p.vision.Dispatch(ctx, ai.OCRRequest(ai.Attachment{MimeType: mime, Data: data}), reqCtx, track)
	if err != nil {
		return "", err
	}
	c.Calls += res.Calls
	c.Usage.Add(res.Usage)

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", repair.ErrEmptyResponse
	}
	return text, nil
}
