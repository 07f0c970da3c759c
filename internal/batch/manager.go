// manager.go - Batch lifecycle: create, run, cancel, retry, merge, edit

package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bosocmputer/statement_ledger/internal/ai"
	"github.com/bosocmputer/statement_ledger/internal/common"
	"github.com/bosocmputer/statement_ledger/internal/extract"
	"github.com/bosocmputer/statement_ledger/internal/ledger"
	"github.com/bosocmputer/statement_ledger/internal/processor"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChunkProcessor runs one chunk; *processor.Processor implements it.
type ChunkProcessor interface {
	Process(ctx context.Context, c *processor.Chunk, total int, reqCtx *common.RequestContext, observe func(ai.Attempt)) (*ledger.Fragment, error)
}

// Options configure a Manager.
type Options struct {
	ChunkSize       int // default for Create; 0 = suggest
	HeaderLines     int
	InterChunkDelay time.Duration
	Tolerance       decimal.Decimal
	Convention      ledger.AmountConvention
	Language        string
	IdleTTL         time.Duration // Sweep drops idle batches untouched this long; 0 = never
}

// DefaultIdleTTL is how long an idle batch stays cached in the manager.
const DefaultIdleTTL = time.Hour

type entry struct {
	mu      sync.Mutex
	batch   *Batch
	cancel  context.CancelFunc
	done    chan struct{}
	deleted bool

	// touched is the last access, guarded by Manager.mu
	touched time.Time

	// saveMu serializes snapshot+save so the store never goes back in time
	saveMu sync.Mutex
}

// Manager owns live batches. Chunks of a batch are processed strictly one
// after another; different batches run independently.
type Manager struct {
	store Store
	proc  ChunkProcessor
	opts  Options

	mu       sync.Mutex
	entries  map[string]*entry
	sleep    func(ctx context.Context, d time.Duration) error
	progress func(batchID string, p processor.Progress)
}

// NewManager creates a manager persisting to store.
func NewManager(store Store, proc ChunkProcessor, opts Options) *Manager {
	return &Manager{
		store:   store,
		proc:    proc,
		opts:    opts,
		entries: make(map[string]*entry),
		sleep:   sleepContext,
	}
}

// WithSleep replaces the inter-chunk delay, for tests.
func (m *Manager) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Manager {
	m.sleep = fn
	return m
}

// WithProgress registers a callback invoked at every chunk start and
// completion.
func (m *Manager) WithProgress(fn func(batchID string, p processor.Progress)) *Manager {
	m.progress = fn
	return m
}

// Create chunks doc and stores a new idle batch.
func (m *Manager) Create(ctx context.Context, filename string, doc *extract.Document, chunkSize int) (*Batch, error) {
	if chunkSize == 0 {
		chunkSize = m.opts.ChunkSize
	}
	chunks := processor.BuildChunks(doc, chunkSize, m.opts.HeaderLines)
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	now := time.Now()
	b := &Batch{
		ID:        uuid.New().String(),
		Filename:  filename,
		Kind:      chunks[0].Kind,
		ChunkSize: chunkSize,
		Chunks:    chunks,
		State:     StateIdle,
		Progress:  processor.Progress{Total: len(chunks)},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.SaveBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("save batch: %w", err)
	}

	m.mu.Lock()
	m.entries[b.ID] = &entry{batch: b, touched: now}
	m.mu.Unlock()

	log.Printf("📄 Batch %s created: %s, %d %s chunk(s)", b.ID, filename, len(chunks), b.Kind)
	return b.Clone(), nil
}

// entry returns the live entry for id, loading it from the store on first
// access. A batch persisted mid-run by a previous process comes back idle.
func (m *Manager) entry(ctx context.Context, id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.touched = time.Now()
		return e, nil
	}

	b, err := m.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.State == StateRunning {
		b.State = StateIdle
		for _, c := range b.Chunks {
			if c.Status == processor.StatusInProgress {
				c.Reset()
			}
		}
	}
	e := &entry{batch: b, touched: time.Now()}
	m.entries[id] = e
	return e, nil
}

// Sweep drops cached batches that are not running and either no longer
// exist in the store or were untouched for IdleTTL. A dropped batch that
// is still stored reloads on its next access. Returns how many were dropped.
func (m *Manager) Sweep(ctx context.Context) int {
	type candidate struct {
		id      string
		e       *entry
		touched time.Time
	}
	m.mu.Lock()
	candidates := make([]candidate, 0, len(m.entries))
	for id, e := range m.entries {
		candidates = append(candidates, candidate{id: id, e: e, touched: e.touched})
	}
	m.mu.Unlock()

	dropped := 0
	for _, c := range candidates {
		if c.e.running() {
			continue
		}
		stale := m.opts.IdleTTL > 0 && time.Since(c.touched) >= m.opts.IdleTTL
		if !stale {
			if _, err := m.store.GetBatch(ctx, c.id); !errors.Is(err, ErrNotFound) {
				continue
			}
		}

		m.mu.Lock()
		if cur, ok := m.entries[c.id]; ok && cur == c.e && cur.touched.Equal(c.touched) && !cur.running() {
			delete(m.entries, c.id)
			dropped++
		}
		m.mu.Unlock()
	}
	if dropped > 0 {
		log.Printf("🧹 Dropped %d idle batch(es) from memory", dropped)
	}
	return dropped
}

// RunJanitor sweeps every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

func (e *entry) running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batch.State == StateRunning
}

// Get returns a snapshot of the batch.
func (m *Manager) Get(ctx context.Context, id string) (*Batch, error) {
	e, err := m.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batch.Clone(), nil
}

// List returns stored batch summaries.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	return m.store.ListBatches(ctx)
}

// Delete cancels any run and removes the batch.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()

	if ok {
		e.saveMu.Lock()
		defer e.saveMu.Unlock()
		e.mu.Lock()
		e.batch.Epoch++
		e.deleted = true
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.mu.Unlock()
	}
	return m.store.DeleteBatch(ctx, id)
}

// Start processes every chunk that has not completed yet, in index order,
// in the background. The returned snapshot is already running.
func (m *Manager) Start(ctx context.Context, id string) (*Batch, error) {
	e, err := m.entry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	var indices []int
	for _, c := range e.batch.Chunks {
		if c.Status != processor.StatusCompleted {
			indices = append(indices, c.Index)
		}
	}
	if len(indices) == 0 {
		e.mu.Unlock()
		return m.Get(ctx, id)
	}
	snapshot, err := m.launch(e, indices)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m.persist(e)
	return snapshot, nil
}

// RetryChunk resets one chunk to pending and runs it.
func (m *Manager) RetryChunk(ctx context.Context, id string, index int) (*Batch, error) {
	e, err := m.entry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	c, ok := e.batch.Chunk(index)
	if !ok {
		e.mu.Unlock()
		return nil, chunkNotFound(index)
	}
	if e.batch.State == StateRunning {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	c.Reset()
	snapshot, err := m.launch(e, []int{index})
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m.persist(e)
	return snapshot, nil
}

// Run starts the batch and waits for it to finish. It returns
// ErrNoChunkSucceeded when every chunk failed. Cancelling ctx cancels the
// batch.
func (m *Manager) Run(ctx context.Context, id string) (*Batch, error) {
	if _, err := m.Start(ctx, id); err != nil {
		return nil, err
	}
	e, err := m.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			if _, err := m.Cancel(context.Background(), id); err != nil {
				return nil, err
			}
			return nil, ctx.Err()
		}
	}

	b, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.State == StateFailed {
		return b, ErrNoChunkSucceeded
	}
	return b, nil
}

// Wait blocks until the current run of the batch, if any, has finished.
func (m *Manager) Wait(ctx context.Context, id string) error {
	e, err := m.entry(ctx, id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the current run, returns every chunk to pending and the
// batch to idle. Results of calls still in flight are ignored when they
// land.
func (m *Manager) Cancel(ctx context.Context, id string) (*Batch, error) {
	e, err := m.entry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	b := e.batch
	b.Epoch++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	for _, c := range b.Chunks {
		c.Reset()
	}
	b.State = StateIdle
	b.Progress = processor.Progress{Total: len(b.Chunks)}
	b.Error, b.ErrorCategory = "", ""
	b.UpdatedAt = time.Now()
	snapshot := b.Clone()
	e.mu.Unlock()

	log.Printf("⏹️  Batch %s cancelled", id)
	m.persist(e)
	return snapshot, nil
}

// SetIncluded selects or deselects a chunk for the next merge.
func (m *Manager) SetIncluded(ctx context.Context, id string, index int, included bool) (*Batch, error) {
	return m.update(ctx, id, func(b *Batch) error {
		c, ok := b.Chunk(index)
		if !ok {
			return chunkNotFound(index)
		}
		c.Included = included
		return nil
	})
}

// Merge builds the ledger from the selected completed chunks, replacing any
// previous ledger and its undo history. openingOverride may be empty.
func (m *Manager) Merge(ctx context.Context, id, openingOverride string) (*Batch, error) {
	return m.update(ctx, id, func(b *Batch) error {
		if b.State == StateRunning {
			return ErrBusy
		}
		l, err := ledger.Merge(b.Fragments(), ledger.MergeOptions{
			OpeningOverride: openingOverride,
			Tolerance:       m.opts.Tolerance,
			Convention:      m.opts.Convention,
		})
		if err != nil {
			return err
		}
		b.Session = ledger.NewSession(l)
		if l.Warning != "" {
			log.Printf("⚠️  Batch %s: %s", b.ID, l.Warning)
		}
		return nil
	})
}

// EditCell changes one field of one ledger row.
func (m *Manager) EditCell(ctx context.Context, id string, row int, field, value string) (*Batch, error) {
	return m.edit(ctx, id, func(s *ledger.Session) error { return s.EditCell(row, field, value) })
}

// DeleteRow removes one ledger row.
func (m *Manager) DeleteRow(ctx context.Context, id string, row int) (*Batch, error) {
	return m.edit(ctx, id, func(s *ledger.Session) error { return s.DeleteRow(row) })
}

// SetOpeningBalance overrides the ledger's opening balance.
func (m *Manager) SetOpeningBalance(ctx context.Context, id, value string) (*Batch, error) {
	return m.edit(ctx, id, func(s *ledger.Session) error { return s.SetOpeningBalance(value) })
}

// Undo reverts the last ledger edit.
func (m *Manager) Undo(ctx context.Context, id string) (*Batch, error) {
	return m.edit(ctx, id, func(s *ledger.Session) error { return s.Undo() })
}

// DismissWarning hides the reconciliation warning until the next edit.
func (m *Manager) DismissWarning(ctx context.Context, id string) (*Batch, error) {
	return m.edit(ctx, id, func(s *ledger.Session) error { return s.DismissWarning() })
}

func (m *Manager) edit(ctx context.Context, id string, fn func(s *ledger.Session) error) (*Batch, error) {
	return m.update(ctx, id, func(b *Batch) error {
		if b.Session == nil || b.Session.Ledger == nil {
			return ErrNotMerged
		}
		return fn(b.Session)
	})
}

// update applies fn under the batch lock and persists the result.
func (m *Manager) update(ctx context.Context, id string, fn func(b *Batch) error) (*Batch, error) {
	e, err := m.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if err := fn(e.batch); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.batch.UpdatedAt = time.Now()
	snapshot := e.batch.Clone()
	e.mu.Unlock()

	if err := m.save(ctx, e); err != nil {
		return nil, fmt.Errorf("save batch: %w", err)
	}
	return snapshot, nil
}

// launch marks the batch running and starts the worker. Caller holds e.mu.
func (m *Manager) launch(e *entry, indices []int) (*Batch, error) {
	b := e.batch
	if b.State == StateRunning {
		return nil, ErrBusy
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.Epoch++
	b.State = StateRunning
	b.Error, b.ErrorCategory = "", ""
	b.Progress = processor.Progress{Completed: b.doneCount(), Total: len(b.Chunks)}
	b.UpdatedAt = time.Now()
	e.cancel = cancel
	e.done = make(chan struct{})

	go m.run(runCtx, e, b.Epoch, indices, e.done)
	return b.Clone(), nil
}

// run processes the chunks in order. Every write back to the batch checks
// the epoch first so a cancelled run cannot touch the reset state.
func (m *Manager) run(ctx context.Context, e *entry, epoch int, indices []int, done chan struct{}) {
	defer close(done)

	e.mu.Lock()
	batchID := e.batch.ID
	total := len(e.batch.Chunks)
	e.mu.Unlock()

	reqCtx := common.NewRequestContext(batchID)
	reqCtx.LogInfo("🚀 Processing %d chunk(s) of %d", len(indices), total)

	for i, index := range indices {
		if i > 0 && m.opts.InterChunkDelay > 0 {
			if err := m.sleep(ctx, m.opts.InterChunkDelay); err != nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		e.mu.Lock()
		if e.batch.Epoch != epoch {
			e.mu.Unlock()
			return
		}
		live, ok := e.batch.Chunk(index)
		if !ok {
			e.mu.Unlock()
			continue
		}
		live.Reset()
		live.Status = processor.StatusInProgress
		work := live.Clone()
		e.batch.Progress.Current = index
		start := e.batch.Progress
		e.mu.Unlock()
		m.report(batchID, start)

		observe := func(a ai.Attempt) {
			e.mu.Lock()
			if e.batch.Epoch == epoch {
				e.batch.Progress.ModelLabel = a.Model.Label
				e.batch.Progress.CredentialOrdinal = a.Credential.Ordinal
				if c, ok := e.batch.Chunk(index); ok {
					c.ModelLabel = a.Model.Label
					c.CredentialOrdinal = a.Credential.Ordinal
				}
			}
			e.mu.Unlock()
		}

		_, _ = m.proc.Process(ctx, work, total, reqCtx, observe)

		e.mu.Lock()
		if e.batch.Epoch != epoch {
			e.mu.Unlock()
			reqCtx.LogWarning("Dropping result of chunk %d from a cancelled run", index)
			return
		}
		for pos, c := range e.batch.Chunks {
			if c.Index == index {
				// selection may have changed while the chunk was processed
				work.Included = c.Included
				e.batch.Chunks[pos] = work
			}
		}
		e.batch.Progress.Completed = e.batch.doneCount()
		e.batch.UpdatedAt = time.Now()
		finished := e.batch.Progress
		e.mu.Unlock()

		m.report(batchID, finished)
		m.persist(e)
	}

	e.mu.Lock()
	if e.batch.Epoch != epoch {
		e.mu.Unlock()
		return
	}
	b := e.batch
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if b.succeeded() {
		b.State = StateCompleted
	} else {
		b.State = StateFailed
		b.ErrorCategory = common.CategoryOf(ErrNoChunkSucceeded)
		b.Error = common.UserMessage(ErrNoChunkSucceeded, m.opts.Language)
	}
	b.UpdatedAt = time.Now()
	state := b.State
	e.mu.Unlock()

	reqCtx.LogInfo("🏁 Batch %s: %s", batchID, state)
	summary := reqCtx.GetSummary()
	log.Printf("📊 Batch %s summary: %v", batchID, summary)
	m.persist(e)
}

func (m *Manager) report(batchID string, p processor.Progress) {
	if m.progress != nil {
		m.progress(batchID, p)
	}
}

// save stores the current state of e. Snapshots are taken under saveMu so
// a slow save can never overwrite a newer one.
func (m *Manager) save(ctx context.Context, e *entry) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil
	}
	snapshot := e.batch.Clone()
	e.mu.Unlock()

	return m.store.SaveBatch(ctx, snapshot)
}

// persist saves outside request handling; failures are logged and the
// in-memory batch stays authoritative.
func (m *Manager) persist(e *entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.save(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("❌ Failed to persist batch: %v", err)
	}
}

func chunkNotFound(index int) error {
	return &ledger.InputError{Field: "chunk", Err: fmt.Errorf("no chunk with index %d", index)}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
