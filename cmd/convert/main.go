// main.go - One-shot conversion of a statement file into a ledger export.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/bosocmputer/statement_ledger/configs"
	"github.com/bosocmputer/statement_ledger/internal/ai"
	"github.com/bosocmputer/statement_ledger/internal/batch"
	"github.com/bosocmputer/statement_ledger/internal/common"
	"github.com/bosocmputer/statement_ledger/internal/extract"
	"github.com/bosocmputer/statement_ledger/internal/ledger"
	"github.com/bosocmputer/statement_ledger/internal/processor"
	"github.com/bosocmputer/statement_ledger/internal/ratelimit"
	"github.com/bosocmputer/statement_ledger/internal/storage"
)

func main() {
	in := flag.String("in", "", "statement file (pdf, xlsx, csv, txt, png, jpg)")
	out := flag.String("out", "", "output file; extension picks csv, tsv or xlsx")
	opening := flag.String("opening", "", "opening balance override")
	chunk := flag.Int("chunk", 0, "lines per chunk; 0 suggests one, -1 sends the whole document")
	flag.Parse()

	if *in == "" || *out == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*in, *out, *opening, *chunk); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(in, out, opening string, chunkSize int) error {
	write, err := writerFor(out)
	if err != nil {
		return err
	}

	cfg, err := configs.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	doc, err := extract.Extract(filepath.Base(in), data)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	text, vision, err := ai.NewDispatchers(cfg, ratelimit.NewPerMinute(cfg.RateLimitRPM))
	if err != nil {
		return err
	}
	proc := processor.NewProcessor(text, vision, processor.OptionsFromConfig(cfg))
	manager := batch.NewManager(storage.NewMemoryStore(0), proc, batch.OptionsFromConfig(cfg)).
		WithProgress(func(_ string, p processor.Progress) {
			fmt.Fprintf(os.Stderr, "\r[%3d%%] chunk %d of %d  %s #%d   ", p.Percent(), p.Current, p.Total, p.ModelLabel, p.CredentialOrdinal)
		})

	b, err := manager.Create(ctx, filepath.Base(in), doc, chunkSize)
	if err != nil {
		return err
	}
	b, err = manager.Run(ctx, b.ID)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	for _, c := range b.Chunks {
		if c.Status == processor.StatusFailed {
			log.Printf("⚠️  Chunk %d failed: %s", c.Index, c.Error)
		}
	}

	b, err = manager.Merge(ctx, b.ID, opening)
	if err != nil {
		return fmt.Errorf("%s: %w", common.UserMessage(err, cfg.UILanguage), err)
	}
	l := b.Ledger()

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := write(f, l); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	log.Printf("✅ %d transaction(s) written to %s (%d duplicate(s), %d balance line(s) dropped)",
		len(l.Transactions), out, l.DuplicatesFound, l.NoiseRemoved)
	log.Printf("   opening %s, debit %s, credit %s, calculated ending %s",
		ledger.FormatAmount(l.OpeningBalance), ledger.FormatAmount(l.Totals.Debit),
		ledger.FormatAmount(l.Totals.Credit), ledger.FormatAmount(l.Totals.CalculatedEnding))
	if l.Warning != "" {
		log.Printf("⚠️  %s", l.Warning)
	}
	return nil
}

func writerFor(path string) (func(w *os.File, l *ledger.Ledger) error, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return func(w *os.File, l *ledger.Ledger) error { return ledger.WriteCSV(w, l) }, nil
	case ".tsv", ".txt":
		return func(w *os.File, l *ledger.Ledger) error { return ledger.WriteTSV(w, l) }, nil
	case ".xlsx":
		return func(w *os.File, l *ledger.Ledger) error { return ledger.WriteXLSX(w, l) }, nil
	}
	return nil, fmt.Errorf("unsupported output extension %q (use .csv, .tsv or .xlsx)", filepath.Ext(path))
}
