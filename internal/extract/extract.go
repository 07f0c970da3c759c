// Package extract turns an uploaded statement file into either plain text or
// a list of page images, the two inputs the chunker understands.
package extract

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bosocmputer/statement_ledger/internal/common"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// Image is one page raster. Data is base64 encoded.
type Image struct {
	MimeType string `json:"mime_type" bson:"mime_type"`
	Data     string `json:"data" bson:"data"`
}

// Document is the extractor output: Text is set for text-bearing files,
// Images for scans and photos.
type Document struct {
	Text   *string `json:"text,omitempty"`
	Images []Image `json:"images,omitempty"`
}

type noTextError struct{}

func (noTextError) Error() string    { return "no readable text in PDF; upload the pages as images instead" }
func (noTextError) Category() string { return common.CategoryInvalidInput }

// ErrNoText is returned for a PDF with no text layer.
var ErrNoText error = noTextError{}

// UnsupportedError reports a file type the extractor cannot read.
type UnsupportedError struct {
	Filename string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.Filename)
}

func (e *UnsupportedError) Category() string { return common.CategoryInvalidInput }

// ReadError reports a file of a supported type that could not be parsed.
type ReadError struct {
	Filename string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.Filename, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) Category() string { return common.CategoryInvalidInput }

// ErrEmptySpreadsheet is wrapped in a ReadError when no sheet has a
// non-empty row.
var ErrEmptySpreadsheet = errors.New("spreadsheet has no data")

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// FromText wraps already extracted text.
func FromText(text string) *Document {
	return &Document{Text: &text}
}

// Extract reads data by extension, falling back to content sniffing when
// the name has no known extension.
func Extract(filename string, data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, &UnsupportedError{Filename: filename + " (empty file)"}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || (imageTypes[ext] == "" && !knownTextExt(ext)) {
		ext = sniffExt(data)
	}

	switch {
	case ext == ".pdf":
		text, err := pdfText(data)
		if errors.Is(err, ErrNoText) {
			return nil, err
		}
		if err != nil {
			return nil, &ReadError{Filename: filename, Err: err}
		}
		return FromText(text), nil
	case ext == ".xlsx":
		text, err := xlsxText(data)
		if err != nil {
			return nil, &ReadError{Filename: filename, Err: err}
		}
		return FromText(text), nil
	case ext == ".txt", ext == ".csv", ext == ".tsv":
		if !utf8.Valid(data) {
			return nil, &UnsupportedError{Filename: filename + " (not UTF-8 text)"}
		}
		return FromText(strings.TrimPrefix(string(data), "\ufeff")), nil
	case imageTypes[ext] != "":
		return &Document{Images: []Image{{
			MimeType: imageTypes[ext],
			Data:     base64.StdEncoding.EncodeToString(data),
		}}}, nil
	}
	return nil, &UnsupportedError{Filename: filename}
}

func knownTextExt(ext string) bool {
	switch ext {
	case ".pdf", ".xlsx", ".txt", ".csv", ".tsv":
		return true
	}
	return false
}

func sniffExt(data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return ".pdf"
	}
	switch ct := http.DetectContentType(data); {
	case ct == "image/png":
		return ".png"
	case ct == "image/jpeg":
		return ".jpg"
	case ct == "image/webp":
		return ".webp"
	case ct == "image/gif":
		return ".gif"
	case ct == "application/zip":
		return ".xlsx"
	case strings.HasPrefix(ct, "text/plain"):
		return ".txt"
	}
	return ""
}

// Lines splits the document text into trimmed, non-empty lines.
func (d *Document) Lines() []string {
	if d == nil || d.Text == nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(*d.Text, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// IsImage reports whether the document is a list of page images.
func (d *Document) IsImage() bool {
	return d != nil && d.Text == nil && len(d.Images) > 0
}

// pdfText reads the text layer row by row. The pdf package panics on some
// malformed files.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			var parts []string
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			pages = append(pages, strings.Join(lines, "\n"))
		}
	}

	if len(pages) == 0 {
		return "", ErrNoText
	}
	return strings.Join(pages, "\n"), nil
}

// xlsxText joins each non-empty row of every sheet with tabs.
func xlsxText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var lines []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
	}
	if len(lines) == 0 {
		return "", ErrEmptySpreadsheet
	}
	return strings.Join(lines, "\n"), nil
}
