// chunker.go - Deterministic partitioning of a statement into chunks

package processor

import (
	"strings"

	"github.com/bosocmputer/statement_ledger/internal/ai"
	"github.com/bosocmputer/statement_ledger/internal/extract"
)

// WholeDocument as a chunk size sends the entire document as one chunk.
const WholeDocument = -1

// SuggestChunkSize picks a chunk size from the document length so large
// statements do not explode into hundreds of requests.
func SuggestChunkSize(lineCount int) int {
	switch {
	case lineCount <= 150:
		return 30
	case lineCount <= 600:
		return 50
	case lineCount <= 2000:
		return 100
	}
	return 200
}

// BuildChunks partitions a document: one chunk per page image, or text
// lines grouped by size. size 0 asks for a suggestion, a negative size
// keeps the whole document in one chunk.
func BuildChunks(doc *extract.Document, size, headerLines int) []*Chunk {
	if doc.IsImage() {
		return ChunkImages(doc.Images)
	}
	return ChunkLines(doc.Lines(), size, headerLines)
}

// ChunkImages makes one chunk per image, in source order.
func ChunkImages(images []extract.Image) []*Chunk {
	chunks := make([]*Chunk, 0, len(images))
	for i, img := range images {
		chunks = append(chunks, &Chunk{
			Index:    i + 1,
			Kind:     KindImage,
			Data:     img.Data,
			MimeType: img.MimeType,
			Status:   StatusPending,
			Included: true,
		})
	}
	return chunks
}

// ChunkLines groups lines into chunks. The first headerLines lines are the
// header excerpt: they stay in chunk 1 as real content and are repeated,
// delimited, ahead of every later chunk's body.
func ChunkLines(lines []string, size, headerLines int) []*Chunk {
	if len(lines) == 0 {
		return nil
	}
	if size == 0 {
		size = SuggestChunkSize(len(lines))
	}
	if headerLines < 0 {
		headerLines = 0
	}
	if headerLines > len(lines) {
		headerLines = len(lines)
	}

	header := lines[:headerLines]
	body := lines[headerLines:]
	if size < 0 || len(body) <= size {
		return []*Chunk{textChunk(1, lines, len(body))}
	}

	var chunks []*Chunk
	for start := 0; start < len(body); start += size {
		end := start + size
		if end > len(body) {
			end = len(body)
		}
		group := body[start:end]
		index := len(chunks) + 1
		if index == 1 {
			content := append(append([]string{}, header...), group...)
			chunks = append(chunks, textChunk(index, content, len(group)))
			continue
		}
		chunks = append(chunks, textChunk(index, withHeaderContext(header, group), len(group)))
	}
	return chunks
}

func withHeaderContext(header, group []string) []string {
	if len(header) == 0 {
		return group
	}
	out := make([]string, 0, len(header)+len(group)+2)
	out = append(out, ai.HeaderContextStart)
	out = append(out, header...)
	out = append(out, ai.HeaderContextEnd)
	return append(out, group...)
}

func textChunk(index int, lines []string, bodyLines int) *Chunk {
	return &Chunk{
		Index:     index,
		Kind:      KindText,
		Data:      strings.Join(lines, "\n"),
		BodyLines: bodyLines,
		Status:    StatusPending,
		Included:  true,
	}
}
