// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package knowledge implements the in-memory retrieval index.
//
// Documents are split into paragraph-bounded chunks at ingest time; each
// chunk carries a precomputed term-frequency vector. Queries score chunks by
// term overlap (sum of matching term counts, normalized by chunk length).
// There is no IDF weighting and no stemming: that is a known precision
// ceiling, acceptable for small curated knowledge bases, not a defect.
//
// The index lives for the process lifetime only and is re-initialized empty
// on restart.
package knowledge

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/textsplitter"
)

var (
	// ErrDuplicateDocument is returned when a filename is already indexed.
	ErrDuplicateDocument = errors.New("document already indexed")

	// ErrEmptyDocument is returned when no chunks can be extracted.
	ErrEmptyDocument = errors.New("document has no extractable content")
)

const (
	// DefaultChunkSize bounds a chunk's character length.
	DefaultChunkSize = 300

	// DefaultChunkOverlap is the character overlap between adjacent chunks
	// of an oversized paragraph.
	DefaultChunkOverlap = 80
)

// termPattern extracts index terms: maximal runs of Unicode letters and
// digits, after lower-casing. Everything else is a token boundary.
var termPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Chunk is the retrieval unit: a bounded text span of a source document
// plus its precomputed term-frequency vector. Immutable after ingest.
type Chunk struct {
	Document string         `json:"document"`
	Seq      int            `json:"seq"`
	Text     string         `json:"text"`
	Terms    map[string]int `json:"-"`

	tokenCount int
	docOrder   int
}

// ScoredChunk pairs a chunk with its query relevance score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Stats is a read-only snapshot of index contents.
type Stats struct {
	DocumentCount int      `json:"documents"`
	TotalChunks   int      `json:"total_chunks"`
	Filenames     []string `json:"filenames"`
}

type document struct {
	filename string
	order    int
	chunks   []Chunk
}

// Index is the process-wide knowledge store. Safe for concurrent use:
// ingest takes the write lock, queries and stats take the read lock.
type Index struct {
	mu       sync.RWMutex
	docs     []*document
	byName   map[string]*document
	splitter textsplitter.RecursiveCharacter
}

// NewIndex creates an empty index with the given chunking parameters.
// Non-positive values fall back to the defaults.
func NewIndex(chunkSize, chunkOverlap int) *Index {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}
	return &Index{
		byName: make(map[string]*document),
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		),
	}
}

// Ingest splits raw text into chunks and adds them under filename.
//
// Returns the chunk count. Fails with ErrDuplicateDocument when the filename
// is already indexed (the index is left unchanged) and ErrEmptyDocument when
// the text yields no non-empty chunks.
func (ix *Index) Ingest(filename, text string) (int, error) {
	pieces, err := ix.splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("splitting %s: %w", filename, err)
	}

	var chunks []Chunk
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		terms, count := termVector(piece)
		chunks = append(chunks, Chunk{
			Document:   filename,
			Seq:        len(chunks),
			Text:       piece,
			Terms:      terms,
			tokenCount: count,
		})
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyDocument, filename)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.byName[filename]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateDocument, filename)
	}

	doc := &document{filename: filename, order: len(ix.docs), chunks: chunks}
	for i := range doc.chunks {
		doc.chunks[i].docOrder = doc.order
	}
	ix.docs = append(ix.docs, doc)
	ix.byName[filename] = doc

	slog.Info("Indexed knowledge document", "filename", filename, "chunks", len(chunks))
	return len(chunks), nil
}

// Query returns the topK chunks best matching text, by descending overlap
// score. Ties break by (document insertion order, chunk sequence) ascending.
// Chunks with zero term overlap are never returned. An empty index, a query
// with no recognizable terms, or topK <= 0 all yield an empty result, never
// an error.
func (ix *Index) Query(text string, topK int) []ScoredChunk {
	if topK <= 0 {
		return nil
	}
	queryTerms, _ := termVector(text)
	if len(queryTerms) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var scored []ScoredChunk
	for _, doc := range ix.docs {
		for i := range doc.chunks {
			chunk := &doc.chunks[i]
			score := overlapScore(queryTerms, chunk)
			if score > 0 {
				scored = append(scored, ScoredChunk{Chunk: *chunk, Score: score})
			}
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.docOrder != b.Chunk.docOrder {
			return a.Chunk.docOrder < b.Chunk.docOrder
		}
		return a.Chunk.Seq < b.Chunk.Seq
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// Stats returns a snapshot of the index. Filenames are in insertion order.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	stats := Stats{
		DocumentCount: len(ix.docs),
		Filenames:     make([]string, 0, len(ix.docs)),
	}
	for _, doc := range ix.docs {
		stats.TotalChunks += len(doc.chunks)
		stats.Filenames = append(stats.Filenames, doc.filename)
	}
	return stats
}

// termVector builds a term-frequency vector and reports the total token
// count of the text.
func termVector(text string) (map[string]int, int) {
	tokens := termPattern.FindAllString(strings.ToLower(text), -1)
	vector := make(map[string]int, len(tokens))
	for _, token := range tokens {
		vector[token]++
	}
	return vector, len(tokens)
}

// overlapScore sums matching term counts between a query vector and a chunk,
// normalized by the chunk's token count so long chunks do not dominate on
// raw volume.
func overlapScore(queryTerms map[string]int, chunk *Chunk) float64 {
	if chunk.tokenCount == 0 {
		return 0
	}
	matched := 0
	for term, qn := range queryTerms {
		if cn, ok := chunk.Terms[term]; ok {
			matched += qn * cn
		}
	}
	if matched == 0 {
		return 0
	}
	return float64(matched) / float64(chunk.tokenCount)
}
