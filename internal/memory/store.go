// Package memory implements the long-term semantic memory: conversation turns
// embedded into a flat L2 index, with metadata kept in SQLite next to it.
package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	indexFileName    = "index.bin"
	metadataFileName = "metadata.db"

	contextResults = 15
)

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDimension pins the embedding dimension. Zero adopts the dimension of
// the loaded index or of the first stored vector.
func WithDimension(dim int) Option {
	return func(s *Store) { s.dim = dim }
}

// Store is the persisted semantic memory. Mutations and their persistence
// run under one lock, so the index and metadata always have equal length.
type Store struct {
	mu         sync.RWMutex
	dir        string
	indexPath  string
	meta       *metadataDB
	embedder   Embedder
	index      *flatIndex
	entries    []Entry
	generation uint64
	dim        int
	logger     *zap.Logger
	now        func() time.Time
}

// Open loads the memory persisted in dir, repairing a diverged index, or
// starts empty when nothing is there yet.
func Open(ctx context.Context, dir string, embedder Embedder, opts ...Option) (*Store, error) {
	s := &Store{
		dir:       dir,
		indexPath: filepath.Join(dir, indexFileName),
		embedder:  embedder,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.index = &flatIndex{dim: s.dim}

	meta, err := openMetadataDB(filepath.Join(dir, metadataFileName))
	if err != nil {
		return nil, fmt.Errorf("open memory metadata: %w", err)
	}
	s.meta = meta

	if err := s.load(ctx); err != nil {
		_ = meta.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Close()
}

func (s *Store) load(ctx context.Context) error {
	entries, metaGen, err := s.meta.load(ctx)
	if err != nil {
		return fmt.Errorf("load memory metadata: %w", err)
	}

	idx, header, ok, err := readIndexFile(s.indexPath)
	if err != nil {
		s.logger.Warn("index file unreadable, rebuilding from metadata", zap.Error(err))
		idx, ok = nil, false
	}
	if !ok {
		idx = &flatIndex{dim: s.dim}
	}
	if s.dim > 0 && idx.dim > 0 && idx.len() > 0 && idx.dim != s.dim {
		return fmt.Errorf("load memory index: %w: file has %d, configured %d", ErrDimensionMismatch, idx.dim, s.dim)
	}
	if idx.len() == 0 {
		idx.dim = s.dim
	}

	repaired := false
	switch {
	case idx.len() > len(entries):
		s.logger.Warn("index ahead of metadata, truncating",
			zap.Int("vectors", idx.len()), zap.Int("entries", len(entries)))
		idx.truncate(len(entries))
		repaired = true
	case idx.len() < len(entries):
		missing := entries[idx.len():]
		s.logger.Warn("index behind metadata, re-embedding missing entries",
			zap.Int("vectors", idx.len()), zap.Int("entries", len(entries)))
		texts := make([]string, len(missing))
		for i, e := range missing {
			texts[i] = e.Text
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("re-embed missing entries: %w", err)
		}
		for _, v := range vectors {
			if err := idx.add(v); err != nil {
				return fmt.Errorf("re-embed missing entries: %w", err)
			}
		}
		repaired = true
	case ok && header.generation != metaGen:
		s.logger.Warn("index and metadata generations differ with equal counts",
			zap.Uint64("index_generation", header.generation), zap.Uint64("metadata_generation", metaGen))
	}

	s.index = idx
	s.entries = entries
	s.dim = idx.dim
	s.generation = metaGen
	if header.generation > s.generation {
		s.generation = header.generation
	}

	if repaired {
		if err := s.persistAll(ctx, s.generation+1); err != nil {
			return fmt.Errorf("persist repaired memory: %w", err)
		}
	}
	return nil
}

// Store embeds and appends one conversation turn, then persists both
// artifacts. It returns the new entry id.
func (s *Store) Store(ctx context.Context, userInput, assistantResponse, contextText string, extra map[string]string) (string, error) {
	text := composeText(userInput, assistantResponse, contextText)

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim > 0 && len(vector) != s.dim {
		return "", fmt.Errorf("store memory: %w: got %d want %d", ErrDimensionMismatch, len(vector), s.dim)
	}
	if err := s.index.add(vector); err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}

	entry := Entry{
		ID:       uuid.NewString(),
		Position: s.nextPosition(),
		Text:     text,
		Metadata: Metadata{
			Timestamp:         s.now().Format(time.RFC3339),
			UserInput:         userInput,
			AssistantResponse: assistantResponse,
			Context:           contextText,
			Extra:             copyExtra(extra),
		},
	}
	generation := s.generation + 1

	tempName, err := stageIndex(s.indexPath, generation, s.index)
	if err != nil {
		s.index.truncate(len(s.entries))
		return "", fmt.Errorf("store memory: %w", err)
	}
	if err := s.meta.append(ctx, entry, generation); err != nil {
		_ = removeStaged(tempName)
		s.index.truncate(len(s.entries))
		return "", fmt.Errorf("store memory: %w", err)
	}

	// Metadata is committed; the entry exists even if the rename fails, and
	// the next load re-embeds it.
	s.entries = append(s.entries, entry)
	s.generation = generation
	s.dim = s.index.dim
	if err := commitIndex(tempName, s.indexPath); err != nil {
		return entry.ID, fmt.Errorf("store memory: %w", err)
	}
	return entry.ID, nil
}

// Retrieve returns up to k entries nearest to query with similarity at or
// above threshold, most similar first. Similarity is 1 - squared L2 distance.
func (s *Store) Retrieve(ctx context.Context, query string, k int, threshold float64) ([]Result, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	empty := s.index.len() == 0
	s.mu.RUnlock()
	if empty {
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve memory: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.index.search(vector, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve memory: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		similarity := 1 - h.distance
		if similarity < threshold {
			continue
		}
		e := s.entries[h.position]
		results = append(results, Result{
			ID:         e.ID,
			Text:       e.Text,
			Metadata:   e.Metadata,
			Distance:   h.distance,
			Similarity: similarity,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	return results, nil
}

// GetContext renders the memories most relevant to query as prompt context,
// stopping before the first block that would exceed maxLength characters.
// Retrieval failures yield an empty context.
func (s *Store) GetContext(ctx context.Context, query string, maxLength int) string {
	results, err := s.Retrieve(ctx, query, contextResults, 0.0)
	if err != nil {
		s.logger.Warn("memory context unavailable", zap.Error(err))
		return ""
	}

	parts := make([]string, 0, len(results))
	total := 0
	for _, r := range results {
		part := "Previous conversation:\n" + r.Text + "\n"
		n := utf8.RuneCountInString(part)
		if total+n > maxLength {
			break
		}
		parts = append(parts, part)
		total += n
	}
	return strings.Join(parts, "\n")
}

// Clear drops every entry and persists the empty state.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	generation := s.generation + 1
	empty := &flatIndex{dim: s.index.dim}
	tempName, err := stageIndex(s.indexPath, generation, empty)
	if err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	if err := s.meta.truncate(ctx, 0, generation); err != nil {
		_ = removeStaged(tempName)
		return fmt.Errorf("clear memory: %w", err)
	}
	s.index = empty
	s.entries = nil
	s.generation = generation
	if err := commitIndex(tempName, s.indexPath); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return nil
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{TotalEntries: len(s.entries), Location: s.dir}
}

// persistAll rewrites the index and stamps the metadata with generation.
// Callers hold the lock or have exclusive access.
func (s *Store) persistAll(ctx context.Context, generation uint64) error {
	tempName, err := stageIndex(s.indexPath, generation, s.index)
	if err != nil {
		return err
	}
	if err := s.meta.setGeneration(ctx, generation); err != nil {
		_ = removeStaged(tempName)
		return err
	}
	s.generation = generation
	return commitIndex(tempName, s.indexPath)
}

func (s *Store) nextPosition() int {
	if len(s.entries) == 0 {
		return 0
	}
	return s.entries[len(s.entries)-1].Position + 1
}

func composeText(userInput, assistantResponse, contextText string) string {
	text := "User: " + userInput + "\nAssistant: " + assistantResponse
	if contextText != "" {
		text = "Context: " + contextText + "\n" + text
	}
	return text
}

func copyExtra(extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}
