package memory

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// tableEmbedder returns fixed vectors for known texts and a hash-derived
// vector otherwise.
type tableEmbedder struct {
	mu      sync.Mutex
	table   map[string][]float32
	dim     int
	calls   int
	batched int
	err     error
}

func newTableEmbedder(dim int) *tableEmbedder {
	return &tableEmbedder{table: make(map[string][]float32), dim: dim}
}

func (e *tableEmbedder) set(text string, v ...float32) { e.table[text] = v }

func (e *tableEmbedder) vector(text string) []float32 {
	if v, ok := e.table[text]; ok {
		return append([]float32(nil), v...)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	v := make([]float32, e.dim)
	for i := range v {
		v[i] = float32((seed>>(uint(i)*5))%31) + 10
	}
	return v
}

func (e *tableEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *tableEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batched += len(texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func openTestStore(t *testing.T, dir string, emb Embedder) *Store {
	t.Helper()
	clock := func() time.Time { return time.Date(2025, 7, 11, 15, 0, 0, 0, time.UTC) }
	s, err := Open(context.Background(), dir, emb, WithClock(clock))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustStore(t *testing.T, s *Store, u, a, c string) string {
	t.Helper()
	id, err := s.Store(context.Background(), u, a, c, nil)
	if err != nil {
		t.Fatalf("Store error: %v", err)
	}
	return id
}

func TestComposeText(t *testing.T) {
	if got := composeText("hi", "hello", ""); got != "User: hi\nAssistant: hello" {
		t.Fatalf("composeText = %q", got)
	}
	if got := composeText("hi", "hello", "greeting"); got != "Context: greeting\nUser: hi\nAssistant: hello" {
		t.Fatalf("composeText with context = %q", got)
	}
}

func TestRetrieveEmptyStore(t *testing.T) {
	emb := newTableEmbedder(3)
	s := openTestStore(t, t.TempDir(), emb)

	results, err := s.Retrieve(context.Background(), "anything", 5, 0)
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
	if emb.calls != 0 {
		t.Fatalf("empty store should not embed the query, calls=%d", emb.calls)
	}
}

func TestRetrieveBlankQuery(t *testing.T) {
	emb := newTableEmbedder(3)
	s := openTestStore(t, t.TempDir(), emb)
	mustStore(t, s, "a", "b", "")

	results, err := s.Retrieve(context.Background(), "   ", 5, 0)
	if err != nil || results != nil {
		t.Fatalf("blank query: results=%v err=%v", results, err)
	}
}

func TestStoreThenRetrieveExactText(t *testing.T) {
	s := openTestStore(t, t.TempDir(), newTableEmbedder(4))
	id := mustStore(t, s, "My name is Joao", "Nice to meet you, Joao!", "")
	mustStore(t, s, "What's the weather?", "Sunny.", "")

	results, err := s.Retrieve(context.Background(), "User: My name is Joao\nAssistant: Nice to meet you, Joao!", 1, 0)
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].ID != id {
		t.Fatalf("top result id = %s, want %s", results[0].ID, id)
	}
	if results[0].Similarity < 0.9 {
		t.Fatalf("similarity = %v, want >= 0.9", results[0].Similarity)
	}
	if results[0].Metadata.UserInput != "My name is Joao" || results[0].Metadata.Timestamp != "2025-07-11T15:00:00Z" {
		t.Fatalf("metadata = %+v", results[0].Metadata)
	}
}

func TestRetrieveBoundsOrderAndThreshold(t *testing.T) {
	emb := newTableEmbedder(3)
	emb.set("q", 0, 0, 0)
	texts := map[string][]float32{
		"User: near\nAssistant: x":  {0, 0, 0.1},
		"User: mid\nAssistant: x":   {0, 0, 0.3},
		"User: far\nAssistant: x":   {0, 0, 2},
		"User: close\nAssistant: x": {0, 0.2, 0},
	}
	for text, v := range texts {
		emb.set(text, v...)
	}
	s := openTestStore(t, t.TempDir(), emb)
	for _, u := range []string{"far", "mid", "near", "close"} {
		mustStore(t, s, u, "x", "")
	}

	results, err := s.Retrieve(context.Background(), "q", 10, 0)
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	var got []string
	for _, r := range results {
		got = append(got, r.Metadata.UserInput)
		if r.Similarity < 0 {
			t.Fatalf("result below threshold: %+v", r)
		}
	}
	if diff := cmp.Diff([]string{"near", "close", "mid"}, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Fatalf("results not sorted by similarity: %v", results)
		}
	}

	results, _ = s.Retrieve(context.Background(), "q", 2, 0)
	if len(results) != 2 {
		t.Fatalf("k=2 returned %d results", len(results))
	}

	results, _ = s.Retrieve(context.Background(), "q", 10, 0.95)
	if len(results) != 2 {
		t.Fatalf("threshold 0.95 returned %d results, want 2", len(results))
	}
	if math.Abs(results[0].Similarity-0.99) > 1e-6 {
		t.Fatalf("similarity = %v, want 0.99", results[0].Similarity)
	}
}

func TestRetrieveTiesKeepInsertionOrder(t *testing.T) {
	emb := newTableEmbedder(2)
	emb.set("q", 0, 0)
	emb.set("User: first\nAssistant: x", 0.1, 0)
	emb.set("User: second\nAssistant: x", 0, 0.1)
	s := openTestStore(t, t.TempDir(), emb)
	mustStore(t, s, "first", "x", "")
	mustStore(t, s, "second", "x", "")

	results, err := s.Retrieve(context.Background(), "q", 2, 0)
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if len(results) != 2 || results[0].Metadata.UserInput != "first" {
		t.Fatalf("tie order = %+v", results)
	}
}

func TestGetContextRespectsMaxLength(t *testing.T) {
	emb := newTableEmbedder(2)
	emb.set("q", 0, 0)
	emb.set("User: one\nAssistant: 1", 0, 0.1)
	emb.set("User: two\nAssistant: 2", 0, 0.2)
	s := openTestStore(t, t.TempDir(), emb)
	mustStore(t, s, "one", "1", "")
	mustStore(t, s, "two", "2", "")

	first := "Previous conversation:\nUser: one\nAssistant: 1\n"
	second := "Previous conversation:\nUser: two\nAssistant: 2\n"

	if got := s.GetContext(context.Background(), "q", 2000); got != first+"\n"+second {
		t.Fatalf("GetContext = %q", got)
	}
	if got := s.GetContext(context.Background(), "q", len(first)+len(second)-1); got != first {
		t.Fatalf("GetContext truncated = %q", got)
	}
	if got := s.GetContext(context.Background(), "q", len(first)-1); got != "" {
		t.Fatalf("GetContext too small = %q", got)
	}
}

func TestGetContextDegradesOnError(t *testing.T) {
	emb := newTableEmbedder(2)
	s := openTestStore(t, t.TempDir(), emb)
	mustStore(t, s, "a", "b", "")

	emb.err = errors.New("embedding service down")
	if got := s.GetContext(context.Background(), "a", 2000); got != "" {
		t.Fatalf("GetContext = %q, want empty", got)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	emb := newTableEmbedder(3)
	s := openTestStore(t, dir, emb)
	mustStore(t, s, "a", "b", "")
	mustStore(t, s, "c", "d", "")

	if err := s.Clear(context.Background()); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if got := s.Stats(); got.TotalEntries != 0 || got.Location != dir {
		t.Fatalf("Stats = %+v", got)
	}
	results, _ := s.Retrieve(context.Background(), "a", 5, 0)
	if len(results) != 0 {
		t.Fatalf("expected no results after clear, got %d", len(results))
	}
	_ = s.Close()

	reopened := openTestStore(t, dir, emb)
	if got := reopened.Stats().TotalEntries; got != 0 {
		t.Fatalf("reopened TotalEntries = %d, want 0", got)
	}
	mustStore(t, reopened, "e", "f", "")
	if got := reopened.Stats().TotalEntries; got != 1 {
		t.Fatalf("TotalEntries after store = %d, want 1", got)
	}
}

func TestReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	emb := newTableEmbedder(4)
	s := openTestStore(t, dir, emb)
	mustStore(t, s, "hello", "hi there", "")
	mustStore(t, s, "book dentist", "Booked.", "calendar")
	if _, err := s.Store(context.Background(), "bye", "see you", "", map[string]string{"channel": "telegram"}); err != nil {
		t.Fatalf("Store error: %v", err)
	}

	before, err := s.Retrieve(context.Background(), "hello", 3, -1e9)
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	entriesBefore := append([]Entry(nil), s.entries...)
	_ = s.Close()

	reopened := openTestStore(t, dir, emb)
	if diff := cmp.Diff(entriesBefore, reopened.entries); diff != "" {
		t.Fatalf("entries differ after reload (-want +got):\n%s", diff)
	}
	after, err := reopened.Retrieve(context.Background(), "hello", 3, -1e9)
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("results differ after reload (-want +got):\n%s", diff)
	}
	if emb.batched != 0 {
		t.Fatalf("clean reload should not re-embed, batched=%d", emb.batched)
	}
}

func TestLoadTruncatesIndexAheadOfMetadata(t *testing.T) {
	dir := t.TempDir()
	emb := newTableEmbedder(3)
	s := openTestStore(t, dir, emb)
	mustStore(t, s, "a", "1", "")
	mustStore(t, s, "b", "2", "")
	mustStore(t, s, "c", "3", "")

	if err := s.meta.truncate(context.Background(), 2, s.generation); err != nil {
		t.Fatalf("truncate error: %v", err)
	}
	_ = s.Close()

	reopened := openTestStore(t, dir, emb)
	if got := reopened.Stats().TotalEntries; got != 2 {
		t.Fatalf("TotalEntries = %d, want 2", got)
	}
	if got := reopened.index.len(); got != 2 {
		t.Fatalf("index len = %d, want 2", got)
	}
	_, header, ok, err := readIndexFile(filepath.Join(dir, indexFileName))
	if err != nil || !ok || header.count != 2 {
		t.Fatalf("persisted index header=%+v ok=%v err=%v", header, ok, err)
	}
}

func TestLoadReembedsIndexBehindMetadata(t *testing.T) {
	dir := t.TempDir()
	emb := newTableEmbedder(3)
	s := openTestStore(t, dir, emb)
	mustStore(t, s, "a", "1", "")
	mustStore(t, s, "b", "2", "")
	mustStore(t, s, "c", "3", "")

	short := &flatIndex{dim: 3, vectors: s.index.vectors[:1]}
	tempName, err := stageIndex(s.indexPath, s.generation, short)
	if err != nil {
		t.Fatalf("stageIndex error: %v", err)
	}
	if err := commitIndex(tempName, s.indexPath); err != nil {
		t.Fatalf("commitIndex error: %v", err)
	}
	_ = s.Close()

	reopened := openTestStore(t, dir, emb)
	if got := reopened.index.len(); got != 3 {
		t.Fatalf("index len = %d, want 3", got)
	}
	if emb.batched != 2 {
		t.Fatalf("re-embedded %d texts, want 2", emb.batched)
	}
	results, _ := reopened.Retrieve(context.Background(), "User: c\nAssistant: 3", 1, 0)
	if len(results) != 1 || results[0].Metadata.UserInput != "c" {
		t.Fatalf("results = %+v", results)
	}
}

func TestLoadRebuildsCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	emb := newTableEmbedder(3)
	s := openTestStore(t, dir, emb)
	mustStore(t, s, "a", "1", "")
	mustStore(t, s, "b", "2", "")
	_ = s.Close()

	if err := os.WriteFile(filepath.Join(dir, indexFileName), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	reopened := openTestStore(t, dir, emb)
	if got := reopened.index.len(); got != 2 {
		t.Fatalf("index len = %d, want 2", got)
	}
}

func indexHeaderBytes(generation uint64, dim, count uint32) []byte {
	raw := make([]byte, indexHeaderSize)
	copy(raw[0:4], indexMagic)
	binary.LittleEndian.PutUint32(raw[4:8], indexVersion)
	binary.LittleEndian.PutUint64(raw[8:16], generation)
	binary.LittleEndian.PutUint32(raw[16:20], dim)
	binary.LittleEndian.PutUint32(raw[20:24], count)
	return raw
}

func TestLoadRebuildsIndexWithOversizedHeader(t *testing.T) {
	dir := t.TempDir()
	emb := newTableEmbedder(3)
	s := openTestStore(t, dir, emb)
	mustStore(t, s, "a", "1", "")
	_ = s.Close()

	header := indexHeaderBytes(1, 0xFFFFFFF0, 0xFFFFFFF0)
	if err := os.WriteFile(filepath.Join(dir, indexFileName), header, 0o600); err != nil {
		t.Fatal(err)
	}
	reopened := openTestStore(t, dir, emb)
	if got := reopened.index.len(); got != 1 {
		t.Fatalf("index len = %d, want 1", got)
	}
	if reopened.index.dim != 3 {
		t.Fatalf("index dim = %d, want 3", reopened.index.dim)
	}
}

func TestReadIndexRejectsInconsistentHeader(t *testing.T) {
	row, err := EncodeVector([]float32{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	valid := append(indexHeaderBytes(4, 3, 1), row...)

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"valid", valid, false},
		{"empty index", indexHeaderBytes(1, 0, 0), false},
		{"count beyond file", append(indexHeaderBytes(4, 3, 2), row...), true},
		{"trailing bytes", append(append([]byte{}, valid...), 0), true},
		{"dimension too large", indexHeaderBytes(4, maxIndexDimension+1, 0), true},
		{"rows without dimension", indexHeaderBytes(4, 0, 1), true},
		{"huge header", indexHeaderBytes(4, 0xFFFFFFF0, 0xFFFFFFF0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, header, err := readIndex(bytes.NewReader(tt.data), int64(len(tt.data)))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got index with %d rows", idx.len())
				}
				return
			}
			if err != nil {
				t.Fatalf("readIndex error: %v", err)
			}
			if idx.len() != header.count {
				t.Fatalf("rows = %d, header count = %d", idx.len(), header.count)
			}
		})
	}
}

func TestStoreRejectsDimensionChange(t *testing.T) {
	emb := newTableEmbedder(3)
	emb.set("User: odd\nAssistant: x", 1, 2)
	s := openTestStore(t, t.TempDir(), emb)
	mustStore(t, s, "a", "b", "")

	_, err := s.Store(context.Background(), "odd", "x", "", nil)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if s.Stats().TotalEntries != 1 || s.index.len() != 1 {
		t.Fatalf("store should be unchanged, entries=%d vectors=%d", s.Stats().TotalEntries, s.index.len())
	}
}

func TestStoreRollsBackOnPersistFailure(t *testing.T) {
	s := openTestStore(t, t.TempDir(), newTableEmbedder(3))
	mustStore(t, s, "a", "b", "")
	_ = s.meta.Close()

	if _, err := s.Store(context.Background(), "c", "d", "", nil); err == nil {
		t.Fatal("expected error with closed metadata db")
	}
	if s.Stats().TotalEntries != 1 || s.index.len() != 1 {
		t.Fatalf("cardinality broken: entries=%d vectors=%d", s.Stats().TotalEntries, s.index.len())
	}
	matches, _ := filepath.Glob(filepath.Join(s.dir, ".index-*"))
	if len(matches) != 0 {
		t.Fatalf("staged files left behind: %v", matches)
	}
}

func TestStoreConcurrent(t *testing.T) {
	s := openTestStore(t, t.TempDir(), newTableEmbedder(4))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Store(context.Background(), strings.Repeat("x", i+1), "ok", "", nil); err != nil {
				t.Errorf("Store error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if got := s.Stats().TotalEntries; got != 20 {
		t.Fatalf("TotalEntries = %d, want 20", got)
	}
	if s.index.len() != len(s.entries) {
		t.Fatalf("vectors=%d entries=%d", s.index.len(), len(s.entries))
	}
}
