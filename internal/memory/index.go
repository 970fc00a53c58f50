package memory

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

const (
	indexMagic       = "HMIX"
	indexVersion     = 1
	indexHeaderSize  = 4 + 4 + 8 + 4 + 4
	indexFileMode    = 0o600
	indexTempPattern = ".index-*.bin.tmp"

	// maxIndexDimension caps the dimension accepted from an index header.
	maxIndexDimension = 1 << 16
)

// flatIndex is an exact nearest-neighbour index over squared L2 distance.
type flatIndex struct {
	dim     int
	vectors [][]float32
}

type hit struct {
	position int
	distance float64
}

func (x *flatIndex) len() int { return len(x.vectors) }

func (x *flatIndex) add(v []float32) error {
	if x.dim == 0 {
		x.dim = len(v)
	}
	if len(v) != x.dim {
		return fmt.Errorf("index add: %w: got %d want %d", ErrDimensionMismatch, len(v), x.dim)
	}
	x.vectors = append(x.vectors, v)
	return nil
}

func (x *flatIndex) truncate(n int) {
	if n < len(x.vectors) {
		x.vectors = x.vectors[:n]
	}
}

func (x *flatIndex) reset() {
	x.vectors = nil
}

// search returns up to k positions by ascending distance. Equal distances
// keep insertion order.
func (x *flatIndex) search(query []float32, k int) ([]hit, error) {
	if k <= 0 || len(x.vectors) == 0 {
		return nil, nil
	}
	hits := make([]hit, len(x.vectors))
	for i, v := range x.vectors {
		d, err := SquaredL2(query, v)
		if err != nil {
			return nil, err
		}
		hits[i] = hit{position: i, distance: d}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

type indexHeader struct {
	generation uint64
	dim        int
	count      int
}

// stageIndex writes the index to a temporary file next to path and returns
// its name. The caller either renames it into place or removes it.
func stageIndex(path string, generation uint64, x *flatIndex) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create index directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), indexTempPattern)
	if err != nil {
		return "", fmt.Errorf("create temp index file: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	w := bufio.NewWriter(tempFile)
	if err := writeIndex(w, generation, x); err != nil {
		_ = tempFile.Close()
		return "", err
	}
	if err := w.Flush(); err != nil {
		_ = tempFile.Close()
		return "", fmt.Errorf("write temp index file: %w", err)
	}
	if err := tempFile.Chmod(indexFileMode); err != nil {
		_ = tempFile.Close()
		return "", fmt.Errorf("chmod temp index file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return "", fmt.Errorf("sync temp index file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("close temp index file: %w", err)
	}

	cleanup = false
	return tempName, nil
}

func removeStaged(tempName string) error {
	return os.Remove(tempName)
}

func commitIndex(tempName, path string) error {
	if err := os.Rename(tempName, path); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

func writeIndex(w io.Writer, generation uint64, x *flatIndex) error {
	header := make([]byte, indexHeaderSize)
	copy(header[0:4], indexMagic)
	binary.LittleEndian.PutUint32(header[4:8], indexVersion)
	binary.LittleEndian.PutUint64(header[8:16], generation)
	binary.LittleEndian.PutUint32(header[16:20], uint32(x.dim))
	binary.LittleEndian.PutUint32(header[20:24], uint32(len(x.vectors)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write index header: %w", err)
	}
	for i, v := range x.vectors {
		blob, err := EncodeVector(v)
		if err != nil {
			return fmt.Errorf("write index row %d: %w", i, err)
		}
		if _, err := w.Write(blob); err != nil {
			return fmt.Errorf("write index row %d: %w", i, err)
		}
	}
	return nil
}

// readIndexFile loads the index at path. A missing file returns ok=false.
func readIndexFile(path string) (idx *flatIndex, header indexHeader, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, indexHeader{}, false, nil
		}
		return nil, indexHeader{}, false, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, indexHeader{}, false, fmt.Errorf("stat index file: %w", err)
	}

	idx, header, err = readIndex(bufio.NewReader(f), info.Size())
	if err != nil {
		return nil, indexHeader{}, false, err
	}
	return idx, header, true, nil
}

// readIndex decodes an index of exactly size bytes. The header is checked
// against size before anything is allocated from it.
func readIndex(r io.Reader, size int64) (*flatIndex, indexHeader, error) {
	raw := make([]byte, indexHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, indexHeader{}, fmt.Errorf("read index header: %w", err)
	}
	if string(raw[0:4]) != indexMagic {
		return nil, indexHeader{}, fmt.Errorf("read index header: bad magic %q", raw[0:4])
	}
	if v := binary.LittleEndian.Uint32(raw[4:8]); v != indexVersion {
		return nil, indexHeader{}, fmt.Errorf("read index header: unsupported version %d", v)
	}
	header := indexHeader{
		generation: binary.LittleEndian.Uint64(raw[8:16]),
		dim:        int(binary.LittleEndian.Uint32(raw[16:20])),
		count:      int(binary.LittleEndian.Uint32(raw[20:24])),
	}

	if header.dim < 0 || header.dim > maxIndexDimension || (header.count > 0 && header.dim == 0) {
		return nil, indexHeader{}, fmt.Errorf("read index header: invalid dimension %d", header.dim)
	}
	rowSize := int64(vectorBlobHeaderSize + header.dim*vectorValueByteSize)
	if want := int64(indexHeaderSize) + int64(header.count)*rowSize; want != size {
		return nil, indexHeader{}, fmt.Errorf("read index header: %d rows of dim %d need %d bytes, file has %d",
			header.count, header.dim, want, size)
	}

	x := &flatIndex{dim: header.dim, vectors: make([][]float32, 0, header.count)}
	if header.count == 0 {
		return x, header, nil
	}

	blob := make([]byte, vectorBlobHeaderSize+header.dim*vectorValueByteSize)
	for i := 0; i < header.count; i++ {
		if _, err := io.ReadFull(r, blob); err != nil {
			return nil, indexHeader{}, fmt.Errorf("read index row %d: %w", i, err)
		}
		v, err := DecodeVector(blob)
		if err != nil {
			return nil, indexHeader{}, fmt.Errorf("read index row %d: %w", i, err)
		}
		if len(v) != header.dim {
			return nil, indexHeader{}, fmt.Errorf("read index row %d: %w", i, ErrDimensionMismatch)
		}
		x.vectors = append(x.vectors, v)
	}
	return x, header, nil
}
