package checkpoint

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/dgraph-io/badger"
	"golang.org/x/xerrors"
)

// Key prefixes that denote different tables in the key-value store.
const (
	KeyTypeRow uint32 = 0
)

// RowKey is laid out as prefix, render fingerprint, row, all big-endian, so
// the rows of one render sort together.
func RowKey(fingerprint uint64, row int) []byte {
	key := make([]byte, 20)
	binary.BigEndian.PutUint32(key[0:4], KeyTypeRow)
	binary.BigEndian.PutUint64(key[4:12], fingerprint)
	binary.BigEndian.PutUint64(key[12:20], uint64(row))
	return key
}

func RowKeyPrefixOneRender(fingerprint uint64) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint32(key[0:4], KeyTypeRow)
	binary.BigEndian.PutUint64(key[4:12], fingerprint)
	return key
}

// Fingerprint identifies a render configuration.  Rows saved under one
// fingerprint are never restored into a render with another.
func Fingerprint(parts ...string) uint64 {
	return xxhash.Sum64String(strings.Join(parts, "\x00"))
}

// EncodeRow packs a row as a uint32 column count followed by the counts and
// the color sums, little-endian.
func EncodeRow(sums []float64, counts []uint32) ([]byte, error) {
	if len(sums) != 3*len(counts) {
		return nil, xerrors.Errorf("row has %d sums for %d counts", len(sums), len(counts))
	}

	out := make([]byte, 4+4*len(counts)+8*len(sums))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(counts)))
	off := 4
	for _, c := range counts {
		binary.LittleEndian.PutUint32(out[off:off+4], c)
		off += 4
	}
	for _, s := range sums {
		binary.LittleEndian.PutUint64(out[off:off+8], math.Float64bits(s))
		off += 8
	}
	return out, nil
}

func DecodeRow(val []byte) ([]float64, []uint32, error) {
	if len(val) < 4 {
		return nil, nil, xerrors.Errorf("row value too short; got %d bytes", len(val))
	}
	cols := int(binary.LittleEndian.Uint32(val[0:4]))
	if want := 4 + 4*cols + 24*cols; len(val) != want {
		return nil, nil, xerrors.Errorf("row value has wrong length; got %d, want %d", len(val), want)
	}

	counts := make([]uint32, cols)
	sums := make([]float64, 3*cols)
	off := 4
	for i := range counts {
		counts[i] = binary.LittleEndian.Uint32(val[off : off+4])
		off += 4
	}
	for i := range sums {
		sums[i] = math.Float64frombits(binary.LittleEndian.Uint64(val[off : off+8]))
		off += 8
	}
	return sums, counts, nil
}

// Store keeps finished rows of one render in badger.
type Store struct {
	DB *badger.DB

	fingerprint uint64
}

func Open(dataDir string, fingerprint uint64) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dataDir))
	if err != nil {
		return nil, xerrors.Errorf("while opening badger kv dir %q: %w", dataDir, err)
	}

	return &Store{
		DB:          db,
		fingerprint: fingerprint,
	}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) LoadRow(ctx context.Context, row int) ([]float64, []uint32, bool, error) {
	var val []byte
	err := s.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(RowKey(s.fingerprint, row))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, xerrors.Errorf("while reading row %d: %w", row, err)
	}

	sums, counts, err := DecodeRow(val)
	if err != nil {
		return nil, nil, false, xerrors.Errorf("while decoding row %d: %w", row, err)
	}
	return sums, counts, true, nil
}

func (s *Store) SaveRow(ctx context.Context, row int, sums []float64, counts []uint32) error {
	val, err := EncodeRow(sums, counts)
	if err != nil {
		return fmt.Errorf("while encoding row %d: %w", row, err)
	}

	if err := s.DB.Update(func(txn *badger.Txn) error {
		return txn.Set(RowKey(s.fingerprint, row), val)
	}); err != nil {
		return xerrors.Errorf("while writing row %d: %w", row, err)
	}
	return nil
}

// SavedRows counts the rows stored for this render.
func (s *Store) SavedRows() (int, error) {
	n := 0
	err := s.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := RowKeyPrefixOneRender(s.fingerprint)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, xerrors.Errorf("while counting rows: %w", err)
	}
	return n, nil
}
