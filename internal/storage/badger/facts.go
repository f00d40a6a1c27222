package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	cberrors "crossbridge/internal/errors"
	"crossbridge/internal/impact"
)

var (
	factPrefix = []byte("fact/")
	seqKey     = []byte("meta/next_seq")
)

// factValue is the stored value; the key carries the fact's identity.
// Seq records first insertion so Facts can return facts in that order.
type factValue struct {
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observed_at"`
	Seq        uint64    `json:"seq"`
}

// FactStore keeps one key per (test, element, source)
type FactStore struct {
	db        *badger.DB
	path      string
	gcDiscard float64
}

var _ impact.FactStore = (*FactStore)(nil)

// Open opens or creates a fact store
func Open(cfg Config) (*FactStore, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, cberrors.NewStorageError("failed to open fact store", err)
	}
	return &FactStore{db: db, path: cfg.Path, gcDiscard: cfg.GCDiscardRatio}, nil
}

// Close closes the database
func (s *FactStore) Close() error {
	return s.db.Close()
}

// Location names the store for diagnostics
func (s *FactStore) Location() string {
	if s.path == "" {
		return "badger:memory"
	}
	return "badger:" + s.path
}

func factKey(f impact.Fact) []byte {
	key := make([]byte, 0, len(factPrefix)+len(f.TestID)+len(f.Element)+len(f.Source)+2)
	key = append(key, factPrefix...)
	key = append(key, f.TestID...)
	key = append(key, 0)
	key = append(key, f.Element...)
	key = append(key, 0)
	key = append(key, string(f.Source)...)
	return key
}

func parseFactKey(key []byte) (testID, element string, source impact.Source, ok bool) {
	parts := bytes.Split(bytes.TrimPrefix(key, factPrefix), []byte{0})
	if len(parts) != 3 {
		return "", "", "", false
	}
	return string(parts[0]), string(parts[1]), impact.Source(parts[2]), true
}

// Upsert stores facts in one transaction, keeping the higher confidence and
// later timestamp of an existing fact
func (s *FactStore) Upsert(ctx context.Context, facts ...impact.Fact) error {
	for _, f := range facts {
		if err := f.Validate(); err != nil {
			return err
		}
		if strings.ContainsRune(f.TestID, 0) || strings.ContainsRune(f.Element, 0) {
			return cberrors.NewValidationError("impact fact (%q, %q) contains a NUL byte", f.TestID, f.Element)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		next, err := readSeq(txn)
		if err != nil {
			return err
		}

		for _, f := range facts {
			key := factKey(f)
			val := factValue{Confidence: f.Confidence, ObservedAt: f.ObservedAt.UTC()}

			existing, err := readFact(txn, key)
			switch {
			case err == nil:
				val.Seq = existing.Seq
				if existing.Confidence > val.Confidence {
					val.Confidence = existing.Confidence
				}
				if existing.ObservedAt.After(val.ObservedAt) {
					val.ObservedAt = existing.ObservedAt
				}
			case errors.Is(err, badger.ErrKeyNotFound):
				val.Seq = next
				next++
			default:
				return err
			}

			data, err := json.Marshal(val)
			if err != nil {
				return err
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
		}

		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], next)
		return txn.Set(seqKey, buf[:])
	})
	if err != nil {
		return cberrors.NewStorageError("failed to store impact facts", err)
	}
	return nil
}

func readSeq(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(seqKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var next uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("sequence value has %d bytes", len(val))
		}
		next = binary.BigEndian.Uint64(val)
		return nil
	})
	return next, err
}

func readFact(txn *badger.Txn, key []byte) (factValue, error) {
	var v factValue
	item, err := txn.Get(key)
	if err != nil {
		return v, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &v)
	})
	return v, err
}

// Facts returns every fact in first-insertion order
func (s *FactStore) Facts(ctx context.Context) ([]impact.Fact, error) {
	type seqFact struct {
		seq  uint64
		fact impact.Fact
	}
	var collected []seqFact

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = factPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			testID, element, source, ok := parseFactKey(key)
			if !ok {
				return cberrors.NewDeserializationError(s.Location()+"#"+string(key), errors.New("malformed fact key"))
			}

			var v factValue
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				return cberrors.NewDeserializationError(s.Location()+"#"+string(key), err)
			}

			collected = append(collected, seqFact{
				seq: v.Seq,
				fact: impact.Fact{
					TestID:     testID,
					Element:    element,
					Source:     source,
					Confidence: v.Confidence,
					ObservedAt: v.ObservedAt,
				},
			})
		}
		return nil
	})
	if err != nil {
		if cberrors.IsCode(err, cberrors.DeserializationError) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, cberrors.NewStorageError("failed to read impact facts", err)
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].seq < collected[j].seq })
	facts := make([]impact.Fact, len(collected))
	for i, c := range collected {
		facts[i] = c.fact
	}
	return facts, nil
}

// Compact runs one value log garbage collection pass
func (s *FactStore) Compact() error {
	err := s.db.RunValueLogGC(s.gcDiscard)
	if err == nil || errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}
