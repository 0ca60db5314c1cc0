// Package store provides a thin bbolt wrapper for the local filings store.
//
// Design philosophy: the store is an intentional data accumulator, not a
// transparent HTTP cache. Filings are written explicitly with `get --store`
// and read back by `store list`, `download --from-store` and `export`.
// Nothing is ever read from the store to answer a query.
//
// Buckets:
//
//	filings             filings keyed by api_id, with relation markers
//	entities            entities keyed by api_id
//	validation_messages validation messages keyed by api_id
//	_meta               internal: schema version, created_at
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/filings/internal/filingset"
	"github.com/derickschaefer/filings/internal/model"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

// Bucket name constants.
var (
	bucketFilings  = []byte("filings")
	bucketEntities = []byte("entities")
	bucketMessages = []byte("validation_messages")
	bucketInternal = []byte("_meta")
)

// AllBuckets lists every top-level bucket for stats and clear operations.
var AllBuckets = []string{"filings", "entities", "validation_messages"}

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketFilings, bucketEntities, bucketMessages, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Filings ──────────────────────────────────────────────────────────────────

// storedFiling is the on-disk form of a filing. Relations are stored as
// markers and ids; the related records live in their own buckets.
type storedFiling struct {
	model.Filing
	HasEntity   bool      `json:"has_entity"`
	HasMessages bool      `json:"has_validation_messages"`
	MessageIDs  []string  `json:"validation_message_ids,omitempty"`
	StoredAt    time.Time `json:"stored_at"`
}

func toStored(f *model.Filing) storedFiling {
	rec := storedFiling{
		Filing:    *f,
		HasEntity: f.HasEntity(),
		StoredAt:  time.Now().UTC(),
	}
	if msgs, err := f.ValidationMessages(); err == nil {
		rec.HasMessages = true
		for _, m := range msgs {
			rec.MessageIDs = append(rec.MessageIDs, m.APIID)
		}
	}
	return rec
}

// mergeStored applies the filing merge rule to a record already on disk:
// scalars of next win, relation markers and download paths survive.
func mergeStored(prev, next storedFiling) storedFiling {
	if !next.HasEntity && prev.HasEntity {
		next.HasEntity = true
	}
	if !next.HasMessages && prev.HasMessages {
		next.HasMessages, next.MessageIDs = true, prev.MessageIDs
	}
	for _, kind := range model.FileKinds {
		if next.Filing.DownloadPath(kind) == "" {
			next.Filing.SetDownloadPath(kind, prev.Filing.DownloadPath(kind))
		}
	}
	return next
}

// PutFilingSet stores every filing of set together with its loaded
// entity and validation messages. Filings already stored are merged.
// It returns the number of filings written.
func (s *Store) PutFilingSet(set *filingset.Set) (int, error) {
	filings := set.Filings()
	err := s.db.Update(func(tx *bolt.Tx) error {
		fb := tx.Bucket(bucketFilings)
		for _, f := range filings {
			rec := toStored(f)
			if old := fb.Get([]byte(f.APIID)); old != nil {
				var prev storedFiling
				if err := json.Unmarshal(old, &prev); err != nil {
					return fmt.Errorf("decoding stored filing %s: %w", f.APIID, err)
				}
				rec = mergeStored(prev, rec)
			}
			if err := putJSON(fb, f.APIID, rec); err != nil {
				return err
			}
		}
		for _, e := range set.Entities() {
			if err := putJSON(tx.Bucket(bucketEntities), e.APIID, e); err != nil {
				return err
			}
		}
		for _, m := range set.ValidationMessages() {
			if err := putJSON(tx.Bucket(bucketMessages), m.APIID, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(filings), nil
}

// LoadFilingSet reads every stored filing back into a set, relinking the
// relations that were loaded when they were stored.
func (s *Store) LoadFilingSet() (*filingset.Set, error) {
	entities := make(map[string]*model.Entity)
	messages := make(map[string]*model.ValidationMessage)
	var records []storedFiling

	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketEntities).ForEach(func(k, v []byte) error {
			var e model.Entity
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decoding entity %s: %w", k, err)
			}
			entities[e.APIID] = &e
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(bucketMessages).ForEach(func(k, v []byte) error {
			var m model.ValidationMessage
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decoding validation message %s: %w", k, err)
			}
			messages[m.APIID] = &m
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketFilings).ForEach(func(k, v []byte) error {
			var rec storedFiling
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding filing %s: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	set := filingset.New()
	for _, rec := range records {
		f := rec.Filing
		if rec.HasEntity {
			f.SetEntity(entities[f.EntityAPIID])
		}
		if rec.HasMessages {
			msgs := make([]*model.ValidationMessage, 0, len(rec.MessageIDs))
			for _, id := range rec.MessageIDs {
				if m := messages[id]; m != nil {
					msgs = append(msgs, m)
				}
			}
			f.SetValidationMessages(msgs)
		}
		set.Add(&f)
	}
	return set, nil
}

// ListFilings returns the scalar fields of every stored filing in api_id
// key order. Relations are not loaded.
func (s *Store) ListFilings() ([]*model.Filing, error) {
	var out []*model.Filing
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFilings).ForEach(func(k, v []byte) error {
			var rec storedFiling
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding filing %s: %w", k, err)
			}
			f := rec.Filing
			out = append(out, &f)
			return nil
		})
	})
	return out, err
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return b.Put([]byte(key), data)
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all buckets.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var count int
			var bytes int64
			b.ForEach(func(k, v []byte) error {
				count++
				bytes += int64(len(k) + len(v))
				return nil
			})
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: bytes})
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	if !slices.Contains(AllBuckets, name) {
		return fmt.Errorf("unknown bucket %q (buckets: %s)", name, strings.Join(AllBuckets, ", "))
	}
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}
