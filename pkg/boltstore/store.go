// Package boltstore is a domain.Connection backed by a bbolt file. Each
// collection is a bucket and each batch commits in one read-write
// transaction.
package boltstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

var (
	ErrNotFound   = domain.ErrNotFound
	ErrInvalidRef = errors.New("invalid document reference")
	ErrTooLarge   = errors.New("batch exceeds maximum size")
)

// Store wraps a bbolt database
type Store struct {
	db           *bolt.DB
	maxBatchSize int
	timeout      time.Duration
	logger       zerolog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithMaxBatchSize sets the hard cap on operations per batch
func WithMaxBatchSize(n int) Option {
	return func(s *Store) {
		s.maxBatchSize = n
	}
}

// WithTimeout bounds how long Open waits for the file lock
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithLogger sets the store logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens or creates the bbolt file at path
func Open(path string, options ...Option) (*Store, error) {
	s := &Store{
		maxBatchSize: domain.DefaultMaxBatchSize,
		timeout:      2 * time.Second,
		logger:       zerolog.Nop(),
	}
	for _, option := range options {
		option(s)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: s.timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt open %s: %w", path, err)
	}
	s.db = db

	s.logger.Info().Str("path", path).Int("max_batch_size", s.maxBatchSize).Msg("opened bolt store")
	return s, nil
}

// NewBatch implements domain.Connection
func (s *Store) NewBatch() domain.BatchHandle {
	return &Batch{store: s}
}

// MaxBatchSize implements domain.Connection
func (s *Store) MaxBatchSize() int {
	return s.maxBatchSize
}

// Get loads one document
func (s *Store) Get(ref domain.DocumentRef) (domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ref.Collection))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		raw := b.Get([]byte(ref.ID))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		var err error
		doc, err = decode(raw)
		return err
	})
	return doc, err
}

// GetById implements domain.Reader
func (s *Store) GetById(collName, docId string) (domain.Document, error) {
	return s.Get(domain.Ref(collName, docId))
}

// FindAll implements domain.Reader. Keys are walked in byte order, so pages
// are ordered by document ID.
func (s *Store) FindAll(collName string, filter map[string]interface{}, options *domain.PaginationOptions) (*domain.PaginationResult, error) {
	if options == nil {
		options = domain.DefaultPaginationOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	result := &domain.PaginationResult{Documents: []domain.Document{}}
	matched := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collName))
		if b == nil {
			return nil
		}

		return b.ForEach(func(_, raw []byte) error {
			doc, err := decode(raw)
			if err != nil {
				return err
			}
			if !doc.Matches(filter) {
				return nil
			}
			if matched >= options.Offset && (options.Limit == 0 || len(result.Documents) < options.Limit) {
				result.Documents = append(result.Documents, doc)
			}
			matched++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	start := min(options.Offset, matched)
	result.Total = int64(matched)
	result.HasPrev = start > 0
	result.HasNext = start+len(result.Documents) < matched
	return result, nil
}

// Count returns the number of documents in a collection
func (s *Store) Count(collection string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(collection)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func encode(doc domain.Document) ([]byte, error) {
	raw, err := msgpack.Marshal(map[string]interface{}(doc))
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}

func decode(raw []byte) (domain.Document, error) {
	var m map[string]interface{}
	if err := msgpack.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return domain.Document(m), nil
}
