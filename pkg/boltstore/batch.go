package boltstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

type opKind int

const (
	opSet opKind = iota
	opUpdate
	opDelete
)

type op struct {
	kind opKind
	ref  domain.DocumentRef
	data domain.Document
	opts []domain.SetOption
}

// Batch stages operations for one bbolt transaction
type Batch struct {
	store *Store

	mu  sync.Mutex
	ops []op
}

// Delete implements domain.BatchHandle
func (b *Batch) Delete(ref domain.DocumentRef) {
	b.stage(op{kind: opDelete, ref: ref})
}

// Set implements domain.BatchHandle
func (b *Batch) Set(ref domain.DocumentRef, data domain.Document, opts ...domain.SetOption) {
	b.stage(op{kind: opSet, ref: ref, data: data.Clone(), opts: opts})
}

// Update implements domain.BatchHandle
func (b *Batch) Update(ref domain.DocumentRef, data domain.Document) {
	b.stage(op{kind: opUpdate, ref: ref, data: data.Clone()})
}

// Commit implements domain.BatchHandle. Any failing operation rolls back
// the whole transaction.
func (b *Batch) Commit(ctx context.Context) ([]domain.WriteResult, error) {
	b.mu.Lock()
	ops := append([]op(nil), b.ops...)
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ops) > b.store.maxBatchSize {
		return nil, fmt.Errorf("%w: %d operations, maximum is %d", ErrTooLarge, len(ops), b.store.maxBatchSize)
	}

	now := time.Now()
	err := b.store.db.Update(func(tx *bolt.Tx) error {
		for i, o := range ops {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := apply(tx, o); err != nil {
				return fmt.Errorf("operation %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]domain.WriteResult, len(ops))
	for i, o := range ops {
		results[i] = domain.WriteResult{Ref: o.ref, UpdateTime: now}
	}
	return results, nil
}

func (b *Batch) stage(o op) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, o)
}

func apply(tx *bolt.Tx, o op) error {
	if !o.ref.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRef, o.ref.String())
	}

	bucket, err := tx.CreateBucketIfNotExists([]byte(o.ref.Collection))
	if err != nil {
		return fmt.Errorf("bucket %s: %w", o.ref.Collection, err)
	}
	key := []byte(o.ref.ID)

	if o.kind == opDelete {
		return bucket.Delete(key)
	}

	var existing domain.Document
	if raw := bucket.Get(key); raw != nil {
		if existing, err = decode(raw); err != nil {
			return err
		}
	}

	var next domain.Document
	switch o.kind {
	case opUpdate:
		if existing == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, o.ref)
		}
		next = existing
		for k, v := range o.data {
			next[k] = v
		}
	case opSet:
		if next, err = domain.ApplySet(existing, o.data, o.opts); err != nil {
			return err
		}
	}
	next["_id"] = o.ref.ID

	raw, err := encode(next)
	if err != nil {
		return err
	}
	return bucket.Put(key, raw)
}
