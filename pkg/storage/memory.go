package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

// change is the planned post-image of one document. A nil doc is a delete.
type change struct {
	ref domain.DocumentRef
	doc domain.Document
}

// NewMemoryManager creates a new memory manager
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		collections: make(map[string]*Collection),
	}
}

// planLocked validates ops against the current state and returns the
// resulting document images without modifying anything. Later ops see the
// effect of earlier ops in the same slice. Callers must hold mm.mu.
func (mm *MemoryManager) planLocked(ops []WALOp) ([]change, error) {
	overlay := make(map[domain.DocumentRef]domain.Document)
	touched := make([]domain.DocumentRef, 0, len(ops))

	current := func(ref domain.DocumentRef) (domain.Document, bool) {
		if doc, ok := overlay[ref]; ok {
			return doc, doc != nil
		}
		coll, ok := mm.collections[ref.Collection]
		if !ok {
			return nil, false
		}
		doc, ok := coll.Documents[ref.ID]
		return doc, ok
	}

	for i, op := range ops {
		if !op.Ref.Valid() {
			return nil, fmt.Errorf("operation %d: %w: %q", i, ErrInvalidRef, op.Ref.String())
		}

		existing, exists := current(op.Ref)

		var next domain.Document
		switch op.Kind {
		case OpDelete:
			next = nil
		case OpUpdate:
			if !exists {
				return nil, fmt.Errorf("operation %d: %w: %s", i, ErrDocumentNotFound, op.Ref)
			}
			next = mergeDocuments(existing, op.Data)
		case OpSet:
			var err error
			next, err = domain.ApplySet(existing, op.Data, op.Options)
			if err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
		default:
			return nil, fmt.Errorf("operation %d: unknown operation kind %q", i, op.Kind)
		}

		if next != nil {
			next["_id"] = op.Ref.ID
		}
		if _, seen := overlay[op.Ref]; !seen {
			touched = append(touched, op.Ref)
		}
		overlay[op.Ref] = next
	}

	changes := make([]change, 0, len(touched))
	for _, ref := range touched {
		changes = append(changes, change{ref: ref, doc: overlay[ref]})
	}
	return changes, nil
}

// applyLocked writes planned changes. Callers must hold mm.mu.
func (mm *MemoryManager) applyLocked(changes []change) {
	for _, c := range changes {
		coll := mm.getOrCreateCollection(c.ref.Collection)
		if c.doc == nil {
			delete(coll.Documents, c.ref.ID)
			continue
		}
		coll.Documents[c.ref.ID] = c.doc
	}
}

// GetById retrieves a document by ID
func (mm *MemoryManager) GetById(collName, docID string) (domain.Document, error) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	coll, exists := mm.collections[collName]
	if !exists {
		return nil, fmt.Errorf("%w: collection %s does not exist", ErrDocumentNotFound, collName)
	}

	doc, exists := coll.Documents[docID]
	if !exists {
		return nil, fmt.Errorf("%w: %s in collection %s", ErrDocumentNotFound, docID, collName)
	}

	return doc.Clone(), nil
}

// FindAll finds all documents matching a filter, ordered by _id
func (mm *MemoryManager) FindAll(collName string, filter map[string]interface{}, options *domain.PaginationOptions) (*domain.PaginationResult, error) {
	if options == nil {
		options = domain.DefaultPaginationOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	mm.mu.RLock()
	defer mm.mu.RUnlock()

	coll, exists := mm.collections[collName]
	if !exists {
		return &domain.PaginationResult{Documents: []domain.Document{}}, nil
	}

	ids := make([]string, 0, len(coll.Documents))
	for id, doc := range coll.Documents {
		if doc.Matches(filter) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	total := len(ids)
	start := options.Offset
	if start > total {
		start = total
	}
	end := total
	if options.Limit > 0 && start+options.Limit < total {
		end = start + options.Limit
	}

	docs := make([]domain.Document, 0, end-start)
	for _, id := range ids[start:end] {
		docs = append(docs, coll.Documents[id].Clone())
	}

	return &domain.PaginationResult{
		Documents: docs,
		Total:     int64(total),
		HasNext:   end < total,
		HasPrev:   start > 0,
	}, nil
}

// snapshotLocked copies every collection for a checkpoint. Callers must
// hold mm.mu.
func (mm *MemoryManager) snapshotLocked() map[string]map[string]domain.Document {
	out := make(map[string]map[string]domain.Document, len(mm.collections))
	for name, coll := range mm.collections {
		docs := make(map[string]domain.Document, len(coll.Documents))
		for id, doc := range coll.Documents {
			docs[id] = doc
		}
		out[name] = docs
	}
	return out
}

// restoreLocked replaces all collections. Callers must hold mm.mu.
func (mm *MemoryManager) restoreLocked(data map[string]map[string]domain.Document) {
	mm.collections = make(map[string]*Collection, len(data))
	for name, docs := range data {
		coll := mm.getOrCreateCollection(name)
		for id, doc := range docs {
			coll.Documents[id] = doc
		}
	}
}

// GetMemoryStats returns memory usage statistics
func (mm *MemoryManager) GetMemoryStats() map[string]interface{} {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	totalDocs := 0
	for _, coll := range mm.collections {
		totalDocs += len(coll.Documents)
	}

	return map[string]interface{}{
		"collections":     len(mm.collections),
		"total_documents": totalDocs,
	}
}

func (mm *MemoryManager) getOrCreateCollection(collName string) *Collection {
	if coll, exists := mm.collections[collName]; exists {
		return coll
	}

	coll := &Collection{
		Name:      collName,
		Documents: make(map[string]domain.Document),
		CreatedAt: time.Now(),
	}
	mm.collections[collName] = coll
	return coll
}

func mergeDocuments(existing, updates domain.Document) domain.Document {
	merged := existing.Clone()
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}
