package docstore

import (
	"errors"
	"fmt"
)

// errDocumentNotFound marks a missing id inside the document manager.
var errDocumentNotFound = errors.New("document not found")

// DocumentManager holds the cached collections and applies mutations.
// Every mutation builds the next state, flushes it, and only then swaps it
// in, so a failed write leaves memory matching the file.
type DocumentManager struct {
	conn        *ConnectionManager
	locker      *DatabaseLocker
	collections map[string][]Document
}

// NewDocumentManager creates a new document manager
func NewDocumentManager(conn *ConnectionManager, locker *DatabaseLocker, collections map[string][]Document) *DocumentManager {
	if collections == nil {
		collections = map[string][]Document{}
	}
	return &DocumentManager{
		conn:        conn,
		locker:      locker,
		collections: collections,
	}
}

// List returns deep copies of the documents in collection that match predicate.
func (dm *DocumentManager) List(collection string, predicate Predicate) []Document {
	var (
		docs   []Document
		exists bool
	)
	_ = dm.locker.WithRead(func() error {
		docs, exists = dm.collections[collection]
		if exists {
			docs = filterClone(docs, predicate)
		}
		return nil
	})
	if exists {
		return docs
	}

	// lazily create the collection in memory; it reaches disk with the next write
	_ = dm.locker.WithWrite("list", func() error {
		if _, ok := dm.collections[collection]; !ok {
			dm.collections[collection] = []Document{}
		}
		return nil
	})
	return []Document{}
}

// Get returns a copy of the first document with id, or nil.
func (dm *DocumentManager) Get(collection, id string) Document {
	var found Document
	_ = dm.locker.WithRead(func() error {
		if idx := indexOf(dm.collections[collection], id); idx >= 0 {
			found = cloneDocument(dm.collections[collection][idx])
		}
		return nil
	})
	return found
}

// Count returns the number of documents in collection.
func (dm *DocumentManager) Count(collection string) int {
	var count int
	_ = dm.locker.WithRead(func() error {
		count = len(dm.collections[collection])
		return nil
	})
	return count
}

// Add appends doc to collection.
func (dm *DocumentManager) Add(collection string, doc Document) (Document, error) {
	normalized, err := normalizeDocument(doc)
	if err != nil {
		return nil, err
	}

	err = dm.locker.WithWrite("add", func() error {
		current := dm.collections[collection]
		next := make([]Document, len(current), len(current)+1)
		copy(next, current)
		next = append(next, normalized)
		return dm.commit(collection, next)
	})
	if err != nil {
		return nil, err
	}
	return cloneDocument(normalized), nil
}

// Modify merges the partial returned by fn onto the first document with id.
// fn runs under the writer lock, so the read and the write cannot interleave
// with another mutation.
func (dm *DocumentManager) Modify(collection, id string, fn ModifyFunc) (Document, error) {
	var merged Document
	err := dm.locker.WithWrite("modify", func() error {
		current := dm.collections[collection]
		idx := indexOf(current, id)
		if idx < 0 {
			return errDocumentNotFound
		}

		partial, err := fn(cloneDocument(current[idx]))
		if err != nil {
			return err
		}
		normalized, err := normalizeDocument(partial)
		if err != nil {
			return err
		}

		merged = mergeDocument(current[idx], normalized)
		next := make([]Document, len(current))
		copy(next, current)
		next[idx] = merged
		return dm.commit(collection, next)
	})
	if err != nil {
		return nil, err
	}
	return cloneDocument(merged), nil
}

// Delete removes every document with id and reports whether any matched.
func (dm *DocumentManager) Delete(collection, id string) (bool, error) {
	removed := false
	err := dm.locker.WithWrite("delete", func() error {
		current := dm.collections[collection]
		next := make([]Document, 0, len(current))
		for _, doc := range current {
			if doc.ID() == id {
				continue
			}
			next = append(next, doc)
		}
		if len(next) == len(current) {
			return nil
		}
		removed = true
		return dm.commit(collection, next)
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Replace overwrites collection with docs.
func (dm *DocumentManager) Replace(collection string, docs []Document) error {
	next := make([]Document, 0, len(docs))
	for i, doc := range docs {
		normalized, err := normalizeDocument(doc)
		if err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
		next = append(next, normalized)
	}

	return dm.locker.WithWrite("replace", func() error {
		return dm.commit(collection, next)
	})
}

// commit flushes the state with collection replaced by next and swaps it in.
// Callers must hold the writer lock.
func (dm *DocumentManager) commit(collection string, next []Document) error {
	state := make(map[string][]Document, len(dm.collections)+1)
	for name, docs := range dm.collections {
		state[name] = docs
	}
	state[collection] = next

	if err := dm.conn.Flush(state); err != nil {
		return err
	}
	dm.collections = state
	return nil
}

func indexOf(docs []Document, id string) int {
	for i, doc := range docs {
		if doc.ID() == id {
			return i
		}
	}
	return -1
}

func filterClone(docs []Document, predicate Predicate) []Document {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		clone := cloneDocument(doc)
		if predicate != nil && !predicate(clone) {
			continue
		}
		out = append(out, clone)
	}
	return out
}
