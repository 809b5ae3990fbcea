package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/odnarb/bigfoot-map/internal/metrics"
	"github.com/odnarb/bigfoot-map/internal/safeerr"
	"github.com/rs/zerolog/log"
)

// Client is the single-file JSON document store. It orchestrates the
// backing file, the writer lock and the cached collections.
type Client struct {
	connManager *ConnectionManager
	docManager  *DocumentManager
	locker      *DatabaseLocker
}

var _ Store = (*Client)(nil)

// NewClient opens (or creates) the store file at path.
func NewClient(path string) (*Client, error) {
	connManager, err := NewConnectionManager(path)
	if err != nil {
		return nil, initError(path, err)
	}

	collections, err := connManager.Load()
	if err != nil {
		return nil, initError(path, err)
	}

	locker := NewDatabaseLocker()

	client := &Client{
		connManager: connManager,
		docManager:  NewDocumentManager(connManager, locker, collections),
		locker:      locker,
	}

	log.Info().
		Str("path", connManager.Path()).
		Int("collections", len(collections)).
		Msg("Document store opened")

	return client, nil
}

func initError(path string, err error) error {
	log.Error().Err(err).Str("path", path).Msg("Failed to initialize document store")
	return safeerr.Persistence(err, CodeInitFailed, MsgInitFailed, map[string]any{"path": path})
}

// Path returns the absolute path of the backing file.
func (c *Client) Path() string {
	return c.connManager.Path()
}

// Close is a no-op; every mutation is already on disk.
func (c *Client) Close() error {
	return nil
}

// ListDocuments returns copies of the documents in collection matching predicate.
func (c *Client) ListDocuments(ctx context.Context, collection string, predicate Predicate) ([]Document, error) {
	start := time.Now()
	docs := c.docManager.List(collection, predicate)
	metrics.RecordStoreOperation(DriverFile, "list", start, nil)
	return docs, nil
}

// GetDocument returns the first document with id, or nil when absent.
func (c *Client) GetDocument(ctx context.Context, collection, id string) (Document, error) {
	start := time.Now()
	doc := c.docManager.Get(collection, id)
	metrics.RecordStoreOperation(DriverFile, "get", start, nil)
	return doc, nil
}

// CountDocuments returns the size of collection.
func (c *Client) CountDocuments(ctx context.Context, collection string) (int, error) {
	start := time.Now()
	count := c.docManager.Count(collection)
	metrics.RecordStoreOperation(DriverFile, "count", start, nil)
	return count, nil
}

// AddDocument appends doc and returns once it is on disk.
func (c *Client) AddDocument(ctx context.Context, collection string, doc Document) (Document, error) {
	start := time.Now()
	added, err := c.docManager.Add(collection, doc)
	metrics.RecordStoreOperation(DriverFile, "add", start, err)
	if err != nil {
		return nil, c.wrap(err, CodeAddFailed, MsgAddFailed, collection, doc.ID())
	}
	return added, nil
}

// UpdateDocument shallow-merges partial onto the document with id.
func (c *Client) UpdateDocument(ctx context.Context, collection, id string, partial Document) (Document, error) {
	return c.modify(collection, id, "update", func(Document) (Document, error) {
		return partial, nil
	})
}

// ModifyDocument merges the partial computed by fn from the current document.
// Typed errors returned by fn reach the caller unchanged.
func (c *Client) ModifyDocument(ctx context.Context, collection, id string, fn ModifyFunc) (Document, error) {
	return c.modify(collection, id, "modify", fn)
}

func (c *Client) modify(collection, id, operation string, fn ModifyFunc) (Document, error) {
	start := time.Now()
	updated, err := c.docManager.Modify(collection, id, fn)
	metrics.RecordStoreOperation(DriverFile, operation, start, err)
	if err != nil {
		if errors.Is(err, errDocumentNotFound) {
			return nil, notFoundError(collection, id)
		}
		return nil, c.wrap(err, CodeUpdateFailed, MsgUpdateFailed, collection, id)
	}
	return updated, nil
}

// DeleteDocument removes every document with id.
func (c *Client) DeleteDocument(ctx context.Context, collection, id string) (bool, error) {
	start := time.Now()
	removed, err := c.docManager.Delete(collection, id)
	metrics.RecordStoreOperation(DriverFile, "delete", start, err)
	if err != nil {
		return false, c.wrap(err, CodeDeleteFailed, MsgDeleteFailed, collection, id)
	}
	return removed, nil
}

// ReplaceCollection overwrites collection with docs.
func (c *Client) ReplaceCollection(ctx context.Context, collection string, docs []Document) error {
	start := time.Now()
	err := c.docManager.Replace(collection, docs)
	metrics.RecordStoreOperation(DriverFile, "replace", start, err)
	if err != nil {
		return c.wrap(err, CodeReplaceFailed, MsgReplaceFailed, collection, "")
	}
	log.Info().
		Str("collection", collection).
		Int("documents", len(docs)).
		Msg("Replaced collection")
	return nil
}

func (c *Client) wrap(err error, code, message, collection, id string) error {
	if _, ok := safeerr.As(err); ok {
		return err
	}
	details := map[string]any{"collection": collection, "path": c.connManager.Path()}
	if id != "" {
		details["id"] = id
	}
	log.Error().
		Err(err).
		Str("code", code).
		Str("collection", collection).
		Str("id", id).
		Msg("Document store operation failed")
	return safeerr.Persistence(err, code, message, details)
}

func notFoundError(collection, id string) error {
	return safeerr.NotFound(CodeNotFound, MsgNotFound, map[string]any{"collection": collection, "id": id})
}
