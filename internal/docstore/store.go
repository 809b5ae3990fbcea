// Package docstore persists schemaless JSON documents grouped in named
// collections. The default driver keeps every collection in one JSON file;
// the couchbase driver maps the same operations onto a bucket.
package docstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/odnarb/bigfoot-map/internal/safeerr"
)

// Document is an opaque JSON object. The store only looks at its "id".
type Document map[string]any

// ID returns the document's string id, or "" when it has none.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Predicate filters documents during a list.
type Predicate func(Document) bool

// ModifyFunc receives a private copy of the current document and returns the
// fields to merge onto it.
type ModifyFunc func(current Document) (Document, error)

// Store is the collection-oriented persistence contract.
type Store interface {
	ListDocuments(ctx context.Context, collection string, predicate Predicate) ([]Document, error)
	// GetDocument returns nil, nil when no document has the id.
	GetDocument(ctx context.Context, collection, id string) (Document, error)
	AddDocument(ctx context.Context, collection string, doc Document) (Document, error)
	UpdateDocument(ctx context.Context, collection, id string, partial Document) (Document, error)
	ModifyDocument(ctx context.Context, collection, id string, fn ModifyFunc) (Document, error)
	DeleteDocument(ctx context.Context, collection, id string) (bool, error)
	ReplaceCollection(ctx context.Context, collection string, docs []Document) error
	CountDocuments(ctx context.Context, collection string) (int, error)
	Close() error
}

// Error codes
const (
	CodeInitFailed    = "LOCAL_DB_INIT_FAILED"
	CodeReadFailed    = "LOCAL_DB_READ_FAILED"
	CodeGetFailed     = "LOCAL_DB_GET_FAILED"
	CodeAddFailed     = "LOCAL_DB_ADD_FAILED"
	CodeUpdateFailed  = "LOCAL_DB_UPDATE_FAILED"
	CodeDeleteFailed  = "LOCAL_DB_DELETE_FAILED"
	CodeReplaceFailed = "LOCAL_DB_REPLACE_FAILED"
	CodeNotFound      = "LOCAL_DB_DOCUMENT_NOT_FOUND"
	CodeDriverInvalid = "STORE_DRIVER_INVALID"
)

// Public messages
const (
	MsgInitFailed    = "Failed to initialize local database."
	MsgReadFailed    = "Failed to read local data."
	MsgGetFailed     = "Failed to fetch local record."
	MsgAddFailed     = "Failed to create local record."
	MsgUpdateFailed  = "Failed to update local record."
	MsgDeleteFailed  = "Failed to remove local record."
	MsgReplaceFailed = "Failed to replace local dataset."
	MsgNotFound      = "Record was not found."
	MsgDriverInvalid = "Unsupported document store driver."
)

const (
	DriverFile      = "file"
	DriverCouchbase = "couchbase"
)

// Options selects and configures a driver.
type Options struct {
	Driver    string
	FilePath  string
	Couchbase CouchbaseOptions
}

// CouchbaseOptions configures the couchbase driver.
type CouchbaseOptions struct {
	URL      string
	Username string
	Password string
	Bucket   string
}

// Open returns the store for opts.Driver. An empty driver means file.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverFile:
		return NewClient(opts.FilePath)
	case DriverCouchbase:
		return NewCouchbaseStore(ctx, opts.Couchbase)
	default:
		return nil, safeerr.New(safeerr.KindConfiguration, CodeDriverInvalid, MsgDriverInvalid,
			map[string]any{"driver": opts.Driver})
	}
}

// normalizeDocument round-trips doc through JSON so the stored value only
// holds maps, slices, strings, float64, bool and nil. It also proves the
// document is serializable before any state changes.
func normalizeDocument(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}

// cloneDocument deep-copies a normalized document.
func cloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, inner := range typed {
			out[k] = cloneValue(inner)
		}
		return out
	case Document:
		return cloneDocument(typed)
	case []any:
		out := make([]any, len(typed))
		for i, inner := range typed {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// mergeDocument shallow-merges partial onto a copy of base.
func mergeDocument(base, partial Document) Document {
	merged := cloneDocument(base)
	if merged == nil {
		merged = Document{}
	}
	for k, v := range partial {
		merged[k] = cloneValue(v)
	}
	return merged
}
