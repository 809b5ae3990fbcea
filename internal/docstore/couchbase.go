package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/google/uuid"
	"github.com/odnarb/bigfoot-map/internal/metrics"
	"github.com/odnarb/bigfoot-map/internal/safeerr"
	"github.com/rs/zerolog/log"
)

const (
	// collectionField tags every couchbase document with its logical collection.
	collectionField = "_docstoreCollection"
	// sequenceField keeps insertion order for listings.
	sequenceField = "_docstoreSeq"

	maxCasRetries = 5
)

// CouchbaseStore maps collections onto one bucket's default collection.
// Keys are "<collection>::<id>", so unlike the file driver ids are unique
// per collection.
type CouchbaseStore struct {
	cluster    *gocb.Cluster
	bucket     *gocb.Bucket
	bucketName string
}

var _ Store = (*CouchbaseStore)(nil)

// NewCouchbaseStore connects to the cluster and waits for the bucket.
func NewCouchbaseStore(ctx context.Context, opts CouchbaseOptions) (*CouchbaseStore, error) {
	log.Info().
		Str("url", opts.URL).
		Str("bucket", opts.Bucket).
		Msg("Creating Couchbase connection")

	cluster, err := gocb.Connect(opts.URL, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout: 60 * time.Second,
			KVTimeout:      5 * time.Second,
			QueryTimeout:   30 * time.Second,
		},
	})
	if err != nil {
		return nil, safeerr.Persistence(fmt.Errorf("connect cluster: %w", err), CodeInitFailed, MsgInitFailed,
			map[string]any{"driver": DriverCouchbase})
	}

	bucket := cluster.Bucket(opts.Bucket)
	err = bucket.WaitUntilReady(30*time.Second, &gocb.WaitUntilReadyOptions{
		Context:      ctx,
		ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue, gocb.ServiceTypeQuery},
	})
	if err != nil {
		cluster.Close(nil)
		return nil, safeerr.Persistence(fmt.Errorf("bucket not ready: %w", err), CodeInitFailed, MsgInitFailed,
			map[string]any{"driver": DriverCouchbase, "bucket": opts.Bucket})
	}

	_, err = cluster.Query(fmt.Sprintf("CREATE PRIMARY INDEX IF NOT EXISTS ON `%s`", opts.Bucket), &gocb.QueryOptions{Context: ctx})
	if err != nil {
		log.Warn().Err(err).Str("bucket", opts.Bucket).Msg("Failed to ensure primary index")
	}

	log.Info().Msg("Couchbase connection created successfully")
	return &CouchbaseStore{
		cluster:    cluster,
		bucket:     bucket,
		bucketName: opts.Bucket,
	}, nil
}

// Close closes the Couchbase connection
func (s *CouchbaseStore) Close() error {
	if s.cluster != nil {
		return s.cluster.Close(nil)
	}
	return nil
}

func documentKey(collection, id string) string {
	return collection + "::" + id
}

func (s *CouchbaseStore) kv() *gocb.Collection {
	return s.bucket.DefaultCollection()
}

// stripInternal removes the driver's bookkeeping fields.
func stripInternal(doc Document) Document {
	delete(doc, collectionField)
	delete(doc, sequenceField)
	return doc
}

// ListDocuments queries the collection in insertion order.
func (s *CouchbaseStore) ListDocuments(ctx context.Context, collection string, predicate Predicate) ([]Document, error) {
	start := time.Now()
	query := fmt.Sprintf("SELECT RAW d FROM `%s` AS d WHERE d.`%s` = $1 ORDER BY d.`%s`, META(d).id",
		s.bucketName, collectionField, sequenceField)

	rows, err := s.cluster.Query(query, &gocb.QueryOptions{
		Context:              ctx,
		PositionalParameters: []interface{}{collection},
		ScanConsistency:      gocb.QueryScanConsistencyRequestPlus,
	})
	if err != nil {
		metrics.RecordStoreOperation(DriverCouchbase, "list", start, err)
		return nil, s.wrap(err, CodeReadFailed, MsgReadFailed, collection, "")
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var doc Document
		if err := rows.Row(&doc); err != nil {
			log.Warn().Err(err).Str("collection", collection).Msg("Failed to decode query row")
			continue
		}
		doc = stripInternal(doc)
		if predicate != nil && !predicate(doc) {
			continue
		}
		docs = append(docs, doc)
	}
	err = rows.Err()
	metrics.RecordStoreOperation(DriverCouchbase, "list", start, err)
	if err != nil {
		return nil, s.wrap(err, CodeReadFailed, MsgReadFailed, collection, "")
	}
	return docs, nil
}

// GetDocument fetches one document; nil, nil when it does not exist.
func (s *CouchbaseStore) GetDocument(ctx context.Context, collection, id string) (Document, error) {
	start := time.Now()
	result, err := s.kv().Get(documentKey(collection, id), &gocb.GetOptions{Context: ctx})
	if errors.Is(err, gocb.ErrDocumentNotFound) {
		metrics.RecordStoreOperation(DriverCouchbase, "get", start, nil)
		return nil, nil
	}
	if err != nil {
		metrics.RecordStoreOperation(DriverCouchbase, "get", start, err)
		return nil, s.wrap(err, CodeGetFailed, MsgGetFailed, collection, id)
	}

	var doc Document
	err = result.Content(&doc)
	metrics.RecordStoreOperation(DriverCouchbase, "get", start, err)
	if err != nil {
		return nil, s.wrap(err, CodeGetFailed, MsgGetFailed, collection, id)
	}
	return stripInternal(doc), nil
}

// CountDocuments counts the collection with a request-plus query.
func (s *CouchbaseStore) CountDocuments(ctx context.Context, collection string) (int, error) {
	start := time.Now()
	query := fmt.Sprintf("SELECT RAW COUNT(*) FROM `%s` AS d WHERE d.`%s` = $1", s.bucketName, collectionField)

	rows, err := s.cluster.Query(query, &gocb.QueryOptions{
		Context:              ctx,
		PositionalParameters: []interface{}{collection},
		ScanConsistency:      gocb.QueryScanConsistencyRequestPlus,
	})
	if err != nil {
		metrics.RecordStoreOperation(DriverCouchbase, "count", start, err)
		return 0, s.wrap(err, CodeReadFailed, MsgReadFailed, collection, "")
	}

	var count int
	err = rows.One(&count)
	metrics.RecordStoreOperation(DriverCouchbase, "count", start, err)
	if err != nil {
		return 0, s.wrap(err, CodeReadFailed, MsgReadFailed, collection, "")
	}
	return count, nil
}

// AddDocument inserts doc; documents without an id get a generated key.
func (s *CouchbaseStore) AddDocument(ctx context.Context, collection string, doc Document) (Document, error) {
	start := time.Now()
	normalized, err := normalizeDocument(doc)
	if err != nil {
		metrics.RecordStoreOperation(DriverCouchbase, "add", start, err)
		return nil, s.wrap(err, CodeAddFailed, MsgAddFailed, collection, doc.ID())
	}

	id := normalized.ID()
	if id == "" {
		id = uuid.NewString()
	}

	_, err = s.kv().Insert(documentKey(collection, id), s.tagged(collection, normalized), &gocb.InsertOptions{Context: ctx})
	metrics.RecordStoreOperation(DriverCouchbase, "add", start, err)
	if err != nil {
		return nil, s.wrap(err, CodeAddFailed, MsgAddFailed, collection, id)
	}
	return cloneDocument(normalized), nil
}

// UpdateDocument shallow-merges partial with a CAS-guarded replace.
func (s *CouchbaseStore) UpdateDocument(ctx context.Context, collection, id string, partial Document) (Document, error) {
	return s.ModifyDocument(ctx, collection, id, func(Document) (Document, error) {
		return partial, nil
	})
}

// ModifyDocument retries the read-modify-write when another writer wins the CAS race.
func (s *CouchbaseStore) ModifyDocument(ctx context.Context, collection, id string, fn ModifyFunc) (Document, error) {
	start := time.Now()
	key := documentKey(collection, id)

	for attempt := 0; attempt < maxCasRetries; attempt++ {
		result, err := s.kv().Get(key, &gocb.GetOptions{Context: ctx})
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			metrics.RecordStoreOperation(DriverCouchbase, "modify", start, err)
			return nil, notFoundError(collection, id)
		}
		if err != nil {
			metrics.RecordStoreOperation(DriverCouchbase, "modify", start, err)
			return nil, s.wrap(err, CodeUpdateFailed, MsgUpdateFailed, collection, id)
		}

		var current Document
		if err := result.Content(&current); err != nil {
			metrics.RecordStoreOperation(DriverCouchbase, "modify", start, err)
			return nil, s.wrap(err, CodeUpdateFailed, MsgUpdateFailed, collection, id)
		}
		seq := current[sequenceField]
		current = stripInternal(current)

		partial, err := fn(cloneDocument(current))
		if err != nil {
			metrics.RecordStoreOperation(DriverCouchbase, "modify", start, err)
			return nil, s.wrap(err, CodeUpdateFailed, MsgUpdateFailed, collection, id)
		}
		normalized, err := normalizeDocument(partial)
		if err != nil {
			metrics.RecordStoreOperation(DriverCouchbase, "modify", start, err)
			return nil, s.wrap(err, CodeUpdateFailed, MsgUpdateFailed, collection, id)
		}

		merged := mergeDocument(current, normalized)
		stored := cloneDocument(merged)
		stored[collectionField] = collection
		stored[sequenceField] = seq

		_, err = s.kv().Replace(key, stored, &gocb.ReplaceOptions{Context: ctx, Cas: result.Cas()})
		if errors.Is(err, gocb.ErrCasMismatch) {
			log.Debug().Str("key", key).Int("attempt", attempt+1).Msg("CAS mismatch, retrying")
			continue
		}
		metrics.RecordStoreOperation(DriverCouchbase, "modify", start, err)
		if err != nil {
			return nil, s.wrap(err, CodeUpdateFailed, MsgUpdateFailed, collection, id)
		}
		return merged, nil
	}

	err := fmt.Errorf("gave up after %d CAS retries", maxCasRetries)
	metrics.RecordStoreOperation(DriverCouchbase, "modify", start, err)
	return nil, s.wrap(err, CodeUpdateFailed, MsgUpdateFailed, collection, id)
}

// DeleteDocument removes the document with id.
func (s *CouchbaseStore) DeleteDocument(ctx context.Context, collection, id string) (bool, error) {
	start := time.Now()
	_, err := s.kv().Remove(documentKey(collection, id), &gocb.RemoveOptions{Context: ctx})
	if errors.Is(err, gocb.ErrDocumentNotFound) {
		metrics.RecordStoreOperation(DriverCouchbase, "delete", start, nil)
		return false, nil
	}
	metrics.RecordStoreOperation(DriverCouchbase, "delete", start, err)
	if err != nil {
		return false, s.wrap(err, CodeDeleteFailed, MsgDeleteFailed, collection, id)
	}
	return true, nil
}

// ReplaceCollection deletes the collection and upserts docs. It is not
// atomic across documents.
func (s *CouchbaseStore) ReplaceCollection(ctx context.Context, collection string, docs []Document) error {
	start := time.Now()
	query := fmt.Sprintf("DELETE FROM `%s` AS d WHERE d.`%s` = $1", s.bucketName, collectionField)

	_, err := s.cluster.Query(query, &gocb.QueryOptions{
		Context:              ctx,
		PositionalParameters: []interface{}{collection},
		ScanConsistency:      gocb.QueryScanConsistencyRequestPlus,
	})
	if err != nil {
		metrics.RecordStoreOperation(DriverCouchbase, "replace", start, err)
		return s.wrap(err, CodeReplaceFailed, MsgReplaceFailed, collection, "")
	}

	for i, doc := range docs {
		normalized, err := normalizeDocument(doc)
		if err != nil {
			metrics.RecordStoreOperation(DriverCouchbase, "replace", start, err)
			return s.wrap(err, CodeReplaceFailed, MsgReplaceFailed, collection, doc.ID())
		}
		id := normalized.ID()
		if id == "" {
			id = uuid.NewString()
		}
		tagged := s.tagged(collection, normalized)
		tagged[sequenceField] = float64(i)

		if _, err := s.kv().Upsert(documentKey(collection, id), tagged, &gocb.UpsertOptions{Context: ctx}); err != nil {
			metrics.RecordStoreOperation(DriverCouchbase, "replace", start, err)
			return s.wrap(err, CodeReplaceFailed, MsgReplaceFailed, collection, id)
		}
	}

	metrics.RecordStoreOperation(DriverCouchbase, "replace", start, nil)
	log.Info().
		Str("collection", collection).
		Int("documents", len(docs)).
		Msg("Replaced collection")
	return nil
}

func (s *CouchbaseStore) tagged(collection string, doc Document) Document {
	out := cloneDocument(doc)
	out[collectionField] = collection
	out[sequenceField] = float64(time.Now().UnixNano())
	return out
}

func (s *CouchbaseStore) wrap(err error, code, message, collection, id string) error {
	if _, ok := safeerr.As(err); ok {
		return err
	}
	details := map[string]any{"collection": collection, "bucket": s.bucketName, "driver": DriverCouchbase}
	if id != "" {
		details["id"] = id
	}
	log.Error().
		Err(err).
		Str("code", code).
		Str("collection", collection).
		Str("id", id).
		Msg("Couchbase document store operation failed")
	return safeerr.Persistence(err, code, message, details)
}
