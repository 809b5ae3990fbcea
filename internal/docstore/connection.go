package docstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// fileData is the on-disk layout: {"collections": {name: [doc, ...]}}.
type fileData struct {
	Collections map[string][]Document `json:"collections"`
}

// ConnectionManager owns the backing file: it creates it on first use,
// loads it, and replaces it atomically on every flush.
type ConnectionManager struct {
	path string
}

// NewConnectionManager resolves path and makes sure the file exists.
func NewConnectionManager(path string) (*ConnectionManager, error) {
	if path == "" {
		return nil, errors.New("document store path is required")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	cm := &ConnectionManager{path: absPath}

	if _, err := os.Stat(absPath); errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", absPath).Msg("Creating empty document store file")
		if err := cm.Flush(map[string][]Document{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat store file: %w", err)
	}

	return cm, nil
}

// Path returns the absolute path of the backing file.
func (cm *ConnectionManager) Path() string {
	return cm.path
}

// Load reads and parses the whole backing file.
func (cm *ConnectionManager) Load() (map[string][]Document, error) {
	raw, err := os.ReadFile(cm.path)
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse store file: %w", err)
	}
	if data.Collections == nil {
		data.Collections = map[string][]Document{}
	}
	for name, docs := range data.Collections {
		if docs == nil {
			data.Collections[name] = []Document{}
		}
	}
	return data.Collections, nil
}

// Flush writes collections to a temp file next to the target and renames it
// into place, so readers never observe a partial write.
func (cm *ConnectionManager) Flush(collections map[string][]Document) error {
	raw, err := json.MarshalIndent(fileData{Collections: collections}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}

	dir := filepath.Dir(cm.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(cm.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		if removeErr := os.Remove(tmpName); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			log.Warn().Err(removeErr).Str("path", tmpName).Msg("Failed to remove temp store file")
		}
	}

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpName, cm.path); err != nil {
		cleanup()
		return fmt.Errorf("replace store file: %w", err)
	}

	return nil
}
