package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/odnarb/bigfoot-map/internal/metrics"
	"github.com/odnarb/bigfoot-map/internal/safeerr"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Error codes
const (
	CodeSeedDataReadFailed = "SEED_DATA_READ_FAILED"
	MsgSeedDataReadFailed  = "Failed to load local report data."
)

// maxSourceBytes caps a remote dataset download.
const maxSourceBytes = 256 << 20

// Locations names where each dataset lives: a file path or an http(s) URL.
type Locations struct {
	BFRO    string
	Woodape string
	Kilmury string
}

// Loader reads the raw source datasets.
type Loader struct {
	httpClient *http.Client
	locations  Locations
}

// NewLoader creates a loader whose remote fetches give up after timeout.
func NewLoader(locations Locations, timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Loader{
		httpClient: &http.Client{Timeout: timeout},
		locations:  locations,
	}
}

// Load reads all three datasets concurrently. The first failure cancels
// the others.
func (l *Loader) Load(ctx context.Context) (*Datasets, error) {
	datasets := &Datasets{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return l.readJSON(gctx, DatasetBFRO, l.locations.BFRO, &datasets.BFRO)
	})
	g.Go(func() error {
		return l.readJSON(gctx, DatasetWoodape, l.locations.Woodape, &datasets.Woodape)
	})
	g.Go(func() error {
		return l.readJSON(gctx, DatasetKilmury, l.locations.Kilmury, &datasets.Kilmury)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info().
		Int("bfro_states", len(datasets.BFRO)).
		Int("woodape_rows", len(datasets.Woodape)).
		Int("kilmury_rows", len(datasets.Kilmury)).
		Msg("Loaded source datasets")
	return datasets, nil
}

func (l *Loader) readJSON(ctx context.Context, dataset, location string, target any) error {
	start := time.Now()
	raw, err := l.fetch(ctx, location)
	if err == nil {
		err = json.Unmarshal(raw, target)
		if err != nil {
			err = fmt.Errorf("failed to decode %s data: %w", dataset, err)
		}
	}
	duration := time.Since(start)

	if err != nil {
		metrics.RecordSourceFetch(dataset, "error", duration)
		log.Error().
			Err(err).
			Str("dataset", dataset).
			Str("source", location).
			Msg("Failed to load source dataset")
		return safeerr.Persistence(err, CodeSeedDataReadFailed, MsgSeedDataReadFailed, map[string]any{
			"dataset": dataset,
			"source":  location,
		})
	}

	metrics.RecordSourceFetch(dataset, "success", duration)
	log.Debug().
		Str("dataset", dataset).
		Str("source", location).
		Int("bytes", len(raw)).
		Dur("duration", duration).
		Msg("Fetched source dataset")
	return nil
}

func (l *Loader) fetch(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, fmt.Errorf("no source configured")
	}
	if isRemote(location) {
		return l.fetchRemote(ctx, location)
	}

	path, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", location, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return raw, nil
}

func (l *Loader) fetchRemote(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read source body: %w", err)
	}
	return raw, nil
}

func isRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
