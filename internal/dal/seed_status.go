package dal

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/odnarb/bigfoot-map/internal/docstore"
	"github.com/rs/zerolog/log"
)

// SystemCollection holds bookkeeping documents.
const SystemCollection = "_system"

// SeedStatusID is the document id of the seed status record
const SeedStatusID = "seed_status"

// SeedStatus describes the most recent seeding run.
type SeedStatus struct {
	ID            string `json:"id"`
	Seeded        bool   `json:"seeded"`
	DocumentCount int    `json:"documentCount"`
	StartedAt     string `json:"startedAt"`
	CompletedAt   string `json:"completedAt"`
	Message       string `json:"message"`
}

// SeedStatusModel represents the database model for seed status
type SeedStatusModel struct {
	store docstore.Store
	now   func() time.Time
}

// NewSeedStatusModel creates a new seed status model
func NewSeedStatusModel(store docstore.Store) *SeedStatusModel {
	return &SeedStatusModel{store: store, now: time.Now}
}

// GetSeedStatus returns the stored status, or a zero status when no run
// has been recorded yet.
func (sm *SeedStatusModel) GetSeedStatus(ctx context.Context) (*SeedStatus, error) {
	doc, err := sm.store.GetDocument(ctx, SystemCollection, SeedStatusID)
	if err != nil {
		return nil, fmt.Errorf("failed to get seed status: %w", err)
	}
	if doc == nil {
		return &SeedStatus{ID: SeedStatusID}, nil
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode seed status: %w", err)
	}
	var status SeedStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("failed to parse seed status: %w", err)
	}
	return &status, nil
}

// SetSeedStatus writes status, creating the document on first use.
func (sm *SeedStatusModel) SetSeedStatus(ctx context.Context, status *SeedStatus) error {
	status.ID = SeedStatusID
	doc, err := toDocument(status)
	if err != nil {
		return fmt.Errorf("failed to encode seed status: %w", err)
	}

	existing, err := sm.store.GetDocument(ctx, SystemCollection, SeedStatusID)
	if err != nil {
		return fmt.Errorf("failed to read seed status: %w", err)
	}
	if existing == nil {
		_, err = sm.store.AddDocument(ctx, SystemCollection, doc)
	} else {
		_, err = sm.store.UpdateDocument(ctx, SystemCollection, SeedStatusID, doc)
	}
	if err != nil {
		return fmt.Errorf("failed to set seed status: %w", err)
	}

	log.Debug().Bool("seeded", status.Seeded).Int("documents", status.DocumentCount).Msg("Seed status updated")
	return nil
}

// MarkSeedStarted records the start of a seeding run.
func (sm *SeedStatusModel) MarkSeedStarted(ctx context.Context) (*SeedStatus, error) {
	status := &SeedStatus{
		Seeded:    false,
		StartedAt: sm.now().UTC().Format(ISOLayout),
		Message:   "Report seeding started",
	}
	return status, sm.SetSeedStatus(ctx, status)
}

// MarkSeedCompleted records the outcome of the run started with started.
func (sm *SeedStatusModel) MarkSeedCompleted(ctx context.Context, started *SeedStatus, seeded bool, documentCount int, message string) error {
	status := &SeedStatus{
		Seeded:        seeded,
		DocumentCount: documentCount,
		CompletedAt:   sm.now().UTC().Format(ISOLayout),
		Message:       message,
	}
	if started != nil {
		status.StartedAt = started.StartedAt
	}
	return sm.SetSeedStatus(ctx, status)
}
