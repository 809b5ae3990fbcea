package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/odnarb/bigfoot-map/internal/dal"
	"github.com/odnarb/bigfoot-map/internal/metrics"
	"github.com/rs/zerolog/log"
)

// DatasetLoader supplies the raw datasets to seed from.
type DatasetLoader interface {
	Load(ctx context.Context) (*Datasets, error)
}

// SeedResult summarizes one seeding run.
type SeedResult struct {
	Seeded    bool
	Documents int
}

// Ingestor seeds the reports collection from the source datasets.
type Ingestor struct {
	loader      DatasetLoader
	reportModel *dal.ReportModel
	statusModel *dal.SeedStatusModel
	now         func() time.Time
}

// NewIngestor creates a new ingestor
func NewIngestor(loader DatasetLoader, reportModel *dal.ReportModel, statusModel *dal.SeedStatusModel) *Ingestor {
	return &Ingestor{
		loader:      loader,
		reportModel: reportModel,
		statusModel: statusModel,
		now:         time.Now,
	}
}

// SeedIfEmpty seeds only when the reports collection is empty. The
// sources are not read at all when it is already populated.
func (in *Ingestor) SeedIfEmpty(ctx context.Context) (SeedResult, error) {
	return in.run(ctx, false)
}

// Reseed replaces the reports collection with freshly normalized data.
func (in *Ingestor) Reseed(ctx context.Context) (SeedResult, error) {
	return in.run(ctx, true)
}

func (in *Ingestor) run(ctx context.Context, force bool) (SeedResult, error) {
	start := time.Now()

	if !force {
		existing, err := in.reportModel.CountReports(ctx)
		if err != nil {
			metrics.RecordSeedRun("error", start)
			return SeedResult{}, err
		}
		if existing > 0 {
			log.Info().Int("existing", existing).Msg("Reports already present, seeding skipped")
			metrics.RecordSeedRun("skipped", start)
			return SeedResult{Documents: existing}, nil
		}
	}

	log.Info().Bool("force", force).Msg("Starting report seeding")
	started, err := in.statusModel.MarkSeedStarted(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to record seed start")
	}

	result, err := in.seed(ctx, force)
	if err != nil {
		metrics.RecordSeedRun("error", start)
		if statusErr := in.statusModel.MarkSeedCompleted(ctx, started, false, 0, "Report seeding failed"); statusErr != nil {
			log.Warn().Err(statusErr).Msg("Failed to record seed failure")
		}
		return SeedResult{}, err
	}

	outcome := "seeded"
	message := fmt.Sprintf("Seeded %d reports", result.Documents)
	if !result.Seeded {
		outcome = "skipped"
		message = "Reports already present"
	}
	metrics.RecordSeedRun(outcome, start)
	if err := in.statusModel.MarkSeedCompleted(ctx, started, result.Seeded, result.Documents, message); err != nil {
		log.Warn().Err(err).Msg("Failed to record seed completion")
	}

	log.Info().
		Bool("seeded", result.Seeded).
		Int("documents", result.Documents).
		Dur("duration", time.Since(start)).
		Msg("Report seeding completed")
	return result, nil
}

func (in *Ingestor) seed(ctx context.Context, force bool) (SeedResult, error) {
	datasets, err := in.loader.Load(ctx)
	if err != nil {
		return SeedResult{}, err
	}

	docs := BuildSeedDocuments(datasets, in.now())
	counts := map[string]int{}
	for _, doc := range docs {
		counts[doc.DatasetKey]++
	}
	for _, dataset := range []string{DatasetBFRO, DatasetWoodape, DatasetKilmury} {
		metrics.RecordSeedDocuments(dataset, counts[dataset])
	}

	if force {
		if err := in.reportModel.ReseedReports(ctx, docs); err != nil {
			return SeedResult{}, err
		}
		return SeedResult{Seeded: true, Documents: len(docs)}, nil
	}

	seeded, err := in.reportModel.SeedReports(ctx, docs)
	if err != nil {
		return SeedResult{}, err
	}
	return SeedResult{Seeded: seeded, Documents: len(docs)}, nil
}
