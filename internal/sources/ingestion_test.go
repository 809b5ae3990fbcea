package sources

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/odnarb/bigfoot-map/internal/dal"
	"github.com/odnarb/bigfoot-map/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	datasets *Datasets
	err      error
	calls    int
}

func (s *stubLoader) Load(context.Context) (*Datasets, error) {
	s.calls++
	return s.datasets, s.err
}

func newTestIngestor(t *testing.T, loader DatasetLoader) (*Ingestor, *dal.ReportModel, *dal.SeedStatusModel) {
	t.Helper()
	store, err := docstore.NewClient(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	reports := dal.NewReportModel(store)
	status := dal.NewSeedStatusModel(store)
	ingestor := NewIngestor(loader, reports, status)
	return ingestor, reports, status
}

func sampleDatasets() *Datasets {
	return &Datasets{
		BFRO:    map[string][]BFRORow{"WA": {{BFROReportID: "1", Name: "Ridge"}}},
		Woodape: []WoodapeRow{{ID: "2", Summary: "Tracks"}},
		Kilmury: []KilmuryRow{{ID: "3"}},
	}
}

func TestSeedIfEmptySeedsOnce(t *testing.T) {
	loader := &stubLoader{datasets: sampleDatasets()}
	ingestor, reports, status := newTestIngestor(t, loader)
	ctx := context.Background()

	result, err := ingestor.SeedIfEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, result.Seeded)
	assert.Equal(t, 3, result.Documents)

	result, err = ingestor.SeedIfEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, result.Seeded)
	assert.Equal(t, 1, loader.calls)

	count, err := reports.CountReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	seedStatus, err := status.GetSeedStatus(ctx)
	require.NoError(t, err)
	assert.True(t, seedStatus.Seeded)
	assert.Equal(t, 3, seedStatus.DocumentCount)

	stored, err := reports.GetReportByID(ctx, "woodape_2")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, dal.ScopeGlobal, stored.Scope)
	assert.Equal(t, dal.TriageNew, stored.Triage.Status)

	kilmury, err := reports.GetReportByID(ctx, "kilmury_3")
	require.NoError(t, err)
	assert.Equal(t, dal.TriageNeedsInfo, kilmury.Triage.Status)
}

func TestReseedReplacesCollection(t *testing.T) {
	loader := &stubLoader{datasets: sampleDatasets()}
	ingestor, reports, _ := newTestIngestor(t, loader)
	ctx := context.Background()

	_, err := ingestor.SeedIfEmpty(ctx)
	require.NoError(t, err)

	loader.datasets = &Datasets{Kilmury: []KilmuryRow{{ID: "9"}}}
	result, err := ingestor.Reseed(ctx)
	require.NoError(t, err)
	assert.True(t, result.Seeded)

	list, err := reports.ListReports(ctx, dal.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "kilmury_9", list[0].ID)
}

func TestSeedIfEmptyRecordsFailure(t *testing.T) {
	loader := &stubLoader{err: errors.New("disk gone")}
	ingestor, reports, status := newTestIngestor(t, loader)
	ctx := context.Background()

	_, err := ingestor.SeedIfEmpty(ctx)
	require.Error(t, err)

	count, err := reports.CountReports(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	seedStatus, err := status.GetSeedStatus(ctx)
	require.NoError(t, err)
	assert.False(t, seedStatus.Seeded)
	assert.Equal(t, "Report seeding failed", seedStatus.Message)
}
