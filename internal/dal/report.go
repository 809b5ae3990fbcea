package dal

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/odnarb/bigfoot-map/internal/docstore"
	"github.com/odnarb/bigfoot-map/internal/safeerr"
	"github.com/rs/zerolog/log"
)

// ReportsCollection is the collection holding every report.
const ReportsCollection = "reports"

// ISOLayout renders instants the way reports store them.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// Error codes
const (
	CodeSeedFailed   = "REPORT_SEED_FAILED"
	CodeListFailed   = "REPORT_LIST_FAILED"
	CodeGetFailed    = "REPORT_GET_FAILED"
	CodeAddFailed    = "REPORT_ADD_FAILED"
	CodeUpdateFailed = "REPORT_UPDATE_FAILED"
	CodeDeleteFailed = "REPORT_DELETE_FAILED"
	CodeNotFound     = "REPORT_NOT_FOUND"
)

// Public messages
const (
	MsgSeedFailed   = "Failed to initialize report data."
	MsgListFailed   = "Failed to query reports."
	MsgGetFailed    = "Failed to fetch report."
	MsgAddFailed    = "Failed to add a new report."
	MsgUpdateFailed = "Failed to update report."
	MsgDeleteFailed = "Failed to remove report."
	MsgNotFound     = "Report was not found."
)

// ReportModifyFunc computes a patch from the current report.
type ReportModifyFunc func(current Report) (ReportPatch, error)

// ReportModel is the repository over the reports collection.
type ReportModel struct {
	store docstore.Store
	now   func() time.Time
	newID func() string
}

// NewReportModel creates a new report model
func NewReportModel(store docstore.Store) *ReportModel {
	return &ReportModel{
		store: store,
		now:   time.Now,
		newID: NewReportID,
	}
}

// WithClock replaces the clock used for createdAt/updatedAt stamps.
func (rm *ReportModel) WithClock(now func() time.Time) *ReportModel {
	rm.now = now
	return rm
}

// NewReportID returns a fresh `report_<12 chars>` id.
func NewReportID() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "report_" + token[:12]
}

func (rm *ReportModel) stamp() string {
	return rm.now().UTC().Format(ISOLayout)
}

// SeedReports writes reports only when the collection is empty and reports
// whether it did.
func (rm *ReportModel) SeedReports(ctx context.Context, reports []Report) (bool, error) {
	return rm.seed(ctx, reports, false)
}

// ReseedReports overwrites the collection regardless of its contents.
func (rm *ReportModel) ReseedReports(ctx context.Context, reports []Report) error {
	_, err := rm.seed(ctx, reports, true)
	return err
}

func (rm *ReportModel) seed(ctx context.Context, reports []Report, force bool) (bool, error) {
	if !force {
		existing, err := rm.store.CountDocuments(ctx, ReportsCollection)
		if err != nil {
			return false, rm.fail(err, CodeSeedFailed, MsgSeedFailed, nil)
		}
		if existing > 0 {
			log.Info().
				Int("existing", existing).
				Msg("Reports collection already populated, skipping seed")
			return false, nil
		}
	}

	docs := make([]docstore.Document, 0, len(reports))
	for _, report := range reports {
		doc, err := report.ToDocument()
		if err != nil {
			return false, rm.fail(err, CodeSeedFailed, MsgSeedFailed, map[string]any{"reportId": report.ID})
		}
		docs = append(docs, doc)
	}

	if err := rm.store.ReplaceCollection(ctx, ReportsCollection, docs); err != nil {
		return false, rm.fail(err, CodeSeedFailed, MsgSeedFailed, nil)
	}

	log.Info().
		Int("documents", len(docs)).
		Bool("force", force).
		Msg("Seeded reports collection")
	return true, nil
}

// ListReports returns the reports matching filter in storage order.
func (rm *ReportModel) ListReports(ctx context.Context, filter ReportFilter) ([]Report, error) {
	docs, err := rm.store.ListDocuments(ctx, ReportsCollection, nil)
	if err != nil {
		return nil, rm.fail(err, CodeListFailed, MsgListFailed, nil)
	}

	reports := make([]Report, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		report, err := ReportFromDocument(doc)
		if err != nil {
			log.Warn().
				Err(err).
				Str("id", doc.ID()).
				Msg("Failed to decode report document")
			skipped++
			continue
		}
		if filter.Matches(report) {
			reports = append(reports, report)
		}
	}

	log.Debug().
		Int("stored", len(docs)).
		Int("matched", len(reports)).
		Int("skipped", skipped).
		Msg("Reports queried")
	return reports, nil
}

// CountReports returns the size of the reports collection.
func (rm *ReportModel) CountReports(ctx context.Context) (int, error) {
	count, err := rm.store.CountDocuments(ctx, ReportsCollection)
	if err != nil {
		return 0, rm.fail(err, CodeListFailed, MsgListFailed, nil)
	}
	return count, nil
}

// GetReportByID returns the report with id, or nil when there is none.
func (rm *ReportModel) GetReportByID(ctx context.Context, id string) (*Report, error) {
	doc, err := rm.store.GetDocument(ctx, ReportsCollection, id)
	if err != nil {
		return nil, rm.fail(err, CodeGetFailed, MsgGetFailed, map[string]any{"reportId": id})
	}
	if doc == nil {
		return nil, nil
	}
	report, err := ReportFromDocument(doc)
	if err != nil {
		return nil, rm.fail(err, CodeGetFailed, MsgGetFailed, map[string]any{"reportId": id})
	}
	return &report, nil
}

// AddReport stores report, assigning an id and createdAt when missing.
// updatedAt is always stamped.
func (rm *ReportModel) AddReport(ctx context.Context, report Report) (Report, error) {
	now := rm.stamp()
	if report.ID == "" {
		report.ID = rm.newID()
	}
	if report.CreatedAt == "" {
		report.CreatedAt = now
	}
	report.UpdatedAt = now

	doc, err := report.ToDocument()
	if err != nil {
		return Report{}, rm.fail(err, CodeAddFailed, MsgAddFailed, map[string]any{"reportId": report.ID})
	}
	stored, err := rm.store.AddDocument(ctx, ReportsCollection, doc)
	if err != nil {
		return Report{}, rm.fail(err, CodeAddFailed, MsgAddFailed, map[string]any{"reportId": report.ID})
	}
	added, err := ReportFromDocument(stored)
	if err != nil {
		return Report{}, rm.fail(err, CodeAddFailed, MsgAddFailed, map[string]any{"reportId": report.ID})
	}

	log.Info().
		Str("reportId", added.ID).
		Str("datasetKey", added.DatasetKey).
		Msg("Report added")
	return added, nil
}

// UpdateReport applies patch and refreshes updatedAt.
func (rm *ReportModel) UpdateReport(ctx context.Context, id string, patch ReportPatch) (Report, error) {
	return rm.ModifyReport(ctx, id, func(Report) (ReportPatch, error) {
		return patch, nil
	})
}

// ModifyReport computes a patch from the current report and applies it
// atomically with respect to other writers. Errors returned by fn that are
// already typed reach the caller unchanged.
func (rm *ReportModel) ModifyReport(ctx context.Context, id string, fn ReportModifyFunc) (Report, error) {
	details := map[string]any{"reportId": id}

	doc, err := rm.store.ModifyDocument(ctx, ReportsCollection, id, func(current docstore.Document) (docstore.Document, error) {
		report, err := ReportFromDocument(current)
		if err != nil {
			return nil, err
		}
		patch, err := fn(report)
		if err != nil {
			return nil, err
		}
		patch.UpdatedAt = rm.stamp()
		return patch.ToDocument()
	})
	if err != nil {
		if safeerr.HasCode(err, docstore.CodeNotFound) {
			return Report{}, safeerr.NotFound(CodeNotFound, MsgNotFound, details)
		}
		return Report{}, rm.fail(err, CodeUpdateFailed, MsgUpdateFailed, details)
	}

	updated, err := ReportFromDocument(doc)
	if err != nil {
		return Report{}, rm.fail(err, CodeUpdateFailed, MsgUpdateFailed, details)
	}
	return updated, nil
}

// RemoveReport deletes the report and reports whether anything was removed.
func (rm *ReportModel) RemoveReport(ctx context.Context, id string) (bool, error) {
	removed, err := rm.store.DeleteDocument(ctx, ReportsCollection, id)
	if err != nil {
		return false, rm.fail(err, CodeDeleteFailed, MsgDeleteFailed, map[string]any{"reportId": id})
	}
	if removed {
		log.Info().Str("reportId", id).Msg("Report removed")
	}
	return removed, nil
}

// fail passes typed errors through and wraps everything else.
func (rm *ReportModel) fail(err error, code, message string, details map[string]any) error {
	if _, ok := safeerr.As(err); ok {
		return err
	}
	log.Error().
		Err(err).
		Str("code", code).
		Msg("Report repository operation failed")
	return safeerr.Persistence(err, code, message, details)
}
