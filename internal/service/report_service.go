// Package service holds the report business rules: listing, submissions,
// voting, triage and exports.
package service

import (
	"context"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/odnarb/bigfoot-map/internal/dal"
	"github.com/odnarb/bigfoot-map/internal/export"
	"github.com/odnarb/bigfoot-map/internal/metrics"
	"github.com/odnarb/bigfoot-map/internal/safeerr"
	"github.com/odnarb/bigfoot-map/internal/sources"
	"github.com/rs/zerolog/log"
)

// Error codes
const (
	CodeServiceFailed        = "REPORT_SERVICE_FAILED"
	CodeSubmissionInvalid    = "REPORT_SUBMISSION_INVALID"
	CodeVoteInvalidDirection = "REPORT_VOTE_INVALID_DIRECTION"
	CodeTriageInvalid        = "REPORT_TRIAGE_INVALID"
	CodeExportInvalidFormat  = "REPORT_EXPORT_INVALID_FORMAT"
)

// Public messages
const (
	MsgServiceFailed        = "Failed to process the report request."
	MsgSubmissionMissing    = "A title and summary are required before submitting a report."
	MsgSubmissionFields     = "Please check the highlighted submission fields and try again."
	MsgVoteInvalidDirection = "Vote direction must be either up or down."
	MsgTriageInvalid        = "Triage update contains invalid values."
	MsgExportInvalidFormat  = "Unsupported export format. Use csv or geojson."
)

// Export formats
const (
	FormatCSV     = "csv"
	FormatGeoJSON = "geojson"
)

const (
	submissionSourceName = "Submission"
	anonymousVoter       = "anonymous"
	legacyAgeYears       = 10
	exportFilePrefix     = "sasquatch-reports-"
	exportDateLayout     = "2006-01-02"
	mimeCSV              = "text/csv; charset=utf-8"
	mimeGeoJSON          = "application/geo+json; charset=utf-8"
	ageRoleLegacy        = "legacy"
	ageRoleModern        = "modern"
	unknownBucket        = "unknown"
)

// ReportRepository is the persistence the service needs.
type ReportRepository interface {
	ListReports(ctx context.Context, filter dal.ReportFilter) ([]dal.Report, error)
	GetReportByID(ctx context.Context, id string) (*dal.Report, error)
	AddReport(ctx context.Context, report dal.Report) (dal.Report, error)
	ModifyReport(ctx context.Context, id string, fn dal.ReportModifyFunc) (dal.Report, error)
	RemoveReport(ctx context.Context, id string) (bool, error)
}

// UserContext identifies who is acting. Every field may be empty.
type UserContext struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	ClientID string `json:"-"`
}

// ExportPayload is a rendered download.
type ExportPayload struct {
	MimeType string
	FileName string
	Body     []byte
}

// ReportService implements the report use cases.
type ReportService struct {
	repo ReportRepository
	now  func() time.Time
}

// NewReportService creates a new report service
func NewReportService(repo ReportRepository) *ReportService {
	return &ReportService{
		repo: repo,
		now:  time.Now,
	}
}

// WithClock replaces the clock used for dates, history entries and file names.
func (s *ReportService) WithClock(now func() time.Time) *ReportService {
	s.now = now
	return s
}

// FetchReports lists the reports matching the query parameters.
func (s *ReportService) FetchReports(ctx context.Context, query url.Values) ([]dal.Report, error) {
	reports, err := s.repo.ListReports(ctx, ParseReportQuery(query))
	if err != nil {
		return nil, s.fail(err, "fetch")
	}
	return reports, nil
}

// GetReport returns one report or a REPORT_NOT_FOUND error.
func (s *ReportService) GetReport(ctx context.Context, id string) (dal.Report, error) {
	report, err := s.repo.GetReportByID(ctx, id)
	if err != nil {
		return dal.Report{}, s.fail(err, "get")
	}
	if report == nil {
		return dal.Report{}, reportNotFound(id)
	}
	return *report, nil
}

// CreateSubmission stores a user-submitted report awaiting triage.
func (s *ReportService) CreateSubmission(ctx context.Context, input SubmissionInput, user UserContext) (dal.Report, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Summary = strings.TrimSpace(input.Summary)

	if input.Title == "" || input.Summary == "" {
		metrics.RecordSubmission("invalid")
		return dal.Report{}, safeerr.Validation(CodeSubmissionInvalid, MsgSubmissionMissing, map[string]any{
			"hasTitle":   input.Title != "",
			"hasSummary": input.Summary != "",
		})
	}
	if fields := validateStruct(input); fields != nil {
		metrics.RecordSubmission("invalid")
		return dal.Report{}, safeerr.Validation(CodeSubmissionInvalid, MsgSubmissionFields, map[string]any{"fields": fields})
	}

	now := s.now()
	date := sources.NormalizeDate(input.ISODate, nil)
	scope := input.Scope
	if scope == "" {
		scope = dal.ScopePrivate
	}
	sharing := dal.Sharing{SharedWithTeamIDs: []string{}}
	if len(input.SharedWithTeamIDs) > 0 {
		sharing.SharedWithTeamIDs = input.SharedWithTeamIDs
	}

	id := dal.NewReportID()
	report := dal.Report{
		ID:            id,
		ExternalID:    id,
		DatasetKey:    sources.DatasetSubmissions,
		Title:         input.Title,
		Summary:       input.Summary,
		SourceURL:     dal.StringPtr(input.SourceURL),
		SourceName:    submissionSourceName,
		Position:      input.Position.toPosition(),
		CountryCode:   dal.StringPtr(strings.ToUpper(input.CountryCode)),
		StateCode:     dal.StringPtr(strings.ToUpper(input.StateCode)),
		StateName:     dal.StringPtr(input.StateName),
		CountyName:    dal.StringPtr(input.CountyName),
		SightingClass: dal.StringPtr(input.SightingClass),
		ISODate:       date.ISODate,
		TimestampMs:   &date.TimestampMs,
		Scope:         scope,
		OwnerUserID:   dal.StringPtr(user.UserID),
		TeamID:        dal.StringPtr(input.TeamID),
		Sharing:       sharing,
		Votes:         dal.Votes{ByUser: map[string]string{}},
	}
	// minimum info is judged on the date as submitted, before the sentinel fills it in
	submitted := report
	submitted.ISODate = strings.TrimSpace(input.ISODate)
	report.Triage = sources.BuildDefaultTriage(submitted, now)

	created, err := s.repo.AddReport(ctx, report)
	if err != nil {
		metrics.RecordSubmission("error")
		return dal.Report{}, s.fail(err, "submit")
	}

	metrics.RecordSubmission("created")
	log.Info().
		Str("reportId", created.ID).
		Str("scope", created.Scope).
		Str("triageStatus", created.Triage.Status).
		Msg("Report submission created")
	return created, nil
}

// VoteOnReport records the voter's latest direction. A voter switching
// sides moves their vote; repeating a direction leaves the tallies as is.
func (s *ReportService) VoteOnReport(ctx context.Context, id, direction string, user UserContext) (dal.Votes, error) {
	if direction != dal.VoteUp && direction != dal.VoteDown {
		return dal.Votes{}, safeerr.Validation(CodeVoteInvalidDirection, MsgVoteInvalidDirection, map[string]any{"direction": direction})
	}

	voter := VoterKey(user)
	change := ""
	updated, err := s.repo.ModifyReport(ctx, id, func(current dal.Report) (dal.ReportPatch, error) {
		var votes dal.Votes
		votes, change = ApplyVote(current.Votes, voter, direction)
		return dal.ReportPatch{Votes: &votes}, nil
	})
	if err != nil {
		return dal.Votes{}, s.fail(err, "vote")
	}

	metrics.RecordVote(direction, change)
	log.Debug().
		Str("reportId", id).
		Str("direction", direction).
		Str("change", change).
		Msg("Vote recorded")
	return updated.Votes, nil
}

// VoterKey picks the identity a vote is recorded under.
func VoterKey(user UserContext) string {
	switch {
	case user.UserID != "":
		return user.UserID
	case user.ClientID != "":
		return user.ClientID
	default:
		return anonymousVoter
	}
}

// ApplyVote returns the tallies after voter votes direction, and whether
// the vote was "new", "changed" or "repeated".
func ApplyVote(current dal.Votes, voter, direction string) (dal.Votes, string) {
	next := dal.Votes{
		Up:     max(0, current.Up),
		Down:   max(0, current.Down),
		ByUser: make(map[string]string, len(current.ByUser)+1),
	}
	for k, v := range current.ByUser {
		next.ByUser[k] = v
	}

	previous := next.ByUser[voter]
	change := "new"
	switch previous {
	case dal.VoteUp:
		next.Up = max(0, next.Up-1)
		change = "changed"
	case dal.VoteDown:
		next.Down = max(0, next.Down-1)
		change = "changed"
	}
	if previous == direction {
		change = "repeated"
	}

	next.ByUser[voter] = direction
	if direction == dal.VoteUp {
		next.Up++
	} else {
		next.Down++
	}
	return next, change
}

// UpdateTriage applies patch and appends a history entry.
func (s *ReportService) UpdateTriage(ctx context.Context, id string, patch TriagePatch, user UserContext) (dal.Triage, error) {
	if fields := validateStruct(patch); fields != nil {
		return dal.Triage{}, safeerr.Validation(CodeTriageInvalid, MsgTriageInvalid, map[string]any{"fields": fields})
	}

	changedBy := user.UserID
	if changedBy == "" {
		changedBy = sources.SystemActor
	}

	updated, err := s.repo.ModifyReport(ctx, id, func(current dal.Report) (dal.ReportPatch, error) {
		triage := ApplyTriagePatch(current, patch, changedBy, s.now())
		return dal.ReportPatch{Triage: &triage}, nil
	})
	if err != nil {
		return dal.Triage{}, s.fail(err, "triage")
	}

	metrics.RecordTriageUpdate(updated.Triage.Status)
	log.Info().
		Str("reportId", id).
		Str("status", updated.Triage.Status).
		Str("changedBy", changedBy).
		Msg("Report triage updated")
	return updated.Triage, nil
}

// ApplyTriagePatch computes the next triage state. The status falls back
// to the current one, then to "new". minimumInfoComplete is always
// derived from the report itself.
func ApplyTriagePatch(report dal.Report, patch TriagePatch, changedBy string, now time.Time) dal.Triage {
	next := report.Triage

	status := ""
	if patch.Status != nil {
		status = *patch.Status
	}
	if status == "" {
		status = next.Status
	}
	if status == "" {
		status = dal.TriageNew
	}

	if patch.Tier != nil {
		next.Tier = *patch.Tier
	}
	if patch.FollowedUpBy != nil {
		next.FollowedUpBy = dal.StringPtr(*patch.FollowedUpBy)
	}

	next.Status = status
	next.MinimumInfoComplete = dal.HasMinimumInfo(report.Title, report.Summary, report.ISODate)

	history := make([]dal.StatusChange, 0, len(next.StatusHistory)+1)
	history = append(history, next.StatusHistory...)
	next.StatusHistory = append(history, dal.StatusChange{
		Status:    status,
		ChangedAt: now.UTC().Format(dal.ISOLayout),
		ChangedBy: changedBy,
	})
	return next
}

// ExportReports renders the filtered reports as "csv" or "geojson".
func (s *ReportService) ExportReports(ctx context.Context, query url.Values, format string) (ExportPayload, error) {
	if format != FormatCSV && format != FormatGeoJSON {
		return ExportPayload{}, safeerr.Validation(CodeExportInvalidFormat, MsgExportInvalidFormat, map[string]any{"format": format})
	}

	reports, err := s.FetchReports(ctx, query)
	if err != nil {
		return ExportPayload{}, err
	}

	fileName := exportFilePrefix + s.now().UTC().Format(exportDateLayout) + "." + format
	payload := ExportPayload{FileName: fileName}

	switch format {
	case FormatCSV:
		payload.MimeType = mimeCSV
		payload.Body = []byte(export.ToCSV(reports))
	case FormatGeoJSON:
		body, err := export.MarshalGeoJSON(export.ToGeoJSON(reports))
		if err != nil {
			return ExportPayload{}, s.fail(err, "export")
		}
		payload.MimeType = mimeGeoJSON
		payload.Body = body
	}

	metrics.RecordExport(format)
	log.Info().
		Str("format", format).
		Int("reports", len(reports)).
		Str("fileName", fileName).
		Msg("Reports exported")
	return payload, nil
}

// RemoveReport deletes a report and reports whether it existed.
func (s *ReportService) RemoveReport(ctx context.Context, id string) (bool, error) {
	removed, err := s.repo.RemoveReport(ctx, id)
	if err != nil {
		return false, s.fail(err, "remove")
	}
	return removed, nil
}

// ReportSummary aggregates a filtered listing.
type ReportSummary struct {
	Total              int            `json:"total"`
	ByDataset          map[string]int `json:"byDataset"`
	ByTriageStatus     map[string]int `json:"byTriageStatus"`
	ByCountry          map[string]int `json:"byCountry"`
	ByAgeRole          map[string]int `json:"byAgeRole"`
	WithCoordinates    int            `json:"withCoordinates"`
	WithoutCoordinates int            `json:"withoutCoordinates"`
	VotesUp            int            `json:"votesUp"`
	VotesDown          int            `json:"votesDown"`
}

// SummarizeReports counts the filtered reports along several axes.
func (s *ReportService) SummarizeReports(ctx context.Context, query url.Values) (ReportSummary, error) {
	reports, err := s.FetchReports(ctx, query)
	if err != nil {
		return ReportSummary{}, err
	}

	now := s.now()
	summary := ReportSummary{
		Total:          len(reports),
		ByDataset:      map[string]int{},
		ByTriageStatus: map[string]int{},
		ByCountry:      map[string]int{},
		ByAgeRole:      map[string]int{},
	}
	for _, report := range reports {
		summary.ByDataset[report.DatasetKey]++
		summary.ByTriageStatus[orUnknown(report.Triage.Status)]++
		summary.ByCountry[orUnknown(dal.StringValue(report.CountryCode))]++
		summary.ByAgeRole[MarkerAgeRole(report.TimestampMs, now)]++
		if report.Position.IsFinite() {
			summary.WithCoordinates++
		} else {
			summary.WithoutCoordinates++
		}
		summary.VotesUp += report.Votes.Up
		summary.VotesDown += report.Votes.Down
	}
	return summary, nil
}

// MarkerAgeRole is "legacy" when the report's year is more than ten years
// before now's year, else "modern". A missing timestamp counts as 1970.
func MarkerAgeRole(timestampMs *int64, now time.Time) string {
	var ts int64
	if timestampMs != nil {
		ts = *timestampMs
	}
	reportYear := time.UnixMilli(ts).UTC().Year()
	if now.UTC().Year()-reportYear > legacyAgeYears {
		return ageRoleLegacy
	}
	return ageRoleModern
}

// fail passes typed errors through and hides everything else behind a
// generic persistence error.
func (s *ReportService) fail(err error, operation string) error {
	if _, ok := safeerr.As(err); ok {
		return err
	}
	log.Error().
		Err(err).
		Str("operation", operation).
		Msg("Report service operation failed")
	return safeerr.Persistence(err, CodeServiceFailed, MsgServiceFailed, map[string]any{"operation": operation})
}

func reportNotFound(id string) error {
	return safeerr.NotFound(dal.CodeNotFound, dal.MsgNotFound, map[string]any{"reportId": id})
}

func orUnknown(s string) string {
	if s == "" {
		return unknownBucket
	}
	return s
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
