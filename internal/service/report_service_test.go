package service

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/odnarb/bigfoot-map/internal/dal"
	"github.com/odnarb/bigfoot-map/internal/docstore"
	"github.com/odnarb/bigfoot-map/internal/safeerr"
	"github.com/odnarb/bigfoot-map/internal/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serviceNow = time.Date(2026, 2, 14, 9, 15, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func newTestService(t *testing.T, seed ...dal.Report) (*ReportService, *dal.ReportModel) {
	t.Helper()
	store, err := docstore.NewClient(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)

	repo := dal.NewReportModel(store).WithClock(func() time.Time { return serviceNow })
	if len(seed) > 0 {
		_, err := repo.SeedReports(context.Background(), seed)
		require.NoError(t, err)
	}
	return NewReportService(repo).WithClock(func() time.Time { return serviceNow }), repo
}

func seeded(id, dataset string, year int, position *dal.Position) dal.Report {
	date := sources.NormalizeDate("", &sources.DateParts{Year: year})
	report := dal.Report{
		ID:          id,
		ExternalID:  id,
		DatasetKey:  dataset,
		Title:       "Report " + id,
		Summary:     "Summary " + id,
		SourceName:  "BFRO",
		Position:    position,
		CountryCode: dal.StringPtr("US"),
		ISODate:     date.ISODate,
		TimestampMs: &date.TimestampMs,
	}
	return sources.BuildSeedDocument(report, serviceNow)
}

func TestFetchReports(t *testing.T) {
	svc, _ := newTestService(t,
		seeded("bfro_1", "bfro", 2012, &dal.Position{Lat: 45, Lng: -120}),
		seeded("bfro_2", "bfro", 2021, &dal.Position{Lat: 10, Lng: 10}),
		seeded("kilmury_3", "kilmury", 2021, nil),
	)
	ctx := context.Background()

	all, err := svc.FetchReports(ctx, url.Values{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	recent, err := svc.FetchReports(ctx, url.Values{"fromYear": {"2015"}})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	mapped, err := svc.FetchReports(ctx, url.Values{"includeWithoutCoordinates": {"false"}, "datasets": {"BFRO"}})
	require.NoError(t, err)
	assert.Len(t, mapped, 2)

	boxed, err := svc.FetchReports(ctx, url.Values{"bounds": {"40,-130,50,-110"}})
	require.NoError(t, err)
	require.Len(t, boxed, 1)
	assert.Equal(t, "bfro_1", boxed[0].ID)
}

func TestGetReport(t *testing.T) {
	svc, _ := newTestService(t, seeded("bfro_1", "bfro", 2012, nil))

	report, err := svc.GetReport(context.Background(), "bfro_1")
	require.NoError(t, err)
	assert.Equal(t, "Report bfro_1", report.Title)

	_, err = svc.GetReport(context.Background(), "missing")
	assert.True(t, safeerr.IsKind(err, safeerr.KindNotFound))
	assert.True(t, safeerr.HasCode(err, dal.CodeNotFound))
}

func TestCreateSubmission(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	lat, lng := 47.6, -122.3

	created, err := svc.CreateSubmission(ctx, SubmissionInput{
		Title:       "  Tall figure  ",
		Summary:     "Crossed the road at dusk",
		ISODate:     "2023-10-01T22:00:00Z",
		Position:    &SubmissionPosition{Lat: &lat, Lng: &lng},
		CountryCode: "us",
	}, UserContext{UserID: "user_researcher"})
	require.NoError(t, err)

	assert.Regexp(t, `^report_[0-9a-f]{12}$`, created.ID)
	assert.Equal(t, created.ID, created.ExternalID)
	assert.Equal(t, sources.DatasetSubmissions, created.DatasetKey)
	assert.Equal(t, "Tall figure", created.Title)
	assert.Equal(t, dal.ScopePrivate, created.Scope)
	assert.Equal(t, "user_researcher", dal.StringValue(created.OwnerUserID))
	assert.Equal(t, "US", dal.StringValue(created.CountryCode))
	assert.Equal(t, "2023-10-01T22:00:00.000Z", created.ISODate)
	assert.Equal(t, &dal.Position{Lat: lat, Lng: lng}, created.Position)
	assert.Equal(t, dal.TriageNew, created.Triage.Status)
	assert.True(t, created.Triage.MinimumInfoComplete)
	assert.Equal(t, 0, created.Votes.Up)
	assert.Equal(t, "2026-02-14T09:15:00.000Z", created.CreatedAt)

	stored, err := repo.GetReportByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestCreateSubmissionWithoutDateUsesSentinel(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.CreateSubmission(context.Background(), SubmissionInput{
		Title:   "Night howl",
		Summary: "Heard from camp",
		ISODate: "last tuesday",
		Scope:   dal.ScopeTeam,
	}, UserContext{})
	require.NoError(t, err)

	assert.Equal(t, "1900-01-01T00:00:00.000Z", created.ISODate)
	assert.Equal(t, dal.ScopeTeam, created.Scope)
	assert.Nil(t, created.OwnerUserID)
	assert.Nil(t, created.Position)
}

func TestCreateSubmissionWithoutDateNeedsInfo(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.CreateSubmission(context.Background(), SubmissionInput{
		Title:   "Night howl",
		Summary: "Heard from camp",
		ISODate: "   ",
	}, UserContext{})
	require.NoError(t, err)

	assert.Equal(t, "1900-01-01T00:00:00.000Z", created.ISODate)
	assert.Equal(t, dal.TriageNeedsInfo, created.Triage.Status)
	assert.Equal(t, sources.TierInsufficientInfo, created.Triage.Tier)
	assert.False(t, created.Triage.MinimumInfoComplete)
	require.Len(t, created.Triage.StatusHistory, 1)
	assert.Equal(t, dal.TriageNeedsInfo, created.Triage.StatusHistory[0].Status)
}

func TestCreateSubmissionValidation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	badLat, lng := 95.0, 10.0

	tests := []struct {
		name    string
		input   SubmissionInput
		message string
		field   string
	}{
		{"missing title", SubmissionInput{Summary: "s"}, MsgSubmissionMissing, ""},
		{"blank summary", SubmissionInput{Title: "t", Summary: "   "}, MsgSubmissionMissing, ""},
		{"bad scope", SubmissionInput{Title: "t", Summary: "s", Scope: "public"}, MsgSubmissionFields, "scope"},
		{"latitude out of range", SubmissionInput{Title: "t", Summary: "s", Position: &SubmissionPosition{Lat: &badLat, Lng: &lng}}, MsgSubmissionFields, "position.lat"},
		{"half a position", SubmissionInput{Title: "t", Summary: "s", Position: &SubmissionPosition{Lng: &lng}}, MsgSubmissionFields, "position.lat"},
		{"bad url", SubmissionInput{Title: "t", Summary: "s", SourceURL: "not a url"}, MsgSubmissionFields, "sourceUrl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSubmission(ctx, tt.input, UserContext{})
			require.Error(t, err)

			safe, ok := safeerr.As(err)
			require.True(t, ok)
			assert.Equal(t, safeerr.KindValidation, safe.Kind)
			assert.Equal(t, CodeSubmissionInvalid, safe.Code)
			assert.Equal(t, tt.message, safe.Message)
			if tt.field != "" {
				assert.Contains(t, safe.Details["fields"], tt.field)
			}
		})
	}

	count, err := repo.CountReports(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestVoteOnReport(t *testing.T) {
	svc, _ := newTestService(t, seeded("bfro_1", "bfro", 2012, nil))
	ctx := context.Background()
	alice := UserContext{UserID: "alice"}

	votes, err := svc.VoteOnReport(ctx, "bfro_1", dal.VoteUp, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, votes.Up)
	assert.Equal(t, 0, votes.Down)

	votes, err = svc.VoteOnReport(ctx, "bfro_1", dal.VoteUp, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, votes.Up)

	votes, err = svc.VoteOnReport(ctx, "bfro_1", dal.VoteDown, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, votes.Up)
	assert.Equal(t, 1, votes.Down)
	assert.Equal(t, dal.VoteDown, votes.ByUser["alice"])

	votes, err = svc.VoteOnReport(ctx, "bfro_1", dal.VoteUp, UserContext{ClientID: "browser-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, votes.Up)
	assert.Equal(t, dal.VoteUp, votes.ByUser["browser-1"])

	votes, err = svc.VoteOnReport(ctx, "bfro_1", dal.VoteUp, UserContext{})
	require.NoError(t, err)
	assert.Equal(t, dal.VoteUp, votes.ByUser["anonymous"])
	assert.Equal(t, 2, votes.Up)
}

func TestVoteOnReportErrors(t *testing.T) {
	svc, _ := newTestService(t, seeded("bfro_1", "bfro", 2012, nil))
	ctx := context.Background()

	_, err := svc.VoteOnReport(ctx, "bfro_1", "sideways", UserContext{})
	assert.True(t, safeerr.HasCode(err, CodeVoteInvalidDirection))
	assert.True(t, safeerr.IsKind(err, safeerr.KindValidation))

	_, err = svc.VoteOnReport(ctx, "missing", dal.VoteUp, UserContext{})
	assert.True(t, safeerr.HasCode(err, dal.CodeNotFound))
	assert.True(t, safeerr.IsKind(err, safeerr.KindNotFound))
}

func TestVoteExclusivityUnderConcurrency(t *testing.T) {
	svc, repo := newTestService(t, seeded("bfro_1", "bfro", 2012, nil))
	ctx := context.Background()

	const voters = 20
	var wg sync.WaitGroup
	wg.Add(voters * 2)
	for i := 0; i < voters; i++ {
		user := UserContext{UserID: "voter-" + string(rune('a'+i))}
		go func() {
			defer wg.Done()
			_, err := svc.VoteOnReport(ctx, "bfro_1", dal.VoteUp, user)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.VoteOnReport(ctx, "bfro_1", dal.VoteDown, user)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	report, err := repo.GetReportByID(ctx, "bfro_1")
	require.NoError(t, err)
	assert.Equal(t, voters, report.Votes.Up+report.Votes.Down)
	assert.Len(t, report.Votes.ByUser, voters)

	up := 0
	for _, direction := range report.Votes.ByUser {
		if direction == dal.VoteUp {
			up++
		}
	}
	assert.Equal(t, up, report.Votes.Up)
}

func TestApplyVote(t *testing.T) {
	start := dal.Votes{Up: 0, Down: 0, ByUser: map[string]string{"bob": dal.VoteDown}}

	next, change := ApplyVote(start, "bob", dal.VoteUp)
	assert.Equal(t, "changed", change)
	assert.Equal(t, 1, next.Up)
	assert.Equal(t, 0, next.Down, "stale decrement is floored at zero")
	assert.Equal(t, dal.VoteDown, start.ByUser["bob"], "input is not mutated")

	_, change = ApplyVote(next, "bob", dal.VoteUp)
	assert.Equal(t, "repeated", change)

	_, change = ApplyVote(next, "carol", dal.VoteDown)
	assert.Equal(t, "new", change)
}

func TestUpdateTriage(t *testing.T) {
	svc, _ := newTestService(t, seeded("bfro_1", "bfro", 2012, nil))
	ctx := context.Background()

	triage, err := svc.UpdateTriage(ctx, "bfro_1", TriagePatch{
		Status:       strPtr(dal.TriageInReview),
		Tier:         strPtr("priority"),
		FollowedUpBy: strPtr("user_admin"),
	}, UserContext{UserID: "user_admin"})
	require.NoError(t, err)

	assert.Equal(t, dal.TriageInReview, triage.Status)
	assert.Equal(t, "priority", triage.Tier)
	assert.Equal(t, "user_admin", dal.StringValue(triage.FollowedUpBy))
	assert.True(t, triage.MinimumInfoComplete)
	require.Len(t, triage.StatusHistory, 2)
	assert.Equal(t, dal.StatusChange{
		Status:    dal.TriageInReview,
		ChangedAt: "2026-02-14T09:15:00.000Z",
		ChangedBy: "user_admin",
	}, triage.StatusHistory[1])

	triage, err = svc.UpdateTriage(ctx, "bfro_1", TriagePatch{Tier: strPtr("low")}, UserContext{})
	require.NoError(t, err)
	assert.Equal(t, dal.TriageInReview, triage.Status)
	require.Len(t, triage.StatusHistory, 3)
	assert.Equal(t, sources.SystemActor, triage.StatusHistory[2].ChangedBy)
}

func TestUpdateTriageErrors(t *testing.T) {
	svc, _ := newTestService(t, seeded("bfro_1", "bfro", 2012, nil))
	ctx := context.Background()

	_, err := svc.UpdateTriage(ctx, "bfro_1", TriagePatch{Status: strPtr("archived")}, UserContext{})
	assert.True(t, safeerr.HasCode(err, CodeTriageInvalid))
	assert.True(t, safeerr.IsKind(err, safeerr.KindValidation))

	_, err = svc.UpdateTriage(ctx, "missing", TriagePatch{}, UserContext{})
	assert.True(t, safeerr.HasCode(err, dal.CodeNotFound))
}

func TestApplyTriagePatchDefaultsToNew(t *testing.T) {
	report := dal.Report{Title: "t"}
	triage := ApplyTriagePatch(report, TriagePatch{}, "system", serviceNow)

	assert.Equal(t, dal.TriageNew, triage.Status)
	assert.False(t, triage.MinimumInfoComplete)
	require.Len(t, triage.StatusHistory, 1)
}

func TestExportReports(t *testing.T) {
	svc, _ := newTestService(t,
		seeded("bfro_1", "bfro", 2012, &dal.Position{Lat: 45, Lng: -120}),
		seeded("kilmury_2", "kilmury", 1970, nil),
	)
	ctx := context.Background()

	csvPayload, err := svc.ExportReports(ctx, url.Values{}, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", csvPayload.MimeType)
	assert.Equal(t, "sasquatch-reports-2026-02-14.csv", csvPayload.FileName)
	assert.Len(t, strings.Split(string(csvPayload.Body), "\n"), 3)

	geo, err := svc.ExportReports(ctx, url.Values{}, "geojson")
	require.NoError(t, err)
	assert.Equal(t, "application/geo+json; charset=utf-8", geo.MimeType)
	assert.Equal(t, "sasquatch-reports-2026-02-14.geojson", geo.FileName)

	var decoded struct {
		Features []map[string]any `json:"features"`
	}
	require.NoError(t, json.Unmarshal(geo.Body, &decoded))
	assert.Len(t, decoded.Features, 1)
}

func TestExportReportsRejectsUnknownFormat(t *testing.T) {
	svc, _ := newTestService(t)

	for _, format := range []string{"xml", "CSV", " geojson ", "GeoJSON", ""} {
		_, err := svc.ExportReports(context.Background(), url.Values{}, format)
		require.Error(t, err, format)
		assert.True(t, safeerr.IsKind(err, safeerr.KindValidation), format)
		assert.True(t, safeerr.HasCode(err, CodeExportInvalidFormat), format)
	}
}

func TestRemoveReport(t *testing.T) {
	svc, _ := newTestService(t, seeded("bfro_1", "bfro", 2012, nil))
	ctx := context.Background()

	removed, err := svc.RemoveReport(ctx, "bfro_1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.RemoveReport(ctx, "bfro_1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSummarizeReports(t *testing.T) {
	svc, _ := newTestService(t,
		seeded("bfro_1", "bfro", 2012, &dal.Position{Lat: 45, Lng: -120}),
		seeded("bfro_2", "bfro", 2022, nil),
		seeded("woodape_3", "woodape", 2024, &dal.Position{Lat: 49, Lng: -123}),
	)
	ctx := context.Background()
	_, err := svc.VoteOnReport(ctx, "bfro_1", dal.VoteUp, UserContext{UserID: "u"})
	require.NoError(t, err)

	summary, err := svc.SummarizeReports(ctx, url.Values{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, map[string]int{"bfro": 2, "woodape": 1}, summary.ByDataset)
	assert.Equal(t, map[string]int{"US": 3}, summary.ByCountry)
	assert.Equal(t, map[string]int{dal.TriageNew: 3}, summary.ByTriageStatus)
	assert.Equal(t, map[string]int{"legacy": 1, "modern": 2}, summary.ByAgeRole)
	assert.Equal(t, 2, summary.WithCoordinates)
	assert.Equal(t, 1, summary.WithoutCoordinates)
	assert.Equal(t, 1, summary.VotesUp)
}

func TestMarkerAgeRole(t *testing.T) {
	modern := time.Date(serviceNow.Year(), 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	legacy := time.Date(serviceNow.Year()-15, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	boundary := time.Date(serviceNow.Year()-10, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	assert.Equal(t, "modern", MarkerAgeRole(&modern, serviceNow))
	assert.Equal(t, "legacy", MarkerAgeRole(&legacy, serviceNow))
	assert.Equal(t, "modern", MarkerAgeRole(&boundary, serviceNow))
	assert.Equal(t, "legacy", MarkerAgeRole(nil, serviceNow))
}
