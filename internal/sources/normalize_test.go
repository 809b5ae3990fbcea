package sources

import (
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/odnarb/bigfoot-map/internal/dal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 7, 4, 8, 0, 0, 0, time.UTC)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name  string
		iso   string
		parts *DateParts
		want  string
	}{
		{"full iso wins", "2019-05-02T13:45:00Z", &DateParts{Year: 1970}, "2019-05-02T13:45:00.000Z"},
		{"offset converted to utc", "2019-05-02T13:45:00.5-05:00", nil, "2019-05-02T18:45:00.500Z"},
		{"bare date", "2024-03-02", nil, "2024-03-02T00:00:00.000Z"},
		{"year only string", "2012", &DateParts{Year: 1970}, "2012-01-01T00:00:00.000Z"},
		{"year month string", "2012-07", nil, "2012-07-01T00:00:00.000Z"},
		{"offset without colon", "2012-07-04T10:00:00+0000", nil, "2012-07-04T10:00:00.000Z"},
		{"offset without colon and fraction", "2012-07-04T10:00:00.25-0130", nil, "2012-07-04T11:30:00.250Z"},
		{"no seconds with zone", "2012-07-04T10:00Z", nil, "2012-07-04T10:00:00.000Z"},
		{"local time with fraction", "2012-07-04T10:00:00.125", nil, "2012-07-04T10:00:00.125Z"},
		{"year only", "", &DateParts{Year: 2020}, "2020-01-01T00:00:00.000Z"},
		{"bad iso falls back to parts", "soon", &DateParts{Year: 1999, Month: 7, Day: 4}, "1999-07-04T00:00:00.000Z"},
		{"month clamped high", "", &DateParts{Year: 2001, Month: 14}, "2001-12-01T00:00:00.000Z"},
		{"month clamped low", "", &DateParts{Year: 2001, Month: -3}, "2001-01-01T00:00:00.000Z"},
		{"unparseable is sentinel", "not-a-date", nil, "1900-01-01T00:00:00.000Z"},
		{"nothing is sentinel", "", nil, "1900-01-01T00:00:00.000Z"},
		{"zero year is sentinel", "", &DateParts{}, "1900-01-01T00:00:00.000Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDate(tt.iso, tt.parts)
			assert.Equal(t, tt.want, got.ISODate)

			parsed, err := time.Parse(dal.ISOLayout, got.ISODate)
			require.NoError(t, err)
			assert.Equal(t, parsed.UnixMilli(), got.TimestampMs)
		})
	}

	assert.Equal(t, int64(-2208988800000), NormalizeDate("", nil).TimestampMs)
}

func TestParseLeadingInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"1978", 1978, true},
		{" 1978? ", 1978, true},
		{"-12", -12, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseLeadingInt(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestIsCanadianProvince(t *testing.T) {
	assert.True(t, IsCanadianProvince("ON"))
	assert.True(t, IsCanadianProvince(" bc "))
	assert.True(t, IsCanadianProvince("YT"))
	assert.False(t, IsCanadianProvince("WA"))
	assert.False(t, IsCanadianProvince(""))
}

func decode[T any](t *testing.T, raw string) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestNormalizeBFROReports(t *testing.T) {
	byState := decode[map[string][]BFRORow](t, `{
		"WA": [{
			"bfroReportId": 123,
			"name": "Test BFRO report",
			"timestamp": "not-a-date",
			"state_abbrev": "WA",
			"state": "Washington",
			"sightingClass": "Class A",
			"url": "https://example.com/report",
			"position": {"lat": 47.5, "lng": -121.9}
		}],
		"AL": [{"bfroReportId": "9", "timestamp": "2004-06-15T00:00:00Z"}]
	}`)

	reports := NormalizeBFROReports(byState)
	require.Len(t, reports, 2)

	// sorted by state key
	assert.Equal(t, "bfro_9", reports[0].ID)
	assert.Equal(t, "BFRO report", reports[0].Title)
	assert.Equal(t, "", reports[0].Summary)
	assert.Equal(t, "AL", dal.StringValue(reports[0].StateCode))
	assert.Nil(t, reports[0].SourceURL)
	assert.Nil(t, reports[0].Position)
	assert.Equal(t, "2004-06-15T00:00:00.000Z", reports[0].ISODate)

	wa := reports[1]
	assert.Equal(t, "bfro_123", wa.ID)
	assert.Equal(t, "123", wa.ExternalID)
	assert.Equal(t, DatasetBFRO, wa.DatasetKey)
	assert.Equal(t, "Test BFRO report", wa.Title)
	assert.Equal(t, "Test BFRO report", wa.Summary)
	assert.Equal(t, "BFRO", wa.SourceName)
	assert.Equal(t, "https://example.com/report", dal.StringValue(wa.SourceURL))
	assert.Equal(t, "US", dal.StringValue(wa.CountryCode))
	assert.Equal(t, "Washington", dal.StringValue(wa.StateName))
	assert.Nil(t, wa.CountyName)
	assert.Equal(t, "Class A", dal.StringValue(wa.SightingClass))
	assert.Equal(t, &dal.Position{Lat: 47.5, Lng: -121.9}, wa.Position)
	assert.Equal(t, "1900-01-01T00:00:00.000Z", wa.ISODate)
	assert.Equal(t, int64(-2208988800000), *wa.TimestampMs)
}

func TestNormalizeWoodapeReports(t *testing.T) {
	rows := decode[[]WoodapeRow](t, `[
		{
			"id": 99,
			"summary": "Ontario report",
			"case_submitted_on": "2024-03-02",
			"map_latitude": "44.1",
			"map_longitude": "-79.5",
			"occur_state": "ON",
			"occur_county": "Simcoe",
			"video_link": "https://example.com/v",
			"report_class": "B"
		},
		{
			"id": 100,
			"case_num": "C-7",
			"map_latitude": "NaN",
			"map_longitude": "",
			"occur_state": "WA",
			"occur_year": "1985"
		},
		{
			"id": "101",
			"summary": "Quebec",
			"map_latitude": 46.8,
			"map_longitude": null,
			"occur_state": "QC"
		}
	]`)

	reports := NormalizeWoodapeReports(rows)
	require.Len(t, reports, 3)

	on := reports[0]
	assert.Equal(t, "woodape_99", on.ID)
	assert.Equal(t, "Ontario report", on.Title)
	assert.Equal(t, "CA", dal.StringValue(on.CountryCode))
	assert.Equal(t, &dal.Position{Lat: 44.1, Lng: -79.5}, on.Position)
	assert.Equal(t, "Simcoe", dal.StringValue(on.CountyName))
	assert.Equal(t, "https://example.com/v", dal.StringValue(on.SourceURL))
	assert.Equal(t, "B", dal.StringValue(on.SightingClass))
	assert.Equal(t, "Woodape", on.SourceName)
	assert.Equal(t, "2024-03-02T00:00:00.000Z", on.ISODate)

	wa := reports[1]
	assert.Equal(t, "Woodape case C-7", wa.Title)
	assert.Equal(t, "", wa.Summary)
	assert.Nil(t, wa.Position)
	assert.Equal(t, "US", dal.StringValue(wa.CountryCode))
	assert.Equal(t, "1985-01-01T00:00:00.000Z", wa.ISODate)

	qc := reports[2]
	assert.Equal(t, "woodape_101", qc.ID)
	assert.Nil(t, qc.Position)
	assert.Equal(t, "CA", dal.StringValue(qc.CountryCode))
	assert.Equal(t, "1900-01-01T00:00:00.000Z", qc.ISODate)
}

func TestNormalizeWoodapeTitleFallsBackToID(t *testing.T) {
	reports := NormalizeWoodapeReports([]WoodapeRow{{ID: "55"}})
	require.Len(t, reports, 1)
	assert.Equal(t, "Woodape case 55", reports[0].Title)
}

func TestNormalizeKilmuryReports(t *testing.T) {
	rows := decode[[]KilmuryRow](t, `[
		{
			"id": 1,
			"summary": "Creek crossing",
			"date": {"year": "1967"},
			"location": {
				"city_state": {"state": "CA"},
				"county": "Humboldt",
				"regions": ["Pacific Northwest"]
			}
		},
		{
			"id": 2,
			"date": {"year": 1924},
			"location": {"regions": ["Western Canada", null]}
		},
		{"id": 3, "location": null}
	]`)

	reports := NormalizeKilmuryReports(rows)
	require.Len(t, reports, 3)

	first := reports[0]
	assert.Equal(t, "kilmury_1", first.ID)
	assert.Equal(t, "Creek crossing", first.Title)
	assert.Nil(t, first.Position)
	assert.Nil(t, first.SourceURL)
	assert.Equal(t, "CA", dal.StringValue(first.StateCode))
	assert.Equal(t, "CA", dal.StringValue(first.StateName))
	assert.Equal(t, "Humboldt", dal.StringValue(first.CountyName))
	assert.Equal(t, "US", dal.StringValue(first.CountryCode))
	assert.Equal(t, "1967-01-01T00:00:00.000Z", first.ISODate)

	second := reports[1]
	assert.Equal(t, "Kilmury entry 2", second.Title)
	assert.Equal(t, "CA", dal.StringValue(second.CountryCode))
	assert.Equal(t, "1924-01-01T00:00:00.000Z", second.ISODate)

	third := reports[2]
	assert.Nil(t, third.StateCode)
	assert.Equal(t, "1900-01-01T00:00:00.000Z", third.ISODate)
}

func TestBuildDefaultTriage(t *testing.T) {
	complete := dal.Report{Title: "t", Summary: "s", ISODate: "2020-01-01T00:00:00.000Z"}
	triage := BuildDefaultTriage(complete, testNow)
	assert.Equal(t, dal.TriageNew, triage.Status)
	assert.Equal(t, TierUnreviewed, triage.Tier)
	assert.True(t, triage.MinimumInfoComplete)
	assert.Nil(t, triage.FollowedUpBy)
	require.Len(t, triage.StatusHistory, 1)
	assert.Equal(t, dal.StatusChange{Status: dal.TriageNew, ChangedAt: "2025-07-04T08:00:00.000Z", ChangedBy: SystemActor}, triage.StatusHistory[0])

	incomplete := dal.Report{Title: "t", ISODate: "2020-01-01T00:00:00.000Z"}
	triage = BuildDefaultTriage(incomplete, testNow)
	assert.Equal(t, dal.TriageNeedsInfo, triage.Status)
	assert.Equal(t, TierInsufficientInfo, triage.Tier)
	assert.False(t, triage.MinimumInfoComplete)
	assert.Equal(t, dal.TriageNeedsInfo, triage.StatusHistory[0].Status)
}

func TestBuildSeedDocument(t *testing.T) {
	owner := "someone"
	report := dal.Report{ID: "bfro_1", Title: "t", Summary: "s", ISODate: "2020-01-01T00:00:00.000Z", OwnerUserID: &owner, Scope: dal.ScopePrivate}

	seeded := BuildSeedDocument(report, testNow)
	assert.Equal(t, dal.ScopeGlobal, seeded.Scope)
	assert.Nil(t, seeded.OwnerUserID)
	assert.Nil(t, seeded.TeamID)
	assert.Equal(t, []string{}, seeded.Sharing.SharedWithTeamIDs)
	assert.Equal(t, dal.Votes{ByUser: map[string]string{}}, seeded.Votes)
	assert.Equal(t, "2025-07-04T08:00:00.000Z", seeded.CreatedAt)
	assert.Equal(t, seeded.CreatedAt, seeded.UpdatedAt)
	assert.Equal(t, dal.TriageNew, seeded.Triage.Status)
}

func TestBuildSeedDocumentsOrder(t *testing.T) {
	datasets := &Datasets{
		BFRO:    map[string][]BFRORow{"WA": {{BFROReportID: "1"}}},
		Woodape: []WoodapeRow{{ID: "2"}},
		Kilmury: []KilmuryRow{{ID: "3"}},
	}

	docs := BuildSeedDocuments(datasets, testNow)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"bfro_1", "woodape_2", "kilmury_3"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})
}

func TestPositionWithGarbageStaysNonFinite(t *testing.T) {
	rows := decode[map[string][]BFRORow](t, `{"WA": [{"bfroReportId": 5, "position": {"lat": "x", "lng": 1}}]}`)
	reports := NormalizeBFROReports(rows)
	require.Len(t, reports, 1)
	require.NotNil(t, reports[0].Position)
	assert.True(t, math.IsNaN(reports[0].Position.Lat))
}
