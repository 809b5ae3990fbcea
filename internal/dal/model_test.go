package dal

import (
	"math"
	"testing"

	"github.com/goccy/go-json"
	"github.com/odnarb/bigfoot-map/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		nan  bool
	}{
		{raw: `45.5`, want: 45.5},
		{raw: `"-120.25"`, want: -120.25},
		{raw: `" 12 "`, want: 12},
		{raw: `null`, nan: true},
		{raw: ``, nan: true},
		{raw: `"north"`, nan: true},
		{raw: `true`, nan: true},
		{raw: `{}`, nan: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseCoordinate(json.RawMessage(tt.raw))
			if tt.nan {
				assert.True(t, math.IsNaN(got))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimestampMs(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
		nil  bool
	}{
		{raw: `1325376000000`, want: 1325376000000},
		{raw: `1325376000000.9`, want: 1325376000000},
		{raw: `"1325376000000"`, want: 1325376000000},
		{raw: `-2208988800000`, want: -2208988800000},
		{raw: `null`, nil: true},
		{raw: ``, nil: true},
		{raw: `"yesterday"`, nil: true},
		{raw: `9e16`, nil: true},
		{raw: `[1]`, nil: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseTimestampMs(json.RawMessage(tt.raw))
			if tt.nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestPositionUnmarshalNonObject(t *testing.T) {
	for _, raw := range []string{`"somewhere"`, `42`, `[1,2]`} {
		var p Position
		require.NoError(t, json.Unmarshal([]byte(raw), &p), raw)
		assert.False(t, p.IsFinite(), raw)
	}
}

func TestReportFromDocument(t *testing.T) {
	doc := docstore.Document{
		"id":          "woodape_7",
		"datasetKey":  "woodape",
		"title":       "Howls",
		"summary":     "",
		"sourceUrl":   nil,
		"position":    map[string]any{"lat": "49.1", "lng": "abc"},
		"countryCode": "CA",
		"isoDate":     "2019-05-02T00:00:00.000Z",
		"timestampMs": float64(1556755200000),
		"scope":       "global",
	}

	report, err := ReportFromDocument(doc)
	require.NoError(t, err)

	assert.Equal(t, "woodape_7", report.ID)
	assert.Nil(t, report.SourceURL)
	require.NotNil(t, report.Position)
	assert.Equal(t, 49.1, report.Position.Lat)
	assert.True(t, math.IsNaN(report.Position.Lng))
	assert.False(t, report.Position.IsFinite())
	assert.Equal(t, "CA", StringValue(report.CountryCode))
	require.NotNil(t, report.TimestampMs)
	assert.Equal(t, int64(1556755200000), *report.TimestampMs)
	assert.NotNil(t, report.Votes.ByUser)
	assert.NotNil(t, report.Sharing.SharedWithTeamIDs)
}

func TestReportToDocument(t *testing.T) {
	report := Report{
		ID:       "bfro_1",
		Position: &Position{Lat: 45, Lng: math.Inf(1)},
	}

	doc, err := report.ToDocument()
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"lat": 45.0, "lng": nil}, doc["position"])
	assert.Nil(t, doc["countyName"])
	assert.Contains(t, doc, "countyName")
	assert.Equal(t, []any{}, doc["sharing"].(map[string]any)["sharedWithTeamIds"])
	assert.Equal(t, map[string]any{}, doc["votes"].(map[string]any)["byUser"])
}

func TestReportPatchToDocumentOnlySetFields(t *testing.T) {
	title := "New title"
	doc, err := ReportPatch{Title: &title, Votes: &Votes{Up: 1}}.ToDocument()
	require.NoError(t, err)

	assert.Equal(t, "New title", doc["title"])
	assert.Equal(t, map[string]any{"up": 1.0, "down": 0.0, "byUser": map[string]any{}}, doc["votes"])
	assert.NotContains(t, doc, "summary")
	assert.NotContains(t, doc, "triage")
}

func TestHasMinimumInfo(t *testing.T) {
	assert.True(t, HasMinimumInfo("t", "s", "2020-01-01T00:00:00.000Z"))
	assert.False(t, HasMinimumInfo(" ", "s", "2020-01-01T00:00:00.000Z"))
	assert.False(t, HasMinimumInfo("t", "", "2020-01-01T00:00:00.000Z"))
	assert.False(t, HasMinimumInfo("t", "s", ""))
}
