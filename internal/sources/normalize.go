package sources

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/odnarb/bigfoot-map/internal/dal"
)

// Triage tiers
const (
	TierUnreviewed       = "unreviewed"
	TierInsufficientInfo = "insufficient-info"
)

// SystemActor is recorded as changedBy when no user made the change.
const SystemActor = "system"

// SentinelDate is used when a source row carries no usable date.
var SentinelDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// Fractional seconds are accepted after any seconds field.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

var canadianProvinces = map[string]bool{
	"AB": true, "BC": true, "MB": true, "NB": true, "NL": true, "NS": true, "NT": true,
	"NU": true, "ON": true, "PE": true, "QC": true, "SK": true, "YT": true,
}

// DateParts is a partial calendar date. Zero fields are unknown.
type DateParts struct {
	Year  int
	Month int
	Day   int
}

// NormalizedDate is an instant in both report encodings.
type NormalizedDate struct {
	ISODate     string
	TimestampMs int64
}

func newNormalizedDate(t time.Time) NormalizedDate {
	t = t.UTC()
	return NormalizedDate{
		ISODate:     t.Format(dal.ISOLayout),
		TimestampMs: t.UnixMilli(),
	}
}

// NormalizeDate prefers a parseable ISO string, then the year (month and
// day default to 1, month clamped to 1..12), then SentinelDate.
func NormalizeDate(iso string, parts *DateParts) NormalizedDate {
	if t, ok := ParseISODate(iso); ok {
		return newNormalizedDate(t)
	}

	if parts != nil && parts.Year != 0 {
		month := parts.Month
		if month == 0 {
			month = 1
		}
		month = max(1, min(12, month))
		day := parts.Day
		if day == 0 {
			day = 1
		}
		return newNormalizedDate(time.Date(parts.Year, time.Month(month), day, 0, 0, 0, 0, time.UTC))
	}

	return newNormalizedDate(SentinelDate)
}

// ParseISODate parses the ISO-8601 shapes found in the sources. Strings
// without a zone are read as UTC.
func ParseISODate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseLeadingInt reads the leading base-10 integer of s, ignoring
// surrounding space and any trailing text ("1978?" is 1978).
func ParseLeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsCanadianProvince reports whether code is a Canadian province or
// territory abbreviation.
func IsCanadianProvince(code string) bool {
	return canadianProvinces[strings.ToUpper(strings.TrimSpace(code))]
}

// NormalizeBFROReports flattens the state map. States are visited in
// sorted order so repeated runs produce the same sequence.
func NormalizeBFROReports(byState map[string][]BFRORow) []dal.Report {
	states := make([]string, 0, len(byState))
	for state := range byState {
		states = append(states, state)
	}
	sort.Strings(states)

	reports := make([]dal.Report, 0)
	for _, state := range states {
		for _, row := range byState[state] {
			externalID := row.BFROReportID.String()
			name := row.Name.String()

			title := name
			if title == "" {
				title = "BFRO report"
			}
			stateCode := row.StateAbbrev.String()
			if stateCode == "" {
				stateCode = state
			}

			date := NormalizeDate(row.Timestamp.String(), nil)
			reports = append(reports, dal.Report{
				ID:            "bfro_" + externalID,
				ExternalID:    externalID,
				DatasetKey:    DatasetBFRO,
				Title:         title,
				Summary:       name,
				SourceURL:     dal.StringPtr(row.URL.String()),
				SourceName:    "BFRO",
				Position:      row.Position,
				CountryCode:   dal.StringPtr("US"),
				StateCode:     dal.StringPtr(stateCode),
				StateName:     dal.StringPtr(row.State.String()),
				SightingClass: dal.StringPtr(row.SightingClass.String()),
				ISODate:       date.ISODate,
				TimestampMs:   &date.TimestampMs,
			})
		}
	}
	return reports
}

// NormalizeWoodapeReports maps woodape.org cases onto reports.
func NormalizeWoodapeReports(rows []WoodapeRow) []dal.Report {
	reports := make([]dal.Report, 0, len(rows))
	for _, row := range rows {
		externalID := row.ID.String()
		summary := row.Summary.String()

		title := summary
		if title == "" {
			caseRef := row.CaseNum.String()
			if caseRef == "" {
				caseRef = externalID
			}
			title = "Woodape case " + caseRef
		}

		var position *dal.Position
		lat := dal.ParseCoordinate(row.MapLatitude)
		lng := dal.ParseCoordinate(row.MapLongitude)
		if candidate := (&dal.Position{Lat: lat, Lng: lng}); candidate.IsFinite() {
			position = candidate
		}

		var parts *DateParts
		if year, ok := ParseLeadingInt(row.OccurYear.String()); ok {
			parts = &DateParts{Year: year}
		}
		date := NormalizeDate(row.CaseSubmittedOn.String(), parts)

		stateCode := row.OccurState.String()
		country := "US"
		if IsCanadianProvince(stateCode) {
			country = "CA"
		}

		reports = append(reports, dal.Report{
			ID:            "woodape_" + externalID,
			ExternalID:    externalID,
			DatasetKey:    DatasetWoodape,
			Title:         title,
			Summary:       summary,
			SourceURL:     dal.StringPtr(row.VideoLink.String()),
			SourceName:    "Woodape",
			Position:      position,
			CountryCode:   dal.StringPtr(country),
			StateCode:     dal.StringPtr(stateCode),
			CountyName:    dal.StringPtr(row.OccurCounty.String()),
			SightingClass: dal.StringPtr(row.ReportClass.String()),
			ISODate:       date.ISODate,
			TimestampMs:   &date.TimestampMs,
		})
	}
	return reports
}

// NormalizeKilmuryReports maps catalog entries onto reports. The catalog
// has no coordinates and only a year.
func NormalizeKilmuryReports(rows []KilmuryRow) []dal.Report {
	reports := make([]dal.Report, 0, len(rows))
	for _, row := range rows {
		externalID := row.ID.String()
		summary := row.Summary.String()

		title := summary
		if title == "" {
			title = "Kilmury entry " + externalID
		}

		var parts *DateParts
		if year, ok := ParseLeadingInt(row.Date.Year.String()); ok {
			parts = &DateParts{Year: year}
		}
		date := NormalizeDate("", parts)

		country := "US"
		for _, region := range row.Location.Regions {
			if strings.Contains(strings.ToLower(string(region)), "canada") {
				country = "CA"
				break
			}
		}

		state := row.Location.CityState.State.String()
		reports = append(reports, dal.Report{
			ID:          "kilmury_" + externalID,
			ExternalID:  externalID,
			DatasetKey:  DatasetKilmury,
			Title:       title,
			Summary:     summary,
			SourceName:  "Kilmury",
			CountryCode: dal.StringPtr(country),
			StateCode:   dal.StringPtr(state),
			StateName:   dal.StringPtr(state),
			CountyName:  dal.StringPtr(row.Location.County.String()),
			ISODate:     date.ISODate,
			TimestampMs: &date.TimestampMs,
		})
	}
	return reports
}

// BuildDefaultTriage derives the initial triage state from how complete
// the report is.
func BuildDefaultTriage(report dal.Report, now time.Time) dal.Triage {
	complete := dal.HasMinimumInfo(report.Title, report.Summary, report.ISODate)

	status, tier := dal.TriageNew, TierUnreviewed
	if !complete {
		status, tier = dal.TriageNeedsInfo, TierInsufficientInfo
	}

	return dal.Triage{
		Status:              status,
		Tier:                tier,
		MinimumInfoComplete: complete,
		FollowedUpBy:        nil,
		StatusHistory: []dal.StatusChange{{
			Status:    status,
			ChangedAt: now.UTC().Format(dal.ISOLayout),
			ChangedBy: SystemActor,
		}},
	}
}

// BuildSeedDocument turns a normalized report into a globally visible
// report with default triage and no votes.
func BuildSeedDocument(report dal.Report, now time.Time) dal.Report {
	stamp := now.UTC().Format(dal.ISOLayout)

	report.Scope = dal.ScopeGlobal
	report.OwnerUserID = nil
	report.TeamID = nil
	report.Sharing = dal.Sharing{SharedWithTeamIDs: []string{}}
	report.Triage = BuildDefaultTriage(report, now)
	report.Votes = dal.Votes{ByUser: map[string]string{}}
	report.CreatedAt = stamp
	report.UpdatedAt = stamp
	return report
}

// BuildSeedDocuments normalizes every dataset into seed-ready reports,
// in BFRO, Woodape, Kilmury order.
func BuildSeedDocuments(datasets *Datasets, now time.Time) []dal.Report {
	normalized := NormalizeBFROReports(datasets.BFRO)
	normalized = append(normalized, NormalizeWoodapeReports(datasets.Woodape)...)
	normalized = append(normalized, NormalizeKilmuryReports(datasets.Kilmury)...)

	seeds := make([]dal.Report, 0, len(normalized))
	for _, report := range normalized {
		seeds = append(seeds, BuildSeedDocument(report, now))
	}
	return seeds
}
