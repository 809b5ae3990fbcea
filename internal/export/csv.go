// Package export renders report listings as CSV and GeoJSON downloads.
package export

import (
	"math"
	"strconv"
	"strings"

	"github.com/odnarb/bigfoot-map/internal/dal"
)

// CSVHeader is the fixed column order of CSV exports.
var CSVHeader = []string{
	"id",
	"datasetKey",
	"title",
	"summary",
	"isoDate",
	"countryCode",
	"stateCode",
	"countyName",
	"latitude",
	"longitude",
	"sourceUrl",
	"triageStatus",
	"triageTier",
	"upVotes",
	"downVotes",
}

// ToCSV renders one header row plus one row per report, joined by "\n"
// with no trailing newline.
func ToCSV(reports []dal.Report) string {
	var b strings.Builder
	b.WriteString(strings.Join(CSVHeader, ","))

	for _, report := range reports {
		lat, lng := "", ""
		if report.Position != nil {
			lat = formatCoordinate(report.Position.Lat)
			lng = formatCoordinate(report.Position.Lng)
		}

		row := []string{
			report.ID,
			report.DatasetKey,
			report.Title,
			report.Summary,
			report.ISODate,
			dal.StringValue(report.CountryCode),
			dal.StringValue(report.StateCode),
			dal.StringValue(report.CountyName),
			lat,
			lng,
			dal.StringValue(report.SourceURL),
			report.Triage.Status,
			report.Triage.Tier,
			strconv.Itoa(report.Votes.Up),
			strconv.Itoa(report.Votes.Down),
		}

		b.WriteByte('\n')
		for i, field := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(EscapeCSVField(field))
		}
	}
	return b.String()
}

// EscapeCSVField quotes a field only when it holds a comma, a double quote,
// CR or LF. Embedded quotes are doubled.
func EscapeCSVField(field string) string {
	if !strings.ContainsAny(field, ",\"\r\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func formatCoordinate(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
