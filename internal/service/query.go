package service

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/odnarb/bigfoot-map/internal/dal"
	"github.com/odnarb/bigfoot-map/internal/sources"
)

// ParseReportQuery turns listing query parameters into a filter. Malformed
// values are ignored rather than rejected.
//
//	datasets                  comma list, lowercased
//	scopes                    comma list, lowercased
//	bounds                    south,west,north,east
//	fromYear, toYear          inclusive calendar years (UTC)
//	includeWithoutCoordinates only the literal "false" disables it
func ParseReportQuery(query url.Values) dal.ReportFilter {
	filter := dal.ReportFilter{
		DatasetKeys: parseList(query.Get("datasets")),
		Scopes:      parseList(query.Get("scopes")),
		Bounds:      ParseBounds(query.Get("bounds")),
	}

	if year, ok := sources.ParseLeadingInt(query.Get("fromYear")); ok {
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
		filter.FromTimestampMs = &from
	}
	if year, ok := sources.ParseLeadingInt(query.Get("toYear")); ok {
		to := time.Date(year, time.December, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC).UnixMilli()
		filter.ToTimestampMs = &to
	}

	include := query.Get("includeWithoutCoordinates") != "false"
	filter.IncludeWithoutCoordinates = &include

	return filter
}

// ParseBounds reads "south,west,north,east". Anything other than exactly
// four finite numbers yields nil.
func ParseBounds(value string) *dal.Bounds {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return nil
	}

	var numbers [4]float64
	for i, part := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || !isFinite(n) {
			return nil
		}
		numbers[i] = n
	}

	return &dal.Bounds{
		South: numbers[0],
		West:  numbers[1],
		North: numbers[2],
		East:  numbers[3],
	}
}

func parseList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
