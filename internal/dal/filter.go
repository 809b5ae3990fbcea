package dal

import (
	"slices"

	"github.com/paulmach/orb"
)

// Bounds is an axis-aligned lat/lng box. A box whose west edge is east of
// its east edge matches nothing; the antimeridian is not special-cased.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Bound converts the box to an orb.Bound (x is longitude, y is latitude).
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// ReportFilter narrows a report listing. The zero value matches everything.
type ReportFilter struct {
	DatasetKeys     []string
	Scopes          []string
	FromTimestampMs *int64
	ToTimestampMs   *int64
	Bounds          *Bounds
	// IncludeWithoutCoordinates defaults to true when nil.
	IncludeWithoutCoordinates *bool
}

// Matches reports whether report passes every predicate of the filter.
func (f ReportFilter) Matches(report Report) bool {
	if len(f.DatasetKeys) > 0 && !slices.Contains(f.DatasetKeys, report.DatasetKey) {
		return false
	}
	if len(f.Scopes) > 0 && !slices.Contains(f.Scopes, report.Scope) {
		return false
	}

	// a report without a timestamp cannot satisfy a time bound
	if f.FromTimestampMs != nil {
		if report.TimestampMs == nil || *report.TimestampMs < *f.FromTimestampMs {
			return false
		}
	}
	if f.ToTimestampMs != nil {
		if report.TimestampMs == nil || *report.TimestampMs > *f.ToTimestampMs {
			return false
		}
	}

	if f.IncludeWithoutCoordinates != nil && !*f.IncludeWithoutCoordinates && report.Position == nil {
		return false
	}

	return IsReportInsideBounds(report, f.Bounds)
}

// IsReportInsideBounds reports whether the report's position lies within
// bounds, edges included. Nil bounds always match; a missing or non-finite
// position never matches a real box.
func IsReportInsideBounds(report Report, bounds *Bounds) bool {
	if bounds == nil {
		return true
	}
	if !report.Position.IsFinite() {
		return false
	}
	return bounds.Bound().Contains(orb.Point{report.Position.Lng, report.Position.Lat})
}
