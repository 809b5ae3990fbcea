package export

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/odnarb/bigfoot-map/internal/dal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ToGeoJSON builds a point FeatureCollection. Reports without a finite
// position are left out. Coordinates are [lng, lat].
func ToGeoJSON(reports []dal.Report) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, report := range reports {
		if !report.Position.IsFinite() {
			continue
		}

		feature := geojson.NewFeature(orb.Point{report.Position.Lng, report.Position.Lat})
		feature.Properties = geojson.Properties{
			"id":           report.ID,
			"datasetKey":   report.DatasetKey,
			"title":        report.Title,
			"summary":      report.Summary,
			"isoDate":      report.ISODate,
			"countryCode":  nullable(report.CountryCode),
			"stateCode":    nullable(report.StateCode),
			"countyName":   nullable(report.CountyName),
			"sourceUrl":    nullable(report.SourceURL),
			"triageStatus": orNull(report.Triage.Status),
			"triageTier":   orNull(report.Triage.Tier),
			"votesUp":      report.Votes.Up,
			"votesDown":    report.Votes.Down,
		}
		fc.Append(feature)
	}
	return fc
}

// MarshalGeoJSON renders the collection as indented JSON.
func MarshalGeoJSON(fc *geojson.FeatureCollection) ([]byte, error) {
	body, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode feature collection: %w", err)
	}
	return body, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func orNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
