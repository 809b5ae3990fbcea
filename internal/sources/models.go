package sources

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"
	"github.com/odnarb/bigfoot-map/internal/dal"
)

// Dataset keys
const (
	DatasetBFRO        = "bfro"
	DatasetWoodape     = "woodape"
	DatasetKilmury     = "kilmury"
	DatasetSubmissions = "submissions"
)

// FlexString is a scalar that the source files encode as a string in some
// rows and as a number in others. Numbers keep their literal text; null,
// objects and arrays decode to "".
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		*f = ""
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case 'n', '{', '[':
		*f = ""
	default:
		*f = FlexString(trimmed)
	}
	return nil
}

// String returns the trimmed text.
func (f FlexString) String() string {
	return strings.TrimSpace(string(f))
}

// BFRORow is one entry of the BFRO state map file.
type BFRORow struct {
	BFROReportID  FlexString    `json:"bfroReportId"`
	Name          FlexString    `json:"name"`
	SightingClass FlexString    `json:"sightingClass"`
	Timestamp     FlexString    `json:"timestamp"`
	URL           FlexString    `json:"url"`
	Position      *dal.Position `json:"position"`
	State         FlexString    `json:"state"`
	StateAbbrev   FlexString    `json:"state_abbrev"`
}

// WoodapeRow is one case exported from woodape.org.
type WoodapeRow struct {
	ID              FlexString      `json:"id"`
	CaseNum         FlexString      `json:"case_num"`
	Summary         FlexString      `json:"summary"`
	CaseSubmittedOn FlexString      `json:"case_submitted_on"`
	OccurYear       FlexString      `json:"occur_year"`
	OccurState      FlexString      `json:"occur_state"`
	OccurCounty     FlexString      `json:"occur_county"`
	MapLatitude     json.RawMessage `json:"map_latitude"`
	MapLongitude    json.RawMessage `json:"map_longitude"`
	VideoLink       FlexString      `json:"video_link"`
	ReportClass     FlexString      `json:"report_class"`
}

// KilmuryRow is one entry of the Bobbie Short sightings catalog.
type KilmuryRow struct {
	ID       FlexString      `json:"id"`
	Summary  FlexString      `json:"summary"`
	Date     KilmuryDate     `json:"date"`
	Location KilmuryLocation `json:"location"`
}

type KilmuryDate struct {
	Year FlexString `json:"year"`
}

type KilmuryLocation struct {
	CityState struct {
		State FlexString `json:"state"`
	} `json:"city_state"`
	County  FlexString   `json:"county"`
	Regions []FlexString `json:"regions"`
}

// Datasets is the raw content of all three source files.
type Datasets struct {
	BFRO    map[string][]BFRORow
	Woodape []WoodapeRow
	Kilmury []KilmuryRow
}
