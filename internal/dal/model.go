package dal

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/odnarb/bigfoot-map/internal/docstore"
)

// Report scopes
const (
	ScopePrivate = "private"
	ScopeTeam    = "team"
	ScopeGlobal  = "global"
)

// Triage states
const (
	TriageNeedsInfo = "needs-info"
	TriageNew       = "new"
	TriageInReview  = "in-review"
	TriageQueued    = "queued"
	TriageVetted    = "vetted"
)

// Vote directions
const (
	VoteUp   = "up"
	VoteDown = "down"
)

// Report is one sighting record as stored in the reports collection.
type Report struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"externalId"`
	DatasetKey    string    `json:"datasetKey"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary"`
	SourceURL     *string   `json:"sourceUrl"`
	SourceName    string    `json:"sourceName"`
	Position      *Position `json:"position"`
	CountryCode   *string   `json:"countryCode"`
	StateCode     *string   `json:"stateCode"`
	StateName     *string   `json:"stateName"`
	CountyName    *string   `json:"countyName"`
	SightingClass *string   `json:"sightingClass"`
	ISODate       string    `json:"isoDate"`
	TimestampMs   *int64    `json:"timestampMs"`
	Scope         string    `json:"scope"`
	OwnerUserID   *string   `json:"ownerUserId"`
	TeamID        *string   `json:"teamId"`
	Sharing       Sharing   `json:"sharing"`
	Triage        Triage    `json:"triage"`
	Votes         Votes     `json:"votes"`
	CreatedAt     string    `json:"createdAt"`
	UpdatedAt     string    `json:"updatedAt"`
}

// Position is a WGS84 point. Values that are missing or not numeric decode
// to NaN so callers can tell a malformed position from a real one.
type Position struct {
	Lat float64
	Lng float64
}

// IsFinite reports whether both coordinates are usable numbers.
func (p *Position) IsFinite() bool {
	return p != nil && isFinite(p.Lat) && isFinite(p.Lng)
}

func (p Position) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"lat":`)
	buf.Write(encodeCoordinate(p.Lat))
	buf.WriteString(`,"lng":`)
	buf.Write(encodeCoordinate(p.Lng))
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var raw struct {
		Lat json.RawMessage `json:"lat"`
		Lng json.RawMessage `json:"lng"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		// not an object; keep the report and let bounds checks reject it
		p.Lat, p.Lng = math.NaN(), math.NaN()
		return nil
	}
	p.Lat = ParseCoordinate(raw.Lat)
	p.Lng = ParseCoordinate(raw.Lng)
	return nil
}

// ParseCoordinate reads a JSON number or numeric string. Anything else,
// including null and an absent value, yields NaN.
func ParseCoordinate(raw json.RawMessage) float64 {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return math.NaN()
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return math.NaN()
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return math.NaN()
		}
		return value
	}
	var value float64
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return math.NaN()
	}
	return value
}

// maxTimestampMs is the largest instant a JavaScript Date can hold.
const maxTimestampMs = 8.64e15

// ParseTimestampMs reads a JSON number or numeric string as epoch
// milliseconds, dropping any fractional part. Values that are not usable
// instants yield nil.
func ParseTimestampMs(raw json.RawMessage) *int64 {
	value := ParseCoordinate(raw)
	if !isFinite(value) || math.Abs(value) > maxTimestampMs {
		return nil
	}
	ms := int64(math.Trunc(value))
	return &ms
}

func encodeCoordinate(v float64) []byte {
	if !isFinite(v) {
		return []byte("null")
	}
	return strconv.AppendFloat(nil, v, 'f', -1, 64)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Sharing lists the teams a report is shared with.
type Sharing struct {
	SharedWithTeamIDs []string `json:"sharedWithTeamIds"`
}

// Triage is the review workflow state embedded in each report.
type Triage struct {
	Status              string         `json:"status"`
	Tier                string         `json:"tier"`
	MinimumInfoComplete bool           `json:"minimumInfoComplete"`
	FollowedUpBy        *string        `json:"followedUpBy"`
	StatusHistory       []StatusChange `json:"statusHistory"`
}

// StatusChange is one append-only triage history entry.
type StatusChange struct {
	Status    string `json:"status"`
	ChangedAt string `json:"changedAt"`
	ChangedBy string `json:"changedBy"`
}

// Votes holds the tallies and each voter's latest direction.
type Votes struct {
	Up     int               `json:"up"`
	Down   int               `json:"down"`
	ByUser map[string]string `json:"byUser"`
}

// HasMinimumInfo reports whether the title, summary and date are all present.
func HasMinimumInfo(title, summary, isoDate string) bool {
	return strings.TrimSpace(title) != "" &&
		strings.TrimSpace(summary) != "" &&
		strings.TrimSpace(isoDate) != ""
}

// ReportPatch lists the report fields a caller may change. Nil fields are
// left untouched.
type ReportPatch struct {
	Title     *string  `json:"title,omitempty"`
	Summary   *string  `json:"summary,omitempty"`
	Scope     *string  `json:"scope,omitempty"`
	TeamID    *string  `json:"teamId,omitempty"`
	Sharing   *Sharing `json:"sharing,omitempty"`
	Triage    *Triage  `json:"triage,omitempty"`
	Votes     *Votes   `json:"votes,omitempty"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}

// ReportFromDocument decodes a stored document into a Report.
// timestampMs may be a number or a numeric string.
func ReportFromDocument(doc docstore.Document) (Report, error) {
	var report Report
	fields := make(docstore.Document, len(doc))
	for key, value := range doc {
		fields[key] = value
	}
	timestamp, hasTimestamp := fields["timestampMs"]
	delete(fields, "timestampMs")

	raw, err := json.Marshal(fields)
	if err != nil {
		return report, fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return report, fmt.Errorf("decode report %q: %w", doc.ID(), err)
	}
	if hasTimestamp {
		if rawTimestamp, err := json.Marshal(timestamp); err == nil {
			report.TimestampMs = ParseTimestampMs(rawTimestamp)
		}
	}
	report.fillDefaults()
	return report, nil
}

// ToDocument encodes the report into its stored form.
func (r Report) ToDocument() (docstore.Document, error) {
	r.fillDefaults()
	return toDocument(r)
}

// ToDocument encodes only the fields that are set.
func (p ReportPatch) ToDocument() (docstore.Document, error) {
	if p.Sharing != nil && p.Sharing.SharedWithTeamIDs == nil {
		p.Sharing = &Sharing{SharedWithTeamIDs: []string{}}
	}
	if p.Triage != nil && p.Triage.StatusHistory == nil {
		triage := *p.Triage
		triage.StatusHistory = []StatusChange{}
		p.Triage = &triage
	}
	if p.Votes != nil && p.Votes.ByUser == nil {
		votes := *p.Votes
		votes.ByUser = map[string]string{}
		p.Votes = &votes
	}
	return toDocument(p)
}

func toDocument(v any) (docstore.Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode report document: %w", err)
	}
	return doc, nil
}

// fillDefaults keeps empty collections serialized as [] and {} rather than null.
func (r *Report) fillDefaults() {
	if r.Sharing.SharedWithTeamIDs == nil {
		r.Sharing.SharedWithTeamIDs = []string{}
	}
	if r.Triage.StatusHistory == nil {
		r.Triage.StatusHistory = []StatusChange{}
	}
	if r.Votes.ByUser == nil {
		r.Votes.ByUser = map[string]string{}
	}
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// StringValue dereferences s, treating nil as "".
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
