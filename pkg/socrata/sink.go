package socrata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atd-dts/mds-ingest/pkg/gql"
	"github.com/atd-dts/mds-ingest/pkg/timezone"
)

// ErrNotInitialized is returned by Upsert when the sink was built
// without an endpoint or dataset.
var ErrNotInitialized = errors.New("socrata client is not initialized, check your API credentials")

// DefaultTimeout bounds one platform request.
const DefaultTimeout = 20 * time.Second

// socrataTimeFormat is the floating timestamp the platform ingests.
const socrataTimeFormat = "2006-01-02T15:04:05"

// geoFields are coerced to integer zero when null-like, matching the
// dataset's numeric columns.
var geoFields = []string{
	"council_district_start",
	"council_district_end",
	"census_geoid_start",
	"census_geoid_end",
}

// Config holds the open-data platform connection settings.
type Config struct {
	Endpoint  string // platform host, e.g. data.austintexas.gov
	Dataset   string // dataset identifier
	AppToken  string
	KeyID     string
	KeySecret string
}

// UpsertResult is the platform's per-batch outcome. The JSON keys are
// the platform's own.
type UpsertResult struct {
	Created int `json:"Rows Created"`
	Updated int `json:"Rows Updated"`
	Deleted int `json:"Rows Deleted"`
	Errors  int `json:"Errors"`
}

// Failed reports whether the platform recorded any row errors.
func (r UpsertResult) Failed() bool { return r.Errors > 0 }

func (r UpsertResult) String() string {
	return fmt.Sprintf("created=%d updated=%d deleted=%d errors=%d", r.Created, r.Updated, r.Deleted, r.Errors)
}

// Sink publishes one provider's warehouse trips to an open-data
// dataset. Fetch and Upsert are separate so runs can be inspected or
// dry-run between the two.
type Sink struct {
	provider  string
	cfg       Config
	warehouse *gql.Client
	http      *http.Client
	zone      string
}

// New builds a sink. The warehouse client supplies trips; cfg addresses
// the platform. Zone names the civil time zone for the derived
// *_us_central columns.
func New(providerName string, cfg Config, warehouse *gql.Client, zone string) *Sink {
	if zone == "" {
		zone = timezone.DefaultZone
	}
	return &Sink{
		provider:  providerName,
		cfg:       cfg,
		warehouse: warehouse,
		http:      &http.Client{Timeout: DefaultTimeout},
		zone:      zone,
	}
}

// WithHTTPClient overrides the platform HTTP client.
func (s *Sink) WithHTTPClient(h *http.Client) *Sink {
	s.http = h
	return s
}

// FetchQuery renders the warehouse projection the dataset expects for
// trips with end_time in [timeMin, timeMax).
func (s *Sink) FetchQuery(timeMin, timeMax string) string {
	return fmt.Sprintf(`query getTrips {
      api_trips(
        where: {
            provider: { provider_name: { _eq: %s }},
            end_time: { _gte: %s },
            _and: { end_time: { _lt: %s }}
        }
      ) {
        trip_id: id
        device_id: device { id }
        vehicle_type
        trip_duration
        trip_distance
        start_time
        end_time
        modified_date
        council_district_start
        council_district_end
        census_geoid_start
        census_geoid_end
      }
    }`, gql.QuoteString(s.provider), gql.QuoteString(timeMin), gql.QuoteString(timeMax))
}

// Fetch pulls the provider's trips for the range from the warehouse.
func (s *Sink) Fetch(ctx context.Context, timeMin, timeMax string) ([]map[string]any, error) {
	resp, err := s.warehouse.Request(ctx, s.FetchQuery(timeMin, timeMax))
	if err != nil {
		return nil, fmt.Errorf("trip fetch failed: %w", err)
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("trip fetch rejected: %w", err)
	}

	var out struct {
		Trips []map[string]any `json:"api_trips"`
	}
	if err := resp.DecodeData(&out); err != nil {
		return nil, fmt.Errorf("failed to decode trip fetch: %w", err)
	}
	return out.Trips, nil
}

// Normalize reshapes warehouse rows into platform rows: device_id is
// flattened, timestamps become floating platform timestamps plus civil
// zone variants, calendar fields are derived from the end time, and
// null-like geo identifiers become zero.
func (s *Sink) Normalize(records []map[string]any) ([]map[string]any, error) {
	for i, rec := range records {
		if err := s.normalizeRecord(rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return records, nil
}

func (s *Sink) normalizeRecord(rec map[string]any) error {
	flattenDeviceID(rec)

	startTime, err := parseTimestamp(rec["start_time"])
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	endTime, err := parseTimestamp(rec["end_time"])
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	modified, err := parseTimestamp(rec["modified_date"])
	if err != nil {
		return fmt.Errorf("modified_date: %w", err)
	}

	loc, err := time.LoadLocation(s.zone)
	if err != nil {
		return fmt.Errorf("failed to load time zone %s: %w", s.zone, err)
	}

	rec["start_time"] = startTime.Format(socrataTimeFormat)
	rec["end_time"] = endTime.Format(socrataTimeFormat)
	rec["modified_date"] = modified.Format(socrataTimeFormat)
	rec["start_time_us_central"] = startTime.In(loc).Format(socrataTimeFormat)
	rec["end_time_us_central"] = endTime.In(loc).Format(socrataTimeFormat)
	rec["year"] = endTime.Year()
	rec["month"] = int(endTime.Month())
	rec["hour"] = endTime.Hour()
	// Weekday with Monday as 0, the convention the dataset has always
	// published.
	rec["day_of_week"] = (int(endTime.Weekday()) + 6) % 7

	for _, field := range geoFields {
		v, ok := rec[field]
		if !ok || v == nil || v == "None" || v == "" {
			rec[field] = 0
		}
	}
	return nil
}

// Upsert posts the rows to the platform and returns its per-batch
// result. An empty batch is still posted; the platform answers with
// zero counts.
func (s *Sink) Upsert(ctx context.Context, records []map[string]any) (*UpsertResult, error) {
	if s.cfg.Endpoint == "" || s.cfg.Dataset == "" {
		return nil, ErrNotInitialized
	}
	if records == nil {
		records = []map[string]any{}
	}

	body, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upsert batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.resourceURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.AppToken != "" {
		req.Header.Set("X-App-Token", s.cfg.AppToken)
	}
	if s.cfg.KeyID != "" {
		req.SetBasicAuth(s.cfg.KeyID, s.cfg.KeySecret)
	}

	res, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upsert request failed: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upsert response: %w", err)
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("platform returned status %d: %s", res.StatusCode, bytes.TrimSpace(raw))
	}

	var result UpsertResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode upsert response: %w", err)
	}
	return &result, nil
}

func (s *Sink) resourceURL() string {
	endpoint := s.cfg.Endpoint
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	return strings.TrimRight(endpoint, "/") + "/resource/" + s.cfg.Dataset + ".json"
}

// flattenDeviceID unwraps the warehouse's device relationship into the
// bare identifier the dataset stores.
func flattenDeviceID(rec map[string]any) {
	if device, ok := rec["device_id"].(map[string]any); ok {
		if id, ok := device["id"].(string); ok {
			rec["device_id"] = id
		}
	}
}

// parseTimestamp accepts the warehouse's timestamptz and naive forms.
func parseTimestamp(v any) (time.Time, error) {
	str, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("not a timestamp string: %v", v)
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.999999-07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, str); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", str)
}
