package trips

import (
	"context"
	"fmt"
	"strings"

	"github.com/atd-dts/mds-ingest/pkg/geo"
	"github.com/atd-dts/mds-ingest/pkg/gql"
	"github.com/atd-dts/mds-ingest/pkg/log"
	"github.com/atd-dts/mds-ingest/pkg/timezone"
)

// insertColumns lists the mutation columns in render order. Columns
// absent from the trip are skipped.
var insertColumns = []string{
	"trip_id",
	"provider_id",
	"provider_name",
	"device_id",
	"vehicle_id",
	"vehicle_type",
	"propulsion_type",
	"trip_duration",
	"trip_distance",
	"accuracy",
	"start_time",
	"end_time",
	"publication_time",
	"standard_cost",
	"actual_cost",
	"parking_verification_url",
	"currency",
	"start_latitude",
	"start_longitude",
	"end_latitude",
	"end_longitude",
	"census_geoid_start",
	"census_geoid_end",
	"council_district_start",
	"council_district_end",
	"orig_cell_id",
	"dest_cell_id",
}

// updateColumns are refreshed when an existing trip_id is re-inserted.
// Only enrichment and timestamp columns move; the rest of the row keeps
// its first-seen values.
var updateColumns = []string{
	"census_geoid_start",
	"census_geoid_end",
	"council_district_start",
	"council_district_end",
	"orig_cell_id",
	"dest_cell_id",
	"start_latitude",
	"start_longitude",
	"end_latitude",
	"end_longitude",
	"start_time",
	"end_time",
}

// Factory builds trip models sharing one warehouse client, geo enricher
// and civil time zone. The enricher may be nil, in which case trips are
// saved without enrichment columns.
type Factory struct {
	client   *gql.Client
	enricher *geo.Enricher
	zone     string
}

// NewFactory wires the shared dependencies for building trips.
func NewFactory(client *gql.Client, enricher *geo.Enricher, zone string) *Factory {
	if zone == "" {
		zone = timezone.DefaultZone
	}
	return &Factory{client: client, enricher: enricher, zone: zone}
}

// Trip wraps one semi-structured provider record through validation,
// enrichment and persistence. A Trip owns its map for its lifetime.
type Trip struct {
	factory  *Factory
	provider string
	data     map[string]any
	errors   map[string][]string
	query    string
}

// New builds a trip model from one raw provider record. Identifier
// fixes for integer-id providers are applied first, then enrichment.
// Enrichment never fails the trip.
func (f *Factory) New(providerName string, data map[string]any) *Trip {
	t := &Trip{factory: f, provider: providerName, data: data}
	if data == nil {
		return t
	}
	if needsIntegerIDFix(providerName) {
		applyIntegerIDFix(data)
	}
	t.enrich()
	return t
}

// ID returns the trip_id, or empty when absent.
func (t *Trip) ID() string {
	id, _ := t.data["trip_id"].(string)
	return id
}

// Data exposes the underlying record, including enrichment columns.
func (t *Trip) Data() map[string]any {
	return t.data
}

// IsValid checks the record against the trip schema and retains the
// reasons for ValidationErrors.
func (t *Trip) IsValid() bool {
	t.errors = TripSchema.Validate(t.data)
	return len(t.errors) == 0
}

// ValidationErrors returns the reasons from the last IsValid call,
// keyed by field name.
func (t *Trip) ValidationErrors() map[string][]string {
	return t.errors
}

// Coordinates returns the trip's longitude and latitude at the route
// start (first feature) or end (last feature).
func (t *Trip) Coordinates(start bool) (lon, lat float64, err error) {
	route, ok := t.data["route"].(map[string]any)
	if !ok {
		return 0, 0, fmt.Errorf("trip has no route")
	}
	features, ok := route["features"].([]any)
	if !ok || len(features) == 0 {
		return 0, 0, fmt.Errorf("route has no features")
	}

	idx := len(features) - 1
	if start {
		idx = 0
	}
	feature, ok := features[idx].(map[string]any)
	if !ok {
		return 0, 0, fmt.Errorf("route feature %d is not an object", idx)
	}
	geometry, ok := feature["geometry"].(map[string]any)
	if !ok {
		return 0, 0, fmt.Errorf("route feature %d has no geometry", idx)
	}
	coords, ok := geometry["coordinates"].([]any)
	if !ok || len(coords) < 2 {
		return 0, 0, fmt.Errorf("route feature %d has no coordinate pair", idx)
	}

	lon, lonOK := floatValue(coords[0])
	lat, latOK := floatValue(coords[1])
	if !lonOK || !latOK {
		return 0, 0, fmt.Errorf("route feature %d has non-numeric coordinates", idx)
	}
	return lon, lat, nil
}

// enrich populates the four coordinate columns and six polygon ids.
// Any failure is logged and skipped; enrichment must never block
// ingestion.
func (t *Trip) enrich() {
	if t.factory.enricher == nil {
		return
	}
	startLon, startLat, err := t.Coordinates(true)
	if err != nil {
		logger := log.WithComponent("trips")
		logger.Debug().Err(err).Str("trip_id", t.ID()).Msg("skipping enrichment")
		return
	}
	endLon, endLat, err := t.Coordinates(false)
	if err != nil {
		logger := log.WithComponent("trips")
		logger.Debug().Err(err).Str("trip_id", t.ID()).Msg("skipping enrichment")
		return
	}

	e := t.factory.enricher
	t.data["start_longitude"] = startLon
	t.data["start_latitude"] = startLat
	t.data["end_longitude"] = endLon
	t.data["end_latitude"] = endLat
	t.data["census_geoid_start"] = e.Lookup(startLon, startLat, geo.LayerCensusTracts)
	t.data["census_geoid_end"] = e.Lookup(endLon, endLat, geo.LayerCensusTracts)
	t.data["council_district_start"] = e.Lookup(startLon, startLat, geo.LayerCouncilDistricts)
	t.data["council_district_end"] = e.Lookup(endLon, endLat, geo.LayerCouncilDistricts)
	t.data["orig_cell_id"] = e.Lookup(startLon, startLat, geo.LayerHexGrid)
	t.data["dest_cell_id"] = e.Lookup(endLon, endLat, geo.LayerHexGrid)
}

// RenderInsert produces the upsert mutation for this trip. Rendering is
// total: malformed values fall back to their raw literal so failed
// trips can still be reported with the document that would have run.
func (t *Trip) RenderInsert() string {
	vals := t.renderValues()

	var objects strings.Builder
	for _, col := range insertColumns {
		lit, ok := vals[col]
		if !ok {
			continue
		}
		fmt.Fprintf(&objects, "            %s: %s,\n", col, lit)
	}

	query := fmt.Sprintf(`mutation insertTrip {
      insert_api_trips(
        objects: {
%s        },
        on_conflict: {
            constraint: trips_trip_id_pk,
            update_columns: [
                %s
            ]
        }
      ) {
        affected_rows
      }
    }`, objects.String(), strings.Join(updateColumns, ",\n                "))

	t.query = query
	return query
}

// Query returns the most recently rendered mutation, rendering on
// demand so error reports always carry a document.
func (t *Trip) Query() string {
	if t.query == "" {
		return t.RenderInsert()
	}
	return t.query
}

// Save validates, renders and sends the trip to the warehouse. It
// returns false with a nil error for validation failures; the reasons
// are available through ValidationErrors.
func (t *Trip) Save(ctx context.Context) (bool, error) {
	if !t.IsValid() {
		return false, nil
	}

	resp, err := t.factory.client.Request(ctx, t.RenderInsert())
	if err != nil {
		return false, fmt.Errorf("trip insert failed: %w", err)
	}
	if err := resp.Err(); err != nil {
		return false, fmt.Errorf("trip insert rejected: %w", err)
	}

	var out struct {
		Insert struct {
			AffectedRows int `json:"affected_rows"`
		} `json:"insert_api_trips"`
	}
	if err := resp.DecodeData(&out); err != nil {
		return false, fmt.Errorf("failed to decode trip insert: %w", err)
	}
	return out.Insert.AffectedRows > 0, nil
}

// renderValues maps insert columns to GraphQL literals, applying the
// optional-field defaults and timestamp formatting.
func (t *Trip) renderValues() map[string]string {
	vals := make(map[string]string, len(insertColumns))
	for _, col := range insertColumns {
		v, present := t.data[col]
		switch col {
		case "start_time", "end_time":
			if present {
				vals[col] = t.formatTimestamp(v)
			}
		case "publication_time":
			// Absent means the provider never published; stamp now.
			// Present-but-null stays null.
			if !present {
				vals[col] = t.nowLiteral()
			} else if v == nil {
				vals[col] = gql.Null
			} else {
				vals[col] = t.formatTimestamp(v)
			}
		case "standard_cost", "actual_cost":
			if !present || v == nil {
				vals[col] = gql.QuoteString("0")
			} else {
				vals[col] = gql.FormatValue(v)
			}
		case "parking_verification_url":
			if present {
				if v == nil {
					vals[col] = gql.Null
				} else {
					vals[col] = gql.FormatValue(v)
				}
			}
		case "propulsion_type":
			if present {
				vals[col] = gql.QuoteString(joinList(v))
			}
		default:
			if present {
				vals[col] = gql.FormatValue(v)
			}
		}
	}
	return vals
}

// formatTimestamp renders an epoch as a quoted civil timestamp.
// Millisecond epochs are truncated first; values that are not epochs
// pass through the shared literal rules.
func (t *Trip) formatTimestamp(v any) string {
	epoch, ok := intValue(v)
	if !ok {
		return gql.FormatValue(v)
	}
	formatted, err := timezone.FormatEpoch(int64(epoch), t.factory.zone)
	if err != nil {
		return gql.FormatValue(v)
	}
	return gql.QuoteString(formatted)
}

func (t *Trip) nowLiteral() string {
	now, err := timezone.Now(t.factory.zone)
	if err != nil {
		return gql.Null
	}
	return gql.QuoteString(now)
}

// joinList flattens a propulsion list to a comma-joined string.
func joinList(v any) string {
	switch items := v.(type) {
	case []string:
		return strings.Join(items, ",")
	case []any:
		parts := make([]string, 0, len(items))
		for _, item := range items {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprintf("%v", v)
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
