package framework

import (
	"fmt"

	"github.com/atd-dts/mds-ingest/pkg/types"
)

// Block builds a schedule row for 2020-01-01 at the given hour.
func Block(id, hour int, status types.Status) types.ScheduleBlock {
	return types.ScheduleBlock{
		ScheduleID: id,
		ProviderID: 101,
		Year:       2020,
		Month:      1,
		Day:        1,
		Hour:       hour,
		StatusID:   status,
	}
}

// SampleTrip builds one trip record that passes schema validation. The
// id also keys the device and vehicle fields so records stay distinct.
func SampleTrip(id string) map[string]any {
	return map[string]any{
		"provider_id":      "a1b2c3d4-0000-0000-0000-000000000101",
		"provider_name":    "sample_co",
		"device_id":        fmt.Sprintf("d1e2f3a4-0000-0000-0000-%012x", hash(id)),
		"vehicle_id":       "VEH-" + id,
		"vehicle_type":     "scooter",
		"trip_id":          id,
		"propulsion_type":  []any{"electric"},
		"route":            SampleRoute(),
		"trip_duration":    float64(300),
		"trip_distance":    float64(850),
		"accuracy":         float64(5),
		"start_time":       float64(1577858700),
		"end_time":         float64(1577859000),
		"standard_cost":    float64(100),
		"actual_cost":      float64(125),
		"publication_time": nil,
	}
}

// SampleTrips builds n distinct valid trips with sequential ids rooted
// at the prefix.
func SampleTrips(prefix string, n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = SampleTrip(fmt.Sprintf("%s-%d", prefix, i+1))
	}
	return out
}

// WarehouseRow builds an api_trips row in the shape the open-data
// fetch projects.
func WarehouseRow(tripID, deviceID string) map[string]any {
	return map[string]any{
		"trip_id":                tripID,
		"device_id":              map[string]any{"id": deviceID},
		"vehicle_type":           "scooter",
		"trip_duration":          float64(300),
		"trip_distance":          float64(850),
		"start_time":             "2020-01-01T00:05:00",
		"end_time":               "2020-01-01T00:10:00",
		"modified_date":          "2020-01-01T00:15:00",
		"council_district_start": "1",
		"council_district_end":   "1",
		"census_geoid_start":     "48453000100",
		"census_geoid_end":       nil,
	}
}

// SampleRoute builds a two-point feature collection inside Austin.
func SampleRoute() map[string]any {
	point := func(lon, lat float64) map[string]any {
		return map[string]any{
			"type": "Feature",
			"geometry": map[string]any{
				"type":        "Point",
				"coordinates": []any{lon, lat},
			},
		}
	}
	return map[string]any{
		"type":     "FeatureCollection",
		"features": []any{point(-97.7431, 30.2672), point(-97.7505, 30.2729)},
	}
}

// hash folds a string into a small stable integer for fixture ids.
func hash(s string) uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h & 0xffffffffffff
}
