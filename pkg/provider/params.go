package provider

import (
	"github.com/atd-dts/mds-ingest/pkg/types"
)

// Logical request parameter names. Profiles rename the wire side through
// mds_param_override; the logical side is fixed.
const (
	ParamStartTime = "start_time"
	ParamEndTime   = "end_time"
	ParamDeviceID  = "device_id"
	ParamVehicleID = "vehicle_id"
	ParamBBox      = "bbox"
	ParamPaging    = "paging"
)

// ParamSchema maps logical request parameters to the wire names one MDS
// dialect expects. The schema is data, not behavior: version differences
// between provider dialects are confined to these names.
type ParamSchema map[string]string

// clone returns a copy so per-client overrides never touch the shared
// version tables.
func (s ParamSchema) clone() ParamSchema {
	out := make(ParamSchema, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// applyOverride renames wire parameters by logical key. Unknown logical
// keys are added as-is, matching how profile overrides have always been
// merged.
func (s ParamSchema) applyOverride(override map[string]string) {
	for logical, wire := range override {
		s[logical] = wire
	}
}

// wire returns the wire name for a logical parameter, falling back to
// the logical name itself.
func (s ParamSchema) wire(logical string) string {
	if w, ok := s[logical]; ok {
		return w
	}
	return logical
}

var (
	// schema020 is the original dialect: trips are filtered by their
	// start and end instants directly.
	schema020 = ParamSchema{
		ParamPaging:    "paging",
		ParamStartTime: "start_time",
		ParamEndTime:   "end_time",
		ParamBBox:      "bbox",
		ParamDeviceID:  "device_id",
		ParamVehicleID: "vehicle_id",
	}

	// schema030 renamed the time window to bound the trip end instant.
	// The 0.4 dialect kept the 0.3 names.
	schema030 = ParamSchema{
		ParamPaging:    "paging",
		ParamStartTime: "min_end_time",
		ParamEndTime:   "max_end_time",
		ParamBBox:      "bbox",
		ParamDeviceID:  "device_id",
		ParamVehicleID: "vehicle_id",
	}
)

// schemaForVersion selects the parameter table for a dialect.
func schemaForVersion(v types.MDSVersion) (ParamSchema, bool) {
	switch v {
	case types.V020:
		return schema020, true
	case types.V030, types.V040:
		return schema030, true
	}
	return nil, false
}
