package trips

import (
	"encoding/json"
	"fmt"
)

// Kind enumerates the value shapes the trip schema distinguishes.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindList   Kind = "list"
	KindDict   Kind = "dict"
)

// Field is one rule of the trip schema.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Nullable bool
}

// Schema validates semi-structured trip records. Fields not listed in
// the schema are ignored, so enrichment columns and provider extras
// never fail validation.
type Schema []Field

// TripSchema covers the trip shape shared by every supported MDS
// dialect. Costs, publication time and the parking photo URL are
// optional and may arrive null.
var TripSchema = Schema{
	{Name: "provider_id", Kind: KindString, Required: true},
	{Name: "provider_name", Kind: KindString, Required: true},
	{Name: "device_id", Kind: KindString, Required: true},
	{Name: "vehicle_id", Kind: KindString, Required: true},
	{Name: "vehicle_type", Kind: KindString, Required: true},
	{Name: "trip_id", Kind: KindString, Required: true},
	{Name: "propulsion_type", Kind: KindList, Required: true},
	{Name: "route", Kind: KindDict, Required: true},
	{Name: "trip_duration", Kind: KindNumber, Required: true},
	{Name: "trip_distance", Kind: KindNumber, Required: true},
	{Name: "accuracy", Kind: KindNumber, Required: true},
	{Name: "start_time", Kind: KindNumber, Required: true},
	{Name: "end_time", Kind: KindNumber, Required: true},
	{Name: "standard_cost", Kind: KindNumber, Nullable: true},
	{Name: "actual_cost", Kind: KindNumber, Nullable: true},
	{Name: "publication_time", Kind: KindNumber, Nullable: true},
	{Name: "parking_verification_url", Kind: KindString, Nullable: true},
	{Name: "currency", Kind: KindString, Nullable: true},
}

// Validate checks a raw trip against the schema. The result maps field
// names to reasons; an empty map means the trip is valid.
func (s Schema) Validate(trip map[string]any) map[string][]string {
	problems := make(map[string][]string)
	for _, f := range s {
		v, present := trip[f.Name]
		if !present {
			if f.Required {
				problems[f.Name] = append(problems[f.Name], "required field")
			}
			continue
		}
		if v == nil {
			if !f.Nullable {
				problems[f.Name] = append(problems[f.Name], "null value not allowed")
			}
			continue
		}
		if !kindMatches(f.Kind, v) {
			problems[f.Name] = append(problems[f.Name], fmt.Sprintf("must be of %s type", f.Kind))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

func kindMatches(k Kind, v any) bool {
	switch k {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64, json.Number:
			return true
		}
		return false
	case KindList:
		switch v.(type) {
		case []any, []string:
			return true
		}
		return false
	case KindDict:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}
