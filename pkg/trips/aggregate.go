package trips

import (
	"context"
	"fmt"

	"github.com/atd-dts/mds-ingest/pkg/gql"
)

// Aggregate is the warehouse roll-up for one provider and time range,
// reported at the end of composite runs.
type Aggregate struct {
	Count       int
	AvgDistance float64
	AvgDuration float64
	TotalMeters float64
}

// String renders the roll-up for run logs.
func (a Aggregate) String() string {
	return fmt.Sprintf("trips=%d avg_distance=%.1fm avg_duration=%.1fs total=%.1fm",
		a.Count, a.AvgDistance, a.AvgDuration, a.TotalMeters)
}

// AggregateQuery renders the roll-up document for one provider and a
// half-open civil end_time range [timeMin, timeMax).
func AggregateQuery(providerName, timeMin, timeMax string) string {
	return fmt.Sprintf(`query getTripStats {
      api_trips_aggregate(
        where: {
            provider: { provider_name: { _eq: %s }},
            end_time: { _gte: %s },
            _and: { end_time: { _lt: %s }}
        }
      ) {
        aggregate {
          count
          avg {
            trip_distance
            trip_duration
          }
          sum {
            trip_distance
          }
        }
      }
    }`, gql.QuoteString(providerName), gql.QuoteString(timeMin), gql.QuoteString(timeMax))
}

// FetchAggregate runs the roll-up against the warehouse. Averages and
// sums are zero when the range holds no trips.
func FetchAggregate(ctx context.Context, client *gql.Client, providerName, timeMin, timeMax string) (*Aggregate, error) {
	resp, err := client.Request(ctx, AggregateQuery(providerName, timeMin, timeMax))
	if err != nil {
		return nil, fmt.Errorf("trip aggregate failed: %w", err)
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("trip aggregate rejected: %w", err)
	}

	var out struct {
		Agg struct {
			Aggregate struct {
				Count int `json:"count"`
				Avg   struct {
					TripDistance float64 `json:"trip_distance"`
					TripDuration float64 `json:"trip_duration"`
				} `json:"avg"`
				Sum struct {
					TripDistance float64 `json:"trip_distance"`
				} `json:"sum"`
			} `json:"aggregate"`
		} `json:"api_trips_aggregate"`
	}
	if err := resp.DecodeData(&out); err != nil {
		return nil, fmt.Errorf("failed to decode trip aggregate: %w", err)
	}
	agg := out.Agg.Aggregate
	return &Aggregate{
		Count:       agg.Count,
		AvgDistance: agg.Avg.TripDistance,
		AvgDuration: agg.Avg.TripDuration,
		TotalMeters: agg.Sum.TripDistance,
	}, nil
}
