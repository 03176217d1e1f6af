package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atd-dts/mds-ingest/pkg/gql"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

// scheduleFields is the projection selected for every schedule query.
const scheduleFields = `schedule_id
        provider_id
        year
        month
        day
        hour
        status_id`

// Query selects the pending blocks for one provider inside a civil time
// window. The window is half open on the low end: date > TimeMin and
// date <= TimeMax.
type Query struct {
	ProviderID int
	TimeMin    time.Time
	TimeMax    time.Time
	Status     types.Status
	Op         types.StatusOp
	// StatusCheck false omits the status predicate entirely, returning
	// blocks in any state. Used by forced reruns.
	StatusCheck bool
}

// Repo reads and advances schedule blocks through the warehouse. Blocks
// are created by an external scheduler; this type never inserts or
// deletes rows.
type Repo struct {
	client *gql.Client
}

// NewRepo creates a schedule repository over the warehouse client.
func NewRepo(client *gql.Client) *Repo {
	return &Repo{client: client}
}

// renderQuery builds the schedule query document. Caller values pass
// through the shared quoting rules, never raw interpolation.
func renderQuery(q Query) string {
	op := q.Op
	if op == "" {
		op = types.StatusOpEq
	}

	var where strings.Builder
	fmt.Fprintf(&where, "provider_id: { _eq: %d },\n            ", q.ProviderID)
	if q.StatusCheck {
		fmt.Fprintf(&where, "status_id: { %s: %d },\n            ", op, int(q.Status))
	}
	fmt.Fprintf(&where, "date: { _gt: %s },\n            _and: { date: { _lte: %s }}",
		gql.QuoteString(q.TimeMin.Format("2006-01-02 15:04:05")),
		gql.QuoteString(q.TimeMax.Format("2006-01-02 15:04:05")))

	return fmt.Sprintf(`query fetchPendingSchedules {
      api_schedule(
        where: {
            %s
        },
        order_by: { date: asc }
      ) {
        %s
      }
    }`, where.String(), scheduleFields)
}

// QueryPending returns the schedule blocks matching q in ascending date
// order, as ordered by the warehouse.
func (r *Repo) QueryPending(ctx context.Context, q Query) ([]types.ScheduleBlock, error) {
	resp, err := r.client.Request(ctx, renderQuery(q))
	if err != nil {
		return nil, fmt.Errorf("schedule query failed: %w", err)
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("schedule query rejected: %w", err)
	}

	var out struct {
		Schedule []types.ScheduleBlock `json:"api_schedule"`
	}
	if err := resp.DecodeData(&out); err != nil {
		return nil, fmt.Errorf("failed to decode schedule query: %w", err)
	}
	return out.Schedule, nil
}

// UpdateStatus advances one block to a new status, setting any extra
// columns atomically in the same mutation. It returns the number of
// affected rows; zero means the schedule_id does not exist.
func (r *Repo) UpdateStatus(ctx context.Context, scheduleID int, status types.Status, extra map[string]any) (int, error) {
	set := fmt.Sprintf("status_id: %d", int(status))

	// Render extra columns in sorted order so the document is stable.
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set += fmt.Sprintf(",\n            %s: %s", k, gql.FormatValue(extra[k]))
	}

	mutation := fmt.Sprintf(`mutation updateStatus {
      update_api_schedule(
        where: { schedule_id: { _eq: %d }},
        _set: {
            %s
        }
      ) {
        affected_rows
      }
    }`, scheduleID, set)

	resp, err := r.client.Request(ctx, mutation)
	if err != nil {
		return 0, fmt.Errorf("status update failed for schedule %d: %w", scheduleID, err)
	}
	if err := resp.Err(); err != nil {
		return 0, fmt.Errorf("status update rejected for schedule %d: %w", scheduleID, err)
	}

	var out struct {
		Update struct {
			AffectedRows int `json:"affected_rows"`
		} `json:"update_api_schedule"`
	}
	if err := resp.DecodeData(&out); err != nil {
		return 0, fmt.Errorf("failed to decode status update: %w", err)
	}
	return out.Update.AffectedRows, nil
}
