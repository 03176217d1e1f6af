package framework

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/atd-dts/mds-ingest/pkg/types"
)

// Feed serves provider trip pages the way an MDS endpoint does: bearer
// authentication, the version/data/trips envelope and a links.next URL
// between pages. It records every request's query parameters.
type Feed struct {
	mu       sync.Mutex
	pages    [][]map[string]any
	token    string
	status   int           // non-zero forces an HTTP error answer
	hang     time.Duration // non-zero delays every answer
	requests []map[string][]string
	baseURL  string
}

// NewFeed creates a feed that accepts the given bearer token and
// answers a single empty page.
func NewFeed(token string) *Feed {
	return &Feed{token: token, pages: [][]map[string]any{nil}}
}

// SetTrips makes the feed answer one page holding the given trips.
func (f *Feed) SetTrips(trips []map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = [][]map[string]any{trips}
}

// SetPages makes the feed answer a paged result, one call per page,
// chained through links.next.
func (f *Feed) SetPages(pages [][]map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = pages
}

// SetStatus forces every answer to the given HTTP status code.
func (f *Feed) SetStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = code
}

// SetHang delays every answer, long enough for client timeouts to fire.
func (f *Feed) SetHang(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hang = d
}

// Requests returns the query parameters of every request received, in
// arrival order.
func (f *Feed) Requests() []map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string][]string, len(f.requests))
	copy(out, f.requests)
	return out
}

// RequestCount returns how many requests the feed has received.
func (f *Feed) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *Feed) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, map[string][]string(r.URL.Query()))
		pages := f.pages
		status := f.status
		hang := f.hang
		base := f.baseURL
		token := f.token
		f.mu.Unlock()

		if hang > 0 {
			select {
			case <-time.After(hang):
			case <-r.Context().Done():
				return
			}
		}
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if status != 0 {
			w.WriteHeader(status)
			return
		}

		page := 1
		if n, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && n > 0 {
			page = n
		}
		var trips []map[string]any
		if page <= len(pages) {
			trips = pages[page-1]
		}

		env := map[string]any{
			"version": "0.3.0",
			"data":    map[string]any{"trips": trips},
		}
		if page < len(pages) {
			env["links"] = map[string]any{
				"next": fmt.Sprintf("%s/trips?page=%d", base, page+1),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(env)
	}
}

var (
	reScheduleID = regexp.MustCompile(`schedule_id:\s*\{\s*_eq:\s*(\d+)`)
	reStatusSet  = regexp.MustCompile(`status_id:\s*(-?\d+)`)
	reStatusPred = regexp.MustCompile(`status_id:\s*\{\s*(_\w+):\s*(-?\d+)`)
	reTripID     = regexp.MustCompile(`trip_id:\s*"([^"]+)"`)
)

// Warehouse answers the GraphQL documents the pipeline issues. Schedule
// rows honor status updates and status predicates, so a rerun against
// the same warehouse sees the state the first run left behind.
type Warehouse struct {
	mu       sync.Mutex
	schedule []types.ScheduleBlock
	trips    []map[string]any
	reject   []string
	queries  []string
	inserted []string
}

// NewWarehouse creates an empty warehouse.
func NewWarehouse() *Warehouse {
	return &Warehouse{}
}

// SeedBlocks loads schedule rows for the pending-blocks query.
func (f *Warehouse) SeedBlocks(blocks ...types.ScheduleBlock) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedule = append(f.schedule, blocks...)
}

// SetTrips loads the rows answered to the open-data fetch.
func (f *Warehouse) SetTrips(trips []map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trips = trips
}

// RejectTrips answers a GraphQL error to any insert naming one of the
// given trip ids.
func (f *Warehouse) RejectTrips(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reject = append(f.reject, ids...)
}

// StatusOf returns the current status of a schedule row.
func (f *Warehouse) StatusOf(scheduleID int) (types.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.schedule {
		if b.ScheduleID == scheduleID {
			return b.StatusID, true
		}
	}
	return 0, false
}

// InsertCount returns how many trip inserts reached the warehouse.
func (f *Warehouse) InsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

// InsertedTripIDs returns the trip ids of every insert received, in
// arrival order and including duplicates.
func (f *Warehouse) InsertedTripIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.inserted))
	copy(out, f.inserted)
	return out
}

// Recorded returns the captured queries matching the substring.
func (f *Warehouse) Recorded(substr string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, q := range f.queries {
		if strings.Contains(q, substr) {
			out = append(out, q)
		}
	}
	return out
}

func (f *Warehouse) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		query := req["query"]

		f.mu.Lock()
		defer f.mu.Unlock()
		f.queries = append(f.queries, query)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(query, "fetchPendingSchedules"):
			rows, _ := json.Marshal(f.selectBlocks(query))
			fmt.Fprintf(w, `{"data":{"api_schedule":%s}}`, rows)

		case strings.Contains(query, "updateStatus"):
			affected := f.applyUpdate(query)
			fmt.Fprintf(w, `{"data":{"update_api_schedule":{"affected_rows":%d}}}`, affected)

		case strings.Contains(query, "mutation insertTrip"):
			id := ""
			if m := reTripID.FindStringSubmatch(query); m != nil {
				id = m[1]
			}
			for _, rej := range f.reject {
				if id == rej {
					_, _ = w.Write([]byte(`{"errors":[{"message":"constraint violation"}]}`))
					return
				}
			}
			f.inserted = append(f.inserted, id)
			_, _ = w.Write([]byte(`{"data":{"insert_api_trips":{"affected_rows":1}}}`))

		case strings.Contains(query, "getTripStats"):
			_, _ = w.Write([]byte(`{"data":{"api_trips_aggregate":{"aggregate":{"count":2,"avg":{"trip_distance":850,"trip_duration":300},"sum":{"trip_distance":1700}}}}}`))

		case strings.Contains(query, "getTrips"):
			rows, _ := json.Marshal(f.trips)
			fmt.Fprintf(w, `{"data":{"api_trips":%s}}`, rows)

		default:
			_, _ = w.Write([]byte(`{"errors":[{"message":"unexpected query"}]}`))
		}
	}
}

// selectBlocks filters schedule rows by the query's status predicate.
// Date bounds are not interpreted; tests seed blocks inside the window
// they run.
func (f *Warehouse) selectBlocks(query string) []types.ScheduleBlock {
	m := reStatusPred.FindStringSubmatch(query)
	if m == nil {
		return f.schedule
	}
	op := m[1]
	want, _ := strconv.Atoi(m[2])

	var out []types.ScheduleBlock
	for _, b := range f.schedule {
		got := int(b.StatusID)
		keep := false
		switch op {
		case "_eq":
			keep = got == want
		case "_lt":
			keep = got < want
		case "_lte":
			keep = got <= want
		case "_gt":
			keep = got > want
		case "_gte":
			keep = got >= want
		case "_neq":
			keep = got != want
		}
		if keep {
			out = append(out, b)
		}
	}
	return out
}

// applyUpdate patches the schedule row named by an updateStatus
// mutation and returns the affected row count.
func (f *Warehouse) applyUpdate(query string) int {
	idMatch := reScheduleID.FindStringSubmatch(query)
	statusMatch := reStatusSet.FindStringSubmatch(query)
	if idMatch == nil || statusMatch == nil {
		return 0
	}
	id, _ := strconv.Atoi(idMatch[1])
	status, _ := strconv.Atoi(statusMatch[1])

	affected := 0
	for i := range f.schedule {
		if f.schedule[i].ScheduleID == id {
			f.schedule[i].StatusID = types.Status(status)
			affected++
		}
	}
	return affected
}

// ObjectStore is an in-memory blob endpoint covering the put and get
// calls the pipeline makes. Versioning is collapsed to last-write-wins.
type ObjectStore struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

// NewObjectStore creates an empty store answering for the given bucket.
func NewObjectStore(bucket string) *ObjectStore {
	return &ObjectStore{bucket: bucket, objects: map[string][]byte{}}
}

// Seed stores a document without going through the blob client.
func (f *ObjectStore) Seed(key string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
}

// Has reports whether a key holds an object.
func (f *ObjectStore) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

// Object returns the stored body as the bucket holds it, before any
// decryption.
func (f *ObjectStore) Object(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key]
}

func (f *ObjectStore) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		key := strings.TrimPrefix(r.URL.Path, "/"+f.bucket)
		key = strings.TrimPrefix(key, "/")

		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			f.objects[key] = body
			w.Header().Set("x-amz-version-id", "v1")
			w.Header().Set("ETag", `"fake"`)
			w.WriteHeader(http.StatusOK)

		case http.MethodGet:
			body, ok := f.objects[key]
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
				return
			}
			_, _ = w.Write(body)

		default:
			w.WriteHeader(http.StatusOK)
		}
	}
}

// Portal records open-data upsert batches and answers the platform's
// row-count document.
type Portal struct {
	mu      sync.Mutex
	batches [][]map[string]any
	errors  int // folded into every answer
}

// NewPortal creates a portal that accepts every batch.
func NewPortal() *Portal {
	return &Portal{}
}

// SetErrors makes every answer report the given error count.
func (f *Portal) SetErrors(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = n
}

// Batches returns every upsert batch received.
func (f *Portal) Batches() [][]map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]map[string]any, len(f.batches))
	copy(out, f.batches)
	return out
}

// LastBatch returns the most recent upsert batch, or nil.
func (f *Portal) LastBatch() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

func (f *Portal) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var batch []map[string]any
		_ = json.NewDecoder(r.Body).Decode(&batch)

		f.mu.Lock()
		f.batches = append(f.batches, batch)
		errors := f.errors
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"Rows Created":%d,"Rows Updated":0,"Rows Deleted":0,"Errors":%d}`, len(batch)-errors, errors)
	}
}
