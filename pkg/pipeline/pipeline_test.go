package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atd-dts/mds-ingest/pkg/config"
	"github.com/atd-dts/mds-ingest/pkg/events"
	"github.com/atd-dts/mds-ingest/pkg/gql"
	"github.com/atd-dts/mds-ingest/pkg/objectstore"
	"github.com/atd-dts/mds-ingest/pkg/schedule"
	"github.com/atd-dts/mds-ingest/pkg/trips"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

// testFernetKey is a throwaway base64 key used only by tests.
const testFernetKey = "cw_0x689RpI-jtRR7oE8h_eQsKImvJapLeSbXpwF4e4="

// fakeS3 is an in-memory object endpoint covering the put and get calls
// the pipeline makes. Versioning is collapsed to last-write-wins.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		key := strings.TrimPrefix(r.URL.Path, "/test-bucket")
		key = strings.TrimPrefix(key, "/")

		switch r.Method {
		case http.MethodPut:
			body := make([]byte, 0, 1024)
			buf := make([]byte, 4096)
			for {
				n, err := r.Body.Read(buf)
				body = append(body, buf[:n]...)
				if err != nil {
					break
				}
			}
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

// seed stores a document without going through the blob client.
func (f *fakeS3) seed(key string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
}

func (f *fakeS3) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

// object returns the stored body as the bucket holds it, before any
// decryption.
func (f *fakeS3) object(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key]
}

// fakeWarehouse answers the GraphQL documents the pipeline issues and
// records every query for assertions.
type fakeWarehouse struct {
	mu      sync.Mutex
	queries []string
	inserts int

	// schedule rows answered to the pending-blocks query.
	schedule []types.ScheduleBlock
	// trips rows answered to the open-data fetch.
	trips []map[string]any
	// rejectTrips lists trip ids whose insert is answered with a
	// GraphQL error.
	rejectTrips []string
}

func (f *fakeWarehouse) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		query := req["query"]

		f.mu.Lock()
		f.queries = append(f.queries, query)
		schedule := f.schedule
		trips := f.trips
		reject := f.rejectTrips
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(query, "fetchPendingSchedules"):
			rows, _ := json.Marshal(schedule)
			fmt.Fprintf(w, `{"data":{"api_schedule":%s}}`, rows)

		case strings.Contains(query, "updateStatus"):
			_, _ = w.Write([]byte(`{"data":{"update_api_schedule":{"affected_rows":1}}}`))

		case strings.Contains(query, "mutation insertTrip"):
			f.mu.Lock()
			f.inserts++
			f.mu.Unlock()
			for _, id := range reject {
				if strings.Contains(query, id) {
					_, _ = w.Write([]byte(`{"errors":[{"message":"constraint violation"}]}`))
					return
				}
			}
			_, _ = w.Write([]byte(`{"data":{"insert_api_trips":{"affected_rows":1}}}`))

		case strings.Contains(query, "getTripStats"):
			_, _ = w.Write([]byte(`{"data":{"api_trips_aggregate":{"aggregate":{"count":2,"avg":{"trip_distance":850,"trip_duration":300},"sum":{"trip_distance":1700}}}}}`))

		case strings.Contains(query, "getTrips"):
			rows, _ := json.Marshal(trips)
			fmt.Fprintf(w, `{"data":{"api_trips":%s}}`, rows)

		default:
			_, _ = w.Write([]byte(`{"errors":[{"message":"unexpected query"}]}`))
		}
	}
}

// insertCount returns how many trip inserts reached the warehouse.
func (f *fakeWarehouse) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}

// recorded returns the captured queries matching the substring.
func (f *fakeWarehouse) recorded(substr string) []string {
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

// fakeFeed serves provider trip pages behind bearer authentication.
type fakeFeed struct {
	mu        sync.Mutex
	trips     []map[string]any
	status    int // non-zero forces an HTTP error answer
	lastQuery url.Values
}

func (f *fakeFeed) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastQuery = r.URL.Query()
		status := f.status
		payload := f.trips
		f.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if status != 0 {
			w.WriteHeader(status)
			return
		}

		env := map[string]any{
			"version": "0.3.0",
			"data":    map[string]any{"trips": payload},
		}
		_ = json.NewEncoder(w).Encode(env)
	}
}

func (f *fakeFeed) query(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery.Get(key)
}

// fakePortal records open-data upsert batches and answers the
// platform's row-count document.
type fakePortal struct {
	mu      sync.Mutex
	batches [][]map[string]any
	errors  int // folded into every answer
}

func (f *fakePortal) handler() http.HandlerFunc {
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

func (f *fakePortal) lastBatch() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

// harness wires an App at a full set of fake services.
type harness struct {
	app       *App
	s3        *fakeS3
	warehouse *fakeWarehouse
	feed      *fakeFeed
	portal    *fakePortal
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		s3:        newFakeS3(),
		warehouse: &fakeWarehouse{},
		feed:      &fakeFeed{},
		portal:    &fakePortal{},
	}

	s3Srv := httptest.NewServer(h.s3.handler())
	warehouseSrv := httptest.NewServer(h.warehouse.handler())
	feedSrv := httptest.NewServer(h.feed.handler())
	portalSrv := httptest.NewServer(h.portal.handler())
	t.Cleanup(s3Srv.Close)
	t.Cleanup(warehouseSrv.Close)
	t.Cleanup(feedSrv.Close)
	t.Cleanup(portalSrv.Close)

	providers := map[string]any{
		"sample_co": map[string]any{
			"provider_name": "sample_co",
			"provider_id":   101,
			"mds_version":   "0.3.0",
			"mds_api_url":   feedSrv.URL,
			"auth_type":     "bearer",
			"token":         "test-token",
			"paging":        false,
			"delay":         0,
			"timeout":       5,
			"max_attempts":  1,
		},
	}
	settings := map[string]any{
		"HASURA_ENDPOINT":       warehouseSrv.URL,
		"HASURA_ADMIN_KEY":      "test-secret",
		"TIME_ZONE":             "US/Central",
		"SOCRATA_DATA_ENDPOINT": portalSrv.URL,
		"SOCRATA_DATASET":       "test-data",
		"SOCRATA_APP_TOKEN":     "app-token",
		"SOCRATA_KEY_ID":        "key-id",
		"SOCRATA_KEY_SECRET":    "key-secret",
	}
	providersDoc, err := json.Marshal(providers)
	require.NoError(t, err)
	settingsDoc, err := json.Marshal(settings)
	require.NoError(t, err)
	h.s3.seed("config/providers_staging.json", providersDoc)
	h.s3.seed("config/settings_staging.json", settingsDoc)

	blobs, err := objectstore.New(objectstore.Config{
		Region:    "us-east-1",
		Endpoint:  strings.TrimPrefix(s3Srv.URL, "http://"),
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "test-bucket",
		Insecure:  true,
		FernetKey: testFernetKey,
	})
	require.NoError(t, err)

	env := config.Env{
		Region:       "us-east-1",
		AccessKey:    "test",
		SecretKey:    "test",
		Bucket:       "test-bucket",
		RunMode:      types.RunModeStaging,
		FernetKey:    testFernetKey,
		MaxThreads:   1,
		ProvidersKey: "config/providers_staging.json",
		SettingsKey:  "config/settings_staging.json",
	}
	cfg := config.NewStore(env)
	require.NoError(t, cfg.Load(context.Background(), blobs))

	warehouse := gql.NewClient(warehouseSrv.URL, "test-secret")
	h.app = &App{
		Config:    cfg,
		Blobs:     blobs,
		Warehouse: warehouse,
		Schedules: schedule.NewRepo(warehouse),
		Factory:   trips.NewFactory(warehouse, nil, "US/Central"),
		Broker:    events.NewBroker(),
	}
	return h
}

func (h *harness) executor(t *testing.T) *Executor {
	t.Helper()
	profile, err := h.app.Config.ProviderProfile("sample_co")
	require.NoError(t, err)
	exec, err := NewExecutor(h.app, profile)
	require.NoError(t, err)
	return exec
}

// seedPayload stores an extracted trips document for the given block
// hour, the way a previous extract stage would have.
func (h *harness) seedPayload(t *testing.T, block types.ScheduleBlock, payload []map[string]any) {
	t.Helper()
	doc := map[string]any{
		"version": "0.3.0",
		"data":    map[string]any{"trips": payload},
	}
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	key := fmt.Sprintf("staging/sample_co/%d/%d/%d/%d/trips.json", block.Year, block.Month, block.Day, block.Hour)
	h.s3.seed(key, body)
}

func testBlock(id int, hour int, status types.Status) types.ScheduleBlock {
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

// sampleTrip builds a trip record that passes schema validation.
func sampleTrip(id string) map[string]any {
	return map[string]any{
		"provider_id":      "a1b2c3d4-0000-0000-0000-000000000101",
		"provider_name":    "sample_co",
		"device_id":        "d1e2f3a4-0000-0000-0000-00000000000" + id[len(id)-1:],
		"vehicle_id":       "VEH-" + id,
		"vehicle_type":     "scooter",
		"trip_id":          id,
		"propulsion_type":  []any{"electric"},
		"route":            sampleRoute(),
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

func sampleRoute() map[string]any {
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
