package framework

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"

	"github.com/atd-dts/mds-ingest/pkg/config"
	"github.com/atd-dts/mds-ingest/pkg/events"
	"github.com/atd-dts/mds-ingest/pkg/gql"
	"github.com/atd-dts/mds-ingest/pkg/objectstore"
	"github.com/atd-dts/mds-ingest/pkg/pipeline"
	"github.com/atd-dts/mds-ingest/pkg/schedule"
	"github.com/atd-dts/mds-ingest/pkg/trips"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

// TestFernetKey is a throwaway base64 key used only by tests.
const TestFernetKey = "cw_0x689RpI-jtRR7oE8h_eQsKImvJapLeSbXpwF4e4="

// Config shapes the fake backend set. Zero values fall back to the
// defaults of DefaultConfig.
type Config struct {
	// Provider is the profile key and provider_name, default sample_co.
	Provider string
	// ProviderID is the numeric warehouse id, default 101.
	ProviderID int
	// Token is the feed's expected bearer token, default test-token.
	Token string
	// Paging enables next-link following on the provider client.
	Paging bool
	// Timeout is the per-request provider timeout in seconds, default 5.
	Timeout int
	// MaxAttempts bounds provider transport attempts, default 1.
	MaxAttempts int
	// MaxPages caps next-link following when set.
	MaxPages int
	// Zone is the civil time zone, default US/Central.
	Zone string
}

// DefaultConfig returns the configuration most scenarios run with: one
// provider, no paging, a single transport attempt.
func DefaultConfig() *Config {
	return &Config{
		Provider:    "sample_co",
		ProviderID:  101,
		Token:       "test-token",
		Timeout:     5,
		MaxAttempts: 1,
		Zone:        "US/Central",
	}
}

func (c *Config) fill() {
	d := DefaultConfig()
	if c.Provider == "" {
		c.Provider = d.Provider
	}
	if c.ProviderID == 0 {
		c.ProviderID = d.ProviderID
	}
	if c.Token == "" {
		c.Token = d.Token
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.Zone == "" {
		c.Zone = d.Zone
	}
}

// Env is a running fake backend set with an App wired at it. Stop shuts
// every fake down; tests defer it right after NewEnv.
type Env struct {
	Config    *Config
	App       *pipeline.App
	Feed      *Feed
	Warehouse *Warehouse
	Store     *ObjectStore
	Portal    *Portal

	servers []*httptest.Server
}

// NewEnv starts the four fakes, seeds the configuration documents and
// builds an App against them.
func NewEnv(cfg *Config) (*Env, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.fill()

	env := &Env{
		Config:    cfg,
		Feed:      NewFeed(cfg.Token),
		Warehouse: NewWarehouse(),
		Store:     NewObjectStore("test-bucket"),
		Portal:    NewPortal(),
	}

	s3Srv := httptest.NewServer(env.Store.handler())
	warehouseSrv := httptest.NewServer(env.Warehouse.handler())
	feedSrv := httptest.NewServer(env.Feed.handler())
	portalSrv := httptest.NewServer(env.Portal.handler())
	env.servers = []*httptest.Server{s3Srv, warehouseSrv, feedSrv, portalSrv}
	env.Feed.baseURL = feedSrv.URL

	profile := map[string]any{
		"provider_name": cfg.Provider,
		"provider_id":   cfg.ProviderID,
		"mds_version":   "0.3.0",
		"mds_api_url":   feedSrv.URL,
		"auth_type":     "bearer",
		"token":         cfg.Token,
		"paging":        cfg.Paging,
		"delay":         0,
		"timeout":       cfg.Timeout,
		"max_attempts":  cfg.MaxAttempts,
	}
	if cfg.MaxPages > 0 {
		profile["max_pages"] = cfg.MaxPages
	}
	providersDoc, err := json.Marshal(map[string]any{cfg.Provider: profile})
	if err != nil {
		env.Stop()
		return nil, err
	}
	settingsDoc, err := json.Marshal(map[string]any{
		"HASURA_ENDPOINT":       warehouseSrv.URL,
		"HASURA_ADMIN_KEY":      "test-secret",
		"TIME_ZONE":             cfg.Zone,
		"SOCRATA_DATA_ENDPOINT": portalSrv.URL,
		"SOCRATA_DATASET":       "test-data",
		"SOCRATA_APP_TOKEN":     "app-token",
		"SOCRATA_KEY_ID":        "key-id",
		"SOCRATA_KEY_SECRET":    "key-secret",
	})
	if err != nil {
		env.Stop()
		return nil, err
	}
	env.Store.Seed("config/providers_staging.json", providersDoc)
	env.Store.Seed("config/settings_staging.json", settingsDoc)

	blobs, err := objectstore.New(objectstore.Config{
		Region:    "us-east-1",
		Endpoint:  strings.TrimPrefix(s3Srv.URL, "http://"),
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "test-bucket",
		Insecure:  true,
		FernetKey: TestFernetKey,
	})
	if err != nil {
		env.Stop()
		return nil, err
	}

	store := config.NewStore(config.Env{
		Region:       "us-east-1",
		AccessKey:    "test",
		SecretKey:    "test",
		Bucket:       "test-bucket",
		RunMode:      types.RunModeStaging,
		FernetKey:    TestFernetKey,
		MaxThreads:   1,
		ProvidersKey: "config/providers_staging.json",
		SettingsKey:  "config/settings_staging.json",
	})
	if err := store.Load(context.Background(), blobs); err != nil {
		env.Stop()
		return nil, err
	}

	warehouse := gql.NewClient(warehouseSrv.URL, "test-secret")
	env.App = &pipeline.App{
		Config:    store,
		Blobs:     blobs,
		Warehouse: warehouse,
		Schedules: schedule.NewRepo(warehouse),
		Factory:   trips.NewFactory(warehouse, nil, cfg.Zone),
		Broker:    events.NewBroker(),
	}
	env.App.Broker.Start()
	return env, nil
}

// Stop shuts down the broker and every fake server.
func (e *Env) Stop() {
	if e.App != nil && e.App.Broker != nil {
		e.App.Broker.Stop()
	}
	for _, srv := range e.servers {
		srv.Close()
	}
}

// Run drives a full orchestrator pass with the given options. The
// provider defaults to the environment's.
func (e *Env) Run(ctx context.Context, opts pipeline.Options) (*types.RunReport, error) {
	if opts.Provider == "" {
		opts.Provider = e.Config.Provider
	}
	return pipeline.NewOrchestrator(e.App, opts).Run(ctx)
}

// SeedPayload stores an extracted trips document for the given block,
// the way a previous extract stage would have.
func (e *Env) SeedPayload(block types.ScheduleBlock, payload []map[string]any) error {
	doc := map[string]any{
		"version": "0.3.0",
		"data":    map[string]any{"trips": payload},
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	e.Store.Seed(e.PayloadKey(block), body)
	return nil
}

// PayloadKey returns the staging object key an extract of the given
// block writes to.
func (e *Env) PayloadKey(block types.ScheduleBlock) string {
	return fmt.Sprintf("staging/%s/%d/%d/%d/%d/trips.json",
		e.Config.Provider, block.Year, block.Month, block.Day, block.Hour)
}
