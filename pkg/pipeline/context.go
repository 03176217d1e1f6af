package pipeline

import (
	"context"
	"fmt"

	"github.com/atd-dts/mds-ingest/pkg/config"
	"github.com/atd-dts/mds-ingest/pkg/events"
	"github.com/atd-dts/mds-ingest/pkg/geo"
	"github.com/atd-dts/mds-ingest/pkg/gql"
	"github.com/atd-dts/mds-ingest/pkg/log"
	"github.com/atd-dts/mds-ingest/pkg/objectstore"
	"github.com/atd-dts/mds-ingest/pkg/schedule"
	"github.com/atd-dts/mds-ingest/pkg/socrata"
	"github.com/atd-dts/mds-ingest/pkg/trips"
)

// App bundles the shared clients a pipeline run needs. Every field is
// immutable after Bootstrap and safe to share across workers; the
// per-block provider client is the only component built per use.
type App struct {
	Config    *config.Store
	Blobs     *objectstore.Store
	Warehouse *gql.Client
	Schedules *schedule.Repo
	Enricher  *geo.Enricher
	Factory   *trips.Factory
	Broker    *events.Broker
}

// Bootstrap wires the full client set from the environment: the blob
// store, the two configuration documents, the warehouse client, the
// schedule repository, the geography enricher and the trip factory.
// Configuration errors are fatal here rather than somewhere mid-run.
func Bootstrap(ctx context.Context) (*App, error) {
	env := config.FromEnv()

	blobs, err := objectstore.New(objectstore.Config{
		Region:    env.Region,
		AccessKey: env.AccessKey,
		SecretKey: env.SecretKey,
		Bucket:    env.Bucket,
		FernetKey: env.FernetKey,
	})
	if err != nil {
		return nil, err
	}

	cfg := config.NewStore(env)
	if err := cfg.Load(ctx, blobs); err != nil {
		return nil, err
	}

	endpoint := cfg.HasuraEndpoint()
	if endpoint == "" {
		return nil, fmt.Errorf("%w: HASURA_ENDPOINT setting", config.ErrConfigMissing)
	}

	app := &App{
		Config:    cfg,
		Blobs:     blobs,
		Warehouse: gql.NewClient(endpoint, cfg.HasuraAdminKey()),
		Broker:    events.NewBroker(),
	}
	app.Schedules = schedule.NewRepo(app.Warehouse)

	// The geography layers are loaded as a set. Without them trips are
	// stored unenriched, which the factory tolerates.
	if env.CensusGeoJSON != "" || env.DistrictsGeoJSON != "" || env.HexGeoJSON != "" {
		enricher, err := geo.NewEnricher(env.CensusGeoJSON, env.DistrictsGeoJSON, env.HexGeoJSON)
		if err != nil {
			return nil, err
		}
		app.Enricher = enricher
	} else {
		logger := log.WithComponent("pipeline")
		logger.Warn().Msg("no geography layers configured, trips will not be enriched")
	}

	app.Factory = trips.NewFactory(app.Warehouse, app.Enricher, cfg.TimeZone())
	return app, nil
}

// SocrataSink builds the open data sink for one provider from the
// settings document.
func (a *App) SocrataSink(providerName string) *socrata.Sink {
	cfg := socrata.Config{
		Endpoint:  a.Config.Setting("SOCRATA_DATA_ENDPOINT", ""),
		Dataset:   a.Config.Setting("SOCRATA_DATASET", ""),
		AppToken:  a.Config.Setting("SOCRATA_APP_TOKEN", ""),
		KeyID:     a.Config.Setting("SOCRATA_KEY_ID", ""),
		KeySecret: a.Config.Setting("SOCRATA_KEY_SECRET", ""),
	}
	return socrata.New(providerName, cfg, a.Warehouse, a.Config.TimeZone())
}
