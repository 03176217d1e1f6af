package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/atd-dts/mds-ingest/pkg/objectstore"
	"github.com/atd-dts/mds-ingest/pkg/timezone"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

// ErrConfigMissing is returned when a required environment variable is
// unset or a provider profile cannot be found. It is fatal at startup.
var ErrConfigMissing = errors.New("configuration missing")

// Env is a snapshot of the process environment recognized by the pipeline.
type Env struct {
	Region     string
	AccessKey  string
	SecretKey  string
	Bucket     string
	RunMode    types.RunMode
	FernetKey  string
	MaxThreads int

	// Object store keys for the two configuration documents.
	ProvidersKey string
	SettingsKey  string

	// Local paths to the three geography layers.
	CensusGeoJSON    string
	DistrictsGeoJSON string
	HexGeoJSON       string
}

// FromEnv reads the recognized environment variables and applies the
// documented defaults. Whether a missing value is fatal is decided by the
// component that consumes it.
func FromEnv() Env {
	mode := types.RunMode(os.Getenv("ATD_MDS_RUN_MODE"))
	if mode != types.RunModeProduction {
		mode = types.RunModeStaging
	}

	threads := 1
	if v := os.Getenv("ATD_MDS_MAX_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			threads = n
		}
	}

	env := Env{
		Region:           os.Getenv("AWS_DEFAULT_REGION"),
		AccessKey:        os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey:        os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Bucket:           os.Getenv("ATD_MDS_BUCKET"),
		RunMode:          mode,
		FernetKey:        os.Getenv("ATD_MDS_FERNET_KEY"),
		MaxThreads:       threads,
		ProvidersKey:     os.Getenv("ATD_MDS_PROVIDERS"),
		SettingsKey:      os.Getenv("ATD_MDS_SETTINGS"),
		CensusGeoJSON:    os.Getenv("ATD_MDS_CENSUS_GEOJSON"),
		DistrictsGeoJSON: os.Getenv("ATD_MDS_DISTRICTS_GEOJSON"),
		HexGeoJSON:       os.Getenv("ATD_MDS_HEX_GEOJSON"),
	}

	stage := strings.ToLower(string(env.RunMode))
	if env.ProvidersKey == "" {
		env.ProvidersKey = fmt.Sprintf("config/providers_%s.json", stage)
	}
	if env.SettingsKey == "" {
		env.SettingsKey = fmt.Sprintf("config/settings_%s.json", stage)
	}
	return env
}

// Stage returns the lowercase run mode used as the object key prefix.
func (e Env) Stage() string {
	return strings.ToLower(string(e.RunMode))
}

// Store holds the runtime configuration: the environment snapshot plus the
// provider profiles and settings documents loaded from the object store.
// A Store is immutable after Load and safe to share across workers.
type Store struct {
	env       Env
	providers map[string]types.ProviderProfile
	settings  map[string]any
}

// NewStore wraps an environment snapshot. Load must be called before
// profile or setting lookups.
func NewStore(env Env) *Store {
	return &Store{
		env:       env,
		providers: map[string]types.ProviderProfile{},
		settings:  map[string]any{},
	}
}

// Env returns the environment snapshot the store was built from.
func (s *Store) Env() Env {
	return s.env
}

// Load hydrates the providers and settings maps from the two JSON
// documents in the object store. Both documents are required: a pipeline
// without provider profiles or warehouse settings cannot run.
func (s *Store) Load(ctx context.Context, blobs *objectstore.Store) error {
	raw, err := blobs.GetBytes(ctx, s.env.ProvidersKey)
	if err != nil {
		return fmt.Errorf("%w: providers document %s: %v", ErrConfigMissing, s.env.ProvidersKey, err)
	}
	providers := map[string]types.ProviderProfile{}
	if err := json.Unmarshal(raw, &providers); err != nil {
		return fmt.Errorf("failed to parse providers document %s: %w", s.env.ProvidersKey, err)
	}

	v := validator.New()
	for name, profile := range providers {
		if profile.Name == "" {
			profile.Name = name
			providers[name] = profile
		}
		if err := v.Struct(profile); err != nil {
			return fmt.Errorf("invalid profile for provider %s: %w", name, err)
		}
	}
	s.providers = providers

	raw, err = blobs.GetBytes(ctx, s.env.SettingsKey)
	if err != nil {
		return fmt.Errorf("%w: settings document %s: %v", ErrConfigMissing, s.env.SettingsKey, err)
	}
	settings := map[string]any{}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return fmt.Errorf("failed to parse settings document %s: %w", s.env.SettingsKey, err)
	}
	s.settings = settings
	return nil
}

// ProviderProfile looks up a provider by its configuration key, falling
// back to a case-insensitive match on key or display name.
func (s *Store) ProviderProfile(name string) (types.ProviderProfile, error) {
	if p, ok := s.providers[name]; ok {
		return p, nil
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for key, p := range s.providers {
		if strings.ToLower(key) == want || strings.ToLower(p.Name) == want {
			return p, nil
		}
	}
	return types.ProviderProfile{}, fmt.Errorf("%w: unknown provider %q", ErrConfigMissing, name)
}

// ProviderNames returns the configured provider keys in sorted order.
func (s *Store) ProviderNames() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DataPath returns the canonical object key prefix for a provider and
// hour, e.g. "staging/sample_co/2020/1/1/1/". Date components are not
// zero padded; the provider segment is lowercased with spaces collapsed
// to underscores.
func (s *Store) DataPath(provider string, t time.Time) string {
	segment := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(provider)), " ", "_")
	return fmt.Sprintf("%s/%s/%d/%d/%d/%d/",
		s.env.Stage(), segment, t.Year(), int(t.Month()), t.Day(), t.Hour())
}

// Setting returns the named settings value as a string, or the default
// when the key is absent or not a scalar.
func (s *Store) Setting(key, def string) string {
	v, ok := s.settings[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return def
	}
}

// SettingInt returns the named settings value as an integer, or the
// default when absent or not numeric.
func (s *Store) SettingInt(key string, def int) int {
	v, ok := s.settings[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return def
}

// TimeZone returns the civil zone the schedule table is keyed in.
func (s *Store) TimeZone() string {
	return s.Setting("TIME_ZONE", timezone.DefaultZone)
}

// HasuraEndpoint returns the warehouse GraphQL endpoint.
func (s *Store) HasuraEndpoint() string {
	return s.Setting("HASURA_ENDPOINT", "")
}

// HasuraAdminKey returns the warehouse admin secret.
func (s *Store) HasuraAdminKey() string {
	return s.Setting("HASURA_ADMIN_KEY", "")
}
