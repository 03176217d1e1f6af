package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atd-dts/mds-ingest/pkg/objectstore"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

const testProvidersDoc = `{
	"sample_co": {
		"provider_name": "Sample Co",
		"provider_id": 1,
		"mds_version": "0.3.0",
		"mds_api_url": "https://mds.sample.co/v1",
		"auth_type": "bearer",
		"token": "secret-token",
		"paging": true,
		"delay": 0,
		"timeout": 10,
		"max_attempts": 3
	},
	"veoride": {
		"provider_name": "VeoRide INC.",
		"provider_id": 9,
		"mds_version": "0.2.0",
		"mds_api_url": "https://mds.veoride.example/v1",
		"auth_type": "basic",
		"username": "atd",
		"password": "pw",
		"paging": false,
		"delay": 5,
		"timeout": 30,
		"max_attempts": 5
	}
}`

const testSettingsDoc = `{
	"HASURA_ENDPOINT": "https://warehouse.example/v1/graphql",
	"HASURA_ADMIN_KEY": "admin-key",
	"SOCRATA_DATASET": "7d8e-dm7r",
	"MAX_RETRIES": 4
}`

// newTestConfig loads a Store from a fake bucket serving the two documents.
func newTestConfig(t *testing.T, providersDoc, settingsDoc string) *Store {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/test-bucket/")
		switch key {
		case "config/providers_staging.json":
			_, _ = w.Write([]byte(providersDoc))
		case "config/settings_staging.json":
			_, _ = w.Write([]byte(settingsDoc))
		default:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code></Error>`))
		}
	}))
	t.Cleanup(srv.Close)

	blobs, err := objectstore.New(objectstore.Config{
		Endpoint:  srv.URL[7:],
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "test-bucket",
		Insecure:  true,
	})
	require.NoError(t, err)

	env := Env{RunMode: types.RunModeStaging}
	env.ProvidersKey = "config/providers_staging.json"
	env.SettingsKey = "config/settings_staging.json"

	store := NewStore(env)
	require.NoError(t, store.Load(context.Background(), blobs))
	return store
}

// TestFromEnvDefaults tests default document keys and run mode
func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("ATD_MDS_RUN_MODE", "")
	t.Setenv("ATD_MDS_PROVIDERS", "")
	t.Setenv("ATD_MDS_SETTINGS", "")
	t.Setenv("ATD_MDS_MAX_THREADS", "")

	env := FromEnv()
	assert.Equal(t, types.RunModeStaging, env.RunMode)
	assert.Equal(t, "config/providers_staging.json", env.ProvidersKey)
	assert.Equal(t, "config/settings_staging.json", env.SettingsKey)
	assert.Equal(t, 1, env.MaxThreads)
}

// TestFromEnvProduction tests the production key space
func TestFromEnvProduction(t *testing.T) {
	t.Setenv("ATD_MDS_RUN_MODE", "PRODUCTION")
	t.Setenv("ATD_MDS_PROVIDERS", "")
	t.Setenv("ATD_MDS_SETTINGS", "")
	t.Setenv("ATD_MDS_MAX_THREADS", "4")

	env := FromEnv()
	assert.Equal(t, types.RunModeProduction, env.RunMode)
	assert.Equal(t, "config/providers_production.json", env.ProvidersKey)
	assert.Equal(t, "config/settings_production.json", env.SettingsKey)
	assert.Equal(t, 4, env.MaxThreads)
}

// TestFromEnvSettingsOverride tests that the settings document key comes
// from its own environment variable, independent of the providers key
func TestFromEnvSettingsOverride(t *testing.T) {
	t.Setenv("ATD_MDS_RUN_MODE", "")
	t.Setenv("ATD_MDS_PROVIDERS", "custom/providers.json")
	t.Setenv("ATD_MDS_SETTINGS", "custom/settings.json")
	t.Setenv("ATD_MDS_MAX_THREADS", "")

	env := FromEnv()
	assert.Equal(t, "custom/providers.json", env.ProvidersKey)
	assert.Equal(t, "custom/settings.json", env.SettingsKey)
}

// TestLoadAndLookup tests document hydration and profile lookup
func TestLoadAndLookup(t *testing.T) {
	store := newTestConfig(t, testProvidersDoc, testSettingsDoc)

	profile, err := store.ProviderProfile("sample_co")
	assert.NoError(t, err)
	assert.Equal(t, "Sample Co", profile.Name)
	assert.Equal(t, types.V030, profile.Version)
	assert.Equal(t, types.AuthBearer, profile.AuthType)
	assert.True(t, profile.Paging)

	// Lookup is forgiving about case and display names.
	profile, err = store.ProviderProfile("VeoRide INC.")
	assert.NoError(t, err)
	assert.Equal(t, 9, profile.ProviderID)

	_, err = store.ProviderProfile("ghost scooters")
	assert.ErrorIs(t, err, ErrConfigMissing)

	assert.Equal(t, []string{"sample_co", "veoride"}, store.ProviderNames())
}

// TestLoadRejectsInvalidProfile tests profile validation on load
func TestLoadRejectsInvalidProfile(t *testing.T) {
	bad := `{"broken": {"provider_name": "Broken", "provider_id": 3, "mds_version": "9.9.9",
		"mds_api_url": "https://x.example", "auth_type": "bearer"}}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "providers") {
			_, _ = w.Write([]byte(bad))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	blobs, err := objectstore.New(objectstore.Config{
		Endpoint:  srv.URL[7:],
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "test-bucket",
		Insecure:  true,
	})
	require.NoError(t, err)

	env := Env{RunMode: types.RunModeStaging, ProvidersKey: "config/providers_staging.json", SettingsKey: "config/settings_staging.json"}
	store := NewStore(env)
	err = store.Load(context.Background(), blobs)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

// TestLoadMissingDocumentIsFatal tests that absent documents fail the load
func TestLoadMissingDocumentIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code></Error>`))
	}))
	t.Cleanup(srv.Close)

	blobs, err := objectstore.New(objectstore.Config{
		Endpoint:  srv.URL[7:],
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "test-bucket",
		Insecure:  true,
	})
	require.NoError(t, err)

	store := NewStore(Env{RunMode: types.RunModeStaging, ProvidersKey: "p.json", SettingsKey: "s.json"})
	assert.ErrorIs(t, store.Load(context.Background(), blobs), ErrConfigMissing)
}

// TestDataPath tests the canonical object key prefix
func TestDataPath(t *testing.T) {
	store := NewStore(Env{RunMode: types.RunModeStaging})
	hour := time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		provider string
		expected string
	}{
		{name: "plain name", provider: "sample_co", expected: "staging/sample_co/2020/1/1/1/"},
		{name: "spaces collapse", provider: "Sample Co", expected: "staging/sample_co/2020/1/1/1/"},
		{name: "trailing space trimmed", provider: " VeoRide INC. ", expected: "staging/veoride_inc./2020/1/1/1/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, store.DataPath(tt.provider, hour))
		})
	}
}

// TestSettings tests the settings passthrough accessors
func TestSettings(t *testing.T) {
	store := newTestConfig(t, testProvidersDoc, testSettingsDoc)

	assert.Equal(t, "https://warehouse.example/v1/graphql", store.HasuraEndpoint())
	assert.Equal(t, "admin-key", store.HasuraAdminKey())
	assert.Equal(t, "fallback", store.Setting("MISSING_KEY", "fallback"))
	assert.Equal(t, 4, store.SettingInt("MAX_RETRIES", 1))
	assert.Equal(t, 1, store.SettingInt("NOT_A_NUMBER", 1))
	assert.Equal(t, "US/Central", store.TimeZone())
}
