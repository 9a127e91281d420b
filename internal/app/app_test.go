package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
	"github.com/patric-chuzhbe/jjbank/internal/config"
	"github.com/patric-chuzhbe/jjbank/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.New(config.WithDisableFlagsParsing(true), config.WithEnvFiles())
	require.NoError(t, err)
	cfg.DatabaseDSN = ""
	cfg.AppwriteDatabaseID = ""
	cfg.DBFileName = ""
	cfg.RedisAddr = ""

	return cfg
}

func TestNewWithConfigServesPing(t *testing.T) {
	app, err := NewWithConfig(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	server := httptest.NewServer(app.Handler())
	defer server.Close()

	resp, err := resty.New().R().Get(server.URL + "/ping")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
}

func TestNewWithConfigRejectsUnknownDwollaEnvironment(t *testing.T) {
	cfg := testConfig(t)
	cfg.DwollaEnv = "staging"

	_, err := NewWithConfig(context.Background(), cfg)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestGetAvailableStorageType(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want int
	}{
		{name: "postgres wins", cfg: config.Config{DatabaseDSN: "postgres://x", AppwriteDatabaseID: "db", DBFileName: "f.json"}, want: models.StorageTypePostgresql},
		{name: "appwrite", cfg: config.Config{AppwriteDatabaseID: "db", DBFileName: "f.json"}, want: models.StorageTypeAppwrite},
		{name: "file", cfg: config.Config{DBFileName: "f.json"}, want: models.StorageTypeFile},
		{name: "memory", cfg: config.Config{}, want: models.StorageTypeMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getAvailableStorageType(&tt.cfg))
		})
	}
}
