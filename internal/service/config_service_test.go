package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/config"
	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/repository/memory"
	"github.com/jafarshop/dropsync/internal/supplier"
	"github.com/jafarshop/dropsync/pkg/errors"
)

// newSupplierServer answers authentication and the category listing.
// A categories status other than 200 makes the listing fail.
func newSupplierServer(t *testing.T, categoriesCode int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/authentication", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code":   200,
			"result": true,
			"data": map[string]interface{}{
				"accessToken":           "tok-1",
				"accessTokenExpiryDate": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
			},
		})
	})
	mux.HandleFunc("/product/categoryList", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    categoriesCode,
			"result":  categoriesCode == 200,
			"message": "Invalid API key",
			"data":    []interface{}{},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestConfigService_TestConnection(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		status domain.ConnectionStatus
	}{
		{name: "connected", code: 200, status: domain.ConnectionStatusConnected},
		{name: "rejected", code: 1600001, status: domain.ConnectionStatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newSupplierServer(t, tt.code)
			ctx := context.Background()
			repos := memory.NewRepositories()

			registry := supplier.NewRegistry(config.SupplierConfig{
				BaseURL:           srv.URL,
				Timeout:           5 * time.Second,
				RequestsPerSecond: 100,
			}, repos.SupplierConfig, supplier.NewMemorySessionStore(), zap.NewNop(), nil)
			svc := NewConfigService(repos, NewRegistryProvider(registry), zap.NewNop())

			cfg := &domain.SupplierConfig{
				Name:       "main",
				Active:     true,
				Credential: domain.Credential{Email: "ops@example.com", Secret: "api-key"},
			}
			require.NoError(t, svc.CreateConfig(ctx, cfg))

			got, err := svc.TestConnection(ctx, cfg.ID)
			if tt.status == domain.ConnectionStatusConnected {
				require.NoError(t, err)
			} else {
				var apiErr *errors.APIError
				require.ErrorAs(t, err, &apiErr)
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.status, got.ConnectionStatus)

			stored, err := repos.SupplierConfig.GetByID(ctx, cfg.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, stored.ConnectionStatus)
			assert.NotEmpty(t, stored.ConnectionMessage)
		})
	}
}

func TestConfigService_CreateConfigDefaultsAndValidation(t *testing.T) {
	svc := NewConfigService(memory.NewRepositories(), fakeProvider{}, zap.NewNop())
	ctx := context.Background()

	cfg := &domain.SupplierConfig{Name: "main"}
	require.NoError(t, svc.CreateConfig(ctx, cfg))
	assert.Equal(t, 24, cfg.SyncIntervalHours)
	assert.Equal(t, domain.MarkupTypePercentage, cfg.Markup.Type)
	assert.Equal(t, domain.ConnectionStatusNotTested, cfg.ConnectionStatus)

	bad := &domain.SupplierConfig{
		Name:   "negative",
		Markup: domain.MarkupRule{Type: domain.MarkupTypeFixed, Amount: decimal.NewFromInt(-1)},
	}
	assert.Error(t, svc.CreateConfig(ctx, bad))
}

func TestConfigService_UpdateCredential(t *testing.T) {
	srv := newSupplierServer(t, 200)
	ctx := context.Background()
	repos := memory.NewRepositories()
	store := supplier.NewMemorySessionStore()

	registry := supplier.NewRegistry(config.SupplierConfig{
		BaseURL:           srv.URL,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
	}, repos.SupplierConfig, store, zap.NewNop(), nil)
	svc := NewConfigService(repos, NewRegistryProvider(registry), zap.NewNop())

	cfg := &domain.SupplierConfig{
		Name:       "main",
		Active:     true,
		Credential: domain.Credential{Email: "ops@example.com", Secret: "old-key"},
	}
	require.NoError(t, svc.CreateConfig(ctx, cfg))
	_, err := svc.TestConnection(ctx, cfg.ID)
	require.NoError(t, err)

	session, err := store.Load(ctx, supplier.SessionKey(cfg.ID))
	require.NoError(t, err)
	require.NotNil(t, session)

	updated, err := svc.UpdateCredential(ctx, cfg.ID, domain.Credential{Email: "ops@example.com", Secret: "new-key"})
	require.NoError(t, err)
	assert.Equal(t, "new-key", updated.Credential.Secret)
	assert.Equal(t, domain.ConnectionStatusNotTested, updated.ConnectionStatus)
	assert.Empty(t, updated.ConnectionMessage)

	session, err = store.Load(ctx, supplier.SessionKey(cfg.ID))
	require.NoError(t, err)
	assert.Nil(t, session, "the session of the old credential is dropped")

	t.Run("incomplete", func(t *testing.T) {
		_, err := svc.UpdateCredential(ctx, cfg.ID, domain.Credential{Email: "ops@example.com"})
		require.Error(t, err)

		stored, err := repos.SupplierConfig.GetByID(ctx, cfg.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-key", stored.Credential.Secret)
	})

	t.Run("unknown config", func(t *testing.T) {
		_, err := svc.UpdateCredential(ctx, uuid.New(), domain.Credential{Email: "a@example.com", Secret: "k"})
		assert.True(t, errors.IsNotFound(err))
	})
}
