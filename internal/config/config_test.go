package config

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SUPPLIER_REQUESTS_PER_SECOND", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultSupplierBaseURL, cfg.Supplier.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Supplier.Timeout)
	assert.Equal(t, 2.5, cfg.Supplier.RequestsPerSecond)
	assert.Equal(t, 5*time.Minute, cfg.Supplier.TokenMargin)
	assert.Equal(t, 2*time.Hour, cfg.Supplier.TokenFallbackTTL)
	assert.Equal(t, 90*time.Second, cfg.Sync.SubmitClaimTTL)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_RedisRequiresHost(t *testing.T) {
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", "")

	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_HOST")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Supplier: SupplierConfig{
				BaseURL:           "http://supplier",
				Timeout:           time.Second,
				RequestsPerSecond: 1,
				TokenMargin:       5 * time.Minute,
				TokenFallbackTTL:  2 * time.Hour,
			},
			Sync: SyncConfig{SubmitClaimTTL: time.Minute},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero timeout", func(c *Config) { c.Supplier.Timeout = 0 }, "SUPPLIER_TIMEOUT_SECONDS"},
		{"zero rate", func(c *Config) { c.Supplier.RequestsPerSecond = 0 }, "SUPPLIER_REQUESTS_PER_SECOND"},
		{"fallback below margin", func(c *Config) { c.Supplier.TokenFallbackTTL = time.Minute }, "SUPPLIER_TOKEN_FALLBACK_HOURS"},
		{"zero claim ttl", func(c *Config) { c.Sync.SubmitClaimTTL = 0 }, "SUBMIT_CLAIM_TTL_SECONDS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestDatabaseConfig_URLs(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "dropsync", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=dropsync sslmode=disable", d.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/dropsync?sslmode=disable", d.MigrateURL())
}

func TestDatabaseConfig_URLsEscapeCredentials(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "app@ops", Password: "p@ss:w/rd?x", DBName: "dropsync", SSLMode: "require"}

	raw := d.MigrateURL()
	assert.Equal(t, "postgres://app%40ops:p%40ss%3Aw%2Frd%3Fx@db:5432/dropsync?sslmode=require", raw)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	password, _ := parsed.User.Password()
	assert.Equal(t, "app@ops", parsed.User.Username())
	assert.Equal(t, "p@ss:w/rd?x", password)
	assert.Equal(t, "db:5432", parsed.Host)
	assert.Equal(t, "/dropsync", parsed.Path)

	d.Password = `it's a secret`
	assert.Contains(t, d.DSN(), `password='it\'s a secret'`)
}
