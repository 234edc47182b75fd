package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		ZonePageSize:   DefaultPageSize,
		ClusterK:       DefaultClusterK,
		CacheBackend:   CacheBackendMemory,
		LocationSource: LocationSourcePush,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero page size", func(c *Config) { c.ZonePageSize = 0 }, "ZONE_PAGE_SIZE"},
		{"negative k", func(c *Config) { c.ClusterK = -1 }, "CLUSTER_K"},
		{"unknown backend", func(c *Config) { c.CacheBackend = "etcd" }, "CACHE_BACKEND"},
		{"simulated without route", func(c *Config) { c.LocationSource = LocationSourceSimulated }, "SIM_ROUTE"},
		{"simulated with route", func(c *Config) {
			c.LocationSource = LocationSourceSimulated
			c.SimRoute = "_p~iF~ps|U"
		}, ""},
		{"unknown source", func(c *Config) { c.LocationSource = "gps" }, "LOCATION_SOURCE"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate()=%v want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate()=%v want error mentioning %s", err, tc.wantErr)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("CACHE_BACKEND", CacheBackendMemory)
	t.Setenv("CLUSTER_K", "0.25")
	t.Setenv("HTTP_TIMEOUT", "3s")

	c, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.CacheBackend != CacheBackendMemory || c.ClusterK != 0.25 || c.HTTPTimeout != 3*time.Second {
		t.Fatalf("config=%+v", c)
	}
	if c.ZonePageSize != DefaultPageSize || c.ZoneSourceURL != DefaultZoneSourceURL {
		t.Fatalf("defaults not applied: %+v", c)
	}
}
