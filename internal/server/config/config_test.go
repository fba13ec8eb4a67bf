package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func validConfig(t *testing.T) *ServerConfig {
	t.Helper()
	cfg := Default()
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Cluster.DataDir = filepath.Join(t.TempDir(), "raft")
	cfg.Catchup.TempDir = filepath.Join(t.TempDir(), "remote")
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Catchup.ChunkSize != 64<<10 {
		t.Errorf("chunk_size = %d, want 64 KiB", cfg.Catchup.ChunkSize)
	}
	if cfg.Catchup.MaxAttempts != 5 {
		t.Errorf("max_attempts = %d, want 5", cfg.Catchup.MaxAttempts)
	}
	if cfg.Catchup.RetryBackoff != DefaultRetryBackoff {
		t.Errorf("retry_backoff = %v", cfg.Catchup.RetryBackoff)
	}
	if cfg.Catchup.TransportMode != "pooled" {
		t.Errorf("transport_mode = %q, want pooled", cfg.Catchup.TransportMode)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults = %q/%q", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestVerifyValidConfig(t *testing.T) {
	if err := Verify(validConfig(t)); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	cases := map[string]struct {
		mutate func(*ServerConfig)
		want   string
	}{
		"empty data dir": {
			mutate: func(c *ServerConfig) { c.Storage.DataDir = "" },
			want:   "storage.data_dir",
		},
		"empty temp dir": {
			mutate: func(c *ServerConfig) { c.Catchup.TempDir = "" },
			want:   "catchup.temp_dir",
		},
		"zero attempts": {
			mutate: func(c *ServerConfig) { c.Catchup.MaxAttempts = 0 },
			want:   "catchup.max_attempts",
		},
		"bad transport mode": {
			mutate: func(c *ServerConfig) { c.Catchup.TransportMode = "carrier-pigeon" },
			want:   "catchup.transport_mode",
		},
		"negative rate": {
			mutate: func(c *ServerConfig) { c.Catchup.MaxRateMBps = -1 },
			want:   "catchup.max_rate_mbps",
		},
		"bootstrap with seeds": {
			mutate: func(c *ServerConfig) {
				c.Cluster.Bootstrap = true
				c.Cluster.Seeds = []string{"10.0.0.1:5344"}
			},
			want: "mutually exclusive",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg)
			err := Verify(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}
