package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		changed map[string]bool
		check   func(t *testing.T, cfg Config)
		wantErr bool
	}{
		{
			name: "applies env vars",
			envVars: map[string]string{
				"SHARDLINE_TOKEN":            "env-token",
				"SHARDLINE_SHARD_COUNT":      "16",
				"SHARDLINE_INTENTS":          "1",
				"SHARDLINE_HEARTBEAT_JITTER": "false",
				"SHARDLINE_BACKOFF_CAP":      "10m",
				"SHARDLINE_COMMAND_BUDGET":   "50",
				"SHARDLINE_LOG_LEVEL":        "debug",
			},
			changed: map[string]bool{},
			check: func(t *testing.T, cfg Config) {
				if cfg.Token != "env-token" {
					t.Errorf("Token = %v, want env-token", cfg.Token)
				}
				if cfg.ShardCount != 16 {
					t.Errorf("ShardCount = %v, want 16", cfg.ShardCount)
				}
				if cfg.Intents != 1 {
					t.Errorf("Intents = %v, want 1", cfg.Intents)
				}
				if cfg.HeartbeatJitter {
					t.Errorf("HeartbeatJitter = true, want false")
				}
				if cfg.BackoffCap != 10*time.Minute {
					t.Errorf("BackoffCap = %v, want 10m", cfg.BackoffCap)
				}
				if cfg.CommandBudget != 50 {
					t.Errorf("CommandBudget = %v, want 50", cfg.CommandBudget)
				}
				if cfg.LogLevel != "debug" {
					t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
				}
			},
		},
		{
			name:    "respects changed flags",
			envVars: map[string]string{"SHARDLINE_TOKEN": "env-token", "SHARDLINE_SHARD_COUNT": "16"},
			changed: map[string]bool{"token": true, "shards": true},
			check: func(t *testing.T, cfg Config) {
				if cfg.Token != "" || cfg.ShardCount != 0 {
					t.Errorf("env overrode flags: token=%q shards=%d", cfg.Token, cfg.ShardCount)
				}
			},
		},
		{
			name:    "invalid duration",
			envVars: map[string]string{"SHARDLINE_HELLO_TIMEOUT": "forever"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "invalid number",
			envVars: map[string]string{"SHARDLINE_SHARD_COUNT": "-3"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			err := ApplyEnvConfig(&cfg, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnvConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// Flags beat environment, environment beats file, file beats defaults.
func TestConfigPrecedence(t *testing.T) {
	t.Setenv("SHARDLINE_SHARD_COUNT", "8")
	t.Setenv("SHARDLINE_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	cfg.LogLevel = "error" // set by flag
	changed := map[string]bool{"log-level": true}

	fc := FileConfig{Token: "file-token", ShardCount: 2, LogLevel: "debug", CommandBudget: 10}
	if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
		t.Fatal(err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatal(err)
	}

	if cfg.Token != "file-token" {
		t.Errorf("Token = %v, want file-token", cfg.Token)
	}
	if cfg.ShardCount != 8 {
		t.Errorf("ShardCount = %v, want 8 from env", cfg.ShardCount)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %v, want error from flag", cfg.LogLevel)
	}
	if cfg.CommandBudget != 10 {
		t.Errorf("CommandBudget = %v, want 10 from file", cfg.CommandBudget)
	}
}
