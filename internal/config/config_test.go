package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "ENV", "PUSH_PROVIDER", "SNS_REGION", "AWS_REGION", "ALERT_COOLDOWN_SECONDS", "NOTIFICATION_STORE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.LogLevel)
	}
	if cfg.Env != "development" {
		t.Errorf("expected env 'development', got %s", cfg.Env)
	}
	if cfg.PushProvider != "fcm" {
		t.Errorf("expected push provider fcm, got %s", cfg.PushProvider)
	}
	if cfg.SNSRegion != "us-east-1" {
		t.Errorf("expected SNS region to follow AWS region, got %s", cfg.SNSRegion)
	}
	if cfg.DispatchConcurrency != 8 || cfg.AlertCooldown != 0 {
		t.Errorf("unexpected pipeline defaults: %+v", cfg)
	}
	if cfg.BreakerMaxFailures != 5 || cfg.BreakerRecoveryTimeout != 30*time.Second {
		t.Errorf("unexpected breaker defaults: %+v", cfg)
	}
	if cfg.UseMemoryStore {
		t.Error("postgres store should be the default")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ENV", "production")
	t.Setenv("PUSH_PROVIDER", "sns")
	t.Setenv("AWS_REGION", "sa-east-1")
	t.Setenv("SNS_REGION", "")
	t.Setenv("SNS_TOPIC_ARN_PREFIX", "arn:aws:sns:sa-east-1:123456789012:")
	t.Setenv("PUSH_BREAKER_MAX_FAILURES", "3")
	t.Setenv("PUSH_BREAKER_RECOVERY_SECONDS", "45")
	t.Setenv("DISPATCH_CONCURRENCY", "4")
	t.Setenv("ALERT_COOLDOWN_SECONDS", "600")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("NOTIFICATION_STORE", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Port != 9000 || cfg.LogLevel != "debug" || cfg.Env != "production" {
		t.Errorf("unexpected server config: %+v", cfg)
	}
	if cfg.PushProvider != "sns" || cfg.SNSRegion != "sa-east-1" {
		t.Errorf("unexpected push config: provider=%s region=%s", cfg.PushProvider, cfg.SNSRegion)
	}
	if cfg.SNSTopicARNPrefix != "arn:aws:sns:sa-east-1:123456789012:" {
		t.Errorf("unexpected topic prefix %s", cfg.SNSTopicARNPrefix)
	}
	if cfg.BreakerMaxFailures != 3 || cfg.BreakerRecoveryTimeout != 45*time.Second {
		t.Errorf("unexpected breaker config: %d %s", cfg.BreakerMaxFailures, cfg.BreakerRecoveryTimeout)
	}
	if cfg.DispatchConcurrency != 4 || cfg.AlertCooldown != 10*time.Minute || cfg.RateLimitPerMinute != 30 {
		t.Errorf("unexpected pipeline config: %+v", cfg)
	}
	if !cfg.UseMemoryStore {
		t.Error("expected memory store")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PORT", "eighty"},
		{"DB_PORT", "x"},
		{"REDIS_DB", "one"},
		{"PUSH_BREAKER_MAX_FAILURES", "0"},
		{"PUSH_BREAKER_RECOVERY_SECONDS", "-5"},
		{"DISPATCH_CONCURRENCY", "0"},
		{"ALERT_COOLDOWN_SECONDS", "-1"},
		{"RATE_LIMIT_PER_MINUTE", "lots"},
		{"NOTIFICATION_STORE", "sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should name %s, got: %v", tt.key, err)
			}
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{DBUser: "aquamon", DBPassword: "secret", DBHost: "db", DBPort: 5432, DBName: "aquamon", DBSSLMode: "disable"}

	want := "postgres://aquamon:secret@db:5432/aquamon?sslmode=disable"
	if got := cfg.DatabaseURL(); got != want {
		t.Errorf("DatabaseURL() = %s, want %s", got, want)
	}
}
