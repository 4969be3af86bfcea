package redis

import (
	"context"
	"testing"
)

func TestClient_PingAndConns(t *testing.T) {
	client, mr := setupTestRedis(t)

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if client.TotalConns() < 1 {
		t.Errorf("expected at least one pooled connection, got %d", client.TotalConns())
	}

	mr.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Error("expected ping to fail once the server is gone")
	}
}

func TestConfig_Addr(t *testing.T) {
	cfg := Config{Host: "cache", Port: 6380}
	if got := cfg.Addr(); got != "cache:6380" {
		t.Errorf("Addr() = %s, want cache:6380", got)
	}
}
