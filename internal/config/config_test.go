package config

import (
	"testing"
	"time"
)

func clearDatabaseAliases(t *testing.T) {
	t.Helper()
	for _, key := range databaseURLAliases {
		t.Setenv(key, "")
	}
}

func TestResolveDatabaseURLPriority(t *testing.T) {
	clearDatabaseAliases(t)
	t.Setenv("DATABASE_URL", "postgres://generic")
	t.Setenv("POSTGRES_URL", "postgres://vercel")
	t.Setenv("CHECKOUT_DATABASE_URL", "postgres://explicit")

	if got := resolveDatabaseURL(); got != "postgres://explicit" {
		t.Fatalf("resolveDatabaseURL() = %q, want the explicit alias to win", got)
	}
}

func TestResolveDatabaseURLFallsThroughEmptyAliases(t *testing.T) {
	clearDatabaseAliases(t)
	t.Setenv("SUPABASE_DB_URL", "postgres://supabase")

	if got := resolveDatabaseURL(); got != "postgres://supabase" {
		t.Fatalf("resolveDatabaseURL() = %q, want the last alias", got)
	}
}

func TestResolveDatabaseURLUnconfigured(t *testing.T) {
	clearDatabaseAliases(t)

	if got := resolveDatabaseURL(); got != "" {
		t.Fatalf("resolveDatabaseURL() = %q, want empty", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("MONITOR_INTERVAL_MINUTES", "5")
	if got := getEnvDuration("MONITOR_INTERVAL_MINUTES", 15) * time.Minute; got != 5*time.Minute {
		t.Fatalf("getEnvDuration = %v, want 5m", got)
	}

	t.Setenv("MONITOR_INTERVAL_MINUTES", "not-a-number")
	if got := getEnvDuration("MONITOR_INTERVAL_MINUTES", 15) * time.Minute; got != 15*time.Minute {
		t.Fatalf("getEnvDuration = %v, want the 15m fallback", got)
	}
}
