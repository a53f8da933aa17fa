package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func migrateStatus(t *testing.T) string {
	t.Helper()
	var out bytes.Buffer
	if err := runMigrate(context.Background(), []string{"status"}, &out); err != nil {
		t.Fatalf("migrate status error = %v", err)
	}
	return out.String()
}

func TestRunMigrate_UpStatusDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	t.Setenv("GATEWAY_CONFIG", writeConfig(t, fmt.Sprintf(`
gateway:
  id: test-gateway
database:
  path: %q
`, dbPath)))

	if got := migrateStatus(t); !strings.Contains(got, "pending") || strings.Contains(got, "applied") {
		t.Errorf("status before up = %q, want only pending migrations", got)
	}

	if err := runMigrate(context.Background(), []string{"up"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("migrate up error = %v", err)
	}
	if got := migrateStatus(t); strings.Contains(got, "pending") {
		t.Errorf("status after up = %q, want nothing pending", got)
	}

	if err := runMigrate(context.Background(), []string{"down"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("migrate down error = %v", err)
	}
	if got := migrateStatus(t); strings.Count(got, "pending") != 1 {
		t.Errorf("status after down = %q, want one pending migration", got)
	}
}

func TestRunMigrate_Usage(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	t.Setenv("GATEWAY_CONFIG", writeConfig(t, fmt.Sprintf(`
gateway:
  id: test-gateway
database:
  path: %q
`, dbPath)))

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"too many", []string{"up", "down"}},
		{"unknown", []string{"sideways"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runMigrate(context.Background(), tt.args, &bytes.Buffer{}); err == nil {
				t.Errorf("runMigrate(%v) should fail", tt.args)
			}
		})
	}
}
