package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-gateway/migrations"
)

func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return NewSQLiteRepository(db.DB)
}

func TestCreate_GeneratesIDAndTimestamp(t *testing.T) {
	repo := setupTestRepo(t)

	log := &AuditLog{Action: ActionConnected, RemoteAddr: "10.0.0.7:5000", Source: SourceWebSocket}
	if err := repo.Create(context.Background(), log); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if !strings.HasPrefix(log.ID, "aud-") {
		t.Errorf("ID = %q, want aud- prefix", log.ID)
	}
	if log.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []AuditLog{
		{Action: ActionConnected, Source: SourceWebSocket, CreatedAt: base},
		{Action: ActionIdentified, DeviceID: "dev-1", Source: SourceWebSocket, CreatedAt: base.Add(time.Millisecond),
			Details: map[string]any{"mac": "AA:BB"}},
		{Action: ActionDisconnected, DeviceID: "dev-1", Source: SourceWebSocket, CreatedAt: base.Add(time.Second)},
		{Action: ActionIdentified, DeviceID: "dev-2", Source: SourceWebSocket, CreatedAt: base.Add(2 * time.Second)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
	}{
		{"all newest first", Filter{}, 4, ActionIdentified},
		{"by device", Filter{DeviceID: "dev-1"}, 2, ActionDisconnected},
		{"by action", Filter{Action: ActionIdentified}, 2, ActionIdentified},
		{"device and action", Filter{DeviceID: "dev-1", Action: ActionIdentified}, 1, ActionIdentified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Logs) == 0 || res.Logs[0].Action != tt.wantFirst {
				t.Errorf("first action = %v, want %s", res.Logs, tt.wantFirst)
			}
		})
	}

	res, err := repo.List(ctx, Filter{DeviceID: "dev-1", Action: ActionIdentified})
	if err != nil {
		t.Fatal(err)
	}
	if res.Logs[0].Details["mac"] != "AA:BB" {
		t.Errorf("Details = %v, want mac", res.Logs[0].Details)
	}
}

func TestList_Pagination(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.Create(ctx, &AuditLog{Action: ActionConnected, Source: SourceWebSocket}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 5 || len(res.Logs) != 1 {
		t.Errorf("Total = %d, len = %d; want 5, 1", res.Total, len(res.Logs))
	}

	res, err = repo.List(ctx, Filter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatal(err)
	}
	if res.Limit != maxListLimit || res.Offset != 0 {
		t.Errorf("Limit/Offset = %d/%d, want clamped %d/0", res.Limit, res.Offset, maxListLimit)
	}
}
