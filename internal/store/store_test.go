package store

import (
	"path/filepath"
	"testing"
)

// setupTestDB opens a fresh database in a temp dir.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test_data.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := setupTestDB(t)

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	for _, table := range []string{"users", "long_term_memory", "relationship_metrics", "short_term_message_log", "message_archive"} {
		if count, ok := stats[table]; !ok || count != 0 {
			t.Errorf("table %s: count=%d ok=%v, want empty table present", table, count, ok)
		}
	}
}

func TestEnsureUserUpsert(t *testing.T) {
	db := setupTestDB(t)

	t1 := now()
	if err := db.EnsureUser(42, t1); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}

	t2 := t1.Add(1000000000) // 1s later
	if err := db.EnsureUser(42, t2); err != nil {
		t.Fatalf("second EnsureUser failed: %v", err)
	}

	first, last, ok, err := db.UserSeen(42)
	if err != nil || !ok {
		t.Fatalf("UserSeen: ok=%v err=%v", ok, err)
	}
	if !first.Equal(t1) {
		t.Errorf("first_seen = %v, want %v", first, t1)
	}
	if !last.Equal(t2) {
		t.Errorf("last_seen = %v, want %v", last, t2)
	}
}

func TestEnsureUserRejectsBadID(t *testing.T) {
	db := setupTestDB(t)

	if err := db.EnsureUser(0, now()); err == nil {
		t.Error("expected error for user ID 0")
	}
	if err := db.EnsureUser(-5, now()); err == nil {
		t.Error("expected error for negative user ID")
	}
}
