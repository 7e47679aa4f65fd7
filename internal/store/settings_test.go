package store

import (
	"testing"

	"medtrack/internal/database"
)

func setupSettingsTestDB(t *testing.T) *SettingsStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSettingsStore(db)
}

func TestSettingsSetGet(t *testing.T) {
	ss := setupSettingsTestDB(t)

	if _, err := ss.Get("backup_enabled"); err == nil {
		t.Error("expected error for missing key")
	}

	if err := ss.Set("backup_enabled", "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, err := ss.Get("backup_enabled")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "true" {
		t.Errorf("value = %q, want %q", value, "true")
	}

	// Set again overwrites.
	if err := ss.Set("backup_enabled", "false"); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, _ = ss.Get("backup_enabled")
	if value != "false" {
		t.Errorf("value = %q, want %q", value, "false")
	}
}

func TestGetBackupSettings(t *testing.T) {
	ss := setupSettingsTestDB(t)

	ss.Set("backup_enabled", "true")
	ss.Set("backup_retention_days", "30")
	ss.Set("unrelated_key", "x")

	settings, err := ss.GetBackupSettings()
	if err != nil {
		t.Fatalf("get backup settings: %v", err)
	}
	if settings["backup_enabled"] != "true" || settings["backup_retention_days"] != "30" {
		t.Errorf("settings = %v", settings)
	}
	if _, ok := settings["unrelated_key"]; ok {
		t.Error("unrelated key leaked into backup settings")
	}
}
