package store

import (
	"testing"
	"time"

	"medtrack/internal/database"
	"medtrack/internal/model"
)

func setupPushTestDB(t *testing.T) (*PushStore, *UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPushStore(db), NewUserStore(db)
}

func TestSubscriptionUpsert(t *testing.T) {
	ps, us := setupPushTestDB(t)
	u, _ := us.Create("alice@example.com", "Alice", "h")

	sub, err := ps.CreateSubscription(u.ID, "https://push.example/ep1", "p256dh-a", "auth-a", "Pixel")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub == nil || sub.Endpoint != "https://push.example/ep1" {
		t.Fatalf("subscription = %+v", sub)
	}

	// Same endpoint again updates keys instead of duplicating.
	again, err := ps.CreateSubscription(u.ID, "https://push.example/ep1", "p256dh-b", "auth-b", "Pixel")
	if err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}
	if again == nil || again.P256dhKey != "p256dh-b" {
		t.Fatalf("upserted subscription = %+v", again)
	}

	subs, err := ps.ListByUser(u.ID)
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("got %d subscriptions, want 1", len(subs))
	}
}

func TestSubscriptionDeleteByEndpoint(t *testing.T) {
	ps, us := setupPushTestDB(t)
	u, _ := us.Create("alice@example.com", "Alice", "h")

	if _, err := ps.CreateSubscription(u.ID, "https://push.example/ep1", "p", "a", ""); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if err := ps.DeleteByEndpoint("https://push.example/ep1"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}

	subs, err := ps.ListByUser(u.ID)
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("got %d subscriptions, want 0", len(subs))
	}
}

func TestListUserIDs(t *testing.T) {
	ps, us := setupPushTestDB(t)
	alice, _ := us.Create("alice@example.com", "Alice", "h")
	bob, _ := us.Create("bob@example.com", "Bob", "h")

	ps.CreateSubscription(alice.ID, "https://push.example/a1", "p", "a", "")
	ps.CreateSubscription(alice.ID, "https://push.example/a2", "p", "a", "")
	ps.CreateSubscription(bob.ID, "https://push.example/b1", "p", "a", "")

	ids, err := ps.ListUserIDs()
	if err != nil {
		t.Fatalf("list user ids: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("got %d user ids, want 2", len(ids))
	}
}

func TestPreferenceDefaultEnabled(t *testing.T) {
	ps, us := setupPushTestDB(t)
	u, _ := us.Create("alice@example.com", "Alice", "h")

	enabled, err := ps.IsPreferenceEnabled(u.ID, model.NotifTypeDoseReminder)
	if err != nil {
		t.Fatalf("check preference: %v", err)
	}
	if !enabled {
		t.Error("expected default enabled with no record")
	}

	if err := ps.SetPreference(u.ID, model.NotifTypeDoseReminder, false); err != nil {
		t.Fatalf("set preference: %v", err)
	}
	enabled, err = ps.IsPreferenceEnabled(u.ID, model.NotifTypeDoseReminder)
	if err != nil {
		t.Fatalf("check preference: %v", err)
	}
	if enabled {
		t.Error("expected disabled after opt-out")
	}

	prefs, err := ps.GetPreferences(u.ID)
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if len(prefs) != 1 || prefs[0].Enabled {
		t.Errorf("preferences = %+v", prefs)
	}
}

func TestSentDedup(t *testing.T) {
	ps, us := setupPushTestDB(t)
	u, _ := us.Create("alice@example.com", "Alice", "h")

	refID := "dose-med1-08:00-2026-08-30"
	sent, err := ps.WasSent(u.ID, model.NotifTypeDoseReminder, refID)
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("expected not sent")
	}

	if err := ps.RecordSent(u.ID, model.NotifTypeDoseReminder, refID); err != nil {
		t.Fatalf("record sent: %v", err)
	}
	// Recording twice is a no-op.
	if err := ps.RecordSent(u.ID, model.NotifTypeDoseReminder, refID); err != nil {
		t.Fatalf("record sent again: %v", err)
	}

	sent, err = ps.WasSent(u.ID, model.NotifTypeDoseReminder, refID)
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if !sent {
		t.Error("expected sent after record")
	}

	if err := ps.CleanupSent(time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("cleanup sent: %v", err)
	}
	sent, err = ps.WasSent(u.ID, model.NotifTypeDoseReminder, refID)
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("expected cleaned up")
	}
}
